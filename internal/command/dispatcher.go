// Package command exposes the engine as a single-endpoint command API:
// every call POSTs {"command": NAME, ...payload} and gets back the standard
// success/error envelope.
package command

import (
	"encoding/json"
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/classpulse/backend/internal/auth"
	"github.com/classpulse/backend/internal/game"
	"github.com/classpulse/backend/internal/lessons"
	"github.com/classpulse/backend/internal/models"
	"github.com/classpulse/backend/pkg/response"
)

// Dispatcher routes commands to the engine.
type Dispatcher struct {
	auth     *auth.Registry
	sessions *game.Registry
	lessons  *lessons.Store
	logger   *zap.Logger
}

// NewDispatcher creates a command dispatcher.
func NewDispatcher(a *auth.Registry, sessions *game.Registry, store *lessons.Store, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{auth: a, sessions: sessions, lessons: store, logger: logger}
}

// Handle is the gin handler for POST /api/game.
func (d *Dispatcher) Handle(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil || len(raw) == 0 {
		response.BadRequest(c, "no body was sent in request")
		return
	}

	var envelope struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		response.BadRequest(c, "malformed request body")
		return
	}

	switch envelope.Command {
	case "LOGIN":
		d.login(c, raw)
	case "LOGOUT":
		d.logout(c, raw)
	case "CREATE_NEW_GAME":
		d.createNewGame(c, raw)
	case "VALIDATE_SESSION":
		d.validateSession(c, raw)
	case "SET_LESSON":
		d.setLesson(c, raw)
	case "GET_LESSON":
		d.getLesson(c, raw)
	case "GET_CURRENT_QUESTION":
		d.getCurrentQuestion(c, raw)
	case "CHANGE_QUESTION":
		d.changeQuestion(c, raw)
	case "OPEN_QUESTION":
		d.openQuestion(c, raw)
	case "CLOSE_QUESTION":
		d.closeQuestion(c, raw)
	case "STUDENT_ANSWER":
		d.studentAnswer(c, raw)
	case "END_GAME":
		d.endGame(c, raw)
	case "GET_GAME_RESULTS":
		d.getGameResults(c, raw)
	case "":
		response.BadRequest(c, "no command specified")
	default:
		response.BadRequest(c, "unknown command "+envelope.Command)
	}
}

// ownedSession resolves a session for commands that require the owning
// instructor: valid token, known code, matching owner.
func (d *Dispatcher) ownedSession(token, code string) (*game.Session, error) {
	if !d.auth.IsValid(token) {
		return nil, game.ErrUnauthorized
	}
	s, err := d.sessions.Get(code)
	if err != nil {
		return nil, err
	}
	if s.Owner() != token {
		return nil, game.ErrUnauthorized
	}
	return s, nil
}

func (d *Dispatcher) login(c *gin.Context, raw []byte) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		response.BadRequest(c, "malformed request body")
		return
	}
	token, err := d.auth.Login(req.Username, req.Password)
	if err != nil {
		d.writeError(c, err)
		return
	}
	response.OK(c, gin.H{"authToken": token})
}

func (d *Dispatcher) logout(c *gin.Context, raw []byte) {
	var req struct {
		AuthToken string `json:"authToken"`
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		response.BadRequest(c, "malformed request body")
		return
	}
	if err := d.auth.Logout(req.AuthToken); err != nil {
		d.writeError(c, err)
		return
	}
	response.OK(c, nil)
}

func (d *Dispatcher) createNewGame(c *gin.Context, raw []byte) {
	var req struct {
		AuthToken string        `json:"authToken"`
		Lesson    models.Lesson `json:"lesson"`
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		response.BadRequest(c, "malformed request body")
		return
	}
	code, err := d.sessions.Create(req.AuthToken, req.Lesson)
	if err != nil {
		d.writeError(c, err)
		return
	}
	// Keep the lesson around for GET_LESSON, like the authoring flow expects.
	if err := d.lessons.Set(req.AuthToken, req.Lesson); err != nil {
		d.writeError(c, err)
		return
	}
	response.OK(c, gin.H{"code": code})
}

func (d *Dispatcher) validateSession(c *gin.Context, raw []byte) {
	var req struct {
		AuthToken string `json:"authToken"`
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		response.BadRequest(c, "malformed request body")
		return
	}
	response.OK(c, gin.H{"valid": d.auth.IsValid(req.AuthToken)})
}

func (d *Dispatcher) setLesson(c *gin.Context, raw []byte) {
	var req struct {
		AuthToken string        `json:"authToken"`
		Lesson    models.Lesson `json:"lesson"`
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		response.BadRequest(c, "malformed request body")
		return
	}
	if !d.auth.IsValid(req.AuthToken) {
		d.writeError(c, game.ErrUnauthorized)
		return
	}
	if err := d.lessons.Set(req.AuthToken, req.Lesson); err != nil {
		d.writeError(c, err)
		return
	}
	response.OK(c, nil)
}

func (d *Dispatcher) getLesson(c *gin.Context, raw []byte) {
	var req struct {
		AuthToken string `json:"authToken"`
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		response.BadRequest(c, "malformed request body")
		return
	}
	if !d.auth.IsValid(req.AuthToken) {
		d.writeError(c, game.ErrUnauthorized)
		return
	}
	lesson, err := d.lessons.Get(req.AuthToken)
	if err != nil {
		d.writeError(c, err)
		return
	}
	response.OK(c, gin.H{"lesson": lesson})
}

func (d *Dispatcher) getCurrentQuestion(c *gin.Context, raw []byte) {
	var req struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		response.BadRequest(c, "malformed request body")
		return
	}
	s, err := d.sessions.Get(req.Code)
	if err != nil {
		d.writeError(c, err)
		return
	}
	q, waiting, open, err := s.CurrentQuestion()
	if err != nil {
		d.writeError(c, err)
		return
	}
	if waiting {
		response.OK(c, gin.H{"question": game.Waiting, "isOpen": false})
		return
	}
	response.OK(c, gin.H{"question": q, "isOpen": open})
}

func (d *Dispatcher) changeQuestion(c *gin.Context, raw []byte) {
	var req struct {
		AuthToken        string `json:"authToken"`
		Code             string `json:"code"`
		NewQuestionIndex int    `json:"newQuestionIndex"`
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		response.BadRequest(c, "malformed request body")
		return
	}
	s, err := d.ownedSession(req.AuthToken, req.Code)
	if err != nil {
		d.writeError(c, err)
		return
	}
	previous, err := s.ChangeQuestion(req.NewQuestionIndex)
	if err != nil {
		d.writeError(c, err)
		return
	}
	response.OK(c, gin.H{"lastPollResult": previous})
}

func (d *Dispatcher) openQuestion(c *gin.Context, raw []byte) {
	s, err := d.sessionFromTokenAndCode(raw)
	if err != nil {
		d.writeError(c, err)
		return
	}
	if err := s.Open(); err != nil {
		d.writeError(c, err)
		return
	}
	response.OK(c, nil)
}

func (d *Dispatcher) closeQuestion(c *gin.Context, raw []byte) {
	s, err := d.sessionFromTokenAndCode(raw)
	if err != nil {
		d.writeError(c, err)
		return
	}
	if err := s.Close(); err != nil {
		d.writeError(c, err)
		return
	}
	response.OK(c, nil)
}

func (d *Dispatcher) studentAnswer(c *gin.Context, raw []byte) {
	var req struct {
		Code         string `json:"code"`
		RespondentID string `json:"respondentId"`
		QuestionID   string `json:"questionId"`
		Answer       string `json:"answer"`
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		response.BadRequest(c, "malformed request body")
		return
	}
	s, err := d.sessions.Get(req.Code)
	if err != nil {
		d.writeError(c, err)
		return
	}
	if err := s.SubmitAnswer(req.QuestionID, req.RespondentID, req.Answer); err != nil {
		d.writeError(c, err)
		return
	}
	response.OK(c, nil)
}

func (d *Dispatcher) endGame(c *gin.Context, raw []byte) {
	var req struct {
		AuthToken string `json:"authToken"`
		Code      string `json:"code"`
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		response.BadRequest(c, "malformed request body")
		return
	}
	s, err := d.ownedSession(req.AuthToken, req.Code)
	if err != nil {
		d.writeError(c, err)
		return
	}
	// The ended session stays registered so the instructor can still pull
	// results and the CSV report; it is removed on logout or when the owner
	// creates a new game.
	if err := s.End(); err != nil {
		d.writeError(c, err)
		return
	}
	response.OK(c, nil)
}

func (d *Dispatcher) getGameResults(c *gin.Context, raw []byte) {
	var req struct {
		AuthToken string `json:"authToken"`
		Code      string `json:"code"`
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		response.BadRequest(c, "malformed request body")
		return
	}
	s, err := d.ownedSession(req.AuthToken, req.Code)
	if err != nil {
		d.writeError(c, err)
		return
	}
	response.OK(c, gin.H{"results": s.Results()})
}

func (d *Dispatcher) sessionFromTokenAndCode(raw []byte) (*game.Session, error) {
	var req struct {
		AuthToken string `json:"authToken"`
		Code      string `json:"code"`
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, errMalformed
	}
	return d.ownedSession(req.AuthToken, req.Code)
}

var errMalformed = errors.New("malformed request body")

// writeError maps engine errors onto the response envelope. Messages go to
// the client verbatim; nothing is retried here.
func (d *Dispatcher) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrUnknownToken),
		errors.Is(err, game.ErrUnauthorized):
		response.Unauthorized(c, err.Error())
	case errors.Is(err, game.ErrNoSuchSession),
		errors.Is(err, lessons.ErrNoLesson):
		response.NotFound(c, err.Error())
	case errors.Is(err, models.ErrInvalidLesson),
		errors.Is(err, game.ErrInvalidAnswer),
		errors.Is(err, game.ErrQuestionIndex),
		errors.Is(err, errMalformed):
		response.BadRequest(c, err.Error())
	case errors.Is(err, game.ErrSessionEnded),
		errors.Is(err, game.ErrNoQuestionSelected),
		errors.Is(err, game.ErrQuestionClosed),
		errors.Is(err, game.ErrWrongQuestion),
		errors.Is(err, game.ErrCodeSpaceExhausted):
		response.Conflict(c, err.Error())
	default:
		d.logger.Error("command failed", zap.Error(err))
		response.Internal(c, err.Error())
	}
}
