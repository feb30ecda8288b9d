package command

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/classpulse/backend/internal/auth"
	"github.com/classpulse/backend/internal/game"
	"github.com/classpulse/backend/internal/lessons"
	"github.com/classpulse/backend/pkg/response"
)

type env struct {
	router   *gin.Engine
	auth     *auth.Registry
	sessions *game.Registry
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	authReg := auth.NewRegistry("admin", "password", auth.NewTokenService("test-secret", 1), logger)
	codes := game.NewCodeGenerator(game.DefaultCodeAlphabet, game.DefaultCodeLength)
	sessions := game.NewRegistry(authReg, codes, nil, logger)
	store := lessons.NewStore()
	authReg.OnLogout(func(token string) {
		sessions.DestroyAllOwnedBy(token)
		store.Delete(token)
	})

	d := NewDispatcher(authReg, sessions, store, logger)
	router := gin.New()
	router.POST("/api/game", d.Handle)
	return &env{router: router, auth: authReg, sessions: sessions}
}

// post sends a command and decodes the envelope.
func (e *env) post(t *testing.T, payload map[string]any) (int, response.Body) {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/game", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	e.router.ServeHTTP(rec, req)

	var body response.Body
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("response not an envelope: %v (%s)", err, rec.Body.String())
	}
	return rec.Code, body
}

func (e *env) mustLogin(t *testing.T) string {
	t.Helper()
	code, body := e.post(t, map[string]any{"command": "LOGIN", "username": "admin", "password": "password"})
	if code != http.StatusOK || !body.Success {
		t.Fatalf("LOGIN failed: %d %+v", code, body)
	}
	return body.Data.(map[string]any)["authToken"].(string)
}

func lessonPayload() map[string]any {
	return map[string]any{
		"name": "demo",
		"questions": []map[string]any{
			{"id": "q1", "title": "first", "options": []string{"A", "B"}, "correctAnswer": "A"},
			{"id": "q2", "title": "second", "options": []string{"X", "Y", "Z"}, "correctAnswer": "Y"},
		},
	}
}

func (e *env) mustCreate(t *testing.T, token string) string {
	t.Helper()
	code, body := e.post(t, map[string]any{"command": "CREATE_NEW_GAME", "authToken": token, "lesson": lessonPayload()})
	if code != http.StatusOK || !body.Success {
		t.Fatalf("CREATE_NEW_GAME failed: %d %+v", code, body)
	}
	return body.Data.(map[string]any)["code"].(string)
}

func TestBadRequests(t *testing.T) {
	e := newEnv(t)
	tests := []struct {
		name    string
		payload map[string]any
	}{
		{"no command", map[string]any{"foo": "bar"}},
		{"unknown command", map[string]any{"command": "MAKE_COFFEE"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := e.post(t, tt.payload)
			if code != http.StatusBadRequest || body.Success {
				t.Errorf("got %d %+v, want 400 failure", code, body)
			}
		})
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	e := newEnv(t)
	code, body := e.post(t, map[string]any{"command": "LOGIN", "username": "admin", "password": "wrong"})
	if code != http.StatusUnauthorized || body.Success {
		t.Errorf("LOGIN with bad password: got %d %+v, want 401 failure", code, body)
	}
}

func TestValidateSession(t *testing.T) {
	e := newEnv(t)
	token := e.mustLogin(t)

	_, body := e.post(t, map[string]any{"command": "VALIDATE_SESSION", "authToken": token})
	if valid := body.Data.(map[string]any)["valid"].(bool); !valid {
		t.Error("VALIDATE_SESSION = false for live token")
	}
	_, body = e.post(t, map[string]any{"command": "VALIDATE_SESSION", "authToken": "bogus"})
	if valid := body.Data.(map[string]any)["valid"].(bool); valid {
		t.Error("VALIDATE_SESSION = true for bogus token")
	}
}

func TestSetGetLesson(t *testing.T) {
	e := newEnv(t)
	token := e.mustLogin(t)

	code, body := e.post(t, map[string]any{"command": "GET_LESSON", "authToken": token})
	if code != http.StatusNotFound || body.Success {
		t.Errorf("GET_LESSON before SET: got %d %+v, want 404", code, body)
	}

	code, body = e.post(t, map[string]any{"command": "SET_LESSON", "authToken": token, "lesson": lessonPayload()})
	if code != http.StatusOK || !body.Success {
		t.Fatalf("SET_LESSON failed: %d %+v", code, body)
	}

	code, body = e.post(t, map[string]any{"command": "GET_LESSON", "authToken": token})
	if code != http.StatusOK || !body.Success {
		t.Fatalf("GET_LESSON failed: %d %+v", code, body)
	}
	lesson := body.Data.(map[string]any)["lesson"].(map[string]any)
	if lesson["name"] != "demo" {
		t.Errorf("GET_LESSON name = %v, want demo", lesson["name"])
	}
}

// Full classroom walkthrough over HTTP.
func TestGameFlow(t *testing.T) {
	e := newEnv(t)
	token := e.mustLogin(t)
	sessionCode := e.mustCreate(t, token)

	// A joining student pulls the current state: WAITING, closed.
	_, body := e.post(t, map[string]any{"command": "GET_CURRENT_QUESTION", "code": sessionCode})
	data := body.Data.(map[string]any)
	if data["question"] != "WAITING" || data["isOpen"] != false {
		t.Fatalf("GET_CURRENT_QUESTION = %+v, want WAITING closed", data)
	}

	// First question, open it, collect answers (r1 overwrites A with B).
	if _, body = e.post(t, map[string]any{"command": "CHANGE_QUESTION", "authToken": token, "code": sessionCode, "newQuestionIndex": 0}); !body.Success {
		t.Fatalf("CHANGE_QUESTION failed: %+v", body)
	}
	if _, body = e.post(t, map[string]any{"command": "OPEN_QUESTION", "authToken": token, "code": sessionCode}); !body.Success {
		t.Fatalf("OPEN_QUESTION failed: %+v", body)
	}
	for _, sub := range []struct{ who, answer string }{{"r1", "A"}, {"r2", "B"}, {"r1", "B"}} {
		_, body = e.post(t, map[string]any{
			"command": "STUDENT_ANSWER", "code": sessionCode,
			"respondentId": sub.who, "questionId": "q1", "answer": sub.answer,
		})
		if !body.Success {
			t.Fatalf("STUDENT_ANSWER(%s, %s) failed: %+v", sub.who, sub.answer, body)
		}
	}

	// Wrong-question submission is rejected even while q1 is open.
	httpCode, body := e.post(t, map[string]any{
		"command": "STUDENT_ANSWER", "code": sessionCode,
		"respondentId": "r3", "questionId": "q2", "answer": "X",
	})
	if httpCode != http.StatusConflict || body.Success {
		t.Errorf("stale STUDENT_ANSWER: got %d %+v, want 409", httpCode, body)
	}

	if _, body = e.post(t, map[string]any{"command": "CLOSE_QUESTION", "authToken": token, "code": sessionCode}); !body.Success {
		t.Fatalf("CLOSE_QUESTION failed: %+v", body)
	}

	// Advancing returns the previous question's tally.
	_, body = e.post(t, map[string]any{"command": "CHANGE_QUESTION", "authToken": token, "code": sessionCode, "newQuestionIndex": 1})
	last := body.Data.(map[string]any)["lastPollResult"].(map[string]any)
	if last["A"].(float64) != 0 || last["B"].(float64) != 2 {
		t.Errorf("lastPollResult = %v, want {A:0 B:2}", last)
	}

	// Results include q1's round.
	_, body = e.post(t, map[string]any{"command": "GET_GAME_RESULTS", "authToken": token, "code": sessionCode})
	results := body.Data.(map[string]any)["results"].([]any)
	if len(results) != 2 {
		t.Fatalf("results count = %d, want 2", len(results))
	}
	q1 := results[0].(map[string]any)
	rounds := q1["rounds"].([]any)
	if len(rounds) != 1 || len(rounds[0].([]any)) != 2 {
		t.Errorf("q1 rounds = %v, want one round with two records", rounds)
	}

	// End the game; students can no longer interact with it.
	if _, body = e.post(t, map[string]any{"command": "END_GAME", "authToken": token, "code": sessionCode}); !body.Success {
		t.Fatalf("END_GAME failed: %+v", body)
	}
	httpCode, _ = e.post(t, map[string]any{"command": "GET_CURRENT_QUESTION", "code": sessionCode})
	if httpCode != http.StatusConflict {
		t.Errorf("GET_CURRENT_QUESTION after END_GAME: got %d, want 409", httpCode)
	}
}

// The instructor reviews results after ending the game, so the ended session
// must stay readable until logout or a new game replaces it.
func TestResultsReadableAfterEndGame(t *testing.T) {
	e := newEnv(t)
	token := e.mustLogin(t)
	sessionCode := e.mustCreate(t, token)

	e.post(t, map[string]any{"command": "CHANGE_QUESTION", "authToken": token, "code": sessionCode, "newQuestionIndex": 0})
	e.post(t, map[string]any{"command": "OPEN_QUESTION", "authToken": token, "code": sessionCode})
	e.post(t, map[string]any{
		"command": "STUDENT_ANSWER", "code": sessionCode,
		"respondentId": "r1", "questionId": "q1", "answer": "A",
	})
	if _, body := e.post(t, map[string]any{"command": "END_GAME", "authToken": token, "code": sessionCode}); !body.Success {
		t.Fatalf("END_GAME failed: %+v", body)
	}

	// Results stay reachable for the owner.
	httpCode, body := e.post(t, map[string]any{"command": "GET_GAME_RESULTS", "authToken": token, "code": sessionCode})
	if httpCode != http.StatusOK || !body.Success {
		t.Fatalf("GET_GAME_RESULTS after END_GAME: got %d %+v, want 200", httpCode, body)
	}
	results := body.Data.(map[string]any)["results"].([]any)
	rounds := results[0].(map[string]any)["rounds"].([]any)
	if len(rounds) != 1 || len(rounds[0].([]any)) != 1 {
		t.Errorf("q1 rounds after end = %v, want one round with one record", rounds)
	}

	// Mutations are rejected, and students cannot answer.
	httpCode, _ = e.post(t, map[string]any{"command": "OPEN_QUESTION", "authToken": token, "code": sessionCode})
	if httpCode != http.StatusConflict {
		t.Errorf("OPEN_QUESTION after END_GAME: got %d, want 409", httpCode)
	}
	httpCode, _ = e.post(t, map[string]any{
		"command": "STUDENT_ANSWER", "code": sessionCode,
		"respondentId": "r2", "questionId": "q1", "answer": "B",
	})
	if httpCode != http.StatusConflict {
		t.Errorf("STUDENT_ANSWER after END_GAME: got %d, want 409", httpCode)
	}

	// Logout finally removes the session.
	if _, body := e.post(t, map[string]any{"command": "LOGOUT", "authToken": token}); !body.Success {
		t.Fatalf("LOGOUT failed: %+v", body)
	}
	httpCode, _ = e.post(t, map[string]any{"command": "GET_CURRENT_QUESTION", "code": sessionCode})
	if httpCode != http.StatusNotFound {
		t.Errorf("session survives logout: got %d, want 404", httpCode)
	}
}

func TestOpenBeforeSelectingQuestion(t *testing.T) {
	e := newEnv(t)
	token := e.mustLogin(t)
	sessionCode := e.mustCreate(t, token)

	httpCode, body := e.post(t, map[string]any{"command": "OPEN_QUESTION", "authToken": token, "code": sessionCode})
	if httpCode != http.StatusConflict || body.Success {
		t.Errorf("OPEN_QUESTION while waiting: got %d %+v, want 409", httpCode, body)
	}
}

func TestPrivilegedCommandsRejectForeignToken(t *testing.T) {
	e := newEnv(t)
	token := e.mustLogin(t)
	sessionCode := e.mustCreate(t, token)

	for _, cmd := range []string{"CHANGE_QUESTION", "OPEN_QUESTION", "CLOSE_QUESTION", "END_GAME", "GET_GAME_RESULTS"} {
		httpCode, body := e.post(t, map[string]any{"command": cmd, "authToken": "stolen", "code": sessionCode})
		if httpCode != http.StatusUnauthorized || body.Success {
			t.Errorf("%s with foreign token: got %d %+v, want 401", cmd, httpCode, body)
		}
	}
}

func TestLogoutTearsDownSessions(t *testing.T) {
	e := newEnv(t)
	token := e.mustLogin(t)
	sessionCode := e.mustCreate(t, token)

	if _, body := e.post(t, map[string]any{"command": "LOGOUT", "authToken": token}); !body.Success {
		t.Fatalf("LOGOUT failed: %+v", body)
	}

	httpCode, _ := e.post(t, map[string]any{"command": "GET_CURRENT_QUESTION", "code": sessionCode})
	if httpCode != http.StatusNotFound {
		t.Errorf("session survives logout: got %d, want 404", httpCode)
	}
	_, body := e.post(t, map[string]any{"command": "VALIDATE_SESSION", "authToken": token})
	if body.Data.(map[string]any)["valid"].(bool) {
		t.Error("token still valid after logout")
	}
	httpCode, _ = e.post(t, map[string]any{"command": "GET_LESSON", "authToken": token})
	if httpCode != http.StatusUnauthorized {
		t.Errorf("GET_LESSON after logout: got %d, want 401", httpCode)
	}
}

func TestCreateRejectsInvalidLesson(t *testing.T) {
	e := newEnv(t)
	token := e.mustLogin(t)

	bad := map[string]any{
		"name": "bad",
		"questions": []map[string]any{
			{"id": "q1", "title": "only one option", "options": []string{"A"}, "correctAnswer": "A"},
		},
	}
	httpCode, body := e.post(t, map[string]any{"command": "CREATE_NEW_GAME", "authToken": token, "lesson": bad})
	if httpCode != http.StatusBadRequest || body.Success {
		t.Errorf("CREATE_NEW_GAME with bad lesson: got %d %+v, want 400", httpCode, body)
	}
}

func TestStudentAnswerInvalidOption(t *testing.T) {
	e := newEnv(t)
	token := e.mustLogin(t)
	sessionCode := e.mustCreate(t, token)

	e.post(t, map[string]any{"command": "CHANGE_QUESTION", "authToken": token, "code": sessionCode, "newQuestionIndex": 0})
	e.post(t, map[string]any{"command": "OPEN_QUESTION", "authToken": token, "code": sessionCode})

	httpCode, body := e.post(t, map[string]any{
		"command": "STUDENT_ANSWER", "code": sessionCode,
		"respondentId": "r1", "questionId": "q1", "answer": "C",
	})
	if httpCode != http.StatusBadRequest || body.Success {
		t.Errorf("invalid option: got %d %+v, want 400", httpCode, body)
	}
}
