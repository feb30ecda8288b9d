// Package report renders a session's collected answers as CSV for download
// by the owning instructor.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/classpulse/backend/internal/auth"
	"github.com/classpulse/backend/internal/game"
	"github.com/classpulse/backend/internal/models"
	"github.com/classpulse/backend/pkg/response"
)

var header = []string{"question_id", "question", "round", "respondent", "answer", "correct"}

// WriteCSV writes one row per recorded answer: question, round number
// (1-based), respondent, answer, and whether the answer was correct.
func WriteCSV(w io.Writer, lesson models.Lesson, results []game.QuestionResults) error {
	correctByID := make(map[string]string, len(lesson.Questions))
	titleByID := make(map[string]string, len(lesson.Questions))
	for _, q := range lesson.Questions {
		correctByID[q.ID] = q.CorrectAnswer
		titleByID[q.ID] = q.Title
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, qr := range results {
		for roundIdx, round := range qr.Rounds {
			for _, rec := range round {
				row := []string{
					qr.QuestionID,
					titleByID[qr.QuestionID],
					strconv.Itoa(roundIdx + 1),
					rec.Respondent,
					rec.Answer,
					strconv.FormatBool(rec.Answer == correctByID[qr.QuestionID]),
				}
				if err := cw.Write(row); err != nil {
					return err
				}
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// Handler serves GET /api/sessions/:code/report.csv?authToken=... for the
// session owner.
func Handler(authReg *auth.Registry, sessions *game.Registry, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		code := c.Param("code")
		token := c.Query("authToken")
		if !authReg.IsValid(token) {
			response.Unauthorized(c, "invalid or missing auth token")
			return
		}
		s, err := sessions.Get(code)
		if err != nil {
			response.NotFound(c, err.Error())
			return
		}
		if s.Owner() != token {
			response.Unauthorized(c, game.ErrUnauthorized.Error())
			return
		}

		c.Header("Content-Type", "text/csv; charset=utf-8")
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s-report.csv", code))
		if err := WriteCSV(c.Writer, s.Lesson(), s.Results()); err != nil {
			logger.Error("write report", zap.String("code", code), zap.Error(err))
		}
	}
}
