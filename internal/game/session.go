package game

import (
	"sort"
	"sync"

	"github.com/classpulse/backend/internal/models"
)

// Waiting is reported as the current question before the instructor selects
// the first one.
const Waiting = "WAITING"

// Session is one live run of a lesson. All mutations on a session are
// serialized by its mutex; the mutex is never held across a broadcast.
// Sessions for different codes share nothing and never block each other.
type Session struct {
	code      string
	owner     string
	lesson    models.Lesson
	broadcast Broadcaster

	mu      sync.Mutex
	current int // index into lesson.Questions, -1 while waiting
	open    bool
	ended   bool
	rounds  map[string][]*Round // question id -> rounds, oldest first
}

// NewSession creates a session in the waiting state. The lesson is
// snapshotted, so the caller may keep mutating its own copy.
func NewSession(code, owner string, lesson models.Lesson, b Broadcaster) *Session {
	if b == nil {
		b = NopBroadcaster{}
	}
	return &Session{
		code:      code,
		owner:     owner,
		lesson:    lesson.Clone(),
		broadcast: b,
		current:   -1,
		rounds:    make(map[string][]*Round),
	}
}

// Code returns the join code students use.
func (s *Session) Code() string { return s.code }

// Owner returns the instructor token that created the session.
func (s *Session) Owner() string { return s.owner }

// Lesson returns a copy of the session's lesson snapshot.
func (s *Session) Lesson() models.Lesson {
	return s.lesson.Clone()
}

// CurrentQuestion returns the current question and open flag. waiting is
// true before the first ChangeQuestion; the zero Question is returned then.
// This is the pull path a (re)connecting client uses to catch up on any
// push it missed.
func (s *Session) CurrentQuestion() (q models.Question, waiting, open bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return models.Question{}, false, false, ErrSessionEnded
	}
	if s.current < 0 {
		return models.Question{}, true, false, nil
	}
	return s.lesson.Questions[s.current], false, s.open, nil
}

// ChangeQuestion moves the session to the question at index and closes it
// for answers. It returns the tally of the most recent round of the question
// that was current before the move (empty when there was no question or no
// round), so the instructor view can show the last result while leaving it.
func (s *Session) ChangeQuestion(index int) (Tally, error) {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return nil, ErrSessionEnded
	}
	if index < 0 || index >= len(s.lesson.Questions) {
		s.mu.Unlock()
		return nil, ErrQuestionIndex
	}

	prev := Tally{}
	if s.current >= 0 {
		prevQ := s.lesson.Questions[s.current]
		if rs := s.rounds[prevQ.ID]; len(rs) > 0 {
			prev = rs[len(rs)-1].tally(prevQ)
		}
	}

	s.current = index
	s.open = false
	q := s.lesson.Questions[index]
	s.mu.Unlock()

	s.broadcast.Publish(s.code, EventChangeQuestion, q)
	return prev, nil
}

// Open starts a new answer round for the current question. Reopening an
// already-open question starts another round.
func (s *Session) Open() error {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return ErrSessionEnded
	}
	if s.current < 0 {
		s.mu.Unlock()
		return ErrNoQuestionSelected
	}
	q := s.lesson.Questions[s.current]
	s.rounds[q.ID] = append(s.rounds[q.ID], newRound())
	s.open = true
	s.mu.Unlock()

	s.broadcast.Publish(s.code, EventOpenQuestion, q)
	return nil
}

// Close stops accepting answers for the current question. Closing an
// already-closed question is a no-op and does not re-notify clients.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return ErrSessionEnded
	}
	if !s.open || s.current < 0 {
		s.mu.Unlock()
		return nil
	}
	s.open = false
	q := s.lesson.Questions[s.current]
	s.mu.Unlock()

	s.broadcast.Publish(s.code, EventCloseQuestion, q)
	return nil
}

// End terminates the session. Every later mutation or student read fails with
// ErrSessionEnded (in-flight calls that lost the race fail the same way);
// Results and Tally keep working so the instructor can export after ending.
func (s *Session) End() error {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return ErrSessionEnded
	}
	s.ended = true
	s.open = false
	s.mu.Unlock()

	s.broadcast.Publish(s.code, EventEndGame, nil)
	return nil
}

// SubmitAnswer records a respondent's answer in the active round of the
// current question, overwriting any earlier answer from the same respondent
// in that round. A submission for a question that is no longer current fails
// with ErrWrongQuestion regardless of the open flag, which catches stale
// client views after an advance.
func (s *Session) SubmitAnswer(questionID, respondent, answer string) error {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return ErrSessionEnded
	}
	if s.current < 0 || s.lesson.Questions[s.current].ID != questionID {
		s.mu.Unlock()
		return ErrWrongQuestion
	}
	if !s.open {
		s.mu.Unlock()
		return ErrQuestionClosed
	}
	q := s.lesson.Questions[s.current]
	if !q.HasOption(answer) {
		s.mu.Unlock()
		return ErrInvalidAnswer
	}
	rs := s.rounds[q.ID]
	rs[len(rs)-1].record(respondent, answer)
	s.mu.Unlock()

	s.broadcast.Publish(s.code, EventAnswered, AnsweredPayload{
		Respondent: respondent,
		QuestionID: questionID,
		Answer:     answer,
	})
	return nil
}

// Tally returns the answer counts and total for one round of a question.
// Rounds are numbered from zero in the order they were opened.
func (s *Session) Tally(questionID string, round int) (Tally, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var q models.Question
	found := false
	for _, cand := range s.lesson.Questions {
		if cand.ID == questionID {
			q, found = cand, true
			break
		}
	}
	if !found {
		return nil, 0, ErrWrongQuestion
	}
	rs := s.rounds[questionID]
	if round < 0 || round >= len(rs) {
		return nil, 0, ErrQuestionClosed
	}
	return rs[round].tally(q), rs[round].Total(), nil
}

// AnswerRecord is one respondent's answer within a round.
type AnswerRecord struct {
	Respondent string `json:"respondentId"`
	Answer     string `json:"answer"`
}

// QuestionResults holds every round of one question, in lesson order.
type QuestionResults struct {
	QuestionID string           `json:"questionId"`
	Title      string           `json:"title"`
	Rounds     [][]AnswerRecord `json:"rounds"`
}

// Results returns all collected answers, questions in lesson order, rounds in
// the order they were opened, records sorted by respondent id. Reading
// results on an ended session handle is allowed so the instructor can export
// them right after END_GAME.
func (s *Session) Results() []QuestionResults {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]QuestionResults, 0, len(s.lesson.Questions))
	for _, q := range s.lesson.Questions {
		qr := QuestionResults{QuestionID: q.ID, Title: q.Title, Rounds: [][]AnswerRecord{}}
		for _, r := range s.rounds[q.ID] {
			records := make([]AnswerRecord, 0, len(r.answers))
			for respondent, answer := range r.answers {
				records = append(records, AnswerRecord{Respondent: respondent, Answer: answer})
			}
			sort.Slice(records, func(i, j int) bool { return records[i].Respondent < records[j].Respondent })
			qr.Rounds = append(qr.Rounds, records)
		}
		out = append(out, qr)
	}
	return out
}
