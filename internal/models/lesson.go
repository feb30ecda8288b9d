package models

import (
	"errors"
	"fmt"
)

// ErrInvalidLesson is wrapped by all lesson/question validation failures.
var ErrInvalidLesson = errors.New("invalid lesson")

// Question is a single multiple-choice question within a lesson.
type Question struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	Image         string   `json:"image,omitempty"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correctAnswer"`
}

// HasOption reports whether answer is one of the question's options.
func (q Question) HasOption(answer string) bool {
	for _, o := range q.Options {
		if o == answer {
			return true
		}
	}
	return false
}

// Lesson is an ordered set of questions authored by an instructor.
// A running session holds its own snapshot, so later edits never leak in.
type Lesson struct {
	Name      string     `json:"name"`
	Questions []Question `json:"questions"`
}

// Validate checks the lesson invariants: at least one question, unique
// question IDs, two or more options each, and correctAnswer among the options.
func (l Lesson) Validate() error {
	if len(l.Questions) == 0 {
		return fmt.Errorf("%w: lesson has no questions", ErrInvalidLesson)
	}
	seen := make(map[string]struct{}, len(l.Questions))
	for i, q := range l.Questions {
		if q.ID == "" {
			return fmt.Errorf("%w: question %d has no id", ErrInvalidLesson, i)
		}
		if _, dup := seen[q.ID]; dup {
			return fmt.Errorf("%w: duplicate question id %q", ErrInvalidLesson, q.ID)
		}
		seen[q.ID] = struct{}{}
		if len(q.Options) < 2 {
			return fmt.Errorf("%w: question %q needs at least 2 options", ErrInvalidLesson, q.ID)
		}
		if !q.HasOption(q.CorrectAnswer) {
			return fmt.Errorf("%w: question %q correct answer is not an option", ErrInvalidLesson, q.ID)
		}
	}
	return nil
}

// Clone returns a deep copy of the lesson. Sessions snapshot lessons on
// creation so a shared reference can never be mutated under a running game.
func (l Lesson) Clone() Lesson {
	out := Lesson{Name: l.Name, Questions: make([]Question, len(l.Questions))}
	for i, q := range l.Questions {
		cq := q
		cq.Options = append([]string(nil), q.Options...)
		out.Questions[i] = cq
	}
	return out
}
