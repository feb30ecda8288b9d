package game

import "errors"

// Engine errors. The command dispatcher maps these onto HTTP statuses; inside
// the engine they are returned as-is and never panic across the boundary.
var (
	ErrUnauthorized       = errors.New("session code and auth token do not match")
	ErrNoSuchSession      = errors.New("no session with that code exists")
	ErrSessionEnded       = errors.New("session has ended")
	ErrNoQuestionSelected = errors.New("no question selected")
	ErrQuestionIndex      = errors.New("question index out of range")
	ErrQuestionClosed     = errors.New("question is not open for answers")
	ErrWrongQuestion      = errors.New("answer is not for the current question")
	ErrInvalidAnswer      = errors.New("answer is not one of the question's options")
	ErrCodeSpaceExhausted = errors.New("session code space exhausted")
)
