package game

// Push event names delivered to every subscriber of a session code.
const (
	EventChangeQuestion = "CHANGE_QUESTION"
	EventOpenQuestion   = "OPEN_QUESTION"
	EventCloseQuestion  = "CLOSE_QUESTION"
	EventAnswered       = "ANSWERED"
	EventEndGame        = "END_GAME"
)

// Broadcaster fans an event out to all subscribers of a session code.
// Delivery is best-effort and never awaited; the engine publishes only after
// releasing its own locks. The websocket hub is the production implementation.
type Broadcaster interface {
	Publish(code, event string, payload any)
}

// NopBroadcaster discards every event.
type NopBroadcaster struct{}

func (NopBroadcaster) Publish(code, event string, payload any) {}

// AnsweredPayload is the ANSWERED event body sent to instructor views.
type AnsweredPayload struct {
	Respondent string `json:"respondentId"`
	QuestionID string `json:"questionId"`
	Answer     string `json:"answer"`
}
