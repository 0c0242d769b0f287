package session

import "time"

// Sender identifies who authored a message.
type Sender string

const (
	SenderPersonA  Sender = "person_a"
	SenderPersonB  Sender = "person_b"
	SenderMediator Sender = "mediator"
)

// ValidSender reports whether s is part of the sender vocabulary.
func ValidSender(s Sender) bool {
	switch s {
	case SenderPersonA, SenderPersonB, SenderMediator:
		return true
	}
	return false
}

// Message is one turn of the conversation. The record is immutable once
// created; Analysis is attached asynchronously after the fact.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	Sender    Sender    `json:"sender"`
	Content   string    `json:"content"`
	Analysis  *Analysis `json:"analysis,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
