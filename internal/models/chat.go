package models

import (
	"time"
)

type ChangeKind string

const (
	ChangeAdded    ChangeKind = "added"
	ChangeModified ChangeKind = "modified"
)

// Role selects which side of a conversation record a subscription filters on.
type Role string

const (
	RoleSender   Role = "sender"
	RoleReceiver Role = "receiver"
)

// ConversationRecord mirrors one row of the conversations collection.
type ConversationRecord struct {
	ID            string     `json:"id"`
	SenderID      string     `json:"sender_id"`
	SenderName    string     `json:"sender_name"`
	SenderImage   string     `json:"sender_image"`
	ReceiverID    string     `json:"receiver_id"`
	ReceiverName  string     `json:"receiver_name"`
	ReceiverImage string     `json:"receiver_image"`
	LastMessage   *string    `json:"last_message"`
	Timestamp     *time.Time `json:"timestamp"`
}

type ChangeEvent struct {
	Kind   ChangeKind         `json:"kind"`
	Record ConversationRecord `json:"record"`
}

// ChangeBatch is one delivery of a subscription. A non-nil Err ends the
// subscription that produced it.
type ChangeBatch struct {
	Role   Role
	Events []ChangeEvent
	Err    error
}

// PairKey identifies a conversation regardless of which participant sent
// the last message.
type PairKey struct {
	Low  string
	High string
}

func NewPairKey(a, b string) PairKey {
	if b < a {
		a, b = b, a
	}
	return PairKey{Low: a, High: b}
}

type ConversationSummary struct {
	CounterpartID    string     `json:"counterpart_id"`
	CounterpartName  string     `json:"counterpart_name"`
	CounterpartImage string     `json:"counterpart_image"`
	LastMessage      string     `json:"last_message"`
	LastMessageAt    *time.Time `json:"last_message_at"`
	SenderID         string     `json:"sender_id"`
	ReceiverID       string     `json:"receiver_id"`
}

func (s ConversationSummary) Pair() PairKey {
	return NewPairKey(s.SenderID, s.ReceiverID)
}
