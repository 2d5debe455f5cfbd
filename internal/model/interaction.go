package model

import "time"

// InteractionType classifies why a message was exchanged between two accounts.
type InteractionType string

const (
	InteractionInitialContact InteractionType = "initial_contact"
	InteractionReply          InteractionType = "reply"
	InteractionForward        InteractionType = "forward"
	InteractionFollowUp       InteractionType = "follow_up"
	InteractionBulkMessage    InteractionType = "bulk_message"
)

// InteractionStatus is the lifecycle state of an interaction. Transitions
// only move forward through the lifecycle; see CanTransition.
type InteractionStatus string

const (
	StatusPending   InteractionStatus = "pending"
	StatusSent      InteractionStatus = "sent"
	StatusDelivered InteractionStatus = "delivered"
	StatusRead      InteractionStatus = "read"
	StatusReplied   InteractionStatus = "replied"
	StatusRescued   InteractionStatus = "rescued"
	StatusFailed    InteractionStatus = "failed"
)

// forwardTransitions enumerates every legal status transition.
// failed is reachable from pending only; rescued from sent or delivered.
var forwardTransitions = map[InteractionStatus][]InteractionStatus{
	StatusPending:   {StatusSent, StatusFailed},
	StatusSent:      {StatusDelivered, StatusRescued},
	StatusDelivered: {StatusRead, StatusRescued},
	StatusRead:      {StatusReplied},
}

// CanTransition reports whether moving from one status to another is a
// legal forward transition.
func CanTransition(from, to InteractionStatus) bool {
	for _, next := range forwardTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Interaction is one scheduled or executed email exchange between a sender
// and a receiver account, tracked through its delivery lifecycle.
type Interaction struct {
	// ID is the unique identifier for this interaction.
	ID string `json:"id" db:"id"`

	// SenderID and ReceiverID reference accounts in the account directory.
	SenderID   string `json:"sender_id" db:"sender_id"`
	ReceiverID string `json:"receiver_id" db:"receiver_id"`

	// Type classifies the exchange (use Interaction* constants).
	Type InteractionType `json:"type" db:"type"`

	// Status is the current lifecycle state.
	Status InteractionStatus `json:"status" db:"status"`

	// Subject and Content are the message as actually sent, after
	// variable interpolation and content variation.
	Subject string `json:"subject" db:"subject"`
	Content string `json:"content" db:"content"`

	// MessageID is the provider message identifier recorded at send time,
	// used to correlate mailbox observations back onto this record.
	MessageID string `json:"message_id" db:"message_id"`

	// ThreadID groups replies and follow-ups with their initial contact.
	ThreadID string `json:"thread_id" db:"thread_id"`

	// FailureReason is set when Status is failed.
	FailureReason string `json:"failure_reason,omitempty" db:"failure_reason"`

	// Per-transition timestamps. A nil pointer means the transition has
	// not happened.
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	SentAt      *time.Time `json:"sent_at,omitempty" db:"sent_at"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty" db:"delivered_at"`
	ReadAt      *time.Time `json:"read_at,omitempty" db:"read_at"`
	RepliedAt   *time.Time `json:"replied_at,omitempty" db:"replied_at"`
	RescuedAt   *time.Time `json:"rescued_at,omitempty" db:"rescued_at"`
	FailedAt    *time.Time `json:"failed_at,omitempty" db:"failed_at"`
}

// Advance moves the interaction to the given status at the given time,
// returning false if the transition is not legal. The matching timestamp
// field is stamped on success.
func (i *Interaction) Advance(to InteractionStatus, at time.Time) bool {
	if !CanTransition(i.Status, to) {
		return false
	}
	i.Status = to
	switch to {
	case StatusSent:
		i.SentAt = &at
	case StatusDelivered:
		i.DeliveredAt = &at
	case StatusRead:
		i.ReadAt = &at
	case StatusReplied:
		i.RepliedAt = &at
	case StatusRescued:
		i.RescuedAt = &at
	case StatusFailed:
		i.FailedAt = &at
	}
	return true
}
