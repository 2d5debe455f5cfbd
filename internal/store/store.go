// Package store persists interaction records and cross-send results.
// Interactions are mutated only through status transitions; results are
// an insert-only log.
package store

import (
	"context"
	"time"

	"github.com/emailmax/warmup/internal/model"
)

// InteractionFilter controls filtering and pagination for interaction
// queries.
type InteractionFilter struct {
	SenderID   *string
	ReceiverID *string
	Statuses   []model.InteractionStatus
	MessageID  *string
	Limit      int
	Offset     int
}

// Store defines the persistence interface the engine delegates to.
type Store interface {
	// CreateInteraction inserts a new interaction record.
	CreateInteraction(ctx context.Context, in model.Interaction) error

	// UpdateInteraction replaces the stored record for in.ID.
	UpdateInteraction(ctx context.Context, in model.Interaction) error

	// GetInteractionByID fetches one interaction, or nil when absent.
	GetInteractionByID(ctx context.Context, id string) (*model.Interaction, error)

	// GetInteractions lists interactions matching the filter, newest
	// first.
	GetInteractions(ctx context.Context, filter InteractionFilter) ([]model.Interaction, error)

	// CountByStatus returns the interaction count per lifecycle status.
	CountByStatus(ctx context.Context) (map[model.InteractionStatus]int, error)

	// DeleteInteractionsBefore removes interactions created before the
	// cutoff, independent of status, returning how many were removed.
	DeleteInteractionsBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// SaveResult appends a completed cross-send result to the log.
	SaveResult(ctx context.Context, res model.CrossSendResult) error

	// TopSenders and TopReceivers rank accounts by interaction volume.
	TopSenders(ctx context.Context, limit int) ([]model.AccountVolume, error)
	TopReceivers(ctx context.Context, limit int) ([]model.AccountVolume, error)

	// AverageDeliveryTime is the mean sent-to-delivered latency across
	// interactions that reached delivered; zero when none have.
	AverageDeliveryTime(ctx context.Context) (time.Duration, error)

	Close() error
}
