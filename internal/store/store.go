package store

import (
	"context"
	"time"

	"lineup/internal/models"
)

// EntryStore is the persistence boundary for queue entries. Implementations
// must make each mutating call a single atomic operation; the guarded Mark*
// updates return ErrEntryNotFound when the id is absent and ErrInvalidState
// when the entry exists but its status does not allow the transition.
type EntryStore interface {
	InsertEntry(ctx context.Context, entry models.QueueEntry) error
	GetEntry(ctx context.Context, entryID string) (models.QueueEntry, bool, error)

	// ListWaiting returns waiting entries for the pair ordered by joinedAt
	// ascending, ties broken by id ascending.
	ListWaiting(ctx context.Context, placeID, queueName string) ([]models.QueueEntry, error)
	FindWaitingByUser(ctx context.Context, placeID, queueName, userName string) (models.QueueEntry, bool, error)
	FindWaitingByCode(ctx context.Context, placeID, code string) (models.QueueEntry, bool, error)

	MarkServed(ctx context.Context, entryID string, at time.Time, reason string) (models.QueueEntry, error)
	MarkCancelled(ctx context.Context, entryID string, at time.Time) (models.QueueEntry, error)
	MarkVerified(ctx context.Context, entryID string, at time.Time) (models.QueueEntry, error)
	MarkAcknowledged(ctx context.Context, entryID string, at time.Time) (models.QueueEntry, error)

	// ListQueueNames returns distinct queueName values across all entries of
	// the place, placeholder rows included so empty queues stay visible.
	ListQueueNames(ctx context.Context, placeID string) ([]string, error)
	QueueNameExists(ctx context.Context, placeID, queueName string) (bool, error)
	ServeAllWaiting(ctx context.Context, placeID, queueName string, at time.Time, reason string) (int64, error)
	DeleteQueueEntries(ctx context.Context, placeID, queueName string) (int64, error)
	DeletePlaceEntries(ctx context.Context, placeID string) (int64, error)

	// ListHistory returns served and cancelled entries joined at or after
	// since, placeholder sentinel user excluded, newest first.
	ListHistory(ctx context.Context, placeID string, since time.Time) ([]models.QueueEntry, error)
}
