package queue

import (
	"context"
	"errors"
	"log"
	"math/rand/v2"
	"strconv"
	"time"

	"lineup/internal/models"
	"lineup/internal/store"

	"github.com/google/uuid"
)

// ErrReservedUserName rejects joins under the placeholder sentinel name.
var ErrReservedUserName = errors.New("user name is reserved")

// StateBroadcaster re-derives and publishes the waiting list for one
// (place, queueName) pair. Implementations must never fail the caller; the
// engine treats every publish as fire-and-forget.
type StateBroadcaster interface {
	PublishQueueState(ctx context.Context, placeID, queueName string)
}

// ServedNotifier receives entries that just transitioned to served.
type ServedNotifier interface {
	EntryServed(ctx context.Context, entry models.QueueEntry) error
}

// EntryStatus is the read-only projection customers poll when their entry
// has disappeared from the waiting list.
type EntryStatus struct {
	Status    string `json:"status"`
	UserName  string `json:"userName"`
	PlaceID   string `json:"placeId"`
	QueueName string `json:"queueName"`
}

// Engine owns the queue-entry state machine and the named-queue registry.
// It is the only writer of the entry store; every mutation triggers a
// broadcast for the affected pair after the store operation commits.
type Engine struct {
	store       store.EntryStore
	broadcaster StateBroadcaster
	notifier    ServedNotifier

	now  func() time.Time
	code func() string
}

func NewEngine(entries store.EntryStore, broadcaster StateBroadcaster, notifier ServedNotifier) *Engine {
	return &Engine{
		store:       entries,
		broadcaster: broadcaster,
		notifier:    notifier,
		now:         func() time.Time { return time.Now().UTC() },
		code:        newVerificationCode,
	}
}

// newVerificationCode draws six ASCII digits uniformly from 100000-999999.
func newVerificationCode() string {
	return strconv.Itoa(100000 + rand.IntN(900000))
}

// Join creates a waiting entry. When a waiting entry already exists for the
// same (place, queue, user) tuple the existing entry is returned with
// created=false so the caller can resume its session idempotently.
//
// The duplicate check is find-then-insert and therefore best-effort under
// concurrency; the partial unique index in the schema closes the race.
func (e *Engine) Join(ctx context.Context, placeID, queueName, userName string) (models.QueueEntry, bool, error) {
	if userName == models.SystemUserName {
		return models.QueueEntry{}, false, ErrReservedUserName
	}
	if queueName == "" {
		queueName = models.DefaultQueueName
	}

	existing, found, err := e.store.FindWaitingByUser(ctx, placeID, queueName, userName)
	if err != nil {
		return models.QueueEntry{}, false, err
	}
	if found {
		return existing, false, nil
	}

	entry := models.QueueEntry{
		ID:               uuid.NewString(),
		PlaceID:          placeID,
		QueueName:        queueName,
		UserName:         userName,
		Status:           models.StatusWaiting,
		JoinedAt:         e.now(),
		VerificationCode: e.code(),
	}
	if err := e.store.InsertEntry(ctx, entry); err != nil {
		return models.QueueEntry{}, false, err
	}

	e.broadcaster.PublishQueueState(ctx, placeID, queueName)
	return entry, true, nil
}

// Serve transitions waiting -> served.
func (e *Engine) Serve(ctx context.Context, entryID string) (models.QueueEntry, error) {
	entry, err := e.store.MarkServed(ctx, entryID, e.now(), "")
	if err != nil {
		return models.QueueEntry{}, err
	}

	e.broadcaster.PublishQueueState(ctx, entry.PlaceID, entry.QueueName)
	if e.notifier != nil {
		go func(served models.QueueEntry) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := e.notifier.EntryServed(ctx, served); err != nil {
				log.Printf("notify served entry %s: %v", served.ID, err)
			}
		}(entry)
	}
	return entry, nil
}

// AdminRemove transitions a non-terminal entry to cancelled.
func (e *Engine) AdminRemove(ctx context.Context, entryID string) (models.QueueEntry, error) {
	entry, err := e.store.MarkCancelled(ctx, entryID, e.now())
	if err != nil {
		return models.QueueEntry{}, err
	}
	e.broadcaster.PublishQueueState(ctx, entry.PlaceID, entry.QueueName)
	return entry, nil
}

// SelfLeave is AdminRemove gated on proof of ticket ownership.
func (e *Engine) SelfLeave(ctx context.Context, entryID, verificationCode string) (models.QueueEntry, error) {
	entry, found, err := e.store.GetEntry(ctx, entryID)
	if err != nil {
		return models.QueueEntry{}, err
	}
	if !found {
		return models.QueueEntry{}, store.ErrEntryNotFound
	}
	if entry.VerificationCode != verificationCode {
		return models.QueueEntry{}, store.ErrCodeMismatch
	}
	if !store.ValidTransition("cancel", entry.Status) {
		return models.QueueEntry{}, store.ErrInvalidState
	}

	cancelled, err := e.store.MarkCancelled(ctx, entryID, e.now())
	if err != nil {
		return models.QueueEntry{}, err
	}
	e.broadcaster.PublishQueueState(ctx, cancelled.PlaceID, cancelled.QueueName)
	return cancelled, nil
}

// VerifyPresence locates the waiting entry holding the code and flags it as
// physically present. An already-verified entry is returned alongside
// ErrAlreadyVerified rather than swallowed.
func (e *Engine) VerifyPresence(ctx context.Context, placeID, verificationCode string) (models.QueueEntry, error) {
	entry, found, err := e.store.FindWaitingByCode(ctx, placeID, verificationCode)
	if err != nil {
		return models.QueueEntry{}, err
	}
	if !found {
		return models.QueueEntry{}, store.ErrEntryNotFound
	}
	if entry.IsVerified {
		return entry, store.ErrAlreadyVerified
	}

	verified, err := e.store.MarkVerified(ctx, entry.ID, e.now())
	if err != nil {
		return verified, err
	}
	e.broadcaster.PublishQueueState(ctx, verified.PlaceID, verified.QueueName)
	return verified, nil
}

// Acknowledge stamps acknowledgedAt on a served entry. The status does not
// change, but staff views still need the closure, so it broadcasts too.
func (e *Engine) Acknowledge(ctx context.Context, entryID string) (models.QueueEntry, error) {
	entry, err := e.store.MarkAcknowledged(ctx, entryID, e.now())
	if err != nil {
		return models.QueueEntry{}, err
	}
	e.broadcaster.PublishQueueState(ctx, entry.PlaceID, entry.QueueName)
	return entry, nil
}

// CreateNamedQueue registers a queue name by inserting one placeholder
// entry. The name list is derived from entries, so an empty queue needs the
// placeholder to stay visible.
func (e *Engine) CreateNamedQueue(ctx context.Context, placeID, queueName string) error {
	exists, err := e.store.QueueNameExists(ctx, placeID, queueName)
	if err != nil {
		return err
	}
	if exists {
		return store.ErrQueueExists
	}

	placeholder := models.QueueEntry{
		ID:               uuid.NewString(),
		PlaceID:          placeID,
		QueueName:        queueName,
		UserName:         models.SystemUserName,
		Status:           models.StatusPlaceholder,
		JoinedAt:         e.now(),
		VerificationCode: models.SystemCode,
	}
	if err := e.store.InsertEntry(ctx, placeholder); err != nil {
		return err
	}

	e.broadcaster.PublishQueueState(ctx, placeID, queueName)
	return nil
}

// DeleteNamedQueue closes out the queue: every remaining waiting entry is
// served with reason "queue_deleted" so mid-wait customers stay in history,
// then all entries for the pair (placeholder included) are removed. Returns
// the remaining name list and the number of deleted rows.
func (e *Engine) DeleteNamedQueue(ctx context.Context, placeID, queueName string) ([]string, int64, error) {
	exists, err := e.store.QueueNameExists(ctx, placeID, queueName)
	if err != nil {
		return nil, 0, err
	}
	if !exists {
		return nil, 0, store.ErrEntryNotFound
	}

	if _, err := e.store.ServeAllWaiting(ctx, placeID, queueName, e.now(), models.ServedReasonQueueDeleted); err != nil {
		return nil, 0, err
	}
	deleted, err := e.store.DeleteQueueEntries(ctx, placeID, queueName)
	if err != nil {
		return nil, 0, err
	}
	names, err := e.ListQueueNames(ctx, placeID)
	if err != nil {
		return nil, 0, err
	}

	// Still-open client views must clear immediately.
	e.broadcaster.PublishQueueState(ctx, placeID, queueName)
	return names, deleted, nil
}

// ListQueueNames returns the derived name list for a place. Reserved sentinel
// values never appear in the result.
func (e *Engine) ListQueueNames(ctx context.Context, placeID string) ([]string, error) {
	names, err := e.store.ListQueueNames(ctx, placeID)
	if err != nil {
		return nil, err
	}
	filtered := make([]string, 0, len(names))
	for _, name := range names {
		if name == models.SystemUserName || name == models.SystemCode {
			continue
		}
		filtered = append(filtered, name)
	}
	return filtered, nil
}

// ListWaiting returns the full current waiting list for the pair, ordered by
// joinedAt then id. A client's position is its zero-based index in this
// slice; it is recomputed on every read and never persisted.
func (e *Engine) ListWaiting(ctx context.Context, placeID, queueName string) ([]models.QueueEntry, error) {
	if queueName == "" {
		queueName = models.DefaultQueueName
	}
	entries, err := e.store.ListWaiting(ctx, placeID, queueName)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []models.QueueEntry{}
	}
	return entries, nil
}

// StatusOf lets a customer distinguish served from cancelled once their
// entry has left the waiting list.
func (e *Engine) StatusOf(ctx context.Context, entryID string) (EntryStatus, error) {
	entry, found, err := e.store.GetEntry(ctx, entryID)
	if err != nil {
		return EntryStatus{}, err
	}
	if !found {
		return EntryStatus{}, store.ErrEntryNotFound
	}
	return EntryStatus{
		Status:    entry.Status,
		UserName:  entry.UserName,
		PlaceID:   entry.PlaceID,
		QueueName: entry.QueueName,
	}, nil
}

// DeletePlace cascades a place deletion to all of its entries and clears
// every queue view for the place.
func (e *Engine) DeletePlace(ctx context.Context, placeID string) (int64, error) {
	names, err := e.ListQueueNames(ctx, placeID)
	if err != nil {
		return 0, err
	}
	deleted, err := e.store.DeletePlaceEntries(ctx, placeID)
	if err != nil {
		return 0, err
	}
	for _, name := range names {
		e.broadcaster.PublishQueueState(ctx, placeID, name)
	}
	return deleted, nil
}
