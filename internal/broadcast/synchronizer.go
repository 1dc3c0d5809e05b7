package broadcast

import (
	"context"
	"encoding/json"
	"log"

	"lineup/internal/models"
)

// WaitingLister is the read-only slice of the entry store the synchronizer
// needs: the current waiting list, ordered by joinedAt then id.
type WaitingLister interface {
	ListWaiting(ctx context.Context, placeID, queueName string) ([]models.QueueEntry, error)
}

// QueueState is the broadcast payload. It is always the full current waiting
// list for one (place, queueName) pair, never a delta; recipients replace
// their local view wholesale, which makes late or re-ordered deliveries safe.
type QueueState struct {
	QueueName string              `json:"queueName"`
	Entries   []models.QueueEntry `json:"entries"`
}

// Synchronizer re-derives queue state from the store on every mutation and
// publishes it to the place topic. Failures are logged and swallowed: the
// mutation that triggered the publish has already committed.
type Synchronizer struct {
	store     WaitingLister
	publisher Publisher
}

func NewSynchronizer(store WaitingLister, publisher Publisher) *Synchronizer {
	return &Synchronizer{store: store, publisher: publisher}
}

func (s *Synchronizer) PublishQueueState(ctx context.Context, placeID, queueName string) {
	entries, err := s.store.ListWaiting(ctx, placeID, queueName)
	if err != nil {
		log.Printf("broadcast: list waiting place=%s queue=%s: %v", placeID, queueName, err)
		return
	}
	if entries == nil {
		entries = []models.QueueEntry{}
	}
	payload, err := json.Marshal(QueueState{QueueName: queueName, Entries: entries})
	if err != nil {
		log.Printf("broadcast: marshal place=%s queue=%s: %v", placeID, queueName, err)
		return
	}
	s.publisher.Publish(placeID, payload)
}
