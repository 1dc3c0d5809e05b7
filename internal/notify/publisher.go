// Package notify pushes served-entry events to an AMQP broker so downstream
// consumers (SMS, push, dashboards) can react. Publishing is best-effort:
// callers ignore failures the same way broadcast failures are absorbed.
package notify

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"lineup/internal/models"

	amqp "github.com/rabbitmq/amqp091-go"
)

const servedQueue = "entry.served"

type Publisher struct {
	url string
}

func NewPublisher(url string) *Publisher {
	if url == "" {
		return nil
	}
	return &Publisher{url: url}
}

type servedEvent struct {
	EntryID   string     `json:"entryId"`
	PlaceID   string     `json:"placeId"`
	QueueName string     `json:"queueName"`
	UserName  string     `json:"userName"`
	ServedAt  *time.Time `json:"servedAt"`
	Reason    string     `json:"reason,omitempty"`
}

// EntryServed publishes one persistent message per served entry. Each call
// dials its own connection; serve volume is human-paced, so the simplicity
// wins over a pooled channel.
func (p *Publisher) EntryServed(ctx context.Context, entry models.QueueEntry) error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		log.Printf("amqp: dial failed: %v", err)
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		log.Printf("amqp: channel open failed: %v", err)
		return err
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(servedQueue, true, false, false, false, nil); err != nil {
		log.Printf("amqp: queue declare failed: %v", err)
		return err
	}

	body, err := json.Marshal(servedEvent{
		EntryID:   entry.ID,
		PlaceID:   entry.PlaceID,
		QueueName: entry.QueueName,
		UserName:  entry.UserName,
		ServedAt:  entry.ServedAt,
		Reason:    entry.ServedReason,
	})
	if err != nil {
		return err
	}

	err = ch.PublishWithContext(ctx, "", servedQueue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		log.Printf("amqp: publish failed: %v", err)
	}
	return err
}
