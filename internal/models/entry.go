package models

import "time"

// QueueEntry is one ticket in a named queue of a place. Identity fields are
// immutable after creation; the transition timestamps are each set at most once.
type QueueEntry struct {
	ID               string     `json:"_id"`
	PlaceID          string     `json:"placeId"`
	QueueName        string     `json:"queueName"`
	UserName         string     `json:"userName"`
	Status           string     `json:"status"`
	JoinedAt         time.Time  `json:"joinedAt"`
	VerificationCode string     `json:"verificationCode,omitempty"`
	IsVerified       bool       `json:"isVerified"`
	VerifiedAt       *time.Time `json:"verifiedAt,omitempty"`
	ServedAt         *time.Time `json:"servedAt,omitempty"`
	ServedReason     string     `json:"servedReason,omitempty"`
	CancelledAt      *time.Time `json:"cancelledAt,omitempty"`
	AcknowledgedAt   *time.Time `json:"acknowledgedAt,omitempty"`
}

type Place struct {
	ID          string `json:"_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Location    string `json:"location,omitempty"`
	Category    string `json:"category,omitempty"`
	BusinessID  string `json:"businessId,omitempty"`
}

const (
	StatusWaiting     = "waiting"
	StatusServed      = "served"
	StatusCancelled   = "cancelled"
	StatusPlaceholder = "placeholder"
)

// DefaultQueueName is used when a join request omits queueName.
const DefaultQueueName = "default"

// SystemUserName marks a placeholder entry that only registers a queue name.
// SystemCode is the placeholder's verification code; it never matches a lookup.
const (
	SystemUserName = "__system__"
	SystemCode     = "__none__"
)

// ServedReasonQueueDeleted is stamped on waiting entries that were closed out
// because their queue was deleted, so they still count as served in history.
const ServedReasonQueueDeleted = "queue_deleted"
