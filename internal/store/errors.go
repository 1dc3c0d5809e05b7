package store

import "errors"

var (
	ErrEntryNotFound   = errors.New("entry not found")
	ErrInvalidState    = errors.New("invalid entry state")
	ErrAlreadyVerified = errors.New("entry already verified")
	ErrQueueExists     = errors.New("queue name already exists")
	ErrCodeMismatch    = errors.New("verification code mismatch")
)
