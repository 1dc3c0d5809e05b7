package postgres

import "context"

// Schema is the DDL for the entry store. The partial unique index backs the
// duplicate-join check: the engine's find-then-insert is best-effort under
// concurrency, the index makes the invariant hold at the store level.
const Schema = `
CREATE TABLE IF NOT EXISTS queue_entries (
	entry_id          UUID PRIMARY KEY,
	place_id          TEXT NOT NULL,
	queue_name        TEXT NOT NULL DEFAULT 'default',
	user_name         TEXT NOT NULL,
	status            TEXT NOT NULL DEFAULT 'waiting',
	joined_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	verification_code TEXT NOT NULL,
	is_verified       BOOLEAN NOT NULL DEFAULT FALSE,
	verified_at       TIMESTAMPTZ,
	served_at         TIMESTAMPTZ,
	served_reason     TEXT,
	cancelled_at      TIMESTAMPTZ,
	acknowledged_at   TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_queue_entries_waiting
	ON queue_entries (place_id, queue_name, joined_at, entry_id)
	WHERE status = 'waiting';

CREATE INDEX IF NOT EXISTS idx_queue_entries_history
	ON queue_entries (place_id, joined_at)
	WHERE status IN ('served','cancelled');

CREATE UNIQUE INDEX IF NOT EXISTS uq_queue_entries_waiting_user
	ON queue_entries (place_id, queue_name, user_name)
	WHERE status = 'waiting';
`

func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, Schema)
	return err
}
