package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"lineup/internal/models"
	"lineup/internal/store"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const entryColumns = `entry_id, place_id, queue_name, user_name, status, joined_at,
	verification_code, is_verified, verified_at, served_at, served_reason, cancelled_at, acknowledged_at`

func (s *Store) InsertEntry(ctx context.Context, entry models.QueueEntry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO queue_entries (
			entry_id, place_id, queue_name, user_name, status, joined_at,
			verification_code, is_verified
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.PlaceID, entry.QueueName, entry.UserName, entry.Status, entry.JoinedAt, entry.VerificationCode, entry.IsVerified)
	return err
}

func (s *Store) GetEntry(ctx context.Context, entryID string) (models.QueueEntry, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+entryColumns+`
		FROM queue_entries
		WHERE entry_id = $1
	`, entryID)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.QueueEntry{}, false, nil
		}
		return models.QueueEntry{}, false, err
	}
	return entry, true, nil
}

func (s *Store) ListWaiting(ctx context.Context, placeID, queueName string) ([]models.QueueEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+entryColumns+`
		FROM queue_entries
		WHERE place_id = $1 AND queue_name = $2 AND status = 'waiting'
		ORDER BY joined_at ASC, entry_id ASC
	`, placeID, queueName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEntries(rows)
}

func (s *Store) FindWaitingByUser(ctx context.Context, placeID, queueName, userName string) (models.QueueEntry, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+entryColumns+`
		FROM queue_entries
		WHERE place_id = $1 AND queue_name = $2 AND user_name = $3 AND status = 'waiting'
		ORDER BY joined_at ASC, entry_id ASC
		LIMIT 1
	`, placeID, queueName, userName)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.QueueEntry{}, false, nil
		}
		return models.QueueEntry{}, false, err
	}
	return entry, true, nil
}

func (s *Store) FindWaitingByCode(ctx context.Context, placeID, code string) (models.QueueEntry, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+entryColumns+`
		FROM queue_entries
		WHERE place_id = $1 AND verification_code = $2 AND status = 'waiting'
		ORDER BY joined_at ASC, entry_id ASC
		LIMIT 1
	`, placeID, code)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.QueueEntry{}, false, nil
		}
		return models.QueueEntry{}, false, err
	}
	return entry, true, nil
}

func (s *Store) MarkServed(ctx context.Context, entryID string, at time.Time, reason string) (models.QueueEntry, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE queue_entries
		SET status = 'served', served_at = $2, served_reason = NULLIF($3, '')
		WHERE entry_id = $1 AND status = 'waiting'
		RETURNING `+entryColumns+`
	`, entryID, at, reason)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.QueueEntry{}, s.transitionError(ctx, entryID)
		}
		return models.QueueEntry{}, err
	}
	return entry, nil
}

func (s *Store) MarkCancelled(ctx context.Context, entryID string, at time.Time) (models.QueueEntry, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE queue_entries
		SET status = 'cancelled', cancelled_at = $2
		WHERE entry_id = $1 AND status = 'waiting'
		RETURNING `+entryColumns+`
	`, entryID, at)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.QueueEntry{}, s.transitionError(ctx, entryID)
		}
		return models.QueueEntry{}, err
	}
	return entry, nil
}

func (s *Store) MarkVerified(ctx context.Context, entryID string, at time.Time) (models.QueueEntry, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE queue_entries
		SET is_verified = TRUE, verified_at = $2
		WHERE entry_id = $1 AND status = 'waiting' AND is_verified = FALSE
		RETURNING `+entryColumns+`
	`, entryID, at)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			existing, found, lookupErr := s.GetEntry(ctx, entryID)
			if lookupErr != nil {
				return models.QueueEntry{}, lookupErr
			}
			if !found {
				return models.QueueEntry{}, store.ErrEntryNotFound
			}
			if existing.IsVerified {
				return existing, store.ErrAlreadyVerified
			}
			return models.QueueEntry{}, store.ErrInvalidState
		}
		return models.QueueEntry{}, err
	}
	return entry, nil
}

func (s *Store) MarkAcknowledged(ctx context.Context, entryID string, at time.Time) (models.QueueEntry, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE queue_entries
		SET acknowledged_at = $2
		WHERE entry_id = $1 AND status = 'served' AND acknowledged_at IS NULL
		RETURNING `+entryColumns+`
	`, entryID, at)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.QueueEntry{}, s.transitionError(ctx, entryID)
		}
		return models.QueueEntry{}, err
	}
	return entry, nil
}

// transitionError reports why a guarded update matched no rows: the entry is
// either absent or in a status the transition table does not allow.
func (s *Store) transitionError(ctx context.Context, entryID string) error {
	_, found, err := s.GetEntry(ctx, entryID)
	if err != nil {
		return err
	}
	if !found {
		return store.ErrEntryNotFound
	}
	return store.ErrInvalidState
}

func (s *Store) ListQueueNames(ctx context.Context, placeID string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT queue_name
		FROM queue_entries
		WHERE place_id = $1
		ORDER BY queue_name ASC
	`, placeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return names, nil
}

func (s *Store) QueueNameExists(ctx context.Context, placeID, queueName string) (bool, error) {
	var exists bool
	row := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM queue_entries WHERE place_id = $1 AND queue_name = $2
		)
	`, placeID, queueName)
	if err := row.Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (s *Store) ServeAllWaiting(ctx context.Context, placeID, queueName string, at time.Time, reason string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE queue_entries
		SET status = 'served', served_at = $3, served_reason = NULLIF($4, '')
		WHERE place_id = $1 AND queue_name = $2 AND status = 'waiting'
	`, placeID, queueName, at, reason)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *Store) DeleteQueueEntries(ctx context.Context, placeID, queueName string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM queue_entries
		WHERE place_id = $1 AND queue_name = $2
	`, placeID, queueName)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *Store) DeletePlaceEntries(ctx context.Context, placeID string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM queue_entries
		WHERE place_id = $1
	`, placeID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *Store) ListHistory(ctx context.Context, placeID string, since time.Time) ([]models.QueueEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+entryColumns+`
		FROM queue_entries
		WHERE place_id = $1 AND status IN ('served','cancelled')
			AND joined_at >= $2 AND user_name <> $3
		ORDER BY joined_at DESC, entry_id DESC
	`, placeID, since, models.SystemUserName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEntries(rows)
}

func collectEntries(rows pgx.Rows) ([]models.QueueEntry, error) {
	var entries []models.QueueEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func scanEntry(row pgx.Row) (models.QueueEntry, error) {
	var entry models.QueueEntry
	var verifiedAtNull sql.NullTime
	var servedAtNull sql.NullTime
	var servedReasonNull sql.NullString
	var cancelledAtNull sql.NullTime
	var acknowledgedAtNull sql.NullTime
	if err := row.Scan(
		&entry.ID, &entry.PlaceID, &entry.QueueName, &entry.UserName, &entry.Status, &entry.JoinedAt,
		&entry.VerificationCode, &entry.IsVerified, &verifiedAtNull, &servedAtNull, &servedReasonNull,
		&cancelledAtNull, &acknowledgedAtNull,
	); err != nil {
		return models.QueueEntry{}, err
	}
	entry.VerifiedAt = nullTimePtr(verifiedAtNull)
	entry.ServedAt = nullTimePtr(servedAtNull)
	entry.CancelledAt = nullTimePtr(cancelledAtNull)
	entry.AcknowledgedAt = nullTimePtr(acknowledgedAtNull)
	if servedReasonNull.Valid {
		entry.ServedReason = servedReasonNull.String
	}
	return entry, nil
}

func nullTimePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	t := value.Time
	return &t
}
