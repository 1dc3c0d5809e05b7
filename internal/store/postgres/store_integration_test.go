package postgres

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"lineup/internal/models"
	"lineup/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

func TestGuardedTransitions(t *testing.T) {
	ctx := context.Background()
	st, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	placeID := uuid.NewString()
	entry := testEntry(placeID, "default", "Alice")
	if err := st.InsertEntry(ctx, entry); err != nil {
		t.Fatalf("insert: %v", err)
	}

	served, err := st.MarkServed(ctx, entry.ID, time.Now().UTC(), "")
	if err != nil {
		t.Fatalf("mark served: %v", err)
	}
	if served.Status != models.StatusServed || served.ServedAt == nil {
		t.Fatalf("served entry = %+v", served)
	}

	if _, err := st.MarkServed(ctx, entry.ID, time.Now().UTC(), ""); !errors.Is(err, store.ErrInvalidState) {
		t.Fatalf("second serve err=%v, want ErrInvalidState", err)
	}
	if _, err := st.MarkCancelled(ctx, entry.ID, time.Now().UTC()); !errors.Is(err, store.ErrInvalidState) {
		t.Fatalf("cancel served err=%v, want ErrInvalidState", err)
	}
	if _, err := st.MarkServed(ctx, uuid.NewString(), time.Now().UTC(), ""); !errors.Is(err, store.ErrEntryNotFound) {
		t.Fatalf("serve unknown err=%v, want ErrEntryNotFound", err)
	}

	acked, err := st.MarkAcknowledged(ctx, entry.ID, time.Now().UTC())
	if err != nil {
		t.Fatalf("acknowledge: %v", err)
	}
	if acked.AcknowledgedAt == nil {
		t.Fatalf("acknowledged entry = %+v", acked)
	}
	if _, err := st.MarkAcknowledged(ctx, entry.ID, time.Now().UTC()); !errors.Is(err, store.ErrInvalidState) {
		t.Fatalf("second acknowledge err=%v, want ErrInvalidState", err)
	}
}

func TestMarkVerifiedReturnsExistingOnRepeat(t *testing.T) {
	ctx := context.Background()
	st, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	entry := testEntry(uuid.NewString(), "default", "Alice")
	if err := st.InsertEntry(ctx, entry); err != nil {
		t.Fatalf("insert: %v", err)
	}

	verified, err := st.MarkVerified(ctx, entry.ID, time.Now().UTC())
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !verified.IsVerified || verified.VerifiedAt == nil {
		t.Fatalf("verified entry = %+v", verified)
	}

	again, err := st.MarkVerified(ctx, entry.ID, time.Now().UTC())
	if !errors.Is(err, store.ErrAlreadyVerified) {
		t.Fatalf("repeat verify err=%v, want ErrAlreadyVerified", err)
	}
	if again.ID != entry.ID || !again.IsVerified {
		t.Fatalf("repeat verify must return the stored entry: %+v", again)
	}
}

func TestListWaitingOrder(t *testing.T) {
	ctx := context.Background()
	st, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	placeID := uuid.NewString()
	base := time.Now().UTC().Truncate(time.Second)
	names := []string{"Alice", "Bob", "Cara"}
	for i, name := range names {
		entry := testEntry(placeID, "default", name)
		entry.JoinedAt = base.Add(time.Duration(i) * time.Minute)
		if err := st.InsertEntry(ctx, entry); err != nil {
			t.Fatalf("insert %s: %v", name, err)
		}
	}

	waiting, err := st.ListWaiting(ctx, placeID, "default")
	if err != nil {
		t.Fatalf("list waiting: %v", err)
	}
	if len(waiting) != 3 {
		t.Fatalf("waiting length=%d, want 3", len(waiting))
	}
	for i, want := range names {
		if waiting[i].UserName != want {
			t.Fatalf("position %d = %q, want %q", i, waiting[i].UserName, want)
		}
	}
}

func TestDuplicateWaitingUserRejectedByIndex(t *testing.T) {
	ctx := context.Background()
	st, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	placeID := uuid.NewString()
	if err := st.InsertEntry(ctx, testEntry(placeID, "default", "Alice")); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := st.InsertEntry(ctx, testEntry(placeID, "default", "Alice")); err == nil {
		t.Fatalf("second waiting entry for the same user must violate the unique index")
	}
}

func TestServeAllWaitingAndDelete(t *testing.T) {
	ctx := context.Background()
	st, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	placeID := uuid.NewString()
	placeholder := testEntry(placeID, "vip", models.SystemUserName)
	placeholder.Status = models.StatusPlaceholder
	placeholder.VerificationCode = models.SystemCode
	if err := st.InsertEntry(ctx, placeholder); err != nil {
		t.Fatalf("insert placeholder: %v", err)
	}
	for _, name := range []string{"Alice", "Bob"} {
		if err := st.InsertEntry(ctx, testEntry(placeID, "vip", name)); err != nil {
			t.Fatalf("insert %s: %v", name, err)
		}
	}

	count, err := st.ServeAllWaiting(ctx, placeID, "vip", time.Now().UTC(), models.ServedReasonQueueDeleted)
	if err != nil {
		t.Fatalf("serve all: %v", err)
	}
	if count != 2 {
		t.Fatalf("served count=%d, want 2", count)
	}

	deleted, err := st.DeleteQueueEntries(ctx, placeID, "vip")
	if err != nil {
		t.Fatalf("delete queue: %v", err)
	}
	if deleted != 3 {
		t.Fatalf("deleted count=%d, want 3", deleted)
	}

	names, err := st.ListQueueNames(ctx, placeID)
	if err != nil {
		t.Fatalf("list names: %v", err)
	}
	if len(names) != 0 {
		t.Fatalf("names=%v, want empty", names)
	}
}

func TestListHistoryFilters(t *testing.T) {
	ctx := context.Background()
	st, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	placeID := uuid.NewString()
	now := time.Now().UTC()

	served := testEntry(placeID, "default", "Alice")
	served.JoinedAt = now.Add(-time.Hour)
	if err := st.InsertEntry(ctx, served); err != nil {
		t.Fatalf("insert served: %v", err)
	}
	if _, err := st.MarkServed(ctx, served.ID, now, ""); err != nil {
		t.Fatalf("mark served: %v", err)
	}

	waiting := testEntry(placeID, "default", "Bob")
	if err := st.InsertEntry(ctx, waiting); err != nil {
		t.Fatalf("insert waiting: %v", err)
	}

	placeholder := testEntry(placeID, "vip", models.SystemUserName)
	placeholder.Status = models.StatusPlaceholder
	if err := st.InsertEntry(ctx, placeholder); err != nil {
		t.Fatalf("insert placeholder: %v", err)
	}

	old := testEntry(placeID, "default", "Cara")
	old.JoinedAt = now.Add(-90 * 24 * time.Hour)
	if err := st.InsertEntry(ctx, old); err != nil {
		t.Fatalf("insert old: %v", err)
	}
	if _, err := st.MarkCancelled(ctx, old.ID, now); err != nil {
		t.Fatalf("cancel old: %v", err)
	}

	history, err := st.ListHistory(ctx, placeID, now.Add(-30*24*time.Hour))
	if err != nil {
		t.Fatalf("list history: %v", err)
	}
	if len(history) != 1 || history[0].ID != served.ID {
		t.Fatalf("history = %+v, want only the recent served entry", history)
	}
}

func testEntry(placeID, queueName, userName string) models.QueueEntry {
	return models.QueueEntry{
		ID:               uuid.NewString(),
		PlaceID:          placeID,
		QueueName:        queueName,
		UserName:         userName,
		Status:           models.StatusWaiting,
		JoinedAt:         time.Now().UTC(),
		VerificationCode: "123456",
	}
}

func setupTestStore(t *testing.T, ctx context.Context) (*Store, func()) {
	t.Helper()
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		dsn = os.Getenv("DB_DSN")
	}
	if dsn == "" {
		t.Skip("TEST_DB_DSN or DB_DSN is required for integration tests")
	}

	schema := "test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if err := createSchema(ctx, dsn, schema); err != nil {
		t.Fatalf("create schema: %v", err)
	}

	pool, err := newPoolWithSchema(ctx, dsn, schema)
	if err != nil {
		t.Fatalf("open pool: %v", err)
	}

	st := NewStore(pool)
	if err := st.EnsureSchema(ctx); err != nil {
		pool.Close()
		t.Fatalf("apply schema: %v", err)
	}

	cleanup := func() {
		pool.Close()
		_ = dropSchema(context.Background(), dsn, schema)
	}
	return st, cleanup
}

func createSchema(ctx context.Context, dsn, schema string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)
	_, err = conn.Exec(ctx, "CREATE SCHEMA "+schema)
	return err
}

func dropSchema(ctx context.Context, dsn, schema string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)
	_, err = conn.Exec(ctx, "DROP SCHEMA "+schema+" CASCADE")
	return err
}

func newPoolWithSchema(ctx context.Context, dsn, schema string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.ConnConfig.RuntimeParams["search_path"] = schema
	return pgxpool.NewWithConfig(ctx, cfg)
}
