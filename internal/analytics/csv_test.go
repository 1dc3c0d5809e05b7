package analytics

import (
	"strings"
	"testing"
	"time"

	"lineup/internal/models"
)

func TestExportCSVHeaderOnly(t *testing.T) {
	got := ExportCSV(nil)
	if got != CSVHeader {
		t.Fatalf("empty export = %q, want header only", got)
	}
	if strings.Contains(got, "\r") {
		t.Fatalf("export must not contain carriage returns")
	}
}

func TestExportCSVRows(t *testing.T) {
	joined := time.Date(2026, 1, 12, 9, 0, 0, 0, time.UTC)
	servedAt := joined.Add(12 * time.Minute)
	entries := []models.QueueEntry{
		{
			UserName:   "Alice",
			QueueName:  "vip",
			Status:     models.StatusServed,
			JoinedAt:   joined,
			IsVerified: true,
			ServedAt:   &servedAt,
		},
		{
			UserName: "Bob",
			Status:   models.StatusCancelled,
			JoinedAt: joined.Add(time.Minute),
		},
	}

	got := ExportCSV(entries)
	lines := strings.Split(got, "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d: %q", len(lines), got)
	}
	if lines[0] != CSVHeader {
		t.Fatalf("header line = %q", lines[0])
	}
	if lines[1] != `"Alice",vip,served,2026-01-12T09:00:00Z,Yes,2026-01-12T09:12:00Z,12` {
		t.Fatalf("served row = %q", lines[1])
	}
	// Cancelled rows carry no served timestamp and no wait, and an empty
	// queue name falls back to the default queue.
	if lines[2] != `"Bob",default,cancelled,2026-01-12T09:01:00Z,No,,` {
		t.Fatalf("cancelled row = %q", lines[2])
	}
}

func TestExportCSVQuotesUserName(t *testing.T) {
	joined := time.Date(2026, 1, 12, 9, 0, 0, 0, time.UTC)
	got := ExportCSV([]models.QueueEntry{
		{
			UserName:  `Eve "the fast", Jr`,
			QueueName: "default",
			Status:    models.StatusCancelled,
			JoinedAt:  joined,
		},
	})

	lines := strings.Split(got, "\n")
	if !strings.HasPrefix(lines[1], `"Eve ""the fast"", Jr",`) {
		t.Fatalf("user name not quoted correctly: %q", lines[1])
	}
}

func TestExportCSVWaitTruncatesToMinutes(t *testing.T) {
	joined := time.Date(2026, 1, 12, 9, 0, 0, 0, time.UTC)
	servedAt := joined.Add(5*time.Minute + 59*time.Second)
	got := ExportCSV([]models.QueueEntry{
		{
			UserName: "Cara",
			Status:   models.StatusServed,
			JoinedAt: joined,
			ServedAt: &servedAt,
		},
	})

	lines := strings.Split(got, "\n")
	if !strings.HasSuffix(lines[1], ",5") {
		t.Fatalf("wait should truncate to whole minutes: %q", lines[1])
	}
}
