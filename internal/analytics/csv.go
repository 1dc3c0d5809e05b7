package analytics

import (
	"fmt"
	"strings"
	"time"

	"lineup/internal/models"
)

// CSVHeader is the fixed first row of an export.
const CSVHeader = "Name,Queue,Status,Joined At,Verified,Served At,Wait Time (min)"

// ExportCSV serializes a history slice (expected newest first) into a single
// newline-joined blob. Line breaks are always \n regardless of platform.
func ExportCSV(entries []models.QueueEntry) string {
	lines := make([]string, 0, len(entries)+1)
	lines = append(lines, CSVHeader)
	for _, entry := range entries {
		queueName := entry.QueueName
		if queueName == "" {
			queueName = models.DefaultQueueName
		}
		verified := "No"
		if entry.IsVerified {
			verified = "Yes"
		}
		servedAt := ""
		waitMinutes := ""
		if entry.ServedAt != nil {
			servedAt = entry.ServedAt.UTC().Format(time.RFC3339)
			waitMinutes = fmt.Sprintf("%d", int(entry.ServedAt.Sub(entry.JoinedAt).Minutes()))
		}
		lines = append(lines, strings.Join([]string{
			csvQuote(entry.UserName),
			queueName,
			entry.Status,
			entry.JoinedAt.UTC().Format(time.RFC3339),
			verified,
			servedAt,
			waitMinutes,
		}, ","))
	}
	return strings.Join(lines, "\n")
}

// csvQuote always wraps the value in double quotes, doubling embedded ones.
func csvQuote(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}
