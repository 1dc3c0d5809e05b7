package analytics

import (
	"math"
	"sort"
	"time"

	"lineup/internal/models"
)

type Summary struct {
	TotalServed     int    `json:"totalServed"`
	TotalCancelled  int    `json:"totalCancelled"`
	AvgWaitTime     int    `json:"avgWaitTime"`
	CompletionRate  int    `json:"completionRate"`
	NoShowRate      int    `json:"noShowRate"`
	PeakHour        int    `json:"peakHour"`
	BusiestDay      string `json:"busiestDay"`
	AvgServedPerDay int    `json:"avgServedPerDay"`
}

type HourBucket struct {
	Hour  int `json:"hour"`
	Count int `json:"count"`
}

type DailyRow struct {
	Date      string `json:"date"`
	Served    int    `json:"served"`
	Cancelled int    `json:"cancelled"`
}

type WeekdayBucket struct {
	Day   string `json:"day"`
	Count int    `json:"count"`
}

type QueueBreakdown struct {
	QueueName string `json:"queueName"`
	Served    int    `json:"served"`
	Cancelled int    `json:"cancelled"`
}

type Report struct {
	Summary     Summary          `json:"summary"`
	HourlyData  []HourBucket     `json:"hourlyData"`
	DailyData   []DailyRow       `json:"dailyData"`
	QueueData   []QueueBreakdown `json:"queueData"`
	WeekdayData []WeekdayBucket  `json:"weekdayData"`
}

var weekdayNames = [7]string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}

// BuildReport aggregates a history slice (served and cancelled entries for
// one place, placeholder sentinel already excluded) into the operational
// report. Pure function: entry order does not matter and nothing is mutated.
// Hour, weekday and calendar-date bucketing uses loc.
func BuildReport(entries []models.QueueEntry, loc *time.Location) Report {
	if loc == nil {
		loc = time.Local
	}

	var hourly [24]int
	var weekly [7]int
	daily := make(map[string]*DailyRow)
	queues := make(map[string]*QueueBreakdown)

	served := 0
	cancelled := 0
	unverified := 0
	totalWait := time.Duration(0)
	waitSamples := 0

	for _, entry := range entries {
		local := entry.JoinedAt.In(loc)
		hourly[local.Hour()]++
		weekly[int(local.Weekday())]++

		date := local.Format("2006-01-02")
		row, ok := daily[date]
		if !ok {
			row = &DailyRow{Date: date}
			daily[date] = row
		}
		q, ok := queues[entry.QueueName]
		if !ok {
			q = &QueueBreakdown{QueueName: entry.QueueName}
			queues[entry.QueueName] = q
		}

		switch entry.Status {
		case models.StatusServed:
			served++
			row.Served++
			q.Served++
			if entry.ServedAt != nil {
				totalWait += entry.ServedAt.Sub(entry.JoinedAt)
				waitSamples++
			}
		case models.StatusCancelled:
			cancelled++
			row.Cancelled++
			q.Cancelled++
		}
		if !entry.IsVerified {
			unverified++
		}
	}

	total := served + cancelled
	summary := Summary{
		TotalServed:    served,
		TotalCancelled: cancelled,
		BusiestDay:     "N/A",
	}
	if waitSamples > 0 {
		summary.AvgWaitTime = int(math.Round(totalWait.Minutes() / float64(waitSamples)))
	}
	if total > 0 {
		summary.CompletionRate = int(math.Round(float64(served) / float64(total) * 100))
		summary.NoShowRate = int(math.Round(float64(unverified) / float64(total) * 100))
	}

	// Lowest-numbered hour wins ties: left-to-right scan, strict greater-than.
	peak := 0
	for hour := 1; hour < 24; hour++ {
		if hourly[hour] > hourly[peak] {
			peak = hour
		}
	}
	summary.PeakHour = peak

	busiest := 0
	for day := 1; day < 7; day++ {
		if weekly[day] > weekly[busiest] {
			busiest = day
		}
	}
	if weekly[busiest] > 0 {
		summary.BusiestDay = weekdayNames[busiest]
	}

	activeDays := len(daily)
	if activeDays < 1 {
		activeDays = 1
	}
	summary.AvgServedPerDay = int(math.Round(float64(served) / float64(activeDays)))

	hourlyData := make([]HourBucket, 24)
	for hour := range hourly {
		hourlyData[hour] = HourBucket{Hour: hour, Count: hourly[hour]}
	}
	weekdayData := make([]WeekdayBucket, 7)
	for day := range weekly {
		weekdayData[day] = WeekdayBucket{Day: weekdayNames[day], Count: weekly[day]}
	}

	dailyData := make([]DailyRow, 0, len(daily))
	for _, row := range daily {
		dailyData = append(dailyData, *row)
	}
	sort.Slice(dailyData, func(i, j int) bool { return dailyData[i].Date < dailyData[j].Date })

	queueData := make([]QueueBreakdown, 0, len(queues))
	for _, q := range queues {
		queueData = append(queueData, *q)
	}
	sort.Slice(queueData, func(i, j int) bool { return queueData[i].QueueName < queueData[j].QueueName })

	return Report{
		Summary:     summary,
		HourlyData:  hourlyData,
		DailyData:   dailyData,
		QueueData:   queueData,
		WeekdayData: weekdayData,
	}
}
