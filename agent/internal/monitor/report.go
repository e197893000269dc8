package monitor

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"wallet-watch/shared/types"
)

type EntryStatus string

const (
	StatusOK        EntryStatus = "ok"
	StatusFailed    EntryStatus = "failed"
	StatusAbandoned EntryStatus = "abandoned"
	StatusSkipped   EntryStatus = "skipped"
)

// EntryResult is the outcome for one watch entry within a cycle.
type EntryResult struct {
	WatchEntryID        uint        `json:"watchEntryId"`
	Address             string      `json:"address"`
	Chain               types.Chain `json:"chain"`
	Provider            string      `json:"provider,omitempty"`
	Status              EntryStatus `json:"status"`
	EventsFetched       int         `json:"eventsFetched"`
	NewEvents           int         `json:"newTransactions"`
	AlertsCreated       int         `json:"alertsCreated"`
	Duplicates          int         `json:"duplicates"`
	CheckpointAdvanced  bool        `json:"checkpointAdvanced"`
	NotificationsSent   int         `json:"notificationsSent"`
	NotificationsFailed int         `json:"notificationsFailed"`
	Attempts            []Attempt   `json:"attempts,omitempty"`
	Error               string      `json:"error,omitempty"`
}

// RunReport summarizes one monitor cycle.
type RunReport struct {
	Success         bool          `json:"success"`
	RunID           string        `json:"runId"`
	StartedAt       time.Time     `json:"startedAt"`
	FinishedAt      time.Time     `json:"finishedAt"`
	DurationMS      int64         `json:"durationMs"`
	WalletsChecked  int           `json:"walletsChecked"`
	AlertsCreated   int           `json:"alertsCreated"`
	PerEntryResults []EntryResult `json:"perEntryResults"`
	Errors          []string      `json:"errors"`
}

func newReport(started time.Time) *RunReport {
	return &RunReport{
		RunID:           uuid.NewString(),
		StartedAt:       started,
		PerEntryResults: []EntryResult{},
		Errors:          []string{},
	}
}

func (r *RunReport) finish(results []EntryResult, finished time.Time) {
	r.PerEntryResults = results
	r.FinishedAt = finished
	r.DurationMS = finished.Sub(r.StartedAt).Milliseconds()
	for _, res := range results {
		if res.Status == StatusOK {
			r.WalletsChecked++
		}
		r.AlertsCreated += res.AlertsCreated
		if res.Error != "" {
			r.Errors = append(r.Errors, fmt.Sprintf("%s %s (#%d): %s", res.Chain, res.Address, res.WatchEntryID, res.Error))
		}
	}
	r.Success = true
}

// count returns how many results have the given status.
func (r *RunReport) count(status EntryStatus) int {
	n := 0
	for _, res := range r.PerEntryResults {
		if res.Status == status {
			n++
		}
	}
	return n
}

func describeAttempts(attempts []Attempt) string {
	parts := make([]string, 0, len(attempts))
	for _, a := range attempts {
		name := a.Provider
		if name == "" {
			name = "none"
		}
		parts = append(parts, fmt.Sprintf("%s: %s", name, a.Error))
	}
	return "all providers failed: " + strings.Join(parts, "; ")
}
