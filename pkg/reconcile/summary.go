package reconcile

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Outcome is what happened to a single record during a run
type Outcome string

const (
	OutcomeInserted Outcome = "inserted"
	OutcomeUpdated  Outcome = "updated"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeFailed   Outcome = "failed"
)

// Summary reports the counts of one run.
//
// Every enumerated record ends up in exactly one of Inserted, Updated, Skipped or Failed.
// Warned counts data quality warnings and overlaps with the other counts.
type Summary struct {
	RunID      string        `json:"run_id"`
	Cutoff     time.Time     `json:"cutoff"`
	DryRun     bool          `json:"dry_run"`
	Enumerated int           `json:"enumerated"`
	Inserted   int           `json:"inserted"`
	Updated    int           `json:"updated"`
	Skipped    int           `json:"skipped"`
	Warned     int           `json:"warned"`
	Failed     int           `json:"failed"`
	Duration   time.Duration `json:"duration"`
}

// Message renders the summary for humans
func (s Summary) Message() string {
	verb := ""
	if s.DryRun {
		verb = "would be "
	}
	parts := []string{
		fmt.Sprintf("%d new records %sinserted", s.Inserted, verb),
		fmt.Sprintf("%d records %supdated", s.Updated, verb),
		fmt.Sprintf("%d skipped", s.Skipped),
		fmt.Sprintf("%d warnings", s.Warned),
		fmt.Sprintf("%d failed", s.Failed),
	}
	return fmt.Sprintf("%s (%d records modified since %s, took %s)",
		strings.Join(parts, ", "), s.Enumerated, s.Cutoff.Format(time.DateOnly), s.Duration.Round(time.Second))
}

// Fields returns the summary as structured log fields
func (s Summary) Fields() map[string]any {
	return map[string]any{
		"run_id":     s.RunID,
		"cutoff":     s.Cutoff.Format(time.DateOnly),
		"dry_run":    s.DryRun,
		"enumerated": s.Enumerated,
		"inserted":   s.Inserted,
		"updated":    s.Updated,
		"skipped":    s.Skipped,
		"warned":     s.Warned,
		"failed":     s.Failed,
		"duration":   s.Duration.String(),
	}
}

// aggregator accumulates counts from concurrent workers
type aggregator struct {
	mu      sync.Mutex
	summary Summary
}

func (a *aggregator) record(outcome Outcome) {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch outcome {
	case OutcomeInserted:
		a.summary.Inserted++
	case OutcomeUpdated:
		a.summary.Updated++
	case OutcomeSkipped:
		a.summary.Skipped++
	case OutcomeFailed:
		a.summary.Failed++
	}
}

func (a *aggregator) warn() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.summary.Warned++
}

func (a *aggregator) setEnumerated(n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.summary.Enumerated = n
}

func (a *aggregator) snapshot() Summary {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.summary
}
