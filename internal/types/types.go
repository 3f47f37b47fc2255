// Package types defines the data model shared across loopctl's engine,
// store, journal, and adapters: Loop, its acceptance criteria, the issue
// snapshot, and the status state machine.
package types

import (
	"fmt"
	"time"
)

// Status is a loop's position in its lifecycle state machine.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusStopped   Status = "stopped"
	StatusError     Status = "error"
)

// IsValid reports whether s is one of the defined statuses.
func (s Status) IsValid() bool {
	switch s {
	case StatusQueued, StatusRunning, StatusPaused, StatusCompleted, StatusStopped, StatusError:
		return true
	}
	return false
}

// ValidTransitions returns the statuses reachable from s via a single
// engine operation, per the transition table in the loop engine spec.
func (s Status) ValidTransitions() []Status {
	switch s {
	case StatusQueued:
		return []Status{StatusRunning}
	case StatusRunning:
		return []Status{StatusPaused, StatusStopped, StatusCompleted, StatusError}
	case StatusPaused:
		return []Status{StatusRunning, StatusStopped}
	case StatusError, StatusStopped:
		return []Status{StatusRunning} // retry
	case StatusCompleted:
		return nil
	}
	return nil
}

// CanTransitionTo reports whether target is reachable from s.
func (s Status) CanTransitionTo(target Status) bool {
	for _, v := range s.ValidTransitions() {
		if v == target {
			return true
		}
	}
	return false
}

// CompletedBy identifies who satisfied an acceptance criterion.
type CompletedBy string

const (
	CompletedByAgent    CompletedBy = "agent"
	CompletedByOperator CompletedBy = "operator"
)

// AcceptanceCriterion is one checkable item an agent must satisfy.
type AcceptanceCriterion struct {
	Text        string       `json:"text"`
	Completed   bool         `json:"completed"`
	CompletedBy *CompletedBy `json:"completedBy,omitempty"`
	CompletedAt *time.Time   `json:"completedAt,omitempty"`
}

// Issue is the loop's snapshot of the tracked issue, captured at creation
// and refreshed only through the issue interface (internal/issue).
type Issue struct {
	URL        string                `json:"url"`
	Number     int                   `json:"number"`
	Title      string                `json:"title"`
	Body       string                `json:"body"`
	Repo       string                `json:"repo"`
	Criteria   []AcceptanceCriterion `json:"criteria"`
	OriginalAC []AcceptanceCriterion `json:"originalAcceptanceCriteria"`
}

// Validate checks the required fields of an Issue snapshot.
func (i *Issue) Validate() error {
	if i.URL == "" {
		return fmt.Errorf("issue: url is required")
	}
	if i.Title == "" {
		return fmt.Errorf("issue: title is required")
	}
	if i.Repo == "" {
		return fmt.Errorf("issue: repo is required")
	}
	if len(i.Title) > 500 {
		return fmt.Errorf("issue: title exceeds 500 characters")
	}
	return nil
}

// Loop is a managed, long-running attempt by an agent to complete one
// issue's acceptance criteria.
type Loop struct {
	ID                        string     `json:"id"`
	Agent                     string     `json:"agent"`
	Status                    Status     `json:"status"`
	Issue                     Issue      `json:"issue"`
	RepoRoot                  string     `json:"repoRoot"`
	SkipPermissions           bool       `json:"skipPermissions"`
	SessionID                 string     `json:"sessionId,omitempty"`
	StartedAt                 *time.Time `json:"startedAt,omitempty"`
	EndedAt                   *time.Time `json:"endedAt,omitempty"`
	PausedAt                  *time.Time `json:"pausedAt,omitempty"`
	PausedFromPreviousSession bool       `json:"pausedFromPreviousSession"`
	IssueClosed               bool       `json:"issueClosed"`
	Error                     string     `json:"error,omitempty"`
	PID                       int        `json:"pid,omitempty"`

	// Attempts is a bounded history of execution attempts: StartLoop and
	// RetryLoop each append one with StartedAt set. The engine does not
	// fill in EndedAt or Outcome, and vc status does not display it.
	Attempts []Attempt `json:"attempts,omitempty"`
}

// Attempt records one execution attempt for a loop, trimmed to what
// retry reporting needs: no test diagnosis, no gate results.
type Attempt struct {
	StartedAt time.Time  `json:"startedAt"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`
	Outcome   Status     `json:"outcome,omitempty"`
}

// MaxAttempts bounds the attempt history kept per loop.
const MaxAttempts = 20

// AppendAttempt appends a and trims the history to MaxAttempts, dropping
// the oldest first.
func (l *Loop) AppendAttempt(a Attempt) {
	l.Attempts = append(l.Attempts, a)
	if len(l.Attempts) > MaxAttempts {
		l.Attempts = l.Attempts[len(l.Attempts)-MaxAttempts:]
	}
}

// AllCriteriaComplete reports whether every criterion is marked complete.
func (l *Loop) AllCriteriaComplete() bool {
	if len(l.Issue.Criteria) == 0 {
		return false
	}
	for _, c := range l.Issue.Criteria {
		if !c.Completed {
			return false
		}
	}
	return true
}

// IncompleteCriteria returns the text of every criterion not yet
// completed, in stored order.
func (l *Loop) IncompleteCriteria() []string {
	var out []string
	for _, c := range l.Issue.Criteria {
		if !c.Completed {
			out = append(out, c.Text)
		}
	}
	return out
}

// LogEntryType classifies a journal record's origin.
type LogEntryType string

const (
	LogEntryAgent    LogEntryType = "agent"
	LogEntryOperator LogEntryType = "operator"
	LogEntrySystem   LogEntryType = "system"
	LogEntryError    LogEntryType = "error"
)

// LogEntry is one record in a loop's append-only journal.
type LogEntry struct {
	Timestamp time.Time    `json:"timestamp"`
	LoopID    string       `json:"loopId"`
	Type      LogEntryType `json:"type"`
	Content   string       `json:"content"`
}

// Document is the persistent state document: an ordered list of loops.
// Order is preserved on every write to give the UI stable identity.
type Document struct {
	Loops []Loop `json:"loops"`
}

// FindLoop returns a pointer to the loop with the given id, or nil.
func (d *Document) FindLoop(id string) *Loop {
	for i := range d.Loops {
		if d.Loops[i].ID == id {
			return &d.Loops[i]
		}
	}
	return nil
}
