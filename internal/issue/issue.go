// Package issue defines the issue-tracker interface the engine consumes.
// The engine never parses issue bodies itself; it delegates to an
// implementation of Tracker.
package issue

import (
	"context"
	"fmt"

	"github.com/loopctl/loopctl/internal/types"
)

// CloseResult reports whether Close actually closed the issue or found it
// already closed.
type CloseResult string

const (
	Closed        CloseResult = "closed"
	AlreadyClosed CloseResult = "already_closed"
)

// Tracker is the external, consumed-only issue-tracker interface. It is
// implementation-agnostic so tests can substitute a fake, following the
// teacher's GitOperations interface-first style.
type Tracker interface {
	ParseURL(url string) (repo string, number int, err error)
	Fetch(ctx context.Context, url string) (types.Issue, error)
	ApplyCriteriaToBody(body string, criteria []types.AcceptanceCriterion) (newBody string, err error)
	UpdateBody(ctx context.Context, url, body string) error
	Close(ctx context.Context, url string, comment string) (CloseResult, error)
}

// NullTracker is a no-op Tracker for tests and for running the engine
// without a real external tracker wired in.
type NullTracker struct{}

var _ Tracker = NullTracker{}

func (NullTracker) ParseURL(url string) (string, int, error) {
	return "", 0, fmt.Errorf("issue: null tracker cannot parse %q", url)
}

func (NullTracker) Fetch(ctx context.Context, url string) (types.Issue, error) {
	return types.Issue{}, fmt.Errorf("issue: null tracker has no backing store")
}

func (NullTracker) ApplyCriteriaToBody(body string, criteria []types.AcceptanceCriterion) (string, error) {
	return RenderCriteriaSection(body, criteria), nil
}

func (NullTracker) UpdateBody(ctx context.Context, url, body string) error {
	return nil
}

func (NullTracker) Close(ctx context.Context, url, comment string) (CloseResult, error) {
	return Closed, nil
}
