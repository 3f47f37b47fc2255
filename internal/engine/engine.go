// Package engine implements the loop-lifecycle engine: the per-loop
// state machine and the operations that drive it, composing the store,
// journal, adapter registry, process supervisor, resume summarizer, and
// issue tracker.
//
// The engine is logically single-threaded over the state document: a
// single mutex guards every read-modify-write, and long-running I/O
// (spawn, signal, tracker calls) happens off that critical section.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/loopctl/loopctl/internal/adapter"
	"github.com/loopctl/loopctl/internal/issue"
	"github.com/loopctl/loopctl/internal/journal"
	"github.com/loopctl/loopctl/internal/parser"
	"github.com/loopctl/loopctl/internal/resume"
	"github.com/loopctl/loopctl/internal/store"
	"github.com/loopctl/loopctl/internal/supervisor"
	"github.com/loopctl/loopctl/internal/types"
)

// IssueCallTimeout bounds the engine's tracker.UpdateBody/Close calls.
const IssueCallTimeout = 30 * time.Second

// newID generates a loop identifier. Overridable in tests so assertions
// can pin a known id.
var newID = func() string { return uuid.New().String() }

// now is overridable in tests needing a fixed clock.
var now = time.Now

// Engine owns the state document (through store.Store), the per-loop log
// (through journal.Journal), the supervised child processes, and
// publishes an Event on every mutation.
type Engine struct {
	store      *store.Store
	journal    *journal.Journal
	supervisor *supervisor.Supervisor
	adapters   *adapter.Registry
	tracker    issue.Tracker
	bus        *Bus
}

// New constructs an Engine. tracker may be issue.NullTracker{} when no
// external issue tracker is configured.
func New(st *store.Store, jr *journal.Journal, sup *supervisor.Supervisor, adapters *adapter.Registry, tracker issue.Tracker) *Engine {
	if tracker == nil {
		tracker = issue.NullTracker{}
	}
	return &Engine{
		store:      st,
		journal:    jr,
		supervisor: sup,
		adapters:   adapters,
		tracker:    tracker,
		bus:        NewBus(),
	}
}

// Subscribe exposes the engine's event bus to UI/control-protocol layers.
func (e *Engine) Subscribe() (<-chan Event, func()) {
	return e.bus.Subscribe()
}

// Document returns the current full state document. Subscribers re-read
// this after receiving an Event rather than trusting the event payload.
func (e *Engine) Document() (types.Document, error) {
	return e.store.Load()
}

// Loop returns a copy of one loop's current state, or a UserInput error
// if id is unknown.
func (e *Engine) Loop(id string) (types.Loop, error) {
	doc, err := e.store.Load()
	if err != nil {
		return types.Loop{}, newErr(KindStateCorruption, "Loop", err)
	}
	l := doc.FindLoop(id)
	if l == nil {
		return types.Loop{}, newErr(KindUserInput, "Loop", fmt.Errorf("unknown loop %q", id))
	}
	return *l, nil
}

func (e *Engine) publish(loopID string) {
	e.bus.Publish(Event{Kind: EventLoopMutated, LoopID: loopID})
}

// callbacksFor builds the supervisor.Callbacks that route one loop's
// child process output into the journal and the state machine.
func (e *Engine) callbacksFor(loopID string) supervisor.Callbacks {
	return supervisor.Callbacks{
		OnText: func(text string) {
			_ = e.journal.Append(loopID, types.LogEntryAgent, text)
			e.publish(loopID)
		},
		OnEvent: func(ev parser.Event) {
			e.handleParserEvent(loopID, ev)
		},
		OnExit: func(info supervisor.ExitInfo) {
			e.handleExit(loopID, info)
		},
	}
}

// buildInitialPrompt renders the prompt for a fresh (non-resume) spawn:
// the issue title, body, and its criteria in stored order, 1-indexed to
// match the parser's criterion numbering contract.
func buildInitialPrompt(iss types.Issue) string {
	s := fmt.Sprintf("# %s\n\n%s\n\n## Acceptance Criteria\n", iss.Title, iss.Body)
	for i, c := range iss.Criteria {
		s += fmt.Sprintf("%d. %s\n", i+1, c.Text)
	}
	return s
}

// spawnFresh starts a brand new process for loop against its original
// issue prompt (used by start; retry goes through spawnResume).
func (e *Engine) spawnFresh(ctx context.Context, op string, l *types.Loop) (int, error) {
	a, err := e.adapters.Get(l.Agent)
	if err != nil {
		return 0, newErr(KindExternalTool, op, err)
	}
	prompt := buildInitialPrompt(l.Issue)
	spawn := a.BuildSpawnArgs(prompt, l.SkipPermissions)
	pid, err := e.supervisor.Spawn(ctx, l.ID, spawn, l.RepoRoot, a.ExtractSessionID, e.callbacksFor(l.ID))
	if err != nil {
		return 0, newErr(KindExternalTool, op, err)
	}
	return pid, nil
}

// spawnResume starts a fresh process seeded with a resume prompt built
// from the loop's log and remaining criteria (the cross-session resume
// path; used by resumePausedLoop and retry).
func (e *Engine) spawnResume(ctx context.Context, op string, l *types.Loop) (int, error) {
	a, err := e.adapters.Get(l.Agent)
	if err != nil {
		return 0, newErr(KindExternalTool, op, err)
	}

	entries, err := e.journal.ReadAll(l.ID)
	if err != nil {
		return 0, newErr(KindExternalTool, op, err)
	}
	summary := resume.Summarize(entries, resume.DefaultMaxChars)
	remaining := l.IncompleteCriteria()
	prompt := a.BuildResumePrompt(summary, remaining)

	var spawn adapter.Spawn
	if l.SessionID != "" {
		spawn = a.BuildContinueArgs(l.SessionID, prompt, l.SkipPermissions)
	} else {
		spawn = a.BuildSpawnArgs(prompt, l.SkipPermissions)
	}

	pid, err := e.supervisor.Spawn(ctx, l.ID, spawn, l.RepoRoot, a.ExtractSessionID, e.callbacksFor(l.ID))
	if err != nil {
		return 0, newErr(KindExternalTool, op, err)
	}
	return pid, nil
}
