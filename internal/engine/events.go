package engine

import (
	"fmt"

	"github.com/loopctl/loopctl/internal/parser"
	"github.com/loopctl/loopctl/internal/supervisor"
	"github.com/loopctl/loopctl/internal/types"
)

// handleParserEvent applies one structured event recognized in a child
// process's output to the loop's state.
func (e *Engine) handleParserEvent(loopID string, ev parser.Event) {
	switch ev.Kind {
	case parser.EventCriterionComplete:
		e.markCriterion(loopID, ev.N, true, nil)
	case parser.EventCriterionIncomplete:
		e.markCriterion(loopID, ev.N, false, nil)
	case parser.EventTaskComplete:
		e.handleTaskComplete(loopID)
	case parser.EventSessionID:
		e.setSessionID(loopID, ev.Text)
	}
}

// markCriterion applies an agent-originated completion toggle. Unknown
// indices are logged at system level and ignored (§4.4). Repeating an
// agent toggle is a no-op: the timestamp is not updated on repeats (§8
// idempotent-criterion-events property). by, if non-nil, overrides the
// default agent attribution (used by the operator-toggle path); such a
// toggle is always applied, re-stamping the criterion even on a repeat. Every
// actual toggle is logged as a system entry ("Criterion N complete"/
// "Criterion N incomplete") so the resume summarizer can count progress
// across a loop's log.
func (e *Engine) markCriterion(loopID string, n int, completed bool, by *types.CompletedBy) {
	outOfRange := false
	changed := false

	_, ok, err := e.store.UpdateLoop(loopID, func(l *types.Loop) {
		if n < 1 || n > len(l.Issue.Criteria) {
			outOfRange = true
			return
		}
		idx := n - 1
		c := &l.Issue.Criteria[idx]

		if c.Completed == completed && by == nil {
			return // idempotent: no-op after the first occurrence
		}
		changed = true

		c.Completed = completed
		if !completed {
			c.CompletedBy = nil
			c.CompletedAt = nil
			return
		}
		attribution := types.CompletedByAgent
		if by != nil {
			attribution = *by
		}
		c.CompletedBy = &attribution
		t := now()
		c.CompletedAt = &t

		// An agent-driven criterion-complete that completes the last
		// criterion auto-completes the loop. Operator-driven toggles
		// (by != nil) never auto-complete.
		if by == nil && l.Status == types.StatusRunning && l.AllCriteriaComplete() {
			l.Status = types.StatusCompleted
			t := now()
			l.EndedAt = &t
		}
	})
	if err != nil || !ok {
		return
	}

	if outOfRange {
		_ = e.journal.Append(loopID, types.LogEntrySystem, fmt.Sprintf("criterion index %d out of range, ignored", n))
		return
	}
	if changed {
		word := "incomplete"
		if completed {
			word = "complete"
		}
		_ = e.journal.Append(loopID, types.LogEntrySystem, fmt.Sprintf("Criterion %d %s", n, word))
	}
	e.publish(loopID)
}

func (e *Engine) handleTaskComplete(loopID string) {
	_, ok, err := e.store.UpdateLoop(loopID, func(l *types.Loop) {
		if l.Status != types.StatusRunning {
			return
		}
		l.Status = types.StatusCompleted
		t := now()
		l.EndedAt = &t
	})
	if err != nil || !ok {
		return
	}
	_ = e.journal.Append(loopID, types.LogEntrySystem, "agent emitted TASK COMPLETE")
	e.publish(loopID)

	// Idle completion (§4.5): the promise is authoritative even with
	// unchecked criteria remaining; best-effort terminate the child since
	// its work is done. Errors are ignored: the process may already be
	// exiting on its own.
	_ = e.supervisor.Stop(loopID)
}

func (e *Engine) setSessionID(loopID, id string) {
	if id == "" {
		return
	}
	_, ok, err := e.store.UpdateLoop(loopID, func(l *types.Loop) {
		if l.SessionID == "" {
			l.SessionID = id
		}
	})
	if err != nil || !ok {
		return
	}
	e.publish(loopID)
}

// handleExit classifies a reaped child process and applies the
// resulting transition, unless the loop already reached a
// terminal state via a prior parser event (TaskComplete or the last
// criterion completing) in which case the exit is a no-op.
func (e *Engine) handleExit(loopID string, info supervisor.ExitInfo) {
	_, ok, err := e.store.UpdateLoop(loopID, func(l *types.Loop) {
		if l.Status != types.StatusRunning {
			// Already completed/stopped by a parser event, or this is a
			// process that outlived a Stop call whose transition already
			// landed; nothing further to do.
			return
		}

		if info.Reason == supervisor.ExitStopped {
			l.Status = types.StatusStopped
			t := now()
			l.EndedAt = &t
			return
		}

		if l.AllCriteriaComplete() {
			l.Status = types.StatusCompleted
		} else {
			l.Status = types.StatusError
			l.Error = "agent exited"
		}
		t := now()
		l.EndedAt = &t
	})
	if err != nil || !ok {
		return
	}
	_ = e.journal.Append(loopID, types.LogEntrySystem, "process exited")
	e.publish(loopID)
}
