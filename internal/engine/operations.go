package engine

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/loopctl/loopctl/internal/supervisor"
	"github.com/loopctl/loopctl/internal/types"
)

// CreateParams describes a new loop at creation time.
type CreateParams struct {
	Agent           string
	Issue           types.Issue
	RepoRoot        string
	SkipPermissions bool
}

// CreateLoop validates params and persists a new loop in StatusQueued.
func (e *Engine) CreateLoop(params CreateParams) (types.Loop, error) {
	if err := params.Issue.Validate(); err != nil {
		return types.Loop{}, newErr(KindUserInput, "CreateLoop", err)
	}
	if params.RepoRoot == "" {
		return types.Loop{}, newErr(KindUserInput, "CreateLoop", fmt.Errorf("repoRoot is required"))
	}
	if info, err := os.Stat(params.RepoRoot); err != nil || !info.IsDir() {
		return types.Loop{}, newErr(KindUserInput, "CreateLoop", fmt.Errorf("repoRoot %q does not exist or is not a directory", params.RepoRoot))
	}
	if _, err := e.adapters.Get(params.Agent); err != nil {
		return types.Loop{}, newErr(KindUserInput, "CreateLoop", err)
	}

	original := append([]types.AcceptanceCriterion(nil), params.Issue.Criteria...)
	params.Issue.OriginalAC = original

	l := types.Loop{
		ID:              newID(),
		Agent:           params.Agent,
		Status:          types.StatusQueued,
		Issue:           params.Issue,
		RepoRoot:        params.RepoRoot,
		SkipPermissions: params.SkipPermissions,
	}

	if _, err := e.store.AppendLoop(l); err != nil {
		return types.Loop{}, newErr(KindStateCorruption, "CreateLoop", err)
	}
	e.publish(l.ID)
	return l, nil
}

// StartLoop transitions a queued loop to running and spawns its agent
// process against the original issue prompt.
func (e *Engine) StartLoop(ctx context.Context, id string) error {
	l, err := e.Loop(id)
	if err != nil {
		return err
	}
	if l.Status != types.StatusQueued {
		return newErr(KindUserInput, "StartLoop", fmt.Errorf("loop %q is %s, not queued", id, l.Status))
	}

	pid, err := e.spawnFresh(ctx, "StartLoop", &l)
	if err != nil {
		return err
	}

	_, ok, uerr := e.store.UpdateLoop(id, func(loop *types.Loop) {
		loop.Status = types.StatusRunning
		t := now()
		loop.StartedAt = &t
		loop.EndedAt = nil
		loop.Error = ""
		loop.PID = pid
		loop.AppendAttempt(types.Attempt{StartedAt: t})
	})
	if uerr != nil {
		return newErr(KindStateCorruption, "StartLoop", uerr)
	}
	if !ok {
		return newErr(KindUserInput, "StartLoop", fmt.Errorf("unknown loop %q", id))
	}
	_ = e.journal.Append(id, types.LogEntrySystem, "loop started")
	e.publish(id)
	return nil
}

// RetryLoop transitions an error or stopped loop back to running,
// reseeding the agent with a resume prompt built from the retained log
// and still-incomplete criteria so prior progress is not repeated. The
// prior log is retained and endedAt is cleared (§8 scenario 6).
func (e *Engine) RetryLoop(ctx context.Context, id string) error {
	l, err := e.Loop(id)
	if err != nil {
		return err
	}
	if l.Status != types.StatusError && l.Status != types.StatusStopped {
		return newErr(KindUserInput, "RetryLoop", fmt.Errorf("loop %q is %s, not error or stopped", id, l.Status))
	}

	pid, err := e.spawnResume(ctx, "RetryLoop", &l)
	if err != nil {
		return err
	}

	_, ok, uerr := e.store.UpdateLoop(id, func(loop *types.Loop) {
		loop.Status = types.StatusRunning
		loop.EndedAt = nil
		loop.Error = ""
		loop.PID = pid
		loop.AppendAttempt(types.Attempt{StartedAt: now()})
	})
	if uerr != nil {
		return newErr(KindStateCorruption, "RetryLoop", uerr)
	}
	if !ok {
		return newErr(KindUserInput, "RetryLoop", fmt.Errorf("unknown loop %q", id))
	}
	_ = e.journal.Append(id, types.LogEntrySystem, "loop retried")
	e.publish(id)
	return nil
}

// PauseLoop transitions a running loop to paused. If the platform
// supports the OS stop signal, the child is suspended in place
// (same-session pause); otherwise the engine degrades gracefully: the
// child is terminated and the pause is recorded as if a supervisor
// restart had intervened, so the next resume always does a fresh
// cross-session spawn.
func (e *Engine) PauseLoop(id string) error {
	l, err := e.Loop(id)
	if err != nil {
		return err
	}
	if l.Status != types.StatusRunning {
		return newErr(KindUserInput, "PauseLoop", fmt.Errorf("loop %q is %s, not running", id, l.Status))
	}

	crossSession := false
	if perr := e.supervisor.Pause(id); perr != nil {
		if errors.Is(perr, supervisor.ErrSignalUnsupported) {
			crossSession = true
			_ = e.supervisor.Stop(id)
		} else {
			return newErr(KindExternalTool, "PauseLoop", perr)
		}
	}

	_, ok, uerr := e.store.UpdateLoop(id, func(loop *types.Loop) {
		loop.Status = types.StatusPaused
		t := now()
		loop.PausedAt = &t
		if crossSession {
			loop.PausedFromPreviousSession = true
		}
	})
	if uerr != nil {
		return newErr(KindStateCorruption, "PauseLoop", uerr)
	}
	if !ok {
		return newErr(KindUserInput, "PauseLoop", fmt.Errorf("unknown loop %q", id))
	}
	_ = e.journal.Append(id, types.LogEntrySystem, "loop paused")
	e.publish(id)
	return nil
}

// CanResumeInSession reports whether id can be resumed by signalling a
// still-live child process rather than spawning a fresh one.
func (e *Engine) CanResumeInSession(id string) bool {
	l, err := e.Loop(id)
	if err != nil || l.Status != types.StatusPaused {
		return false
	}
	if l.PausedFromPreviousSession {
		return false
	}
	return e.supervisor.HasLiveProcess(id)
}

// ResumeLoop resumes a paused loop, choosing the same-session (signal)
// path when possible and otherwise delegating to ResumePausedLoop.
func (e *Engine) ResumeLoop(ctx context.Context, id string) error {
	l, err := e.Loop(id)
	if err != nil {
		return err
	}
	if l.Status != types.StatusPaused {
		return newErr(KindUserInput, "ResumeLoop", fmt.Errorf("loop %q is %s, not paused", id, l.Status))
	}

	if e.CanResumeInSession(id) {
		if rerr := e.supervisor.Resume(id); rerr != nil {
			return newErr(KindExternalTool, "ResumeLoop", rerr)
		}
		_, ok, uerr := e.store.UpdateLoop(id, func(loop *types.Loop) {
			loop.Status = types.StatusRunning
			loop.PausedAt = nil
		})
		if uerr != nil {
			return newErr(KindStateCorruption, "ResumeLoop", uerr)
		}
		if !ok {
			return newErr(KindUserInput, "ResumeLoop", fmt.Errorf("unknown loop %q", id))
		}
		_ = e.journal.Append(id, types.LogEntrySystem, "loop resumed in session")
		e.publish(id)
		return nil
	}

	return e.ResumePausedLoop(ctx, id)
}

// ResumePausedLoop performs the cross-session resume: a fresh process is
// spawned, seeded with a prompt built from the retained log and the
// criteria still incomplete as of pause, in original order (§8
// resume-correctness property, §8 scenario 3).
func (e *Engine) ResumePausedLoop(ctx context.Context, id string) error {
	l, err := e.Loop(id)
	if err != nil {
		return err
	}
	if l.Status != types.StatusPaused {
		return newErr(KindUserInput, "ResumePausedLoop", fmt.Errorf("loop %q is %s, not paused", id, l.Status))
	}

	pid, err := e.spawnResume(ctx, "ResumePausedLoop", &l)
	if err != nil {
		return err
	}

	_, ok, uerr := e.store.UpdateLoop(id, func(loop *types.Loop) {
		loop.Status = types.StatusRunning
		loop.PausedAt = nil
		loop.PausedFromPreviousSession = false
		loop.PID = pid
	})
	if uerr != nil {
		return newErr(KindStateCorruption, "ResumePausedLoop", uerr)
	}
	if !ok {
		return newErr(KindUserInput, "ResumePausedLoop", fmt.Errorf("unknown loop %q", id))
	}
	_ = e.journal.Append(id, types.LogEntrySystem, "loop resumed from previous session")
	e.publish(id)
	return nil
}

// StopLoop terminates a running or paused loop's child process (if any)
// and transitions it to stopped.
func (e *Engine) StopLoop(id string) error {
	l, err := e.Loop(id)
	if err != nil {
		return err
	}
	if l.Status != types.StatusRunning && l.Status != types.StatusPaused {
		return newErr(KindUserInput, "StopLoop", fmt.Errorf("loop %q is %s, not running or paused", id, l.Status))
	}

	if serr := e.supervisor.Stop(id); serr != nil {
		return newErr(KindExternalTool, "StopLoop", serr)
	}

	_, ok, uerr := e.store.UpdateLoop(id, func(loop *types.Loop) {
		loop.Status = types.StatusStopped
		t := now()
		loop.EndedAt = &t
	})
	if uerr != nil {
		return newErr(KindStateCorruption, "StopLoop", uerr)
	}
	if !ok {
		return newErr(KindUserInput, "StopLoop", fmt.Errorf("unknown loop %q", id))
	}
	_ = e.journal.Append(id, types.LogEntrySystem, "loop stopped")
	e.publish(id)
	return nil
}

// SendIntervention writes msg to a running loop's child stdin and
// records it as an operator log entry.
func (e *Engine) SendIntervention(id, msg string) error {
	l, err := e.Loop(id)
	if err != nil {
		return err
	}
	if l.Status != types.StatusRunning {
		return newErr(KindUserInput, "SendIntervention", fmt.Errorf("loop %q is %s, not running", id, l.Status))
	}
	if ierr := e.supervisor.Intervene(id, msg); ierr != nil {
		return newErr(KindExternalTool, "SendIntervention", ierr)
	}
	_ = e.journal.Append(id, types.LogEntryOperator, msg)
	e.publish(id)
	return nil
}

// DiscardPausedLoop permanently removes a previous-session paused loop:
// its log and state entry are deleted.
func (e *Engine) DiscardPausedLoop(id string) error {
	l, err := e.Loop(id)
	if err != nil {
		return err
	}
	if l.Status != types.StatusPaused || !l.PausedFromPreviousSession {
		return newErr(KindUserInput, "DiscardPausedLoop", fmt.Errorf("loop %q is not a previous-session paused loop", id))
	}
	if rerr := e.store.RemoveLoop(id); rerr != nil {
		return newErr(KindStateCorruption, "DiscardPausedLoop", rerr)
	}
	e.publish(id)
	return nil
}

// MarkOrphanedPausedLoops runs the startup orphan sweep: every loop in
// running/paused with no currently-alive pid becomes paused with
// pausedFromPreviousSession=true. Returns the count flipped.
func (e *Engine) MarkOrphanedPausedLoops() (int, error) {
	count, err := e.store.SweepOrphans()
	if err != nil {
		return 0, newErr(KindStateCorruption, "MarkOrphanedPausedLoops", err)
	}
	if count > 0 {
		e.bus.Publish(Event{Kind: EventOrphansMarked})
	}
	return count, nil
}

// SetCriterionByOperator applies an out-of-band operator toggle to
// criterion n (1-indexed). Unlike an agent's criterion-complete event,
// this never auto-completes the loop even if it is the last remaining
// criterion (§9 design note). Allowed in any status. The issue body is
// re-rendered through the tracker; a tracker failure is logged at error
// level but does not block the local state change (§4.8).
func (e *Engine) SetCriterionByOperator(ctx context.Context, id string, n int, completed bool) error {
	l, err := e.Loop(id)
	if err != nil {
		return err
	}
	if n < 1 || n > len(l.Issue.Criteria) {
		return newErr(KindUserInput, "SetCriterionByOperator", fmt.Errorf("criterion %d out of range for loop %q", n, id))
	}

	operator := types.CompletedByOperator
	e.markCriterion(id, n, completed, &operator)
	_ = e.journal.Append(id, types.LogEntrySystem, fmt.Sprintf("operator set criterion %d completed=%v", n, completed))

	l, err = e.Loop(id)
	if err != nil {
		return err
	}
	e.refreshIssueBody(ctx, &l)
	return nil
}

// refreshIssueBody re-renders and pushes the issue body through the
// tracker to reflect current criteria state. Failures are logged at
// error level and otherwise swallowed (§4.8).
func (e *Engine) refreshIssueBody(ctx context.Context, l *types.Loop) {
	body, err := e.tracker.ApplyCriteriaToBody(l.Issue.Body, l.Issue.Criteria)
	if err != nil {
		_ = e.journal.Append(l.ID, types.LogEntryError, fmt.Sprintf("render issue body: %v", err))
		return
	}

	_, _, _ = e.store.UpdateLoop(l.ID, func(loop *types.Loop) {
		loop.Issue.Body = body
	})

	callCtx, cancel := context.WithTimeout(ctx, IssueCallTimeout)
	defer cancel()
	if err := e.tracker.UpdateBody(callCtx, l.Issue.URL, body); err != nil {
		_ = e.journal.Append(l.ID, types.LogEntryError, fmt.Sprintf("update issue body: %v", err))
	}
}

// CloseIssue closes the tracked issue for a completed loop and records
// issueClosed. It may only be called once a loop is completed (§3
// invariant).
func (e *Engine) CloseIssue(ctx context.Context, id, comment string) error {
	l, err := e.Loop(id)
	if err != nil {
		return err
	}
	if l.Status != types.StatusCompleted {
		return newErr(KindUserInput, "CloseIssue", fmt.Errorf("loop %q is %s, not completed", id, l.Status))
	}
	if l.IssueClosed {
		return nil
	}

	callCtx, cancel := context.WithTimeout(ctx, IssueCallTimeout)
	defer cancel()
	result, cerr := e.tracker.Close(callCtx, l.Issue.URL, comment)
	if cerr != nil {
		return newErr(KindTransient, "CloseIssue", cerr)
	}
	_, ok, uerr := e.store.UpdateLoop(id, func(loop *types.Loop) {
		loop.IssueClosed = true
	})
	if uerr != nil {
		return newErr(KindStateCorruption, "CloseIssue", uerr)
	}
	if !ok {
		return newErr(KindUserInput, "CloseIssue", fmt.Errorf("unknown loop %q", id))
	}
	_ = e.journal.Append(id, types.LogEntrySystem, fmt.Sprintf("issue closed (%s)", result))
	e.publish(id)
	return nil
}
