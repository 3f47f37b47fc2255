package engine

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/loopctl/loopctl/internal/adapter"
	"github.com/loopctl/loopctl/internal/journal"
	"github.com/loopctl/loopctl/internal/store"
	"github.com/loopctl/loopctl/internal/supervisor"
	"github.com/loopctl/loopctl/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAdapter is a test double that dumps whatever prompt it is given
// into promptFile (via a quoted heredoc, so the prompt's own content
// cannot be interpreted by the shell) and then runs one of behaviors,
// advancing to the next (and sticking on the last) with each spawn. A
// single fixed behavior still works: repeat it once.
type fakeAdapter struct {
	name       string
	behaviors  []string
	promptFile string

	mu         sync.Mutex
	spawnCount int
}

func (a *fakeAdapter) Name() string { return a.name }

func (a *fakeAdapter) script(prompt string) string {
	a.mu.Lock()
	i := a.spawnCount
	if i >= len(a.behaviors) {
		i = len(a.behaviors) - 1
	}
	a.spawnCount++
	a.mu.Unlock()
	return fmt.Sprintf("cat > %q <<'PROMPTEOF'\n%s\nPROMPTEOF\n%s\n", a.promptFile, prompt, a.behaviors[i])
}

func (a *fakeAdapter) BuildSpawnArgs(prompt string, skipPermissions bool) adapter.Spawn {
	return adapter.Spawn{Cmd: "sh", Args: []string{"-c", a.script(prompt)}}
}

func (a *fakeAdapter) BuildContinueArgs(sessionID, prompt string, skipPermissions bool) adapter.Spawn {
	return adapter.Spawn{Cmd: "sh", Args: []string{"-c", a.script(prompt)}}
}

func (a *fakeAdapter) ExtractSessionID(chunk []byte) (string, int, int, bool) {
	marker := []byte("SESSION:")
	idx := bytes.Index(chunk, marker)
	if idx < 0 {
		return "", 0, 0, false
	}
	valueStart := idx + len(marker)
	nl := bytes.IndexByte(chunk[valueStart:], '\n')
	if nl < 0 {
		return "", 0, 0, false
	}
	return string(chunk[valueStart : valueStart+nl]), idx, valueStart + nl + 1, true
}

func (a *fakeAdapter) BuildResumePrompt(summary string, remaining []string) string {
	var b strings.Builder
	b.WriteString("RESUMING FROM PAUSE\n\n")
	if summary != "" {
		b.WriteString(summary)
		b.WriteString("\n\n")
	}
	for i, c := range remaining {
		fmt.Fprintf(&b, "%d. %s\n", i+1, c)
	}
	return b.String()
}

func (a *fakeAdapter) IsAvailable() bool { return true }

func newTestEngine(t *testing.T, behaviors ...string) (*Engine, string) {
	t.Helper()
	dir := t.TempDir()
	promptFile := filepath.Join(dir, "prompt.txt")

	reg := adapter.NewRegistry()
	reg.Register(&fakeAdapter{name: "fake", behaviors: behaviors, promptFile: promptFile})

	st, err := store.New(store.Config{DataRoot: dir})
	require.NoError(t, err)
	jr := journal.New(filepath.Join(dir, "loops"))
	sup := supervisor.New()

	return New(st, jr, sup, reg, nil), promptFile
}

func testIssue(url string, criteria ...string) types.Issue {
	var cs []types.AcceptanceCriterion
	for _, c := range criteria {
		cs = append(cs, types.AcceptanceCriterion{Text: c})
	}
	return types.Issue{URL: url, Title: "test issue", Repo: "acme/widgets", Criteria: cs}
}

// --- §8 scenario 1: happy path ---

func TestHappyPathCompletesLoop(t *testing.T) {
	behavior := "echo '<criterion-complete>1</criterion-complete>'; echo '<criterion-complete>2</criterion-complete>'; echo '<promise>TASK COMPLETE</promise>'"
	eng, _ := newTestEngine(t, behavior)

	l, err := eng.CreateLoop(CreateParams{
		Agent:    "fake",
		Issue:    testIssue("https://example.com/acme/widgets/issues/1", "A", "B"),
		RepoRoot: t.TempDir(),
	})
	require.NoError(t, err)
	assert.Equal(t, types.StatusQueued, l.Status)

	require.NoError(t, eng.StartLoop(context.Background(), l.ID))

	require.Eventually(t, func() bool {
		loop, _ := eng.Loop(l.ID)
		return loop.Status == types.StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	loop, err := eng.Loop(l.ID)
	require.NoError(t, err)
	assert.True(t, loop.Issue.Criteria[0].Completed)
	assert.True(t, loop.Issue.Criteria[1].Completed)
	assert.NotNil(t, loop.Issue.Criteria[0].CompletedBy)
	assert.Equal(t, types.CompletedByAgent, *loop.Issue.Criteria[0].CompletedBy)
	assert.NotNil(t, loop.EndedAt)

	entries, err := eng.journal.ReadAll(l.ID)
	require.NoError(t, err)
	agentLines := 0
	for _, e := range entries {
		if e.Type == types.LogEntryAgent {
			agentLines++
		}
	}
	assert.GreaterOrEqual(t, agentLines, 1)
}

// --- §8 scenario 2: pause/resume same-session ---

func TestPauseResumeSameSession(t *testing.T) {
	eng, promptFile := newTestEngine(t, "exec sleep 5")

	l, err := eng.CreateLoop(CreateParams{
		Agent:    "fake",
		Issue:    testIssue("https://example.com/acme/widgets/issues/2", "A"),
		RepoRoot: t.TempDir(),
	})
	require.NoError(t, err)
	require.NoError(t, eng.StartLoop(context.Background(), l.ID))

	require.Eventually(t, func() bool {
		_, err := os.Stat(promptFile)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, eng.PauseLoop(l.ID))
	loop, err := eng.Loop(l.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusPaused, loop.Status)
	assert.NotNil(t, loop.PausedAt)
	assert.True(t, eng.CanResumeInSession(l.ID))

	require.NoError(t, eng.ResumeLoop(context.Background(), l.ID))
	loop, err = eng.Loop(l.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusRunning, loop.Status)

	data, err := os.ReadFile(promptFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# test issue")
	assert.NotContains(t, string(data), "RESUMING FROM PAUSE")

	_ = eng.StopLoop(l.ID)
}

// --- §8 scenario 3: cross-session resume ---

func TestCrossSessionResumeSeedsPromptWithSummaryAndRemaining(t *testing.T) {
	eng, promptFile := newTestEngine(t, "exec sleep 5")

	l, err := eng.CreateLoop(CreateParams{
		Agent:    "fake",
		Issue:    testIssue("https://example.com/acme/widgets/issues/3", "A", "B"),
		RepoRoot: t.TempDir(),
	})
	require.NoError(t, err)

	require.NoError(t, eng.journal.Append(l.ID, types.LogEntryAgent, "--- Iteration 1 ---"))

	_, ok, err := eng.store.UpdateLoop(l.ID, func(loop *types.Loop) {
		loop.Status = types.StatusPaused
		loop.PausedFromPreviousSession = true
		loop.Issue.Criteria[0].Completed = true
	})
	require.NoError(t, err)
	require.True(t, ok)

	assert.False(t, eng.CanResumeInSession(l.ID))

	require.NoError(t, eng.ResumePausedLoop(context.Background(), l.ID))

	require.Eventually(t, func() bool {
		data, err := os.ReadFile(promptFile)
		return err == nil && strings.Contains(string(data), "RESUMING FROM PAUSE")
	}, 2*time.Second, 10*time.Millisecond)

	data, err := os.ReadFile(promptFile)
	require.NoError(t, err)
	prompt := string(data)
	assert.Contains(t, prompt, "RESUMING FROM PAUSE")
	assert.Contains(t, prompt, "Iterations completed: 1")
	assert.Contains(t, prompt, "1. B")
	assert.NotContains(t, prompt, "1. A")

	loop, err := eng.Loop(l.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusRunning, loop.Status)
	assert.False(t, loop.PausedFromPreviousSession)

	_ = eng.StopLoop(l.ID)
}

// --- §8 scenario 4: operator toggle never auto-completes ---

func TestOperatorToggleNeverAutoCompletes(t *testing.T) {
	eng, _ := newTestEngine(t, "exit 0")

	l, err := eng.CreateLoop(CreateParams{
		Agent:    "fake",
		Issue:    testIssue("https://example.com/acme/widgets/issues/4", "A"),
		RepoRoot: t.TempDir(),
	})
	require.NoError(t, err)

	_, ok, err := eng.store.UpdateLoop(l.ID, func(loop *types.Loop) {
		loop.Status = types.StatusRunning
	})
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, eng.SetCriterionByOperator(context.Background(), l.ID, 1, true))

	loop, err := eng.Loop(l.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusRunning, loop.Status)
	assert.True(t, loop.Issue.Criteria[0].Completed)
	require.NotNil(t, loop.Issue.Criteria[0].CompletedBy)
	assert.Equal(t, types.CompletedByOperator, *loop.Issue.Criteria[0].CompletedBy)
}

// --- §8 scenario 5: intervene ---

func TestSendInterventionWritesToStdinAndLogsOperatorEntry(t *testing.T) {
	eng, _ := newTestEngine(t, "exec cat")

	l, err := eng.CreateLoop(CreateParams{
		Agent:    "fake",
		Issue:    testIssue("https://example.com/acme/widgets/issues/5", "A"),
		RepoRoot: t.TempDir(),
	})
	require.NoError(t, err)
	require.NoError(t, eng.StartLoop(context.Background(), l.ID))

	require.Eventually(t, func() bool {
		return eng.supervisor.HasLiveProcess(l.ID)
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, eng.SendIntervention(l.ID, "switch to plan B"))

	require.Eventually(t, func() bool {
		entries, _ := eng.journal.ReadAll(l.ID)
		for _, e := range entries {
			if e.Type == types.LogEntryOperator && e.Content == "switch to plan B" {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		entries, _ := eng.journal.ReadAll(l.ID)
		for _, e := range entries {
			if e.Type == types.LogEntryAgent && strings.Contains(e.Content, "switch to plan B") {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	_ = eng.StopLoop(l.ID)
}

// --- §8 scenario 6: error + retry ---

func TestErrorThenRetryClearsEndedAtAndRetainsLog(t *testing.T) {
	// First spawn (start) fails immediately; the retry spawn sleeps so the
	// assertions below can observe the resulting Running state before the
	// process exits on its own.
	eng, _ := newTestEngine(t, "exit 1", "exec sleep 5")

	l, err := eng.CreateLoop(CreateParams{
		Agent:    "fake",
		Issue:    testIssue("https://example.com/acme/widgets/issues/6", "A"),
		RepoRoot: t.TempDir(),
	})
	require.NoError(t, err)
	require.NoError(t, eng.StartLoop(context.Background(), l.ID))

	require.Eventually(t, func() bool {
		loop, _ := eng.Loop(l.ID)
		return loop.Status == types.StatusError
	}, 2*time.Second, 10*time.Millisecond)

	loop, err := eng.Loop(l.ID)
	require.NoError(t, err)
	assert.Equal(t, "agent exited", loop.Error)
	assert.NotNil(t, loop.EndedAt)

	preRetryEntries, err := eng.journal.ReadAll(l.ID)
	require.NoError(t, err)
	require.NotEmpty(t, preRetryEntries)

	require.NoError(t, eng.RetryLoop(context.Background(), l.ID))

	loop, err = eng.Loop(l.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusRunning, loop.Status)
	assert.Nil(t, loop.EndedAt)
	assert.Equal(t, "", loop.Error)

	postRetryEntries, err := eng.journal.ReadAll(l.ID)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(postRetryEntries), len(preRetryEntries))

	_ = eng.StopLoop(l.ID)
}

// --- invariant/unit tests ---

func TestCreateLoopRejectsMissingTitle(t *testing.T) {
	eng, _ := newTestEngine(t, "exit 0")
	_, err := eng.CreateLoop(CreateParams{
		Agent:    "fake",
		Issue:    types.Issue{URL: "https://example.com/a/b/issues/1", Repo: "a/b"},
		RepoRoot: t.TempDir(),
	})
	require.Error(t, err)
	var engErr *Error
	require.ErrorAs(t, err, &engErr)
	assert.Equal(t, KindUserInput, engErr.Kind)
}

func TestCreateLoopRejectsUnknownAgent(t *testing.T) {
	eng, _ := newTestEngine(t, "exit 0")
	_, err := eng.CreateLoop(CreateParams{
		Agent:    "does-not-exist",
		Issue:    testIssue("https://example.com/a/b/issues/1", "A"),
		RepoRoot: t.TempDir(),
	})
	require.Error(t, err)
}

func TestStartLoopRejectsNonQueuedLoop(t *testing.T) {
	eng, _ := newTestEngine(t, "exit 0")
	l, err := eng.CreateLoop(CreateParams{
		Agent:    "fake",
		Issue:    testIssue("https://example.com/a/b/issues/1", "A"),
		RepoRoot: t.TempDir(),
	})
	require.NoError(t, err)
	require.NoError(t, eng.StartLoop(context.Background(), l.ID))

	err = eng.StartLoop(context.Background(), l.ID)
	require.Error(t, err)
}

func TestMarkCriterionLogsSystemEntryForSummarizer(t *testing.T) {
	eng, _ := newTestEngine(t, "exit 0")
	l, err := eng.CreateLoop(CreateParams{
		Agent:    "fake",
		Issue:    testIssue("https://example.com/a/b/issues/1", "A", "B"),
		RepoRoot: t.TempDir(),
	})
	require.NoError(t, err)
	_, _, err = eng.store.UpdateLoop(l.ID, func(loop *types.Loop) { loop.Status = types.StatusRunning })
	require.NoError(t, err)

	eng.markCriterion(l.ID, 1, true, nil)
	eng.markCriterion(l.ID, 1, false, nil)

	entries, err := eng.journal.ReadAll(l.ID)
	require.NoError(t, err)

	var texts []string
	for _, e := range entries {
		if e.Type == types.LogEntrySystem {
			texts = append(texts, e.Content)
		}
	}
	assert.Contains(t, texts, "Criterion 1 complete")
	assert.Contains(t, texts, "Criterion 1 incomplete")
}

func TestMarkCriterionIdempotentKeepsFirstTimestamp(t *testing.T) {
	eng, _ := newTestEngine(t, "exit 0")
	l, err := eng.CreateLoop(CreateParams{
		Agent:    "fake",
		Issue:    testIssue("https://example.com/a/b/issues/1", "A"),
		RepoRoot: t.TempDir(),
	})
	require.NoError(t, err)
	_, _, err = eng.store.UpdateLoop(l.ID, func(loop *types.Loop) { loop.Status = types.StatusRunning })
	require.NoError(t, err)

	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	orig := now
	now = func() time.Time { return fixed }
	defer func() { now = orig }()

	eng.markCriterion(l.ID, 1, true, nil)
	loop, err := eng.Loop(l.ID)
	require.NoError(t, err)
	require.NotNil(t, loop.Issue.Criteria[0].CompletedAt)
	assert.True(t, loop.Issue.Criteria[0].CompletedAt.Equal(fixed))

	later := fixed.Add(time.Hour)
	now = func() time.Time { return later }
	eng.markCriterion(l.ID, 1, true, nil)

	loop, err = eng.Loop(l.ID)
	require.NoError(t, err)
	assert.True(t, loop.Issue.Criteria[0].CompletedAt.Equal(fixed), "repeat completion must not update the timestamp")
}

func TestMarkCriterionOutOfRangeIsLoggedAndIgnored(t *testing.T) {
	eng, _ := newTestEngine(t, "exit 0")
	l, err := eng.CreateLoop(CreateParams{
		Agent:    "fake",
		Issue:    testIssue("https://example.com/a/b/issues/1", "A"),
		RepoRoot: t.TempDir(),
	})
	require.NoError(t, err)
	_, _, err = eng.store.UpdateLoop(l.ID, func(loop *types.Loop) { loop.Status = types.StatusRunning })
	require.NoError(t, err)

	eng.markCriterion(l.ID, 99, true, nil)

	loop, err := eng.Loop(l.ID)
	require.NoError(t, err)
	assert.False(t, loop.Issue.Criteria[0].Completed)

	entries, err := eng.journal.ReadAll(l.ID)
	require.NoError(t, err)
	found := false
	for _, e := range entries {
		if e.Type == types.LogEntrySystem && strings.Contains(e.Content, "out of range") {
			found = true
		}
	}
	assert.True(t, found)
}

func TestHandleExitDoesNotDowngradeAlreadyCompletedLoop(t *testing.T) {
	eng, _ := newTestEngine(t, "exit 0")
	l, err := eng.CreateLoop(CreateParams{
		Agent:    "fake",
		Issue:    testIssue("https://example.com/a/b/issues/1", "A"),
		RepoRoot: t.TempDir(),
	})
	require.NoError(t, err)
	_, _, err = eng.store.UpdateLoop(l.ID, func(loop *types.Loop) {
		loop.Status = types.StatusCompleted
	})
	require.NoError(t, err)

	eng.handleExit(l.ID, supervisor.ExitInfo{Reason: supervisor.ExitNatural})

	loop, err := eng.Loop(l.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, loop.Status)
}

func TestDiscardPausedLoopRequiresPreviousSession(t *testing.T) {
	eng, _ := newTestEngine(t, "exit 0")
	l, err := eng.CreateLoop(CreateParams{
		Agent:    "fake",
		Issue:    testIssue("https://example.com/a/b/issues/1", "A"),
		RepoRoot: t.TempDir(),
	})
	require.NoError(t, err)
	_, _, err = eng.store.UpdateLoop(l.ID, func(loop *types.Loop) {
		loop.Status = types.StatusPaused
	})
	require.NoError(t, err)

	err = eng.DiscardPausedLoop(l.ID)
	require.Error(t, err)

	_, _, err = eng.store.UpdateLoop(l.ID, func(loop *types.Loop) {
		loop.PausedFromPreviousSession = true
	})
	require.NoError(t, err)

	require.NoError(t, eng.DiscardPausedLoop(l.ID))
	_, err = eng.Loop(l.ID)
	require.Error(t, err)
}

func TestCloseIssueRequiresCompletedStatus(t *testing.T) {
	eng, _ := newTestEngine(t, "exit 0")
	l, err := eng.CreateLoop(CreateParams{
		Agent:    "fake",
		Issue:    testIssue("https://example.com/a/b/issues/1", "A"),
		RepoRoot: t.TempDir(),
	})
	require.NoError(t, err)

	err = eng.CloseIssue(context.Background(), l.ID, "done")
	require.Error(t, err)
}

func TestMarkOrphanedPausedLoopsFlipsDeadRunningLoop(t *testing.T) {
	eng, _ := newTestEngine(t, "exit 0")
	l, err := eng.CreateLoop(CreateParams{
		Agent:    "fake",
		Issue:    testIssue("https://example.com/a/b/issues/1", "A"),
		RepoRoot: t.TempDir(),
	})
	require.NoError(t, err)
	_, _, err = eng.store.UpdateLoop(l.ID, func(loop *types.Loop) {
		loop.Status = types.StatusRunning
		loop.PID = 999999999
	})
	require.NoError(t, err)

	count, err := eng.MarkOrphanedPausedLoops()
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	loop, err := eng.Loop(l.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusPaused, loop.Status)
	assert.True(t, loop.PausedFromPreviousSession)
}
