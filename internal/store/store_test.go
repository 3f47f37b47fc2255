package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/loopctl/loopctl/internal/types"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := New(Config{DataRoot: dir})
	require.NoError(t, err)
	return s
}

func TestLoadMissingFileIsEmptyDocument(t *testing.T) {
	s := newTestStore(t)
	doc, err := s.Load()
	require.NoError(t, err)
	require.Empty(t, doc.Loops)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	s := newTestStore(t)
	doc := types.Document{Loops: []types.Loop{{ID: "a", Status: types.StatusQueued}}}
	require.NoError(t, s.Save(doc))

	got, err := s.Load()
	require.NoError(t, err)
	require.Len(t, got.Loops, 1)
	require.Equal(t, "a", got.Loops[0].ID)
}

func TestLoadCorruptedStateResetsToEmpty(t *testing.T) {
	dir := t.TempDir()
	s, err := New(Config{DataRoot: dir})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "state.json"), []byte("{not json"), 0o644))

	doc, err := s.Load()
	require.NoError(t, err)
	require.Empty(t, doc.Loops)

	// corruption must be written back, not merely masked in memory
	doc2, err := s.Load()
	require.NoError(t, err)
	require.Empty(t, doc2.Loops)
}

func TestUpdateLoopUnknownIDIsNoOp(t *testing.T) {
	s := newTestStore(t)
	_, err := s.AppendLoop(types.Loop{ID: "a"})
	require.NoError(t, err)

	_, ok, err := s.UpdateLoop("missing", func(l *types.Loop) { l.Status = types.StatusRunning })
	require.NoError(t, err)
	require.False(t, ok)
}

func TestUpdateLoopMergesPatch(t *testing.T) {
	s := newTestStore(t)
	_, err := s.AppendLoop(types.Loop{ID: "a", Status: types.StatusQueued})
	require.NoError(t, err)

	doc, ok, err := s.UpdateLoop("a", func(l *types.Loop) { l.Status = types.StatusRunning })
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, types.StatusRunning, doc.FindLoop("a").Status)
}

func TestSweepOrphansFlipsDeadRunningLoops(t *testing.T) {
	s := newTestStore(t)
	_, err := s.AppendLoop(types.Loop{ID: "a", Status: types.StatusRunning, PID: 999999})
	require.NoError(t, err)

	n, err := s.SweepOrphans()
	require.NoError(t, err)
	require.Equal(t, 1, n)

	doc, err := s.Load()
	require.NoError(t, err)
	l := doc.FindLoop("a")
	require.Equal(t, types.StatusPaused, l.Status)
	require.True(t, l.PausedFromPreviousSession)
}

func TestSweepOrphansLeavesLiveProcessAlone(t *testing.T) {
	s := newTestStore(t)
	_, err := s.AppendLoop(types.Loop{ID: "a", Status: types.StatusRunning, PID: os.Getpid()})
	require.NoError(t, err)

	n, err := s.SweepOrphans()
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestRemoveLoopDeletesFromDocument(t *testing.T) {
	s := newTestStore(t)
	_, err := s.AppendLoop(types.Loop{ID: "a"})
	require.NoError(t, err)
	_, err = s.AppendLoop(types.Loop{ID: "b"})
	require.NoError(t, err)

	require.NoError(t, s.RemoveLoop("a"))

	doc, err := s.Load()
	require.NoError(t, err)
	require.Len(t, doc.Loops, 1)
	require.Equal(t, "b", doc.Loops[0].ID)
}
