package journal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/loopctl/loopctl/internal/types"
	"github.com/stretchr/testify/require"
)

func TestAppendThenReadAllIncludesEntry(t *testing.T) {
	j := New(t.TempDir())
	require.NoError(t, j.Append("loop1", types.LogEntryAgent, "hello"))

	entries, err := j.ReadAll("loop1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "hello", entries[0].Content)
	require.Equal(t, "loop1", entries[0].LoopID)
}

func TestReadAllSkipsMalformedLines(t *testing.T) {
	dir := t.TempDir()
	j := New(dir)
	require.NoError(t, j.Append("loop1", types.LogEntryAgent, "first"))

	p := filepath.Join(dir, "loop1", "log.jsonl")
	f, err := os.OpenFile(p, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("not json at all\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, j.Append("loop1", types.LogEntryAgent, "third"))

	entries, err := j.ReadAll("loop1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "first", entries[0].Content)
	require.Equal(t, "third", entries[1].Content)
}

func TestReadRecentReturnsLastNInOrder(t *testing.T) {
	j := New(t.TempDir())
	for i := 0; i < 20; i++ {
		require.NoError(t, j.Append("loop1", types.LogEntryAgent, fmt.Sprintf("line-%d", i)))
	}

	entries, err := j.ReadRecent("loop1", 3)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, "line-17", entries[0].Content)
	require.Equal(t, "line-19", entries[2].Content)
}

func TestReadRecentMissingFile(t *testing.T) {
	j := New(t.TempDir())
	entries, err := j.ReadRecent("missing", 5)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestTailDeliversCompleteRecordsInOrder(t *testing.T) {
	j := New(t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu = make(chan types.LogEntry, 10)
	stop := j.Tail(ctx, "loop1", func(e types.LogEntry) { mu <- e }, nil, 10*time.Millisecond)
	defer stop()

	require.NoError(t, j.Append("loop1", types.LogEntryAgent, "a"))
	require.NoError(t, j.Append("loop1", types.LogEntryAgent, "b"))

	var got []string
	for i := 0; i < 2; i++ {
		select {
		case e := <-mu:
			got = append(got, e.Content)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for tail delivery, got %v so far", got)
		}
	}
	require.Equal(t, []string{"a", "b"}, got)
}

func TestTailDoesNotDeliverPartialLine(t *testing.T) {
	dir := t.TempDir()
	j := New(dir)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	delivered := make(chan types.LogEntry, 10)
	stop := j.Tail(ctx, "loop1", func(e types.LogEntry) { delivered <- e }, nil, 10*time.Millisecond)
	defer stop()

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "loop1"), 0o755))
	p := filepath.Join(dir, "loop1", "log.jsonl")
	f, err := os.OpenFile(p, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"timestamp":"2024-01-01T00:00:00Z","loopId":"loop1","type":"agent","content":"partial`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	select {
	case e := <-delivered:
		t.Fatalf("expected no delivery for partial line, got %+v", e)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestTailHandlesTruncation(t *testing.T) {
	dir := t.TempDir()
	j := New(dir)
	require.NoError(t, j.Append("loop1", types.LogEntryAgent, "before-truncate"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	delivered := make(chan types.LogEntry, 10)
	stop := j.Tail(ctx, "loop1", func(e types.LogEntry) { delivered <- e }, nil, 10*time.Millisecond)
	defer stop()

	select {
	case e := <-delivered:
		require.Equal(t, "before-truncate", e.Content)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for initial delivery")
	}

	// truncate the file to simulate a fresh log
	require.NoError(t, os.WriteFile(filepath.Join(dir, "loop1", "log.jsonl"), nil, 0o644))
	require.NoError(t, j.Append("loop1", types.LogEntryAgent, "after-truncate"))

	select {
	case e := <-delivered:
		require.Equal(t, "after-truncate", e.Content)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for post-truncation delivery")
	}
}
