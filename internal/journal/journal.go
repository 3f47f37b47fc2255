// Package journal implements the per-loop append-only log: Append,
// ReadAll, ReadRecent, and a polling Tail.
package journal

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/loopctl/loopctl/internal/types"
)

// DefaultPollInterval is the documented default tailer poll period.
const DefaultPollInterval = 250 * time.Millisecond

// Journal appends and reads per-loop log files rooted under dir.
type Journal struct {
	dir string
	mu  sync.Mutex
}

// New creates a Journal rooted at dir (typically Store.LoopDir's parent,
// "<dataRoot>/loops").
func New(dir string) *Journal {
	return &Journal{dir: dir}
}

func (j *Journal) path(loopID string) string {
	return filepath.Join(j.dir, loopID, "log.jsonl")
}

// Append stamps entry with the current time and loopID, then appends it
// as a single line. One write per call amortizes ordering without an
// fsync contract.
func (j *Journal) Append(loopID string, entryType types.LogEntryType, content string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	p := j.path(loopID)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("journal: create loop dir: %w", err)
	}

	entry := types.LogEntry{
		Timestamp: time.Now().UTC(),
		LoopID:    loopID,
		Type:      entryType,
		Content:   content,
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("journal: marshal entry: %w", err)
	}
	line = append(line, '\n')

	f, err := os.OpenFile(p, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("journal: open %s: %w", p, err)
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("journal: append: %w", err)
	}
	return nil
}

// ReadAll streams every well-formed record for loopID in file order.
// Malformed lines are silently skipped (LogMalformed, per the error
// handling design).
func (j *Journal) ReadAll(loopID string) ([]types.LogEntry, error) {
	f, err := os.Open(j.path(loopID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", loopID, err)
	}
	defer f.Close()

	var out []types.LogEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var e types.LogEntry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// ReadRecent returns up to the last N entries in original order, reading
// only the tail of the file: min(fileSize, 500*N) bytes.
func (j *Journal) ReadRecent(loopID string, n int) ([]types.LogEntry, error) {
	if n <= 0 {
		return nil, nil
	}
	p := j.path(loopID)
	f, err := os.Open(p)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", loopID, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("journal: stat %s: %w", loopID, err)
	}

	want := int64(500 * n)
	size := info.Size()
	readFrom := int64(0)
	if size > want {
		readFrom = size - want
	}
	if _, err := f.Seek(readFrom, 0); err != nil {
		return nil, fmt.Errorf("journal: seek %s: %w", loopID, err)
	}

	buf := make([]byte, size-readFrom)
	if _, err := f.Read(buf); err != nil && err.Error() != "EOF" {
		// best effort: a short read still yields whatever lines are complete
	}

	lines := bytes.Split(buf, []byte("\n"))
	if readFrom > 0 && len(lines) > 0 {
		// discard the leading partial line introduced by seeking mid-file
		lines = lines[1:]
	}

	var all []types.LogEntry
	for _, line := range lines {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		var e types.LogEntry
		if err := json.Unmarshal(line, &e); err != nil {
			continue
		}
		all = append(all, e)
	}

	if len(all) > n {
		all = all[len(all)-n:]
	}
	return all, nil
}

// CancelFunc stops a running Tail. It is safe to call more than once.
type CancelFunc func()

// Tail polls loopID's log file for new content and delivers complete
// records to onEntry as they appear, in order. A partial trailing line is
// buffered across ticks and never delivered until a newline completes it.
// If the file shrinks since the last observed offset, that is treated as
// truncation: the offset and buffer are reset and the next tick rereads the
// file from its start. A missing file is not an error — it is simply polled again.
//
// pollMs<=0 uses DefaultPollInterval. onError, if non-nil, receives
// per-tick read/parse failures; it is never called for a missing file.
func (j *Journal) Tail(ctx context.Context, loopID string, onEntry func(types.LogEntry), onError func(error), pollMs time.Duration) CancelFunc {
	if pollMs <= 0 {
		pollMs = DefaultPollInterval
	}

	tailCtx, cancel := context.WithCancel(ctx)
	go func() {
		var offset int64
		var partial []byte

		timer := time.NewTimer(pollMs)
		defer timer.Stop()

		for {
			select {
			case <-tailCtx.Done():
				return
			case <-timer.C:
				j.tick(loopID, &offset, &partial, onEntry, onError)
				timer.Reset(pollMs)
			}
		}
	}()

	return func() { cancel() }
}

func (j *Journal) tick(loopID string, offset *int64, partial *[]byte, onEntry func(types.LogEntry), onError func(error)) {
	p := j.path(loopID)
	f, err := os.Open(p)
	if os.IsNotExist(err) {
		return
	}
	if err != nil {
		if onError != nil {
			onError(fmt.Errorf("journal: tail open %s: %w", loopID, err))
		}
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		if onError != nil {
			onError(fmt.Errorf("journal: tail stat %s: %w", loopID, err))
		}
		return
	}
	size := info.Size()

	if size < *offset {
		// truncation: reread from the start of the file on the next tick
		*offset = 0
		*partial = nil
		return
	}
	if size == *offset {
		return
	}

	if _, err := f.Seek(*offset, 0); err != nil {
		if onError != nil {
			onError(fmt.Errorf("journal: tail seek %s: %w", loopID, err))
		}
		return
	}

	delta := make([]byte, size-*offset)
	read, err := f.Read(delta)
	if err != nil && read == 0 {
		if onError != nil {
			onError(fmt.Errorf("journal: tail read %s: %w", loopID, err))
		}
		return
	}
	delta = delta[:read]
	*offset += int64(read)

	*partial = append(*partial, delta...)
	lines := bytes.Split(*partial, []byte("\n"))
	// the last element is either empty (delta ended on \n) or a partial line
	*partial = lines[len(lines)-1]
	lines = lines[:len(lines)-1]

	for _, line := range lines {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		var e types.LogEntry
		if err := json.Unmarshal(line, &e); err != nil {
			// LogMalformed: skip silently
			continue
		}
		onEntry(e)
	}
}
