// Package store implements the persistent state document: a single JSON
// file holding every loop, guarded by a process-local mutex, with a
// best-effort startup orphan sweep.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/loopctl/loopctl/internal/types"
)

// Config controls where the store keeps its files on disk.
type Config struct {
	// DataRoot is the directory containing state.json and loops/.
	DataRoot string
}

// DefaultConfig returns a Config rooted at ".vc" in the current directory,
// a dotted project-local data dir.
func DefaultConfig() Config {
	return Config{DataRoot: ".vc"}
}

func (c Config) statePath() string {
	return filepath.Join(c.DataRoot, "state.json")
}

// Store owns the single state.json document and serializes all mutation
// through one writer mutex, per the read-modify-write-full-document
// contract.
type Store struct {
	cfg Config
	mu  sync.Mutex
}

// New creates a Store and ensures its data root exists.
func New(cfg Config) (*Store, error) {
	if cfg.DataRoot == "" {
		return nil, fmt.Errorf("store: data root is required")
	}
	if err := os.MkdirAll(filepath.Join(cfg.DataRoot, "loops"), 0o755); err != nil {
		return nil, fmt.Errorf("store: create data root: %w", err)
	}
	return &Store{cfg: cfg}, nil
}

// Load reads the state document. A missing file is an empty document. A
// document that fails to parse is treated as StateCorruption: it is
// discarded in favor of an empty document, which is written back so the
// corrupt bytes are not observed again. The engine never crashes on
// corrupted state.
func (s *Store) Load() (types.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *Store) loadLocked() (types.Document, error) {
	data, err := os.ReadFile(s.cfg.statePath())
	if os.IsNotExist(err) {
		return types.Document{}, nil
	}
	if err != nil {
		return types.Document{}, fmt.Errorf("store: read state: %w", err)
	}

	var doc types.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		empty := types.Document{}
		if werr := s.saveLocked(empty); werr != nil {
			return types.Document{}, fmt.Errorf("store: state corrupted and reset failed: %w", werr)
		}
		return empty, nil
	}
	return doc, nil
}

// Save writes doc as the full state document, replacing whatever was
// there before.
func (s *Store) Save(doc types.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(doc)
}

func (s *Store) saveLocked(doc types.Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("store: marshal state: %w", err)
	}
	tmp := s.cfg.statePath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("store: write state: %w", err)
	}
	if err := os.Rename(tmp, s.cfg.statePath()); err != nil {
		return fmt.Errorf("store: commit state: %w", err)
	}
	return nil
}

// UpdateLoop shallow-merges patch into the loop matching id and persists
// the full document. Unknown ids are no-ops; callers detect this via the
// returned bool.
func (s *Store) UpdateLoop(id string, patch func(*types.Loop)) (types.Document, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.loadLocked()
	if err != nil {
		return doc, false, err
	}
	loop := doc.FindLoop(id)
	if loop == nil {
		return doc, false, nil
	}
	patch(loop)
	if err := s.saveLocked(doc); err != nil {
		return doc, false, err
	}
	return doc, true, nil
}

// AppendLoop adds a new loop to the document and persists it.
func (s *Store) AppendLoop(l types.Loop) (types.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.loadLocked()
	if err != nil {
		return doc, err
	}
	doc.Loops = append(doc.Loops, l)
	if err := s.saveLocked(doc); err != nil {
		return doc, err
	}
	return doc, nil
}

// RemoveLoop deletes the loop with the given id from the document and its
// journal directory. Used by discard of a previous-session paused loop.
func (s *Store) RemoveLoop(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.loadLocked()
	if err != nil {
		return err
	}
	out := doc.Loops[:0]
	for _, l := range doc.Loops {
		if l.ID != id {
			out = append(out, l)
		}
	}
	doc.Loops = out
	if err := s.saveLocked(doc); err != nil {
		return err
	}
	return os.RemoveAll(filepath.Join(s.cfg.DataRoot, "loops", id))
}

// LoopDir returns the journal directory for a loop id.
func (s *Store) LoopDir(id string) string {
	return filepath.Join(s.cfg.DataRoot, "loops", id)
}

// IsProcessAlive probes whether pid still refers to a live process. Used
// by the orphan sweep. On Windows, where signal 0 isn't available, a pid
// that os.FindProcess can open counts as alive.
func IsProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return signalZero(proc) == nil
}

// SweepOrphans flips every loop in running/paused with no live pid to
// paused+pausedFromPreviousSession, per the §4.1 orphan sweep. Returns the
// count of loops flipped, for UI notification.
func (s *Store) SweepOrphans() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.loadLocked()
	if err != nil {
		return 0, err
	}

	count := 0
	for i := range doc.Loops {
		l := &doc.Loops[i]
		if l.Status != types.StatusRunning && l.Status != types.StatusPaused {
			continue
		}
		if IsProcessAlive(l.PID) {
			continue
		}
		l.Status = types.StatusPaused
		l.PausedFromPreviousSession = true
		count++
	}
	if count > 0 {
		if err := s.saveLocked(doc); err != nil {
			return 0, err
		}
	}
	return count, nil
}
