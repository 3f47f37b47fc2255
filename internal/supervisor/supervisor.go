// Package supervisor spawns and tracks child agent processes, bridging
// their stdio to the output parser and the log journal, and enforcing
// lifecycle signals (pause/resume/stop).
package supervisor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/loopctl/loopctl/internal/adapter"
	"github.com/loopctl/loopctl/internal/parser"
	"golang.org/x/sync/errgroup"
)

// StopGracePeriod bounds how long Stop waits after terminate before kill.
const StopGracePeriod = 2 * time.Second

// ErrSignalUnsupported is returned by Pause/Resume on platforms without a
// stop/continue signal (see signal_windows.go). The engine checks for it
// with errors.Is and falls back to cross-session resume semantics.
var ErrSignalUnsupported = errors.New("supervisor: pause/resume signals unsupported on this platform")

// ExitReason classifies how a child process ended, for the engine's exit
// classification.
type ExitReason int

const (
	ExitUnknown ExitReason = iota
	ExitNatural            // process exited on its own
	ExitStopped            // engine terminated it via Stop
)

// ExitInfo is delivered once per process, after its output is fully
// drained and it has been reaped.
type ExitInfo struct {
	Reason   ExitReason
	ExitCode int
	Err      error
}

// Callbacks bridges a supervised process's output to its consumers.
type Callbacks struct {
	// OnEvent is called for every structured event the parser recognizes
	// (criterion completion, task completion, session id).
	OnEvent func(parser.Event)
	// OnText is called for every non-empty text chunk, already stripped
	// of recognized tokens.
	OnText func(string)
	// OnExit is called exactly once when the process has been reaped.
	OnExit func(ExitInfo)
}

type process struct {
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	stopped   bool // true once Stop() has been called
	mu        sync.Mutex
}

// Supervisor owns a process table keyed by loop id. It refuses to spawn a
// second process for a loop already present.
type Supervisor struct {
	mu        sync.Mutex
	processes map[string]*process
}

// New creates an empty Supervisor.
func New() *Supervisor {
	return &Supervisor{processes: make(map[string]*process)}
}

// HasLiveProcess reports whether loopID currently has an attached process
// in this supervisor instance (i.e. a same-session resume is possible).
func (s *Supervisor) HasLiveProcess(loopID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.processes[loopID]
	return ok
}

// Spawn launches spawn.Cmd/spawn.Args with cwd=repoRoot and no shell
// interpolation, wires its stdio through extractSession/p for recognized
// tokens, and streams text/events to cb. It returns an error if a process
// is already attached for loopID.
func (s *Supervisor) Spawn(ctx context.Context, loopID string, spawn adapter.Spawn, repoRoot string, extractSession parser.SessionExtractor, cb Callbacks) (pid int, err error) {
	s.mu.Lock()
	if _, exists := s.processes[loopID]; exists {
		s.mu.Unlock()
		return 0, fmt.Errorf("supervisor: loop %s already has a live process", loopID)
	}
	s.mu.Unlock()

	cmd := exec.Command(spawn.Cmd, spawn.Args...)
	cmd.Dir = repoRoot

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return 0, fmt.Errorf("supervisor: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return 0, fmt.Errorf("supervisor: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return 0, fmt.Errorf("supervisor: stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("supervisor: start %s: %w", spawn.Cmd, err)
	}

	p := &process{cmd: cmd, stdin: stdin}
	s.mu.Lock()
	s.processes[loopID] = p
	s.mu.Unlock()

	go s.drive(loopID, p, stdout, stderr, extractSession, cb)

	return cmd.Process.Pid, nil
}

// drive reads stdout and stderr concurrently, feeding both through one
// parser instance (token order across streams is not guaranteed relative
// to each other, only within each stream, matching each stream's own
// ordering guarantee), then waits for exit and classifies it.
func (s *Supervisor) drive(loopID string, p *process, stdout, stderr io.Reader, extractSession parser.SessionExtractor, cb Callbacks) {
	prs := parser.New(extractSession)
	var prsMu sync.Mutex

	feed := func(chunk []byte) {
		prsMu.Lock()
		events := prs.Feed(chunk)
		prsMu.Unlock()
		deliver(events, cb)
	}

	var eg errgroup.Group
	eg.Go(func() error { return scanInto(stdout, feed) })
	eg.Go(func() error { return scanInto(stderr, feed) })
	_ = eg.Wait()

	prsMu.Lock()
	tail := prs.Flush()
	prsMu.Unlock()
	deliver(tail, cb)

	err := p.cmd.Wait()

	s.mu.Lock()
	p.mu.Lock()
	stopped := p.stopped
	p.mu.Unlock()
	delete(s.processes, loopID)
	s.mu.Unlock()

	info := ExitInfo{Err: err}
	if stopped {
		info.Reason = ExitStopped
	} else {
		info.Reason = ExitNatural
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		info.ExitCode = exitErr.ExitCode()
	}
	if cb.OnExit != nil {
		cb.OnExit(info)
	}
}

func deliver(events []parser.Event, cb Callbacks) {
	for _, e := range events {
		if e.Kind == parser.EventText {
			if cb.OnText != nil && e.Text != "" {
				cb.OnText(e.Text)
			}
			continue
		}
		if cb.OnEvent != nil {
			cb.OnEvent(e)
		}
	}
}

func scanInto(r io.Reader, feed func([]byte)) error {
	reader := bufio.NewReaderSize(r, 64*1024)
	buf := make([]byte, 32*1024)
	for {
		n, err := reader.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			feed(chunk)
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}

// Intervene writes msg followed by a newline to the child's stdin.
func (s *Supervisor) Intervene(loopID, msg string) error {
	s.mu.Lock()
	p, ok := s.processes[loopID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("supervisor: no live process for loop %s", loopID)
	}
	_, err := p.stdin.Write([]byte(msg + "\n"))
	if err != nil {
		return fmt.Errorf("supervisor: write to stdin: %w", err)
	}
	return nil
}

// Pause sends the platform "stop" signal to loopID's process. On
// platforms without such a signal it returns ErrSignalUnsupported so the
// engine can fall back to cross-session resume semantics.
func (s *Supervisor) Pause(loopID string) error {
	s.mu.Lock()
	p, ok := s.processes[loopID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("supervisor: no live process for loop %s", loopID)
	}
	return sendStop(p.cmd)
}

// Resume sends the platform "continue" signal to loopID's process.
func (s *Supervisor) Resume(loopID string) error {
	s.mu.Lock()
	p, ok := s.processes[loopID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("supervisor: no live process for loop %s", loopID)
	}
	return sendContinue(p.cmd)
}

// Stop sends terminate and returns without waiting for the exit. If the
// process is still tracked after StopGracePeriod, a background goroutine
// kills it. The actual exit and OnExit callback happen asynchronously via
// drive's cmd.Wait.
func (s *Supervisor) Stop(loopID string) error {
	s.mu.Lock()
	p, ok := s.processes[loopID]
	s.mu.Unlock()
	if !ok {
		return nil // already gone: nothing to stop
	}

	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()

	if err := sendTerminate(p.cmd); err != nil {
		return fmt.Errorf("supervisor: terminate: %w", err)
	}

	go func() {
		time.Sleep(StopGracePeriod)
		s.mu.Lock()
		_, stillPresent := s.processes[loopID]
		s.mu.Unlock()
		if stillPresent {
			_ = p.cmd.Process.Kill()
		}
	}()
	return nil
}
