// Package adapter defines the agent adapter contract and an explicit
// registry of adapters, constructed once at engine construction time
// rather than via package-import side effects.
package adapter

import (
	"fmt"
	"os/exec"
)

// Spawn is an argv launch descriptor. Cmd/Args are passed directly to
// exec.Command — never through a shell.
type Spawn struct {
	Cmd  string
	Args []string
}

// Adapter converts prompts into launch descriptors for one agent
// back-end, recognizes that back-end's session-identifier token in its
// output, and synthesizes resume prompts. Adapters never touch the
// filesystem or engine state directly; the engine composes them.
type Adapter interface {
	// Name identifies the adapter, matching Loop.Agent.
	Name() string

	// BuildSpawnArgs constructs the argv for a fresh invocation.
	BuildSpawnArgs(prompt string, skipPermissions bool) Spawn

	// BuildContinueArgs constructs the argv to continue an existing
	// session identified by sessionID.
	BuildContinueArgs(sessionID, prompt string, skipPermissions bool) Spawn

	// ExtractSessionID scans a chunk of streamed output for this
	// adapter's session-identifier token. ok is false until the token
	// (and anything needed to delimit it) has arrived. start/end mark the
	// token's byte range within chunk, so any preceding text is still
	// emitted as output rather than silently discarded.
	ExtractSessionID(chunk []byte) (id string, start, end int, ok bool)

	// BuildResumePrompt synthesizes the prompt sent on a cross-session
	// resume. It must contain the literal marker "RESUMING FROM PAUSE"
	// (or the adapter's documented equivalent) per the resume-correctness
	// testable property.
	BuildResumePrompt(summary string, remainingCriteria []string) string

	// IsAvailable probes whether the adapter's binary is on $PATH.
	IsAvailable() bool
}

// Registry holds adapters registered by name. Construct one per engine
// instance; do not rely on package-level init() registration, which the
// design notes call out as a source of global-init-order bugs in the
// source this spec was distilled from.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register adds an adapter under its own Name().
func (r *Registry) Register(a Adapter) {
	r.adapters[a.Name()] = a
}

// Get returns the adapter registered under name.
func (r *Registry) Get(name string) (Adapter, error) {
	a, ok := r.adapters[name]
	if !ok {
		return nil, fmt.Errorf("adapter: unknown agent %q", name)
	}
	return a, nil
}

// lookPath is overridable in tests.
var lookPath = exec.LookPath

func binaryAvailable(name string) bool {
	_, err := lookPath(name)
	return err == nil
}
