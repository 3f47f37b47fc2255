package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// ambiguousLineThreshold is how much unterminated output ExtractSessionID
// will buffer before asking the optional classifier whether it's worth
// continuing to wait for a newline at all.
const ambiguousLineThreshold = 4096

// StreamingJSON adapts an agent CLI that emits newline-delimited JSON
// envelopes on stdout, one of which carries a "session_id" field. Modeled
// on the Claude Code CLI's --verbose --output-format stream-json mode.
type StreamingJSON struct {
	// Binary is the executable name, e.g. "claude".
	Binary string
	// ExtraArgs are appended after the fixed flags, for variants that
	// need an extra switch (e.g. a model selector).
	ExtraArgs []string

	classifyOnce sync.Once
	classifier   *sessionClassifier
}

// classifierFor lazily constructs this adapter's optional AI classifier,
// shared across all spawns of this adapter instance.
func (a *StreamingJSON) classifierFor() *sessionClassifier {
	a.classifyOnce.Do(func() {
		a.classifier, _ = newSessionClassifier()
	})
	return a.classifier
}

var _ Adapter = (*StreamingJSON)(nil)

func (a *StreamingJSON) Name() string { return "streaming-json" }

func (a *StreamingJSON) BuildSpawnArgs(prompt string, skipPermissions bool) Spawn {
	args := []string{"--print"}
	if skipPermissions {
		args = append(args, "--dangerously-skip-permissions")
	}
	args = append(args, "--verbose", "--output-format", "stream-json")
	args = append(args, a.ExtraArgs...)
	args = append(args, prompt)
	return Spawn{Cmd: a.Binary, Args: args}
}

func (a *StreamingJSON) BuildContinueArgs(sessionID, prompt string, skipPermissions bool) Spawn {
	args := []string{"--print", "--resume", sessionID}
	if skipPermissions {
		args = append(args, "--dangerously-skip-permissions")
	}
	args = append(args, "--verbose", "--output-format", "stream-json")
	args = append(args, a.ExtraArgs...)
	args = append(args, prompt)
	return Spawn{Cmd: a.Binary, Args: args}
}

// envelope mirrors the agent's stream-json wire format enough to pull a
// session id out of a "system"-type init event.
type envelope struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
}

// ExtractSessionID checks the first line of buf for a JSON envelope
// carrying a non-empty session_id; later lines in buf are not examined,
// so a match's start is always 0. It requires a complete line (terminated
// by \n) to avoid parsing a truncated JSON object as malformed.
func (a *StreamingJSON) ExtractSessionID(buf []byte) (string, int, int, bool) {
	nl := bytes.IndexByte(buf, '\n')
	if nl < 0 {
		if len(buf) < ambiguousLineThreshold {
			return "", 0, 0, false
		}
		// A long run with no newline: either the agent's first line is an
		// unusually large envelope, or this adapter is attached to a
		// binary that doesn't speak stream-json at all. Ask the optional
		// classifier rather than buffering forever; ok=true with an empty
		// id tells the parser to stop waiting for a session marker at all.
		if c := a.classifierFor(); c != nil && !c.looksLikeSessionHeader(context.Background(), string(buf[:ambiguousLineThreshold])) {
			return "", 0, 0, true
		}
		return "", 0, 0, false
	}
	line := buf[:nl]
	var env envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return "", 0, nl + 1, false
	}
	if env.SessionID == "" {
		return "", 0, nl + 1, false
	}
	return env.SessionID, 0, nl + 1, true
}

func (a *StreamingJSON) BuildResumePrompt(summary string, remainingCriteria []string) string {
	return buildResumePrompt(summary, remainingCriteria)
}

func (a *StreamingJSON) IsAvailable() bool {
	return binaryAvailable(a.Binary)
}

// buildResumePrompt is shared by both adapters so the "RESUMING FROM
// PAUSE" marker and criteria rendering stay in lockstep regardless of
// which adapter produced the prompt.
func buildResumePrompt(summary string, remainingCriteria []string) string {
	var b bytes.Buffer
	b.WriteString("RESUMING FROM PAUSE\n\n")
	if summary != "" {
		b.WriteString("Summary of prior work:\n")
		b.WriteString(summary)
		b.WriteString("\n\n")
	}
	b.WriteString("Remaining acceptance criteria:\n")
	for i, c := range remainingCriteria {
		fmt.Fprintf(&b, "%d. %s\n", i+1, c)
	}
	return b.String()
}
