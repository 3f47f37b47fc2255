package control

import (
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/tidwall/gjson"
)

// Client sends Commands to a running vcd process over its control socket.
type Client struct {
	socketPath string
	timeout    time.Duration
}

// NewClient creates a Client bound to socketPath.
func NewClient(socketPath string) *Client {
	return &Client{socketPath: socketPath, timeout: 10 * time.Second}
}

// SetTimeout overrides the default 10s per-command timeout.
func (c *Client) SetTimeout(d time.Duration) {
	c.timeout = d
}

// Send delivers cmd and returns the decoded Response.
func (c *Client) Send(cmd Command) (*Response, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("connect to vc (is a loop process running?): %w", err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
		return nil, fmt.Errorf("set deadline: %w", err)
	}
	if cmd.Timestamp.IsZero() {
		cmd.Timestamp = time.Now()
	}
	if err := json.NewEncoder(conn).Encode(cmd); err != nil {
		return nil, fmt.Errorf("send command: %w", err)
	}

	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if !resp.Success {
		return &resp, fmt.Errorf("%s", resp.Error)
	}
	return &resp, nil
}

// Result wraps a successful Response's Data for gjson-based field
// access, so callers that only need one or two fields (a status string,
// a PID) don't need a matching Go struct for every command.
type Result struct {
	gjson.Result
}

func (c *Client) do(cmd Command) (Result, error) {
	resp, err := c.Send(cmd)
	if err != nil {
		return Result{}, err
	}
	return Result{gjson.ParseBytes(resp.Data)}, nil
}

// Create asks the running process to register a new loop.
func (c *Client) Create(agent, repoRoot string, issue json.RawMessage, skipPermissions bool) (Result, error) {
	return c.do(Command{Type: "create", Agent: agent, RepoRoot: repoRoot, Issue: issue, SkipPerms: skipPermissions})
}

// Start begins a queued loop's first spawn.
func (c *Client) Start(loopID string) (Result, error) {
	return c.do(Command{Type: "start", LoopID: loopID})
}

// Pause suspends a running loop's process.
func (c *Client) Pause(loopID string) (Result, error) {
	return c.do(Command{Type: "pause", LoopID: loopID})
}

// Resume continues a paused loop, same-session or cross-session as
// appropriate.
func (c *Client) Resume(loopID string) (Result, error) {
	return c.do(Command{Type: "resume", LoopID: loopID})
}

// Stop terminates a loop's process and marks it stopped.
func (c *Client) Stop(loopID string) (Result, error) {
	return c.do(Command{Type: "stop", LoopID: loopID})
}

// Retry respawns an error/stopped loop from a resume-style prompt.
func (c *Client) Retry(loopID string) (Result, error) {
	return c.do(Command{Type: "retry", LoopID: loopID})
}

// Intervene writes message to a running loop's process stdin.
func (c *Client) Intervene(loopID, message string) (Result, error) {
	return c.do(Command{Type: "intervene", LoopID: loopID, Message: message})
}

// Discard removes an orphaned paused loop without resuming it.
func (c *Client) Discard(loopID string) (Result, error) {
	return c.do(Command{Type: "discard", LoopID: loopID})
}

// SetCriterion applies an operator-driven acceptance-criterion toggle.
func (c *Client) SetCriterion(loopID string, n int, completed bool) (Result, error) {
	return c.do(Command{Type: "setCriterion", LoopID: loopID, N: n, Completed: completed})
}

// CloseIssue closes the tracked issue for a completed loop.
func (c *Client) CloseIssue(loopID, comment string) (Result, error) {
	return c.do(Command{Type: "closeIssue", LoopID: loopID, Message: comment})
}

// MarkOrphans sweeps dead running loops into paused-from-previous-session.
func (c *Client) MarkOrphans() (Result, error) {
	return c.do(Command{Type: "markOrphans"})
}

// Status returns one loop (loopID non-empty) or the full document.
func (c *Client) Status(loopID string) (Result, error) {
	return c.do(Command{Type: "status", LoopID: loopID})
}
