package issue

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/loopctl/loopctl/internal/types"
	"golang.org/x/time/rate"
)

// HTTPTrackerConfig configures an HTTPTracker.
type HTTPTrackerConfig struct {
	Client *http.Client
	// RateLimit bounds requests per second against the external tracker,
	// guarding against retry storms.
	RateLimit rate.Limit
	Burst     int
}

// DefaultHTTPTrackerConfig returns sane defaults: 5 req/s, burst 5, and
// an http.Client whose 30s Timeout bounds every request. A caller's
// context can impose a shorter deadline per call.
func DefaultHTTPTrackerConfig() HTTPTrackerConfig {
	return HTTPTrackerConfig{
		Client:    &http.Client{Timeout: 30 * time.Second},
		RateLimit: 5,
		Burst:     5,
	}
}

// HTTPTracker is a minimal reference Tracker implementation against a
// generic REST-ish issue API. It exists to exercise the Tracker interface
// end to end in tests; a production deployment supplies its own
// implementation for its actual issue-tracking product.
type HTTPTracker struct {
	client  *http.Client
	limiter *rate.Limiter
}

var _ Tracker = (*HTTPTracker)(nil)

// NewHTTPTracker creates an HTTPTracker from cfg.
func NewHTTPTracker(cfg HTTPTrackerConfig) *HTTPTracker {
	client := cfg.Client
	if client == nil {
		client = http.DefaultClient
	}
	limit := cfg.RateLimit
	if limit <= 0 {
		limit = 5
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 5
	}
	return &HTTPTracker{client: client, limiter: rate.NewLimiter(limit, burst)}
}

func (t *HTTPTracker) wait(ctx context.Context) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("issue: rate limiter: %w", err)
	}
	return nil
}

// ParseURL splits a URL of the form https://host/org/repo/issues/123 into
// its repo ("org/repo") and issue number.
func (t *HTTPTracker) ParseURL(raw string) (string, int, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", 0, fmt.Errorf("issue: malformed url %q: %w", raw, err)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 4 || parts[2] != "issues" {
		return "", 0, fmt.Errorf("issue: url %q does not match <org>/<repo>/issues/<n>", raw)
	}
	n, err := strconv.Atoi(parts[3])
	if err != nil {
		return "", 0, fmt.Errorf("issue: url %q has a non-numeric issue number: %w", raw, err)
	}
	return parts[0] + "/" + parts[1], n, nil
}

func (t *HTTPTracker) Fetch(ctx context.Context, rawURL string) (types.Issue, error) {
	if err := t.wait(ctx); err != nil {
		return types.Issue{}, err
	}
	repo, number, err := t.ParseURL(rawURL)
	if err != nil {
		return types.Issue{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return types.Issue{}, fmt.Errorf("issue: build request: %w", err)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return types.Issue{}, fmt.Errorf("issue: fetch %q: %w", rawURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return types.Issue{}, fmt.Errorf("issue: read response: %w", err)
	}

	issue := types.Issue{URL: rawURL, Repo: repo, Number: number, Body: string(body)}
	issue.Criteria = ParseCriteria(issue.Body)
	issue.OriginalAC = append([]types.AcceptanceCriterion(nil), issue.Criteria...)
	return issue, nil
}

func (t *HTTPTracker) ApplyCriteriaToBody(body string, criteria []types.AcceptanceCriterion) (string, error) {
	return RenderCriteriaSection(body, criteria), nil
}

func (t *HTTPTracker) UpdateBody(ctx context.Context, rawURL, body string) error {
	if err := t.wait(ctx); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, rawURL, strings.NewReader(body))
	if err != nil {
		return fmt.Errorf("issue: build update request: %w", err)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("issue: update %q: %w", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("issue: update %q: status %d", rawURL, resp.StatusCode)
	}
	return nil
}

func (t *HTTPTracker) Close(ctx context.Context, rawURL, comment string) (CloseResult, error) {
	if err := t.wait(ctx); err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL+"/close", strings.NewReader(comment))
	if err != nil {
		return "", fmt.Errorf("issue: build close request: %w", err)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("issue: close %q: %w", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusConflict {
		return AlreadyClosed, nil
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("issue: close %q: status %d", rawURL, resp.StatusCode)
	}
	return Closed, nil
}
