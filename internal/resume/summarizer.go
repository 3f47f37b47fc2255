// Package resume implements the resume summarizer: a pure function of a
// loop's log that produces a bounded work summary for cross-session
// resumes.
package resume

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/loopctl/loopctl/internal/types"
)

// DefaultMaxChars is the default bound on the summary string, kept
// configurable per the design notes' ambiguity callout.
const DefaultMaxChars = 2000

var (
	reIteration = regexp.MustCompile(`--- Iteration (\d+)`)
	reCriterion = regexp.MustCompile(`Criterion .* complete`)
	reAnalysis  = regexp.MustCompile(`^Analysis:.*$`)

	// verbThenPath matches "<verb> <path-with-1-5-letter-extension>".
	verbThenPath = regexp.MustCompile(
		`\b(?:created|modified|edited|wrote|updated|deleted)\s+([^\s]+\.[a-z]{1,5})\b`)
)

// Summarize builds a bounded summary string from entries (typically the
// full log for one loop, in original order).
// maxChars<=0 uses DefaultMaxChars.
func Summarize(entries []types.LogEntry, maxChars int) string {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}

	var sections []string

	if s := iterationsSection(entries); s != "" {
		sections = append(sections, s)
	}
	if s := filesTouchedSection(entries); s != "" {
		sections = append(sections, s)
	}
	if s := criteriaProgressSection(entries); s != "" {
		sections = append(sections, s)
	}
	if s := lastAnalysisSection(entries); s != "" {
		sections = append(sections, s)
	}
	if s := recentActivitySection(entries); s != "" {
		sections = append(sections, s)
	}

	joined := strings.Join(sections, "\n\n")
	return truncate(joined, maxChars)
}

func iterationsSection(entries []types.LogEntry) string {
	max := -1
	for _, e := range entries {
		m := reIteration.FindStringSubmatch(e.Content)
		if m == nil {
			continue
		}
		if n, err := strconv.Atoi(m[1]); err == nil && n > max {
			max = n
		}
	}
	if max < 0 {
		return ""
	}
	return fmt.Sprintf("Iterations completed: %d", max)
}

func filesTouchedSection(entries []types.LogEntry) string {
	seen := make(map[string]bool)
	var files []string
	for _, e := range entries {
		if e.Type != types.LogEntryAgent {
			continue
		}
		for _, m := range verbThenPath.FindAllStringSubmatch(e.Content, -1) {
			path := m[1]
			if seen[path] {
				continue
			}
			seen[path] = true
			files = append(files, path)
			if len(files) == 10 {
				break
			}
		}
		if len(files) == 10 {
			break
		}
	}
	if len(files) == 0 {
		return ""
	}
	return "Files touched:\n" + strings.Join(files, "\n")
}

func criteriaProgressSection(entries []types.LogEntry) string {
	count := 0
	for _, e := range entries {
		if e.Type != types.LogEntrySystem {
			continue
		}
		if reCriterion.MatchString(e.Content) {
			count++
		}
	}
	if count == 0 {
		return ""
	}
	return fmt.Sprintf("Criteria progress: %d updates", count)
}

func lastAnalysisSection(entries []types.LogEntry) string {
	var last string
	for _, e := range entries {
		for _, line := range strings.Split(e.Content, "\n") {
			if reAnalysis.MatchString(line) {
				last = line
			}
		}
	}
	if last == "" {
		return ""
	}
	return "Last analysis: " + strings.TrimPrefix(last, "Analysis:")
}

func recentActivitySection(entries []types.LogEntry) string {
	var agentEntries []types.LogEntry
	for _, e := range entries {
		if e.Type == types.LogEntryAgent {
			agentEntries = append(agentEntries, e)
		}
	}
	if len(agentEntries) == 0 {
		return ""
	}
	if len(agentEntries) > 5 {
		agentEntries = agentEntries[len(agentEntries)-5:]
	}

	var lines []string
	for _, e := range agentEntries {
		lines = append(lines, truncate(e.Content, 200))
	}
	joined := truncate(strings.Join(lines, "\n"), 800)
	return "Recent activity:\n" + joined
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
