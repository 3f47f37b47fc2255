package issue

import (
	"regexp"
	"strings"

	"github.com/loopctl/loopctl/internal/types"
)

const sectionHeader = "## Acceptance Criteria"

var checklistLine = regexp.MustCompile(`^\s*-\s*\[([ xX])\]\s*(.+?)\s*$`)

// ParseCriteria extracts a markdown checklist under "## Acceptance
// Criteria" from body, in document order.
func ParseCriteria(body string) []types.AcceptanceCriterion {
	lines := strings.Split(body, "\n")
	var out []types.AcceptanceCriterion
	inSection := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "## ") {
			inSection = trimmed == sectionHeader
			continue
		}
		if !inSection {
			continue
		}
		m := checklistLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		out = append(out, types.AcceptanceCriterion{
			Text:      m[2],
			Completed: strings.ToLower(m[1]) == "x",
		})
	}
	return out
}

// RenderCriteriaSection replaces (or appends) the "## Acceptance
// Criteria" checklist section in body with criteria, preserving
// everything else verbatim. Calling ParseCriteria on the result and
// rendering again is idempotent up to whitespace.
func RenderCriteriaSection(body string, criteria []types.AcceptanceCriterion) string {
	var section strings.Builder
	section.WriteString(sectionHeader)
	section.WriteString("\n")
	for _, c := range criteria {
		mark := " "
		if c.Completed {
			mark = "x"
		}
		section.WriteString("- [" + mark + "] " + c.Text + "\n")
	}
	rendered := strings.TrimRight(section.String(), "\n")

	lines := strings.Split(body, "\n")
	start, end := -1, -1
	for i, line := range lines {
		if strings.TrimSpace(line) == sectionHeader {
			start = i
			end = len(lines)
			for j := i + 1; j < len(lines); j++ {
				t := strings.TrimSpace(lines[j])
				if strings.HasPrefix(t, "## ") {
					end = j
					break
				}
			}
			break
		}
	}

	if start == -1 {
		trimmed := strings.TrimRight(body, "\n")
		if trimmed == "" {
			return rendered + "\n"
		}
		return trimmed + "\n\n" + rendered + "\n"
	}

	before := lines[:start]
	after := lines[end:]
	var out []string
	out = append(out, before...)
	out = append(out, strings.Split(rendered, "\n")...)
	out = append(out, after...)
	return strings.TrimRight(strings.Join(out, "\n"), "\n") + "\n"
}
