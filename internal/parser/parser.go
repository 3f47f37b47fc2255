// Package parser turns a raw agent output byte stream into the ordered
// semantic events the loop engine understands: criterion completion,
// task completion, session identifiers, and plain text.
package parser

import (
	"regexp"
)

// EventKind classifies a parsed Event.
type EventKind int

const (
	EventText EventKind = iota
	EventCriterionComplete
	EventCriterionIncomplete
	EventTaskComplete
	EventSessionID
)

// Event is one token or text chunk recognized in the agent's output.
type Event struct {
	Kind EventKind
	// N is the 1-indexed criterion number for Criterion{Complete,Incomplete}.
	N int
	// Text holds the literal chunk for EventText, or the session id for
	// EventSessionID.
	Text string
}

var (
	reCriterionComplete   = regexp.MustCompile(`<criterion-complete>(\d+)</criterion-complete>`)
	reCriterionIncomplete = regexp.MustCompile(`<criterion-incomplete>(\d+)</criterion-incomplete>`)
	reTaskComplete        = regexp.MustCompile(`<promise>TASK COMPLETE</promise>`)
)

// longestPrefixLen is the length of the longest literal tag this parser
// recognizes; a tail of the buffer shorter than this might still be the
// start of a split token, so it is always withheld pending more bytes.
const longestPrefixLen = len("<criterion-incomplete>999</criterion-incomplete>")

// SessionExtractor recognizes an adapter-specific session-identifier
// marker in a chunk of output. It returns the extracted id and the byte
// range it occupies (start may be > 0 if the marker isn't the first thing
// in the buffer), or ok=false if no marker is present yet.
type SessionExtractor func(buf []byte) (id string, start, end int, ok bool)

// Parser accumulates bytes across Feed calls and emits ordered Events, per
// the fixed literal-tag vocabulary in the engine's external interface. It
// buffers any unmatched tail across chunk boundaries so a token split
// mid-stream by the reader is still recognized once the rest arrives.
type Parser struct {
	buf         []byte
	sessionSeen bool
	extractSess SessionExtractor
}

// New creates a Parser. extractSession may be nil if the adapter has no
// session marker to recognize. Range validation of criterion indices
// against the loop's known criteria happens in the engine, which also
// owns logging unknown indices at system level.
func New(extractSession SessionExtractor) *Parser {
	return &Parser{extractSess: extractSession}
}

// Feed appends chunk to the internal buffer and returns every event that
// can now be determined with certainty, in order. Bytes that might still
// be a partial match for a longer token are retained for the next Feed
// call.
func (p *Parser) Feed(chunk []byte) []Event {
	p.buf = append(p.buf, chunk...)

	var events []Event
	for {
		e, consumed, ok := p.next()
		if !ok {
			break
		}
		if e != nil {
			events = append(events, *e)
		}
		p.buf = p.buf[consumed:]
	}
	return events
}

// Flush forces out any remaining buffered text as a final Text event
// (used when the stream closes, e.g. on process exit).
func (p *Parser) Flush() []Event {
	if len(p.buf) == 0 {
		return nil
	}
	text := string(p.buf)
	p.buf = nil
	return []Event{{Kind: EventText, Text: text}}
}

// next scans the buffer for the earliest recognizable token. It returns
// ok=false when the buffer is empty or ends in a sequence that might
// still be a partial token, requiring more bytes before it can be
// resolved.
func (p *Parser) next() (*Event, int, bool) {
	if len(p.buf) == 0 {
		return nil, 0, false
	}

	type match struct {
		start, end int
		build      func(m [][]byte) Event
	}

	var best *match
	consider := func(loc []int, build func(m [][]byte) Event) {
		if loc == nil {
			return
		}
		if best == nil || loc[0] < best.start {
			groups := make([][]byte, len(loc)/2)
			for i := range groups {
				groups[i] = p.buf[loc[2*i]:loc[2*i+1]]
			}
			best = &match{start: loc[0], end: loc[1], build: func([][]byte) Event { return build(groups) }}
		}
	}

	consider(reCriterionComplete.FindSubmatchIndex(p.buf), func(m [][]byte) Event {
		return Event{Kind: EventCriterionComplete, N: atoi(string(m[1]))}
	})
	consider(reCriterionIncomplete.FindSubmatchIndex(p.buf), func(m [][]byte) Event {
		return Event{Kind: EventCriterionIncomplete, N: atoi(string(m[1]))}
	})
	consider(reTaskComplete.FindIndex(p.buf), func(m [][]byte) Event {
		return Event{Kind: EventTaskComplete}
	})

	if p.extractSess != nil && !p.sessionSeen {
		if id, start, end, ok := p.extractSess(p.buf); ok {
			if id == "" {
				// The extractor gave up without finding an id (e.g. its
				// optional classifier decided this output will never carry
				// one); stop asking, but don't synthesize a bogus event.
				p.sessionSeen = true
			} else {
				consider([]int{start, end}, func(m [][]byte) Event {
					p.sessionSeen = true
					return Event{Kind: EventSessionID, Text: id}
				})
			}
		}
	}

	if best != nil {
		if best.start > 0 {
			// text precedes the token; emit it first, re-scan the token
			// on the next call once the prefix has been consumed.
			return &Event{Kind: EventText, Text: string(p.buf[:best.start])}, best.start, true
		}
		e := best.build(nil)
		return &e, best.end, true
	}

	// No token found. If the tail could be the start of a split token,
	// hold it back; otherwise the whole buffer is safe to emit as text.
	safe := len(p.buf) - longestPrefixLen
	if safe <= 0 {
		return nil, 0, false
	}
	text := string(p.buf[:safe])
	return &Event{Kind: EventText, Text: text}, safe, true
}

func atoi(s string) int {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return n
		}
		n = n*10 + int(c-'0')
	}
	return n
}
