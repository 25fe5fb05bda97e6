package transcript

import "strings"

// Speaker roles carried on transcript fragments.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Line is one stable transcript line for display.
type Line struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// Fragment is one raw transcript piece as delivered by the backend. The
// stream is noisy: fragments may repeat, grow progressively, or continue a
// previous fragment from an arbitrary split point.
type Fragment struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// Merger folds a stream of transcript fragments into a minimal ordered set
// of lines. The same merge rule is used for live streaming fragments and
// for rebuilding a persisted transcript, so both paths converge to the
// same output for the same fragment sequence.
type Merger struct {
	lines []Line
}

// NewMerger creates an empty merger.
func NewMerger() *Merger {
	return &Merger{}
}

// Add merges one fragment. It returns the affected line and true when the
// visible transcript changed (a line was appended or its text updated).
// Empty fragments (after normalization) and role-switch duplicates are
// discarded.
func (m *Merger) Add(role, text string) (Line, bool) {
	text = Normalize(text)
	if text == "" {
		return Line{}, false
	}

	if len(m.lines) == 0 {
		line := Line{Role: role, Text: text}
		m.lines = append(m.lines, line)
		return line, true
	}

	last := &m.lines[len(m.lines)-1]

	if last.Role == role {
		merged := MergeTexts(last.Text, text)
		if merged == last.Text {
			return *last, false
		}
		last.Text = merged
		return *last, true
	}

	// Role switch. The backend occasionally re-attributes the same
	// utterance to the other speaker; suppress exact duplicates.
	if last.Text == text {
		return *last, false
	}

	line := Line{Role: role, Text: text}
	m.lines = append(m.lines, line)
	return line, true
}

// Lines returns a copy of the merged lines.
func (m *Merger) Lines() []Line {
	out := make([]Line, len(m.lines))
	copy(out, m.lines)
	return out
}

// Len returns the number of merged lines.
func (m *Merger) Len() int {
	return len(m.lines)
}

// Reset discards all lines. Called at call start.
func (m *Merger) Reset() {
	m.lines = nil
}

// Rebuild folds a persisted fragment sequence through the merge rule,
// producing the same lines the live stream would have produced.
func Rebuild(fragments []Fragment) []Line {
	m := NewMerger()
	for _, f := range fragments {
		m.Add(f.Role, f.Text)
	}
	return m.Lines()
}

// Normalize collapses runs of whitespace to a single space and trims.
func Normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Join-point character classes for disjoint continuations: no space is
// inserted before closing punctuation, and none after an opener or hyphen.
const (
	noSpaceBefore = ".,!?;:)]}"
	noSpaceAfter  = "([{-"
)

// MergeTexts combines the previous line text with an incoming fragment from
// the same speaker:
//   - identical incoming → unchanged
//   - incoming extends prev → incoming (progressive full-string update)
//   - prev extends incoming → prev (ignore regressive partial)
//   - incoming contains prev and is longer → incoming
//   - otherwise → concatenation, space-joined unless the join point touches
//     punctuation
func MergeTexts(prev, incoming string) string {
	switch {
	case incoming == prev:
		return prev
	case strings.HasPrefix(incoming, prev):
		return incoming
	case strings.HasPrefix(prev, incoming):
		return prev
	case len(incoming) > len(prev) && strings.Contains(incoming, prev):
		return incoming
	}

	if strings.ContainsAny(incoming[:1], noSpaceBefore) ||
		strings.ContainsAny(prev[len(prev)-1:], noSpaceAfter) {
		return prev + incoming
	}
	return prev + " " + incoming
}
