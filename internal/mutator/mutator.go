package mutator

import (
	"regexp"
	"sort"
	"strings"

	"github.com/mrlokans/marginalia/internal/entities"
)

// Op is one pending edit: wrap the matched span in highlight markers,
// tag its last line with a block ID, and optionally attach a comment
// callout below it.
type Op struct {
	Span    entities.Span
	BlockID string
	Comment string
}

var trailingID = regexp.MustCompile(`\^[a-zA-Z0-9-]+\s*$`)

// Apply performs all ops on documentText and reports whether anything
// changed. Ops are applied from the highest offset down so earlier
// spans stay valid while later ones are rewritten. Every edit is
// idempotent: already-wrapped spans, already-tagged lines and
// already-present callouts are left alone, and bytes outside the
// touched lines are never rewritten.
func Apply(documentText string, ops []Op) (string, bool) {
	sorted := make([]Op, len(ops))
	copy(sorted, ops)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Span.Start > sorted[j].Span.Start
	})

	out := documentText
	changed := false
	prevStart := len(documentText) + 1

	for _, op := range sorted {
		if op.Span.End > len(out) || op.Span.Start >= op.Span.End {
			continue
		}
		// Skip ops that collide with one already applied this pass.
		if op.Span.End > prevStart {
			continue
		}
		next, did := applyOne(out, op)
		if did {
			out = next
			changed = true
		}
		prevStart = op.Span.Start
	}
	return out, changed
}

func applyOne(doc string, op Op) (string, bool) {
	lineStart := strings.LastIndexByte(doc[:op.Span.Start], '\n') + 1
	lineEnd := op.Span.End
	if i := strings.IndexByte(doc[op.Span.End:], '\n'); i >= 0 {
		lineEnd = op.Span.End + i
	} else {
		lineEnd = len(doc)
	}

	block := doc[lineStart:lineEnd]
	lines := strings.Split(block, "\n")

	changed := false
	offset := lineStart
	for i, line := range lines {
		segStart := max(op.Span.Start, offset) - offset
		segEnd := min(op.Span.End, offset+len(line)) - offset
		offset += len(line) + 1
		if segEnd <= segStart {
			continue
		}
		wrapped, did := wrapSegment(line, segStart, segEnd)
		if did {
			lines[i] = wrapped
			changed = true
		}
	}

	last := len(lines) - 1
	if !trailingID.MatchString(lines[last]) {
		lines[last] = strings.TrimRight(lines[last], " \t") + " ^" + op.BlockID
		changed = true
	}

	out := doc[:lineStart] + strings.Join(lines, "\n") + doc[lineEnd:]

	if c := strings.TrimSpace(op.Comment); c != "" {
		callout := renderCallout(c)
		tail := lineStart + len(strings.Join(lines, "\n"))
		if !strings.HasPrefix(strings.TrimLeft(out[tail:], "\n"), callout) {
			out = out[:tail] + "\n" + callout + out[tail:]
			changed = true
		}
	}

	return out, changed
}

// renderCallout formats a comment as an Obsidian note callout. Every
// line of the comment gets the quote prefix so multi-line comments do
// not spill out of the block.
func renderCallout(comment string) string {
	var b strings.Builder
	b.WriteString("> [!note] Comment")
	for _, line := range strings.Split(comment, "\n") {
		line = strings.TrimRight(line, " \t")
		if line == "" {
			b.WriteString("\n>")
			continue
		}
		b.WriteString("\n> " + line)
	}
	return b.String()
}

// wrapSegment wraps line[start:end] in highlight markers, shrinking
// the segment past leading and trailing spaces so the markers hug the
// text. Segments already enclosed in markers are left untouched.
func wrapSegment(line string, start, end int) (string, bool) {
	for start < end && line[start] == ' ' {
		start++
	}
	for end > start && line[end-1] == ' ' {
		end--
	}
	if end <= start {
		return line, false
	}
	if start >= 2 && line[start-2:start] == "==" &&
		end+2 <= len(line) && line[end:end+2] == "==" {
		return line, false
	}
	if strings.Contains(line[start:end], "==") {
		return line, false
	}
	return line[:start] + "==" + line[start:end] + "==" + line[end:], true
}
