// Package landing maintains the per-book landing pages: a "Highlights
// & Annotations" section holding direct links to every synced
// highlight, grouped by edition when a work is transcribed more than
// once.
package landing

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/mrlokans/marginalia/internal/config"
	"github.com/mrlokans/marginalia/internal/entities"
)

const (
	highlightsSection = "## Highlights & Annotations"
	linksSection      = "### Direct Links to Highlights"
	legacySection     = "## Notes & Highlights"

	// staleSuffix flags retained links whose annotation no longer
	// matches any current entry.
	staleSuffix = " (stale)"
)

var (
	linkLine      = regexp.MustCompile(`^- \[\[[^\]]*#\^([a-zA-Z0-9-]+)\|`)
	editionHeader = regexp.MustCompile(`^#### (.+)$`)
)

type Updater struct {
	cfg config.Landing
}

func NewUpdater(cfg config.Landing) *Updater {
	return &Updater{cfg: cfg}
}

// Update merges entries into the direct-links section of a landing
// page and reports whether the content changed. Existing links keep
// their position; links for block IDs already present are not added
// twice, so the operation is idempotent.
func (u *Updater) Update(content string, entries []entities.LandingEntry) (string, bool) {
	out := ensureSections(content)

	bodyStart, bodyEnd := sectionBody(out)
	existing := parseBody(out[bodyStart:bodyEnd])

	merged := u.merge(existing, entries)
	rendered := renderBody(merged)

	out = out[:bodyStart] + rendered + out[bodyEnd:]
	return out, out != content
}

// group is one edition's links. A page with a single untitled group
// renders as a flat list.
type group struct {
	edition string
	lines   []string
}

type body struct {
	groups []group
}

func (b *body) find(edition string) *group {
	for i := range b.groups {
		if b.groups[i].edition == edition {
			return &b.groups[i]
		}
	}
	b.groups = append(b.groups, group{edition: edition})
	return &b.groups[len(b.groups)-1]
}

func (b *body) hasBlockID(id string) bool {
	needle := "#^" + id + "|"
	for _, g := range b.groups {
		for _, line := range g.lines {
			if strings.Contains(line, needle) {
				return true
			}
		}
	}
	return false
}

func ensureSections(content string) string {
	if !strings.Contains(content, highlightsSection) {
		block := highlightsSection + "\n\n" + linksSection + "\n"
		if strings.Contains(content, legacySection) {
			return strings.Replace(content, legacySection, block+"\n"+legacySection, 1)
		}
		return strings.TrimRight(content, "\n") + "\n\n" + block
	}
	if !strings.Contains(content, linksSection) {
		pos := strings.Index(content, highlightsSection) + len(highlightsSection)
		return content[:pos] + "\n\n" + linksSection + content[pos:]
	}
	return content
}

// sectionBody returns the byte range between the links header and the
// next "## " section (or end of file).
func sectionBody(content string) (int, int) {
	start := strings.Index(content, linksSection) + len(linksSection)
	end := strings.Index(content[start:], "\n## ")
	if end < 0 {
		return start, len(content)
	}
	return start, start + end
}

func parseBody(text string) *body {
	b := &body{}
	current := b.find("")
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if m := editionHeader.FindStringSubmatch(trimmed); m != nil {
			current = b.find(m[1])
			continue
		}
		if linkLine.MatchString(trimmed) {
			current.lines = append(current.lines, trimmed)
		}
	}
	return b
}

func (u *Updater) merge(existing *body, entries []entities.LandingEntry) *body {
	live := make(map[string]bool, len(entries))
	for _, e := range entries {
		live[e.Block.ID] = true
	}
	for i := range existing.groups {
		g := &existing.groups[i]
		var kept []string
		for _, line := range g.lines {
			m := linkLine.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			switch {
			case live[m[1]]:
				kept = append(kept, strings.TrimSuffix(line, staleSuffix))
			case u.cfg.KeepStale:
				if !strings.HasSuffix(line, staleSuffix) {
					line += staleSuffix
				}
				kept = append(kept, line)
			}
		}
		g.lines = kept
	}

	for _, e := range entries {
		if existing.hasBlockID(e.Block.ID) {
			continue
		}
		g := existing.find(e.Edition)
		g.lines = append(g.lines, u.renderLink(e))
	}

	// Collapse to a flat list when everything ended up in one group.
	var nonEmpty []group
	for _, g := range existing.groups {
		if len(g.lines) > 0 {
			nonEmpty = append(nonEmpty, g)
		}
	}
	if len(nonEmpty) == 1 {
		nonEmpty[0].edition = ""
	}
	return &body{groups: nonEmpty}
}

func (u *Updater) renderLink(e entities.LandingEntry) string {
	preview := e.Preview
	if preview == "" {
		preview = u.Preview(e.Annotation.Text)
	}
	link := fmt.Sprintf("- [[%s#^%s|%s]]", e.Block.DocumentPath, e.Block.ID, preview)
	if c := strings.Join(strings.Fields(e.Comment), " "); c != "" {
		link += ": " + c
	}
	return link
}

// Preview shortens annotation text to a single link-safe line.
func (u *Updater) Preview(text string) string {
	flat := strings.NewReplacer("[", "", "]", "", "|", " ").Replace(text)
	flat = strings.Join(strings.Fields(flat), " ")

	limit := u.cfg.PreviewLength
	if limit <= 0 || utf8.RuneCountInString(flat) <= limit {
		return flat
	}
	runes := []rune(flat)
	return strings.TrimRight(string(runes[:limit]), " ") + "..."
}

func renderBody(b *body) string {
	var sb strings.Builder
	sb.WriteString("\n")
	for _, g := range b.groups {
		if len(g.lines) == 0 {
			continue
		}
		sb.WriteString("\n")
		if g.edition != "" {
			sb.WriteString("#### " + g.edition + "\n\n")
		}
		for _, line := range g.lines {
			sb.WriteString(line + "\n")
		}
	}
	return sb.String()
}
