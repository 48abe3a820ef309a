package blockid

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/mrlokans/marginalia/internal/entities"
)

// trailingID matches an Obsidian block reference at the end of a line.
var trailingID = regexp.MustCompile(`\^([a-zA-Z0-9-]+)\s*$`)

const idLength = 8

// minReuseOverlap is how much of the smaller span must be shared
// before an existing block ID is reused instead of allocating a new one.
const minReuseOverlap = 0.5

// Index tracks the block IDs already present in a document so that
// re-running a sync reuses them instead of tagging lines twice.
type Index struct {
	taken map[string]struct{}
	lines []taggedLine
}

type taggedLine struct {
	id   string
	span entities.Span
}

// ScanDocument collects every existing block ID together with the
// span of the line it tags.
func ScanDocument(documentText string) *Index {
	ix := &Index{taken: make(map[string]struct{})}

	offset := 0
	for offset <= len(documentText) {
		end := strings.IndexByte(documentText[offset:], '\n')
		var line string
		if end < 0 {
			line = documentText[offset:]
			end = len(documentText)
		} else {
			line = documentText[offset : offset+end]
			end = offset + end
		}
		if m := trailingID.FindStringSubmatch(line); m != nil {
			id := m[1]
			ix.taken[id] = struct{}{}
			ix.lines = append(ix.lines, taggedLine{
				id:   id,
				span: entities.Span{Start: offset, End: end},
			})
		}
		offset = end + 1
	}
	return ix
}

// Lookup returns the ID of an already-tagged line covering the given
// span, if one exists. A span counts as covered when it sits inside a
// tagged line or shares most of the smaller span with it.
func (ix *Index) Lookup(span entities.Span) (string, bool) {
	for _, tl := range ix.lines {
		if tl.span.Start <= span.Start && span.End <= tl.span.End {
			return tl.id, true
		}
		if tl.span.OverlapRatio(span) >= minReuseOverlap {
			return tl.id, true
		}
	}
	return "", false
}

// Allocate derives a stable ID from the matched text and registers it
// as taken. The same text always yields the same ID; collisions with
// IDs already in the document get a numeric suffix.
func (ix *Index) Allocate(matchedText string) string {
	base := derive(matchedText)
	id := base
	for n := 2; ; n++ {
		if _, dup := ix.taken[id]; !dup {
			break
		}
		id = fmt.Sprintf("%s-%d", base, n)
	}
	ix.taken[id] = struct{}{}
	return id
}

// Register marks an ID as taken without deriving it, for IDs carried
// in from outside the document scan.
func (ix *Index) Register(id string, span entities.Span) {
	ix.taken[id] = struct{}{}
	ix.lines = append(ix.lines, taggedLine{id: id, span: span})
}

func derive(text string) string {
	norm := strings.ToLower(strings.Join(strings.Fields(text), " "))
	sum := sha256.Sum256([]byte(norm))
	return hex.EncodeToString(sum[:])[:idLength]
}
