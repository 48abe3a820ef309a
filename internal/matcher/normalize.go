package matcher

import (
	"sort"
	"strings"
	"unicode"

	"github.com/mrlokans/marginalia/internal/entities"
)

// Characters that carry markdown formatting rather than content. They
// are dropped from the canonical form so that "*emphasized*" in a
// transcription still matches the plain text captured by a reader.
const formattingRunes = "*_`~#>"

// smartPunct folds typographic punctuation to its ASCII form so that
// curly quotes, long dashes and ellipses produced by OCR or e-reader
// firmware compare equal to their plain counterparts.
var smartPunct = map[rune]string{
	'‘': "'",
	'’': "'",
	'‚': "'",
	'“': `"`,
	'”': `"`,
	'„': `"`,
	'–': "-",
	'—': "-",
	'…': "...",
}

// normDoc is the canonical form of a text along with a byte-level map
// back to the original, so matches found in canonical space can be
// reported as spans of the untouched document.
type normDoc struct {
	text string
	// starts[i] is the original byte offset of the source rune that
	// produced text[i]; ends[i] is the offset just past that rune.
	starts []int
	ends   []int
}

// canon returns the canonical matching form of s. The same
// normalization is applied to annotation text and document text, which
// is what makes exact matching tolerant of whitespace and punctuation
// drift.
func canon(s string) string {
	return normalizeIndexed(s).text
}

// normalizeIndexed builds the canonical form of s:
//   - whitespace runs collapse to a single space
//   - smart punctuation folds to ASCII
//   - markdown formatting characters are dropped
//   - "==" highlight markers and trailing "^blockid" tokens are
//     dropped, so already-annotated documents still match
func normalizeIndexed(s string) *normDoc {
	var (
		b      strings.Builder
		starts []int
		ends   []int
	)

	emit := func(out string, start, end int) {
		for k := 0; k < len(out); k++ {
			starts = append(starts, start)
			ends = append(ends, end)
		}
		b.WriteString(out)
	}

	runes := []rune(s)
	offsets := make([]int, len(runes)+1)
	{
		off := 0
		for i, r := range runes {
			offsets[i] = off
			off += len(string(r))
		}
		offsets[len(runes)] = off
	}

	pendingSpace := false
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		start, end := offsets[i], offsets[i+1]

		switch {
		case unicode.IsSpace(r) || r == ' ':
			pendingSpace = true
			continue
		case r == '=' && i+1 < len(runes) && runes[i+1] == '=':
			// highlight marker, skip the whole run
			for i+1 < len(runes) && runes[i+1] == '=' {
				i++
			}
			continue
		case r == '^' && (i == 0 || unicode.IsSpace(runes[i-1])) && i+1 < len(runes) && isAlnum(runes[i+1]):
			// block reference token, skip id characters too
			for i+1 < len(runes) && isAlnum(runes[i+1]) {
				i++
			}
			// the space that introduced the token is swallowed with it
			pendingSpace = false
			continue
		case strings.ContainsRune(formattingRunes, r):
			continue
		}

		if pendingSpace {
			if b.Len() > 0 {
				emit(" ", start, start)
			}
			pendingSpace = false
		}

		if folded, ok := smartPunct[r]; ok {
			emit(folded, start, end)
		} else {
			emit(string(r), start, end)
		}
	}

	return &normDoc{text: b.String(), starts: starts, ends: ends}
}

func isAlnum(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// span maps the half-open canonical range [i, j) back to original byte
// offsets, trimming canonical-space padding at both edges.
func (d *normDoc) span(i, j int) entities.Span {
	for i < j && d.text[i] == ' ' {
		i++
	}
	for j > i && d.text[j-1] == ' ' {
		j--
	}
	if i >= j {
		return entities.Span{}
	}
	return entities.Span{Start: d.starts[i], End: d.ends[j-1]}
}

// rangeFor returns the canonical byte range produced by original bytes
// in [origStart, origEnd). Used to slice the canonical text along the
// original document's line structure.
func (d *normDoc) rangeFor(origStart, origEnd int) (int, int) {
	lo := sort.SearchInts(d.starts, origStart)
	hi := lo + sort.SearchInts(d.starts[lo:], origEnd)
	return lo, hi
}
