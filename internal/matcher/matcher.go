package matcher

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"

	"github.com/mrlokans/marginalia/internal/config"
	"github.com/mrlokans/marginalia/internal/entities"
)

// Matcher locates the best-matching span for an annotation's text
// inside a document. Strategies are tried in order - exact, fuzzy,
// partial - and the first one to clear its acceptance threshold wins.
// Ambiguous and low-confidence candidates are rejected: a false
// negative is recoverable, a wrong highlight corrupts the document.
type Matcher struct {
	cfg config.Matching
}

func New(cfg config.Matching) *Matcher {
	return &Matcher{cfg: cfg}
}

// Document is a pre-processed document ready for repeated matching.
// Preparing once per document amortizes normalization across a whole
// annotation batch.
type Document struct {
	text    string
	norm    *normDoc
	windows []window
}

// window is a candidate region for fuzzy scoring: a single non-blank
// line, or a whole multi-line paragraph.
type window struct {
	normStart int
	normEnd   int
}

func (d *Document) windowText(w window) string {
	return d.norm.text[w.normStart:w.normEnd]
}

// Prepare normalizes the document and slices it into candidate
// windows (lines and paragraphs).
func (m *Matcher) Prepare(documentText string) *Document {
	doc := &Document{
		text: documentText,
		norm: normalizeIndexed(documentText),
	}

	lineStart := 0
	paraStart := -1 // original offset of current paragraph, -1 when outside one
	lastLineEnd := 0

	flushPara := func(end int) {
		if paraStart < 0 {
			return
		}
		lo, hi := doc.norm.rangeFor(paraStart, end)
		w := window{normStart: lo, normEnd: hi}
		// A single-line paragraph is already covered by its line window.
		if hi > lo && (len(doc.windows) == 0 || doc.windows[len(doc.windows)-1] != w) {
			doc.windows = append(doc.windows, w)
		}
		paraStart = -1
	}

	addLine := func(start, end int) {
		line := documentText[start:end]
		if strings.TrimSpace(line) == "" {
			flushPara(lastLineEnd)
			return
		}
		lo, hi := doc.norm.rangeFor(start, end)
		if hi > lo {
			doc.windows = append(doc.windows, window{normStart: lo, normEnd: hi})
		}
		if paraStart < 0 {
			paraStart = start
		}
		lastLineEnd = end
	}

	for i := 0; i < len(documentText); i++ {
		if documentText[i] == '\n' {
			addLine(lineStart, i)
			lineStart = i + 1
		}
	}
	addLine(lineStart, len(documentText))
	flushPara(lastLineEnd)

	return doc
}

// Match resolves annotationText against documentText. Shorthand for
// Prepare + MatchIn when only a single annotation is being matched.
func (m *Matcher) Match(annotationText, documentText string) entities.MatchResult {
	return m.MatchIn(m.Prepare(documentText), annotationText)
}

// MatchIn resolves one annotation against a prepared document.
func (m *Matcher) MatchIn(doc *Document, annotationText string) entities.MatchResult {
	ann := strings.TrimSpace(canon(annotationText))

	if utf8.RuneCountInString(ann) < m.cfg.MinMatchLength {
		return entities.MatchResult{Strategy: entities.MatchNone}
	}

	if res, ok := m.matchExact(doc, ann); ok {
		return res
	}
	if res, ok := m.matchFuzzy(doc, ann); ok {
		return res
	}
	if res, ok := m.matchPartial(doc, ann); ok {
		return res
	}
	return entities.MatchResult{Strategy: entities.MatchNone}
}

func (m *Matcher) matchExact(doc *Document, ann string) (entities.MatchResult, bool) {
	idx := strings.Index(doc.norm.text, ann)
	if idx < 0 {
		return entities.MatchResult{}, false
	}
	span := doc.norm.span(idx, idx+len(ann))
	return entities.MatchResult{
		Strategy:    entities.MatchExact,
		Confidence:  1.0,
		Span:        span,
		MatchedText: doc.text[span.Start:span.End],
	}, true
}

func (m *Matcher) matchFuzzy(doc *Document, ann string) (entities.MatchResult, bool) {
	w, score, ok := m.bestWindow(doc, ann, m.cfg.FuzzyThreshold)
	if !ok {
		return entities.MatchResult{}, false
	}
	span := doc.norm.span(w.normStart, w.normEnd)
	return entities.MatchResult{
		Strategy:    entities.MatchFuzzy,
		Confidence:  score,
		Span:        span,
		MatchedText: doc.text[span.Start:span.End],
	}, true
}

// matchPartial anchors a long annotation by its leading or trailing
// token run, for transcriptions that truncate or reflow long quotes.
// The probe must clear the stricter PartialThreshold.
func (m *Matcher) matchPartial(doc *Document, ann string) (entities.MatchResult, bool) {
	tokens := strings.Fields(ann)
	if len(tokens) < m.cfg.MinPartialTokens || m.cfg.PartialTokens <= 0 {
		return entities.MatchResult{}, false
	}

	lead := strings.Join(tokens[:m.cfg.PartialTokens], " ")
	trail := strings.Join(tokens[len(tokens)-m.cfg.PartialTokens:], " ")

	type candidate struct {
		normStart int
		normEnd   int
		score     float64
	}
	var best *candidate

	// Exact probe hits anchor at the probe itself, extended to the
	// edge of its containing window.
	if idx, n := uniqueIndex(doc.norm.text, lead); n == 1 {
		if w, ok := windowContaining(doc.windows, idx); ok {
			best = &candidate{normStart: idx, normEnd: w.normEnd, score: 1.0}
		}
	}
	if best == nil {
		if idx, n := uniqueIndex(doc.norm.text, trail); n == 1 {
			if w, ok := windowContaining(doc.windows, idx+len(trail)-1); ok {
				best = &candidate{normStart: w.normStart, normEnd: idx + len(trail), score: 1.0}
			}
		}
	}

	// Otherwise score the probes against candidate windows, like
	// fuzzy but held to the partial threshold.
	if best == nil {
		for _, probe := range []string{lead, trail} {
			if w, score, ok := m.bestWindow(doc, probe, m.cfg.PartialThreshold); ok {
				if best == nil || score > best.score {
					best = &candidate{normStart: w.normStart, normEnd: w.normEnd, score: score}
				}
			}
		}
	}

	if best == nil || best.score < m.cfg.PartialThreshold {
		return entities.MatchResult{}, false
	}

	span := doc.norm.span(best.normStart, best.normEnd)
	if span.Len() == 0 {
		return entities.MatchResult{}, false
	}
	return entities.MatchResult{
		Strategy:    entities.MatchPartial,
		Confidence:  best.score,
		Span:        span,
		MatchedText: doc.text[span.Start:span.End],
	}, true
}

// bestWindow scores every candidate window against text and returns
// the best one at or above threshold. Ties are broken by preferring
// the window whose length is closest to the text's, then the earliest
// position in the document.
func (m *Matcher) bestWindow(doc *Document, text string, threshold float64) (window, float64, bool) {
	const eps = 1e-9

	var (
		best      window
		bestScore = -1.0
		bestDiff  = math.MaxInt
		found     bool
	)

	for _, w := range doc.windows {
		wText := doc.windowText(w)
		if len(wText) == 0 {
			continue
		}
		score := similarity(text, wText)
		if score < threshold {
			continue
		}
		diff := abs(utf8.RuneCountInString(wText) - utf8.RuneCountInString(text))
		switch {
		case score > bestScore+eps:
		case score > bestScore-eps && diff < bestDiff:
		default:
			continue
		}
		best, bestScore, bestDiff, found = w, score, diff, true
	}
	return best, bestScore, found
}

// Similarity scores two normalized strings in [0,1]. Exposed for
// callers that rank candidates by textual closeness, like title
// resolution.
func Similarity(a, b string) float64 {
	return similarity(canon(a), canon(b))
}

// similarity blends normalized edit distance with token-set overlap.
// Edit distance catches character-level drift (punctuation, OCR
// artifacts); token overlap catches reflow and small word swaps.
func similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	if la == 0 || lb == 0 {
		return 0
	}

	longer := la
	if lb > longer {
		longer = lb
	}
	dist := levenshtein.ComputeDistance(a, b)
	edit := 1.0 - float64(dist)/float64(longer)

	tok := tokenOverlap(a, b)
	if tok > edit {
		return tok
	}
	return edit
}

// tokenOverlap is the Jaccard index of the lowercased token sets.
func tokenOverlap(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	common := 0
	for t := range setA {
		if _, ok := setB[t]; ok {
			common++
		}
	}
	union := len(setA) + len(setB) - common
	return float64(common) / float64(union)
}

func tokenSet(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, t := range strings.Fields(strings.ToLower(s)) {
		t = strings.Trim(t, `.,;:!?"'()[]`)
		if t != "" {
			out[t] = struct{}{}
		}
	}
	return out
}

// uniqueIndex returns the first index of probe in s along with the
// number of occurrences. Probes that occur more than once are
// ambiguous anchors and must not be used.
func uniqueIndex(s, probe string) (int, int) {
	if probe == "" {
		return -1, 0
	}
	first := strings.Index(s, probe)
	if first < 0 {
		return -1, 0
	}
	count := 1
	rest := s[first+len(probe):]
	for {
		i := strings.Index(rest, probe)
		if i < 0 {
			break
		}
		count++
		rest = rest[i+len(probe):]
	}
	return first, count
}

func windowContaining(windows []window, normIdx int) (window, bool) {
	bestLen := math.MaxInt
	var best window
	found := false
	for _, w := range windows {
		if w.normStart <= normIdx && normIdx < w.normEnd && w.normEnd-w.normStart < bestLen {
			best, bestLen, found = w, w.normEnd-w.normStart, true
		}
	}
	return best, found
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
