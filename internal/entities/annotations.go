package entities

import (
	"strings"
	"time"
)

type Source string

const (
	SourceKindle    Source = "kindle"
	SourceAnnotator Source = "annotator"
	SourceManual    Source = "manual"
)

type AnnotationKind string

const (
	KindHighlight AnnotationKind = "highlight"
	KindNote      AnnotationKind = "note"
	KindBookmark  AnnotationKind = "bookmark"
)

// Annotation is the normalized representation of a highlight or note,
// regardless of where it was captured. Annotations are immutable once
// parsed: matching produces a separate MatchResult and never edits the
// annotation itself.
type Annotation struct {
	Source    Source
	BookTitle string
	Author    string
	Kind      AnnotationKind

	// Location is the source-specific position hint (e.g. a Kindle
	// location range like "784-785"). Advisory only - matching never
	// treats it as ground truth.
	Location  string
	DateAdded time.Time

	// Text is the quoted text and the canonical matching key.
	Text    string
	Comment string
}

// BookKey returns the grouping key for annotations belonging to the
// same book (title + author combination).
func (a Annotation) BookKey() string {
	return strings.ToLower(strings.TrimSpace(a.BookTitle)) + "|" + strings.ToLower(strings.TrimSpace(a.Author))
}

type MatchStrategy string

const (
	MatchExact   MatchStrategy = "exact"
	MatchFuzzy   MatchStrategy = "fuzzy"
	MatchPartial MatchStrategy = "partial"
	MatchNone    MatchStrategy = "none"
)

// Span is a contiguous region of a document's text, addressed by byte
// offsets into the original (unnormalized) content. End is exclusive.
type Span struct {
	Start int
	End   int
}

func (s Span) Len() int {
	return s.End - s.Start
}

func (s Span) Overlaps(other Span) bool {
	return s.Start < other.End && other.Start < s.End
}

// OverlapRatio returns the size of the intersection of the two spans
// relative to the smaller span, in [0,1].
func (s Span) OverlapRatio(other Span) float64 {
	start := max(s.Start, other.Start)
	end := min(s.End, other.End)
	if end <= start {
		return 0
	}
	smaller := min(s.Len(), other.Len())
	if smaller == 0 {
		return 0
	}
	return float64(end-start) / float64(smaller)
}

// MatchResult is the outcome of matching one annotation against one
// document. Strategy MatchNone means the annotation is unmatched: Span
// is undefined and the document must not be mutated for it.
type MatchResult struct {
	Strategy    MatchStrategy
	Confidence  float64
	Span        Span
	MatchedText string
}

func (m MatchResult) Matched() bool {
	return m.Strategy != MatchNone && m.Strategy != ""
}

// BlockReference is a stable addressable identifier bound to a span in
// a document. The ID is derived deterministically from the matched
// text, so re-parsing an already-marked span yields the same id.
type BlockReference struct {
	ID           string
	DocumentPath string
	Span         Span
}

// LandingEntry is one row in a book landing page's direct-links
// section.
type LandingEntry struct {
	Annotation Annotation
	Block      BlockReference
	Preview    string
	Comment    string

	// Edition identifies which document variant the highlight was
	// found in, for works transcribed more than once.
	Edition string
}
