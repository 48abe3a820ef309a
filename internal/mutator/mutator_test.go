package mutator

import (
	"strings"
	"testing"

	"github.com/mrlokans/marginalia/internal/entities"
)

func spanOf(t *testing.T, doc, text string) entities.Span {
	t.Helper()
	i := strings.Index(doc, text)
	if i < 0 {
		t.Fatalf("test text %q not in document", text)
	}
	return entities.Span{Start: i, End: i + len(text)}
}

func TestApplyWrapsAndTags(t *testing.T) {
	doc := "Intro paragraph.\n\nYou have power over your mind.\n\nClosing words.\n"
	span := spanOf(t, doc, "You have power over your mind.")

	out, changed := Apply(doc, []Op{{Span: span, BlockID: "deadbeef"}})

	if !changed {
		t.Fatal("expected a change")
	}
	want := "Intro paragraph.\n\n==You have power over your mind.== ^deadbeef\n\nClosing words.\n"
	if out != want {
		t.Errorf("got:\n%s\nwant:\n%s", out, want)
	}
}

func TestApplyInsertsComment(t *testing.T) {
	doc := "A quotable sentence sits here.\nNext line.\n"
	span := spanOf(t, doc, "A quotable sentence sits here.")

	out, changed := Apply(doc, []Op{{Span: span, BlockID: "aa11", Comment: "so true"}})

	if !changed {
		t.Fatal("expected a change")
	}
	want := "==A quotable sentence sits here.== ^aa11\n> [!note] Comment\n> so true\nNext line.\n"
	if out != want {
		t.Errorf("got:\n%s\nwant:\n%s", out, want)
	}
}

func TestApplyInsertsMultiLineComment(t *testing.T) {
	doc := "A quotable sentence sits here.\nNext line.\n"
	span := spanOf(t, doc, "A quotable sentence sits here.")
	comment := "first thought\n\nsecond thought"

	out, changed := Apply(doc, []Op{{Span: span, BlockID: "aa11", Comment: comment}})

	if !changed {
		t.Fatal("expected a change")
	}
	want := "==A quotable sentence sits here.== ^aa11\n" +
		"> [!note] Comment\n> first thought\n>\n> second thought\nNext line.\n"
	if out != want {
		t.Errorf("got:\n%s\nwant:\n%s", out, want)
	}

	// Every comment line must stay quoted inside the callout.
	again, changedAgain := Apply(out, []Op{{Span: spanOf(t, out, "A quotable sentence sits here."), BlockID: "aa11", Comment: comment}})
	if changedAgain {
		t.Errorf("second application mutated the document:\n%s", again)
	}
}

func TestApplyIsIdempotent(t *testing.T) {
	doc := "A quotable sentence sits here.\nNext line.\n"
	span := spanOf(t, doc, "A quotable sentence sits here.")
	op := Op{Span: span, BlockID: "aa11", Comment: "so true"}

	once, _ := Apply(doc, []Op{op})

	// Re-match against the mutated document: the span now points at
	// the text inside the markers.
	inner := spanOf(t, once, "A quotable sentence sits here.")
	twice, changed := Apply(once, []Op{{Span: inner, BlockID: "aa11", Comment: "so true"}})

	if changed {
		t.Fatal("second application reported a change")
	}
	if twice != once {
		t.Errorf("second application mutated the document:\n%s", twice)
	}
}

func TestApplyPreservesUntouchedBytes(t *testing.T) {
	doc := "Line one stays.\nHighlight target line here, long enough.\nLine three stays.\n"
	span := spanOf(t, doc, "Highlight target line here, long enough.")

	out, _ := Apply(doc, []Op{{Span: span, BlockID: "bb22"}})

	if !strings.HasPrefix(out, "Line one stays.\n") {
		t.Error("bytes before the mutated line changed")
	}
	if !strings.HasSuffix(out, "\nLine three stays.\n") {
		t.Error("bytes after the mutated line changed")
	}
}

func TestApplyMultiLineSpan(t *testing.T) {
	doc := "A sentence that flows\nacross two lines of text.\n"
	span := spanOf(t, doc, "A sentence that flows\nacross two lines of text.")

	out, changed := Apply(doc, []Op{{Span: span, BlockID: "cc33"}})

	if !changed {
		t.Fatal("expected a change")
	}
	want := "==A sentence that flows==\n==across two lines of text.== ^cc33\n"
	if out != want {
		t.Errorf("got:\n%s\nwant:\n%s", out, want)
	}
}

func TestApplyDescendingOrderKeepsSpansValid(t *testing.T) {
	doc := "First interesting sentence right here.\n\nSecond interesting sentence over there.\n"
	first := spanOf(t, doc, "First interesting sentence right here.")
	second := spanOf(t, doc, "Second interesting sentence over there.")

	// Deliberately pass ops in ascending order.
	out, _ := Apply(doc, []Op{
		{Span: first, BlockID: "id1"},
		{Span: second, BlockID: "id2"},
	})

	if !strings.Contains(out, "==First interesting sentence right here.== ^id1") {
		t.Errorf("first op misapplied:\n%s", out)
	}
	if !strings.Contains(out, "==Second interesting sentence over there.== ^id2") {
		t.Errorf("second op misapplied:\n%s", out)
	}
}

func TestApplySkipsOverlappingOps(t *testing.T) {
	doc := "One shared sentence both annotations matched.\n"
	span := spanOf(t, doc, "One shared sentence both annotations matched.")

	out, _ := Apply(doc, []Op{
		{Span: span, BlockID: "id1"},
		{Span: span, BlockID: "id2"},
	})

	if strings.Count(out, "==") != 2 {
		t.Errorf("expected a single wrapped span, got:\n%s", out)
	}
	if strings.Contains(out, "id2") {
		t.Errorf("overlapping op must be skipped, got:\n%s", out)
	}
}
