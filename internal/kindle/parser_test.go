package kindle

import (
	"strings"
	"testing"
	"time"

	"github.com/mrlokans/marginalia/internal/entities"
)

// Test fixtures are adapted from https://github.com/biokraft/kindle2readwise/tree/main/tests/fixtures

func TestParser_ParseEntries_BasicHighlight(t *testing.T) {
	input := `The_Power_of_Now (Eckhart Tolle)
- Your Highlight on page 8 | Location 64-64 | Added on Tuesday, April 15, 2025 10:16:21 PM

would change for the better. Values would shift in the flotsam
==========
`

	parser := NewParser()
	entries, skipped, err := parser.ParseEntries(strings.NewReader(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if skipped != 0 {
		t.Errorf("expected 0 skipped, got %d", skipped)
	}

	entry := entries[0]
	if entry.Title != "The_Power_of_Now" {
		t.Errorf("expected title 'The_Power_of_Now', got '%s'", entry.Title)
	}
	if entry.Author != "Eckhart Tolle" {
		t.Errorf("expected author 'Eckhart Tolle', got '%s'", entry.Author)
	}
	if entry.Type != EntryTypeHighlight {
		t.Errorf("expected type highlight, got '%s'", entry.Type)
	}
	if entry.Page != 8 {
		t.Errorf("expected page 8, got %d", entry.Page)
	}
	if entry.Location != 64 {
		t.Errorf("expected location 64, got %d", entry.Location)
	}
	if entry.LocationEnd != 64 {
		t.Errorf("expected location end 64, got %d", entry.LocationEnd)
	}
	if entry.Text != "would change for the better. Values would shift in the flotsam" {
		t.Errorf("unexpected text: %s", entry.Text)
	}
}

func TestParser_ParseEntries_ByteOrderMark(t *testing.T) {
	// Kindle writes My Clippings.txt with a UTF-8 BOM; the title of
	// the first entry must not keep it.
	input := "\uFEFF" + `The_Power_of_Now (Eckhart Tolle)
- Your Highlight on page 8 | Location 64-64 | Added on Tuesday, April 15, 2025 10:16:21 PM

would change for the better. Values would shift in the flotsam
==========
`

	parser := NewParser()
	entries, _, err := parser.ParseEntries(strings.NewReader(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Title != "The_Power_of_Now" {
		t.Errorf("expected BOM stripped from title, got %q", entries[0].Title)
	}
}

func TestParser_ParseEntries_Note(t *testing.T) {
	input := `The_Power_of_Now (Eckhart Tolle)
- Your Note on page 31 | Location 307 | Added on Tuesday, April 15, 2025 11:33:26 PM

Watch the thinker or be present in the moment
==========
`

	parser := NewParser()
	entries, _, err := parser.ParseEntries(strings.NewReader(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}

	entry := entries[0]
	if entry.Type != EntryTypeNote {
		t.Errorf("expected type note, got '%s'", entry.Type)
	}
	if entry.Page != 31 {
		t.Errorf("expected page 31, got %d", entry.Page)
	}
	if entry.Location != 307 {
		t.Errorf("expected location 307, got %d", entry.Location)
	}
	if entry.Text != "Watch the thinker or be present in the moment" {
		t.Errorf("unexpected text: %s", entry.Text)
	}
}

func TestParser_ParseEntries_Bookmark(t *testing.T) {
	input := `Fahrenheit 451 (Ray Bradbury)
- Your Bookmark at location 346 | Added on Saturday, 26 March 2016 15:46:21


==========
`

	parser := NewParser()
	entries, skipped, err := parser.ParseEntries(strings.NewReader(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Bookmarks with no text should be skipped
	if len(entries) != 0 {
		t.Fatalf("expected 0 entries (bookmark skipped), got %d", len(entries))
	}
	if skipped != 1 {
		t.Errorf("expected skipped count 1, got %d", skipped)
	}
}

func TestParser_ParseEntries_LocationOnlyFormat(t *testing.T) {
	input := `Fahrenheit 451 (Ray Bradbury)
- Your Highlight at location 784-785 | Added on Saturday, 26 March 2016 18:37:26

Who knows who might be the target of the well-read man?
==========
`

	parser := NewParser()
	entries, _, err := parser.ParseEntries(strings.NewReader(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}

	entry := entries[0]
	if entry.Location != 784 {
		t.Errorf("expected location 784, got %d", entry.Location)
	}
	if entry.LocationEnd != 785 {
		t.Errorf("expected location end 785, got %d", entry.LocationEnd)
	}
	if entry.Page != 0 {
		t.Errorf("expected page 0, got %d", entry.Page)
	}
}

func TestParser_ParseEntries_NoAuthor(t *testing.T) {
	input := `Harry_Potter_und_die_Kammer_des_Schreckens
- Your Highlight on page 207-207 | Added on Monday, April 21, 2025 8:55:24 PM

Harry drehte sich auf die Seite
==========
`

	parser := NewParser()
	entries, _, err := parser.ParseEntries(strings.NewReader(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}

	entry := entries[0]
	if entry.Title != "Harry_Potter_und_die_Kammer_des_Schreckens" {
		t.Errorf("expected title without author, got '%s'", entry.Title)
	}
	if entry.Author != "" {
		t.Errorf("expected empty author, got '%s'", entry.Author)
	}
	if entry.Page != 207 {
		t.Errorf("expected page 207, got %d", entry.Page)
	}
	if entry.PageEnd != 207 {
		t.Errorf("expected page end 207, got %d", entry.PageEnd)
	}
}

func TestParser_ParseEntries_MultiLineHighlight(t *testing.T) {
	input := `Test Book (Test Author)
- Your Highlight on page 1 | Location 10-15 | Added on Wednesday, January 1, 2025 12:00:00 PM

This highlight spans
multiple lines of text
that should be preserved.
==========
`

	parser := NewParser()
	entries, _, err := parser.ParseEntries(strings.NewReader(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}

	expectedText := "This highlight spans\nmultiple lines of text\nthat should be preserved."
	if entries[0].Text != expectedText {
		t.Errorf("expected multiline text '%s', got '%s'", expectedText, entries[0].Text)
	}
}

func TestParser_ParseEntries_EmptyHighlight(t *testing.T) {
	input := `Test Book (Test Author)
- Your Highlight on Location 275 | Added on Monday, January 6, 2025 3:10:00 PM


==========
`

	parser := NewParser()
	entries, skipped, err := parser.ParseEntries(strings.NewReader(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Empty highlights should be skipped
	if len(entries) != 0 {
		t.Fatalf("expected 0 entries (empty content skipped), got %d", len(entries))
	}
	if skipped != 1 {
		t.Errorf("expected skipped count 1, got %d", skipped)
	}
}

func TestParser_Parse_ProducesAnnotations(t *testing.T) {
	input := `The_Power_of_Now (Eckhart Tolle)
- Your Highlight on page 8 | Location 64-64 | Added on Tuesday, April 15, 2025 10:16:21 PM

would change for the better. Values would shift in the flotsam
==========
Fahrenheit 451 (Ray Bradbury)
- Your Highlight at location 784-785 | Added on Saturday, 26 March 2016 18:37:26

Who knows who might be the target of the well-read man?
==========
`

	parser := NewParser()
	result, err := parser.Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(result.Annotations) != 2 {
		t.Fatalf("expected 2 annotations, got %d", len(result.Annotations))
	}

	first := result.Annotations[0]
	if first.Source != entities.SourceKindle {
		t.Errorf("expected kindle source, got '%s'", first.Source)
	}
	if first.Kind != entities.KindHighlight {
		t.Errorf("expected highlight kind, got '%s'", first.Kind)
	}
	if first.BookTitle != "The_Power_of_Now" {
		t.Errorf("unexpected title '%s'", first.BookTitle)
	}
	if first.Location != "64" {
		t.Errorf("expected location '64', got '%s'", first.Location)
	}

	second := result.Annotations[1]
	if second.Location != "784-785" {
		t.Errorf("expected location '784-785', got '%s'", second.Location)
	}
}

func TestParser_Parse_AttachesNotesToHighlights(t *testing.T) {
	input := `Deep Work (Cal Newport)
- Your Highlight on page 14 | Location 200-210 | Added on Tuesday, April 15, 2025 10:16:21 PM

To produce at your peak level you need to work for extended periods with full concentration.
==========
Deep Work (Cal Newport)
- Your Note on page 14 | Location 205 | Added on Tuesday, April 15, 2025 10:17:00 PM

This is the key insight of the whole book
==========
Deep Work (Cal Newport)
- Your Note on page 90 | Location 1500 | Added on Tuesday, April 15, 2025 11:00:00 PM

Standalone note without a matching highlight
==========
`

	parser := NewParser()
	result, err := parser.Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(result.Annotations) != 2 {
		t.Fatalf("expected 2 annotations, got %d", len(result.Annotations))
	}

	highlight := result.Annotations[0]
	if highlight.Kind != entities.KindHighlight {
		t.Fatalf("expected first annotation to be a highlight, got '%s'", highlight.Kind)
	}
	if !strings.Contains(highlight.Comment, "This is the key insight") {
		t.Errorf("expected attached note as comment, got '%s'", highlight.Comment)
	}

	standalone := result.Annotations[1]
	if standalone.Kind != entities.KindNote {
		t.Fatalf("expected standalone note annotation, got '%s'", standalone.Kind)
	}
	if !strings.Contains(standalone.Text, "Standalone note") {
		t.Errorf("unexpected standalone note text: %s", standalone.Text)
	}
}

func TestParser_Parse_CountsSkippedEntries(t *testing.T) {
	input := `Greenlights (Matthew McConaughey)
- Your Highlight on page 10 | Location 100-101 | Added on Tuesday, April 15, 2025 10:16:21 PM

Knowin who we are is hard. Eliminate who we are not first.
==========
Broken Entry Without Metadata
this line is not a metadata line

some text
==========
Greenlights (Matthew McConaughey)
- Your Bookmark at location 346 | Added on Saturday, 26 March 2016 15:46:21


==========
`

	parser := NewParser()
	result, err := parser.Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(result.Annotations) != 1 {
		t.Fatalf("expected 1 annotation, got %d", len(result.Annotations))
	}
	if result.Skipped != 2 {
		t.Errorf("expected 2 skipped entries, got %d", result.Skipped)
	}
}

func TestParseTitleAuthor(t *testing.T) {
	tests := []struct {
		input          string
		expectedTitle  string
		expectedAuthor string
	}{
		{
			input:          "The_Power_of_Now (Eckhart Tolle)",
			expectedTitle:  "The_Power_of_Now",
			expectedAuthor: "Eckhart Tolle",
		},
		{
			input:          "The Selfish Gene: 30th Anniversary Edition (Richard Dawkins)",
			expectedTitle:  "The Selfish Gene: 30th Anniversary Edition",
			expectedAuthor: "Richard Dawkins",
		},
		{
			input:          "Harry_Potter_und_die_Kammer_des_Schreckens",
			expectedTitle:  "Harry_Potter_und_die_Kammer_des_Schreckens",
			expectedAuthor: "",
		},
		{
			input:          "Book With (Nested (Parentheses)) (Author Name)",
			expectedTitle:  "Book With (Nested (Parentheses))",
			expectedAuthor: "Author Name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			title, author := parseTitleAuthor(tt.input)
			if title != tt.expectedTitle {
				t.Errorf("expected title '%s', got '%s'", tt.expectedTitle, title)
			}
			if author != tt.expectedAuthor {
				t.Errorf("expected author '%s', got '%s'", tt.expectedAuthor, author)
			}
		})
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		input    string
		expected time.Time
	}{
		{
			input:    "- Your Highlight on page 8 | Location 64-64 | Added on Tuesday, April 15, 2025 10:16:21 PM",
			expected: time.Date(2025, 4, 15, 22, 16, 21, 0, time.UTC),
		},
		{
			input:    "- Your Highlight on page 92 | location 1406-1407 | Added on Saturday, 26 March 2016 14:59:39",
			expected: time.Date(2016, 3, 26, 14, 59, 39, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := parseDate(tt.input)
			if !result.Equal(tt.expected) {
				t.Errorf("expected %v, got %v", tt.expected, result)
			}
		})
	}
}

func TestParsePageRange(t *testing.T) {
	tests := []struct {
		input        string
		expectedPage int
		expectedEnd  int
	}{
		{"on page 8", 8, 0},
		{"on page 207-207", 207, 207},
		{"page 1-5", 1, 5},
		{"no page here", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			page, end := parsePageRange(tt.input)
			if page != tt.expectedPage {
				t.Errorf("expected page %d, got %d", tt.expectedPage, page)
			}
			if end != tt.expectedEnd {
				t.Errorf("expected end %d, got %d", tt.expectedEnd, end)
			}
		})
	}
}

func TestParseLocationRange(t *testing.T) {
	tests := []struct {
		input       string
		expectedLoc int
		expectedEnd int
	}{
		{"Location 64-64", 64, 64},
		{"location 1406-1407", 1406, 1407},
		{"at location 784-785", 784, 785},
		{"Location 307", 307, 0},
		{"no location here", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			loc, end := parseLocationRange(tt.input)
			if loc != tt.expectedLoc {
				t.Errorf("expected location %d, got %d", tt.expectedLoc, loc)
			}
			if end != tt.expectedEnd {
				t.Errorf("expected end %d, got %d", tt.expectedEnd, end)
			}
		})
	}
}
