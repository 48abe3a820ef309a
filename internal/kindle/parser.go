package kindle

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/mrlokans/marginalia/internal/entities"
)

// Entry types in Kindle clippings
type EntryType string

const (
	EntryTypeHighlight EntryType = "highlight"
	EntryTypeNote      EntryType = "note"
	EntryTypeBookmark  EntryType = "bookmark"
)

// ClippingEntry represents a single parsed entry from My Clippings.txt
type ClippingEntry struct {
	Title       string
	Author      string
	Type        EntryType
	Page        int
	PageEnd     int
	Location    int
	LocationEnd int
	AddedAt     time.Time
	Text        string
}

// Parser parses Kindle My Clippings.txt format
type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

const entrySeparator = "=========="

// Regex patterns for parsing metadata lines
var (
	// Matches: "- Your Highlight on page 8 | Location 64-64 | Added on Tuesday, April 15, 2025 10:16:21 PM"
	// or: "- Your Note on page 31 | Location 307 | Added on Tuesday, April 15, 2025 11:33:26 PM"
	// or: "- Your Highlight at location 784-785 | Added on Saturday, 26 March 2016 18:37:26"
	// or: "- Your Bookmark at location 346 | Added on Saturday, 26 March 2016 15:46:21"
	metadataPattern = regexp.MustCompile(`^- Your (Highlight|Note|Bookmark)`)

	// Page patterns: "on page 8" or "on page 207-207"
	pagePattern = regexp.MustCompile(`(?i)(?:on )?page (\d+)(?:-(\d+))?`)

	// Location patterns: "Location 64-64" or "location 1406-1407" or "at location 784-785"
	locationPattern = regexp.MustCompile(`(?i)(?:at )?location (\d+)(?:-(\d+))?`)

	// Date patterns - multiple formats observed in the wild
	// "Added on Tuesday, April 15, 2025 10:16:21 PM"
	// "Added on Saturday, 26 March 2016 14:59:39"
	datePatterns = []string{
		"Added on Monday, January 2, 2006 3:04:05 PM",
		"Added on Monday, January 2, 2006 15:04:05",
		"Added on Monday, 2 January 2006 3:04:05 PM",
		"Added on Monday, 2 January 2006 15:04:05",
	}

	// Title with author: "Book Title (Author Name)"
	// Some books don't have author in parentheses
	titleAuthorPattern = regexp.MustCompile(`^(.+?)\s*\(([^)]+)\)\s*$`)
)

// Result is the outcome of parsing one clippings file. Malformed
// entries are skipped, not fatal, and only counted.
type Result struct {
	Annotations []entities.Annotation
	Skipped     int
}

// Parse reads a My Clippings.txt stream and returns the annotations
// it contains. Notes that share a location with a highlight of the
// same book become that highlight's comment; bookmarks are dropped.
func (p *Parser) Parse(r io.Reader) (*Result, error) {
	entries, skipped, err := p.ParseEntries(r)
	if err != nil {
		return nil, err
	}
	return &Result{
		Annotations: p.attachNotes(entries),
		Skipped:     skipped,
	}, nil
}

// ParseEntries parses individual clipping entries from the reader,
// returning the well-formed ones and the count of skipped entries.
func (p *Parser) ParseEntries(r io.Reader) ([]ClippingEntry, int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var entries []ClippingEntry
	var currentLines []string
	skipped := 0

	flush := func() {
		if len(currentLines) == 0 {
			return
		}
		entry, err := p.parseEntry(currentLines)
		if err == nil && entry != nil {
			entries = append(entries, *entry)
		} else {
			skipped++
		}
		currentLines = nil
	}

	for scanner.Scan() {
		line := scanner.Text()
		if line == entrySeparator {
			flush()
			continue
		}
		currentLines = append(currentLines, line)
	}

	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("error reading clippings: %w", err)
	}

	// Handle last entry if file doesn't end with separator
	flush()

	return entries, skipped, nil
}

func (p *Parser) parseEntry(lines []string) (*ClippingEntry, error) {
	if len(lines) < 2 {
		return nil, fmt.Errorf("entry too short")
	}

	// First line: Title (Author) or just Title
	titleLine := strings.TrimSpace(strings.TrimPrefix(lines[0], "\ufeff"))
	if titleLine == "" {
		return nil, fmt.Errorf("empty title line")
	}

	title, author := parseTitleAuthor(titleLine)

	// Second line: Metadata (type, page, location, date)
	metadataLine := strings.TrimSpace(lines[1])
	if !metadataPattern.MatchString(metadataLine) {
		return nil, fmt.Errorf("invalid metadata line")
	}

	entryType := parseEntryType(metadataLine)
	page, pageEnd := parsePageRange(metadataLine)
	location, locationEnd := parseLocationRange(metadataLine)
	addedAt := parseDate(metadataLine)

	// Remaining lines (after blank line): Text content
	// Format is: title, metadata, blank line, content
	var textLines []string
	startContent := false
	for i := 2; i < len(lines); i++ {
		line := lines[i]
		if !startContent && strings.TrimSpace(line) == "" {
			startContent = true
			continue
		}
		if startContent || strings.TrimSpace(line) != "" {
			startContent = true
			textLines = append(textLines, line)
		}
	}

	text := strings.TrimSpace(strings.Join(textLines, "\n"))

	// Bookmarks carry no text and nothing to match against.
	if entryType == EntryTypeBookmark {
		return nil, fmt.Errorf("bookmark entry")
	}

	// Highlights and notes should have text
	if text == "" {
		return nil, fmt.Errorf("empty content")
	}

	return &ClippingEntry{
		Title:       title,
		Author:      author,
		Type:        entryType,
		Page:        page,
		PageEnd:     pageEnd,
		Location:    location,
		LocationEnd: locationEnd,
		AddedAt:     addedAt,
		Text:        text,
	}, nil
}

// attachNotes converts entries to annotations, folding each note into
// the highlight at the same location in the same book when one exists.
// Notes without a home survive as standalone note annotations.
func (p *Parser) attachNotes(entries []ClippingEntry) []entities.Annotation {
	var annotations []entities.Annotation
	var notes []ClippingEntry

	for _, entry := range entries {
		if entry.Type == EntryTypeNote {
			notes = append(notes, entry)
			continue
		}
		annotations = append(annotations, p.entryToAnnotation(entry, entities.KindHighlight))
	}

	for _, note := range notes {
		attached := false
		key := bookKey(note.Title, note.Author)
		for i := range annotations {
			a := &annotations[i]
			if a.BookKey() != key || a.Kind != entities.KindHighlight {
				continue
			}
			if !locationsTouch(a.Location, note) {
				continue
			}
			if a.Comment == "" {
				a.Comment = note.Text
			} else {
				a.Comment = a.Comment + "\n\n" + note.Text
			}
			attached = true
			break
		}
		if !attached {
			annotations = append(annotations, p.entryToAnnotation(note, entities.KindNote))
		}
	}

	return annotations
}

func (p *Parser) entryToAnnotation(entry ClippingEntry, kind entities.AnnotationKind) entities.Annotation {
	return entities.Annotation{
		Source:    entities.SourceKindle,
		BookTitle: entry.Title,
		Author:    entry.Author,
		Kind:      kind,
		Location:  formatLocation(entry),
		DateAdded: entry.AddedAt,
		Text:      entry.Text,
	}
}

// formatLocation renders the position hint, preferring Kindle
// locations over page numbers.
func formatLocation(entry ClippingEntry) string {
	value, end := entry.Location, entry.LocationEnd
	if value == 0 {
		value, end = entry.Page, entry.PageEnd
	}
	if value == 0 {
		return ""
	}
	if end > 0 && end != value {
		return fmt.Sprintf("%d-%d", value, end)
	}
	return strconv.Itoa(value)
}

// locationsTouch reports whether a note's position falls on or inside
// the highlight's recorded location range.
func locationsTouch(highlightLoc string, note ClippingEntry) bool {
	notePos := note.Location
	if notePos == 0 {
		notePos = note.Page
	}
	if notePos == 0 || highlightLoc == "" {
		return false
	}

	parts := strings.SplitN(highlightLoc, "-", 2)
	start, err := strconv.Atoi(parts[0])
	if err != nil {
		return false
	}
	end := start
	if len(parts) == 2 {
		if e, err := strconv.Atoi(parts[1]); err == nil {
			end = e
		}
	}
	return start <= notePos && notePos <= end
}

func parseTitleAuthor(line string) (title, author string) {
	matches := titleAuthorPattern.FindStringSubmatch(line)
	if len(matches) == 3 {
		return strings.TrimSpace(matches[1]), strings.TrimSpace(matches[2])
	}
	// No author in parentheses, use whole line as title
	return strings.TrimSpace(line), ""
}

func parseEntryType(line string) EntryType {
	lower := strings.ToLower(line)
	switch {
	case strings.Contains(lower, "your highlight"):
		return EntryTypeHighlight
	case strings.Contains(lower, "your note"):
		return EntryTypeNote
	case strings.Contains(lower, "your bookmark"):
		return EntryTypeBookmark
	default:
		return EntryTypeHighlight
	}
}

func parsePageRange(line string) (page, pageEnd int) {
	matches := pagePattern.FindStringSubmatch(line)
	if len(matches) >= 2 {
		page, _ = strconv.Atoi(matches[1])
		if len(matches) >= 3 && matches[2] != "" {
			pageEnd, _ = strconv.Atoi(matches[2])
		}
	}
	return
}

func parseLocationRange(line string) (location, locationEnd int) {
	matches := locationPattern.FindStringSubmatch(line)
	if len(matches) >= 2 {
		location, _ = strconv.Atoi(matches[1])
		if len(matches) >= 3 && matches[2] != "" {
			locationEnd, _ = strconv.Atoi(matches[2])
		}
	}
	return
}

func parseDate(line string) time.Time {
	// Extract the date part after "Added on"
	idx := strings.Index(strings.ToLower(line), "added on")
	if idx == -1 {
		return time.Time{}
	}

	dateStr := "Added on" + line[idx+8:]
	dateStr = strings.TrimSpace(dateStr)

	for _, pattern := range datePatterns {
		t, err := time.Parse(pattern, dateStr)
		if err == nil {
			return t
		}
	}

	return time.Time{}
}

func bookKey(title, author string) string {
	return strings.ToLower(title) + "|" + strings.ToLower(author)
}
