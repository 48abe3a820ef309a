// Package callouts extracts annotations captured as Obsidian callout
// blocks: "> [!highlight]" blocks written by the Annotator plugin and
// "> [!quote]" blocks holding transferred Kindle quotes.
package callouts

import (
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mrlokans/marginalia/internal/entities"
)

type frontMatter struct {
	Title  string `yaml:"title"`
	Author string `yaml:"author"`
}

type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

// Result mirrors the kindle parser's contract: malformed blocks are
// skipped and counted, never fatal.
type Result struct {
	Annotations []entities.Annotation
	Skipped     int
}

// ParseFile parses the callout blocks of one markdown file. The book
// title and author come from the YAML front matter, falling back to
// the file name when absent.
func (p *Parser) ParseFile(path, content string) *Result {
	title, author := bookIdentity(path, content)

	res := &Result{}
	for _, block := range calloutBlocks(content) {
		// Other callout kinds (note, info, warning, ...) are not
		// annotations and pass through untouched.
		if block.marker != "highlight" && block.marker != "quote" {
			continue
		}
		ann, ok := p.parseBlock(block, title, author)
		if !ok {
			res.Skipped++
			continue
		}
		res.Annotations = append(res.Annotations, ann)
	}
	return res
}

// calloutBlock is a run of consecutive "> "-prefixed lines.
type calloutBlock struct {
	marker string   // callout type, lowercased: "highlight", "quote", ...
	lines  []string // content lines with the "> " prefix stripped
}

func calloutBlocks(content string) []calloutBlock {
	var blocks []calloutBlock
	var current *calloutBlock

	flush := func() {
		if current != nil {
			blocks = append(blocks, *current)
			current = nil
		}
	}

	for _, raw := range strings.Split(content, "\n") {
		line := strings.TrimSpace(raw)
		if !strings.HasPrefix(line, ">") {
			flush()
			continue
		}
		body := strings.TrimSpace(strings.TrimPrefix(line, ">"))

		if marker, ok := parseMarker(body); ok {
			flush()
			current = &calloutBlock{marker: marker}
			continue
		}
		if current == nil {
			continue
		}
		if body != "" {
			current.lines = append(current.lines, body)
		}
	}
	flush()
	return blocks
}

// parseMarker recognizes "[!highlight]", "[!highlight]+", "[!quote]"
// and friends at the start of a callout.
func parseMarker(body string) (string, bool) {
	if !strings.HasPrefix(body, "[!") {
		return "", false
	}
	end := strings.IndexByte(body, ']')
	if end < 0 {
		return "", false
	}
	return strings.ToLower(body[2:end]), true
}

func (p *Parser) parseBlock(block calloutBlock, title, author string) (entities.Annotation, bool) {
	if len(block.lines) == 0 {
		return entities.Annotation{}, false
	}

	switch block.marker {
	case "highlight":
		// An Annotator block may carry the reader's comment as its
		// final line, below the quoted text.
		text := strings.Join(block.lines, "\n")
		comment := ""
		if len(block.lines) > 1 {
			text = strings.Join(block.lines[:len(block.lines)-1], "\n")
			comment = block.lines[len(block.lines)-1]
		}
		return entities.Annotation{
			Source:    entities.SourceAnnotator,
			BookTitle: title,
			Author:    author,
			Kind:      entities.KindHighlight,
			Text:      text,
			Comment:   comment,
		}, true
	case "quote":
		return entities.Annotation{
			Source:    entities.SourceKindle,
			BookTitle: title,
			Author:    author,
			Kind:      entities.KindHighlight,
			Text:      strings.Join(block.lines, "\n"),
		}, true
	default:
		return entities.Annotation{}, false
	}
}

func bookIdentity(path, content string) (title, author string) {
	fm := parseFrontMatter(content)
	title = fm.Title
	author = fm.Author
	if title == "" {
		base := filepath.Base(path)
		title = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return title, author
}

func parseFrontMatter(content string) frontMatter {
	var fm frontMatter
	rest, ok := strings.CutPrefix(content, "---\n")
	if !ok {
		return fm
	}
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return fm
	}
	// Best effort: malformed front matter just means no metadata.
	_ = yaml.Unmarshal([]byte(rest[:end]), &fm)
	return fm
}
