package cli

import (
	"flag"
	"fmt"
	"os"

	"github.com/mrlokans/marginalia/internal/entities"
	"github.com/mrlokans/marginalia/internal/kindle"
)

// ParseClippingsCommand parses a Kindle clippings file and prints what
// it found without touching the vault.
type ParseClippingsCommand struct {
	ClippingsPath string
	Verbose       bool
}

func NewParseClippingsCommand() *ParseClippingsCommand {
	return &ParseClippingsCommand{}
}

func (cmd *ParseClippingsCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("parse-clippings", flag.ExitOnError)

	fs.StringVar(&cmd.ClippingsPath, "file", "", "Path to Kindle 'My Clippings.txt' file (required)")
	fs.BoolVar(&cmd.Verbose, "verbose", false, "Print every parsed annotation")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s parse-clippings -file <path> [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Parse a Kindle 'My Clippings.txt' file and report its contents.\n\n")
		fmt.Fprintf(os.Stderr, "The clippings file is typically found at:\n")
		fmt.Fprintf(os.Stderr, "  /Volumes/Kindle/documents/My Clippings.txt\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	if cmd.ClippingsPath == "" {
		return fmt.Errorf("required flag -file not provided")
	}

	return nil
}

func (cmd *ParseClippingsCommand) Run() error {
	file, err := os.Open(cmd.ClippingsPath)
	if err != nil {
		return fmt.Errorf("failed to open clippings file: %w", err)
	}
	defer file.Close()

	parser := kindle.NewParser()
	result, err := parser.Parse(file)
	if err != nil {
		return fmt.Errorf("failed to parse clippings: %w", err)
	}

	byBook := make(map[string][]entities.Annotation)
	var order []string
	for _, a := range result.Annotations {
		key := a.BookTitle
		if _, seen := byBook[key]; !seen {
			order = append(order, key)
		}
		byBook[key] = append(byBook[key], a)
	}

	fmt.Printf("Found %d annotations across %d books", len(result.Annotations), len(order))
	if result.Skipped > 0 {
		fmt.Printf(" (%d malformed entries skipped)", result.Skipped)
	}
	fmt.Println()

	for _, title := range order {
		annotations := byBook[title]
		author := annotations[0].Author
		if author == "" {
			author = "(no author)"
		}
		fmt.Printf("\n\"%s\" by %s (%d annotations)\n", title, author, len(annotations))

		if cmd.Verbose {
			for _, a := range annotations {
				kind := "highlight"
				if a.Kind == entities.KindNote {
					kind = "note"
				}
				fmt.Printf("  [%s] loc %s: %s\n", kind, a.Location, a.Text)
				if a.Comment != "" {
					fmt.Printf("    note: %s\n", a.Comment)
				}
			}
		}
	}

	return nil
}
