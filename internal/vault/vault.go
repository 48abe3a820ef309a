// Package vault gives sandboxed access to the Obsidian vault on disk:
// reading and atomically writing markdown files, and resolving which
// transcription and landing page belong to a book title.
package vault

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/mrlokans/marginalia/internal/config"
	"github.com/mrlokans/marginalia/internal/matcher"
)

// ErrNotFound is returned when no vault file can be resolved for a book.
var ErrNotFound = errors.New("vault: not found")

type Vault struct {
	root           string
	cfg            config.Vault
	titleThreshold float64
}

// New opens the vault rooted at cfg.Dir. The directory must exist.
func New(cfg config.Vault, titleThreshold float64) (*Vault, error) {
	abs, err := filepath.Abs(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("vault: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("vault: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("vault: root is not a directory: %s", abs)
	}
	return &Vault{root: abs, cfg: cfg, titleThreshold: titleThreshold}, nil
}

func (v *Vault) Root() string {
	return v.root
}

// safePath resolves a relative path against the vault root and rejects
// any result that escapes it (directory traversal).
func (v *Vault) safePath(rel string) (string, error) {
	if rel == "" {
		return v.root, nil
	}
	cleaned := filepath.Clean(rel)
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("vault: absolute paths not allowed: %s", rel)
	}
	joined := filepath.Join(v.root, cleaned)
	abs, err := filepath.Abs(joined)
	if err != nil {
		return "", fmt.Errorf("vault: resolve path: %w", err)
	}
	if !strings.HasPrefix(abs, v.root+string(os.PathSeparator)) && abs != v.root {
		return "", fmt.Errorf("vault: path escapes vault root: %s", rel)
	}
	return abs, nil
}

// Read returns the raw bytes of a vault file addressed by its
// root-relative path.
func (v *Vault) Read(rel string) ([]byte, error) {
	abs, err := v.safePath(rel)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("vault: read %s: %w", rel, err)
	}
	return data, nil
}

// WriteAtomic replaces a vault file in one step: temp file in the same
// directory, fsync, rename. Readers never observe a half-written file.
func (v *Vault) WriteAtomic(rel string, content []byte) error {
	abs, err := v.safePath(rel)
	if err != nil {
		return err
	}
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("vault: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".marginalia-tmp-*")
	if err != nil {
		return fmt.Errorf("vault: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("vault: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("vault: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("vault: close temp: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return fmt.Errorf("vault: rename: %w", err)
	}
	success = true
	return nil
}

// ClippingsFiles lists the Kindle clippings files (*.txt) in the
// configured clippings directory, sorted by path.
func (v *Vault) ClippingsFiles() ([]string, error) {
	return v.listFiles(v.cfg.ClippingsDir, ".txt")
}

// LandingFiles lists the landing page markdown files, sorted by path.
// Only the top level of the landing directory is scanned: nested
// directories hold transcriptions, not landing pages.
func (v *Vault) LandingFiles() ([]string, error) {
	abs, err := v.safePath(v.cfg.LandingDir)
	if err != nil {
		return nil, err
	}
	dirEntries, err := os.ReadDir(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("vault: list landing pages: %w", err)
	}
	var out []string
	for _, e := range dirEntries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		out = append(out, filepath.Join(v.cfg.LandingDir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}

func (v *Vault) listFiles(dir, ext string) ([]string, error) {
	abs, err := v.safePath(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	err = filepath.WalkDir(abs, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ext) {
			return nil
		}
		rel, err := filepath.Rel(v.root, p)
		if err != nil {
			return err
		}
		out = append(out, rel)
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("vault: list %s: %w", dir, err)
	}
	sort.Strings(out)
	return out, nil
}

// ResolveDocuments finds every markdown transcription of a book, one
// per edition. Directory names and file stems are compared against the
// title first by containment, then by similarity.
func (v *Vault) ResolveDocuments(title string) ([]string, error) {
	files, err := v.listFiles(v.cfg.MarkdownDir, ".md")
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, ErrNotFound
	}

	want := cleanTitle(title)
	prefix := filepath.Clean(v.cfg.MarkdownDir) + string(filepath.Separator)

	// Pass 1: a directory or file named after the book.
	var matched []string
	for _, rel := range files {
		if containsTitle(strings.TrimPrefix(rel, prefix), want) {
			matched = append(matched, rel)
		}
	}
	if len(matched) > 0 {
		return matched, nil
	}

	// Pass 2: closest stems above the similarity floor.
	bestScore := 0.0
	for _, rel := range files {
		score := matcher.Similarity(want, cleanTitle(stem(rel)))
		if score < v.titleThreshold {
			continue
		}
		if score > bestScore {
			bestScore = score
			matched = matched[:0]
		}
		if score == bestScore {
			matched = append(matched, rel)
		}
	}
	if len(matched) == 0 {
		return nil, ErrNotFound
	}
	return matched, nil
}

// ResolveLanding finds the landing page for a book title, comparing
// page names by containment and then by similarity.
func (v *Vault) ResolveLanding(title string) (string, error) {
	pages, err := v.LandingFiles()
	if err != nil {
		return "", err
	}
	want := cleanTitle(title)

	for _, rel := range pages {
		s := cleanTitle(stem(rel))
		if s == want || strings.Contains(s, want) || strings.Contains(want, s) {
			return rel, nil
		}
	}

	best := ""
	bestScore := 0.0
	for _, rel := range pages {
		score := matcher.Similarity(want, cleanTitle(stem(rel)))
		if score >= v.titleThreshold && score > bestScore {
			best, bestScore = rel, score
		}
	}
	if best == "" {
		return "", ErrNotFound
	}
	return best, nil
}

// Edition names the document variant a relative path points at: the
// parent directory when the file sits in one, otherwise the file stem.
func Edition(rel string) string {
	dir := filepath.Base(filepath.Dir(rel))
	if dir != "." && dir != string(filepath.Separator) {
		return dir
	}
	return stem(rel)
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9\s]+`)

// cleanTitle lowercases and strips punctuation so "Thinking, Fast and
// Slow" and "Thinking Fast and Slow" compare equal.
func cleanTitle(s string) string {
	s = strings.ToLower(s)
	s = nonAlnum.ReplaceAllString(s, "")
	return strings.Join(strings.Fields(s), " ")
}

// containsTitle checks each path component against the wanted title
// in both directions: "Walden" names the book "Walden; or, Life in
// the Woods" just as well as the reverse. Short components are only
// compared exactly so fragments like "a" never match.
func containsTitle(rel, want string) bool {
	if want == "" {
		return false
	}
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		p := cleanTitle(strings.TrimSuffix(part, filepath.Ext(part)))
		if p == "" {
			continue
		}
		if p == want || strings.Contains(p, want) {
			return true
		}
		if len(p) >= 4 && strings.Contains(want, p) {
			return true
		}
	}
	return false
}

func stem(rel string) string {
	base := filepath.Base(rel)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
