package vault

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/mrlokans/marginalia/internal/config"
)

func testVault(t *testing.T) *Vault {
	t.Helper()
	root := t.TempDir()

	files := map[string]string{
		"Books/Markdowns/Meditations/Meditations.md":         "# Meditations\n",
		"Books/Markdowns/Meditations Hays/Meditations.md":    "# Meditations (Hays translation)\n",
		"Books/Markdowns/Walden/Walden.md":                   "# Walden\n",
		"Books/Meditations.md":                               "---\ntitle: \"Meditations\"\n---\n",
		"Books/Walden.md":                                    "# Walden landing\n",
		"Kindle_highlights/My Clippings.txt":                 "==========\n",
		"Kindle_highlights/archive/My Clippings 2024.txt":    "==========\n",
	}
	for rel, content := range files {
		abs := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	v, err := New(config.Vault{
		Dir:          root,
		MarkdownDir:  "Books/Markdowns",
		LandingDir:   "Books",
		ClippingsDir: "Kindle_highlights",
	}, 0.7)
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func TestWriteAtomicRoundTrip(t *testing.T) {
	v := testVault(t)

	if err := v.WriteAtomic("Books/Markdowns/Walden/Walden.md", []byte("updated\n")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	data, err := v.Read("Books/Markdowns/Walden/Walden.md")
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(data) != "updated\n" {
		t.Errorf("unexpected content %q", data)
	}

	// No temp files may survive a successful write.
	entries, _ := os.ReadDir(filepath.Join(v.Root(), "Books/Markdowns/Walden"))
	for _, e := range entries {
		if e.Name() != "Walden.md" {
			t.Errorf("leftover file %s", e.Name())
		}
	}
}

func TestSafePathRejectsTraversal(t *testing.T) {
	v := testVault(t)

	if _, err := v.Read("../outside.md"); err == nil {
		t.Error("expected traversal to be rejected")
	}
	if err := v.WriteAtomic("/etc/passwd", []byte("x")); err == nil {
		t.Error("expected absolute path to be rejected")
	}
}

func TestClippingsFiles(t *testing.T) {
	v := testVault(t)

	files, err := v.ClippingsFiles()
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 clippings files, got %d: %v", len(files), files)
	}
}

func TestLandingFilesSkipNested(t *testing.T) {
	v := testVault(t)

	pages, err := v.LandingFiles()
	if err != nil {
		t.Fatal(err)
	}
	if len(pages) != 2 {
		t.Fatalf("expected 2 landing pages, got %d: %v", len(pages), pages)
	}
	for _, p := range pages {
		if filepath.Dir(p) != "Books" {
			t.Errorf("nested file leaked into landing pages: %s", p)
		}
	}
}

func TestResolveDocumentsFindsAllEditions(t *testing.T) {
	v := testVault(t)

	docs, err := v.ResolveDocuments("Meditations")
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected both editions, got %v", docs)
	}
}

func TestResolveDocumentsFuzzyTitle(t *testing.T) {
	v := testVault(t)

	docs, err := v.ResolveDocuments("walden; or, life in the woods")
	if err != nil {
		t.Fatalf("expected fuzzy resolution, got %v", err)
	}
	if len(docs) != 1 || docs[0] != filepath.Join("Books", "Markdowns", "Walden", "Walden.md") {
		t.Errorf("unexpected documents %v", docs)
	}
}

func TestResolveDocumentsUnknownTitle(t *testing.T) {
	v := testVault(t)

	if _, err := v.ResolveDocuments("The Brothers Karamazov"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestResolveLanding(t *testing.T) {
	v := testVault(t)

	page, err := v.ResolveLanding("Meditations")
	if err != nil {
		t.Fatal(err)
	}
	if page != filepath.Join("Books", "Meditations.md") {
		t.Errorf("unexpected landing page %s", page)
	}
}

func TestEdition(t *testing.T) {
	if e := Edition("Books/Markdowns/Meditations Hays/Meditations.md"); e != "Meditations Hays" {
		t.Errorf("unexpected edition %q", e)
	}
	if e := Edition("Meditations.md"); e != "Meditations" {
		t.Errorf("unexpected edition %q", e)
	}
}
