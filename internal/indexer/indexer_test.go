package indexer

import (
	"os"
	"path/filepath"
	"testing"
)

func TestShouldIndex(t *testing.T) {
	cases := []struct {
		name string
		want bool
	}{
		{"main.go", true},
		{"index.ts", true},
		{"config.yaml", true},
		{"README.md", true},
		{"app.spec.ts", false},
		{"store.test.js", false},
		{"logo.png", false},
		{"binary", false},
		{"Makefile", false},
	}
	for _, c := range cases {
		if got := ShouldIndex(c.name); got != c.want {
			t.Errorf("ShouldIndex(%q) = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestCrawlSkipsNonCodeAndTests(t *testing.T) {
	root := t.TempDir()
	write := func(rel, content string) {
		t.Helper()
		p := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("src/index.ts", "export const a = 1\n")
	write("src/index.spec.ts", "test\n")
	write("node_modules/dep/index.js", "ignored\n")
	write(".git/config", "ignored\n")
	write("assets/logo.png", "ignored\n")
	write("bin/tool.go", string([]byte{'p', 0x00, 'x'}))

	docs, unreadable, err := Crawl(root)
	if err != nil {
		t.Fatalf("Crawl: %v", err)
	}
	if len(unreadable) != 0 {
		t.Fatalf("unexpected unreadable files %v", unreadable)
	}
	if len(docs) != 1 {
		t.Fatalf("expected 1 doc, got %d: %+v", len(docs), docs)
	}
	if docs[0].Path != "/src/index.ts" {
		t.Fatalf("unexpected path %q", docs[0].Path)
	}
	if docs[0].Content != "export const a = 1\n" {
		t.Fatalf("content not snapshotted")
	}
}

func TestCrawlReportsUnreadableFiles(t *testing.T) {
	root := t.TempDir()
	if err := os.Symlink(filepath.Join(root, "missing.go"), filepath.Join(root, "broken.go")); err != nil {
		t.Skip("symlinks not supported:", err)
	}
	if err := os.WriteFile(filepath.Join(root, "ok.go"), []byte("package ok\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	docs, unreadable, err := Crawl(root)
	if err != nil {
		t.Fatalf("Crawl: %v", err)
	}
	if len(docs) != 1 || docs[0].Path != "/ok.go" {
		t.Fatalf("unexpected docs %+v", docs)
	}
	if len(unreadable) != 1 || unreadable[0] != "/broken.go" {
		t.Fatalf("unexpected unreadable files %v", unreadable)
	}
}

func TestCrawlMissingRoot(t *testing.T) {
	if _, _, err := Crawl(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Fatalf("expected error for missing root")
	}
}
