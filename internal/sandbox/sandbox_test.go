package sandbox

import (
	"errors"
	"strings"
	"testing"
)

func TestResolveRejectsEscapes(t *testing.T) {
	box, err := New(t.TempDir(), "p1")
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range []string{"../other", "../../etc/passwd", "/../../etc/passwd", "a/../../..", "./../x"} {
		if _, err := box.Resolve(p); !errors.Is(err, ErrOutsideRoot) {
			t.Errorf("Resolve(%q): expected ErrOutsideRoot, got %v", p, err)
		}
	}
	for _, p := range []string{"/src/main.go", "main.go", "/a/./b", "/"} {
		if _, err := box.Resolve(p); err != nil {
			t.Errorf("Resolve(%q): unexpected error %v", p, err)
		}
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	box, err := New(t.TempDir(), "p1")
	if err != nil {
		t.Fatal(err)
	}
	if err := box.Write("/src/deep/file.txt", "hello"); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := box.Read("/src/deep/file.txt")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got != "hello" {
		t.Fatalf("want hello, got %q", got)
	}
}

func TestExistsAndList(t *testing.T) {
	box, err := New(t.TempDir(), "p1")
	if err != nil {
		t.Fatal(err)
	}
	if err := box.Mkdir("/pkg"); err != nil {
		t.Fatal(err)
	}
	if err := box.Write("/pkg/a.go", "x"); err != nil {
		t.Fatal(err)
	}

	exists, isDir, err := box.Exists("/pkg")
	if err != nil || !exists || !isDir {
		t.Fatalf("Exists(/pkg) = %v %v %v", exists, isDir, err)
	}
	exists, isDir, err = box.Exists("/pkg/a.go")
	if err != nil || !exists || isDir {
		t.Fatalf("Exists(/pkg/a.go) = %v %v %v", exists, isDir, err)
	}
	exists, _, err = box.Exists("/missing")
	if err != nil || exists {
		t.Fatalf("Exists(/missing) = %v %v", exists, err)
	}

	names, err := box.List("/")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(names) != 1 || names[0] != "pkg/" {
		t.Fatalf("unexpected listing %v", names)
	}
}

func TestTreeSkipsHiddenDirs(t *testing.T) {
	box, err := New(t.TempDir(), "p1")
	if err != nil {
		t.Fatal(err)
	}
	_ = box.Write("/src/a.go", "x")
	_ = box.Write("/.git/config", "x")
	_ = box.Write("/node_modules/dep/i.js", "x")

	tree, err := box.Tree("/", nil)
	if err != nil {
		t.Fatalf("Tree: %v", err)
	}
	if !strings.Contains(tree, "src/") || !strings.Contains(tree, "a.go") {
		t.Fatalf("tree missing entries:\n%s", tree)
	}
	if strings.Contains(tree, ".git") || strings.Contains(tree, "node_modules") {
		t.Fatalf("tree leaks ignored dirs:\n%s", tree)
	}
}

func TestTreeFileFilter(t *testing.T) {
	box, err := New(t.TempDir(), "p1")
	if err != nil {
		t.Fatal(err)
	}
	_ = box.Write("/src/a.go", "x")
	_ = box.Write("/src/logo.png", "x")

	tree, err := box.Tree("/", func(name string) bool { return strings.HasSuffix(name, ".go") })
	if err != nil {
		t.Fatalf("Tree: %v", err)
	}
	if !strings.Contains(tree, "a.go") {
		t.Fatalf("filtered tree missing a.go:\n%s", tree)
	}
	if strings.Contains(tree, "logo.png") {
		t.Fatalf("filter leaked logo.png:\n%s", tree)
	}
}
