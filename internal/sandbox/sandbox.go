// Package sandbox confines every filesystem operation of the chat tools to
// one project's working directory. All paths coming from the model are
// treated as untrusted and resolved against the project root; anything that
// escapes the root is rejected.
package sandbox

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var ErrOutsideRoot = errors.New("sandbox: path escapes project root")

// Box is the filesystem view of a single project.
type Box struct {
	root string
}

// New returns the sandbox for one project under baseDir. The directory is
// created on first use.
func New(baseDir, projectID string) (*Box, error) {
	root := filepath.Join(baseDir, projectID)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Box{root: root}, nil
}

func (b *Box) Root() string { return b.root }

// Resolve maps a project-relative path (with or without leading slash) to an
// absolute path inside the root. The path is cleaned before it is rooted, so
// any traversal out of the root is still visible as a leading ".." and fails
// with ErrOutsideRoot instead of being remapped into the root.
func (b *Box) Resolve(p string) (string, error) {
	rel := filepath.Clean(strings.TrimPrefix(filepath.FromSlash(p), string(filepath.Separator)))
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrOutsideRoot
	}
	return filepath.Join(b.root, rel), nil
}

func (b *Box) Read(p string) (string, error) {
	abs, err := b.Resolve(p)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Write creates parent directories as needed and replaces the file content.
func (b *Box) Write(p, content string) error {
	abs, err := b.Resolve(p)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return err
	}
	return os.WriteFile(abs, []byte(content), 0o644)
}

func (b *Box) Mkdir(p string) error {
	abs, err := b.Resolve(p)
	if err != nil {
		return err
	}
	return os.MkdirAll(abs, 0o755)
}

// Exists reports whether the path exists and whether it is a directory.
func (b *Box) Exists(p string) (exists, isDir bool, err error) {
	abs, err := b.Resolve(p)
	if err != nil {
		return false, false, err
	}
	info, err := os.Stat(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}
	return true, info.IsDir(), nil
}

// List returns the entry names of a directory, directories suffixed with a
// slash, sorted alphabetically.
func (b *Box) List(p string) ([]string, error) {
	abs, err := b.Resolve(p)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		n := e.Name()
		if e.IsDir() {
			n += "/"
		}
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

// Tree renders the directory structure below p as an indented listing.
// Dot directories and node_modules are skipped; includeFile decides per
// file name whether it shows up (nil includes everything).
func (b *Box) Tree(p string, includeFile func(name string) bool) (string, error) {
	abs, err := b.Resolve(p)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	err = filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if path == abs {
			return nil
		}
		name := d.Name()
		if d.IsDir() && (strings.HasPrefix(name, ".") || name == "node_modules") {
			return filepath.SkipDir
		}
		if !d.IsDir() && includeFile != nil && !includeFile(name) {
			return nil
		}
		rel, err := filepath.Rel(abs, path)
		if err != nil {
			return nil
		}
		depth := strings.Count(rel, string(filepath.Separator))
		sb.WriteString(strings.Repeat("  ", depth))
		if d.IsDir() {
			sb.WriteString(name + "/\n")
		} else {
			sb.WriteString(name + "\n")
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return sb.String(), nil
}
