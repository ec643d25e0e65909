// Package indexer enumerates the source files of a cloned repository that
// are worth indexing. Non-code files, test files, VCS metadata and binaries
// are filtered out before tasks are created for the remainder.
package indexer

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FileDoc is one crawled file with its content snapshot.
type FileDoc struct {
	Path    string
	Content string
}

var skipDirs = map[string]struct{}{
	".git": {}, "node_modules": {}, ".DS_Store": {}, ".zed": {}, ".vscode": {},
	"vendor": {}, "dist": {}, "build": {}, ".next": {}, ".cache": {},
}

var codeExtensions = map[string]struct{}{
	".js": {}, ".cjs": {}, ".mjs": {}, ".ts": {}, ".jsx": {}, ".tsx": {},
	".html": {}, ".css": {}, ".scss": {}, ".json": {}, ".xml": {}, ".vue": {},
	".svelte": {}, ".astro": {}, ".njk": {}, ".ejs": {}, ".hbs": {},
	".py": {}, ".java": {}, ".c": {}, ".cpp": {}, ".cs": {}, ".h": {},
	".php": {}, ".rb": {}, ".go": {}, ".rs": {}, ".swift": {}, ".kt": {},
	".scala": {}, ".sh": {}, ".sql": {}, ".yaml": {}, ".yml": {}, ".toml": {},
	".md": {},
}

// IsCodeFile reports whether the extension marks a source-code file.
func IsCodeFile(name string) bool {
	_, ok := codeExtensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

// isTestFile matches the *.spec.* and *.test.* naming convention.
func isTestFile(name string) bool {
	parts := strings.Split(name, ".")
	if len(parts) < 3 {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(parts[len(parts)-2])) {
	case "spec", "test":
		return true
	}
	return false
}

// ShouldIndex decides whether a file name qualifies for indexing.
func ShouldIndex(name string) bool {
	return IsCodeFile(name) && !isTestFile(name)
}

// Crawl walks root and returns the indexable files with their content.
// Files that fail to read come back in the second return value so the
// caller can log them; binary files are dropped without notice. The walk
// itself only fails when the root cannot be read at all. Returned paths are
// slash-separated and rooted at "/" the way the chat tools address project
// files.
func Crawl(root string) ([]FileDoc, []string, error) {
	if _, err := os.Stat(root); err != nil {
		return nil, nil, err
	}
	var docs []FileDoc
	var unreadable []string
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if _, skip := skipDirs[d.Name()]; skip {
				return filepath.SkipDir
			}
			return nil
		}
		if !ShouldIndex(d.Name()) {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		b, err := os.ReadFile(path)
		if err != nil {
			unreadable = append(unreadable, "/"+filepath.ToSlash(rel))
			return nil
		}
		if looksBinary(b) {
			return nil
		}
		docs = append(docs, FileDoc{Path: "/" + filepath.ToSlash(rel), Content: string(b)})
		return nil
	})
	return docs, unreadable, nil
}

// looksBinary rejects content with a NUL byte in the first 8000 bytes.
func looksBinary(b []byte) bool {
	n := len(b)
	if n > 8000 {
		n = 8000
	}
	for i := 0; i < n; i++ {
		if b[i] == 0 {
			return true
		}
	}
	return false
}
