package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/buildownai/buddy/internal/indexer"
	"github.com/buildownai/buddy/internal/sandbox"
)

// ReadFile returns the content of one project file. Asking for a directory
// returns its entry listing instead, so the model can recover from a wrong
// path without a failed call.
func ReadFile(box *sandbox.Box) Tool {
	return Tool{
		Name:        "read_file",
		Description: "Read the content of a file from the project. Returns the directory listing when the path is a directory.",
		Schema: Schema{
			Required: []string{"path"},
			Properties: map[string]Property{
				"path": {Type: "string", Description: "Path of the file relative to the project root, e.g. /src/index.ts"},
			},
		},
		Execute: func(_ context.Context, args map[string]any) (string, error) {
			path := stringArg(args, "path", "/")
			exists, isDir, err := box.Exists(path)
			if err != nil {
				return "", err
			}
			if !exists {
				return fmt.Sprintf("File %s does not exist", path), nil
			}
			if isDir {
				entries, err := box.List(path)
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("%s is a directory. Content:\n%s", path, strings.Join(entries, "\n")), nil
			}
			return box.Read(path)
		},
	}
}

// WriteFile replaces the content of one project file, creating it and its
// parent directories when missing.
func WriteFile(box *sandbox.Box) Tool {
	return Tool{
		Name:        "write_file",
		Description: "Write content to a file in the project. Creates the file and missing directories, overwrites existing content.",
		Schema: Schema{
			Required: []string{"path", "content"},
			Properties: map[string]Property{
				"path":    {Type: "string", Description: "Path of the file relative to the project root"},
				"content": {Type: "string", Description: "The full new content of the file"},
			},
		},
		Execute: func(_ context.Context, args map[string]any) (string, error) {
			path := stringArg(args, "path", "")
			content, _ := args["content"].(string)
			if err := box.Write(path, content); err != nil {
				return "", err
			}
			return fmt.Sprintf("File %s written", path), nil
		},
	}
}

func CreateDirectory(box *sandbox.Box) Tool {
	return Tool{
		Name:        "create_directory",
		Description: "Create a directory in the project, including missing parent directories.",
		Schema: Schema{
			Required: []string{"path"},
			Properties: map[string]Property{
				"path": {Type: "string", Description: "Path of the directory relative to the project root"},
			},
		},
		Execute: func(_ context.Context, args map[string]any) (string, error) {
			path := stringArg(args, "path", "")
			if err := box.Mkdir(path); err != nil {
				return "", err
			}
			return fmt.Sprintf("Directory %s created", path), nil
		},
	}
}

func CheckIfFileExist(box *sandbox.Box) Tool {
	return Tool{
		Name:        "check_if_file_exist",
		Description: "Check if a file or directory exists in the project.",
		Schema: Schema{
			Required: []string{"path"},
			Properties: map[string]Property{
				"path": {Type: "string", Description: "Path relative to the project root"},
			},
		},
		Execute: func(_ context.Context, args map[string]any) (string, error) {
			path := stringArg(args, "path", "")
			exists, isDir, err := box.Exists(path)
			if err != nil {
				return "", err
			}
			switch {
			case !exists:
				return fmt.Sprintf("%s does not exist", path), nil
			case isDir:
				return fmt.Sprintf("%s exists and is a directory", path), nil
			default:
				return fmt.Sprintf("%s exists and is a file", path), nil
			}
		},
	}
}

// GetFolderStructure renders the tree below a directory. Hidden directories,
// node_modules and non-source files are left out.
func GetFolderStructure(box *sandbox.Box) Tool {
	return Tool{
		Name:        "get_folder_structure",
		Description: "Get the folder and source file structure of the project or a subdirectory as an indented tree.",
		Schema: Schema{
			Properties: map[string]Property{
				"path": {Type: "string", Description: "Directory to start from, defaults to the project root"},
			},
		},
		Execute: func(_ context.Context, args map[string]any) (string, error) {
			path := stringArg(args, "path", "/")
			tree, err := box.Tree(path, indexer.IsCodeFile)
			if err != nil {
				return "", err
			}
			if tree == "" {
				return fmt.Sprintf("%s is empty", path), nil
			}
			return tree, nil
		},
	}
}
