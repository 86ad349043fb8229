package filesystem

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// ChangedFiles returns the absolute paths of files git reports as modified,
// added or untracked below root. Deleted files are left out since nothing can
// be located in them anymore.
func ChangedFiles(ctx context.Context, root string) ([]string, error) {
	// Porcelain output is stable across git versions and locales
	cmd := exec.CommandContext(ctx, "git", "status", "--porcelain", "--untracked-files=all")
	cmd.Dir = root
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("git status: %w", err)
	}

	top, err := gitTopLevel(ctx, root)
	if err != nil {
		return nil, err
	}
	return parsePorcelain(string(output), top), nil
}

func gitTopLevel(ctx context.Context, root string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", "rev-parse", "--show-toplevel")
	cmd.Dir = root
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git rev-parse: %w", err)
	}
	return strings.TrimSpace(string(output)), nil
}

// parsePorcelain turns `git status --porcelain` lines into absolute paths.
// Paths in the output are relative to the repository top level.
func parsePorcelain(output, top string) []string {
	var files []string
	for _, line := range strings.Split(output, "\n") {
		if len(line) < 4 {
			continue
		}
		// Two status letters, a space, then the path
		status, relPath := line[:2], line[3:]
		if strings.Contains(status, "D") {
			continue
		}
		// Renames are reported as "old -> new"
		if i := strings.Index(relPath, " -> "); i >= 0 {
			relPath = relPath[i+len(" -> "):]
		}
		relPath = strings.Trim(relPath, "\"")
		files = append(files, filepath.Join(top, filepath.FromSlash(relPath)))
	}
	return files
}
