package filesystem

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// DefaultIgnores are skipped by every watcher regardless of .gitignore.
var DefaultIgnores = []string{
	".git/",
	".idea/",
	".vscode/",
	"node_modules/",
	"vendor/",
	".DS_Store",
	"*.swp",
	"*~",
	"*.log",
}

type pattern struct {
	glob     string
	dirOnly  bool
	anchored bool
	negate   bool
}

// Ignorer decides which paths below a root are not worth watching. It
// understands the common subset of .gitignore syntax: comments, negation,
// trailing-slash directory patterns and leading-slash anchors.
type Ignorer struct {
	root     string
	patterns []pattern
}

// NewIgnorer creates an Ignorer for root with the default patterns and the
// root's .gitignore, if there is one.
func NewIgnorer(root string) *Ignorer {
	ign := &Ignorer{root: filepath.Clean(root)}
	ign.Add(DefaultIgnores...)

	f, err := os.Open(filepath.Join(root, ".gitignore"))
	if err != nil {
		return ign
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		ign.Add(scanner.Text())
	}
	return ign
}

// Add appends gitignore-style lines. Blank lines and comments are skipped.
func (i *Ignorer) Add(lines ...string) {
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		var p pattern
		if strings.HasPrefix(line, "!") {
			p.negate = true
			line = line[1:]
		}
		if strings.HasSuffix(line, "/") {
			p.dirOnly = true
			line = strings.TrimSuffix(line, "/")
		}
		if strings.HasPrefix(line, "/") {
			p.anchored = true
			line = strings.TrimPrefix(line, "/")
		} else if strings.Contains(line, "/") {
			// A slash in the middle anchors the pattern as well
			p.anchored = true
		}
		p.glob = line
		i.patterns = append(i.patterns, p)
	}
}

// Ignored reports whether path, or one of its parent directories below the
// root, is ignored. The last matching pattern wins.
func (i *Ignorer) Ignored(path string, isDir bool) bool {
	rel, err := filepath.Rel(i.root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return false
	}
	rel = filepath.ToSlash(rel)

	parts := strings.Split(rel, "/")
	for n := 1; n <= len(parts); n++ {
		dir := n < len(parts) || isDir
		if i.match(parts[:n], dir) {
			return true
		}
	}
	return false
}

func (i *Ignorer) match(parts []string, isDir bool) bool {
	rel := strings.Join(parts, "/")
	name := parts[len(parts)-1]

	ignored := false
	for _, p := range i.patterns {
		if p.dirOnly && !isDir {
			continue
		}
		target := name
		if p.anchored {
			target = rel
		}
		if ok, _ := filepath.Match(p.glob, target); ok {
			ignored = !p.negate
		}
	}
	return ignored
}
