package filesystem

import (
	"os"
	"path/filepath"
	"testing"
)

func TestIgnorer(t *testing.T) {
	tmpDir := t.TempDir()

	gitignoreContent := `
# Comment
ignored_dir/
*.tmp
!keep.tmp
/root_only.txt
docs/generated
`
	if err := os.WriteFile(filepath.Join(tmpDir, ".gitignore"), []byte(gitignoreContent), 0644); err != nil {
		t.Fatal(err)
	}

	ignorer := NewIgnorer(tmpDir)

	tests := []struct {
		path   string
		isDir  bool
		ignore bool
	}{
		{"node_modules", true, true},
		{".git", true, true},
		{".git/HEAD", false, true},
		{"vendor/github.com/x/y.go", false, true},
		{"src/app_test.go", false, false},
		{"ignored_dir", true, true},
		{"ignored_dir", false, false},
		{"src/ignored_dir/a.go", false, true},
		{"temp.tmp", false, true},
		{"src/temp.tmp", false, true},
		{"keep.tmp", false, false},
		{"root_only.txt", false, true},
		{"src/root_only.txt", false, false},
		{"docs/generated", true, true},
		{"src/docs/generated", true, false},
		{"debug.log", false, true},
		{".", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			fullPath := filepath.Join(tmpDir, tt.path)
			if got := ignorer.Ignored(fullPath, tt.isDir); got != tt.ignore {
				t.Errorf("Ignored(%q, %v) = %v, want %v", tt.path, tt.isDir, got, tt.ignore)
			}
		})
	}
}

func TestIgnorerOutsideRoot(t *testing.T) {
	ignorer := NewIgnorer(t.TempDir())
	if ignorer.Ignored(filepath.Join(os.TempDir(), "elsewhere", "node_modules"), true) {
		t.Error("paths outside the root must not be ignored")
	}
}
