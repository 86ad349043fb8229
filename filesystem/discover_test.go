package filesystem

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestIsFixture(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"unit.fixture.yaml", true},
		{"dir/unit.fixture.yml", true},
		{"unit.yaml", false},
		{".testexplorer.yaml", false},
	}

	for _, tt := range tests {
		if got := IsFixture(tt.name); got != tt.want {
			t.Errorf("IsFixture(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestFindFixtures(t *testing.T) {
	tmpDir := t.TempDir()

	filesToCreate := []string{
		"unit.fixture.yaml",
		"pkg/api/api.fixture.yml",
		"pkg/api/notes.yaml",
		"vendor/dep/dep.fixture.yaml",
		"generated/gen.fixture.yaml",
	}
	for _, f := range filesToCreate {
		path := filepath.Join(tmpDir, f)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte("tests: {id: root}"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(tmpDir, ".gitignore"), []byte("generated/\n"), 0644); err != nil {
		t.Fatal(err)
	}

	got, err := FindFixtures(context.Background(), tmpDir)
	if err != nil {
		t.Fatalf("FindFixtures failed: %v", err)
	}

	want := []string{
		filepath.Join(tmpDir, "pkg", "api", "api.fixture.yml"),
		filepath.Join(tmpDir, "unit.fixture.yaml"),
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("FindFixtures() = %v, want %v", got, want)
	}
}
