package utils

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileOperations(t *testing.T) {
	tmpDir := t.TempDir()

	t.Run("WriteFile creates parents", func(t *testing.T) {
		path := filepath.Join(tmpDir, "nested", "dir", "session.toml")
		if err := WriteFile(path, []byte("version = 1")); err != nil {
			t.Fatalf("WriteFile() error = %v", err)
		}
		if !FileExists(path) {
			t.Fatal("File was not created")
		}

		content, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("ReadFile() error = %v", err)
		}
		if string(content) != "version = 1" {
			t.Errorf("content = %q, want %q", content, "version = 1")
		}
	})

	t.Run("WriteFile replaces content", func(t *testing.T) {
		path := filepath.Join(tmpDir, "replace.toml")
		_ = WriteFile(path, []byte("old content"))
		if err := WriteFile(path, []byte("new")); err != nil {
			t.Fatalf("WriteFile() error = %v", err)
		}
		content, _ := os.ReadFile(path)
		if string(content) != "new" {
			t.Errorf("content = %q, want %q", content, "new")
		}

		entries, _ := os.ReadDir(tmpDir)
		for _, e := range entries {
			if filepath.Ext(e.Name()) != ".toml" && !e.IsDir() {
				t.Errorf("leftover temp file %s", e.Name())
			}
		}
	})

	t.Run("FileExists", func(t *testing.T) {
		if FileExists(filepath.Join(tmpDir, "nonexistent.txt")) {
			t.Error("FileExists() returned true for non-existent file")
		}
	})
}

func TestEnsureDir(t *testing.T) {
	tmpDir := t.TempDir()

	path := filepath.Join(tmpDir, "ensure", "test")
	if err := EnsureDir(path); err != nil {
		t.Errorf("EnsureDir() error = %v", err)
	}
	if !DirExists(path) {
		t.Error("Directory was not created by EnsureDir()")
	}

	// existing dir is fine
	if err := EnsureDir(path); err != nil {
		t.Errorf("EnsureDir() on existing dir error = %v", err)
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}

	tests := []struct {
		in   string
		want string
	}{
		{in: "~/.crewview/session.toml", want: filepath.Join(home, ".crewview/session.toml")},
		{in: "~", want: home},
		{in: "/tmp/session.toml", want: "/tmp/session.toml"},
		{in: "~other/file", want: "~other/file"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ExpandHome(tt.in)
			if err != nil {
				t.Fatalf("ExpandHome() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ExpandHome(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
