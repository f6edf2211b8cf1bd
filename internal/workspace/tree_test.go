package workspace

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestBuildTree(t *testing.T) {
	root := t.TempDir()
	ws := filepath.Join(root, "container-1")
	writeFile(t, filepath.Join(ws, "main.go"), "package main\n")
	writeFile(t, filepath.Join(ws, "internal", "app.go"), "package internal\n")
	writeFile(t, filepath.Join(ws, "node_modules", "dep.js"), "ignored")
	writeFile(t, filepath.Join(ws, "blob.bin"), "abc\x00def")

	b := NewTreeBuilder(root, 0, zerolog.Nop())
	tree, err := b.Build(context.Background(), "container-1")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if tree.Name != "container-1" || tree.Type != "directory" {
		t.Fatalf("unexpected root node %+v", tree)
	}

	names := map[string]*Node{}
	for _, child := range tree.Children {
		names[child.Name] = child
	}
	if _, ok := names["node_modules"]; ok {
		t.Fatalf("node_modules must be skipped")
	}
	if _, ok := names["blob.bin"]; ok {
		t.Fatalf("binary file must be skipped")
	}
	if f, ok := names["main.go"]; !ok || f.Content != "package main\n" || f.Type != "file" {
		t.Fatalf("main.go missing or wrong: %+v", f)
	}
	if d, ok := names["internal"]; !ok || len(d.Children) != 1 || d.Children[0].Path != "internal/app.go" {
		t.Fatalf("nested dir wrong: %+v", d)
	}
}

func TestBuildSkipsOversizedFiles(t *testing.T) {
	root := t.TempDir()
	ws := filepath.Join(root, "c")
	writeFile(t, filepath.Join(ws, "big.txt"), string(make([]byte, 100)))
	writeFile(t, filepath.Join(ws, "small.txt"), "ok")

	b := NewTreeBuilder(root, 10, zerolog.Nop())
	tree, err := b.Build(context.Background(), "c")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(tree.Children) != 1 || tree.Children[0].Name != "small.txt" {
		t.Fatalf("oversized file not skipped: %+v", tree.Children)
	}
}

func TestBuildRejectsBadContainerIDs(t *testing.T) {
	b := NewTreeBuilder(t.TempDir(), 0, zerolog.Nop())
	for _, id := range []string{"", "../etc", "a/b", `a\b`} {
		if _, err := b.Build(context.Background(), id); !errors.Is(err, ErrInvalidContainerID) {
			t.Fatalf("expected ErrInvalidContainerID for %q, got %v", id, err)
		}
	}
}

func TestBuildFailsOnMissingWorkspace(t *testing.T) {
	b := NewTreeBuilder(t.TempDir(), 0, zerolog.Nop())
	if _, err := b.Build(context.Background(), "absent"); err == nil {
		t.Fatalf("expected error for missing workspace")
	}
}
