// Package workspace builds the codebase context injected into every chat
// turn: a serialized snapshot of the files inside a container's workspace.
package workspace

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

var ErrInvalidContainerID = errors.New("invalid container id")

const defaultMaxFileBytes = 64 << 10

// Directories that add noise without describing the codebase.
var skippedDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
	"dist":         true,
	"build":        true,
	".next":        true,
	"__pycache__":  true,
}

type Node struct {
	Name     string  `json:"name"`
	Path     string  `json:"path"`
	Type     string  `json:"type"`
	Content  string  `json:"content,omitempty"`
	Children []*Node `json:"children,omitempty"`
}

// TreeBuilder walks <root>/<containerID> and produces the context tree.
// Failures propagate; a send never proceeds on partial context.
type TreeBuilder struct {
	root         string
	maxFileBytes int64
	logger       zerolog.Logger
}

func NewTreeBuilder(root string, maxFileBytes int64, logger zerolog.Logger) *TreeBuilder {
	if maxFileBytes <= 0 {
		maxFileBytes = defaultMaxFileBytes
	}
	return &TreeBuilder{root: root, maxFileBytes: maxFileBytes, logger: logger}
}

func (b *TreeBuilder) Build(ctx context.Context, containerID string) (*Node, error) {
	if containerID == "" || strings.ContainsAny(containerID, `/\`) || strings.Contains(containerID, "..") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidContainerID, containerID)
	}

	dir := filepath.Join(b.root, containerID)
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("stat workspace %q: %w", containerID, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace %q is not a directory", containerID)
	}

	node, err := b.walk(ctx, dir, "")
	if err != nil {
		return nil, err
	}
	node.Name = containerID
	return node, nil
}

func (b *TreeBuilder) walk(ctx context.Context, dir, rel string) (*Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %q: %w", rel, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	node := &Node{
		Name: filepath.Base(dir),
		Path: rel,
		Type: "directory",
	}
	for _, entry := range entries {
		name := entry.Name()
		childRel := path.Join(rel, name)

		if entry.IsDir() {
			if skippedDirs[name] {
				continue
			}
			child, err := b.walk(ctx, filepath.Join(dir, name), childRel)
			if err != nil {
				return nil, err
			}
			node.Children = append(node.Children, child)
			continue
		}

		child, ok, err := b.readFile(filepath.Join(dir, name), childRel)
		if err != nil {
			return nil, err
		}
		if ok {
			node.Children = append(node.Children, child)
		}
	}
	return node, nil
}

// readFile returns (nil, false, nil) for files excluded from the context:
// oversized ones and anything that looks binary.
func (b *TreeBuilder) readFile(full, rel string) (*Node, bool, error) {
	info, err := os.Stat(full)
	if err != nil {
		return nil, false, fmt.Errorf("stat %q: %w", rel, err)
	}
	if info.Size() > b.maxFileBytes {
		b.logger.Debug().Str("path", rel).Int64("size", info.Size()).Msg("skipping oversized file")
		return nil, false, nil
	}

	data, err := os.ReadFile(full)
	if err != nil {
		return nil, false, fmt.Errorf("read %q: %w", rel, err)
	}
	if bytes.IndexByte(data, 0) >= 0 {
		return nil, false, nil
	}

	return &Node{
		Name:    filepath.Base(rel),
		Path:    rel,
		Type:    "file",
		Content: string(data),
	}, true, nil
}
