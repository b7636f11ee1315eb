package store

import (
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// FileBackend stores each collection as a JSON file under
// <dir>/<world>/<collection>.json.
type FileBackend struct {
	dir string
}

// NewFileBackend creates dir if needed.
func NewFileBackend(dir string) (*FileBackend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	return &FileBackend{dir: dir}, nil
}

func (f *FileBackend) path(world, collection string) string {
	// World ids come from callers; keep them inside dir.
	world = strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(world)
	return filepath.Join(f.dir, world, collection+".json")
}

func (f *FileBackend) Get(world, collection string) ([]byte, error) {
	data, err := os.ReadFile(f.path(world, collection))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return data, nil
}

// commitOrder is the order renames happen in. Roads go before connections so
// a connection is never stored COMPLETED without its road record.
var commitOrder = []string{Landmarks, Roads, Connections}

// renameOrder lists the collection names in commitOrder, followed by any
// others in sorted order.
func renameOrder(collections map[string][]byte) []string {
	names := make([]string, 0, len(collections))
	for _, name := range commitOrder {
		if _, ok := collections[name]; ok {
			names = append(names, name)
		}
	}
	for _, name := range slices.Sorted(maps.Keys(collections)) {
		if !slices.Contains(commitOrder, name) {
			names = append(names, name)
		}
	}
	return names
}

// PutAll writes every collection to a temporary file first and renames them
// into place once all writes succeeded.
func (f *FileBackend) PutAll(world string, collections map[string][]byte) error {
	order := renameOrder(collections)
	pending := make(map[string]bool, len(order))
	defer func() {
		for _, name := range order {
			if pending[name] {
				os.Remove(f.path(world, name) + ".tmp")
			}
		}
	}()

	for _, name := range order {
		final := f.path(world, name)
		if err := os.MkdirAll(filepath.Dir(final), 0o755); err != nil {
			return fmt.Errorf("failed to create world dir: %w", err)
		}
		if err := os.WriteFile(final+".tmp", collections[name], 0o644); err != nil {
			return fmt.Errorf("failed to write file: %w", err)
		}
		pending[name] = true
	}
	for _, name := range order {
		final := f.path(world, name)
		if err := os.Rename(final+".tmp", final); err != nil {
			return fmt.Errorf("failed to replace %s: %w", filepath.Base(final), err)
		}
		pending[name] = false
	}
	return nil
}

func (f *FileBackend) Close() error { return nil }
