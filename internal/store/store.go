// Package store persists per-world road-network collections.
//
// A Backend moves opaque bytes; this package owns the encoding. Loading is
// forgiving: a missing or undecodable collection is logged and treated as
// empty so that a damaged save never prevents a world from loading.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"roadweaver/internal/model"
)

var (
	// ErrNotFound is returned by a Backend when a collection was never written.
	ErrNotFound = errors.New("store: collection not found")
	// ErrDecode marks a collection whose bytes could not be decoded.
	ErrDecode = errors.New("store: undecodable collection")
	// ErrClosed is returned by a Backend used after Close.
	ErrClosed = errors.New("store: backend closed")
)

// Collection names.
const (
	Landmarks   = "landmarks"
	Connections = "connections"
	Roads       = "roads"
)

// Backend reads and writes named collections per world.
type Backend interface {
	Get(world, collection string) ([]byte, error)
	// PutAll writes every collection of one world as a single unit.
	PutAll(world string, collections map[string][]byte) error
	Close() error
}

// Load reads every collection of a world. It never fails: missing
// collections are empty, undecodable ones are logged and empty.
func Load(b Backend, world string, logger *log.Logger) model.WorldData {
	if logger == nil {
		logger = log.Default()
	}

	var data model.WorldData
	decode(b, world, Landmarks, &data.Landmarks, logger)
	decode(b, world, Connections, &data.Connections, logger)
	decode(b, world, Roads, &data.Roads, logger)
	return data
}

func decode[T any](b Backend, world, collection string, dst *[]T, logger *log.Logger) {
	raw, err := b.Get(world, collection)
	if errors.Is(err, ErrNotFound) {
		return
	}
	if err != nil {
		logger.Printf("⚠️  reading %s of world %q: %v", collection, world, err)
		return
	}

	var out []T
	if err := json.Unmarshal(raw, &out); err != nil {
		logger.Printf("⚠️  %v: %s of world %q: %v", ErrDecode, collection, world, err)
		return
	}
	*dst = out
}

// Save encodes and writes all collections of a world.
func Save(b Backend, world string, data model.WorldData) error {
	collections := make(map[string][]byte, 3)
	for name, v := range map[string]any{
		Landmarks:   nonNil(data.Landmarks),
		Connections: nonNil(data.Connections),
		Roads:       nonNil(data.Roads),
	} {
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("store: encoding %s: %w", name, err)
		}
		collections[name] = raw
	}
	if err := b.PutAll(world, collections); err != nil {
		return fmt.Errorf("store: saving world %q: %w", world, err)
	}
	return nil
}

// nonNil makes empty collections encode as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
