package store

import (
	"errors"
	"fmt"

	"github.com/df-mc/goleveldb/leveldb"
	"github.com/df-mc/goleveldb/leveldb/opt"
	"github.com/df-mc/goleveldb/leveldb/storage"
)

// LevelBackend stores collections in a LevelDB database keyed by
// "<world>\x00<collection>". All collections of a save go in one batch.
type LevelBackend struct {
	db *leveldb.DB
}

// OpenLevelBackend opens or creates the database at dir.
func OpenLevelBackend(dir string) (*LevelBackend, error) {
	db, err := leveldb.OpenFile(dir, &opt.Options{Compression: opt.SnappyCompression})
	if err != nil {
		return nil, fmt.Errorf("open leveldb: %w", err)
	}
	return &LevelBackend{db: db}, nil
}

// NewMemLevelBackend returns a LevelBackend over in-memory storage.
func NewMemLevelBackend() (*LevelBackend, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb: %w", err)
	}
	return &LevelBackend{db: db}, nil
}

func levelKey(world, collection string) []byte {
	return []byte(world + "\x00" + collection)
}

func (l *LevelBackend) Get(world, collection string) ([]byte, error) {
	data, err := l.db.Get(levelKey(world, collection), nil)
	switch {
	case errors.Is(err, leveldb.ErrNotFound):
		return nil, ErrNotFound
	case errors.Is(err, leveldb.ErrClosed):
		return nil, ErrClosed
	case err != nil:
		return nil, fmt.Errorf("leveldb get: %w", err)
	}
	return data, nil
}

func (l *LevelBackend) PutAll(world string, collections map[string][]byte) error {
	batch := new(leveldb.Batch)
	for name, data := range collections {
		batch.Put(levelKey(world, name), data)
	}
	if err := l.db.Write(batch, nil); err != nil {
		if errors.Is(err, leveldb.ErrClosed) {
			return ErrClosed
		}
		return fmt.Errorf("leveldb write: %w", err)
	}
	return nil
}

func (l *LevelBackend) Close() error {
	return l.db.Close()
}
