package main

import (
	"fmt"

	"github.com/KevoDB/combiner/pkg/common/iterator"
	"github.com/KevoDB/combiner/pkg/common/iterator/bounded"
	"github.com/KevoDB/combiner/pkg/common/log"
	"github.com/KevoDB/combiner/pkg/config"
	"github.com/KevoDB/combiner/pkg/key"
	"github.com/KevoDB/combiner/pkg/memtable"
	"github.com/KevoDB/combiner/pkg/pebblestore"
)

// recordStore is the storage the shell writes records to and scans
type recordStore interface {
	Put(k key.Key, value []byte) error
	Delete(k key.Key) error
	Apply(rec iterator.Record) error
	NewSource() (*bounded.Source, error)
	Close() error
}

// memStore adapts a memtable to recordStore
type memStore struct {
	*memtable.MemTable
}

func (m memStore) NewSource() (*bounded.Source, error) {
	return m.MemTable.NewSource(), nil
}

func (m memStore) Close() error {
	m.SetImmutable()
	return nil
}

// openStore opens the backend named in cfg
func openStore(cfg *config.Config, logger log.Logger) (recordStore, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return memStore{memtable.NewMemTable()}, nil
	case config.BackendPebble:
		store, err := pebblestore.Open(pebblestore.Options{
			Dir:    cfg.DataDir,
			Sync:   cfg.Sync,
			Logger: logger,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}
