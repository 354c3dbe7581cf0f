// Package badgerstore is a local document store on BadgerDB, used to rehearse
// seeding runs without touching a remote database.
package badgerstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/neudinger/acctmigrate/internal/docstore"
)

// Storage model:
//   doc:{collection}/{key} -> JSON(map[string]any)
const prefixDoc = "doc:"

// Config configures the store. An empty Path opens an in-memory database.
type Config struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// Store implements docstore.Store.
type Store struct {
	db *badgerdb.DB
}

// Open opens (or creates) the database.
func Open(cfg Config) (*Store, error) {
	opts := badgerdb.DefaultOptions(cfg.Path).WithLogger(nil)
	if cfg.Path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger store: %w", err)
	}
	return &Store{db: db}, nil
}

func docKey(collection, key string) ([]byte, error) {
	if collection == "" || key == "" {
		return nil, fmt.Errorf("collection and key are required")
	}
	if strings.Contains(collection, "/") {
		return nil, fmt.Errorf("invalid collection %q", collection)
	}
	return []byte(prefixDoc + collection + "/" + key), nil
}

func getTx(txn *badgerdb.Txn, k []byte) (map[string]any, error) {
	item, err := txn.Get(k)
	if err != nil {
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return nil, docstore.ErrNotFound
		}
		return nil, err
	}
	var doc map[string]any
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &doc)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	return doc, nil
}

// Upsert implements docstore.Store. Merge reads and overlays the existing
// document within the same transaction.
func (s *Store) Upsert(ctx context.Context, collection, key string, payload map[string]any, opts docstore.UpsertOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	k, err := docKey(collection, key)
	if err != nil {
		return err
	}

	return s.db.Update(func(txn *badgerdb.Txn) error {
		doc := payload
		if opts.Merge {
			existing, err := getTx(txn, k)
			if err != nil && !errors.Is(err, docstore.ErrNotFound) {
				return err
			}
			doc = docstore.MergeFields(existing, payload)
		}
		data, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("failed to encode document: %w", err)
		}
		if err := txn.Set(k, data); err != nil {
			return fmt.Errorf("failed to store document %s/%s: %w", collection, key, err)
		}
		return nil
	})
}

// Get implements docstore.Store.
func (s *Store) Get(ctx context.Context, collection, key string) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	k, err := docKey(collection, key)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	err = s.db.View(func(txn *badgerdb.Txn) error {
		doc, err = getTx(txn, k)
		return err
	})
	return doc, err
}

// List implements docstore.Store. Badger iterates keys in byte order, so
// documents come back sorted by key.
func (s *Store) List(ctx context.Context, collection string) ([]docstore.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if collection == "" || strings.Contains(collection, "/") {
		return nil, fmt.Errorf("invalid collection %q", collection)
	}
	prefix := []byte(prefixDoc + collection + "/")

	var docs []docstore.Document
	err := s.db.View(func(txn *badgerdb.Txn) error {
		it := txn.NewIterator(badgerdb.IteratorOptions{Prefix: prefix})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := strings.TrimPrefix(string(item.Key()), string(prefix))
			var fields map[string]any
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &fields)
			})
			if err != nil {
				return fmt.Errorf("failed to decode document %s/%s: %w", collection, key, err)
			}
			docs = append(docs, docstore.Document{Key: key, Fields: fields})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
