package db

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"go.mongodb.org/mongo-driver/v2/bson"
)

var errMemoryClosed = errors.New("memory database closed")

// memoryStore holds BSON documents per collection. It outlives individual
// handles so a reconnect sees earlier writes.
type memoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[bson.ObjectID]bson.Raw
}

// MemoryDialer hands out handles onto one process-local store.
type MemoryDialer struct {
	store *memoryStore
}

// NewMemoryDialer returns a dialer backed by an empty store.
func NewMemoryDialer() *MemoryDialer {
	return &MemoryDialer{store: &memoryStore{collections: make(map[string]map[bson.ObjectID]bson.Raw)}}
}

func (d *MemoryDialer) Dial(context.Context) (Database, error) {
	return &MemoryDatabase{store: d.store}, nil
}

// MemoryDatabase is a handle onto a MemoryDialer's store.
type MemoryDatabase struct {
	store  *memoryStore
	closed atomic.Bool
}

func (m *MemoryDatabase) Driver() string { return DriverMemory }

func (m *MemoryDatabase) Ping(context.Context) error {
	if m.closed.Load() {
		return errMemoryClosed
	}
	return nil
}

func (m *MemoryDatabase) Close(context.Context) error {
	m.closed.Store(true)
	return nil
}

type memoryCollection[T any] struct {
	db   *MemoryDatabase
	name string
}

// docs returns the collection map, creating it when create is set. Callers
// hold the store lock.
func (c *memoryCollection[T]) docs(create bool) map[bson.ObjectID]bson.Raw {
	docs, ok := c.db.store.collections[c.name]
	if !ok && create {
		docs = make(map[bson.ObjectID]bson.Raw)
		c.db.store.collections[c.name] = docs
	}
	return docs
}

func (c *memoryCollection[T]) check(ctx context.Context) error {
	if c.db.closed.Load() {
		return errMemoryClosed
	}
	return ctx.Err()
}

func (c *memoryCollection[T]) FindAll(ctx context.Context, sortField string) ([]T, error) {
	if err := c.check(ctx); err != nil {
		return nil, err
	}

	type entry struct {
		id  bson.ObjectID
		key int64
		ok  bool
		raw bson.Raw
	}

	c.db.store.mu.RLock()
	entries := make([]entry, 0, len(c.docs(false)))
	for id, raw := range c.docs(false) {
		key, ok := raw.Lookup(sortField).DateTimeOK()
		entries = append(entries, entry{id: id, key: key, ok: ok, raw: raw})
	}
	c.db.store.mu.RUnlock()

	// Descending by sort key, missing keys last, newest id first on ties.
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.ok != b.ok {
			return a.ok
		}
		if a.key != b.key {
			return a.key > b.key
		}
		return a.id.Hex() > b.id.Hex()
	})

	out := make([]T, 0, len(entries))
	for _, e := range entries {
		var doc T
		if err := bson.Unmarshal(e.raw, &doc); err != nil {
			return nil, fmt.Errorf("decode %s: %w", c.name, err)
		}
		out = append(out, doc)
	}
	return out, nil
}

func (c *memoryCollection[T]) FindByID(ctx context.Context, id bson.ObjectID) (T, error) {
	var doc T
	if err := c.check(ctx); err != nil {
		return doc, err
	}

	c.db.store.mu.RLock()
	raw, ok := c.docs(false)[id]
	c.db.store.mu.RUnlock()
	if !ok {
		return doc, ErrNotFound
	}
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return doc, fmt.Errorf("decode %s %s: %w", c.name, id.Hex(), err)
	}
	return doc, nil
}

func (c *memoryCollection[T]) Insert(ctx context.Context, id bson.ObjectID, doc T) error {
	if err := c.check(ctx); err != nil {
		return err
	}
	raw, err := bson.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s: %w", c.name, err)
	}

	c.db.store.mu.Lock()
	defer c.db.store.mu.Unlock()
	docs := c.docs(true)
	if _, exists := docs[id]; exists {
		return fmt.Errorf("insert %s: duplicate id %s", c.name, id.Hex())
	}
	docs[id] = raw
	return nil
}

func (c *memoryCollection[T]) UpdateByID(ctx context.Context, id bson.ObjectID, set bson.D) error {
	if err := c.check(ctx); err != nil {
		return err
	}

	c.db.store.mu.Lock()
	defer c.db.store.mu.Unlock()
	docs := c.docs(false)
	raw, ok := docs[id]
	if !ok {
		return ErrNotFound
	}

	var current bson.D
	if err := bson.Unmarshal(raw, &current); err != nil {
		return fmt.Errorf("decode %s %s: %w", c.name, id.Hex(), err)
	}
	for _, e := range set {
		replaced := false
		for i := range current {
			if current[i].Key == e.Key {
				current[i].Value = e.Value
				replaced = true
				break
			}
		}
		if !replaced {
			current = append(current, e)
		}
	}

	updated, err := bson.Marshal(current)
	if err != nil {
		return fmt.Errorf("encode %s %s: %w", c.name, id.Hex(), err)
	}
	docs[id] = updated
	return nil
}

func (c *memoryCollection[T]) FindOneAndDelete(ctx context.Context, id bson.ObjectID) (T, error) {
	var doc T
	if err := c.check(ctx); err != nil {
		return doc, err
	}

	c.db.store.mu.Lock()
	docs := c.docs(false)
	raw, ok := docs[id]
	if ok {
		delete(docs, id)
	}
	c.db.store.mu.Unlock()

	if !ok {
		return doc, ErrNotFound
	}
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return doc, fmt.Errorf("decode %s %s: %w", c.name, id.Hex(), err)
	}
	return doc, nil
}

func (c *memoryCollection[T]) DeleteAll(ctx context.Context) (int64, error) {
	if err := c.check(ctx); err != nil {
		return 0, err
	}

	c.db.store.mu.Lock()
	defer c.db.store.mu.Unlock()
	n := int64(len(c.docs(false)))
	delete(c.db.store.collections, c.name)
	return n, nil
}
