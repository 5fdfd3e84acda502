// Package db owns the datastore connection and the collection primitives the
// repositories are built on.
//
// A Connector lazily dials one backend (MongoDB, PostgreSQL JSONB, or an
// in-process store) and hands the same Database to every caller until Close.
package db

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"
)

const (
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// ErrNotFound is returned when no record matches the requested id.
var ErrNotFound = errors.New("record not found")

// ErrClosedDuringDial is returned to callers whose dial finished after Close.
var ErrClosedDuringDial = errors.New("connector closed while dialing")

// ConnectionError reports that a database handle could not be established.
type ConnectionError struct {
	Driver string
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s connection failed: %v", e.Driver, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// Database is a live datastore handle.
type Database interface {
	Driver() string
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Dialer opens a verified handle. Implementations must ping before
// returning so an unreachable server fails here.
type Dialer interface {
	Dial(ctx context.Context) (Database, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context) (Database, error)

func (f DialerFunc) Dial(ctx context.Context) (Database, error) { return f(ctx) }

// Config selects and addresses a backend.
type Config struct {
	Driver           string
	ConnectionString string
	Name             string
}

// NewDialer returns the Dialer for cfg.Driver.
func NewDialer(cfg Config) (Dialer, error) {
	switch cfg.Driver {
	case DriverMongo, "":
		return &MongoDialer{URI: cfg.ConnectionString, Database: cfg.Name}, nil
	case DriverPostgres:
		return &PostgresDialer{DSN: cfg.ConnectionString}, nil
	case DriverMemory:
		return NewMemoryDialer(), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// Connector memoizes one Database. Concurrent first callers share a single
// dial; there is no retry. The shared dial does not inherit any caller's
// cancellation, but each caller stops waiting when its own ctx is done.
type Connector struct {
	dialer Dialer
	group  singleflight.Group

	mu  sync.RWMutex
	db  Database
	gen uint64 // bumped by Close
}

// NewConnector returns a Connector that dials through d.
func NewConnector(d Dialer) *Connector {
	return &Connector{dialer: d}
}

// Connect returns the cached handle, dialing on first use.
func (c *Connector) Connect(ctx context.Context) (Database, error) {
	c.mu.RLock()
	db, gen := c.db, c.gen
	c.mu.RUnlock()
	if db != nil {
		return db, nil
	}

	dialCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(strconv.FormatUint(gen, 10), func() (any, error) {
		if db := c.cached(); db != nil {
			return db, nil
		}
		db, err := c.dialer.Dial(dialCtx)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		if c.gen != gen {
			c.mu.Unlock()
			_ = db.Close(dialCtx)
			return nil, ErrClosedDuringDial
		}
		c.db = db
		c.mu.Unlock()
		return db, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(Database), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Connector) cached() Database {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.db
}

// Ping checks the cached handle. It does not dial.
func (c *Connector) Ping(ctx context.Context) error {
	db := c.cached()
	if db == nil {
		return errors.New("database not connected")
	}
	return db.Ping(ctx)
}

// Close releases the handle and clears the cache so a later Connect dials
// again. A dial still in flight is discarded when it completes. Closing an
// unconnected Connector is a no-op.
func (c *Connector) Close(ctx context.Context) error {
	c.mu.Lock()
	db := c.db
	c.db = nil
	c.gen++
	c.mu.Unlock()

	if db == nil {
		return nil
	}
	return db.Close(ctx)
}
