// Package store implements the per-entity repositories over the db
// collection primitives.
package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"

	"cio-dashboard/internal/db"
	"cio-dashboard/internal/metrics"
)

// ErrNotFound is returned when no record matches the requested id.
var ErrNotFound = db.ErrNotFound

// repository is the shared pass-through for one collection. Every call goes
// through the connector, so a closed and reopened connector is picked up.
type repository[T any] struct {
	conn       *db.Connector
	collection string
	sortField  string
	metrics    *metrics.Metrics
}

func (r *repository[T]) open(ctx context.Context) (db.Collection[T], error) {
	handle, err := r.conn.Connect(ctx)
	if err != nil {
		return nil, err
	}
	return db.OpenCollection[T](handle, r.collection)
}

func (r *repository[T]) record(op string, err error) {
	outcome := metrics.OutcomeOK
	switch {
	case errors.Is(err, ErrNotFound):
		outcome = metrics.OutcomeNotFound
	case err != nil:
		outcome = metrics.OutcomeError
	}
	r.metrics.RecordDBOperation(r.collection, op, outcome)
}

func (r *repository[T]) list(ctx context.Context) (_ []T, err error) {
	defer func() { r.record("list", err) }()
	coll, err := r.open(ctx)
	if err != nil {
		return nil, err
	}
	return coll.FindAll(ctx, r.sortField)
}

func (r *repository[T]) get(ctx context.Context, id string) (_ T, err error) {
	defer func() { r.record("get", err) }()
	var zero T
	oid, err := parseID(id)
	if err != nil {
		return zero, err
	}
	coll, err := r.open(ctx)
	if err != nil {
		return zero, err
	}
	return coll.FindByID(ctx, oid)
}

// create inserts doc and reads it back so the caller sees what was stored.
func (r *repository[T]) create(ctx context.Context, id bson.ObjectID, doc T) (_ T, err error) {
	defer func() { r.record("create", err) }()
	var zero T
	coll, err := r.open(ctx)
	if err != nil {
		return zero, err
	}
	if err := coll.Insert(ctx, id, doc); err != nil {
		return zero, err
	}
	stored, err := coll.FindByID(ctx, id)
	if err != nil {
		return zero, fmt.Errorf("read back %s %s: %w", r.collection, id.Hex(), err)
	}
	return stored, nil
}

func (r *repository[T]) update(ctx context.Context, id string, set bson.D) (_ T, err error) {
	defer func() { r.record("update", err) }()
	var zero T
	oid, err := parseID(id)
	if err != nil {
		return zero, err
	}
	coll, err := r.open(ctx)
	if err != nil {
		return zero, err
	}
	if len(set) > 0 {
		if err := coll.UpdateByID(ctx, oid, set); err != nil {
			return zero, err
		}
	}
	return coll.FindByID(ctx, oid)
}

func (r *repository[T]) delete(ctx context.Context, id string) (_ T, err error) {
	defer func() { r.record("delete", err) }()
	var zero T
	oid, err := parseID(id)
	if err != nil {
		return zero, err
	}
	coll, err := r.open(ctx)
	if err != nil {
		return zero, err
	}
	return coll.FindOneAndDelete(ctx, oid)
}

func (r *repository[T]) deleteAll(ctx context.Context) (_ int64, err error) {
	defer func() { r.record("delete_all", err) }()
	coll, err := r.open(ctx)
	if err != nil {
		return 0, err
	}
	return coll.DeleteAll(ctx)
}

// parseID maps a malformed id to ErrNotFound.
func parseID(id string) (bson.ObjectID, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return bson.NilObjectID, ErrNotFound
	}
	return oid, nil
}
