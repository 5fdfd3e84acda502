package db

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Collection is the set of datastore primitives a repository needs. T is
// the stored document type; its bson and json field names must agree.
type Collection[T any] interface {
	// FindAll returns every document sorted descending by sortField.
	FindAll(ctx context.Context, sortField string) ([]T, error)
	FindByID(ctx context.Context, id bson.ObjectID) (T, error)
	Insert(ctx context.Context, id bson.ObjectID, doc T) error
	// UpdateByID sets the given fields. ErrNotFound when id does not exist.
	UpdateByID(ctx context.Context, id bson.ObjectID, set bson.D) error
	// FindOneAndDelete atomically removes the document and returns it.
	FindOneAndDelete(ctx context.Context, id bson.ObjectID) (T, error)
	DeleteAll(ctx context.Context) (int64, error)
}

// OpenCollection binds a named collection on d.
func OpenCollection[T any](d Database, name string) (Collection[T], error) {
	switch d := d.(type) {
	case *MongoDatabase:
		return &mongoCollection[T]{coll: d.db.Collection(name)}, nil
	case *PostgresDatabase:
		table, err := TableName(name)
		if err != nil {
			return nil, err
		}
		return &pgCollection[T]{db: d.db, table: table}, nil
	case *MemoryDatabase:
		return &memoryCollection[T]{db: d, name: name}, nil
	default:
		return nil, fmt.Errorf("unsupported database %T", d)
	}
}

var tableNameRe = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// TableName maps a camelCase collection name to its snake_case table.
func TableName(collection string) (string, error) {
	var sb strings.Builder
	for i, r := range collection {
		if unicode.IsUpper(r) {
			if i > 0 {
				sb.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		sb.WriteRune(r)
	}
	table := sb.String()
	if !tableNameRe.MatchString(table) {
		return "", fmt.Errorf("invalid collection name %q", collection)
	}
	return table, nil
}
