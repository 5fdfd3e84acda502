package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// MongoDialer connects to MongoDB with the stable Server API v1.
type MongoDialer struct {
	URI      string
	Database string
	// ServerSelectionTimeout bounds how long the initial ping waits for a
	// reachable server. Zero uses 10s.
	ServerSelectionTimeout time.Duration
}

// MongoDatabase is a connected MongoDB database.
type MongoDatabase struct {
	client *mongo.Client
	db     *mongo.Database
}

func (d *MongoDialer) Dial(ctx context.Context) (Database, error) {
	if d.URI == "" {
		return nil, &ConnectionError{Driver: DriverMongo, Err: errors.New("connection string is not set")}
	}
	timeout := d.ServerSelectionTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	serverAPI := options.ServerAPI(options.ServerAPIVersion1).
		SetStrict(true).
		SetDeprecationErrors(true)
	opts := options.Client().
		ApplyURI(d.URI).
		SetServerAPIOptions(serverAPI).
		SetServerSelectionTimeout(timeout)

	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, &ConnectionError{Driver: DriverMongo, Err: err}
	}

	name := d.Database
	if name == "" {
		name = "CIODashboard"
	}
	mdb := &MongoDatabase{client: client, db: client.Database(name)}
	if err := mdb.Ping(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, &ConnectionError{Driver: DriverMongo, Err: err}
	}
	return mdb, nil
}

func (m *MongoDatabase) Driver() string { return DriverMongo }

// Ping runs the ping command against the admin database.
func (m *MongoDatabase) Ping(ctx context.Context) error {
	return m.client.Database("admin").RunCommand(ctx, bson.D{{Key: "ping", Value: 1}}).Err()
}

func (m *MongoDatabase) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

type mongoCollection[T any] struct {
	coll *mongo.Collection
}

func (c *mongoCollection[T]) FindAll(ctx context.Context, sortField string) ([]T, error) {
	opts := options.Find().SetSort(bson.D{{Key: sortField, Value: -1}})
	cur, err := c.coll.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", c.coll.Name(), err)
	}
	out := make([]T, 0)
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", c.coll.Name(), err)
	}
	return out, nil
}

func (c *mongoCollection[T]) FindByID(ctx context.Context, id bson.ObjectID) (T, error) {
	var doc T
	err := c.coll.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return doc, ErrNotFound
	}
	if err != nil {
		return doc, fmt.Errorf("find %s %s: %w", c.coll.Name(), id.Hex(), err)
	}
	return doc, nil
}

func (c *mongoCollection[T]) Insert(ctx context.Context, _ bson.ObjectID, doc T) error {
	if _, err := c.coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert %s: %w", c.coll.Name(), err)
	}
	return nil
}

func (c *mongoCollection[T]) UpdateByID(ctx context.Context, id bson.ObjectID, set bson.D) error {
	res, err := c.coll.UpdateOne(ctx, bson.D{{Key: "_id", Value: id}}, bson.D{{Key: "$set", Value: set}})
	if err != nil {
		return fmt.Errorf("update %s %s: %w", c.coll.Name(), id.Hex(), err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (c *mongoCollection[T]) FindOneAndDelete(ctx context.Context, id bson.ObjectID) (T, error) {
	var doc T
	err := c.coll.FindOneAndDelete(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return doc, ErrNotFound
	}
	if err != nil {
		return doc, fmt.Errorf("delete %s %s: %w", c.coll.Name(), id.Hex(), err)
	}
	return doc, nil
}

func (c *mongoCollection[T]) DeleteAll(ctx context.Context) (int64, error) {
	res, err := c.coll.DeleteMany(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("clear %s: %w", c.coll.Name(), err)
	}
	return res.DeletedCount, nil
}
