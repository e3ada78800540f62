// Package mongo implements the store interface for MongoDB.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	mgo "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tarancss/txd/lib/store"
)

const (
	database   = "txd"
	collection = "status"
)

// Mongo implements a connection to a MongoDB database.
type Mongo struct {
	c *mgo.Client
}

// New returns a Mongo client connection to the specified MongoDB database uri.
func New(uri string) (*Mongo, error) {
	c, err := mgo.NewClient(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("cannot connect to mongo DB in %s: %w", uri, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second) //nolint:gomnd // 5 seconds timeout
	defer cancel()

	if err = c.Connect(ctx); err != nil {
		return nil, fmt.Errorf("error connecting to mongo DB: %w", err)
	}

	return &Mongo{c: c}, nil
}

// CloseMongo will close the database connection. Must be called at termination time.
func (m *Mongo) CloseMongo() error {
	return m.c.Disconnect(context.Background())
}

// UpsertStatus saves the status, replacing any document already stored for the same transaction.
func (m *Mongo) UpsertStatus(ctx context.Context, t store.TxStatus) error {
	col := m.c.Database(database).Collection(collection)

	filter := bson.M{"chain": t.Chain, "hash": t.Hash}
	opts := options.Replace().SetUpsert(true)

	if _, err := col.ReplaceOne(ctx, filter, t, opts); err != nil {
		return fmt.Errorf("could not upsert status in db: %w", err)
	}

	return nil
}

// GetStatus returns the latest status for a transaction.
func (m *Mongo) GetStatus(ctx context.Context, chain, hash string) (store.TxStatus, error) {
	col := m.c.Database(database).Collection(collection)

	var t store.TxStatus

	err := col.FindOne(ctx, bson.M{"chain": chain, "hash": hash}).Decode(&t)
	if errors.Is(err, mgo.ErrNoDocuments) {
		return store.TxStatus{}, store.ErrNotFound
	}

	if err != nil {
		return store.TxStatus{}, fmt.Errorf("could not read status from db: %w", err)
	}

	return t, nil
}

// ListStatuses returns matching statuses newest first.
func (m *Mongo) ListStatuses(ctx context.Context, f store.Filter) ([]store.TxStatus, error) {
	col := m.c.Database(database).Collection(collection)

	filter := bson.M{}
	if f.Chain != "" {
		filter["chain"] = f.Chain
	}

	if f.State != "" {
		filter["state"] = f.State
	}

	limit := f.Limit
	if limit <= 0 || limit > store.DefaultListLimit {
		limit = store.DefaultListLimit
	}

	opts := options.Find().SetSort(bson.M{"observed": -1}).SetLimit(int64(limit))

	cur, err := col.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("could not list statuses from db: %w", err)
	}
	defer cur.Close(ctx)

	var out []store.TxStatus
	if err = cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("could not decode statuses from db: %w", err)
	}

	return out, nil
}
