package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/IshaanNene/gleaner/internal/types"
)

// mongoEntry is one progress document. The record is kept as JSON text so
// absence markers and number types come back exactly as written.
type mongoEntry struct {
	ID        string    `bson:"_id"`
	Order     int       `bson:"order"`
	Status    string    `bson:"status"`
	Record    string    `bson:"record,omitempty"`
	Attempts  int       `bson:"attempts"`
	LastError string    `bson:"last_error,omitempty"`
	UpdatedAt time.Time `bson:"updated_at"`
	Expanded  bool      `bson:"expanded,omitempty"`
	Children  []string  `bson:"children,omitempty"`
}

// MongoStore keeps one document per identifier, keyed by the identifier.
type MongoStore struct {
	*index
	client     *mongo.Client
	collection *mongo.Collection
	logger     *slog.Logger
}

// NewMongoStore connects and pings the server.
func NewMongoStore(ctx context.Context, uri, database, collection string, logger *slog.Logger) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongodb connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongodb ping: %w", err)
	}

	return &MongoStore{
		index:      newIndex(),
		client:     client,
		collection: client.Database(database).Collection(collection),
		logger:     logger.With("component", "mongo_progress"),
	}, nil
}

// Load implements Store. Documents that fail to decode are skipped and
// logged; their identifiers will be processed again.
func (s *MongoStore) Load(ctx context.Context) error {
	cur, err := s.collection.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "order", Value: 1}}))
	if err != nil {
		return &types.StorageError{Backend: "mongodb", Err: fmt.Errorf("load progress: %w", err)}
	}
	defer cur.Close(ctx)

	var entries []types.ProgressEntry
	for cur.Next(ctx) {
		var doc mongoEntry
		if err := cur.Decode(&doc); err != nil {
			s.logger.Warn("skipping unreadable progress document", "error", &types.StoreCorruptionError{Path: s.collection.Name(), Err: err})
			continue
		}
		entry, err := doc.entry()
		if err != nil {
			s.logger.Warn("skipping unreadable progress document", "id", doc.ID, "error", &types.StoreCorruptionError{Path: s.collection.Name(), Err: err})
			continue
		}
		entries = append(entries, entry)
	}
	if err := cur.Err(); err != nil {
		return &types.StorageError{Backend: "mongodb", Err: err}
	}

	s.reset(entries)
	s.logger.Info("progress loaded", "collection", s.collection.Name(), "entries", len(entries))
	return nil
}

// Record implements Store with an upsert keyed by identifier.
func (s *MongoStore) Record(ctx context.Context, entry types.ProgressEntry) error {
	merged := s.put(entry)
	doc, err := newMongoEntry(merged)
	if err != nil {
		return &types.StorageError{Backend: "mongodb", Err: err}
	}

	// Writes must land even when the run is being cancelled.
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	_, err = s.collection.ReplaceOne(wctx, bson.D{{Key: "_id", Value: doc.ID}}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return &types.StorageError{Backend: "mongodb", Err: fmt.Errorf("upsert %s: %w", doc.ID, err)}
	}
	return nil
}

func (s *MongoStore) Has(id string) bool                        { return s.has(id) }
func (s *MongoStore) Get(id string) (types.ProgressEntry, bool) { return s.get(id) }
func (s *MongoStore) All() []types.ProgressEntry                { return s.ordered() }

// Close disconnects the client.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func newMongoEntry(e types.ProgressEntry) (mongoEntry, error) {
	doc := mongoEntry{
		ID:        e.ID,
		Order:     e.Order,
		Status:    string(e.Status),
		Attempts:  e.Attempts,
		LastError: e.LastError,
		UpdatedAt: e.UpdatedAt,
		Expanded:  e.Expanded,
		Children:  e.Children,
	}
	if e.Record != nil {
		b, err := types.MarshalJSON(e.Record)
		if err != nil {
			return doc, fmt.Errorf("encode record %s: %w", e.ID, err)
		}
		doc.Record = string(b)
	}
	return doc, nil
}

func (d mongoEntry) entry() (types.ProgressEntry, error) {
	e := types.ProgressEntry{
		ID:        d.ID,
		Order:     d.Order,
		Status:    types.Status(d.Status),
		Attempts:  d.Attempts,
		LastError: d.LastError,
		UpdatedAt: d.UpdatedAt,
		Expanded:  d.Expanded,
		Children:  d.Children,
	}
	if d.Record != "" {
		var rec types.Record
		if err := json.Unmarshal([]byte(d.Record), &rec); err != nil {
			return e, err
		}
		e.Record = &rec
	}
	return e, nil
}
