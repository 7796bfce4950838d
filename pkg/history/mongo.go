package history

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/matzehuels/handwrite/pkg/errors"
)

// MongoOptions configures NewMongoStore.
type MongoOptions struct {
	URI        string
	Database   string
	Collection string
	Timeout    time.Duration // connect and ping timeout
}

// MongoStore persists entries in a MongoDB collection with a descending
// index on created_at.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// NewMongoStore connects to MongoDB, verifies the connection and ensures the
// created_at index exists.
func NewMongoStore(ctx context.Context, opts MongoOptions) (*MongoStore, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(opts.URI))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeUnavailable, err, "connect to mongodb")
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, errors.Wrap(errors.ErrCodeUnavailable, err, "ping mongodb")
	}

	coll := client.Database(opts.Database).Collection(opts.Collection)
	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "created_at", Value: -1}},
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, errors.Wrap(errors.ErrCodeUnavailable, err, "create history index")
	}
	return &MongoStore{client: client, coll: coll}, nil
}

// document is the stored form of an Entry. BSON has no unsigned 64-bit
// integer, so the seed is stored bit for bit as an int64.
type document struct {
	ID         string    `bson:"_id"`
	CreatedAt  time.Time `bson:"created_at"`
	TextLength int       `bson:"text_length"`
	TextHash   string    `bson:"text_hash"`
	Font       string    `bson:"font"`
	PageCount  int       `bson:"page_count"`
	Seed       int64     `bson:"seed"`
	DurationNS int64     `bson:"duration_ns"`
	Cached     bool      `bson:"cached"`
	PDF        bool      `bson:"pdf"`
}

func toDocument(e Entry) document {
	return document{
		ID:         e.ID,
		CreatedAt:  e.CreatedAt,
		TextLength: e.TextLength,
		TextHash:   e.TextHash,
		Font:       e.Font,
		PageCount:  e.PageCount,
		Seed:       int64(e.Seed),
		DurationNS: int64(e.Duration),
		Cached:     e.Cached,
		PDF:        e.PDF,
	}
}

func (d document) entry() Entry {
	return Entry{
		ID:         d.ID,
		CreatedAt:  d.CreatedAt,
		TextLength: d.TextLength,
		TextHash:   d.TextHash,
		Font:       d.Font,
		PageCount:  d.PageCount,
		Seed:       uint64(d.Seed),
		Duration:   time.Duration(d.DurationNS),
		Cached:     d.Cached,
		PDF:        d.PDF,
	}
}

// Record implements Store.
func (s *MongoStore) Record(ctx context.Context, e Entry) error {
	_, err := s.coll.ReplaceOne(ctx, bson.M{"_id": e.ID}, toDocument(e), options.Replace().SetUpsert(true))
	if err != nil {
		return errors.Wrap(errors.ErrCodeUnavailable, err, "record generation %s", e.ID)
	}
	return nil
}

// Get implements Store.
func (s *MongoStore) Get(ctx context.Context, id string) (Entry, error) {
	var d document
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&d)
	if err == mongo.ErrNoDocuments {
		return Entry{}, errors.New(errors.ErrCodeNotFound, "generation '%s' not found", id)
	}
	if err != nil {
		return Entry{}, errors.Wrap(errors.ErrCodeUnavailable, err, "get generation %s", id)
	}
	return d.entry(), nil
}

// List implements Store.
func (s *MongoStore) List(ctx context.Context, limit int) ([]Entry, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(clampLimit(limit)))
	cur, err := s.coll.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeUnavailable, err, "list generations")
	}
	var docs []document
	if err := cur.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(errors.ErrCodeUnavailable, err, "decode generations")
	}
	out := make([]Entry, len(docs))
	for i, d := range docs {
		out[i] = d.entry()
	}
	return out, nil
}

// Close implements Store.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

var _ Store = (*MongoStore)(nil)
