// Package mongo provides a MongoDB-backed document store.
package mongo

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/JakeFAU/story-crawler/internal/store"
)

const countersCollection = "counters"

// Config controls the Mongo connection.
type Config struct {
	URI      string
	Database string
	// Indexes lists per-collection index keys created on connect.
	Indexes map[string][]Index
}

// Index describes one collection index.
type Index struct {
	Keys   []string
	Unique bool
}

// DocumentStore implements store.Store with one collection per table. Rows
// carry an int64 "id" allocated from a counters collection.
type DocumentStore struct {
	client *mongo.Client
	db     *mongo.Database
}

var _ store.Store = (*DocumentStore)(nil)

// NewDocumentStore connects, pings and ensures indexes.
func NewDocumentStore(ctx context.Context, cfg Config) (*DocumentStore, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("store.dsn is required")
	}
	if cfg.Database == "" {
		return nil, fmt.Errorf("store.database is required")
	}
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	s := &DocumentStore{client: client, db: client.Database(cfg.Database)}
	if err := s.ensureIndexes(connectCtx, cfg.Indexes); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *DocumentStore) ensureIndexes(ctx context.Context, indexes map[string][]Index) error {
	for coll, list := range indexes {
		models := []mongo.IndexModel{{
			Keys:    bson.D{{Key: "id", Value: 1}},
			Options: options.Index().SetUnique(true),
		}}
		for _, idx := range list {
			keys := bson.D{}
			for _, k := range idx.Keys {
				keys = append(keys, bson.E{Key: k, Value: 1})
			}
			model := mongo.IndexModel{Keys: keys}
			if idx.Unique {
				model.Options = options.Index().SetUnique(true)
			}
			models = append(models, model)
		}
		if _, err := s.db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create indexes on %s: %w", coll, err)
		}
	}
	return nil
}

// Close disconnects the client.
func (s *DocumentStore) Close() {
	if s == nil || s.client == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.client.Disconnect(ctx)
}

// Ping checks connectivity.
func (s *DocumentStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("ping mongo: %w", err)
	}
	return nil
}

// Find returns matching documents.
func (s *DocumentStore) Find(ctx context.Context, table string, filter store.Filter, opts store.FindOptions) ([]store.Row, error) {
	findOpts := options.Find()
	if opts.OrderBy != "" {
		dir := 1
		if opts.Desc {
			dir = -1
		}
		findOpts.SetSort(bson.D{{Key: opts.OrderBy, Value: dir}})
	}
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}
	cursor, err := s.db.Collection(table).Find(ctx, toFilter(filter), findOpts)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", table, err)
	}
	defer cursor.Close(ctx)

	var out []store.Row
	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode %s: %w", table, err)
		}
		out = append(out, fromDocument(doc))
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", table, err)
	}
	return out, nil
}

// Insert stores row with a freshly allocated id unless one is set.
func (s *DocumentStore) Insert(ctx context.Context, table string, row store.Row) (store.Row, error) {
	doc := row.Clone()
	if _, ok := doc["id"]; !ok {
		id, err := s.nextID(ctx, table)
		if err != nil {
			return nil, err
		}
		doc["id"] = id
	}
	if _, err := s.db.Collection(table).InsertOne(ctx, bson.M(doc)); err != nil {
		return nil, fmt.Errorf("insert %s: %w", table, err)
	}
	return doc, nil
}

func (s *DocumentStore) nextID(ctx context.Context, table string) (int64, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := s.db.Collection(countersCollection).FindOneAndUpdate(ctx,
		bson.M{"_id": table},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("allocate id for %s: %w", table, err)
	}
	return counter.Seq, nil
}

// Update sets fields on matching documents and returns them.
func (s *DocumentStore) Update(ctx context.Context, table string, filter store.Filter, set store.Row) ([]store.Row, error) {
	matched, err := s.Find(ctx, table, filter, store.FindOptions{})
	if err != nil {
		return nil, err
	}
	if len(matched) == 0 {
		return nil, nil
	}
	ids := make([]any, len(matched))
	for i, row := range matched {
		ids[i] = row["id"]
	}
	fields := set.Clone()
	delete(fields, "id")
	byID := bson.M{"id": bson.M{"$in": ids}}
	if len(fields) > 0 {
		if _, err := s.db.Collection(table).UpdateMany(ctx, byID, bson.M{"$set": bson.M(fields)}); err != nil {
			return nil, fmt.Errorf("update %s: %w", table, err)
		}
	}
	for _, row := range matched {
		for k, v := range fields {
			row[k] = v
		}
	}
	return matched, nil
}

// Delete removes matching documents.
func (s *DocumentStore) Delete(ctx context.Context, table string, filter store.Filter) error {
	if _, err := s.db.Collection(table).DeleteMany(ctx, toFilter(filter)); err != nil {
		return fmt.Errorf("delete %s: %w", table, err)
	}
	return nil
}

// Count returns the number of matching documents.
func (s *DocumentStore) Count(ctx context.Context, table string, filter store.Filter) (int64, error) {
	n, err := s.db.Collection(table).CountDocuments(ctx, toFilter(filter))
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

func toFilter(filter store.Filter) bson.M {
	var clauses []bson.M
	for _, c := range filter.All {
		clauses = append(clauses, condToBSON(c))
	}
	if len(filter.Any) > 0 {
		ors := make([]bson.M, 0, len(filter.Any))
		for _, c := range filter.Any {
			ors = append(ors, condToBSON(c))
		}
		clauses = append(clauses, bson.M{"$or": ors})
	}
	switch len(clauses) {
	case 0:
		return bson.M{}
	case 1:
		return clauses[0]
	default:
		return bson.M{"$and": clauses}
	}
}

func condToBSON(c store.Cond) bson.M {
	switch c.Op {
	case store.OpNeq:
		return bson.M{c.Field: bson.M{"$ne": c.Value}}
	case store.OpEqualFold:
		return bson.M{c.Field: primitive.Regex{Pattern: "^" + regexp.QuoteMeta(fmt.Sprint(c.Value)) + "$", Options: "i"}}
	case store.OpContainsFold:
		return bson.M{c.Field: primitive.Regex{Pattern: regexp.QuoteMeta(fmt.Sprint(c.Value)), Options: "i"}}
	default:
		return bson.M{c.Field: c.Value}
	}
}

func fromDocument(doc bson.M) store.Row {
	row := make(store.Row, len(doc))
	for k, v := range doc {
		if k == "_id" {
			continue
		}
		switch val := v.(type) {
		case int32:
			row[k] = int64(val)
		case primitive.DateTime:
			row[k] = val.Time().UTC()
		default:
			row[k] = val
		}
	}
	return row
}
