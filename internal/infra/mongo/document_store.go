package mongo

import (
	"context"
	"errors"
	"fmt"

	"code-quizzer/internal/app"
	"code-quizzer/internal/domain"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// record is the stored shape of a document: the path is the primary key and
// the fields live under data so a merge can address them one by one.
type record struct {
	Path   string `bson:"_id"`
	Parent string `bson:"parent"`
	ID     string `bson:"id"`
	Data   bson.M `bson:"data"`
}

// DocumentStore keeps documents in a single Mongo collection.
type DocumentStore struct {
	collection *mongo.Collection
}

func NewDocumentStore(db *mongo.Database) *DocumentStore {
	return &DocumentStore{collection: db.Collection("documents")}
}

// EnsureIndexes creates the index used by collection scans.
func (s *DocumentStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "parent", Value: 1}, {Key: "id", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("create documents index: %w", err)
	}
	return nil
}

func (s *DocumentStore) Get(ctx context.Context, path string) (domain.Fields, bool, error) {
	var rec record
	err := s.collection.FindOne(ctx, bson.M{"_id": path}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, &domain.StoreError{Op: "get", Path: path, Err: err}
	}
	return toFields(rec.Data), true, nil
}

func (s *DocumentStore) Set(ctx context.Context, path string, fields domain.Fields, merge bool) error {
	parent, id := app.SplitPath(path)

	var err error
	if merge {
		set := bson.M{"parent": parent, "id": id}
		for k, v := range fields {
			set["data."+k] = v
		}
		update := bson.M{"$set": set}
		if len(fields) == 0 {
			update["$setOnInsert"] = bson.M{"data": bson.M{}}
		}
		_, err = s.collection.UpdateOne(ctx, bson.M{"_id": path}, update, options.UpdateOne().SetUpsert(true))
	} else {
		rec := record{Path: path, Parent: parent, ID: id, Data: bson.M(fields)}
		if rec.Data == nil {
			rec.Data = bson.M{}
		}
		_, err = s.collection.ReplaceOne(ctx, bson.M{"_id": path}, rec, options.Replace().SetUpsert(true))
	}
	if err != nil {
		return &domain.StoreError{Op: "set", Path: path, Err: err}
	}
	return nil
}

func (s *DocumentStore) List(ctx context.Context, collection string) ([]domain.Document, error) {
	opts := options.Find().SetSort(bson.D{{Key: "id", Value: 1}})
	cursor, err := s.collection.Find(ctx, bson.M{"parent": collection}, opts)
	if err != nil {
		return nil, &domain.StoreError{Op: "list", Path: collection, Err: err}
	}
	defer cursor.Close(ctx)

	var records []record
	if err := cursor.All(ctx, &records); err != nil {
		return nil, &domain.StoreError{Op: "list", Path: collection, Err: err}
	}
	out := make([]domain.Document, 0, len(records))
	for _, rec := range records {
		out = append(out, domain.Document{ID: rec.ID, Path: rec.Path, Fields: toFields(rec.Data)})
	}
	return out, nil
}

func toFields(m bson.M) domain.Fields {
	out := make(domain.Fields, len(m))
	for k, v := range m {
		out[k] = normalize(v)
	}
	return out
}

// normalize rewrites BSON container types into plain maps and slices.
func normalize(v any) any {
	switch t := v.(type) {
	case bson.M:
		return map[string]any(toFields(t))
	case map[string]any:
		return map[string]any(toFields(bson.M(t)))
	case bson.D:
		out := make(map[string]any, len(t))
		for _, e := range t {
			out[e.Key] = normalize(e.Value)
		}
		return out
	case bson.A:
		out := make([]any, len(t))
		for i := range t {
			out[i] = normalize(t[i])
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = normalize(t[i])
		}
		return out
	default:
		return v
	}
}
