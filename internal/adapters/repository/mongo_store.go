package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/taskmaster/deptflow/internal/ports"
)

// MongoStore keeps documents in one collection keyed by path:
// {_id: path, parent, key, data}.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

func NewMongoStore(client *mongo.Client, database, collection string) *MongoStore {
	return &MongoStore{
		client:     client,
		collection: client.Database(database).Collection(collection),
	}
}

// EnsureIndexes creates the parent/key index used by List.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "parent", Value: 1}, {Key: "key", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("create documents index: %w", err)
	}
	return nil
}

type mongoDocument struct {
	Path   string   `bson:"_id"`
	Parent string   `bson:"parent"`
	Key    string   `bson:"key"`
	Data   bson.Raw `bson:"data"`
}

func (d mongoDocument) toDocument() (ports.Document, error) {
	data, err := bson.MarshalExtJSON(d.Data, false, false)
	if err != nil {
		return ports.Document{}, fmt.Errorf("decode document %s: %w", d.Path, err)
	}
	return ports.Document{Key: d.Key, Path: d.Path, Data: data}, nil
}

// toBSON round-trips data through JSON so documents look the same in every
// store.
func toBSON(data interface{}) (bson.M, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var doc bson.M
	if err := bson.UnmarshalExtJSON(raw, false, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *MongoStore) Get(ctx context.Context, path string) (*ports.Document, error) {
	var stored mongoDocument
	err := s.collection.FindOne(ctx, bson.M{"_id": path}).Decode(&stored)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ports.ErrDocumentNotFound
		}
		return nil, fmt.Errorf("get document %s: %w", path, err)
	}

	doc, err := stored.toDocument()
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (s *MongoStore) Set(ctx context.Context, path string, data interface{}) error {
	if _, err := CleanPath(path); err != nil {
		return err
	}
	body, err := toBSON(data)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}

	parent, key := SplitPath(path)
	replacement := bson.M{"_id": path, "parent": parent, "key": key, "data": body}
	_, err = s.collection.ReplaceOne(ctx, bson.M{"_id": path}, replacement, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("set document %s: %w", path, err)
	}
	return nil
}

func (s *MongoStore) Update(ctx context.Context, path string, fields map[string]interface{}) error {
	if _, err := CleanPath(path); err != nil {
		return err
	}
	body, err := toBSON(fields)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}

	parent, key := SplitPath(path)
	set := bson.M{"parent": parent, "key": key}
	for k, v := range body {
		set["data."+k] = v
	}
	_, err = s.collection.UpdateOne(ctx, bson.M{"_id": path}, bson.M{"$set": set}, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("update document %s: %w", path, err)
	}
	return nil
}

func (s *MongoStore) Push(ctx context.Context, parent string, data interface{}) (string, error) {
	key, err := NewKey()
	if err != nil {
		return "", err
	}
	if err := s.Set(ctx, JoinPath(parent, key), data); err != nil {
		return "", err
	}
	return key, nil
}

func (s *MongoStore) List(ctx context.Context, parent string) ([]ports.Document, error) {
	opts := options.Find().SetSort(bson.D{{Key: "key", Value: 1}})
	cursor, err := s.collection.Find(ctx, bson.M{"parent": parent}, opts)
	if err != nil {
		return nil, fmt.Errorf("list documents under %s: %w", parent, err)
	}
	defer cursor.Close(ctx)

	var docs []ports.Document
	for cursor.Next(ctx) {
		var stored mongoDocument
		if err := cursor.Decode(&stored); err != nil {
			return nil, fmt.Errorf("decode document under %s: %w", parent, err)
		}
		doc, err := stored.toDocument()
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("list documents under %s: %w", parent, err)
	}
	return docs, nil
}

func (s *MongoStore) Delete(ctx context.Context, path string) error {
	if _, err := CleanPath(path); err != nil {
		return err
	}
	filter := bson.M{"$or": bson.A{
		bson.M{"_id": path},
		bson.M{"_id": bson.M{"$regex": "^" + regexp.QuoteMeta(path) + "/"}},
	}}
	if _, err := s.collection.DeleteMany(ctx, filter); err != nil {
		return fmt.Errorf("delete document %s: %w", path, err)
	}
	return nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}
