// Copyright 2024 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package neighbors

import (
	"context"

	"github.com/gorse-io/itemcf/storage"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoDB struct {
	storage.TablePrefix
	client *mongo.Client
	dbName string
}

func (db *MongoDB) collection() *mongo.Collection {
	return db.client.Database(db.dbName).Collection(db.SimilaritiesTable())
}

func (db *MongoDB) Init() error {
	ctx := context.Background()
	d := db.client.Database(db.dbName)
	collections, err := d.ListCollectionNames(ctx, bson.M{})
	if err != nil {
		return errors.Trace(err)
	}
	if !lo.Contains(collections, db.SimilaritiesTable()) {
		if err = d.CreateCollection(ctx, db.SimilaritiesTable()); err != nil {
			return errors.Trace(err)
		}
	}
	_, err = db.collection().Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "item_id1", Value: 1}, {Key: "score", Value: -1}},
	})
	return errors.Trace(err)
}

func (db *MongoDB) Close() error {
	return db.client.Disconnect(context.Background())
}

func (db *MongoDB) SaveAll(ctx context.Context, similarities []Similarity) error {
	if len(similarities) == 0 {
		return nil
	}
	docs := lo.Map(similarities, func(s Similarity, _ int) any {
		return s
	})
	_, err := db.collection().InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	return errors.Trace(err)
}

func (db *MongoDB) FindSimilar(ctx context.Context, itemId int64, topK int) ([]Similarity, error) {
	if topK <= 0 {
		return nil, nil
	}
	opt := options.Find().
		SetSort(bson.D{{Key: "score", Value: -1}}).
		SetLimit(int64(topK))
	cur, err := db.collection().Find(ctx, bson.M{"item_id1": itemId}, opt)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer cur.Close(ctx)
	var results []Similarity
	for cur.Next(ctx) {
		var s Similarity
		if err = cur.Decode(&s); err != nil {
			return nil, errors.Trace(err)
		}
		results = append(results, s)
	}
	return results, errors.Trace(cur.Err())
}

func (db *MongoDB) DeleteAll(ctx context.Context) error {
	_, err := db.collection().DeleteMany(ctx, bson.M{})
	return errors.Trace(err)
}

func (db *MongoDB) Count(ctx context.Context) (int, error) {
	n, err := db.collection().CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, errors.Trace(err)
	}
	return int(n), nil
}
