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

package data

import (
	"context"

	"github.com/gorse-io/itemcf/storage"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoDB is the interaction store based on MongoDB.
type MongoDB struct {
	storage.TablePrefix
	client *mongo.Client
	dbName string
}

func (db *MongoDB) collection() *mongo.Collection {
	return db.client.Database(db.dbName).Collection(db.InteractionsTable())
}

// Init collections and indices in MongoDB.
func (db *MongoDB) Init() error {
	ctx := context.Background()
	d := db.client.Database(db.dbName)
	// list collections
	collections, err := d.ListCollectionNames(ctx, bson.M{})
	if err != nil {
		return errors.Trace(err)
	}
	if !lo.Contains(collections, db.InteractionsTable()) {
		if err = d.CreateCollection(ctx, db.InteractionsTable()); err != nil {
			return errors.Trace(err)
		}
	}
	// create index
	_, err = db.collection().Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.M{"item_id": 1}},
		{Keys: bson.M{"user_id": 1}},
	})
	return errors.Trace(err)
}

// Close connection to MongoDB.
func (db *MongoDB) Close() error {
	return db.client.Disconnect(context.Background())
}

func (db *MongoDB) Purge() error {
	_, err := db.collection().DeleteMany(context.Background(), bson.M{})
	return errors.Trace(err)
}

func (db *MongoDB) BatchInsertInteractions(ctx context.Context, interactions []Interaction) error {
	if len(interactions) == 0 {
		return nil
	}
	docs := lo.Map(interactions, func(i Interaction, _ int) any {
		return i
	})
	_, err := db.collection().InsertMany(ctx, docs, options.InsertMany().SetOrdered(true))
	return errors.Trace(err)
}

func (db *MongoDB) CountInteractions(ctx context.Context) (int, error) {
	n, err := db.collection().CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, errors.Trace(err)
	}
	return int(n), nil
}

// LoadBatch reads a page of interactions ordered by object id, which follows insertion order.
func (db *MongoDB) LoadBatch(ctx context.Context, offset, limit int) ([]Interaction, error) {
	opt := options.Find().
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))
	cur, err := db.collection().Find(ctx, bson.M{}, opt)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer cur.Close(ctx)
	interactions := make([]Interaction, 0, limit)
	for cur.Next(ctx) {
		var doc Interaction
		if err = cur.Decode(&doc); err != nil {
			return nil, errors.Trace(err)
		}
		if err = doc.Validate(); err != nil {
			return nil, errors.Trace(err)
		}
		interactions = append(interactions, doc)
	}
	return interactions, errors.Trace(cur.Err())
}
