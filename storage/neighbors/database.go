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

// Package neighbors stores directed item-to-item similarity edges.
package neighbors

import (
	"context"
	"math"
	"strings"

	"github.com/gorse-io/itemcf/storage"
	"github.com/juju/errors"
)

// Similarity is a directed edge from ItemId1 to ItemId2. A symmetric
// similarity is stored as two edges with the same score.
type Similarity struct {
	ItemId1 int64   `json:"item_id1" bson:"item_id1"`
	ItemId2 int64   `json:"item_id2" bson:"item_id2"`
	Score   float64 `json:"score" bson:"score"`
}

// NewSimilarity creates an edge. Self edges and scores outside (0, 1] are rejected.
func NewSimilarity(itemId1, itemId2 int64, score float64) (Similarity, error) {
	s := Similarity{ItemId1: itemId1, ItemId2: itemId2, Score: score}
	if err := s.Validate(); err != nil {
		return Similarity{}, err
	}
	return s, nil
}

func (s Similarity) Validate() error {
	if s.ItemId1 == s.ItemId2 {
		return errors.NotValidf("similarity between item %d and itself", s.ItemId1)
	}
	if !(s.Score > 0 && s.Score <= 1) || math.IsNaN(s.Score) {
		return errors.NotValidf("similarity score %v between item %d and item %d", s.Score, s.ItemId1, s.ItemId2)
	}
	return nil
}

// Database persists similarity edges.
//
// SaveAll appends edges. Calling it twice with the same edges may store them
// twice. FindSimilar returns at most topK edges starting from itemId ordered by
// score descending, and must be safe to call while SaveAll is running.
type Database interface {
	Init() error
	Close() error
	SaveAll(ctx context.Context, similarities []Similarity) error
	FindSimilar(ctx context.Context, itemId int64, topK int) ([]Similarity, error)
	DeleteAll(ctx context.Context) error
	Count(ctx context.Context) (int, error)
}

// Open a connection to a similarity store.
func Open(path, tablePrefix string, opts ...storage.Option) (Database, error) {
	var err error
	if storage.IsSQL(path) {
		database := new(SQLDatabase)
		database.TablePrefix = storage.TablePrefix(tablePrefix)
		if database.driver, database.client, database.gormDB, err = storage.OpenSQL(path, tablePrefix, opts...); err != nil {
			return nil, errors.Trace(err)
		}
		return database, nil
	} else if storage.IsMongo(path) {
		database := new(MongoDB)
		database.TablePrefix = storage.TablePrefix(tablePrefix)
		if database.client, database.dbName, err = storage.OpenMongo(path); err != nil {
			return nil, errors.Trace(err)
		}
		return database, nil
	} else if storage.IsRedis(path) {
		database := new(Redis)
		database.TablePrefix = storage.TablePrefix(tablePrefix)
		if database.client, err = storage.OpenRedis(path); err != nil {
			return nil, errors.Trace(err)
		}
		return database, nil
	} else if strings.HasPrefix(path, storage.MemoryPrefix) {
		return NewMemory(), nil
	}
	return nil, errors.Errorf("Unknown database: %s", path)
}
