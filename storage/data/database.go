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
	"math"
	"strings"

	"github.com/gorse-io/itemcf/storage"
	"github.com/juju/errors"
)

// Interaction is a positive score a user gave to an item.
type Interaction struct {
	UserId int64   `json:"user_id" bson:"user_id"`
	ItemId int64   `json:"item_id" bson:"item_id"`
	Score  float64 `json:"score" bson:"score"`
}

// NewInteraction creates an interaction. Non-positive scores are rejected.
func NewInteraction(userId, itemId int64, score float64) (Interaction, error) {
	interaction := Interaction{UserId: userId, ItemId: itemId, Score: score}
	if err := interaction.Validate(); err != nil {
		return Interaction{}, err
	}
	return interaction, nil
}

func (i Interaction) Validate() error {
	if !(i.Score > 0) || math.IsInf(i.Score, 1) {
		return errors.NotValidf("score %v of interaction (%d, %d)", i.Score, i.UserId, i.ItemId)
	}
	return nil
}

// Loader reads interactions page by page.
//
// LoadBatch must return a page strictly shorter than limit, possibly empty,
// exactly when no more interactions follow offset. A loader that keeps
// returning full pages is read forever.
type Loader interface {
	LoadBatch(ctx context.Context, offset, limit int) ([]Interaction, error)
}

// Database is a Loader backed by a persistent store that can also be written.
type Database interface {
	Loader
	Init() error
	Close() error
	Purge() error
	BatchInsertInteractions(ctx context.Context, interactions []Interaction) error
	CountInteractions(ctx context.Context) (int, error)
}

// Open a connection to an interaction store.
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
	} else if strings.HasPrefix(path, storage.MemoryPrefix) {
		return NewMemory(), nil
	}
	return nil, errors.Errorf("Unknown database: %s", path)
}
