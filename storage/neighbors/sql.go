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
	"database/sql"

	"github.com/gorse-io/itemcf/storage"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"gorm.io/gorm"
)

type SQLSimilarity struct {
	Id      int64   `gorm:"column:id;primaryKey;autoIncrement"`
	ItemId1 int64   `gorm:"column:item_id1;not null;index:item_score,priority:1"`
	ItemId2 int64   `gorm:"column:item_id2;not null"`
	Score   float64 `gorm:"column:score;not null;index:item_score,priority:2"`
}

// SQLDatabase stores edges in a single table indexed by (item_id1, score).
type SQLDatabase struct {
	storage.TablePrefix
	gormDB *gorm.DB
	client *sql.DB
	driver storage.SQLDriver
}

func (d *SQLDatabase) Init() error {
	tx := d.gormDB
	if d.driver == storage.MySQL {
		tx = tx.Set("gorm:table_options", "ENGINE=InnoDB")
	}
	return errors.Trace(tx.AutoMigrate(&SQLSimilarity{}))
}

func (d *SQLDatabase) Close() error {
	return d.client.Close()
}

func (d *SQLDatabase) SaveAll(ctx context.Context, similarities []Similarity) error {
	if len(similarities) == 0 {
		return nil
	}
	rows := lo.Map(similarities, func(s Similarity, _ int) SQLSimilarity {
		return SQLSimilarity{ItemId1: s.ItemId1, ItemId2: s.ItemId2, Score: s.Score}
	})
	return errors.Trace(d.gormDB.WithContext(ctx).Create(&rows).Error)
}

func (d *SQLDatabase) FindSimilar(ctx context.Context, itemId int64, topK int) ([]Similarity, error) {
	if topK <= 0 {
		return nil, nil
	}
	var rows []SQLSimilarity
	if err := d.gormDB.WithContext(ctx).
		Where("item_id1 = ?", itemId).
		Order("score DESC").
		Limit(topK).
		Find(&rows).Error; err != nil {
		return nil, errors.Trace(err)
	}
	return lo.Map(rows, func(row SQLSimilarity, _ int) Similarity {
		return Similarity{ItemId1: row.ItemId1, ItemId2: row.ItemId2, Score: row.Score}
	}), nil
}

func (d *SQLDatabase) DeleteAll(ctx context.Context) error {
	return errors.Trace(d.gormDB.WithContext(ctx).
		Session(&gorm.Session{AllowGlobalUpdate: true}).
		Delete(&SQLSimilarity{}).Error)
}

func (d *SQLDatabase) Count(ctx context.Context) (int, error) {
	var count int64
	if err := d.gormDB.WithContext(ctx).Model(&SQLSimilarity{}).Count(&count).Error; err != nil {
		return 0, errors.Trace(err)
	}
	return int(count), nil
}
