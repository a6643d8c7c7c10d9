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
	"database/sql"

	"github.com/gorse-io/itemcf/storage"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"gorm.io/gorm"
)

// SQLInteraction is the row layout of the interactions table. Rows are
// appended, so a (user, item) pair may appear more than once.
type SQLInteraction struct {
	Id     int64   `gorm:"column:id;primaryKey;autoIncrement"`
	UserId int64   `gorm:"column:user_id;not null;index:user_id"`
	ItemId int64   `gorm:"column:item_id;not null;index:item_id"`
	Score  float64 `gorm:"column:score;not null"`
}

// SQLDatabase reads interactions from MySQL, Postgres or SQLite.
type SQLDatabase struct {
	storage.TablePrefix
	gormDB *gorm.DB
	client *sql.DB
	driver storage.SQLDriver
}

// Init tables and indices.
func (d *SQLDatabase) Init() error {
	tx := d.gormDB
	if d.driver == storage.MySQL {
		tx = tx.Set("gorm:table_options", "ENGINE=InnoDB")
	}
	if err := tx.AutoMigrate(&SQLInteraction{}); err != nil {
		return errors.Trace(err)
	}
	return nil
}

func (d *SQLDatabase) Close() error {
	return d.client.Close()
}

// Purge removes all interactions.
func (d *SQLDatabase) Purge() error {
	return errors.Trace(d.gormDB.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&SQLInteraction{}).Error)
}

func (d *SQLDatabase) BatchInsertInteractions(ctx context.Context, interactions []Interaction) error {
	if len(interactions) == 0 {
		return nil
	}
	rows := lo.Map(interactions, func(i Interaction, _ int) SQLInteraction {
		return SQLInteraction{UserId: i.UserId, ItemId: i.ItemId, Score: i.Score}
	})
	return errors.Trace(d.gormDB.WithContext(ctx).Create(&rows).Error)
}

func (d *SQLDatabase) CountInteractions(ctx context.Context) (int, error) {
	var count int64
	if err := d.gormDB.WithContext(ctx).Model(&SQLInteraction{}).Count(&count).Error; err != nil {
		return 0, errors.Trace(err)
	}
	return int(count), nil
}

// LoadBatch reads a page of interactions ordered by insertion.
func (d *SQLDatabase) LoadBatch(ctx context.Context, offset, limit int) ([]Interaction, error) {
	rows, err := d.gormDB.WithContext(ctx).Model(&SQLInteraction{}).
		Select("user_id, item_id, score").
		Order("id").
		Offset(offset).
		Limit(limit).
		Rows()
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer rows.Close()
	interactions := make([]Interaction, 0, limit)
	for rows.Next() {
		var (
			userId, itemId int64
			score          float64
		)
		if err = rows.Scan(&userId, &itemId, &score); err != nil {
			return nil, errors.Trace(err)
		}
		interaction, err := NewInteraction(userId, itemId, score)
		if err != nil {
			return nil, errors.Trace(err)
		}
		interactions = append(interactions, interaction)
	}
	return interactions, errors.Trace(rows.Err())
}
