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
	"strconv"

	"github.com/gorse-io/itemcf/storage"
	"github.com/juju/errors"
	"github.com/redis/go-redis/v9"
)

const prefixNeighbors = "neighbors/"

// Redis keeps the edges of each item in a sorted set keyed by the source item.
// Saving the same edge twice overwrites it instead of duplicating it.
type Redis struct {
	storage.TablePrefix
	client *redis.Client
}

func (r *Redis) key(itemId int64) string {
	return r.Key(prefixNeighbors + strconv.FormatInt(itemId, 10))
}

func (r *Redis) Init() error {
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) SaveAll(ctx context.Context, similarities []Similarity) error {
	if len(similarities) == 0 {
		return nil
	}
	p := r.client.Pipeline()
	for _, s := range similarities {
		p.ZAdd(ctx, r.key(s.ItemId1), redis.Z{Member: strconv.FormatInt(s.ItemId2, 10), Score: s.Score})
	}
	_, err := p.Exec(ctx)
	return errors.Trace(err)
}

func (r *Redis) FindSimilar(ctx context.Context, itemId int64, topK int) ([]Similarity, error) {
	if topK <= 0 {
		return nil, nil
	}
	members, err := r.client.ZRevRangeWithScores(ctx, r.key(itemId), 0, int64(topK-1)).Result()
	if err != nil {
		return nil, errors.Trace(err)
	}
	results := make([]Similarity, 0, len(members))
	for _, member := range members {
		itemId2, err := strconv.ParseInt(member.Member.(string), 10, 64)
		if err != nil {
			return nil, errors.Trace(err)
		}
		results = append(results, Similarity{ItemId1: itemId, ItemId2: itemId2, Score: member.Score})
	}
	return results, nil
}

// scan calls work for every sorted set owned by this store.
func (r *Redis) scan(ctx context.Context, work func(keys []string) error) error {
	var (
		keys   []string
		cursor uint64
		err    error
	)
	for {
		keys, cursor, err = r.client.Scan(ctx, cursor, r.Key(prefixNeighbors)+"*", 0).Result()
		if err != nil {
			return errors.Trace(err)
		}
		if len(keys) > 0 {
			if err = work(keys); err != nil {
				return errors.Trace(err)
			}
		}
		if cursor == 0 {
			return nil
		}
	}
}

func (r *Redis) DeleteAll(ctx context.Context) error {
	return r.scan(ctx, func(keys []string) error {
		return r.client.Del(ctx, keys...).Err()
	})
}

func (r *Redis) Count(ctx context.Context) (int, error) {
	count := 0
	err := r.scan(ctx, func(keys []string) error {
		p := r.client.Pipeline()
		cmds := make([]*redis.IntCmd, len(keys))
		for i, key := range keys {
			cmds[i] = p.ZCard(ctx, key)
		}
		if _, err := p.Exec(ctx); err != nil {
			return err
		}
		for _, cmd := range cmds {
			count += int(cmd.Val())
		}
		return nil
	})
	return count, err
}
