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

package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/juju/errors"
	"github.com/redis/go-redis/v9"
)

// Redis cache storage. Score lists are stored as JSON strings.
type Redis struct {
	client *redis.Client
}

// Close redis connection.
func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) Get(ctx context.Context, key string) ([]Score, bool, error) {
	val, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	} else if err != nil {
		return nil, false, errors.Trace(err)
	}
	var scores []Score
	if err = json.Unmarshal(val, &scores); err != nil {
		return nil, false, errors.Trace(err)
	}
	return scores, true, nil
}

func (r *Redis) Put(ctx context.Context, key string, scores []Score, ttl time.Duration) error {
	val, err := json.Marshal(scores)
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(r.client.Set(ctx, key, val, ttl).Err())
}

func (r *Redis) EvictByPattern(ctx context.Context, pattern string) error {
	var (
		keys   []string
		cursor uint64
		err    error
	)
	for {
		keys, cursor, err = r.client.Scan(ctx, cursor, pattern, 0).Result()
		if err != nil {
			return errors.Trace(err)
		}
		if len(keys) > 0 {
			if err = r.client.Del(ctx, keys...).Err(); err != nil {
				return errors.Trace(err)
			}
		}
		if cursor == 0 {
			return nil
		}
	}
}
