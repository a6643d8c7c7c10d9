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
	"sort"
	"strings"
	"time"

	"github.com/gorse-io/itemcf/storage"
	"github.com/juju/errors"
)

// Score is an item with its relevance. Lists of scores are ordered by
// descending relevance, and the order among equal scores is unspecified.
type Score struct {
	Id    int64   `json:"id"`
	Score float64 `json:"score"`
}

// SortScores sorts scores in descending order.
func SortScores(scores []Score) {
	sort.Slice(scores, func(i, j int) bool {
		return scores[i].Score > scores[j].Score
	})
}

// Database is a best-effort key-value cache of score lists.
type Database interface {
	Close() error
	// Get returns the cached list and whether the key was found.
	Get(ctx context.Context, key string) ([]Score, bool, error)
	Put(ctx context.Context, key string, scores []Score, ttl time.Duration) error
	// EvictByPattern removes keys matching a glob pattern. A trailing "*" matches any suffix.
	EvictByPattern(ctx context.Context, pattern string) error
}

// Open a cache. An empty path disables caching.
func Open(path string) (Database, error) {
	if path == "" {
		return NoDatabase{}, nil
	} else if strings.HasPrefix(path, storage.MemoryPrefix) {
		return NewMemory(), nil
	} else if storage.IsRedis(path) {
		client, err := storage.OpenRedis(path)
		if err != nil {
			return nil, errors.Trace(err)
		}
		return &Redis{client: client}, nil
	}
	return nil, errors.Errorf("Unknown database: %s", path)
}

// matchPattern matches key against a pattern whose only wildcard is a trailing "*".
func matchPattern(pattern, key string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		return strings.HasPrefix(key, prefix)
	}
	return pattern == key
}
