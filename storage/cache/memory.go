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
	"slices"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// Memory is an in-process cache with per-entry expiration.
type Memory struct {
	cache *ttlcache.Cache[string, []Score]
}

func NewMemory() *Memory {
	c := ttlcache.New[string, []Score](ttlcache.WithDisableTouchOnHit[string, []Score]())
	go c.Start()
	return &Memory{cache: c}
}

func (m *Memory) Close() error {
	m.cache.Stop()
	return nil
}

func (m *Memory) Get(_ context.Context, key string) ([]Score, bool, error) {
	item := m.cache.Get(key)
	if item == nil {
		return nil, false, nil
	}
	return slices.Clone(item.Value()), true, nil
}

func (m *Memory) Put(_ context.Context, key string, scores []Score, ttl time.Duration) error {
	m.cache.Set(key, slices.Clone(scores), ttl)
	return nil
}

func (m *Memory) EvictByPattern(_ context.Context, pattern string) error {
	for _, key := range m.cache.Keys() {
		if matchPattern(pattern, key) {
			m.cache.Delete(key)
		}
	}
	return nil
}
