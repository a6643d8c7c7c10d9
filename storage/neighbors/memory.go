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
	"sync"

	"github.com/gorse-io/itemcf/common/heap"
)

// Memory keeps edges in a map guarded by a read-write lock.
type Memory struct {
	mu    sync.RWMutex
	edges map[int64][]Similarity
	count int
}

func NewMemory() *Memory {
	return &Memory{edges: make(map[int64][]Similarity)}
}

func (m *Memory) Init() error {
	return nil
}

func (m *Memory) Close() error {
	return nil
}

func (m *Memory) SaveAll(_ context.Context, similarities []Similarity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range similarities {
		m.edges[s.ItemId1] = append(m.edges[s.ItemId1], s)
	}
	m.count += len(similarities)
	return nil
}

func (m *Memory) FindSimilar(_ context.Context, itemId int64, topK int) ([]Similarity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	filter := heap.NewTopKFilter[Similarity, float64](topK)
	for _, s := range m.edges[itemId] {
		filter.Push(s, s.Score)
	}
	return filter.PopAllValues(), nil
}

func (m *Memory) DeleteAll(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edges = make(map[int64][]Similarity)
	m.count = 0
	return nil
}

func (m *Memory) Count(context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.count, nil
}
