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
	"sync"

	"github.com/juju/errors"
)

// Memory keeps interactions in a slice. It is meant for tests and for hosts
// embedding the engine with data already in memory.
type Memory struct {
	mu           sync.RWMutex
	interactions []Interaction
}

func NewMemory(interactions ...Interaction) *Memory {
	return &Memory{interactions: interactions}
}

func (m *Memory) Init() error {
	return nil
}

func (m *Memory) Close() error {
	return nil
}

func (m *Memory) Purge() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.interactions = nil
	return nil
}

func (m *Memory) BatchInsertInteractions(_ context.Context, interactions []Interaction) error {
	for _, interaction := range interactions {
		if err := interaction.Validate(); err != nil {
			return errors.Trace(err)
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.interactions = append(m.interactions, interactions...)
	return nil
}

func (m *Memory) CountInteractions(context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.interactions), nil
}

func (m *Memory) LoadBatch(_ context.Context, offset, limit int) ([]Interaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if offset >= len(m.interactions) {
		return nil, nil
	}
	end := min(offset+limit, len(m.interactions))
	batch := make([]Interaction, end-offset)
	copy(batch, m.interactions[offset:end])
	return batch, nil
}
