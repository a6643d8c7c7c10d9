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

package logics

import (
	"context"

	"github.com/gorse-io/itemcf/base/log"
	"github.com/gorse-io/itemcf/similarity"
	"github.com/gorse-io/itemcf/storage/data"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

// InteractionMatrix maps each item to the sparse vector of users who interacted with it.
type InteractionMatrix struct {
	matrix            map[int64]similarity.Vector
	totalInteractions int
}

func NewInteractionMatrix() *InteractionMatrix {
	return &InteractionMatrix{matrix: make(map[int64]similarity.Vector)}
}

// Add merges an interaction into the matrix. Repeated (user, item) pairs keep the maximum
// score, but every call counts towards the total.
func (m *InteractionMatrix) Add(interaction data.Interaction) {
	vector, exist := m.matrix[interaction.ItemId]
	if !exist {
		vector = make(similarity.Vector)
		m.matrix[interaction.ItemId] = vector
	}
	if score, ok := vector[interaction.UserId]; !ok || interaction.Score > score {
		vector[interaction.UserId] = interaction.Score
	}
	m.totalInteractions++
}

// Load pages through the loader starting at offset 0. Paging stops at the first page that is
// shorter than batchSize, including an empty one.
func (m *InteractionMatrix) Load(ctx context.Context, loader data.Loader, batchSize int) error {
	if batchSize < 1 {
		return errors.NotValidf("batch size %d", batchSize)
	}
	batches := 0
	for offset := 0; ; offset += batchSize {
		batch, err := loader.LoadBatch(ctx, offset, batchSize)
		if err != nil {
			return errors.Trace(err)
		}
		for _, interaction := range batch {
			if err = interaction.Validate(); err != nil {
				return errors.Trace(err)
			}
			m.Add(interaction)
		}
		if len(batch) > 0 {
			batches++
		}
		if len(batch) < batchSize {
			break
		}
	}
	log.Logger().Debug("load interaction matrix",
		zap.Int("n_interactions", m.totalInteractions),
		zap.Int("n_batches", batches),
		zap.Int("n_items", len(m.matrix)))
	return nil
}

func (m *InteractionMatrix) IsEmpty() bool {
	return len(m.matrix) == 0
}

func (m *InteractionMatrix) ItemCount() int {
	return len(m.matrix)
}

// TotalInteractions counts every interaction added, including those merged into an existing entry.
func (m *InteractionMatrix) TotalInteractions() int {
	return m.totalInteractions
}

// Matrix returns the underlying map. Callers must not modify it.
func (m *InteractionMatrix) Matrix() map[int64]similarity.Vector {
	return m.matrix
}
