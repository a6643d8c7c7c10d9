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
	"slices"

	"github.com/gorse-io/itemcf/common/parallel"
	"github.com/gorse-io/itemcf/similarity"
	"github.com/gorse-io/itemcf/storage/neighbors"
	"github.com/juju/errors"
	"github.com/samber/lo"
)

// SimilarityCalculator scores every unordered pair of items in an interaction matrix.
type SimilarityCalculator struct {
	Strategy       similarity.Strategy
	Threshold      float64
	MinCommonUsers int
	Jobs           int
}

// Compute returns both directions of every pair that shares at least MinCommonUsers users
// and scores at least Threshold. Item ids are enumerated in ascending order and the outer
// loop is split across Jobs workers, so the content of the result does not depend on Jobs.
func (c *SimilarityCalculator) Compute(ctx context.Context, matrix map[int64]similarity.Vector) ([]neighbors.Similarity, error) {
	itemIds := lo.Keys(matrix)
	slices.Sort(itemIds)
	minCommonUsers := max(c.MinCommonUsers, 1)
	jobs := max(c.Jobs, 1)
	buffers := make([][]neighbors.Similarity, jobs)
	err := parallel.Parallel(ctx, len(itemIds), jobs, func(workerId, i int) error {
		vector := matrix[itemIds[i]]
		for j := i + 1; j < len(itemIds); j++ {
			other := matrix[itemIds[j]]
			if similarity.CountCommon(vector, other, minCommonUsers) < minCommonUsers {
				continue
			}
			score := c.Strategy(vector, other)
			if score < c.Threshold || score <= 0 {
				continue
			}
			forward, err := neighbors.NewSimilarity(itemIds[i], itemIds[j], score)
			if err != nil {
				return errors.Trace(err)
			}
			backward, err := neighbors.NewSimilarity(itemIds[j], itemIds[i], score)
			if err != nil {
				return errors.Trace(err)
			}
			buffers[workerId] = append(buffers[workerId], forward, backward)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	return lo.Flatten(buffers), nil
}
