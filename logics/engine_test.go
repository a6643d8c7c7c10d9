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
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorse-io/itemcf/config"
	"github.com/gorse-io/itemcf/similarity"
	"github.com/gorse-io/itemcf/storage"
	"github.com/gorse-io/itemcf/storage/cache"
	"github.com/gorse-io/itemcf/storage/data"
	"github.com/gorse-io/itemcf/storage/neighbors"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

// countingStore counts calls and fails the operations named in failOn.
type countingStore struct {
	*neighbors.Memory
	mu      sync.Mutex
	calls   map[string]int
	batches []int
	failOn  map[string]error
}

func newCountingStore() *countingStore {
	return &countingStore{
		Memory: neighbors.NewMemory(),
		calls:  make(map[string]int),
		failOn: make(map[string]error),
	}
}

func (s *countingStore) record(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[name]++
	return s.failOn[name]
}

func (s *countingStore) SaveAll(ctx context.Context, similarities []neighbors.Similarity) error {
	if err := s.record("SaveAll"); err != nil {
		return err
	}
	s.mu.Lock()
	s.batches = append(s.batches, len(similarities))
	s.mu.Unlock()
	return s.Memory.SaveAll(ctx, similarities)
}

func (s *countingStore) FindSimilar(ctx context.Context, itemId int64, topK int) ([]neighbors.Similarity, error) {
	if err := s.record("FindSimilar"); err != nil {
		return nil, err
	}
	return s.Memory.FindSimilar(ctx, itemId, topK)
}

func (s *countingStore) DeleteAll(ctx context.Context) error {
	if err := s.record("DeleteAll"); err != nil {
		return err
	}
	return s.Memory.DeleteAll(ctx)
}

func (s *countingStore) count(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[name]
}

// brokenCache fails every operation.
type brokenCache struct {
	cache.NoDatabase
}

func (brokenCache) Get(context.Context, string) ([]cache.Score, bool, error) {
	return nil, false, errors.New("cache unavailable")
}

func (brokenCache) Put(context.Context, string, []cache.Score, time.Duration) error {
	return errors.New("cache unavailable")
}

func (brokenCache) EvictByPattern(context.Context, string) error {
	return errors.New("cache unavailable")
}

func testConfig() config.ItemCFConfig {
	cfg := config.GetDefaultConfig().ItemCF
	cfg.SimilarityThreshold = 0.1
	cfg.MinCommonUsers = 2
	return cfg
}

func ids(scores []cache.Score) []int64 {
	return lo.Map(scores, func(score cache.Score, _ int) int64 {
		return score.Id
	})
}

type EngineTestSuite struct {
	suite.Suite
	cacheServer *miniredis.Miniredis
	cache       cache.Database
	loader      *data.Memory
	store       *countingStore
	engine      *Engine
}

func (suite *EngineTestSuite) SetupTest() {
	var err error
	suite.cacheServer, err = miniredis.Run()
	suite.NoError(err)
	suite.cache, err = cache.Open(storage.RedisPrefix + suite.cacheServer.Addr())
	suite.NoError(err)
	suite.loader = data.NewMemory(scenarioInteractions()...)
	suite.store = newCountingStore()
	suite.engine, err = NewEngine(suite.loader, suite.store, testConfig(), WithCache(suite.cache))
	suite.NoError(err)
}

func (suite *EngineTestSuite) TearDownTest() {
	suite.NoError(suite.cache.Close())
	suite.cacheServer.Close()
}

func (suite *EngineTestSuite) TestSimilarItems() {
	ctx := context.Background()
	suite.NoError(suite.engine.Recompute(ctx))
	scores, err := suite.engine.SimilarItems(ctx, 10, 5)
	suite.NoError(err)
	suite.Equal([]int64{20, 40}, ids(scores))
	suite.Greater(scores[0].Score, scores[1].Score)
	for n := 1; n <= 5; n++ {
		scores, err = suite.engine.SimilarItems(ctx, 10, n)
		suite.NoError(err)
		suite.NotContains(ids(scores), int64(30))
		suite.NotContains(ids(scores), int64(10))
		suite.LessOrEqual(len(scores), n)
	}
	// no neighbors
	scores, err = suite.engine.SimilarItems(ctx, 30, 5)
	suite.NoError(err)
	suite.Empty(scores)
	suite.False(suite.cacheServer.Exists(SimilarItemsPrefix + "30"))
}

func (suite *EngineTestSuite) TestSimilarItemsCache() {
	ctx := context.Background()
	suite.NoError(suite.engine.Recompute(ctx))
	scores, err := suite.engine.SimilarItems(ctx, 10, 1)
	suite.NoError(err)
	suite.Equal([]int64{20}, ids(scores))
	// the full top-K list is cached
	cached, found, err := suite.cache.Get(ctx, SimilarItemsPrefix+"10")
	suite.NoError(err)
	suite.True(found)
	suite.Equal([]int64{20, 40}, ids(cached))
	suite.Equal(SimilarItemsTTL, suite.cacheServer.TTL(SimilarItemsPrefix+"10"))
	// a hit is truncated and never reaches the store
	calls := suite.store.count("FindSimilar")
	scores, err = suite.engine.SimilarItems(ctx, 10, 1)
	suite.NoError(err)
	suite.Equal([]int64{20}, ids(scores))
	scores, err = suite.engine.SimilarItems(ctx, 10, 10)
	suite.NoError(err)
	suite.Equal([]int64{20, 40}, ids(scores))
	suite.Equal(calls, suite.store.count("FindSimilar"))
}

func (suite *EngineTestSuite) TestRecommendForUser() {
	ctx := context.Background()
	suite.NoError(suite.engine.Recompute(ctx))
	scores, err := suite.engine.RecommendForUser(ctx, 1, []int64{10}, 5)
	suite.NoError(err)
	suite.Equal([]int64{20, 40}, ids(scores))
	suite.NotContains(ids(scores), int64(10))

	// scores of shared candidates are summed
	scores, err = suite.engine.RecommendForUser(ctx, 2, []int64{20, 40}, 5)
	suite.NoError(err)
	suite.Equal([]int64{10}, ids(scores))
	similar, err := suite.engine.SimilarItems(ctx, 10, 5)
	suite.NoError(err)
	suite.InDelta(similar[0].Score+similar[1].Score, scores[0].Score, 1e-9)

	// interacted items are excluded even when similar to other interacted items
	scores, err = suite.engine.RecommendForUser(ctx, 3, []int64{10, 20}, 5)
	suite.NoError(err)
	suite.Equal([]int64{40}, ids(scores))

	// nothing left to recommend
	scores, err = suite.engine.RecommendForUser(ctx, 4, []int64{10, 20, 40}, 5)
	suite.NoError(err)
	suite.Empty(scores)
	suite.False(suite.cacheServer.Exists(UserRecommendPrefix + "4"))
}

func (suite *EngineTestSuite) TestRecommendForUserEmpty() {
	ctx := context.Background()
	suite.NoError(suite.engine.Recompute(ctx))
	calls := suite.store.count("FindSimilar")
	scores, err := suite.engine.RecommendForUser(ctx, 1, nil, 5)
	suite.NoError(err)
	suite.NotNil(scores)
	suite.Empty(scores)
	suite.Equal(calls, suite.store.count("FindSimilar"))
	suite.False(suite.cacheServer.Exists(UserRecommendPrefix + "1"))
}

func (suite *EngineTestSuite) TestRecommendForUserCache() {
	ctx := context.Background()
	suite.NoError(suite.engine.Recompute(ctx))
	scores, err := suite.engine.RecommendForUser(ctx, 1, []int64{10}, 1)
	suite.NoError(err)
	suite.Equal([]int64{20}, ids(scores))
	// the truncated list is cached
	cached, found, err := suite.cache.Get(ctx, UserRecommendPrefix+"1")
	suite.NoError(err)
	suite.True(found)
	suite.Equal([]int64{20}, ids(cached))
	suite.Equal(UserRecommendTTL, suite.cacheServer.TTL(UserRecommendPrefix+"1"))
	// a larger limit is still served from the truncated entry
	scores, err = suite.engine.RecommendForUser(ctx, 1, []int64{10}, 5)
	suite.NoError(err)
	suite.Equal([]int64{20}, ids(scores))
}

func (suite *EngineTestSuite) TestRecomputeIdempotent() {
	ctx := context.Background()
	suite.NoError(suite.engine.Recompute(ctx))
	first, err := suite.store.Count(ctx)
	suite.NoError(err)
	suite.Equal(4, first)
	suite.NoError(suite.engine.Recompute(ctx))
	second, err := suite.store.Count(ctx)
	suite.NoError(err)
	suite.Equal(first, second)

	stats, ok := suite.engine.Stats()
	suite.True(ok)
	suite.Equal(4, stats.Items)
	suite.Equal(9, stats.Interactions)
	suite.Equal(4, stats.Similarities)
	suite.Empty(stats.Error)
}

func (suite *EngineTestSuite) TestRecomputeEvictsCache() {
	ctx := context.Background()
	suite.NoError(suite.engine.Recompute(ctx))
	_, err := suite.engine.SimilarItems(ctx, 10, 5)
	suite.NoError(err)
	_, err = suite.engine.RecommendForUser(ctx, 1, []int64{10}, 5)
	suite.NoError(err)
	suite.NoError(suite.cache.Put(ctx, "other:1", []cache.Score{{Id: 1, Score: 1}}, time.Hour))

	// new interactions connect item 30 to item 20
	suite.NoError(suite.loader.BatchInsertInteractions(ctx, []data.Interaction{
		{UserId: 1, ItemId: 30, Score: 5},
		{UserId: 2, ItemId: 30, Score: 4},
	}))
	suite.NoError(suite.engine.Recompute(ctx))
	suite.False(suite.cacheServer.Exists(SimilarItemsPrefix + "10"))
	suite.False(suite.cacheServer.Exists(UserRecommendPrefix + "1"))
	suite.True(suite.cacheServer.Exists("other:1"))
	scores, err := suite.engine.SimilarItems(ctx, 10, 5)
	suite.NoError(err)
	suite.Contains(ids(scores), int64(30))
}

func (suite *EngineTestSuite) TestRecomputeSaveBatchSize() {
	ctx := context.Background()
	cfg := testConfig()
	cfg.SaveBatchSize = 3
	engine, err := NewEngine(suite.loader, suite.store, cfg)
	suite.NoError(err)
	suite.NoError(engine.Recompute(ctx))
	suite.Equal([]int{3, 1}, suite.store.batches)
	count, err := suite.store.Count(ctx)
	suite.NoError(err)
	suite.Equal(4, count)
}

func (suite *EngineTestSuite) TestRecomputeEmpty() {
	ctx := context.Background()
	suite.NoError(suite.engine.Recompute(ctx))
	suite.NoError(suite.loader.Purge())
	suite.NoError(suite.engine.Recompute(ctx))
	count, err := suite.store.Count(ctx)
	suite.NoError(err)
	suite.Zero(count)
	suite.Equal(2, suite.store.count("DeleteAll"))
	suite.Equal(1, suite.store.count("SaveAll"))
	stats, ok := suite.engine.Stats()
	suite.True(ok)
	suite.Zero(stats.Items)
	suite.Empty(stats.Error)
}

func (suite *EngineTestSuite) TestRecomputeFailure() {
	ctx := context.Background()
	for _, step := range []struct {
		name   string
		method string
	}{
		{StepDelete, "DeleteAll"},
		{StepSave, "SaveAll"},
	} {
		store := newCountingStore()
		cause := errors.New("disk full")
		store.failOn[step.method] = cause
		engine, err := NewEngine(suite.loader, store, testConfig())
		suite.NoError(err)
		err = engine.Recompute(ctx)
		var recomputeErr *RecomputeError
		suite.True(errors.As(err, &recomputeErr), step.name)
		suite.Equal(step.name, recomputeErr.Step)
		suite.ErrorIs(err, cause)
		stats, ok := engine.Stats()
		suite.True(ok)
		suite.NotEmpty(stats.Error)
	}

	// loader failure
	engine, err := NewEngine(&pageLoader{Memory: data.NewMemory(), err: errors.New("timeout")}, newCountingStore(), testConfig())
	suite.NoError(err)
	err = engine.Recompute(ctx)
	var recomputeErr *RecomputeError
	suite.True(errors.As(err, &recomputeErr))
	suite.Equal(StepLoad, recomputeErr.Step)

	// strategy failure
	engine, err = NewEngine(suite.loader, newCountingStore(), testConfig(), WithStrategy(func(a, b similarity.Vector) float64 {
		return 2
	}))
	suite.NoError(err)
	err = engine.Recompute(ctx)
	suite.True(errors.As(err, &recomputeErr))
	suite.Equal(StepCompute, recomputeErr.Step)
	suite.True(errors.Is(err, errors.NotValid))
}

func (suite *EngineTestSuite) TestStoreFailure() {
	ctx := context.Background()
	suite.NoError(suite.engine.Recompute(ctx))
	suite.store.failOn["FindSimilar"] = errors.New("connection refused")
	_, err := suite.engine.SimilarItems(ctx, 10, 5)
	suite.ErrorContains(err, "connection refused")
	_, err = suite.engine.RecommendForUser(ctx, 1, []int64{10}, 5)
	suite.ErrorContains(err, "connection refused")
}

func TestEngine(t *testing.T) {
	suite.Run(t, new(EngineTestSuite))
}

func TestEngineBrokenCache(t *testing.T) {
	ctx := context.Background()
	store := newCountingStore()
	engine, err := NewEngine(data.NewMemory(scenarioInteractions()...), store, testConfig(), WithCache(brokenCache{}))
	assert.NoError(t, err)
	assert.NoError(t, engine.Recompute(ctx))
	scores, err := engine.SimilarItems(ctx, 10, 5)
	assert.NoError(t, err)
	assert.Equal(t, []int64{20, 40}, ids(scores))
	scores, err = engine.RecommendForUser(ctx, 1, []int64{10}, 5)
	assert.NoError(t, err)
	assert.Equal(t, []int64{20, 40}, ids(scores))
}

func TestEngineNoCache(t *testing.T) {
	ctx := context.Background()
	store := newCountingStore()
	engine, err := NewEngine(data.NewMemory(scenarioInteractions()...), store, testConfig())
	assert.NoError(t, err)
	_, ok := engine.Stats()
	assert.False(t, ok)
	assert.NoError(t, engine.Recompute(ctx))
	for i := 0; i < 3; i++ {
		scores, err := engine.SimilarItems(ctx, 10, 5)
		assert.NoError(t, err)
		assert.Equal(t, []int64{20, 40}, ids(scores))
	}
	assert.Equal(t, 3, store.count("FindSimilar"))
}

func TestEngineLimit(t *testing.T) {
	ctx := context.Background()
	engine, err := NewEngine(data.NewMemory(scenarioInteractions()...), neighbors.NewMemory(), testConfig())
	assert.NoError(t, err)
	assert.NoError(t, engine.Recompute(ctx))
	scores, err := engine.SimilarItems(ctx, 10, 0)
	assert.NoError(t, err)
	assert.Empty(t, scores)
	scores, err = engine.RecommendForUser(ctx, 1, []int64{10}, -1)
	assert.NoError(t, err)
	assert.Empty(t, scores)
}

func TestNewEngine(t *testing.T) {
	cfg := testConfig()
	cfg.Strategy = ""
	_, err := NewEngine(data.NewMemory(), neighbors.NewMemory(), cfg)
	assert.NoError(t, err)
	cfg.Strategy = "jaccard"
	_, err = NewEngine(data.NewMemory(), neighbors.NewMemory(), cfg)
	assert.NoError(t, err)
	cfg.Strategy = "unknown"
	_, err = NewEngine(data.NewMemory(), neighbors.NewMemory(), cfg)
	assert.True(t, errors.Is(err, errors.NotValid))
	cfg = testConfig()
	cfg.TopKSimilar = 0
	_, err = NewEngine(data.NewMemory(), neighbors.NewMemory(), cfg)
	assert.True(t, errors.Is(err, errors.NotValid))
}

func TestEngineConcurrentQueries(t *testing.T) {
	ctx := context.Background()
	engine, err := NewEngine(data.NewMemory(scenarioInteractions()...), neighbors.NewMemory(), testConfig(), WithCache(cache.NewMemory()))
	assert.NoError(t, err)
	assert.NoError(t, engine.Recompute(ctx))
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Go(func() {
			for j := 0; j < 50; j++ {
				_, err := engine.SimilarItems(ctx, 10, 5)
				assert.NoError(t, err)
				_, err = engine.RecommendForUser(ctx, int64(i), []int64{10}, 5)
				assert.NoError(t, err)
			}
		})
	}
	wg.Go(func() {
		assert.NoError(t, engine.Recompute(ctx))
	})
	wg.Wait()
}
