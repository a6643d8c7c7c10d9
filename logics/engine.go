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
	"fmt"
	"strconv"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/gorse-io/itemcf/base/log"
	"github.com/gorse-io/itemcf/config"
	"github.com/gorse-io/itemcf/similarity"
	"github.com/gorse-io/itemcf/storage/cache"
	"github.com/gorse-io/itemcf/storage/data"
	"github.com/gorse-io/itemcf/storage/neighbors"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

const (
	SimilarItemsPrefix  = "itemcf:similar:"
	UserRecommendPrefix = "itemcf:user:"

	SimilarItemsTTL  = 24 * time.Hour
	UserRecommendTTL = 6 * time.Hour
)

const (
	StepDelete  = "delete"
	StepLoad    = "load"
	StepCompute = "compute"
	StepSave    = "save"
)

// RecomputeError reports the step at which a recompute was aborted.
type RecomputeError struct {
	Step string
	Err  error
}

func (e *RecomputeError) Error() string {
	return fmt.Sprintf("recompute failed at step %s: %v", e.Step, e.Err)
}

func (e *RecomputeError) Unwrap() error {
	return e.Err
}

// RecomputeStats describes the last recompute.
type RecomputeStats struct {
	StartTime    time.Time     `json:"start_time"`
	Duration     time.Duration `json:"duration"`
	Items        int           `json:"items"`
	Interactions int           `json:"interactions"`
	Similarities int           `json:"similarities"`
	Error        string        `json:"error,omitempty"`
}

type Option func(*Engine)

// WithCache sets the query cache. Without it results are never cached.
func WithCache(c cache.Database) Option {
	return func(e *Engine) {
		e.cache = c
	}
}

// WithStrategy overrides the strategy named in the configuration.
func WithStrategy(strategy similarity.Strategy) Option {
	return func(e *Engine) {
		e.strategy = strategy
	}
}

// Engine computes item similarities offline and serves similar-item and per-user queries.
//
// The engine holds no locks. Queries may run during a recompute and observe a store that is
// empty or partially rebuilt. Hosts that run recomputes from several goroutines must serialize
// them.
type Engine struct {
	loader   data.Loader
	store    neighbors.Database
	cache    cache.Database
	strategy similarity.Strategy
	config   config.ItemCFConfig
	tracer   trace.Tracer
	stats    atomic.Pointer[RecomputeStats]
}

func NewEngine(loader data.Loader, store neighbors.Database, cfg config.ItemCFConfig, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	e := &Engine{
		loader: loader,
		store:  store,
		cache:  cache.NoDatabase{},
		config: cfg,
		tracer: otel.Tracer("itemcf"),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.strategy == nil {
		name := cfg.Strategy
		if name == "" {
			name = similarity.CosineName
		}
		strategy, err := similarity.Lookup(name)
		if err != nil {
			return nil, errors.Trace(err)
		}
		e.strategy = strategy
	}
	return e, nil
}

// Stats returns the outcome of the last recompute. The second value is false before the
// first recompute.
func (e *Engine) Stats() (RecomputeStats, bool) {
	stats := e.stats.Load()
	if stats == nil {
		return RecomputeStats{}, false
	}
	return *stats, true
}

// Recompute rebuilds all similarities from the loader. Existing similarities are deleted
// first. An empty dataset leaves the store empty and is not an error. Cached query results
// are evicted once the new similarities are saved.
func (e *Engine) Recompute(ctx context.Context) (err error) {
	ctx, span := e.tracer.Start(ctx, "Recompute")
	defer span.End()
	startTime := time.Now()
	stats := &RecomputeStats{StartTime: startTime}
	defer func() {
		stats.Duration = time.Since(startTime)
		if err != nil {
			stats.Error = err.Error()
			span.RecordError(err)
			span.SetStatus(codes.Error, "recompute failed")
			var recomputeErr *RecomputeError
			if errors.As(err, &recomputeErr) {
				RecomputeFailuresTotal.WithLabelValues(recomputeErr.Step).Inc()
			}
			log.Logger().Error("failed to recompute similarities", zap.Error(err))
		} else {
			RecomputeTotalSeconds.Set(stats.Duration.Seconds())
		}
		e.stats.Store(stats)
	}()
	log.Logger().Info("start recomputing similarities")

	// clear old similarities
	if err = e.step(ctx, StepDelete, func(ctx context.Context) error {
		return e.store.DeleteAll(ctx)
	}); err != nil {
		return err
	}

	// build interaction matrix
	matrix := NewInteractionMatrix()
	if err = e.step(ctx, StepLoad, func(ctx context.Context) error {
		return matrix.Load(ctx, e.loader, e.config.BatchSize)
	}); err != nil {
		return err
	}
	stats.Items, stats.Interactions = matrix.ItemCount(), matrix.TotalInteractions()
	ItemsTotal.Set(float64(stats.Items))
	InteractionsTotal.Set(float64(stats.Interactions))
	if matrix.IsEmpty() {
		SimilaritiesTotal.Set(0)
		log.Logger().Warn("no interactions found, skip computing similarities")
		return nil
	}
	log.Logger().Info("load interaction matrix",
		zap.Int("n_items", stats.Items),
		zap.Int("n_interactions", stats.Interactions))

	// compute similarities
	var similarities []neighbors.Similarity
	if err = e.step(ctx, StepCompute, func(ctx context.Context) error {
		calculator := SimilarityCalculator{
			Strategy:       e.strategy,
			Threshold:      e.config.SimilarityThreshold,
			MinCommonUsers: e.config.MinCommonUsers,
			Jobs:           e.config.Jobs,
		}
		var err error
		similarities, err = calculator.Compute(ctx, matrix.Matrix())
		return err
	}); err != nil {
		return err
	}
	stats.Similarities = len(similarities)
	SimilaritiesTotal.Set(float64(stats.Similarities))

	// save similarities in chunks
	if err = e.step(ctx, StepSave, func(ctx context.Context) error {
		for _, chunk := range lo.Chunk(similarities, e.config.SaveBatchSize) {
			if err := e.store.SaveAll(ctx, chunk); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return err
	}

	// evict stale results
	for _, pattern := range []string{SimilarItemsPrefix + "*", UserRecommendPrefix + "*"} {
		if err := e.cache.EvictByPattern(ctx, pattern); err != nil {
			log.Logger().Warn("failed to evict cache", zap.String("pattern", pattern), zap.Error(err))
		}
	}

	log.Logger().Info("complete recomputing similarities",
		zap.Int("n_items", stats.Items),
		zap.Int("n_similarities", stats.Similarities),
		zap.Duration("duration", time.Since(startTime)))
	return nil
}

func (e *Engine) step(ctx context.Context, name string, f func(context.Context) error) error {
	ctx, span := e.tracer.Start(ctx, name)
	defer span.End()
	startTime := time.Now()
	if err := f(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return &RecomputeError{Step: name, Err: errors.Trace(err)}
	}
	RecomputeStepSecondsVec.WithLabelValues(name).Set(time.Since(startTime).Seconds())
	return nil
}

// SimilarItems returns at most limit items similar to itemId, highest score first. On a
// cache miss the top-K list is fetched from the store and cached in full.
func (e *Engine) SimilarItems(ctx context.Context, itemId int64, limit int) ([]cache.Score, error) {
	ctx, span := e.tracer.Start(ctx, "SimilarItems", trace.WithAttributes(attribute.Int64("item_id", itemId)))
	defer span.End()
	startTime := time.Now()
	defer func() {
		QuerySeconds.WithLabelValues("similar_items").Observe(time.Since(startTime).Seconds())
	}()

	key := SimilarItemsPrefix + strconv.FormatInt(itemId, 10)
	if scores, ok := e.getCache(ctx, key); ok {
		return truncate(scores, limit), nil
	}
	similarities, err := e.store.FindSimilar(ctx, itemId, e.config.TopKSimilar)
	if err != nil {
		return nil, errors.Trace(err)
	}
	scores := make([]cache.Score, 0, len(similarities))
	for _, s := range similarities {
		scores = append(scores, cache.Score{Id: s.ItemId2, Score: s.Score})
	}
	cache.SortScores(scores)
	if len(scores) > 0 {
		e.putCache(ctx, key, scores, SimilarItemsTTL)
	}
	return truncate(scores, limit), nil
}

// RecommendForUser sums the similarities of the neighbors of every interacted item and
// returns at most limit candidates, highest score first. Interacted items are never
// recommended.
func (e *Engine) RecommendForUser(ctx context.Context, userId int64, interacted []int64, limit int) ([]cache.Score, error) {
	ctx, span := e.tracer.Start(ctx, "RecommendForUser", trace.WithAttributes(attribute.Int64("user_id", userId)))
	defer span.End()
	startTime := time.Now()
	defer func() {
		QuerySeconds.WithLabelValues("recommend_for_user").Observe(time.Since(startTime).Seconds())
	}()

	key := UserRecommendPrefix + strconv.FormatInt(userId, 10)
	if scores, ok := e.getCache(ctx, key); ok {
		return truncate(scores, limit), nil
	}
	if len(interacted) == 0 {
		return []cache.Score{}, nil
	}
	interactedSet := mapset.NewThreadUnsafeSet(interacted...)
	candidates := make(map[int64]float64)
	for _, itemId := range interactedSet.ToSlice() {
		similarities, err := e.store.FindSimilar(ctx, itemId, e.config.TopKSimilar)
		if err != nil {
			return nil, errors.Trace(err)
		}
		for _, s := range similarities {
			if !interactedSet.Contains(s.ItemId2) {
				candidates[s.ItemId2] += s.Score
			}
		}
	}
	if len(candidates) == 0 {
		return []cache.Score{}, nil
	}
	scores := lo.MapToSlice(candidates, func(itemId int64, score float64) cache.Score {
		return cache.Score{Id: itemId, Score: score}
	})
	cache.SortScores(scores)
	scores = truncate(scores, limit)
	if len(scores) > 0 {
		e.putCache(ctx, key, scores, UserRecommendTTL)
	}
	return scores, nil
}

func (e *Engine) getCache(ctx context.Context, key string) ([]cache.Score, bool) {
	scores, found, err := e.cache.Get(ctx, key)
	if err != nil {
		log.Logger().Warn("failed to read cache", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if found {
		log.Logger().Debug("cache hit", zap.String("key", key))
	}
	return scores, found
}

func (e *Engine) putCache(ctx context.Context, key string, scores []cache.Score, ttl time.Duration) {
	if err := e.cache.Put(ctx, key, scores, ttl); err != nil {
		log.Logger().Warn("failed to write cache", zap.String("key", key), zap.Error(err))
	}
}

func truncate(scores []cache.Score, limit int) []cache.Score {
	if limit < len(scores) {
		return scores[:max(limit, 0)]
	}
	return scores
}
