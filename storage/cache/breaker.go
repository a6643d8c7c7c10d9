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
	"time"

	"github.com/gorse-io/itemcf/base/log"
	"github.com/juju/errors"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

type BreakerConfig struct {
	Name string
	// MaxRequests is the number of trial requests allowed in the half-open state.
	MaxRequests uint32
	// Interval is the period after which failure counts are cleared in the closed state.
	Interval time.Duration
	// Timeout is how long the breaker stays open.
	Timeout          time.Duration
	FailureThreshold float64
	MinRequests      uint32
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:             "cache",
		MaxRequests:      3,
		Interval:         30 * time.Second,
		Timeout:          30 * time.Second,
		FailureThreshold: 0.6,
		MinRequests:      5,
	}
}

// Breaker short-circuits calls to a failing cache. While open, every call
// fails fast with gobreaker.ErrOpenState.
type Breaker struct {
	Database
	breaker *gobreaker.CircuitBreaker
}

func NewBreaker(db Database, cfg BreakerConfig) *Breaker {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Logger().Warn("circuit breaker state changed",
				zap.String("circuit", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}
	return &Breaker{Database: db, breaker: gobreaker.NewCircuitBreaker(settings)}
}

func (b *Breaker) State() gobreaker.State {
	return b.breaker.State()
}

func (b *Breaker) Get(ctx context.Context, key string) ([]Score, bool, error) {
	type result struct {
		scores []Score
		found  bool
	}
	r, err := b.breaker.Execute(func() (any, error) {
		scores, found, err := b.Database.Get(ctx, key)
		return result{scores: scores, found: found}, err
	})
	if err != nil {
		return nil, false, errors.Trace(err)
	}
	return r.(result).scores, r.(result).found, nil
}

func (b *Breaker) Put(ctx context.Context, key string, scores []Score, ttl time.Duration) error {
	_, err := b.breaker.Execute(func() (any, error) {
		return nil, b.Database.Put(ctx, key, scores, ttl)
	})
	return errors.Trace(err)
}

func (b *Breaker) EvictByPattern(ctx context.Context, pattern string) error {
	_, err := b.breaker.Execute(func() (any, error) {
		return nil, b.Database.EvictByPattern(ctx, pattern)
	})
	return errors.Trace(err)
}
