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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	GetSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "itemcf",
		Subsystem: "cache",
		Name:      "get_seconds",
	})
	PutSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "itemcf",
		Subsystem: "cache",
		Name:      "put_seconds",
	})
	EvictSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "itemcf",
		Subsystem: "cache",
		Name:      "evict_seconds",
	})

	HitTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "itemcf",
		Subsystem: "cache",
		Name:      "hit_total",
	})
	MissTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "itemcf",
		Subsystem: "cache",
		Name:      "miss_total",
	})
	ErrorTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "itemcf",
		Subsystem: "cache",
		Name:      "error_total",
	}, []string{"operation"})
)

// Instrumented records latency, hits and failures of the wrapped cache.
type Instrumented struct {
	Database
}

func Instrument(db Database) *Instrumented {
	return &Instrumented{Database: db}
}

func (i *Instrumented) Get(ctx context.Context, key string) ([]Score, bool, error) {
	start := time.Now()
	scores, found, err := i.Database.Get(ctx, key)
	GetSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		ErrorTotal.WithLabelValues("get").Inc()
	} else if found {
		HitTotal.Inc()
	} else {
		MissTotal.Inc()
	}
	return scores, found, err
}

func (i *Instrumented) Put(ctx context.Context, key string, scores []Score, ttl time.Duration) error {
	start := time.Now()
	err := i.Database.Put(ctx, key, scores, ttl)
	PutSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		ErrorTotal.WithLabelValues("put").Inc()
	}
	return err
}

func (i *Instrumented) EvictByPattern(ctx context.Context, pattern string) error {
	start := time.Now()
	err := i.Database.EvictByPattern(ctx, pattern)
	EvictSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		ErrorTotal.WithLabelValues("evict").Inc()
	}
	return err
}
