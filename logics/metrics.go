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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const LabelStep = "step"

var (
	RecomputeStepSecondsVec = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "itemcf",
		Subsystem: "engine",
		Name:      "recompute_step_seconds",
	}, []string{LabelStep})
	RecomputeTotalSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "itemcf",
		Subsystem: "engine",
		Name:      "recompute_total_seconds",
	})
	RecomputeFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "itemcf",
		Subsystem: "engine",
		Name:      "recompute_failures_total",
	}, []string{LabelStep})
	InteractionsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "itemcf",
		Subsystem: "engine",
		Name:      "interactions_total",
	})
	ItemsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "itemcf",
		Subsystem: "engine",
		Name:      "items_total",
	})
	SimilaritiesTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "itemcf",
		Subsystem: "engine",
		Name:      "similarities_total",
	})
	QuerySeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "itemcf",
		Subsystem: "engine",
		Name:      "query_seconds",
	}, []string{"query"})
)
