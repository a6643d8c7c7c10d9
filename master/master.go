// Copyright 2020 gorse Project Authors
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

package master

import (
	"context"
	"sync"
	"time"

	"github.com/gorse-io/itemcf/base/log"
	"github.com/gorse-io/itemcf/config"
	"github.com/gorse-io/itemcf/logics"
	"github.com/gorse-io/itemcf/server"
	"github.com/juju/errors"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

// Master owns the storages and the engine. It recomputes similarities on a cron schedule
// and on request, and serves the REST API.
type Master struct {
	*server.RestServer
	settings       *config.Settings
	tracerProvider *tracesdk.TracerProvider
	cron           *cron.Cron
	recomputeMutex sync.Mutex
}

// NewMaster connects the storages named in the configuration.
func NewMaster(cfg *config.Config) (*Master, error) {
	var tracerProvider *tracesdk.TracerProvider
	if cfg.Tracing.EnableTracing {
		var err error
		tracerProvider, err = cfg.Tracing.NewTracerProvider()
		if err != nil {
			return nil, errors.Annotate(err, "failed to create trace provider")
		}
		otel.SetTracerProvider(tracerProvider)
		otel.SetErrorHandler(log.GetErrorHandler())
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	}
	settings, err := config.OpenSettings(cfg)
	if err != nil {
		return nil, errors.Trace(err)
	}
	m, err := NewMasterWithSettings(settings)
	if err != nil {
		_ = settings.Close()
		return nil, errors.Trace(err)
	}
	m.tracerProvider = tracerProvider
	return m, nil
}

// NewMasterWithSettings builds a master over already connected storages.
func NewMasterWithSettings(settings *config.Settings) (*Master, error) {
	engine, err := logics.NewEngine(settings.DataClient, settings.NeighborClient, settings.Config.ItemCF,
		logics.WithCache(settings.CacheClient))
	if err != nil {
		return nil, errors.Trace(err)
	}
	location, err := time.LoadLocation(settings.Config.Master.Timezone)
	if err != nil {
		return nil, errors.Trace(err)
	}
	m := &Master{
		RestServer: server.NewRestServer(engine, settings.Config),
		settings:   settings,
		cron:       cron.New(cron.WithLocation(location)),
	}
	m.RestServer.Recompute = m.Recompute
	return m, nil
}

// Recompute runs a recompute unless one is already running, in which case
// server.ErrRecomputeRunning is returned.
func (m *Master) Recompute(ctx context.Context) error {
	if !m.recomputeMutex.TryLock() {
		return server.ErrRecomputeRunning
	}
	defer m.recomputeMutex.Unlock()
	return m.Engine.Recompute(ctx)
}

// Schedule registers the periodic recompute. An empty schedule disables it.
func (m *Master) Schedule() error {
	spec := m.Config.Master.RecomputeSchedule
	if spec == "" {
		log.Logger().Info("scheduled recompute is disabled")
		return nil
	}
	_, err := m.cron.AddFunc(spec, func() {
		ScheduledRecomputeTotal.Inc()
		if err := m.Recompute(context.Background()); err != nil {
			if errors.Is(err, server.ErrRecomputeRunning) {
				log.Logger().Warn("skip scheduled recompute since the previous one is running")
			} else {
				ScheduledRecomputeFailuresTotal.Inc()
			}
		}
	})
	if err != nil {
		return errors.Annotatef(err, "invalid recompute schedule %q", spec)
	}
	m.cron.Start()
	log.Logger().Info("schedule recompute", zap.String("schedule", spec), zap.String("timezone", m.Config.Master.Timezone))
	return nil
}

// Serve schedules recomputes and blocks on the HTTP server.
func (m *Master) Serve() error {
	if err := m.Schedule(); err != nil {
		return errors.Trace(err)
	}
	return m.StartHttpServer()
}

// Shutdown stops the HTTP server, waits for a running scheduled recompute and closes the storages.
func (m *Master) Shutdown(ctx context.Context) error {
	var errs []error
	errs = append(errs, m.RestServer.Shutdown(ctx))
	select {
	case <-m.cron.Stop().Done():
	case <-ctx.Done():
		errs = append(errs, ctx.Err())
	}
	if m.tracerProvider != nil {
		errs = append(errs, m.tracerProvider.Shutdown(ctx))
	}
	errs = append(errs, m.settings.Close())
	for _, err := range errs {
		if err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}
