// Copyright 2022 gorse Project Authors
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

package config

import (
	"github.com/gorse-io/itemcf/base/log"
	"github.com/gorse-io/itemcf/storage"
	"github.com/gorse-io/itemcf/storage/cache"
	"github.com/gorse-io/itemcf/storage/data"
	"github.com/gorse-io/itemcf/storage/neighbors"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

// Settings bundles a configuration with the storage clients it describes.
type Settings struct {
	Config *Config

	// database clients
	DataClient     data.Database
	NeighborClient neighbors.Database
	CacheClient    cache.Database
}

func NewSettings() *Settings {
	return &Settings{
		Config:         GetDefaultConfig(),
		DataClient:     data.NewMemory(),
		NeighborClient: neighbors.NewMemory(),
		CacheClient:    cache.NoDatabase{},
	}
}

// OpenSettings connects every store named in the configuration. The cache is wrapped with
// metrics and a circuit breaker.
func OpenSettings(conf *Config) (*Settings, error) {
	settings := &Settings{Config: conf}
	opts := []storage.Option{
		storage.WithIsolationLevel(conf.Database.MySQL.IsolationLevel),
		storage.WithMaxOpenConns(conf.Database.MySQL.MaxOpenConns),
		storage.WithMaxIdleConns(conf.Database.MySQL.MaxIdleConns),
		storage.WithConnMaxLifetime(conf.Database.MySQL.ConnMaxLifetime),
	}
	var err error
	settings.DataClient, err = data.Open(conf.Database.DataStore, conf.Database.TablePrefix, opts...)
	if err != nil {
		return nil, errors.Annotate(err, "failed to connect data database")
	}
	if err = settings.DataClient.Init(); err != nil {
		_ = settings.DataClient.Close()
		return nil, errors.Annotate(err, "failed to init data database")
	}
	settings.NeighborClient, err = neighbors.Open(conf.Database.NeighborStore, conf.Database.TablePrefix, opts...)
	if err != nil {
		_ = settings.DataClient.Close()
		return nil, errors.Annotate(err, "failed to connect neighbor database")
	}
	if err = settings.NeighborClient.Init(); err != nil {
		_ = settings.Close()
		return nil, errors.Annotate(err, "failed to init neighbor database")
	}
	cacheClient, err := cache.Open(conf.Database.CacheStore)
	if err != nil {
		_ = settings.Close()
		return nil, errors.Annotate(err, "failed to connect cache database")
	}
	settings.CacheClient = cache.NewBreaker(cache.Instrument(cacheClient), cache.DefaultBreakerConfig())
	log.Logger().Info("connect databases",
		zap.String("data_store", log.RedactDBURL(conf.Database.DataStore)),
		zap.String("neighbor_store", log.RedactDBURL(conf.Database.NeighborStore)),
		zap.String("cache_store", log.RedactDBURL(conf.Database.CacheStore)))
	return settings, nil
}

// Close closes every opened client.
func (s *Settings) Close() error {
	var errs []error
	if s.DataClient != nil {
		errs = append(errs, s.DataClient.Close())
	}
	if s.NeighborClient != nil {
		errs = append(errs, s.NeighborClient.Close())
	}
	if s.CacheClient != nil {
		errs = append(errs, s.CacheClient.Close())
	}
	for _, err := range errs {
		if err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}
