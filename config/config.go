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

package config

import (
	"time"

	"github.com/juju/errors"
	"github.com/spf13/viper"
)

// Config is the configuration for the item-based recommender.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	ItemCF   ItemCFConfig   `mapstructure:"itemcf"`
	Server   ServerConfig   `mapstructure:"server"`
	Master   MasterConfig   `mapstructure:"master"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
}

// DatabaseConfig is the configuration for the interaction source, the similarity store and the cache.
type DatabaseConfig struct {
	DataStore     string      `mapstructure:"data_store" validate:"required"`
	NeighborStore string      `mapstructure:"neighbor_store" validate:"required"`
	CacheStore    string      `mapstructure:"cache_store"`
	TablePrefix   string      `mapstructure:"table_prefix"`
	MySQL         MySQLConfig `mapstructure:"mysql"`
}

// MySQLConfig tunes SQL connection pools. The isolation level applies to MySQL only.
type MySQLConfig struct {
	IsolationLevel  string        `mapstructure:"isolation_level" validate:"oneof=READ-UNCOMMITTED READ-COMMITTED REPEATABLE-READ SERIALIZABLE"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"gte=0"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" validate:"gte=0"`
}

// ItemCFConfig is the configuration for similarity computation and recommendation.
type ItemCFConfig struct {
	SimilarityThreshold float64 `mapstructure:"similarity_threshold" validate:"gte=0,lte=1"`
	MinCommonUsers      int     `mapstructure:"min_common_users" validate:"gte=1"`
	TopKSimilar         int     `mapstructure:"top_k_similar" validate:"gte=1"`
	BatchSize           int     `mapstructure:"batch_size" validate:"gte=1"`
	SaveBatchSize       int     `mapstructure:"save_batch_size" validate:"gte=1"`
	Strategy            string  `mapstructure:"strategy" validate:"omitempty,oneof=cosine jaccard pearson msd"`
	Jobs                int     `mapstructure:"jobs" validate:"gte=1"`
}

type ServerConfig struct {
	DefaultN int    `mapstructure:"default_n" validate:"gte=1"`
	APIKey   string `mapstructure:"api_key"`
}

type MasterConfig struct {
	HttpHost          string `mapstructure:"http_host"`
	HttpPort          int    `mapstructure:"http_port" validate:"gte=1,lte=65535"`
	RecomputeSchedule string `mapstructure:"recompute_schedule"` // cron spec, empty disables scheduling
	Timezone          string `mapstructure:"timezone"`
}

func GetDefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			MySQL: MySQLConfig{
				IsolationLevel: "READ-UNCOMMITTED",
			},
		},
		ItemCF: ItemCFConfig{
			SimilarityThreshold: 0.15,
			MinCommonUsers:      2,
			TopKSimilar:         50,
			BatchSize:           1000,
			SaveBatchSize:       1000,
			Strategy:            "cosine",
			Jobs:                1,
		},
		Server: ServerConfig{
			DefaultN: 10,
		},
		Master: MasterConfig{
			HttpHost:          "0.0.0.0",
			HttpPort:          8088,
			RecomputeSchedule: "@daily",
			Timezone:          "UTC",
		},
		Tracing: TracingConfig{
			Exporter: "otlp",
			Sampler:  "always",
			Ratio:    1,
		},
	}
}

func setDefault(v *viper.Viper) {
	defaultConfig := GetDefaultConfig()
	// [database.mysql]
	v.SetDefault("database.mysql.isolation_level", defaultConfig.Database.MySQL.IsolationLevel)
	v.SetDefault("database.mysql.max_open_conns", defaultConfig.Database.MySQL.MaxOpenConns)
	v.SetDefault("database.mysql.max_idle_conns", defaultConfig.Database.MySQL.MaxIdleConns)
	v.SetDefault("database.mysql.conn_max_lifetime", defaultConfig.Database.MySQL.ConnMaxLifetime)
	// [itemcf]
	v.SetDefault("itemcf.similarity_threshold", defaultConfig.ItemCF.SimilarityThreshold)
	v.SetDefault("itemcf.min_common_users", defaultConfig.ItemCF.MinCommonUsers)
	v.SetDefault("itemcf.top_k_similar", defaultConfig.ItemCF.TopKSimilar)
	v.SetDefault("itemcf.batch_size", defaultConfig.ItemCF.BatchSize)
	v.SetDefault("itemcf.save_batch_size", defaultConfig.ItemCF.SaveBatchSize)
	v.SetDefault("itemcf.strategy", defaultConfig.ItemCF.Strategy)
	v.SetDefault("itemcf.jobs", defaultConfig.ItemCF.Jobs)
	// [server]
	v.SetDefault("server.default_n", defaultConfig.Server.DefaultN)
	// [master]
	v.SetDefault("master.http_host", defaultConfig.Master.HttpHost)
	v.SetDefault("master.http_port", defaultConfig.Master.HttpPort)
	v.SetDefault("master.recompute_schedule", defaultConfig.Master.RecomputeSchedule)
	v.SetDefault("master.timezone", defaultConfig.Master.Timezone)
	// [tracing]
	v.SetDefault("tracing.exporter", defaultConfig.Tracing.Exporter)
	v.SetDefault("tracing.sampler", defaultConfig.Tracing.Sampler)
	v.SetDefault("tracing.ratio", defaultConfig.Tracing.Ratio)
}

type configBinding struct {
	key string
	env string
}

var bindings = []configBinding{
	{"database.data_store", "ITEMCF_DATA_STORE"},
	{"database.neighbor_store", "ITEMCF_NEIGHBOR_STORE"},
	{"database.cache_store", "ITEMCF_CACHE_STORE"},
	{"database.table_prefix", "ITEMCF_TABLE_PREFIX"},
	{"itemcf.similarity_threshold", "ITEMCF_SIMILARITY_THRESHOLD"},
	{"itemcf.min_common_users", "ITEMCF_MIN_COMMON_USERS"},
	{"itemcf.top_k_similar", "ITEMCF_TOP_K_SIMILAR"},
	{"itemcf.strategy", "ITEMCF_STRATEGY"},
	{"itemcf.jobs", "ITEMCF_JOBS"},
	{"server.api_key", "ITEMCF_SERVER_API_KEY"},
	{"master.http_host", "ITEMCF_MASTER_HTTP_HOST"},
	{"master.http_port", "ITEMCF_MASTER_HTTP_PORT"},
	{"master.recompute_schedule", "ITEMCF_RECOMPUTE_SCHEDULE"},
	{"tracing.enable_tracing", "ITEMCF_ENABLE_TRACING"},
	{"tracing.collector_endpoint", "ITEMCF_COLLECTOR_ENDPOINT"},
}

// LoadConfig loads configuration from a TOML file, overlays ITEMCF_* environment variables and
// validates the result. An empty path loads defaults and environment variables only.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefault(v)
	for _, binding := range bindings {
		if err := v.BindEnv(binding.key, binding.env); err != nil {
			return nil, errors.Trace(err)
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Trace(err)
		}
	}
	var conf Config
	if err := v.Unmarshal(&conf); err != nil {
		return nil, errors.Trace(err)
	}
	if err := conf.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &conf, nil
}
