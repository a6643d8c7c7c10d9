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

package storage

import (
	"context"
	"database/sql"
	"strings"

	"github.com/XSAM/otelsql"
	_ "github.com/go-sql-driver/mysql"
	"github.com/juju/errors"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/mongo/otelmongo"
	semconv "go.opentelemetry.io/otel/semconv/v1.12.0"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	_ "modernc.org/sqlite"
)

type SQLDriver int

const (
	MySQL SQLDriver = iota
	Postgres
	SQLite
)

// IsSQL reports whether path points to a database served by OpenSQL.
func IsSQL(path string) bool {
	return strings.HasPrefix(path, MySQLPrefix) ||
		strings.HasPrefix(path, PostgresPrefix) ||
		strings.HasPrefix(path, PostgreSQLPrefix) ||
		strings.HasPrefix(path, SQLitePrefix)
}

// IsMongo reports whether path points to MongoDB.
func IsMongo(path string) bool {
	return strings.HasPrefix(path, MongoPrefix) || strings.HasPrefix(path, MongoSrvPrefix)
}

// IsRedis reports whether path points to Redis.
func IsRedis(path string) bool {
	return strings.HasPrefix(path, RedisPrefix) || strings.HasPrefix(path, RedissPrefix)
}

// OpenSQL connects to MySQL, Postgres or SQLite through an instrumented
// database/sql pool and wraps it with GORM.
func OpenSQL(path, tablePrefix string, opts ...Option) (SQLDriver, *sql.DB, *gorm.DB, error) {
	var (
		client *sql.DB
		gormDB *gorm.DB
		err    error
	)
	option := NewOptions(opts...)
	if strings.HasPrefix(path, MySQLPrefix) {
		name := path[len(MySQLPrefix):]
		// probe isolation variable name
		isolationVarName, err := ProbeMySQLIsolationVariableName(name)
		if err != nil {
			return 0, nil, nil, errors.Trace(err)
		}
		// append parameters
		if name, err = AppendMySQLParams(name, map[string]string{
			"sql_mode":       "'ONLY_FULL_GROUP_BY,STRICT_TRANS_TABLES,ERROR_FOR_DIVISION_BY_ZERO,NO_ENGINE_SUBSTITUTION'",
			isolationVarName: "'" + option.IsolationLevel + "'",
			"parseTime":      "true",
		}); err != nil {
			return 0, nil, nil, errors.Trace(err)
		}
		// connect to database
		if client, err = otelsql.Open("mysql", name,
			otelsql.WithAttributes(semconv.DBSystemMySQL),
			otelsql.WithSpanOptions(otelsql.SpanOptions{DisableErrSkip: true}),
		); err != nil {
			return 0, nil, nil, errors.Trace(err)
		}
		ApplySQLPool(client, option)
		if gormDB, err = gorm.Open(mysql.New(mysql.Config{Conn: client}), NewGORMConfig(tablePrefix)); err != nil {
			return 0, nil, nil, errors.Trace(err)
		}
		return MySQL, client, gormDB, nil
	} else if strings.HasPrefix(path, PostgresPrefix) || strings.HasPrefix(path, PostgreSQLPrefix) {
		if client, err = otelsql.Open("postgres", path,
			otelsql.WithAttributes(semconv.DBSystemPostgreSQL),
			otelsql.WithSpanOptions(otelsql.SpanOptions{DisableErrSkip: true}),
		); err != nil {
			return 0, nil, nil, errors.Trace(err)
		}
		ApplySQLPool(client, option)
		if gormDB, err = gorm.Open(postgres.New(postgres.Config{Conn: client}), NewGORMConfig(tablePrefix)); err != nil {
			return 0, nil, nil, errors.Trace(err)
		}
		return Postgres, client, gormDB, nil
	} else if strings.HasPrefix(path, SQLitePrefix) {
		// append parameters
		if path, err = AppendURLParams(path, []lo.Tuple2[string, string]{
			{A: "_pragma", B: "busy_timeout(10000)"},
			{A: "_pragma", B: "journal_mode(wal)"},
		}); err != nil {
			return 0, nil, nil, errors.Trace(err)
		}
		// connect to database
		name := path[len(SQLitePrefix):]
		if client, err = otelsql.Open("sqlite", name,
			otelsql.WithAttributes(semconv.DBSystemSqlite),
			otelsql.WithSpanOptions(otelsql.SpanOptions{DisableErrSkip: true}),
		); err != nil {
			return 0, nil, nil, errors.Trace(err)
		}
		ApplySQLPool(client, option)
		if gormDB, err = gorm.Open(sqlite.Dialector{Conn: client}, NewSQLiteGORMConfig(tablePrefix)); err != nil {
			return 0, nil, nil, errors.Trace(err)
		}
		return SQLite, client, gormDB, nil
	}
	return 0, nil, nil, errors.NotSupportedf("database %s", path)
}

// OpenMongo connects to MongoDB and returns the client along with the database
// name carried by the connection string.
func OpenMongo(path string) (*mongo.Client, string, error) {
	opts := options.Client()
	opts.Monitor = otelmongo.NewMonitor()
	opts.ApplyURI(path)
	client, err := mongo.Connect(context.Background(), opts)
	if err != nil {
		return nil, "", errors.Trace(err)
	}
	// parse DSN and extract database name
	cs, err := connstring.ParseAndValidate(path)
	if err != nil {
		return nil, "", errors.Trace(err)
	}
	return client, cs.Database, nil
}

// OpenRedis creates a Redis client from a redis:// or rediss:// URL.
func OpenRedis(path string) (*redis.Client, error) {
	opt, err := redis.ParseURL(path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	client := redis.NewClient(opt)
	if err = redisotel.InstrumentTracing(client); err != nil {
		return nil, errors.Trace(err)
	}
	return client, nil
}
