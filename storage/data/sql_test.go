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

package data

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/suite"
)

type SQLiteTestSuite struct {
	baseTestSuite
}

func (suite *SQLiteTestSuite) SetupTest() {
	var err error
	path := fmt.Sprintf("sqlite://%s/sqlite.db", suite.T().TempDir())
	suite.Database, err = Open(path, "itemcf_")
	suite.NoError(err)
	suite.NoError(suite.Database.Init())
}

func (suite *SQLiteTestSuite) TearDownTest() {
	suite.baseTestSuite.TearDownTest()
	suite.NoError(suite.Database.Close())
}

func (suite *SQLiteTestSuite) TestRejectInvalidRow() {
	db := suite.Database.(*SQLDatabase)
	err := db.gormDB.Create(&SQLInteraction{UserId: 1, ItemId: 1, Score: -1}).Error
	suite.NoError(err)
	_, err = suite.LoadBatch(context.Background(), 0, 10)
	suite.True(errors.Is(err, errors.NotValid))
}

func TestSQLite(t *testing.T) {
	suite.Run(t, new(SQLiteTestSuite))
}

type MySQLTestSuite struct {
	baseTestSuite
}

func (suite *MySQLTestSuite) SetupSuite() {
	uri := os.Getenv("MYSQL_URI")
	var err error
	suite.Database, err = Open(uri, "itemcf_")
	suite.NoError(err)
	suite.NoError(suite.Database.Init())
	suite.NoError(suite.Database.Purge())
}

func (suite *MySQLTestSuite) TearDownSuite() {
	suite.NoError(suite.Database.Close())
}

func TestMySQL(t *testing.T) {
	if os.Getenv("MYSQL_URI") == "" {
		t.Skip("MYSQL_URI is not set")
	}
	suite.Run(t, new(MySQLTestSuite))
}

type PostgresTestSuite struct {
	baseTestSuite
}

func (suite *PostgresTestSuite) SetupSuite() {
	uri := os.Getenv("POSTGRES_URI")
	var err error
	suite.Database, err = Open(uri, "itemcf_")
	suite.NoError(err)
	suite.NoError(suite.Database.Init())
	suite.NoError(suite.Database.Purge())
}

func (suite *PostgresTestSuite) TearDownSuite() {
	suite.NoError(suite.Database.Close())
}

func TestPostgres(t *testing.T) {
	if os.Getenv("POSTGRES_URI") == "" {
		t.Skip("POSTGRES_URI is not set")
	}
	suite.Run(t, new(PostgresTestSuite))
}
