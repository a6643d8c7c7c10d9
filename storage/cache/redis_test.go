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
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorse-io/itemcf/storage"
	"github.com/stretchr/testify/suite"
)

type RedisTestSuite struct {
	baseTestSuite
	server *miniredis.Miniredis
}

func (suite *RedisTestSuite) SetupTest() {
	var err error
	suite.server, err = miniredis.Run()
	suite.NoError(err)
	suite.Database, err = Open(storage.RedisPrefix + suite.server.Addr())
	suite.NoError(err)
}

func (suite *RedisTestSuite) TearDownTest() {
	suite.NoError(suite.Database.Close())
	suite.server.Close()
}

func (suite *RedisTestSuite) TestExpire() {
	ctx := context.Background()
	suite.NoError(suite.Put(ctx, "itemcf:user:1", []Score{{Id: 3, Score: 1.2}}, 6*time.Hour))
	suite.Equal(6*time.Hour, suite.server.TTL("itemcf:user:1"))
	suite.server.FastForward(6 * time.Hour)
	_, found, err := suite.Get(ctx, "itemcf:user:1")
	suite.NoError(err)
	suite.False(found)
}

func (suite *RedisTestSuite) TestCorrupted() {
	suite.NoError(suite.server.Set("itemcf:user:1", "not json"))
	_, found, err := suite.Get(context.Background(), "itemcf:user:1")
	suite.Error(err)
	suite.False(found)
}

func (suite *RedisTestSuite) TestServerDown() {
	suite.server.Close()
	_, _, err := suite.Get(context.Background(), "itemcf:user:1")
	suite.Error(err)
	suite.NoError(suite.server.Restart())
}

func TestRedis(t *testing.T) {
	suite.Run(t, new(RedisTestSuite))
}
