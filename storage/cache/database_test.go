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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

type baseTestSuite struct {
	suite.Suite
	Database
}

func (suite *baseTestSuite) TestPutGet() {
	ctx := context.Background()
	_, found, err := suite.Get(ctx, "itemcf:similar:1")
	suite.NoError(err)
	suite.False(found)
	scores := []Score{{Id: 2, Score: 0.9}, {Id: 3, Score: 0.5}}
	suite.NoError(suite.Put(ctx, "itemcf:similar:1", scores, time.Hour))
	cached, found, err := suite.Get(ctx, "itemcf:similar:1")
	suite.NoError(err)
	suite.True(found)
	suite.Equal(scores, cached)
	// overwrite
	suite.NoError(suite.Put(ctx, "itemcf:similar:1", scores[:1], time.Hour))
	cached, found, err = suite.Get(ctx, "itemcf:similar:1")
	suite.NoError(err)
	suite.True(found)
	suite.Equal(scores[:1], cached)
}

func (suite *baseTestSuite) TestEvictByPattern() {
	ctx := context.Background()
	suite.NoError(suite.Put(ctx, "itemcf:similar:1", []Score{{Id: 2, Score: 0.9}}, time.Hour))
	suite.NoError(suite.Put(ctx, "itemcf:similar:2", []Score{{Id: 1, Score: 0.9}}, time.Hour))
	suite.NoError(suite.Put(ctx, "itemcf:user:1", []Score{{Id: 3, Score: 1.2}}, time.Hour))
	suite.NoError(suite.EvictByPattern(ctx, "itemcf:similar:*"))
	_, found, err := suite.Get(ctx, "itemcf:similar:1")
	suite.NoError(err)
	suite.False(found)
	_, found, err = suite.Get(ctx, "itemcf:similar:2")
	suite.NoError(err)
	suite.False(found)
	_, found, err = suite.Get(ctx, "itemcf:user:1")
	suite.NoError(err)
	suite.True(found)
	// nothing to evict
	suite.NoError(suite.EvictByPattern(ctx, "itemcf:none:*"))
}

type MemoryTestSuite struct {
	baseTestSuite
}

func (suite *MemoryTestSuite) SetupTest() {
	var err error
	suite.Database, err = Open("memory://")
	suite.NoError(err)
}

func (suite *MemoryTestSuite) TearDownTest() {
	suite.NoError(suite.Database.Close())
}

func (suite *MemoryTestSuite) TestExpire() {
	ctx := context.Background()
	suite.NoError(suite.Put(ctx, "itemcf:user:1", []Score{{Id: 3, Score: 1.2}}, 10*time.Millisecond))
	time.Sleep(50 * time.Millisecond)
	_, found, err := suite.Get(ctx, "itemcf:user:1")
	suite.NoError(err)
	suite.False(found)
}

func TestMemory(t *testing.T) {
	suite.Run(t, new(MemoryTestSuite))
}

func TestNoDatabase(t *testing.T) {
	ctx := context.Background()
	database, err := Open("")
	assert.NoError(t, err)
	assert.IsType(t, NoDatabase{}, database)
	assert.NoError(t, database.Put(ctx, "a", []Score{{Id: 1, Score: 1}}, time.Hour))
	scores, found, err := database.Get(ctx, "a")
	assert.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, scores)
	assert.NoError(t, database.EvictByPattern(ctx, "*"))
	assert.NoError(t, database.Close())
}

func TestOpenUnknown(t *testing.T) {
	_, err := Open("unknown://")
	assert.Error(t, err)
}

func TestSortScores(t *testing.T) {
	scores := []Score{{Id: 1, Score: 0.1}, {Id: 2, Score: 0.9}, {Id: 3, Score: 0.5}}
	SortScores(scores)
	assert.Equal(t, []Score{{Id: 2, Score: 0.9}, {Id: 3, Score: 0.5}, {Id: 1, Score: 0.1}}, scores)
}

func TestMatchPattern(t *testing.T) {
	assert.True(t, matchPattern("itemcf:user:*", "itemcf:user:1"))
	assert.True(t, matchPattern("itemcf:user:*", "itemcf:user:"))
	assert.False(t, matchPattern("itemcf:user:*", "itemcf:similar:1"))
	assert.True(t, matchPattern("itemcf:user:1", "itemcf:user:1"))
	assert.False(t, matchPattern("itemcf:user:1", "itemcf:user:10"))
}
