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

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/gorse-io/itemcf/storage/cache"
	"github.com/gorse-io/itemcf/storage/data"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
)

func TestParseIds(t *testing.T) {
	ids, err := parseIds([]string{"1", "10", "20"})
	assert.NoError(t, err)
	assert.Equal(t, []int64{1, 10, 20}, ids)
	_, err = parseIds([]string{"1", "x"})
	assert.True(t, errors.Is(err, errors.NotValid))
}

func TestRenderScores(t *testing.T) {
	var buf bytes.Buffer
	err := renderScores(&buf, []cache.Score{{Id: 20, Score: 0.9055}, {Id: 40, Score: 0.82}})
	assert.NoError(t, err)
	assert.Contains(t, buf.String(), "20")
	assert.Contains(t, buf.String(), "0.9055")
	assert.Contains(t, buf.String(), "0.8200")
}

func TestCommands(t *testing.T) {
	dir := t.TempDir()
	dataStore := "sqlite://" + filepath.Join(dir, "data.db")
	database, err := data.Open(dataStore, "")
	assert.NoError(t, err)
	assert.NoError(t, database.Init())
	assert.NoError(t, database.BatchInsertInteractions(context.Background(), []data.Interaction{
		{UserId: 1, ItemId: 10, Score: 5},
		{UserId: 2, ItemId: 10, Score: 4},
		{UserId: 1, ItemId: 20, Score: 5},
		{UserId: 2, ItemId: 20, Score: 4},
	}))
	assert.NoError(t, database.Close())
	configPath := filepath.Join(dir, "config.toml")
	assert.NoError(t, os.WriteFile(configPath, []byte(`
[database]
data_store = "`+dataStore+`"
neighbor_store = "sqlite://`+filepath.Join(dir, "neighbors.db")+`"
`), 0644))

	run := func(args ...string) string {
		var buf bytes.Buffer
		rootCommand.SetOut(&buf)
		rootCommand.SetArgs(append(args, "--config", configPath))
		assert.NoError(t, rootCommand.Execute())
		return buf.String()
	}
	assert.Contains(t, run("recompute"), "similarities: 2")
	assert.Contains(t, run("similar", "10"), "20")
	assert.Contains(t, run("recommend", "1", "10"), "20")
	assert.Contains(t, run("version"), "API version")
}
