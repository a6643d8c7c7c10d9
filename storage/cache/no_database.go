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
)

// NoDatabase means no database used for cache. Every lookup misses and every
// write is dropped.
type NoDatabase struct{}

func (NoDatabase) Close() error {
	return nil
}

func (NoDatabase) Get(context.Context, string) ([]Score, bool, error) {
	return nil, false, nil
}

func (NoDatabase) Put(context.Context, string, []Score, time.Duration) error {
	return nil
}

func (NoDatabase) EvictByPattern(context.Context, string) error {
	return nil
}
