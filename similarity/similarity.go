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

// Package similarity implements item-to-item similarity functions over sparse
// user vectors. Every function is pure and safe for concurrent use.
package similarity

import (
	"math"
	"sort"
	"strings"

	"github.com/juju/errors"
	"github.com/samber/lo"
)

const (
	CosineName  = "cosine"
	PearsonName = "pearson"
	JaccardName = "jaccard"
	MSDName     = "msd"
)

// Vector is the sparse interaction vector of an item, mapping user ids to scores.
type Vector map[int64]float64

// Strategy computes the similarity between two item vectors.
type Strategy func(a, b Vector) float64

// ForIntersection calls f for every user present in both vectors. The smaller
// vector is iterated and the larger one is probed.
func ForIntersection(a, b Vector, f func(userId int64, a, b float64)) {
	if len(a) <= len(b) {
		for userId, x := range a {
			if y, ok := b[userId]; ok {
				f(userId, x, y)
			}
		}
	} else {
		for userId, y := range b {
			if x, ok := a[userId]; ok {
				f(userId, x, y)
			}
		}
	}
}

// CountCommon counts users present in both vectors and stops once the count
// reaches limit. A non-positive limit counts all common users.
func CountCommon(a, b Vector, limit int) int {
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	count := 0
	for userId := range small {
		if _, ok := large[userId]; ok {
			count++
			if limit > 0 && count >= limit {
				break
			}
		}
	}
	return count
}

func norm(v Vector) float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}

// Cosine computes the cosine similarity. The dot product runs over common users
// only, while each norm runs over all entries of its vector.
func Cosine(a, b Vector) float64 {
	var (
		dot    float64
		common int
	)
	ForIntersection(a, b, func(_ int64, x, y float64) {
		dot += x * y
		common++
	})
	if common == 0 {
		return 0
	}
	normA, normB := norm(a), norm(b)
	if normA == 0 || normB == 0 {
		return 0
	}
	return math.Min(dot/(normA*normB), 1)
}

// Pearson computes the Pearson correlation over common users. Negative
// correlation is reported as 0.
func Pearson(a, b Vector) float64 {
	var (
		sumA, sumB float64
		common     int
	)
	ForIntersection(a, b, func(_ int64, x, y float64) {
		sumA += x
		sumB += y
		common++
	})
	if common == 0 {
		return 0
	}
	meanA, meanB := sumA/float64(common), sumB/float64(common)
	var num, denA, denB float64
	ForIntersection(a, b, func(_ int64, x, y float64) {
		diffA, diffB := x-meanA, y-meanB
		num += diffA * diffB
		denA += diffA * diffA
		denB += diffB * diffB
	})
	if denA == 0 || denB == 0 {
		return 0
	}
	return lo.Clamp(num/(math.Sqrt(denA)*math.Sqrt(denB)), 0, 1)
}

// Jaccard computes the ratio of common users to the union of users. Scores are ignored.
func Jaccard(a, b Vector) float64 {
	common := CountCommon(a, b, 0)
	union := len(a) + len(b) - common
	if common == 0 || union == 0 {
		return 0
	}
	return float64(common) / float64(union)
}

// MSD computes the mean squared difference similarity over common users.
func MSD(a, b Vector) float64 {
	var sum, count float64
	ForIntersection(a, b, func(_ int64, x, y float64) {
		sum += (x - y) * (x - y)
		count++
	})
	if count == 0 {
		return 0
	}
	return 1.0 / (sum/count + 1)
}

var strategies = map[string]Strategy{
	CosineName:  Cosine,
	PearsonName: Pearson,
	JaccardName: Jaccard,
	MSDName:     MSD,
}

// Lookup returns the strategy registered under name.
func Lookup(name string) (Strategy, error) {
	if strategy, ok := strategies[strings.ToLower(name)]; ok {
		return strategy, nil
	}
	return nil, errors.NotValidf("similarity strategy %q", name)
}

// Names returns the registered strategy names in lexical order.
func Names() []string {
	names := lo.Keys(strategies)
	sort.Strings(names)
	return names
}
