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
	"io"
	"strconv"

	"github.com/gorse-io/itemcf/base/log"
	"github.com/gorse-io/itemcf/logics"
	"github.com/gorse-io/itemcf/storage/cache"
	"github.com/juju/errors"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var similarCommand = &cobra.Command{
	Use:   "similar <item-id>",
	Short: "Show items similar to an item.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		itemId, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return errors.NewNotValid(err, "item id")
		}
		n, _ := cmd.Flags().GetInt("n")
		quiet(cmd)
		return withEngine(cmd, func(engine *logics.Engine) error {
			scores, err := engine.SimilarItems(cmd.Context(), itemId, n)
			if err != nil {
				return errors.Trace(err)
			}
			return renderScores(cmd.OutOrStdout(), scores)
		})
	},
}

var recommendCommand = &cobra.Command{
	Use:   "recommend <user-id> <item-id>...",
	Short: "Recommend items for a user from the items the user interacted with.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIds(args)
		if err != nil {
			return err
		}
		n, _ := cmd.Flags().GetInt("n")
		quiet(cmd)
		return withEngine(cmd, func(engine *logics.Engine) error {
			scores, err := engine.RecommendForUser(cmd.Context(), ids[0], ids[1:], n)
			if err != nil {
				return errors.Trace(err)
			}
			return renderScores(cmd.OutOrStdout(), scores)
		})
	},
}

func init() {
	similarCommand.Flags().IntP("n", "n", 10, "number of returned items")
	recommendCommand.Flags().IntP("n", "n", 10, "number of returned items")
}

// quiet keeps logs out of tables printed to stdout unless debugging.
func quiet(cmd *cobra.Command) {
	if debug, _ := cmd.Flags().GetBool("debug"); !debug {
		log.CloseLogger()
	}
}

func parseIds(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return nil, errors.NewNotValid(err, "id "+arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func renderScores(w io.Writer, scores []cache.Score) error {
	table := tablewriter.NewWriter(w)
	table.Header("item_id", "score")
	for _, score := range scores {
		if err := table.Append([]string{
			strconv.FormatInt(score.Id, 10),
			strconv.FormatFloat(score.Score, 'f', 4, 64),
		}); err != nil {
			return errors.Trace(err)
		}
	}
	return errors.Trace(table.Render())
}
