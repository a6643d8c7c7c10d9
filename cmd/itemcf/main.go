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
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorse-io/itemcf/base/log"
	"github.com/gorse-io/itemcf/cmd/version"
	"github.com/gorse-io/itemcf/config"
	"github.com/gorse-io/itemcf/logics"
	"github.com/gorse-io/itemcf/master"
	"github.com/juju/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rootCommand = &cobra.Command{
	Use:   "itemcf",
	Short: "Item-based collaborative filtering recommender.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		debug, _ := cmd.Flags().GetBool("debug")
		log.SetLogger(cmd.Flags(), debug)
	},
	SilenceUsage: true,
}

var serveCommand = &cobra.Command{
	Use:   "serve",
	Short: "Serve the REST API and recompute similarities on schedule.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		conf, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		m, err := master.NewMaster(conf)
		if err != nil {
			return errors.Trace(err)
		}
		// Stop master
		done := make(chan struct{})
		go func() {
			defer close(done)
			sigint := make(chan os.Signal, 1)
			signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
			<-sigint
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := m.Shutdown(ctx); err != nil {
				log.Logger().Error("failed to shutdown", zap.Error(err))
			}
		}()
		// Start master
		if err = m.Serve(); err != nil {
			return errors.Trace(err)
		}
		<-done
		log.Logger().Info("stop itemcf successfully")
		return nil
	},
}

var recomputeCommand = &cobra.Command{
	Use:   "recompute",
	Short: "Recompute similarities of all items once.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd, func(engine *logics.Engine) error {
			if err := engine.Recompute(cmd.Context()); err != nil {
				return errors.Trace(err)
			}
			stats, _ := engine.Stats()
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "items: %d\ninteractions: %d\nsimilarities: %d\nduration: %v\n",
				stats.Items, stats.Interactions, stats.Similarities, stats.Duration)
			return err
		})
	},
}

var versionCommand = &cobra.Command{
	Use:   "version",
	Short: "Show version information.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		_, _ = fmt.Fprint(cmd.OutOrStdout(), version.BuildInfo())
	},
}

func init() {
	log.AddFlags(rootCommand.PersistentFlags())
	rootCommand.PersistentFlags().Bool("debug", false, "use debug log mode")
	rootCommand.PersistentFlags().StringP("config", "c", "", "configuration file path")
	rootCommand.AddCommand(serveCommand, recomputeCommand, similarCommand, recommendCommand, versionCommand)
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	log.Logger().Info("load config", zap.String("config", configPath))
	conf, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, errors.Annotate(err, "failed to load config")
	}
	return conf, nil
}

// withEngine opens the storages named in the configuration and closes them after f returns.
func withEngine(cmd *cobra.Command, f func(engine *logics.Engine) error) error {
	conf, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	settings, err := config.OpenSettings(conf)
	if err != nil {
		return errors.Trace(err)
	}
	defer func() {
		if err := settings.Close(); err != nil {
			log.Logger().Error("failed to close databases", zap.Error(err))
		}
	}()
	engine, err := logics.NewEngine(settings.DataClient, settings.NeighborClient, conf.ItemCF,
		logics.WithCache(settings.CacheClient))
	if err != nil {
		return errors.Trace(err)
	}
	return f(engine)
}

func main() {
	if err := rootCommand.Execute(); err != nil {
		log.Logger().Fatal("failed to execute", zap.Error(err))
	}
}
