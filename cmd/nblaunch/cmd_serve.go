// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
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

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/teradata-labs/nblaunch/internal/log"
	"github.com/teradata-labs/nblaunch/internal/uiutil"
	"github.com/teradata-labs/nblaunch/pkg/backend"
	"github.com/teradata-labs/nblaunch/pkg/nbserver"
)

var serveCmd = &cobra.Command{
	Use:    "serve",
	Short:  "Run a notebook server from a rendered configuration",
	Long:   `Run a notebook server from a configuration rendered by 'nblaunch launch'. Not meant to be run by hand.`,
	Hidden: true,
	Args:   cobra.NoArgs,
	Run:    runServe,
}

func init() {
	serveCmd.Flags().String("config", "", "rendered server configuration (required)")
	serveCmd.Flags().String("cpuprofile", "", "write a CPU profile to this file")
	_ = serveCmd.MarkFlagRequired("config")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) {
	logger := log.Logger()
	path, _ := cmd.Flags().GetString("config")
	profile, _ := cmd.Flags().GetString("cpuprofile")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := serve(ctx, path, profile, logger)
	code := nbserver.ExitCode(err)
	if err != nil {
		logger.Error("Notebook server stopped", zap.Error(err), zap.Int("exit_code", code))
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	stop()
	_ = log.Sync()
	os.Exit(code)
}

func serve(ctx context.Context, path, profile string, logger *zap.Logger) error {
	rendered, err := backend.Load(path)
	if err != nil {
		return err
	}
	key, err := storeKey(config, rendered.Directory)
	if err != nil {
		return err
	}

	return nbserver.Run(ctx, nbserver.Config{
		ConfigPath:      path,
		CPUProfile:      profile,
		StoreKey:        key,
		OpenBrowser:     uiutil.OpenURL,
		ReapSchedule:    config.Server.ReapSchedule,
		ShutdownTimeout: config.Server.ShutdownTimeout,
		Logger:          logger,
	})
}
