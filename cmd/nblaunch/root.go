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
	"errors"
	"fmt"
	"os"

	"github.com/MakeNowJust/heredoc"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/teradata-labs/nblaunch/internal/log"
	"github.com/teradata-labs/nblaunch/internal/version"
	"github.com/teradata-labs/nblaunch/pkg/launcher"
)

var (
	cfgFile string
	config  *Config
)

var rootCmd = &cobra.Command{
	Use:   "nblaunch",
	Short: "Launch a notebook server",
	Long: heredoc.Doc(`
		nblaunch prepares a notebook directory and starts a notebook server for it.

		It picks a free port, reuses a server already running on the same directory,
		creates the admin account and TLS certificates when needed, and starts the
		server with a generated configuration.
	`),
	Version:       version.Get(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits 1 on error, printing any suggestion.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		if s := launcher.Suggestion(err); s != "" {
			fmt.Fprintln(os.Stderr, "\n"+s)
		}
		var le *launcher.Error
		if !errors.As(err, &le) {
			fmt.Fprintln(os.Stderr, "Run 'nblaunch --help' for usage.")
		}
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config-file", "", "config file (default: $NBLAUNCH_DATA_DIR/nblaunch.yaml)")

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "Log format (text, json)")
	rootCmd.PersistentFlags().String("log-file", "", "Write logs to this file instead of stderr")

	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))
	_ = viper.BindPFlag("logging.file", rootCmd.PersistentFlags().Lookup("log-file"))
}

// initConfig reads in config file and ENV variables if set, then builds the logger.
func initConfig() {
	var err error
	config, err = LoadConfig(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if err := config.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := log.New(config.Logging.Level, config.Logging.Format, config.Logging.File)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	log.SetLogger(logger)
	logger.Debug("Configuration loaded",
		zap.String("config_file", viper.ConfigFileUsed()),
		zap.String("data_dir", config.DataDir))
}
