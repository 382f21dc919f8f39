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
	"fmt"
	"strings"
	"time"

	"github.com/MakeNowJust/heredoc"
	"github.com/spf13/viper"

	"github.com/teradata-labs/nblaunch/pkg/backend"
	nbconfig "github.com/teradata-labs/nblaunch/pkg/config"
	"github.com/teradata-labs/nblaunch/pkg/ports"
	"github.com/teradata-labs/nblaunch/pkg/tls"
)

// DefaultConfigFileName is the name of the config file, without extension.
const DefaultConfigFileName = "nblaunch"

// Config holds the nblaunch configuration.
// Priority: CLI flags > env vars > config file > defaults
type Config struct {
	// DataDir is the data root (NBLAUNCH_DATA_DIR or ~/.nblaunch). It is not read from the
	// config file.
	DataDir string `mapstructure:"-"`

	Launch  LaunchConfig  `mapstructure:"launch"`
	TLS     TLSConfig     `mapstructure:"tls"`
	Store   StoreConfig   `mapstructure:"store"`
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// LaunchConfig holds defaults for `nblaunch launch`.
type LaunchConfig struct {
	Directory      string        `mapstructure:"directory"`
	Port           int           `mapstructure:"port"`
	Interface      string        `mapstructure:"interface"`
	PortTries      int           `mapstructure:"port_tries"`
	Secure         bool          `mapstructure:"secure"`
	AutomaticLogin bool          `mapstructure:"automatic_login"`
	Backend        string        `mapstructure:"backend"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	StartPath      string        `mapstructure:"start_path"`
	Ulimit         string        `mapstructure:"ulimit"`
	ServerPool     []string      `mapstructure:"server_pool"`
	ProfilePrefix  string        `mapstructure:"profile_prefix"`
}

// TLSConfig configures certificate provisioning.
type TLSConfig struct {
	// Toolchain is auto, openssl, certtool or native.
	Toolchain string `mapstructure:"toolchain"`

	// Domain skips the interactive domain prompt when set.
	Domain string `mapstructure:"domain"`
}

// StoreConfig configures the notebook store.
type StoreConfig struct {
	// Encrypt opens the store with a key from the system keyring (cgo builds only).
	Encrypt bool `mapstructure:"encrypt"`

	// BcryptCost is the cost of admin password hashes.
	BcryptCost int `mapstructure:"bcrypt_cost"`
}

// ServerConfig configures `nblaunch serve`.
type ServerConfig struct {
	ReapSchedule    string        `mapstructure:"reap_schedule"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // text, json
	File   string `mapstructure:"file"`   // optional, defaults to stderr
}

// LoadConfig reads the config file (if any), environment and bound flags.
func LoadConfig(cfgFile string) (*Config, error) {
	setDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(nbconfig.DataRoot())
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/nblaunch/")
		viper.SetConfigName(DefaultConfigFileName)
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file %s: %w", viper.ConfigFileUsed(), err)
		}
	}

	viper.SetEnvPrefix("NBLAUNCH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	config.DataDir = nbconfig.DataRoot()
	return &config, nil
}

// setDefaults sets default configuration values.
func setDefaults() {
	viper.SetDefault("launch.port", 8080)
	viper.SetDefault("launch.interface", "localhost")
	viper.SetDefault("launch.port_tries", 50)
	viper.SetDefault("launch.automatic_login", true)
	viper.SetDefault("launch.backend", "reactor")
	viper.SetDefault("launch.idle_timeout", 0)

	viper.SetDefault("tls.toolchain", tls.ToolchainAuto)

	viper.SetDefault("store.encrypt", false)
	viper.SetDefault("store.bcrypt_cost", 10)

	viper.SetDefault("server.reap_schedule", "@every 1m")
	viper.SetDefault("server.shutdown_timeout", 10*time.Second)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Launch.Port < 1 || c.Launch.Port > ports.MaxPort {
		return fmt.Errorf("invalid port: %d (must be 1-%d)", c.Launch.Port, ports.MaxPort)
	}
	if c.Launch.PortTries < 1 {
		return fmt.Errorf("invalid port_tries: %d (must be at least 1)", c.Launch.PortTries)
	}
	if _, err := backend.Parse(c.Launch.Backend); err != nil {
		return fmt.Errorf("invalid launch.backend: %w", err)
	}
	if c.Launch.IdleTimeout < 0 {
		return fmt.Errorf("invalid launch.idle_timeout: %s", c.Launch.IdleTimeout)
	}

	switch c.TLS.Toolchain {
	case "", tls.ToolchainAuto, tls.ToolchainOpenSSL, tls.ToolchainCerttool, tls.ToolchainNative:
	default:
		return fmt.Errorf("unsupported tls.toolchain: %s (must be auto, openssl, certtool, or native)", c.TLS.Toolchain)
	}

	if c.Store.BcryptCost != 0 && (c.Store.BcryptCost < 4 || c.Store.BcryptCost > 31) {
		return fmt.Errorf("invalid store.bcrypt_cost: %d (must be 4-31)", c.Store.BcryptCost)
	}

	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("unsupported logging.format: %s (must be text or json)", c.Logging.Format)
	}
	return nil
}

// GenerateExampleConfig returns a commented nblaunch.yaml.
func GenerateExampleConfig() string {
	return heredoc.Doc(`
		# nblaunch configuration
		# Searched in $NBLAUNCH_DATA_DIR, the current directory and /etc/nblaunch/.

		launch:
		  # directory: ~/notebooks/research
		  port: 8080
		  interface: localhost
		  port_tries: 50
		  secure: false
		  automatic_login: true
		  backend: reactor        # reactor or threaded
		  idle_timeout: 0s        # stop idle worksheets after this long (0 = never)
		  # server_pool: [sage@worker1]
		  # ulimit: "-v 500000 -u 100"

		tls:
		  toolchain: auto         # auto, openssl, certtool or native
		  # domain: notebook.example.com

		store:
		  encrypt: false          # requires: nblaunch setup --encrypt-store
		  bcrypt_cost: 10

		server:
		  reap_schedule: "@every 1m"
		  shutdown_timeout: 10s

		logging:
		  level: info             # debug, info, warn, error
		  format: text            # text or json
		  # file: /var/log/nblaunch.log
	`)
}
