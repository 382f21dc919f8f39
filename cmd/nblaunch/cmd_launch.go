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
	"io"
	"time"

	"github.com/MakeNowJust/heredoc"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/teradata-labs/nblaunch/internal/log"
	"github.com/teradata-labs/nblaunch/pkg/admin"
	nbconfig "github.com/teradata-labs/nblaunch/pkg/config"
	"github.com/teradata-labs/nblaunch/pkg/launcher"
	"github.com/teradata-labs/nblaunch/pkg/notebook"
)

// forkReadyTimeout bounds how long a forked launch waits for the server's pid file.
const forkReadyTimeout = 30 * time.Second

var launchCmd = &cobra.Command{
	Use:   "launch",
	Short: "Start a notebook server for a directory",
	Long: heredoc.Doc(`
		Start a notebook server for a notebook directory.

		If a server is already running on the directory, nblaunch opens it in the
		browser (with --automatic-login) instead of starting another one.
		Secure servers get a self-signed certificate on first use.
	`),
	Example: heredoc.Doc(`
		nblaunch launch
		nblaunch launch --directory ~/notebooks/research --port 9000
		nblaunch launch --secure --interface 0.0.0.0 --automatic-login=false
		nblaunch launch --reset
	`),
	Args: cobra.NoArgs,
	RunE: runLaunch,
}

func init() {
	f := launchCmd.Flags()
	addLaunchFlags(f)

	_ = viper.BindPFlag("launch.directory", f.Lookup("directory"))
	_ = viper.BindPFlag("launch.port", f.Lookup("port"))
	_ = viper.BindPFlag("launch.interface", f.Lookup("interface"))
	_ = viper.BindPFlag("launch.port_tries", f.Lookup("port-tries"))
	_ = viper.BindPFlag("launch.secure", f.Lookup("secure"))
	_ = viper.BindPFlag("launch.automatic_login", f.Lookup("automatic-login"))
	_ = viper.BindPFlag("launch.backend", f.Lookup("backend"))
	_ = viper.BindPFlag("launch.idle_timeout", f.Lookup("idle-timeout"))
	_ = viper.BindPFlag("launch.start_path", f.Lookup("start-path"))
	_ = viper.BindPFlag("launch.ulimit", f.Lookup("ulimit"))
	_ = viper.BindPFlag("launch.server_pool", f.Lookup("server-pool"))
	_ = viper.BindPFlag("launch.profile_prefix", f.Lookup("profile-prefix"))

	rootCmd.AddCommand(launchCmd)
}

// addLaunchFlags registers the launch flags on f.
func addLaunchFlags(f *pflag.FlagSet) {
	f.String("directory", "", "notebook directory (default: $NBLAUNCH_DATA_DIR/default_notebook)")
	f.Int("port", launcher.DefaultPort, "port to serve on; the next free port is used when taken")
	f.String("interface", launcher.DefaultInterface, "interface to listen on (empty for all interfaces)")
	f.Int("port-tries", launcher.DefaultPortTries, "number of ports to probe starting at --port")
	f.Bool("secure", false, "serve over https with a self-signed certificate")
	f.Bool("automatic-login", true, "log in as admin automatically and open a browser")
	f.String("backend", launcher.DefaultBackend, "server backend (reactor or threaded)")
	f.Duration("idle-timeout", 0, "stop worksheets idle for this long (0 = never)")
	f.String("start-path", "", "path to open when automatic login is off")
	f.String("ulimit", "", "resource limits for worksheet processes, e.g. \"-v 500000 -u 100\"")
	f.StringSlice("server-pool", nil, "user@host specs to run worksheet processes on")
	f.String("profile-prefix", "", "CPU profile file prefix (default: nblaunch-<backend>-profile-)")

	f.Bool("reset", false, "choose a new admin password")
	f.Bool("accounts", false, "allow users to create accounts")
	f.Bool("openid", false, "allow OpenID logins")
	f.Bool("fork", false, "return once the server has started")
	f.BoolP("quiet", "q", false, "print less")
	f.Bool("copy-url", false, "copy the notebook URL to the clipboard")
	f.Bool("profile", false, "record a CPU profile of the server")

	f.String("subnets", "", "no longer supported")
	f.Bool("require-login", false, "no longer supported; use --automatic-login")
	f.Bool("open-viewer", false, "no longer supported; use --automatic-login")
	f.String("address", "", "no longer supported; use --interface")
	for _, name := range []string{"subnets", "require-login", "open-viewer", "address"} {
		_ = f.MarkHidden(name)
	}
}

// buildRequest merges the launch config with the per-invocation flags of cmd.
func buildRequest(cmd *cobra.Command, cfg *Config) (launcher.Request, error) {
	f := cmd.Flags()
	lc := cfg.Launch

	req := launcher.Request{
		Directory:      lc.Directory,
		Port:           lc.Port,
		Interface:      lc.Interface,
		PortTries:      lc.PortTries,
		Secure:         lc.Secure,
		AutomaticLogin: lc.AutomaticLogin,
		Backend:        lc.Backend,
		IdleTimeout:    lc.IdleTimeout,
		StartPath:      lc.StartPath,
		Ulimit:         lc.Ulimit,
		ServerPool:     lc.ServerPool,
		ProfilePrefix:  lc.ProfilePrefix,
	}

	var err error
	if req.Reset, err = f.GetBool("reset"); err != nil {
		return req, err
	}
	if req.Fork, err = f.GetBool("fork"); err != nil {
		return req, err
	}
	if req.Quiet, err = f.GetBool("quiet"); err != nil {
		return req, err
	}
	if req.CopyURL, err = f.GetBool("copy-url"); err != nil {
		return req, err
	}
	if req.Profile, err = f.GetBool("profile"); err != nil {
		return req, err
	}

	if f.Changed("accounts") {
		v, _ := f.GetBool("accounts")
		req.Accounts = &v
	}
	if f.Changed("openid") {
		v, _ := f.GetBool("openid")
		req.OpenID = &v
	}

	if f.Changed("subnets") {
		v, _ := f.GetString("subnets")
		req.Subnets = []string{v}
	}
	if f.Changed("require-login") {
		v, _ := f.GetBool("require-login")
		req.RequireLogin = &v
	}
	if f.Changed("open-viewer") {
		v, _ := f.GetBool("open-viewer")
		req.OpenViewer = &v
	}
	if f.Changed("address") {
		req.Address, _ = f.GetString("address")
	}
	return req, nil
}

// newLauncher builds a Launcher from the loaded configuration.
func newLauncher(cfg *Config, out io.Writer, storeKey string) (*launcher.Launcher, error) {
	prompter := admin.NewTerminalPrompter()
	return launcher.New(launcher.Config{
		DataRoot:   cfg.DataDir,
		Toolchain:  cfg.TLS.Toolchain,
		TLSDomain:  cfg.TLS.Domain,
		StoreKey:   storeKey,
		BcryptCost: cfg.Store.BcryptCost,
		Prompter:   prompter,
		DomainPrompt: func() (string, error) {
			return prompter.ReadLine("Domain name for the certificate [localhost]: ")
		},
		Out:    out,
		Logger: log.Logger(),
	})
}

// storeKey returns the keyring key for dir when store encryption is on.
func storeKey(cfg *Config, dir string) (string, error) {
	if !cfg.Store.Encrypt {
		return "", nil
	}
	if dir == "" {
		dir = nbconfig.DefaultNotebookDir()
	}
	return notebook.StoreKey(nbconfig.ExpandPath(dir), false)
}

func runLaunch(cmd *cobra.Command, args []string) error {
	req, err := buildRequest(cmd, config)
	if err != nil {
		return err
	}
	// Reject deprecated parameters before touching the keyring.
	if _, err := req.Validate(); err != nil {
		return err
	}

	key, err := storeKey(config, req.Directory)
	if err != nil {
		return err
	}
	l, err := newLauncher(config, cmd.OutOrStdout(), key)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	res, err := l.Launch(ctx, req)
	if err != nil {
		return err
	}

	if res.Child != nil {
		readyCtx, cancel := context.WithTimeout(ctx, forkReadyTimeout)
		defer cancel()
		pid, err := res.Child.WaitReady(readyCtx)
		if err != nil {
			log.Logger().Warn("Notebook server has not written its pid file yet",
				zap.Int("pid", res.Child.Pid()), zap.Error(err))
			pid = res.Child.Pid()
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Notebook server started with PID %d\n", pid)
	}
	return nil
}
