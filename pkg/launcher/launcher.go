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

// Package launcher provisions and starts a notebook server: it opens and configures the
// notebook store, picks a port, reuses a server already running on the same directory,
// sets up TLS certificates, renders the backend configuration and spawns the server.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"go.uber.org/zap"

	"github.com/teradata-labs/nblaunch/internal/fsext"
	"github.com/teradata-labs/nblaunch/internal/home"
	"github.com/teradata-labs/nblaunch/internal/uiutil"
	"github.com/teradata-labs/nblaunch/pkg/admin"
	"github.com/teradata-labs/nblaunch/pkg/backend"
	"github.com/teradata-labs/nblaunch/pkg/config"
	"github.com/teradata-labs/nblaunch/pkg/instance"
	"github.com/teradata-labs/nblaunch/pkg/notebook"
	"github.com/teradata-labs/nblaunch/pkg/ports"
	"github.com/teradata-labs/nblaunch/pkg/tls"
)

// Config holds the launcher's collaborators. Zero values select the real system.
type Config struct {
	// DataRoot locates the default notebook and the certificate directory
	// (default: config.DataRoot()).
	DataRoot string

	// Executable is the binary spawned as `<Executable> serve` (default: os.Executable()).
	Executable string

	// Toolchain and TLSDomain configure certificate provisioning.
	Toolchain string
	TLSDomain string

	// StoreKey encrypts the notebook store (cgo builds only).
	StoreKey   string
	BcryptCost int

	Prompter     admin.Prompter
	DomainPrompt tls.DomainPrompt

	OpenBrowser     func(url string) error
	CopyToClipboard func(text string) error
	Start           StartFunc

	// Finder probes ports (default: ports.NewFinder(Logger)).
	Finder *ports.Finder

	// GOOS, LookPath and RunTool are passed to the certificate provisioner.
	GOOS     string
	LookPath tls.LookPath
	RunTool  tls.Runner

	// Out receives operator messages (default: os.Stdout).
	Out    io.Writer
	Logger *zap.Logger
}

// Result reports how a launch ended.
type Result struct {
	// State is the last state reached: StateReusing, StateRunning (fork) or StateSaved.
	State State

	// Trace lists every state entered, in order.
	Trace []State

	Directory  string
	ConfigPath string
	URL        string
	Reused     bool

	// Child is set for forked launches.
	Child *Child
}

// Launcher runs launches.
type Launcher struct {
	config Config
	logger *zap.Logger
}

// New fills defaults and returns a Launcher.
func New(cfg Config) (*Launcher, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	if cfg.DataRoot == "" {
		cfg.DataRoot = config.DataRoot()
	}
	if cfg.Executable == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("failed to locate nblaunch executable: %w", err)
		}
		cfg.Executable = exe
	}
	if cfg.Prompter == nil {
		cfg.Prompter = admin.NewTerminalPrompter()
	}
	if cfg.OpenBrowser == nil {
		cfg.OpenBrowser = uiutil.OpenURL
	}
	if cfg.CopyToClipboard == nil {
		cfg.CopyToClipboard = uiutil.CopyToClipboard
	}
	if cfg.Start == nil {
		cfg.Start = execStart
	}
	if cfg.Finder == nil {
		cfg.Finder = ports.NewFinder(cfg.Logger)
	}
	if cfg.GOOS == "" {
		cfg.GOOS = runtime.GOOS
	}
	return &Launcher{config: cfg, logger: cfg.Logger}, nil
}

// ConfDir is where the certificate bundle lives.
func (l *Launcher) ConfDir() string {
	return filepath.Join(l.config.DataRoot, "notebook")
}

// Provisioner returns the certificate provisioner used for secure launches.
func (l *Launcher) Provisioner() (*tls.Provisioner, error) {
	return tls.NewProvisioner(tls.ProvisionerConfig{
		Bundle:    tls.NewBundle(l.ConfDir()),
		Toolchain: l.config.Toolchain,
		Domain:    l.config.TLSDomain,
		Prompt:    l.config.DomainPrompt,
		Out:       l.config.Out,
		Logger:    l.logger,
		GOOS:      l.config.GOOS,
		LookPath:  l.config.LookPath,
		Run:       l.config.RunTool,
	})
}

// Setup provisions the certificate bundle on its own.
func (l *Launcher) Setup(ctx context.Context) error {
	p, err := l.Provisioner()
	if err != nil {
		return err
	}
	return l.provisionErr(p.EnsureBundle(ctx))
}

type launch struct {
	*Launcher
	req    Request
	kind   backend.Backend
	result *Result
}

func (l *launch) enter(s State) {
	l.result.State = s
	l.result.Trace = append(l.result.Trace, s)
	l.logger.Info("Launch state", zap.Stringer("state", s))
}

func (l *launch) printf(format string, args ...any) {
	if !l.req.Quiet {
		fmt.Fprintf(l.config.Out, format, args...)
	}
}

// Launch runs req to completion. Without Fork it returns after the server exits.
// Finding a server already running on the directory is not an error.
func (l *Launcher) Launch(ctx context.Context, req Request) (*Result, error) {
	kind, err := req.Validate()
	if err != nil {
		return nil, err
	}
	run := &launch{Launcher: l, req: req, kind: kind, result: &Result{}}
	return run.run(ctx)
}

func (l *launch) run(ctx context.Context) (*Result, error) {
	req := l.req

	if !req.Secure && req.Interface != "localhost" {
		fmt.Fprintln(l.config.Out, uiutil.WarningBox(
			"WARNING: Insecure notebook server listening on an external interface.",
			"Unless you are running this through ssh port forwarding,",
			"run the notebook with --secure."))
	}

	l.enter(StateLoading)
	dir, err := l.resolveDirectory()
	if err != nil {
		return nil, err
	}
	l.result.Directory = dir

	nb, err := notebook.Load(ctx, dir, notebook.Config{
		Key:        l.config.StoreKey,
		BcryptCost: l.config.BcryptCost,
		Logger:     l.logger,
	})
	if err != nil {
		return nil, errStore(dir, err)
	}
	defer nb.Close()
	l.printf("The notebook files are stored in: %s\n", home.Short(nb.Directory()))

	l.enter(StateConfiguring)
	if err := l.configure(ctx, nb); err != nil {
		return nil, err
	}

	l.enter(StatePortResolving)
	port, err := l.config.Finder.FindAvailable(req.Interface, req.Port, req.PortTries)
	if err != nil {
		return nil, errPortExhausted(req.Interface, req.Port, req.PortTries, err)
	}

	l.enter(StateDuplicateChecking)
	if status := instance.Detect(dir, l.logger); status.Running {
		l.enter(StateReusing)
		if err := release(ctx, nb); err != nil {
			return nil, errStore(dir, err)
		}
		l.reuse(status)
		return l.result, nil
	}

	var bundle *tls.Bundle
	if req.Secure {
		bundle = tls.NewBundle(l.ConfDir())
		if !bundle.Exists() {
			l.enter(StateProvisioning)
			fmt.Fprintln(l.config.Out, "A secure notebook needs a certificate; running setup now.")
			if err := l.Setup(ctx); err != nil {
				return nil, err
			}
		}
	}

	l.enter(StateConfigSynthesizing)
	cfg, err := backend.Render(backend.Params{
		Backend:        l.kind,
		Directory:      dir,
		Interface:      req.Interface,
		Port:           port,
		Secure:         req.Secure,
		AutomaticLogin: req.AutomaticLogin,
		StartPath:      req.StartPath,
		Profile:        req.Profile,
		ProfilePrefix:  req.ProfilePrefix,
	}, bundle)
	if err != nil {
		return nil, NewError(ErrorCodeInvalidConfiguration, ErrConfiguration, "failed to render server configuration").
			WithCause(err)
	}
	if err := cfg.Write(cfg.Path()); err != nil {
		return nil, NewError(ErrorCodeInvalidConfiguration, ErrConfiguration, "failed to write server configuration").
			WithContext("path", cfg.Path()).
			WithCause(err)
	}
	l.result.ConfigPath = cfg.Path()
	l.result.URL = cfg.URL()
	if err := release(ctx, nb); err != nil {
		return nil, errStore(dir, err)
	}

	l.announce(cfg)

	l.enter(StateSpawning)
	argv := cfg.Command(l.config.Executable)
	fmt.Fprintln(l.config.Out, "Executing", commandString(argv))
	proc, err := l.config.Start(argv, cfg.WorkDir)
	if err != nil {
		return nil, NewError(ErrorCodeSpawnFailed, ErrSpawnFailure, "failed to start notebook server").
			WithContext("command", commandString(argv)).
			WithCause(err)
	}

	l.enter(StateRunning)
	if req.Fork {
		l.result.Child = &Child{Process: proc, dir: dir}
		return l.result, nil
	}

	if err := waitForwarding(ctx, proc, l.logger); err != nil {
		return l.result, err
	}
	l.enter(StateSaved)
	return l.result, nil
}

func (l *launch) resolveDirectory() (string, error) {
	dir := l.req.Directory
	if dir == "" {
		dir = filepath.Join(l.config.DataRoot, config.DefaultNotebookName)
	}
	dir = filepath.Clean(config.ExpandPath(dir))
	if fsext.Exists(dir) && !fsext.IsDir(dir) {
		return "", NewError(ErrorCodeInvalidConfiguration, ErrConfiguration, "notebook directory is not a directory").
			WithContext("directory", dir)
	}
	return dir, nil
}

func (l *launch) configure(ctx context.Context, nb *notebook.Notebook) error {
	req := l.req
	conf := nb.Conf()

	conf.SetIdleTimeout(req.IdleTimeout)
	if req.OpenID != nil {
		conf.SetOpenID(*req.OpenID)
	} else {
		conf.SetOpenID(conf.OpenID())
	}
	if req.Accounts != nil {
		nb.UserManager().SetAccounts(*req.Accounts)
	} else {
		nb.UserManager().SetAccounts(conf.Accounts())
	}

	bootstrap, err := admin.New(admin.Config{
		Users:    nb.UserManager(),
		Prompter: l.config.Prompter,
		Out:      l.config.Out,
		Secure:   req.Secure,
		Logger:   l.logger,
	})
	if err != nil {
		return err
	}
	if err := bootstrap.Ensure(ctx, req.Reset); err != nil {
		return NewError(ErrorCodeAdminSetupFailed, ErrConfiguration, "failed to set up the admin account").
			WithCause(err).
			WithSuggestion("Run the launch from an interactive terminal, or pass --reset to choose a new password")
	}

	if err := nb.SetServerPool(req.ServerPool); err != nil {
		return NewError(ErrorCodeInvalidConfiguration, ErrConfiguration, "invalid server pool").WithCause(err)
	}
	if err := nb.SetUlimit(req.Ulimit); err != nil {
		return NewError(ErrorCodeInvalidConfiguration, ErrConfiguration, "invalid ulimit").WithCause(err)
	}

	marker := filepath.Join(nb.Directory(), notebook.LegacyBackupFile)
	if fsext.Exists(marker) {
		n, err := nb.MigrateLegacyWorksheets(ctx)
		if err != nil {
			return errStore(nb.Directory(), err)
		}
		if err := fsext.RemoveIfExists(marker); err != nil {
			return errStore(nb.Directory(), err)
		}
		l.logger.Info("Legacy notebook migrated", zap.Int("worksheets", n))
		fmt.Fprintln(l.config.Out, "Updating to new format complete.")
	}

	if err := nb.UpgradeModel(ctx); err != nil {
		return errStore(nb.Directory(), err)
	}
	if err := nb.Save(ctx); err != nil {
		return errStore(nb.Directory(), err)
	}
	return nil
}

// reuse handles a server already running on the directory: open it in a browser when
// its settings are known and automatic login is on, otherwise explain what to do.
func (l *launch) reuse(status instance.Status) {
	l.result.Reused = true
	fmt.Fprintf(l.config.Out, "Another notebook server is running, PID %d.\n", status.PID)

	if l.req.AutomaticLogin && status.Settings != nil && status.Settings.Port > 0 {
		s := status.Settings
		url := backend.BaseURL(s.Interface, s.Port, s.Secure) + "/"
		l.result.URL = url
		fmt.Fprintf(l.config.Out, "Opening web browser at %s ...\n", url)
		if err := l.config.OpenBrowser(url); err != nil {
			l.logger.Warn("Failed to open web browser", zap.String("url", url), zap.Error(err))
		}
		return
	}
	fmt.Fprintln(l.config.Out, "\nPlease either stop the old server or run the new server in a different directory.")
}

func (l *launch) announce(cfg *backend.RenderedConfig) {
	url := cfg.URL()
	if !l.req.Quiet {
		fmt.Fprintln(l.config.Out, uiutil.NoticeBox(
			"Open your web browser to",
			url,
			"",
			"Press Ctrl-C to stop the notebook server."))
		if l.req.Secure {
			fmt.Fprintln(l.config.Out, "There is an admin account. If you do not remember the password,")
			fmt.Fprintln(l.config.Out, "quit the notebook and run: nblaunch launch --reset")
		}
	}
	if l.req.CopyURL {
		if err := l.config.CopyToClipboard(url); err != nil {
			l.logger.Warn("Failed to copy URL to clipboard", zap.Error(err))
		}
	}
}

func (l *Launcher) provisionErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, tls.ErrMissingToolchain):
		return errMissingToolchain(err)
	default:
		return errProvisioning(l.ConfDir(), err)
	}
}

// release saves and closes the store so the server process can open it.
func release(ctx context.Context, nb *notebook.Notebook) error {
	if err := nb.Save(ctx); err != nil {
		return err
	}
	return nb.Close()
}
