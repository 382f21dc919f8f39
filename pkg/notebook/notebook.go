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

// Package notebook is the SQLite-backed notebook store the launcher configures before
// spawning a server, and the server owns while it runs.
package notebook

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/teradata-labs/nblaunch/internal/sqlitedriver"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	// DBFile is the store's file name inside the notebook directory.
	DBFile = "notebook.db"

	// LegacyBackupFile marks a directory whose worksheets still need importing.
	LegacyBackupFile = "nb-older-backup.sobj"

	// LegacyWorksheetsDir holds worksheets in the pre-database layout:
	// worksheets/<owner>/<n>/worksheet.txt, whose first line is the title.
	LegacyWorksheetsDir = "worksheets"

	// CurrentModelVersion is the data model UpgradeModel brings a store to.
	CurrentModelVersion = 2
)

// Config configures Load.
type Config struct {
	// Key is the SQLCipher passphrase (cgo builds only).
	Key string

	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int

	Logger *zap.Logger
}

// Notebook is an open notebook store.
type Notebook struct {
	dir    string
	db     *sql.DB
	conf   *Conf
	users  *UserManager
	logger *zap.Logger
}

// Load opens or creates the notebook in dir and brings its schema up to date.
func Load(ctx context.Context, dir string, config Config) (*Notebook, error) {
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	if config.BcryptCost == 0 {
		config.BcryptCost = bcrypt.DefaultCost
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve notebook directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0700); err != nil {
		return nil, fmt.Errorf("failed to create notebook directory %s: %w", abs, err)
	}

	db, err := sqlitedriver.Open(filepath.Join(abs, DBFile), sqlitedriver.Options{
		Key:           config.Key,
		BusyTimeoutMs: 5000,
	})
	if err != nil {
		return nil, err
	}

	migrator, err := NewMigrator(db, config.Logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := migrator.MigrateUp(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate notebook schema: %w", err)
	}

	nb := &Notebook{dir: abs, db: db, conf: newConf(), logger: config.Logger}
	nb.users = &UserManager{db: db, conf: nb.conf, bcryptCost: config.BcryptCost, logger: config.Logger}

	if err := nb.loadConf(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	config.Logger.Debug("Notebook loaded", zap.String("dir", abs))
	return nb, nil
}

// Directory is the absolute notebook directory.
func (n *Notebook) Directory() string { return n.dir }

// Conf returns the mutable configuration. Changes are persisted by Save.
func (n *Notebook) Conf() *Conf { return n.conf }

// UserManager returns the account store.
func (n *Notebook) UserManager() *UserManager { return n.users }

// SetServerPool sets the user@host specs worksheet processes run on.
func (n *Notebook) SetServerPool(pool []string) error {
	clean := make([]string, 0, len(pool))
	for _, spec := range pool {
		spec = strings.TrimSpace(spec)
		if spec == "" {
			continue
		}
		user, host, ok := strings.Cut(spec, "@")
		if !ok || user == "" || host == "" {
			return fmt.Errorf("invalid server pool entry %q: want user@host", spec)
		}
		clean = append(clean, spec)
	}
	n.conf.Set(KeyServerPool, clean)
	return nil
}

// SetUlimit sets the resource limits for worksheet processes, e.g. "-v 500 -u 100".
func (n *Notebook) SetUlimit(ulimit string) error {
	fields := strings.Fields(ulimit)
	for i := 0; i < len(fields); i += 2 {
		flag := fields[i]
		if len(flag) != 2 || flag[0] != '-' || !unicode.IsLetter(rune(flag[1])) {
			return fmt.Errorf("invalid ulimit %q: %q is not a limit flag", ulimit, flag)
		}
		if i+1 >= len(fields) {
			return fmt.Errorf("invalid ulimit %q: %s has no value", ulimit, flag)
		}
		if v := fields[i+1]; v != "unlimited" {
			if _, err := strconv.ParseUint(v, 10, 64); err != nil {
				return fmt.Errorf("invalid ulimit %q: %s value %q", ulimit, flag, v)
			}
		}
	}
	n.conf.Set(KeyUlimit, strings.Join(fields, " "))
	return nil
}

// Save persists the configuration.
func (n *Notebook) Save(ctx context.Context) error {
	values, err := n.conf.encode()
	if err != nil {
		return fmt.Errorf("failed to encode notebook configuration: %w", err)
	}

	tx, err := n.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for key, value := range values {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO conf (key, value) VALUES (?, ?) ON CONFLICT (key) DO UPDATE SET value = excluded.value",
			key, value,
		); err != nil {
			return fmt.Errorf("failed to save configuration key %s: %w", key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit notebook configuration: %w", err)
	}
	n.logger.Debug("Notebook saved", zap.String("dir", n.dir))
	return nil
}

// Quit stops every running worksheet.
func (n *Notebook) Quit(ctx context.Context) error {
	res, err := n.db.ExecContext(ctx,
		"UPDATE worksheets SET running = 0, updated_at = strftime('%s', 'now') WHERE running != 0")
	if err != nil {
		return fmt.Errorf("failed to stop worksheets: %w", err)
	}
	stopped, _ := res.RowsAffected()
	n.logger.Info("Notebook quit", zap.Int64("worksheets_stopped", stopped))
	return nil
}

// UpgradeModel brings stored data to CurrentModelVersion. It is a no-op for an
// up-to-date notebook.
func (n *Notebook) UpgradeModel(ctx context.Context) error {
	from := n.conf.ModelVersion()
	if from >= CurrentModelVersion {
		return nil
	}

	steps := []struct {
		version int
		stmt    string
	}{
		{1, "UPDATE users SET account_type = 'admin' WHERE username = 'admin'"},
		{2, "UPDATE users SET disabled = 1 WHERE password_hash = '' AND account_type != 'admin'"},
	}
	for _, step := range steps {
		if step.version <= from {
			continue
		}
		if _, err := n.db.ExecContext(ctx, step.stmt); err != nil {
			return fmt.Errorf("failed to upgrade notebook model to version %d: %w", step.version, err)
		}
	}

	n.conf.Set(KeyModelVersion, CurrentModelVersion)
	n.logger.Info("Upgraded notebook model", zap.Int("from", from), zap.Int("to", CurrentModelVersion))
	return nil
}

// StopIdleWorksheets stops running worksheets untouched for longer than timeout.
// A zero timeout stops nothing.
func (n *Notebook) StopIdleWorksheets(ctx context.Context, timeout time.Duration) (int, error) {
	if timeout <= 0 {
		return 0, nil
	}
	cutoff := time.Now().Add(-timeout).Unix()
	res, err := n.db.ExecContext(ctx,
		"UPDATE worksheets SET running = 0 WHERE running != 0 AND updated_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to stop idle worksheets: %w", err)
	}
	stopped, _ := res.RowsAffected()
	if stopped > 0 {
		n.logger.Info("Stopped idle worksheets", zap.Int64("count", stopped), zap.Duration("idle_timeout", timeout))
	}
	return int(stopped), nil
}

// Worksheet is a stored worksheet row.
type Worksheet struct {
	ID      string
	Owner   string
	Name    string
	Running bool
}

// Worksheets lists worksheets ordered by owner and name.
func (n *Notebook) Worksheets(ctx context.Context) ([]Worksheet, error) {
	rows, err := n.db.QueryContext(ctx, "SELECT id, owner, name, running FROM worksheets ORDER BY owner, name")
	if err != nil {
		return nil, fmt.Errorf("failed to list worksheets: %w", err)
	}
	defer rows.Close()

	var out []Worksheet
	for rows.Next() {
		var w Worksheet
		var running int
		if err := rows.Scan(&w.ID, &w.Owner, &w.Name, &running); err != nil {
			return nil, fmt.Errorf("failed to scan worksheet: %w", err)
		}
		w.Running = running != 0
		out = append(out, w)
	}
	return out, rows.Err()
}

// MigrateLegacyWorksheets imports worksheets from the pre-database directory layout.
// Already imported worksheets are skipped, so repeated calls import nothing new.
func (n *Notebook) MigrateLegacyWorksheets(ctx context.Context) (int, error) {
	root := filepath.Join(n.dir, LegacyWorksheetsDir)
	owners, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read legacy worksheets: %w", err)
	}

	imported := 0
	for _, owner := range owners {
		if !owner.IsDir() {
			continue
		}
		sheets, err := os.ReadDir(filepath.Join(root, owner.Name()))
		if err != nil {
			return imported, fmt.Errorf("failed to read legacy worksheets of %s: %w", owner.Name(), err)
		}
		for _, sheet := range sheets {
			if !sheet.IsDir() {
				continue
			}
			rel := filepath.ToSlash(filepath.Join(owner.Name(), sheet.Name()))
			ok, err := n.importLegacy(ctx, owner.Name(), rel, filepath.Join(root, owner.Name(), sheet.Name()))
			if err != nil {
				return imported, err
			}
			if ok {
				imported++
			}
		}
	}

	n.logger.Info("Migrated legacy worksheets", zap.Int("imported", imported))
	return imported, nil
}

func (n *Notebook) importLegacy(ctx context.Context, owner, rel, path string) (bool, error) {
	name := legacyTitle(filepath.Join(path, "worksheet.txt"))
	if name == "" {
		name = "Untitled"
	}

	exists, err := n.users.UserExists(ctx, owner)
	if err != nil {
		return false, err
	}
	if !exists {
		if err := n.users.CreateUser(ctx, owner, "", "", AccountUser); err != nil {
			return false, err
		}
	}

	res, err := n.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO worksheets (id, owner, name, legacy_path) VALUES (?, ?, ?, ?)",
		uuid.NewString(), owner, name, rel)
	if err != nil {
		return false, fmt.Errorf("failed to import legacy worksheet %s: %w", rel, err)
	}
	added, _ := res.RowsAffected()
	return added > 0, nil
}

func legacyTitle(path string) string {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return ""
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	if sc.Scan() {
		return strings.TrimSpace(sc.Text())
	}
	return ""
}

// Close releases the database handle.
func (n *Notebook) Close() error {
	if n.db == nil {
		return nil
	}
	err := n.db.Close()
	n.db = nil
	return err
}

func (n *Notebook) loadConf(ctx context.Context) error {
	rows, err := n.db.QueryContext(ctx, "SELECT key, value FROM conf")
	if err != nil {
		return fmt.Errorf("failed to load notebook configuration: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return fmt.Errorf("failed to scan configuration: %w", err)
		}
		if err := n.conf.decode(key, value); err != nil {
			n.logger.Warn("Ignoring unreadable configuration value", zap.String("key", key), zap.Error(err))
		}
	}
	return rows.Err()
}
