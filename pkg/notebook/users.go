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
package notebook

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// ErrUserNotFound is returned for operations on a username that does not exist.
var ErrUserNotFound = errors.New("user not found")

// ErrUserExists is returned when creating a username that is already taken.
var ErrUserExists = errors.New("user already exists")

// Account types.
const (
	AccountAdmin = "admin"
	AccountUser  = "user"
	AccountGuest = "guest"
)

// Built-in account names.
const (
	AdminUser = "admin"
	GuestUser = "guest"
	PubUser   = "pub"
)

// User is a stored notebook account. Only the bcrypt hash of the password is kept.
type User struct {
	Username     string
	PasswordHash string
	Email        string
	AccountType  string
	Disabled     bool
	CreatedAt    time.Time
}

// UserManager reads and writes notebook accounts.
type UserManager struct {
	db         *sql.DB
	conf       *Conf
	bcryptCost int
	logger     *zap.Logger
}

// SetAccounts enables or disables self-service account creation.
func (m *UserManager) SetAccounts(enabled bool) {
	m.conf.SetAccounts(enabled)
}

// UserExists reports whether username is present.
func (m *UserManager) UserExists(ctx context.Context, username string) (bool, error) {
	var n int
	if err := m.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM users WHERE username = ?", username,
	).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to look up user %s: %w", username, err)
	}
	return n > 0, nil
}

// User loads one account.
func (m *UserManager) User(ctx context.Context, username string) (*User, error) {
	var u User
	var disabled int
	var created int64
	err := m.db.QueryRowContext(ctx,
		"SELECT username, password_hash, email, account_type, disabled, created_at FROM users WHERE username = ?",
		username,
	).Scan(&u.Username, &u.PasswordHash, &u.Email, &u.AccountType, &disabled, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, username)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user %s: %w", username, err)
	}
	u.Disabled = disabled != 0
	u.CreatedAt = time.Unix(created, 0)
	return &u, nil
}

// Usernames lists all accounts in name order.
func (m *UserManager) Usernames(ctx context.Context) ([]string, error) {
	rows, err := m.db.QueryContext(ctx, "SELECT username FROM users ORDER BY username")
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// CreateUser adds an account with the given password. An empty password leaves the
// account without a usable login.
func (m *UserManager) CreateUser(ctx context.Context, username, password, email, accountType string) error {
	hash := ""
	if password != "" {
		var err error
		if hash, err = m.hash(password); err != nil {
			return err
		}
	}
	return m.insert(ctx, username, hash, email, accountType, false)
}

// CreateUserWithSamePassword creates username with the password hash of existing.
func (m *UserManager) CreateUserWithSamePassword(ctx context.Context, username, existing string) error {
	src, err := m.User(ctx, existing)
	if err != nil {
		return err
	}
	if err := m.insert(ctx, username, src.PasswordHash, src.Email, AccountAdmin, false); err != nil {
		return err
	}
	m.logger.Info("Created user from existing credentials",
		zap.String("user", username), zap.String("from", existing))
	return nil
}

// CreateDefaultUsers creates the admin account with password plus the disabled guest
// and pub accounts. Accounts that already exist are left alone.
func (m *UserManager) CreateDefaultUsers(ctx context.Context, password string) error {
	hash, err := m.hash(password)
	if err != nil {
		return err
	}
	defaults := []struct {
		name, hash, accountType string
		disabled                bool
	}{
		{AdminUser, hash, AccountAdmin, false},
		{GuestUser, "", AccountGuest, true},
		{PubUser, "", AccountUser, true},
	}
	for _, d := range defaults {
		err := m.insert(ctx, d.name, d.hash, "", d.accountType, d.disabled)
		if err != nil && !errors.Is(err, ErrUserExists) {
			return err
		}
	}
	m.logger.Info("Created default users")
	return nil
}

// SetPassword replaces the stored hash for username.
func (m *UserManager) SetPassword(ctx context.Context, username, password string) error {
	hash, err := m.hash(password)
	if err != nil {
		return err
	}
	res, err := m.db.ExecContext(ctx, "UPDATE users SET password_hash = ? WHERE username = ?", hash, username)
	if err != nil {
		return fmt.Errorf("failed to set password for %s: %w", username, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrUserNotFound, username)
	}
	return nil
}

// CheckPassword reports whether password matches the stored hash.
func (m *UserManager) CheckPassword(ctx context.Context, username, password string) (bool, error) {
	u, err := m.User(ctx, username)
	if err != nil {
		return false, err
	}
	if u.Disabled || u.PasswordHash == "" {
		return false, nil
	}
	err = bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	return err == nil, err
}

func (m *UserManager) hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), m.bcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

func (m *UserManager) insert(ctx context.Context, username, hash, email, accountType string, disabled bool) error {
	if username == "" {
		return fmt.Errorf("username is required")
	}
	exists, err := m.UserExists(ctx, username)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrUserExists, username)
	}
	d := 0
	if disabled {
		d = 1
	}
	if _, err := m.db.ExecContext(ctx,
		"INSERT INTO users (username, password_hash, email, account_type, disabled) VALUES (?, ?, ?, ?, ?)",
		username, hash, email, accountType, d,
	); err != nil {
		return fmt.Errorf("failed to create user %s: %w", username, err)
	}
	return nil
}
