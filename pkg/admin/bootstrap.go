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

// Package admin makes sure a notebook has an administrator account with a known password.
package admin

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/MakeNowJust/heredoc"
	"go.uber.org/zap"
)

// DefaultMinPasswordLength is the shortest accepted admin password.
const DefaultMinPasswordLength = 6

const (
	adminUser  = "admin"
	legacyRoot = "root"
)

var (
	// ErrCredentialMismatch means the two password entries differed. The prompt loop
	// recovers from it by asking again.
	ErrCredentialMismatch = errors.New("passwords do not match")

	// ErrPasswordTooShort is returned for passwords under the minimum length.
	ErrPasswordTooShort = errors.New("password too short")
)

// UserStore is the slice of the notebook account store the bootstrap needs.
type UserStore interface {
	UserExists(ctx context.Context, username string) (bool, error)
	CreateUserWithSamePassword(ctx context.Context, username, existing string) error
	CreateDefaultUsers(ctx context.Context, password string) error
	SetPassword(ctx context.Context, username, password string) error
}

// Prompter reads a secret without echoing it.
type Prompter interface {
	ReadPassword(prompt string) (string, error)
}

// Config configures a Bootstrap.
type Config struct {
	Users    UserStore
	Prompter Prompter

	// Out receives operator guidance (default: io.Discard).
	Out io.Writer

	// Secure adds a login reminder after a new admin is created.
	Secure bool

	// MinPasswordLength defaults to DefaultMinPasswordLength.
	MinPasswordLength int

	Logger *zap.Logger
}

// Bootstrap ensures the admin account exists.
type Bootstrap struct {
	config Config
	logger *zap.Logger
}

// New validates config and returns a Bootstrap.
func New(config Config) (*Bootstrap, error) {
	if config.Users == nil {
		return nil, fmt.Errorf("user store is required")
	}
	if config.Prompter == nil {
		return nil, fmt.Errorf("password prompter is required")
	}
	if config.Out == nil {
		config.Out = io.Discard
	}
	if config.MinPasswordLength <= 0 {
		config.MinPasswordLength = DefaultMinPasswordLength
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	return &Bootstrap{config: config, logger: config.Logger}, nil
}

// Ensure creates admin from a legacy root account when possible, and prompts for a
// new admin password when reset is set or no admin exists. Prompt errors abort.
func (b *Bootstrap) Ensure(ctx context.Context, reset bool) error {
	users := b.config.Users

	hasRoot, err := users.UserExists(ctx, legacyRoot)
	if err != nil {
		return err
	}
	hasAdmin, err := users.UserExists(ctx, adminUser)
	if err != nil {
		return err
	}

	if hasRoot && !hasAdmin {
		if err := users.CreateUserWithSamePassword(ctx, adminUser, legacyRoot); err != nil {
			return fmt.Errorf("failed to create admin from root: %w", err)
		}
		b.logger.Info("Created admin account from legacy root account")
		hasAdmin = true
	}

	if !hasAdmin {
		reset = true
	}
	if !reset {
		return nil
	}

	passwd, err := b.readNewPassword()
	if err != nil {
		return err
	}

	if hasAdmin {
		if err := users.SetPassword(ctx, adminUser, passwd); err != nil {
			return fmt.Errorf("failed to set admin password: %w", err)
		}
		fmt.Fprintln(b.config.Out, "Password changed for user 'admin'.")
		b.logger.Info("Admin password reset")
		return nil
	}

	if err := users.CreateDefaultUsers(ctx, passwd); err != nil {
		return fmt.Errorf("failed to create default users: %w", err)
	}
	fmt.Fprintln(b.config.Out, "User admin created with the password you specified.")
	if b.config.Secure {
		fmt.Fprintln(b.config.Out, "Login to the notebook as admin with the password you specified above.")
	}
	b.logger.Info("Admin account created")
	return nil
}

var guidance = heredoc.Doc(`

	Please choose a new password for the notebook 'admin' user.
	Do not choose a weak password: anybody who can guess it and reach
	this machine can read or delete your files.
	Only a hash of the password is stored.
	You can change it later with: nblaunch launch --reset

`)

func (b *Bootstrap) readNewPassword() (string, error) {
	fmt.Fprint(b.config.Out, guidance)
	for {
		passwd, err := b.readPair()
		switch {
		case err == nil:
			fmt.Fprintln(b.config.Out, "Please login to the notebook with the username 'admin' and the above password.")
			return passwd, nil
		case errors.Is(err, ErrPasswordTooShort):
			fmt.Fprintf(b.config.Out, "That password is too short. Enter a password with at least %d characters.\n",
				b.config.MinPasswordLength)
		case errors.Is(err, ErrCredentialMismatch):
			fmt.Fprintln(b.config.Out, "Sorry, passwords do not match.")
		default:
			return "", err
		}
	}
}

// readPair reads one password and its confirmation.
func (b *Bootstrap) readPair() (string, error) {
	passwd, err := b.config.Prompter.ReadPassword("Enter new password: ")
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	if len([]rune(passwd)) < b.config.MinPasswordLength {
		return "", ErrPasswordTooShort
	}
	confirm, err := b.config.Prompter.ReadPassword("Retype new password: ")
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	if passwd != confirm {
		return "", ErrCredentialMismatch
	}
	return passwd, nil
}
