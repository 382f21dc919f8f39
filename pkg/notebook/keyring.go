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
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/zalando/go-keyring"
)

// KeyringService is the system keyring service holding store encryption keys.
const KeyringService = "nblaunch"

// StoreKey returns the encryption key for the notebook in dir from the system keyring,
// generating and saving a new one when create is set and none exists.
func StoreKey(dir string, create bool) (string, error) {
	account, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve notebook directory: %w", err)
	}

	key, err := keyring.Get(KeyringService, account)
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, keyring.ErrNotFound) {
		return "", fmt.Errorf("failed to read store key from keyring: %w", err)
	}
	if !create {
		return "", fmt.Errorf("no store key in keyring for %s (run: nblaunch setup --encrypt-store)", account)
	}

	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate store key: %w", err)
	}
	key = hex.EncodeToString(b)
	if err := keyring.Set(KeyringService, account, key); err != nil {
		return "", fmt.Errorf("failed to save store key to keyring: %w", err)
	}
	return key, nil
}
