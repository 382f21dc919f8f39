//go:build cgo

package sqlitedriver

import (
	_ "github.com/mutecomm/go-sqlcipher/v4" // registers "sqlite3" with PRAGMA key support
)

// Implementation names the driver this build opens notebook stores with.
const Implementation = "go-sqlcipher"

// EncryptionSupported is true: encrypted notebook stores can be opened.
const EncryptionSupported = true
