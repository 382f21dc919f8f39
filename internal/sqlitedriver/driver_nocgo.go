//go:build !cgo

package sqlitedriver

import (
	"database/sql"

	"modernc.org/sqlite"
)

func init() {
	sql.Register(DriverName, &sqlite.Driver{})
}

// Implementation names the driver this build opens notebook stores with.
const Implementation = "modernc.org/sqlite"

// EncryptionSupported is false: the pure Go driver cannot open SQLCipher stores.
const EncryptionSupported = false
