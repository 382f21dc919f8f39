// Package sqlitedriver registers a SQLite database/sql driver under the name
// "sqlite3" and opens notebook databases with the launcher's connection settings.
// When built with CGO (the default on macOS/Linux) it uses go-sqlcipher which
// provides SQLCipher encryption. When CGO is unavailable it falls back to the
// pure-Go modernc.org/sqlite driver, which works but cannot encrypt.
//
// Import this package for its side effects only, or call Open:
//
//	import _ "github.com/teradata-labs/nblaunch/internal/sqlitedriver"
package sqlitedriver
