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

package sqlitedriver

import (
	"database/sql"
	"fmt"
)

// DriverName is the database/sql name both driver builds register under.
const DriverName = "sqlite3"

// Options controls how a database file is opened.
type Options struct {
	// Key is the SQLCipher passphrase. Ignored when empty.
	Key string
	// BusyTimeoutMs makes writers wait on lock contention instead of failing.
	BusyTimeoutMs int
}

// Open opens a SQLite database restricted to a single connection, so per-connection
// PRAGMAs stay in effect for the lifetime of the handle.
func Open(path string, opts Options) (*sql.DB, error) {
	if opts.Key != "" && !EncryptionSupported {
		return nil, fmt.Errorf("database encryption requested but this build has no SQLCipher support (rebuild with CGO_ENABLED=1)")
	}

	db, err := sql.Open(DriverName, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s with %s: %w", path, Implementation, err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{}
	if opts.Key != "" {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA key = '%s'", escapeLiteral(opts.Key)))
	}
	if opts.BusyTimeoutMs > 0 {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA busy_timeout = %d", opts.BusyTimeoutMs))
	}
	pragmas = append(pragmas, "PRAGMA foreign_keys = ON")

	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to configure database %s: %w", path, err)
		}
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database %s: %w", path, err)
	}
	return db, nil
}

func escapeLiteral(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\'' {
			out = append(out, '\'')
		}
		out = append(out, s[i])
	}
	return string(out)
}
