//go:build !cgo_sqlite

package stores

import (
	"fmt"
	"time"

	// SQLite driver
	_ "modernc.org/sqlite"
)

// DriverName is the database/sql driver the engine opens.
const DriverName = "sqlite"

func dataSourceName(path string, busyTimeout time.Duration) string {
	return fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_txlock=immediate",
		path, busyTimeout.Milliseconds())
}
