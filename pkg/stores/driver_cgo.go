//go:build cgo_sqlite

package stores

import (
	"fmt"
	"time"

	// SQLite driver
	_ "github.com/mattn/go-sqlite3"
)

// DriverName is the database/sql driver the engine opens.
const DriverName = "sqlite3"

func dataSourceName(path string, busyTimeout time.Duration) string {
	return fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=%d&_txlock=immediate",
		path, busyTimeout.Milliseconds())
}
