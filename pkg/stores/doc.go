// Package stores provides the SQLite storage engine of the persistence layer.
// It opens a single database file in WAL mode, creates one table per
// registered record type on first run, and performs whole-table delete,
// transactional batch insert, and lazy query-all of records with nullable
// binary columns.
//
// The default driver is the pure-Go modernc.org/sqlite; building with the
// cgo_sqlite tag switches to github.com/mattn/go-sqlite3.
package stores
