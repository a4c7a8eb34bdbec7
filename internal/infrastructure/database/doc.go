// Package database manages the SQLite connection and schema migrations
// for the locally persisted device catalog.
//
// SQLite is configured with WAL mode and a busy timeout suitable for a
// single long-running process. Migrations are embedded into the binary
// by the top-level migrations package and applied on startup.
package database
