//go:build sqlite_vec
// +build sqlite_vec

package store

// This file is compiled when building with CGO and the sqlite_vec tag.
//
// Build command:
//   CGO_ENABLED=1 go build -tags "sqlite_vec" ./...
//
// Driver used: github.com/mattn/go-sqlite3, linked against the system SQLite
// via cgo. No sqlite-vec extension binding exists in the example pack this
// module was built from, so vector similarity is still computed in Go on
// both build variants (see vector_ops.go); this tag only changes which
// driver backs database/sql, trading a cgo dependency for typically faster
// query execution on the hot BM25/scan paths.

import (
	_ "github.com/mattn/go-sqlite3"
)

const (
	// DriverName is the SQLite driver to use.
	DriverName = "sqlite3"

	// BuildMode describes the current build configuration.
	BuildMode = "cgo"
)
