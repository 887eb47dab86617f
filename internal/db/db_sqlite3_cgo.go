//go:build cgo && sqlite3_cgo

package db

// Opt into this driver with -tags sqlite3_cgo when cgo is available; it's
// the faster option for the journal but requires a C toolchain at build
// time, which the default build (db_sqlite3_default.go) avoids.
import (
	_ "github.com/mattn/go-sqlite3"
)

const driverID = "mattn/go-sqlite3"
const driverName = "sqlite3"
