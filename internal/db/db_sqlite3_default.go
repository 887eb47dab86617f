//go:build !sqlite3_cgo

package db

// Pure-Go wazero-backed driver, the default so `go build` needs no cgo to
// produce a working `propagator run` binary, including cross-compiles.
import (
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

const driverID = "ncruces/go-sqlite3"
const driverName = "sqlite3"
