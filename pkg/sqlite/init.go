package sqlite

import (
	"database/sql"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	"github.com/mattn/go-sqlite3"
)

func init() {
	// Register sqlite-vec as an auto extension so every connection opened
	// through the sqlite3_vec driver has vec0 virtual table support.
	sqlite_vec.Auto()

	sql.Register("sqlite3_vec", &sqlite3.SQLiteDriver{})
}
