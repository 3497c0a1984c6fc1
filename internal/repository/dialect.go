package repository

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// Dialect captures the few places where MySQL and SQLite disagree.
type Dialect string

const (
	MySQL  Dialect = "mysql"
	SQLite Dialect = "sqlite"
)

// ForUpdate returns the row locking suffix for SELECT statements run inside
// a transaction.  SQLite has no row locks; its connection pool is limited to
// one connection so transactions are serialised anyway.
func (d Dialect) ForUpdate() string {
	if d == MySQL {
		return " FOR UPDATE"
	}
	return ""
}

// InsertIgnore returns the INSERT variant that skips rows violating a
// unique key.
func (d Dialect) InsertIgnore() string {
	if d == MySQL {
		return "INSERT IGNORE"
	}
	return "INSERT OR IGNORE"
}

// IsDuplicate reports whether err is a unique key violation.
func (d Dialect) IsDuplicate(err error) bool {
	if err == nil {
		return false
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == 1062
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
