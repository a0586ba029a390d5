// Package repository defines the MySQL data access layer and the error
// values shared by every store.  These sentinel values let services and
// handlers tell failure scenarios apart.  For example, ErrDuplicateKey
// indicates a unique index rejected an insert (an order number taken by a
// concurrent commit), while ErrVersionConflict signals that a
// compare-and-swap lost against another writer.
package repository

import (
	"database/sql"
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when the requested row does not exist.  Handlers
// translate it into an HTTP 404 response.
var ErrNotFound = errors.New("not found")

// ErrDuplicateKey is returned when an insert violates a unique index.
var ErrDuplicateKey = errors.New("duplicate key")

// ErrVersionConflict is returned when a conditional update matched no row
// because the stored version moved on.
var ErrVersionConflict = errors.New("version conflict")

// ErrConflict is returned when an update cannot be performed because of
// the current state, such as marking an already paid order as paid.
var ErrConflict = errors.New("conflict")

// mysqlDuplicateEntry is ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

// translate maps driver errors onto the sentinel values above.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) && me.Number == mysqlDuplicateEntry {
		return errors.Join(ErrDuplicateKey, err)
	}
	return err
}
