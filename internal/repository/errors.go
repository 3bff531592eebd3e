package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// mysqlDuplicateEntry is MySQL's error number for a unique-constraint
// violation (ER_DUP_ENTRY).
const mysqlDuplicateEntry = 1062

// isDuplicateKeyErr reports whether err is a MySQL unique-constraint
// violation, the trigger for the "treat as already handled" Conflict
// classification in spec §7.
func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry
}
