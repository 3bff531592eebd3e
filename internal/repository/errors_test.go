package repository

import (
	"errors"
	"testing"

	"github.com/go-sql-driver/mysql"
)

func TestIsDuplicateKeyErrMatchesER_DUP_ENTRY(t *testing.T) {
	err := &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}
	if !isDuplicateKeyErr(err) {
		t.Fatalf("expected duplicate-key error to be detected")
	}
}

func TestIsDuplicateKeyErrIgnoresOtherMySQLErrors(t *testing.T) {
	err := &mysql.MySQLError{Number: 1451, Message: "Cannot delete or update a parent row"}
	if isDuplicateKeyErr(err) {
		t.Fatalf("expected non-duplicate MySQL error to be rejected")
	}
}

func TestIsDuplicateKeyErrIgnoresPlainErrors(t *testing.T) {
	if isDuplicateKeyErr(errors.New("boom")) {
		t.Fatalf("expected plain error to be rejected")
	}
}
