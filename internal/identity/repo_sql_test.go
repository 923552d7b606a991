package identity

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	_ "github.com/pronas-pcd/pronas-core/testing"
)

func TestIsDuplicateEmail(t *testing.T) {
	dup := &pgconn.PgError{Code: "23505", ConstraintName: "uq_identities_email"}
	if !isDuplicateEmail(dup) {
		t.Fatal("unique violation on uq_identities_email not recognized")
	}
	if !isDuplicateEmail(fmt.Errorf("insert identity: %w", dup)) {
		t.Fatal("wrapped unique violation not recognized")
	}

	other := &pgconn.PgError{Code: "23503", ConstraintName: "fk_identities_institution"}
	if isDuplicateEmail(other) {
		t.Fatal("unrelated constraint violation must not map to a duplicate email")
	}
	if isDuplicateEmail(errors.New("connection reset")) {
		t.Fatal("plain errors must not map to a duplicate email")
	}
}
