package tier1repo

import (
	"errors"
	"fmt"

	"github.com/igasovic/PKM-sub000/internal/data/pgerr"
	pkgerrors "github.com/igasovic/PKM-sub000/internal/pkg/errors"
)

// TableMissingError means a Tier-1 table has not been provisioned in Schema.
type TableMissingError struct {
	Schema string
	Table  string
	Err    error
}

func (e *TableMissingError) Error() string {
	return fmt.Sprintf("tier1 table %s.%s does not exist; provision schema %q before scheduling batches: %v", e.Schema, e.Table, e.Schema, e.Err)
}

func (e *TableMissingError) Unwrap() error { return e.Err }

func (e *TableMissingError) Is(target error) bool { return target == pkgerrors.ErrBatchTableMissing }

func wrap(schema, table string, err error) error {
	if err == nil {
		return nil
	}
	if pgerr.IsMissingRelation(err) {
		return &TableMissingError{Schema: schema, Table: table, Err: err}
	}
	return err
}

// IsTableMissing reports whether err is a TableMissingError.
func IsTableMissing(err error) bool {
	var tm *TableMissingError
	return errors.As(err, &tm)
}
