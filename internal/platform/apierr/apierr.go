package apierr

import (
	"errors"
	"fmt"
	"net/http"

	pkgerrors "github.com/igasovic/PKM-sub000/internal/pkg/errors"
)

type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

var kindTable = []struct {
	kind   error
	status int
	code   string
}{
	{pkgerrors.ErrIdempotencyMissing, http.StatusBadRequest, "idempotency_missing"},
	{pkgerrors.ErrUnsupportedSource, http.StatusBadRequest, "unsupported_source"},
	{pkgerrors.ErrIdempotencyDerivation, http.StatusBadRequest, "idempotency_derivation"},
	{pkgerrors.ErrInvalidArgument, http.StatusBadRequest, "invalid_argument"},
	{pkgerrors.ErrSchemaIdentifier, http.StatusInternalServerError, "schema_identifier"},
	{pkgerrors.ErrBatchNotFound, http.StatusNotFound, "batch_not_found"},
	{pkgerrors.ErrNotFound, http.StatusNotFound, "not_found"},
	{pkgerrors.ErrBatchTableMissing, http.StatusServiceUnavailable, "batch_table_missing"},
	{pkgerrors.ErrBatchAPI, http.StatusBadGateway, "batch_api_error"},
	{pkgerrors.ErrTier1Contract, http.StatusBadGateway, "tier1_contract"},
}

// From classifies err into an *Error using the kind sentinels. An *Error
// already in the chain wins; unknown errors become 500/internal_error.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	for _, k := range kindTable {
		if errors.Is(err, k.kind) {
			return New(k.status, k.code, err)
		}
	}
	return New(http.StatusInternalServerError, "internal_error", err)
}
