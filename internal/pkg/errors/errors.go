package errors

import "errors"

var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")

	// Write path.
	ErrIdempotencyDerivation = errors.New("idempotency derivation failed")
	ErrUnsupportedSource     = errors.New("unsupported source")
	ErrIdempotencyMissing    = errors.New("idempotency keys missing")
	ErrSchemaIdentifier      = errors.New("invalid schema identifier")

	// Tier-1 batches.
	ErrBatchNotFound     = errors.New("batch not found")
	ErrBatchTableMissing = errors.New("batch table missing")
	ErrBatchAPI          = errors.New("batch api error")
	ErrTier1Contract     = errors.New("tier1 response contract violated")
)
