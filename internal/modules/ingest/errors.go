package ingest

import (
	"fmt"

	pkgerrors "github.com/igasovic/PKM-sub000/internal/pkg/errors"
)

// MissingKeysError rejects a write that should carry idempotency keys but does not.
type MissingKeysError struct {
	Source    string
	PolicyKey string
}

func (e *MissingKeysError) Error() string {
	return fmt.Sprintf("idempotency keys required for source %q (policy_key=%q): need policy key and at least one key", e.Source, e.PolicyKey)
}

func (e *MissingKeysError) Is(target error) bool { return target == pkgerrors.ErrIdempotencyMissing }
