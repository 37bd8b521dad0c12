package idempotency

import (
	"errors"
	"fmt"

	pkgerrors "github.com/igasovic/PKM-sub000/internal/pkg/errors"
)

// DerivationError is returned when no key can be derived. Kind is either
// ErrIdempotencyDerivation or ErrUnsupportedSource.
type DerivationError struct {
	Kind       error      `json:"-"`
	Reason     string     `json:"reason"`
	Source     Source     `json:"source_snapshot"`
	Normalized Normalized `json:"normalized_snapshot"`
}

func (e *DerivationError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("idempotency: %s (system=%q content_type=%q)", e.Reason, e.Source.System, e.Normalized.ContentType)
}

func (e *DerivationError) Unwrap() error { return e.Kind }

func derivationErr(reason string, src Source, norm Normalized) error {
	return &DerivationError{Kind: pkgerrors.ErrIdempotencyDerivation, Reason: reason, Source: src, Normalized: norm}
}

func unsupportedErr(src Source, norm Normalized) error {
	return &DerivationError{
		Kind:       pkgerrors.ErrUnsupportedSource,
		Reason:     fmt.Sprintf("unsupported source/content_type combination %s/%s", src.System, norm.ContentType),
		Source:     src,
		Normalized: norm,
	}
}

// IsUnsupported reports whether err is an unsupported-source derivation error.
func IsUnsupported(err error) bool {
	return errors.Is(err, pkgerrors.ErrUnsupportedSource)
}
