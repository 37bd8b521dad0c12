package tier1

import (
	"fmt"

	pkgerrors "github.com/igasovic/PKM-sub000/internal/pkg/errors"
)

// BatchNotFoundError means no configured schema has the batch.
type BatchNotFoundError struct {
	BatchID string
}

func (e *BatchNotFoundError) Error() string {
	return fmt.Sprintf("tier1 batch %q not found in any configured schema", e.BatchID)
}

func (e *BatchNotFoundError) Is(target error) bool { return target == pkgerrors.ErrBatchNotFound }

// ContractError is a model answer that violates the response contract.
type ContractError struct {
	Reason string
}

func (e *ContractError) Error() string { return "tier1 response contract: " + e.Reason }

func (e *ContractError) Is(target error) bool { return target == pkgerrors.ErrTier1Contract }

func contractErr(reason string) error { return &ContractError{Reason: reason} }

// StageError reports the pipeline stage a flow failed in.
type StageError struct {
	Flow  Flow
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("tier1 %s: %s: %v", e.Flow, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
