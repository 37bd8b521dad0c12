package openai

import (
	"errors"
	"fmt"

	goopenai "github.com/sashabaranov/go-openai"

	pkgerrors "github.com/igasovic/PKM-sub000/internal/pkg/errors"
)

// BatchAPIError wraps a failed upstream call with its HTTP status.
type BatchAPIError struct {
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *BatchAPIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("openai %s failed (%d): %s", e.Op, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("openai %s failed: %s", e.Op, e.Message)
}

func (e *BatchAPIError) Unwrap() error { return e.Err }

func (e *BatchAPIError) Is(target error) bool { return target == pkgerrors.ErrBatchAPI }

// HTTPStatusCode lets httpx classify retryability.
func (e *BatchAPIError) HTTPStatusCode() int { return e.StatusCode }

func apiError(op string, err error) error {
	if err == nil {
		return nil
	}
	out := &BatchAPIError{Op: op, Message: err.Error(), Err: err}
	var apiErr *goopenai.APIError
	var reqErr *goopenai.RequestError
	switch {
	case errors.As(err, &apiErr):
		out.StatusCode = apiErr.HTTPStatusCode
		out.Message = apiErr.Message
	case errors.As(err, &reqErr):
		out.StatusCode = reqErr.HTTPStatusCode
		if reqErr.Err != nil {
			out.Message = reqErr.Err.Error()
		}
	}
	return out
}
