package services

import (
	"context"
	"errors"

	"github.com/yungbote/studyflow-backend/internal/platform/apierr"
)

// Sentinel errors for the ingestion pipeline's failure classes. Handlers map
// them to stable API codes via AsAPIError; services wrap them with context
// using fmt.Errorf("...: %w", ...).
var (
	// ErrValidation: bad input, rejected before any side effect.
	ErrValidation = errors.New("validation failed")
	// ErrAlreadyProcessing: duplicate in-flight request for the same source
	// key. No side effects; the caller should wait for the first request.
	ErrAlreadyProcessing = errors.New("source already processing")
	// ErrQuotaExceeded: terminal for the day; the UI offers an upgrade path.
	ErrQuotaExceeded = errors.New("daily quota exceeded")
	// ErrExtraction: transient upstream failure, retryable once the lock is
	// released.
	ErrExtraction = errors.New("extraction failed")
	// ErrTimeout: the bounded pipeline window elapsed. Retryable.
	ErrTimeout = errors.New("processing timed out")
	// ErrPersistence: the result was computed but not durably saved. Must
	// never be reported as success.
	ErrPersistence = errors.New("persistence failed")
)

func AsAPIError(err error) *apierr.Error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrValidation):
		return apierr.Validation(err)
	case errors.Is(err, ErrAlreadyProcessing):
		return apierr.AlreadyProcessing(err)
	case errors.Is(err, ErrQuotaExceeded):
		return apierr.QuotaExceeded(err)
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return apierr.Timeout(err)
	case errors.Is(err, ErrExtraction):
		return apierr.ExtractionFailed(err)
	case errors.Is(err, ErrPersistence):
		return apierr.Persistence(err)
	default:
		return apierr.Unknown(err)
	}
}
