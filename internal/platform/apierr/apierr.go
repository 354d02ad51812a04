package apierr

import (
	"fmt"
	"net/http"
)

// Stable error codes surfaced to API clients. Clients branch on these, so
// they are part of the wire contract and must not be renamed.
const (
	CodeValidation        = "VALIDATION_ERROR"
	CodeAlreadyProcessing = "ALREADY_PROCESSING"
	CodeQuotaExceeded     = "QUOTA_EXCEEDED"
	CodeExtractionFailed  = "EXTRACTION_FAILED"
	CodeTimeout           = "TIMEOUT"
	CodePersistence       = "PERSISTENCE_ERROR"
	CodeUnknown           = "UNKNOWN"
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

func Validation(err error) *Error {
	return New(http.StatusBadRequest, CodeValidation, err)
}

func AlreadyProcessing(err error) *Error {
	return New(http.StatusConflict, CodeAlreadyProcessing, err)
}

func QuotaExceeded(err error) *Error {
	return New(http.StatusTooManyRequests, CodeQuotaExceeded, err)
}

func ExtractionFailed(err error) *Error {
	return New(http.StatusBadGateway, CodeExtractionFailed, err)
}

func Timeout(err error) *Error {
	return New(http.StatusGatewayTimeout, CodeTimeout, err)
}

func Persistence(err error) *Error {
	return New(http.StatusInternalServerError, CodePersistence, err)
}

func Unknown(err error) *Error {
	return New(http.StatusInternalServerError, CodeUnknown, err)
}
