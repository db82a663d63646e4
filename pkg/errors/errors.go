package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrMalformedRecord     = errors.New("malformed record")
	ErrEmptyInput          = errors.New("no records to analyze")
	ErrDegenerateCommunity = errors.New("community has no members")
	ErrInvalidReference    = errors.New("invalid invite link")
	ErrFetchFailed         = errors.New("fetch failed")
	ErrSnapshotNotFound    = errors.New("snapshot not found")
	ErrRateLimited         = errors.New("rate limit exceeded")
	ErrInternal            = errors.New("internal error")
	ErrTimeout             = errors.New("operation timed out")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrSnapshotNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrMalformedRecord), errors.Is(err, ErrInvalidReference):
		return http.StatusBadRequest
	case errors.Is(err, ErrEmptyInput), errors.Is(err, ErrDegenerateCommunity):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrFetchFailed), errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}

}
