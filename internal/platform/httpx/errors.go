package httpx

import (
	"context"
	"errors"
	"net/http"
)

// Sentinel errors understood by RespondError.
var (
	ErrNotFound      = errors.New("resource not found")
	ErrValidation    = errors.New("validation failed")
	ErrUnprocessable = errors.New("unprocessable content")
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	WriteProblem(w, ProblemDetail{
		Type:   "about:blank",
		Title:  title(status),
		Status: status,
		Detail: detail(err),
		Code:   code(status),
	})
}

// StatusFor returns the HTTP status RespondError would use for err.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnprocessable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func title(status int) string {
	switch status {
	case http.StatusNotFound:
		return "Not Found"
	case http.StatusBadRequest:
		return "Validation Failed"
	case http.StatusUnprocessableEntity:
		return "Unprocessable Workbook"
	case http.StatusGatewayTimeout:
		return "Timeout"
	default:
		return "Internal Error"
	}
}

func code(status int) string {
	switch status {
	case http.StatusNotFound:
		return "not_found"
	case http.StatusBadRequest:
		return "invalid_request"
	case http.StatusUnprocessableEntity:
		return "invalid_workbook"
	case http.StatusGatewayTimeout:
		return "timeout"
	default:
		return "internal"
	}
}

// detail hides internal error text from clients.
func detail(err error) string {
	if StatusFor(err) >= http.StatusInternalServerError {
		return ""
	}
	return err.Error()
}
