package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRespondError(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
		detail string
	}{
		{fmt.Errorf("%w: run abc", ErrNotFound), http.StatusNotFound, "not_found", "resource not found: run abc"},
		{fmt.Errorf("%w: bad format", ErrValidation), http.StatusBadRequest, "invalid_request", "validation failed: bad format"},
		{fmt.Errorf("%w: %w", ErrUnprocessable, errors.New("sum mismatch")), http.StatusUnprocessableEntity, "invalid_workbook", "unprocessable content: sum mismatch"},
		{context.DeadlineExceeded, http.StatusGatewayTimeout, "timeout", "context deadline exceeded"},
		{errors.New("db down"), http.StatusInternalServerError, "internal", ""},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		RespondError(rec, tc.err)
		require.Equal(t, tc.status, rec.Code)
		require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

		var body ProblemDetail
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		require.Equal(t, tc.status, body.Status)
		require.Equal(t, tc.detail, body.Detail)
		require.Equal(t, tc.code, body.Code)
		require.NotEmpty(t, body.Title)
	}
}

func TestJSONAndProblem(t *testing.T) {
	rec := httptest.NewRecorder()
	JSON(rec, http.StatusCreated, map[string]string{"id": "r1"})
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.JSONEq(t, `{"id":"r1"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	Problem(rec, http.StatusConflict, "Conflict", "run exists")
	require.Equal(t, http.StatusConflict, rec.Code)
	require.JSONEq(t, `{"type":"about:blank","title":"Conflict","status":409,"detail":"run exists"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	WriteProblem(rec, ProblemDetail{Title: "Boom"})
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}
