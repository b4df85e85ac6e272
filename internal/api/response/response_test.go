package response_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suncrest/sungate/internal/api/response"
	"github.com/suncrest/sungate/pkg/fault"
)

func TestJSONEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	response.JSON(rec, map[string]string{"status": "ok"})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body struct {
		Data map[string]string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Data["status"])
}

func TestErrorEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	response.Error(rec, http.StatusBadRequest, "INVALID_ARGUMENT", "name is required", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "INVALID_ARGUMENT", body.Error.Code)
	assert.Equal(t, "name is required", body.Error.Message)
}

func TestFaultStatusMapping(t *testing.T) {
	cases := []struct {
		err        error
		wantStatus int
		wantCode   string
	}{
		{fault.New(fault.Unauthenticated, "Invalid API key"), http.StatusUnauthorized, "UNAUTHENTICATED"},
		{fault.New(fault.InvalidArgument, "bad input"), http.StatusBadRequest, "INVALID_ARGUMENT"},
		{fault.New(fault.NotFound, "no such key"), http.StatusNotFound, "NOT_FOUND"},
		{fault.New(fault.PermissionDenied, "missing scope"), http.StatusForbidden, "PERMISSION_DENIED"},
		{fault.New(fault.ResourceExhausted, "rate limit exceeded"), http.StatusTooManyRequests, "RESOURCE_EXHAUSTED"},
		{errors.New("pgx: broken pipe"), http.StatusInternalServerError, "INTERNAL"},
	}

	for _, tc := range cases {
		rec := httptest.NewRecorder()
		response.Fault(rec, tc.err)
		assert.Equal(t, tc.wantStatus, rec.Code)

		var body struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, tc.wantCode, body.Error.Code)
	}
}

func TestFaultHidesInternalDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	response.Fault(rec, errors.New("pq: relation credentials does not exist"))

	assert.NotContains(t, rec.Body.String(), "credentials does not exist")
	assert.Contains(t, rec.Body.String(), "An unexpected error occurred")
}
