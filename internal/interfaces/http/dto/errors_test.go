package dto

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetHTTPStatus(t *testing.T) {
	tests := []struct {
		code     string
		expected int
	}{
		{ErrCodeNotFound, http.StatusNotFound},
		{ErrCodeInvalidTransition, http.StatusUnprocessableEntity},
		{ErrCodeValidation, http.StatusBadRequest},
		{ErrCodeForbidden, http.StatusForbidden},
		{ErrCodeUnauthorized, http.StatusUnauthorized},
		{ErrCodeUnavailable, http.StatusServiceUnavailable},
		{ErrCodeDuplicateRequest, http.StatusConflict},
		{ErrCodeConcurrencyConflict, http.StatusConflict},
		{ErrCodeBadRequest, http.StatusBadRequest},
		{ErrCodeTokenExpired, http.StatusUnauthorized},
		{ErrCodeRateLimited, http.StatusTooManyRequests},
		{ErrCodePayloadTooLarge, http.StatusRequestEntityTooLarge},
		// Unknown code should return 500
		{"UNKNOWN_CODE", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.expected, GetHTTPStatus(tt.code))
		})
	}
}

func TestDomainCodesPassThrough(t *testing.T) {
	assert.Equal(t, "NOT_FOUND", ErrCodeNotFound)
	assert.Equal(t, "INVALID_TRANSITION", ErrCodeInvalidTransition)
	assert.Equal(t, "DUPLICATE_REQUEST", ErrCodeDuplicateRequest)
}

func TestNewErrorResponseWithRequestID(t *testing.T) {
	before := time.Now()
	resp := NewErrorResponseWithRequestID(ErrCodeNotFound, "Group order not found", "req-123")

	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeNotFound, resp.Error.Code)
	assert.Equal(t, "Group order not found", resp.Error.Message)
	assert.Equal(t, "req-123", resp.Error.RequestID)
	assert.False(t, resp.Error.Timestamp.Before(before))
}

func TestNewValidationErrorResponse(t *testing.T) {
	details := []ValidationDetail{
		{Field: "qty", Message: "qty must be greater than 0"},
		{Field: "name", Message: "name is required"},
	}

	resp := NewValidationErrorResponse("Validation failed", "req-789", details)

	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeValidation, resp.Error.Code)
	assert.Equal(t, "req-789", resp.Error.RequestID)
	assert.Len(t, resp.Error.Details, 2)
	assert.Equal(t, "qty", resp.Error.Details[0].Field)
}

func TestErrorResponseJSON(t *testing.T) {
	data, err := json.Marshal(NewErrorResponse(ErrCodeInvalidTransition, "group is not open"))
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, false, decoded["success"])
	assert.NotContains(t, decoded, "data")
	errObj := decoded["error"].(map[string]any)
	assert.Equal(t, "INVALID_TRANSITION", errObj["code"])
	assert.NotContains(t, errObj, "request_id")
}

func TestNewSuccessResponseWithMetaPagination(t *testing.T) {
	tests := []struct {
		total         int64
		pageSize      int
		expectedPages int
		expectedSize  int
	}{
		{100, 10, 10, 10},
		{101, 10, 11, 10},
		{0, 10, 0, 10},
		{9, 10, 1, 10},
		{100, 0, 5, 20},
		{100, -1, 5, 20},
	}

	for _, tt := range tests {
		resp := NewSuccessResponseWithMeta(nil, tt.total, 1, tt.pageSize)
		assert.True(t, resp.Success)
		assert.Equal(t, tt.expectedPages, resp.Meta.TotalPages)
		assert.Equal(t, tt.expectedSize, resp.Meta.PageSize)
	}
}

func TestListRequestNormalize(t *testing.T) {
	r := ListRequest{Limit: 500}
	r.Normalize()
	assert.Equal(t, 1, r.Page)
	assert.Equal(t, MaxPageSize, r.Limit)
	assert.Equal(t, "created_at", r.OrderBy)
	assert.Equal(t, "desc", r.OrderDir)

	r = ListRequest{}
	r.Normalize()
	assert.Equal(t, DefaultPageSize, r.Limit)
}
