package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReporterError_Unwrap_PreservesOriginalError(t *testing.T) {
	// Given: an original error
	originalErr := errors.New("original error")

	// When: wrapping with ReporterError
	repErr := New(ErrCodeProgressDB, "progress db unavailable", originalErr)

	// Then: unwrapping returns original error
	require.NotNil(t, repErr)
	assert.Equal(t, originalErr, errors.Unwrap(repErr))
	assert.True(t, errors.Is(repErr, originalErr))
}

func TestReporterError_Error_ReturnsFormattedMessage(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		message  string
		expected string
	}{
		{
			name:     "config error",
			code:     ErrCodeConfigNotFound,
			message:  "config file not found",
			expected: "[ERR_101_CONFIG_NOT_FOUND] config file not found",
		},
		{
			name:     "storage error",
			code:     ErrCodeProgressDB,
			message:  "cannot open progress db",
			expected: "[ERR_201_PROGRESS_DB] cannot open progress db",
		},
		{
			name:     "network error",
			code:     ErrCodeNetworkTimeout,
			message:  "request timed out",
			expected: "[ERR_301_NETWORK_TIMEOUT] request timed out",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, tt.message, nil)
			assert.Equal(t, tt.expected, err.Error())
		})
	}
}

func TestReporterError_Is_MatchesByCode(t *testing.T) {
	// Given: two errors with same code
	err1 := New(ErrCodeVectorStore, "upsert failed for batch 1", nil)
	err2 := New(ErrCodeVectorStore, "upsert failed for batch 2", nil)

	// Then: they match by code
	assert.True(t, errors.Is(err1, err2))
}

func TestReporterError_Is_DoesNotMatchDifferentCodes(t *testing.T) {
	// Given: two errors with different codes
	err1 := New(ErrCodeVectorStore, "upsert failed", nil)
	err2 := New(ErrCodeConfigNotFound, "config not found", nil)

	// Then: they don't match
	assert.False(t, errors.Is(err1, err2))
}

func TestReporterError_WithDetail_AddsContext(t *testing.T) {
	// Given: a base error
	err := New(ErrCodeUpstreamStatus, "unexpected status", nil)

	// When: adding details
	err = err.WithDetail("url", "https://www.courtlistener.com/api/rest/v4/opinions/123/")
	err = err.WithDetail("status", "502")

	// Then: details are available
	assert.Equal(t, "https://www.courtlistener.com/api/rest/v4/opinions/123/", err.Details["url"])
	assert.Equal(t, "502", err.Details["status"])
}

func TestReporterError_WithSuggestion_AddsSuggestion(t *testing.T) {
	// Given: a network error
	err := New(ErrCodeNetworkTimeout, "connection timed out", nil)

	// When: adding suggestion
	err = err.WithSuggestion("Check your network connection")

	// Then: suggestion is available
	assert.Equal(t, "Check your network connection", err.Suggestion)
}

func TestReporterError_CategoryFromCode(t *testing.T) {
	tests := []struct {
		code         string
		wantCategory Category
	}{
		{ErrCodeConfigNotFound, CategoryConfig},
		{ErrCodeMissingSecret, CategoryConfig},
		{ErrCodeProgressDB, CategoryStorage},
		{ErrCodeVectorStore, CategoryStorage},
		{ErrCodeNetworkTimeout, CategoryNetwork},
		{ErrCodeRateLimited, CategoryNetwork},
		{ErrCodeInvalidInput, CategoryValidation},
		{ErrCodeDimensionMismatch, CategoryValidation},
		{ErrCodeInternal, CategoryInternal},
		{ErrCodeEmbeddingFailed, CategoryInternal},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "test message", nil)
			assert.Equal(t, tt.wantCategory, err.Category)
		})
	}
}

func TestReporterError_SeverityFromCode(t *testing.T) {
	tests := []struct {
		code         string
		wantSeverity Severity
	}{
		{ErrCodeMissingSecret, SeverityFatal},
		{ErrCodeProgressLocked, SeverityFatal},
		{ErrCodeVectorStore, SeverityError},
		{ErrCodeNetworkTimeout, SeverityWarning}, // Retryable, so warning
		{ErrCodeRateLimited, SeverityWarning},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "test message", nil)
			assert.Equal(t, tt.wantSeverity, err.Severity)
		})
	}
}

func TestReporterError_RetryableFromCode(t *testing.T) {
	tests := []struct {
		code          string
		wantRetryable bool
	}{
		{ErrCodeNetworkTimeout, true},
		{ErrCodeNetworkUnavailable, true},
		{ErrCodeRateLimited, true},
		{ErrCodeConfigInvalid, false},
		{ErrCodeMalformedResponse, false},
		{ErrCodeEmptyContent, false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "test message", nil)
			assert.Equal(t, tt.wantRetryable, err.Retryable)
		})
	}
}

func TestWrap_CreatesReporterErrorFromError(t *testing.T) {
	// Given: a standard error
	originalErr := errors.New("something went wrong")

	// When: wrapping with a code
	repErr := Wrap(ErrCodeInternal, originalErr)

	// Then: creates proper ReporterError
	require.NotNil(t, repErr)
	assert.Equal(t, ErrCodeInternal, repErr.Code)
	assert.Equal(t, "something went wrong", repErr.Message)
	assert.Equal(t, originalErr, repErr.Cause)
}

func TestWrap_NilErrorReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}

func TestConfigError_CreatesConfigCategoryError(t *testing.T) {
	err := ConfigError("invalid yaml syntax", nil)

	assert.Equal(t, CategoryConfig, err.Category)
	assert.Contains(t, err.Code, "CONFIG")
}

func TestStorageError_CreatesStorageCategoryError(t *testing.T) {
	err := StorageError("cannot open progress db", nil)

	assert.Equal(t, CategoryStorage, err.Category)
}

func TestNetworkError_CreatesRetryableError(t *testing.T) {
	err := NetworkError("connection refused", nil)

	assert.Equal(t, CategoryNetwork, err.Category)
	assert.True(t, err.Retryable)
}

func TestRateLimitError_CreatesRetryableError(t *testing.T) {
	err := RateLimitError("429 from federal register", nil)

	assert.Equal(t, ErrCodeRateLimited, err.Code)
	assert.True(t, err.Retryable)
}

func TestIsRetryable_ChecksErrorRetryability(t *testing.T) {
	assert.True(t, IsRetryable(New(ErrCodeRateLimited, "slow down", nil)))
	assert.False(t, IsRetryable(New(ErrCodeConfigInvalid, "bad config", nil)))
	assert.False(t, IsRetryable(errors.New("plain error")))
	assert.False(t, IsRetryable(nil))
}

func TestIsFatal_ChecksErrorSeverity(t *testing.T) {
	assert.True(t, IsFatal(New(ErrCodeMissingSecret, "no api key", nil)))
	assert.False(t, IsFatal(New(ErrCodeVectorStore, "upsert failed", nil)))
	assert.False(t, IsFatal(nil))
}

func TestGetCode_ExtractsCode(t *testing.T) {
	assert.Equal(t, ErrCodeCollection, GetCode(New(ErrCodeCollection, "missing collection", nil)))
	assert.Equal(t, "", GetCode(errors.New("plain error")))
}
