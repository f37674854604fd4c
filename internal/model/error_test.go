package model

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		code string
	}{
		{&RequestError{Reasons: []string{"amount must be positive"}}, "INVALID_REQUEST"},
		{&RejectedError{Code: -32002, Reason: "Blockhash not found"}, "REJECTED_BY_NETWORK"},
		{fmt.Errorf("%w after 3 attempts: eof", ErrRetriesExhausted), "RETRIES_EXHAUSTED"},
		{fmt.Errorf("%w: connection reset", ErrNetwork), "NETWORK_ERROR"},
		{fmt.Errorf("%w: %w", ErrSigningFailed, ErrUnknownKey), "SIGNING_FAILED"},
		{ErrUnknownRecord, "NOT_FOUND"},
		{errors.New("boom"), ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.code, ErrorCode(tt.err), tt.err.Error())
	}
}

func TestRetriesExhaustedIsNetwork(t *testing.T) {
	assert.ErrorIs(t, ErrRetriesExhausted, ErrNetwork)
}

func TestRequestError(t *testing.T) {
	err := &RequestError{Reasons: []string{"a", "b"}}
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.Equal(t, "invalid request: a; b", err.Error())
}

func TestFreshnessToken_Expired(t *testing.T) {
	var tok FreshnessToken
	tok.ExpiresAt = tok.ObservedAt.Add(1)
	assert.False(t, tok.Expired(tok.ObservedAt))
	assert.True(t, tok.Expired(tok.ExpiresAt))
}

func TestSubmissionState_Terminal(t *testing.T) {
	assert.False(t, StatePending.Terminal())
	assert.True(t, StateConfirmed.Terminal())
	assert.True(t, StateFailed.Terminal())
	assert.True(t, StateExpired.Terminal())
}
