package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorResponse is the consistent JSON structure for all API error responses.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// Key vault errors.
var (
	ErrEntropy          = errors.New("entropy source unavailable")
	ErrInvalidKeyFormat = errors.New("invalid key format")
	ErrUnknownKey       = errors.New("unknown key")
)

// Ledger errors.
var (
	// ErrNetwork is transient: no answer, or no acknowledgement, from the node.
	ErrNetwork = errors.New("network error")
	// ErrRetriesExhausted wraps ErrNetwork once the retry policy gave up.
	ErrRetriesExhausted = fmt.Errorf("retries exhausted: %w", ErrNetwork)
	ErrAddressNotFound  = errors.New("address not found")
	// ErrRejectedByNetwork is terminal: the node validated the request and refused it.
	ErrRejectedByNetwork = errors.New("rejected by network")
)

// Transfer and submission errors.
var (
	ErrInvalidRequest  = errors.New("invalid request")
	ErrAlreadyConsumed = errors.New("unsigned transaction already consumed")
	ErrSigningFailed   = errors.New("signing failed")
	ErrExpired         = errors.New("freshness window expired")
	ErrUnknownRecord   = errors.New("unknown submission")
	ErrTrackingStopped = errors.New("tracking stopped")
	ErrTerminalRecord  = errors.New("submission record is terminal")
	ErrNoActiveKey     = errors.New("no active key")
)

// RequestError lists every constraint a transfer request violated.
type RequestError struct {
	Reasons []string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalidRequest, strings.Join(e.Reasons, "; "))
}

func (e *RequestError) Unwrap() error {
	return ErrInvalidRequest
}

// RejectedError carries the node's reason for refusing a transaction.
type RejectedError struct {
	Code   int
	Reason string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%s: %s (code %d)", ErrRejectedByNetwork, e.Reason, e.Code)
}

func (e *RejectedError) Unwrap() error {
	return ErrRejectedByNetwork
}

// ErrorCode maps an error to the short code used in API error responses.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "INVALID_REQUEST"
	case errors.Is(err, ErrRejectedByNetwork):
		return "REJECTED_BY_NETWORK"
	case errors.Is(err, ErrRetriesExhausted):
		return "RETRIES_EXHAUSTED"
	case errors.Is(err, ErrNetwork):
		return "NETWORK_ERROR"
	case errors.Is(err, ErrAddressNotFound):
		return "ADDRESS_NOT_FOUND"
	case errors.Is(err, ErrSigningFailed):
		return "SIGNING_FAILED"
	case errors.Is(err, ErrUnknownKey):
		return "UNKNOWN_KEY"
	case errors.Is(err, ErrInvalidKeyFormat):
		return "INVALID_KEY_FORMAT"
	case errors.Is(err, ErrExpired):
		return "EXPIRED"
	case errors.Is(err, ErrUnknownRecord):
		return "NOT_FOUND"
	case errors.Is(err, ErrNoActiveKey):
		return "NO_ACTIVE_KEY"
	case errors.Is(err, ErrTerminalRecord):
		return "TERMINAL_RECORD"
	case errors.Is(err, ErrTrackingStopped):
		return "TRACKING_STOPPED"
	}
	return ""
}
