package model

import "time"

// AddressResponse represents response for GET /wallet/address
type AddressResponse struct {
	Address string `json:"address"`
}

// BalanceResponse represents response for GET /wallet/balance
type BalanceResponse struct {
	Address  string `json:"address"`
	Lamports uint64 `json:"lamports"`
	SOL      string `json:"sol"`
	Slot     uint64 `json:"slot"`
}

// GenerateResponse represents response for POST /wallet/generate
type GenerateResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Address string `json:"address,omitempty"`
}

// SendRequest represents request for POST /wallet/send
type SendRequest struct {
	ToAddress      string `json:"toAddress" binding:"required"`
	Amount         string `json:"amount" binding:"required"` // SOL, decimal string
	Memo           string `json:"memo,omitempty"`
	TimeoutSeconds int    `json:"timeoutSeconds,omitempty"`
}

// SubmissionResponse represents a submission record in API responses
type SubmissionResponse struct {
	TxID        string    `json:"txId"`
	RequestID   string    `json:"requestId,omitempty"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	Amount      string    `json:"amount"`
	State       string    `json:"state"`
	Reason      string    `json:"reason,omitempty"`
	RetryCount  int       `json:"retryCount"`
	SubmittedAt time.Time `json:"submittedAt"`
	ExpiresAt   time.Time `json:"expiresAt"`

	// ErrorCode is set when the last attempt failed but the record survives.
	ErrorCode string `json:"errorCode,omitempty"`
}
