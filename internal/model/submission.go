package model

import (
	"time"

	"github.com/gagliardetto/solana-go"
)

// SubmissionState is the lifecycle state of a broadcast transaction.
type SubmissionState string

const (
	StatePending   SubmissionState = "pending"
	StateConfirmed SubmissionState = "confirmed"
	StateFailed    SubmissionState = "failed"
	StateExpired   SubmissionState = "expired"
)

// Terminal reports whether the state can never change again.
func (s SubmissionState) Terminal() bool {
	return s == StateConfirmed || s == StateFailed || s == StateExpired
}

// ChainStatus is what a single status poll observed on chain.
type ChainStatus int

const (
	ChainUnknown ChainStatus = iota
	ChainProcessed
	ChainConfirmed
	ChainFailed
)

// StatusObservation is the result of one poll.
type StatusObservation struct {
	Status ChainStatus
	Slot   uint64
	// Reason is set when Status is ChainFailed.
	Reason string
}

// SubmissionRecord tracks one submitted transaction. Terminal records are
// immutable and retained for audit.
type SubmissionRecord struct {
	ID          solana.Signature
	RequestID   string
	Sender      solana.PublicKey
	Recipient   solana.PublicKey
	Lamports    uint64
	State       SubmissionState
	Reason      string
	SubmittedAt time.Time
	ExpiresAt   time.Time
	UpdatedAt   time.Time
	RetryCount  int
	// Payload is the signed wire transaction, kept for idempotent rebroadcast.
	Payload []byte
}

// Clone returns a copy safe to hand out to callers.
func (r *SubmissionRecord) Clone() *SubmissionRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.Payload = append([]byte(nil), r.Payload...)
	return &c
}
