package nats

import (
	"time"

	"github.com/AlexZinkM/solwallet/internal/model"
)

// OutcomeEvent is published to "wallet.outcomes.{sender}" when a submission
// reaches a terminal state.
type OutcomeEvent struct {
	TxID      string `json:"tx_id"`
	RequestID string `json:"request_id"`

	From     string `json:"from"`
	To       string `json:"to"`
	Lamports uint64 `json:"lamports"`

	State      string `json:"state"`
	Reason     string `json:"reason,omitempty"`
	RetryCount int    `json:"retry_count"`

	SubmittedAt time.Time `json:"submitted_at"`
	FinishedAt  time.Time `json:"finished_at"`
	PublishedAt time.Time `json:"published_at"`
}

// FromRecord converts a terminal submission record into an event.
func FromRecord(r *model.SubmissionRecord) *OutcomeEvent {
	return &OutcomeEvent{
		TxID:        r.ID.String(),
		RequestID:   r.RequestID,
		From:        r.Sender.String(),
		To:          r.Recipient.String(),
		Lamports:    r.Lamports,
		State:       string(r.State),
		Reason:      r.Reason,
		RetryCount:  r.RetryCount,
		SubmittedAt: r.SubmittedAt,
		FinishedAt:  r.UpdatedAt,
		PublishedAt: time.Now(),
	}
}
