// Package store keeps submission records for audit. Terminal records are
// final: every implementation refuses to change them.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/AlexZinkM/solwallet/internal/model"

	"github.com/gagliardetto/solana-go"
)

// Memory is an in-process record store.
type Memory struct {
	mu      sync.RWMutex
	records map[solana.Signature]*model.SubmissionRecord
}

func NewMemory() *Memory {
	return &Memory{records: make(map[solana.Signature]*model.SubmissionRecord)}
}

// Save inserts record, or overwrites a non-terminal one with the same id.
func (m *Memory) Save(_ context.Context, record *model.SubmissionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.records[record.ID]; ok && old.State.Terminal() {
		return model.ErrTerminalRecord
	}
	m.records[record.ID] = record.Clone()
	return nil
}

// Update replaces an existing non-terminal record.
func (m *Memory) Update(_ context.Context, record *model.SubmissionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.records[record.ID]
	if !ok {
		return model.ErrUnknownRecord
	}
	if old.State.Terminal() {
		return model.ErrTerminalRecord
	}
	m.records[record.ID] = record.Clone()
	return nil
}

func (m *Memory) Get(_ context.Context, id solana.Signature) (*model.SubmissionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, model.ErrUnknownRecord
	}
	return rec.Clone(), nil
}

// ListBySender returns the sender's records, newest first.
func (m *Memory) ListBySender(_ context.Context, sender solana.PublicKey, limit int) ([]*model.SubmissionRecord, error) {
	m.mu.RLock()
	var out []*model.SubmissionRecord
	for _, rec := range m.records {
		if rec.Sender.Equals(sender) {
			out = append(out, rec.Clone())
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].SubmittedAt.After(out[j].SubmittedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
