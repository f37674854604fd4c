// Package submitter signs, broadcasts and tracks transfers until they reach a
// terminal state.
package submitter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/AlexZinkM/solwallet/internal/metrics"
	"github.com/AlexZinkM/solwallet/internal/model"
	"github.com/AlexZinkM/solwallet/internal/transfer"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
)

// Ledger is the part of the ledger client the submitter drives.
type Ledger interface {
	Submit(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
	PollStatus(ctx context.Context, signature solana.Signature) (model.StatusObservation, error)
}

// Signer produces signatures for held keys.
type Signer interface {
	Sign(address solana.PublicKey, message []byte) (solana.Signature, error)
}

// RecordStore persists submission records for audit.
type RecordStore interface {
	Save(ctx context.Context, record *model.SubmissionRecord) error
	Update(ctx context.Context, record *model.SubmissionRecord) error
	Get(ctx context.Context, id solana.Signature) (*model.SubmissionRecord, error)
}

// Notifier is told about every terminal outcome.
type Notifier interface {
	PublishOutcome(ctx context.Context, record *model.SubmissionRecord) error
}

// Submitter owns every in-flight submission of a wallet session.
type Submitter struct {
	ledger   Ledger
	signer   Signer
	store    RecordStore
	notifier Notifier
	metrics  *metrics.Metrics
	logger   *slog.Logger

	maxAttempts     int
	retryDelay      time.Duration
	maxRetryDelay   time.Duration
	pollInterval    time.Duration
	maxPollInterval time.Duration
	validity        time.Duration
	now             func() time.Time
	onTerminal      func(model.SubmissionRecord)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	tracked map[solana.Signature]*tracked
}

// Option configures a Submitter.
type Option func(*Submitter)

// WithMaxAttempts sets how many times one signed transaction is broadcast
// while the ledger does not acknowledge it.
func WithMaxAttempts(n int) Option {
	return func(s *Submitter) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithRetryBackoff sets the delay between broadcast attempts.
func WithRetryBackoff(delay, maxDelay time.Duration) Option {
	return func(s *Submitter) {
		s.retryDelay = delay
		s.maxRetryDelay = maxDelay
	}
}

// WithPollInterval sets the status polling schedule.
func WithPollInterval(interval, maxInterval time.Duration) Option {
	return func(s *Submitter) {
		s.pollInterval = interval
		s.maxPollInterval = maxInterval
	}
}

// WithValidity is the freshness window assumed when a token carries no deadline.
func WithValidity(d time.Duration) Option {
	return func(s *Submitter) {
		s.validity = d
	}
}

func WithStore(store RecordStore) Option {
	return func(s *Submitter) {
		s.store = store
	}
}

func WithNotifier(n Notifier) Option {
	return func(s *Submitter) {
		s.notifier = n
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Submitter) {
		s.metrics = m
	}
}

// WithClock replaces time.Now for deadline checks.
func WithClock(now func() time.Time) Option {
	return func(s *Submitter) {
		s.now = now
	}
}

// WithTerminalHook registers fn to run after a record reaches a terminal state.
func WithTerminalHook(fn func(model.SubmissionRecord)) Option {
	return func(s *Submitter) {
		s.onTerminal = fn
	}
}

// New creates a Submitter. Without WithStore records live only in memory.
func New(ledger Ledger, signer Signer, logger *slog.Logger, opts ...Option) *Submitter {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Submitter{
		ledger:          ledger,
		signer:          signer,
		logger:          logger,
		maxAttempts:     4,
		retryDelay:      500 * time.Millisecond,
		maxRetryDelay:   4 * time.Second,
		pollInterval:    500 * time.Millisecond,
		maxPollInterval: 4 * time.Second,
		validity:        60 * time.Second,
		now:             time.Now,
		ctx:             ctx,
		cancel:          cancel,
		tracked:         make(map[solana.Signature]*tracked),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit signs unsigned, broadcasts it and starts tracking.
//
// A signing failure returns model.ErrSigningFailed and creates no record.
// A rejection returns the Failed record together with an error matching
// model.ErrRejectedByNetwork. When no attempt is acknowledged the Pending
// record is returned with an error matching model.ErrRetriesExhausted and is
// still tracked, since the broadcast may have landed.
func (s *Submitter) Submit(ctx context.Context, unsigned *transfer.UnsignedTransaction) (*model.SubmissionRecord, error) {
	msg, err := unsigned.Consume()
	if err != nil {
		return nil, err
	}

	sig, err := s.signer.Sign(unsigned.Sender(), msg)
	if err != nil {
		s.metrics.RecordSignature("error")
		return nil, fmt.Errorf("%w: %w", model.ErrSigningFailed, err)
	}
	s.metrics.RecordSignature("ok")

	tx := unsigned.Signed(sig)
	payload, err := tx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize transaction: %w", err)
	}

	now := s.now()
	expiresAt := unsigned.Freshness().ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = now.Add(s.validity)
	}
	record := &model.SubmissionRecord{
		ID:          sig,
		RequestID:   uuid.NewString(),
		Sender:      unsigned.Sender(),
		Recipient:   unsigned.Recipient(),
		Lamports:    unsigned.Lamports(),
		State:       model.StatePending,
		SubmittedAt: now,
		ExpiresAt:   expiresAt,
		UpdatedAt:   now,
		Payload:     payload,
	}

	logger := s.logger.With("tx_id", sig.String(), "request_id", record.RequestID)
	attempts, sendErr := s.broadcast(ctx, logger, tx, expiresAt)
	record.RetryCount = attempts - 1

	t := &tracked{record: record, tx: tx, terminal: make(chan struct{})}

	// The caller's deadline may have cut the broadcast short; the record
	// still has to be kept.
	persistCtx := context.WithoutCancel(ctx)
	if s.store != nil {
		if err := s.store.Save(persistCtx, record.Clone()); err != nil {
			logger.ErrorContext(ctx, "failed to persist submission", "error", err)
		}
	}

	var rejected *model.RejectedError
	if errors.As(sendErr, &rejected) {
		logger.WarnContext(ctx, "transaction rejected", "reason", rejected.Reason)
		s.finish(persistCtx, t, model.StateFailed, rejected.Reason)
		s.register(t)
		return t.snapshot(), sendErr
	}

	logger.InfoContext(ctx, "transaction submitted",
		"from", record.Sender.String(),
		"to", record.Recipient.String(),
		"lamports", record.Lamports,
		"retry_count", record.RetryCount,
	)
	s.startTracking(t)
	s.register(t)

	if sendErr != nil {
		if errors.Is(sendErr, model.ErrNetwork) {
			sendErr = fmt.Errorf("%w after %d attempts: %v", model.ErrRetriesExhausted, attempts, sendErr)
		}
		return t.snapshot(), sendErr
	}
	return t.snapshot(), nil
}

// broadcast sends tx until it is acknowledged or rejected, or attempts run
// out. It returns the number of attempts made.
func (s *Submitter) broadcast(ctx context.Context, logger *slog.Logger, tx *solana.Transaction, expiresAt time.Time) (int, error) {
	delay := s.retryDelay
	var lastErr error

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		_, err := s.ledger.Submit(ctx, tx)
		switch {
		case err == nil:
			s.metrics.RecordSubmitAttempt("ok")
			return attempt, nil
		case errors.Is(err, model.ErrRejectedByNetwork):
			s.metrics.RecordSubmitAttempt("rejected")
			return attempt, err
		}

		s.metrics.RecordSubmitAttempt("network_error")
		if ctx.Err() != nil {
			return attempt, ctx.Err()
		}
		lastErr = err
		if attempt == s.maxAttempts || !s.now().Before(expiresAt) {
			return attempt, lastErr
		}

		logger.WarnContext(ctx, "broadcast not acknowledged, resubmitting",
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)
		select {
		case <-ctx.Done():
			return attempt, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > s.maxRetryDelay {
			delay = s.maxRetryDelay
		}
	}
	return s.maxAttempts, lastErr
}

// Await blocks until id is terminal, its tracking stops, or ctx is done.
// The current state is returned in every case.
func (s *Submitter) Await(ctx context.Context, id solana.Signature) (model.SubmissionState, error) {
	t, err := s.lookup(id)
	if err != nil {
		if rec, getErr := s.fromStore(ctx, id); getErr == nil && rec.State.Terminal() {
			return rec.State, nil
		}
		return "", err
	}

	t.mu.Lock()
	done := t.done
	t.mu.Unlock()

	select {
	case <-t.terminal:
		return t.state(), nil
	case <-done:
		s.expireIfStopped(ctx, t)
		if state := t.state(); state.Terminal() {
			return state, nil
		}
		return model.StatePending, model.ErrTrackingStopped
	case <-ctx.Done():
		return t.state(), ctx.Err()
	}
}

// Cancel stops local tracking of id. The broadcast itself cannot be recalled.
func (s *Submitter) Cancel(id solana.Signature) error {
	t, err := s.lookup(id)
	if err != nil {
		return err
	}
	t.stop()
	return nil
}

// CancelSender stops tracking every pending submission sent from address.
func (s *Submitter) CancelSender(address solana.PublicKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tracked {
		if t.sender().Equals(address) {
			t.stop()
		}
	}
}

// CancelAll stops all tracking.
func (s *Submitter) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tracked {
		t.stop()
	}
}

// Close stops tracking and waits for the trackers to exit.
func (s *Submitter) Close() {
	s.CancelAll()
	s.cancel()
	s.wg.Wait()
}

// Rebroadcast resends the same signed transaction. It is refused for
// terminal records and once the freshness window has passed. Tracking that
// was cancelled is resumed.
func (s *Submitter) Rebroadcast(ctx context.Context, id solana.Signature) (*model.SubmissionRecord, error) {
	t, err := s.lookup(id)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	if t.record.State.Terminal() {
		t.mu.Unlock()
		return nil, model.ErrTerminalRecord
	}
	expiresAt := t.record.ExpiresAt
	t.mu.Unlock()

	if !s.now().Before(expiresAt) {
		s.expireIfStopped(ctx, t)
		return nil, model.ErrExpired
	}

	_, err = s.ledger.Submit(ctx, t.tx)
	var rejected *model.RejectedError
	switch {
	case errors.As(err, &rejected):
		s.metrics.RecordSubmitAttempt("rejected")
		s.finish(ctx, t, model.StateFailed, rejected.Reason)
		return t.snapshot(), err
	case err != nil:
		s.metrics.RecordSubmitAttempt("network_error")
	default:
		s.metrics.RecordSubmitAttempt("ok")
	}

	t.mu.Lock()
	t.record.RetryCount++
	t.record.UpdatedAt = s.now()
	update := t.record.Clone()
	t.mu.Unlock()
	if s.store != nil {
		if err := s.store.Update(ctx, update); err != nil {
			s.logger.ErrorContext(ctx, "failed to persist submission", "tx_id", id.String(), "error", err)
		}
	}

	s.startTracking(t)
	return t.snapshot(), err
}

// Record returns a copy of the record for id.
func (s *Submitter) Record(ctx context.Context, id solana.Signature) (*model.SubmissionRecord, error) {
	if t, err := s.lookup(id); err == nil {
		s.expireIfStopped(ctx, t)
		return t.snapshot(), nil
	}
	return s.fromStore(ctx, id)
}

// Records returns every record of this session, oldest first.
func (s *Submitter) Records() []*model.SubmissionRecord {
	s.mu.Lock()
	all := make([]*tracked, 0, len(s.tracked))
	for _, t := range s.tracked {
		all = append(all, t)
	}
	s.mu.Unlock()

	out := make([]*model.SubmissionRecord, 0, len(all))
	for _, t := range all {
		s.expireIfStopped(context.Background(), t)
		out = append(out, t.snapshot())
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].SubmittedAt.Before(out[j].SubmittedAt)
	})
	return out
}

// register makes t visible to lookups. Tracking has already started, or t
// is terminal.
func (s *Submitter) register(t *tracked) {
	s.mu.Lock()
	s.tracked[t.id()] = t
	s.mu.Unlock()
}

func (s *Submitter) lookup(id solana.Signature) (*tracked, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tracked[id]
	if !ok {
		return nil, model.ErrUnknownRecord
	}
	return t, nil
}

func (s *Submitter) fromStore(ctx context.Context, id solana.Signature) (*model.SubmissionRecord, error) {
	if s.store == nil {
		return nil, model.ErrUnknownRecord
	}
	return s.store.Get(ctx, id)
}

// finish moves t to a terminal state once. Later calls are ignored.
func (s *Submitter) finish(ctx context.Context, t *tracked, state model.SubmissionState, reason string) {
	t.mu.Lock()
	if t.record.State.Terminal() {
		t.mu.Unlock()
		return
	}
	now := s.now()
	t.record.State = state
	t.record.Reason = reason
	t.record.UpdatedAt = now
	record := t.record.Clone()
	t.mu.Unlock()
	defer close(t.terminal)

	// Outcome delivery must not depend on a caller that already gave up.
	ctx = context.WithoutCancel(ctx)

	s.metrics.RecordTerminal(string(state))
	if state == model.StateConfirmed {
		s.metrics.RecordConfirmationLatency(now.Sub(record.SubmittedAt).Seconds())
	}

	logger := s.logger.With("tx_id", record.ID.String(), "request_id", record.RequestID)
	logger.InfoContext(ctx, "submission finished", "state", state, "reason", reason)

	if s.store != nil {
		if err := s.store.Update(ctx, record); err != nil {
			logger.ErrorContext(ctx, "failed to persist outcome", "error", err)
		}
	}
	if s.notifier != nil {
		if err := s.notifier.PublishOutcome(ctx, record); err != nil {
			logger.WarnContext(ctx, "failed to publish outcome", "error", err)
		}
	}
	if s.onTerminal != nil {
		s.onTerminal(*record)
	}
}
