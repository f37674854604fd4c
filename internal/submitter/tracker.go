package submitter

import (
	"context"
	"sync"
	"time"

	"github.com/AlexZinkM/solwallet/internal/model"

	"github.com/gagliardetto/solana-go"
)

const expiredReason = "blockhash expired before confirmation"

// tracked is one submission and its polling goroutine.
type tracked struct {
	mu       sync.Mutex
	record   *model.SubmissionRecord
	tx       *solana.Transaction
	cancel   context.CancelFunc
	done     chan struct{} // closed when the current tracker exits
	terminal chan struct{} // closed once the record is terminal
}

func (t *tracked) snapshot() *model.SubmissionRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.record.Clone()
}

func (t *tracked) state() model.SubmissionState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.record.State
}

func (t *tracked) sender() solana.PublicKey {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.record.Sender
}

func (t *tracked) stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		t.cancel()
	}
}

func (t *tracked) id() solana.Signature {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.record.ID
}

func (t *tracked) runningLocked() bool {
	if t.done == nil {
		return false
	}
	select {
	case <-t.done:
		return false
	default:
		return true
	}
}

// step decides the state after one poll finished at 'at'.
// A confirmation seen at or after the deadline does not count.
// An on-chain failure is final whenever it is seen.
func step(obs model.StatusObservation, pollErr error, at, expiresAt time.Time) (model.SubmissionState, string) {
	if pollErr == nil && obs.Status == model.ChainFailed {
		return model.StateFailed, obs.Reason
	}
	if !at.Before(expiresAt) {
		return model.StateExpired, expiredReason
	}
	if pollErr == nil && obs.Status == model.ChainConfirmed {
		return model.StateConfirmed, ""
	}
	return model.StatePending, ""
}

// startTracking starts a tracker for t unless one is running or t is
// terminal.
func (s *Submitter) startTracking(t *tracked) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.record.State.Terminal() || t.runningLocked() {
		return
	}

	ctx, cancel := context.WithCancel(s.ctx)
	done := make(chan struct{})
	t.cancel = cancel
	t.done = done

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(done)
		defer cancel()
		s.track(ctx, t)
	}()
}

// expireIfStopped finishes a pending record as Expired when nothing tracks
// it any more and its window has passed.
func (s *Submitter) expireIfStopped(ctx context.Context, t *tracked) {
	t.mu.Lock()
	stale := !t.record.State.Terminal() && !t.runningLocked() && !s.now().Before(t.record.ExpiresAt)
	t.mu.Unlock()
	if stale {
		s.finish(ctx, t, model.StateExpired, expiredReason)
	}
}

// track polls until the record is terminal or ctx is cancelled. The interval
// doubles up to maxPollInterval and never overshoots the deadline.
func (s *Submitter) track(ctx context.Context, t *tracked) {
	rec := t.snapshot()
	logger := s.logger.With("tx_id", rec.ID.String(), "request_id", rec.RequestID)

	s.metrics.TrackingStarted()
	defer s.metrics.TrackingStopped()

	interval := s.pollInterval
	timer := time.NewTimer(s.nextWait(interval, rec.ExpiresAt))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.DebugContext(ctx, "tracking stopped", "state", t.state())
			return
		case <-timer.C:
		}

		var (
			obs model.StatusObservation
			err error
		)
		if s.now().Before(rec.ExpiresAt) {
			obs, err = s.ledger.PollStatus(ctx, rec.ID)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				s.metrics.RecordPoll("error")
				logger.WarnContext(ctx, "status poll failed", "error", err)
			} else {
				s.metrics.RecordPoll(pollLabel(obs.Status))
			}
		}

		state, reason := step(obs, err, s.now(), rec.ExpiresAt)
		if state.Terminal() {
			s.finish(ctx, t, state, reason)
			return
		}

		interval *= 2
		if interval > s.maxPollInterval {
			interval = s.maxPollInterval
		}
		timer.Reset(s.nextWait(interval, rec.ExpiresAt))
	}
}

func (s *Submitter) nextWait(interval time.Duration, expiresAt time.Time) time.Duration {
	if remaining := expiresAt.Sub(s.now()); remaining < interval {
		if remaining < 0 {
			return 0
		}
		return remaining
	}
	return interval
}

func pollLabel(status model.ChainStatus) string {
	switch status {
	case model.ChainProcessed:
		return "processed"
	case model.ChainConfirmed:
		return "confirmed"
	case model.ChainFailed:
		return "failed"
	default:
		return "unknown"
	}
}
