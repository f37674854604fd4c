package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/AlexZinkM/solwallet/internal/metrics"
	"github.com/AlexZinkM/solwallet/internal/model"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
)

// Default configuration values.
const (
	DefaultTimeout           = 15 * time.Second
	DefaultMaxRetries        = 3
	DefaultRetryDelay        = 500 * time.Millisecond
	DefaultMaxRetryDelay     = 8 * time.Second
	DefaultBlockhashValidity = 60 * time.Second

	// JSON-RPC codes a node returns while it is behind; worth retrying.
	codeBlockNotAvailable        = -32004
	codeNodeUnhealthy            = -32005
	codeBlockStatusNotAvailable  = -32014
	codeMinContextSlotNotReached = -32016
)

// RPCClient is the subset of Solana RPC the wallet needs.
// *rpc.Client satisfies it; tests and the simulator provide their own.
type RPCClient interface {
	GetBalance(
		ctx context.Context,
		account solana.PublicKey,
		commitment rpc.CommitmentType,
	) (*rpc.GetBalanceResult, error)

	GetAccountInfoWithOpts(
		ctx context.Context,
		account solana.PublicKey,
		opts *rpc.GetAccountInfoOpts,
	) (*rpc.GetAccountInfoResult, error)

	GetLatestBlockhash(
		ctx context.Context,
		commitment rpc.CommitmentType,
	) (*rpc.GetLatestBlockhashResult, error)

	SendTransactionWithOpts(
		ctx context.Context,
		transaction *solana.Transaction,
		opts rpc.TransactionOpts,
	) (solana.Signature, error)

	GetSignatureStatuses(
		ctx context.Context,
		searchTransactionHistory bool,
		transactionSignatures ...solana.Signature,
	) (*rpc.GetSignatureStatusesResult, error)
}

// SolanaClient queries account state and broadcasts transactions.
// Reads are retried on transient errors; Submit and PollStatus are single shots.
type SolanaClient struct {
	rpc     RPCClient
	logger  *slog.Logger
	metrics *metrics.Metrics

	commitment           rpc.CommitmentType
	timeout              time.Duration
	maxRetries           int
	retryDelay           time.Duration
	maxRetryDelay        time.Duration
	blockhashValidity    time.Duration
	missingAccountAsZero bool
	now                  func() time.Time
}

// Option configures SolanaClient.
type Option func(*SolanaClient)

// WithCommitment sets the commitment level used for reads and confirmation.
func WithCommitment(c rpc.CommitmentType) Option {
	return func(s *SolanaClient) {
		s.commitment = c
	}
}

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *SolanaClient) {
		s.timeout = d
	}
}

// WithRetry sets the read retry policy.
func WithRetry(maxRetries int, delay, maxDelay time.Duration) Option {
	return func(s *SolanaClient) {
		s.maxRetries = maxRetries
		s.retryDelay = delay
		s.maxRetryDelay = maxDelay
	}
}

// WithBlockhashValidity sets how long a fetched blockhash is considered usable.
func WithBlockhashValidity(d time.Duration) Option {
	return func(s *SolanaClient) {
		s.blockhashValidity = d
	}
}

// WithMissingAccountAsZero controls whether a never-funded address reads as
// balance 0 (true) or fails with model.ErrAddressNotFound (false).
func WithMissingAccountAsZero(v bool) Option {
	return func(s *SolanaClient) {
		s.missingAccountAsZero = v
	}
}

// WithMetrics records RPC metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *SolanaClient) {
		s.metrics = m
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *SolanaClient) {
		s.now = now
	}
}

// NewRPC creates the solana-go RPC client for url.
func NewRPC(url string) *rpc.Client {
	return rpc.New(url)
}

// NewSolanaClient creates a ledger client on top of rpcClient.
func NewSolanaClient(rpcClient RPCClient, logger *slog.Logger, opts ...Option) *SolanaClient {
	c := &SolanaClient{
		rpc:                  rpcClient,
		logger:               logger,
		commitment:           rpc.CommitmentConfirmed,
		timeout:              DefaultTimeout,
		maxRetries:           DefaultMaxRetries,
		retryDelay:           DefaultRetryDelay,
		maxRetryDelay:        DefaultMaxRetryDelay,
		blockhashValidity:    DefaultBlockhashValidity,
		missingAccountAsZero: true,
		now:                  time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetBalance gets the balance in lamports for address.
func (c *SolanaClient) GetBalance(ctx context.Context, address solana.PublicKey) (*model.Account, error) {
	account := &model.Account{Address: address}

	if c.missingAccountAsZero {
		err := c.withRetry(ctx, "getBalance", func(ctx context.Context) error {
			res, err := c.rpc.GetBalance(ctx, address, c.commitment)
			if err != nil {
				return err
			}
			account.Lamports = res.Value
			account.Slot = res.Context.Slot
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to get balance: %w", err)
		}
		account.ObservedAt = c.now()
		return account, nil
	}

	err := c.withRetry(ctx, "getAccountInfo", func(ctx context.Context) error {
		res, err := c.rpc.GetAccountInfoWithOpts(ctx, address, &rpc.GetAccountInfoOpts{
			Commitment: c.commitment,
		})
		if err != nil {
			if errors.Is(err, rpc.ErrNotFound) {
				return fmt.Errorf("%w: %s", model.ErrAddressNotFound, address)
			}
			return err
		}
		if res == nil || res.Value == nil {
			return fmt.Errorf("%w: %s", model.ErrAddressNotFound, address)
		}
		account.Lamports = res.Value.Lamports
		account.Slot = res.Context.Slot
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	account.ObservedAt = c.now()
	return account, nil
}

// GetFreshnessToken fetches the latest blockhash.
func (c *SolanaClient) GetFreshnessToken(ctx context.Context) (model.FreshnessToken, error) {
	var token model.FreshnessToken
	err := c.withRetry(ctx, "getLatestBlockhash", func(ctx context.Context) error {
		res, err := c.rpc.GetLatestBlockhash(ctx, c.commitment)
		if err != nil {
			return err
		}
		if res == nil || res.Value == nil {
			return errors.New("empty blockhash response")
		}
		token.Blockhash = res.Value.Blockhash
		token.LastValidBlockHeight = res.Value.LastValidBlockHeight
		return nil
	})
	if err != nil {
		return model.FreshnessToken{}, fmt.Errorf("failed to get recent blockhash: %w", err)
	}
	token.ObservedAt = c.now()
	token.ExpiresAt = token.ObservedAt.Add(c.blockhashValidity)
	return token, nil
}

// Submit broadcasts a signed transaction once. A model.ErrNetwork error
// means no acknowledgement: the node may or may not have it.
func (c *SolanaClient) Submit(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	sig, err := c.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       false, // let the node simulate before accepting
		PreflightCommitment: c.commitment,
	})
	c.record("sendTransaction", err, start)
	if err != nil {
		return solana.Signature{}, classify(err)
	}
	return sig, nil
}

// PollStatus performs one status lookup for signature.
func (c *SolanaClient) PollStatus(ctx context.Context, signature solana.Signature) (model.StatusObservation, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	res, err := c.rpc.GetSignatureStatuses(ctx, false, signature)
	c.record("getSignatureStatuses", err, start)
	if err != nil {
		return model.StatusObservation{}, classify(err)
	}
	if res == nil || len(res.Value) == 0 || res.Value[0] == nil {
		return model.StatusObservation{Status: model.ChainUnknown}, nil
	}

	st := res.Value[0]
	obs := model.StatusObservation{Slot: st.Slot}
	switch {
	case st.Err != nil:
		obs.Status = model.ChainFailed
		obs.Reason = fmt.Sprint(st.Err)
	case c.reached(st.ConfirmationStatus):
		obs.Status = model.ChainConfirmed
	default:
		obs.Status = model.ChainProcessed
	}
	return obs, nil
}

// reached reports whether status satisfies the client's commitment.
func (c *SolanaClient) reached(status rpc.ConfirmationStatusType) bool {
	rank := map[rpc.ConfirmationStatusType]int{
		rpc.ConfirmationStatusProcessed: 1,
		rpc.ConfirmationStatusConfirmed: 2,
		rpc.ConfirmationStatusFinalized: 3,
	}
	want := map[rpc.CommitmentType]int{
		rpc.CommitmentProcessed: 1,
		rpc.CommitmentConfirmed: 2,
		rpc.CommitmentFinalized: 3,
	}[c.commitment]
	return rank[status] >= want && rank[status] > 0
}

// withRetry runs fn with the per-call timeout, retrying transient errors with
// exponential backoff.
func (c *SolanaClient) withRetry(ctx context.Context, method string, fn func(context.Context) error) error {
	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.metrics.RecordRPCRetry(method)
			c.logger.WarnContext(ctx, "retrying ledger call",
				"method", method,
				"attempt", attempt+1,
				"backoff", delay,
				"error", lastErr,
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
			if delay > c.maxRetryDelay {
				delay = c.maxRetryDelay
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		start := time.Now()
		err := fn(callCtx)
		cancel()
		c.record(method, err, start)
		if err == nil {
			return nil
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
		err = classify(err)
		if !errors.Is(err, model.ErrNetwork) {
			return err
		}
		lastErr = err
	}

	return fmt.Errorf("%w after %d attempts: %v", model.ErrRetriesExhausted, c.maxRetries+1, lastErr)
}

func (c *SolanaClient) record(method string, err error, start time.Time) {
	status := "success"
	if err != nil {
		status = "error"
	}
	c.metrics.RecordRPCCall(method, status, time.Since(start).Seconds())
}

// classify sorts an RPC error into the wallet's taxonomy. Errors already
// classified pass through.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, model.ErrNetwork) ||
		errors.Is(err, model.ErrRejectedByNetwork) ||
		errors.Is(err, model.ErrAddressNotFound) {
		return err
	}

	var rpcErr *jsonrpc.RPCError
	if errors.As(err, &rpcErr) {
		if transient(rpcErr.Code) {
			return fmt.Errorf("%w: %v", model.ErrNetwork, err)
		}
		return &model.RejectedError{Code: rpcErr.Code, Reason: rpcErr.Message}
	}
	return fmt.Errorf("%w: %v", model.ErrNetwork, err)
}

func transient(code int) bool {
	switch code {
	case codeBlockNotAvailable, codeNodeUnhealthy, codeBlockStatusNotAvailable, codeMinContextSlotNotReached:
		return true
	}
	return false
}
