// Package solana is the wallet session: the single surface presentation
// layers (HTTP, CLI) call into.
package solana

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/AlexZinkM/solwallet/internal/crypto"
	"github.com/AlexZinkM/solwallet/internal/model"
	"github.com/AlexZinkM/solwallet/internal/submitter"
	"github.com/AlexZinkM/solwallet/internal/transfer"
	"github.com/AlexZinkM/solwallet/internal/vault"

	"github.com/gagliardetto/solana-go"
)

// DefaultSendTimeout bounds Send and AwaitConfirmation when no timeout is given.
const DefaultSendTimeout = 90 * time.Second

// Ledger is what the session needs from the ledger client.
type Ledger interface {
	submitter.Ledger
	GetBalance(ctx context.Context, address solana.PublicKey) (*model.Account, error)
	GetFreshnessToken(ctx context.Context) (model.FreshnessToken, error)
}

// Session owns one active keypair at a time and coordinates building,
// signing, submitting and tracking its transfers.
type Session struct {
	vault     *vault.Vault
	ledger    Ledger
	builder   *transfer.Builder
	submitter *submitter.Submitter
	keystore  crypto.Keystore
	logger    *slog.Logger

	fee           uint64
	sendTimeout   time.Duration
	submitterOpts []submitter.Option

	mu     sync.Mutex
	active *solana.PublicKey
	pinned *model.Account
}

// Option configures a Session.
type Option func(*Session)

// WithFee sets the fee assumed when checking a transfer against the balance.
func WithFee(lamports uint64) Option {
	return func(s *Session) {
		s.fee = lamports
	}
}

func WithSendTimeout(d time.Duration) Option {
	return func(s *Session) {
		s.sendTimeout = d
	}
}

func WithKeystore(k crypto.Keystore) Option {
	return func(s *Session) {
		s.keystore = k
	}
}

// WithSubmitter passes options to the session's submitter.
func WithSubmitter(opts ...submitter.Option) Option {
	return func(s *Session) {
		s.submitterOpts = append(s.submitterOpts, opts...)
	}
}

// NewSession creates a session over v and ledger. It has no active key
// until Generate, Import, Use or LoadKeystore is called.
func NewSession(v *vault.Vault, ledger Ledger, logger *slog.Logger, opts ...Option) *Session {
	s := &Session{
		vault:       v,
		ledger:      ledger,
		logger:      logger,
		fee:         5000,
		sendTimeout: DefaultSendTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.builder = transfer.NewBuilder(v, s.fee)
	subOpts := append(s.submitterOpts, submitter.WithTerminalHook(s.onTerminal))
	s.submitter = submitter.New(ledger, v, logger, subOpts...)
	return s
}

// ActiveAddress returns the address of the active key.
func (s *Session) ActiveAddress() (solana.PublicKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return solana.PublicKey{}, model.ErrNoActiveKey
	}
	return *s.active, nil
}

// Balance fetches the active account and pins it for the next Send.
func (s *Session) Balance(ctx context.Context) (*model.Account, error) {
	address, err := s.ActiveAddress()
	if err != nil {
		return nil, err
	}

	account, err := s.ledger.GetBalance(ctx, address)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.active != nil && s.active.Equals(address) {
		pinned := *account
		s.pinned = &pinned
	}
	s.mu.Unlock()
	return account, nil
}

// Send transfers lamports from the active key to recipient and blocks until
// the submission is terminal or timeout elapses. The timeout covers the
// whole call, balance and blockhash lookups and broadcast retries included.
// When it elapses after the broadcast began, the Pending record is returned
// without an error and keeps being tracked; follow it with AwaitConfirmation.
//
// The request is validated against the pinned balance before any network
// call. When nothing is pinned the balance is fetched first.
func (s *Session) Send(ctx context.Context, recipient string, lamports int64, memo string, timeout time.Duration) (*model.SubmissionRecord, error) {
	address, err := s.ActiveAddress()
	if err != nil {
		return nil, err
	}
	req := model.TransferRequest{
		Sender:    address.String(),
		Recipient: recipient,
		Amount:    lamports,
		Memo:      memo,
	}

	known := s.pinnedBalance(address)
	if err := s.builder.Validate(req, known); err != nil {
		return nil, err
	}

	if timeout <= 0 {
		timeout = s.sendTimeout
	}
	sendCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if known == nil {
		account, err := s.Balance(sendCtx)
		if err != nil {
			return nil, fmt.Errorf("failed to get balance: %w", err)
		}
		known = &account.Lamports
		if err := s.builder.Validate(req, known); err != nil {
			return nil, err
		}
	}

	token, err := s.ledger.GetFreshnessToken(sendCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to get blockhash: %w", err)
	}

	unsigned, err := s.builder.Build(req, token, known)
	if err != nil {
		return nil, err
	}

	record, err := s.submitter.Submit(sendCtx, unsigned)
	switch {
	case err == nil:
	case record != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		s.logger.InfoContext(ctx, "send timed out during broadcast, still tracking",
			"tx_id", record.ID.String(),
			"retry_count", record.RetryCount,
			"timeout", timeout,
		)
		return record, nil
	default:
		return record, err
	}
	s.logger.InfoContext(ctx, "transfer submitted",
		"tx_id", record.ID.String(),
		"request_id", record.RequestID,
		"to", recipient,
		"lamports", lamports,
	)

	return s.await(ctx, sendCtx, record.ID, timeout)
}

// AwaitConfirmation waits up to timeout for id to become terminal and
// returns its record. A record still pending at the timeout is returned
// without an error.
func (s *Session) AwaitConfirmation(ctx context.Context, id solana.Signature, timeout time.Duration) (*model.SubmissionRecord, error) {
	if timeout <= 0 {
		timeout = s.sendTimeout
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.await(ctx, waitCtx, id, timeout)
}

// await waits on waitCtx, a deadline-bound child of ctx.
func (s *Session) await(ctx, waitCtx context.Context, id solana.Signature, timeout time.Duration) (*model.SubmissionRecord, error) {
	_, err := s.submitter.Await(waitCtx, id)
	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		s.logger.InfoContext(ctx, "submission still pending", "tx_id", id.String(), "timeout", timeout)
	default:
		record, recErr := s.submitter.Record(ctx, id)
		if recErr != nil {
			return nil, err
		}
		return record, err
	}
	return s.submitter.Record(ctx, id)
}

// Submission returns the record for id.
func (s *Session) Submission(ctx context.Context, id solana.Signature) (*model.SubmissionRecord, error) {
	return s.submitter.Record(ctx, id)
}

// Submissions returns this session's records, oldest first.
func (s *Session) Submissions() []*model.SubmissionRecord {
	return s.submitter.Records()
}

// Rebroadcast resends a pending submission inside its freshness window.
func (s *Session) Rebroadcast(ctx context.Context, id solana.Signature) (*model.SubmissionRecord, error) {
	return s.submitter.Rebroadcast(ctx, id)
}

// CancelTracking stops polling id locally. The transfer itself may still land.
func (s *Session) CancelTracking(id solana.Signature) error {
	return s.submitter.Cancel(id)
}

// Generate creates a new key. It becomes active when no key is.
func (s *Session) Generate() (model.Keypair, error) {
	kp, err := s.vault.Generate()
	if err != nil {
		return model.Keypair{}, err
	}
	s.activateIfNone(kp.Address)
	return kp, nil
}

// Import adds a key from secret bytes. It becomes active when no key is.
func (s *Session) Import(secret []byte) (model.Keypair, error) {
	kp, err := s.vault.Import(secret)
	if err != nil {
		return model.Keypair{}, err
	}
	s.activateIfNone(kp.Address)
	return kp, nil
}

// Use switches the active key. Tracking of the previous key's pending
// submissions stops; their broadcasts are not recalled.
func (s *Session) Use(address solana.PublicKey) error {
	if !s.vault.Has(address) {
		return model.ErrUnknownKey
	}

	s.mu.Lock()
	previous := s.active
	s.active = &address
	s.pinned = nil
	s.mu.Unlock()

	if previous != nil && !previous.Equals(address) {
		s.submitter.CancelSender(*previous)
		s.logger.Info("switched active key", "from", previous.String(), "to", address.String())
	}
	return nil
}

// LoadKeystore decrypts a .cwt file, imports its key and makes it active.
func (s *Session) LoadKeystore(path string, password []byte) (model.Keypair, error) {
	secret, _, err := s.keystore.Load(path, password)
	if err != nil {
		return model.Keypair{}, err
	}
	defer clear(secret)

	kp, err := s.vault.Import(secret)
	if err != nil {
		return model.Keypair{}, err
	}
	if err := s.Use(kp.Address); err != nil {
		return model.Keypair{}, err
	}
	return kp, nil
}

// SaveKeystore encrypts the active key into a new .cwt file.
func (s *Session) SaveKeystore(path string, password []byte) error {
	address, err := s.ActiveAddress()
	if err != nil {
		return err
	}
	return s.vault.Export(address, func(key solana.PrivateKey) error {
		return s.keystore.Save(path, key, password)
	})
}

// Close stops all tracking and wipes the vault.
func (s *Session) Close() {
	s.submitter.Close()
	s.vault.Close()
}

func (s *Session) activateIfNone(address solana.PublicKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		s.active = &address
	}
}

func (s *Session) pinnedBalance(address solana.PublicKey) *uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pinned == nil || !s.pinned.Address.Equals(address) {
		return nil
	}
	lamports := s.pinned.Lamports
	return &lamports
}

// onTerminal drops the pinned balance once a transfer from it settles.
func (s *Session) onTerminal(record model.SubmissionRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pinned != nil && s.pinned.Address.Equals(record.Sender) {
		s.pinned = nil
	}
}
