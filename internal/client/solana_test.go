package client

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/AlexZinkM/solwallet/internal/model"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockRPCClient implements RPCClient for testing.
// Each method pops the next scripted error; nil means success.
type mockRPCClient struct {
	balance     uint64
	account     *rpc.Account
	blockhash   solana.Hash
	sendSig     solana.Signature
	statuses    []*rpc.SignatureStatusesResult
	errs        []error
	calls       map[string]int
	lastTxOpts  rpc.TransactionOpts
	blockOnCall bool
}

func (m *mockRPCClient) next(method string) error {
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[method]++
	if len(m.errs) == 0 {
		return nil
	}
	err := m.errs[0]
	m.errs = m.errs[1:]
	return err
}

func (m *mockRPCClient) GetBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetBalanceResult, error) {
	if m.blockOnCall {
		<-ctx.Done()
		m.next("getBalance")
		return nil, ctx.Err()
	}
	if err := m.next("getBalance"); err != nil {
		return nil, err
	}
	res := &rpc.GetBalanceResult{Value: m.balance}
	res.Context.Slot = 42
	return res, nil
}

func (m *mockRPCClient) GetAccountInfoWithOpts(ctx context.Context, account solana.PublicKey, opts *rpc.GetAccountInfoOpts) (*rpc.GetAccountInfoResult, error) {
	if err := m.next("getAccountInfo"); err != nil {
		return nil, err
	}
	if m.account == nil {
		return nil, rpc.ErrNotFound
	}
	return &rpc.GetAccountInfoResult{Value: m.account}, nil
}

func (m *mockRPCClient) GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error) {
	if err := m.next("getLatestBlockhash"); err != nil {
		return nil, err
	}
	return &rpc.GetLatestBlockhashResult{
		Value: &rpc.LatestBlockhashResult{Blockhash: m.blockhash, LastValidBlockHeight: 1150},
	}, nil
}

func (m *mockRPCClient) SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error) {
	m.lastTxOpts = opts
	if err := m.next("sendTransaction"); err != nil {
		return solana.Signature{}, err
	}
	return m.sendSig, nil
}

func (m *mockRPCClient) GetSignatureStatuses(ctx context.Context, search bool, sigs ...solana.Signature) (*rpc.GetSignatureStatusesResult, error) {
	if err := m.next("getSignatureStatuses"); err != nil {
		return nil, err
	}
	return &rpc.GetSignatureStatusesResult{Value: m.statuses}, nil
}

var testAddress = solana.PrivateKey(ed25519.NewKeyFromSeed(bytes.Repeat([]byte{5}, 32))).PublicKey()

func newTestClient(mock *mockRPCClient, opts ...Option) *SolanaClient {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts = append([]Option{WithRetry(3, time.Millisecond, 4*time.Millisecond)}, opts...)
	return NewSolanaClient(mock, logger, opts...)
}

func TestGetBalance(t *testing.T) {
	mock := &mockRPCClient{balance: 1000}
	c := newTestClient(mock)

	account, err := c.GetBalance(context.Background(), testAddress)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), account.Lamports)
	assert.Equal(t, uint64(42), account.Slot)
	assert.Equal(t, testAddress, account.Address)
	assert.False(t, account.ObservedAt.IsZero())
}

func TestGetBalance_RetriesTransientErrors(t *testing.T) {
	mock := &mockRPCClient{
		balance: 7,
		errs:    []error{errors.New("connection reset by peer"), errors.New("i/o timeout")},
	}
	c := newTestClient(mock)

	account, err := c.GetBalance(context.Background(), testAddress)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), account.Lamports)
	assert.Equal(t, 3, mock.calls["getBalance"])
}

func TestGetBalance_RetriesExhausted(t *testing.T) {
	mock := &mockRPCClient{}
	for i := 0; i < 10; i++ {
		mock.errs = append(mock.errs, errors.New("connection refused"))
	}
	c := newTestClient(mock)

	_, err := c.GetBalance(context.Background(), testAddress)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrRetriesExhausted)
	assert.ErrorIs(t, err, model.ErrNetwork)
	assert.Equal(t, 4, mock.calls["getBalance"])
}

func TestGetBalance_NodeRejectionNotRetried(t *testing.T) {
	mock := &mockRPCClient{
		errs: []error{&jsonrpc.RPCError{Code: -32602, Message: "Invalid param"}},
	}
	c := newTestClient(mock)

	_, err := c.GetBalance(context.Background(), testAddress)
	assert.ErrorIs(t, err, model.ErrRejectedByNetwork)
	assert.Equal(t, 1, mock.calls["getBalance"])
}

func TestGetBalance_RetriesNodeLagCodes(t *testing.T) {
	codes := []int{
		codeBlockNotAvailable,
		codeNodeUnhealthy,
		codeBlockStatusNotAvailable,
		codeMinContextSlotNotReached,
	}
	for _, code := range codes {
		mock := &mockRPCClient{
			balance: 42,
			errs:    []error{&jsonrpc.RPCError{Code: code, Message: "node is behind"}},
		}
		account, err := newTestClient(mock).GetBalance(context.Background(), testAddress)
		require.NoError(t, err, "code %d", code)
		assert.Equal(t, uint64(42), account.Lamports)
		assert.Equal(t, 2, mock.calls["getBalance"], "code %d", code)
	}
}

func TestGetBalance_CallTimeoutIsTransient(t *testing.T) {
	mock := &mockRPCClient{blockOnCall: true}
	c := newTestClient(mock, WithTimeout(5*time.Millisecond), WithRetry(1, time.Millisecond, time.Millisecond))

	_, err := c.GetBalance(context.Background(), testAddress)
	assert.ErrorIs(t, err, model.ErrRetriesExhausted)
	assert.Equal(t, 2, mock.calls["getBalance"])
}

func TestGetBalance_MissingAccount(t *testing.T) {
	t.Run("strict", func(t *testing.T) {
		c := newTestClient(&mockRPCClient{}, WithMissingAccountAsZero(false))
		_, err := c.GetBalance(context.Background(), testAddress)
		assert.ErrorIs(t, err, model.ErrAddressNotFound)
	})

	t.Run("strict funded", func(t *testing.T) {
		c := newTestClient(&mockRPCClient{account: &rpc.Account{Lamports: 55}}, WithMissingAccountAsZero(false))
		account, err := c.GetBalance(context.Background(), testAddress)
		require.NoError(t, err)
		assert.Equal(t, uint64(55), account.Lamports)
	})

	t.Run("default zero", func(t *testing.T) {
		c := newTestClient(&mockRPCClient{})
		account, err := c.GetBalance(context.Background(), testAddress)
		require.NoError(t, err)
		assert.Zero(t, account.Lamports)
	})
}

func TestGetFreshnessToken(t *testing.T) {
	hash := solana.Hash{0xAA, 0xBB, 0xCC}
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := newTestClient(&mockRPCClient{blockhash: hash},
		WithClock(func() time.Time { return now }),
		WithBlockhashValidity(time.Minute),
	)

	token, err := c.GetFreshnessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, hash, token.Blockhash)
	assert.Equal(t, uint64(1150), token.LastValidBlockHeight)
	assert.Equal(t, now.Add(time.Minute), token.ExpiresAt)
	assert.False(t, token.Expired(now))
	assert.True(t, token.Expired(now.Add(time.Minute)))
}

func TestSubmit_ClassifiesErrors(t *testing.T) {
	sig := solana.Signature{1, 2, 3}

	t.Run("ack", func(t *testing.T) {
		mock := &mockRPCClient{sendSig: sig}
		got, err := newTestClient(mock).Submit(context.Background(), &solana.Transaction{})
		require.NoError(t, err)
		assert.Equal(t, sig, got)
		assert.False(t, mock.lastTxOpts.SkipPreflight)
	})

	t.Run("no ack", func(t *testing.T) {
		mock := &mockRPCClient{errs: []error{errors.New("EOF")}}
		_, err := newTestClient(mock).Submit(context.Background(), &solana.Transaction{})
		assert.ErrorIs(t, err, model.ErrNetwork)
		assert.Equal(t, 1, mock.calls["sendTransaction"], "submit is never retried by the client")
	})

	t.Run("rejected", func(t *testing.T) {
		mock := &mockRPCClient{errs: []error{&jsonrpc.RPCError{
			Code:    -32002,
			Message: "Transaction simulation failed: Attempt to debit an account but found no record of a prior credit.",
		}}}
		_, err := newTestClient(mock).Submit(context.Background(), &solana.Transaction{})
		require.ErrorIs(t, err, model.ErrRejectedByNetwork)
		var rejected *model.RejectedError
		require.ErrorAs(t, err, &rejected)
		assert.Equal(t, -32002, rejected.Code)
		assert.Contains(t, rejected.Reason, "simulation failed")
	})

	t.Run("node unhealthy is transient", func(t *testing.T) {
		mock := &mockRPCClient{errs: []error{&jsonrpc.RPCError{Code: codeNodeUnhealthy, Message: "Node is behind"}}}
		_, err := newTestClient(mock).Submit(context.Background(), &solana.Transaction{})
		assert.ErrorIs(t, err, model.ErrNetwork)
	})
}

func TestPollStatus(t *testing.T) {
	sig := solana.Signature{9}

	cases := []struct {
		name       string
		commitment rpc.CommitmentType
		statuses   []*rpc.SignatureStatusesResult
		want       model.ChainStatus
	}{
		{"unknown", rpc.CommitmentConfirmed, []*rpc.SignatureStatusesResult{nil}, model.ChainUnknown},
		{"empty", rpc.CommitmentConfirmed, nil, model.ChainUnknown},
		{"processed", rpc.CommitmentConfirmed, []*rpc.SignatureStatusesResult{{Slot: 5, ConfirmationStatus: rpc.ConfirmationStatusProcessed}}, model.ChainProcessed},
		{"confirmed", rpc.CommitmentConfirmed, []*rpc.SignatureStatusesResult{{Slot: 5, ConfirmationStatus: rpc.ConfirmationStatusConfirmed}}, model.ChainConfirmed},
		{"finalized counts as confirmed", rpc.CommitmentConfirmed, []*rpc.SignatureStatusesResult{{Slot: 5, ConfirmationStatus: rpc.ConfirmationStatusFinalized}}, model.ChainConfirmed},
		{"confirmed short of finalized", rpc.CommitmentFinalized, []*rpc.SignatureStatusesResult{{Slot: 5, ConfirmationStatus: rpc.ConfirmationStatusConfirmed}}, model.ChainProcessed},
		{"failed", rpc.CommitmentConfirmed, []*rpc.SignatureStatusesResult{{Slot: 5, Err: map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}}}}, model.ChainFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mock := &mockRPCClient{statuses: tc.statuses}
			obs, err := newTestClient(mock, WithCommitment(tc.commitment)).PollStatus(context.Background(), sig)
			require.NoError(t, err)
			assert.Equal(t, tc.want, obs.Status)
			if tc.want == model.ChainFailed {
				assert.Contains(t, obs.Reason, "InstructionError")
			}
		})
	}
}

func TestPollStatus_SingleShot(t *testing.T) {
	mock := &mockRPCClient{errs: []error{errors.New("connection reset")}}
	_, err := newTestClient(mock).PollStatus(context.Background(), solana.Signature{})
	assert.ErrorIs(t, err, model.ErrNetwork)
	assert.Equal(t, 1, mock.calls["getSignatureStatuses"])
}
