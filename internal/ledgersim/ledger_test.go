package ledgersim

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"errors"
	"testing"

	"github.com/AlexZinkM/solwallet/internal/model"
	"github.com/AlexZinkM/solwallet/internal/transfer"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type keySet map[solana.PublicKey]bool

func (k keySet) Has(address solana.PublicKey) bool { return k[address] }

var (
	payerKey  = solana.PrivateKey(ed25519.NewKeyFromSeed(bytes.Repeat([]byte{3}, 32)))
	payer     = payerKey.PublicKey()
	recipient = solana.PrivateKey(ed25519.NewKeyFromSeed(bytes.Repeat([]byte{4}, 32))).PublicKey()
)

func signedTransfer(t *testing.T, l *Ledger, lamports int64, key solana.PrivateKey) *solana.Transaction {
	t.Helper()
	res, err := l.GetLatestBlockhash(context.Background(), rpc.CommitmentConfirmed)
	require.NoError(t, err)

	b := transfer.NewBuilder(keySet{payer: true}, l.Fee())
	u, err := b.Build(model.TransferRequest{
		Sender:    payer.String(),
		Recipient: recipient.String(),
		Amount:    lamports,
	}, model.FreshnessToken{Blockhash: res.Value.Blockhash}, nil)
	require.NoError(t, err)

	msg, err := u.Consume()
	require.NoError(t, err)
	sig, err := key.Sign(msg)
	require.NoError(t, err)
	return u.Signed(sig)
}

func TestSend_AppliesTransfer(t *testing.T) {
	l := New()
	l.Fund(payer, 1_000_000)
	tx := signedTransfer(t, l, 300, payerKey)

	sig, err := l.SendTransactionWithOpts(context.Background(), tx, rpc.TransactionOpts{})
	require.NoError(t, err)
	assert.Equal(t, tx.Signatures[0], sig)

	assert.Equal(t, uint64(1_000_000-300-DefaultFee), l.Balance(payer))
	assert.Equal(t, uint64(300), l.Balance(recipient))
}

func TestSend_Idempotent(t *testing.T) {
	l := New()
	l.Fund(payer, 1_000_000)
	tx := signedTransfer(t, l, 300, payerKey)

	for i := 0; i < 3; i++ {
		_, err := l.SendTransactionWithOpts(context.Background(), tx, rpc.TransactionOpts{})
		require.NoError(t, err)
	}
	assert.Equal(t, uint64(300), l.Balance(recipient))
}

func TestSend_BadSignatureRejected(t *testing.T) {
	l := New()
	l.Fund(payer, 1_000_000)
	other := solana.PrivateKey(ed25519.NewKeyFromSeed(bytes.Repeat([]byte{8}, 32)))
	tx := signedTransfer(t, l, 300, other)

	_, err := l.SendTransactionWithOpts(context.Background(), tx, rpc.TransactionOpts{})
	var rpcErr *jsonrpc.RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Contains(t, rpcErr.Message, "signature verification")
}

func TestSend_ExpiredBlockhashRejected(t *testing.T) {
	l := New()
	l.Fund(payer, 1_000_000)
	tx := signedTransfer(t, l, 300, payerKey)
	l.AdvanceBlocks(blockhashLifetime + 1)

	_, err := l.SendTransactionWithOpts(context.Background(), tx, rpc.TransactionOpts{})
	var rpcErr *jsonrpc.RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Contains(t, rpcErr.Message, "Blockhash not found")
}

func TestSend_InsufficientFunds(t *testing.T) {
	l := New()
	l.Fund(payer, 1000)
	tx := signedTransfer(t, l, 2000, payerKey)

	_, err := l.SendTransactionWithOpts(context.Background(), tx, rpc.TransactionOpts{})
	var rpcErr *jsonrpc.RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, uint64(1000), l.Balance(payer))
}

func TestScriptedOutcomes(t *testing.T) {
	l := New()
	l.Fund(payer, 1_000_000)
	tx := signedTransfer(t, l, 300, payerKey)
	l.ScriptSubmits(Drop, AckLost)

	_, err := l.SendTransactionWithOpts(context.Background(), tx, rpc.TransactionOpts{})
	require.Error(t, err)
	assert.False(t, l.Applied(tx.Signatures[0]))

	_, err = l.SendTransactionWithOpts(context.Background(), tx, rpc.TransactionOpts{})
	require.Error(t, err)
	assert.True(t, l.Applied(tx.Signatures[0]))

	sig, err := l.SendTransactionWithOpts(context.Background(), tx, rpc.TransactionOpts{})
	require.NoError(t, err)
	assert.Equal(t, tx.Signatures[0], sig)
	assert.Equal(t, uint64(300), l.Balance(recipient))
	assert.Equal(t, 3, l.Calls("sendTransaction"))
}

func TestSignatureStatuses(t *testing.T) {
	l := New(WithConfirmAfter(2))
	l.Fund(payer, 1_000_000)
	tx := signedTransfer(t, l, 300, payerKey)
	sig, err := l.SendTransactionWithOpts(context.Background(), tx, rpc.TransactionOpts{})
	require.NoError(t, err)

	unknown := solana.Signature{0x09}
	res, err := l.GetSignatureStatuses(context.Background(), false, sig, unknown)
	require.NoError(t, err)
	require.Len(t, res.Value, 2)
	assert.Equal(t, rpc.ConfirmationStatusProcessed, res.Value[0].ConfirmationStatus)
	assert.Nil(t, res.Value[1])

	res, err = l.GetSignatureStatuses(context.Background(), false, sig)
	require.NoError(t, err)
	assert.Equal(t, rpc.ConfirmationStatusConfirmed, res.Value[0].ConfirmationStatus)
}

func TestFailOnChain(t *testing.T) {
	l := New()
	l.Fund(payer, 1_000_000)
	l.ScriptSubmits(FailOnChain)
	tx := signedTransfer(t, l, 300, payerKey)

	sig, err := l.SendTransactionWithOpts(context.Background(), tx, rpc.TransactionOpts{})
	require.NoError(t, err)

	res, err := l.GetSignatureStatuses(context.Background(), false, sig)
	require.NoError(t, err)
	assert.NotNil(t, res.Value[0].Err)
	assert.Equal(t, uint64(1_000_000-DefaultFee), l.Balance(payer))
	assert.Zero(t, l.Balance(recipient))
}

func TestFailReadsAndOffline(t *testing.T) {
	l := New()
	boom := errors.New("connection reset")
	l.FailReads("getBalance", boom)

	_, err := l.GetBalance(context.Background(), payer, rpc.CommitmentConfirmed)
	assert.ErrorIs(t, err, boom)
	_, err = l.GetBalance(context.Background(), payer, rpc.CommitmentConfirmed)
	assert.NoError(t, err)

	l.SetOffline(true)
	_, err = l.GetLatestBlockhash(context.Background(), rpc.CommitmentConfirmed)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 3, l.TotalCalls())
}

func TestGetAccountInfo_Missing(t *testing.T) {
	l := New()
	_, err := l.GetAccountInfoWithOpts(context.Background(), recipient, nil)
	assert.ErrorIs(t, err, rpc.ErrNotFound)
}
