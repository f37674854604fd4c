// Package ledgersim is an in-process Solana ledger speaking the subset of the
// JSON-RPC contract the wallet uses. It backs tests and the offline demo mode.
package ledgersim

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/AlexZinkM/solwallet/internal/transfer"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
)

// DefaultFee is the per-signature fee charged by the simulated ledger.
const DefaultFee uint64 = 5000

// blockhashLifetime is how many blocks a blockhash stays usable.
const blockhashLifetime = 150

// ErrUnavailable is returned for every call while the ledger is offline.
var ErrUnavailable = errors.New("ledgersim: connection refused")

// Outcome scripts how the next sendTransaction call behaves.
type Outcome int

const (
	// Accept applies the transaction and acknowledges it.
	Accept Outcome = iota
	// Drop loses the request before the ledger sees it.
	Drop
	// AckLost applies the transaction but loses the acknowledgement.
	AckLost
	// Reject refuses the transaction during preflight.
	Reject
	// FailOnChain accepts the transaction, charges the fee and records an
	// execution error instead of moving funds.
	FailOnChain
)

type txState struct {
	slot   uint64
	polls  int
	failed string
}

// Ledger is a simulated ledger. The zero value is not usable; use New.
type Ledger struct {
	mu sync.Mutex

	balances    map[solana.PublicKey]uint64
	txs         map[solana.Signature]*txState
	blockhashes map[solana.Hash]uint64 // blockhash -> last valid height
	current     solana.Hash
	height      uint64
	slot        uint64
	fee         uint64

	outcomes          []Outcome
	readErrs          map[string][]error
	confirmAfterPolls int
	neverConfirm      bool
	offline           bool
	calls             map[string]int
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithFee sets the per-transaction fee.
func WithFee(fee uint64) Option {
	return func(l *Ledger) {
		l.fee = fee
	}
}

// WithConfirmAfter makes a transaction report confirmed on its n-th status poll.
func WithConfirmAfter(polls int) Option {
	return func(l *Ledger) {
		l.confirmAfterPolls = polls
	}
}

// WithNeverConfirm keeps every accepted transaction at processed.
func WithNeverConfirm() Option {
	return func(l *Ledger) {
		l.neverConfirm = true
	}
}

// New creates a ledger at height 1000 with one valid blockhash.
func New(opts ...Option) *Ledger {
	l := &Ledger{
		balances:          make(map[solana.PublicKey]uint64),
		txs:               make(map[solana.Signature]*txState),
		blockhashes:       make(map[solana.Hash]uint64),
		readErrs:          make(map[string][]error),
		calls:             make(map[string]int),
		height:            1000,
		slot:              1000,
		fee:               DefaultFee,
		confirmAfterPolls: 1,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.rotate()
	return l
}

// Fund credits address with lamports.
func (l *Ledger) Fund(address solana.PublicKey, lamports uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[address] += lamports
}

// Balance returns the ledger's view of address.
func (l *Ledger) Balance(address solana.PublicKey) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[address]
}

// Fee returns the per-transaction fee.
func (l *Ledger) Fee() uint64 {
	return l.fee
}

// Calls returns how many times method was invoked.
func (l *Ledger) Calls(method string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[method]
}

// TotalCalls returns the number of RPC calls of any kind.
func (l *Ledger) TotalCalls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, c := range l.calls {
		n += c
	}
	return n
}

// Applied reports whether signature landed on the ledger.
func (l *Ledger) Applied(signature solana.Signature) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.txs[signature]
	return ok
}

// ScriptSubmits queues outcomes for the next sendTransaction calls. Once the
// queue is empty transactions are accepted.
func (l *Ledger) ScriptSubmits(outcomes ...Outcome) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.outcomes = append(l.outcomes, outcomes...)
}

// FailReads queues transport errors for the next calls of method, e.g.
// "getBalance" or "getLatestBlockhash".
func (l *Ledger) FailReads(method string, errs ...error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.readErrs[method] = append(l.readErrs[method], errs...)
}

// SetOffline makes every call fail with ErrUnavailable.
func (l *Ledger) SetOffline(offline bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.offline = offline
}

// AdvanceBlocks moves the chain forward n blocks with a fresh blockhash.
// Blockhashes older than their lifetime stop being accepted.
func (l *Ledger) AdvanceBlocks(n uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.height += n
	l.slot += n
	l.rotate()
}

func (l *Ledger) rotate() {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], l.height)
	l.current = solana.Hash(sha256.Sum256(buf[:]))
	l.blockhashes[l.current] = l.height + blockhashLifetime
}

// begin counts the call and returns a scripted transport error, if any.
// Callers hold l.mu.
func (l *Ledger) begin(ctx context.Context, method string) error {
	l.calls[method]++
	if err := ctx.Err(); err != nil {
		return err
	}
	if l.offline {
		return ErrUnavailable
	}
	if errs := l.readErrs[method]; len(errs) > 0 {
		l.readErrs[method] = errs[1:]
		return errs[0]
	}
	return nil
}

func (l *Ledger) GetBalance(ctx context.Context, account solana.PublicKey, _ rpc.CommitmentType) (*rpc.GetBalanceResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.begin(ctx, "getBalance"); err != nil {
		return nil, err
	}
	res := &rpc.GetBalanceResult{Value: l.balances[account]}
	res.Context.Slot = l.slot
	return res, nil
}

func (l *Ledger) GetAccountInfoWithOpts(ctx context.Context, account solana.PublicKey, _ *rpc.GetAccountInfoOpts) (*rpc.GetAccountInfoResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.begin(ctx, "getAccountInfo"); err != nil {
		return nil, err
	}
	lamports, ok := l.balances[account]
	if !ok {
		return nil, rpc.ErrNotFound
	}
	res := &rpc.GetAccountInfoResult{
		Value: &rpc.Account{Lamports: lamports, Owner: solana.SystemProgramID},
	}
	res.Context.Slot = l.slot
	return res, nil
}

func (l *Ledger) GetLatestBlockhash(ctx context.Context, _ rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.begin(ctx, "getLatestBlockhash"); err != nil {
		return nil, err
	}
	res := &rpc.GetLatestBlockhashResult{
		Value: &rpc.LatestBlockhashResult{
			Blockhash:            l.current,
			LastValidBlockHeight: l.blockhashes[l.current],
		},
	}
	res.Context.Slot = l.slot
	return res, nil
}

func (l *Ledger) SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, _ rpc.TransactionOpts) (solana.Signature, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.begin(ctx, "sendTransaction"); err != nil {
		return solana.Signature{}, err
	}

	outcome := Accept
	if len(l.outcomes) > 0 {
		outcome = l.outcomes[0]
		l.outcomes = l.outcomes[1:]
	}

	switch outcome {
	case Drop:
		return solana.Signature{}, errors.New("ledgersim: connection reset by peer")
	case Reject:
		return solana.Signature{}, rejection("Transaction simulation failed: Error processing Instruction 0: custom program error: 0x1")
	}

	sig, err := l.apply(tx, outcome == FailOnChain)
	if err != nil {
		return solana.Signature{}, err
	}
	if outcome == AckLost {
		return solana.Signature{}, errors.New("ledgersim: i/o timeout")
	}
	return sig, nil
}

// apply verifies and executes tx. Resubmitting a landed signature is a no-op.
// Callers hold l.mu.
func (l *Ledger) apply(tx *solana.Transaction, failOnChain bool) (solana.Signature, error) {
	if len(tx.Signatures) == 0 || len(tx.Message.AccountKeys) == 0 {
		return solana.Signature{}, rejection("Transaction signature verification failure")
	}
	sig := tx.Signatures[0]
	if _, ok := l.txs[sig]; ok {
		return sig, nil
	}

	msg, err := tx.Message.MarshalBinary()
	if err != nil {
		return solana.Signature{}, rejection(fmt.Sprintf("failed to deserialize transaction: %v", err))
	}
	if !sig.Verify(tx.Message.AccountKeys[0], msg) {
		return solana.Signature{}, rejection("Transaction signature verification failure")
	}

	lastValid, ok := l.blockhashes[tx.Message.RecentBlockhash]
	if !ok || l.height > lastValid {
		return solana.Signature{}, rejection("Transaction simulation failed: Blockhash not found")
	}

	summary, err := transfer.Inspect(tx)
	if err != nil {
		return solana.Signature{}, rejection(fmt.Sprintf("Transaction simulation failed: %v", err))
	}

	payer := summary.FeePayer
	if l.balances[payer] < l.fee {
		return solana.Signature{}, rejection("Transaction simulation failed: Attempt to debit an account but found no record of a prior credit.")
	}

	state := &txState{slot: l.slot}
	if failOnChain {
		l.balances[payer] -= l.fee
		state.failed = "InstructionError: [0, Custom(1)]"
	} else {
		if l.balances[summary.Sender] < summary.Lamports+l.fee {
			return solana.Signature{}, rejection("Transaction simulation failed: Error processing Instruction 0: custom program error: 0x1")
		}
		l.balances[payer] -= l.fee
		l.balances[summary.Sender] -= summary.Lamports
		l.balances[summary.Recipient] += summary.Lamports
	}
	l.txs[sig] = state
	l.slot++
	return sig, nil
}

func (l *Ledger) GetSignatureStatuses(ctx context.Context, _ bool, sigs ...solana.Signature) (*rpc.GetSignatureStatusesResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.begin(ctx, "getSignatureStatuses"); err != nil {
		return nil, err
	}

	res := &rpc.GetSignatureStatusesResult{Value: make([]*rpc.SignatureStatusesResult, len(sigs))}
	res.Context.Slot = l.slot
	for i, sig := range sigs {
		st, ok := l.txs[sig]
		if !ok {
			continue
		}
		st.polls++
		out := &rpc.SignatureStatusesResult{
			Slot:               st.slot,
			ConfirmationStatus: rpc.ConfirmationStatusProcessed,
		}
		if st.failed != "" {
			out.Err = st.failed
		} else if !l.neverConfirm && st.polls >= l.confirmAfterPolls {
			out.ConfirmationStatus = rpc.ConfirmationStatusConfirmed
		}
		res.Value[i] = out
	}
	return res, nil
}

func rejection(msg string) error {
	return &jsonrpc.RPCError{Code: -32002, Message: msg}
}
