// Package transfer assembles unsigned SOL transfer transactions.
package transfer

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync/atomic"
	"unicode/utf8"

	"github.com/AlexZinkM/solwallet/internal/common"
	"github.com/AlexZinkM/solwallet/internal/model"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
)

// MaxMemoLen keeps a transfer plus memo inside one packet.
const MaxMemoLen = 566

var memoProgramID = solana.MustPublicKeyFromBase58("MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcHr")

// KeyHolder reports which sender addresses can sign.
type KeyHolder interface {
	Has(address solana.PublicKey) bool
}

// Builder validates transfer requests and builds unsigned transactions.
type Builder struct {
	keys         KeyHolder
	estimatedFee uint64
}

// NewBuilder creates a Builder. estimatedFee is used for the soft balance check.
func NewBuilder(keys KeyHolder, estimatedFee uint64) *Builder {
	return &Builder{keys: keys, estimatedFee: estimatedFee}
}

// EstimatedFee returns the fee assumed by the balance check.
func (b *Builder) EstimatedFee() uint64 {
	return b.estimatedFee
}

// parsedRequest is a request that passed validation.
type parsedRequest struct {
	sender    solana.PublicKey
	recipient solana.PublicKey
	lamports  uint64
	memo      string
}

// Validate checks req without building anything. knownBalance, when not nil,
// is the sender's last observed balance; the node makes the final call.
func (b *Builder) Validate(req model.TransferRequest, knownBalance *uint64) error {
	_, err := b.validate(req, knownBalance)
	return err
}

func (b *Builder) validate(req model.TransferRequest, knownBalance *uint64) (parsedRequest, error) {
	var reasons []string
	var p parsedRequest

	if req.Amount <= 0 {
		reasons = append(reasons, "amount must be positive")
	} else {
		p.lamports = uint64(req.Amount)
	}

	sender, senderErr := solana.PublicKeyFromBase58(req.Sender)
	if senderErr != nil {
		reasons = append(reasons, "sender is not a valid address")
	}
	recipient, recipientErr := solana.PublicKeyFromBase58(req.Recipient)
	if recipientErr != nil {
		reasons = append(reasons, "recipient is not a valid address")
	}

	if senderErr == nil && recipientErr == nil && sender.Equals(recipient) {
		reasons = append(reasons, "sender and recipient must differ")
	}
	if senderErr == nil && !b.keys.Has(sender) {
		reasons = append(reasons, "sender key is not held by this wallet")
	}

	if knownBalance != nil && p.lamports > 0 {
		if *knownBalance < b.estimatedFee || p.lamports > *knownBalance-b.estimatedFee {
			var spendable uint64
			if *knownBalance > b.estimatedFee {
				spendable = *knownBalance - b.estimatedFee
			}
			reasons = append(reasons, fmt.Sprintf("insufficient balance: fee %s SOL, max you can send %s SOL",
				common.LamportsToSOL(b.estimatedFee), common.LamportsToSOL(spendable)))
		}
	}

	if len(req.Memo) > MaxMemoLen {
		reasons = append(reasons, fmt.Sprintf("memo longer than %d bytes", MaxMemoLen))
	}
	if !utf8.ValidString(req.Memo) {
		reasons = append(reasons, "memo is not valid UTF-8")
	}

	if len(reasons) > 0 {
		return parsedRequest{}, &model.RequestError{Reasons: reasons}
	}
	p.sender = sender
	p.recipient = recipient
	p.memo = req.Memo
	return p, nil
}

// Build validates req and assembles the unsigned transfer bound to token.
// Identical inputs produce identical payloads.
func (b *Builder) Build(req model.TransferRequest, token model.FreshnessToken, knownBalance *uint64) (*UnsignedTransaction, error) {
	p, err := b.validate(req, knownBalance)
	if err != nil {
		return nil, err
	}
	if token.Blockhash == (solana.Hash{}) {
		return nil, &model.RequestError{Reasons: []string{"freshness token has no blockhash"}}
	}

	instructions := []solana.Instruction{
		system.NewTransferInstruction(p.lamports, p.sender, p.recipient).Build(),
	}
	if p.memo != "" {
		instructions = append(instructions, solana.NewInstruction(
			memoProgramID,
			solana.AccountMetaSlice{solana.NewAccountMeta(p.sender, false, true)},
			[]byte(p.memo),
		))
	}

	tx, err := solana.NewTransaction(instructions, token.Blockhash, solana.TransactionPayer(p.sender))
	if err != nil {
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}

	return &UnsignedTransaction{
		tx:        tx,
		sender:    p.sender,
		recipient: p.recipient,
		lamports:  p.lamports,
		memo:      p.memo,
		token:     token,
	}, nil
}

// UnsignedTransaction is a built transfer waiting for its signature.
// It is immutable and can be consumed by signing exactly once.
type UnsignedTransaction struct {
	tx        *solana.Transaction
	sender    solana.PublicKey
	recipient solana.PublicKey
	lamports  uint64
	memo      string
	token     model.FreshnessToken
	consumed  atomic.Bool
}

func (u *UnsignedTransaction) Sender() solana.PublicKey { return u.sender }
func (u *UnsignedTransaction) FeePayer() solana.PublicKey { return u.sender }
func (u *UnsignedTransaction) Recipient() solana.PublicKey { return u.recipient }
func (u *UnsignedTransaction) Lamports() uint64 { return u.lamports }
func (u *UnsignedTransaction) Memo() string { return u.memo }
func (u *UnsignedTransaction) Freshness() model.FreshnessToken { return u.token }

// Message returns the serialized message that signing covers.
func (u *UnsignedTransaction) Message() ([]byte, error) {
	return u.tx.Message.MarshalBinary()
}

// Consume hands out the message for signing once. Later calls fail with
// model.ErrAlreadyConsumed.
func (u *UnsignedTransaction) Consume() ([]byte, error) {
	if !u.consumed.CompareAndSwap(false, true) {
		return nil, model.ErrAlreadyConsumed
	}
	return u.Message()
}

// Signed attaches signature to a copy of the transaction.
func (u *UnsignedTransaction) Signed(signature solana.Signature) *solana.Transaction {
	return &solana.Transaction{
		Signatures: []solana.Signature{signature},
		Message:    u.tx.Message,
	}
}

// Summary is what a transfer transaction says when decoded.
type Summary struct {
	FeePayer  solana.PublicKey
	Sender    solana.PublicKey
	Recipient solana.PublicKey
	Lamports  uint64
	Memo      string
	Blockhash solana.Hash
}

// Inspect decodes a transfer built by Builder.
func Inspect(tx *solana.Transaction) (Summary, error) {
	msg := tx.Message
	if len(msg.AccountKeys) == 0 {
		return Summary{}, errors.New("transaction has no accounts")
	}
	s := Summary{FeePayer: msg.AccountKeys[0], Blockhash: msg.RecentBlockhash}

	account := func(idx uint16) (solana.PublicKey, error) {
		if int(idx) >= len(msg.AccountKeys) {
			return solana.PublicKey{}, fmt.Errorf("account index %d out of range", idx)
		}
		return msg.AccountKeys[idx], nil
	}

	found := false
	for _, inst := range msg.Instructions {
		program, err := account(inst.ProgramIDIndex)
		if err != nil {
			return Summary{}, err
		}
		switch {
		case program.Equals(solana.SystemProgramID):
			data := []byte(inst.Data)
			if len(data) != 12 || binary.LittleEndian.Uint32(data[:4]) != system.Instruction_Transfer || len(inst.Accounts) != 2 {
				continue
			}
			if s.Sender, err = account(inst.Accounts[0]); err != nil {
				return Summary{}, err
			}
			if s.Recipient, err = account(inst.Accounts[1]); err != nil {
				return Summary{}, err
			}
			s.Lamports = binary.LittleEndian.Uint64(data[4:])
			found = true
		case program.Equals(memoProgramID):
			s.Memo = string(inst.Data)
		}
	}
	if !found {
		return Summary{}, errors.New("no system transfer instruction")
	}
	return s, nil
}
