package model

import (
	"time"

	"github.com/gagliardetto/solana-go"
)

// CWTFile represents .cwt file structure
type CWTFile struct {
	Network    string `json:"network"`
	Address    string `json:"address"`
	QR         string `json:"QR"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	CipherText string `json:"cipherText"`
}

// WalletData represents decrypted wallet data
type WalletData struct {
	PrivateKey []byte `json:"privateKey"` // 64 bytes ed25519 key (stored as base64 in JSON)
	CreatedAt  string `json:"createdAt"`
}

// Keypair is the public view of a key held by the vault.
// The private half never leaves the vault.
type Keypair struct {
	Address   solana.PublicKey
	CreatedAt time.Time
}

// Account is a single balance observation. It is not cached unless the
// session pins it.
type Account struct {
	Address solana.PublicKey
	// Lamports is the balance in the smallest unit.
	Lamports uint64
	// Slot is the ledger slot the balance was read at.
	Slot       uint64
	ObservedAt time.Time
}

// FreshnessToken binds a transaction to a validity window.
type FreshnessToken struct {
	Blockhash            solana.Hash
	LastValidBlockHeight uint64
	ObservedAt           time.Time
	ExpiresAt            time.Time
}

// Expired reports whether the token's window has elapsed at t.
func (t FreshnessToken) Expired(at time.Time) bool {
	return !at.Before(t.ExpiresAt)
}

// TransferRequest asks to move Amount lamports from Sender to Recipient.
type TransferRequest struct {
	Sender    string
	Recipient string
	Amount    int64
	Memo      string
}
