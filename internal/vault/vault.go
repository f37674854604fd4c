// Package vault keeps signing keys in memory and signs on their behalf.
// Private key bytes never leave the package except through Export.
package vault

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/AlexZinkM/solwallet/internal/model"

	"github.com/gagliardetto/solana-go"
)

const (
	seedLen       = ed25519.SeedSize       // 32
	privateKeyLen = ed25519.PrivateKeySize // 64
)

// secret wraps private key bytes so they cannot end up in logs by accident.
type secret solana.PrivateKey

func (secret) String() string { return "[redacted]" }
func (secret) GoString() string { return "[redacted]" }
func (secret) LogValue() slog.Value { return slog.StringValue("[redacted]") }
func (s secret) key() solana.PrivateKey { return solana.PrivateKey(s) }

type entry struct {
	mu        sync.Mutex // serializes signing for this key
	key       secret
	createdAt time.Time
}

// Vault owns keypairs in memory.
type Vault struct {
	mu     sync.RWMutex
	keys   map[solana.PublicKey]*entry
	random io.Reader
	logger *slog.Logger
}

// Option configures a Vault.
type Option func(*Vault)

// WithRandom overrides the entropy source used by Generate.
func WithRandom(r io.Reader) Option {
	return func(v *Vault) {
		v.random = r
	}
}

// New creates an empty vault.
func New(logger *slog.Logger, opts ...Option) *Vault {
	v := &Vault{
		keys:   make(map[solana.PublicKey]*entry),
		random: rand.Reader,
		logger: logger,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Generate creates a fresh keypair from the vault's entropy source.
func (v *Vault) Generate() (model.Keypair, error) {
	seed := make([]byte, seedLen)
	defer clear(seed)
	if _, err := io.ReadFull(v.random, seed); err != nil {
		return model.Keypair{}, fmt.Errorf("%w: %v", model.ErrEntropy, err)
	}

	kp := v.insert(solana.PrivateKey(ed25519.NewKeyFromSeed(seed)))
	v.logger.Info("generated key", "address", kp.Address.String())
	return kp, nil
}

// Import adds a key from its secret bytes: a 64-byte ed25519 private key
// or a 32-byte seed. The caller keeps ownership of secretBytes and should
// clear it afterwards.
func (v *Vault) Import(secretBytes []byte) (model.Keypair, error) {
	var key solana.PrivateKey
	switch len(secretBytes) {
	case seedLen:
		key = solana.PrivateKey(ed25519.NewKeyFromSeed(secretBytes))
	case privateKeyLen:
		key = solana.PrivateKey(ed25519.NewKeyFromSeed(secretBytes[:seedLen]))
		if !bytes.Equal(key[seedLen:], secretBytes[seedLen:]) {
			clear(key)
			return model.Keypair{}, fmt.Errorf("%w: public half does not match seed", model.ErrInvalidKeyFormat)
		}
	default:
		return model.Keypair{}, fmt.Errorf("%w: expected %d or %d bytes, got %d",
			model.ErrInvalidKeyFormat, seedLen, privateKeyLen, len(secretBytes))
	}

	kp := v.insert(key)
	v.logger.Info("imported key", "address", kp.Address.String())
	return kp, nil
}

// insert stores key unless its address is already held, in which case the
// new copy is wiped so only one copy stays in memory.
func (v *Vault) insert(key solana.PrivateKey) model.Keypair {
	address := key.PublicKey()

	v.mu.Lock()
	defer v.mu.Unlock()

	if e, ok := v.keys[address]; ok {
		clear(key)
		return model.Keypair{Address: address, CreatedAt: e.createdAt}
	}
	e := &entry{key: secret(key), createdAt: time.Now()}
	v.keys[address] = e
	return model.Keypair{Address: address, CreatedAt: e.createdAt}
}

func (v *Vault) lookup(address solana.PublicKey) (*entry, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	e, ok := v.keys[address]
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrUnknownKey, address)
	}
	return e, nil
}

// Sign signs message with the key for address. Signatures for the same key
// are produced one at a time.
func (v *Vault) Sign(address solana.PublicKey, message []byte) (solana.Signature, error) {
	e, err := v.lookup(address)
	if err != nil {
		return solana.Signature{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// Removed between lookup and lock.
	if len(e.key) == 0 {
		return solana.Signature{}, fmt.Errorf("%w: %s", model.ErrUnknownKey, address)
	}
	sig, err := e.key.key().Sign(message)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to sign: %w", err)
	}
	return sig, nil
}

// Export hands the private key for address to fn for the duration of the
// call. fn must not retain it.
func (v *Vault) Export(address solana.PublicKey, fn func(solana.PrivateKey) error) error {
	e, err := v.lookup(address)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.key) == 0 {
		return fmt.Errorf("%w: %s", model.ErrUnknownKey, address)
	}
	return fn(e.key.key())
}

// Remove zeroes and drops the key for address.
func (v *Vault) Remove(address solana.PublicKey) error {
	v.mu.Lock()
	e, ok := v.keys[address]
	if ok {
		delete(v.keys, address)
	}
	v.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", model.ErrUnknownKey, address)
	}

	e.mu.Lock()
	clear(e.key)
	e.key = nil
	e.mu.Unlock()

	v.logger.Info("removed key", "address", address.String())
	return nil
}

// Has reports whether the vault holds a key for address.
func (v *Vault) Has(address solana.PublicKey) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	_, ok := v.keys[address]
	return ok
}

// Addresses lists the held addresses in a stable order.
func (v *Vault) Addresses() []solana.PublicKey {
	v.mu.RLock()
	out := make([]solana.PublicKey, 0, len(v.keys))
	for a := range v.keys {
		out = append(out, a)
	}
	v.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i][:], out[j][:]) < 0 })
	return out
}

// Close zeroes every key. The vault is empty afterwards.
func (v *Vault) Close() {
	v.mu.Lock()
	keys := v.keys
	v.keys = make(map[solana.PublicKey]*entry)
	v.mu.Unlock()

	for _, e := range keys {
		e.mu.Lock()
		clear(e.key)
		e.key = nil
		e.mu.Unlock()
	}
}
