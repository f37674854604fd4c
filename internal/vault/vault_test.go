package vault

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/AlexZinkM/solwallet/internal/model"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("no entropy") }

func newTestVault(opts ...Option) *Vault {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(logger, opts...)
}

func TestGenerate(t *testing.T) {
	v := newTestVault()

	kp, err := v.Generate()
	require.NoError(t, err)
	assert.False(t, kp.Address.IsZero())
	assert.True(t, v.Has(kp.Address))

	other, err := v.Generate()
	require.NoError(t, err)
	assert.NotEqual(t, kp.Address, other.Address)
	assert.Len(t, v.Addresses(), 2)
}

func TestGenerate_EntropyError(t *testing.T) {
	v := newTestVault(WithRandom(failingReader{}))

	_, err := v.Generate()
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrEntropy)
	assert.Empty(t, v.Addresses())
}

func TestImport(t *testing.T) {
	seed := bytes.Repeat([]byte{7}, ed25519.SeedSize)
	full := ed25519.NewKeyFromSeed(seed)
	expected := solana.PrivateKey(full).PublicKey()

	t.Run("seed", func(t *testing.T) {
		v := newTestVault()
		kp, err := v.Import(seed)
		require.NoError(t, err)
		assert.Equal(t, expected, kp.Address)
	})

	t.Run("full key", func(t *testing.T) {
		v := newTestVault()
		kp, err := v.Import(full)
		require.NoError(t, err)
		assert.Equal(t, expected, kp.Address)
	})

	t.Run("duplicate keeps one copy", func(t *testing.T) {
		v := newTestVault()
		_, err := v.Import(seed)
		require.NoError(t, err)
		_, err = v.Import(full)
		require.NoError(t, err)
		assert.Len(t, v.Addresses(), 1)
	})
}

func TestImport_InvalidFormat(t *testing.T) {
	v := newTestVault()

	for _, n := range []int{0, 16, 33, 63, 65} {
		_, err := v.Import(make([]byte, n))
		assert.ErrorIs(t, err, model.ErrInvalidKeyFormat, "len %d", n)
	}

	// 64 bytes whose public half does not belong to the seed
	bad := append(bytes.Repeat([]byte{1}, 32), bytes.Repeat([]byte{2}, 32)...)
	_, err := v.Import(bad)
	assert.ErrorIs(t, err, model.ErrInvalidKeyFormat)
	assert.Empty(t, v.Addresses())
}

func TestSign(t *testing.T) {
	v := newTestVault()
	kp, err := v.Generate()
	require.NoError(t, err)

	msg := []byte("transfer 300 lamports")
	orig := append([]byte(nil), msg...)

	sig, err := v.Sign(kp.Address, msg)
	require.NoError(t, err)
	assert.True(t, sig.Verify(kp.Address, msg))
	assert.Equal(t, orig, msg)
}

func TestSign_UnknownKeyLeavesVaultUnchanged(t *testing.T) {
	v := newTestVault()
	kp, err := v.Generate()
	require.NoError(t, err)
	before := v.Addresses()

	stranger := solana.PrivateKey(ed25519.NewKeyFromSeed(bytes.Repeat([]byte{9}, 32))).PublicKey()
	_, err = v.Sign(stranger, []byte("msg"))
	assert.ErrorIs(t, err, model.ErrUnknownKey)
	assert.Equal(t, before, v.Addresses())
	assert.True(t, v.Has(kp.Address))
}

func TestSign_Concurrent(t *testing.T) {
	v := newTestVault()
	kp, err := v.Generate()
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			msg := []byte(fmt.Sprintf("msg-%d", i))
			sig, err := v.Sign(kp.Address, msg)
			assert.NoError(t, err)
			assert.True(t, sig.Verify(kp.Address, msg))
		}(i)
	}
	wg.Wait()
}

func TestRemove(t *testing.T) {
	v := newTestVault()
	kp, err := v.Generate()
	require.NoError(t, err)

	var held solana.PrivateKey
	require.NoError(t, v.Export(kp.Address, func(k solana.PrivateKey) error {
		held = k
		return nil
	}))

	require.NoError(t, v.Remove(kp.Address))
	assert.False(t, v.Has(kp.Address))
	// the backing array was wiped
	assert.Equal(t, make([]byte, len(held)), []byte(held))

	assert.ErrorIs(t, v.Remove(kp.Address), model.ErrUnknownKey)
	_, err = v.Sign(kp.Address, []byte("msg"))
	assert.ErrorIs(t, err, model.ErrUnknownKey)
}

func TestClose(t *testing.T) {
	v := newTestVault()
	_, err := v.Generate()
	require.NoError(t, err)
	_, err = v.Generate()
	require.NoError(t, err)

	v.Close()
	assert.Empty(t, v.Addresses())
}

func TestSecretRedacted(t *testing.T) {
	s := secret(bytes.Repeat([]byte{0xAB}, 64))
	assert.Equal(t, "[redacted]", fmt.Sprintf("%v", s))
	assert.Equal(t, "[redacted]", fmt.Sprintf("%#v", s))
	assert.Equal(t, "[redacted]", s.LogValue().String())

	var buf bytes.Buffer
	slog.New(slog.NewTextHandler(&buf, nil)).Info("entry", "key", s)
	assert.NotContains(t, buf.String(), "171") // 0xAB
	assert.Contains(t, buf.String(), "[redacted]")
}
