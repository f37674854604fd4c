package crypto

import (
	"bytes"
	"crypto/ed25519"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/AlexZinkM/solwallet/internal/model"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// low cost so tests stay fast
var testKeystore = Keystore{ScryptN: 1 << 10}

func testKey() solana.PrivateKey {
	return solana.PrivateKey(ed25519.NewKeyFromSeed(bytes.Repeat([]byte{3}, 32)))
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wallet.cwt")
	key := testKey()

	require.NoError(t, testKeystore.Save(path, key, []byte("dev")))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	raw, cwt, err := testKeystore.Load(path, []byte("dev"))
	require.NoError(t, err)
	assert.Equal(t, []byte(key), raw)
	assert.Equal(t, key.PublicKey().String(), cwt.Address)
	assert.Equal(t, NetworkSolana, cwt.Network)
	assert.NotEmpty(t, cwt.QR)

	address, err := ReadWalletAddress(path)
	require.NoError(t, err)
	assert.Equal(t, key.PublicKey().String(), address)
}

func TestSave_DoesNotOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wallet.cwt")
	require.NoError(t, testKeystore.Save(path, testKey(), []byte("dev")))

	err := testKeystore.Save(path, testKey(), []byte("dev"))
	require.Error(t, err)
	assert.True(t, IsFileExistsError(err))
	assert.ErrorIs(t, err, os.ErrExist)
}

func TestSave_RequiresExtension(t *testing.T) {
	err := testKeystore.Save(filepath.Join(t.TempDir(), "wallet.txt"), testKey(), []byte("dev"))
	assert.Error(t, err)
}

func TestLoad_WrongPassword(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wallet.cwt")
	require.NoError(t, testKeystore.Save(path, testKey(), []byte("dev")))

	_, _, err := testKeystore.Load(path, []byte("nope"))
	assert.ErrorIs(t, err, ErrInvalidPassword)
}

func TestLoad_MissingOrEmpty(t *testing.T) {
	dir := t.TempDir()
	_, _, err := testKeystore.Load(filepath.Join(dir, "missing.cwt"), []byte("dev"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	empty := filepath.Join(dir, "empty.cwt")
	require.NoError(t, os.WriteFile(empty, nil, 0600))
	_, _, err = testKeystore.Load(empty, []byte("dev"))
	assert.Error(t, err)
}

func TestRekey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wallet.cwt")
	key := testKey()
	require.NoError(t, testKeystore.Save(path, key, []byte("old")))

	require.NoError(t, testKeystore.Rekey(path, []byte("old"), []byte("new")))

	_, _, err := testKeystore.Load(path, []byte("old"))
	assert.ErrorIs(t, err, ErrInvalidPassword)

	raw, _, err := testKeystore.Load(path, []byte("new"))
	require.NoError(t, err)
	assert.Equal(t, []byte(key), raw)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestParseSecret(t *testing.T) {
	key := testKey()

	raw, err := ParseSecret(base58.Encode(key))
	require.NoError(t, err)
	assert.Equal(t, []byte(key), raw)

	arr, err := json.Marshal(toInts(key))
	require.NoError(t, err)
	raw, err = ParseSecret(string(arr))
	require.NoError(t, err)
	assert.Equal(t, []byte(key), raw)

	for _, bad := range []string{"", "0OIl", "[1,2,300]", "[oops"} {
		_, err := ParseSecret(bad)
		assert.ErrorIs(t, err, model.ErrInvalidKeyFormat, bad)
	}
}

func TestReadSolanaKeypairFile(t *testing.T) {
	dir := t.TempDir()
	key := testKey()
	arr, err := json.Marshal(toInts(key))
	require.NoError(t, err)

	path := filepath.Join(dir, "id.json")
	require.NoError(t, os.WriteFile(path, arr, 0600))

	raw, err := ReadSolanaKeypairFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte(key), raw)

	_, err = ReadSolanaKeypairFile(filepath.Join(dir, "id.txt"))
	assert.ErrorIs(t, err, model.ErrInvalidKeyFormat)
}

func toInts(b []byte) []int {
	out := make([]int, len(b))
	for i, v := range b {
		out[i] = int(v)
	}
	return out
}
