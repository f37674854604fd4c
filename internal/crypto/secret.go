package crypto

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/AlexZinkM/solwallet/internal/model"

	"github.com/mr-tron/base58"
)

// DefaultSolanaKeypairPath is where the Solana CLI keeps its default keypair.
const DefaultSolanaKeypairPath = ".config/solana/id.json"

// DefaultKeypairFile returns the Solana CLI keypair path under the user's home.
func DefaultKeypairFile() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot find home directory: %w", err)
	}
	return filepath.Join(home, DefaultSolanaKeypairPath), nil
}

// ReadSolanaKeypairFile reads a Solana CLI keypair file (a JSON array of
// 64 bytes). The caller must clear the returned bytes.
func ReadSolanaKeypairFile(filePath string) ([]byte, error) {
	if filepath.Ext(filePath) != ".json" {
		return nil, fmt.Errorf("%w: keypair file must be .json", model.ErrInvalidKeyFormat)
	}
	data, err := readNonEmpty(filePath)
	if err != nil {
		return nil, err
	}
	defer clear(data)
	return parseByteArray(data)
}

// ParseSecret decodes an exported secret key given either as a base58 string
// (wallet export format) or as a JSON byte array (Solana CLI format).
// The caller must clear the returned bytes.
func ParseSecret(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty secret", model.ErrInvalidKeyFormat)
	}
	if strings.HasPrefix(s, "[") {
		return parseByteArray([]byte(s))
	}
	raw, err := base58.Decode(s)
	if err != nil {
		// the decoder error may echo input characters
		return nil, fmt.Errorf("%w: not valid base58", model.ErrInvalidKeyFormat)
	}
	return raw, nil
}

func parseByteArray(data []byte) ([]byte, error) {
	var ints []int
	if err := json.Unmarshal(data, &ints); err != nil {
		return nil, fmt.Errorf("%w: expected JSON byte array", model.ErrInvalidKeyFormat)
	}
	defer clear(ints)

	out := make([]byte, len(ints))
	for i, v := range ints {
		if v < 0 || v > 255 {
			clear(out)
			return nil, fmt.Errorf("%w: byte %d out of range", model.ErrInvalidKeyFormat, i)
		}
		out[i] = byte(v)
	}
	return out, nil
}
