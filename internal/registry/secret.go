package registry

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"keyledger/internal/model"
)

const (
	secretPrefix  = "tvly"
	secretChars   = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	secretRandLen = 20
)

// GenerateSecret returns a new bearer token of the form tvly-{type}-{20 alphanumerics}.
func GenerateSecret(keyType model.KeyType) (string, error) {
	b := make([]byte, secretRandLen)
	maxI := big.NewInt(int64(len(secretChars)))
	for i := range b {
		n, err := rand.Int(rand.Reader, maxI)
		if err != nil {
			return "", fmt.Errorf("failed to read random source: %w", err)
		}
		b[i] = secretChars[n.Int64()]
	}
	return fmt.Sprintf("%s-%s-%s", secretPrefix, keyType, b), nil
}
