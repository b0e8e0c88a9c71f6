package customers

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// tokenAlphabet keeps tokens URL-safe without escaping. 62 symbols over 32
// positions is ~190 bits of entropy; the token is the only access control on
// the public endpoints, so guessing must stay infeasible.
const (
	tokenAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	tokenLength   = 32
)

// GenerateToken returns a fresh random subscription token drawn from a
// cryptographically secure source.
func GenerateToken() (string, error) {
	max := big.NewInt(int64(len(tokenAlphabet)))
	out := make([]byte, tokenLength)
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("customers: token randomness unavailable: %w", err)
		}
		out[i] = tokenAlphabet[n.Int64()]
	}
	return string(out), nil
}
