package verification

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/go-verify-api/internal/domain"
)

const (
	digits        = "0123456789"
	alphanumerics = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// alphabetFor maps a policy pattern to its character set. Unknown patterns are numeric.
func alphabetFor(pattern string) string {
	switch pattern {
	case domain.PatternAlphanumeric, domain.PatternAlphanumericLong:
		return alphanumerics
	default:
		return digits
	}
}

// generateToken draws policy.TokenLength characters uniformly from the
// pattern's alphabet using crypto/rand.
func generateToken(policy domain.VerificationPolicy) (string, error) {
	policy = policy.WithDefaults()
	alphabet := alphabetFor(policy.TokenPattern)
	size := big.NewInt(int64(len(alphabet)))

	out := make([]byte, policy.TokenLength)
	for i := range out {
		n, err := rand.Int(rand.Reader, size)
		if err != nil {
			return "", fmt.Errorf("generate token: %w", err)
		}
		out[i] = alphabet[n.Int64()]
	}
	return string(out), nil
}

// maxRedraws bounds the loop that avoids reissuing the previous token.
const maxRedraws = 16

// generateDistinctToken draws until the token differs from previous. Tiny
// token spaces can exhaust the bound; the last draw is then returned.
func generateDistinctToken(policy domain.VerificationPolicy, previous string) (string, error) {
	var tok string
	var err error
	for range maxRedraws {
		tok, err = generateToken(policy)
		if err != nil || tok != previous {
			return tok, err
		}
	}
	return tok, nil
}
