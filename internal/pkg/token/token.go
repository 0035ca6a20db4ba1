package token

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

// APIKeyPrefix marks application keys so they are recognisable in logs and headers.
const APIKeyPrefix = "app_"

// NewAPIKey returns "app_" followed by 32 random hex characters.
func NewAPIKey() (string, error) {
	s, err := randomHex(apiKeyHexLen / 2)
	if err != nil {
		return "", fmt.Errorf("generate api key: %w", err)
	}
	return APIKeyPrefix + s, nil
}

// apiKeyHexLen is the length of the random part of an API key.
const apiKeyHexLen = 32

// IsAPIKey reports whether s has the shape of a key issued by NewAPIKey.
func IsAPIKey(s string) bool {
	rest, ok := strings.CutPrefix(s, APIKeyPrefix)
	if !ok || len(rest) != apiKeyHexLen {
		return false
	}
	_, err := hex.DecodeString(rest)
	return err == nil
}

// NewAPISecret generates a cryptographically random 64-character hex secret.
func NewAPISecret() (string, error) {
	s, err := randomHex(32)
	if err != nil {
		return "", fmt.Errorf("generate api secret: %w", err)
	}
	return s, nil
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// NewCredentialPair returns a fresh API key and secret.
func NewCredentialPair() (key, secret string, err error) {
	if key, err = NewAPIKey(); err != nil {
		return "", "", err
	}
	if secret, err = NewAPISecret(); err != nil {
		return "", "", err
	}
	return key, secret, nil
}
