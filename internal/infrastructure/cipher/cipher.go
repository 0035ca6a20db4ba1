// Package cipher protects credential and token values at rest.
//
// Ciphertext layout (base64, standard encoding):
//
//	version(1) | salt(16) | nonce(24) | sealed
//
// Each value gets its own salt; the AEAD key is derived from the process
// secret and the salt with HKDF-SHA256, so no IV management leaks to callers.
package cipher

import (
	stdcipher "crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/go-verify-api/internal/domain"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const (
	formatVersion byte = 1
	saltSize           = 16
	headerSize         = 1 + saltSize + chacha20poly1305.NonceSizeX

	encryptInfo = "go-verify-api/credential-cipher/v1"
	lookupInfo  = "go-verify-api/credential-lookup/v1"
)

// ErrDecryptionFailure is returned for malformed or foreign ciphertext.
var ErrDecryptionFailure = fmt.Errorf("decryption failure: %w", domain.ErrIntegrity)

// Cipher is safe for concurrent use; its key material is immutable after New.
type Cipher struct {
	secret    []byte
	lookupKey []byte
}

// New builds a Cipher from the process-wide secret.
func New(secret string) (*Cipher, error) {
	if secret == "" {
		return nil, errors.New("cipher: empty secret")
	}
	lookupKey := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(lookupInfo)), lookupKey); err != nil {
		return nil, fmt.Errorf("cipher: derive lookup key: %w", err)
	}
	return &Cipher{secret: []byte(secret), lookupKey: lookupKey}, nil
}

// Encrypt seals plaintext. Empty input returns empty output.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	buf := make([]byte, headerSize, headerSize+len(plaintext)+chacha20poly1305.Overhead)
	buf[0] = formatVersion
	if _, err := rand.Read(buf[1:headerSize]); err != nil {
		return "", fmt.Errorf("cipher: read random: %w", err)
	}
	salt := buf[1 : 1+saltSize]
	nonce := buf[1+saltSize : headerSize]

	aead, err := c.aead(salt)
	if err != nil {
		return "", err
	}
	aad := append([]byte(nil), buf[:1+saltSize]...)
	sealed := aead.Seal(buf, nonce, []byte(plaintext), aad)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt. Empty input returns empty output;
// anything that does not authenticate fails with ErrDecryptionFailure.
func (c *Cipher) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil || len(raw) < headerSize+chacha20poly1305.Overhead || raw[0] != formatVersion {
		return "", ErrDecryptionFailure
	}
	salt := raw[1 : 1+saltSize]
	nonce := raw[1+saltSize : headerSize]

	aead, err := c.aead(salt)
	if err != nil {
		return "", err
	}
	plain, err := aead.Open(nil, nonce, raw[headerSize:], raw[:1+saltSize])
	if err != nil {
		return "", ErrDecryptionFailure
	}
	return string(plain), nil
}

// LookupHash returns a deterministic keyed digest of plaintext, hex encoded.
// It lets a credential be found by index without decrypting every row.
func (c *Cipher) LookupHash(plaintext string) string {
	h, _ := blake2b.New256(c.lookupKey) // only errors on keys longer than 64 bytes
	h.Write([]byte(plaintext))
	return hex.EncodeToString(h.Sum(nil))
}

func (c *Cipher) aead(salt []byte) (stdcipher.AEAD, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, c.secret, salt, []byte(encryptInfo)), key); err != nil {
		return nil, fmt.Errorf("cipher: derive key: %w", err)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("cipher: init aead: %w", err)
	}
	return aead, nil
}
