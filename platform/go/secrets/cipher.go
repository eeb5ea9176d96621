// Package secrets provides AES-256-GCM authenticated encryption for tenant
// database credentials stored at rest in the landlord database. Passwords for
// KAS-provisioned databases grant direct access to case data, so they are
// never persisted in the clear. Early deployments stored passwords unencrypted;
// DecryptOrPlaintext keeps those legacy rows readable.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

var (
	// ErrKeyLengthInvalid is returned when a master key is not exactly 32 bytes.
	ErrKeyLengthInvalid = errors.New("secrets: key must be exactly 32 bytes for AES-256")
	// ErrCiphertextCorrupted is returned when the ciphertext fails base64 decoding
	// or is too short to contain a nonce.
	ErrCiphertextCorrupted = errors.New("secrets: ciphertext is corrupted or truncated")
	// ErrDecryptionFailed is returned when AES-GCM authentication fails.
	ErrDecryptionFailed = errors.New("secrets: decryption failed")
	// ErrSaltTooShort is returned when the key-derivation salt is under 16 bytes.
	ErrSaltTooShort = errors.New("secrets: salt must be at least 16 bytes")
)

const deriveIterations = 100000

// Cipher encrypts and decrypts credential strings.
type Cipher struct {
	masterKey []byte
}

// NewCipher creates a Cipher from a raw 32-byte master key.
func NewCipher(masterKey []byte) (*Cipher, error) {
	if len(masterKey) != 32 {
		return nil, ErrKeyLengthInvalid
	}
	keyCopy := make([]byte, 32)
	copy(keyCopy, masterKey)
	return &Cipher{masterKey: keyCopy}, nil
}

// DeriveCipher creates a Cipher by deriving a key from an application
// passphrase via PBKDF2-SHA256.
func DeriveCipher(passphrase string, salt []byte) (*Cipher, error) {
	if len(salt) < 16 {
		return nil, ErrSaltTooShort
	}
	derived := pbkdf2.Key([]byte(passphrase), salt, deriveIterations, 32, sha256.New)
	return NewCipher(derived)
}

// Encrypt seals the plaintext and returns a base64 ciphertext. Empty input is
// returned as-is: local file-backed databases have no password and an empty
// credential must stay recognizably empty in the registry.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	block, err := aes.NewCipher(c.masterKey)
	if err != nil {
		return "", err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.URLEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a base64 ciphertext produced by Encrypt.
func (c *Cipher) Decrypt(encoded string) (string, error) {
	if encoded == "" {
		return "", nil
	}

	raw, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return "", ErrCiphertextCorrupted
	}

	block, err := aes.NewCipher(c.masterKey)
	if err != nil {
		return "", err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	if len(raw) < aead.NonceSize() {
		return "", ErrCiphertextCorrupted
	}

	nonce, ciphertext := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plaintext), nil
}

// DecryptOrPlaintext is the explicit two-stage credential read: try to decrypt,
// and when the stored value is not a valid ciphertext treat it as a legacy
// plaintext password. Rows written before encryption was introduced survive
// credential reads this way.
func (c *Cipher) DecryptOrPlaintext(stored string) string {
	plaintext, err := c.Decrypt(stored)
	if err != nil {
		return stored
	}
	return plaintext
}
