package environment

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/thomyg/TeamsFx/pkg/engine"
)

// CipherPrefix marks an encrypted userdata value.
const CipherPrefix = "crypto_"

// CryptoProvider encrypts secret values written to userdata files.
type CryptoProvider interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// LocalCrypto is an XChaCha20-Poly1305 provider keyed by the project id.
type LocalCrypto struct {
	aead cipher.AEAD
}

// NewLocalCrypto derives the project key with HKDF-SHA256.
func NewLocalCrypto(projectID string) (*LocalCrypto, error) {
	if projectID == "" {
		return nil, engine.InvalidInputError("project id is required to encrypt secrets")
	}

	key := make([]byte, chacha20poly1305.KeySize)
	kdf := hkdf.New(sha256.New, []byte(projectID), []byte("fx-userdata"), []byte("env-secrets"))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	return &LocalCrypto{aead: aead}, nil
}

// Encrypt seals plaintext with a random nonce.
func (c *LocalCrypto) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plaintext)+c.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return CipherPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt. Values without the cipher
// prefix are returned unchanged.
func (c *LocalCrypto) Decrypt(ciphertext string) (string, error) {
	if !strings.HasPrefix(ciphertext, CipherPrefix) {
		return ciphertext, nil
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(ciphertext, CipherPrefix))
	if err != nil {
		return "", fmt.Errorf("failed to decode secret: %w", err)
	}
	if len(raw) < c.aead.NonceSize() {
		return "", fmt.Errorf("secret is too short")
	}

	nonce, sealed := raw[:c.aead.NonceSize()], raw[c.aead.NonceSize():]
	plain, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt secret: %w", err)
	}
	return string(plain), nil
}
