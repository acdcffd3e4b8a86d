package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

const (
	nonceSize = 16
	tagSize   = 16

	// Only for local development. Production config rejects an empty secret.
	fallbackSecret = "booking-platform-dev-encryption-secret"
)

// Config is built from ENCRYPTION_SECRET at startup.
type Config struct {
	Secret string
	Logger *slog.Logger
}

// Vault seals organization provider keys with AES-256-GCM.
//
// Records are stored as "<ivHex>:<authTagHex>:<ciphertextHex>" in a single text column.
type Vault struct {
	aead cipher.AEAD
	rand io.Reader
}

func New(cfg Config) (*Vault, error) {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	secret := cfg.Secret
	if strings.TrimSpace(secret) == "" {
		log.Warn("ENCRYPTION_SECRET not set; using development fallback secret")
		secret = fallbackSecret
	}

	key := sha256.Sum256([]byte(secret))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("vault: cipher init: %w", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, fmt.Errorf("vault: gcm init: %w", err)
	}
	return &Vault{aead: aead, rand: rand.Reader}, nil
}

// Encrypt returns "" for empty input.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(v.rand, nonce); err != nil {
		return "", fmt.Errorf("vault: nonce: %w", err)
	}
	sealed := v.aead.Seal(nil, nonce, []byte(plaintext), nil)
	ct, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]
	return strings.Join([]string{
		hex.EncodeToString(nonce),
		hex.EncodeToString(tag),
		hex.EncodeToString(ct),
	}, ":"), nil
}

// Decrypt reports ok=false for anything that does not open cleanly: empty, malformed,
// truncated, sealed under another secret, or tampered.
func (v *Vault) Decrypt(record string) (string, bool) {
	nonce, tag, ct, err := parseRecord(record)
	if err != nil {
		return "", false
	}
	sealed := make([]byte, 0, len(ct)+len(tag))
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)
	out, err := v.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", false
	}
	return string(out), true
}

var errMalformed = errors.New("vault: malformed record")

func parseRecord(record string) (nonce, tag, ct []byte, err error) {
	parts := strings.Split(record, ":")
	if len(parts) != 3 {
		return nil, nil, nil, errMalformed
	}
	if nonce, err = hex.DecodeString(parts[0]); err != nil || len(nonce) != nonceSize {
		return nil, nil, nil, errMalformed
	}
	if tag, err = hex.DecodeString(parts[1]); err != nil || len(tag) != tagSize {
		return nil, nil, nil, errMalformed
	}
	if ct, err = hex.DecodeString(parts[2]); err != nil {
		return nil, nil, nil, errMalformed
	}
	return nonce, tag, ct, nil
}
