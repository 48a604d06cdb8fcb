// Package secrets provides age-based encryption for cache values at
// rest in the durable tier.
package secrets

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"filippo.io/age"
)

// AgeEncryptor seals and opens byte payloads with an X25519 identity.
// It satisfies the cache.Sealer interface.
type AgeEncryptor struct {
	identity  *age.X25519Identity
	recipient *age.X25519Recipient
}

// NewAgeEncryptor creates an encryptor from an identity.
func NewAgeEncryptor(identity *age.X25519Identity) *AgeEncryptor {
	return &AgeEncryptor{identity: identity, recipient: identity.Recipient()}
}

// LoadIdentity reads an age identity file (as written by age-keygen)
// and returns an encryptor for it.
func LoadIdentity(path string) (*AgeEncryptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read identity file: %w", err)
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		identity, err := age.ParseX25519Identity(line)
		if err != nil {
			return nil, fmt.Errorf("parse identity: %w", err)
		}
		return NewAgeEncryptor(identity), nil
	}
	return nil, fmt.Errorf("no identity found in %s", path)
}

// GenerateIdentity creates a fresh X25519 identity and writes it to
// path with owner-only permissions.
func GenerateIdentity(path string) (*AgeEncryptor, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("generate identity: %w", err)
	}
	if err := os.WriteFile(path, []byte(identity.String()+"\n"), 0o600); err != nil {
		return nil, fmt.Errorf("write identity file: %w", err)
	}
	return NewAgeEncryptor(identity), nil
}

// Encrypt seals plaintext for the encryptor's recipient.
func (e *AgeEncryptor) Encrypt(plaintext []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, e.recipient)
	if err != nil {
		return nil, fmt.Errorf("encrypt: %w", err)
	}
	if _, err := w.Write(plaintext); err != nil {
		return nil, fmt.Errorf("encrypt write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("encrypt close: %w", err)
	}
	return buf.Bytes(), nil
}

// Decrypt opens ciphertext produced by Encrypt.
func (e *AgeEncryptor) Decrypt(ciphertext []byte) ([]byte, error) {
	r, err := age.Decrypt(bytes.NewReader(ciphertext), e.identity)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	plaintext, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("decrypt read: %w", err)
	}
	return plaintext, nil
}
