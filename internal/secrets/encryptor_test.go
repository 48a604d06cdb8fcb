package secrets

import (
	"bytes"
	"testing"

	"filippo.io/age"
)

func newTestEncryptor(t *testing.T) *AgeEncryptor {
	t.Helper()
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		t.Fatalf("generate identity: %v", err)
	}
	return NewAgeEncryptor(identity)
}

func TestRoundTrip(t *testing.T) {
	e := newTestEncryptor(t)
	plaintext := []byte(`{"price":101.5}`)

	ciphertext, err := e.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if bytes.Contains(ciphertext, plaintext) {
		t.Fatal("ciphertext leaks plaintext")
	}

	got, err := e.Decrypt(ciphertext)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("round trip = %s, want %s", got, plaintext)
	}
}

func TestDecryptWithWrongIdentityFails(t *testing.T) {
	e1 := newTestEncryptor(t)
	e2 := newTestEncryptor(t)

	ciphertext, err := e1.Encrypt([]byte("secret"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if _, err := e2.Decrypt(ciphertext); err == nil {
		t.Fatal("expected decrypt with wrong identity to fail")
	}
}

func TestGenerateAndLoadIdentity(t *testing.T) {
	path := t.TempDir() + "/key.txt"

	gen, err := GenerateIdentity(path)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	loaded, err := LoadIdentity(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	// The loaded identity must open what the generated one sealed.
	ciphertext, err := gen.Encrypt([]byte("x"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	got, err := loaded.Decrypt(ciphertext)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if string(got) != "x" {
		t.Fatalf("round trip = %q, want x", got)
	}
}

func TestLoadIdentityMissingFile(t *testing.T) {
	if _, err := LoadIdentity(t.TempDir() + "/absent.txt"); err == nil {
		t.Fatal("expected error for missing identity file")
	}
}
