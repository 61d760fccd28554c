package securestore

import (
	"bytes"
	"strings"
	"testing"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	s, err := New(key)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s
}

func TestNew_RejectsShortKey(t *testing.T) {
	if _, err := New([]byte("short")); err == nil {
		t.Error("expected error for short key")
	}
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	s := testStore(t)

	ciphertext, err := s.Encrypt("nas-admin-password")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if strings.Contains(ciphertext, "nas-admin-password") {
		t.Error("ciphertext contains plaintext")
	}

	plaintext, err := s.Decrypt(ciphertext)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if plaintext != "nas-admin-password" {
		t.Errorf("got %q, want original plaintext", plaintext)
	}
}

func TestEncrypt_NonceVaries(t *testing.T) {
	s := testStore(t)

	a, _ := s.Encrypt("same input")
	b, _ := s.Encrypt("same input")
	if a == b {
		t.Error("expected distinct ciphertexts for repeated encryption")
	}
}

func TestDecrypt_WrongKey(t *testing.T) {
	a := testStore(t)
	b := testStore(t)

	ciphertext, _ := a.Encrypt("secret")
	if _, err := b.Decrypt(ciphertext); err == nil {
		t.Error("expected decryption failure with different key")
	}
}

func TestDecryptBytes_TooShort(t *testing.T) {
	s := testStore(t)
	if _, err := s.DecryptBytes([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for truncated ciphertext")
	}
}

func TestEncryptBytes_RoundTrip(t *testing.T) {
	s := testStore(t)
	data := []byte{0, 1, 2, 255, 254}
	enc, err := s.EncryptBytes(data)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	dec, err := s.DecryptBytes(enc)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Equal(dec, data) {
		t.Errorf("got %v, want %v", dec, data)
	}
}
