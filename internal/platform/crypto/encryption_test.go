package crypto

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestEncryptDecrypt(t *testing.T) {
	svc, err := New(testKey)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if !svc.Configured() {
		t.Fatal("expected configured service")
	}
	plain := []byte(`{"challengeHash":"secret"}`)
	sealed, err := svc.Encrypt(plain)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if bytes.Contains(sealed, []byte("secret")) {
		t.Fatal("ciphertext must not contain the plaintext")
	}
	opened, err := svc.Decrypt(sealed)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Equal(opened, plain) {
		t.Fatalf("expected %q, got %q", plain, opened)
	}
}

func TestDecryptRejectsTampering(t *testing.T) {
	svc, _ := New(testKey)
	sealed, _ := svc.Encrypt([]byte("payload"))
	sealed[len(sealed)-1] ^= 0xff
	if _, err := svc.Decrypt(sealed); err == nil {
		t.Fatal("expected tampered ciphertext to fail")
	}
	if _, err := svc.Decrypt([]byte{1, 2}); !errors.Is(err, ErrCiphertextTooShort) {
		t.Fatalf("expected ErrCiphertextTooShort, got %v", err)
	}
}

func TestUnconfiguredPassesThrough(t *testing.T) {
	svc, err := New("")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	out, _ := svc.Encrypt([]byte("plain"))
	if string(out) != "plain" {
		t.Fatalf("expected passthrough, got %q", out)
	}
}

func TestNewRejectsShortKey(t *testing.T) {
	if _, err := New("short"); err == nil || !strings.Contains(err.Error(), "32 bytes") {
		t.Fatalf("expected key length error, got %v", err)
	}
}

func TestSealJSONRoundTrip(t *testing.T) {
	svc, _ := New(testKey)
	type payload struct {
		Code string `json:"code"`
	}
	sealed, err := svc.SealJSON(payload{Code: "abc"})
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	var out payload
	if err := svc.OpenJSON(sealed, &out); err != nil {
		t.Fatalf("open: %v", err)
	}
	if out.Code != "abc" {
		t.Fatalf("unexpected payload %+v", out)
	}
}
