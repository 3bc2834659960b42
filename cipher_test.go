package ticketregistry

import (
	"bytes"
	"testing"
)

func testCipher(t *testing.T, key string) *Cipher {
	t.Helper()
	c, err := NewCipher([]byte(key))
	if err != nil {
		t.Fatalf("new cipher: %v", err)
	}
	return c
}

func TestNewCipherRejectsShortKeys(t *testing.T) {
	if _, err := NewCipher([]byte("short")); err == nil {
		t.Fatal("expected error for short key")
	}
}

func TestCipherEncodeID(t *testing.T) {
	a := testCipher(t, "0123456789abcdef0123456789abcdef")
	b := testCipher(t, "fedcba9876543210fedcba9876543210")

	id := "TGT-1-abcdef"
	if a.EncodeID(id) != a.EncodeID(id) {
		t.Fatal("EncodeID is not deterministic")
	}
	if a.EncodeID(id) == id {
		t.Fatal("EncodeID returned the plain id")
	}
	if a.EncodeID(id) == b.EncodeID(id) {
		t.Fatal("different keys produced the same encoded id")
	}
	if len(a.EncodeID(id)) != 64 {
		t.Fatalf("encoded id length = %d, want 64", len(a.EncodeID(id)))
	}

	var nilCipher *Cipher
	if got := nilCipher.EncodeID(id); got != id {
		t.Fatalf("nil cipher EncodeID = %q, want %q", got, id)
	}
}

func TestCipherSealOpen(t *testing.T) {
	c := testCipher(t, "0123456789abcdef0123456789abcdef")
	plaintext := []byte(`{"id":"TGT-1"}`)
	key := c.EncodeID("TGT-1")

	sealed, err := c.Seal(key, plaintext)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if bytes.Contains(sealed, plaintext) {
		t.Fatal("sealed ticket contains the plaintext")
	}

	opened, err := c.Open(key, sealed)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !bytes.Equal(opened, plaintext) {
		t.Fatalf("opened = %q, want %q", opened, plaintext)
	}

	if _, err := c.Open(c.EncodeID("TGT-2"), sealed); err == nil {
		t.Fatal("expected error opening under another ticket id")
	}

	tampered := append([]byte(nil), sealed...)
	tampered[len(tampered)-1] ^= 0xff
	if _, err := c.Open(key, tampered); err == nil {
		t.Fatal("expected error opening tampered ticket")
	}

	if _, err := c.Open(key, sealed[:10]); err == nil {
		t.Fatal("expected error opening truncated ticket")
	}
}
