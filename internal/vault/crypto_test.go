package vault

import (
	"strings"
	"testing"
)

func TestCipherRoundTrip(t *testing.T) {
	c, err := NewCipher("unit-test-secret")
	if err != nil {
		t.Fatalf("NewCipher returned error: %v", err)
	}

	sealed, err := c.Encrypt("sk-or-v1-abcdef")
	if err != nil {
		t.Fatalf("Encrypt returned error: %v", err)
	}
	if sealed == "sk-or-v1-abcdef" {
		t.Fatalf("ciphertext equals plaintext")
	}

	plain, err := c.Decrypt(sealed)
	if err != nil {
		t.Fatalf("Decrypt returned error: %v", err)
	}
	if plain != "sk-or-v1-abcdef" {
		t.Fatalf("round trip mismatch: got %q", plain)
	}
}

func TestCipherNoncePerCall(t *testing.T) {
	c, err := NewCipher("unit-test-secret")
	if err != nil {
		t.Fatalf("NewCipher returned error: %v", err)
	}

	first, err := c.Encrypt("same-plaintext")
	if err != nil {
		t.Fatalf("Encrypt returned error: %v", err)
	}
	second, err := c.Encrypt("same-plaintext")
	if err != nil {
		t.Fatalf("Encrypt returned error: %v", err)
	}
	if first == second {
		t.Fatalf("two encryptions of the same plaintext produced identical ciphertext")
	}
}

func TestCipherRejectsForeignSecret(t *testing.T) {
	sealer, err := NewCipher("secret-a")
	if err != nil {
		t.Fatalf("NewCipher returned error: %v", err)
	}
	opener, err := NewCipher("secret-b")
	if err != nil {
		t.Fatalf("NewCipher returned error: %v", err)
	}

	sealed, err := sealer.Encrypt("sk-test")
	if err != nil {
		t.Fatalf("Encrypt returned error: %v", err)
	}
	if _, errDecrypt := opener.Decrypt(sealed); errDecrypt == nil {
		t.Fatalf("Decrypt accepted ciphertext sealed under a different secret")
	}
}

func TestCipherRejectsGarbage(t *testing.T) {
	c, err := NewCipher("unit-test-secret")
	if err != nil {
		t.Fatalf("NewCipher returned error: %v", err)
	}
	if _, errDecrypt := c.Decrypt("not base64 !!"); errDecrypt == nil {
		t.Fatalf("Decrypt accepted non-base64 input")
	}
	if _, errDecrypt := c.Decrypt("QUJD"); errDecrypt == nil {
		t.Fatalf("Decrypt accepted ciphertext shorter than the nonce")
	}
}

func TestNewCipherRequiresSecret(t *testing.T) {
	if _, err := NewCipher("   "); err == nil {
		t.Fatalf("NewCipher accepted a blank secret")
	}
}

func TestHashKeyDeterministic(t *testing.T) {
	first := HashKey("sk-test-123")
	second := HashKey("sk-test-123")
	if first != second {
		t.Fatalf("HashKey is not deterministic: %q vs %q", first, second)
	}
	if len(first) != 64 {
		t.Fatalf("unexpected digest length: %d", len(first))
	}
	if strings.Contains(first, "sk-test") {
		t.Fatalf("digest leaks plaintext")
	}
	if HashKey("sk-test-124") == first {
		t.Fatalf("distinct keys collided")
	}
}
