package auth

import (
	"encoding/base64"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestGenerateToken(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		tok, err := GenerateToken()
		if err != nil {
			t.Fatal(err)
		}
		b, err := base64.RawURLEncoding.DecodeString(tok)
		if err != nil {
			t.Fatalf("not url-safe base64: %v", err)
		}
		if len(b) != 32 {
			t.Fatalf("token has %d bytes of entropy, want 32", len(b))
		}
		if seen[tok] {
			t.Fatal("duplicate token")
		}
		seen[tok] = true
	}
}

func TestHashToken(t *testing.T) {
	h := HashToken("abc")
	if len(h) != 64 {
		t.Fatalf("hash length = %d, want 64", len(h))
	}
	if h != HashToken("abc") || h == HashToken("abd") {
		t.Fatal("hash not deterministic or collides")
	}
}

func TestHashPassword(t *testing.T) {
	h, err := HashPassword("CorrectHorse1", 4)
	if err != nil {
		t.Fatal(err)
	}
	if cost, _ := bcrypt.Cost([]byte(h)); cost != 10 {
		t.Errorf("cost = %d, want floor of 10", cost)
	}
	if !VerifyPassword(h, "CorrectHorse1") || VerifyPassword(h, "correcthorse1") {
		t.Error("VerifyPassword mismatch")
	}
	if VerifyPassword("", "anything") {
		t.Error("empty hash verified")
	}
	if !needsRehash(h, 12) || needsRehash(h, 10) {
		t.Error("needsRehash mismatch")
	}
}

func TestGenerateRandomPassword(t *testing.T) {
	a, err := GenerateRandomPassword()
	if err != nil {
		t.Fatal(err)
	}
	b, _ := GenerateRandomPassword()
	if len(a) != 16 || a == b {
		t.Fatalf("weak temporary passwords: %q %q", a, b)
	}
	for _, r := range a {
		if !strings.ContainsRune(passwordAlphabet, r) {
			t.Fatalf("unexpected rune %q", r)
		}
	}
}
