package crypto

import (
	"bytes"
	"strings"
	"testing"
)

func TestSealOpenRoundTrip(t *testing.T) {
	c, err := New(strings.Repeat("ab", 32))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	sealed, err := c.SealString("000123456789")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if bytes.Contains(sealed, []byte("000123456789")) {
		t.Fatal("expected ciphertext not to contain plaintext")
	}
	plain, err := c.OpenString(sealed)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if plain != "000123456789" {
		t.Fatalf("unexpected plaintext %q", plain)
	}
}

func TestUnkeyedCipherPassesThrough(t *testing.T) {
	c, err := New("")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	sealed, err := c.SealString("42")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if string(sealed) != "42" {
		t.Fatalf("expected passthrough, got %q", sealed)
	}
	keyed, _ := New(strings.Repeat("cd", 32))
	plain, err := keyed.OpenString([]byte("42"))
	if err != nil || plain != "42" {
		t.Fatalf("expected legacy plaintext to open, got %q %v", plain, err)
	}
}

func TestKeysDoNotCrossOpen(t *testing.T) {
	a, err := New(strings.Repeat("ab", 32))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	b, err := New(strings.Repeat("ef", 32))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	sealed, err := a.SealString("000123456789")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if _, err := b.OpenString(sealed); err == nil {
		t.Fatal("expected a different key to fail authentication")
	}
}

func TestRejectsShortKey(t *testing.T) {
	if _, err := New("short"); err == nil {
		t.Fatal("expected short key to be rejected")
	}
}

func TestLast4(t *testing.T) {
	if Last4("123456789") != "6789" || Last4("12") != "12" {
		t.Fatal("unexpected masking")
	}
}
