package auth

import (
	"errors"
	"testing"
	"time"
)

func TestGenerateAndValidateToken(t *testing.T) {
	sec := "secret123"
	cid := "abc"
	exp := time.Now().Add(5 * time.Minute).Unix()

	tok, err := GenerateToken(sec, cid, exp)
	if err != nil {
		t.Fatalf("gen: %v", err)
	}

	gotCID, gotExp, err := ValidateToken(sec, tok, cid, time.Now(), 60)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if gotCID != cid || gotExp != exp {
		t.Fatalf("mismatch: %s/%d", gotCID, gotExp)
	}
}

func TestBadSignature(t *testing.T) {
	sec := "secret123"
	exp := time.Now().Add(5 * time.Minute).Unix()
	tok, _ := GenerateToken(sec, "abc", exp)

	if _, _, err := ValidateToken("other", tok, "abc", time.Now(), 60); !errors.Is(err, ErrTokenSig) {
		t.Fatalf("expected signature error, got %v", err)
	}
}

func TestCorruptToken(t *testing.T) {
	if _, _, err := ValidateToken("s", "!!!", "", time.Now(), 0); !errors.Is(err, ErrTokenFormat) {
		t.Fatalf("expected format error, got %v", err)
	}
}

func TestExpiry(t *testing.T) {
	now := time.Unix(1700000000, 0)
	tok, _ := GenerateToken("s", "abc", now.Unix())

	if _, _, err := ValidateToken("s", tok, "abc", now.Add(20*time.Second), 30); err != nil {
		t.Fatalf("expected token inside skew, got %v", err)
	}
	if _, _, err := ValidateToken("s", tok, "abc", now.Add(31*time.Second), 30); !errors.Is(err, ErrTokenExp) {
		t.Fatalf("expected expiry, got %v", err)
	}
}

func TestConversationMismatch(t *testing.T) {
	tok, _ := GenerateToken("s", "abc", time.Now().Add(time.Minute).Unix())
	if _, _, err := ValidateToken("s", tok, "xyz", time.Now(), 0); !errors.Is(err, ErrTokenCID) {
		t.Fatalf("expected mismatch, got %v", err)
	}
}

func TestMissingSecret(t *testing.T) {
	if _, err := GenerateToken("", "abc", 0); !errors.Is(err, ErrNoSecret) {
		t.Fatalf("expected missing secret error, got %v", err)
	}
}
