package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

var (
	ErrTokenFormat = errors.New("invalid token format")
	ErrTokenSig    = errors.New("invalid token signature")
	ErrTokenExp    = errors.New("token expired")
	ErrTokenCID    = errors.New("conversation id mismatch")
	ErrNoSecret    = errors.New("token secret not configured")
)

// GenerateToken builds a token for a conversation and expiry.
// Format: base64url(conversation_id + "." + exp_unix + "." + hex(hmac_sha256(secret, conversation_id+"."+exp)))
func GenerateToken(secret, conversationID string, expUnix int64) (string, error) {
	if secret == "" {
		return "", ErrNoSecret
	}
	msg := conversationID + "." + strconv.FormatInt(expUnix, 10)
	raw := msg + "." + sign(secret, msg)
	return base64.RawURLEncoding.EncodeToString([]byte(raw)), nil
}

// ValidateToken parses and validates the token.
// Returns the embedded conversation ID and exp.
func ValidateToken(secret, token, expectConversationID string, now time.Time, skewSeconds int) (string, int64, error) {
	if secret == "" {
		return "", 0, ErrNoSecret
	}
	b, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", 0, ErrTokenFormat
	}
	// Split from the right; expiry and signature never contain dots.
	s := string(b)
	i := strings.LastIndexByte(s, '.')
	if i < 0 {
		return "", 0, ErrTokenFormat
	}
	msg, sigHex := s[:i], s[i+1:]
	j := strings.LastIndexByte(msg, '.')
	if j < 0 {
		return "", 0, ErrTokenFormat
	}
	cid, expStr := msg[:j], msg[j+1:]
	exp, err := strconv.ParseInt(expStr, 10, 64)
	if err != nil {
		return "", 0, ErrTokenFormat
	}
	if expectConversationID != "" && cid != expectConversationID {
		return "", 0, ErrTokenCID
	}
	got, err := hex.DecodeString(sigHex)
	if err != nil {
		return "", 0, ErrTokenFormat
	}
	want, _ := hex.DecodeString(sign(secret, msg))
	if !hmac.Equal(want, got) {
		return "", 0, ErrTokenSig
	}
	if now.Unix() > exp+int64(skewSeconds) {
		return "", 0, ErrTokenExp
	}
	return cid, exp, nil
}

func sign(secret, msg string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(msg))
	return hex.EncodeToString(mac.Sum(nil))
}
