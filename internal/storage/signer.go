package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidToken is returned for malformed, tampered, or expired
// download tokens.
var ErrInvalidToken = errors.New("invalid download token")

// URLSigner issues expiring HMAC tokens for asset downloads so storage
// keys are never exposed directly.
type URLSigner struct {
	secret []byte
	now    func() time.Time
}

func NewURLSigner(secret string) *URLSigner {
	return &URLSigner{secret: []byte(secret), now: time.Now}
}

// Sign returns a token granting access to assetID until ttl elapses.
func (s *URLSigner) Sign(assetID string, ttl time.Duration) string {
	expires := s.now().Add(ttl).Unix()
	payload := fmt.Sprintf("%s:%d", assetID, expires)
	return payload + ":" + s.mac(payload)
}

// Verify checks a token and returns the asset ID it grants.
func (s *URLSigner) Verify(token string) (string, error) {
	parts := strings.Split(token, ":")
	if len(parts) != 3 {
		return "", ErrInvalidToken
	}
	assetID, expiresRaw, sig := parts[0], parts[1], parts[2]

	payload := assetID + ":" + expiresRaw
	if !hmac.Equal([]byte(sig), []byte(s.mac(payload))) {
		return "", ErrInvalidToken
	}
	expires, err := strconv.ParseInt(expiresRaw, 10, 64)
	if err != nil || s.now().Unix() > expires {
		return "", ErrInvalidToken
	}
	return assetID, nil
}

func (s *URLSigner) mac(payload string) string {
	h := hmac.New(sha256.New, s.secret)
	h.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}
