package setup

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// DefaultTTL is how long a signed streaming URL stays valid.
const DefaultTTL = 300 * time.Second

// Signer mints and verifies signed streaming URLs for the backend's
// session-setup route.
type Signer struct {
	Secret string
	TTL    time.Duration

	// now is swappable for tests.
	now func() time.Time
}

func NewSigner(secret string) *Signer {
	return &Signer{Secret: secret, TTL: DefaultTTL, now: time.Now}
}

// SignedURL appends session parameters and an HMAC-SHA256 signature over the
// canonical path and query to the streaming base URL.
func (s *Signer) SignedURL(base, sessionID, language string, sampleRate int) (string, error) {
	if s.Secret == "" {
		return "", fmt.Errorf("signing secret not configured")
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("streaming base URL: %w", err)
	}
	expires := s.clock().Add(s.ttl()).Unix()

	q := u.Query()
	q.Set("session", sessionID)
	q.Set("language-code", language)
	q.Set("media-encoding", "pcm")
	q.Set("sample-rate", strconv.Itoa(sampleRate))
	q.Set("expires", strconv.FormatInt(expires, 10))
	u.RawQuery = q.Encode()

	u.RawQuery = u.RawQuery + "&signature=" + s.signature(u.Path, u.RawQuery)
	return u.String(), nil
}

// Verify checks the signature and expiry of a signed URL.
func (s *Signer) Verify(signed string) error {
	u, err := url.Parse(signed)
	if err != nil {
		return fmt.Errorf("signed URL: %w", err)
	}
	q := u.Query()
	sig := q.Get("signature")
	if sig == "" {
		return fmt.Errorf("signed URL: missing signature")
	}
	expires, err := strconv.ParseInt(q.Get("expires"), 10, 64)
	if err != nil {
		return fmt.Errorf("signed URL: bad expiry: %w", err)
	}
	if s.clock().Unix() > expires {
		return fmt.Errorf("signed URL: expired")
	}
	q.Del("signature")
	want := s.signature(u.Path, q.Encode())
	if !hmac.Equal([]byte(sig), []byte(want)) {
		return fmt.Errorf("signed URL: signature mismatch")
	}
	return nil
}

func (s *Signer) signature(path, rawQuery string) string {
	mac := hmac.New(sha256.New, []byte(s.Secret))
	mac.Write([]byte(path + "?" + rawQuery))
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *Signer) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

func (s *Signer) ttl() time.Duration {
	if s.TTL > 0 {
		return s.TTL
	}
	return DefaultTTL
}
