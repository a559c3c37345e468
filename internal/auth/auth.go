// Package auth builds the Authorization header value attached to every
// candidate route before connecting.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Credentials holds the key ID and shared secret used to sign connection
// requests.
type Credentials struct {
	KeyID  string
	Secret []byte
}

// NewCredentials validates and wraps a key pair.
func NewCredentials(keyID string, secret []byte) (*Credentials, error) {
	if keyID == "" {
		return nil, fmt.Errorf("key ID is required")
	}
	if len(secret) == 0 {
		return nil, fmt.Errorf("secret is required")
	}
	return &Credentials{KeyID: keyID, Secret: secret}, nil
}

// Header returns the Authorization header value:
// keyID:unixTimestamp:hex(HMAC-SHA256(secret, "keyID:unixTimestamp")).
func (c *Credentials) Header() string {
	return c.headerAt(time.Now())
}

func (c *Credentials) headerAt(now time.Time) string {
	payload := c.KeyID + ":" + strconv.FormatInt(now.Unix(), 10)
	mac := hmac.New(sha256.New, c.Secret)
	mac.Write([]byte(payload))
	return payload + ":" + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a header value against the credentials, allowing the
// timestamp to drift by at most skew. Used by test servers and diagnostics.
func (c *Credentials) Verify(header string, now time.Time, skew time.Duration) bool {
	parts := strings.SplitN(header, ":", 3)
	if len(parts) != 3 || parts[0] != c.KeyID {
		return false
	}
	ts, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return false
	}
	at := time.Unix(ts, 0)
	if at.Before(now.Add(-skew)) || at.After(now.Add(skew)) {
		return false
	}
	return hmac.Equal([]byte(c.headerAt(at)), []byte(header))
}
