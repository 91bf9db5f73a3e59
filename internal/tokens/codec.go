// Package tokens signs and verifies the compact self-expiring tokens shared
// with the relay: upload tokens minted here and receipts minted by the relay.
//
// Wire format: base64url(JSON(payload)) "." base64url(HMAC-SHA256(secret, first segment)).
package tokens

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	archive_errors "literary-archive/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidFormat    = errors.New("invalid_format")
	ErrInvalidSignature = errors.New("invalid_signature")
	ErrInvalidPayload   = errors.New("invalid_payload")
	ErrExpired          = errors.New("expired")
)

// Strict decoding so trailing bits cannot be altered without detection.
var segmentEncoding = base64.RawURLEncoding.Strict()

type Codec struct {
	secret []byte
	now    func() time.Time
}

func NewCodec(secret string) (*Codec, error) {
	if secret == "" {
		return nil, fmt.Errorf("%w: token signing secret is empty", archive_errors.ErrMisconfigured)
	}
	return &Codec{secret: []byte(secret), now: time.Now}, nil
}

// WithClock overrides the time source used for expiry checks.
func (c *Codec) WithClock(now func() time.Time) *Codec {
	return &Codec{secret: c.secret, now: now}
}

func (c *Codec) Sign(payload interface{}) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal token payload: %w", err)
	}
	segment := segmentEncoding.EncodeToString(raw)
	sig, err := jwt.SigningMethodHS256.Sign(segment, c.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return segment + "." + segmentEncoding.EncodeToString(sig), nil
}

type expiryProbe struct {
	ExpiresAt *int64 `json:"expires_at"`
}

// Verify checks the signature, decodes the payload into out and rejects it
// if its expires_at has passed. The signature is checked before anything in
// the payload is trusted.
func (c *Codec) Verify(token string, out interface{}) error {
	parts := strings.Split(token, ".")
	if len(parts) != 2 {
		return ErrInvalidFormat
	}

	sig, err := segmentEncoding.DecodeString(parts[1])
	if err != nil {
		return ErrInvalidSignature
	}
	if err := jwt.SigningMethodHS256.Verify(parts[0], sig, c.secret); err != nil {
		return ErrInvalidSignature
	}

	raw, err := segmentEncoding.DecodeString(parts[0])
	if err != nil {
		return ErrInvalidPayload
	}
	var probe expiryProbe
	if err := json.Unmarshal(raw, &probe); err != nil {
		return ErrInvalidPayload
	}
	if probe.ExpiresAt != nil && c.now().Unix() >= *probe.ExpiresAt {
		return ErrExpired
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return ErrInvalidPayload
		}
	}
	return nil
}
