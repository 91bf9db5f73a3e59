package captcha

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const DefaultVerifyURL = "https://www.google.com/recaptcha/api/siteverify"

var ErrRejected = errors.New("captcha rejected")

// Verifier checks a client-side CAPTCHA token.
type Verifier interface {
	Verify(ctx context.Context, token, remoteIP string) error
}

type Recaptcha struct {
	secret    string
	verifyURL string
	timeout   time.Duration
	http      *http.Client
}

func NewRecaptcha(secret, verifyURL string, timeout time.Duration, httpClient *http.Client) *Recaptcha {
	if verifyURL == "" {
		verifyURL = DefaultVerifyURL
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Recaptcha{secret: secret, verifyURL: verifyURL, timeout: timeout, http: httpClient}
}

type siteverifyResponse struct {
	Success    bool     `json:"success"`
	ErrorCodes []string `json:"error-codes"`
}

func (r *Recaptcha) Verify(ctx context.Context, token, remoteIP string) error {
	if strings.TrimSpace(token) == "" {
		return fmt.Errorf("%w: missing-input-response", ErrRejected)
	}

	form := url.Values{}
	form.Set("secret", r.secret)
	form.Set("response", token)
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := r.http.Do(req)
	if err != nil {
		return fmt.Errorf("captcha verifier unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("captcha verifier returned status %d", resp.StatusCode)
	}

	var out siteverifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("decode captcha response: %w", err)
	}
	if !out.Success {
		reason := "verification-failed"
		if len(out.ErrorCodes) > 0 {
			reason = strings.Join(out.ErrorCodes, ",")
		}
		return fmt.Errorf("%w: %s", ErrRejected, reason)
	}
	return nil
}

// Bypass accepts every token. Used in local, dev and CI modes.
type Bypass struct{}

func (Bypass) Verify(context.Context, string, string) error {
	return nil
}
