// Package relay talks to the external binary-storage relay. Only the delete
// action is owned here; uploads go straight from the browser to the relay.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// DeleteResult never carries a Go error: relay failures are data.
type DeleteResult struct {
	OK       bool     `json:"ok"`
	Deleted  []string `json:"deleted"`
	NotFound []string `json:"not_found"`
	Error    string   `json:"error,omitempty"`
}

type Config struct {
	URL          string
	SharedSecret string
	Timeout      time.Duration
	Retries      int
	// Initial backoff between attempts; doubled each retry.
	RetryInterval time.Duration
}

type Client struct {
	cfg  Config
	http *http.Client
}

func NewClient(cfg Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 200 * time.Millisecond
	}
	return &Client{cfg: cfg, http: httpClient}
}

type deleteRequest struct {
	Action       string   `json:"action"`
	StagingID    string   `json:"staging_id"`
	FileIDs      []string `json:"file_ids"`
	SharedSecret string   `json:"shared_secret"`
}

type deleteEnvelope struct {
	OK       bool     `json:"ok"`
	Deleted  []string `json:"deleted"`
	NotFound []string `json:"not_found"`
	Error    string   `json:"error"`
}

// Delete asks the relay to remove fileIDs stored under stagingID. Repeating a
// call is safe: ids already gone come back in NotFound.
func (c *Client) Delete(ctx context.Context, fileIDs []string, stagingID string) DeleteResult {
	if len(fileIDs) == 0 {
		return DeleteResult{OK: true, Deleted: []string{}, NotFound: []string{}}
	}
	if c.cfg.URL == "" || c.cfg.SharedSecret == "" {
		return failed("relay is not configured")
	}

	body, err := json.Marshal(deleteRequest{
		Action:       "delete",
		StagingID:    stagingID,
		FileIDs:      fileIDs,
		SharedSecret: c.cfg.SharedSecret,
	})
	if err != nil {
		return failed(fmt.Sprintf("encode request: %v", err))
	}

	var env deleteEnvelope
	op := func() error {
		var attemptErr error
		env, attemptErr = c.post(ctx, body)
		return attemptErr
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.cfg.RetryInterval
	policy.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(c.cfg.Retries)), ctx)

	if err := backoff.Retry(op, b); err != nil {
		return failed(err.Error())
	}
	if !env.OK {
		msg := env.Error
		if msg == "" {
			msg = "relay reported failure"
		}
		return DeleteResult{OK: false, Deleted: nonNil(env.Deleted), NotFound: nonNil(env.NotFound), Error: msg}
	}
	return DeleteResult{OK: true, Deleted: nonNil(env.Deleted), NotFound: nonNil(env.NotFound)}
}

// post performs a single attempt. Transport errors and 5xx are retryable;
// everything else is wrapped as permanent.
func (c *Client) post(ctx context.Context, body []byte) (deleteEnvelope, error) {
	var env deleteEnvelope

	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return env, backoff.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return env, backoff.Permanent(fmt.Errorf("relay request cancelled: %w", err))
		}
		return env, fmt.Errorf("relay unreachable: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return env, fmt.Errorf("read relay response: %w", err)
	}

	if resp.StatusCode >= 500 {
		return env, fmt.Errorf("relay returned status %d", resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return env, backoff.Permanent(fmt.Errorf("relay returned status %d", resp.StatusCode))
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return env, backoff.Permanent(fmt.Errorf("decode relay response: %w", err))
	}
	return env, nil
}

func failed(msg string) DeleteResult {
	return DeleteResult{OK: false, Deleted: []string{}, NotFound: []string{}, Error: msg}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
