package cloudevent

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"packager/pkg/backoff"
	"time"
)

// SignatureHeader carries the HMAC-SHA256 signature of the request body.
const SignatureHeader = "X-Signature-256"

// Sender sends CloudEvents over HTTP.
type Sender struct {
	client  *http.Client
	retries int
	backoff *backoff.Config
}

// SenderOption is a functional option for NewSender.
type SenderOption func(*Sender)

// WithRetries retries server errors and transport failures up to n times.
func WithRetries(n int) SenderOption {
	return func(s *Sender) {
		if n >= 0 {
			s.retries = n
		}
	}
}

// WithBackoff sets the delay between retries.
func WithBackoff(cfg *backoff.Config) SenderOption {
	return func(s *Sender) {
		s.backoff = cfg
	}
}

// NewSender creates a new CloudEvent sender. timeout bounds each attempt.
func NewSender(timeout time.Duration, opts ...SenderOption) *Sender {
	s := &Sender{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     30 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send delivers a CloudEvent via HTTP POST in structured mode, signing the
// body when signingKey is set. Client errors (4xx) are returned without retry.
func (s *Sender) Send(ctx context.Context, url string, event *CloudEvent, signingKey string) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	var signature string
	if signingKey != "" {
		signature = Sign(body, signingKey)
	}

	var lastErr error
	for attempt := range s.retries + 1 {
		if attempt > 0 {
			if err := backoff.Wait(ctx, attempt, s.backoff); err != nil {
				return errors.Join(lastErr, err)
			}
		}

		lastErr = s.post(ctx, url, event, body, signature)
		if lastErr == nil || IsClientError(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

func (s *Sender) post(ctx context.Context, url string, event *CloudEvent, body []byte, signature string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/cloudevents+json")
	req.Header.Set("Ce-Specversion", event.SpecVersion)
	req.Header.Set("Ce-Type", event.Type)
	req.Header.Set("Ce-Source", event.Source)
	req.Header.Set("Ce-Id", event.ID)
	req.Header.Set("Ce-Time", event.Time.Format(time.RFC3339))
	if event.Subject != "" {
		req.Header.Set("Ce-Subject", event.Subject)
	}
	if signature != "" {
		req.Header.Set(SignatureHeader, signature)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	return &HTTPError{StatusCode: resp.StatusCode}
}

// Sign computes the "sha256=<hex>" HMAC signature of payload.
func Sign(payload []byte, key string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature is the valid signature of payload.
func Verify(payload []byte, key, signature string) bool {
	return hmac.Equal([]byte(Sign(payload, key)), []byte(signature))
}

// HTTPError represents an HTTP error response.
type HTTPError struct {
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

// IsClientError returns true for 4xx errors (shouldn't retry).
func IsClientError(err error) bool {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.StatusCode >= 400 && he.StatusCode < 500
	}
	return false
}
