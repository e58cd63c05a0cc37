// Package client posts serialized pulses to the code-stats pulses API.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"code-stats-daemon/internal/pulse/domain"
)

const (
	// TokenHeader carries the API credential.
	TokenHeader = "X-API-Token"
	// ClientName identifies this daemon in the User-Agent header.
	ClientName = "code-stats-daemon"
	// maxErrorBody caps how much of a rejected response body is kept for logs.
	maxErrorBody = 4 << 10
)

// Version is reported in the User-Agent header. Overridden at link time.
var Version = "0.1.0"

// ErrEmptyURL is returned when the endpoint URL is blank.
var ErrEmptyURL = errors.New("client: endpoint URL is empty")

// RejectedError is returned when the API answers with anything other than 201 Created.
type RejectedError struct {
	StatusCode int
	Body       string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("client: pulse rejected with status %d: %s", e.StatusCode, e.Body)
}

// Client sends pulses over HTTP.
type Client struct {
	httpClient *http.Client
	userAgent  string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets a per-request timeout. Zero leaves requests unbounded.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			hc := *c.httpClient
			hc.Timeout = d
			c.httpClient = &hc
		}
	}
}

// New returns a Client using http.DefaultClient unless overridden.
func New(opts ...Option) *Client {
	c := &Client{
		httpClient: http.DefaultClient,
		userAgent:  ClientName + "/" + Version,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// UserAgent returns the fixed client identifier sent with every request.
func (c *Client) UserAgent() string {
	return c.userAgent
}

// Post sends one payload to url with the given API token.
// It returns nil only when the API responds 201 Created; other statuses yield *RejectedError.
func (c *Client) Post(ctx context.Context, url, token string, payload domain.Payload) error {
	url = strings.TrimSpace(url)
	if url == "" {
		return ErrEmptyURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("client: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(TokenHeader, token)
	req.Header.Set("User-Agent", c.userAgent)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("client: post pulse: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusCreated {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &RejectedError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}
