// Package remote talks to the hosted backend over its REST API.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/diagnosis/ukrbe-market/internal/apperr"
	"github.com/diagnosis/ukrbe-market/pkg/logger"
)

// Credentials supply the caller identity for backend writes.
type Credentials interface {
	// Token is the session bearer token, "" when signed out.
	Token(ctx context.Context) string
	AnonymousID(ctx context.Context) (string, error)
}

type Client struct {
	baseURL string
	client  *http.Client
	creds   Credentials
}

func NewClient(baseURL string, creds Credentials) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		creds: creds,
	}
}

// WithCredentials returns a copy of c that identifies writes with creds.
func (c *Client) WithCredentials(creds Credentials) *Client {
	cp := *c
	cp.creds = creds
	return &cp
}

type errorBody struct {
	Error   string     `json:"error"`
	Code    string     `json:"code"`
	ResetAt *time.Time `json:"reset_at"`
}

// do sends body as JSON and decodes a 2xx response into out. Non-2xx
// responses become apperr errors.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}, headers map[string]string) error {
	url := c.baseURL + path

	var bodyReader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	// Add request ID for tracing
	if requestID, ok := ctx.Value(logger.RequestIDKey).(string); ok {
		req.Header.Set("X-Request-ID", requestID)
	}

	logger.DebugContext(ctx, "Calling backend", "method", method, "url", url)

	resp, err := c.client.Do(req)
	if err != nil {
		return apperr.Service("backend unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil || resp.StatusCode == http.StatusNoContent {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return apperr.Service("unexpected backend response", err)
		}
		return nil
	}

	return decodeError(resp)
}

func decodeError(resp *http.Response) error {
	var eb errorBody
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&eb)
	msg := eb.Error
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}

	switch resp.StatusCode {
	case http.StatusBadRequest:
		return apperr.Validation("%s", msg)
	case http.StatusUnauthorized:
		return apperr.Unauthorized(msg)
	case http.StatusForbidden:
		return apperr.Forbidden(msg)
	case http.StatusNotFound:
		return apperr.NotFound(msg)
	case http.StatusConflict:
		return apperr.Conflict(msg)
	case http.StatusTooManyRequests:
		var resetAt time.Time
		if eb.ResetAt != nil {
			resetAt = *eb.ResetAt
		}
		return apperr.RateLimited(msg, resetAt)
	}
	return apperr.Service(msg, fmt.Errorf("backend returned %d %s", resp.StatusCode, eb.Code))
}

// writeHeaders identify the actor: a bearer token when signed in, the
// anonymous device id otherwise.
func (c *Client) writeHeaders(ctx context.Context) (map[string]string, error) {
	if c.creds == nil {
		return nil, nil
	}
	if token := c.creds.Token(ctx); token != "" {
		return map[string]string{"Authorization": "Bearer " + token}, nil
	}
	anon, err := c.creds.AnonymousID(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]string{"X-Anonymous-ID": anon}, nil
}
