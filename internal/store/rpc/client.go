// Package rpc talks to the single authenticated JSON endpoint that fronts
// the spreadsheet. Every call is a POST of {action, idToken, ...params};
// every response carries {success, error, message}.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"budgetbook/internal/store"
)

const (
	actionGetMonth      = "getExpensesByMonth"
	actionGetBudget     = "getMonthlyBudget"
	actionGetCategories = "getCategories"
	actionSaveExpenses  = "saveExpenses"
	actionSaveBudget    = "saveBudget"

	errCodeUnauthorized = "UNAUTHORIZED"

	maxResponseBytes = 10 << 20
)

var _ store.Backend = (*Client)(nil)

type Client struct {
	url    string
	http   *http.Client
	tokens oauth2.TokenSource
	logger *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTokenSource sets where ID tokens come from when the request context
// carries none.
func WithTokenSource(ts oauth2.TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// StaticToken returns a token source that always yields tok.
func StaticToken(tok string) oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: tok})
}

func New(url string, opts ...Option) (*Client, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, errors.New("missing RPC endpoint URL")
	}
	c := &Client{
		url:    url,
		http:   &http.Client{Timeout: 30 * time.Second},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type tokenKey struct{}

// WithIDToken attaches the caller's ID token to ctx. It takes precedence
// over the client's token source.
func WithIDToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

func (c *Client) idToken(ctx context.Context) (string, error) {
	if tok, ok := ctx.Value(tokenKey{}).(string); ok && tok != "" {
		return tok, nil
	}
	if c.tokens == nil {
		return "", store.ErrUnauthorized
	}
	tok, err := c.tokens.Token()
	if err != nil {
		return "", fmt.Errorf("%w: token source: %v", store.ErrUnauthorized, err)
	}
	// idtoken sources put the ID token in AccessToken.
	if raw, ok := tok.Extra("id_token").(string); ok && raw != "" {
		return raw, nil
	}
	return tok.AccessToken, nil
}

type envelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// call posts one action and decodes the response into out when it succeeds.
func (c *Client) call(ctx context.Context, action string, params map[string]any, out any) error {
	tok, err := c.idToken(ctx)
	if err != nil {
		return err
	}
	payload := make(map[string]any, len(params)+2)
	for k, v := range params {
		payload[k] = v
	}
	payload["action"] = action
	payload["idToken"] = tok

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", action, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", action, err)
	}
	// text/plain avoids a CORS preflight on the script endpoint.
	req.Header.Set("Content-Type", "text/plain;charset=utf-8")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", store.ErrUpstream, action, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%w: read %s response: %v", store.ErrUpstream, action, err)
	}
	c.logger.DebugContext(ctx, "RPC call completed",
		"action", action, "status", resp.StatusCode, "bytes", len(raw), "duration_ms", time.Since(start).Milliseconds())

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return store.ErrUnauthorized
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %s: HTTP %d", store.ErrUpstream, action, resp.StatusCode)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("%w: decode %s: %v", store.ErrUpstream, action, err)
	}
	if !env.Success {
		if env.Error == errCodeUnauthorized {
			return store.ErrUnauthorized
		}
		msg := env.Message
		if msg == "" {
			msg = env.Error
		}
		return &ActionError{Action: action, Message: msg}
	}
	if out == nil {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s payload: %v", store.ErrUpstream, action, err)
	}
	return nil
}

// ActionError is a failure reported by the endpoint itself.
type ActionError struct {
	Action  string
	Message string
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("%s failed: %s", e.Action, e.Message)
}

func (e *ActionError) Unwrap() error { return store.ErrUpstream }

// unknownAction reports whether the endpoint does not implement the action.
func (e *ActionError) unknownAction() bool {
	m := strings.ToLower(e.Message)
	return strings.Contains(m, "unknown action") || strings.Contains(m, "invalid action")
}
