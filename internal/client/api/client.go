// Package api is the typed client for the authoritative server. It attaches
// the bearer credential to every authenticated call and normalizes failures
// into the errs taxonomy so callers never branch on raw HTTP status codes.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/akulinin/pomosync/internal/errs"
	"github.com/akulinin/pomosync/internal/model"
)

// Session is the result of register/login: a bearer token plus the account.
type Session struct {
	Token string     `json:"token"`
	User  model.User `json:"user"`
}

// RegisterRequest carries the fields a new account needs.
type RegisterRequest struct {
	Username                  string   `json:"username"`
	DisplayName               string   `json:"displayName"`
	Email                     string   `json:"email"`
	Password                  string   `json:"password"`
	QuickAccessConfigurations []string `json:"quickAccessConfigurations,omitempty"`
}

// Client talks JSON over HTTP to the server API.
type Client struct {
	base  string
	http  *http.Client
	token func() string
	log   *zap.Logger
}

// New constructs a client. token is consulted per request and may return ""
// for anonymous calls. A nil logger disables logging.
func New(base string, token func() string, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	if token == nil {
		token = func() string { return "" }
	}
	return &Client{
		base:  strings.TrimRight(base, "/"),
		http:  &http.Client{Timeout: 15 * time.Second},
		token: token,
		log:   log,
	}
}

// Register creates an account and returns the initial session.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (Session, error) {
	var out Session
	err := c.do(ctx, http.MethodPost, "/users/register", req, &out)
	return out, err
}

// Login exchanges credentials for a session.
func (c *Client) Login(ctx context.Context, username, password string) (Session, error) {
	body := map[string]string{"username": username, "password": password}
	var out Session
	err := c.do(ctx, http.MethodPost, "/users/login", body, &out)
	return out, err
}

// Me returns the account behind the current bearer token.
func (c *Client) Me(ctx context.Context) (model.User, error) {
	var out model.User
	err := c.do(ctx, http.MethodGet, "/users/me", nil, &out)
	return out, err
}

// Configurations lists the caller's server-side configurations.
func (c *Client) Configurations(ctx context.Context) ([]model.Configuration, error) {
	var out []model.Configuration
	if err := c.do(ctx, http.MethodGet, "/configurations", nil, &out); err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Kind = model.KindServer
	}
	return out, nil
}

// CreateConfiguration stores a new configuration. The server assigns the id
// and lastModified; only name and cycles are sent.
func (c *Client) CreateConfiguration(ctx context.Context, cfg model.Configuration) (model.Configuration, error) {
	body := map[string]any{"name": cfg.Name, "cycles": cfg.Cycles}
	var out model.Configuration
	if err := c.do(ctx, http.MethodPost, "/configurations", body, &out); err != nil {
		return model.Configuration{}, err
	}
	out.Kind = model.KindServer
	return out, nil
}

// UpdateConfiguration replaces name and cycles of an existing configuration.
func (c *Client) UpdateConfiguration(ctx context.Context, id string, cfg model.Configuration) (model.Configuration, error) {
	body := map[string]any{"name": cfg.Name, "cycles": cfg.Cycles}
	var out model.Configuration
	if err := c.do(ctx, http.MethodPut, "/configurations/"+id, body, &out); err != nil {
		return model.Configuration{}, err
	}
	out.Kind = model.KindServer
	return out, nil
}

// DeleteConfiguration removes a configuration on the server.
func (c *Client) DeleteConfiguration(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/configurations/"+id, nil, nil)
}

// UpdateQuickAccess replaces the quick-access set and returns the set the
// server accepted.
func (c *Client) UpdateQuickAccess(ctx context.Context, ids []string) ([]string, error) {
	body := map[string][]string{"quickAccessConfigurations": ids}
	var out struct {
		QuickAccessConfigurations []string `json:"quickAccessConfigurations"`
	}
	if err := c.do(ctx, http.MethodPut, "/users/quick-access", body, &out); err != nil {
		return nil, err
	}
	return out.QuickAccessConfigurations, nil
}

// errorEnvelope is the error body shape the server emits.
type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := c.token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// The request never reached the server.
		return fmt.Errorf("%s %s: %w: %w", method, path, errs.ErrNetworkUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.classify(method, path, resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}

// classify maps an HTTP error response onto the sentinel taxonomy, keeping
// the server's message verbatim for display.
func (c *Client) classify(method, path string, resp *http.Response) error {
	msg := serverMessage(resp)

	var kind error
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		kind = errs.ErrUnauthorized
	case resp.StatusCode >= 500:
		kind = errs.ErrServerFault
	default:
		kind = errs.ErrValidation
	}
	c.log.Debug("api error",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.String("message", msg),
	)
	if msg == "" {
		return fmt.Errorf("%s %s: status %d: %w", method, path, resp.StatusCode, kind)
	}
	return fmt.Errorf("%w: %s", kind, msg)
}

func serverMessage(resp *http.Response) string {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return ""
	}
	var env errorEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return ""
	}
	return env.Error.Message
}
