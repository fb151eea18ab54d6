package client

import (
	"bytes"
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultPrefix   = "/internal/trafficcop"
	defaultAudience = "trafficcop"
)

// Client calls the trafficcop internal API. When a private key is
// configured every request carries a freshly signed service token.
type Client struct {
	baseURL     string
	serviceName string
	audience    string
	privateKey  *rsa.PrivateKey
	httpClient  *http.Client
	maxRetries  int
	logger      *slog.Logger
}

type Option func(*Client)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithServiceKey signs requests as serviceName with the PEM encoded RSA key.
func WithServiceKey(privateKeyPEM string) Option {
	return func(c *Client) {
		key, err := parseRSAPrivateKey(privateKeyPEM)
		if err != nil {
			c.logger.Error("ignoring invalid service key", "error", err)
			return
		}
		c.privateKey = key
	}
}

func WithAudience(audience string) Option {
	return func(c *Client) {
		c.audience = audience
	}
}

func WithMaxRetries(n int) Option {
	return func(c *Client) {
		c.maxRetries = n
	}
}

func New(baseURL, serviceName string, opts ...Option) *Client {
	c := &Client{
		baseURL:     baseURL,
		serviceName: serviceName,
		audience:    defaultAudience,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		maxRetries:  3,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RegisterInstance registers the instance under service, retrying with
// backoff while trafficcop is unavailable.
func (c *Client) RegisterInstance(ctx context.Context, service string, instance Instance) error {
	return c.retryWithBackoff(ctx, func() error {
		return c.do(ctx, http.MethodPost, "/services/"+url.PathEscape(service)+"/instances", instance, nil)
	})
}

func (c *Client) UnregisterInstance(ctx context.Context, service, instanceID string) error {
	err := c.do(ctx, http.MethodDelete, "/services/"+url.PathEscape(service)+"/instances/"+url.PathEscape(instanceID), nil, nil)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

func (c *Client) SelectInstance(ctx context.Context, service, strategy string) (*Instance, error) {
	path := "/services/" + url.PathEscape(service) + "/select"
	if strategy != "" {
		path += "?strategy=" + url.QueryEscape(strategy)
	}
	var resp struct {
		Instance *Instance `json:"instance"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Instance, nil
}

// CheckRateLimit returns the decision for denied requests too; only
// transport and validation failures are errors.
func (c *Client) CheckRateLimit(ctx context.Context, limitType, identifier string, limit int) (*RateLimitDecision, error) {
	body := map[string]any{"limit_type": limitType, "identifier": identifier, "limit": limit}
	var decision RateLimitDecision
	err := c.do(ctx, http.MethodPost, "/ratelimit/check", body, &decision)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
		return &decision, nil
	}
	if err != nil {
		return nil, err
	}
	return &decision, nil
}

func (c *Client) CreateSession(ctx context.Context, req CreateSessionRequest) (*Session, error) {
	var session Session
	if err := c.do(ctx, http.MethodPost, "/sessions", req, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (c *Client) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	var session Session
	if err := c.do(ctx, http.MethodGet, "/sessions/"+url.PathEscape(sessionID), nil, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (c *Client) DestroySession(ctx context.Context, sessionID string) error {
	return c.do(ctx, http.MethodDelete, "/sessions/"+url.PathEscape(sessionID), nil, nil)
}

// SyncState returns the record for failed syncs as well, together with an
// *APIError.
func (c *Client) SyncState(ctx context.Context, req SyncRequest) (*SyncRecord, error) {
	var record SyncRecord
	err := c.do(ctx, http.MethodPost, "/state/sync", req, &record)
	if record.SyncID != "" {
		return &record, err
	}
	return nil, err
}

func (c *Client) SyncStatus(ctx context.Context, syncID string) (*SyncRecord, error) {
	var record SyncRecord
	if err := c.do(ctx, http.MethodGet, "/state/sync/"+url.PathEscape(syncID), nil, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// do sends the request and decodes a 2xx body into out. On error responses
// the body is still decoded into out when it fits, and an *APIError is
// returned.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+defaultPrefix+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.privateKey != nil {
		token, err := c.serviceToken()
		if err != nil {
			return fmt.Errorf("failed to generate service token: %w", err)
		}
		req.Header.Set("X-Service-Token", token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil && resp.StatusCode < 300 {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}
	if resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.Unmarshal(raw, apiErr)
		return apiErr
	}
	return nil
}

func (c *Client) serviceToken() (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": c.serviceName,
		"aud": c.audience,
		"iss": c.serviceName,
		"iat": now.Unix(),
		"exp": now.Add(5 * time.Minute).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(c.privateKey)
}

func (c *Client) retryWithBackoff(ctx context.Context, fn func() error) error {
	var lastErr error
	backoff := 500 * time.Millisecond

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		var apiErr *APIError
		if errors.As(lastErr, &apiErr) && !apiErr.retryable() {
			return lastErr
		}
		if attempt == c.maxRetries {
			break
		}

		c.logger.Warn("trafficcop call failed, retrying",
			"attempt", attempt+1,
			"max_retries", c.maxRetries,
			"backoff", backoff,
			"error", lastErr,
		)
		select {
		case <-time.After(backoff):
			backoff = min(backoff*2, 30*time.Second)
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return fmt.Errorf("operation failed after %d retries: %w", c.maxRetries, lastErr)
}

func parseRSAPrivateKey(pemStr string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block")
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err == nil {
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("not an RSA private key")
		}
		return rsaKey, nil
	}

	return x509.ParsePKCS1PrivateKey(block.Bytes)
}
