// Package brokerage implements the tastytrade REST client, the
// two-phase pending-trade ledger, and the trade tool surface used by
// the trade responder.
package brokerage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"alex/internal/config"
)

// API endpoints selected by the sandbox toggle.
const (
	SandboxAPIURL    = "https://api.cert.tastyworks.com"
	ProductionAPIURL = "https://api.tastyworks.com"
)

// ErrNotConfigured is returned when brokerage credentials are absent.
// The trade responder turns it into a deterministic explanatory message.
var ErrNotConfigured = errors.New(
	"tastytrade credentials not configured: set TASTY_USERNAME and TASTY_PASSWORD " +
		"(or TASTY_SANDBOX_USERNAME and TASTY_SANDBOX_PASSWORD with TASTY_USE_SANDBOX=true)")

// ErrTwoFactorRequired is returned when login demands 2FA and no
// remember token is available. There is no interactive handshake.
var ErrTwoFactorRequired = errors.New(
	"tastytrade login requires two-factor authentication: supply TASTY_REMEMBER_TOKEN " +
		"from a prior authenticated session")

// Client talks to the tastytrade REST API. A session token is cached on
// disk and revalidated with a probe before reuse.
type Client struct {
	cfg        config.BrokerageConfig
	baseURL    string
	httpClient *http.Client
	log        *zap.Logger

	cachePath    string
	sessionToken string
}

// sessionCache is the on-disk session file, mode 0600.
type sessionCache struct {
	SessionToken  string `json:"session_token"`
	RememberToken string `json:"remember_token,omitempty"`
	UserID        string `json:"user_id"`
	Email         string `json:"email"`
	IsSandbox     bool   `json:"is_sandbox"`
}

// Account is one brokerage account.
type Account struct {
	AccountNumber string `json:"account-number"`
	Nickname      string `json:"nickname"`
}

// Position is one open position in an account.
type Position struct {
	Symbol            string  `json:"symbol"`
	Quantity          float64 `json:"quantity"`
	QuantityDirection string  `json:"quantity-direction"`
	InstrumentType    string  `json:"instrument-type"`
}

// NewClient builds a brokerage client. Missing credentials yield
// ErrNotConfigured so callers can arrange their fallback message.
func NewClient(cfg config.BrokerageConfig, log *zap.Logger) (*Client, error) {
	if !cfg.Configured() {
		return nil, ErrNotConfigured
	}
	if log == nil {
		log = zap.NewNop()
	}

	baseURL := ProductionAPIURL
	if cfg.UseSandbox {
		baseURL = SandboxAPIURL
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home dir: %w", err)
	}

	return &Client{
		cfg:        cfg,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        log.Named("tastytrade"),
		cachePath:  filepath.Join(home, ".alex", "tastytrade", "session.json"),
	}, nil
}

// Mode returns "sandbox" or "live" for audit rows.
func (c *Client) Mode() string {
	if c.cfg.UseSandbox {
		return "sandbox"
	}
	return "live"
}

// GetSession returns a valid session token, reusing the disk cache when
// its probe succeeds and logging in otherwise.
func (c *Client) GetSession(ctx context.Context) (string, error) {
	if c.sessionToken != "" {
		return c.sessionToken, nil
	}

	if cache, err := c.loadCache(); err == nil && cache.IsSandbox == c.cfg.UseSandbox {
		if c.validateSession(ctx, cache.SessionToken) {
			c.sessionToken = cache.SessionToken
			c.log.Debug("reusing cached session", zap.String("email", cache.Email))
			return c.sessionToken, nil
		}
	}

	return c.login(ctx)
}

func (c *Client) login(ctx context.Context) (string, error) {
	username, password := c.cfg.TastyCredentials()
	body := map[string]any{
		"login":       username,
		"password":    password,
		"remember-me": true,
	}
	if c.cfg.RememberToken != "" {
		body["remember-token"] = c.cfg.RememberToken
	}

	var resp struct {
		Data struct {
			SessionToken  string `json:"session-token"`
			RememberToken string `json:"remember-token"`
			User          struct {
				ExternalID string `json:"external-id"`
				Email      string `json:"email"`
			} `json:"user"`
		} `json:"data"`
	}
	status, err := c.doJSON(ctx, http.MethodPost, "/sessions", "", body, &resp)
	if err != nil {
		return "", fmt.Errorf("tastytrade login: %w", err)
	}
	if status == http.StatusForbidden {
		return "", ErrTwoFactorRequired
	}
	if status != http.StatusCreated && status != http.StatusOK {
		return "", fmt.Errorf("tastytrade login failed with status %d", status)
	}

	c.sessionToken = resp.Data.SessionToken
	cache := sessionCache{
		SessionToken:  resp.Data.SessionToken,
		RememberToken: resp.Data.RememberToken,
		UserID:        resp.Data.User.ExternalID,
		Email:         resp.Data.User.Email,
		IsSandbox:     c.cfg.UseSandbox,
	}
	if err := c.saveCache(cache); err != nil {
		c.log.Warn("session cache write failed", zap.Error(err))
	}
	c.log.Info("logged in", zap.String("email", cache.Email), zap.String("mode", c.Mode()))
	return c.sessionToken, nil
}

// validateSession probes the customers endpoint with a cached token.
func (c *Client) validateSession(ctx context.Context, token string) bool {
	status, err := c.doJSON(ctx, http.MethodGet, "/customers/me", token, nil, nil)
	return err == nil && status == http.StatusOK
}

// CloseSession destroys the server-side session and removes the cache.
func (c *Client) CloseSession(ctx context.Context) error {
	token, err := c.GetSession(ctx)
	if err != nil {
		return err
	}
	if _, err := c.doJSON(ctx, http.MethodDelete, "/sessions", token, nil, nil); err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	c.sessionToken = ""
	if err := os.Remove(c.cachePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove session cache: %w", err)
	}
	return nil
}

// GetAccounts lists the customer's accounts.
func (c *Client) GetAccounts(ctx context.Context) ([]Account, error) {
	token, err := c.GetSession(ctx)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Data struct {
			Items []struct {
				Account Account `json:"account"`
			} `json:"items"`
		} `json:"data"`
	}
	status, err := c.doJSON(ctx, http.MethodGet, "/customers/me/accounts", token, nil, &resp)
	if err != nil {
		return nil, fmt.Errorf("get accounts: %w", err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("get accounts failed with status %d", status)
	}

	accounts := make([]Account, 0, len(resp.Data.Items))
	for _, item := range resp.Data.Items {
		accounts = append(accounts, item.Account)
	}
	return accounts, nil
}

// GetPrimaryAccount returns the first account.
func (c *Client) GetPrimaryAccount(ctx context.Context) (*Account, error) {
	accounts, err := c.GetAccounts(ctx)
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, errors.New("no brokerage accounts available")
	}
	return &accounts[0], nil
}

// GetPositions lists open positions for an account.
func (c *Client) GetPositions(ctx context.Context, accountNumber string) ([]Position, error) {
	token, err := c.GetSession(ctx)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Data struct {
			Items []Position `json:"items"`
		} `json:"data"`
	}
	path := fmt.Sprintf("/accounts/%s/positions", accountNumber)
	status, err := c.doJSON(ctx, http.MethodGet, path, token, nil, &resp)
	if err != nil {
		return nil, fmt.Errorf("get positions: %w", err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("get positions failed with status %d", status)
	}
	return resp.Data.Items, nil
}

// GetBalances returns the raw balance document for an account.
func (c *Client) GetBalances(ctx context.Context, accountNumber string) (map[string]any, error) {
	token, err := c.GetSession(ctx)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Data map[string]any `json:"data"`
	}
	path := fmt.Sprintf("/accounts/%s/balances", accountNumber)
	status, err := c.doJSON(ctx, http.MethodGet, path, token, nil, &resp)
	if err != nil {
		return nil, fmt.Errorf("get balances: %w", err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("get balances failed with status %d", status)
	}
	return resp.Data, nil
}

// SubmitOrderDryRun validates an order payload without submitting it.
func (c *Client) SubmitOrderDryRun(ctx context.Context, accountNumber string, order map[string]any) (map[string]any, error) {
	return c.submitOrder(ctx, accountNumber, order, true)
}

// SubmitOrder submits an order payload for execution.
func (c *Client) SubmitOrder(ctx context.Context, accountNumber string, order map[string]any) (map[string]any, error) {
	return c.submitOrder(ctx, accountNumber, order, false)
}

func (c *Client) submitOrder(ctx context.Context, accountNumber string, order map[string]any, dryRun bool) (map[string]any, error) {
	token, err := c.GetSession(ctx)
	if err != nil {
		return nil, err
	}

	path := fmt.Sprintf("/accounts/%s/orders", accountNumber)
	if dryRun {
		path += "/dry-run"
	}

	var resp struct {
		Data map[string]any `json:"data"`
	}
	status, err := c.doJSON(ctx, http.MethodPost, path, token, order, &resp)
	if err != nil {
		return nil, fmt.Errorf("submit order: %w", err)
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return nil, fmt.Errorf("order rejected with status %d", status)
	}
	return resp.Data, nil
}

// doJSON issues one request and decodes the response body if out is
// non-nil. Non-2xx statuses are returned to the caller, not errors.
func (c *Client) doJSON(ctx context.Context, method, path, token string, body any, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	} else {
		io.Copy(io.Discard, resp.Body)
	}
	return resp.StatusCode, nil
}

// loadCache reads the on-disk session file.
func (c *Client) loadCache() (*sessionCache, error) {
	data, err := os.ReadFile(c.cachePath)
	if err != nil {
		return nil, err
	}
	var cache sessionCache
	if err := json.Unmarshal(data, &cache); err != nil {
		return nil, err
	}
	return &cache, nil
}

// saveCache writes the session file atomically with 0600 permissions.
func (c *Client) saveCache(cache sessionCache) error {
	dir := filepath.Dir(c.cachePath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cache, "", "  ")
	if err != nil {
		return err
	}
	tmp := c.cachePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, c.cachePath)
}
