package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gatekey-io/gatekey/api"
	"github.com/gatekey-io/gatekey/cmd/gatekeyctl/config"
	"github.com/gatekey-io/gatekey/domain"
)

// Client is a thin JSON client for the gatekey HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New builds a client for the given CLI context.
func New(cfg *config.Context) (*Client, error) {
	if cfg == nil || cfg.ServerEndpoint == "" {
		return nil, fmt.Errorf("invalid context or server endpoint, use 'gatekeyctl config set-context'")
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.ServerEndpoint, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// APIError carries the server's error payload alongside the HTTP status.
type APIError struct {
	Status int
	Body   api.ErrorResponse
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("server returned %d: %s", e.Status, e.Body.Error)
	if e.Body.Field != "" {
		msg += fmt.Sprintf(" (field %s)", e.Body.Field)
	}
	if e.Body.Reason != "" {
		msg += ": " + e.Body.Reason
	}
	return msg
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		payload = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Status: resp.StatusCode}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr.Body)
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func ownerQuery(ownerID string) string {
	q := url.Values{}
	q.Set("owner_id", ownerID)
	return "?" + q.Encode()
}

// UpsertSSOConfig stores a SAML configuration draft.
func (c *Client) UpsertSSOConfig(ctx context.Context, req api.SSOConfigRequest) (*domain.MethodConfig, error) {
	var cfg domain.MethodConfig
	if err := c.do(ctx, http.MethodPut, "/sso-config", req, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// GetSSOConfig fetches the SAML configuration for an owner.
func (c *Client) GetSSOConfig(ctx context.Context, ownerID string) (*domain.MethodConfig, error) {
	var cfg domain.MethodConfig
	if err := c.do(ctx, http.MethodGet, "/sso-config"+ownerQuery(ownerID), nil, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ProviderProfile fetches the label set for an identity provider kind.
func (c *Client) ProviderProfile(ctx context.Context, provider string) (*domain.ProviderProfile, error) {
	q := url.Values{}
	q.Set("provider", provider)
	var profile domain.ProviderProfile
	if err := c.do(ctx, http.MethodGet, "/sso-config/profile?"+q.Encode(), nil, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// ActivateSSOConfig enables a SAML configuration after completeness checks.
func (c *Client) ActivateSSOConfig(ctx context.Context, id string) (*domain.MethodConfig, error) {
	var cfg domain.MethodConfig
	path := fmt.Sprintf("/sso-config/%s/activate", url.PathEscape(id))
	if err := c.do(ctx, http.MethodPost, path, nil, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DeactivateSSOConfig disables a SAML configuration.
func (c *Client) DeactivateSSOConfig(ctx context.Context, id string) (*domain.MethodConfig, error) {
	var cfg domain.MethodConfig
	path := fmt.Sprintf("/sso-config/%s/deactivate", url.PathEscape(id))
	if err := c.do(ctx, http.MethodPost, path, nil, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DeleteSSOConfig removes a SAML configuration.
func (c *Client) DeleteSSOConfig(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/sso-config/"+url.PathEscape(id), nil, nil)
}

// UpsertMachineConfig stores a machine authentication configuration.
func (c *Client) UpsertMachineConfig(ctx context.Context, req api.MachineAuthConfigRequest) (*domain.MethodConfig, error) {
	var cfg domain.MethodConfig
	if err := c.do(ctx, http.MethodPut, "/machine-auth/config", req, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// GetMachineConfig fetches the machine configuration for an owner.
func (c *Client) GetMachineConfig(ctx context.Context, ownerID string) (*domain.MethodConfig, error) {
	var cfg domain.MethodConfig
	if err := c.do(ctx, http.MethodGet, "/machine-auth/config"+ownerQuery(ownerID), nil, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// GetConfig fetches any configuration by its ID.
func (c *Client) GetConfig(ctx context.Context, id string) (*domain.MethodConfig, error) {
	var cfg domain.MethodConfig
	if err := c.do(ctx, http.MethodGet, "/machine-auth/config/"+url.PathEscape(id), nil, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ActivateMachineConfig enables a machine configuration.
func (c *Client) ActivateMachineConfig(ctx context.Context, id string) (*domain.MethodConfig, error) {
	var cfg domain.MethodConfig
	path := fmt.Sprintf("/machine-auth/config/%s/activate", url.PathEscape(id))
	if err := c.do(ctx, http.MethodPost, path, nil, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DeactivateMachineConfig disables a machine configuration and revokes its
// outstanding tokens.
func (c *Client) DeactivateMachineConfig(ctx context.Context, id string) (*domain.MethodConfig, error) {
	var cfg domain.MethodConfig
	path := fmt.Sprintf("/machine-auth/config/%s/deactivate", url.PathEscape(id))
	if err := c.do(ctx, http.MethodPost, path, nil, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DeleteMachineConfig removes a machine configuration.
func (c *Client) DeleteMachineConfig(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/machine-auth/config/"+url.PathEscape(id), nil, nil)
}

// ListConfigs lists every configuration an owner has, any method type.
func (c *Client) ListConfigs(ctx context.Context, ownerID string) ([]*domain.MethodConfig, error) {
	var configs []*domain.MethodConfig
	if err := c.do(ctx, http.MethodGet, "/auth-methods"+ownerQuery(ownerID), nil, &configs); err != nil {
		return nil, err
	}
	return configs, nil
}

// DeleteOwner removes every configuration an owner has and revokes the
// tokens minted under them.
func (c *Client) DeleteOwner(ctx context.Context, ownerID string) error {
	return c.do(ctx, http.MethodDelete, "/auth-methods"+ownerQuery(ownerID), nil, nil)
}

// Authenticate mints a token against the owner's machine configuration.
func (c *Client) Authenticate(ctx context.Context, req api.AuthenticateRequest) (*api.TokenResponse, error) {
	var token api.TokenResponse
	if err := c.do(ctx, http.MethodPost, "/machine-auth/authenticate", req, &token); err != nil {
		return nil, err
	}
	return &token, nil
}

// AuthenticateConfig mints a token against a specific configuration.
func (c *Client) AuthenticateConfig(ctx context.Context, id string, req api.AuthenticateRequest) (*api.TokenResponse, error) {
	var token api.TokenResponse
	path := fmt.Sprintf("/machine-auth/%s/authenticate", url.PathEscape(id))
	if err := c.do(ctx, http.MethodPost, path, req, &token); err != nil {
		return nil, err
	}
	return &token, nil
}

// RenewToken extends a token's expiry without rotating its value.
func (c *Client) RenewToken(ctx context.Context, tokenID string) (*api.TokenResponse, error) {
	var token api.TokenResponse
	req := api.TokenActionRequest{TokenID: tokenID}
	if err := c.do(ctx, http.MethodPost, "/machine-auth/token/renew", req, &token); err != nil {
		return nil, err
	}
	return &token, nil
}

// RevokeToken permanently invalidates a token.
func (c *Client) RevokeToken(ctx context.Context, tokenID string) error {
	req := api.TokenActionRequest{TokenID: tokenID}
	return c.do(ctx, http.MethodPost, "/machine-auth/token/revoke", req, nil)
}

// VerifyToken checks a presented token value and returns its metadata.
func (c *Client) VerifyToken(ctx context.Context, accessToken string) (*api.TokenInfoResponse, error) {
	var info api.TokenInfoResponse
	req := api.VerifyRequest{AccessToken: accessToken}
	if err := c.do(ctx, http.MethodPost, "/machine-auth/token/verify", req, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// GetToken fetches token metadata by ledger ID.
func (c *Client) GetToken(ctx context.Context, tokenID string) (*api.TokenInfoResponse, error) {
	var info api.TokenInfoResponse
	if err := c.do(ctx, http.MethodGet, "/machine-auth/token/"+url.PathEscape(tokenID), nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}
