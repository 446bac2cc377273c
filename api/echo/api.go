//nolint:varnamelen
package echo

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/gatekey-io/gatekey/api"
	"github.com/gatekey-io/gatekey/domain"
	gkerrors "github.com/gatekey-io/gatekey/errors"
	"github.com/gatekey-io/gatekey/services"
)

// AuthMethodAPI struct to hold dependencies.
type AuthMethodAPI struct {
	configs *services.ConfigService
	issuer  *services.TokenIssuer
}

// NewAuthMethodAPI initializes the authentication-method API.
func NewAuthMethodAPI(configs *services.ConfigService, issuer *services.TokenIssuer) *AuthMethodAPI {
	return &AuthMethodAPI{
		configs: configs,
		issuer:  issuer,
	}
}

// RegisterRoutes registers the configuration and token routes.
func (a *AuthMethodAPI) RegisterRoutes(e *echo.Echo) {
	// Federated SSO configuration
	e.PUT("/sso-config", a.UpsertSSOConfigHandler)
	e.GET("/sso-config", a.GetSSOConfigHandler)
	e.GET("/sso-config/profile", a.ProviderProfileHandler)
	e.POST("/sso-config/:id/activate", a.ActivateConfigHandler)
	e.POST("/sso-config/:id/deactivate", a.DeactivateConfigHandler)
	e.DELETE("/sso-config/:id", a.DeleteConfigHandler)

	// Machine-identity configuration
	e.PUT("/machine-auth/config", a.UpsertMachineConfigHandler)
	e.GET("/machine-auth/config", a.GetMachineConfigHandler)
	e.GET("/machine-auth/config/:id", a.GetConfigByIDHandler)
	e.POST("/machine-auth/config/:id/activate", a.ActivateConfigHandler)
	e.POST("/machine-auth/config/:id/deactivate", a.DeactivateConfigHandler)
	e.DELETE("/machine-auth/config/:id", a.DeleteConfigHandler)

	// Owner-level views and teardown
	e.GET("/auth-methods", a.ListConfigsHandler)
	e.DELETE("/auth-methods", a.DeleteOwnerHandler)

	// Token lifecycle
	e.POST("/machine-auth/authenticate", a.AuthenticateHandler)
	e.POST("/machine-auth/:id/authenticate", a.AuthenticateConfigHandler)
	e.POST("/machine-auth/token/renew", a.RenewHandler)
	e.POST("/machine-auth/token/revoke", a.RevokeHandler)
	e.POST("/machine-auth/token/verify", a.VerifyHandler)
	e.GET("/machine-auth/token/:id", a.GetTokenHandler)
}

// writeError maps service errors onto the HTTP contract: validation 400,
// denial 401 with the reason in the body, unknown resource 404, write
// conflict 409, anything else 500.
func writeError(c echo.Context, err error) error {
	var ve *gkerrors.ValidationError
	if errors.As(err, &ve) {
		return c.JSON(http.StatusBadRequest, api.ErrorResponse{
			Error:  "validation_failed",
			Reason: ve.Reason,
			Field:  ve.Field,
		})
	}

	if ae, ok := gkerrors.AsAuthError(err); ok {
		return c.JSON(http.StatusUnauthorized, api.ErrorResponse{
			Error:  "access_denied",
			Reason: string(ae.Reason),
		})
	}

	if gkerrors.IsNotFound(err) {
		return c.JSON(http.StatusNotFound, api.ErrorResponse{Error: "not_found"})
	}

	if gkerrors.IsConflict(err) {
		return c.JSON(http.StatusConflict, api.ErrorResponse{Error: "conflict"})
	}

	log.Error().Err(err).Msg("Unhandled service error")

	return c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "server_error"})
}

func tokenResponse(t *domain.AccessToken) api.TokenResponse {
	return api.TokenResponse{
		TokenID:     t.ID,
		AccessToken: t.TokenValue,
		TokenType:   "Bearer",
		IssuedAt:    t.IssuedAt,
		ExpiresAt:   t.ExpiresAt,
		ExpiresIn:   int64(time.Until(t.ExpiresAt).Seconds()),
	}
}

func tokenInfoResponse(t *domain.AccessToken) api.TokenInfoResponse {
	return api.TokenInfoResponse{
		TokenID:        t.ID,
		ConfigID:       t.ConfigID,
		OwnerID:        t.OwnerID,
		ServiceAccount: t.ServiceAccount,
		Project:        t.Project,
		IssuedAt:       t.IssuedAt,
		ExpiresAt:      t.ExpiresAt,
		Active:         true,
	}
}

// UpsertSSOConfigHandler stores or replaces the owner's SAML configuration.
// The stored record is always a draft; activation is a separate call so a
// half-filled provider setup can never start gating logins.
func (a *AuthMethodAPI) UpsertSSOConfigHandler(c echo.Context) error {
	var req api.SSOConfigRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "invalid_request"})
	}

	cfg := &domain.MethodConfig{
		OwnerID:    req.OwnerID,
		MethodType: domain.MethodSAML,
		IsActive:   false,
		SAML: &domain.SAMLConfig{
			ProviderKind: domain.SAMLProviderKind(req.Provider),
			EntryPoint:   req.EntryPoint,
			Issuer:       req.Issuer,
			Certificate:  req.Certificate,
		},
	}

	stored, err := a.configs.Upsert(c.Request().Context(), cfg)
	if err != nil {
		return writeError(c, err)
	}

	// The certificate stays out of the log line.
	log.Info().
		Str("owner_id", stored.OwnerID).
		Str("provider", string(stored.SAML.ProviderKind)).
		Msg("SSO configuration stored")

	return c.JSON(http.StatusOK, stored)
}

// GetSSOConfigHandler returns the owner's SAML configuration.
func (a *AuthMethodAPI) GetSSOConfigHandler(c echo.Context) error {
	cfg, err := a.configs.Get(c.Request().Context(), c.QueryParam("owner_id"), domain.MethodSAML)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, cfg)
}

// ProviderProfileHandler returns the display labels and placeholders for a
// SAML vendor. Unknown vendors get the generic profile rather than an error.
func (a *AuthMethodAPI) ProviderProfileHandler(c echo.Context) error {
	kind := domain.SAMLProviderKind(c.QueryParam("provider"))
	return c.JSON(http.StatusOK, domain.ProfileFor(kind))
}

// UpsertMachineConfigHandler stores or replaces the owner's machine-identity
// configuration.
func (a *AuthMethodAPI) UpsertMachineConfigHandler(c echo.Context) error {
	var req api.MachineAuthConfigRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "invalid_request"})
	}

	cfg := &domain.MethodConfig{
		OwnerID:    req.OwnerID,
		MethodType: domain.MethodCloudIAM,
		IsActive:   req.Active,
		Machine: &domain.MachineAuthConfig{
			AccessTokenTTL:          req.AccessTokenTTL,
			AccessTokenMaxTTL:       req.AccessTokenMaxTTL,
			AccessTokenNumUsesLimit: req.AccessTokenNumUsesLimit,
			AccessTokenTrustedIPs:   req.AccessTokenTrustedIPs,
			AllowedServiceAccounts:  req.AllowedServiceAccounts,
			AllowedProjects:         req.AllowedProjects,
		},
	}

	stored, err := a.configs.Upsert(c.Request().Context(), cfg)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, stored)
}

// GetMachineConfigHandler returns the owner's machine-identity configuration.
func (a *AuthMethodAPI) GetMachineConfigHandler(c echo.Context) error {
	cfg, err := a.configs.Get(c.Request().Context(), c.QueryParam("owner_id"), domain.MethodCloudIAM)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, cfg)
}

// GetConfigByIDHandler returns a configuration by its ID.
func (a *AuthMethodAPI) GetConfigByIDHandler(c echo.Context) error {
	cfg, err := a.configs.GetByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, cfg)
}

// ActivateConfigHandler switches a stored configuration live. Activation
// re-validates the stored record, so an incomplete draft is rejected here.
func (a *AuthMethodAPI) ActivateConfigHandler(c echo.Context) error {
	cfg, err := a.configs.SetActive(c.Request().Context(), c.Param("id"), true)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, cfg)
}

// DeactivateConfigHandler takes a configuration out of service. For
// machine-identity configs this revokes every outstanding token.
func (a *AuthMethodAPI) DeactivateConfigHandler(c echo.Context) error {
	cfg, err := a.configs.SetActive(c.Request().Context(), c.Param("id"), false)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, cfg)
}

// DeleteConfigHandler removes a configuration and, for machine-identity
// configs, revokes its tokens and clears its usage counter.
func (a *AuthMethodAPI) DeleteConfigHandler(c echo.Context) error {
	if err := a.configs.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ListConfigsHandler returns every configuration of an owner.
func (a *AuthMethodAPI) ListConfigsHandler(c echo.Context) error {
	configs, err := a.configs.ListByOwner(c.Request().Context(), c.QueryParam("owner_id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, configs)
}

// DeleteOwnerHandler removes every configuration of an owner with the same
// cascades as per-config deletion.
func (a *AuthMethodAPI) DeleteOwnerHandler(c echo.Context) error {
	if err := a.configs.DeleteOwner(c.Request().Context(), c.QueryParam("owner_id")); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func attemptFrom(c echo.Context, req api.AuthenticateRequest) domain.Attempt {
	return domain.Attempt{
		ClientIP:     c.RealIP(),
		Proof:        req.Proof,
		RequestedTTL: time.Duration(req.RequestedTTL) * time.Second,
	}
}

// AuthenticateHandler mints a token against the owner's machine-identity
// configuration. Denials come back as 401 with a machine-readable reason.
func (a *AuthMethodAPI) AuthenticateHandler(c echo.Context) error {
	var req api.AuthenticateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "invalid_request"})
	}
	if req.OwnerID == "" {
		return c.JSON(http.StatusBadRequest, api.ErrorResponse{
			Error: "validation_failed", Reason: "must not be empty", Field: "owner_id",
		})
	}

	token, err := a.issuer.Authenticate(c.Request().Context(), req.OwnerID, attemptFrom(c, req))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, tokenResponse(token))
}

// AuthenticateConfigHandler mints a token against a configuration addressed
// by ID.
func (a *AuthMethodAPI) AuthenticateConfigHandler(c echo.Context) error {
	var req api.AuthenticateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "invalid_request"})
	}

	token, err := a.issuer.AuthenticateConfig(c.Request().Context(), c.Param("id"), attemptFrom(c, req))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, tokenResponse(token))
}

// RenewHandler extends a token's expiry. The token value the caller holds
// stays the same; only expires_at moves.
func (a *AuthMethodAPI) RenewHandler(c echo.Context) error {
	var req api.TokenActionRequest
	if err := c.Bind(&req); err != nil || req.TokenID == "" {
		return c.JSON(http.StatusBadRequest, api.ErrorResponse{
			Error: "validation_failed", Reason: "must not be empty", Field: "token_id",
		})
	}

	token, err := a.issuer.Renew(c.Request().Context(), req.TokenID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, tokenResponse(token))
}

// RevokeHandler invalidates a token ahead of expiry. Revoking an
// already-revoked token succeeds.
func (a *AuthMethodAPI) RevokeHandler(c echo.Context) error {
	var req api.TokenActionRequest
	if err := c.Bind(&req); err != nil || req.TokenID == "" {
		return c.JSON(http.StatusBadRequest, api.ErrorResponse{
			Error: "validation_failed", Reason: "must not be empty", Field: "token_id",
		})
	}

	if err := a.issuer.Revoke(c.Request().Context(), req.TokenID); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{})
}

// VerifyHandler checks a signed token value against the ledger and the
// issuing configuration's current state.
func (a *AuthMethodAPI) VerifyHandler(c echo.Context) error {
	var req api.VerifyRequest
	if err := c.Bind(&req); err != nil || req.AccessToken == "" {
		return c.JSON(http.StatusBadRequest, api.ErrorResponse{
			Error: "validation_failed", Reason: "must not be empty", Field: "access_token",
		})
	}

	token, err := a.issuer.Verify(c.Request().Context(), req.AccessToken)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, tokenInfoResponse(token))
}

// GetTokenHandler runs the same liveness check as VerifyHandler for a token
// addressed by ID.
func (a *AuthMethodAPI) GetTokenHandler(c echo.Context) error {
	token, err := a.issuer.VerifyByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, tokenInfoResponse(token))
}
