package ghl

import (
	"context"
	"time"

	"github.com/guonaihong/gout"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/prixcenter/wlink/internal/domain"
)

// Tokens that expire within this window are refreshed before use.
const tokenRefreshWindow = 5 * time.Minute

// TokenResult is the platform OAuth token response.
type TokenResult struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	Scope        string `json:"scope"`
	LocationID   string `json:"locationId"`
	CompanyID    string `json:"companyId"`
}

func (t *TokenResult) ExpiresAt() time.Time {
	return time.Now().Add(time.Duration(t.ExpiresIn) * time.Second)
}

func (c *Client) tokenCall(ctx context.Context, form gout.H) (*TokenResult, error) {
	var (
		code int
		raw  []byte
	)
	err := gout.POST(c.url("/oauth/token")).
		WithContext(ctx).
		SetHeader(gout.H{"Content-Type": "application/x-www-form-urlencoded"}).
		SetWWWForm(form).
		BindBody(&raw).
		Code(&code).
		Do()
	if err != nil {
		return nil, errors.Wrap(err, "platform token request")
	}
	if !ok(code) {
		return nil, errors.Errorf("platform token request status %d: %s", code, raw)
	}
	var result TokenResult
	if err := jsoniter.Unmarshal(raw, &result); err != nil {
		return nil, errors.Wrap(err, "decode token response")
	}
	return &result, nil
}

// ExchangeCode trades an OAuth authorization code for a token set. The
// response must carry a locationId; a token set without one is unusable
// for tenant scoping.
func (c *Client) ExchangeCode(ctx context.Context, code string) (*TokenResult, error) {
	result, err := c.tokenCall(ctx, gout.H{
		"client_id":     c.cfg.ClientID,
		"client_secret": c.cfg.ClientSecret,
		"grant_type":    "authorization_code",
		"code":          code,
		"redirect_uri":  c.redirectURI(),
		"user_type":     "Location",
	})
	if err != nil {
		return nil, err
	}
	if result.LocationID == "" {
		return nil, errors.New("platform token response did not include a location id")
	}
	return result, nil
}

func (c *Client) redirectURI() string {
	return c.cfg.AppURL + "/oauth/callback"
}

// RefreshTenant refreshes a tenant's tokens unconditionally. Used by
// the daily sweep so tenants without webhook traffic do not silently
// age out of authorization.
func (c *Client) RefreshTenant(ctx context.Context, locationID string) error {
	tenant, err := c.store.GetTenant(ctx, locationID)
	if err != nil {
		return err
	}
	_, err = c.refreshTokens(ctx, locationID, tenant.RefreshToken)
	return err
}

// authFor returns a usable access token for a tenant, refreshing it
// when expiry is near. A failed refresh invalidates all platform-bound
// operations for the tenant until re-authorization.
func (c *Client) authFor(ctx context.Context, locationID string) (string, error) {
	tenant, err := c.store.GetTenant(ctx, locationID)
	if err != nil {
		return "", err
	}
	if time.Until(tenant.TokenExpiresAt) > tokenRefreshWindow {
		return tenant.AccessToken, nil
	}
	return c.refreshTokens(ctx, locationID, tenant.RefreshToken)
}

func (c *Client) refreshTokens(ctx context.Context, locationID, refreshToken string) (string, error) {
	zap.L().Info("refreshing platform tokens", zap.String("location_id", locationID))
	result, err := c.tokenCall(ctx, gout.H{
		"client_id":     c.cfg.ClientID,
		"client_secret": c.cfg.ClientSecret,
		"grant_type":    "refresh_token",
		"refresh_token": refreshToken,
		"user_type":     "Location",
	})
	if err != nil {
		zap.L().Error("platform token refresh failed",
			zap.String("location_id", locationID), zap.Error(err))
		return "", domain.NewUnauthorized("platform token refresh failed for location " + locationID)
	}

	if err := c.store.UpdateTenantTokens(ctx, locationID,
		result.AccessToken, result.RefreshToken, result.ExpiresAt()); err != nil {
		zap.L().Error("failed to persist refreshed tokens",
			zap.String("location_id", locationID), zap.Error(err))
	}
	return result.AccessToken, nil
}
