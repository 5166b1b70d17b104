package bridgeapi

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/prixcenter/wlink/internal/domain"
)

const oauthSuccessPage = `<!DOCTYPE html>
<html>
<head><title>WLink</title></head>
<body>
<h2>Connected</h2>
<p>The WhatsApp bridge is now authorized for your account. You can close this window.</p>
</body>
</html>`

// oauthCallback completes the platform OAuth flow: exchanges the code,
// persists the tenant tokens, and optionally registers a first
// instance when the install link carried one. Instance creation
// failures do not fail the authorization.
func oauthCallback(c echo.Context) error {
	code := c.QueryParam("code")
	if code == "" {
		return fail(c, http.StatusBadRequest, "MISSING_CODE", "Authorization code is required", nil)
	}

	ctx := c.Request().Context()
	result, err := oauth.ExchangeCode(ctx, code)
	if err != nil {
		zap.L().Error("oauth code exchange failed", zap.Error(err))
		return fail(c, http.StatusBadGateway, "OAUTH_FAILED", "Authorization code exchange failed", err.Error())
	}

	tenant := &domain.GhlTenant{
		LocationID:     result.LocationID,
		CompanyID:      result.CompanyID,
		AccessToken:    result.AccessToken,
		RefreshToken:   result.RefreshToken,
		TokenExpiresAt: time.Now().Add(time.Duration(result.ExpiresIn) * time.Second),
	}
	if err := appStore.UpsertTenant(ctx, tenant); err != nil {
		zap.L().Error("tenant persistence failed after oauth exchange",
			zap.String("location_id", result.LocationID), zap.Error(err))
		return fail(c, http.StatusInternalServerError, "TENANT_SAVE_FAILED", "Failed to store tenant tokens", nil)
	}
	zap.L().Info("tenant authorized",
		zap.String("location_id", result.LocationID), zap.String("company_id", result.CompanyID))

	name := c.QueryParam("instanceName")
	token := c.QueryParam("token")
	if name != "" && token != "" {
		if _, err := instSvc.Create(ctx, result.LocationID, name, token, c.QueryParam("customName")); err != nil {
			zap.L().Warn("instance creation during oauth callback failed",
				zap.String("instance", name), zap.Error(err))
		}
	}

	return c.HTML(http.StatusOK, oauthSuccessPage)
}
