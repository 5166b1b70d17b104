package bridgeapi

import (
	"context"
	"crypto/subtle"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/prixcenter/wlink/internal/relay"
)

func bearerToken(c echo.Context) string {
	auth := c.Request().Header.Get(echo.HeaderAuthorization)
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

// evolutionWebhook receives gateway events. The caller authenticates
// with the per-instance bearer token, compared in constant time; the
// 200 acknowledgement goes out before the event is processed so slow
// downstream calls never trigger gateway redelivery timeouts.
func evolutionWebhook(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_BODY", "Unable to read webhook body", nil)
	}
	evt, err := relay.DecodeGatewayEvent(body)
	if err != nil || evt.Instance == "" {
		zap.L().Warn("rejecting gateway webhook without a readable instance", zap.Error(err))
		return fail(c, http.StatusUnauthorized, "UNAUTHORIZED", "Unknown instance", nil)
	}

	inst, err := appStore.GetInstanceByName(c.Request().Context(), evt.Instance)
	if err != nil {
		zap.L().Warn("rejecting gateway webhook for unknown instance",
			zap.String("instance", evt.Instance))
		return fail(c, http.StatusUnauthorized, "UNAUTHORIZED", "Unknown instance", nil)
	}
	token := bearerToken(c)
	if subtle.ConstantTimeCompare([]byte(token), []byte(inst.APIToken)) != 1 {
		zap.L().Warn("rejecting gateway webhook with bad bearer token",
			zap.String("instance", evt.Instance))
		return fail(c, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid token", nil)
	}

	acknowledge(c)
	if err := relaySvc.HandleGatewayEvent(context.Background(), evt); err != nil {
		zap.L().Error("gateway event processing failed after acknowledgement",
			zap.String("instance", evt.Instance), zap.String("event", evt.Event), zap.Error(err))
	}
	return nil
}

// acknowledge writes and flushes the 200 before processing starts, so
// the sender's delivery timeout never covers downstream calls. The
// relay then runs on a detached context: the sender closing its
// connection after the ack must not cancel processing.
func acknowledge(c echo.Context) {
	if err := c.String(http.StatusOK, "EVENT_RECEIVED"); err != nil {
		zap.L().Warn("webhook acknowledgement write failed", zap.Error(err))
		return
	}
	c.Response().Flush()
}

// platformWebhook receives outbound-message events from the platform.
// Acknowledged unconditionally; undecodable payloads are dropped with
// a log since the platform retries non-2xx deliveries indefinitely.
func platformWebhook(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_BODY", "Unable to read webhook body", nil)
	}
	evt, err := relay.DecodePlatformMessage(body)
	if err != nil {
		zap.L().Warn("dropping undecodable platform webhook", zap.Error(err))
		return c.String(http.StatusOK, "EVENT_RECEIVED")
	}
	if evt.LocationID == "" {
		evt.LocationID = c.Request().Header.Get("x-location-id")
	}

	acknowledge(c)
	if err := relaySvc.HandlePlatformEvent(context.Background(), evt); err != nil {
		zap.L().Error("platform event processing failed after acknowledgement",
			zap.String("location_id", evt.LocationID), zap.String("message_id", evt.MessageID), zap.Error(err))
	}
	return nil
}
