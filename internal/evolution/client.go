package evolution

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/guonaihong/gout"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/prixcenter/wlink/config"
	"github.com/prixcenter/wlink/internal/domain"
)

// Webhook event classes the bridge subscribes to.
var WebhookEvents = []string{"MESSAGES_UPSERT", "CONNECTION_UPDATE"}

// Client talks to the Evolution API gateway. All requests carry an
// apikey header: the per-instance credential token when given, the
// global admin key otherwise.
type Client struct {
	baseURL string
	apiKey  string
}

func NewClient(cfg *config.GatewayConfig) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		apiKey:  cfg.APIKey,
	}
}

func (c *Client) key(token string) string {
	if token != "" {
		return token
	}
	return c.apiKey
}

func (c *Client) url(format string, args ...interface{}) string {
	return c.baseURL + fmt.Sprintf(format, args...)
}

// request performs one HTTP call and returns status code and raw body.
// Transport errors and response bodies are left to the caller to judge;
// fallback chains need the distinction.
func (c *Client) request(ctx context.Context, method, rawURL, token string, body interface{}) (int, []byte, error) {
	var (
		code int
		raw  []byte
	)
	g := gout.New()
	var df = g.GET(rawURL)
	switch method {
	case http.MethodPost:
		df = g.POST(rawURL)
	case http.MethodPut:
		df = g.PUT(rawURL)
	case http.MethodDelete:
		df = g.DELETE(rawURL)
	}
	df = df.WithContext(ctx).SetHeader(gout.H{
		"Content-Type": "application/json",
		"apikey":       c.key(token),
	})
	if body != nil {
		df = df.SetJSON(body)
	}
	err := df.BindBody(&raw).Code(&code).Do()
	if err != nil {
		return 0, nil, errors.Wrapf(err, "%s %s", method, rawURL)
	}
	return code, raw, nil
}

func ok(code int) bool { return code >= 200 && code < 300 }

// firstString returns the first non-empty string found at the given
// dot paths of a JSON document.
func firstString(raw []byte, paths ...string) string {
	for _, p := range paths {
		parts := strings.Split(p, ".")
		keys := make([]interface{}, len(parts))
		for i, s := range parts {
			keys[i] = s
		}
		if v := jsoniter.Get(raw, keys...).ToString(); v != "" {
			return v
		}
	}
	return ""
}

// ConnectionState probes the gateway for the raw connection state
// string of an instance ("open", "connecting", "qrcode", "close").
func (c *Client) ConnectionState(ctx context.Context, name, token string) (string, error) {
	code, raw, err := c.request(ctx, http.MethodGet, c.url("/instance/connectionState/%s", name), token, nil)
	if err != nil {
		return "", domain.NewIntegrationError("gateway connectionState", err)
	}
	if !ok(code) {
		return "", domain.NewIntegrationError("gateway connectionState",
			errors.Errorf("status %d: %s", code, raw))
	}
	state := firstString(raw, "instance.state", "state")
	if state == "" {
		zap.L().Warn("gateway returned no readable connection state",
			zap.String("instance", name), zap.ByteString("body", raw))
	}
	return state, nil
}

// SendText sends a plain text message. Older gateway versions expect the
// body under textMessage.text, so that shape is retried on failure.
func (c *Client) SendText(ctx context.Context, name, token, number, text string) error {
	target := c.url("/message/sendText/%s", name)
	options := gout.H{"delay": 1200, "presence": "composing"}

	code, raw, err := c.request(ctx, http.MethodPost, target, token, gout.H{
		"number":  number,
		"options": options,
		"text":    text,
	})
	if err == nil && ok(code) {
		return nil
	}
	zap.L().Debug("sendText flat payload rejected, retrying legacy shape",
		zap.String("instance", name), zap.Int("code", code), zap.ByteString("body", raw), zap.Error(err))

	code, raw, err = c.request(ctx, http.MethodPost, target, token, gout.H{
		"number":      number,
		"options":     options,
		"textMessage": gout.H{"text": text},
	})
	if err == nil && ok(code) {
		return nil
	}
	if err == nil {
		err = errors.Errorf("status %d: %s", code, raw)
	}
	return domain.NewIntegrationError("gateway sendText", err)
}

// ConnectResult carries whichever pairing artifact the gateway issued.
type ConnectResult struct {
	QRCode      string `json:"qrcode,omitempty"`
	PairingCode string `json:"pairing_code,omitempty"`
}

// Connect requests a QR code (or pairing code when a number is given).
func (c *Client) Connect(ctx context.Context, name, token, number string) (*ConnectResult, error) {
	target := c.url("/instance/connect/%s", name)
	if number != "" {
		target += "?number=" + url.QueryEscape(number)
	}
	code, raw, err := c.request(ctx, http.MethodGet, target, token, nil)
	if err != nil {
		return nil, domain.NewIntegrationError("gateway connect", err)
	}
	if !ok(code) {
		return nil, domain.NewIntegrationError("gateway connect",
			errors.Errorf("status %d: %s", code, raw))
	}
	return &ConnectResult{
		QRCode:      firstString(raw, "base64", "qr", "qrCode", "qrcode.base64"),
		PairingCode: firstString(raw, "pairingCode.code", "code"),
	}, nil
}

// SetWebhook registers the callback URL for an instance, trying the
// three payload shapes accepted across gateway versions in order.
func (c *Client) SetWebhook(ctx context.Context, name, token, callbackURL, bearer string) error {
	target := c.url("/webhook/set/%s", name)

	full := gout.H{
		"url":               callbackURL,
		"enabled":           true,
		"webhook_by_events": false,
		"events":            WebhookEvents,
		"headers": gout.H{
			"Authorization": "Bearer " + bearer,
		},
	}
	code, raw, err := c.request(ctx, http.MethodPost, target, token, full)
	if err == nil && ok(code) {
		return nil
	}
	zap.L().Debug("webhook set full payload rejected, retrying url-only",
		zap.String("instance", name), zap.Int("code", code), zap.ByteString("body", raw), zap.Error(err))

	code, raw, err = c.request(ctx, http.MethodPost, target, token, gout.H{"url": callbackURL})
	if err == nil && ok(code) {
		return nil
	}
	zap.L().Debug("webhook set url payload rejected, retrying query form",
		zap.String("instance", name), zap.Int("code", code), zap.ByteString("body", raw), zap.Error(err))

	code, raw, err = c.request(ctx, http.MethodPost,
		target+"?url="+url.QueryEscape(callbackURL), token, nil)
	if err == nil && ok(code) {
		return nil
	}
	if err == nil {
		err = errors.Errorf("status %d: %s", code, raw)
	}
	return domain.NewIntegrationError("gateway webhook set", err)
}

// FindWebhook returns the currently registered callback URL, empty when
// none is configured.
func (c *Client) FindWebhook(ctx context.Context, name, token string) (string, error) {
	code, raw, err := c.request(ctx, http.MethodGet, c.url("/webhook/find/%s", name), token, nil)
	if err != nil {
		return "", domain.NewIntegrationError("gateway webhook find", err)
	}
	if code == http.StatusNotFound {
		return "", nil
	}
	if !ok(code) {
		return "", domain.NewIntegrationError("gateway webhook find",
			errors.Errorf("status %d: %s", code, raw))
	}
	return firstString(raw, "url", "webhook.url"), nil
}

func (c *Client) simpleCall(ctx context.Context, op, method, target, token string, body interface{}) error {
	code, raw, err := c.request(ctx, method, target, token, body)
	if err != nil {
		return domain.NewIntegrationError(op, err)
	}
	if !ok(code) {
		return domain.NewIntegrationError(op, errors.Errorf("status %d: %s", code, raw))
	}
	return nil
}

func (c *Client) Logout(ctx context.Context, name, token string) error {
	return c.simpleCall(ctx, "gateway logout", http.MethodDelete, c.url("/instance/logout/%s", name), token, nil)
}

func (c *Client) Delete(ctx context.Context, name, token string) error {
	return c.simpleCall(ctx, "gateway delete", http.MethodDelete, c.url("/instance/delete/%s", name), token, nil)
}

func (c *Client) Restart(ctx context.Context, name, token string) error {
	return c.simpleCall(ctx, "gateway restart", http.MethodPut, c.url("/instance/restart/%s", name), token, nil)
}

func (c *Client) SetPresence(ctx context.Context, name, token, presence string) error {
	return c.simpleCall(ctx, "gateway setPresence", http.MethodPost,
		c.url("/instance/setPresence/%s", name), token, gout.H{"presence": presence})
}

// SetSettings pushes gateway-side instance settings verbatim.
func (c *Client) SetSettings(ctx context.Context, name, token string, settings map[string]interface{}) error {
	return c.simpleCall(ctx, "gateway settings set", http.MethodPost,
		c.url("/settings/set/%s", name), token, settings)
}

// FindSettings reads gateway-side instance settings.
func (c *Client) FindSettings(ctx context.Context, name, token string) (map[string]interface{}, error) {
	code, raw, err := c.request(ctx, http.MethodGet, c.url("/settings/find/%s", name), token, nil)
	if err != nil {
		return nil, domain.NewIntegrationError("gateway settings find", err)
	}
	if !ok(code) {
		return nil, domain.NewIntegrationError("gateway settings find",
			errors.Errorf("status %d: %s", code, raw))
	}
	var out map[string]interface{}
	if err := jsoniter.Unmarshal(raw, &out); err != nil {
		return nil, domain.NewIntegrationError("gateway settings find", err)
	}
	return out, nil
}

// ProfilePicture fetches the avatar URL for a chat id, trying the
// per-instance endpoint first and the flat variant as fallback.
func (c *Client) ProfilePicture(ctx context.Context, name, token, jid string) (string, error) {
	code, raw, err := c.request(ctx, http.MethodPost,
		c.url("/chat/profile-pic/%s", name), token, gout.H{"jid": jid})
	if err == nil && ok(code) {
		if u := firstString(raw, "profilePictureUrl", "pictureUrl", "url"); u != "" {
			return u, nil
		}
	}

	code, raw, err = c.request(ctx, http.MethodGet,
		c.url("/chat/profile-pic/%s", url.PathEscape(jid)), token, nil)
	if err != nil {
		return "", domain.NewIntegrationError("gateway profile picture", err)
	}
	if !ok(code) {
		return "", domain.NewIntegrationError("gateway profile picture",
			errors.Errorf("status %d: %s", code, raw))
	}
	return firstString(raw, "profilePictureUrl", "pictureUrl", "url"), nil
}
