package bridgeapi

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/prixcenter/wlink/config"
	"github.com/prixcenter/wlink/internal/domain"
	"github.com/prixcenter/wlink/internal/evolution"
	"github.com/prixcenter/wlink/internal/ghl"
	"github.com/prixcenter/wlink/internal/relay"
	"github.com/prixcenter/wlink/internal/store"
)

type fakeRelay struct {
	gatewayEvents  []*relay.GatewayEvent
	platformEvents []*relay.PlatformMessage
}

func (r *fakeRelay) HandleGatewayEvent(_ context.Context, evt *relay.GatewayEvent) error {
	r.gatewayEvents = append(r.gatewayEvents, evt)
	return nil
}

func (r *fakeRelay) HandlePlatformEvent(_ context.Context, evt *relay.PlatformMessage) error {
	r.platformEvents = append(r.platformEvents, evt)
	return nil
}

type fakeInstances struct {
	created []string
}

func (f *fakeInstances) Create(_ context.Context, locationID, name, _, _ string) (*domain.Instance, error) {
	f.created = append(f.created, locationID+"/"+name)
	return &domain.Instance{Name: name, LocationID: locationID}, nil
}

func (f *fakeInstances) List(context.Context, string) ([]domain.Instance, error) { return nil, nil }
func (f *fakeInstances) QR(context.Context, string, int64, string) (*evolution.ConnectResult, error) {
	return nil, nil
}
func (f *fakeInstances) Logout(context.Context, string, int64) error              { return nil }
func (f *fakeInstances) Delete(context.Context, string, int64) error              { return nil }
func (f *fakeInstances) SetCustomName(context.Context, string, int64, string) error { return nil }
func (f *fakeInstances) Restart(context.Context, string, int64) error             { return nil }
func (f *fakeInstances) SetPresence(context.Context, string, int64, string) error { return nil }

type fakeOAuth struct {
	result *ghl.TokenResult
	err    error
}

func (f *fakeOAuth) ExchangeCode(context.Context, string) (*ghl.TokenResult, error) {
	return f.result, f.err
}

func setupHandlers(t *testing.T) (*store.MemoryStore, *fakeRelay, *fakeInstances, *fakeOAuth) {
	t.Helper()
	st := store.NewMemoryStore()
	rs := &fakeRelay{}
	is := &fakeInstances{}
	oc := &fakeOAuth{}

	appConfig = config.DefaultAppConfig
	appStore = st
	relaySvc = rs
	instSvc = is
	oauth = oc

	inst := &domain.Instance{
		ID: 1, Name: "bot1", APIToken: "secret",
		State: domain.StateAuthorized, LocationID: "loc1", Settings: domain.Settings{},
	}
	if err := st.CreateInstance(context.Background(), inst); err != nil {
		t.Fatalf("seed instance: %v", err)
	}
	return st, rs, is, oc
}

func doRequest(method, target, body string, headers map[string]string, h echo.HandlerFunc) *httptest.ResponseRecorder {
	e := echo.New()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	_ = h(c)
	return rec
}

const connectionEvent = `{"event":"connection.update","instance":"bot1","data":{"state":"open"}}`

func TestEvolutionWebhookValidToken(t *testing.T) {
	_, rs, _, _ := setupHandlers(t)

	rec := doRequest(http.MethodPost, "/webhooks/evolution", connectionEvent,
		map[string]string{echo.HeaderAuthorization: "Bearer secret"}, evolutionWebhook)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "EVENT_RECEIVED" {
		t.Errorf("body = %q", rec.Body.String())
	}
	if len(rs.gatewayEvents) != 1 || rs.gatewayEvents[0].Instance != "bot1" {
		t.Errorf("event not relayed: %+v", rs.gatewayEvents)
	}
}

func TestEvolutionWebhookBadToken(t *testing.T) {
	_, rs, _, _ := setupHandlers(t)

	rec := doRequest(http.MethodPost, "/webhooks/evolution", connectionEvent,
		map[string]string{echo.HeaderAuthorization: "Bearer wrong"}, evolutionWebhook)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if len(rs.gatewayEvents) != 0 {
		t.Error("rejected event must never reach the relay")
	}
}

func TestEvolutionWebhookMissingToken(t *testing.T) {
	_, rs, _, _ := setupHandlers(t)

	rec := doRequest(http.MethodPost, "/webhooks/evolution", connectionEvent, nil, evolutionWebhook)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if len(rs.gatewayEvents) != 0 {
		t.Error("rejected event must never reach the relay")
	}
}

func TestEvolutionWebhookUnknownInstance(t *testing.T) {
	_, rs, _, _ := setupHandlers(t)

	body := `{"event":"connection.update","instance":"ghost","data":{"state":"open"}}`
	rec := doRequest(http.MethodPost, "/webhooks/evolution", body,
		map[string]string{echo.HeaderAuthorization: "Bearer secret"}, evolutionWebhook)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if len(rs.gatewayEvents) != 0 {
		t.Error("unknown instance must never reach the relay")
	}
}

func TestEvolutionWebhookUndecodableBody(t *testing.T) {
	_, rs, _, _ := setupHandlers(t)

	rec := doRequest(http.MethodPost, "/webhooks/evolution", "{not json",
		map[string]string{echo.HeaderAuthorization: "Bearer secret"}, evolutionWebhook)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if len(rs.gatewayEvents) != 0 {
		t.Error("unparseable body must never reach the relay")
	}
}

// slowRelay simulates expensive downstream calls during processing.
type slowRelay struct {
	fakeRelay
	delay time.Duration
}

func (r *slowRelay) HandleGatewayEvent(ctx context.Context, evt *relay.GatewayEvent) error {
	time.Sleep(r.delay)
	return r.fakeRelay.HandleGatewayEvent(ctx, evt)
}

// The 200 must reach the sender before processing runs, not after:
// otherwise slow downstream calls push the sender past its delivery
// timeout and trigger redelivery.
func TestEvolutionWebhookAcksBeforeProcessing(t *testing.T) {
	setupHandlers(t)
	slow := &slowRelay{delay: time.Second}
	relaySvc = slow

	e := echo.New()
	e.POST("/webhooks/evolution", evolutionWebhook)
	srv := httptest.NewServer(e)
	defer srv.Close()

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/webhooks/evolution",
		strings.NewReader(connectionEvent))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(echo.HeaderAuthorization, "Bearer secret")

	start := time.Now()
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()

	ack := make([]byte, len("EVENT_RECEIVED"))
	if _, err := io.ReadFull(resp.Body, ack); err != nil {
		t.Fatalf("read ack: %v", err)
	}
	elapsed := time.Since(start)

	if resp.StatusCode != http.StatusOK || string(ack) != "EVENT_RECEIVED" {
		t.Fatalf("ack = %d %q", resp.StatusCode, ack)
	}
	if elapsed >= slow.delay {
		t.Errorf("ack arrived after %v, must precede the %v processing", elapsed, slow.delay)
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	if len(slow.gatewayEvents) != 1 {
		t.Errorf("event not processed after ack: %+v", slow.gatewayEvents)
	}
}

func TestPlatformWebhookRelaysEvent(t *testing.T) {
	_, rs, _, _ := setupHandlers(t)

	body := `{"locationId":"loc1","phone":"15551234567","message":"Hi","messageId":"m1"}`
	rec := doRequest(http.MethodPost, "/webhooks/ghl", body, nil, platformWebhook)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(rs.platformEvents) != 1 || rs.platformEvents[0].Message != "Hi" {
		t.Errorf("event not relayed: %+v", rs.platformEvents)
	}
}

func TestPlatformWebhookHeaderLocationFallback(t *testing.T) {
	_, rs, _, _ := setupHandlers(t)

	body := `{"phone":"15551234567","message":"Hi"}`
	rec := doRequest(http.MethodPost, "/webhooks/ghl", body,
		map[string]string{"x-location-id": "loc9"}, platformWebhook)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(rs.platformEvents) != 1 || rs.platformEvents[0].LocationID != "loc9" {
		t.Errorf("header location not applied: %+v", rs.platformEvents)
	}
}

func TestPlatformWebhookUndecodableBodyAcked(t *testing.T) {
	_, rs, _, _ := setupHandlers(t)

	rec := doRequest(http.MethodPost, "/webhooks/ghl", "{not json", nil, platformWebhook)

	if rec.Code != http.StatusOK {
		t.Fatalf("undecodable platform webhook must still be acked, status = %d", rec.Code)
	}
	if len(rs.platformEvents) != 0 {
		t.Error("undecodable body must be dropped")
	}
}

func TestOAuthCallbackPersistsTenantAndCreatesInstance(t *testing.T) {
	st, _, is, oc := setupHandlers(t)
	oc.result = &ghl.TokenResult{
		AccessToken:  "at",
		RefreshToken: "rt",
		ExpiresIn:    86400,
		LocationID:   "loc2",
		CompanyID:    "comp1",
	}

	rec := doRequest(http.MethodGet,
		"/oauth/callback?code=abc&instanceName=bot2&token=tok2&customName=Sales", "", nil, oauthCallback)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	tenant, err := st.GetTenant(context.Background(), "loc2")
	if err != nil {
		t.Fatalf("tenant not stored: %v", err)
	}
	if tenant.AccessToken != "at" || tenant.CompanyID != "comp1" {
		t.Errorf("tenant fields wrong: %+v", tenant)
	}
	if len(is.created) != 1 || is.created[0] != "loc2/bot2" {
		t.Errorf("instance not created: %v", is.created)
	}
}

func TestOAuthCallbackRequiresCode(t *testing.T) {
	setupHandlers(t)

	rec := doRequest(http.MethodGet, "/oauth/callback", "", nil, oauthCallback)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
