package ghl

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prixcenter/wlink/config"
	"github.com/prixcenter/wlink/internal/domain"
	"github.com/prixcenter/wlink/internal/store"
)

func newTestClient(t *testing.T, handler http.Handler, providerID string) (*Client, *store.MemoryStore, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	st := store.NewMemoryStore()
	cfg := &config.PlatformConfig{
		ServicesURL:            srv.URL,
		ClientID:               "cid",
		ClientSecret:           "csecret",
		ConversationProviderID: providerID,
		AppURL:                 "https://bridge.example.com",
	}
	return NewClient(cfg, st), st, srv
}

func seedTenant(t *testing.T, st *store.MemoryStore, expiresAt time.Time) {
	t.Helper()
	err := st.UpsertTenant(context.Background(), &domain.GhlTenant{
		LocationID:     "loc1",
		AccessToken:    "old-access",
		RefreshToken:   "old-refresh",
		TokenExpiresAt: expiresAt,
	})
	if err != nil {
		t.Fatalf("seed tenant: %v", err)
	}
}

func TestAuthForRefreshesNearExpiry(t *testing.T) {
	var sawRefresh bool
	var authHeader string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth/token":
			_ = r.ParseForm()
			if r.Form.Get("grant_type") != "refresh_token" || r.Form.Get("refresh_token") != "old-refresh" {
				t.Errorf("unexpected token form: %v", r.Form)
			}
			sawRefresh = true
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"access_token":  "new-access",
				"refresh_token": "new-refresh",
				"expires_in":    86400,
				"locationId":    "loc1",
			})
		case "/users/":
			authHeader = r.Header.Get("Authorization")
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"users": []interface{}{}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	c, st, _ := newTestClient(t, handler, "")
	seedTenant(t, st, time.Now().Add(2*time.Minute))

	if _, err := c.ListUsers(context.Background(), "loc1"); err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if !sawRefresh {
		t.Error("expected a refresh call for a token expiring within the window")
	}
	if authHeader != "Bearer new-access" {
		t.Errorf("API call did not use refreshed token: %q", authHeader)
	}
	tenant, _ := st.GetTenant(context.Background(), "loc1")
	if tenant.AccessToken != "new-access" || tenant.RefreshToken != "new-refresh" {
		t.Errorf("refreshed tokens not persisted: %+v", tenant)
	}
}

func TestAuthForSkipsRefreshWhenFresh(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth/token" {
			t.Error("unexpected refresh for a fresh token")
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"users": []interface{}{}})
	})
	c, st, _ := newTestClient(t, handler, "")
	seedTenant(t, st, time.Now().Add(time.Hour))

	if _, err := c.ListUsers(context.Background(), "loc1"); err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
}

func TestAuthForRefreshFailureIsUnauthorized(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})
	c, st, _ := newTestClient(t, handler, "")
	seedTenant(t, st, time.Now().Add(-time.Minute))

	_, err := c.ListUsers(context.Background(), "loc1")
	if !domain.IsUnauthorized(err) {
		t.Fatalf("expected UnauthorizedError, got %v", err)
	}
}

func TestFindContactByPhoneFallsBackToSearch(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/contacts/lookup":
			w.WriteHeader(http.StatusNotFound)
		case "/contacts/":
			if r.URL.Query().Get("query") != "5511999998888" {
				t.Errorf("unexpected search query: %s", r.URL.RawQuery)
			}
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"contacts": []map[string]interface{}{
					{"id": "c-other", "phone": "+15550000000"},
					{"id": "c-match", "phone": "+5511999998888"},
				},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	c, st, _ := newTestClient(t, handler, "")
	seedTenant(t, st, time.Now().Add(time.Hour))

	contact, err := c.FindContactByPhone(context.Background(), "loc1", "5511999998888")
	if err != nil {
		t.Fatalf("FindContactByPhone: %v", err)
	}
	if contact == nil || contact.ID != "c-match" {
		t.Errorf("expected suffix-matched contact, got %+v", contact)
	}
}

func TestFindContactByPhoneNoMatchIsNil(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/contacts/lookup":
			w.WriteHeader(http.StatusBadRequest)
		case "/contacts/":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"contacts": []interface{}{}})
		}
	})
	c, st, _ := newTestClient(t, handler, "")
	seedTenant(t, st, time.Now().Add(time.Hour))

	contact, err := c.FindContactByPhone(context.Background(), "loc1", "5511999998888")
	if err != nil || contact != nil {
		t.Fatalf("expected nil contact without error, got %+v %v", contact, err)
	}
}

func TestFindOrCreateConversationWalksVariants(t *testing.T) {
	var createPaths []string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/conversations/search":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"conversations": []interface{}{}})
		case r.Method == http.MethodPost:
			createPaths = append(createPaths, r.URL.Path)
			if r.URL.Path != "/conversations/create" {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"conversation": map[string]interface{}{"id": "conv-9"},
			})
		}
	})
	c, st, _ := newTestClient(t, handler, "")
	seedTenant(t, st, time.Now().Add(time.Hour))

	id, err := c.FindOrCreateConversation(context.Background(), "loc1", "c1")
	if err != nil {
		t.Fatalf("FindOrCreateConversation: %v", err)
	}
	if id != "conv-9" {
		t.Errorf("conversation id = %q", id)
	}
	if len(createPaths) != 3 {
		t.Errorf("expected all 3 create variants attempted, got %v", createPaths)
	}
}

func TestFindOrCreateConversationExhaustedIsIntegrationError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/conversations/search" {
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"conversations": []interface{}{}})
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})
	c, st, _ := newTestClient(t, handler, "")
	seedTenant(t, st, time.Now().Add(time.Hour))

	_, err := c.FindOrCreateConversation(context.Background(), "loc1", "c1")
	if !domain.IsIntegrationError(err) {
		t.Fatalf("expected IntegrationError, got %v", err)
	}
}

func TestPostMessageUsesCustomTypeWithProvider(t *testing.T) {
	var payload map[string]interface{}
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/conversations/messages/inbound" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &payload)
		w.WriteHeader(http.StatusCreated)
	})
	c, st, _ := newTestClient(t, handler, "prov-1")
	seedTenant(t, st, time.Now().Add(time.Hour))

	err := c.PostMessage(context.Background(), "loc1", MessagePost{
		ConversationID: "conv-1",
		Body:           "Hola",
		Direction:      DirectionInbound,
	})
	if err != nil {
		t.Fatalf("PostMessage: %v", err)
	}
	if payload["type"] != "Custom" || payload["conversationProviderId"] != "prov-1" {
		t.Errorf("expected Custom typed post, got %+v", payload)
	}
	if payload["status"] != "unread" {
		t.Errorf("inbound post must be unread: %+v", payload)
	}
}

func TestUpdateMessageStatusProviderForbiddenIsSkipped(t *testing.T) {
	var calls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message":"No conversation provider found"}`))
	})
	c, st, _ := newTestClient(t, handler, "prov-1")
	seedTenant(t, st, time.Now().Add(time.Hour))

	if err := c.UpdateMessageStatus(context.Background(), "loc1", "m1", "delivered", ""); err != nil {
		t.Fatalf("expected skip on provider 403, got %v", err)
	}
	if calls != 1 {
		t.Errorf("403 provider response must not trigger the fallback, calls=%d", calls)
	}
}

func TestUpdateMessageStatusFallsBackToLegacyEndpoint(t *testing.T) {
	var paths []string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path)
		if r.Method == http.MethodPut {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	c, st, _ := newTestClient(t, handler, "prov-1")
	seedTenant(t, st, time.Now().Add(time.Hour))

	if err := c.UpdateMessageStatus(context.Background(), "loc1", "m1", "failed", "boom"); err != nil {
		t.Fatalf("UpdateMessageStatus: %v", err)
	}
	if len(paths) != 2 || paths[1] != "POST /conversations/messages/status" {
		t.Errorf("expected legacy fallback, got %v", paths)
	}
}

func TestUpdateMessageStatusWithoutProviderIsNoop(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no HTTP call expected without a provider id")
	})
	c, st, _ := newTestClient(t, handler, "")
	seedTenant(t, st, time.Now().Add(time.Hour))

	if err := c.UpdateMessageStatus(context.Background(), "loc1", "m1", "delivered", ""); err != nil {
		t.Fatalf("UpdateMessageStatus: %v", err)
	}
}

func TestIsValidUserID(t *testing.T) {
	c := &Client{cfg: &config.PlatformConfig{}}
	cases := []struct {
		userID, locationID string
		want               bool
	}{
		{"AbCdEfGhIjKlMnOp", "loc1", true},
		{"short", "loc1", false},
		{"AbCdEfGhIjKlMnOp", "AbCdEfGhIjKlMnOp", false},
		{"has-dash-0123456789", "loc1", false},
		{"", "loc1", false},
	}
	for _, tc := range cases {
		if got := c.IsValidUserID(tc.userID, tc.locationID); got != tc.want {
			t.Errorf("IsValidUserID(%q, %q) = %v, want %v", tc.userID, tc.locationID, got, tc.want)
		}
	}
}
