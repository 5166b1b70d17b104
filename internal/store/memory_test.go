package store

import (
	"context"
	"testing"
	"time"

	"github.com/prixcenter/wlink/internal/domain"
)

func TestMemoryStoreTenantLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if _, err := s.GetTenant(ctx, "loc1"); !domain.IsNotFound(err) {
		t.Fatalf("expected NotFound, got %v", err)
	}

	err := s.UpsertTenant(ctx, &domain.GhlTenant{
		LocationID:   "loc1",
		CompanyID:    "comp1",
		AccessToken:  "at1",
		RefreshToken: "rt1",
	})
	if err != nil {
		t.Fatalf("UpsertTenant: %v", err)
	}

	// second upsert keeps companyId when omitted and replaces tokens
	err = s.UpsertTenant(ctx, &domain.GhlTenant{
		LocationID:   "loc1",
		AccessToken:  "at2",
		RefreshToken: "rt2",
	})
	if err != nil {
		t.Fatalf("UpsertTenant again: %v", err)
	}

	got, err := s.GetTenant(ctx, "loc1")
	if err != nil {
		t.Fatalf("GetTenant: %v", err)
	}
	if got.AccessToken != "at2" || got.CompanyID != "comp1" {
		t.Errorf("unexpected tenant after upsert: %+v", got)
	}

	exp := time.Now().Add(time.Hour)
	if err := s.UpdateTenantTokens(ctx, "loc1", "at3", "rt3", exp); err != nil {
		t.Fatalf("UpdateTenantTokens: %v", err)
	}
	got, _ = s.GetTenant(ctx, "loc1")
	if got.AccessToken != "at3" || !got.TokenExpiresAt.Equal(exp) {
		t.Errorf("tokens not updated: %+v", got)
	}

	if err := s.UpdateTenantTokens(ctx, "missing", "a", "r", exp); !domain.IsNotFound(err) {
		t.Errorf("expected NotFound for missing tenant, got %v", err)
	}
}

func TestMemoryStoreInstanceLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	inst := &domain.Instance{
		ID:         1001,
		Name:       "bot1",
		GatewayID:  "guid-1",
		APIToken:   "secret",
		State:      domain.StateNotAuthorized,
		LocationID: "loc1",
	}
	if err := s.CreateInstance(ctx, inst); err != nil {
		t.Fatalf("CreateInstance: %v", err)
	}

	byName, err := s.GetInstanceByName(ctx, "bot1")
	if err != nil || byName.ID != 1001 {
		t.Fatalf("GetInstanceByName: %v %+v", err, byName)
	}
	byID, err := s.GetInstanceByID(ctx, 1001)
	if err != nil || byID.Name != "bot1" {
		t.Fatalf("GetInstanceByID: %v", err)
	}
	byGUID, err := s.FindInstanceByGatewayID(ctx, "guid-1")
	if err != nil || byGUID.Name != "bot1" {
		t.Fatalf("FindInstanceByGatewayID: %v", err)
	}
	if _, err := s.FindInstanceByGatewayID(ctx, ""); !domain.IsNotFound(err) {
		t.Errorf("empty gateway id must not match, got %v", err)
	}

	if err := s.UpdateInstanceState(ctx, "bot1", domain.StateAuthorized); err != nil {
		t.Fatalf("UpdateInstanceState: %v", err)
	}
	byName, _ = s.GetInstanceByName(ctx, "bot1")
	if byName.State != domain.StateAuthorized {
		t.Errorf("state not persisted: %s", byName.State)
	}

	if err := s.UpdateInstanceSettings(ctx, "bot1", domain.Settings{domain.SettingAgentPhone: "123"}); err != nil {
		t.Fatalf("UpdateInstanceSettings: %v", err)
	}
	byName, _ = s.GetInstanceByName(ctx, "bot1")
	if byName.Settings[domain.SettingAgentPhone] != "123" {
		t.Errorf("settings not persisted: %+v", byName.Settings)
	}

	if err := s.UpdateInstanceCustomName(ctx, 1001, "Support Bot"); err != nil {
		t.Fatalf("UpdateInstanceCustomName: %v", err)
	}

	list, err := s.GetInstancesByLocation(ctx, "loc1")
	if err != nil || len(list) != 1 || list[0].CustomName != "Support Bot" {
		t.Fatalf("GetInstancesByLocation: %v %+v", err, list)
	}

	if err := s.RemoveInstance(ctx, 1001); err != nil {
		t.Fatalf("RemoveInstance: %v", err)
	}
	if _, err := s.GetInstanceByName(ctx, "bot1"); !domain.IsNotFound(err) {
		t.Errorf("expected NotFound after removal, got %v", err)
	}
}

// Stored copies must be isolated from caller-held maps.
func TestMemoryStoreSettingsIsolation(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_ = s.CreateInstance(ctx, &domain.Instance{ID: 1, Name: "bot1", LocationID: "loc1"})

	settings := domain.Settings{"k": "v1"}
	_ = s.UpdateInstanceSettings(ctx, "bot1", settings)
	settings["k"] = "v2"

	got, _ := s.GetInstanceByName(ctx, "bot1")
	if got.Settings["k"] != "v1" {
		t.Errorf("stored settings aliased caller map: %+v", got.Settings)
	}
}
