package instances

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/prixcenter/wlink/config"
	"github.com/prixcenter/wlink/internal/domain"
	"github.com/prixcenter/wlink/internal/evolution"
	"github.com/prixcenter/wlink/internal/store"
	"github.com/prixcenter/wlink/pkg/common"
)

// Gateway is the slice of the Evolution client the lifecycle service
// depends on.
type Gateway interface {
	ConnectionState(ctx context.Context, name, token string) (string, error)
	Connect(ctx context.Context, name, token, number string) (*evolution.ConnectResult, error)
	SetWebhook(ctx context.Context, name, token, callbackURL, bearer string) error
	FindWebhook(ctx context.Context, name, token string) (string, error)
	Logout(ctx context.Context, name, token string) error
	Delete(ctx context.Context, name, token string) error
	Restart(ctx context.Context, name, token string) error
	SetPresence(ctx context.Context, name, token, presence string) error
}

// Service owns the instance lifecycle: registration, state
// reconciliation against the gateway, pairing, logout and removal.
type Service struct {
	store   store.Store
	gateway Gateway
	cfg     *config.AppConfig
}

func NewService(st store.Store, gw Gateway, cfg *config.AppConfig) *Service {
	return &Service{store: st, gateway: gw, cfg: cfg}
}

// Create registers an instance for a tenant. The gateway is probed for
// its current connection state; an unreadable probe counts as "close".
// Webhook registration is best effort and never fails the creation.
func (s *Service) Create(ctx context.Context, locationID, name, token, customName string) (*domain.Instance, error) {
	if name == "" || token == "" {
		return nil, errors.New("instance name and token are required")
	}
	if _, err := s.store.GetInstanceByName(ctx, name); err == nil {
		return nil, errors.Errorf("instance %s already exists", name)
	} else if !domain.IsNotFound(err) {
		return nil, err
	}

	external, err := s.gateway.ConnectionState(ctx, name, token)
	if err != nil || external == "" {
		zap.L().Warn("gateway state probe failed on create, assuming closed",
			zap.String("instance", name), zap.Error(err))
		external = "close"
	}
	state, ok := domain.MapGatewayState(external)
	if !ok {
		state = domain.StateNotAuthorized
	}

	inst := &domain.Instance{
		ID:         common.UUIDint64(),
		Name:       name,
		CustomName: customName,
		APIToken:   token,
		State:      state,
		LocationID: locationID,
		Settings:   domain.Settings{},
	}
	if err := s.store.CreateInstance(ctx, inst); err != nil {
		return nil, err
	}

	if err := s.gateway.SetWebhook(ctx, name, token, s.cfg.WebhookURL(), token); err != nil {
		zap.L().Warn("webhook registration failed, instance created anyway",
			zap.String("instance", name), zap.Error(err))
	}
	zap.L().Info("instance created",
		zap.String("instance", name), zap.String("location_id", locationID), zap.String("state", state))
	return inst, nil
}

// List returns the tenant's instances, reconciling each against the
// gateway on the way out. Probe failures are logged per instance and
// leave the stored state untouched.
func (s *Service) List(ctx context.Context, locationID string) ([]domain.Instance, error) {
	list, err := s.store.GetInstancesByLocation(ctx, locationID)
	if err != nil {
		return nil, err
	}
	for i := range list {
		s.reconcile(ctx, &list[i])
		s.ensureWebhook(ctx, &list[i])
	}
	return list, nil
}

// reconcile probes the gateway and persists the mapped state when it
// differs from the stored one. Last write wins.
func (s *Service) reconcile(ctx context.Context, inst *domain.Instance) {
	external, err := s.gateway.ConnectionState(ctx, inst.Name, inst.APIToken)
	if err != nil {
		zap.L().Warn("state probe failed, keeping stored state",
			zap.String("instance", inst.Name), zap.Error(err))
		return
	}
	state, ok := domain.MapGatewayState(external)
	if !ok {
		zap.L().Debug("unrecognized gateway state during reconcile",
			zap.String("instance", inst.Name), zap.String("external_state", external))
		return
	}
	if state == inst.State {
		return
	}
	if err := s.store.UpdateInstanceState(ctx, inst.Name, state); err != nil {
		zap.L().Error("persisting reconciled state failed",
			zap.String("instance", inst.Name), zap.Error(err))
		return
	}
	zap.L().Info("instance state reconciled",
		zap.String("instance", inst.Name),
		zap.String("from", inst.State), zap.String("to", state))
	inst.State = state
}

// ensureWebhook re-registers the callback when the gateway reports a
// different URL than the configured one.
func (s *Service) ensureWebhook(ctx context.Context, inst *domain.Instance) {
	expected := s.cfg.WebhookURL()
	current, err := s.gateway.FindWebhook(ctx, inst.Name, inst.APIToken)
	if err != nil {
		zap.L().Debug("webhook lookup failed",
			zap.String("instance", inst.Name), zap.Error(err))
		return
	}
	if current == expected {
		return
	}
	if err := s.gateway.SetWebhook(ctx, inst.Name, inst.APIToken, expected, inst.APIToken); err != nil {
		zap.L().Warn("webhook re-registration failed",
			zap.String("instance", inst.Name), zap.Error(err))
		return
	}
	zap.L().Info("webhook re-registered",
		zap.String("instance", inst.Name), zap.String("url", expected))
}

// QR requests a pairing artifact. The instance enters the qr_code
// state before the gateway call, regardless of its outcome: the user
// is now in the pairing flow either way.
func (s *Service) QR(ctx context.Context, locationID string, id int64, number string) (*evolution.ConnectResult, error) {
	inst, err := s.getOwned(ctx, locationID, id)
	if err != nil {
		return nil, err
	}
	if err := s.store.UpdateInstanceState(ctx, inst.Name, domain.StateQRCode); err != nil {
		zap.L().Error("persisting qr_code state failed",
			zap.String("instance", inst.Name), zap.Error(err))
	}
	return s.gateway.Connect(ctx, inst.Name, inst.APIToken, number)
}

// Logout disconnects the WhatsApp session. The stored state changes
// only after the gateway confirms.
func (s *Service) Logout(ctx context.Context, locationID string, id int64) error {
	inst, err := s.getOwned(ctx, locationID, id)
	if err != nil {
		return err
	}
	if err := s.gateway.Logout(ctx, inst.Name, inst.APIToken); err != nil {
		return err
	}
	return s.store.UpdateInstanceState(ctx, inst.Name, domain.StateNotAuthorized)
}

// Delete removes the instance locally even when the gateway-side
// delete fails; an orphaned gateway session is recoverable, a stuck
// local row is not.
func (s *Service) Delete(ctx context.Context, locationID string, id int64) error {
	inst, err := s.getOwned(ctx, locationID, id)
	if err != nil {
		return err
	}
	if err := s.gateway.Delete(ctx, inst.Name, inst.APIToken); err != nil {
		zap.L().Warn("gateway delete failed, removing local record anyway",
			zap.String("instance", inst.Name), zap.Error(err))
	}
	return s.store.RemoveInstance(ctx, inst.ID)
}

func (s *Service) SetCustomName(ctx context.Context, locationID string, id int64, customName string) error {
	inst, err := s.getOwned(ctx, locationID, id)
	if err != nil {
		return err
	}
	return s.store.UpdateInstanceCustomName(ctx, inst.ID, customName)
}

func (s *Service) Restart(ctx context.Context, locationID string, id int64) error {
	inst, err := s.getOwned(ctx, locationID, id)
	if err != nil {
		return err
	}
	return s.gateway.Restart(ctx, inst.Name, inst.APIToken)
}

func (s *Service) SetPresence(ctx context.Context, locationID string, id int64, presence string) error {
	inst, err := s.getOwned(ctx, locationID, id)
	if err != nil {
		return err
	}
	return s.gateway.SetPresence(ctx, inst.Name, inst.APIToken, presence)
}

// ReconcileAll sweeps every stored instance, used by the scheduler.
func (s *Service) ReconcileAll(ctx context.Context) error {
	list, err := s.store.ListInstances(ctx)
	if err != nil {
		return err
	}
	for i := range list {
		s.reconcile(ctx, &list[i])
	}
	zap.L().Debug("instance reconcile sweep finished", zap.Int("count", len(list)))
	return nil
}

// getOwned loads an instance and enforces tenant scoping. A foreign
// instance id is indistinguishable from a missing one, and a request
// without a tenant scope matches nothing.
func (s *Service) getOwned(ctx context.Context, locationID string, id int64) (*domain.Instance, error) {
	inst, err := s.store.GetInstanceByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if inst.LocationID != locationID {
		return nil, domain.NewNotFound("instance", "id")
	}
	return inst, nil
}
