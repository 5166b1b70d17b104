package bridgeapi

import (
	"context"

	"github.com/prixcenter/wlink/config"
	"github.com/prixcenter/wlink/internal/domain"
	"github.com/prixcenter/wlink/internal/evolution"
	"github.com/prixcenter/wlink/internal/ghl"
	"github.com/prixcenter/wlink/internal/relay"
	"github.com/prixcenter/wlink/internal/store"
	"github.com/prixcenter/wlink/internal/webserver"
)

type relayService interface {
	HandleGatewayEvent(ctx context.Context, evt *relay.GatewayEvent) error
	HandlePlatformEvent(ctx context.Context, evt *relay.PlatformMessage) error
}

type instanceService interface {
	Create(ctx context.Context, locationID, name, token, customName string) (*domain.Instance, error)
	List(ctx context.Context, locationID string) ([]domain.Instance, error)
	QR(ctx context.Context, locationID string, id int64, number string) (*evolution.ConnectResult, error)
	Logout(ctx context.Context, locationID string, id int64) error
	Delete(ctx context.Context, locationID string, id int64) error
	SetCustomName(ctx context.Context, locationID string, id int64, customName string) error
	Restart(ctx context.Context, locationID string, id int64) error
	SetPresence(ctx context.Context, locationID string, id int64, presence string) error
}

type oauthClient interface {
	ExchangeCode(ctx context.Context, code string) (*ghl.TokenResult, error)
}

var (
	appConfig *config.AppConfig
	appStore  store.Store
	relaySvc  relayService
	instSvc   instanceService
	oauth     oauthClient
)

// Init wires the handler dependencies and registers every route.
func Init(cfg *config.AppConfig, st store.Store, rs relayService, is instanceService, oc oauthClient) {
	appConfig = cfg
	appStore = st
	relaySvc = rs
	instSvc = is
	oauth = oc

	webserver.PubPOST("/webhooks/evolution", evolutionWebhook)
	webserver.PubPOST("/webhooks/ghl", platformWebhook)
	webserver.PubGET("/oauth/callback", oauthCallback)
	registerInstanceRoutes()
}
