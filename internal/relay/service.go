package relay

import (
	"context"

	"go.uber.org/zap"

	"github.com/prixcenter/wlink/config"
	"github.com/prixcenter/wlink/internal/ghl"
	"github.com/prixcenter/wlink/internal/store"
)

// Gateway is the slice of the gateway client the relay needs.
type Gateway interface {
	SendText(ctx context.Context, instance, token, number, text string) error
	ProfilePicture(ctx context.Context, instance, token, jid string) (string, error)
}

// Platform is the slice of the platform client the relay needs.
type Platform interface {
	FindContactByPhone(ctx context.Context, locationID, phone string) (*ghl.Contact, error)
	GetContact(ctx context.Context, locationID, contactID string) (*ghl.Contact, error)
	CreateContact(ctx context.Context, locationID string, in ghl.ContactCreate) (*ghl.Contact, error)
	UpdateContact(ctx context.Context, locationID, contactID string, in ghl.ContactUpdate) error
	FindOrCreateConversation(ctx context.Context, locationID, contactID string) (string, error)
	FindUserByPhone(ctx context.Context, locationID, phone string) (*ghl.User, error)
	PostMessage(ctx context.Context, locationID string, msg ghl.MessagePost) error
	UpdateMessageStatus(ctx context.Context, locationID, messageID, status, errMsg string) error
	IsValidUserID(userID, locationID string) bool
}

// Service relays messages between the gateway and the platform.
type Service struct {
	store    store.Store
	gateway  Gateway
	platform Platform
	cfg      *config.AppConfig
}

func NewService(st store.Store, gw Gateway, platform Platform, cfg *config.AppConfig) *Service {
	return &Service{store: st, gateway: gw, platform: platform, cfg: cfg}
}

// fireAndForget runs a best-effort side effect whose failure must never
// block message relay. The failure is logged under the operation name
// and swallowed.
func fireAndForget(op string, fn func() error) {
	if err := fn(); err != nil {
		zap.L().Warn("best-effort operation failed", zap.String("op", op), zap.Error(err))
	}
}
