package relay

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/prixcenter/wlink/internal/domain"
	"github.com/prixcenter/wlink/internal/ghl"
	"github.com/prixcenter/wlink/pkg/common"
)

// HandlePlatformEvent relays one platform-originated message to
// WhatsApp. On success the originating message is marked delivered; on
// failure after resolution it is marked failed with the error attached,
// both as fire-and-forget status updates.
func (s *Service) HandlePlatformEvent(ctx context.Context, evt *PlatformMessage) error {
	configured := s.cfg.Platform.ConversationProviderID
	if configured != "" && evt.ConversationProviderID != configured {
		zap.L().Info("ignoring platform webhook for foreign conversation provider",
			zap.String("provider_id", evt.ConversationProviderID))
		return nil
	}
	if evt.LocationID == "" {
		zap.L().Warn("dropping platform webhook without location id",
			zap.String("message_id", evt.MessageID))
		return nil
	}
	if evt.Message == "" {
		zap.L().Debug("dropping platform webhook without message body",
			zap.String("location_id", evt.LocationID))
		return nil
	}

	if err := s.deliverToGateway(ctx, evt); err != nil {
		s.reportDeliveryStatus(ctx, evt, "failed", err.Error())
		return err
	}
	s.reportDeliveryStatus(ctx, evt, "delivered", "")
	return nil
}

func (s *Service) deliverToGateway(ctx context.Context, evt *PlatformMessage) error {
	contact := s.resolvePlatformContact(ctx, evt)

	phone := evt.Phone
	var tagInstance string
	if contact != nil {
		if contact.Phone != "" {
			phone = contact.Phone
		}
		tagInstance = InstanceFromTags(contact.Tags)
	}
	if phone == "" {
		return domain.NewNotFound("target phone", evt.ContactID)
	}

	inst, err := s.resolveOutboundInstance(ctx, evt.LocationID, tagInstance)
	if err != nil {
		return err
	}
	if inst.State != domain.StateAuthorized {
		return domain.NewIntegrationError("gateway send",
			errors.Errorf("instance %s is not authorized (state %s)", inst.Name, inst.State))
	}

	return s.sendWithRetry(ctx, inst, phone, evt.Message)
}

func (s *Service) resolvePlatformContact(ctx context.Context, evt *PlatformMessage) *ghl.Contact {
	if evt.ContactID == "" {
		return nil
	}
	contact, err := s.platform.GetContact(ctx, evt.LocationID, evt.ContactID)
	if err != nil {
		zap.L().Warn("contact resolution failed, falling back to raw phone",
			zap.String("contact_id", evt.ContactID), zap.Error(err))
		return nil
	}
	return contact
}

// resolveOutboundInstance prefers the contact's instance tag and falls
// back to the tenant's first instance.
func (s *Service) resolveOutboundInstance(ctx context.Context, locationID, tagInstance string) (*domain.Instance, error) {
	if tagInstance != "" {
		inst, err := s.store.GetInstanceByName(ctx, tagInstance)
		if err == nil {
			return inst, nil
		}
		zap.L().Warn("tagged instance not found, falling back to tenant default",
			zap.String("instance", tagInstance), zap.Error(err))
	}
	list, err := s.store.GetInstancesByLocation(ctx, locationID)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, domain.NewNotFound("instance for location", locationID)
	}
	return &list[0], nil
}

// sendWithRetry tries the digits-only recipient form first and the
// E.164 form on failure; gateway versions disagree on which they accept.
func (s *Service) sendWithRetry(ctx context.Context, inst *domain.Instance, phone, text string) error {
	digits := common.NormalizeDigits(phone)
	err := s.gateway.SendText(ctx, inst.Name, inst.APIToken, digits, text)
	if err == nil {
		return nil
	}
	zap.L().Warn("digits-only send failed, retrying E.164 form",
		zap.String("instance", inst.Name), zap.Error(err))

	err2 := s.gateway.SendText(ctx, inst.Name, inst.APIToken, common.NormalizeE164(phone), text)
	if err2 == nil {
		return nil
	}
	return domain.NewIntegrationError("gateway send",
		errors.Wrapf(err2, "digits form failed: %v", err))
}

// reportDeliveryStatus is fire-and-forget: status reporting must never
// fail the relay, and it is skipped when the event carries no message id.
func (s *Service) reportDeliveryStatus(ctx context.Context, evt *PlatformMessage, status, errMsg string) {
	if evt.MessageID == "" || evt.LocationID == "" {
		return
	}
	fireAndForget("report delivery status", func() error {
		return s.platform.UpdateMessageStatus(ctx, evt.LocationID, evt.MessageID, status, errMsg)
	})
}
