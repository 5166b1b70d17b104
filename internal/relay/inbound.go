package relay

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/prixcenter/wlink/internal/domain"
	"github.com/prixcenter/wlink/internal/ghl"
	"github.com/prixcenter/wlink/pkg/common"
)

// HandleGatewayEvent dispatches one gateway webhook delivery. Unknown
// event kinds are ignored. Errors bubble to the webhook boundary, which
// has already acknowledged receipt and only logs them.
func (s *Service) HandleGatewayEvent(ctx context.Context, evt *GatewayEvent) error {
	switch evt.Event {
	case EventConnectionUpdate:
		return s.handleConnectionUpdate(ctx, evt)
	case EventMessagesUpsert, "MESSAGES_UPSERT":
		return s.handleMessageUpsert(ctx, evt)
	default:
		zap.L().Debug("ignoring gateway event",
			zap.String("event", evt.Event), zap.String("instance", evt.Instance))
		return nil
	}
}

func (s *Service) handleConnectionUpdate(ctx context.Context, evt *GatewayEvent) error {
	data, err := evt.ConnectionData()
	if err != nil || data.State == "" {
		zap.L().Warn("dropping connection update without state",
			zap.String("instance", evt.Instance), zap.Error(err))
		return nil
	}

	inst, err := s.store.GetInstanceByName(ctx, evt.Instance)
	if err != nil {
		zap.L().Warn("dropping connection update for unknown instance",
			zap.String("instance", evt.Instance), zap.Error(err))
		return nil
	}

	// Last write wins. The gateway provides no ordering token, so a
	// stale delivery can regress state advanced by a newer poll.
	if mapped, ok := domain.MapGatewayState(data.State); !ok {
		zap.L().Warn("unrecognized gateway connection state",
			zap.String("instance", inst.Name), zap.String("state", data.State))
	} else if mapped != inst.State {
		if err := s.store.UpdateInstanceState(ctx, inst.Name, mapped); err != nil {
			zap.L().Error("failed to persist instance state",
				zap.String("instance", inst.Name), zap.Error(err))
		} else {
			zap.L().Info("instance state updated from webhook",
				zap.String("instance", inst.Name),
				zap.String("from", inst.State), zap.String("to", mapped))
			inst.State = mapped
		}
	}

	if data.Wuid != "" {
		digits := common.NormalizeDigits(common.JidPhone(data.Wuid))
		entries := map[string]interface{}{domain.SettingAgentPhone: digits}
		if data.ProfilePictureURL != "" {
			entries[domain.SettingAgentAvatarURL] = data.ProfilePictureURL
		}
		s.cacheAgentSettings(ctx, inst, entries)
		s.mapAgentByPhone(ctx, inst, digits)
	}
	return nil
}

func (s *Service) handleMessageUpsert(ctx context.Context, evt *GatewayEvent) error {
	data, err := evt.MessageData()
	if err != nil || data.Key.RemoteJid == "" {
		zap.L().Warn("dropping message upsert without remote jid",
			zap.String("instance", evt.Instance), zap.Error(err))
		return nil
	}

	inst := s.resolveInstance(ctx, evt.Instance, data.InstanceID)
	if inst == nil {
		zap.L().Warn("dropping message for unknown instance",
			zap.String("instance", evt.Instance),
			zap.String("gateway_id", data.InstanceID))
		return nil
	}

	if strings.HasPrefix(data.Key.RemoteJid, "status@") {
		zap.L().Debug("ignoring status broadcast", zap.String("instance", inst.Name))
		return nil
	}

	body := MessageBody(data.Message)
	if body == "" {
		zap.L().Debug("dropping message without relayable body",
			zap.String("instance", inst.Name), zap.String("message_id", data.Key.ID))
		return nil
	}

	contactPhone := common.JidPhone(data.Key.RemoteJid)
	contact, err := s.resolveContact(ctx, inst, data, contactPhone)
	if err != nil {
		zap.L().Warn("aborting message relay, contact unresolved",
			zap.String("instance", inst.Name), zap.String("phone", contactPhone), zap.Error(err))
		return err
	}

	conversationID, err := s.platform.FindOrCreateConversation(ctx, inst.LocationID, contact.ID)
	if err != nil {
		zap.L().Error("aborting message relay, conversation unresolved",
			zap.String("instance", inst.Name), zap.String("contact_id", contact.ID), zap.Error(err))
		return err
	}

	post := ghl.MessagePost{
		ConversationID: conversationID,
		Body:           body,
		Direction:      ghl.DirectionInbound,
	}
	if data.Key.FromMe {
		post.Direction = ghl.DirectionOutbound
		post.UserID = s.resolveAgentUserID(ctx, inst, evt.Sender)
	}
	return s.platform.PostMessage(ctx, inst.LocationID, post)
}

// resolveInstance looks the instance up by name first, then by the
// gateway-assigned GUID embedded in the event.
func (s *Service) resolveInstance(ctx context.Context, name, gatewayID string) *domain.Instance {
	inst, err := s.store.GetInstanceByName(ctx, name)
	if err == nil {
		return inst
	}
	if gatewayID == "" {
		return nil
	}
	inst, err = s.store.FindInstanceByGatewayID(ctx, gatewayID)
	if err != nil {
		return nil
	}
	return inst
}

// resolveContact finds or creates the platform contact for a message.
// Existing contact names are never overwritten; inbound messages may
// refresh the avatar only.
func (s *Service) resolveContact(ctx context.Context, inst *domain.Instance, data *MessageData, phone string) (*ghl.Contact, error) {
	contact, err := s.platform.FindContactByPhone(ctx, inst.LocationID, phone)
	if err != nil {
		return nil, err
	}

	if data.Key.FromMe {
		if contact != nil {
			return contact, nil
		}
		return s.platform.CreateContact(ctx, inst.LocationID, ghl.ContactCreate{
			Phone: phone,
			Name:  PlaceholderContactName(phone),
			Tags:  []string{InstanceTag(inst.Name)},
		})
	}

	var avatar string
	fireAndForget("fetch contact avatar", func() error {
		var err error
		avatar, err = s.gateway.ProfilePicture(ctx, inst.Name, inst.APIToken, data.Key.RemoteJid)
		return err
	})

	if contact != nil {
		if avatar != "" {
			contactID := contact.ID
			s.fireAndForgetAvatarUpdate(ctx, inst.LocationID, contactID, avatar)
		}
		return contact, nil
	}

	name := data.PushName
	if name == "" {
		name = PlaceholderContactName(phone)
	}
	return s.platform.CreateContact(ctx, inst.LocationID, ghl.ContactCreate{
		Phone:     phone,
		Name:      name,
		AvatarURL: avatar,
		Tags:      []string{InstanceTag(inst.Name)},
	})
}

func (s *Service) fireAndForgetAvatarUpdate(ctx context.Context, locationID, contactID, avatar string) {
	fireAndForget("update contact avatar", func() error {
		return s.platform.UpdateContact(ctx, locationID, contactID, ghl.ContactUpdate{AvatarURL: avatar})
	})
}
