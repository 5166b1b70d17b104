package ghl

import (
	"context"
	"net/http"
	"strings"

	"github.com/guonaihong/gout"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/prixcenter/wlink/internal/domain"
)

// Message directions as the platform expects them.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// MessagePost is one message delivered into a platform conversation.
// Outbound means an agent-sent WhatsApp message echoed back through the
// gateway; it carries the attributed UserID when resolution succeeded.
type MessagePost struct {
	ConversationID string
	Body           string
	Direction      string
	UserID         string
	Attachments    []string
}

// PostMessage writes a message into a conversation. With a conversation
// provider configured the message is typed Custom and bound to it;
// otherwise it falls back to the SMS channel.
func (c *Client) PostMessage(ctx context.Context, locationID string, msg MessagePost) error {
	token, err := c.authFor(ctx, locationID)
	if err != nil {
		return err
	}

	payload := gout.H{
		"conversationId": msg.ConversationID,
		"message":        msg.Body,
		"direction":      msg.Direction,
	}
	if c.cfg.ConversationProviderID != "" {
		payload["type"] = "Custom"
		payload["conversationProviderId"] = c.cfg.ConversationProviderID
	} else {
		payload["type"] = "SMS"
	}
	if msg.Direction == DirectionInbound {
		payload["status"] = "unread"
	}
	if msg.Direction == DirectionOutbound && msg.UserID != "" {
		payload["userId"] = msg.UserID
	}
	if len(msg.Attachments) > 0 {
		payload["attachments"] = msg.Attachments
	}

	code, raw, err := c.request(ctx, http.MethodPost, "/conversations/messages/inbound", token, nil, payload)
	if err != nil {
		return domain.NewIntegrationError("platform message post", err)
	}
	if !ok(code) {
		return domain.NewIntegrationError("platform message post",
			errors.Errorf("status %d: %s", code, raw))
	}
	zap.L().Info("posted message to platform conversation",
		zap.String("location_id", locationID),
		zap.String("conversation_id", msg.ConversationID),
		zap.String("direction", msg.Direction))
	return nil
}

// UpdateMessageStatus reports delivery status for an outbound platform
// message. Without a configured conversation provider the call is
// skipped entirely; a 403 naming the conversation provider means this
// tenant never enabled the feature and is also skipped, avoiding an
// authorization error loop. Any other failure retries the legacy bulk
// endpoint once.
func (c *Client) UpdateMessageStatus(ctx context.Context, locationID, messageID, status, errMsg string) error {
	if c.cfg.ConversationProviderID == "" {
		zap.L().Debug("no conversation provider configured, skipping status update",
			zap.String("message_id", messageID))
		return nil
	}
	token, err := c.authFor(ctx, locationID)
	if err != nil {
		return err
	}

	payload := gout.H{"status": status}
	if errMsg != "" {
		payload["error"] = errMsg
	}
	code, raw, err := c.request(ctx, http.MethodPut,
		"/conversations/messages/"+messageID+"/status", token, nil, payload)
	if err == nil && ok(code) {
		return nil
	}
	if code == http.StatusForbidden && strings.Contains(strings.ToLower(string(raw)), "conversation provider") {
		zap.L().Debug("tenant has no conversation provider, skipping status update",
			zap.String("location_id", locationID), zap.String("message_id", messageID))
		return nil
	}
	zap.L().Warn("message status update rejected, retrying legacy endpoint",
		zap.String("message_id", messageID), zap.Int("code", code), zap.Error(err))

	payload["messageId"] = messageID
	code, raw, err = c.request(ctx, http.MethodPost, "/conversations/messages/status", token, nil, payload)
	if err == nil && ok(code) {
		return nil
	}
	if err == nil {
		err = errors.Errorf("status %d: %s", code, raw)
	}
	return domain.NewIntegrationError("platform message status update", err)
}
