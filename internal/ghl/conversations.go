package ghl

import (
	"context"
	"net/http"
	"net/url"

	"github.com/guonaihong/gout"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/prixcenter/wlink/internal/domain"
)

// Conversation create endpoint variants, tried in order. The platform
// has shipped all three shapes across API revisions.
var conversationCreatePaths = []string{
	"/conversations/",
	"/conversations",
	"/conversations/create",
}

func conversationIDFrom(raw []byte) string {
	if id := firstString(raw, "conversation.id", "id", "conversationId"); id != "" {
		return id
	}
	node := jsoniter.Get(raw, "conversations", 0, "id")
	if node.LastError() == nil {
		return node.ToString()
	}
	return ""
}

// FindOrCreateConversation returns the conversation id for a contact,
// searching first and walking the create endpoint variants on miss.
// Exhausting every candidate is an integration failure; the caller must
// abort relay of the message rather than drop it silently.
func (c *Client) FindOrCreateConversation(ctx context.Context, locationID, contactID string) (string, error) {
	token, err := c.authFor(ctx, locationID)
	if err != nil {
		return "", err
	}

	query := url.Values{"contactId": {contactID}, "locationId": {locationID}}
	code, raw, err := c.request(ctx, http.MethodGet, "/conversations/search", token, query, nil)
	if err == nil && ok(code) {
		if id := conversationIDFrom(raw); id != "" {
			return id, nil
		}
	} else {
		zap.L().Warn("conversation search failed, will try creation",
			zap.String("contact_id", contactID), zap.Int("code", code), zap.Error(err))
	}

	payload := gout.H{"locationId": locationID, "contactId": contactID}
	for _, path := range conversationCreatePaths {
		code, raw, err = c.request(ctx, http.MethodPost, path, token, nil, payload)
		if err != nil || !ok(code) {
			zap.L().Debug("conversation create variant rejected",
				zap.String("path", path), zap.Int("code", code), zap.Error(err))
			continue
		}
		if id := conversationIDFrom(raw); id != "" {
			return id, nil
		}
	}
	return "", domain.NewIntegrationError("platform conversation create",
		errors.Errorf("all endpoint variants exhausted for contact %s", contactID))
}
