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
	"github.com/prixcenter/wlink/pkg/common"
)

// Contact is a platform contact record.
type Contact struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	LocationID string   `json:"locationId"`
	Phone      string   `json:"phone"`
	AvatarURL  string   `json:"profilePhoto"`
	Tags       []string `json:"tags"`
}

// ContactCreate carries the fields set when the bridge creates a contact.
type ContactCreate struct {
	Phone     string
	Name      string
	AvatarURL string
	Tags      []string
}

// ContactUpdate carries the mutable fields; empty values are not sent.
type ContactUpdate struct {
	Name      string
	AvatarURL string
	Tags      []string
}

func decodeContact(raw []byte, paths ...string) *Contact {
	for _, p := range paths {
		node := jsoniter.Get(raw, p)
		if node.LastError() == nil && node.ValueType() == jsoniter.ObjectValue {
			var contact Contact
			if err := jsoniter.UnmarshalFromString(node.ToString(), &contact); err == nil && contact.ID != "" {
				return &contact
			}
		}
	}
	var contact Contact
	if err := jsoniter.Unmarshal(raw, &contact); err == nil && contact.ID != "" {
		return &contact
	}
	return nil
}

func decodeContactList(raw []byte) []Contact {
	var payload struct {
		Contacts []Contact `json:"contacts"`
	}
	if err := jsoniter.Unmarshal(raw, &payload); err != nil {
		return nil
	}
	return payload.Contacts
}

// FindContactByPhone resolves a contact by phone. The exact E.164 lookup
// runs first; 404/400 is expected for unseen numbers and falls back to a
// broader search with digit suffix matching, which tolerates country-code
// mismatches between the two systems. Returns nil without error when no
// contact matches.
func (c *Client) FindContactByPhone(ctx context.Context, locationID, phone string) (*Contact, error) {
	token, err := c.authFor(ctx, locationID)
	if err != nil {
		return nil, err
	}

	e164 := common.NormalizeE164(phone)
	if e164 == "" {
		return nil, nil
	}

	query := url.Values{"phone": {e164}, "locationId": {locationID}}
	code, raw, err := c.request(ctx, http.MethodGet, "/contacts/lookup", token, query, nil)
	if err != nil {
		return nil, domain.NewIntegrationError("platform contact lookup", err)
	}
	switch {
	case ok(code):
		if contacts := decodeContactList(raw); len(contacts) > 0 {
			return &contacts[0], nil
		}
		if contact := decodeContact(raw, "contact"); contact != nil {
			return contact, nil
		}
	case code != http.StatusNotFound && code != http.StatusBadRequest:
		return nil, domain.NewIntegrationError("platform contact lookup",
			errors.Errorf("status %d: %s", code, raw))
	}

	zap.L().Info("contact lookup missed, falling back to search",
		zap.String("location_id", locationID), zap.String("phone", e164))
	return c.searchContactByDigits(ctx, token, locationID, common.NormalizeDigits(phone))
}

func (c *Client) searchContactByDigits(ctx context.Context, token, locationID, digits string) (*Contact, error) {
	if digits == "" {
		return nil, nil
	}
	query := url.Values{"query": {digits}, "locationId": {locationID}}
	code, raw, err := c.request(ctx, http.MethodGet, "/contacts/", token, query, nil)
	if err != nil {
		return nil, domain.NewIntegrationError("platform contact search", err)
	}
	if !ok(code) {
		return nil, domain.NewIntegrationError("platform contact search",
			errors.Errorf("status %d: %s", code, raw))
	}
	for _, contact := range decodeContactList(raw) {
		if common.PhoneSuffixMatch(contact.Phone, digits) {
			found := contact
			return &found, nil
		}
	}
	return nil, nil
}

// GetContact fetches a contact by id.
func (c *Client) GetContact(ctx context.Context, locationID, contactID string) (*Contact, error) {
	token, err := c.authFor(ctx, locationID)
	if err != nil {
		return nil, err
	}
	code, raw, err := c.request(ctx, http.MethodGet, "/contacts/"+contactID, token, nil, nil)
	if err != nil {
		return nil, domain.NewIntegrationError("platform contact get", err)
	}
	if code == http.StatusNotFound {
		return nil, domain.NewNotFound("contact", contactID)
	}
	if !ok(code) {
		return nil, domain.NewIntegrationError("platform contact get",
			errors.Errorf("status %d: %s", code, raw))
	}
	contact := decodeContact(raw, "contact")
	if contact == nil {
		return nil, domain.NewIntegrationError("platform contact get",
			errors.New("unreadable contact payload"))
	}
	return contact, nil
}

// CreateContact creates a contact sourced to this bridge.
func (c *Client) CreateContact(ctx context.Context, locationID string, in ContactCreate) (*Contact, error) {
	token, err := c.authFor(ctx, locationID)
	if err != nil {
		return nil, err
	}
	payload := gout.H{
		"locationId": locationID,
		"phone":      common.NormalizeE164(in.Phone),
		"name":       in.Name,
		"source":     ContactSource,
	}
	if len(in.Tags) > 0 {
		payload["tags"] = in.Tags
	}
	if in.AvatarURL != "" {
		payload["profilePhoto"] = in.AvatarURL
	}

	code, raw, err := c.request(ctx, http.MethodPost, "/contacts/", token, nil, payload)
	if err != nil {
		return nil, domain.NewIntegrationError("platform contact create", err)
	}
	if !ok(code) {
		return nil, domain.NewIntegrationError("platform contact create",
			errors.Errorf("status %d: %s", code, raw))
	}
	contact := decodeContact(raw, "contact")
	if contact == nil {
		return nil, domain.NewIntegrationError("platform contact create",
			errors.New("unreadable contact payload"))
	}
	zap.L().Info("created platform contact",
		zap.String("location_id", locationID),
		zap.String("contact_id", contact.ID),
		zap.String("name", in.Name))
	return contact, nil
}

// UpdateContact updates only the provided fields of a contact.
func (c *Client) UpdateContact(ctx context.Context, locationID, contactID string, in ContactUpdate) error {
	token, err := c.authFor(ctx, locationID)
	if err != nil {
		return err
	}
	payload := gout.H{}
	if in.Name != "" {
		payload["name"] = in.Name
	}
	if in.AvatarURL != "" {
		payload["profilePhoto"] = in.AvatarURL
	}
	if len(in.Tags) > 0 {
		payload["tags"] = in.Tags
	}
	if len(payload) == 0 {
		return nil
	}

	code, raw, err := c.request(ctx, http.MethodPut, "/contacts/"+contactID, token, nil, payload)
	if err != nil {
		return domain.NewIntegrationError("platform contact update", err)
	}
	if !ok(code) {
		return domain.NewIntegrationError("platform contact update",
			errors.Errorf("status %d: %s", code, raw))
	}
	return nil
}
