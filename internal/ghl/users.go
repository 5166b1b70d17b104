package ghl

import (
	"context"
	"net/http"
	"net/url"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	"github.com/prixcenter/wlink/internal/domain"
	"github.com/prixcenter/wlink/pkg/common"
)

// User is a platform workspace member.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
}

// ListUsers returns the tenant's user directory. The trailing-slash
// path is tried first; some API revisions only answer the bare one.
func (c *Client) ListUsers(ctx context.Context, locationID string) ([]User, error) {
	token, err := c.authFor(ctx, locationID)
	if err != nil {
		return nil, err
	}
	query := url.Values{"locationId": {locationID}}

	var lastErr error
	for _, path := range []string{"/users/", "/users"} {
		code, raw, err := c.request(ctx, http.MethodGet, path, token, query, nil)
		if err != nil {
			lastErr = err
			continue
		}
		if !ok(code) {
			lastErr = errors.Errorf("status %d: %s", code, raw)
			continue
		}
		var payload struct {
			Users []User `json:"users"`
		}
		if err := jsoniter.Unmarshal(raw, &payload); err != nil {
			lastErr = err
			continue
		}
		return payload.Users, nil
	}
	return nil, domain.NewIntegrationError("platform user list", lastErr)
}

// FindUserByPhone matches a directory user by phone digit suffix.
// Returns nil without error when nobody matches.
func (c *Client) FindUserByPhone(ctx context.Context, locationID, phone string) (*User, error) {
	digits := common.NormalizeDigits(phone)
	if digits == "" {
		return nil, nil
	}
	users, err := c.ListUsers(ctx, locationID)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		if u.Phone != "" && common.PhoneSuffixMatch(u.Phone, digits) {
			found := u
			return &found, nil
		}
	}
	return nil, nil
}
