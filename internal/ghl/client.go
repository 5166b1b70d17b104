package ghl

import (
	"context"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/guonaihong/gout"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	"github.com/prixcenter/wlink/config"
	"github.com/prixcenter/wlink/internal/store"
)

const apiVersion = "2021-07-28"

// ContactSource tags every contact created by this bridge.
const ContactSource = "WhatsApp WLink"

var userIDPattern = regexp.MustCompile(`^[A-Za-z0-9]{15,}$`)

// Client talks to the GoHighLevel REST API on behalf of a tenant,
// refreshing OAuth tokens lazily before use.
type Client struct {
	cfg   *config.PlatformConfig
	store store.Store
}

func NewClient(cfg *config.PlatformConfig, st store.Store) *Client {
	return &Client{cfg: cfg, store: st}
}

// IsValidUserID reports whether a platform user id looks structurally
// valid and is not actually the location id leaking through a payload.
func (c *Client) IsValidUserID(userID, locationID string) bool {
	return userIDPattern.MatchString(userID) && userID != locationID
}

func (c *Client) url(path string) string {
	return strings.TrimRight(c.cfg.ServicesURL, "/") + path
}

// request performs one authenticated API call for a tenant.
func (c *Client) request(ctx context.Context, method, path, token string, query url.Values, body interface{}) (int, []byte, error) {
	var (
		code int
		raw  []byte
	)
	target := c.url(path)
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	g := gout.New()
	df := g.GET(target)
	switch method {
	case http.MethodPost:
		df = g.POST(target)
	case http.MethodPut:
		df = g.PUT(target)
	case http.MethodDelete:
		df = g.DELETE(target)
	}
	df = df.WithContext(ctx).SetHeader(gout.H{
		"Authorization": "Bearer " + token,
		"Version":       apiVersion,
		"Content-Type":  "application/json",
		"Accept":        "application/json",
	})
	if body != nil {
		df = df.SetJSON(body)
	}
	err := df.BindBody(&raw).Code(&code).Do()
	if err != nil {
		return 0, nil, errors.Wrapf(err, "%s %s", method, path)
	}
	return code, raw, nil
}

func ok(code int) bool { return code >= 200 && code < 300 }

// firstString returns the first non-empty string found at the given
// dot paths of a JSON document.
func firstString(raw []byte, paths ...string) string {
	for _, p := range paths {
		parts := strings.Split(p, ".")
		keys := make([]interface{}, len(parts))
		for i, s := range parts {
			keys[i] = s
		}
		if v := jsoniter.Get(raw, keys...).ToString(); v != "" {
			return v
		}
	}
	return ""
}
