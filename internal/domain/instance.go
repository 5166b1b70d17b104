package domain

import (
	"database/sql/driver"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

// Instance connection states.
const (
	StateStarting      = "starting"
	StateQRCode        = "qr_code"
	StateAuthorized    = "authorized"
	StateNotAuthorized = "notAuthorized"
	StateYellowCard    = "yellowCard"
	StateBlocked       = "blocked"
)

// Settings keys maintained by the agent attribution cache.
const (
	SettingAgentPhone     = "agentPhone"
	SettingAgentUserID    = "agentUserId"
	SettingAgentAvatarURL = "agentAvatarUrl"
)

// MapGatewayState maps a gateway-reported connection state to the local
// instance state. Unrecognized values report ok=false and must leave the
// stored state untouched.
func MapGatewayState(external string) (state string, ok bool) {
	switch external {
	case "open":
		return StateAuthorized, true
	case "connecting":
		return StateStarting, true
	case "qrcode":
		return StateQRCode, true
	case "close":
		return StateNotAuthorized, true
	default:
		return "", false
	}
}

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Settings is the schemaless per-instance key-value map, persisted as a
// JSON column.
type Settings map[string]interface{}

func (s Settings) Value() (driver.Value, error) {
	if s == nil {
		return "{}", nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, errors.Wrap(err, "marshal instance settings")
	}
	return string(data), nil
}

func (s *Settings) Scan(value interface{}) error {
	if value == nil {
		*s = Settings{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return errors.Errorf("unsupported settings column type %T", value)
	}
	if len(data) == 0 {
		*s = Settings{}
		return nil
	}
	return errors.Wrap(json.Unmarshal(data, s), "unmarshal instance settings")
}

// Clone returns a shallow copy, so cached reads can be merged without
// mutating shared state.
func (s Settings) Clone() Settings {
	out := make(Settings, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Instance is one WhatsApp connection owned by exactly one tenant.
// Name is the only key used to address the gateway; GatewayID is an
// opaque GUID assigned remotely and is informational only.
type Instance struct {
	ID         int64    `json:"id,string" gorm:"primaryKey"`
	Name       string   `json:"name" gorm:"column:instance_name;uniqueIndex"`
	GatewayID  string   `json:"gateway_id" gorm:"column:gateway_id;index"`
	CustomName string   `json:"custom_name"`
	APIToken   string   `json:"-" gorm:"column:api_token"`
	State      string   `json:"state"`
	Settings   Settings `json:"settings" gorm:"type:text"`
	LocationID string   `json:"location_id" gorm:"column:location_id;index"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (Instance) TableName() string {
	return "wlink_instance"
}

// AgentSettings is the typed view of the attribution cache entries.
type AgentSettings struct {
	AgentPhone     string `mapstructure:"agentPhone"`
	AgentUserID    string `mapstructure:"agentUserId"`
	AgentAvatarURL string `mapstructure:"agentAvatarUrl"`
}
