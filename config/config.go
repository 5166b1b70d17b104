package config

import (
	"os"
	"path"
	"strings"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v2"

	"github.com/prixcenter/wlink/pkg/common"
)

type SysConfig struct {
	Appid    string `yaml:"appid" json:"appid"`
	Location string `yaml:"location" json:"location"`
	Workdir  string `yaml:"workdir" json:"workdir"`
	Debug    bool   `yaml:"debug" json:"debug"`
}

type WebConfig struct {
	Host string `yaml:"host" json:"host"`
	Port int    `yaml:"port" json:"port"`
}

type LogConfig struct {
	Mode       string `yaml:"mode" json:"mode"`
	FileEnable bool   `yaml:"file_enable" json:"file_enable"`
	Filename   string `yaml:"filename" json:"filename"`
}

type DBConfig struct {
	Type   string `yaml:"type" json:"type"`
	Host   string `yaml:"host" json:"host"`
	Port   int    `yaml:"port" json:"port"`
	Name   string `yaml:"name" json:"name"`
	User   string `yaml:"user" json:"user"`
	Passwd string `yaml:"passwd" json:"passwd"`
	Debug  bool   `yaml:"debug" json:"debug"`
}

// GatewayConfig configures the Evolution API endpoint.
type GatewayConfig struct {
	URL    string `yaml:"url" json:"url"`
	APIKey string `yaml:"apikey" json:"apikey"`
}

// PlatformConfig configures the GoHighLevel integration.
type PlatformConfig struct {
	ServicesURL            string `yaml:"services_url" json:"services_url"`
	ClientID               string `yaml:"client_id" json:"client_id"`
	ClientSecret           string `yaml:"client_secret" json:"client_secret"`
	ConversationProviderID string `yaml:"conversation_provider_id" json:"conversation_provider_id"`
	// AppURL is this service's public base URL, used for the gateway
	// webhook callback and the OAuth redirect.
	AppURL string `yaml:"app_url" json:"app_url"`
}

type AppConfig struct {
	System   SysConfig      `yaml:"system" json:"system"`
	Web      WebConfig      `yaml:"web" json:"web"`
	Logger   LogConfig      `yaml:"logger" json:"logger"`
	Database DBConfig       `yaml:"database" json:"database"`
	Gateway  GatewayConfig  `yaml:"gateway" json:"gateway"`
	Platform PlatformConfig `yaml:"platform" json:"platform"`
}

const (
	DefaultGatewayURL  = "https://evo.prixcenter.com"
	DefaultServicesURL = "https://services.leadconnectorhq.com"
)

var DefaultAppConfig = &AppConfig{
	System: SysConfig{
		Appid:    "wlink",
		Location: "America/Sao_Paulo",
		Workdir:  "/var/wlink",
		Debug:    false,
	},
	Web: WebConfig{
		Host: "0.0.0.0",
		Port: 3000,
	},
	Logger: LogConfig{
		Mode:       "development",
		FileEnable: true,
		Filename:   "/var/wlink/wlink.log",
	},
	Database: DBConfig{
		Type:   "postgres",
		Host:   "127.0.0.1",
		Port:   5432,
		Name:   "wlink",
		User:   "postgres",
		Passwd: "",
		Debug:  false,
	},
	Gateway: GatewayConfig{
		URL: DefaultGatewayURL,
	},
	Platform: PlatformConfig{
		ServicesURL: DefaultServicesURL,
	},
}

func (c *AppConfig) GetLogDir() string {
	return path.Join(c.System.Workdir, "logs")
}

// WebhookURL is the callback registered with the gateway for every instance.
func (c *AppConfig) WebhookURL() string {
	return strings.TrimRight(c.Platform.AppURL, "/") + "/webhooks/evolution"
}

// OAuthRedirectURL is the redirect target of the platform OAuth flow.
func (c *AppConfig) OAuthRedirectURL() string {
	return strings.TrimRight(c.Platform.AppURL, "/") + "/oauth/callback"
}

func setEnvValue(name string, f func(v string)) {
	if v := os.Getenv(name); v != "" {
		f(v)
	}
}

// LoadConfig reads the YAML config file when present and applies
// environment overrides on top of the defaults.
func LoadConfig(cfile string) *AppConfig {
	cfg := DefaultAppConfig
	if cfile != "" && common.FileExists(cfile) {
		if data, err := os.ReadFile(cfile); err == nil {
			_ = yaml.Unmarshal(data, cfg)
		}
	}

	setEnvValue("WLINK_SYSTEM_WORKDIR", func(v string) { cfg.System.Workdir = v })
	setEnvValue("WLINK_SYSTEM_DEBUG", func(v string) { cfg.System.Debug = cast.ToBool(v) })
	setEnvValue("WLINK_WEB_HOST", func(v string) { cfg.Web.Host = v })
	setEnvValue("WLINK_WEB_PORT", func(v string) { cfg.Web.Port = cast.ToInt(v) })
	setEnvValue("WLINK_DB_TYPE", func(v string) { cfg.Database.Type = v })
	setEnvValue("WLINK_DB_HOST", func(v string) { cfg.Database.Host = v })
	setEnvValue("WLINK_DB_PORT", func(v string) { cfg.Database.Port = cast.ToInt(v) })
	setEnvValue("WLINK_DB_NAME", func(v string) { cfg.Database.Name = v })
	setEnvValue("WLINK_DB_USER", func(v string) { cfg.Database.User = v })
	setEnvValue("WLINK_DB_PWD", func(v string) { cfg.Database.Passwd = v })
	setEnvValue("WLINK_LOG_MODE", func(v string) { cfg.Logger.Mode = v })
	setEnvValue("WLINK_LOG_FILE_ENABLE", func(v string) { cfg.Logger.FileEnable = cast.ToBool(v) })
	setEnvValue("EVOLUTION_API_URL", func(v string) { cfg.Gateway.URL = v })
	setEnvValue("EVOLUTION_API_KEY", func(v string) { cfg.Gateway.APIKey = v })
	setEnvValue("GHL_SERVICES_URL", func(v string) { cfg.Platform.ServicesURL = v })
	setEnvValue("GHL_CLIENT_ID", func(v string) { cfg.Platform.ClientID = v })
	setEnvValue("GHL_CLIENT_SECRET", func(v string) { cfg.Platform.ClientSecret = v })
	setEnvValue("GHL_CONVERSATION_PROVIDER_ID", func(v string) { cfg.Platform.ConversationProviderID = v })
	setEnvValue("APP_URL", func(v string) { cfg.Platform.AppURL = v })

	cfg.Gateway.URL = strings.TrimRight(cfg.Gateway.URL, "/")
	cfg.Platform.ServicesURL = strings.TrimRight(cfg.Platform.ServicesURL, "/")
	return cfg
}
