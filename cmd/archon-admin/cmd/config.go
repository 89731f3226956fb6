package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/archoncouncil/api/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the effective configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the configuration with secrets masked",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

func init() {
	configCmd.AddCommand(configShowCmd)
}

// configView is the printable configuration. Secrets never leave mask().
type configView struct {
	App       appView       `json:"app" yaml:"app"`
	Server    serverView    `json:"server" yaml:"server"`
	Security  securityView  `json:"security" yaml:"security"`
	RateLimit rateLimitView `json:"rate_limit" yaml:"rate_limit"`
	Providers providerView  `json:"providers" yaml:"providers"`
	Storage   storageView   `json:"storage" yaml:"storage"`
}

type appView struct {
	Name    string `json:"name" yaml:"name"`
	Env     string `json:"env" yaml:"env"`
	Version string `json:"version" yaml:"version"`
}

type serverView struct {
	Addr           string `json:"addr" yaml:"addr"`
	RequestTimeout string `json:"request_timeout" yaml:"request_timeout"`
	MaxBodySize    int64  `json:"max_body_size" yaml:"max_body_size"`
}

type securityView struct {
	IPAllowlistEnabled bool     `json:"ip_allowlist_enabled" yaml:"ip_allowlist_enabled"`
	IPAllowlist        []string `json:"ip_allowlist" yaml:"ip_allowlist"`
	AuthorizedEmail    string   `json:"authorized_email" yaml:"authorized_email"`
	InitialPassword    string   `json:"initial_password" yaml:"initial_password"`
	AllowedOrigins     []string `json:"allowed_origins" yaml:"allowed_origins"`
	MaxFieldLength     int      `json:"max_field_length" yaml:"max_field_length"`
	MaxPayloadDepth    int      `json:"max_payload_depth" yaml:"max_payload_depth"`
}

type ruleView struct {
	MaxRequests   int    `json:"max_requests" yaml:"max_requests"`
	Window        string `json:"window" yaml:"window"`
	BlockDuration string `json:"block_duration,omitempty" yaml:"block_duration,omitempty"`
}

type rateLimitView struct {
	Store    string   `json:"store" yaml:"store"`
	Decision ruleView `json:"decision" yaml:"decision"`
	Auth     ruleView `json:"auth" yaml:"auth"`
	TTS      ruleView `json:"tts" yaml:"tts"`
	Sweep    string   `json:"sweep_schedule" yaml:"sweep_schedule"`
}

type providerView struct {
	IdentityURL        string `json:"identity_url" yaml:"identity_url"`
	IdentityAnonKey    string `json:"identity_anon_key" yaml:"identity_anon_key"`
	IdentityServiceKey string `json:"identity_service_key" yaml:"identity_service_key"`
	IdentityJWTSecret  string `json:"identity_jwt_secret" yaml:"identity_jwt_secret"`
	ModelURL           string `json:"model_url" yaml:"model_url"`
	Model              string `json:"model" yaml:"model"`
	ModelAPIKey        string `json:"model_api_key" yaml:"model_api_key"`
	VoiceAPIKey        string `json:"voice_api_key" yaml:"voice_api_key"`
}

type storageView struct {
	DatabaseConfigured bool   `json:"database_configured" yaml:"database_configured"`
	DatabasePassword   string `json:"database_password" yaml:"database_password"`
	RedisAddr          string `json:"redis_addr" yaml:"redis_addr"`
	RedisPassword      string `json:"redis_password" yaml:"redis_password"`
	TracingEndpoint    string `json:"tracing_endpoint" yaml:"tracing_endpoint"`
}

func newConfigView(cfg *config.Config) configView {
	rule := func(r config.RateRule) ruleView {
		v := ruleView{MaxRequests: r.MaxRequests, Window: r.Window.String()}
		if r.BlockDuration > 0 {
			v.BlockDuration = r.BlockDuration.String()
		}
		return v
	}

	v := configView{
		App: appView{Name: cfg.App.Name, Env: cfg.App.Env, Version: cfg.App.Version},
		Server: serverView{
			Addr:           cfg.Server.Addr(),
			RequestTimeout: cfg.Server.RequestTimeout.String(),
			MaxBodySize:    cfg.Server.MaxBodySize,
		},
		Security: securityView{
			IPAllowlistEnabled: cfg.Security.IPAllowlistEnabled,
			IPAllowlist:        cfg.Security.IPAllowlist,
			AuthorizedEmail:    cfg.Security.AuthorizedEmail,
			InitialPassword:    mask(cfg.Security.InitialPassword),
			AllowedOrigins:     cfg.Security.AllowedOrigins,
			MaxFieldLength:     cfg.Security.MaxFieldLength,
			MaxPayloadDepth:    cfg.Security.MaxPayloadDepth,
		},
		RateLimit: rateLimitView{
			Store:    cfg.RateLimit.Store,
			Decision: rule(cfg.RateLimit.Decision),
			Auth:     rule(cfg.RateLimit.Auth),
			TTS:      rule(cfg.RateLimit.TTS),
			Sweep:    cfg.RateLimit.SweepSchedule,
		},
		Providers: providerView{
			IdentityURL:        cfg.Identity.URL,
			IdentityAnonKey:    mask(cfg.Identity.AnonKey),
			IdentityServiceKey: mask(cfg.Identity.ServiceRoleKey),
			IdentityJWTSecret:  mask(cfg.Identity.JWTSecret),
			ModelURL:           cfg.LLM.BaseURL,
			Model:              cfg.LLM.Model,
			ModelAPIKey:        mask(cfg.LLM.APIKey),
			VoiceAPIKey:        mask(cfg.Voice.APIKey),
		},
		Storage: storageView{
			DatabaseConfigured: cfg.Database.IsConfigured(),
			DatabasePassword:   mask(cfg.Database.Password),
			RedisPassword:      mask(cfg.Redis.Password),
			TracingEndpoint:    cfg.Tracing.Endpoint,
		},
	}
	if cfg.Redis.IsConfigured() {
		v.Storage.RedisAddr = cfg.Redis.Addr()
	}
	return v
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	if err := validateOutput(); err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	v := newConfigView(cfg)
	out := cmd.OutOrStdout()
	if done, err := printStructured(out, v); done {
		return err
	}

	t := newTable(out, "KEY", "VALUE")
	t.AddRow("app.env", v.App.Env)
	t.AddRow("app.version", v.App.Version)
	t.AddRow("server.addr", v.Server.Addr)
	t.AddRow("server.request_timeout", v.Server.RequestTimeout)
	t.AddRow("server.max_body_size", strconv.FormatInt(v.Server.MaxBodySize, 10))
	t.AddRow("security.ip_allowlist_enabled", boolToStr(v.Security.IPAllowlistEnabled))
	t.AddRow("security.ip_allowlist", orDash(strings.Join(v.Security.IPAllowlist, ",")))
	t.AddRow("security.authorized_email", orDash(v.Security.AuthorizedEmail))
	t.AddRow("security.initial_password", orDash(v.Security.InitialPassword))
	t.AddRow("security.allowed_origins", orDash(strings.Join(v.Security.AllowedOrigins, ",")))
	t.AddRow("rate_limit.store", v.RateLimit.Store)
	for _, r := range []struct {
		name string
		rule ruleView
	}{{"decision", v.RateLimit.Decision}, {"auth", v.RateLimit.Auth}, {"tts", v.RateLimit.TTS}} {
		t.AddRow("rate_limit."+r.name, formatRule(r.rule))
	}
	t.AddRow("identity.url", orDash(v.Providers.IdentityURL))
	t.AddRow("identity.anon_key", orDash(v.Providers.IdentityAnonKey))
	t.AddRow("identity.service_key", orDash(v.Providers.IdentityServiceKey))
	t.AddRow("identity.jwt_secret", orDash(v.Providers.IdentityJWTSecret))
	t.AddRow("llm.model", v.Providers.Model)
	t.AddRow("llm.api_key", orDash(v.Providers.ModelAPIKey))
	t.AddRow("voice.api_key", orDash(v.Providers.VoiceAPIKey))
	t.AddRow("database.configured", boolToStr(v.Storage.DatabaseConfigured))
	t.AddRow("redis.addr", orDash(v.Storage.RedisAddr))
	t.AddRow("tracing.endpoint", orDash(v.Storage.TracingEndpoint))
	t.Flush()
	return nil
}

func formatRule(r ruleView) string {
	s := fmt.Sprintf("%d per %s", r.MaxRequests, r.Window)
	if r.BlockDuration != "" {
		s += ", block " + r.BlockDuration
	}
	return s
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
