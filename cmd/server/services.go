package main

import (
	"fmt"

	"github.com/archoncouncil/api/internal/app"
	"github.com/archoncouncil/api/internal/config"
	identityclient "github.com/archoncouncil/api/internal/infra/identity"
	"github.com/archoncouncil/api/internal/infra/llm"
	"github.com/archoncouncil/api/internal/infra/redis"
	"github.com/archoncouncil/api/internal/infra/voice"
	"github.com/archoncouncil/api/internal/security"
	"github.com/archoncouncil/api/pkg/logger"
)

// Services holds the security pipeline and the use cases behind it.
type Services struct {
	Auditor  *security.Auditor
	Limiter  *security.RateLimiter
	Gate     *security.Gate
	Auth     *security.Authenticator
	Decision *app.DecisionService
	Voice    *app.VoiceService
}

// ServiceDeps contains dependencies needed to create services.
type ServiceDeps struct {
	Config *config.Config
	Log    *logger.Logger
	Repos  *Repositories
	Redis  *redis.Client
}

// NewServices initializes the security components and services.
// Unconfigured providers are left nil; the affected endpoints answer 500.
func NewServices(deps *ServiceDeps) (*Services, error) {
	cfg := deps.Config
	log := deps.Log

	s := &Services{}
	s.Auditor = security.NewAuditor(log)
	s.Limiter = security.NewRateLimiter(newRateLimitStore(cfg, deps.Redis), log)

	allowlist := security.NewIPAllowlist(cfg.Security.IPAllowlistEnabled, cfg.Security.IPAllowlist, log)
	s.Gate = security.NewGate(allowlist, s.Limiter, s.Auditor, log)

	provider, err := newIdentityProvider(cfg, log)
	if err != nil {
		return nil, err
	}
	s.Auth = security.NewAuthenticator(provider, security.AuthConfig{
		AuthorizedEmail:  cfg.Security.AuthorizedEmail,
		BearerConfigured: cfg.Identity.IsConfigured(),
		SignInConfigured: cfg.Identity.CanSignIn(),
		MaxFieldLength:   cfg.Security.MaxLoginField,
	}, s.Auditor, log)

	model, err := newModelProvider(cfg, log)
	if err != nil {
		return nil, err
	}
	var decisionOpts []app.DecisionServiceOption
	if deps.Repos.Council != nil {
		decisionOpts = append(decisionOpts, app.WithCouncilRepository(deps.Repos.Council))
	}
	s.Decision = app.NewDecisionService(model, s.Auditor, log, decisionOpts...)

	synth, err := newSynthesizer(cfg, log)
	if err != nil {
		return nil, err
	}
	s.Voice = app.NewVoiceService(synth, s.Auditor, log)

	return s, nil
}

func newRateLimitStore(cfg *config.Config, client *redis.Client) security.Store {
	if cfg.RateLimit.Store == config.StoreRedis && client != nil {
		return redis.NewRateLimitStore(client, cfg.RateLimit.KeyPrefix)
	}
	return security.NewMemoryStore()
}

// The constructors below return untyped nil interfaces for missing
// configuration so the consumers' nil checks hold.

func newIdentityProvider(cfg *config.Config, log *logger.Logger) (security.IdentityProvider, error) {
	if cfg.Identity.URL == "" {
		log.Warn("identity provider not configured, authenticated endpoints will answer 500")
		return nil, nil
	}
	client, err := identityclient.NewClient(identityClientConfig(cfg), log)
	if err != nil {
		return nil, fmt.Errorf("identity provider: %w", err)
	}
	return client, nil
}

func identityClientConfig(cfg *config.Config) identityclient.Config {
	return identityclient.Config{
		URL:            cfg.Identity.URL,
		AnonKey:        cfg.Identity.AnonKey,
		ServiceRoleKey: cfg.Identity.ServiceRoleKey,
		JWTSecret:      cfg.Identity.JWTSecret,
		Timeout:        cfg.Identity.Timeout,
	}
}

func newModelProvider(cfg *config.Config, log *logger.Logger) (llm.Provider, error) {
	if !cfg.LLM.IsConfigured() {
		log.Warn("model gateway not configured, decisions will answer 500")
		return nil, nil
	}
	provider, err := llm.NewGatewayProvider(llm.GatewayConfig{
		APIKey:            cfg.LLM.APIKey,
		BaseURL:           cfg.LLM.BaseURL,
		Model:             cfg.LLM.Model,
		Timeout:           cfg.LLM.Timeout,
		MaxRetries:        cfg.LLM.MaxRetries,
		RequestsPerMinute: cfg.LLM.RequestsPerMinute,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("model gateway: %w", err)
	}
	return provider, nil
}

func newSynthesizer(cfg *config.Config, log *logger.Logger) (app.Synthesizer, error) {
	if !cfg.Voice.IsConfigured() {
		log.Warn("voice synthesis not configured, text-to-speech will answer 500")
		return nil, nil
	}
	client, err := voice.NewClient(voice.Config{
		APIKey:  cfg.Voice.APIKey,
		BaseURL: cfg.Voice.BaseURL,
		Model:   cfg.Voice.Model,
		Timeout: cfg.Voice.Timeout,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("voice synthesis: %w", err)
	}
	return client, nil
}
