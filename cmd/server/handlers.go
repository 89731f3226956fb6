package main

import (
	"github.com/archoncouncil/api/internal/config"
	"github.com/archoncouncil/api/internal/infra/http/handler"
	"github.com/archoncouncil/api/internal/infra/http/routes"
	"github.com/archoncouncil/api/internal/infra/postgres"
	"github.com/archoncouncil/api/internal/infra/redis"
	"github.com/archoncouncil/api/internal/security"
	"github.com/archoncouncil/api/pkg/logger"
	"github.com/archoncouncil/api/pkg/validator"
)

// HandlerDeps contains dependencies needed to create handlers.
type HandlerDeps struct {
	Config   *config.Config
	Log      *logger.Logger
	DB       *postgres.DB
	Redis    *redis.Client
	Services *Services
}

// NewHandlers creates all HTTP handlers.
func NewHandlers(deps *HandlerDeps) routes.Handlers {
	cfg := deps.Config
	log := deps.Log
	svc := deps.Services

	guard := handler.Guard{
		Gate: svc.Gate,
		Auth: svc.Auth,
		Payload: security.PayloadValidator{
			MaxFieldLength: cfg.Security.MaxFieldLength,
			MaxDepth:       cfg.Security.MaxPayloadDepth,
		},
	}

	healthOpts := []handler.HealthHandlerOption{handler.WithVersion(cfg.App.Version)}
	if deps.DB != nil {
		healthOpts = append(healthOpts, handler.WithDatabase(deps.DB))
	}
	if deps.Redis != nil {
		healthOpts = append(healthOpts, handler.WithRedis(deps.Redis))
	}

	return routes.Handlers{
		Health:   handler.NewHealthHandler(log, healthOpts...),
		Decision: handler.NewDecisionHandler(guard, rateRule(cfg.RateLimit.Decision), svc.Decision, validator.New(), log),
		Auth:     handler.NewAuthHandler(svc.Gate, rateRule(cfg.RateLimit.Auth), svc.Auth, log),
		TTS:      handler.NewTTSHandler(guard, rateRule(cfg.RateLimit.TTS), svc.Voice, log),
	}
}

func rateRule(r config.RateRule) security.Rule {
	return security.Rule{
		MaxRequests:   r.MaxRequests,
		Window:        r.Window,
		BlockDuration: r.BlockDuration,
	}
}
