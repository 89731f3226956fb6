// Package routes registers all HTTP routes for the API.
package routes

import (
	"github.com/prometheus/client_golang/prometheus/promhttp"

	infrahttp "github.com/archoncouncil/api/internal/infra/http"
	"github.com/archoncouncil/api/internal/infra/http/handler"
)

// Router is an alias to the http package's Router interface.
type Router = infrahttp.Router

// Handlers holds all HTTP handlers for route registration.
type Handlers struct {
	Health   *handler.HealthHandler
	Decision *handler.DecisionHandler
	Auth     *handler.AuthHandler
	TTS      *handler.TTSHandler
}

// Register registers every route on router. The council endpoints carry
// their own security pipeline, so no auth middleware is attached here.
func Register(router Router, h Handlers) {
	registerHealthRoutes(router, h.Health)
	registerCouncilRoutes(router, h)
}

// registerHealthRoutes registers the operational endpoints. They bypass the gate.
func registerHealthRoutes(router Router, h *handler.HealthHandler) {
	router.GET("/health", h.Health)
	router.GET("/ready", h.Ready)
	router.GET("/metrics", promhttp.Handler().ServeHTTP)
}

func registerCouncilRoutes(router Router, h Handlers) {
	router.POST("/"+handler.RouteDecision, h.Decision.Decide)
	router.POST("/"+handler.RouteAuth, h.Auth.Validate)
	router.POST("/"+handler.RouteTTS, h.TTS.Speak)
}
