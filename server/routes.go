package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	cmdversion "github.com/llm-sentinel/sentinel/cmd"
	"github.com/llm-sentinel/sentinel/cmd/cpu"
	"github.com/llm-sentinel/sentinel/cmd/delay"
	"github.com/llm-sentinel/sentinel/cmd/env"
	"github.com/llm-sentinel/sentinel/cmd/info"
	"github.com/llm-sentinel/sentinel/cmd/kill"
	logcmd "github.com/llm-sentinel/sentinel/cmd/log"
	"github.com/llm-sentinel/sentinel/cmd/request"
	"github.com/llm-sentinel/sentinel/cmd/respond"
	"github.com/llm-sentinel/sentinel/config"
	"github.com/llm-sentinel/sentinel/internal/query"
	"github.com/llm-sentinel/sentinel/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// setupRoutes configures the application's routes: the read-only query
// API (spec §4.7), health checks, metrics, and the admin/diagnostic
// surface (spec §6 ADD) adapted from the teacher's cmd/* stress tools.
func setupRoutes(router *chi.Mux, cfg *config.Config, reg *prometheus.Registry, deps *Deps) {
	qh := query.Handlers{
		Store:    deps.Store,
		Log:      deps.Emitter.Log(),
		Pipeline: deps.Pipeline,
		Ready:    deps.Ready,
	}

	router.Get("/health/live", qh.HealthLive)
	router.Get("/health/ready", qh.HealthReady)

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/anomalies", qh.Anomalies)
		r.Get("/telemetry", qh.Telemetry)
	})

	router.Get("/info", info.NewInfoHandler(deps.Pipeline, deps.Store))
	router.Get("/version", cmdversion.VersionHandler)

	router.Route("/admin", func(r chi.Router) {
		r.Use(TokenAuthMiddleware(cfg))

		r.Get("/env", env.EnvHandler)
		r.Post("/env", env.EnvHandler)

		r.Get("/echo", request.NewEchoHandler(deps.Pipeline))
		r.Post("/echo", request.NewEchoHandler(deps.Pipeline))

		r.Route("/simulate", func(r chi.Router) {
			r.Use(JWTAuthMiddleware(cfg))

			r.Get("/load", cpu.NewLoadHandler(deps.Pipeline))
			r.Post("/load", cpu.NewLoadHandler(deps.Pipeline))

			r.Get("/samples", logcmd.NewSamplesHandler(deps.Pipeline))
			r.Post("/samples", logcmd.NewSamplesHandler(deps.Pipeline))

			r.Get("/delay", delay.DelayHandler)
			r.Post("/delay", delay.DelayHandler)
		})

		r.Route("/chaos", func(r chi.Router) {
			r.Use(JWTAuthMiddleware(cfg))

			r.Post("/sink", kill.NewChaosHandler(deps.Sinks))
		})

		r.Route("/respond", func(r chi.Router) {
			r.Use(JWTAuthMiddleware(cfg))

			r.Get("/", respond.NewRespondHandler(deps.Emitter))
			r.Post("/", respond.NewRespondHandler(deps.Emitter))
		})
	})

	router.Handle(cfg.MetricsPath, metrics.MetricsHandler(reg))

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	})
}
