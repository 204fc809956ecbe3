package routes

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"tenure/gateway/middleware"
)

// Config assembles the gateway router. The gateway fronts a single node:
// vault and admin REST groups bridge onto its JSON-RPC API, while /rpc and
// the event stream pass through untouched.
type Config struct {
	NodeTarget    *url.URL
	NodeToken     string
	Authenticator *middleware.Authenticator
	RateLimiter   *middleware.RateLimiter
	Observability *middleware.Observability
	CORS          middleware.CORSConfig
}

func New(cfg Config) (http.Handler, error) {
	if cfg.NodeTarget == nil {
		return nil, fmt.Errorf("node target required")
	}
	bridge, err := newVaultRoutes(cfg.NodeTarget, cfg.NodeToken)
	if err != nil {
		return nil, fmt.Errorf("configure vault routes: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.CORS(cfg.CORS))

	obs := cfg.Observability

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/v1/vault", func(sr chi.Router) {
		if cfg.RateLimiter != nil {
			sr.Use(cfg.RateLimiter.Middleware("vault"))
		}
		if cfg.Authenticator != nil {
			sr.Use(cfg.Authenticator.Middleware("vault"))
		}
		if obs != nil {
			sr.Use(obs.Middleware("vault"))
		}
		bridge.mount(sr)
	})

	r.Route("/v1/admin", func(sr chi.Router) {
		if cfg.RateLimiter != nil {
			sr.Use(cfg.RateLimiter.Middleware("admin"))
		}
		if cfg.Authenticator != nil {
			sr.Use(cfg.Authenticator.Middleware("admin"))
		}
		if obs != nil {
			sr.Use(obs.Middleware("admin"))
		}
		bridge.mountAdmin(sr)
	})

	// Raw JSON-RPC and the websocket stream keep the node's own auth; the
	// gateway only relays them.
	r.Handle("/rpc", NewProxy("rpc", cfg.NodeTarget, "/rpc"))
	r.Handle("/ws/events", NewStreamProxy("events", cfg.NodeTarget))

	if obs != nil {
		r.Handle("/metrics", obs.MetricsHandler())
	}

	return r, nil
}
