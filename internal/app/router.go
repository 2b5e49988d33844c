package app

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"

	"github.com/dplaneos/dplaned/internal/audit"
	"github.com/dplaneos/dplaned/internal/auth"
	"github.com/dplaneos/dplaned/internal/observability"
	"github.com/dplaneos/dplaned/internal/platform/httpx"
	"github.com/dplaneos/dplaned/internal/rbac"
	"github.com/dplaneos/dplaned/internal/storage"
)

// RouterParams collects everything the HTTP router mounts.
type RouterParams struct {
	Config         Config
	Metrics        *observability.Metrics
	AuthHandler    *auth.Handler
	StorageHandler *storage.Handler
	RBACHandler    *rbac.Handler
	AuditHandler   *audit.Handler
	RBACMiddleware rbac.Middleware
}

// NewRouter assembles the daemon's HTTP surface.
func NewRouter(p RouterParams) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))
	r.Use(httprate.LimitByIP(p.Config.RateLimit, p.Config.RateLimitWindow))
	r.Use(p.Metrics.Middleware)

	secureMiddleware := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ContentSecurityPolicy: "default-src 'self'",
		IsDevelopment:         !p.Config.IsProduction(),
	})
	r.Use(secureMiddleware.Handler)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", p.Metrics.Handler())

	r.Mount("/auth", p.AuthHandler.Routes())

	r.Group(func(r chi.Router) {
		r.Use(p.RBACMiddleware.RequireAuth)
		r.Mount("/storage", p.StorageHandler.Routes(p.RBACMiddleware.RequirePermission))

		r.Group(func(r chi.Router) {
			r.Use(p.RBACMiddleware.RequirePermission("roles", "manage"))
			r.Mount("/rbac", p.RBACHandler.Routes())
		})

		r.Group(func(r chi.Router) {
			r.Use(p.RBACMiddleware.RequirePermission("audit", "read"))
			r.Mount("/audit", p.AuditHandler.Routes())
		})
	})

	return r
}
