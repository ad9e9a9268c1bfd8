package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/captures-backend/api/controllers"
	"github.com/angelmondragon/captures-backend/api/middleware"
	"github.com/angelmondragon/captures-backend/internal/audit"
	"github.com/angelmondragon/captures-backend/internal/captures"
	"github.com/angelmondragon/captures-backend/internal/controls"
	"github.com/angelmondragon/captures-backend/internal/downloads"
	"github.com/angelmondragon/captures-backend/internal/likes"
	"github.com/angelmondragon/captures-backend/internal/moderation"
	"github.com/angelmondragon/captures-backend/internal/requests"
	"github.com/angelmondragon/captures-backend/pkg/auth"
	"github.com/angelmondragon/captures-backend/pkg/config"
	"github.com/angelmondragon/captures-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/captures-backend/pkg/redis"
)

// RouterParams wires the router with its services. Nil services answer with
// an internal error. Nil stores disable idempotency and rate limiting.
type RouterParams struct {
	Config   *config.Config
	Logger   *logger.Logger
	Gatherer prometheus.Gatherer
	Verifier *auth.Verifier

	DB          controllers.Pinger
	Redis       controllers.Pinger
	Idempotency pkgredis.IdempotencyStore
	RateLimits  middleware.RateLimitStore

	Captures   captures.Service
	Moderation moderation.Service
	Audit      audit.Service
	Likes      likes.Service
	Downloads  downloads.Service
	Controls   controls.Service
	Requests   requests.Service
}

func NewRouter(p RouterParams) http.Handler {
	cfg, logg := p.Config, p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	likePolicy := middleware.NewRateLimitPolicy("like", cfg.RateLimit.LikeWindow, cfg.RateLimit.LikeLimit)
	downloadPolicy := middleware.NewRateLimitPolicy("download", cfg.RateLimit.DownloadWindow, cfg.RateLimit.DownloadLimit)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"database": p.DB,
			"redis":    p.Redis,
		}))
	})

	gatherer := p.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.OptionalAuth(p.Verifier, logg))

			r.Get("/captures", controllers.PublicCaptureList(p.Captures, logg))
			r.Post("/removal-requests", controllers.RemovalRequestSubmit(p.Requests, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(p.Verifier, logg))

			r.Get("/me/likes", controllers.LikedCaptureIDs(p.Likes, logg))
			r.Route("/captures/{captureId}", func(r chi.Router) {
				r.Get("/like", controllers.CaptureLikeStatus(p.Likes, logg))
				r.With(middleware.RateLimit(likePolicy, p.RateLimits, logg)).
					Put("/like", controllers.CaptureLike(p.Likes, logg))
				r.With(middleware.RateLimit(downloadPolicy, p.RateLimits, logg)).
					Post("/downloads", controllers.CaptureDownload(p.Downloads, logg))
			})
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(p.Verifier, logg))
		r.Use(middleware.RequireModerator(logg))

		idempotent := func(r chi.Router) chi.Router {
			return r.With(middleware.Idempotency(p.Idempotency, cfg.Eventing.IdempotencyTTL, logg))
		}

		r.Route("/captures", func(r chi.Router) {
			r.Get("/", controllers.AdminCaptureList(p.Captures, logg))
			idempotent(r).Post("/", controllers.AdminCaptureCreate(p.Captures, logg))
			r.Route("/{captureId}", func(r chi.Router) {
				r.Get("/", controllers.AdminCaptureDetail(p.Captures, logg))
				idempotent(r).Post("/transition", controllers.CaptureTransition(p.Moderation, logg))
				idempotent(r).Post("/delete", controllers.CaptureSoftDelete(p.Moderation, logg))
				idempotent(r).Post("/restore", controllers.CaptureRestore(p.Moderation, logg))
			})
		})
		r.With(middleware.Idempotency(p.Idempotency, middleware.BatchIdempotencyTTL, logg)).
			Post("/batches/{groupKey}/promote", controllers.BatchPromote(p.Moderation, logg))

		r.Route("/audit", func(r chi.Router) {
			r.Get("/", controllers.AuditQuery(p.Audit, logg))
			idempotent(r).Post("/", controllers.AuditAppend(p.Audit, logg))
		})

		r.Route("/downloads", func(r chi.Router) {
			r.Get("/", controllers.AdminDownloadLogs(p.Downloads, logg))
			r.Get("/counts", controllers.AdminDownloadCounts(p.Downloads, logg))
		})

		r.Route("/removal-requests", func(r chi.Router) {
			r.Get("/", controllers.AdminRemovalRequests(p.Requests, logg))
			idempotent(r).Post("/{requestId}/resolve", controllers.RemovalRequestResolve(p.Requests, logg))
		})

		r.Route("/controls", func(r chi.Router) {
			r.Get("/", controllers.ControlsList(p.Controls, logg))
			r.Get("/{key}", controllers.ControlGet(p.Controls, logg))
			idempotent(r).Put("/{key}", controllers.ControlSet(p.Controls, logg))
		})
	})

	return r
}
