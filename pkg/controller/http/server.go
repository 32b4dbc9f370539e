package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/secmon-lab/beetleboard/pkg/domain/model"
	"github.com/secmon-lab/beetleboard/pkg/service/remilia"
	"github.com/secmon-lab/beetleboard/pkg/usecase"
	"github.com/secmon-lab/beetleboard/pkg/utils/logging"
)

// LeaderboardUseCase is the read side of the published snapshot
type LeaderboardUseCase interface {
	List(ctx context.Context, q model.LeaderboardQuery) (*model.LeaderboardPage, error)
	Random(ctx context.Context) (model.Username, error)
	Lookup(ctx context.Context, username model.Username) (*model.RankedRecord, error)
}

// ProfileUseCase serves live upstream profiles
type ProfileUseCase interface {
	LiveProfile(ctx context.Context, username model.Username) (*remilia.Profile, error)
}

// SyncTrigger starts syncs and reports scheduler state
type SyncTrigger interface {
	TriggerManual(ctx context.Context) (*model.Snapshot, error)
	TriggerBackground(ctx context.Context) error
	TriggerPass(ctx context.Context, pass model.SyncPass) (*usecase.PassResult, error)
	Status() model.SchedulerStatus
}

// CacheUseCase administers the pipeline keys
type CacheUseCase interface {
	Flush(ctx context.Context) (*model.FlushResult, error)
	Status(ctx context.Context) (*model.CacheStatus, error)
}

type Server struct {
	router      *chi.Mux
	leaderboard LeaderboardUseCase
	profile     ProfileUseCase
	sync        SyncTrigger
	cache       CacheUseCase
	syncSecret  string
	metrics     bool
}

type Options func(*Server)

func WithLeaderboard(uc LeaderboardUseCase) Options {
	return func(s *Server) {
		s.leaderboard = uc
	}
}

func WithProfile(uc ProfileUseCase) Options {
	return func(s *Server) {
		s.profile = uc
	}
}

func WithSync(trigger SyncTrigger) Options {
	return func(s *Server) {
		s.sync = trigger
	}
}

func WithCache(uc CacheUseCase) Options {
	return func(s *Server) {
		s.cache = uc
	}
}

// WithSyncSecret requires "Authorization: Bearer <secret>" on state changing endpoints
func WithSyncSecret(secret string) Options {
	return func(s *Server) {
		s.syncSecret = secret
	}
}

// WithMetrics exposes the prometheus registry on /metrics
func WithMetrics(enabled bool) Options {
	return func(s *Server) {
		s.metrics = enabled
	}
}

func New(opts ...Options) *Server {
	r := chi.NewRouter()

	s := &Server{
		router: r,
	}
	for _, opt := range opts {
		opt(s)
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(accessLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", healthHandler)
	if s.metrics {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		if s.leaderboard != nil {
			r.Get("/leaderboard", leaderboardHandler(s.leaderboard))
			r.Get("/leaderboard/{username}", lookupHandler(s.leaderboard))
			r.Get("/random", randomHandler(s.leaderboard))
		}
		if s.profile != nil {
			r.Get("/profile/{username}", profileHandler(s.profile))
		}
		if s.sync != nil {
			r.Get("/sync", syncStatusHandler(s.sync))
			r.With(secretMiddleware(s.syncSecret)).Post("/sync", syncHandler(s.sync))
			r.With(secretMiddleware(s.syncSecret)).Post("/sync-background", syncBackgroundHandler(s.sync))
		}
		if s.cache != nil {
			r.Get("/flush-cache", cacheStatusHandler(s.cache))
			r.With(secretMiddleware(s.syncSecret)).Post("/flush-cache", flushHandler(s.cache))
		}
	})

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// accessLogger is a middleware that logs HTTP requests
func accessLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			logging.Default().Info("access",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"remote", r.RemoteAddr,
				"user_agent", r.UserAgent(),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(r.Context(), w, http.StatusOK, map[string]string{"status": "ok"})
}
