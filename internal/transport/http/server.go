package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httplog"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/joshdurbin/shortlink/internal/service"
)

// ServerOptions configures the HTTP server
type ServerOptions struct {
	Port      string
	ServerURL string
	Logger    zerolog.Logger

	// Observer receives request metrics; nil disables instrumentation
	Observer RequestObserver
	// Gatherer backs GET /metrics; nil disables the endpoint
	Gatherer prometheus.Gatherer
}

// Server represents the HTTP server
type Server struct {
	handler *Handler
	router  *chi.Mux
	server  *http.Server
	port    string
	logger  zerolog.Logger
}

// NewServer creates a new HTTP server
func NewServer(shortener service.URLShortener, opts ServerOptions) *Server {
	handler := NewHandler(shortener, opts.ServerURL, opts.Logger)
	router := newRouter(handler, opts)

	server := &http.Server{
		Addr:         ":" + opts.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		handler: handler,
		router:  router,
		server:  server,
		port:    opts.Port,
		logger:  opts.Logger,
	}
}

func newRouter(handler *Handler, opts ServerOptions) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Heartbeat("/ping"))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httplog.RequestLogger(opts.Logger))
	r.Use(middleware.Recoverer)
	if opts.Observer != nil {
		r.Use(NewMetricsMiddleware(opts.Observer).Middleware)
	}

	if opts.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/urls", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))

		r.Post("/", handler.CreateURL)
		r.Get("/", handler.ListURLs)
		r.Post("/delete", handler.DeleteURLs)
		r.Delete("/inactive", handler.DeleteInactive)

		r.Route("/{key}", func(r chi.Router) {
			r.Get("/", handler.GetURL)
			r.Delete("/", handler.DeleteURL)
			r.Post("/deactivate", handler.DeactivateURL)
			r.Post("/reactivate", handler.ReactivateURL)
		})
	})

	r.Get("/{key}", handler.Redirect)
	r.NotFound(handler.NotFound)

	return r
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info().Str("port", s.port).Msg("server starting")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("server shutting down")
	return s.server.Shutdown(ctx)
}

// Port returns the server port
func (s *Server) Port() string {
	return s.port
}

// Router returns the root HTTP handler (useful for testing)
func (s *Server) Router() http.Handler {
	return s.router
}
