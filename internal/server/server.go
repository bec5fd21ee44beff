// Package server exposes a resolver pool over a small JSON HTTP API.
//
// Routes:
//
//	GET /v1/registry
//	GET /v1/authors
//	GET /v1/authors/{author}/packages
//	GET /v1/packages/{author}/{name}/versions
//	GET /v1/packages/{author}/{name}/resolve?constraint=^1.0.0
//	GET /v1/packages/{author}/{name}/info?version=1.0.0
//	GET /metrics
//
// Every /v1 route accepts an optional registry query parameter naming the
// registry to start from.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	gowally "github.com/albertocavalcante/go-wally"
	"github.com/albertocavalcante/go-wally/label"
)

// ShutdownTimeout bounds graceful shutdown once the serving context ends.
const ShutdownTimeout = 5 * time.Second

// Server serves resolution requests from a Pool.
type Server struct {
	pool     *gowally.Pool
	registry string
	gatherer prometheus.Gatherer
	logger   *slog.Logger
	router   chi.Router
}

// Option configures a Server.
type Option func(*Server)

// WithGatherer sets the source of /metrics. Defaults to prometheus.DefaultGatherer.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		if g != nil {
			s.gatherer = g
		}
	}
}

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a Server resolving against registry unless a request names another.
func New(pool *gowally.Pool, registry string, opts ...Option) *Server {
	s := &Server{
		pool:     pool,
		registry: registry,
		gatherer: prometheus.DefaultGatherer,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		r.Get("/registry", s.handleRegistry)
		r.Get("/authors", s.handleAuthors)
		r.Get("/authors/{author}/packages", s.handlePackages)
		r.Route("/packages/{author}/{name}", func(r chi.Router) {
			r.Get("/versions", s.handleVersions)
			r.Get("/resolve", s.handleResolve)
			r.Get("/info", s.handleInfo)
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "no such route")
	})
	return r
}

// Serve answers requests on ln until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("serving", "addr", ln.Addr().String(), "registry", s.registry)
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// ListenAndServe listens on addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

type registryResponse struct {
	Registry           string   `json:"registry"`
	Name               string   `json:"name"`
	API                string   `json:"api"`
	FallbackRegistries []string `json:"fallback_registries,omitempty"`
}

func (s *Server) handleRegistry(w http.ResponseWriter, r *http.Request) {
	resolver, ok := s.resolver(w, r)
	if !ok {
		return
	}
	cfg, ok := resolver.Index().Config(r.Context())
	if !ok {
		writeError(w, http.StatusBadGateway, gowally.ErrRegistryUnavailable.Error())
		return
	}
	writeJSON(w, http.StatusOK, registryResponse{
		Registry:           resolver.Index().Locator().URL(),
		Name:               resolver.Index().Locator().String(),
		API:                cfg.API,
		FallbackRegistries: cfg.FallbackRegistries,
	})
}

type authorsResponse struct {
	Registry string   `json:"registry"`
	Authors  []string `json:"authors"`
}

func (s *Server) handleAuthors(w http.ResponseWriter, r *http.Request) {
	resolver, ok := s.resolver(w, r)
	if !ok {
		return
	}
	authors, ok := resolver.PackageAuthors(r.Context())
	if !ok {
		writeError(w, http.StatusNotFound, "authors not available")
		return
	}
	writeJSON(w, http.StatusOK, authorsResponse{
		Registry: resolver.Index().Locator().URL(),
		Authors:  authors,
	})
}

type packagesResponse struct {
	Registry string   `json:"registry"`
	Author   string   `json:"author"`
	Packages []string `json:"packages"`
}

func (s *Server) handlePackages(w http.ResponseWriter, r *http.Request) {
	resolver, ok := s.resolver(w, r)
	if !ok {
		return
	}
	author := chi.URLParam(r, "author")
	names, ok := resolver.PackageNames(r.Context(), author)
	if !ok {
		writeError(w, http.StatusNotFound, "author "+author+" not found")
		return
	}
	writeJSON(w, http.StatusOK, packagesResponse{
		Registry: resolver.Index().Locator().URL(),
		Author:   author,
		Packages: names,
	})
}

type versionsResponse struct {
	Registry string   `json:"registry"`
	Author   string   `json:"author"`
	Name     string   `json:"name"`
	Versions []string `json:"versions"`
}

func (s *Server) handleVersions(w http.ResponseWriter, r *http.Request) {
	author, name := chi.URLParam(r, "author"), chi.URLParam(r, "name")
	versions, servedBy, err := s.pool.Versions(r.Context(), s.start(r), author, name)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, versionsResponse{
		Registry: servedBy,
		Author:   author,
		Name:     name,
		Versions: versions,
	})
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	ref, err := label.NewPackageRef(chi.URLParam(r, "author"), chi.URLParam(r, "name"), r.URL.Query().Get("constraint"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := s.pool.Resolve(r.Context(), s.start(r), ref)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	v := r.URL.Query().Get("version")
	if v == "" {
		writeError(w, http.StatusBadRequest, "version query parameter is required")
		return
	}
	info, err := s.pool.Info(r.Context(), s.start(r), chi.URLParam(r, "author"), chi.URLParam(r, "name"), v)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// start returns the registry a request resolves from.
func (s *Server) start(r *http.Request) string {
	if id := r.URL.Query().Get("registry"); id != "" {
		return id
	}
	return s.registry
}

func (s *Server) resolver(w http.ResponseWriter, r *http.Request) (*gowally.Resolver, bool) {
	resolver, err := s.pool.Resolver(s.start(r))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	return resolver, true
}

func (s *Server) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.WarnContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, gowally.ErrInvalidRegistry),
		errors.Is(err, gowally.ErrUnsupportedRegistry),
		errors.Is(err, gowally.ErrInvalidPackageRef):
		return http.StatusBadRequest
	case errors.Is(err, gowally.ErrRegistryUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusNotFound
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.DebugContext(r.Context(), "request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
