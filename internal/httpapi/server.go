// Package httpapi exposes the caches of a Registry over HTTP for
// inspection and manual administration.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	cache "github.com/krisalay/artcache"
	"github.com/krisalay/artcache/internal/errs"
	"github.com/krisalay/artcache/internal/logging"
)

// maxBodyBytes caps PUT payloads.
const maxBodyBytes = 1 << 20

type Server struct {
	router   chi.Router
	registry *cache.Registry
	logger   *slog.Logger
}

type entryResponse struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
	// TTL is empty when the value came from the remote store.
	TTL string `json:"ttl,omitempty"`
}

type keysResponse struct {
	Name string   `json:"name"`
	Keys []string `json:"keys"`
}

type sweepResponse struct {
	Name    string `json:"name"`
	Removed int    `json:"removed"`
}

func NewServer(registry *cache.Registry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.Logger(context.Background())
	}
	s := &Server{
		router:   chi.NewRouter(),
		registry: registry,
		logger:   logger,
	}
	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.logRequests)

	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	s.router.Get("/caches", s.handleList)
	s.router.Route("/caches/{name}", func(r chi.Router) {
		r.Delete("/", s.handleClear)
		r.Get("/stats", s.handleStats)
		r.Get("/keys", s.handleKeys)
		r.Post("/sweep", s.handleSweep)
		r.Get("/entries/{key}", s.handleGet)
		r.Put("/entries/{key}", s.handlePut)
		r.Delete("/entries/{key}", s.handleDelete)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		ctx := logging.WithLogger(r.Context(), s.logger)
		ctx = logging.WithAttrs(ctx, slog.String("request_id", middleware.GetReqID(ctx)))
		next.ServeHTTP(ww, r.WithContext(ctx))

		logging.Debug(ctx, "request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("dur", time.Since(start)),
		)
	})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	names := s.registry.Names()
	out := make([]cache.Stats, 0, len(names))
	for _, name := range names {
		c, err := s.registry.Cache(name)
		if err != nil {
			continue
		}
		out = append(out, c.Stats())
	}
	writeJSON(w, http.StatusOK, out)
}

// lookup resolves {name} or writes a 404.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*cache.Cache[any], bool) {
	c, err := s.registry.Cache(chi.URLParam(r, "name"))
	if err != nil {
		writeError(r.Context(), w, http.StatusNotFound, err)
		return nil, false
	}
	return c, true
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	c, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, c.Stats())
}

func (s *Server) handleKeys(w http.ResponseWriter, r *http.Request) {
	c, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, keysResponse{Name: chi.URLParam(r, "name"), Keys: c.Keys()})
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	c, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sweepResponse{Name: chi.URLParam(r, "name"), Removed: c.Sweep()})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	c, ok := s.lookup(w, r)
	if !ok {
		return
	}
	c.Clear(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	c, ok := s.lookup(w, r)
	if !ok {
		return
	}

	key := chi.URLParam(r, "key")
	v, found := c.Get(r.Context(), key)
	if !found {
		writeError(r.Context(), w, http.StatusNotFound, errors.New("key not found"))
		return
	}

	resp := entryResponse{Key: key, Value: v}
	if ttl, ok := c.TTL(key); ok {
		resp.TTL = ttl.String()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	c, ok := s.lookup(w, r)
	if !ok {
		return
	}

	ttl := c.Config().DefaultTTL
	if raw := r.URL.Query().Get("ttl"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			writeError(r.Context(), w, http.StatusBadRequest, errs.Wrap(err, "parse ttl"))
			return
		}
		ttl = parsed
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, errs.Wrap(err, "read body"))
		return
	}
	var value any
	if err := json.Unmarshal(body, &value); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, errs.Wrap(err, "decode json value"))
		return
	}

	key := chi.URLParam(r, "key")
	if err := c.SetWithTTL(r.Context(), key, value, ttl); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, entryResponse{Key: key, Value: value, TTL: ttl.String()})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	c, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if err := c.Delete(r.Context(), chi.URLParam(r, "key")); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, err error) {
	attrs := []slog.Attr{slog.Int("status", status), slog.Any("err", errs.Loggable(err))}
	if status >= http.StatusInternalServerError {
		logging.Error(ctx, "request failed", attrs...)
	} else {
		logging.Debug(ctx, "request failed", attrs...)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
