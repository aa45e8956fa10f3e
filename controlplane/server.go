// Package controlplane exposes the pattern registry over HTTP for
// introspection, runtime configuration and enable/disable control.
package controlplane

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/jonwraymond/failsafe/registry"
)

// DefaultPrefix is the URL prefix the control plane mounts under.
const DefaultPrefix = "/failsafe"

// Config configures the control-plane handler.
type Config struct {
	// Registry is the pattern registry to expose.
	Registry *registry.Registry

	// Prefix is the URL prefix. Default: "/failsafe"
	Prefix string

	// AuthKey enables JWT bearer auth (HS256) on mutating routes when set.
	AuthKey []byte

	// Logger logs config updates and control actions. Default: no logging.
	Logger zerolog.Logger
}

type server struct {
	reg    *registry.Registry
	logger zerolog.Logger
}

// Handler builds the control-plane HTTP handler:
//
//	GET    {prefix}/health
//	GET    {prefix}/liveness
//	GET    {prefix}/patterns
//	GET    {prefix}/config
//	GET    {prefix}/config/{kind}/{name}
//	PUT    {prefix}/config/{kind}/{name}
//	GET    {prefix}/metrics
//	GET    {prefix}/metrics/{kind}/{name}
//	DELETE {prefix}/metrics/{kind}/{name}
//	POST   {prefix}/control/{kind}/{name}/enable
//	POST   {prefix}/control/{kind}/{name}/disable
//
// Mutating routes require a valid bearer token when Config.AuthKey is set.
func Handler(config Config) http.Handler {
	prefix := config.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	prefix = "/" + strings.Trim(prefix, "/")

	s := &server{reg: config.Registry, logger: config.Logger}

	r := chi.NewRouter()
	r.Route(prefix, func(r chi.Router) {
		r.Get("/health", s.health)
		r.Get("/liveness", s.liveness)
		r.Get("/patterns", s.listPatterns)
		r.Get("/config", s.allConfigs)
		r.Get("/config/{kind}/{name}", s.getConfig)
		r.Get("/metrics", s.allMetrics)
		r.Get("/metrics/{kind}/{name}", s.getMetrics)

		r.Group(func(r chi.Router) {
			if len(config.AuthKey) > 0 {
				r.Use(bearerAuth(config.AuthKey))
			}
			r.Put("/config/{kind}/{name}", s.updateConfig)
			r.Delete("/metrics/{kind}/{name}", s.resetMetrics)
			r.Post("/control/{kind}/{name}/enable", s.enable)
			r.Post("/control/{kind}/{name}/disable", s.disable)
		})
	})
	return r
}

func (s *server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"patterns": len(s.reg.List()),
	})
}

func (s *server) liveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *server) listPatterns(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.reg.List())
}

func (s *server) allConfigs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.reg.Configs())
}

func (s *server) getConfig(w http.ResponseWriter, r *http.Request) {
	p, ok := s.pattern(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, p.Config())
}

func (s *server) updateConfig(w http.ResponseWriter, r *http.Request) {
	p, ok := s.pattern(w, r)
	if !ok {
		return
	}

	var fields map[string]any
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}

	if err := p.UpdateConfig(fields); err != nil {
		status := http.StatusBadRequest
		code := "invalid_config"
		if errors.Is(err, registry.ErrFieldNotAllowed) {
			code = "field_not_updatable"
		}
		writeError(w, status, code, err.Error())
		return
	}

	s.logger.Info().
		Str("kind", p.Kind()).
		Str("name", p.Name()).
		Interface("fields", fields).
		Msg("pattern config updated")

	writeJSON(w, http.StatusOK, p.Config())
}

func (s *server) allMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.reg.Metrics().All())
}

func (s *server) getMetrics(w http.ResponseWriter, r *http.Request) {
	p, ok := s.pattern(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.reg.Metrics().Snapshot(p.Kind(), p.Name()))
}

func (s *server) resetMetrics(w http.ResponseWriter, r *http.Request) {
	p, ok := s.pattern(w, r)
	if !ok {
		return
	}
	s.reg.Metrics().Reset(p.Kind(), p.Name())
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) enable(w http.ResponseWriter, r *http.Request) {
	s.setEnabled(w, r, true)
}

func (s *server) disable(w http.ResponseWriter, r *http.Request) {
	s.setEnabled(w, r, false)
}

func (s *server) setEnabled(w http.ResponseWriter, r *http.Request, enabled bool) {
	p, ok := s.pattern(w, r)
	if !ok {
		return
	}

	if enabled {
		p.Enable()
	} else {
		p.Disable()
	}

	s.logger.Info().
		Str("kind", p.Kind()).
		Str("name", p.Name()).
		Bool("enabled", enabled).
		Msg("pattern gate toggled")

	writeJSON(w, http.StatusOK, registry.Info{
		Kind:    p.Kind(),
		Name:    p.Name(),
		Enabled: p.Enabled(),
	})
}

func (s *server) pattern(w http.ResponseWriter, r *http.Request) (registry.Pattern, bool) {
	kind := chi.URLParam(r, "kind")
	name := chi.URLParam(r, "name")

	p, ok := s.reg.Get(kind, name)
	if !ok {
		writeError(w, http.StatusNotFound, "pattern_not_found", kind+"/"+name+" is not registered")
		return nil, false
	}
	return p, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"error":   code,
		"message": message,
	})
}
