// Package httpapi is the thin outer HTTP/SSE surface: it validates
// requests, extracts the caller's session id, and delegates to
// internal/facade. Grounded on the teacher's server.Server (gorilla/mux
// routing, logging middleware, graceful http.Server.Shutdown) and
// server/sse.go (catchup-then-stream SSE loop).
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/alarmbridge/isecnet-gateway/internal/events"
	"github.com/alarmbridge/isecnet-gateway/internal/facade"
	"github.com/alarmbridge/isecnet-gateway/internal/gwerr"
)

// Server wraps an http.Server wired to the command facade and event hub.
type Server struct {
	http   *http.Server
	facade *facade.Facade
	hub    *events.Hub
	log    *logrus.Entry
}

// New builds the router and wraps it in an http.Server listening on addr.
func New(addr string, f *facade.Facade, hub *events.Hub, log *logrus.Entry) *Server {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	s := &Server{facade: f, hub: hub, log: log}

	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/panels/{id}/status", s.handleGetStatus).Methods(http.MethodGet)
	api.HandleFunc("/panels/{id}/arm", s.handleArm).Methods(http.MethodPost)
	api.HandleFunc("/panels/{id}/disarm", s.handleDisarm).Methods(http.MethodPost)
	api.HandleFunc("/panels/{id}/bypass", s.handleBypass).Methods(http.MethodPost)
	api.HandleFunc("/panels/{id}/siren-off", s.handleSirenOff).Methods(http.MethodPost)
	api.HandleFunc("/panels/{id}/fence/shock", s.handleFenceShock).Methods(http.MethodPost)
	api.HandleFunc("/panels/{id}/fence/alarm", s.handleFenceAlarm).Methods(http.MethodPost)
	api.HandleFunc("/events", s.handleEvents).Methods(http.MethodGet)

	r.Use(s.loggingMiddleware)

	s.http = &http.Server{
		Addr:    addr,
		Handler: r,
	}
	return s
}

// ListenAndServe starts the HTTP server; it blocks until the server stops.
func (s *Server) ListenAndServe() error {
	s.log.WithField("addr", s.http.Addr).Info("http server listening")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"duration": time.Since(start),
		}).Debug("http request")
	})
}

func sessionIDFromRequest(r *http.Request) string {
	return r.Header.Get("X-Session-Id")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	kind := gwerr.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case gwerr.InvalidSession:
		status = http.StatusUnauthorized
	case gwerr.PasswordMissing, gwerr.PanelNotFound:
		status = http.StatusNotFound
	case gwerr.AuthRejected:
		status = http.StatusForbidden
	case gwerr.ConnectionUnavailable:
		status = http.StatusServiceUnavailable
	case gwerr.OpenZonesErr, gwerr.NoPartitions, gwerr.ProtocolError:
		status = http.StatusConflict
	}

	body := map[string]interface{}{
		"kind":    kind.String(),
		"message": err.Error(),
	}
	var zerr *gwerr.Error
	if asErr, ok := err.(*gwerr.Error); ok {
		zerr = asErr
	}
	if zerr != nil && zerr.Zones != nil {
		body["open_zones"] = zerr.Zones
	}
	if zerr != nil && zerr.Reason != "" {
		body["reason"] = zerr.Reason
	}
	writeJSON(w, status, body)
}
