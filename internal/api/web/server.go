// Package web provides the HTTP surface: health, WebSocket feed and media bytes.
package web

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/gapbox/internal/app/session"
	"github.com/osa030/gapbox/internal/infra/media"
)

// TokenHeader carries the control token on plain HTTP routes.
const TokenHeader = "X-Control-Token"

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Server serves the web routes for a session.
type Server struct {
	session *session.Manager
	token   string
}

// NewServer creates a web server. A non-empty token protects /ws and /media.
func NewServer(s *session.Manager, token string) *Server {
	return &Server{session: s, token: token}
}

// Router creates the chi router. The Connect handler is mounted under path.
func (s *Server) Router(path string, rpc http.Handler, middlewares ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID, middleware.RealIP, requestLogger, middleware.Recoverer)
	for _, mw := range middlewares {
		r.Use(mw)
	}

	r.Get("/health", s.handleHealth)
	r.Group(func(r chi.Router) {
		r.Use(s.requireToken)
		r.Get("/ws", s.handleWS)
		r.Get("/media/{handle}", s.handleMedia)
	})
	if rpc != nil {
		r.Mount(path, rpc)
	}

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := s.session.Status()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"phase":     st.Phase.String(),
		"pool_size": st.PoolSize,
	})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		zlog.Warn().Msgf("web: ws upgrade: %v", err)
		return
	}

	c := newClient(conn, s.session.GetNotificationManager())
	if err := c.Send(s.session.CurrentNotification()); err != nil {
		zlog.Warn().Msgf("web: failed to queue initial state: %v", err)
	}
	c.attach()

	go c.writePump()
	go c.readPump()
}

func (s *Server) handleMedia(w http.ResponseWriter, r *http.Request) {
	handle := chi.URLParam(r, "handle")
	if !strings.HasPrefix(handle, media.HandlePrefix) {
		handle = media.HandlePrefix + handle
	}

	res, err := s.session.Store().Open(handle)
	if err != nil {
		if errors.Is(err, media.ErrUnknownHandle) {
			http.Error(w, "unknown media handle", http.StatusNotFound)
			return
		}
		http.Error(w, "media error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", res.MIMEType)
	w.Header().Set("Cache-Control", "no-store")
	http.ServeContent(w, r, res.Name, res.CreatedAt, bytes.NewReader(res.Data))
}

// requireToken rejects requests without the control token when one is configured.
// Browsers cannot set headers on WebSocket upgrades, so a token query parameter is accepted too.
func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token == "" {
			next.ServeHTTP(w, r)
			return
		}
		token := r.Header.Get(TokenHeader)
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.token)) != 1 {
			http.Error(w, "unauthenticated", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requestLogger logs each request through zerolog.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			zlog.Debug().Msgf("web: %s %s status=%d bytes=%d duration=%v request_id=%s",
				r.Method, r.URL.Path, ww.Status(), ww.BytesWritten(), time.Since(start), middleware.GetReqID(r.Context()))
		}()
		next.ServeHTTP(ww, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zlog.Warn().Msgf("web: failed to write response: %v", err)
	}
}
