package facade

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/warren/pkg/log"
	"github.com/cuemby/warren/pkg/security"
	"github.com/cuemby/warren/pkg/types"
)

// UserStore resolves the configured API users for authentication.
type UserStore interface {
	ListAPIUsers() ([]*types.APIUser, error)
}

// Server exposes a Facade over HTTP/JSON, authenticating every request by
// client certificate CN or HTTP basic auth against the configured
// ApiUser-style credentials, mirroring HttpServerConnection's
// per-connection ApiUser resolution.
type Server struct {
	facade *Facade
	users  UserStore
	logger zerolog.Logger
	mux    *http.ServeMux
}

// NewServer builds an HTTP facade server.
func NewServer(f *Facade, users UserStore) *Server {
	s := &Server{facade: f, users: users, logger: log.WithComponent("facade.http")}
	s.mux = http.NewServeMux()
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/v1/checkresult", s.authenticated("checkresult/write", s.handleCheckResult))
	s.mux.HandleFunc("/v1/downtime", s.authenticated("downtime/write", s.handleDowntime))
	s.mux.HandleFunc("/v1/acknowledgement", s.authenticated("acknowledgement/write", s.handleAcknowledgement))
	s.mux.HandleFunc("/v1/reschedule", s.authenticated("reschedule/write", s.handleReschedule))
	s.mux.HandleFunc("/v1/notification/custom", s.authenticated("notification/write", s.handleCustomNotification))
	s.mux.HandleFunc("/v1/objects/checkables", s.authenticated("objects/query", s.handleListCheckables))
	s.mux.HandleFunc("/v1/events", s.authenticated("events/subscribe", s.handleEvents))
}

// authenticate resolves the caller's ApiUser by client certificate CN
// (preferred, mirrors mTLS-authenticated cluster endpoints) and falls
// back to HTTP basic auth, then checks perm against its Permissions.
func (s *Server) authenticate(r *http.Request, perm string) (*types.APIUser, bool) {
	users, err := s.users.ListAPIUsers()
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to load api users")
		return nil, false
	}

	var user *types.APIUser
	if r.TLS != nil {
		if cn := clientCN(r.TLS); cn != "" {
			user = security.AuthenticateByClientCN(users, cn)
		}
	}
	if user == nil {
		if name, password, ok := r.BasicAuth(); ok {
			user = security.AuthenticateByPassword(users, name, password)
		}
	}
	if user == nil {
		return nil, false
	}
	if !user.HasPermission(perm) {
		return nil, false
	}
	return user, true
}

func clientCN(state *tls.ConnectionState) string {
	if len(state.PeerCertificates) == 0 {
		return ""
	}
	return state.PeerCertificates[0].Subject.CommonName
}

func (s *Server) authenticated(perm string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := s.authenticate(r, perm); !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleCheckResult(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		CheckableID string            `json:"checkable_id"`
		Result      types.CheckResult `json:"result"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.facade.ProcessCheckResult(req.CheckableID, &req.Result); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleDowntime(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req struct {
			CheckableID string    `json:"checkable_id"`
			Author      string    `json:"author"`
			Comment     string    `json:"comment"`
			Start       time.Time `json:"start"`
			End         time.Time `json:"end"`
			Fixed       bool      `json:"fixed"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		d, err := s.facade.ScheduleDowntime(req.CheckableID, req.Author, req.Comment, req.Start, req.End, req.Fixed)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusCreated, d)
	case http.MethodDelete:
		checkableID := r.URL.Query().Get("checkable_id")
		downtimeID := r.URL.Query().Get("downtime_id")
		if err := s.facade.RemoveDowntime(checkableID, downtimeID); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleAcknowledgement(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		CheckableID string `json:"checkable_id"`
		Author      string `json:"author"`
		Comment     string `json:"comment"`
		Sticky      bool   `json:"sticky"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.facade.AcknowledgeProblem(req.CheckableID, req.Author, req.Comment, req.Sticky); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleReschedule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		CheckableID string    `json:"checkable_id"`
		When        time.Time `json:"when"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.When.IsZero() {
		req.When = time.Now()
	}
	if err := s.facade.Reschedule(req.CheckableID, req.When); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleCustomNotification(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		CheckableID string `json:"checkable_id"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.facade.SendCustomNotification(req.CheckableID); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleListCheckables(w http.ResponseWriter, r *http.Request) {
	if id := r.URL.Query().Get("id"); id != "" {
		c, ok := s.facade.GetCheckable(id)
		if !ok {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, c)
		return
	}
	writeJSON(w, http.StatusOK, s.facade.ListCheckables())
}

// handleEvents streams newline-delimited JSON events until the client
// disconnects, the simplest possible long-poll alternative to
// EventQueue::WaitForEvent's condition-variable wait.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	ch := s.facade.Subscribe(ctx)
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)

	enc := json.NewEncoder(w)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if err := enc.Encode(ev); err != nil {
				return
			}
			flusher.Flush()
		case <-ctx.Done():
			return
		}
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
