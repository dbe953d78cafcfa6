// Copyright (c) 2026 TTBT Enterprises LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package backend

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/c2FmZQ/storage"
)

func generateETag(data []byte) string {
	return fmt.Sprintf("\"%x\"", sha256.Sum256(data))
}

func hubBusyResponse(w http.ResponseWriter, retryAfter string) {
	w.Header().Set("Retry-After", retryAfter)
	http.Error(w, "Too Many Requests: Server is busy", http.StatusTooManyRequests)
}

func parsePagination(r *http.Request) (int, int, string, string, string) {
	limit := 50
	offset := 0
	sortBy := r.URL.Query().Get("sortBy")
	order := r.URL.Query().Get("order")
	query := r.URL.Query().Get("q")

	if l := r.URL.Query().Get("limit"); l != "" {
		if val, err := strconv.Atoi(l); err == nil {
			limit = val
		}
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		if val, err := strconv.Atoi(o); err == nil {
			offset = val
		}
	}

	if limit < 1 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	return limit, offset, sortBy, order, query
}

// page returns the slice of ids selected by offset and limit.
func page[T any](ids []T, offset, limit int) []T {
	if offset >= len(ids) {
		return nil
	}
	return ids[offset:min(offset+limit, len(ids))]
}

// Options represent server options.
type Options struct {
	Addr            string
	Cert            *tls.Certificate
	DataDir         string
	UseMockAuth     bool
	Debug           bool
	GameStore       *GameStore
	TeamStore       *TeamStore
	TournamentStore *TournamentStore
	Storage         *storage.Storage
	Registry        *Registry
	Monitor         *Monitor
	Listener        net.Listener

	// Auth Options
	AuthCookieName string
	AuthJWKSURL    string

	// Access Control Options
	BootstrapAdmin string
}

const (
	retryAfterLoad   = "2"
	retryAfterAction = "5"
)

const maxBodySize = 1 << 20

const metricsInterval = time.Minute

// Server represents the running server instance.
type Server struct {
	httpServer *http.Server
	registry   *Registry
	monitor    *Monitor
}

// Shutdown gracefully shuts down the HTTP server and the background
// collectors.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.registry.StopGC()
	s.monitor.Stop()
	if err != nil {
		return fmt.Errorf("http: %w", err)
	}
	return nil
}

// StartServer starts the web server and registers the API handlers.
func StartServer(opts Options) (*Server, error) {
	opts.setDefaults()
	handler := NewServerHandler(opts)

	httpServer := &http.Server{
		Addr:    opts.Addr,
		Handler: handler,
	}
	if opts.Cert != nil {
		httpServer.TLSConfig = &tls.Config{
			Certificates: []tls.Certificate{*opts.Cert},
		}
	}

	ln := opts.Listener
	if ln == nil {
		var err error
		if ln, err = net.Listen("tcp", opts.Addr); err != nil {
			opts.Registry.StopGC()
			return nil, err
		}
	}

	go func() {
		var err error
		if httpServer.TLSConfig != nil {
			log.Printf("Starting HTTPS server on %s...", ln.Addr())
			err = httpServer.ServeTLS(ln, "", "")
		} else {
			log.Printf("Starting HTTP server on %s...", ln.Addr())
			err = httpServer.Serve(ln)
		}
		if err != nil && !errors.Is(err, net.ErrClosed) && err != http.ErrServerClosed {
			log.Printf("Server error: %v", err)
		}
	}()

	opts.Monitor.Start(metricsInterval)
	return &Server{httpServer: httpServer, registry: opts.Registry, monitor: opts.Monitor}, nil
}

// setDefaults fills in the stores and registry that were not injected.
func (opts *Options) setDefaults() {
	if opts.DataDir == "" {
		opts.DataDir = "data"
	}
	if opts.Storage == nil {
		opts.Storage = storage.New(opts.DataDir, nil)
	}
	if opts.GameStore == nil {
		opts.GameStore = NewGameStore(opts.DataDir, opts.Storage)
	}
	if opts.TeamStore == nil {
		opts.TeamStore = NewTeamStore(opts.DataDir, opts.Storage)
	}
	if opts.TournamentStore == nil {
		opts.TournamentStore = NewTournamentStore(opts.DataDir, opts.Storage)
	}
	if opts.Registry == nil {
		opts.Registry = NewRegistry(opts.GameStore, opts.TeamStore, opts.TournamentStore, opts.Storage)
	}
	if opts.Monitor == nil {
		opts.Monitor = NewMonitor(opts.Storage, opts.Registry)
	}
	opts.GameStore.Debug = opts.Debug
	opts.TeamStore.Debug = opts.Debug
	opts.TournamentStore.Debug = opts.Debug
}

// api carries the dependencies shared by the HTTP handlers.
type api struct {
	opts          Options
	games         *GameStore
	teams         *TeamStore
	tournaments   *TournamentStore
	registry      *Registry
	accessControl *AccessControl
	hubs          *HubManager
	debugf        func(string, ...any)

	// recordMu serializes read-modify-write of team and tournament records.
	recordMu sync.Mutex
}

// NewServerHandler creates and configures the HTTP handler for the server.
func NewServerHandler(opts Options) http.Handler {
	opts.setDefaults()

	a := &api{
		opts:          opts,
		games:         opts.GameStore,
		teams:         opts.TeamStore,
		tournaments:   opts.TournamentStore,
		registry:      opts.Registry,
		accessControl: NewAccessControl(opts.Registry, opts.BootstrapAdmin),
		hubs:          NewHubManager(opts.GameStore, opts.TeamStore, opts.Registry),
		debugf:        func(string, ...any) {},
	}
	a.hubs.monitor = opts.Monitor
	if opts.Debug {
		a.debugf = func(f string, args ...any) {
			log.Printf("[DEBUG BACKEND] "+f, args...)
		}
	}

	mux := http.NewServeMux()

	// Games
	mux.HandleFunc("POST /api/new-game", a.handleNewGame)
	mux.HandleFunc("GET /api/load/{id}", a.handleLoadGame)
	mux.HandleFunc("GET /api/list-games", a.handleListGames)
	mux.HandleFunc("POST /api/list-games", a.handleListGames)
	mux.HandleFunc("POST /api/action", a.handleAction)
	mux.HandleFunc("POST /api/delete-game", a.handleDeleteGame)
	mux.HandleFunc("GET /api/boxscore/{id}", a.handleBoxScore)
	mux.HandleFunc("GET /api/feed/{id}", a.handleFeed)
	mux.HandleFunc("GET /api/ws", func(w http.ResponseWriter, r *http.Request) {
		ServeWS(a.hubs, w, r, a.debugf)
	})

	// Teams
	mux.HandleFunc("POST /api/save-team", a.handleSaveTeam)
	mux.HandleFunc("GET /api/load-team/{id}", a.handleLoadTeam)
	mux.HandleFunc("GET /api/list-teams", a.handleListTeams)
	mux.HandleFunc("POST /api/delete-team", a.handleDeleteTeam)
	mux.HandleFunc("GET /api/team-stats/{id}", a.handleTeamStats)
	mux.HandleFunc("POST /api/team-stats/{id}", a.handlePlayerStats)

	// Tournaments
	mux.HandleFunc("POST /api/save-tournament", a.handleSaveTournament)
	mux.HandleFunc("GET /api/load-tournament/{id}", a.handleLoadTournament)
	mux.HandleFunc("GET /api/list-tournaments", a.handleListTournaments)
	mux.HandleFunc("POST /api/delete-tournament", a.handleDeleteTournament)
	mux.HandleFunc("POST /api/tournament/brackets", a.handleBrackets)
	mux.HandleFunc("POST /api/tournament/advance", a.handleAdvance)
	mux.HandleFunc("GET /api/tournament/standings/{id}", a.handleStandings)

	// Users
	mux.HandleFunc("GET /api/me", a.handleMe)
	mux.HandleFunc("/api/admin/policy", a.handlePolicy)
	mux.HandleFunc("GET /api/admin/metrics", a.handleMetrics)
	mux.HandleFunc("/api/login", func(w http.ResponseWriter, r *http.Request) {
		if opts.UseMockAuth {
			http.SetCookie(w, &http.Cookie{
				Name:  "mock_auth_user",
				Value: "test@example.com",
				Path:  "/",
			})
		} else if userId := getUserID(r); userId == "" || !isValidEmail(userId) {
			http.Error(w, "Forbidden: Invalid User ID", http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("Login successful.\n"))
	})

	// Mock SSO endpoints for local development
	if opts.UseMockAuth {
		mux.HandleFunc("/.sso/{$}", ssoStatusHandler)
		mux.HandleFunc("/.sso/logout", ssoLogoutHandler)
	}

	handler := http.Handler(mux)
	if opts.UseMockAuth {
		handler = mockAuthMiddleware(opts, handler)
	} else {
		handler = jwtAuthMiddleware(opts, handler)
	}
	handler = loggingMiddleware(handler)
	handler = metricsMiddleware(opts.Monitor, handler)
	handler = securityMiddleware(handler)
	handler = cacheControlMiddleware(handler)
	return handler
}

// requireUser returns the authenticated user, or writes a 403 and returns
// "" when there is none.
func requireUser(w http.ResponseWriter, r *http.Request) string {
	userId := getUserID(r)
	if userId == "" || !isValidEmail(userId) {
		http.Error(w, "Forbidden: Invalid User ID", http.StatusForbidden)
		return ""
	}
	return userId
}

// requireAllowedUser is requireUser plus the access policy check applied to
// every request that creates or changes a record.
func (a *api) requireAllowedUser(w http.ResponseWriter, r *http.Request) string {
	userId := requireUser(w, r)
	if userId == "" {
		return ""
	}
	if allowed, msg := a.accessControl.IsAllowed(userId); !allowed {
		http.Error(w, "Forbidden: "+msg, http.StatusForbidden)
		return ""
	}
	return userId
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(v); err != nil {
		http.Error(w, "Bad Request: Malformed JSON", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

// writeCached writes data with an ETag, or 304 when the client has it.
func writeCached(w http.ResponseWriter, r *http.Request, contentType string, data []byte) {
	etag := generateETag(data)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

// writeError maps store and hub errors to HTTP status codes.
func writeError(w http.ResponseWriter, what string, err error) {
	switch {
	case errors.Is(err, os.ErrNotExist):
		http.Error(w, "Not Found: "+what+" not found", http.StatusNotFound)
	case errors.Is(err, ErrForbidden):
		http.Error(w, "Forbidden: You do not have access to this "+what, http.StatusForbidden)
	case errors.Is(err, ErrInvalidCommand):
		http.Error(w, "Bad Request: "+err.Error(), http.StatusBadRequest)
	default:
		log.Printf("Internal Server Error (%s): %v", what, err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// callHub sends req to the game's hub and waits for the reply. It writes
// the error response itself and returns false on failure.
func (a *api) callHub(w http.ResponseWriter, r *http.Request, gameId string, req HubRequest, retryAfter string) (HubResponse, bool) {
	reply := make(chan HubResponse, 1)
	req.Reply = reply
	if !a.hubs.Send(gameId, req) {
		hubBusyResponse(w, retryAfter)
		return HubResponse{}, false
	}
	select {
	case resp := <-reply:
		if resp.Error != nil {
			writeError(w, "game", resp.Error)
			return HubResponse{}, false
		}
		return resp, true
	case <-r.Context().Done():
		return HubResponse{}, false
	}
}

func (a *api) handleMe(w http.ResponseWriter, r *http.Request) {
	userId := getUserID(r)
	if userId == "" || !isValidEmail(userId) {
		http.Error(w, "Unauthenticated", http.StatusForbidden)
		return
	}
	allowed, msg := a.accessControl.IsAllowed(userId)
	q := a.accessControl.GetUserQuotas(userId)
	writeJSON(w, http.StatusOK, map[string]any{
		"id":      userId,
		"allowed": allowed,
		"message": msg,
		"isAdmin": a.accessControl.IsAdmin(userId),
		"quotas": map[string]int{
			"maxGames":        q.MaxGames,
			"maxTeams":        q.MaxTeams,
			"maxTournaments":  q.MaxTournaments,
			"gamesUsed":       a.registry.CountOwnedGames(userId),
			"teamsUsed":       a.registry.CountOwnedTeams(userId),
			"tournamentsUsed": a.registry.CountOwnedTournaments(userId),
		},
	})
}

func (a *api) handlePolicy(w http.ResponseWriter, r *http.Request) {
	userId := getUserID(r)
	if !a.accessControl.IsAdmin(userId) {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	switch r.Method {
	case http.MethodGet:
		policy := a.registry.GetAccessPolicy()
		if policy == nil {
			policy = defaultAccessPolicy()
		}
		writeJSON(w, http.StatusOK, policy)
	case http.MethodPost:
		var p UserAccessPolicy
		if !decodeBody(w, r, &p) {
			return
		}
		if err := p.Validate(); err != nil {
			http.Error(w, "Bad Request: "+err.Error(), http.StatusBadRequest)
			return
		}
		if err := a.registry.UpdateAccessPolicy(&p); err != nil {
			log.Printf("Error saving access policy: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		log.Printf("[AUTH] Access policy updated by %s", maskEmail(userId))
		w.WriteHeader(http.StatusOK)
	default:
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
	}
}

func (a *api) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if !a.accessControl.IsAdmin(getUserID(r)) {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	writeJSON(w, http.StatusOK, a.opts.Monitor)
}

// cacheControlMiddleware marks every API response as private and
// revalidated.
func cacheControlMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "private, no-cache, no-transform")
		next.ServeHTTP(w, r)
	})
}

// securityMiddleware adds HTTP security headers to responses.
func securityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// mockAuthMiddleware takes the user id from a plain cookie. For tests and
// local development only.
func mockAuthMiddleware(opts Options, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie("mock_auth_user")
		if err == nil && cookie.Value != "" {
			ctx := context.WithValue(r.Context(), userIDKey, normalizeEmail(cookie.Value))
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ssoStatusHandler returns the current user status.
func ssoStatusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	userId := getUserID(r)
	if userId == "" {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte("null\n"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"email": userId,
		"name":  "Test User",
	})
}

// ssoLogoutHandler logs the user out (clears cookie).
func ssoLogoutHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:    "mock_auth_user",
		Value:   "",
		Path:    "/",
		Expires: time.Unix(0, 0),
		MaxAge:  -1,
	})
	w.WriteHeader(http.StatusOK)
}

// loggingMiddleware logs the method and URL path of every incoming HTTP request.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Printf("Received request: %s %s", r.Method, r.URL.Path)
		next.ServeHTTP(w, r)
	})
}
