// Package handler provides the HTTP handlers for the ADVOC server.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/balogun-pappy/advoc/config"
	"github.com/balogun-pappy/advoc/profile"
	"github.com/balogun-pappy/advoc/session"
	"github.com/balogun-pappy/advoc/social"
	"github.com/balogun-pappy/advoc/store"
)

// Deps are the collaborators a Handler serves requests with.
type Deps struct {
	Registry *store.Registry
	Sessions *session.Manager
	Profiles *profile.Resolver
	Clock    social.Clock
	Logger   *slog.Logger

	Media     config.MediaConfig
	Server    config.ServerConfig
	RateLimit config.RateLimitConfig

	// Metrics serves /metrics when set.
	Metrics http.Handler
}

// Handler holds the server dependencies and registers routes.
type Handler struct {
	reg      *store.Registry
	sessions *session.Manager
	profiles *profile.Resolver
	clock    social.Clock
	log      *slog.Logger
	media    config.MediaConfig
	limiter  *limiterPool

	router *mux.Router
	root   http.Handler
}

// feed is one of the two post timelines; they differ only in where their
// records and uploads live.
type feed struct {
	collection string
	uploadsDir string
}

// New creates a Handler and wires up all routes.
func New(d Deps) *Handler {
	log := d.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	clock := d.Clock
	if clock == nil {
		clock = social.NewMonotonicClock(social.RealClock{})
	}
	h := &Handler{
		reg:      d.Registry,
		sessions: d.Sessions,
		profiles: d.Profiles,
		clock:    clock,
		log:      log,
		media:    d.Media,
		limiter:  newLimiterPool(d.RateLimit),
		router:   mux.NewRouter(),
	}
	h.routes(d)

	h.root = corsMiddleware(h.logRequests(h.router), d.Server.AllowedOrigins)
	return h
}

// ServeHTTP makes Handler an http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.root.ServeHTTP(w, r)
}

func (h *Handler) routes(d Deps) {
	r := h.router
	r.Use(h.rateLimit)

	r.HandleFunc("/health", h.health).Methods(http.MethodGet)
	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics).Methods(http.MethodGet)
	}

	// Accounts
	r.HandleFunc("/signup", h.signup).Methods(http.MethodPost)
	r.HandleFunc("/login", h.login).Methods(http.MethodPost)
	r.HandleFunc("/logout", h.logout).Methods(http.MethodPost)
	r.HandleFunc("/auth-check", h.authCheck).Methods(http.MethodGet)

	// Profile pictures
	r.HandleFunc("/profile-pic/{username}", h.getProfilePic).Methods(http.MethodGet)
	r.HandleFunc("/profile-pic/{username}", h.putProfilePic).Methods(http.MethodPost)

	// Media and business timelines
	media := feed{collection: store.Posts, uploadsDir: d.Media.UploadsDir}
	business := feed{collection: store.BusinessPosts, uploadsDir: d.Media.BusinessUploadsDir}
	h.feedRoutes(r, media)
	h.feedRoutes(r.PathPrefix("/business").Subrouter(), business)

	// Direct messages
	r.HandleFunc("/dm/{user1}/{user2}", h.getConversation).Methods(http.MethodGet)
	r.HandleFunc("/dm/{user1}/{user2}", h.sendMessage).Methods(http.MethodPost)

	if d.Server.PublicDir != "" {
		r.PathPrefix("/").Handler(http.FileServer(http.Dir(d.Server.PublicDir))).Methods(http.MethodGet, http.MethodHead)
	}
}

func (h *Handler) feedRoutes(r *mux.Router, f feed) {
	r.HandleFunc("/upload", h.upload(f)).Methods(http.MethodPost)
	r.HandleFunc("/images", h.listPosts(f)).Methods(http.MethodGet)
	r.HandleFunc("/like/{filename}", h.like(f)).Methods(http.MethodPost)
	r.HandleFunc("/comments/{filename}", h.listComments(f)).Methods(http.MethodGet)
	r.HandleFunc("/comments/{filename}", h.addComment(f)).Methods(http.MethodPost)
}

// ---------- helpers ----------

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}

// reject writes the {success:false} body clients expect for refused
// operations.
func reject(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "message": msg})
}

// readFields reads a flat JSON object or a URL-encoded form body into a map
// of string fields.
func readFields(r *http.Request) (map[string]string, error) {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/json" {
		defer r.Body.Close()
		var raw map[string]any
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			return nil, err
		}
		out := make(map[string]string, len(raw))
		for k, v := range raw {
			if s, ok := v.(string); ok {
				out[k] = s
			}
		}
		return out, nil
	}
	if err := r.ParseForm(); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(r.PostForm))
	for k := range r.PostForm {
		out[k] = r.PostForm.Get(k)
	}
	return out, nil
}

// collection fetches a collection from the registry, writing a 500 on failure.
func (h *Handler) collection(w http.ResponseWriter, name string) (store.Collection, bool) {
	c, err := h.reg.Get(name)
	if err != nil {
		h.storageFailure(w, err)
		return nil, false
	}
	return c, true
}

// storageFailure answers an operation that failed for a reason other than a
// normal negative outcome.
func (h *Handler) storageFailure(w http.ResponseWriter, err error) {
	h.log.Error("request_failed", "error", err, "storage", errors.Is(err, store.ErrStorageIO))
	writeError(w, http.StatusInternalServerError, "storage failure")
}

// currentUser returns the logged-in user, or writes the "Not logged in"
// rejection and reports false.
func (h *Handler) currentUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	user, ok := h.sessions.CurrentUser(r)
	if !ok {
		reject(w, http.StatusOK, "Not logged in")
		return "", false
	}
	return user, true
}

// ---------- status endpoints ----------

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}
