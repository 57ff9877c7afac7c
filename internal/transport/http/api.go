package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"code-quizzer/internal/app"
	"code-quizzer/internal/domain"
	"code-quizzer/internal/identity"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

// Identity is the identity provider the API signs users in with.
type Identity interface {
	SignUp(ctx context.Context, email, password, displayName string) (identity.Session, error)
	SignIn(ctx context.Context, email, password string) (identity.Session, error)
	SignOut(token string) error
	Verify(token string) (domain.Principal, error)
	GoogleAuthURL(state string) (string, error)
	SignInWithGoogle(ctx context.Context, code string) (identity.Session, error)
}

// Pinger reports whether the document store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RequestObserver records API latency.
type RequestObserver interface {
	ObserveRequest(route, method string, status int, elapsed time.Duration)
}

type APIOptions struct {
	Health         Pinger
	Observer       RequestObserver
	Metrics        http.Handler
	AllowedOrigins []string
}

// API serves the REST endpoints and the quiz websocket.
type API struct {
	service  *app.QuizService
	identity Identity
	ws       *WSHandler
	health   Pinger
	observer RequestObserver
	metrics  http.Handler
	origins  []string
}

func NewAPI(service *app.QuizService, id Identity, opts APIOptions) *API {
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return &API{
		service:  service,
		identity: id,
		ws:       NewWSHandler(service, id),
		health:   opts.Health,
		observer: opts.Observer,
		metrics:  opts.Metrics,
		origins:  origins,
	}
}

// Handler returns the routed and CORS-wrapped handler.
func (a *API) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(a.observe)

	r.HandleFunc("/healthz", a.healthz).Methods(http.MethodGet)
	if a.metrics != nil {
		r.Handle("/metrics", a.metrics).Methods(http.MethodGet)
	}
	r.HandleFunc("/ws", a.ws.ServeWS)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/auth/signup", a.signUp).Methods(http.MethodPost)
	api.HandleFunc("/auth/signin", a.signIn).Methods(http.MethodPost)
	api.HandleFunc("/auth/google", a.googleRedirect).Methods(http.MethodGet)
	api.HandleFunc("/auth/google/callback", a.googleCallback).Methods(http.MethodGet)

	protected := api.PathPrefix("").Subrouter()
	protected.Use(a.authenticate)
	protected.HandleFunc("/auth/signout", a.signOut).Methods(http.MethodPost)
	protected.HandleFunc("/topics", a.topics).Methods(http.MethodGet)
	protected.HandleFunc("/progress", a.progress).Methods(http.MethodGet)
	protected.HandleFunc("/progress/reset", a.resetProgress).Methods(http.MethodPost)
	protected.HandleFunc("/achievements", a.achievements).Methods(http.MethodGet)
	protected.HandleFunc("/leaderboard", a.leaderboard).Methods(http.MethodGet)
	protected.HandleFunc("/profile", a.profile).Methods(http.MethodGet)
	protected.HandleFunc("/profile", a.updateProfile).Methods(http.MethodPut)

	c := cors.New(cors.Options{
		AllowedOrigins:   a.origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})
	return c.Handler(r)
}

func (a *API) healthz(w http.ResponseWriter, r *http.Request) {
	if a.health != nil {
		if err := a.health.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type credentials struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorPayload{Message: "Invalid request body"})
		return false
	}
	return true
}

func (a *API) signUp(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if !decode(w, r, &req) {
		return
	}
	session, err := a.identity.SignUp(r.Context(), req.Email, req.Password, req.DisplayName)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (a *API) signIn(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if !decode(w, r, &req) {
		return
	}
	session, err := a.identity.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (a *API) signOut(w http.ResponseWriter, r *http.Request) {
	if err := a.identity.SignOut(bearerToken(r)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

const stateCookie = "oauth_state"

func (a *API) googleRedirect(w http.ResponseWriter, r *http.Request) {
	state := uuid.NewString()
	url, err := a.identity.GoogleAuthURL(state)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorPayload{Message: err.Error()})
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/api/auth/google",
		MaxAge:   int((10 * time.Minute).Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, url, http.StatusFound)
}

func (a *API) googleCallback(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(stateCookie)
	if err != nil || cookie.Value == "" || cookie.Value != r.URL.Query().Get("state") {
		writeJSON(w, http.StatusBadRequest, errorPayload{Message: "invalid oauth state"})
		return
	}
	code := r.URL.Query().Get("code")
	if r.URL.Query().Get("error") != "" {
		code = ""
	}
	session, err := a.identity.SignInWithGoogle(r.Context(), code)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (a *API) topics(w http.ResponseWriter, r *http.Request) {
	topics, err := a.service.Topics(r.Context(), principalFrom(r.Context()).ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, topics)
}

func (a *API) progress(w http.ResponseWriter, r *http.Request) {
	progress, err := a.service.Progress(r.Context(), principalFrom(r.Context()).ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

func (a *API) resetProgress(w http.ResponseWriter, r *http.Request) {
	if err := a.service.ResetAll(r.Context(), principalFrom(r.Context()).ID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) achievements(w http.ResponseWriter, r *http.Request) {
	views, err := a.service.Achievements(r.Context(), principalFrom(r.Context()).ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (a *API) leaderboard(w http.ResponseWriter, r *http.Request) {
	rows, err := a.service.Leaderboard(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (a *API) profile(w http.ResponseWriter, r *http.Request) {
	view, err := a.service.Profile(r.Context(), principalFrom(r.Context()).ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type profileRequest struct {
	DisplayName string `json:"displayName"`
	Bio         string `json:"bio"`
}

func (a *API) updateProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if !decode(w, r, &req) {
		return
	}
	view, err := a.service.UpdateProfile(r.Context(), principalFrom(r.Context()).ID, req.DisplayName, req.Bio)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}
