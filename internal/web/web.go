package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"eventcal/internal/apperr"
	"eventcal/internal/auth"
	"eventcal/internal/calendar"
	"eventcal/internal/config"
	"eventcal/internal/datetime"
	appLog "eventcal/internal/log"
	"eventcal/internal/model"
	"eventcal/internal/nonce"
	"eventcal/internal/scrape"
	"eventcal/internal/shortcode"
	"eventcal/internal/store"
)

// APIPrefix is the mount point of the JSON API.
const APIPrefix = "/api/eventcal/v1"

// EventStore is the persistence the handlers need.
type EventStore interface {
	CreateEvent(ctx context.Context, e *model.Event) error
	UpdateEvent(ctx context.Context, e *model.Event) error
	DeleteEvent(ctx context.Context, id int64) error
	GetEvent(ctx context.Context, id int64) (*model.Event, error)
	EventsBetween(ctx context.Context, calendar string, from, to datetime.DateTime, publicOnly bool) ([]*model.Event, error)

	CreateCategory(ctx context.Context, c *model.Category) error
	UpdateCategory(ctx context.Context, c *model.Category) error
	DeleteCategory(ctx context.Context, id int64) error
	GetCategory(ctx context.Context, id int64) (*model.Category, error)
	ListCategories(ctx context.Context) ([]model.Category, error)
}

// Renderer renders one calendar; *calendar.Service implements it.
type Renderer interface {
	Render(ctx context.Context, p calendar.Params) (string, error)
}

// Importer resolves an event page URL; *scrape.Importer implements it.
type Importer interface {
	Import(ctx context.Context, url string) (scrape.Imported, error)
}

// Limiter throttles event submissions; *throttle.Throttle implements it.
type Limiter interface {
	Check(ctx context.Context) error
}

// Deps wires a Server.
type Deps struct {
	Config   *config.Config
	Store    EventStore
	Calendar Renderer
	Importer Importer
	Throttle Limiter
	Nonces   *nonce.Store
	Auth     *auth.Authenticator
	Clock    datetime.Clock
}

// Server provides the HTTP API, the AJAX form endpoints and the calendar pages.
type Server struct {
	cfg      *config.Config
	store    EventStore
	calendar Renderer
	importer Importer
	throttle Limiter
	nonces   *nonce.Store
	auth     *auth.Authenticator
	clock    datetime.Clock
	expander *shortcode.Expander

	router *mux.Router
}

// NewServer constructs a new Server.
func NewServer(d Deps) *Server {
	if d.Clock == nil {
		d.Clock = datetime.SystemClock{}
	}
	if d.Nonces == nil {
		d.Nonces = nonce.NewStore(d.Config.NonceTTL)
	}
	if d.Auth == nil {
		d.Auth = auth.NewAuthenticator(d.Config.Users)
	}
	s := &Server{
		cfg:      d.Config,
		store:    d.Store,
		calendar: d.Calendar,
		importer: d.Importer,
		throttle: d.Throttle,
		nonces:   d.Nonces,
		auth:     d.Auth,
		clock:    d.Clock,
		router:   mux.NewRouter(),
	}
	s.expander = shortcode.NewExpander(d.Calendar, d.Clock, shortcode.Defaults{
		Days:     d.Config.Site.DefaultDays,
		Style:    calendar.Style(d.Config.Site.DefaultStyle),
		Calendar: d.Config.Site.DefaultCalendar,
	})
	s.registerRoutes()
	return s
}

// Handler returns the router wrapped in the visitor identification.
func (s *Server) Handler() http.Handler {
	return s.auth.Middleware(s.router)
}

// Run serves on listen until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, listen string) error {
	srv := &http.Server{
		Addr:              listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		appLog.Info("shutting down HTTP server")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) registerRoutes() {
	r := s.router
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api := r.PathPrefix(APIPrefix).Subrouter()
	api.Use(cors.New(cors.Options{
		AllowedOrigins:   s.cfg.Site.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: false,
	}).Handler)
	// OPTIONS is routed so the CORS middleware sees preflight requests.
	api.HandleFunc("/eventDisplay/{id:[0-9]+}", s.handleEventDisplay).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/eventRaw/{id:[0-9]+}", s.handleEventRaw).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/categories", s.handleCategories).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/import", s.handleImport).Methods(http.MethodPost, http.MethodOptions)

	r.HandleFunc("/ajax/nonce", s.handleNonce).Methods(http.MethodGet)
	r.HandleFunc("/ajax/{action}", s.handleAction).Methods(http.MethodPost)

	r.HandleFunc("/calendar", s.handleCalendar).Methods(http.MethodGet)
	r.HandleFunc("/calendar.ics", s.handleICS).Methods(http.MethodGet)
	r.HandleFunc("/render", s.handleRender).Methods(http.MethodPost)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, msgNotFound)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

const (
	msgInternal  = "Interner Fehler. Bitte später erneut versuchen."
	msgNotFound  = "Nicht gefunden."
	msgBadNonce  = "Sicherheitsprüfung fehlgeschlagen. Bitte die Seite neu laden."
	msgForbidden = "Dafür fehlt die Berechtigung."
)

// fail maps err onto the response. Validation and upstream failures use 500
// like every other unexpected error; only the message differs.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := http.StatusInternalServerError, msgInternal

	var fieldErr *model.FieldError
	var styleErr *calendar.UnknownStyleError
	switch {
	case errors.As(err, &fieldErr):
		msg = fieldErr.Message
	case errors.As(err, &styleErr):
		msg = "Unbekannter Stil: " + string(styleErr.Style)
	case errors.Is(err, store.ErrNotFound):
		status, msg = http.StatusNotFound, msgNotFound
	case errors.Is(err, nonce.ErrInvalid):
		status, msg = http.StatusForbidden, msgBadNonce
	default:
		if ae, ok := apperr.As(err); ok {
			msg = ae.Message
			switch ae.Kind {
			case apperr.Forbidden:
				status = http.StatusForbidden
			case apperr.NotFound:
				status = http.StatusNotFound
			case apperr.RateLimited:
				status = http.StatusForbidden
				w.Header().Set("Retry-After", strconv.Itoa(int(ae.RetryAfter.Round(time.Second)/time.Second)))
			}
		}
	}

	if status == http.StatusInternalServerError && msg == msgInternal {
		appLog.Error("request failed", err, "method", r.Method, "path", r.URL.Path)
	} else {
		appLog.Info("request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "error", err.Error())
	}
	writeError(w, status, msg)
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.New(apperr.Validation, "Ungültige ID.")
	}
	return id, nil
}

func formID(r *http.Request, key string) (int64, error) {
	id, err := strconv.ParseInt(r.PostFormValue(key), 10, 64)
	if err != nil || id <= 0 {
		return 0, &model.FieldError{Field: key, Message: "Ungültige ID."}
	}
	return id, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
