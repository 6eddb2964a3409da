package routes

import (
	"context"
	"net/http"
	"time"

	scs "github.com/alexedwards/scs/v2"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	appmw "github.com/briangreenhill/buddy/internal/http/middleware"
	"github.com/briangreenhill/buddy/internal/workspace"
)

const visitorKey = "visitor_id"

type ctxKey struct{}

// Server is the backend-for-frontend HTTP surface.
type Server struct {
	Router     *chi.Mux
	Sess       *scs.SessionManager
	Workspaces *workspace.Registry
	Log        zerolog.Logger
}

// ServerOptions holds the dependencies New wires into the router.
type ServerOptions struct {
	Sess       *scs.SessionManager
	Workspaces *workspace.Registry
	Logger     zerolog.Logger
}

// NewSessionManager returns the scs manager the BFF expects.
func NewSessionManager(cookieName string, secure bool) *scs.SessionManager {
	sess := scs.New()
	sess.Lifetime = 12 * time.Hour
	sess.Cookie.Name = cookieName
	sess.Cookie.HttpOnly = true
	sess.Cookie.SameSite = http.SameSiteLaxMode
	sess.Cookie.Secure = secure
	return sess
}

// New builds the router and registers every route.
func New(opts ServerOptions) *Server {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	s := &Server{Router: r, Sess: opts.Sess, Workspaces: opts.Workspaces, Log: opts.Logger}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("ok")); err != nil {
			hlog.FromRequest(r).Error().Err(err).Msg("write health check response")
		}
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(vr chi.Router) {
		vr.Use(s.workspaceToContext)
		vr.Use(s.sessionToContext)

		vr.Post("/auth/login", s.handleLogin)
		vr.Post("/auth/logout", s.handleLogout)
		vr.Get("/auth/me", s.handleMe)

		vr.Group(func(pr chi.Router) {
			pr.Use(appmw.RequireIdentity)
			pr.Get("/breeds", s.handleBreeds)
			pr.Get("/dogs", s.handleDogs)
			pr.Get("/browse", s.handleBrowse)
			pr.Patch("/browse", s.handleBrowseUpdate)
			pr.Get("/favorites", s.handleFavorites)
			pr.Put("/favorites", s.handleFavoriteAdd)
			pr.Delete("/favorites/{id}", s.handleFavoriteRemove)
			pr.Post("/match", s.handleMatch)
			pr.Get("/match", s.handleCurrentMatch)
			pr.Get("/locations", s.handleLocations)
			pr.Post("/locations/search", s.handleLocationSearch)
		})
	})

	return s
}

// Handler wraps the router with request logging and session loading.
func (s *Server) Handler() http.Handler {
	h := hlog.AccessHandler(func(r *http.Request, status, size int, d time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", d).
			Msg("request")
	})(s.Router)
	h = hlog.RemoteAddrHandler("ip")(h)
	h = hlog.NewHandler(s.Log)(h)
	return s.Sess.LoadAndSave(h)
}

// workspaceToContext gives every visitor a stable id in their cookie session
// and loads their workspace.
func (s *Server) workspaceToContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := s.Sess.GetString(r.Context(), visitorKey)
		if id == "" {
			id = uuid.NewString()
			s.Sess.Put(r.Context(), visitorKey, id)
		}
		ws, err := s.Workspaces.Get(r.Context(), id)
		if err != nil {
			hlog.FromRequest(r).Error().Err(err).Str("visitor", id).Msg("open workspace")
			writeError(w, r, err)
			return
		}
		ctx := context.WithValue(r.Context(), ctxKey{}, ws)
		hlog.FromRequest(r).UpdateContext(func(c zerolog.Context) zerolog.Context {
			return c.Str("visitor", id)
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// sessionToContext puts the live identity where RequireIdentity looks.
func (s *Server) sessionToContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws := wsFrom(r)
		if sess, ok := ws.Session.Current(r.Context()); ok {
			r = r.WithContext(appmw.WithIdentity(r.Context(), appmw.Identity{
				VisitorID: s.Sess.GetString(r.Context(), visitorKey),
				Name:      sess.Name,
				Email:     sess.Email,
			}))
		}
		next.ServeHTTP(w, r)
	})
}

func wsFrom(r *http.Request) *workspace.Workspace {
	return r.Context().Value(ctxKey{}).(*workspace.Workspace)
}
