package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/contacts/internal/auth/obs"
	"github.com/aussiebroadwan/contacts/internal/auth/service"
	"github.com/aussiebroadwan/contacts/pkg/httpx"
	"github.com/aussiebroadwan/contacts/pkg/slogx"

	_ "github.com/aussiebroadwan/contacts/api/contacts" // Swagger docs
	httpSwagger "github.com/swaggo/http-swagger"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	SessionService *service.SessionService
	UserService    *service.UserService
	Metrics        *obs.Metrics // optional

	// BaseURL prefixes links in outgoing emails. When empty it is derived
	// from the request.
	BaseURL string

	// Readiness lists the dependencies /readyz pings.
	Readiness []ReadinessCheck
}

func NewRouter(buildVersion string, logger *slog.Logger) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		buildVersion: buildVersion,
		startTime:    time.Now(),
		logger:       logger,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

// Use appends middleware to the global chain. Middleware added later runs
// closer to the handlers.
func (r *Router) Use(mws ...httpx.Middleware) {
	r.middlewares = append(r.middlewares, mws...)
}

func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerUsers()
	r.registerSystem()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			Contacts API
//	@version		0.1.0
//	@description	Account and session management for the contacts service.
//	@description
//	@description				Access and refresh tokens are HS256 JWTs. Refresh tokens rotate on every use.
//
//	@contact.name				AussieBroadWAN Team
//	@contact.url				https://github.com/aussiebroadwan/contacts
//
//	@license.name				MIT
//	@license.url				https://opensource.org/licenses/MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@schemes					http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				JWT access token. Format: "Bearer {token}".
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	mws := append(r.middlewares[:len(r.middlewares):len(r.middlewares)], r.instrument)
	httpx.Chain(r.Mux, mws...).ServeHTTP(w, req)
}

func (r *Router) registerAuth() {
	signup := &SignupHandler{UserService: r.UserService, BaseURL: r.BaseURL}
	login := &LoginHandler{SessionService: r.SessionService}
	refresh := &RefreshHandler{SessionService: r.SessionService}
	logout := &LogoutHandler{SessionService: r.SessionService}
	email := &EmailHandler{SessionService: r.SessionService, BaseURL: r.BaseURL}
	password := &PasswordHandler{SessionService: r.SessionService, BaseURL: r.BaseURL}

	// Account creation and credential checks are brute-force targets.
	r.Mux.Handle("POST /api/auth/signup",
		httpx.Chain(signup, httpx.RateLimitByIP(httpx.StrictLimit)),
	)
	r.Mux.Handle("POST /api/auth/login",
		httpx.Chain(login, httpx.RateLimitByIPAndFormField(httpx.StrictLimit, "username")),
	)
	r.Mux.Handle("GET /api/auth/refresh_token",
		httpx.Chain(refresh, httpx.RateLimitByIP(httpx.ModerateLimit)),
	)
	r.Mux.Handle("POST /api/auth/logout",
		httpx.Chain(logout,
			httpx.AuthnMiddleware(r.SessionService),
			httpx.RateLimitByUser(httpx.ModerateLimit),
		),
	)

	r.Mux.Handle("GET /api/auth/confirmed_email/{token}",
		httpx.Chain(http.HandlerFunc(email.HandleConfirm), httpx.RateLimitByIP(httpx.ModerateLimit)),
	)
	r.Mux.Handle("POST /api/auth/request_email",
		httpx.Chain(http.HandlerFunc(email.HandleRequest), httpx.RateLimitByIP(httpx.StrictLimit)),
	)

	r.Mux.Handle("POST /api/auth/forget-password",
		httpx.Chain(http.HandlerFunc(password.HandleForgot), httpx.RateLimitByIP(httpx.StrictLimit)),
	)
	r.Mux.Handle("POST /api/auth/reset-password",
		httpx.Chain(http.HandlerFunc(password.HandleReset), httpx.RateLimitByIP(httpx.StrictLimit)),
	)
}

func (r *Router) registerUsers() {
	h := &UsersHandler{UserService: r.UserService}

	r.Mux.Handle("GET /api/users/me",
		httpx.Chain(http.HandlerFunc(h.HandleMe),
			httpx.AuthnMiddleware(r.SessionService),
			httpx.RateLimitByUser(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("PATCH /api/users/avatar",
		httpx.Chain(http.HandlerFunc(h.HandleAvatar),
			httpx.AuthnMiddleware(r.SessionService),
			httpx.RateLimitByUser(httpx.ProfileLimit),
		),
	)
}

func (r *Router) registerSystem() {
	// Monitoring systems may poll frequently.
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.Readiness),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("GET /metrics", r.Metrics.Handler())
}

// instrument counts responses per route pattern. It must wrap the mux
// directly, since the mux records the matched pattern on the request it is
// handed.
func (r *Router) instrument(next http.Handler) http.Handler {
	if r.Metrics == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, req)

		route := req.Pattern
		if route == "" {
			route = "unmatched"
		}
		r.Metrics.HTTPResponse(route, sw.status)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
