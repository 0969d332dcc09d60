package app

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"

	"github.com/unistock-erp/unistock-erp/internal/observability"
	"github.com/unistock-erp/unistock-erp/internal/platform/httpx"
	"github.com/unistock-erp/unistock-erp/internal/shared"
)

// MiddlewareConfig aggregates dependencies shared by the middleware stack.
type MiddlewareConfig struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics
}

// MiddlewareStack installs the base middleware chain applied to every route.
func MiddlewareStack(cfg MiddlewareConfig) []func(http.Handler) http.Handler {
	secureMiddleware := secure.New(secure.Options{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		BrowserXssFilter:   true,
		ReferrerPolicy:     "strict-origin-when-cross-origin",
		SSLRedirect:        cfg.Config != nil && cfg.Config.IsProduction(),
		SSLProxyHeaders:    map[string]string{"X-Forwarded-Proto": "https"},
	})

	timeout := 30 * time.Second
	if cfg.Config != nil && cfg.Config.AppRequestTimeout > 0 {
		timeout = cfg.Config.AppRequestTimeout
	}

	middlewares := []func(http.Handler) http.Handler{
		middleware.RealIP,
		middleware.RequestID,
		middleware.Recoverer,
		middleware.Timeout(timeout),
		func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if err := secureMiddleware.Process(w, r); err != nil {
					cfg.Logger.Warn("secure headers blocked request", slog.Any("error", err))
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					return
				}
				next.ServeHTTP(w, r)
			})
		},
		middleware.Compress(5),
		httprate.Limit(120, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)),
	}
	if cfg.Metrics != nil {
		middlewares = append(middlewares, func(next http.Handler) http.Handler {
			return cfg.Metrics.Middleware(next)
		})
	}
	return middlewares
}

// Identity headers set by the authenticating gateway in front of this
// service. The service trusts them; it performs authorization, not
// authentication.
const (
	HeaderActorID        = "X-Actor-Id"
	HeaderActorRole      = "X-Actor-Role"
	HeaderActorUnit      = "X-Actor-Unit"
	HeaderActorFaculty   = "X-Actor-Faculty"
	HeaderActorWarehouse = "X-Actor-Warehouse"
)

var knownRoles = map[shared.Role]bool{
	shared.RoleSuperAdmin:     true,
	shared.RoleFacultyAdmin:   true,
	shared.RoleUnitAdmin:      true,
	shared.RoleUnitStaff:      true,
	shared.RoleWarehouseStaff: true,
}

// IdentityMiddleware builds the request actor from gateway headers and
// rejects requests that carry none.
func IdentityMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, err := actorFromHeaders(r)
			if err != nil {
				logger.Warn("rejected unidentified request",
					slog.String("path", r.URL.Path),
					slog.Any("error", err))
				httpx.Problem(w, http.StatusUnauthorized, "Identitas Tidak Dikenal", "header identitas tidak lengkap atau tidak valid", "AUTHENTICATION")
				return
			}
			ctx := shared.ContextWithActor(r.Context(), actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func actorFromHeaders(r *http.Request) (shared.Actor, error) {
	id, err := strconv.ParseInt(r.Header.Get(HeaderActorID), 10, 64)
	if err != nil || id <= 0 {
		return shared.Actor{}, shared.E(shared.KindAuthorization, "id aktor tidak valid")
	}
	role := shared.Role(r.Header.Get(HeaderActorRole))
	if !knownRoles[role] {
		return shared.Actor{}, shared.E(shared.KindAuthorization, "peran %s tidak dikenal", role)
	}
	actor := shared.Actor{ID: id, Role: role}
	actor.UnitID = parseScopeHeader(r, HeaderActorUnit)
	actor.FacultyID = parseScopeHeader(r, HeaderActorFaculty)
	actor.WarehouseID = parseScopeHeader(r, HeaderActorWarehouse)
	return actor, nil
}

func parseScopeHeader(r *http.Request, name string) int64 {
	raw := r.Header.Get(name)
	if raw == "" {
		return 0
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}
