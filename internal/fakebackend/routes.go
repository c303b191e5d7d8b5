package fakebackend

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (b *Backend) initRoutes() {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(b.LoggingMiddleware)

	r.Handle(RouteMetrics, promhttp.Handler())

	r.Route(APIPrefix, func(r chi.Router) {
		r.Get(RouteHealth, b.HealthHandler())
		r.Post(RouteVerifyLogin, b.VerifyLoginHandler())
		r.Get(RouteMe, b.MeHandler())
		r.Post(RouteTokenRefresh, b.TokenRefreshHandler())
		r.Post(RouteLogout, b.LogoutHandler())
		r.Post(RouteSetupProfile, b.SetupProfileHandler())
		r.Post(RouteRegisterDevice, b.RegisterDeviceHandler())
		r.Get(RouteChatWS, b.ChatHandler())
	})

	r.Route(ToolkitPrefix, func(r chi.Router) {
		r.Post(RouteToolkitMethod, b.ToolkitHandler())
	})

	r.Route(IssuerPrefix, func(r chi.Router) {
		r.Get(RouteWellKnownOpenIDConfig, b.WellKnownOpenIDConfig())
		r.Get(RouteWellKnownJWKS, b.JWKS())
		r.Post(RouteOIDCToken, b.Token())
		r.Post(RouteOIDCRevoke, b.Revoke())
	})

	b.router = r
}

func (b *Backend) LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		b.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(start)).
			Str("request_id", chimw.GetReqID(r.Context())).
			Msg("fake backend request")
	})
}
