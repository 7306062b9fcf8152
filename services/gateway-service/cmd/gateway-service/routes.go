package main

import (
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/md-rashed-zaman/dentalcare/libs/auth"
	"github.com/md-rashed-zaman/dentalcare/libs/authz"
	"github.com/md-rashed-zaman/dentalcare/libs/httpx"
)

type upstreams struct {
	auth    http.Handler
	clinic  http.Handler
	billing http.Handler
	luzia   http.Handler
}

// publicAuthRoutes reach auth-service without a token.
var publicAuthRoutes = []string{
	"POST /api/v1/auth/signup",
	"POST /api/v1/auth/confirm",
	"POST /api/v1/auth/login",
	"POST /api/v1/auth/refresh",
	"POST /api/v1/auth/password/forgot",
	"POST /api/v1/auth/password/reset",
	"POST /api/v1/users/invite/accept",
}

// Stripe authenticates its webhook with a signature.
const stripeWebhookRoute = "POST /api/v1/payments/webhooks/stripe"

// registerRoutes maps /api/v1 onto the backends. publicLimit wraps the unauthenticated
// auth routes, which are the brute-force target.
func registerRoutes(mux *http.ServeMux, up upstreams, signer *auth.Signer, publicLimit httpx.Middleware) {
	for _, pattern := range publicAuthRoutes {
		mux.Handle(pattern, publicLimit(anonymous(up.auth)))
	}
	mux.Handle(stripeWebhookRoute, anonymous(up.billing))

	protect := func(h http.Handler) http.Handler { return requireAuth(h, signer) }
	registerProxy(mux, "/api/v1/auth", protect(up.auth))
	registerProxy(mux, "/api/v1/users", protect(up.auth))
	registerProxy(mux, "/api/v1/payments", protect(up.billing))
	registerProxy(mux, "/api/v1/luzia", protect(up.luzia))
	mux.Handle("/api/v1/", protect(up.clinic))
}

func registerProxy(mux *http.ServeMux, prefix string, h http.Handler) {
	mux.Handle(prefix, h)
	mux.Handle(prefix+"/", h)
}

// anonymous drops any principal headers a client tried to smuggle in.
func anonymous(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authz.StripHeaders(r.Header)
		next.ServeHTTP(w, r)
	})
}

// requireAuth verifies the bearer token and forwards the principal as headers.
func requireAuth(next http.Handler, signer *auth.Signer) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authz.StripHeaders(r.Header)
		token, ok := auth.BearerToken(r.Header.Get("Authorization"))
		if !ok {
			httpx.WriteError(w, http.StatusUnauthorized, httpx.CodeUnauthorized, "missing or invalid Authorization header")
			return
		}
		claims, err := signer.Parse(token)
		if err != nil {
			httpx.WriteError(w, http.StatusUnauthorized, httpx.CodeUnauthorized, "invalid token")
			return
		}
		p, err := claims.Principal()
		if err != nil {
			httpx.WriteError(w, http.StatusUnauthorized, httpx.CodeUnauthorized, "invalid token")
			return
		}
		p.WriteHeaders(r.Header)
		next.ServeHTTP(w, r.WithContext(authz.WithPrincipal(r.Context(), p)))
	})
}

func newProxy(target *url.URL, transport http.RoundTripper, logger *slog.Logger) *httputil.ReverseProxy {
	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.Transport = transport
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Error("upstream error", "err", err, "upstream", target.Host, "path", r.URL.Path, "request_id", httpx.RequestIDFromContext(r.Context()))
		httpx.WriteError(w, http.StatusBadGateway, httpx.CodeUpstream, "upstream unavailable")
	}
	return proxy
}
