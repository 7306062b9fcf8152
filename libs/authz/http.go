package authz

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/md-rashed-zaman/dentalcare/libs/httpx"
)

// Headers the gateway sets after verifying the access token. Upstream services trust them
// and nothing else; the gateway strips any client-supplied copies.
const (
	HeaderUserID      = "X-User-Id"
	HeaderClinicID    = "X-Clinic-Id"
	HeaderRole        = "X-Role"
	HeaderPermissions = "X-Permissions"
)

var principalHeaders = [...]string{HeaderUserID, HeaderClinicID, HeaderRole, HeaderPermissions}

func StripHeaders(h http.Header) {
	for _, k := range principalHeaders {
		h.Del(k)
	}
}

func (p Principal) WriteHeaders(h http.Header) {
	h.Set(HeaderUserID, p.UserID)
	h.Set(HeaderClinicID, p.ClinicID)
	h.Set(HeaderRole, string(p.Role))
	h.Set(HeaderPermissions, p.Permissions.Encode())
}

func PrincipalFromHeaders(h http.Header) (Principal, error) {
	p := Principal{
		UserID:   strings.TrimSpace(h.Get(HeaderUserID)),
		ClinicID: strings.TrimSpace(h.Get(HeaderClinicID)),
	}
	if p.UserID == "" || p.ClinicID == "" {
		return Principal{}, ErrUnauthenticated
	}
	role, ok := ParseRole(h.Get(HeaderRole))
	if !ok {
		return Principal{}, ErrUnauthenticated
	}
	p.Role = role
	perms, err := ParsePermissions(h.Get(HeaderPermissions))
	if err != nil {
		return Principal{}, err
	}
	p.Permissions = perms
	return p, nil
}

type ctxKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(Principal)
	return p, ok
}

// Authenticate loads the principal from gateway headers into the request context.
func Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := PrincipalFromHeaders(r.Header)
		if err != nil {
			httpx.WriteError(w, http.StatusUnauthorized, httpx.CodeUnauthorized, "unauthenticated")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

// Require enforces Decide for action. It expects Authenticate to have run.
func Require(a Action) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, _ := FromContext(r.Context())
			if err := Decide(p, a).Err(); err != nil {
				WriteDenied(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WriteDenied maps a decision error to 401 or 403.
func WriteDenied(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrUnauthenticated) {
		httpx.WriteError(w, http.StatusUnauthorized, httpx.CodeUnauthorized, "unauthenticated")
		return
	}
	httpx.WriteError(w, http.StatusForbidden, httpx.CodeForbidden, "forbidden")
}
