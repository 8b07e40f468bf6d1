package csp

import (
	"context"
	"net/http"

	"github.com/pkg/errors"
)

// ErrHeadersSent is returned when a policy header is applied to a response
// whose headers already went out on the wire.
var ErrHeadersSent = errors.New("response headers already sent")

type nonceContextKey struct{}

// NonceFromContext returns the per-request nonce attached by Handler, or ""
// when the request carries none.
func NonceFromContext(ctx context.Context) string {
	nonce, _ := ctx.Value(nonceContextKey{}).(string)
	return nonce
}

// WriteHeader compiles the policy and sets the resulting header on w. When
// the writer tracks commit state and the response is already committed, the
// header cannot be delivered and ErrHeadersSent is returned. An empty
// policy sets no header at all.
func WriteHeader(w http.ResponseWriter, p *Policy, conn ConnectionContext) error {
	if cw, ok := w.(interface{ Committed() bool }); ok && cw.Committed() {
		return ErrHeadersSent
	}
	name, value := p.Header(conn)
	if value == "" {
		return nil
	}
	w.Header().Set(name, value)
	return nil
}

// Handler returns middleware that builds a fresh policy per request, mints
// a nonce for the script-src and style-src directives that are present,
// exposes it via NonceFromContext, and writes the compiled header before
// the wrapped handler runs. build is called once per request so nonces are
// never shared between responses.
func Handler(build func(*http.Request) *Policy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := build(r)
			if p == nil {
				next.ServeHTTP(w, r)
				return
			}

			nonce := ""
			for _, directive := range []string{ScriptSrc, StyleSrc} {
				if p.Directive(directive) == nil {
					continue
				}
				v, err := p.Nonce(directive, nonce)
				if err != nil {
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					return
				}
				if nonce == "" {
					nonce = v
				}
			}

			conn := ConnectionContext{IsSecure: r.TLS != nil}
			tracked := &trackedWriter{ResponseWriter: w}
			if err := WriteHeader(tracked, p, conn); err != nil {
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}

			if nonce != "" {
				r = r.WithContext(context.WithValue(r.Context(), nonceContextKey{}, nonce))
			}
			next.ServeHTTP(tracked, r)
		})
	}
}

// trackedWriter remembers whether the response has been committed, so a
// late header write can fail loudly instead of being silently dropped.
type trackedWriter struct {
	http.ResponseWriter
	committed bool
}

func (w *trackedWriter) WriteHeader(code int) {
	w.committed = true
	w.ResponseWriter.WriteHeader(code)
}

func (w *trackedWriter) Write(b []byte) (int, error) {
	w.committed = true
	return w.ResponseWriter.Write(b)
}

// Committed reports whether response headers have been sent.
func (w *trackedWriter) Committed() bool {
	return w.committed
}
