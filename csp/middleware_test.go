package csp

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerWritesHeaderAndNonce(t *testing.T) {
	var seenNonce string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenNonce = NonceFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	build := func(r *http.Request) *Policy {
		p := New()
		p.SetDirective(DefaultSrc, &Clause{Self: true})
		p.SetDirective(ScriptSrc, &Clause{Self: true})
		return p
	}

	rec := httptest.NewRecorder()
	Handler(build)(inner).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.NotEmpty(t, seenNonce)
	header := rec.Header().Get(HeaderName)
	assert.Contains(t, header, "default-src 'self'; ")
	assert.Contains(t, header, "'nonce-"+seenNonce+"'")
}

func TestHandlerSharesNonceAcrossScriptAndStyle(t *testing.T) {
	build := func(r *http.Request) *Policy {
		p := New()
		p.SetDirective(ScriptSrc, &Clause{Self: true})
		p.SetDirective(StyleSrc, &Clause{Self: true})
		return p
	}

	rec := httptest.NewRecorder()
	Handler(build)(http.NotFoundHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	header := rec.Header().Get(HeaderName)
	scriptIdx := indexOfNonce(header, "script-src")
	styleIdx := indexOfNonce(header, "style-src")
	require.NotEmpty(t, scriptIdx)
	assert.Equal(t, scriptIdx, styleIdx, "both directives carry the same nonce")
}

// indexOfNonce extracts the nonce token of one directive fragment.
func indexOfNonce(header, directive string) string {
	for _, fragment := range strings.Split(header, ";") {
		fragment = strings.TrimSpace(fragment)
		if !strings.HasPrefix(fragment, directive+" ") {
			continue
		}
		for _, token := range strings.Fields(fragment) {
			if strings.HasPrefix(token, "'nonce-") {
				return token
			}
		}
	}
	return ""
}

func TestHandlerReportOnlyHeaderName(t *testing.T) {
	build := func(r *http.Request) *Policy {
		p := New()
		p.SetReportOnly(true)
		p.SetDirective(DefaultSrc, &Clause{Self: true})
		return p
	}

	rec := httptest.NewRecorder()
	Handler(build)(http.NotFoundHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Empty(t, rec.Header().Get(HeaderName))
	assert.Equal(t, "default-src 'self'; ", rec.Header().Get(HeaderNameReportOnly))
}

func TestHandlerNilPolicySkips(t *testing.T) {
	build := func(r *http.Request) *Policy { return nil }

	rec := httptest.NewRecorder()
	Handler(build)(http.NotFoundHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Empty(t, rec.Header().Get(HeaderName))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWriteHeaderAfterCommit(t *testing.T) {
	rec := httptest.NewRecorder()
	tracked := &trackedWriter{ResponseWriter: rec}
	tracked.WriteHeader(http.StatusOK)

	p := New()
	p.SetDirective(DefaultSrc, &Clause{Self: true})

	err := WriteHeader(tracked, p, ConnectionContext{})
	require.ErrorIs(t, err, ErrHeadersSent)
	assert.Empty(t, rec.Header().Get(HeaderName))
}

func TestWriteHeaderEmptyPolicySetsNothing(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, WriteHeader(rec, New(), ConnectionContext{}))
	assert.Empty(t, rec.Header().Get(HeaderName))
}
