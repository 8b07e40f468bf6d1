package csp

import (
	"strings"
)

// Header names selected by the report-only flag.
const (
	HeaderName           = "Content-Security-Policy"
	HeaderNameReportOnly = "Content-Security-Policy-Report-Only"
)

// ConnectionContext carries the transport facts the compiler needs. It is
// passed in explicitly rather than read from ambient state.
type ConnectionContext struct {
	// IsSecure is true when the response travels over HTTPS.
	IsSecure bool
}

// Compile renders the policy into its header value. The result is cached;
// repeated calls without intervening mutation return the identical string.
// Directives render in canonical order no matter when they were added.
func (p *Policy) Compile(conn ConnectionContext) string {
	if !p.dirty && conn == p.compiledFor {
		return p.compiled
	}

	norm := sourceNormalizer{
		upgradeHTTP: p.upgradeInsecure || (p.httpsUpgrade && conn.IsSecure),
	}

	var b strings.Builder
	for _, directive := range directiveOrder {
		clause, ok := p.directives[directive]
		if !ok {
			continue
		}
		b.WriteString(formatClause(directive, clause, norm))
	}
	if p.reportURI != "" {
		b.WriteString("report-uri ")
		b.WriteString(p.reportURI)
		b.WriteString("; ")
	}
	if p.upgradeInsecure {
		// Deliberately no trailing "; ": consumers depend on the exact bytes.
		b.WriteString("upgrade-insecure-requests")
	}

	p.compiled = b.String()
	p.compiledFor = conn
	p.dirty = false
	return p.compiled
}

// Header returns the header name and compiled value for the policy. The
// name is the Report-Only variant when report-only mode is set.
func (p *Policy) Header(conn ConnectionContext) (name, value string) {
	value = p.Compile(conn)
	if p.reportOnly {
		return HeaderNameReportOnly, value
	}
	return HeaderName, value
}

// HeaderMap returns the single-entry header mapping for the policy.
func (p *Policy) HeaderMap(conn ConnectionContext) map[string]string {
	name, value := p.Header(conn)
	return map[string]string{name: value}
}

// formatClause renders one directive and its clause into a header fragment,
// trailing terminator included. Wildcard clauses render as nothing so the
// browser default applies. Empty clauses render as 'none', except for
// plugin-types which has no 'none' form.
func formatClause(directive string, clause *Clause, norm sourceNormalizer) string {
	if clause != nil && clause.Wildcard {
		return ""
	}
	if clause.empty() {
		if directive == PluginTypes {
			return ""
		}
		return directive + " 'none'; "
	}
	if directive == PluginTypes {
		if len(clause.Types) == 0 {
			return ""
		}
		return PluginTypes + " " + strings.Join(clause.Types, " ") + "; "
	}

	var b strings.Builder
	b.WriteString(directive)
	writeToken := func(token string) {
		b.WriteByte(' ')
		b.WriteString(token)
	}

	if clause.Self {
		writeToken("'self'")
	}
	for _, raw := range clause.Allow {
		if src, ok := norm.normalize(raw); ok {
			writeToken(src)
		}
	}
	for _, h := range clause.Hashes {
		writeToken("'" + filterAlnum(h.Algorithm) + "-" + filterBase64(h.Digest) + "'")
	}
	for _, nonce := range clause.Nonces {
		writeToken("'nonce-" + filterBase64(nonce) + "'")
	}
	for _, t := range clause.Types {
		writeToken(t)
	}
	if clause.UnsafeInline {
		writeToken("'unsafe-inline'")
	}
	if clause.UnsafeEval {
		writeToken("'unsafe-eval'")
	}
	if clause.Data {
		writeToken("data:")
	}

	b.WriteString("; ")
	return b.String()
}

// sourceNormalizer sanitizes one allow-list entry and applies the HTTPS
// upgrade rewrite.
type sourceNormalizer struct {
	upgradeHTTP bool
}

// normalize strips characters that have no place in a URL and optionally
// rewrites an exact http:// prefix to https://. It reports false when
// nothing survives sanitization, in which case the entry is dropped.
func (n sourceNormalizer) normalize(raw string) (string, bool) {
	src := filterURLChars(raw)
	if src == "" {
		return "", false
	}
	if n.upgradeHTTP && strings.HasPrefix(src, "http://") {
		src = "https://" + src[len("http://"):]
	}
	return src, true
}

func filterAlnum(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		}
		return -1
	}, s)
}

func filterBase64(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '+', r == '/', r == '=':
			return r
		}
		return -1
	}, s)
}

// urlExtraChars is the RFC 3986 punctuation repertoire plus the percent sign.
const urlExtraChars = "-._~:/?#[]@!$&'()*+,;=%"

func filterURLChars(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case strings.ContainsRune(urlExtraChars, r):
			return r
		}
		return -1
	}, s)
}
