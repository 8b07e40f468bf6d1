package csp

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"hash"
	"io"

	"github.com/pkg/errors"
)

// nonceBytes is how much randomness backs a generated nonce.
const nonceBytes = 18

// Policy is the mutable directive store behind one Content-Security-Policy
// header. It is built for a single request by a single caller; concurrent
// mutation of a shared instance is not guarded.
type Policy struct {
	directives map[string]*Clause

	reportOnly      bool
	reportURI       string
	upgradeInsecure bool

	// httpsUpgrade enables rewriting http:// allow entries to https:// when
	// compiling for a secure connection. The upgrade-insecure-requests flag
	// overrides it either way.
	httpsUpgrade bool

	random io.Reader

	dirty       bool
	compiled    string
	compiledFor ConnectionContext
}

// Option configures a Policy at construction time.
type Option func(*Policy)

// WithRandom replaces the randomness source backing generated nonces.
func WithRandom(r io.Reader) Option {
	return func(p *Policy) { p.random = r }
}

// WithoutHTTPSUpgrade disables the per-policy rewrite of http:// allow
// entries on secure connections. The upgrade-insecure-requests flag still
// forces the rewrite when set.
func WithoutHTTPSUpgrade() Option {
	return func(p *Policy) { p.httpsUpgrade = false }
}

// New returns an empty Policy.
func New(opts ...Option) *Policy {
	p := &Policy{
		directives:   make(map[string]*Clause),
		httpsUpgrade: true,
		random:       rand.Reader,
		dirty:        true,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// AddSource appends url to the allow list of a directive, creating the
// clause if the directive is not yet present. The directive may be a
// friendly alias; unknown names are stored as given and silently never
// emitted.
func (p *Policy) AddSource(directive, url string) {
	key := ResolveDirective(directive)
	clause := p.directives[key]
	if clause == nil {
		clause = &Clause{}
		p.directives[key] = clause
	}
	clause.Allow = append(clause.Allow, url)
	p.dirty = true
}

// SetDirective stores clause under key, replacing any existing value. A nil
// clause marks the directive present with no sources, which compiles to
// 'none'.
func (p *Policy) SetDirective(key string, clause *Clause) {
	if clause == nil {
		clause = &Clause{}
	}
	p.directives[key] = clause
	p.dirty = true
}

// AddDirective stores clause under key only when the key is absent or its
// current clause is empty. A nil clause marks the directive present with no
// sources.
func (p *Policy) AddDirective(key string, clause *Clause) {
	if existing, ok := p.directives[key]; ok && !existing.empty() {
		return
	}
	if clause == nil {
		clause = &Clause{}
	}
	p.directives[key] = clause
	p.dirty = true
}

// Directive returns the clause stored under key, or nil when absent.
func (p *Policy) Directive(key string) *Clause {
	return p.directives[key]
}

// AllowPluginType appends a MIME type to the plugin-types directive,
// creating the clause if absent.
func (p *Policy) AllowPluginType(mime string) {
	clause := p.directives[PluginTypes]
	if clause == nil {
		clause = &Clause{}
		p.directives[PluginTypes] = clause
	}
	clause.Types = append(clause.Types, mime)
	p.dirty = true
}

// SetReportOnly switches the compiled header between Content-Security-Policy
// and its Report-Only variant.
func (p *Policy) SetReportOnly(on bool) {
	p.reportOnly = on
	p.dirty = true
}

// SetReportURI sets the violation report endpoint.
func (p *Policy) SetReportURI(uri string) {
	p.reportURI = uri
	p.dirty = true
}

// SetUpgradeInsecureRequests toggles the upgrade-insecure-requests flag.
// While set, http:// allow entries always compile as https://.
func (p *Policy) SetUpgradeInsecureRequests(on bool) {
	p.upgradeInsecure = on
	p.dirty = true
}

// Hash digests content with the named algorithm and appends the result as a
// hash source. The hash is only recorded when the directive already has an
// entry in the policy; otherwise nothing happens. Unknown algorithms are
// reported to the caller.
func (p *Policy) Hash(directive string, content []byte, algorithm string) error {
	clause, ok := p.directives[directive]
	if !ok {
		return nil
	}
	digest, err := computeDigest(algorithm, content)
	if err != nil {
		return err
	}
	clause.Hashes = append(clause.Hashes, HashSource{
		Algorithm: algorithm,
		Digest:    base64.StdEncoding.EncodeToString(digest),
	})
	p.dirty = true
	return nil
}

// PreHash appends a caller-computed base64 digest as a hash source, under
// the same presence contract as Hash.
func (p *Policy) PreHash(directive, digest, algorithm string) {
	clause, ok := p.directives[directive]
	if !ok {
		return
	}
	clause.Hashes = append(clause.Hashes, HashSource{Algorithm: algorithm, Digest: digest})
	p.dirty = true
}

// Nonce appends a nonce source to a directive and returns the nonce used.
// When value is empty a fresh one is generated from the policy's randomness
// source. A directive without an entry in the policy is left untouched and
// the empty string is returned.
func (p *Policy) Nonce(directive, value string) (string, error) {
	clause, ok := p.directives[directive]
	if !ok {
		return "", nil
	}
	if value == "" {
		buf := make([]byte, nonceBytes)
		if _, err := io.ReadFull(p.random, buf); err != nil {
			return "", errors.Wrap(err, "reading nonce randomness")
		}
		value = base64.StdEncoding.EncodeToString(buf)
	}
	clause.Nonces = append(clause.Nonces, value)
	p.dirty = true
	return value, nil
}

// computeDigest runs the named digest algorithm over content.
func computeDigest(algorithm string, content []byte) ([]byte, error) {
	var h hash.Hash
	switch algorithm {
	case "sha256":
		h = sha256.New()
	case "sha384":
		h = sha512.New384()
	case "sha512":
		h = sha512.New()
	default:
		return nil, errors.Errorf("unsupported digest algorithm %q", algorithm)
	}
	h.Write(content)
	return h.Sum(nil), nil
}
