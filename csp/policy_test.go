package csp

import (
	"bytes"
	"crypto/sha512"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddSourceResolvesAliases(t *testing.T) {
	cases := map[string]string{
		"js":        ScriptSrc,
		"script":    ScriptSrc,
		"style":     StyleSrc,
		"css":       StyleSrc,
		"img":       ImgSrc,
		"image":     ImgSrc,
		"font":      FontSrc,
		"forms":     FormAction,
		"ancestor":  FrameAncestors,
		"websocket": ConnectSrc,
		"frame":     ChildSrc,
		"frame-src": ChildSrc,
		"media":     MediaSrc,
		"object":    ObjectSrc,
	}
	for alias, canonical := range cases {
		p := New()
		p.AddSource(alias, "https://cdn.example.com")
		clause := p.Directive(canonical)
		require.NotNil(t, clause, "alias %q should resolve to %q", alias, canonical)
		assert.Equal(t, []string{"https://cdn.example.com"}, clause.Allow)
	}
}

func TestAddSourceUnknownAliasPassesThrough(t *testing.T) {
	p := New()
	p.AddSource("telemetry", "https://metrics.example.com")

	require.NotNil(t, p.Directive("telemetry"))
	assert.Equal(t, "", p.Compile(ConnectionContext{}))
}

func TestAddSourceCreatesAndAppends(t *testing.T) {
	p := New()
	p.AddSource(ScriptSrc, "https://a.example.com")
	p.AddSource(ScriptSrc, "https://b.example.com")

	assert.Equal(t,
		[]string{"https://a.example.com", "https://b.example.com"},
		p.Directive(ScriptSrc).Allow)
}

func TestSetDirectiveOverwrites(t *testing.T) {
	p := New()
	p.SetDirective(ScriptSrc, &Clause{Self: true})
	p.SetDirective(ScriptSrc, &Clause{UnsafeInline: true})

	clause := p.Directive(ScriptSrc)
	assert.False(t, clause.Self)
	assert.True(t, clause.UnsafeInline)
}

func TestAddDirectiveOnlySetsWhenAbsent(t *testing.T) {
	p := New()
	p.SetDirective(ScriptSrc, &Clause{Self: true})
	p.AddDirective(ScriptSrc, &Clause{UnsafeEval: true})
	assert.True(t, p.Directive(ScriptSrc).Self, "existing clause must survive AddDirective")

	p.AddDirective(StyleSrc, &Clause{Self: true})
	assert.True(t, p.Directive(StyleSrc).Self)

	p.AddDirective(ObjectSrc, nil)
	require.NotNil(t, p.Directive(ObjectSrc))
	assert.Contains(t, p.Compile(ConnectionContext{}), "object-src 'none'; ")
}

func TestHashRequiresPresentDirective(t *testing.T) {
	p := New()
	require.NoError(t, p.Hash(ScriptSrc, []byte("alert(1)"), "sha256"))
	assert.Nil(t, p.Directive(ScriptSrc), "hash on an absent directive must not create it")
}

func TestHashAppendsDigest(t *testing.T) {
	content := []byte("<script>x</script>")
	sum := sha512.Sum384(content)
	expected := base64.StdEncoding.EncodeToString(sum[:])

	p := New()
	p.SetDirective(ScriptSrc, &Clause{Self: true})
	require.NoError(t, p.Hash(ScriptSrc, content, "sha384"))

	clause := p.Directive(ScriptSrc)
	require.Len(t, clause.Hashes, 1)
	assert.Equal(t, HashSource{Algorithm: "sha384", Digest: expected}, clause.Hashes[0])
	assert.Contains(t, p.Compile(ConnectionContext{}), "'sha384-"+expected+"'")
}

func TestHashUnknownAlgorithm(t *testing.T) {
	p := New()
	p.SetDirective(ScriptSrc, &Clause{})
	err := p.Hash(ScriptSrc, []byte("x"), "md5")
	require.Error(t, err)
	assert.Empty(t, p.Directive(ScriptSrc).Hashes)
}

func TestPreHashUsesSuppliedDigest(t *testing.T) {
	p := New()
	p.SetDirective(StyleSrc, &Clause{})
	p.PreHash(StyleSrc, "precomputed==", "sha256")

	require.Len(t, p.Directive(StyleSrc).Hashes, 1)
	assert.Equal(t, "precomputed==", p.Directive(StyleSrc).Hashes[0].Digest)

	p.PreHash(FontSrc, "precomputed==", "sha256")
	assert.Nil(t, p.Directive(FontSrc))
}

func TestNonceGeneratesDistinctValues(t *testing.T) {
	p := New()
	p.SetDirective(ScriptSrc, &Clause{})

	first, err := p.Nonce(ScriptSrc, "")
	require.NoError(t, err)
	second, err := p.Nonce(ScriptSrc, "")
	require.NoError(t, err)

	assert.NotEmpty(t, first)
	assert.NotEmpty(t, second)
	assert.NotEqual(t, first, second)
	assert.Equal(t, []string{first, second}, p.Directive(ScriptSrc).Nonces)
}

func TestNonceOnAbsentDirective(t *testing.T) {
	p := New()
	nonce, err := p.Nonce(ScriptSrc, "")
	require.NoError(t, err)
	assert.Equal(t, "", nonce)
	assert.Nil(t, p.Directive(ScriptSrc))
}

func TestNonceWithSuppliedValue(t *testing.T) {
	p := New()
	p.SetDirective(ScriptSrc, &Clause{})
	nonce, err := p.Nonce(ScriptSrc, "fixed")
	require.NoError(t, err)
	assert.Equal(t, "fixed", nonce)
}

func TestNonceUsesConfiguredRandomness(t *testing.T) {
	seed := bytes.Repeat([]byte{0x42}, nonceBytes)
	p := New(WithRandom(bytes.NewReader(seed)))
	p.SetDirective(ScriptSrc, &Clause{})

	nonce, err := p.Nonce(ScriptSrc, "")
	require.NoError(t, err)
	assert.Equal(t, base64.StdEncoding.EncodeToString(seed), nonce)

	// The reader is exhausted now, so the failure propagates.
	_, err = p.Nonce(ScriptSrc, "")
	require.Error(t, err)
}

func TestAllowPluginTypeCreatesClause(t *testing.T) {
	p := New()
	p.AllowPluginType("application/pdf")
	require.NotNil(t, p.Directive(PluginTypes))
	assert.Equal(t, []string{"application/pdf"}, p.Directive(PluginTypes).Types)
}
