package csp

// Canonical directive names understood by the compiler.
const (
	BaseURI        = "base-uri"
	DefaultSrc     = "default-src"
	ChildSrc       = "child-src"
	ConnectSrc     = "connect-src"
	FontSrc        = "font-src"
	FormAction     = "form-action"
	FrameAncestors = "frame-ancestors"
	FrameSrc       = "frame-src"
	ImgSrc         = "img-src"
	MediaSrc       = "media-src"
	ObjectSrc      = "object-src"
	PluginTypes    = "plugin-types"
	ScriptSrc      = "script-src"
	StyleSrc       = "style-src"
)

// directiveOrder is the emission order of the compiled header. Directives
// always render in this order no matter when they were added to the policy.
var directiveOrder = []string{
	BaseURI,
	DefaultSrc,
	ChildSrc,
	ConnectSrc,
	FontSrc,
	FormAction,
	FrameAncestors,
	FrameSrc,
	ImgSrc,
	MediaSrc,
	ObjectSrc,
	PluginTypes,
	ScriptSrc,
	StyleSrc,
}

// aliases maps friendly shorthand tokens to canonical directive names.
var aliases = map[string]string{
	"child":      ChildSrc,
	"frame":      ChildSrc,
	"frame-src":  ChildSrc,
	"connect":    ConnectSrc,
	"socket":     ConnectSrc,
	"websocket":  ConnectSrc,
	"font":       FontSrc,
	"fonts":      FontSrc,
	"form":       FormAction,
	"forms":      FormAction,
	"ancestor":   FrameAncestors,
	"parent":     FrameAncestors,
	"img":        ImgSrc,
	"image":      ImgSrc,
	"image-src":  ImgSrc,
	"media":      MediaSrc,
	"object":     ObjectSrc,
	"js":         ScriptSrc,
	"javascript": ScriptSrc,
	"script":     ScriptSrc,
	"scripts":    ScriptSrc,
	"style":      StyleSrc,
	"css":        StyleSrc,
	"css-src":    StyleSrc,
}

// ResolveDirective translates a friendly alias to its canonical directive
// name. Unknown tokens pass through unchanged; a clause stored under a
// non-canonical key stays in the policy but is never emitted.
func ResolveDirective(token string) string {
	if canonical, ok := aliases[token]; ok {
		return canonical
	}
	return token
}

// isCanonical reports whether name is one of the emitted directives.
func isCanonical(name string) bool {
	for _, d := range directiveOrder {
		if d == name {
			return true
		}
	}
	return false
}
