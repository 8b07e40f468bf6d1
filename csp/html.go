package csp

import (
	"io"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/aymerick/douceur/parser"
	"github.com/gobwas/glob"
	"github.com/pkg/errors"
)

var (
	// scanElements maps each directive to the elements whose src attribute
	// it governs. Iframes resolve through the child-src alias.
	scanElements = map[string]string{
		ScriptSrc: "script",
		ImgSrc:    "img",
		MediaSrc:  "audio, video, track",
		ChildSrc:  "iframe",
		ObjectSrc: "object, embed, applet",
		StyleSrc:  "style",
	}

	// scanHrefs maps directives to the link-style elements they govern.
	scanHrefs = map[string]string{
		BaseURI:  "base",
		StyleSrc: "link[rel=stylesheet]",
		ImgSrc:   "link[rel=icon], link[rel=apple-touch-icon]",
	}
)

// Scanner extends a Policy with the sources an HTML document actually uses:
// external script, style, image, media and frame origins become allow
// entries, inline script and style bodies become hash sources, and nonce
// attributes already present in the markup are carried over.
type Scanner struct {
	Policy *Policy

	// Algorithm names the digest used for inline content. Defaults to
	// sha256.
	Algorithm string
}

// Scan walks an HTML document and records every content source it finds in
// the scanner's policy. Relative references resolve against page. Origins
// already matched by an existing allow entry, wildcard entries included,
// are not added again.
func (s *Scanner) Scan(page url.URL, html io.Reader) error {
	doc, err := goquery.NewDocumentFromReader(html)
	if err != nil {
		return errors.Wrap(err, "parsing HTML document")
	}
	algorithm := s.Algorithm
	if algorithm == "" {
		algorithm = "sha256"
	}

	// Walk the tables in canonical directive order. Ranging over the maps
	// would let Go's randomized iteration reorder img-src contributions
	// between runs of the same input.
	var scanErr error
	for _, directive := range directiveOrder {
		elems, ok := scanElements[directive]
		if !ok {
			continue
		}
		doc.Find(elems).Each(func(i int, sel *goquery.Selection) {
			if nonce := sel.AttrOr("nonce", ""); nonce != "" {
				s.Policy.AddDirective(directive, nil)
				if _, err := s.Policy.Nonce(directive, nonce); err != nil {
					scanErr = err
					return
				}
			}

			src := sel.AttrOr("src", "")
			if src != "" {
				s.addReference(directive, page, src)
				return
			}

			// No src attribute: inline content, admitted by hash.
			elementName := goquery.NodeName(sel)
			if elementName != "script" && elementName != "style" {
				return
			}
			body := sel.Text()
			if strings.TrimSpace(body) == "" {
				return
			}
			s.Policy.AddDirective(directive, nil)
			if err := s.Policy.Hash(directive, []byte(body), algorithm); err != nil {
				scanErr = err
				return
			}
			if elementName == "style" {
				s.scanStylesheet(page, body)
			}
		})
		if scanErr != nil {
			return scanErr
		}
	}

	for _, directive := range directiveOrder {
		elems, ok := scanHrefs[directive]
		if !ok {
			continue
		}
		doc.Find(elems).Each(func(i int, sel *goquery.Selection) {
			if href := sel.AttrOr("href", ""); href != "" {
				s.addReference(directive, page, href)
			}
		})
	}

	return nil
}

// addReference records one discovered URL under a directive. Same-origin
// references become 'self', data URLs set the data: flag, anything else is
// added as an origin allow entry unless already covered.
func (s *Scanner) addReference(directive string, page url.URL, ref string) {
	parsed, err := url.Parse(ref)
	if err != nil {
		// Malformed markup never aborts a scan.
		return
	}
	resolved := page.ResolveReference(parsed)

	if resolved.Scheme == "data" {
		s.Policy.AddDirective(directive, nil)
		s.Policy.Directive(directive).Data = true
		s.Policy.dirty = true
		return
	}

	if resolved.Scheme == page.Scheme && resolved.Host == page.Host {
		s.Policy.AddDirective(directive, nil)
		clause := s.Policy.Directive(directive)
		if !clause.Self {
			clause.Self = true
			s.Policy.dirty = true
		}
		return
	}

	origin := resolved.Scheme + "://" + resolved.Host
	if clause := s.Policy.Directive(directive); clause != nil && covers(clause.Allow, origin, resolved.Host) {
		return
	}
	s.Policy.AddSource(directive, origin)
}

// scanStylesheet parses inline CSS and routes its external references:
// @font-face sources to font-src, @import targets to style-src, every other
// url() reference to img-src. Unparseable CSS is skipped.
func (s *Scanner) scanStylesheet(page url.URL, css string) {
	sheet, err := parser.Parse(css)
	if err != nil {
		return
	}
	for _, rule := range sheet.Rules {
		switch rule.Name {
		case "@import":
			for _, ref := range cssRefs(rule.Prelude) {
				s.addReference(StyleSrc, page, ref)
			}
		case "@font-face":
			for _, decl := range rule.Declarations {
				for _, ref := range cssRefs(decl.Value) {
					s.addReference(FontSrc, page, ref)
				}
			}
		default:
			for _, decl := range rule.Declarations {
				for _, ref := range cssRefs(decl.Value) {
					s.addReference(ImgSrc, page, ref)
				}
			}
		}
	}
}

var cssURLPattern = regexp.MustCompile(`url\(\s*['"]?([^'")]+)['"]?\s*\)`)

// cssRefs extracts url(...) references from a CSS value or @import prelude.
func cssRefs(value string) []string {
	var refs []string
	for _, m := range cssURLPattern.FindAllStringSubmatch(value, -1) {
		refs = append(refs, strings.TrimSpace(m[1]))
	}
	if refs == nil && strings.HasPrefix(value, `"`) && strings.HasSuffix(value, `"`) && len(value) > 1 {
		refs = append(refs, strings.Trim(value, `"`))
	}
	return refs
}

// covers reports whether any existing allow entry already matches the
// candidate origin. Entries may contain wildcards, so *.cdn.example covers
// every subdomain host.
func covers(entries []string, origin, host string) bool {
	for _, entry := range entries {
		if entry == "" {
			continue
		}
		if strings.ContainsAny(entry, "*?") {
			g, err := glob.Compile(entry)
			if err != nil {
				continue
			}
			if g.Match(origin) || g.Match(host) {
				return true
			}
			continue
		}
		if entry == origin || entry == host || strings.HasPrefix(origin, entry) {
			return true
		}
	}
	return false
}
