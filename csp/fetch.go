package csp

import (
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/pkg/errors"
	"github.com/projectdiscovery/gologger"
)

const maxMetaRedirects = 3

// FetchPage retrieves an HTML page so it can be scanned into a policy. It
// follows <meta http-equiv="refresh"> redirects, which plain HTTP clients
// do not see, and returns the body together with the final URL after all
// redirects.
func FetchPage(address string) (string, *url.URL, error) {
	return fetchPage(address, maxMetaRedirects)
}

func fetchPage(address string, redirectsLeft int) (string, *url.URL, error) {
	client := &http.Client{Timeout: 5 * time.Second}

	req, err := http.NewRequest(http.MethodGet, address, nil)
	if err != nil {
		return "", nil, errors.Wrapf(err, "creating request for %s", address)
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", nil, errors.Wrapf(err, "fetching %s", address)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil, errors.Wrapf(err, "reading response from %s", address)
	}
	body := string(raw)
	finalURL := resp.Request.URL

	if existing := resp.Header.Get("Content-Security-Policy"); existing != "" {
		gologger.Debug().Msgf("Page %s already serves a policy: %s", finalURL, existing)
	}

	if target := metaRefreshTarget(body); target != "" && redirectsLeft > 0 {
		parsed, err := url.Parse(target)
		if err != nil {
			gologger.Debug().Msgf("Ignoring unparseable meta refresh target %q on %s", target, finalURL)
			return body, finalURL, nil
		}
		next := finalURL.ResolveReference(parsed)
		gologger.Debug().Msgf("Following meta refresh to %s", next)
		return fetchPage(next.String(), redirectsLeft-1)
	}

	gologger.Info().Msgf("Final host: %s", finalURL)
	return body, finalURL, nil
}

// metaRefreshTarget extracts the url= target of a meta refresh tag, or ""
// when the page has none.
func metaRefreshTarget(body string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return ""
	}
	var target string
	doc.Find("meta[http-equiv]").EachWithBreak(func(i int, sel *goquery.Selection) bool {
		if !strings.EqualFold(sel.AttrOr("http-equiv", ""), "refresh") {
			return true
		}
		for _, part := range strings.Split(sel.AttrOr("content", ""), ";") {
			part = strings.TrimSpace(part)
			if strings.HasPrefix(strings.ToLower(part), "url=") {
				target = part[len("url="):]
				return false
			}
		}
		return true
	})
	return target
}
