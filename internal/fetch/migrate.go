package fetch

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

const (
	// DefaultHomeURL is the page the signing material is read from.
	DefaultHomeURL = "https://x.com"

	defaultMigrateURL = "https://x.com/x/migrate"
)

var (
	refreshMetaSel = cascadia.MustCompile("meta[http-equiv]")
	tokInputSel    = cascadia.MustCompile(`input[name="tok"]`)
	refreshRe      = regexp.MustCompile(`(?i)^\s*\d+\s*;\s*url\s*=\s*(.+?)\s*$`)
)

// FormPoster is implemented by fetchers able to submit a form body.
type FormPoster interface {
	FetchForm(ctx context.Context, rawURL string, header http.Header, form string) (string, error)
}

// LoadHomePage fetches homeURL and follows the legacy-domain migration: an
// immediate meta refresh, then an auto-submitted form carrying a `tok`
// field. It returns the HTML of the last page reached.
func LoadHomePage(ctx context.Context, f Fetcher, homeURL string, header http.Header, logger *log.Logger) (string, error) {
	if homeURL == "" {
		homeURL = DefaultHomeURL
	}
	body, err := f.Fetch(ctx, http.MethodGet, homeURL, header)
	if err != nil {
		return "", err
	}
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return body, nil
	}
	target, ok := metaRefreshURL(doc, homeURL)
	if !ok {
		return body, nil
	}
	if logger != nil {
		logger.Printf("MIGRATE refresh %s -> %s", homeURL, target)
	}
	body, err = f.Fetch(ctx, http.MethodGet, target, header)
	if err != nil {
		return "", err
	}
	if doc, err = html.Parse(strings.NewReader(body)); err != nil {
		return body, nil
	}
	action, tok, ok := migrationForm(doc, target)
	if !ok {
		return body, nil
	}
	poster, ok := f.(FormPoster)
	if !ok {
		return "", fmt.Errorf("fetch: %T cannot submit the migration form", f)
	}
	if logger != nil {
		logger.Printf("MIGRATE submit %s", action)
	}
	return poster.FetchForm(ctx, action, header, url.Values{"tok": {tok}}.Encode())
}

func metaRefreshURL(doc *html.Node, base string) (string, bool) {
	for _, n := range refreshMetaSel.MatchAll(doc) {
		if !strings.EqualFold(getAttr(n, "http-equiv"), "refresh") {
			continue
		}
		m := refreshRe.FindStringSubmatch(getAttr(n, "content"))
		if m == nil {
			continue
		}
		target := strings.Trim(m[1], `'"`)
		if target == "" {
			continue
		}
		return resolve(base, target), true
	}
	return "", false
}

func migrationForm(doc *html.Node, base string) (action, tok string, ok bool) {
	input := tokInputSel.MatchFirst(doc)
	if input == nil {
		return "", "", false
	}
	tok = getAttr(input, "value")
	if tok == "" {
		return "", "", false
	}
	action = defaultMigrateURL
	for p := input.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && p.Data == "form" {
			if a := strings.TrimSpace(getAttr(p, "action")); a != "" {
				action = resolve(base, a)
			}
			break
		}
	}
	return action, tok, true
}

func getAttr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

func resolve(base, ref string) string {
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}
