package fetch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// ErrUnsupportedMethod is returned by BrowserFetcher for anything but GET.
var ErrUnsupportedMethod = errors.New("fetch: browser supports GET only")

const defaultBrowserTimeout = 25 * time.Second

// textScript reads a non-HTML response, which Chrome wraps in a <pre>.
const textScript = `document.body ? document.body.innerText : document.documentElement.textContent`

// BrowserFetcher loads pages in headless Chrome. It is the fallback for
// hosts that refuse plain HTTP clients.
type BrowserFetcher struct {
	allocator context.Context
	cancel    context.CancelFunc

	Timeout time.Duration
	Jar     http.CookieJar
	Logger  *log.Logger
}

// NewBrowserFetcher prepares a Chrome allocator. No browser process starts
// until the first Fetch.
func NewBrowserFetcher(timeout time.Duration, logger *log.Logger) *BrowserFetcher {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("disable-translate", true),
		chromedp.Flag("disable-extensions", true),
	)
	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)
	if timeout <= 0 {
		timeout = defaultBrowserTimeout
	}
	return &BrowserFetcher{
		allocator: allocCtx,
		cancel:    cancel,
		Timeout:   timeout,
		Jar:       newJar(),
		Logger:    logger,
	}
}

// Close shuts the browser down.
func (b *BrowserFetcher) Close() {
	if b.cancel != nil {
		b.cancel()
	}
}

// Fetch implements Fetcher. HTML documents come back as serialized outer
// HTML, anything else as the page text.
func (b *BrowserFetcher) Fetch(ctx context.Context, method, rawURL string, header http.Header) (string, error) {
	if method != "" && !strings.EqualFold(method, http.MethodGet) {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedMethod, method)
	}
	if strings.TrimSpace(rawURL) == "" {
		return "", fmt.Errorf("browser fetch: empty target url")
	}
	target, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("browser fetch %s: %w", rawURL, err)
	}

	taskCtx, cancelBrowser := chromedp.NewContext(b.allocator)
	defer cancelBrowser()
	if ctx != nil {
		var cancel context.CancelFunc
		taskCtx, cancel = context.WithCancel(taskCtx)
		go func() {
			select {
			case <-ctx.Done():
				cancel()
			case <-taskCtx.Done():
			}
		}()
		defer cancel()
	}
	if b.Timeout > 0 {
		var cancel context.CancelFunc
		taskCtx, cancel = context.WithTimeout(taskCtx, b.Timeout)
		defer cancel()
	}

	hdr := cloneHeader(header)
	ensureDefaultHeaders(hdr)
	hdr.Del("Accept-Encoding")
	actions := []chromedp.Action{network.Enable()}
	if ua := hdr.Get("User-Agent"); ua != "" {
		actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
			return emulation.SetUserAgentOverride(ua).Do(ctx)
		}))
		hdr.Del("User-Agent")
	}
	if extra := extraHeaders(hdr); len(extra) > 0 {
		actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
			return network.SetExtraHTTPHeaders(extra).Do(ctx)
		}))
	}
	if b.Jar != nil {
		if params := cookieParams(b.Jar.Cookies(target), target); len(params) > 0 {
			actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
				return network.SetCookies(params).Do(ctx)
			}))
		}
	}

	var finalURL, contentType, body string
	var browserCookies []*network.Cookie
	actions = append(actions,
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Location(&finalURL),
		chromedp.Evaluate(`document.contentType`, &contentType),
		chromedp.ActionFunc(func(ctx context.Context) error {
			if strings.Contains(contentType, "html") {
				return chromedp.OuterHTML("html", &body, chromedp.ByQuery).Do(ctx)
			}
			return chromedp.Evaluate(textScript, &body).Do(ctx)
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			browserCookies, err = network.GetCookies().WithURLs([]string{rawURL}).Do(ctx)
			return err
		}),
	)

	start := time.Now()
	if err := chromedp.Run(taskCtx, actions...); err != nil {
		return "", fmt.Errorf("browser fetch %s: %w", rawURL, err)
	}
	if b.Logger != nil {
		b.Logger.Printf("FETCH browser %s -> %s (%s) in %s", rawURL, finalURL, contentType, time.Since(start).Round(time.Millisecond))
	}
	b.keepCookies(finalURL, rawURL, browserCookies)
	return body, nil
}

func extraHeaders(h http.Header) network.Headers {
	extra := network.Headers{}
	for k, vs := range h {
		name := http.CanonicalHeaderKey(k)
		if name == "Content-Length" || len(vs) == 0 {
			continue
		}
		extra[name] = strings.Join(vs, ", ")
	}
	return extra
}

func cookieParams(cookies []*http.Cookie, u *url.URL) []*network.CookieParam {
	params := make([]*network.CookieParam, 0, len(cookies))
	for _, c := range cookies {
		domain := c.Domain
		if domain == "" {
			domain = u.Hostname()
		}
		path := c.Path
		if path == "" {
			path = "/"
		}
		param := &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   domain,
			Path:     path,
			Secure:   c.Secure,
			HTTPOnly: c.HttpOnly,
		}
		if !c.Expires.IsZero() {
			exp := cdp.TimeSinceEpoch(c.Expires.UTC())
			param.Expires = &exp
		}
		params = append(params, param)
	}
	return params
}

var sameSiteModes = map[network.CookieSameSite]http.SameSite{
	network.CookieSameSiteLax:    http.SameSiteLaxMode,
	network.CookieSameSiteStrict: http.SameSiteStrictMode,
	network.CookieSameSiteNone:   http.SameSiteNoneMode,
}

// keepCookies copies what Chrome holds after a navigation into the jar, so
// an HTTPFetcher sharing the jar continues the same guest session.
func (b *BrowserFetcher) keepCookies(finalURL, rawURL string, got []*network.Cookie) {
	if b.Jar == nil || len(got) == 0 {
		return
	}
	if finalURL == "" {
		finalURL = rawURL
	}
	u, err := url.Parse(finalURL)
	if err != nil {
		return
	}
	var kept []*http.Cookie
	for _, c := range got {
		if c == nil || c.Name == "" {
			continue
		}
		var expires time.Time
		if !c.Session && c.Expires > 0 {
			expires = time.UnixMilli(int64(c.Expires * 1000)).UTC()
		}
		kept = append(kept, &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  expires,
			Secure:   c.Secure,
			HttpOnly: c.HTTPOnly,
			SameSite: sameSiteModes[c.SameSite],
		})
	}
	b.Jar.SetCookies(u, kept)
}
