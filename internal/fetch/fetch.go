// Package fetch supplies the network capability the transaction signer
// consumes: plain HTTP with a cookie jar, a headless browser fallback, and
// the home page migration dance.
package fetch

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

// DefaultUserAgent is sent when the caller does not set one.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

const defaultTimeout = 15 * time.Second

// StatusError reports a non-2xx upstream response.
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.Status)
}

// Fetcher returns the decoded text body of one request.
type Fetcher interface {
	Fetch(ctx context.Context, method, rawURL string, header http.Header) (string, error)
}

// HTTPFetcher fetches with net/http. Cookies set by the home page are kept
// in Jar and replayed on later requests.
type HTTPFetcher struct {
	Client *http.Client
	Header http.Header
	Logger *log.Logger
}

// NewHTTPFetcher builds a fetcher with its own cookie jar.
func NewHTTPFetcher(timeout time.Duration, header http.Header, logger *log.Logger) *HTTPFetcher {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &HTTPFetcher{
		Client: &http.Client{Timeout: timeout, Jar: newJar()},
		Header: cloneHeader(header),
		Logger: logger,
	}
}

// Fetch implements Fetcher. GET requests carry no body; POST requests use
// FetchForm.
func (f *HTTPFetcher) Fetch(ctx context.Context, method, rawURL string, header http.Header) (string, error) {
	return f.do(ctx, method, rawURL, header, "")
}

// FetchForm posts a form-encoded body.
func (f *HTTPFetcher) FetchForm(ctx context.Context, rawURL string, header http.Header, form string) (string, error) {
	hdr := cloneHeader(header)
	hdr.Set("Content-Type", "application/x-www-form-urlencoded")
	return f.do(ctx, http.MethodPost, rawURL, hdr, form)
}

func (f *HTTPFetcher) do(ctx context.Context, method, rawURL string, header http.Header, body string) (string, error) {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, rd)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	hdr := cloneHeader(f.Header)
	for k, vs := range header {
		hdr[k] = append([]string(nil), vs...)
	}
	ensureDefaultHeaders(hdr)
	req.Header = hdr

	client := f.Client
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()
	if f.Logger != nil {
		f.Logger.Printf("FETCH %s %s -> %d in %s", method, rawURL, resp.StatusCode, time.Since(start).Round(time.Millisecond))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &StatusError{URL: rawURL, Status: resp.StatusCode}
	}
	text, err := readBody(resp)
	if err != nil {
		return "", fmt.Errorf("fetch %s: read body: %w", rawURL, err)
	}
	return text, nil
}

// readBody decodes Content-Encoding by hand: net/http only does so when it
// set Accept-Encoding itself.
func readBody(resp *http.Response) (string, error) {
	var reader io.Reader = resp.Body
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip":
		gr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return "", err
		}
		defer gr.Close()
		reader = gr
	case "deflate":
		// Servers disagree on whether deflate means zlib or raw DEFLATE.
		buf, err := io.ReadAll(resp.Body)
		if err != nil {
			return "", err
		}
		if zr, zerr := zlib.NewReader(bytes.NewReader(buf)); zerr == nil {
			defer zr.Close()
			reader = zr
		} else {
			fr := flate.NewReader(bytes.NewReader(buf))
			defer fr.Close()
			reader = fr
		}
	}
	b, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func ensureDefaultHeaders(hdr http.Header) {
	if hdr.Get("User-Agent") == "" {
		hdr.Set("User-Agent", DefaultUserAgent)
	}
	if hdr.Get("Accept") == "" {
		hdr.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	}
	if hdr.Get("Accept-Language") == "" {
		hdr.Set("Accept-Language", "en-US,en;q=0.9")
	}
	if hdr.Get("Accept-Encoding") == "" {
		hdr.Set("Accept-Encoding", "gzip")
	}
}

func cloneHeader(h http.Header) http.Header {
	out := http.Header{}
	for k, vs := range h {
		for _, v := range vs {
			out.Add(k, v)
		}
	}
	return out
}
