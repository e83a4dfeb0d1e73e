package transaction

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"xtid/dom"
)

// DefaultOnDemandURLFormat builds the companion script URL from the hash
// fragment found in the home page.
const DefaultOnDemandURLFormat = "https://abs.twimg.com/responsive-web/client-web/ondemand.s.%sa.js"

const (
	verificationSelector = "meta[name='twitter-site-verification']"
	frameMarker          = "loading-x-anim"
	frameKeyByte         = 5
	minFrameLen          = 10
)

var (
	onDemandRe = regexp.MustCompile(`['"]ondemand\.s['"]:\s*['"](\w*)['"]`)
	indicesRe  = regexp.MustCompile(`\(\w\[(\d{1,2})\],\s*16\)`)
	numberRe   = regexp.MustCompile(`-?\d+(?:\.\d+)?`)
)

// Fetcher retrieves a text body. It is the only I/O the derivation does.
type Fetcher interface {
	Fetch(ctx context.Context, method, rawURL string, header http.Header) (string, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, method, rawURL string, header http.Header) (string, error)

func (f FetcherFunc) Fetch(ctx context.Context, method, rawURL string, header http.Header) (string, error) {
	return f(ctx, method, rawURL, header)
}

// Indices selects which key bytes drive the animation timing. Row is the
// first index found in the on-demand script; KeyBytes are the rest.
type Indices struct {
	Row      int
	KeyBytes []int
}

// Key returns the base64 verification key from the home page.
func Key(doc *dom.Document) (string, error) {
	if doc == nil {
		return "", ErrNotInitialized
	}
	id, ok := doc.Find(verificationSelector)
	if !ok {
		return "", fmt.Errorf("%w: no verification meta tag", ErrMissingKey)
	}
	content, _ := doc.Attr(id, "content")
	if content == "" {
		return "", fmt.Errorf("%w: verification meta tag has no content", ErrMissingKey)
	}
	return content, nil
}

// KeyBytes decodes the verification key.
func KeyBytes(key string) ([]byte, error) {
	b, err := DecodeBase64(key)
	if err != nil {
		return nil, fmt.Errorf("transaction: decode key: %w", err)
	}
	return b, nil
}

// OnDemandHash finds the on-demand script hash fragment in raw page source.
func OnDemandHash(source string) (string, bool) {
	m := onDemandRe.FindStringSubmatch(source)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// OnDemandURL formats the companion script URL. An empty format uses
// DefaultOnDemandURLFormat.
func OnDemandURL(format, hash string) string {
	if format == "" {
		format = DefaultOnDemandURLFormat
	}
	return fmt.Sprintf(format, hash)
}

// ParseIndices collects every `(x[NN], 16)` literal from the script, in
// order of appearance.
func ParseIndices(script string) (Indices, error) {
	var found []int
	for _, m := range indicesRe.FindAllStringSubmatch(script, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		found = append(found, n)
	}
	if len(found) == 0 {
		return Indices{}, ErrIndicesNotFound
	}
	return Indices{Row: found[0], KeyBytes: found[1:]}, nil
}

// FetchIndices locates the on-demand script referenced by doc, fetches it
// and parses its indices.
func FetchIndices(ctx context.Context, doc *dom.Document, f Fetcher, header http.Header, urlFormat string) (Indices, error) {
	if doc == nil {
		return Indices{}, ErrNotInitialized
	}
	hash, ok := OnDemandHash(doc.Raw(dom.Root))
	if !ok {
		return Indices{}, fmt.Errorf("%w: no on-demand script reference", ErrIndicesNotFound)
	}
	script, err := f.Fetch(ctx, http.MethodGet, OnDemandURL(urlFormat, hash), header)
	if err != nil {
		return Indices{}, fmt.Errorf("transaction: fetch on-demand script: %w", err)
	}
	return ParseIndices(script)
}

// Frame picks one loading animation by key byte 5 and flattens the numbers
// of all its path data, zero-padded to at least ten entries.
func Frame(doc *dom.Document, keyBytes []byte) ([]float64, error) {
	if doc == nil {
		return nil, ErrNotInitialized
	}
	var frames []dom.NodeID
	for _, id := range doc.FindAll("svg") {
		if v, _ := doc.Attr(id, "id"); strings.Contains(v, frameMarker) {
			frames = append(frames, id)
		}
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("%w: no %s frames", ErrIndex, frameMarker)
	}
	if len(keyBytes) <= frameKeyByte {
		return nil, fmt.Errorf("%w: key has %d bytes, frame selection needs byte %d", ErrIndex, len(keyBytes), frameKeyByte)
	}
	frame := frames[int(keyBytes[frameKeyByte])%len(frames)]

	paths := dom.QuerySelectorAll(doc, frame, dom.Compile("path"))
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: frame has no path elements", ErrInvalidFrame)
	}
	var numbers []float64
	for _, p := range paths {
		d, _ := doc.Attr(p, "d")
		if d == "" {
			continue
		}
		numbers = append(numbers, parseNumbers(d)...)
	}
	for len(numbers) < minFrameLen {
		numbers = append(numbers, 0)
	}
	return numbers, nil
}

func parseNumbers(s string) []float64 {
	var out []float64
	for _, tok := range numberRe.FindAllString(s, -1) {
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			continue
		}
		out = append(out, v)
	}
	return out
}
