package signer

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"xtid/internal/fetch"
	"xtid/transaction"
)

const testKey = "AAECAwQFBgcICQoLDA0ODw=="

const testHome = `<!DOCTYPE html>
<html><head>
<meta name="twitter-site-verification" content="` + testKey + `"/>
<script>var m={"ondemand.s":"abc123"};</script>
</head><body>
<svg id="loading-x-anim-0"><g><path d="M 0 0 0 L 255 0 255 -51 C 255 0 255 0"/></g></svg>
</body></html>`

const testScript = `(e[2], 16),(e[15], 16),(e[15], 16)`

type upstream struct {
	srv        *httptest.Server
	homeHits   atomic.Int32
	scriptHits atomic.Int32
	failures   atomic.Int32
	delay      time.Duration
}

func newUpstream(t *testing.T, delay time.Duration) *upstream {
	t.Helper()
	u := &upstream{delay: delay}
	u.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			u.homeHits.Add(1)
			if u.failures.Load() > 0 {
				u.failures.Add(-1)
				http.Error(w, "busy", http.StatusServiceUnavailable)
				return
			}
			time.Sleep(u.delay)
			io.WriteString(w, testHome)
		case "/ondemand.s.abc123a.js":
			u.scriptHits.Add(1)
			io.WriteString(w, testScript)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(u.srv.Close)
	return u
}

func (u *upstream) config() Config {
	return Config{
		Fetcher:           fetch.NewHTTPFetcher(time.Second, nil, nil),
		HomeURL:           u.srv.URL + "/",
		OnDemandURLFormat: u.srv.URL + "/ondemand.s.%sa.js",
		Logger:            log.New(io.Discard, "", 0),
	}
}

type fakeClock struct{ ms atomic.Int64 }

func (c *fakeClock) now() time.Time          { return time.UnixMilli(c.ms.Load()) }
func (c *fakeClock) advance(d time.Duration) { c.ms.Add(d.Milliseconds()) }

func TestSignerInitializesOnce(t *testing.T) {
	u := newUpstream(t, 50*time.Millisecond)
	s := New(u.config())

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.TransactionID(context.Background(), "GET", "/i/api/graphql"); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("TransactionID: %v", err)
	}
	if got := u.homeHits.Load(); got != 1 {
		t.Fatalf("home page fetched %d times, want 1", got)
	}
	if got := u.scriptHits.Load(); got != 1 {
		t.Fatalf("script fetched %d times, want 1", got)
	}
}

func TestSignerUsesClock(t *testing.T) {
	u := newUpstream(t, 0)
	clock := &fakeClock{}
	clock.ms.Store(transaction.Epoch + 42_000)
	cfg := u.config()
	cfg.Clock = clock.now
	s := New(cfg)

	tok, err := s.TransactionID(context.Background(), "POST", "/1.1/jot")
	if err != nil {
		t.Fatalf("TransactionID: %v", err)
	}
	raw, err := base64.RawStdEncoding.DecodeString(tok)
	if err != nil {
		t.Fatalf("decode %q: %v", tok, err)
	}
	if len(raw) != 38 {
		t.Fatalf("decoded length = %d, want 38", len(raw))
	}
	if got := binary.LittleEndian.Uint32(raw[17:21]); got != 42 {
		t.Fatalf("time bytes = %d, want 42", got)
	}
	key := raw[1:17]
	for i := range key {
		key[i] ^= raw[0]
	}
	want, _ := base64.StdEncoding.DecodeString(testKey)
	if !bytes.Equal(key, want) {
		t.Fatalf("unmasked key = %x, want %x", key, want)
	}
}

func TestSignerDoesNotCacheFailure(t *testing.T) {
	u := newUpstream(t, 0)
	u.failures.Store(1)
	s := New(u.config())

	_, err := s.TransactionID(context.Background(), "GET", "/")
	var se *fetch.StatusError
	if !errors.As(err, &se) || se.Status != http.StatusServiceUnavailable {
		t.Fatalf("first call error = %v, want a 503 StatusError", err)
	}
	if _, err := s.TransactionID(context.Background(), "GET", "/"); err != nil {
		t.Fatalf("second call: %v", err)
	}
	if got := u.homeHits.Load(); got != 2 {
		t.Fatalf("home page fetched %d times, want 2", got)
	}
}

func TestSignerRefreshInterval(t *testing.T) {
	u := newUpstream(t, 0)
	clock := &fakeClock{}
	clock.ms.Store(transaction.Epoch)
	cfg := u.config()
	cfg.Clock = clock.now
	cfg.RefreshInterval = time.Hour
	s := New(cfg)

	first, err := s.Session(context.Background())
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	clock.advance(59 * time.Minute)
	again, err := s.Session(context.Background())
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	if again != first {
		t.Fatalf("session rebuilt before the interval")
	}
	clock.advance(time.Minute)
	if _, err := s.Session(context.Background()); err != nil {
		t.Fatalf("Session: %v", err)
	}
	if got := u.homeHits.Load(); got != 2 {
		t.Fatalf("home page fetched %d times, want 2", got)
	}
}

func TestSignerRefreshKeepsOldSessionOnFailure(t *testing.T) {
	u := newUpstream(t, 0)
	s := New(u.config())

	first, err := s.Session(context.Background())
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	u.failures.Store(1)
	if _, err := s.Refresh(context.Background()); err == nil {
		t.Fatalf("Refresh against a failing upstream succeeded")
	}
	cur, err := s.Session(context.Background())
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	if cur != first {
		t.Fatalf("failed refresh replaced the session")
	}
	next, err := s.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if next == first {
		t.Fatalf("Refresh returned the old session")
	}
}

func TestSignerWithoutFetcher(t *testing.T) {
	s := New(Config{Logger: log.New(io.Discard, "", 0)})
	if _, err := s.TransactionID(context.Background(), "GET", "/"); !errors.Is(err, ErrNoFetcher) {
		t.Fatalf("TransactionID error = %v, want ErrNoFetcher", err)
	}
}

func TestVerboseLogsSessionMaterial(t *testing.T) {
	u := newUpstream(t, 0)
	var buf bytes.Buffer
	cfg := u.config()
	cfg.Verbose = true
	cfg.Logger = log.New(&buf, "", 0)

	if _, err := New(cfg).Session(context.Background()); err != nil {
		t.Fatalf("Session: %v", err)
	}
	want := "INIT key 000102030405060708090a0b0c0d0e0f row=2 (value 2) key indices=[15 15] animation key 0000001100"
	if !strings.Contains(buf.String(), want) {
		t.Fatalf("log = %q, want a line containing %q", buf.String(), want)
	}

	buf.Reset()
	cfg.Verbose = false
	if _, err := New(cfg).Session(context.Background()); err != nil {
		t.Fatalf("Session: %v", err)
	}
	if strings.Contains(buf.String(), "INIT key") {
		t.Fatalf("quiet signer logged key material: %q", buf.String())
	}
}
