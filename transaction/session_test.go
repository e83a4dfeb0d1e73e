package transaction

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"xtid/dom"
)

const (
	fixtureMethod = "GET"
	fixturePath   = "/i/api/1.1/jot/client_event.json"
	fixtureTime   = int64(0x01020304)
)

func fixtureSession(t *testing.T) *Session {
	t.Helper()
	s, err := NewSession(fixtureHome(), fixtureScript)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	return s
}

func decodeToken(t *testing.T, tok string) []byte {
	t.Helper()
	if strings.HasSuffix(tok, "=") {
		t.Fatalf("token %q keeps base64 padding", tok)
	}
	raw, err := base64.RawStdEncoding.DecodeString(tok)
	if err != nil {
		t.Fatalf("decode token %q: %v", tok, err)
	}
	return raw
}

func TestNewSession(t *testing.T) {
	s := fixtureSession(t)
	if s.Key() != fixtureKey {
		t.Fatalf("Key = %q", s.Key())
	}
	if s.AnimationKey() != fixtureAnimationKey {
		t.Fatalf("AnimationKey = %q, want %q", s.AnimationKey(), fixtureAnimationKey)
	}
	if got := s.RowValue(); got != 2 {
		t.Fatalf("RowValue = %d, want 2", got)
	}
	kb := s.KeyBytes()
	kb[0] = 0xff
	if s.KeyBytes()[0] != 0 {
		t.Fatalf("KeyBytes exposes internal storage")
	}
	idx := s.Indices()
	idx.KeyBytes[0] = 99
	if s.Indices().KeyBytes[0] != 15 {
		t.Fatalf("Indices exposes internal storage")
	}
}

func TestInitialize(t *testing.T) {
	f := &recordingFetcher{body: fixtureScript}
	s, err := Initialize(context.Background(), fixtureHome(), f, InitOptions{})
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if s.AnimationKey() != fixtureAnimationKey {
		t.Fatalf("AnimationKey = %q", s.AnimationKey())
	}
	if len(f.urls) != 1 {
		t.Fatalf("fetched %d times, want 1", len(f.urls))
	}
}

func TestInitializeFailures(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		home   string
		script string
		want   error
	}{
		{"not_markup", "plain text", fixtureScript, dom.ErrParse},
		{"no_indices", fixtureHome(), "nothing", ErrIndicesNotFound},
		{"no_key", strings.Replace(fixtureHome(), "twitter-site-verification", "other", 1), fixtureScript, ErrMissingKey},
		{"no_frames", strings.ReplaceAll(fixtureHome(), "loading-x-anim", "spinner"), fixtureScript, ErrIndex},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := Initialize(context.Background(), tc.home, &recordingFetcher{body: tc.script}, InitOptions{})
			if !errors.Is(err, tc.want) {
				t.Fatalf("Initialize error = %v, want %v", err, tc.want)
			}
		})
	}
}

// The expected token is assembled byte by byte here, independently of
// encodeToken.
func TestTransactionIDRegression(t *testing.T) {
	s := fixtureSession(t)
	tok, err := s.TransactionID(fixtureMethod, fixturePath,
		WithTime(fixtureTime), WithRandom(bytes.NewReader([]byte{0})))
	if err != nil {
		t.Fatalf("TransactionID: %v", err)
	}

	digest := sha256.Sum256([]byte(fixtureMethod + "!" + fixturePath + "!16909060obfiowerehiring" + fixtureAnimationKey))
	want := []byte{0}
	want = append(want, keyBytesFixture()...)
	want = append(want, 0x04, 0x03, 0x02, 0x01)
	want = append(want, digest[:16]...)
	want = append(want, 3)
	wantTok := strings.TrimRight(base64.StdEncoding.EncodeToString(want), "=")

	if tok != wantTok {
		t.Fatalf("TransactionID = %q, want %q", tok, wantTok)
	}
	if !strings.HasPrefix(tok, "AAABAgMEBQYHCAkKCwwN") {
		t.Fatalf("TransactionID %q has an unexpected key prefix", tok)
	}
	if len(tok) != 51 {
		t.Fatalf("len(TransactionID) = %d, want 51", len(tok))
	}
	if raw := decodeToken(t, tok); len(raw) != 38 {
		t.Fatalf("decoded length = %d, want 38", len(raw))
	}
}

// The whole pipeline, from home page and script to token, against a token
// computed in a browser engine.
func TestTransactionIDMatchesBrowser(t *testing.T) {
	s, err := NewSession(homeWithKey(browserKey, browserFrameD), browserScript)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if got := s.AnimationKey(); got != browserAnimationKey {
		t.Fatalf("AnimationKey = %q, want %q", got, browserAnimationKey)
	}
	tok, err := s.TransactionID("POST", "/1.1/jot/client_event.json",
		WithTime(123456789), WithRandom(bytes.NewReader([]byte{0x5a})))
	if err != nil {
		t.Fatalf("TransactionID: %v", err)
	}
	if tok != browserToken {
		t.Fatalf("TransactionID = %q, want %q", tok, browserToken)
	}
}

func TestTransactionIDRandomByteOnlyTouchesKeyBytes(t *testing.T) {
	s := fixtureSession(t)
	a, err := s.TransactionID(fixtureMethod, fixturePath, WithTime(fixtureTime), WithRandom(bytes.NewReader([]byte{0x00})))
	if err != nil {
		t.Fatalf("TransactionID: %v", err)
	}
	b, err := s.TransactionID(fixtureMethod, fixturePath, WithTime(fixtureTime), WithRandom(bytes.NewReader([]byte{0xab})))
	if err != nil {
		t.Fatalf("TransactionID: %v", err)
	}
	ra, rb := decodeToken(t, a), decodeToken(t, b)
	if len(ra) != len(rb) {
		t.Fatalf("lengths differ: %d vs %d", len(ra), len(rb))
	}
	n := 1 + len(keyBytesFixture())
	if ra[0] != 0x00 || rb[0] != 0xab {
		t.Fatalf("random bytes = %#x, %#x", ra[0], rb[0])
	}
	for i := 1; i < n; i++ {
		if ra[i]^ra[0] != rb[i]^rb[0] {
			t.Fatalf("byte %d does not unmask to the same key byte", i)
		}
	}
	if !bytes.Equal(ra[n:], rb[n:]) {
		t.Fatalf("bytes after the key differ between calls")
	}
	if got := binary.LittleEndian.Uint32(ra[n : n+4]); got != uint32(fixtureTime) {
		t.Fatalf("time bytes = %#x, want %#x", got, fixtureTime)
	}
	if ra[len(ra)-1] != 3 {
		t.Fatalf("trailing byte = %d, want 3", ra[len(ra)-1])
	}
}

func TestTransactionIDUsesClock(t *testing.T) {
	s := fixtureSession(t)
	clock := func() time.Time { return time.UnixMilli(Epoch + 5500) }
	tok, err := s.TransactionID("POST", "/x", WithClock(clock), WithRandom(bytes.NewReader([]byte{7})))
	if err != nil {
		t.Fatalf("TransactionID: %v", err)
	}
	raw := decodeToken(t, tok)
	n := 1 + len(keyBytesFixture())
	if got := binary.LittleEndian.Uint32(raw[n : n+4]); got != 5 {
		t.Fatalf("time = %d, want 5", got)
	}
	digest := sha256.Sum256([]byte(fmt.Sprintf("POST!/x!5obfiowerehiring%s", fixtureAnimationKey)))
	if !bytes.Equal(raw[n+4:n+20], digest[:16]) {
		t.Fatalf("digest prefix mismatch")
	}
}

func TestTransactionIDOverridesAndPrerequisites(t *testing.T) {
	var nilSession *Session
	if _, err := nilSession.TransactionID("GET", "/"); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("nil session error = %v, want ErrNotInitialized", err)
	}

	tok, err := nilSession.TransactionID("GET", "/", WithKey(fixtureKey), WithAnimationKey(fixtureAnimationKey),
		WithTime(fixtureTime), WithRandom(bytes.NewReader([]byte{0})))
	if err != nil {
		t.Fatalf("TransactionID with overrides: %v", err)
	}
	viaSession, err := fixtureSession(t).TransactionID("GET", "/", WithTime(fixtureTime), WithRandom(bytes.NewReader([]byte{0})))
	if err != nil {
		t.Fatalf("TransactionID: %v", err)
	}
	if tok != viaSession {
		t.Fatalf("overrides %q differ from session %q", tok, viaSession)
	}

	// A document recovers the key but not the animation key without indices.
	doc := dom.MustParse(fixtureHome())
	if _, err := nilSession.TransactionID("GET", "/", WithDocument(doc)); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("document without indices error = %v, want ErrNotInitialized", err)
	}
	if _, err := nilSession.TransactionID("GET", "/", WithDocument(doc), WithAnimationKey("ab00")); err != nil {
		t.Fatalf("document recovery of the key: %v", err)
	}

	other, err := fixtureSession(t).TransactionID("GET", "/", WithAnimationKey("ff00"), WithTime(fixtureTime), WithRandom(bytes.NewReader([]byte{0})))
	if err != nil {
		t.Fatalf("TransactionID: %v", err)
	}
	if other == viaSession {
		t.Fatalf("animation key override had no effect")
	}

	if _, err := fixtureSession(t).TransactionID("GET", "/", WithRandom(bytes.NewReader(nil))); err == nil {
		t.Fatalf("exhausted random source did not fail")
	}
}

func TestTransactionIDConcurrent(t *testing.T) {
	s := fixtureSession(t)
	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tok, err := s.TransactionID("GET", fmt.Sprintf("/p/%d", i))
			if err != nil {
				errs <- err
				return
			}
			if strings.HasSuffix(tok, "=") {
				errs <- fmt.Errorf("token %q padded", tok)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}
}

func TestTimeNow(t *testing.T) {
	t.Parallel()
	for _, tc := range []struct {
		ms   int64
		want int64
	}{
		{Epoch, 0},
		{Epoch + 999, 0},
		{Epoch + 1000, 1},
		{Epoch + 5500, 5},
		{Epoch - 1, -1},
		{Epoch - 1000, -1},
		{Epoch - 1001, -2},
		{Epoch - 2500, -3},
	} {
		if got := TimeNow(time.UnixMilli(tc.ms)); got != tc.want {
			t.Errorf("TimeNow(Epoch%+dms) = %d, want %d", tc.ms-Epoch, got, tc.want)
		}
	}
}
