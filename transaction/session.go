// Package transaction derives the per-request transaction id expected by
// the web front end's anti-automation layer.
//
// Initialization reads a verification key and a set of loading-animation
// frames from the home page, plus key byte indices from a companion
// on-demand script, and reduces them to an animation key. The resulting
// Session is immutable; TransactionID only hashes and packs bytes and is
// safe for concurrent use.
package transaction

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"time"

	"xtid/dom"
)

const (
	// Epoch is the reference instant, in Unix milliseconds, that token
	// time is counted from.
	Epoch = 1682924400000

	keyword          = "obfiowerehiring"
	additionalNumber = 3
	digestPrefixLen  = 16
)

// Session holds the material derived once per home page. All fields are
// fixed at construction.
type Session struct {
	key          string
	keyBytes     []byte
	animationKey string
	indices      Indices
	rowValue     int
	doc          *dom.Document
}

// InitOptions tunes Initialize.
type InitOptions struct {
	// Header is sent with the on-demand script request.
	Header http.Header
	// OnDemandURLFormat overrides DefaultOnDemandURLFormat.
	OnDemandURLFormat string
}

// Initialize parses the home page, fetches its on-demand script through f
// and derives a Session. Every failure is terminal for this attempt.
func Initialize(ctx context.Context, homePage string, f Fetcher, opts InitOptions) (*Session, error) {
	doc, err := dom.Parse(homePage)
	if err != nil {
		return nil, fmt.Errorf("transaction: parse home page: %w", err)
	}
	idx, err := FetchIndices(ctx, doc, f, opts.Header, opts.OnDemandURLFormat)
	if err != nil {
		return nil, err
	}
	return newSession(doc, idx)
}

// NewSession derives a Session from an already fetched home page and
// on-demand script.
func NewSession(homePage, onDemandScript string) (*Session, error) {
	doc, err := dom.Parse(homePage)
	if err != nil {
		return nil, fmt.Errorf("transaction: parse home page: %w", err)
	}
	idx, err := ParseIndices(onDemandScript)
	if err != nil {
		return nil, err
	}
	return newSession(doc, idx)
}

func newSession(doc *dom.Document, idx Indices) (*Session, error) {
	key, err := Key(doc)
	if err != nil {
		return nil, err
	}
	keyBytes, err := KeyBytes(key)
	if err != nil {
		return nil, err
	}
	frame, err := Frame(doc, keyBytes)
	if err != nil {
		return nil, err
	}
	animationKey, err := AnimationKey(keyBytes, idx, frame)
	if err != nil {
		return nil, err
	}
	row, _ := RowValue(keyBytes, idx)
	return &Session{
		key:          key,
		keyBytes:     keyBytes,
		animationKey: animationKey,
		indices:      Indices{Row: idx.Row, KeyBytes: append([]int(nil), idx.KeyBytes...)},
		rowValue:     row,
		doc:          doc,
	}, nil
}

// Key returns the base64 verification key.
func (s *Session) Key() string {
	if s == nil {
		return ""
	}
	return s.key
}

// KeyBytes returns a copy of the decoded key.
func (s *Session) KeyBytes() []byte {
	if s == nil {
		return nil
	}
	return append([]byte(nil), s.keyBytes...)
}

// AnimationKey returns the cached animation key.
func (s *Session) AnimationKey() string {
	if s == nil {
		return ""
	}
	return s.animationKey
}

// Indices returns a copy of the key byte indices.
func (s *Session) Indices() Indices {
	if s == nil {
		return Indices{}
	}
	return Indices{Row: s.indices.Row, KeyBytes: append([]int(nil), s.indices.KeyBytes...)}
}

// RowValue returns key byte Row mod 16.
func (s *Session) RowValue() int {
	if s == nil {
		return 0
	}
	return s.rowValue
}

// Document returns the parsed home page.
func (s *Session) Document() *dom.Document {
	if s == nil {
		return nil
	}
	return s.doc
}

type genOptions struct {
	now          func() time.Time
	timeSet      bool
	time         int64
	key          string
	animationKey string
	doc          *dom.Document
	random       io.Reader
}

// Option overrides one input of TransactionID.
type Option func(*genOptions)

// WithTime fixes the token time, in seconds since Epoch.
func WithTime(sec int64) Option {
	return func(o *genOptions) { o.time, o.timeSet = sec, true }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *genOptions) { o.now = now }
}

// WithKey overrides the session key.
func WithKey(key string) Option {
	return func(o *genOptions) { o.key = key }
}

// WithAnimationKey overrides the session animation key.
func WithAnimationKey(key string) Option {
	return func(o *genOptions) { o.animationKey = key }
}

// WithDocument supplies a home page to derive missing material from.
func WithDocument(doc *dom.Document) Option {
	return func(o *genOptions) { o.doc = doc }
}

// WithRandom sets the source of the per-call random byte.
func WithRandom(r io.Reader) Option {
	return func(o *genOptions) { o.random = r }
}

// TimeNow converts t to token time: whole seconds since Epoch, floored so
// clocks before Epoch count down from -1.
func TimeNow(t time.Time) int64 {
	ms := t.UnixMilli() - Epoch
	sec := ms / 1000
	if ms%1000 < 0 {
		sec--
	}
	return sec
}

// TransactionID signs method and path. s may be nil when the options
// carry everything needed.
func (s *Session) TransactionID(method, path string, opts ...Option) (string, error) {
	o := genOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	now := o.time
	if !o.timeSet {
		now = TimeNow(o.now())
	}

	key := firstNonEmpty(o.key, s.Key())
	if key == "" {
		if o.doc == nil {
			return "", fmt.Errorf("%w: no key", ErrNotInitialized)
		}
		var err error
		if key, err = Key(o.doc); err != nil {
			return "", err
		}
	}
	keyBytes, err := KeyBytes(key)
	if err != nil {
		return "", err
	}

	animationKey := firstNonEmpty(o.animationKey, s.AnimationKey())
	if animationKey == "" {
		if o.doc == nil || s == nil {
			return "", fmt.Errorf("%w: no animation key", ErrNotInitialized)
		}
		frame, err := Frame(o.doc, keyBytes)
		if err != nil {
			return "", err
		}
		if animationKey, err = AnimationKey(keyBytes, s.indices, frame); err != nil {
			return "", err
		}
	}

	randomByte, err := nextRandomByte(o.random)
	if err != nil {
		return "", err
	}
	return encodeToken(method, path, now, keyBytes, animationKey, randomByte), nil
}

func encodeToken(method, path string, now int64, keyBytes []byte, animationKey string, randomByte byte) string {
	digest := sha256.Sum256([]byte(fmt.Sprintf("%s!%s!%d%s%s", method, path, now, keyword, animationKey)))

	out := make([]byte, 0, 1+len(keyBytes)+4+digestPrefixLen+1)
	out = append(out, randomByte)
	for _, b := range keyBytes {
		out = append(out, b^randomByte)
	}
	out = binary.LittleEndian.AppendUint32(out, uint32(now))
	out = append(out, digest[:digestPrefixLen]...)
	out = append(out, additionalNumber)
	return TrimPadding(EncodeBase64(out))
}

func nextRandomByte(r io.Reader) (byte, error) {
	if r == nil {
		return byte(rand.IntN(256)), nil
	}
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, fmt.Errorf("transaction: read random byte: %w", err)
	}
	return b[0], nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
