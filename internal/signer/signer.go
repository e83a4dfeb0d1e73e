// Package signer keeps one transaction.Session warm for a process and
// signs requests with it.
package signer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"xtid/internal/fetch"
	"xtid/transaction"
)

// ErrNoFetcher is returned when a Signer has nothing to fetch with.
var ErrNoFetcher = errors.New("signer: no fetcher configured")

// Config describes how a Signer reaches the network.
type Config struct {
	Fetcher           fetch.Fetcher
	HomeURL           string
	OnDemandURLFormat string
	Header            http.Header
	// RefreshInterval is the age after which the session is rebuilt on the
	// next call. Zero keeps it for the life of the process.
	RefreshInterval time.Duration
	Verbose         bool
	Logger          *log.Logger
	Clock           func() time.Time
}

// Signer lazily builds a session on first use. Concurrent first callers
// share a single initialization, and a failed one is retried on the next
// call.
type Signer struct {
	cfg   Config
	group singleflight.Group

	mu       sync.RWMutex
	session  *transaction.Session
	loadedAt time.Time
}

// New wires a Signer. No network traffic happens until the first call.
func New(cfg Config) *Signer {
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.HomeURL == "" {
		cfg.HomeURL = fetch.DefaultHomeURL
	}
	if cfg.OnDemandURLFormat == "" {
		cfg.OnDemandURLFormat = transaction.DefaultOnDemandURLFormat
	}
	return &Signer{cfg: cfg}
}

// TransactionID signs one request.
func (s *Signer) TransactionID(ctx context.Context, method, path string) (string, error) {
	sess, err := s.Session(ctx)
	if err != nil {
		return "", err
	}
	return sess.TransactionID(method, path, transaction.WithClock(s.cfg.Clock))
}

// Session returns the current session, building it when there is none or
// when it has outlived RefreshInterval.
func (s *Signer) Session(ctx context.Context) (*transaction.Session, error) {
	s.mu.RLock()
	sess, at := s.session, s.loadedAt
	s.mu.RUnlock()
	if sess != nil && !s.stale(at) {
		return sess, nil
	}
	return s.load(ctx, false)
}

// Refresh rebuilds the session now. On failure the previous session, if
// any, stays in use.
func (s *Signer) Refresh(ctx context.Context) (*transaction.Session, error) {
	return s.load(ctx, true)
}

func (s *Signer) stale(at time.Time) bool {
	return s.cfg.RefreshInterval > 0 && s.cfg.Clock().Sub(at) >= s.cfg.RefreshInterval
}

func (s *Signer) load(ctx context.Context, force bool) (*transaction.Session, error) {
	v, err, shared := s.group.Do("session", func() (any, error) {
		if !force {
			// A flight that finished since the caller looked may have
			// already replaced a missing or stale session.
			s.mu.RLock()
			sess, at := s.session, s.loadedAt
			s.mu.RUnlock()
			if sess != nil && !s.stale(at) {
				return sess, nil
			}
		}
		// Callers that joined this flight must not lose it to the
		// first caller's cancellation.
		sess, err := s.initialize(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.session = sess
		s.loadedAt = s.cfg.Clock()
		s.mu.Unlock()
		return sess, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		s.cfg.Logger.Printf("INIT shared in-flight session")
	}
	return v.(*transaction.Session), nil
}

func (s *Signer) initialize(ctx context.Context) (*transaction.Session, error) {
	if s.cfg.Fetcher == nil {
		return nil, ErrNoFetcher
	}
	start := time.Now()
	home, err := fetch.LoadHomePage(ctx, s.cfg.Fetcher, s.cfg.HomeURL, s.cfg.Header, s.cfg.Logger)
	if err != nil {
		s.cfg.Logger.Printf("INIT home page failed: %v", err)
		return nil, fmt.Errorf("signer: load home page: %w", err)
	}
	sess, err := transaction.Initialize(ctx, home, s.cfg.Fetcher, transaction.InitOptions{
		Header:            s.cfg.Header,
		OnDemandURLFormat: s.cfg.OnDemandURLFormat,
	})
	if err != nil {
		s.cfg.Logger.Printf("INIT session failed: %v", err)
		return nil, fmt.Errorf("signer: %w", err)
	}
	s.cfg.Logger.Printf("INIT session ready in %s (animation key %d chars)", time.Since(start).Round(time.Millisecond), len(sess.AnimationKey()))
	if s.cfg.Verbose {
		idx := sess.Indices()
		s.cfg.Logger.Printf("INIT key %x row=%d (value %d) key indices=%v animation key %s",
			sess.KeyBytes(), idx.Row, sess.RowValue(), idx.KeyBytes, sess.AnimationKey())
	}
	return sess, nil
}
