package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"xtid/internal/signer"
	"xtid/transaction"
)

type transactionResponse struct {
	TransactionID string `json:"transaction_id"`
	AnimationKey  string `json:"animation_key"`
}

type refreshResponse struct {
	AnimationKey string `json:"animation_key"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleTransactionID(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	method := strings.ToUpper(strings.TrimSpace(q.Get("method")))
	if method == "" {
		method = http.MethodGet
	}
	path := q.Get("path")
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing path"})
		return
	}
	opts := []transaction.Option{transaction.WithClock(s.clock)}
	if raw := q.Get("time"); raw != "" {
		sec, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || sec < 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid time"})
			return
		}
		opts = append(opts, transaction.WithTime(sec))
	}

	sess, err := s.cfg.Signer.Session(r.Context())
	if err != nil {
		s.logger.Printf("REQ session: %v", err)
		writeJSON(w, statusFor(err), errorResponse{Error: err.Error()})
		return
	}
	tok, err := sess.TransactionID(method, path, opts...)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, transactionResponse{TransactionID: tok, AnimationKey: sess.AnimationKey()})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	sess, err := s.cfg.Signer.Refresh(r.Context())
	if err != nil {
		s.logger.Printf("REQ refresh: %v", err)
		writeJSON(w, statusFor(err), errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, refreshResponse{AnimationKey: sess.AnimationKey()})
}

func (s *Server) handlePing(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, "pong\n")
}

// statusFor maps initialization failures: a missing fetcher is our own
// misconfiguration, anything else is upstream trouble.
func statusFor(err error) int {
	if errors.Is(err, signer.ErrNoFetcher) {
		return http.StatusServiceUnavailable
	}
	return http.StatusBadGateway
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
