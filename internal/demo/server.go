// Package demo is a small in-memory deals API used as a local load target.
//
//	POST /deals           201 "Deal saved successfully", 409 "Deal already exists", 400 on invalid input
//	GET  /deals/{dealId}  200 with the stored deal as JSON, 404 when unknown
//	GET  /health          200 "ok"
package demo

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Response bodies returned by POST /deals.
const (
	MsgSaved  = "Deal saved successfully"
	MsgExists = "Deal already exists"
)

// Deal is an FX deal.
type Deal struct {
	DealID       string    `json:"dealId"`
	FromCurrency string    `json:"fromCurrency"`
	ToCurrency   string    `json:"toCurrency"`
	Amount       float64   `json:"amount"`
	Timestamp    time.Time `json:"timestamp"`
}

// Validate returns the first constraint the deal violates.
func (d *Deal) Validate(now time.Time) error {
	switch {
	case strings.TrimSpace(d.DealID) == "":
		return errors.New("dealId is required")
	case strings.TrimSpace(d.FromCurrency) == "":
		return errors.New("source currency is required")
	case strings.TrimSpace(d.ToCurrency) == "":
		return errors.New("target currency is required")
	case d.Amount < 0.01:
		return errors.New("transaction amount must be greater than 0")
	case d.Timestamp.After(now):
		return errors.New("deal date cannot be in the future")
	}
	return nil
}

// Store holds deals keyed by dealId.
type Store struct {
	mu    sync.RWMutex
	deals map[string]Deal
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{deals: make(map[string]Deal)}
}

// Save stores d unless its dealId is taken; it reports whether d was stored.
func (s *Store) Save(d Deal) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.deals[d.DealID]; ok {
		return false
	}
	s.deals[d.DealID] = d
	return true
}

// Get returns the deal with the given id.
func (s *Store) Get(id string) (Deal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.deals[id]
	return d, ok
}

// Len returns the number of stored deals.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.deals)
}

// Server serves the deals API.
type Server struct {
	store  *Store
	logger *zap.Logger
	now    func() time.Time
	mux    *http.ServeMux
}

// NewServer creates a server over store. A nil logger discards logs.
func NewServer(store *Store, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{store: store, logger: logger, now: time.Now, mux: http.NewServeMux()}
	s.mux.HandleFunc("POST /deals", s.createDeal)
	s.mux.HandleFunc("GET /deals/{dealId}", s.getDeal)
	s.mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeText(w, http.StatusOK, "ok")
	})
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) createDeal(w http.ResponseWriter, r *http.Request) {
	var d Deal
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(&d); err != nil {
		writeText(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	now := s.now()
	if d.Timestamp.IsZero() {
		d.Timestamp = now
	}
	if err := d.Validate(now); err != nil {
		writeText(w, http.StatusBadRequest, err.Error())
		return
	}

	if !s.store.Save(d) {
		s.logger.Debug("duplicate deal", zap.String("deal_id", d.DealID))
		writeText(w, http.StatusConflict, MsgExists)
		return
	}
	s.logger.Debug("deal saved", zap.String("deal_id", d.DealID))
	writeText(w, http.StatusCreated, MsgSaved)
}

func (s *Server) getDeal(w http.ResponseWriter, r *http.Request) {
	d, ok := s.store.Get(r.PathValue("dealId"))
	if !ok {
		writeText(w, http.StatusNotFound, "Deal not found")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(d)
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
