package server

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/jeefy/mindjournal/internal/journal"
	"github.com/jeefy/mindjournal/internal/models"
	"github.com/jeefy/mindjournal/internal/store"
)

// maxBodyBytes bounds JSON request bodies; content length itself is limited
// by the journal configuration.
const maxBodyBytes = 1 << 20

type Server struct {
	journal     *journal.Service
	store       store.Store
	backend     string
	corsOrigins map[string]struct{}
	mux         *http.ServeMux
}

type Options struct {
	// Backend names the embedding/generation backend reported by /healthz.
	Backend string
	// CORSOrigins lists browser origins allowed to call the API.
	CORSOrigins []string
}

type createEntryRequest struct {
	Content *string `json:"content"`
}

func New(svc *journal.Service, st store.Store, opts Options) *Server {
	s := &Server{
		journal:     svc,
		store:       st,
		backend:     opts.Backend,
		corsOrigins: make(map[string]struct{}, len(opts.CORSOrigins)),
		mux:         http.NewServeMux(),
	}
	for _, o := range opts.CORSOrigins {
		s.corsOrigins[o] = struct{}{}
	}
	s.routes()
	return s
}

func (s *Server) Router() http.Handler { return s.logRequests(s.cors(s.mux)) }

func (s *Server) routes() {
	s.mux.HandleFunc("/entries", s.handleEntries)
	s.mux.HandleFunc("/healthz", s.handleHealth)
}

// POST /entries?entry_text=... or POST /entries {"content": "..."}
// GET  /entries
func (s *Server) handleEntries(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		text, err := entryText(w, r)
		if err != nil {
			http.Error(w, "bad request: expected ?entry_text=... or JSON {content}; "+err.Error(), http.StatusBadRequest)
			return
		}
		e, err := s.journal.CreateEntry(r.Context(), text)
		if err != nil {
			if errors.Is(err, journal.ErrInvalidEntry) {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			log.Printf("server: create entry: %v", err)
			http.Error(w, "failed to save entry", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusCreated, e)
	case http.MethodGet:
		entries, err := s.journal.ListEntries(r.Context())
		if err != nil {
			log.Printf("server: list entries: %v", err)
			http.Error(w, "failed to list entries", http.StatusInternalServerError)
			return
		}
		if entries == nil {
			entries = []*models.Entry{}
		}
		writeJSON(w, http.StatusOK, entries)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// entryText reads the entry from the entry_text query parameter when present,
// otherwise from a JSON body.
func entryText(w http.ResponseWriter, r *http.Request) (string, error) {
	if q := r.URL.Query(); q.Has("entry_text") {
		return q.Get("entry_text"), nil
	}
	var req createEntryRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			return "", errors.New("empty body")
		}
		return "", err
	}
	if req.Content == nil {
		return "", errors.New("missing content")
	}
	return *req.Content, nil
}

// GET /healthz
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	resp := map[string]string{"status": "ok", "storage": s.store.Driver(), "backend": s.backend}
	if err := s.store.Ping(r.Context()); err != nil {
		resp["status"] = "unavailable"
		resp["error"] = err.Error()
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// cors answers preflight requests and tags responses for configured origins.
func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		_, allowed := s.corsOrigins[origin]
		if origin != "" && allowed {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
			h.Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			if !allowed {
				http.Error(w, "origin not allowed", http.StatusForbidden)
				return
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// logRequests assigns each request an id (reusing X-Request-ID when sent)
// and logs one line when it completes.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		log.Printf("server: %s %s %d %s request_id=%s", r.Method, r.URL.Path, rec.status, time.Since(start).Round(time.Millisecond), id)
	})
}
