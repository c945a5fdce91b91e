// Package galaxytest runs an in-process fake of the history REST API for tests.
package galaxytest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Project-Sylos/Chronicle/internal/generator"
	"github.com/Project-Sylos/Chronicle/internal/types"
)

// Server is a fake backend seeded from a generated dataset.
type Server struct {
	*httptest.Server

	mu        sync.Mutex
	apiKey    string
	histories []types.History // newest first
	items     map[string][]types.Item
	current   string
	rng       *generator.RNG
	requests  map[string]int
	failures  map[string]int // route pattern -> status to answer with
	gate      chan struct{}  // blocks contents requests while set
}

// New starts a server seeded with ds; a nil ds starts empty
func New(ds *generator.Dataset) *Server {
	s := &Server{
		items:    make(map[string][]types.Item),
		rng:      generator.NewRNG(1),
		requests: make(map[string]int),
		failures: make(map[string]int),
	}
	if ds != nil {
		for _, h := range ds.Histories {
			s.histories = append(s.histories, h)
			s.items[h.ID] = slices.Clone(ds.Items[h.ID])
		}
		if len(s.histories) > 0 {
			s.current = s.histories[0].ID
		}
	}
	s.Server = httptest.NewServer(s.routes())
	return s
}

// NewDefault starts a server seeded with generator.DefaultConfig
func NewDefault() *Server {
	ds, err := generator.Generate(generator.DefaultConfig())
	if err != nil {
		panic(fmt.Sprintf("galaxytest: %v", err))
	}
	return New(ds)
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.count)
	r.Use(s.auth)

	r.Get("/api/version", s.version)
	r.Route("/api/histories", func(r chi.Router) {
		r.Get("/", s.listHistories)
		r.Post("/", s.copyHistory)
		r.Get("/{id}", s.getHistory)
		r.Put("/{id}", s.updateHistory)
		r.Get("/{id}/contents", s.listContents)
	})
	r.Get("/history/set_as_current", s.setAsCurrent)
	r.Get("/history/create_new_current", s.createNewCurrent)
	return r
}

// count records requests and answers injected failures
func (s *Server) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := routeKey(r)
		s.mu.Lock()
		s.requests[key]++
		status := s.failures[key]
		s.mu.Unlock()

		if status != 0 {
			writeError(w, status, "injected failure")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		key := s.apiKey
		s.mu.Unlock()
		if key != "" && r.Header.Get("x-api-key") != key {
			writeError(w, http.StatusForbidden, "Provided API key is not valid.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// routeKey names a request "METHOD /path" with history ids replaced by {id}
func routeKey(r *http.Request) string {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) >= 3 && parts[0] == "api" && parts[1] == "histories" {
		parts[2] = "{id}"
	}
	return r.Method + " /" + strings.Join(parts, "/")
}

// RequireAPIKey makes every request carry key as x-api-key
func (s *Server) RequireAPIKey(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apiKey = key
}

// Requests returns how many requests matched key, e.g. "GET /api/histories/{id}/contents"
func (s *Server) Requests(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[key]
}

// Fail makes every request matching key answer with status; 0 clears it
func (s *Server) Fail(key string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status == 0 {
		delete(s.failures, key)
		return
	}
	s.failures[key] = status
}

// HoldContents blocks contents requests until the returned function is called
func (s *Server) HoldContents() (release func()) {
	gate := make(chan struct{})
	s.mu.Lock()
	s.gate = gate
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			if s.gate == gate {
				s.gate = nil
			}
			s.mu.Unlock()
			close(gate)
		})
	}
}

// Histories returns a copy of the server's histories, newest first
func (s *Server) Histories() []types.History {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.histories)
}

// Items returns a copy of a history's contents
func (s *Server) Items(historyID string) []types.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.items[historyID])
}

// CurrentID returns the session's current history id
func (s *Server) CurrentID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// SetItemState changes an item's state and bumps its update time
func (s *Server) SetItemState(historyID string, hid int, state string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items[historyID] {
		if s.items[historyID][i].HID == hid {
			s.items[historyID][i].State = state
			s.items[historyID][i].UpdateTime = types.Timestamp{Time: time.Now().UTC()}
		}
	}
	if i := s.indexLocked(historyID); i >= 0 {
		generator.Summarize(&s.histories[i], s.items[historyID])
	}
}

// SetNonReadyJobs sets the unfinished jobs of a history
func (s *Server) SetNonReadyJobs(historyID string, jobs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexLocked(historyID); i >= 0 {
		s.histories[i].NonReadyJobs = append([]string{}, jobs...)
	}
}

func (s *Server) indexLocked(id string) int {
	return slices.IndexFunc(s.histories, func(h types.History) bool { return h.ID == id })
}

func (s *Server) newHistoryLocked(name string) types.History {
	id, _ := generator.NewID(s.rng)
	now := types.Timestamp{Time: time.Now().UTC()}

	h := types.DefaultHistory()
	h.ID = id
	if name != "" {
		h.Name = name
	}
	h.CreateTime = now
	h.UpdateTime = now
	h.Tags = []string{}
	h.NonReadyJobs = []string{}
	h.HidCounter = 1
	return h
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"err_msg": message, "err_code": status * 1000})
}

func intParam(r *http.Request, name string, fallback int) int {
	if v, err := strconv.Atoi(r.URL.Query().Get(name)); err == nil {
		return v
	}
	return fallback
}

func (s *Server) version(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version_major": "24.0"})
}
