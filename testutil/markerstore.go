// Package testutil provides shared helpers for tests.
// MarkerStore is an in-memory fake of the remote marker store served over
// httptest, so repo, service and view tests exercise the real HTTP client.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/pkordes/change-observer/internal/domain"
	"github.com/pkordes/change-observer/spec"
)

// cannedResponse replaces the next real handling of a route.
type cannedResponse struct {
	status int
	body   string
}

// MarkerStore is a fake remote marker store. It is safe for concurrent use.
type MarkerStore struct {
	srv *httptest.Server

	mu         sync.Mutex
	markers    map[string]domain.Marker
	order      []string
	canned     map[string][]cannedResponse
	calls      map[string]int
	requestIDs []string
	now        func() time.Time
}

// NewMarkerStore starts a fake store and registers its shutdown with t.Cleanup.
func NewMarkerStore(t testing.TB) *MarkerStore {
	t.Helper()

	s := &MarkerStore{
		markers: make(map[string]domain.Marker),
		canned:  make(map[string][]cannedResponse),
		calls:   make(map[string]int),
		now:     func() time.Time { return time.Now().UTC() },
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(s.record)

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		_, _ = w.Write(spec.OpenAPI)
	})
	r.Post("/marker", s.create)
	r.Get("/marker", s.get)
	r.Put("/marker", s.update)
	r.Delete("/marker", s.delete)
	r.Get("/markers", s.list)

	s.srv = httptest.NewServer(r)
	t.Cleanup(s.srv.Close)
	return s
}

// URL is the base URL of the fake store.
func (s *MarkerStore) URL() string { return s.srv.URL }

// Client returns an *http.Client configured for the fake store.
func (s *MarkerStore) Client() *http.Client { return s.srv.Client() }

// Seed stores markers as if they had been created earlier. Markers without an
// id get a fresh one; the stored copies are returned in order.
func (s *MarkerStore) Seed(ms ...domain.Marker) []domain.Marker {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Marker, len(ms))
	for i, m := range ms {
		if m.MarkerID == "" {
			m.MarkerID = uuid.NewString()
		}
		if m.DateCreated.IsZero() {
			m.DateCreated = domain.Timestamp{Time: s.now()}
		}
		if m.SubscribedEmails == nil {
			m.SubscribedEmails = []string{}
		}
		s.put(m)
		out[i] = m
	}
	return out
}

// Marker returns the stored marker with id.
func (s *MarkerStore) Marker(id string) (domain.Marker, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markers[id]
	return m, ok
}

// Len is the number of stored markers.
func (s *MarkerStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.markers)
}

// FailNext makes the next request to method+path answer status with a
// {"message": msg} body. An empty msg sends an empty JSON object.
func (s *MarkerStore) FailNext(method, path string, status int, msg string) {
	body := "{}"
	if msg != "" {
		b, _ := json.Marshal(map[string]string{"message": msg})
		body = string(b)
	}
	s.RespondNext(method, path, status, body)
}

// RespondNext makes the next request to method+path answer status with body
// verbatim, without touching the stored markers.
func (s *MarkerStore) RespondNext(method, path string, status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := routeKey(method, path)
	s.canned[k] = append(s.canned[k], cannedResponse{status: status, body: body})
}

// Calls counts the requests received for method+path, canned ones included.
func (s *MarkerStore) Calls(method, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[routeKey(method, path)]
}

// RequestIDs lists the request IDs seen so far, in arrival order.
func (s *MarkerStore) RequestIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requestIDs...)
}

func routeKey(method, path string) string { return strings.ToUpper(method) + " " + path }

// record counts the call and serves a canned response when one is queued.
func (s *MarkerStore) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		k := routeKey(r.Method, r.URL.Path)

		s.mu.Lock()
		s.calls[k]++
		s.requestIDs = append(s.requestIDs, chimiddleware.GetReqID(r.Context()))
		var canned *cannedResponse
		if q := s.canned[k]; len(q) > 0 {
			canned = &q[0]
			s.canned[k] = q[1:]
		}
		s.mu.Unlock()

		if canned != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(canned.status)
			_, _ = w.Write([]byte(canned.body))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// put stores m; callers hold s.mu.
func (s *MarkerStore) put(m domain.Marker) {
	if _, exists := s.markers[m.MarkerID]; !exists {
		s.order = append(s.order, m.MarkerID)
	}
	s.markers[m.MarkerID] = m
}

func (s *MarkerStore) create(w http.ResponseWriter, r *http.Request) {
	var draft domain.MarkerDraft
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if strings.TrimSpace(draft.Name) == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("name is required"))
		return
	}
	if draft.SubscribedEmails == nil {
		draft.SubscribedEmails = []string{}
	}

	s.mu.Lock()
	m := domain.Marker{
		MarkerID:         uuid.NewString(),
		Name:             draft.Name,
		Coordinate:       draft.Coordinate,
		SubscribedEmails: draft.SubscribedEmails,
		DateCreated:      domain.Timestamp{Time: s.now()},
	}
	s.put(m)
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, m)
}

func (s *MarkerStore) get(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("markerId")

	s.mu.Lock()
	m, ok := s.markers[id]
	s.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody("Marker not found"))
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *MarkerStore) update(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("markerId")

	var patch domain.MarkerPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("name must not be empty"))
		return
	}

	s.mu.Lock()
	m, ok := s.markers[id]
	if ok {
		m = patch.Apply(m)
		s.put(m)
	}
	s.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody("Marker not found"))
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *MarkerStore) delete(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("markerId")

	s.mu.Lock()
	_, ok := s.markers[id]
	if ok {
		delete(s.markers, id)
		for i, v := range s.order {
			if v == id {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
	}
	s.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody("Marker not found"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Marker deleted"})
}

func (s *MarkerStore) list(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := make([]domain.Marker, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.markers[id])
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, out)
}

func errorBody(msg string) map[string]string { return map[string]string{"message": msg} }

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
