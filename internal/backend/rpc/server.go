package rpc

import (
	"encoding/json"
	"net/http"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
)

// Store is an in-memory, concurrency-safe key/value table: the same shape
// as the Python prototype's plain dict, chosen deliberately since durable
// persistence across backend restarts is out of scope.
type Store struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewStore returns an empty in-memory object store.
func NewStore() *Store {
	return &Store{data: make(map[string][]byte)}
}

func (s *Store) get(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok
}

func (s *Store) put(key string, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
}

func (s *Store) delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
}

func (s *Store) keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.data))
	for k := range s.data {
		out = append(out, k)
	}
	return out
}

// Server exposes a Store over HTTP. Routes:
//
//	GET    /objects/{key}  -> 200 {data} | 404
//	PUT    /objects/{key}  -> 204
//	DELETE /objects/{key}  -> 204
//	GET    /objects        -> 200 {keys}
type Server struct {
	store  *Store
	router *mux.Router
}

// NewServer wires up the routes for store.
func NewServer(store *Store) *Server {
	s := &Server{store: store, router: mux.NewRouter()}
	s.router.HandleFunc("/objects/{key}", s.handleGet).Methods(http.MethodGet)
	s.router.HandleFunc("/objects/{key}", s.handlePut).Methods(http.MethodPut)
	s.router.HandleFunc("/objects/{key}", s.handleDelete).Methods(http.MethodDelete)
	s.router.HandleFunc("/objects", s.handleList).Methods(http.MethodGet)
	s.router.HandleFunc("/keys", s.handleNewKey).Methods(http.MethodPost)
	return s
}

// Handler returns the http.Handler to pass to http.Serve, wrapped with
// gorilla/handlers combined-log-format access logging.
func (s *Server) Handler() http.Handler {
	return handlers.CombinedLoggingHandler(os.Stdout, s.router)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	data, ok := s.store.get(key)
	if !ok {
		writeError(w, http.StatusNotFound, "no such key")
		return
	}
	writeJSON(w, http.StatusOK, getResponse{Data: data})
}

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	var req putRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.store.put(key, req.Data)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	s.store.delete(key)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, listResponse{Keys: s.store.keys()})
}

func (s *Server) handleNewKey(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, getResponse{Data: []byte(uuid.NewString())})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

