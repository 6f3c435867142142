package emulator

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// legacyWindowSize is how many recent mutations the legacy endpoint exposes.
const legacyWindowSize = 500

const maxPageSize = 500

// Server serves the emulated source API.
type Server struct {
	store  *Store
	apiKey string
}

// NewServer creates a Server. apiKey is the pre-shared key exchanged for
// session tokens.
func NewServer(store *Store, apiKey string) *Server {
	return &Server{store: store, apiKey: apiKey}
}

// Router builds the chi router with all endpoints mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Post("/v1/session", s.handleSession)
	r.Post("/v1/legacy/soap", s.handleLegacySOAP)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/v1/mutation", s.handleListMutations)
		r.Get("/v1/mutation/{id}", s.handleGetMutation)
		r.Get("/v1/relation/{id}", s.handleGetRelation)
		r.Get("/v1/legacy/mutations", s.handleLegacyMutations)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return r
}

// authMiddleware validates the session token issued by /v1/session.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token == "" {
			writeJSONError(w, http.StatusUnauthorized, "Missing Authorization header")
			return
		}

		ok, err := s.store.HasSession(token)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, "session lookup failed")
			return
		}
		if !ok {
			writeJSONError(w, http.StatusUnauthorized, "Invalid or expired session token")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccessToken string `json:"accessToken"`
		Source      string `json:"source"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.AccessToken != s.apiKey {
		writeJSONError(w, http.StatusUnauthorized, "invalid access token")
		return
	}

	token := uuid.NewString()
	if err := s.store.PutSession(token); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"token": token})
}

func (s *Server) handleListMutations(w http.ResponseWriter, r *http.Request) {
	limit := parseQueryInt(r, "limit", maxPageSize)
	if limit <= 0 || limit > maxPageSize {
		limit = maxPageSize
	}
	offset := parseQueryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	items, total, err := s.store.ListMutations(limit, offset)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to list mutations")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": items,
		"count": total,
	})
}

func (s *Server) handleGetMutation(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid mutation id")
		return
	}

	m, err := s.store.GetMutation(id)
	if err == ErrNotFound {
		writeJSONError(w, http.StatusNotFound, "mutation not found")
		return
	}
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to load mutation")
		return
	}

	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleGetRelation(w http.ResponseWriter, r *http.Request) {
	rel, err := s.store.GetRelation(chi.URLParam(r, "id"))
	if err == ErrNotFound {
		writeJSONError(w, http.StatusNotFound, "relation not found")
		return
	}
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to load relation")
		return
	}

	writeJSON(w, http.StatusOK, rel)
}

// handleLegacyMutations emulates the deprecated interface's bounded window:
// only the most recent mutations, no pagination.
func (s *Server) handleLegacyMutations(w http.ResponseWriter, r *http.Request) {
	items, err := s.store.RecentMutations(legacyWindowSize)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to list mutations")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": items,
		"count": len(items),
	})
}

func parseQueryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}
