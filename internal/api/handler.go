package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/lexdrill/lexdrill/internal/dict"
	"github.com/lexdrill/lexdrill/internal/review"
	"github.com/lexdrill/lexdrill/internal/srs"
	"github.com/lexdrill/lexdrill/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Lexicon abstracts the vocabulary provider for the API layer.
type Lexicon interface {
	Lookup(ctx context.Context, word string, forceRefresh bool) (*dict.Entry, error)
}

// Deps holds dependencies for the HTTP API.
type Deps struct {
	Store     *storage.Store
	Dict      Lexicon
	Scheduler srs.Scheduler
	BatchSize int
	Token     string
}

// NewHandler returns the management API: deck CRUD, provider lookups, and
// review sessions. Everything except /health requires the bearer token.
func NewHandler(deps Deps) http.Handler {
	sessions := &sessionRegistry{sessions: make(map[string]*review.Session)}

	r := chi.NewRouter()
	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/words", handleSaveWord(deps))
		r.Get("/words", handleListWords(deps))
		r.Get("/words/{id}", handleGetWord(deps))
		r.Delete("/words/{id}", handleDeleteWord(deps))
		r.Post("/words/{id}/defer", handleDeferWord(deps))
		r.Post("/words/{id}/learned", handleSetLearned(deps))

		r.Get("/lookup", handleLookup(deps))
		r.Get("/history", handleHistory(deps))

		r.Post("/review/sessions", handleNewSession(deps, sessions))
		r.Get("/review/sessions/{id}/next", handleSessionNext(sessions))
		r.Post("/review/sessions/{id}/rate", handleSessionRate(sessions))
		r.Delete("/review/sessions/{id}", handleEndSession(sessions))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// --- Words ---

type saveWordRequest struct {
	Headword string `json:"headword"`
	Refresh  bool   `json:"refresh"`
}

func handleSaveWord(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req saveWordRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		headword := strings.ToLower(strings.TrimSpace(req.Headword))
		if headword == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "headword is required")
			return
		}

		// Saving an already-saved word returns the existing entry instead of
		// duplicating it; headword uniqueness is a convention, not a schema
		// constraint.
		if existing, err := deps.Store.GetWordByHeadword(headword); err == nil {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(existing)
			return
		} else if !errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to check existing word: %v", err)
			return
		}

		entry, err := deps.Dict.Lookup(r.Context(), headword, req.Refresh)
		recordLookup(deps.Store, headword, err == nil)
		if dict.IsNotFound(err) {
			nf := &dict.NotFoundError{}
			errors.As(err, &nf)
			writeUnknownWord(w, http.StatusUnprocessableEntity, headword, nf.Suggestions)
			return
		}
		if err != nil {
			httpError(w, http.StatusBadGateway, "provider_error", "lookup failed: %v", err)
			return
		}

		lexical, err := json.Marshal(entry)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to encode lexical data: %v", err)
			return
		}

		now := time.Now().UTC()
		word := storage.Word{
			ID:        uuid.New().String(),
			Headword:  headword,
			Lexical:   string(lexical),
			Schedule:  srs.NewScheduleState(now),
			CreatedAt: now,
		}
		if err := deps.Store.CreateWord(word); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save word: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(word)
	}
}

func handleListWords(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)
		offset := parseIntParam(r, "offset", 0, 0)

		words, err := deps.Store.ListWords(limit, offset)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list words: %v", err)
			return
		}
		if words == nil {
			words = []storage.Word{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(words)
	}
}

func handleGetWord(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		word, err := deps.Store.GetWord(chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "word not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get word: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(word)
	}
}

func handleDeleteWord(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := deps.Store.DeleteWord(chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "word not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete word: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "deleted"})
	}
}

// handleDeferWord moves a word to the end of list views without touching its
// schedule — "not now" rather than "reschedule".
func handleDeferWord(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := deps.Store.TouchWord(chi.URLParam(r, "id"), time.Now().UTC())
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "word not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to defer word: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "deferred"})
	}
}

type setLearnedRequest struct {
	Learned bool `json:"learned"`
}

func handleSetLearned(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req setLearnedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		err := deps.Store.SetLearned(chi.URLParam(r, "id"), req.Learned)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "word not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to update word: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "updated"})
	}
}

// --- Lookup ---

func handleLookup(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := strings.TrimSpace(r.URL.Query().Get("q"))
		if q == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "q is required")
			return
		}
		refresh := r.URL.Query().Get("refresh") == "true"

		entry, err := deps.Dict.Lookup(r.Context(), q, refresh)
		recordLookup(deps.Store, strings.ToLower(q), err == nil)
		if dict.IsNotFound(err) {
			nf := &dict.NotFoundError{}
			errors.As(err, &nf)
			writeUnknownWord(w, http.StatusNotFound, q, nf.Suggestions)
			return
		}
		if err != nil {
			httpError(w, http.StatusBadGateway, "provider_error", "lookup failed: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(entry)
	}
}

func handleHistory(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)

		lookups, err := deps.Store.RecentLookups(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list history: %v", err)
			return
		}
		if lookups == nil {
			lookups = []storage.Lookup{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(lookups)
	}
}

// recordLookup appends to search history; history is best-effort and never
// fails the request.
func recordLookup(store *storage.Store, term string, found bool) {
	_ = store.RecordLookup(storage.Lookup{
		ID:        uuid.New().String(),
		Term:      term,
		Found:     found,
		CreatedAt: time.Now().UTC(),
	})
}

func writeUnknownWord(w http.ResponseWriter, code int, word string, suggestions []string) {
	if suggestions == nil {
		suggestions = []string{}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": "unknown word: " + word,
			"type":    "unknown_word",
		},
		"suggestions": suggestions,
	})
}

// --- Review sessions ---

type sessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*review.Session
}

func (r *sessionRegistry) add(id string, s *review.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[id] = s
}

func (r *sessionRegistry) get(id string) (*review.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

func (r *sessionRegistry) remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[id]
	delete(r.sessions, id)
	return ok
}

type sessionResponse struct {
	ID        string `json:"id"`
	Policy    string `json:"policy"`
	Remaining int    `json:"remaining"`
}

func handleNewSession(deps Deps, reg *sessionRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session := review.NewSession(deps.Store, deps.Scheduler, deps.BatchSize, nil)

		remaining, err := session.Remaining()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to count due words: %v", err)
			return
		}

		id := uuid.New().String()
		reg.add(id, session)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(sessionResponse{
			ID:        id,
			Policy:    session.Policy(),
			Remaining: remaining,
		})
	}
}

type nextCardResponse struct {
	Done      bool          `json:"done"`
	Remaining int           `json:"remaining"`
	Card      *storage.Word `json:"card,omitempty"`
}

func handleSessionNext(reg *sessionRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, ok := reg.get(chi.URLParam(r, "id"))
		if !ok {
			httpError(w, http.StatusNotFound, "not_found", "session not found")
			return
		}

		card, err := session.Next()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to select next card: %v", err)
			return
		}

		remaining, err := session.Remaining()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to count due words: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(nextCardResponse{
			Done:      card == nil,
			Remaining: remaining,
			Card:      card,
		})
	}
}

type rateRequest struct {
	WordID string     `json:"word_id"`
	Rating srs.Rating `json:"rating"`
}

func handleSessionRate(reg *sessionRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, ok := reg.get(chi.URLParam(r, "id"))
		if !ok {
			httpError(w, http.StatusNotFound, "not_found", "session not found")
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req rateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		err := session.Rate(req.WordID, req.Rating)
		switch {
		case errors.Is(err, review.ErrNoActiveCard):
			httpError(w, http.StatusConflict, "invalid_request_error", "%v", err)
			return
		case errors.Is(err, review.ErrUnsupportedRating):
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		case err != nil:
			httpError(w, http.StatusInternalServerError, "api_error", "failed to apply rating: %v", err)
			return
		}

		remaining, err := session.Remaining()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to count due words: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"status":    "rated",
			"remaining": remaining,
		})
	}
}

func handleEndSession(reg *sessionRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !reg.remove(chi.URLParam(r, "id")) {
			httpError(w, http.StatusNotFound, "not_found", "session not found")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ended"})
	}
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
