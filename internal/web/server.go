package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/renderinc/moltbook-search/internal/search"
	"github.com/renderinc/moltbook-search/internal/storage"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

// Store is the read surface the server needs from the post store
type Store interface {
	SearchPosts(ctx context.Context, query string, limit int) ([]*storage.Post, error)
	SearchAgents(ctx context.Context, query string, limit int) ([]*storage.Agent, error)
	Stats(ctx context.Context) (*storage.Stats, error)
}

// FuzzyIndex is the optional bleve mirror
type FuzzyIndex interface {
	Search(query string, limit int) ([]*search.SearchResult, error)
	Count() (uint64, error)
}

type Server struct {
	db     Store
	idx    FuzzyIndex
	logger *slog.Logger
}

// SearchResponse is returned by /api/search. Posts holds store rows in fts
// mode and bleve hits in fuzzy mode.
type SearchResponse struct {
	Query  string           `json:"query"`
	Mode   string           `json:"mode"`
	Posts  any              `json:"posts"`
	Agents []*storage.Agent `json:"agents"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewServer creates the API server. idx may be nil, which disables fuzzy
// mode.
func NewServer(db Store, idx FuzzyIndex, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{db: db, idx: idx, logger: logger}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/search", s.handleSearch)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /health", s.handleHealth)

	return mux
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		s.writeError(w, http.StatusBadRequest, "missing q parameter")
		return
	}
	if err := storage.ValidateQuery(query); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	mode := r.URL.Query().Get("mode")
	if mode == "" {
		mode = "fts"
	}

	limit := defaultLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= maxLimit {
			limit = l
		}
	}

	resp := &SearchResponse{Query: query, Mode: mode}

	switch mode {
	case "fts":
		posts, err := s.db.SearchPosts(r.Context(), query, limit)
		if err != nil {
			s.serverError(w, "search posts", err)
			return
		}
		resp.Posts = nonNil(posts)
	case "fuzzy":
		if s.idx == nil {
			s.writeError(w, http.StatusBadRequest, "fuzzy search not available (no bleve index)")
			return
		}
		results, err := s.idx.Search(query, limit)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		resp.Posts = nonNil(results)
	default:
		s.writeError(w, http.StatusBadRequest, "mode must be fts or fuzzy")
		return
	}

	agents, err := s.db.SearchAgents(r.Context(), query, limit)
	if err != nil {
		s.serverError(w, "search agents", err)
		return
	}
	resp.Agents = nonNil(agents)

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.db.Stats(r.Context())
	if err != nil {
		s.serverError(w, "stats", err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":          "ok",
		"fuzzy_available": s.idx != nil,
	}

	if stats, err := s.db.Stats(r.Context()); err == nil {
		body["posts_in_db"] = stats.Posts
	}
	if s.idx != nil {
		if count, err := s.idx.Count(); err == nil {
			body["posts_in_index"] = count
		}
	}

	s.writeJSON(w, http.StatusOK, body)
}

func (s *Server) serverError(w http.ResponseWriter, op string, err error) {
	s.logger.Error("request failed", "op", op, "error", err)
	s.writeError(w, http.StatusInternalServerError, "internal server error")
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("encode response", "error", err)
	}
}

// nonNil keeps empty result sets encoding as [] rather than null
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
