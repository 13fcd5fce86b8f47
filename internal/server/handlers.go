package server

import (
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"strconv"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	source := chi.URLParam(r, "source")
	path, ok := s.paths[source]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown source")
		return
	}

	// Try in-memory cache first
	data := s.cache.Get(source)

	// Cold start: load from the last written file
	if data == nil {
		slog.Info("cache miss, loading from disk", "source", source, "path", path)
		var err error
		data, err = os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			writeError(w, http.StatusNotFound, "no data available")
			return
		}
		if err != nil {
			slog.Error("failed to read output file", "source", source, "error", err)
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		s.cache.Set(source, data)
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=60")
	w.Write(data)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusNotFound, "run ledger not configured")
		return
	}

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	runs, err := s.store.RecentRuns(r.Context(), limit)
	if err != nil {
		slog.Error("failed to load runs", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	json.NewEncoder(w).Encode(map[string]any{"runs": runs})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	sources := map[string]any{}
	for source := range s.paths {
		if updatedAt := s.cache.UpdatedAt(source); !updatedAt.IsZero() {
			sources[source] = updatedAt.Format("2006-01-02T15:04:05Z07:00")
		}
	}

	resp := map[string]any{
		"status": "ok",
	}
	if len(sources) > 0 {
		resp["last_update"] = sources
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
