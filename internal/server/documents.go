package server

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ziadkadry99/docqa/internal/loader"
	"github.com/ziadkadry99/docqa/internal/syncer"
	"github.com/ziadkadry99/docqa/internal/vectordb"
	"github.com/ziadkadry99/docqa/internal/walker"
)

type documentResponse struct {
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	ModTime   time.Time `json:"mod_time"`
	Supported bool      `json:"supported"`
	Indexed   bool      `json:"indexed"`
	Chunks    int       `json:"chunks"`
}

type failureResponse struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

type reportResponse struct {
	Added      int               `json:"added"`
	Modified   int               `json:"modified"`
	Deleted    int               `json:"deleted"`
	Unchanged  int               `json:"unchanged"`
	Failed     []failureResponse `json:"failed"`
	DurationMS int64             `json:"duration_ms"`
}

type searchResultResponse struct {
	Source      string  `json:"source"`
	Path        string  `json:"path"`
	Page        int     `json:"page,omitempty"`
	StartOffset int     `json:"start_offset"`
	Similarity  float32 `json:"similarity"`
	Text        string  `json:"text"`
}

func toReport(r *syncer.Report) reportResponse {
	resp := reportResponse{
		Added:      r.Added,
		Modified:   r.Modified,
		Deleted:    r.Deleted,
		Unchanged:  r.Unchanged,
		Failed:     []failureResponse{},
		DurationMS: r.Duration.Milliseconds(),
	}
	for _, f := range r.Failed {
		resp.Failed = append(resp.Failed, failureResponse{Path: f.Path, Error: f.Err.Error()})
	}
	return resp
}

func toSearchResults(results []vectordb.SearchResult) []searchResultResponse {
	out := make([]searchResultResponse, len(results))
	for i, r := range results {
		out[i] = searchResultResponse{
			Source:      r.Chunk.Metadata.DisplayName,
			Path:        r.Chunk.Metadata.SourcePath,
			Page:        r.Chunk.Metadata.Page,
			StartOffset: r.Chunk.Metadata.StartOffset,
			Similarity:  r.Similarity,
			Text:        r.Chunk.Text,
		}
	}
	return out
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.engine.Documents(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	out := make([]documentResponse, len(docs))
	for i, d := range docs {
		out[i] = documentResponse(d)
	}
	writeJSON(w, http.StatusOK, out)
}

// handleUpload stores the multipart field "file" in the documents folder and
// syncs.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUpload+1<<20)

	file, header, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, walker.ErrTooLarge)
			return
		}
		writeError(w, http.StatusBadRequest, fmt.Errorf("reading upload: %w", err))
		return
	}
	defer file.Close()

	path, err := walker.SaveUpload(s.engine.Root(), header.Filename, file, s.cfg.MaxUpload)
	if err != nil {
		writeError(w, uploadStatus(err), err)
		return
	}
	s.logger.Info("document uploaded", zap.String("path", path))

	s.syncAndRespond(w, r, http.StatusCreated, map[string]any{"name": filepath.Base(path)})
}

func uploadStatus(err error) int {
	var unsupported *loader.UnsupportedFormatError
	switch {
	case errors.Is(err, walker.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, walker.ErrInvalidName):
		return http.StatusBadRequest
	case errors.As(err, &unsupported):
		return http.StatusUnsupportedMediaType
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := walker.Remove(s.engine.Root(), name); err != nil {
		switch {
		case errors.Is(err, walker.ErrInvalidName):
			writeError(w, http.StatusBadRequest, err)
		case errors.Is(err, os.ErrNotExist):
			writeError(w, http.StatusNotFound, err)
		default:
			writeError(w, http.StatusInternalServerError, err)
		}
		return
	}
	s.logger.Info("document removed", zap.String("name", name))

	s.syncAndRespond(w, r, http.StatusOK, map[string]any{"name": name})
}

// handlePreview returns the first characters of a document's text.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		writeError(w, http.StatusBadRequest, walker.ErrInvalidName)
		return
	}

	segments, err := s.loader.Load(filepath.Join(s.engine.Root(), name))
	if err != nil {
		var unsupported *loader.UnsupportedFormatError
		switch {
		case errors.Is(err, os.ErrNotExist):
			writeError(w, http.StatusNotFound, err)
		case errors.As(err, &unsupported):
			writeError(w, http.StatusUnsupportedMediaType, err)
		default:
			writeError(w, http.StatusUnprocessableEntity, err)
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"name":    name,
		"preview": loader.Preview(segments, loader.PreviewLength),
	})
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	report, err := s.engine.Sync(r.Context())
	if err != nil {
		s.logger.Error("sync failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, toReport(report))
}

// syncAndRespond runs a sync and writes body with the report under "sync".
func (s *Server) syncAndRespond(w http.ResponseWriter, r *http.Request, status int, body map[string]any) {
	report, err := s.engine.Sync(r.Context())
	if err != nil {
		s.logger.Error("sync failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	body["sync"] = toReport(report)
	writeJSON(w, status, body)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, errors.New("q is required"))
		return
	}

	k := s.cfg.DefaultTopK
	if raw := r.URL.Query().Get("k"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid k %q", raw))
			return
		}
		k = n
	}

	results, err := s.engine.Search(r.Context(), query, k)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, toSearchResults(results))
}
