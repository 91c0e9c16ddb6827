// Package server exposes the record table, single-shot extraction,
// enrichment, auto-sequence control and exports over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/maps-harvest/internal/autoseq"
	"github.com/sells-group/maps-harvest/internal/browser"
	"github.com/sells-group/maps-harvest/internal/enrich"
	"github.com/sells-group/maps-harvest/internal/export"
	"github.com/sells-group/maps-harvest/internal/fetcher"
	"github.com/sells-group/maps-harvest/internal/model"
	"github.com/sells-group/maps-harvest/internal/records"
	"github.com/sells-group/maps-harvest/internal/store"
)

// Extractor pulls the record shown on the live page.
type Extractor interface {
	ExtractData(ctx context.Context) (model.BusinessRecord, error)
}

// Enricher enriches one record and merges the result.
type Enricher interface {
	Apply(ctx context.Context, rec model.BusinessRecord) (bool, error)
}

// Deps are the collaborators behind the routes. Page, Enricher and AutoSeq
// are optional; their routes answer 503 when unset.
type Deps struct {
	Records        *records.Store
	KV             store.KV
	Page           Extractor
	Enricher       Enricher
	AutoSeq        *autoseq.Controller
	AllowedOrigins []string
}

// Server holds the session state shared by handlers.
type Server struct {
	deps Deps

	// mu serializes every mutating request into one control flow.
	mu          sync.Mutex
	autoRunning bool
	autoDone    chan struct{}
	baseCtx     context.Context
}

// New creates a Server. Background auto-sequence runs use ctx and stop
// when it is cancelled.
func New(ctx context.Context, deps Deps) *Server {
	return &Server{deps: deps, baseCtx: ctx}
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	origins := s.deps.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", handleHealth)
	r.Get("/records", s.handleListRecords)
	r.Delete("/records", s.handleClearRecords)
	r.Delete("/records/{index}", s.handleRemoveRecord)
	r.Post("/records/{index}/enrich", s.handleEnrichRecord)
	r.Post("/extract", s.handleExtract)
	r.Get("/autoseq", s.handleAutoStatus)
	r.Post("/autoseq/start", s.handleAutoStart)
	r.Post("/autoseq/stop", s.handleAutoStop)
	r.Get("/columns", s.handleGetColumns)
	r.Put("/columns", s.handlePutColumns)
	r.Get("/export.{format}", s.handleExport)

	return r
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully and stops any running auto-sequence.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		zap.L().Info("shutting down server", zap.String("component", "server"))
		if s.deps.AutoSeq != nil {
			s.deps.AutoSeq.Stop()
		}
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx) //nolint:errcheck
	}()

	zap.L().Info("starting server", zap.String("component", "server"), zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return eris.Wrap(err, "server listen")
	}
	s.Wait()
	return nil
}

// Wait blocks until a background auto-sequence run, if any, has finished.
func (s *Server) Wait() {
	s.mu.Lock()
	done := s.autoDone
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListRecords(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Records.All())
}

func (s *Server) handleClearRecords(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.deps.Records.Clear(r.Context()); err != nil {
		httpError(w, http.StatusInternalServerError, "clear records: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": 0})
}

func (s *Server) handleRemoveRecord(w http.ResponseWriter, r *http.Request) {
	idx, ok := indexParam(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	removed, err := s.deps.Records.RemoveAt(r.Context(), idx)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "remove record: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"removed": removed, "count": s.deps.Records.Len()})
}

func (s *Server) handleEnrichRecord(w http.ResponseWriter, r *http.Request) {
	if s.deps.Enricher == nil {
		httpError(w, http.StatusServiceUnavailable, "enrichment is not configured")
		return
	}
	idx, ok := indexParam(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, found := s.deps.Records.Get(idx)
	if !found {
		httpError(w, http.StatusNotFound, "no record at index %d", idx)
		return
	}
	merged, err := s.deps.Enricher.Apply(r.Context(), rec)
	switch {
	case errors.Is(err, enrich.ErrNoWebsite):
		httpError(w, http.StatusUnprocessableEntity, "record has no website")
		return
	case errors.Is(err, fetcher.ErrFetchFailed):
		httpError(w, http.StatusBadGateway, "%v", err)
		return
	case err != nil:
		httpError(w, http.StatusInternalServerError, "enrich: %v", err)
		return
	}
	rec, _ = s.deps.Records.Get(idx)
	writeJSON(w, http.StatusOK, map[string]any{"merged": merged, "record": rec})
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	if s.deps.Page == nil {
		httpError(w, http.StatusServiceUnavailable, "no browser page is attached")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.autoRunning {
		httpError(w, http.StatusConflict, "auto-sequence is running")
		return
	}

	rec, err := s.deps.Page.ExtractData(r.Context())
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, browser.ErrChannelUnavailable) {
			code = http.StatusServiceUnavailable
		}
		httpError(w, code, "extract: %v", err)
		return
	}
	accepted, err := s.deps.Records.Add(r.Context(), rec)
	if errors.Is(err, records.ErrMissingName) {
		httpError(w, http.StatusUnprocessableEntity, "page is not showing a place profile")
		return
	}
	if err != nil {
		httpError(w, http.StatusInternalServerError, "add record: %v", err)
		return
	}
	rec.Sanitize()
	if stored, ok := s.deps.Records.Find(rec.Key()); ok && accepted {
		rec = stored
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"accepted": accepted,
		"record":   rec,
		"missing":  rec.MissingFields(),
	})
}

func (s *Server) handleAutoStatus(w http.ResponseWriter, _ *http.Request) {
	if s.deps.AutoSeq == nil {
		httpError(w, http.StatusServiceUnavailable, "auto-sequence is not configured")
		return
	}
	writeJSON(w, http.StatusOK, s.deps.AutoSeq.Status())
}

func (s *Server) handleAutoStart(w http.ResponseWriter, r *http.Request) {
	if s.deps.AutoSeq == nil {
		httpError(w, http.StatusServiceUnavailable, "auto-sequence is not configured")
		return
	}
	var req struct {
		Restart bool `json:"restart"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<10)).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid request body: %v", err)
			return
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.autoRunning {
		httpError(w, http.StatusConflict, "auto-sequence is already running")
		return
	}
	ctrl := s.deps.AutoSeq
	if err := ctrl.Begin(); err != nil {
		httpError(w, http.StatusConflict, "auto-sequence is already running")
		return
	}
	s.autoRunning = true
	done := make(chan struct{})
	s.autoDone = done

	go func() {
		defer close(done)
		err := ctrl.Run(s.baseCtx, func(int) bool { return req.Restart })
		if err != nil {
			zap.L().Error("auto-sequence ended with error", zap.String("component", "server"), zap.Error(err))
		}
		s.mu.Lock()
		s.autoRunning = false
		s.mu.Unlock()
	}()

	writeJSON(w, http.StatusAccepted, map[string]any{"status": "started", "restart": req.Restart})
}

func (s *Server) handleAutoStop(w http.ResponseWriter, _ *http.Request) {
	if s.deps.AutoSeq == nil {
		httpError(w, http.StatusServiceUnavailable, "auto-sequence is not configured")
		return
	}
	s.deps.AutoSeq.Stop()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "stopping"})
}

func (s *Server) handleGetColumns(w http.ResponseWriter, r *http.Request) {
	cols, err := export.LoadColumns(r.Context(), s.deps.KV)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "%v", err)
		return
	}
	keys := make([]string, len(cols))
	for i, c := range cols {
		keys[i] = c.Key
	}
	writeJSON(w, http.StatusOK, map[string][]string{"columns": keys, "available": export.ColumnKeys()})
}

func (s *Server) handlePutColumns(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Columns []string `json:"columns"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<14)).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid request body: %v", err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := export.SaveColumnPrefs(r.Context(), s.deps.KV, req.Columns); err != nil {
		httpError(w, http.StatusBadRequest, "%v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"columns": req.Columns})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(chi.URLParam(r, "format"))
	if err != nil {
		httpError(w, http.StatusNotFound, "%v", err)
		return
	}
	cols, err := export.LoadColumns(r.Context(), s.deps.KV)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "%v", err)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="businesses.%s"`, format))
	if err := export.Write(w, format, s.deps.Records.All(), cols); err != nil {
		zap.L().Error("export failed", zap.String("component", "server"), zap.Error(err))
	}
}

func indexParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	idx, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		httpError(w, http.StatusBadRequest, "index must be an integer")
		return 0, false
	}
	return idx, true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func httpError(w http.ResponseWriter, code int, format string, args ...any) {
	writeJSON(w, code, map[string]string{"error": fmt.Sprintf(format, args...)})
}
