package server

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/maps-harvest/internal/autoseq"
	"github.com/sells-group/maps-harvest/internal/browser"
	"github.com/sells-group/maps-harvest/internal/enrich"
	"github.com/sells-group/maps-harvest/internal/fetcher"
	"github.com/sells-group/maps-harvest/internal/model"
	"github.com/sells-group/maps-harvest/internal/records"
	"github.com/sells-group/maps-harvest/internal/store"
)

type fakePage struct {
	mu    sync.Mutex
	items []model.BusinessRecord
	cur   int
	err   error
	// gate, when set, holds ClickNext until closed.
	gate chan struct{}
}

func (p *fakePage) ClickNext(_ context.Context, index int) (bool, error) {
	if p.gate != nil {
		<-p.gate
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if index >= len(p.items) {
		return false, nil
	}
	p.cur = index
	return true, nil
}

func (p *fakePage) CheckProfileLoaded(context.Context) (bool, error) { return true, nil }

func (p *fakePage) ExtractData(context.Context) (model.BusinessRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return model.BusinessRecord{}, p.err
	}
	if len(p.items) == 0 {
		return model.BusinessRecord{}, nil
	}
	return p.items[p.cur], nil
}

type fakeEnricher struct {
	recs *records.Store
	err  error
}

func (e *fakeEnricher) Apply(ctx context.Context, rec model.BusinessRecord) (bool, error) {
	if e.err != nil {
		return false, e.err
	}
	return e.recs.MergeEnrichmentByID(ctx, rec.ID, model.EnrichmentResult{Emails: []string{"hi@example.com"}})
}

type harness struct {
	srv  *Server
	h    http.Handler
	kv   *store.MemoryStore
	recs *records.Store
	page *fakePage
	enr  *fakeEnricher
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	kv := store.NewMemory()
	recs := records.New(kv)
	page := &fakePage{items: []model.BusinessRecord{
		{Name: "Alpha", Address: "1 Main St", Website: "https://alpha.example"},
		{Name: "Bravo", Address: "2 Main St"},
	}}
	enr := &fakeEnricher{recs: recs}
	ctrl := autoseq.New(page, recs, kv, autoseq.WithSleep(func(ctx context.Context, _ time.Duration) error {
		return ctx.Err()
	}))
	srv := New(context.Background(), Deps{
		Records:  recs,
		KV:       kv,
		Page:     page,
		Enricher: enr,
		AutoSeq:  ctrl,
	})
	return &harness{srv: srv, h: srv.Handler(), kv: kv, recs: recs, page: page, enr: enr}
}

func (h *harness) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.h.ServeHTTP(rec, req)
	return rec
}

func (h *harness) seed(t *testing.T, names ...string) {
	t.Helper()
	for i, n := range names {
		ok, err := h.recs.Add(context.Background(), model.BusinessRecord{
			Name:    n,
			Address: strings.Repeat("x", i+1),
			Website: "https://" + strings.ToLower(n) + ".example",
		})
		require.NoError(t, err)
		require.True(t, ok)
	}
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestListRecords_EmptyIsArray(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodGet, "/records", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestRemoveRecord(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "A", "B", "C")

	rec := h.do(t, http.MethodDelete, "/records/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"removed":true,"count":2}`, rec.Body.String())

	rec = h.do(t, http.MethodDelete, "/records/9", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"removed":false,"count":2}`, rec.Body.String())

	rec = h.do(t, http.MethodDelete, "/records/abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	list := decode[[]model.BusinessRecord](t, h.do(t, http.MethodGet, "/records", ""))
	require.Len(t, list, 2)
	assert.Equal(t, "A", list[0].Name)
	assert.Equal(t, "C", list[1].Name)
}

func TestClearRecords(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "A", "B")

	rec := h.do(t, http.MethodDelete, "/records", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, h.recs.Len())
}

func TestExtract(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/extract", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[struct {
		Accepted bool                 `json:"accepted"`
		Record   model.BusinessRecord `json:"record"`
		Missing  []string             `json:"missing"`
	}](t, rec)
	assert.True(t, body.Accepted)
	assert.Equal(t, "Alpha", body.Record.Name)
	assert.NotEmpty(t, body.Record.ID)
	assert.Contains(t, body.Missing, "phone")

	rec = h.do(t, http.MethodPost, "/extract", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[map[string]any](t, rec)["accepted"].(bool))
	assert.Equal(t, 1, h.recs.Len())
}

func TestExtract_Errors(t *testing.T) {
	h := newHarness(t)
	h.page.err = &browser.ChannelError{Action: browser.ActionExtractData, Err: errors.New("no tab")}
	assert.Equal(t, http.StatusServiceUnavailable, h.do(t, http.MethodPost, "/extract", "").Code)

	h.page.err = nil
	h.page.items = nil
	assert.Equal(t, http.StatusUnprocessableEntity, h.do(t, http.MethodPost, "/extract", "").Code)

	none := New(context.Background(), Deps{Records: h.recs, KV: h.kv})
	rec := httptest.NewRecorder()
	none.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/extract", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestEnrichRecord(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "A")

	rec := h.do(t, http.MethodPost, "/records/0/enrich", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[struct {
		Merged bool                 `json:"merged"`
		Record model.BusinessRecord `json:"record"`
	}](t, rec)
	assert.True(t, body.Merged)
	assert.Equal(t, "hi@example.com", body.Record.Emails)

	assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodPost, "/records/5/enrich", "").Code)
}

func TestEnrichRecord_ErrorCodes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"no website", enrich.ErrNoWebsite, http.StatusUnprocessableEntity},
		{"fetch failed", &fetcher.FetchError{URL: "https://a.example", StatusCode: 404}, http.StatusBadGateway},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.seed(t, "A")
			h.enr.err = tt.err
			assert.Equal(t, tt.code, h.do(t, http.MethodPost, "/records/0/enrich", "").Code)
		})
	}
}

func TestAutoSequence(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/autoseq/start", `{"restart":false}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	h.srv.Wait()

	st := decode[autoseq.Status](t, h.do(t, http.MethodGet, "/autoseq", ""))
	assert.Equal(t, autoseq.Stopped, st.State)
	assert.Equal(t, 2, st.CursorIndex)
	assert.Equal(t, 2, h.recs.Len())

	rec = h.do(t, http.MethodPost, "/autoseq/start", `{"restart":true}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	h.srv.Wait()
	st = decode[autoseq.Status](t, h.do(t, http.MethodGet, "/autoseq", ""))
	assert.Equal(t, 2, st.CursorIndex)
	assert.Equal(t, 2, h.recs.Len())

	assert.Equal(t, http.StatusAccepted, h.do(t, http.MethodPost, "/autoseq/stop", "").Code)
	assert.Equal(t, http.StatusBadRequest, h.do(t, http.MethodPost, "/autoseq/start", `{`).Code)
}

func TestAutoSequence_StopRightAfterStart(t *testing.T) {
	h := newHarness(t)
	h.page.gate = make(chan struct{})

	require.Equal(t, http.StatusAccepted, h.do(t, http.MethodPost, "/autoseq/start", "").Code)
	require.Equal(t, http.StatusAccepted, h.do(t, http.MethodPost, "/autoseq/stop", "").Code)
	close(h.page.gate)
	h.srv.Wait()

	st := decode[autoseq.Status](t, h.do(t, http.MethodGet, "/autoseq", ""))
	assert.Equal(t, autoseq.Stopped, st.State)
	assert.LessOrEqual(t, st.CursorIndex, 1)
	assert.Equal(t, 0, h.recs.Len())
}

func TestColumnsAndExport(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "Acme, Inc")

	rec := h.do(t, http.MethodPut, "/columns", `{"columns":["website","name"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, http.StatusBadRequest, h.do(t, http.MethodPut, "/columns", `{"columns":["bogus"]}`).Code)

	cols := decode[map[string][]string](t, h.do(t, http.MethodGet, "/columns", ""))
	assert.Equal(t, []string{"website", "name"}, cols["columns"])

	rec = h.do(t, http.MethodGet, "/export.csv", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/csv")
	rows, err := csv.NewReader(bytes.NewReader(rec.Body.Bytes())).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Website", "Name"}, {"https://acme, inc.example", "Acme, Inc"}}, rows)

	rec = h.do(t, http.MethodGet, "/export.tsv", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Body.String(), "Website\tName\n"))

	rec = h.do(t, http.MethodGet, "/export.xlsx", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotZero(t, rec.Body.Len())

	assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodGet, "/export.pdf", "").Code)
}

func TestCORS(t *testing.T) {
	kv := store.NewMemory()
	srv := New(context.Background(), Deps{Records: records.New(kv), KV: kv, AllowedOrigins: []string{"https://app.example"}})

	req := httptest.NewRequest(http.MethodOptions, "/records", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", "DELETE")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestUnconfiguredAutoSequence(t *testing.T) {
	kv := store.NewMemory()
	srv := New(context.Background(), Deps{Records: records.New(kv), KV: kv})
	for _, r := range []struct{ method, path string }{
		{http.MethodGet, "/autoseq"},
		{http.MethodPost, "/autoseq/start"},
		{http.MethodPost, "/autoseq/stop"},
		{http.MethodPost, "/records/0/enrich"},
	} {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(r.method, r.path, nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, r.path)
	}
}
