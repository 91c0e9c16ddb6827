// Package enrich fetches a business website, mines it for contact details
// and merges the result into the record store.
package enrich

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/maps-harvest/internal/contact"
	"github.com/sells-group/maps-harvest/internal/extract"
	"github.com/sells-group/maps-harvest/internal/fetcher"
	"github.com/sells-group/maps-harvest/internal/model"
	"github.com/sells-group/maps-harvest/internal/records"
	"github.com/sells-group/maps-harvest/internal/resilience"
)

// ErrNoWebsite is returned for a record with no fetchable website. No
// request is made.
var ErrNoWebsite = eris.New("enrich: record has no website")

// Coordinator runs fetch, mine and merge for one record at a time. It never
// retries a failed fetch.
type Coordinator struct {
	fetcher     fetcher.Fetcher
	records     *records.Store
	failures    *resilience.FailureLog
	mx          *MXFilter
	concurrency int
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithFailureLog records fetch failures of tracked runs.
func WithFailureLog(l *resilience.FailureLog) Option {
	return func(c *Coordinator) { c.failures = l }
}

// WithMXFilter drops mined emails whose domain has no MX record.
func WithMXFilter(f *MXFilter) Option {
	return func(c *Coordinator) { c.mx = f }
}

// WithConcurrency bounds concurrent fetches in EnrichAll.
func WithConcurrency(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// New creates a Coordinator merging into recs.
func New(f fetcher.Fetcher, recs *records.Store, opts ...Option) *Coordinator {
	c := &Coordinator{fetcher: f, records: recs, concurrency: 4}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Enrich fetches rec's website and mines it. It returns ErrNoWebsite when
// the record has none, and an error matching fetcher.ErrFetchFailed when the
// fetch fails.
func (c *Coordinator) Enrich(ctx context.Context, rec model.BusinessRecord) (model.EnrichmentResult, error) {
	if !rec.HasWebsite() {
		return model.EnrichmentResult{}, ErrNoWebsite
	}
	target := extract.NormalizeWebsite(rec.Website, "")
	if target == "" {
		return model.EnrichmentResult{}, ErrNoWebsite
	}

	body, err := c.fetcher.Fetch(ctx, target)
	if err != nil {
		return model.EnrichmentResult{}, eris.Wrapf(err, "enrich: %s", rec.Name)
	}

	res := contact.Mine(body, target)
	if c.mx != nil && len(res.Emails) > 0 {
		res.Emails = c.mx.Filter(ctx, res.Emails)
	}
	zap.L().Debug("enrich: mined website",
		zap.String("component", "enrich"),
		zap.String("name", rec.Name),
		zap.String("url", target),
		zap.Int("emails", len(res.Emails)),
		zap.Int("phones", len(res.Phones)),
	)
	return res, nil
}

// Apply enriches rec and merges the result into the store. It reports
// whether a stored record was updated.
func (c *Coordinator) Apply(ctx context.Context, rec model.BusinessRecord) (bool, error) {
	res, err := c.Enrich(ctx, rec)
	if err != nil {
		return false, err
	}
	return c.merge(ctx, rec, res)
}

// ApplyTracked is Apply for bulk runs: fetch failures are added to the
// failure log and a success clears any earlier entry for the record.
func (c *Coordinator) ApplyTracked(ctx context.Context, rec model.BusinessRecord) (bool, error) {
	res, err := c.Enrich(ctx, rec)
	c.Report(ctx, rec, err)
	if err != nil {
		return false, err
	}
	return c.merge(ctx, rec, res)
}

// Report updates the failure log with the outcome of an Enrich call made
// outside ApplyTracked.
func (c *Coordinator) Report(ctx context.Context, rec model.BusinessRecord, err error) {
	if err != nil {
		c.track(ctx, rec, err)
		return
	}
	c.untrack(ctx, rec)
}

func (c *Coordinator) merge(ctx context.Context, rec model.BusinessRecord, res model.EnrichmentResult) (bool, error) {
	if rec.ID != "" {
		return c.records.MergeEnrichmentByID(ctx, rec.ID, res)
	}
	return c.records.MergeEnrichment(ctx, rec.Key(), res)
}

func (c *Coordinator) track(ctx context.Context, rec model.BusinessRecord, err error) {
	if c.failures == nil || !errors.Is(err, fetcher.ErrFetchFailed) {
		return
	}
	if lerr := c.failures.Record(ctx, rec, rec.Website, err); lerr != nil {
		zap.L().Error("enrich: record failure", zap.String("component", "enrich"), zap.Error(lerr))
	}
}

func (c *Coordinator) untrack(ctx context.Context, rec model.BusinessRecord) {
	if c.failures == nil {
		return
	}
	if err := c.failures.Remove(ctx, rec.Key()); err != nil {
		zap.L().Error("enrich: clear failure", zap.String("component", "enrich"), zap.Error(err))
	}
}
