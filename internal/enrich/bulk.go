package enrich

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/maps-harvest/internal/model"
)

// Summary counts the outcomes of a bulk run. Attempted counts fetches made;
// records without a website are only counted in NoWebsite.
type Summary struct {
	Attempted int `json:"attempted"`
	Merged    int `json:"merged"`
	NoWebsite int `json:"noWebsite"`
	Failed    int `json:"failed"`
}

type outcome struct {
	res model.EnrichmentResult
	err error
}

// EnrichAll enriches recs with up to the configured number of concurrent
// fetches. Merges and failure bookkeeping happen afterwards, one at a time,
// in input order.
func (c *Coordinator) EnrichAll(ctx context.Context, recs []model.BusinessRecord) (Summary, error) {
	results := make([]outcome, len(recs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, rec := range recs {
		g.Go(func() error {
			res, err := c.Enrich(gctx, rec)
			results[i] = outcome{res: res, err: err}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return Summary{}, eris.Wrap(err, "enrich: bulk run cancelled")
	}

	var sum Summary
	for i, rec := range recs {
		o := results[i]
		if errors.Is(o.err, ErrNoWebsite) {
			sum.NoWebsite++
			continue
		}
		sum.Attempted++
		if o.err != nil {
			sum.Failed++
			c.track(ctx, rec, o.err)
			zap.L().Warn("enrich: fetch failed",
				zap.String("component", "enrich"),
				zap.String("name", rec.Name),
				zap.Error(o.err),
			)
			continue
		}

		c.untrack(ctx, rec)
		ok, err := c.merge(ctx, rec, o.res)
		if err != nil {
			return sum, err
		}
		if ok {
			sum.Merged++
		}
	}

	zap.L().Info("enrich: bulk run complete",
		zap.String("component", "enrich"),
		zap.Int("attempted", sum.Attempted),
		zap.Int("merged", sum.Merged),
		zap.Int("failed", sum.Failed),
	)
	return sum, nil
}

// Pending returns the stored records with a website and no enrichment yet.
func (c *Coordinator) Pending() []model.BusinessRecord {
	var out []model.BusinessRecord
	for _, r := range c.records.All() {
		if r.HasWebsite() && !r.Enriched() {
			out = append(out, r)
		}
	}
	return out
}

// RetryFailed re-attempts every entry in the failure log exactly once.
// Entries whose record has been deleted are dropped.
func (c *Coordinator) RetryFailed(ctx context.Context) (Summary, error) {
	if c.failures == nil {
		return Summary{}, eris.New("enrich: no failure log configured")
	}
	list, err := c.failures.List(ctx)
	if err != nil {
		return Summary{}, err
	}

	var recs []model.BusinessRecord
	for _, f := range list {
		rec, ok := c.records.Find(f.Key())
		if !ok {
			if err := c.failures.Remove(ctx, f.Key()); err != nil {
				return Summary{}, err
			}
			continue
		}
		recs = append(recs, rec)
	}
	return c.EnrichAll(ctx, recs)
}
