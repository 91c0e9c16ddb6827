package enrich

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/maps-harvest/internal/fetcher"
	"github.com/sells-group/maps-harvest/internal/model"
	"github.com/sells-group/maps-harvest/internal/records"
	"github.com/sells-group/maps-harvest/internal/resilience"
	"github.com/sells-group/maps-harvest/internal/store"
)

type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	errs  map[string]error
	calls []string
	delay time.Duration

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (string, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		m := f.maxInFlight.Load()
		if n <= m || f.maxInFlight.CompareAndSwap(m, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, url)
	if err, ok := f.errs[url]; ok {
		return "", err
	}
	return f.pages[url], nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

const joesSite = `<a href="mailto:hi@joes.example">mail</a> Call (555) 123-4567 <a href="https://facebook.com/joes">fb</a>`

type fixture struct {
	fetch    *fakeFetcher
	recs     *records.Store
	failures *resilience.FailureLog
	coord    *Coordinator
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	kv := store.NewMemory()
	f := &fixture{
		fetch: &fakeFetcher{
			pages: map[string]string{"https://joes.example": joesSite},
			errs: map[string]error{
				"https://down.example": &fetcher.FetchError{
					URL:        "https://down.example",
					StatusCode: 503,
					Err:        resilience.NewTransientError(errors.New("http 503"), 503),
				},
			},
		},
		recs:     records.New(kv),
		failures: resilience.NewFailureLog(kv),
	}
	opts = append([]Option{WithFailureLog(f.failures)}, opts...)
	f.coord = New(f.fetch, f.recs, opts...)
	return f
}

func (f *fixture) add(t *testing.T, rec model.BusinessRecord) model.BusinessRecord {
	t.Helper()
	ok, err := f.recs.Add(context.Background(), rec)
	require.NoError(t, err)
	require.True(t, ok)
	got, _ := f.recs.Find(rec.Key())
	return got
}

func TestEnrich_NoWebsite(t *testing.T) {
	f := newFixture(t)
	for _, w := range []string{"", "-", "  "} {
		_, err := f.coord.Enrich(context.Background(), model.BusinessRecord{Name: "A", Website: w})
		assert.ErrorIs(t, err, ErrNoWebsite, "website %q", w)
	}
	assert.Zero(t, f.fetch.callCount())
}

func TestEnrich_Success(t *testing.T) {
	f := newFixture(t)
	res, err := f.coord.Enrich(context.Background(), model.BusinessRecord{Name: "Joe's", Website: "https://joes.example"})
	require.NoError(t, err)

	assert.Equal(t, []string{"hi@joes.example"}, res.Emails)
	assert.Equal(t, []string{"5551234567"}, res.Phones)
	assert.Equal(t, []string{"https://facebook.com/joes"}, res.Socials[model.Facebook])
}

func TestEnrich_SchemelessWebsite(t *testing.T) {
	f := newFixture(t)
	_, err := f.coord.Enrich(context.Background(), model.BusinessRecord{Name: "Joe's", Website: "joes.example"})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://joes.example"}, f.fetch.calls)
}

func TestEnrich_FetchFailed(t *testing.T) {
	f := newFixture(t)
	_, err := f.coord.Enrich(context.Background(), model.BusinessRecord{Name: "Down", Website: "https://down.example"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, fetcher.ErrFetchFailed))

	var fe *fetcher.FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, 503, fe.StatusCode)
	assert.Equal(t, 1, f.fetch.callCount(), "no retries")
}

func TestApply_MergesIntoStore(t *testing.T) {
	f := newFixture(t)
	rec := f.add(t, model.BusinessRecord{Name: "Joe's", Address: "1 Main", Website: "https://joes.example"})

	ok, err := f.coord.Apply(context.Background(), rec)
	require.NoError(t, err)
	assert.True(t, ok)

	got, _ := f.recs.Find(rec.Key())
	assert.Equal(t, "hi@joes.example", got.Emails)
	assert.Equal(t, "5551234567", got.WebPhones)
	assert.Equal(t, "https://facebook.com/joes", got.Facebook)
}

func TestApply_RecordDeletedMeanwhile(t *testing.T) {
	f := newFixture(t)
	rec := f.add(t, model.BusinessRecord{Name: "Joe's", Address: "1 Main", Website: "https://joes.example"})
	_, err := f.recs.RemoveAt(context.Background(), 0)
	require.NoError(t, err)

	ok, err := f.coord.Apply(context.Background(), rec)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, f.recs.Len())
}

func TestApply_DoesNotTrackFailures(t *testing.T) {
	f := newFixture(t)
	rec := f.add(t, model.BusinessRecord{Name: "Down", Website: "https://down.example"})

	_, err := f.coord.Apply(context.Background(), rec)
	require.Error(t, err)

	list, err := f.failures.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestApplyTracked_RecordsAndClearsFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := f.add(t, model.BusinessRecord{Name: "Flaky", Address: "2 Elm", Website: "https://flaky.example"})

	f.fetch.errs["https://flaky.example"] = &fetcher.FetchError{URL: "https://flaky.example", StatusCode: 500}
	_, err := f.coord.ApplyTracked(ctx, rec)
	require.Error(t, err)

	list, err := f.failures.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "https://flaky.example", list[0].URL)

	delete(f.fetch.errs, "https://flaky.example")
	f.fetch.pages["https://flaky.example"] = joesSite
	ok, err := f.coord.ApplyTracked(ctx, rec)
	require.NoError(t, err)
	assert.True(t, ok)

	list, err = f.failures.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestApplyTracked_NoWebsiteNotTracked(t *testing.T) {
	f := newFixture(t)
	rec := f.add(t, model.BusinessRecord{Name: "Offline"})

	_, err := f.coord.ApplyTracked(context.Background(), rec)
	assert.ErrorIs(t, err, ErrNoWebsite)

	list, err := f.failures.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestEnrichWithMXFilter(t *testing.T) {
	resolver := &fakeResolver{mx: map[string]bool{"joes.example": false}}
	f := newFixture(t, WithMXFilter(NewMXFilter(resolver)))

	res, err := f.coord.Enrich(context.Background(), model.BusinessRecord{Name: "Joe's", Website: "https://joes.example"})
	require.NoError(t, err)
	assert.Empty(t, res.Emails)
	assert.Equal(t, []string{"5551234567"}, res.Phones)
}
