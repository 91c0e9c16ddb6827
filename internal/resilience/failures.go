package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/maps-harvest/internal/model"
	"github.com/sells-group/maps-harvest/internal/store"
)

// Failure is one website that could not be fetched during a bulk run.
type Failure struct {
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	URL       string    `json:"url"`
	Error     string    `json:"error"`
	ErrorType ErrorType `json:"errorType"`
	Attempts  int       `json:"attempts"`
	FailedAt  time.Time `json:"failedAt"`
}

// Key returns the dedup key of the record the failure belongs to.
func (f Failure) Key() model.RecordKey {
	return model.RecordKey{Name: f.Name, Address: f.Address}
}

// FailureLog is the persisted dead-letter list of enrichment fetch failures,
// stored under model.KeyEnrichFailures. One entry is kept per record.
type FailureLog struct {
	mu  sync.Mutex
	kv  store.KV
	now func() time.Time
}

// NewFailureLog creates a FailureLog backed by kv.
func NewFailureLog(kv store.KV) *FailureLog {
	return &FailureLog{kv: kv, now: time.Now}
}

// Record adds or refreshes the entry for rec.
func (l *FailureLog) Record(ctx context.Context, rec model.BusinessRecord, url string, cause error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	list, err := l.load(ctx)
	if err != nil {
		return err
	}

	entry := Failure{
		Name:      rec.Name,
		Address:   rec.Address,
		URL:       url,
		ErrorType: ClassifyError(cause),
		Attempts:  1,
		FailedAt:  l.now().UTC(),
	}
	if cause != nil {
		entry.Error = cause.Error()
	}

	replaced := false
	for i := range list {
		if list[i].Key() == rec.Key() {
			entry.Attempts = list[i].Attempts + 1
			list[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		list = append(list, entry)
	}

	zap.L().Warn("enrich: recorded fetch failure",
		zap.String("component", "failures"),
		zap.String("name", rec.Name),
		zap.String("url", url),
		zap.String("error_type", string(entry.ErrorType)),
		zap.Int("attempts", entry.Attempts),
	)
	return l.save(ctx, list)
}

// List returns the current entries in insertion order.
func (l *FailureLog) List(ctx context.Context) ([]Failure, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.load(ctx)
}

// Remove drops the entry for key. Removing an unknown key is a no-op.
func (l *FailureLog) Remove(ctx context.Context, key model.RecordKey) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	list, err := l.load(ctx)
	if err != nil {
		return err
	}
	out := list[:0]
	for _, f := range list {
		if f.Key() != key {
			out = append(out, f)
		}
	}
	if len(out) == len(list) {
		return nil
	}
	return l.save(ctx, out)
}

// Clear removes every entry.
func (l *FailureLog) Clear(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.save(ctx, []Failure{})
}

func (l *FailureLog) load(ctx context.Context) ([]Failure, error) {
	var list []Failure
	if _, err := store.GetJSON(ctx, l.kv, model.KeyEnrichFailures, &list); err != nil {
		return nil, eris.Wrap(err, "failures: load")
	}
	return list, nil
}

func (l *FailureLog) save(ctx context.Context, list []Failure) error {
	return eris.Wrap(store.SetJSON(ctx, l.kv, model.KeyEnrichFailures, list), "failures: save")
}
