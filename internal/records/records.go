// Package records holds the ordered, deduplicated collection of extracted
// businesses and writes it through to the key-value store after every
// mutation.
package records

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/maps-harvest/internal/model"
	"github.com/sells-group/maps-harvest/internal/store"
)

// ErrMissingName rejects a record without a name; such a page was not a
// place profile.
var ErrMissingName = eris.New("records: record has no name")

// Store is the record collection. Mutations are serialized; readers get
// copies.
type Store struct {
	mu      sync.RWMutex
	kv      store.KV
	records []model.BusinessRecord
	newID   func() string
}

// New creates an empty Store backed by kv.
func New(kv store.KV) *Store {
	return &Store{
		kv:    kv,
		newID: func() string { return uuid.New().String() },
	}
}

// Load creates a Store populated from the records persisted in kv.
func Load(ctx context.Context, kv store.KV) (*Store, error) {
	s := New(kv)
	var recs []model.BusinessRecord
	if _, err := store.GetJSON(ctx, kv, model.KeyRecords, &recs); err != nil {
		return nil, eris.Wrap(err, "records: load")
	}
	for i := range recs {
		if recs[i].ID == "" {
			recs[i].ID = s.newID()
		}
	}
	s.records = recs
	zap.L().Debug("records: loaded", zap.String("component", "records"), zap.Int("count", len(recs)))
	return s, nil
}

// Add appends rec unless a record with the same name and address already
// exists. It reports whether the record was accepted.
func (s *Store) Add(ctx context.Context, rec model.BusinessRecord) (bool, error) {
	rec.Sanitize()
	if rec.Name == "" {
		return false, ErrMissingName
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexOf(rec.Key()) >= 0 {
		zap.L().Debug("records: duplicate rejected",
			zap.String("component", "records"),
			zap.String("name", rec.Name),
			zap.String("address", rec.Address),
		)
		return false, nil
	}
	if rec.ID == "" {
		rec.ID = s.newID()
	}

	s.records = append(s.records, rec)
	if err := s.persist(ctx); err != nil {
		s.records = s.records[:len(s.records)-1]
		return false, err
	}
	return true, nil
}

// MergeEnrichment overwrites the enrichment fields of the record with key.
// A missing record is logged and reported as false; the user may have
// deleted it while the fetch was in flight.
func (s *Store) MergeEnrichment(ctx context.Context, key model.RecordKey, res model.EnrichmentResult) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.merge(ctx, s.indexOf(key), res, zap.String("name", key.Name))
}

// MergeEnrichmentByID is MergeEnrichment addressed by record id.
func (s *Store) MergeEnrichmentByID(ctx context.Context, id string, res model.EnrichmentResult) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := -1
	for i := range s.records {
		if s.records[i].ID == id {
			idx = i
			break
		}
	}
	return s.merge(ctx, idx, res, zap.String("id", id))
}

func (s *Store) merge(ctx context.Context, idx int, res model.EnrichmentResult, ident zap.Field) (bool, error) {
	if idx < 0 {
		zap.L().Warn("records: enrichment target no longer present",
			zap.String("component", "records"), ident)
		return false, nil
	}

	prev := s.records[idx]
	s.records[idx].ApplyEnrichment(res)
	s.records[idx].Sanitize()
	if err := s.persist(ctx); err != nil {
		s.records[idx] = prev
		return false, err
	}
	return true, nil
}

// RemoveAt deletes the record at index. An out-of-range index is a no-op
// reported as false.
func (s *Store) RemoveAt(ctx context.Context, index int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.records) {
		return false, nil
	}

	prev := s.records
	next := make([]model.BusinessRecord, 0, len(prev)-1)
	next = append(next, prev[:index]...)
	next = append(next, prev[index+1:]...)
	s.records = next
	if err := s.persist(ctx); err != nil {
		s.records = prev
		return false, err
	}
	return true, nil
}

// Clear deletes every record.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.records
	s.records = nil
	if err := s.persist(ctx); err != nil {
		s.records = prev
		return err
	}
	return nil
}

// All returns a copy of the records in insertion order.
func (s *Store) All() []model.BusinessRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.BusinessRecord, len(s.records))
	copy(out, s.records)
	return out
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Get returns the record at index.
func (s *Store) Get(index int) (model.BusinessRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if index < 0 || index >= len(s.records) {
		return model.BusinessRecord{}, false
	}
	return s.records[index], true
}

// Find returns the record with key.
func (s *Store) Find(key model.RecordKey) (model.BusinessRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexOf(key); i >= 0 {
		return s.records[i], true
	}
	return model.BusinessRecord{}, false
}

func (s *Store) indexOf(key model.RecordKey) int {
	for i := range s.records {
		if s.records[i].Key() == key {
			return i
		}
	}
	return -1
}

func (s *Store) persist(ctx context.Context) error {
	recs := s.records
	if recs == nil {
		recs = []model.BusinessRecord{}
	}
	return eris.Wrap(store.SetJSON(ctx, s.kv, model.KeyRecords, recs), "records: persist")
}
