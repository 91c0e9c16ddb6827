// Package export serializes the record table as tab-delimited text, CSV or
// an XLSX workbook, in the user's preferred column order.
package export

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/maps-harvest/internal/model"
	"github.com/sells-group/maps-harvest/internal/store"
)

// Column is one exported field.
type Column struct {
	Key    string
	Header string
	get    func(model.BusinessRecord) string
	set    func(*model.BusinessRecord, string)
}

func socialColumn(key, header string, p model.Platform) Column {
	return Column{
		Key:    key,
		Header: header,
		get:    func(r model.BusinessRecord) string { return r.Social(p) },
		set:    func(r *model.BusinessRecord, v string) { r.SetSocial(p, v) },
	}
}

var catalog = []Column{
	{"name", "Name", func(r model.BusinessRecord) string { return r.Name }, func(r *model.BusinessRecord, v string) { r.Name = v }},
	{"category", "Category", func(r model.BusinessRecord) string { return r.Category }, func(r *model.BusinessRecord, v string) { r.Category = v }},
	{"address", "Address", func(r model.BusinessRecord) string { return r.Address }, func(r *model.BusinessRecord, v string) { r.Address = v }},
	{"phone", "Phone", func(r model.BusinessRecord) string { return r.Phone }, func(r *model.BusinessRecord, v string) { r.Phone = v }},
	{"website", "Website", func(r model.BusinessRecord) string { return r.Website }, func(r *model.BusinessRecord, v string) { r.Website = v }},
	{"rating", "Rating", func(r model.BusinessRecord) string { return r.Rating }, func(r *model.BusinessRecord, v string) { r.Rating = v }},
	{"reviewCount", "Reviews", func(r model.BusinessRecord) string { return r.ReviewCount }, func(r *model.BusinessRecord, v string) { r.ReviewCount = v }},
	{"hours", "Hours", func(r model.BusinessRecord) string { return r.Hours }, func(r *model.BusinessRecord, v string) { r.Hours = v }},
	{"emails", "Emails", func(r model.BusinessRecord) string { return r.Emails }, func(r *model.BusinessRecord, v string) { r.Emails = v }},
	{"webPhones", "Web Phones", func(r model.BusinessRecord) string { return r.WebPhones }, func(r *model.BusinessRecord, v string) { r.WebPhones = v }},
	socialColumn("facebook", "Facebook", model.Facebook),
	socialColumn("instagram", "Instagram", model.Instagram),
	socialColumn("linkedin", "LinkedIn", model.LinkedIn),
	socialColumn("twitter", "Twitter", model.Twitter),
	socialColumn("whatsapp", "WhatsApp", model.WhatsApp),
	socialColumn("telegram", "Telegram", model.Telegram),
	{"placeId", "Place ID", func(r model.BusinessRecord) string { return r.PlaceID }, func(r *model.BusinessRecord, v string) { r.PlaceID = v }},
	{"sourceUrl", "Source URL", func(r model.BusinessRecord) string { return r.SourceURL }, func(r *model.BusinessRecord, v string) { r.SourceURL = v }},
}

// defaultCount is the number of leading catalog columns exported when no
// preference is saved.
const defaultCount = 16

// DefaultColumns returns the base table columns followed by the enrichment
// columns.
func DefaultColumns() []Column {
	return append([]Column(nil), catalog[:defaultCount]...)
}

// ColumnKeys lists every known column key in catalog order.
func ColumnKeys() []string {
	keys := make([]string, len(catalog))
	for i, c := range catalog {
		keys[i] = c.Key
	}
	return keys
}

func lookup(key string) (Column, bool) {
	for _, c := range catalog {
		if strings.EqualFold(c.Key, key) {
			return c, true
		}
	}
	return Column{}, false
}

func byHeader(header string) (Column, bool) {
	header = strings.TrimSpace(header)
	for _, c := range catalog {
		if strings.EqualFold(c.Header, header) || strings.EqualFold(c.Key, header) {
			return c, true
		}
	}
	return Column{}, false
}

// Resolve turns a key list into columns in the given order. Unknown and
// repeated keys are dropped; an empty result falls back to DefaultColumns.
func Resolve(keys []string) []Column {
	seen := make(map[string]bool, len(keys))
	var cols []Column
	for _, k := range keys {
		c, ok := lookup(k)
		if !ok {
			zap.L().Warn("export: unknown column", zap.String("component", "export"), zap.String("key", k))
			continue
		}
		if seen[c.Key] {
			continue
		}
		seen[c.Key] = true
		cols = append(cols, c)
	}
	if len(cols) == 0 {
		return DefaultColumns()
	}
	return cols
}

// LoadColumns resolves the saved column preference.
func LoadColumns(ctx context.Context, kv store.KV) ([]Column, error) {
	var keys []string
	if _, err := store.GetJSON(ctx, kv, model.KeyColumnPrefs, &keys); err != nil {
		return nil, eris.Wrap(err, "export: load column prefs")
	}
	return Resolve(keys), nil
}

// SaveColumnPrefs stores the column order. Every key must be known.
func SaveColumnPrefs(ctx context.Context, kv store.KV, keys []string) error {
	for _, k := range keys {
		if _, ok := lookup(k); !ok {
			return eris.Errorf("export: unknown column %q", k)
		}
	}
	if keys == nil {
		keys = []string{}
	}
	return eris.Wrap(store.SetJSON(ctx, kv, model.KeyColumnPrefs, keys), "export: save column prefs")
}

func headers(cols []Column) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Header
	}
	return out
}

// cell returns a single-line value for the column.
func cell(c Column, r model.BusinessRecord) string {
	if c.Key == "hours" {
		return model.CleanHours(c.get(r))
	}
	return model.CleanText(c.get(r))
}
