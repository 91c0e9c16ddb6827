// Package model defines the business record, enrichment and auto-sequence
// types shared across the extraction pipeline.
package model

import (
	"regexp"
	"strings"
	"time"
	"unicode"
)

// NoDataMarker is the placeholder a table cell shows for an absent value.
// A website equal to it is treated as empty.
const NoDataMarker = "-"

// BusinessRecord is one extracted business listing.
type BusinessRecord struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Category    string    `json:"category"`
	Address     string    `json:"address"`
	Phone       string    `json:"phone"`
	Website     string    `json:"website"`
	Rating      string    `json:"rating"`
	ReviewCount string    `json:"reviewCount"`
	Hours       string    `json:"hours"`
	PlaceID     string    `json:"placeId"`
	SourceURL   string    `json:"sourceUrl"`
	ExtractedAt time.Time `json:"extractedAt"`

	// Enrichment extension, each a comma-joined list.
	Emails    string `json:"emails,omitempty"`
	WebPhones string `json:"webPhones,omitempty"`
	Facebook  string `json:"facebook,omitempty"`
	Instagram string `json:"instagram,omitempty"`
	LinkedIn  string `json:"linkedin,omitempty"`
	Twitter   string `json:"twitter,omitempty"`
	WhatsApp  string `json:"whatsapp,omitempty"`
	Telegram  string `json:"telegram,omitempty"`
}

// RecordKey is the dedup identity of a record.
type RecordKey struct {
	Name    string
	Address string
}

// Key returns the record's dedup key.
func (r BusinessRecord) Key() RecordKey {
	return RecordKey{Name: r.Name, Address: r.Address}
}

// HasWebsite reports whether the record carries a fetchable website.
func (r BusinessRecord) HasWebsite() bool {
	w := strings.TrimSpace(r.Website)
	return w != "" && w != NoDataMarker
}

// Enriched reports whether any enrichment field is populated.
func (r BusinessRecord) Enriched() bool {
	if r.Emails != "" || r.WebPhones != "" {
		return true
	}
	for _, p := range Platforms {
		if r.Social(p) != "" {
			return true
		}
	}
	return false
}

// MissingFields lists the extracted fields that came back empty. A non-empty
// result is a degraded record, not an error.
func (r BusinessRecord) MissingFields() []string {
	var missing []string
	for _, f := range []struct {
		name  string
		value string
	}{
		{"name", r.Name},
		{"category", r.Category},
		{"address", r.Address},
		{"phone", r.Phone},
		{"website", r.Website},
		{"rating", r.Rating},
		{"reviewCount", r.ReviewCount},
		{"hours", r.Hours},
		{"placeId", r.PlaceID},
	} {
		if f.value == "" {
			missing = append(missing, f.name)
		}
	}
	return missing
}

// Social returns the comma-joined profile links stored for a platform.
func (r BusinessRecord) Social(p Platform) string {
	switch p {
	case Facebook:
		return r.Facebook
	case Instagram:
		return r.Instagram
	case LinkedIn:
		return r.LinkedIn
	case Twitter:
		return r.Twitter
	case WhatsApp:
		return r.WhatsApp
	case Telegram:
		return r.Telegram
	}
	return ""
}

// SetSocial stores the comma-joined profile links for a platform.
func (r *BusinessRecord) SetSocial(p Platform, v string) {
	switch p {
	case Facebook:
		r.Facebook = v
	case Instagram:
		r.Instagram = v
	case LinkedIn:
		r.LinkedIn = v
	case Twitter:
		r.Twitter = v
	case WhatsApp:
		r.WhatsApp = v
	case Telegram:
		r.Telegram = v
	}
}

// ApplyEnrichment overwrites the enrichment extension with res.
func (r *BusinessRecord) ApplyEnrichment(res EnrichmentResult) {
	r.Emails = JoinList(res.Emails)
	r.WebPhones = JoinList(res.Phones)
	for _, p := range Platforms {
		r.SetSocial(p, JoinList(res.Socials[p]))
	}
}

// Sanitize collapses newlines in every string field. Hours keep their line
// structure as "; " separators.
func (r *BusinessRecord) Sanitize() {
	r.Hours = CleanHours(r.Hours)
	for _, f := range []*string{
		&r.ID, &r.Name, &r.Category, &r.Address, &r.Phone, &r.Website,
		&r.Rating, &r.ReviewCount, &r.PlaceID, &r.SourceURL,
		&r.Emails, &r.WebPhones, &r.Facebook, &r.Instagram, &r.LinkedIn,
		&r.Twitter, &r.WhatsApp, &r.Telegram,
	} {
		*f = CleanText(*f)
	}
}

var (
	newlineRe  = regexp.MustCompile(`[\r\n]+`)
	spaceRe    = regexp.MustCompile(`[ \t\f\v\x{00a0}]+`)
	hoursSepRe = regexp.MustCompile(`(\s*;\s*)+`)
)

// CleanText replaces line breaks with a single space, drops private-use icon
// glyphs, collapses runs of whitespace and trims.
func CleanText(s string) string {
	if s == "" {
		return ""
	}
	s = strings.Map(func(r rune) rune {
		if unicode.Is(unicode.Co, r) {
			return -1
		}
		return r
	}, s)
	s = newlineRe.ReplaceAllString(s, " ")
	s = spaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// CleanHours turns a multi-line opening-hours block into "; "-separated text.
func CleanHours(s string) string {
	if s == "" {
		return ""
	}
	s = newlineRe.ReplaceAllString(s, "; ")
	s = CleanText(s)
	s = hoursSepRe.ReplaceAllString(s, "; ")
	return strings.Trim(s, "; ")
}

// JoinList joins values with ", ".
func JoinList(vals []string) string {
	return strings.Join(vals, ", ")
}

// SplitList is the inverse of JoinList.
func SplitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
