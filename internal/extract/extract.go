// Package extract pulls a best-effort business record out of a rendered map
// place page. Every field is looked up independently through an ordered list
// of selectors so that a layout change only blanks the fields it touches.
package extract

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/sells-group/maps-harvest/internal/model"
)

// Page is the document context handed to the extractor: the rendered markup
// of the map page and the URL it was served from.
type Page struct {
	URL string
	doc *goquery.Document
}

// NewPage parses markup into a Page. Unparseable markup yields an empty page
// rather than an error.
func NewPage(markup, pageURL string) *Page {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		zap.L().Debug("extract: parse markup", zap.Error(err))
		doc, _ = goquery.NewDocumentFromReader(strings.NewReader(""))
	}
	return &Page{URL: pageURL, doc: doc}
}

// NewPageFromDocument wraps an already parsed document.
func NewPageFromDocument(doc *goquery.Document, pageURL string) *Page {
	return &Page{URL: pageURL, doc: doc}
}

// Extractor turns a Page into a BusinessRecord.
type Extractor struct {
	sel    Selectors
	policy PhonePolicy
	now    func() time.Time
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithSelectors replaces the default selector set.
func WithSelectors(sel Selectors) Option {
	return func(e *Extractor) { e.sel = sel }
}

// WithPhonePolicy sets how phone digits are normalized.
func WithPhonePolicy(p PhonePolicy) Option {
	return func(e *Extractor) { e.policy = p }
}

// WithClock overrides the extraction timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Extractor) { e.now = now }
}

// New creates an Extractor with the default selectors and the local10 phone
// policy.
func New(opts ...Option) *Extractor {
	e := &Extractor{
		sel:    DefaultSelectors(),
		policy: PhoneLocal10,
		now:    time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Extract reads every field it can find. It never panics and never returns
// an error; a field whose selectors all miss is left empty. A record with an
// empty Name means the page was not a place profile.
func (e *Extractor) Extract(p *Page) model.BusinessRecord {
	var rec model.BusinessRecord
	if p == nil {
		return rec
	}
	rec.SourceURL = p.URL
	rec.ExtractedAt = e.now().UTC()
	if p.doc == nil {
		return rec
	}

	var nameSel *goquery.Selection
	rec.Name = guard("name", func() string {
		var name string
		nameSel, name = e.locateName(p.doc)
		return name
	})

	scope := e.detailPane(p.doc, nameSel)

	rec.Category = guard("category", func() string {
		return firstValue(scope, e.sel.Category, stripLabel)
	})
	rec.Address = guard("address", func() string {
		return firstValue(scope, e.sel.Address, stripLabel)
	})
	rec.Phone = guard("phone", func() string {
		return firstValue(scope, e.sel.Phone, func(v string) string {
			return NormalizePhone(v, e.policy)
		})
	})
	rec.Website = guard("website", func() string {
		return firstValue(scope, e.sel.Website, func(v string) string {
			return NormalizeWebsite(v, p.URL)
		})
	})

	stats := guard("stats", func() string {
		return firstValue(scope, e.sel.Stats, model.CleanText)
	})
	rec.Rating = guard("rating", func() string {
		if r := ParseRating(stats); r != "" {
			return r
		}
		return firstValue(scope, e.sel.Rating, ParseRating)
	})
	rec.ReviewCount = guard("reviewCount", func() string {
		if c := ParseReviewCount(stats); c != "" {
			return c
		}
		return firstValue(scope, e.sel.Reviews, ParseReviewCount)
	})
	rec.Hours = guard("hours", func() string {
		return firstValue(scope, e.sel.Hours, cleanHours)
	})
	rec.PlaceID = guard("placeId", func() string {
		return e.placeID(p, scope, rec.Name)
	})

	rec.Sanitize()
	return rec
}

// guard runs a single field lookup, converting a panic into an empty value.
func guard(field string, fn func() string) (v string) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Debug("extract: field lookup panicked",
				zap.String("field", field),
				zap.String("panic", fmt.Sprint(r)),
			)
			v = ""
		}
	}()
	return fn()
}

func (e *Extractor) locateName(doc *goquery.Document) (*goquery.Selection, string) {
	for _, entry := range e.sel.Name {
		css, _ := splitEntry(entry)
		var found *goquery.Selection
		var name string
		doc.Find(css).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if t := model.CleanText(innerText(s)); t != "" {
				found, name = s, t
				return false
			}
			return true
		})
		if found != nil {
			return found, name
		}
	}
	return nil, ""
}

// detailPane returns the container all other lookups are confined to: the
// nearest ancestor of the name element matching a detail-pane selector, or
// failing that the nearest ancestor holding a contact control. Without a
// name element the whole document is used; such a record is rejected
// downstream anyway.
func (e *Extractor) detailPane(doc *goquery.Document, nameSel *goquery.Selection) *goquery.Selection {
	if nameSel == nil || nameSel.Length() == 0 {
		return doc.Selection
	}
	for _, entry := range e.sel.DetailPane {
		css, _ := splitEntry(entry)
		if pane := nameSel.Closest(css); pane.Length() > 0 {
			return pane.First()
		}
	}

	var controls []string
	for _, list := range [][]string{e.sel.Address, e.sel.Phone, e.sel.Website} {
		for _, entry := range list {
			css, _ := splitEntry(entry)
			controls = append(controls, css)
		}
	}
	probe := strings.Join(controls, ", ")

	var pane *goquery.Selection
	nameSel.Parents().EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if s.Find(probe).Length() > 0 {
			pane = s
			return false
		}
		return true
	})
	if pane != nil {
		return pane
	}
	return nameSel.Parent()
}

var attrNameRe = regexp.MustCompile(`^[A-Za-z_:][-A-Za-z0-9_:.]*$`)

// splitEntry separates `selector@attr` into its parts.
func splitEntry(entry string) (css, attr string) {
	if i := strings.LastIndex(entry, "@"); i > 0 && attrNameRe.MatchString(entry[i+1:]) {
		return entry[:i], entry[i+1:]
	}
	return entry, ""
}

// firstValue walks the selector list and returns the first non-empty value
// after clean has been applied.
func firstValue(scope *goquery.Selection, entries []string, clean func(string) string) string {
	for _, entry := range entries {
		css, attr := splitEntry(entry)
		var out string
		scope.Find(css).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			var raw string
			if attr != "" {
				raw, _ = s.Attr(attr)
			} else {
				raw = innerText(s)
			}
			if v := clean(raw); v != "" {
				out = v
				return false
			}
			return true
		})
		if out != "" {
			return out
		}
	}
	return ""
}

var blockTags = map[string]bool{
	"div": true, "p": true, "tr": true, "li": true, "br": true,
	"table": true, "tbody": true, "thead": true, "ul": true, "ol": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
}

// innerText renders the selection's text with line breaks after block
// elements, approximating what a browser reports as innerText.
func innerText(s *goquery.Selection) string {
	var b strings.Builder
	for _, n := range s.Nodes {
		writeText(&b, n)
	}
	return b.String()
}

func writeText(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
	case html.ElementNode:
		switch n.Data {
		case "script", "style", "noscript":
			return
		case "td", "th":
			b.WriteByte(' ')
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeText(b, c)
	}
	if n.Type == html.ElementNode && blockTags[n.Data] {
		b.WriteByte('\n')
	}
}

var labelRe = regexp.MustCompile(`(?i)^\s*(address|phone|website|category|hours)\s*:\s*`)

func stripLabel(v string) string {
	return model.CleanText(labelRe.ReplaceAllString(model.CleanText(v), ""))
}

// Hours labels come with or without a colon ("Hours: Monday ..." or
// "Hours Monday ...").
var hoursLabelRe = regexp.MustCompile(`(?i)^\s*(opening\s+)?hours\b\s*:?\s*`)

var hoursNoiseRe = regexp.MustCompile(`(?i)[.;\s]*(hide open hours for the week|copy open hours|suggest new hours)[.\s]*`)

func cleanHours(v string) string {
	v = hoursNoiseRe.ReplaceAllString(v, "\n")
	v = hoursLabelRe.ReplaceAllString(strings.TrimSpace(v), "")
	return model.CleanHours(v)
}
