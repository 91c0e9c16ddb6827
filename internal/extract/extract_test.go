package extract

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const placeURL = "https://www.google.com/maps/place/Joe's+Pizza/@39.78,-89.65,17z/data=!3m1!4b1"

// placeHTML mimics a rendered place page: a results feed on the left and the
// detail pane for the focused listing.
const placeHTML = `<html><body>
<div role="feed">
  <div class="Nv2PK">
    <a class="hfpxzc" aria-label="Other Cafe" href="/maps/place/Other+Cafe"></a>
    <button data-item-id="phone:tel:+19998887777">+1 999-888-7777</button>
    <button data-item-id="address">9 Other Rd</button>
  </div>
</div>
<div role="main" aria-label="Joe's Pizza">
  <h1 class="DUwDvf">Joe's
 Pizza</h1>
  <div class="F7nice"><span>4,5</span><span>(1,234)</span></div>
  <button class="DqE26">Pizza restaurant</button>
  <button data-item-id="address" aria-label="Address: 123 Main St, Springfield, IL 62701">&#xe0c8; 123 Main St,
 Springfield, IL 62701</button>
  <a data-item-id="authority" href="https://www.google.com/url?q=https://joespizza.example.com/&amp;sa=D">joespizza.example.com</a>
  <button data-item-id="phone:tel:+15551234567">+1 (555) 123-4567</button>
  <div aria-label="Monday, 11 AM to 10 PM; Tuesday, 11 AM to 10 PM. Hide open hours for the week"></div>
  <button data-value="Share" data-href="https://maps.example/?q=place_id:ChIJN1t_tDeuEmsRUsoyG83frY4">Share</button>
</div>
</body></html>`

func fixedClock() time.Time {
	return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func TestExtract_PrimarySelectors(t *testing.T) {
	e := New(WithClock(fixedClock))
	rec := e.Extract(NewPage(placeHTML, placeURL))

	assert.Equal(t, "Joe's Pizza", rec.Name)
	assert.Equal(t, "Pizza restaurant", rec.Category)
	assert.Equal(t, "123 Main St, Springfield, IL 62701", rec.Address)
	assert.Equal(t, "5551234567", rec.Phone)
	assert.Equal(t, "https://joespizza.example.com/", rec.Website)
	assert.Equal(t, "4.5", rec.Rating)
	assert.Equal(t, "1234", rec.ReviewCount)
	assert.Equal(t, "Monday, 11 AM to 10 PM; Tuesday, 11 AM to 10 PM", rec.Hours)
	assert.Equal(t, "ChIJN1t_tDeuEmsRUsoyG83frY4", rec.PlaceID)
	assert.Equal(t, placeURL, rec.SourceURL)
	assert.Equal(t, fixedClock(), rec.ExtractedAt)
	assert.Empty(t, rec.MissingFields())
}

func TestExtract_ScopedToDetailPane(t *testing.T) {
	// The feed entry is earlier in the document; its phone and address must
	// not bleed into the focused record.
	rec := New().Extract(NewPage(placeHTML, placeURL))
	assert.NotEqual(t, "9998887777", rec.Phone)
	assert.NotEqual(t, "9 Other Rd", rec.Address)
}

func TestExtract_SecondarySelectors(t *testing.T) {
	markup := `<html><body><div role="main">
  <h1>Corner Cafe</h1>
  <button aria-label="Address: 9 Elm St, Leeds">x</button>
  <button aria-label="Phone: +44 20 7946 0958">x</button>
  <a aria-label="Website: cornercafe.example" href="cornercafe.example/menu">site</a>
  <span role="img" aria-label="4,2 stars"></span>
  <span aria-label="87 reviews"></span>
  <table class="eKjh9c"><tr><td>Mon</td><td>9-5</td></tr><tr><td>Tue</td><td>9-5</td></tr></table>
</div></body></html>`

	rec := New().Extract(NewPage(markup, "https://www.google.com/maps/place/Corner+Cafe"))

	assert.Equal(t, "Corner Cafe", rec.Name)
	assert.Equal(t, "9 Elm St, Leeds", rec.Address)
	assert.Equal(t, "2079460958", rec.Phone)
	assert.Equal(t, "https://cornercafe.example/menu", rec.Website)
	assert.Equal(t, "4.2", rec.Rating)
	assert.Equal(t, "87", rec.ReviewCount)
	assert.Equal(t, "Mon 9-5; Tue 9-5", rec.Hours)
	assert.Empty(t, rec.Category)
	assert.Empty(t, rec.PlaceID)
}

func TestExtract_PhonePolicyAllDigits(t *testing.T) {
	rec := New(WithPhonePolicy(PhoneAllDigits)).Extract(NewPage(placeHTML, placeURL))
	assert.Equal(t, "15551234567", rec.Phone)
}

func TestExtract_MissingElementsYieldEmptyFields(t *testing.T) {
	inputs := []string{
		"",
		"<html>",
		"<div role=\"main\"><h1 class=\"DUwDvf\"></h1></div>",
		"<<<>>>not html at all",
		strings.Repeat("<div>", 500),
		`<div role="main"><h1 class="DUwDvf">Only Name</h1></div>`,
	}
	e := New()
	for _, in := range inputs {
		assert.NotPanics(t, func() {
			rec := e.Extract(NewPage(in, "https://www.google.com/maps"))
			assert.Empty(t, rec.Phone)
			assert.Empty(t, rec.Website)
			assert.Empty(t, rec.Rating)
		}, "input %q", in)
	}

	rec := e.Extract(NewPage(inputs[5], ""))
	assert.Equal(t, "Only Name", rec.Name)
	assert.Contains(t, rec.MissingFields(), "address")
}

func TestExtract_NilPage(t *testing.T) {
	assert.NotPanics(t, func() {
		rec := New().Extract(nil)
		assert.Empty(t, rec.Name)
	})
}

func TestExtract_InvalidSelectorDoesNotBlankOtherFields(t *testing.T) {
	sel := DefaultSelectors()
	sel.Category = []string{`button[[[`}
	rec := New(WithSelectors(sel)).Extract(NewPage(placeHTML, placeURL))

	assert.Empty(t, rec.Category)
	assert.Equal(t, "Joe's Pizza", rec.Name)
	assert.Equal(t, "5551234567", rec.Phone)
}

func TestExtract_NoNewlinesInAnyField(t *testing.T) {
	markup := `<div role="main"><h1 class="DUwDvf">Multi
Line
Name</h1><button class="DqE26">Cat
egory</button><div aria-label="Hours:
Mon 9-5
Tue 9-5"></div></div>`
	rec := New().Extract(NewPage(markup, "https://example.com/\n"))

	for field, v := range map[string]string{
		"name": rec.Name, "category": rec.Category, "address": rec.Address,
		"phone": rec.Phone, "website": rec.Website, "rating": rec.Rating,
		"reviewCount": rec.ReviewCount, "hours": rec.Hours, "placeId": rec.PlaceID,
		"sourceUrl": rec.SourceURL,
	} {
		assert.NotContains(t, v, "\n", field)
		assert.NotContains(t, v, "\r", field)
	}
	assert.Equal(t, "Multi Line Name", rec.Name)
	assert.Equal(t, "Mon 9-5; Tue 9-5", rec.Hours)
}

func TestExtract_PlaceIDFromURL(t *testing.T) {
	markup := `<div role="main"><h1 class="DUwDvf">Blue Bottle Coffee</h1></div>`
	url := "https://www.google.com/maps/place/Blue+Bottle+Coffee/@37.7,-122.4,17z/data=!4m6!3m5!19sChIJN1t_tDeuEmsRUsoyG83frY4"

	rec := New().Extract(NewPage(markup, url))
	assert.Equal(t, "ChIJN1t_tDeuEmsRUsoyG83frY4", rec.PlaceID)
}

func TestExtract_PlaceIDIgnoresStaleURL(t *testing.T) {
	markup := `<div role="main"><h1 class="DUwDvf">Blue Bottle Coffee</h1></div>`
	url := "https://www.google.com/maps/place/Other+Cafe/data=!19sChIJN1t_tDeuEmsRUsoyG83frY4"

	rec := New().Extract(NewPage(markup, url))
	assert.Empty(t, rec.PlaceID)
}

func TestExtract_PlaceIDFromMarkupScan(t *testing.T) {
	markup := `<div role="main"><h1 class="DUwDvf">Blue Bottle Coffee</h1>
<script>window.APP={"pid":"ChIJ2eUgeAK6j4ARbn5u_wAGqWA"}</script></div>`

	rec := New().Extract(NewPage(markup, "https://www.google.com/maps"))
	assert.Equal(t, "ChIJ2eUgeAK6j4ARbn5u_wAGqWA", rec.PlaceID)
}

func TestExtract_PlaceIDFromReviewControl(t *testing.T) {
	markup := `<div role="main"><h1 class="DUwDvf">Blue Bottle Coffee</h1>
<button jsaction="pane.reviewChart.moreReviews" data-pid="ChIJ2eUgeAK6j4ARbn5u_wAGqWA">More reviews</button></div>`

	rec := New().Extract(NewPage(markup, ""))
	assert.Equal(t, "ChIJ2eUgeAK6j4ARbn5u_wAGqWA", rec.PlaceID)
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		raw    string
		policy PhonePolicy
		want   string
	}{
		{"+1 (555) 123-4567", PhoneLocal10, "5551234567"},
		{"+44 1234 567 8901", PhoneLocal10, "2345678901"},
		{"+44 1234 567 8901", PhoneAllDigits, "4412345678901"},
		{"(555) 123-4567", PhoneLocal10, "5551234567"},
		{"123-4567", PhoneLocal10, "1234567"},
		{"call us", PhoneLocal10, ""},
		{"phone:tel:+15551234567", PhoneLocal10, "5551234567"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizePhone(tt.raw, tt.policy), "raw %q policy %s", tt.raw, tt.policy)
	}
}

func TestParsePhonePolicy(t *testing.T) {
	p, err := ParsePhonePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PhoneLocal10, p)

	p, err = ParsePhonePolicy("ALL")
	require.NoError(t, err)
	assert.Equal(t, PhoneAllDigits, p)

	_, err = ParsePhonePolicy("e164")
	assert.Error(t, err)
}

func TestCleanHours_Label(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Hours: Mon 9-5\nTue 9-5", "Mon 9-5; Tue 9-5"},
		{"Hours Monday 9-5; Tuesday 9-5", "Monday 9-5; Tuesday 9-5"},
		{"hours:Monday 9-5", "Monday 9-5"},
		{"Opening hours Monday 9-5", "Monday 9-5"},
		{"Monday 9-5; Tuesday 9-5", "Monday 9-5; Tuesday 9-5"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, cleanHours(tt.in), "input %q", tt.in)
	}
}

func TestParseRating(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"4,5 stars", "4.5"},
		{"4.5 stars", "4.5"},
		{"4.5(1,234)", "4.5"},
		{"4.7 · 1,234 reviews", "4.7"},
		{"1,234 reviews", ""},
		{"(1,234)", ""},
		{"5 stars", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseRating(tt.in), "input %q", tt.in)
	}
}

func TestParseReviewCount(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"4.5(1,234)", "1234"},
		{"4,5 (1.234)", "1234"},
		{"1,234 reviews", "1234"},
		{"1 review", "1"},
		{"4.5 stars", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseReviewCount(tt.in), "input %q", tt.in)
	}
}

func TestNormalizeWebsite(t *testing.T) {
	page := "https://www.google.com/maps/place/X"
	tests := []struct {
		in   string
		want string
	}{
		{"https://biz.example/", "https://biz.example/"},
		{"biz.example", "https://biz.example"},
		{"//biz.example/a", "https://biz.example/a"},
		{"/url?q=https://biz.example/contact&sa=U", "https://biz.example/contact"},
		{"https://www.google.com/url?q=http://biz.example", "http://biz.example"},
		{"mailto:a@b.com", ""},
		{"javascript:void(0)", ""},
		{"-", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeWebsite(tt.in, page), "input %q", tt.in)
	}
}

func TestURLMatchesName(t *testing.T) {
	assert.True(t, urlMatchesName("https://www.google.com/maps/place/Joe's+Pizza/@1,2", "Joe's Pizza"))
	assert.True(t, urlMatchesName("https://www.google.com/maps/place/Caf%C3%A9+Rouge/", "Café Rouge"))
	assert.False(t, urlMatchesName("https://www.google.com/maps/place/Other/", "Joe's Pizza"))
	assert.False(t, urlMatchesName("https://www.google.com/maps/search/pizza", "Joe's Pizza"))
	assert.False(t, urlMatchesName("https://www.google.com/maps/place/Joe", ""))
}

func TestLoadSelectors(t *testing.T) {
	sel, err := LoadSelectors("")
	require.NoError(t, err)
	assert.Equal(t, DefaultSelectors(), sel)

	path := filepath.Join(t.TempDir(), "selectors.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name:\n  - h1.newTitle\nphone:\n  - span.tel\n"), 0o644))

	sel, err = LoadSelectors(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"h1.newTitle"}, sel.Name)
	assert.Equal(t, []string{"span.tel"}, sel.Phone)
	assert.Equal(t, DefaultSelectors().Address, sel.Address)

	rec := New(WithSelectors(sel)).Extract(NewPage(`<div role="main"><h1 class="newTitle">New</h1><span class="tel">555 123 4567</span></div>`, ""))
	assert.Equal(t, "New", rec.Name)
	assert.Equal(t, "5551234567", rec.Phone)

	_, err = LoadSelectors(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestSplitEntry(t *testing.T) {
	css, attr := splitEntry(`a[data-item-id="authority"]@href`)
	assert.Equal(t, `a[data-item-id="authority"]`, css)
	assert.Equal(t, "href", attr)

	css, attr = splitEntry(`button.DqE26`)
	assert.Equal(t, "button.DqE26", css)
	assert.Empty(t, attr)
}

func TestRecordSanitizedOnExtract(t *testing.T) {
	rec := New().Extract(NewPage(placeHTML, placeURL))
	clone := rec
	clone.Sanitize()
	assert.Equal(t, clone, rec)
}
