package extract

import (
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
)

// placeIDRe matches a map place identifier: the fixed "ChIJ" prefix followed
// by 23 URL-safe base64 characters.
var placeIDRe = regexp.MustCompile(`ChIJ[0-9A-Za-z_-]{23}`)

// placeID tries, in order: the share control's attributes, the review
// control's attributes, the page URL (only when its place slug agrees with
// the extracted name), and finally the raw markup of the detail pane.
func (e *Extractor) placeID(p *Page, scope *goquery.Selection, name string) string {
	if id := attrScan(scope, e.sel.ShareControl); id != "" {
		return id
	}
	if id := attrScan(scope, e.sel.ReviewControl); id != "" {
		return id
	}
	if id := placeIDRe.FindString(p.URL); id != "" && urlMatchesName(p.URL, name) {
		return id
	}
	if markup, err := goquery.OuterHtml(scope); err == nil {
		return placeIDRe.FindString(markup)
	}
	return ""
}

// attrScan returns the first place identifier embedded in any attribute of
// the elements matched by entries.
func attrScan(scope *goquery.Selection, entries []string) string {
	for _, entry := range entries {
		css, _ := splitEntry(entry)
		var id string
		scope.Find(css).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			for _, n := range s.Nodes {
				for _, a := range n.Attr {
					if m := placeIDRe.FindString(a.Val); m != "" {
						id = m
						return false
					}
				}
			}
			return true
		})
		if id != "" {
			return id
		}
	}
	return ""
}

// urlMatchesName guards against a stale URL left over from the previously
// focused listing: the "/place/<slug>/" segment must start with the same
// letters as the business name.
func urlMatchesName(pageURL, name string) bool {
	normName := alnum(name)
	if normName == "" {
		return false
	}
	u, err := url.Parse(pageURL)
	if err != nil {
		return false
	}
	path := u.EscapedPath()
	i := strings.Index(path, "/place/")
	if i < 0 {
		return false
	}
	slug := path[i+len("/place/"):]
	if j := strings.IndexByte(slug, '/'); j >= 0 {
		slug = slug[:j]
	}
	slug = strings.ReplaceAll(slug, "+", " ")
	if decoded, err := url.PathUnescape(slug); err == nil {
		slug = decoded
	}
	normSlug := alnum(slug)

	n := min(len([]rune(normName)), 6)
	prefix := string([]rune(normName)[:n])
	return strings.HasPrefix(normSlug, prefix)
}

func alnum(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
