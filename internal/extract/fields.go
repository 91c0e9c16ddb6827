package extract

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
)

// PhonePolicy decides how many digits of a phone number are kept.
type PhonePolicy string

const (
	// PhoneLocal10 keeps the last ten digits of longer numbers, dropping a
	// leading country code.
	PhoneLocal10 PhonePolicy = "local10"
	// PhoneAllDigits keeps every digit.
	PhoneAllDigits PhonePolicy = "all"
)

// ParsePhonePolicy validates a policy name.
func ParsePhonePolicy(s string) (PhonePolicy, error) {
	switch PhonePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case PhoneLocal10, "":
		return PhoneLocal10, nil
	case PhoneAllDigits:
		return PhoneAllDigits, nil
	default:
		return "", eris.Errorf("extract: unknown phone policy %q (valid: local10, all)", s)
	}
}

// NormalizePhone strips everything but digits and applies the policy.
func NormalizePhone(raw string, policy PhonePolicy) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if policy == PhoneLocal10 && len(digits) > 10 {
		return digits[len(digits)-10:]
	}
	return digits
}

// NormalizeWebsite unwraps map redirect links, resolves relative hrefs
// against the page URL and guarantees an http(s) scheme. Anything that is not
// a web URL comes back empty.
func NormalizeWebsite(raw, pageURL string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "-" {
		return ""
	}

	if u, err := url.Parse(raw); err == nil && strings.HasSuffix(u.Path, "/url") {
		if q := u.Query().Get("q"); q != "" {
			raw = q
		} else if q := u.Query().Get("url"); q != "" {
			raw = q
		}
	}

	lower := strings.ToLower(raw)
	switch {
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
	case strings.HasPrefix(raw, "//"):
		raw = "https:" + raw
	case strings.HasPrefix(raw, "/"):
		base, err := url.Parse(pageURL)
		if err != nil || base.Host == "" {
			return ""
		}
		ref, err := url.Parse(raw)
		if err != nil {
			return ""
		}
		raw = base.ResolveReference(ref).String()
	case strings.Contains(lower, ":") && !strings.Contains(lower, "."):
		return ""
	case strings.HasPrefix(lower, "mailto:"), strings.HasPrefix(lower, "tel:"), strings.HasPrefix(lower, "javascript:"):
		return ""
	default:
		raw = "https://" + strings.TrimLeft(raw, "/")
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return u.String()
}

var (
	ratingRe = regexp.MustCompile(`\d[.,]\d`)
	// Parenthesized count "(1,234)" or a count followed by "review(s)".
	reviewCountRe = regexp.MustCompile(`(?i)\(\s*(\d[\d.,\s]*)\)|(\d[\d.,]*)\s*reviews?`)
)

// ParseRating finds a single-decimal rating such as "4.5" or "4,5" and
// returns it with a dot separator. Review counts are removed first so that
// "1,234 reviews" is never read as a rating.
func ParseRating(text string) string {
	if text == "" {
		return ""
	}
	text = reviewCountRe.ReplaceAllString(text, " ")
	m := ratingRe.FindString(text)
	return strings.Replace(m, ",", ".", 1)
}

// ParseReviewCount returns the digits of a parenthesized or "reviews"
// suffixed count.
func ParseReviewCount(text string) string {
	m := reviewCountRe.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	raw := m[1]
	if raw == "" {
		raw = m[2]
	}
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
