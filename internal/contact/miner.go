// Package contact mines contact details out of raw website markup using
// regular expressions only. Mine is pure and never fails.
package contact

import (
	"regexp"
	"strings"

	"github.com/sells-group/maps-harvest/internal/model"
)

var (
	mailtoRe = regexp.MustCompile(`(?i)mailto:\s*([a-z0-9._%+-]+@[a-z0-9.-]+\.[a-z]{2,})`)
	emailRe  = regexp.MustCompile(`(?i)[a-z0-9._%+-]+@[a-z0-9.-]+\.[a-z]{2,}`)

	telRe   = regexp.MustCompile(`(?i)tel:\s*(\+?[0-9\s\-().]{7,})`)
	phoneRe = regexp.MustCompile(`(?:\+?\d{1,3}[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}`)

	scriptRe = regexp.MustCompile(`(?is)<script\b.*?</script>|<style\b.*?</style>`)
)

// Asset file names such as "logo@2x.png" look like addresses.
var assetSuffixes = []string{".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp", ".ico", ".bmp"}

type socialPattern struct {
	platform model.Platform
	re       *regexp.Regexp
	// first path segments that are widgets or share endpoints, not profiles
	exclude map[string]bool
}

var socialPatterns = []socialPattern{
	{
		platform: model.Facebook,
		re:       regexp.MustCompile(`(?i)(?:https?://)?(?:[a-z0-9-]+\.)*(?:facebook\.com|fb\.com|fb\.me)/([a-z0-9._-]+)`),
		exclude:  set("tr", "plugins", "sharer", "sharer.php", "dialog", "share.php", "login", "events"),
	},
	{
		platform: model.Instagram,
		re:       regexp.MustCompile(`(?i)(?:https?://)?(?:[a-z0-9-]+\.)*(?:instagram\.com|instagr\.am)/([a-z0-9._-]+)`),
		exclude:  set("p", "explore", "accounts"),
	},
	{
		platform: model.LinkedIn,
		re:       regexp.MustCompile(`(?i)(?:https?://)?(?:[a-z0-9-]+\.)*linkedin\.com/(?:company|in|school)/([a-z0-9._-]+)`),
	},
	{
		platform: model.Twitter,
		re:       regexp.MustCompile(`(?i)(?:https?://)?(?:[a-z0-9-]+\.)*(?:twitter\.com|x\.com)/([a-z0-9._-]+)`),
		exclude:  set("intent", "share", "i", "home", "search", "hashtag"),
	},
	{
		platform: model.WhatsApp,
		re:       regexp.MustCompile(`(?i)(?:https?://)?(?:wa\.me/|api\.whatsapp\.com/send/?\?phone=|chat\.whatsapp\.com/)([a-z0-9._+-]+)`),
	},
	{
		platform: model.Telegram,
		re:       regexp.MustCompile(`(?i)(?:https?://)?(?:t\.me|telegram\.me)/([a-z0-9._-]+)`),
		exclude:  set("share"),
	},
}

func set(vals ...string) map[string]bool {
	m := make(map[string]bool, len(vals))
	for _, v := range vals {
		m[v] = true
	}
	return m
}

// Mine extracts emails, phone numbers and social links from markup. When
// baseURL is itself a social profile it is reported first for its platform.
func Mine(markup, baseURL string) model.EnrichmentResult {
	return model.EnrichmentResult{
		Emails:  Emails(markup),
		Phones:  Phones(markup),
		Socials: Socials(markup, baseURL),
	}
}

// Emails returns mailto addresses followed by bare addresses, deduplicated
// case-insensitively, in order of appearance, capped at model.MaxEmails.
func Emails(markup string) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(addr string) {
		addr = strings.TrimRight(addr, ".")
		key := strings.ToLower(addr)
		if seen[key] || isAsset(key) {
			return
		}
		seen[key] = true
		out = append(out, addr)
	}

	for _, m := range mailtoRe.FindAllStringSubmatch(markup, -1) {
		add(m[1])
	}
	for _, m := range emailRe.FindAllString(markup, -1) {
		add(m)
	}
	if len(out) > model.MaxEmails {
		out = out[:model.MaxEmails]
	}
	return out
}

func isAsset(addr string) bool {
	for _, s := range assetSuffixes {
		if strings.HasSuffix(addr, s) {
			return true
		}
	}
	return false
}

// Phones returns tel: link numbers followed by numbers found in visible text,
// reduced to digits. Numbers shorter than 7 digits are dropped; the list is
// deduplicated and capped at model.MaxPhones.
func Phones(markup string) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(raw string) {
		digits := digitsOnly(raw)
		if len(digits) < 7 || seen[digits] {
			return
		}
		seen[digits] = true
		out = append(out, digits)
	}

	for _, m := range telRe.FindAllStringSubmatch(markup, -1) {
		add(m[1])
	}

	text := scriptRe.ReplaceAllString(markup, " ")
	for _, loc := range phoneRe.FindAllStringIndex(text, -1) {
		// Skip fragments of longer digit runs such as ids or timestamps.
		if loc[0] > 0 && isDigit(text[loc[0]-1]) {
			continue
		}
		if loc[1] < len(text) && isDigit(text[loc[1]]) {
			continue
		}
		add(text[loc[0]:loc[1]])
	}

	if len(out) > model.MaxPhones {
		out = out[:model.MaxPhones]
	}
	return out
}

// Socials returns, for every platform, the deduplicated profile links found
// in markup. Scheme-less links are prefixed with https://.
func Socials(markup, baseURL string) map[model.Platform][]string {
	out := make(map[model.Platform][]string, len(socialPatterns))
	for _, p := range socialPatterns {
		seen := make(map[string]bool)
		links := []string{}
		for _, src := range []string{baseURL, markup} {
			for _, link := range p.find(src) {
				key := strings.ToLower(strings.TrimPrefix(strings.TrimPrefix(link, "https://"), "http://"))
				if seen[key] {
					continue
				}
				seen[key] = true
				links = append(links, link)
			}
		}
		out[p.platform] = links
	}
	return out
}

func (p socialPattern) find(src string) []string {
	if src == "" {
		return nil
	}
	var links []string
	for _, m := range p.re.FindAllStringSubmatchIndex(src, -1) {
		start, end := m[0], m[1]
		// The host must start a token: "notfacebook.com" or "a@x.com" are
		// not links.
		if start > 0 && isHostChar(src[start-1]) {
			continue
		}
		segment := strings.ToLower(src[m[2]:m[3]])
		if p.exclude[segment] {
			continue
		}
		link := strings.TrimRight(src[start:end], ".")
		if !strings.HasPrefix(strings.ToLower(link), "http") {
			link = "https://" + link
		}
		links = append(links, link)
	}
	return links
}

func isHostChar(c byte) bool {
	switch {
	case c == '.', c == '-', c == '_', c == '@':
		return true
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		return true
	}
	return isDigit(c)
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
