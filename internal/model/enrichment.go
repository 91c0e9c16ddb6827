package model

// Platform identifies a social or messaging network.
type Platform string

const (
	Facebook  Platform = "facebook"
	Instagram Platform = "instagram"
	LinkedIn  Platform = "linkedin"
	Twitter   Platform = "twitter"
	WhatsApp  Platform = "whatsapp"
	Telegram  Platform = "telegram"
)

// Platforms lists every recognized platform in column order.
var Platforms = []Platform{Facebook, Instagram, LinkedIn, Twitter, WhatsApp, Telegram}

// Caps applied by the contact miner.
const (
	MaxEmails = 10
	MaxPhones = 5
)

// EnrichmentResult holds the contact details mined from one website.
type EnrichmentResult struct {
	Emails  []string              `json:"emails"`
	Phones  []string              `json:"phones"`
	Socials map[Platform][]string `json:"socials"`
}

// Empty reports whether nothing was found.
func (e EnrichmentResult) Empty() bool {
	if len(e.Emails) > 0 || len(e.Phones) > 0 {
		return false
	}
	for _, links := range e.Socials {
		if len(links) > 0 {
			return false
		}
	}
	return true
}
