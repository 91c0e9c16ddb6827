package extract

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Selectors lists, per field, the CSS selectors tried in order. An entry of
// the form `selector@attr` reads the attribute instead of the element text.
type Selectors struct {
	Name          []string `yaml:"name"`
	DetailPane    []string `yaml:"detail_pane"`
	Category      []string `yaml:"category"`
	Address       []string `yaml:"address"`
	Phone         []string `yaml:"phone"`
	Website       []string `yaml:"website"`
	Stats         []string `yaml:"stats"`
	Rating        []string `yaml:"rating"`
	Reviews       []string `yaml:"reviews"`
	Hours         []string `yaml:"hours"`
	ShareControl  []string `yaml:"share_control"`
	ReviewControl []string `yaml:"review_control"`
}

// DefaultSelectors returns the selector set for the current map layout.
func DefaultSelectors() Selectors {
	return Selectors{
		Name: []string{
			`h1.DUwDvf`,
			`div[role="main"] h1`,
			`h1.fontHeadlineLarge`,
		},
		DetailPane: []string{
			`div[role="main"][aria-label]`,
			`div[role="main"]`,
			`div.m6QErb[aria-label]`,
		},
		Category: []string{
			`button.DqE26`,
			`button[jsaction*="category"]`,
			`span.DkEaL`,
		},
		Address: []string{
			`button[data-item-id="address"]`,
			`[data-item-id="address"]`,
			`button[aria-label^="Address:"]@aria-label`,
		},
		Phone: []string{
			`button[data-item-id^="phone:tel:"]`,
			`button[data-item-id^="phone:tel:"]@data-item-id`,
			`button[aria-label^="Phone:"]@aria-label`,
			`a[href^="tel:"]@href`,
		},
		Website: []string{
			`a[data-item-id="authority"]@href`,
			`a[aria-label^="Website:"]@href`,
			`a[data-tooltip="Open website"]@href`,
		},
		Stats: []string{
			`div.F7nice`,
			`div.skqShb`,
		},
		Rating: []string{
			`span[role="img"][aria-label*="star"]@aria-label`,
			`span.fontBodyMedium span[aria-label*="stars"]@aria-label`,
			`div.fontDisplayLarge`,
		},
		Reviews: []string{
			`span[aria-label*="review"]@aria-label`,
			`button[jsaction*="reviewChart"]`,
		},
		Hours: []string{
			`div[aria-label*="Hours"]@aria-label`,
			`div[aria-label*="hours"]@aria-label`,
			`table.eKjh9c`,
			`div.t39EBf`,
		},
		ShareControl: []string{
			`button[data-value="Share"]`,
			`button[aria-label^="Share"]`,
		},
		ReviewControl: []string{
			`button[jsaction*="pane.reviewChart"]`,
			`button[aria-label*="review"]`,
			`div[data-review-id]`,
		},
	}
}

// LoadSelectors reads a YAML selector file and overlays every non-empty list
// on the defaults.
func LoadSelectors(path string) (Selectors, error) {
	sel := DefaultSelectors()
	if path == "" {
		return sel, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return sel, eris.Wrapf(err, "extract: read selectors %s", path)
	}

	var override Selectors
	if err := yaml.Unmarshal(data, &override); err != nil {
		return sel, eris.Wrapf(err, "extract: parse selectors %s", path)
	}

	overlay(&sel.Name, override.Name)
	overlay(&sel.DetailPane, override.DetailPane)
	overlay(&sel.Category, override.Category)
	overlay(&sel.Address, override.Address)
	overlay(&sel.Phone, override.Phone)
	overlay(&sel.Website, override.Website)
	overlay(&sel.Stats, override.Stats)
	overlay(&sel.Rating, override.Rating)
	overlay(&sel.Reviews, override.Reviews)
	overlay(&sel.Hours, override.Hours)
	overlay(&sel.ShareControl, override.ShareControl)
	overlay(&sel.ReviewControl, override.ReviewControl)
	return sel, nil
}

func overlay(dst *[]string, src []string) {
	if len(src) > 0 {
		*dst = src
	}
}
