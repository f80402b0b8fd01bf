package cardmarket

import (
	"net/url"
	"regexp"
	"strings"
)

const pokemonSearchPath = "/en/Pokemon/Products/Search"

var singleRE = regexp.MustCompile(`/Products/Singles/[^"'\s?#]+`)
var singleHrefRE = regexp.MustCompile(`href=["']([^"']*/Products/Singles/[^"']+)["']`)

var trendLabelRE = regexp.MustCompile(`(?i)^(price trend|trend price)\s*:?$`)
var trendFragmentRE = regexp.MustCompile(`(?is)(?:price trend|trend price)\s*:?\s*</dt>\s*<dd[^>]*>(.*?)</dd>`)
var tagRE = regexp.MustCompile(`<[^>]*>`)

// SearchURL builds the link of the Pokemon search page for a card.
func SearchURL(base, name, set string) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/") + pokemonSearchPath)
	if err != nil {
		return "", err
	}

	v := url.Values{}
	v.Set("searchString", strings.TrimSpace(name+" "+set))
	u.RawQuery = v.Encode()

	return u.String(), nil
}

func resolveLink(base, link string) (string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(link)
	if err != nil {
		return "", err
	}
	return baseURL.ResolveReference(ref).String(), nil
}
