// Package cardmarket retrieves the Cardmarket trend price of Pokemon singles
// by scraping the public search and product pages.
package cardmarket

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/mtgban/go-buyback/buyback"
)

const DefaultBaseURL = "https://www.cardmarket.com"

var ErrNoProduct = errors.New("no matching single found")
var ErrNoTrend = errors.New("trend price not found")

// TextFetcher retrieves the content of a page
type TextFetcher interface {
	Text(ctx context.Context, link string) (string, error)
}

type TrendScraper struct {
	LogCallback buyback.LogCallbackFunc

	// Root of the website, change it to point to a mirror
	BaseURL string

	client TextFetcher
}

func (ts *TrendScraper) printf(format string, a ...interface{}) {
	if ts.LogCallback != nil {
		ts.LogCallback("[MKM] "+format, a...)
	}
}

func NewTrendScraper(client TextFetcher) *TrendScraper {
	ts := TrendScraper{}
	ts.BaseURL = DefaultBaseURL
	ts.client = client
	return &ts
}

// ResolveTrend searches for the card name and set, follows the first
// single found, and returns its trend price in EUR.
func (ts *TrendScraper) ResolveTrend(ctx context.Context, name, set string) (float64, error) {
	searchLink, err := SearchURL(ts.BaseURL, name, set)
	if err != nil {
		return 0, err
	}

	page, err := ts.client.Text(ctx, searchLink)
	if err != nil {
		return 0, fmt.Errorf("search %q failed: %w", name, err)
	}

	productLink, err := FirstSingleLink(page)
	if err != nil {
		return 0, fmt.Errorf("%w for %s (%s)", err, name, set)
	}
	productLink, err = resolveLink(ts.BaseURL, productLink)
	if err != nil {
		return 0, err
	}

	page, err = ts.client.Text(ctx, productLink)
	if err != nil {
		return 0, fmt.Errorf("product page for %q failed: %w", name, err)
	}

	price, err := ParseTrendPrice(page)
	if err != nil {
		return 0, fmt.Errorf("%w in %s", err, productLink)
	}

	ts.printf("%s (%s) trends at %.2f", name, set, price)
	return price, nil
}

// FirstSingleLink returns the first link to a single product page.
func FirstSingleLink(page string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err == nil {
		var link string
		doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			href, _ := s.Attr("href")
			if singleRE.MatchString(href) {
				link = href
				return false
			}
			return true
		})
		if link != "" {
			return link, nil
		}
	}

	// Links built by scripts or in malformed markup
	match := singleHrefRE.FindStringSubmatch(page)
	if len(match) > 1 {
		return match[1], nil
	}

	return "", ErrNoProduct
}

// ParseTrendPrice extracts the trend price from a product page, looking
// for the definition list entry labelled as such.
func ParseTrendPrice(page string) (float64, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err == nil {
		var price float64
		doc.Find("dt").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if !trendLabelRE.MatchString(strings.TrimSpace(s.Text())) {
				return true
			}
			value := s.NextFiltered("dd").Text()
			parsed, err := buyback.ParseEuro(value)
			if err != nil || parsed <= 0 {
				return true
			}
			price = parsed
			return false
		})
		if price > 0 {
			return price, nil
		}
	}

	match := trendFragmentRE.FindStringSubmatch(page)
	if len(match) > 1 {
		value := tagRE.ReplaceAllString(match[1], " ")
		price, err := buyback.ParseEuro(value)
		if err == nil && price > 0 {
			return price, nil
		}
	}

	return 0, ErrNoTrend
}
