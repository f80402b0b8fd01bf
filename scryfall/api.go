package scryfall

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/mtgban/go-buyback/fetcher"
)

const (
	DefaultBaseURL = "https://api.scryfall.com"

	// Requests per second allowed by the API guidelines
	RateLimit = 10

	defaultMaxPages = 10
)

type ImageURIs struct {
	Small  string `json:"small"`
	Normal string `json:"normal"`
	Large  string `json:"large"`
	PNG    string `json:"png"`
}

type CardFace struct {
	Name      string     `json:"name"`
	ImageURIs *ImageURIs `json:"image_uris"`
}

// Prices are strings or null upstream, null is decoded as empty
type Prices struct {
	USD       string `json:"usd"`
	USDFoil   string `json:"usd_foil"`
	USDEtched string `json:"usd_etched"`
	EUR       string `json:"eur"`
	EURFoil   string `json:"eur_foil"`
	EUREtched string `json:"eur_etched"`
}

type Card struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Lang            string     `json:"lang"`
	ReleasedAt      string     `json:"released_at"`
	Set             string     `json:"set"`
	SetName         string     `json:"set_name"`
	CollectorNumber string     `json:"collector_number"`
	Rarity          string     `json:"rarity"`
	Nonfoil         bool       `json:"nonfoil"`
	Foil            bool       `json:"foil"`
	Promo           bool       `json:"promo"`
	ImageURIs       *ImageURIs `json:"image_uris"`
	CardFaces       []CardFace `json:"card_faces"`
	Prices          Prices     `json:"prices"`
}

type searchResponse struct {
	Object     string `json:"object"`
	TotalCards int    `json:"total_cards"`
	HasMore    bool   `json:"has_more"`
	NextPage   string `json:"next_page"`
	Data       []Card `json:"data"`
}

// JSONFetcher decodes the JSON document at link into v
type JSONFetcher interface {
	JSON(ctx context.Context, link string, v interface{}) error
}

type ScryfallClient struct {
	BaseURL string

	// Maximum number of result pages to go through
	MaxPages int

	client JSONFetcher
}

func NewScryfallClient(client JSONFetcher) *ScryfallClient {
	return &ScryfallClient{
		BaseURL:  DefaultBaseURL,
		MaxPages: defaultMaxPages,
		client:   client,
	}
}

// SearchCards returns every printing matching the query, in release order.
// A query without any match returns an empty slice.
func (sc *ScryfallClient) SearchCards(ctx context.Context, query string) ([]Card, error) {
	v := url.Values{}
	v.Set("q", query)
	v.Set("unique", "prints")
	v.Set("order", "released")
	link := strings.TrimRight(sc.BaseURL, "/") + "/cards/search?" + v.Encode()

	var cards []Card
	for page := 0; link != "" && (sc.MaxPages <= 0 || page < sc.MaxPages); page++ {
		var response searchResponse
		err := sc.client.JSON(ctx, link, &response)
		if errors.Is(err, fetcher.ErrNotFound) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("scryfall search %q: %w", query, err)
		}

		cards = append(cards, response.Data...)

		link = ""
		if response.HasMore {
			link = response.NextPage
		}
	}

	return cards, nil
}
