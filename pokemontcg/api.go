package pokemontcg

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/mtgban/go-buyback/fetcher"
)

const (
	DefaultBaseURL = "https://api.pokemontcg.io"

	DefaultPageSize = 250

	defaultMaxPages = 4
)

type Set struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Series      string `json:"series"`
	PtcgoCode   string `json:"ptcgoCode"`
	ReleaseDate string `json:"releaseDate"`
}

type Images struct {
	Small string `json:"small"`
	Large string `json:"large"`
}

// Missing prices are decoded as zero
type TCGPlayerPrice struct {
	Low       float64 `json:"low"`
	Mid       float64 `json:"mid"`
	High      float64 `json:"high"`
	Market    float64 `json:"market"`
	DirectLow float64 `json:"directLow"`
}

type TCGPlayer struct {
	URL       string `json:"url"`
	UpdatedAt string `json:"updatedAt"`
	Prices    struct {
		Holofoil             *TCGPlayerPrice `json:"holofoil"`
		ReverseHolofoil      *TCGPlayerPrice `json:"reverseHolofoil"`
		Normal               *TCGPlayerPrice `json:"normal"`
		FirstEditionHolofoil *TCGPlayerPrice `json:"1stEditionHolofoil"`
		FirstEditionNormal   *TCGPlayerPrice `json:"1stEditionNormal"`
	} `json:"prices"`
}

type Card struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Supertype string     `json:"supertype"`
	Number    string     `json:"number"`
	Rarity    string     `json:"rarity"`
	Set       Set        `json:"set"`
	Images    Images     `json:"images"`
	TCGPlayer *TCGPlayer `json:"tcgplayer"`
}

type cardsResponse struct {
	Data       []Card `json:"data"`
	Page       int    `json:"page"`
	PageSize   int    `json:"pageSize"`
	Count      int    `json:"count"`
	TotalCount int    `json:"totalCount"`
}

// JSONFetcher decodes the JSON document at link into v
type JSONFetcher interface {
	JSON(ctx context.Context, link string, v interface{}) error
}

type PokemonTCGClient struct {
	BaseURL  string
	PageSize int

	// Maximum number of result pages to go through
	MaxPages int

	client JSONFetcher
}

// The API key, if any, is sent as a header by the fetcher
func NewPokemonTCGClient(client JSONFetcher) *PokemonTCGClient {
	return &PokemonTCGClient{
		BaseURL:  DefaultBaseURL,
		PageSize: DefaultPageSize,
		MaxPages: defaultMaxPages,
		client:   client,
	}
}

// NameQuery builds a query matching cards by name. A non exact query
// matches any name starting with the given words, since the API only
// matches whole words otherwise.
func NameQuery(name string, exact bool) string {
	name = strings.TrimSpace(strings.NewReplacer(`"`, ``, `*`, ``).Replace(name))
	if exact {
		return fmt.Sprintf(`!name:"%s"`, name)
	}
	return fmt.Sprintf(`name:"%s*"`, name)
}

// Cards returns all the cards matching the query, a query without any
// match returns an empty slice.
func (ptcg *PokemonTCGClient) Cards(ctx context.Context, query string) ([]Card, error) {
	pageSize := ptcg.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	var cards []Card
	for page := 1; ptcg.MaxPages <= 0 || page <= ptcg.MaxPages; page++ {
		v := url.Values{}
		v.Set("q", query)
		v.Set("page", strconv.Itoa(page))
		v.Set("pageSize", strconv.Itoa(pageSize))
		link := strings.TrimRight(ptcg.BaseURL, "/") + "/v2/cards?" + v.Encode()

		var response cardsResponse
		err := ptcg.client.JSON(ctx, link, &response)
		if errors.Is(err, fetcher.ErrNotFound) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("pokemontcg query %q: %w", query, err)
		}

		cards = append(cards, response.Data...)

		if len(response.Data) == 0 || page*pageSize >= response.TotalCount {
			break
		}
	}

	return cards, nil
}
