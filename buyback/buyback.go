// Package buyback defines the types shared by the card catalog adapters,
// together with the pricing engine deriving a shop offer from a market price.
package buyback

import (
	"context"
	"errors"
	"time"
)

type LogCallbackFunc func(format string, a ...interface{})

type Game string

const (
	GameMagic   Game = "magic"
	GamePokemon Game = "pokemon"
	GameYuGiOh  Game = "yugioh"
)

// All games supported, in display order
var AllGames = []Game{
	GameMagic, GamePokemon, GameYuGiOh,
}

var ErrUnknownGame = errors.New("unknown game")
var ErrGameDisabled = errors.New("game is disabled")

// ParseGame returns the Game matching the input name, accepting a few
// common aliases.
func ParseGame(name string) (Game, error) {
	switch name {
	case "magic", "mtg":
		return GameMagic, nil
	case "pokemon", "pkm", "ptcg":
		return GamePokemon, nil
	case "yugioh", "ygo":
		return GameYuGiOh, nil
	}
	return "", ErrUnknownGame
}

// PriceSource records which upstream field produced a market price.
// It is only used for diagnostics.
type PriceSource string

const (
	SourceNone PriceSource = "none"

	SourceScryfallEUR     PriceSource = "scryfall_eur"
	SourceScryfallUSD     PriceSource = "scryfall_usd"
	SourceScryfallEURFoil PriceSource = "scryfall_eur_foil"
	SourceScryfallUSDFoil PriceSource = "scryfall_usd_foil"

	SourceCardmarketTrend          PriceSource = "cardmarket_trend"
	SourceTCGPlayerHolofoil        PriceSource = "tcgplayer_holofoil"
	SourceTCGPlayerReverseHolofoil PriceSource = "tcgplayer_reverse_holofoil"
	SourceTCGPlayerNormal          PriceSource = "tcgplayer_normal"
	SourceTCGPlayer1stEdHolofoil   PriceSource = "tcgplayer_1st_edition_holofoil"

	SourceYGOSetPrice   PriceSource = "ygo_set_price"
	SourceYGOCardmarket PriceSource = "ygo_cardmarket"
	SourceYGOTCGPlayer  PriceSource = "ygo_tcgplayer"

	// The price was missing and replaced with NominalFloorPrice
	SourceNominalFloor PriceSource = "nominal_floor"
)

// NormalizedPrint is the normalized view of a single printing of a card,
// as returned by one of the catalogs.
type NormalizedPrint struct {
	Game Game `json:"game"`

	// Original identifier as available from the catalog
	Id string `json:"id,omitempty"`

	Name        string    `json:"name"`
	SetCode     string    `json:"set_code"`
	SetName     string    `json:"set_name"`
	Number      string    `json:"number"`
	Rarity      string    `json:"rarity,omitempty"`
	ReleaseDate time.Time `json:"release_date,omitempty"`
	ImageURL    string    `json:"image_url,omitempty"`
	Foil        bool      `json:"foil,omitempty"`

	// Market price in EUR, zero means no usable price was found
	MarketPrice float64     `json:"market_price"`
	PriceSource PriceSource `json:"price_source"`
}

// HasPrice reports whether the print carries a real upstream price.
func (np NormalizedPrint) HasPrice() bool {
	return np.MarketPrice > 0 && np.PriceSource != SourceNone && np.PriceSource != SourceNominalFloor
}

// GroupedCard collects all the printings of a card sharing the same name.
type GroupedCard struct {
	Name     string            `json:"name"`
	Game     Game              `json:"game"`
	ImageURL string            `json:"image_url,omitempty"`
	Prints   []NormalizedPrint `json:"prints"`
}

// SellListItem is an entry of a sell list, prices are frozen at the time
// the item is created and never updated afterwards.
type SellListItem struct {
	Game     Game   `json:"game"`
	CardName string `json:"card_name"`
	SetCode  string `json:"set_code"`
	SetName  string `json:"set_name"`
	Number   string `json:"number,omitempty"`
	Quantity int    `json:"quantity"`

	MarketPrice float64 `json:"market_price"`
	BuyPrice    float64 `json:"buy_price"`
	Tier        Tier    `json:"tier"`

	// Only supported values are listed in Conditions
	Condition string `json:"condition"`
	Foil      bool   `json:"foil"`
	Language  string `json:"language"`
}

// The list of conditions accepted on a sell list
var Conditions = []string{
	"NM", "SP", "MP", "HP", "PO",
}

// Searcher is the interface each catalog adapter implements
type Searcher interface {
	// Return all cards matching the query, grouped by name
	Search(ctx context.Context, query string) ([]GroupedCard, error)

	// Return all the known printings of the card with the given name
	Prints(ctx context.Context, name string) (GroupedCard, error)

	// Return the game served
	Game() Game
}
