// Package ygoprodeck implements the Yu-Gi-Oh! catalog, backed by the
// YGOPRODeck database API.
package ygoprodeck

import (
	"context"
	"fmt"
	"strings"

	"github.com/mtgban/go-buyback/buyback"
)

type YGOProDeck struct {
	LogCallback buyback.LogCallbackFunc

	client *YGOClient
}

func (ygo *YGOProDeck) printf(format string, a ...interface{}) {
	if ygo.LogCallback != nil {
		ygo.LogCallback("[YGO] "+format, a...)
	}
}

func NewYGOProDeck(client *YGOClient) *YGOProDeck {
	ygo := YGOProDeck{}
	ygo.client = client
	return &ygo
}

func (ygo *YGOProDeck) Game() buyback.Game {
	return buyback.GameYuGiOh
}

// Search returns the cards whose name contains query, one group per card.
func (ygo *YGOProDeck) Search(ctx context.Context, query string) ([]buyback.GroupedCard, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	cards, err := ygo.client.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	ygo.printf("%d cards found for %q", len(cards), query)

	var out []buyback.GroupedCard
	for _, card := range cards {
		out = append(out, Group(card))
	}
	return out, nil
}

// Prints returns the printings of the card with the exact name.
func (ygo *YGOProDeck) Prints(ctx context.Context, name string) (buyback.GroupedCard, error) {
	name = strings.TrimSpace(name)
	out := buyback.GroupedCard{
		Name: name,
		Game: buyback.GameYuGiOh,
	}
	if name == "" {
		return out, nil
	}

	cards, err := ygo.client.Card(ctx, name)
	if err != nil {
		return out, err
	}
	for _, card := range cards {
		if strings.EqualFold(card.Name, name) {
			return Group(card), nil
		}
	}
	if len(cards) > 0 {
		return Group(cards[0]), nil
	}
	return out, nil
}

// Group returns all the prints of a card, sorted by price.
func Group(card Card) buyback.GroupedCard {
	prints := buyback.ApplyPolicy(Normalize(card), buyback.KeepUnpriced)
	buyback.SortByPriceDesc(prints)

	out := buyback.GroupedCard{
		Name:   card.Name,
		Game:   buyback.GameYuGiOh,
		Prints: prints,
	}
	if len(card.CardImages) > 0 {
		out.ImageURL = card.CardImages[0].ImageURL
	}
	return out
}

// Normalize returns one print for each set the card was released in, priced
// with the set price when present, or the price of the card otherwise.
// Prices are already in EUR or treated as such.
func Normalize(card Card) []buyback.NormalizedPrint {
	basePrice, baseSource := basePrice(card.CardPrices)

	base := buyback.NormalizedPrint{
		Game:        buyback.GameYuGiOh,
		Id:          fmt.Sprint(card.ID),
		Name:        card.Name,
		MarketPrice: basePrice,
		PriceSource: baseSource,
	}
	if len(card.CardImages) > 0 {
		base.ImageURL = card.CardImages[0].ImageURLSmall
	}

	if len(card.CardSets) == 0 {
		return []buyback.NormalizedPrint{base}
	}

	prints := make([]buyback.NormalizedPrint, 0, len(card.CardSets))
	for _, set := range card.CardSets {
		pr := base
		pr.Id = fmt.Sprintf("%d-%s-%s", card.ID, set.SetCode, set.SetRarityCode)
		pr.SetCode = set.SetCode
		if i := strings.Index(set.SetCode, "-"); i > 0 {
			pr.SetCode = set.SetCode[:i]
		}
		pr.SetName = set.SetName
		pr.Number = set.SetCode
		pr.Rarity = set.SetRarity

		price, err := buyback.ParsePrice(set.SetPrice)
		if err == nil {
			pr.MarketPrice = price
			pr.PriceSource = buyback.SourceYGOSetPrice
		}
		prints = append(prints, pr)
	}
	return prints
}

func basePrice(prices []CardPrice) (float64, buyback.PriceSource) {
	if len(prices) == 0 {
		return 0, buyback.SourceNone
	}
	price, err := buyback.ParsePrice(prices[0].CardmarketPrice)
	if err == nil {
		return price, buyback.SourceYGOCardmarket
	}
	price, err = buyback.ParsePrice(prices[0].TCGPlayerPrice)
	if err == nil {
		return price, buyback.SourceYGOTCGPlayer
	}
	return 0, buyback.SourceNone
}
