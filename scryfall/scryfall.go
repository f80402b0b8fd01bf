// Package scryfall implements the Magic: the Gathering catalog, backed by
// the Scryfall search API.
package scryfall

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mtgban/go-buyback/buyback"
)

type Scryfall struct {
	LogCallback buyback.LogCallbackFunc

	converter buyback.Converter
	client    *ScryfallClient
}

func (scry *Scryfall) printf(format string, a ...interface{}) {
	if scry.LogCallback != nil {
		scry.LogCallback("[SCRY] "+format, a...)
	}
}

func NewScryfall(client *ScryfallClient, converter buyback.Converter) *Scryfall {
	scry := Scryfall{}
	scry.client = client
	scry.converter = converter
	return &scry
}

func (scry *Scryfall) Game() buyback.Game {
	return buyback.GameMagic
}

// Search returns the cards matching query, grouped by name, only keeping
// prints with a known price.
func (scry *Scryfall) Search(ctx context.Context, query string) ([]buyback.GroupedCard, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	cards, err := scry.client.SearchCards(ctx, query)
	if err != nil {
		return nil, err
	}
	scry.printf("%d prints found for %q", len(cards), query)

	return Group(cards, scry.converter, buyback.ExcludeUnpriced), nil
}

// Prints returns all the printings of the card with the exact name, unpriced
// prints are assigned a nominal price so that they can still be listed.
func (scry *Scryfall) Prints(ctx context.Context, name string) (buyback.GroupedCard, error) {
	name = strings.TrimSpace(name)
	out := buyback.GroupedCard{
		Name: name,
		Game: buyback.GameMagic,
	}
	if name == "" {
		return out, nil
	}

	query := fmt.Sprintf(`!"%s"`, strings.Replace(name, `"`, ``, -1))
	cards, err := scry.client.SearchCards(ctx, query)
	if err != nil {
		return out, err
	}

	groups := Group(cards, scry.converter, buyback.NominalFloor)
	key := buyback.NameKey(name)
	for _, group := range groups {
		if buyback.NameKey(group.Name) == key {
			return group, nil
		}
	}
	if len(groups) > 0 {
		return groups[0], nil
	}
	return out, nil
}

// Normalize converts a Scryfall card to a print priced in EUR, preferring
// EUR prices over converted USD ones, and regular prices over foil ones.
func Normalize(card Card, converter buyback.Converter) buyback.NormalizedPrint {
	out := buyback.NormalizedPrint{
		Game:     buyback.GameMagic,
		Id:       card.ID,
		Name:     card.Name,
		SetCode:  strings.ToUpper(card.Set),
		SetName:  card.SetName,
		Number:   card.CollectorNumber,
		Rarity:   card.Rarity,
		ImageURL: imageURL(card),
	}
	out.ReleaseDate, _ = time.Parse("2006-01-02", card.ReleasedAt)

	out.MarketPrice, out.PriceSource, out.Foil = marketPrice(card.Prices, converter)
	return out
}

func marketPrice(prices Prices, converter buyback.Converter) (float64, buyback.PriceSource, bool) {
	price, err := buyback.ParsePrice(prices.EUR)
	if err == nil {
		return price, buyback.SourceScryfallEUR, false
	}
	price, err = buyback.ParsePrice(prices.USD)
	if err == nil {
		return converter.FromUSD(price), buyback.SourceScryfallUSD, false
	}
	price, err = buyback.ParsePrice(prices.EURFoil)
	if err == nil {
		return price, buyback.SourceScryfallEURFoil, true
	}
	price, err = buyback.ParsePrice(prices.USDFoil)
	if err == nil {
		return converter.FromUSD(price), buyback.SourceScryfallUSDFoil, true
	}
	return 0, buyback.SourceNone, false
}

func imageURL(card Card) string {
	if card.ImageURIs != nil {
		return card.ImageURIs.Normal
	}
	for _, face := range card.CardFaces {
		if face.ImageURIs != nil {
			return face.ImageURIs.Normal
		}
	}
	return ""
}

// Group collects cards sharing the same name, keeping the order in which
// names first appear. Groups without any print left after applying policy
// are dropped.
func Group(cards []Card, converter buyback.Converter, policy buyback.MissingPricePolicy) []buyback.GroupedCard {
	var keys []string
	members := map[string][]Card{}
	for _, card := range cards {
		key := buyback.NameKey(card.Name)
		_, found := members[key]
		if !found {
			keys = append(keys, key)
		}
		members[key] = append(members[key], card)
	}

	var out []buyback.GroupedCard
	for _, key := range keys {
		group := members[key]

		var prints []buyback.NormalizedPrint
		for _, card := range group {
			prints = append(prints, Normalize(card, converter))
		}
		prints = buyback.ApplyPolicy(prints, policy)
		prints = buyback.DedupePrints(prints)
		if len(prints) == 0 {
			continue
		}
		buyback.SortByPriceDesc(prints)

		out = append(out, buyback.GroupedCard{
			Name:     group[0].Name,
			Game:     buyback.GameMagic,
			ImageURL: representativeImage(group),
			Prints:   prints,
		})
	}
	return out
}

// Use the first regular, non-promotional printing, or the first one
func representativeImage(group []Card) string {
	for _, card := range group {
		if card.Nonfoil && !card.Promo {
			img := imageURL(card)
			if img != "" {
				return img
			}
		}
	}
	return imageURL(group[0])
}
