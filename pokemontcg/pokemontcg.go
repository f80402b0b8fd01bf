// Package pokemontcg implements the Pokemon catalog, backed by the Pokemon
// TCG API, with prices coming from the Cardmarket trend when available and
// from the embedded TCGplayer prices otherwise.
package pokemontcg

import (
	"context"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/mtgban/go-buyback/buyback"
)

const (
	defaultConcurrency = buyback.DefaultMaxConcurrency
)

// TrendResolver returns the EUR trend price of a card from a marketplace
type TrendResolver interface {
	ResolveTrend(ctx context.Context, name, set string) (float64, error)
}

type PokemonTCG struct {
	LogCallback    buyback.LogCallbackFunc
	MaxConcurrency int

	converter buyback.Converter
	client    *PokemonTCGClient
	trend     TrendResolver
}

type responseChan struct {
	group int
	index int
	entry buyback.NormalizedPrint
}

func (ptcg *PokemonTCG) printf(format string, a ...interface{}) {
	if ptcg.LogCallback != nil {
		ptcg.LogCallback("[PTCG] "+format, a...)
	}
}

// NewPokemonTCG returns the Pokemon catalog, trend may be nil to only rely on
// TCGplayer prices.
func NewPokemonTCG(client *PokemonTCGClient, trend TrendResolver, converter buyback.Converter) *PokemonTCG {
	ptcg := PokemonTCG{}
	ptcg.client = client
	ptcg.trend = trend
	ptcg.converter = converter
	ptcg.MaxConcurrency = defaultConcurrency
	return &ptcg
}

func (ptcg *PokemonTCG) Game() buyback.Game {
	return buyback.GamePokemon
}

// Normalize converts a card to a print priced in EUR. The Cardmarket trend is
// authoritative when positive, then the first TCGplayer market price found
// is converted. Resolution failures are logged and never returned.
func (ptcg *PokemonTCG) Normalize(ctx context.Context, card Card) buyback.NormalizedPrint {
	out := buyback.NormalizedPrint{
		Game:     buyback.GamePokemon,
		Id:       card.ID,
		Name:     card.Name,
		SetCode:  strings.ToUpper(card.Set.ID),
		SetName:  card.Set.Name,
		Number:   card.Number,
		Rarity:   card.Rarity,
		ImageURL: card.Images.Small,
	}
	out.ReleaseDate, _ = time.Parse("2006/01/02", card.Set.ReleaseDate)

	trend := ptcg.resolveTrend(ctx, card)
	if trend > 0 {
		out.MarketPrice = trend
		out.PriceSource = buyback.SourceCardmarketTrend
		return out
	}

	price, source := tcgplayerPrice(card.TCGPlayer)
	if price > 0 {
		out.MarketPrice = ptcg.converter.FromUSD(price)
		out.PriceSource = source
		out.Foil = source == buyback.SourceTCGPlayerReverseHolofoil
		return out
	}

	out.PriceSource = buyback.SourceNone
	return out
}

func (ptcg *PokemonTCG) resolveTrend(ctx context.Context, card Card) (price float64) {
	if ptcg.trend == nil {
		return 0
	}

	defer func() {
		if r := recover(); r != nil {
			ptcg.printf("trend lookup for %s (%s) panicked: %v", card.Name, card.Set.Name, r)
			price = 0
		}
	}()

	price, err := ptcg.trend.ResolveTrend(ctx, card.Name, card.Set.Name)
	if err != nil {
		ptcg.printf("no trend for %s (%s): %s", card.Name, card.Set.Name, err)
		return 0
	}
	if math.IsNaN(price) || math.IsInf(price, 0) || price < 0 {
		return 0
	}
	return price
}

func tcgplayerPrice(tcg *TCGPlayer) (float64, buyback.PriceSource) {
	if tcg == nil {
		return 0, buyback.SourceNone
	}
	variants := []struct {
		price  *TCGPlayerPrice
		source buyback.PriceSource
	}{
		{tcg.Prices.Holofoil, buyback.SourceTCGPlayerHolofoil},
		{tcg.Prices.ReverseHolofoil, buyback.SourceTCGPlayerReverseHolofoil},
		{tcg.Prices.Normal, buyback.SourceTCGPlayerNormal},
		{tcg.Prices.FirstEditionHolofoil, buyback.SourceTCGPlayer1stEdHolofoil},
	}
	for _, variant := range variants {
		if variant.price == nil {
			continue
		}
		market := buyback.Sanitize(variant.price.Market)
		if market > 0 {
			return market, variant.source
		}
	}
	return 0, buyback.SourceNone
}

// Search returns the cards matching query grouped by name.
func (ptcg *PokemonTCG) Search(ctx context.Context, query string) ([]buyback.GroupedCard, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	cards, err := ptcg.client.Cards(ctx, NameQuery(query, false))
	if err != nil {
		return nil, err
	}
	ptcg.printf("%d cards found for %q", len(cards), query)

	return ptcg.group(ctx, cards), nil
}

// Prints returns all the printings of the card with the exact name.
func (ptcg *PokemonTCG) Prints(ctx context.Context, name string) (buyback.GroupedCard, error) {
	name = strings.TrimSpace(name)
	out := buyback.GroupedCard{
		Name: name,
		Game: buyback.GamePokemon,
	}
	if name == "" {
		return out, nil
	}

	cards, err := ptcg.client.Cards(ctx, NameQuery(name, true))
	if err != nil {
		return out, err
	}

	for _, group := range ptcg.group(ctx, cards) {
		if strings.EqualFold(group.Name, name) {
			return group, nil
		}
	}
	return out, nil
}

// Group cards by their exact lowercase name and price every member
// concurrently.
func (ptcg *PokemonTCG) group(ctx context.Context, cards []Card) []buyback.GroupedCard {
	var keys []string
	members := map[string][]Card{}
	for _, card := range cards {
		key := strings.ToLower(card.Name)
		_, found := members[key]
		if !found {
			keys = append(keys, key)
		}
		members[key] = append(members[key], card)
	}

	prints := make([][]buyback.NormalizedPrint, len(keys))
	for i, key := range keys {
		prints[i] = make([]buyback.NormalizedPrint, len(members[key]))
	}

	type job struct {
		group int
		index int
		card  Card
	}

	jobs := make(chan job)
	results := make(chan responseChan)
	var wg sync.WaitGroup

	workers := ptcg.MaxConcurrency
	if workers <= 0 {
		workers = defaultConcurrency
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			for j := range jobs {
				results <- responseChan{
					group: j.group,
					index: j.index,
					entry: ptcg.Normalize(ctx, j.card),
				}
			}
			wg.Done()
		}()
	}

	go func() {
		for i, key := range keys {
			for j, card := range members[key] {
				jobs <- job{group: i, index: j, card: card}
			}
		}
		close(jobs)

		wg.Wait()
		close(results)
	}()

	for result := range results {
		prints[result.group][result.index] = result.entry
	}

	var out []buyback.GroupedCard
	for i, key := range keys {
		group := buyback.ApplyPolicy(prints[i], buyback.KeepUnpriced)
		group = buyback.DedupePrints(group)
		buyback.SortByReleaseThenPrice(group)

		first := members[key][0]
		out = append(out, buyback.GroupedCard{
			Name:     first.Name,
			Game:     buyback.GamePokemon,
			ImageURL: first.Images.Small,
			Prints:   group,
		})
	}
	return out
}
