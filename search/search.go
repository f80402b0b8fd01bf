// Package search builds the catalog pipeline for every enabled game and
// dispatches queries to it, attaching a buyback quote to every print.
package search

import (
	"context"
	"fmt"

	"github.com/mtgban/go-buyback/buyback"
	"github.com/mtgban/go-buyback/cardmarket"
	"github.com/mtgban/go-buyback/fetcher"
	"github.com/mtgban/go-buyback/pokemontcg"
	"github.com/mtgban/go-buyback/scryfall"
	"github.com/mtgban/go-buyback/ygoprodeck"
)

// QuotedPrint is a print together with the offer for it
type QuotedPrint struct {
	buyback.NormalizedPrint
	Quote buyback.BuybackQuote `json:"quote"`
}

type QuotedCard struct {
	Name     string        `json:"name"`
	Game     buyback.Game  `json:"game"`
	ImageURL string        `json:"image_url,omitempty"`
	Prints   []QuotedPrint `json:"prints"`
}

type Engine struct {
	LogCallback buyback.LogCallbackFunc

	config    buyback.Config
	searchers map[buyback.Game]buyback.Searcher
}

func (e *Engine) printf(format string, a ...interface{}) {
	if e.LogCallback != nil {
		e.LogCallback(format, a...)
	}
}

// NewEngine creates the catalogs of the games enabled in cfg.
func NewEngine(cfg buyback.Config, logger buyback.LogCallbackFunc) *Engine {
	var searchers []buyback.Searcher
	for _, game := range cfg.EnabledGames() {
		switch game {
		case buyback.GameMagic:
			searchers = append(searchers, newScryfall(cfg, logger))
		case buyback.GamePokemon:
			searchers = append(searchers, newPokemonTCG(cfg, logger))
		case buyback.GameYuGiOh:
			searchers = append(searchers, newYGOProDeck(cfg, logger))
		}
	}
	e := NewEngineWithSearchers(cfg, searchers...)
	e.LogCallback = logger
	return e
}

// NewEngineWithSearchers uses the provided catalogs, those of games not
// enabled in cfg are ignored.
func NewEngineWithSearchers(cfg buyback.Config, searchers ...buyback.Searcher) *Engine {
	e := Engine{}
	e.config = cfg
	e.searchers = map[buyback.Game]buyback.Searcher{}
	for _, searcher := range searchers {
		if cfg.Enabled(searcher.Game()) {
			e.searchers[searcher.Game()] = searcher
		}
	}
	return &e
}

func fetchOptions(cfg buyback.Config) fetcher.Options {
	opts := fetcher.DefaultOptions()
	opts.Timeout = cfg.FetchTimeout
	opts.Retries = cfg.FetchRetries
	return opts
}

func newFetcher(opts fetcher.Options, logger buyback.LogCallbackFunc) *fetcher.Client {
	client := fetcher.NewClient(opts)
	client.LogCallback = logger
	return client
}

func newScryfall(cfg buyback.Config, logger buyback.LogCallbackFunc) buyback.Searcher {
	opts := fetchOptions(cfg)
	opts.RateLimit = scryfall.RateLimit
	opts.Headers = map[string]string{
		"Accept": "application/json",
	}

	client := scryfall.NewScryfallClient(newFetcher(opts, logger))
	scry := scryfall.NewScryfall(client, cfg.Converter())
	scry.LogCallback = logger
	return scry
}

func newPokemonTCG(cfg buyback.Config, logger buyback.LogCallbackFunc) buyback.Searcher {
	opts := fetchOptions(cfg)
	if cfg.PokemonTCGAPIKey != "" {
		opts.Headers = map[string]string{
			"X-Api-Key": cfg.PokemonTCGAPIKey,
		}
	}
	client := pokemontcg.NewPokemonTCGClient(newFetcher(opts, logger))

	var trend pokemontcg.TrendResolver
	if cfg.CardmarketScrape {
		scrapeOpts := fetchOptions(cfg)
		scrapeOpts.Headers = map[string]string{
			"Accept":          "text/html,application/xhtml+xml",
			"Accept-Language": "en-US,en;q=0.8",
		}
		scraper := cardmarket.NewTrendScraper(newFetcher(scrapeOpts, logger))
		scraper.LogCallback = logger
		trend = scraper
	}

	ptcg := pokemontcg.NewPokemonTCG(client, trend, cfg.Converter())
	ptcg.LogCallback = logger
	if cfg.MaxConcurrency > 0 {
		ptcg.MaxConcurrency = cfg.MaxConcurrency
	}
	return ptcg
}

func newYGOProDeck(cfg buyback.Config, logger buyback.LogCallbackFunc) buyback.Searcher {
	client := ygoprodeck.NewYGOClient(newFetcher(fetchOptions(cfg), logger))
	ygo := ygoprodeck.NewYGOProDeck(client)
	ygo.LogCallback = logger
	return ygo
}

func (e *Engine) Config() buyback.Config {
	return e.config
}

// Games returns the games that can be queried, in display order.
func (e *Engine) Games() []buyback.Game {
	var out []buyback.Game
	for _, game := range buyback.AllGames {
		_, found := e.searchers[game]
		if found {
			out = append(out, game)
		}
	}
	return out
}

// Searcher returns the catalog of the named game.
func (e *Engine) Searcher(name string) (buyback.Searcher, error) {
	game, err := buyback.ParseGame(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", err, name)
	}
	searcher, found := e.searchers[game]
	if !found {
		return nil, fmt.Errorf("%w: %s", buyback.ErrGameDisabled, game)
	}
	return searcher, nil
}

func (e *Engine) Search(ctx context.Context, game, query string) ([]QuotedCard, error) {
	searcher, err := e.Searcher(game)
	if err != nil {
		return nil, err
	}
	cards, err := searcher.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	e.printf("%s search %q returned %d cards", searcher.Game(), query, len(cards))

	out := make([]QuotedCard, 0, len(cards))
	for _, card := range cards {
		out = append(out, e.QuoteCard(card))
	}
	return out, nil
}

func (e *Engine) Prints(ctx context.Context, game, name string) (QuotedCard, error) {
	searcher, err := e.Searcher(game)
	if err != nil {
		return QuotedCard{}, err
	}
	card, err := searcher.Prints(ctx, name)
	if err != nil {
		return QuotedCard{}, err
	}
	return e.QuoteCard(card), nil
}

// Quote returns the offer for a market price according to the configured rules.
func (e *Engine) Quote(marketPrice float64) buyback.BuybackQuote {
	return e.config.Rules.Quote(buyback.Sanitize(marketPrice))
}

func (e *Engine) Explain(marketPrice float64, locale string) string {
	return e.config.Rules.Explain(buyback.Sanitize(marketPrice), locale)
}

func (e *Engine) QuoteCard(card buyback.GroupedCard) QuotedCard {
	out := QuotedCard{
		Name:     card.Name,
		Game:     card.Game,
		ImageURL: card.ImageURL,
		Prints:   make([]QuotedPrint, 0, len(card.Prints)),
	}
	for _, pr := range card.Prints {
		out.Prints = append(out.Prints, QuotedPrint{
			NormalizedPrint: pr,
			Quote:           e.Quote(pr.MarketPrice),
		})
	}
	return out
}
