package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/scizorman/go-ndjson"

	"github.com/mtgban/go-buyback/buyback"
	"github.com/mtgban/go-buyback/search"
)

var Commit = func() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			if setting.Key == "vcs.revision" {
				return setting.Value
			}
		}
	}
	return ""
}()

// One line per print, used by ndjson
type printElement struct {
	Card string `json:"card"`
	search.QuotedPrint
}

func flatten(cards []search.QuotedCard) []printElement {
	var out []printElement
	for _, card := range cards {
		for _, pr := range card.Prints {
			out = append(out, printElement{
				Card:        card.Name,
				QuotedPrint: pr,
			})
		}
	}
	return out
}

func writeJSON(cards []search.QuotedCard, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(cards)
}

func writeNDJSON(cards []search.QuotedCard, w io.Writer) error {
	output, err := ndjson.Marshal(flatten(cards))
	if err != nil {
		return err
	}

	_, err = w.Write(output)
	return err
}

func dump(cards []search.QuotedCard, format string, w io.Writer) error {
	switch format {
	case "json":
		return writeJSON(cards, w)
	case "ndjson":
		return writeNDJSON(cards, w)
	}
	return errors.New("invalid format")
}

func run() int {
	gameOpt := flag.String("game", "magic", "Game to query (magic/pokemon/yugioh)")
	searchOpt := flag.String("search", "", "Search cards matching the query")
	printsOpt := flag.String("prints", "", "List all printings of the card with this exact name")
	quoteOpt := flag.Float64("quote", -1, "Print the buyback offer for a market price in EUR")
	localeOpt := flag.String("locale", "en", "Language of the offer explanation (en/it)")
	fileFormatOpt := flag.String("format", "json", "Output format (json/ndjson)")
	verboseOpt := flag.Bool("v", false, "Log every upstream request")
	versionOpt := flag.Bool("version", false, "Print version information")
	flag.Parse()

	log.Println("buybacktool version", Commit)
	if *versionOpt {
		return 0
	}

	switch *fileFormatOpt {
	case "json", "ndjson":
	default:
		log.Println("Invalid -format option, see -h for supported values")
		return 1
	}

	cfg, err := buyback.ConfigFromEnv()
	if err != nil {
		log.Println(err)
		return 1
	}

	var logger buyback.LogCallbackFunc
	if *verboseOpt {
		logger = log.Printf
	}
	engine := search.NewEngine(cfg, logger)

	if *quoteOpt >= 0 {
		quote := engine.Quote(*quoteOpt)
		fmt.Fprintf(os.Stdout, "%0.2f EUR -> %0.4f EUR (%s)\n", quote.MarketPrice, quote.BuyPrice, quote.Tier)
		fmt.Fprintln(os.Stdout, engine.Explain(*quoteOpt, *localeOpt))
		return 0
	}

	if *searchOpt == "" && *printsOpt == "" {
		log.Println("Missing -search or -prints argument, run with -h for a list of commands")
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	start := time.Now()
	var cards []search.QuotedCard
	if *searchOpt != "" {
		cards, err = engine.Search(ctx, strings.ToLower(*gameOpt), *searchOpt)
	} else {
		var card search.QuotedCard
		card, err = engine.Prints(ctx, strings.ToLower(*gameOpt), *printsOpt)
		if len(card.Prints) > 0 {
			cards = append(cards, card)
		}
	}
	if err != nil {
		log.Println(err)
		return 1
	}
	log.Println("Found", len(cards), "cards in", time.Since(start))

	err = dump(cards, *fileFormatOpt, os.Stdout)
	if err != nil {
		log.Println(err)
		return 1
	}

	return 0
}

func main() {
	os.Exit(run())
}
