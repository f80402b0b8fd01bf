package buyback

import (
	"math"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

type Tier string

const (
	TierFiftyPercent Tier = "FIFTY_PERCENT"
	TierTenPercent   Tier = "TEN_PERCENT"
	TierFloor        Tier = "FLOOR"
)

// BuybackQuote is the offer derived from a market price
type BuybackQuote struct {
	MarketPrice float64 `json:"market_price"`
	BuyPrice    float64 `json:"buy_price"`
	Tier        Tier    `json:"tier"`
}

// Rules holds the thresholds and multipliers of the tiered buy price.
// Tiers are evaluated from the highest, lower bounds are inclusive.
type Rules struct {
	// Prices at or above this value are bought at HighRate
	HighThreshold float64 `json:"high_threshold" yaml:"high_threshold"`
	HighRate      float64 `json:"high_rate" yaml:"high_rate"`

	// Prices at or above this value (and below HighThreshold) are
	// bought at LowRate
	LowThreshold float64 `json:"low_threshold" yaml:"low_threshold"`
	LowRate      float64 `json:"low_rate" yaml:"low_rate"`

	// Everything below LowThreshold, including zero, is bought at this
	// price, without any rounding
	FloorPrice float64 `json:"floor_price" yaml:"floor_price"`
}

var DefaultRules = Rules{
	HighThreshold: 3.00,
	HighRate:      0.50,
	LowThreshold:  0.50,
	LowRate:       0.10,
	FloorPrice:    0.0025,
}

// CalculateBuyPrice returns the price offered for a card with the given
// market price, according to DefaultRules.
func CalculateBuyPrice(marketPrice float64) float64 {
	return DefaultRules.BuyPrice(marketPrice)
}

// Quote returns the full quote for the given market price, according to
// DefaultRules.
func Quote(marketPrice float64) BuybackQuote {
	return DefaultRules.Quote(marketPrice)
}

// Tier returns the tier the market price falls in.
func (r Rules) Tier(marketPrice float64) Tier {
	switch {
	case marketPrice >= r.HighThreshold:
		return TierFiftyPercent
	case marketPrice >= r.LowThreshold:
		return TierTenPercent
	}
	return TierFloor
}

func (r Rules) rate(tier Tier) float64 {
	switch tier {
	case TierFiftyPercent:
		return r.HighRate
	case TierTenPercent:
		return r.LowRate
	}
	return 0
}

// BuyPrice returns the buy price for the market price.
func (r Rules) BuyPrice(marketPrice float64) float64 {
	return r.Quote(marketPrice).BuyPrice
}

// Quote computes the tier and buy price for the market price.
// Percentage tiers are floored to the cent, the shop never rounds up.
func (r Rules) Quote(marketPrice float64) BuybackQuote {
	tier := r.Tier(marketPrice)
	quote := BuybackQuote{
		MarketPrice: marketPrice,
		Tier:        tier,
	}
	if tier == TierFloor {
		quote.BuyPrice = r.FloorPrice
		return quote
	}
	quote.BuyPrice = floorProduct(marketPrice, r.rate(tier))
	return quote
}

// The product is computed in decimal and truncated to cents, never rounding up
func floorProduct(price, rate float64) float64 {
	value := decimal.NewFromFloat(price).Mul(decimal.NewFromFloat(rate))
	return value.Truncate(2).InexactFloat64()
}

// Sanitize clamps a price to a usable value: negative, NaN or infinite
// inputs become zero.
func Sanitize(price float64) float64 {
	if math.IsNaN(price) || math.IsInf(price, 0) || price < 0 {
		return 0
	}
	return price
}

var explanationTags = map[string]language.Tag{
	"en": language.English,
	"it": language.Italian,
}

func init() {
	set := func(key string, en, it string) {
		message.SetString(language.English, key, en)
		message.SetString(language.Italian, key, it)
	}
	set("tier.fifty",
		"Market price %.2f EUR is at least %.2f EUR: we offer %d%% of it, rounded down to the cent (%.2f EUR).",
		"Prezzo di mercato %.2f EUR pari o superiore a %.2f EUR: offriamo il %d%%, arrotondato per difetto al centesimo (%.2f EUR).")
	set("tier.ten",
		"Market price %.2f EUR is between %.2f and %.2f EUR: we offer %d%% of it, rounded down to the cent (%.2f EUR).",
		"Prezzo di mercato %.2f EUR tra %.2f e %.2f EUR: offriamo il %d%%, arrotondato per difetto al centesimo (%.2f EUR).")
	set("tier.floor",
		"Market price %.2f EUR is below %.2f EUR: we offer a fixed %.4f EUR.",
		"Prezzo di mercato %.2f EUR inferiore a %.2f EUR: offriamo un importo fisso di %.4f EUR.")
}

// PricingExplanation describes how the price was derived with DefaultRules.
func PricingExplanation(marketPrice float64, locale string) string {
	return DefaultRules.Explain(marketPrice, locale)
}

// Explain returns a human readable description of the tier and formula
// applied to the market price, in the requested locale ("en" or "it").
// Unknown locales use English.
func (r Rules) Explain(marketPrice float64, locale string) string {
	tag, found := explanationTags[locale]
	if !found {
		tag = language.English
	}
	p := message.NewPrinter(tag)

	quote := r.Quote(marketPrice)
	switch quote.Tier {
	case TierFiftyPercent:
		return p.Sprintf("tier.fifty", marketPrice, r.HighThreshold, percent(r.HighRate), quote.BuyPrice)
	case TierTenPercent:
		return p.Sprintf("tier.ten", marketPrice, r.LowThreshold, r.HighThreshold, percent(r.LowRate), quote.BuyPrice)
	}
	return p.Sprintf("tier.floor", marketPrice, r.LowThreshold, quote.BuyPrice)
}

func percent(rate float64) int {
	return int(math.Round(rate * 100))
}
