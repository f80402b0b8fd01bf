// Package submission manages sell lists and the submissions a customer
// sends to the shop for review, acceptance and payment.
package submission

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/montanaflynn/stats"

	"github.com/mtgban/go-buyback/buyback"
)

const (
	DefaultLanguage = "EN"

	// Upper bounds of a single line
	MaxQuantity    = 10000
	MaxMarketPrice = 1000000
)

var ErrEmpty = errors.New("sell list is empty")
var ErrInvalidItem = errors.New("invalid sell list item")

// SellList holds the cards a customer wants to sell, prices are frozen
// when each item is created.
type SellList struct {
	Items []buyback.SellListItem `json:"items"`
}

// NewItem creates a sell list item from a print, computing and freezing its
// buy price with rules.
func NewItem(pr buyback.NormalizedPrint, quantity int, condition string, foil bool, language string, rules buyback.Rules) buyback.SellListItem {
	quote := rules.Quote(buyback.Sanitize(pr.MarketPrice))
	return buyback.SellListItem{
		Game:        pr.Game,
		CardName:    pr.Name,
		SetCode:     pr.SetCode,
		SetName:     pr.SetName,
		Number:      pr.Number,
		Quantity:    quantity,
		MarketPrice: quote.MarketPrice,
		BuyPrice:    quote.BuyPrice,
		Tier:        quote.Tier,
		Condition:   condition,
		Foil:        foil,
		Language:    language,
	}
}

func normalizeItem(item *buyback.SellListItem) error {
	if item.CardName == "" {
		return fmt.Errorf("%w: missing card name", ErrInvalidItem)
	}
	if item.Quantity <= 0 || item.Quantity > MaxQuantity {
		return fmt.Errorf("%w: quantity %d for %s", ErrInvalidItem, item.Quantity, item.CardName)
	}
	if item.MarketPrice > MaxMarketPrice {
		return fmt.Errorf("%w: market price %.2f for %s", ErrInvalidItem, item.MarketPrice, item.CardName)
	}

	item.Condition = strings.ToUpper(strings.TrimSpace(item.Condition))
	if item.Condition == "" {
		item.Condition = buyback.Conditions[0]
	}
	if !slices.Contains(buyback.Conditions, item.Condition) {
		return fmt.Errorf("%w: condition %q for %s", ErrInvalidItem, item.Condition, item.CardName)
	}

	item.Language = strings.ToUpper(strings.TrimSpace(item.Language))
	if item.Language == "" {
		item.Language = DefaultLanguage
	}
	return nil
}

func sameLine(a, b buyback.SellListItem) bool {
	return a.Game == b.Game &&
		a.CardName == b.CardName &&
		strings.EqualFold(a.SetCode, b.SetCode) &&
		strings.EqualFold(a.Number, b.Number) &&
		a.Condition == b.Condition &&
		a.Foil == b.Foil &&
		a.Language == b.Language &&
		a.MarketPrice == b.MarketPrice &&
		a.BuyPrice == b.BuyPrice
}

// Add a new item to the list, identical lines are merged by adding their
// quantities. Prices of existing lines are never changed.
func (sl *SellList) Add(item buyback.SellListItem) error {
	err := normalizeItem(&item)
	if err != nil {
		return err
	}

	for i := range sl.Items {
		if sameLine(sl.Items[i], item) {
			quantity := sl.Items[i].Quantity + item.Quantity
			if quantity > MaxQuantity {
				return fmt.Errorf("%w: quantity %d for %s", ErrInvalidItem, quantity, item.CardName)
			}
			sl.Items[i].Quantity = quantity
			return nil
		}
	}

	sl.Items = append(sl.Items, item)
	return nil
}

// Remove the item at index.
func (sl *SellList) Remove(index int) error {
	if index < 0 || index >= len(sl.Items) {
		return fmt.Errorf("index %d out of range", index)
	}
	sl.Items = slices.Delete(sl.Items, index, index+1)
	return nil
}

// SetQuantity changes the quantity of the item at index, a zero quantity
// removes it.
func (sl *SellList) SetQuantity(index, quantity int) error {
	if index < 0 || index >= len(sl.Items) {
		return fmt.Errorf("index %d out of range", index)
	}
	if quantity < 0 || quantity > MaxQuantity {
		return fmt.Errorf("%w: quantity %d", ErrInvalidItem, quantity)
	}
	if quantity == 0 {
		return sl.Remove(index)
	}
	sl.Items[index].Quantity = quantity
	return nil
}

func (sl *SellList) Len() int {
	return len(sl.Items)
}

type Summary struct {
	Lines       int     `json:"lines"`
	Cards       int     `json:"cards"`
	TotalMarket float64 `json:"total_market"`
	TotalBuy    float64 `json:"total_buy"`
	MedianBuy   float64 `json:"median_buy"`
}

// Summarize computes the totals of a list of items, the median is the one
// of the unit buy prices of each line.
func Summarize(items []buyback.SellListItem) Summary {
	out := Summary{
		Lines: len(items),
	}
	if len(items) == 0 {
		return out
	}

	var market, buy, unit stats.Float64Data
	for _, item := range items {
		out.Cards += item.Quantity
		market = append(market, item.MarketPrice*float64(item.Quantity))
		buy = append(buy, item.BuyPrice*float64(item.Quantity))
		unit = append(unit, item.BuyPrice)
	}

	out.TotalMarket, _ = stats.Round(total(market), 2)
	out.TotalBuy, _ = stats.Round(total(buy), 4)
	out.MedianBuy, _ = stats.Median(unit)
	return out
}

func total(data stats.Float64Data) float64 {
	sum, err := stats.Sum(data)
	if err != nil {
		return 0
	}
	return sum
}

func (sl *SellList) Summary() Summary {
	return Summarize(sl.Items)
}
