package buyback

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Price assigned to prints without any price when they need to stay
// selectable in a list
const NominalFloorPrice = 0.50

// MissingPricePolicy decides what happens to prints without a usable price.
type MissingPricePolicy int

const (
	// Drop unpriced prints, used for search results
	ExcludeUnpriced MissingPricePolicy = iota

	// Keep unpriced prints with a zero market price
	KeepUnpriced

	// Replace the missing price with NominalFloorPrice, used when listing
	// every printing of a card so that each remains orderable
	NominalFloor
)

func (p MissingPricePolicy) String() string {
	switch p {
	case ExcludeUnpriced:
		return "exclude"
	case KeepUnpriced:
		return "keep"
	case NominalFloor:
		return "floor"
	}
	return "unknown"
}

// ApplyPolicy returns a new slice of prints processed according to policy.
func ApplyPolicy(prints []NormalizedPrint, policy MissingPricePolicy) []NormalizedPrint {
	out := make([]NormalizedPrint, 0, len(prints))
	for _, pr := range prints {
		if pr.MarketPrice <= 0 {
			switch policy {
			case ExcludeUnpriced:
				continue
			case NominalFloor:
				pr.MarketPrice = NominalFloorPrice
				pr.PriceSource = SourceNominalFloor
			default:
				pr.MarketPrice = 0
				pr.PriceSource = SourceNone
			}
		}
		out = append(out, pr)
	}
	return out
}

// DedupePrints removes prints sharing the same set code and collector number,
// the first occurrence is preserved.
func DedupePrints(prints []NormalizedPrint) []NormalizedPrint {
	seen := map[string]bool{}
	out := make([]NormalizedPrint, 0, len(prints))
	for _, pr := range prints {
		key := strings.ToLower(pr.SetCode) + "|" + strings.ToLower(pr.Number)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, pr)
	}
	return out
}

// SortByPriceDesc sorts prints from the most expensive one.
func SortByPriceDesc(prints []NormalizedPrint) {
	sort.SliceStable(prints, func(i, j int) bool {
		return prints[i].MarketPrice > prints[j].MarketPrice
	})
}

// SortByReleaseThenPrice sorts prints from the most recent release,
// prints released on the same date are sorted by descending price.
func SortByReleaseThenPrice(prints []NormalizedPrint) {
	sort.SliceStable(prints, func(i, j int) bool {
		if !prints[i].ReleaseDate.Equal(prints[j].ReleaseDate) {
			return prints[i].ReleaseDate.After(prints[j].ReleaseDate)
		}
		return prints[i].MarketPrice > prints[j].MarketPrice
	})
}

// SplitCardName drops the second half of split and double faced card
// names ("Fire // Ice" becomes "Fire").
func SplitCardName(name string) string {
	if i := strings.Index(name, "//"); i > 0 {
		name = name[:i]
	}
	return strings.TrimSpace(name)
}

// NameKey returns the key used to group cards with the same name,
// case and accents are ignored.
func NameKey(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, SplitCardName(name))
	if err != nil {
		out = name
	}
	return cases.Fold().String(out)
}
