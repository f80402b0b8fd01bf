package buyback

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// Exchange rate applied to every USD price found upstream.
// Upstream code used both 0.85 and 0.92, this value needs confirmation.
const DefaultUSDToEUR = 0.92

var ErrNoPrice = errors.New("no price")

// Converter turns upstream USD prices into EUR
type Converter struct {
	USDToEUR float64
}

func NewConverter(rate float64) Converter {
	if rate <= 0 || math.IsNaN(rate) || math.IsInf(rate, 0) {
		rate = DefaultUSDToEUR
	}
	return Converter{USDToEUR: rate}
}

func (c Converter) FromUSD(usd float64) float64 {
	rate := c.USDToEUR
	if rate == 0 {
		rate = DefaultUSDToEUR
	}
	return usd * rate
}

// ParsePrice parses a dot-decimal price as found in JSON payloads.
// Missing, malformed, non-finite and non-positive values are all reported
// as ErrNoPrice.
func ParsePrice(str string) (float64, error) {
	str = strings.TrimSpace(str)
	if str == "" || str == "null" {
		return 0, ErrNoPrice
	}
	price, err := strconv.ParseFloat(str, 64)
	if err != nil {
		return 0, ErrNoPrice
	}
	return positive(price)
}

func positive(price float64) (float64, error) {
	if math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
		return 0, ErrNoPrice
	}
	return price, nil
}

// ParseEuro parses a price formatted the European way, with a comma as
// decimal separator and dots or spaces as thousands separators, ignoring
// any currency symbol ("12.345,67 €" is 12345.67).
// Without a comma, a dot followed by exactly three digits is considered
// a thousands separator ("1.234" is 1234), otherwise a decimal one.
func ParseEuro(str string) (float64, error) {
	var b strings.Builder
	for _, r := range str {
		switch {
		case unicode.IsDigit(r), r == ',', r == '.':
			b.WriteRune(r)
		case unicode.IsSpace(r), r == '€', r == '\'':
		case unicode.IsLetter(r):
			// Currency codes like EUR
		case r == '-':
			return 0, errors.New("negative price")
		}
	}
	num := b.String()
	if num == "" {
		return 0, ErrNoPrice
	}

	if strings.Contains(num, ",") {
		num = strings.Replace(num, ".", "", -1)
		if strings.Count(num, ",") > 1 {
			return 0, errors.New("malformed price " + str)
		}
		num = strings.Replace(num, ",", ".", 1)
	} else if strings.Contains(num, ".") {
		fields := strings.Split(num, ".")
		thousands := len(fields) > 2
		if !thousands {
			thousands = len(fields[1]) == 3
		}
		if thousands {
			for _, field := range fields[1:] {
				if len(field) != 3 {
					return 0, errors.New("malformed price " + str)
				}
			}
			num = strings.Join(fields, "")
		}
	}

	price, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, errors.New("malformed price " + str)
	}
	return price, nil
}
