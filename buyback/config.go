package buyback

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultMaxConcurrency = 8
	DefaultFetchTimeout   = 12 * time.Second
	DefaultFetchRetries   = 2
	DefaultIdempotencyTTL = 24 * time.Hour
)

var ErrInvalidRules = errors.New("invalid pricing rules")

// Config carries every setting needed to build the search and pricing
// pipeline, it is passed explicitly to whatever constructs it.
type Config struct {
	// Pricing tiers
	Rules Rules

	// The single USD to EUR rate used across all catalogs
	USDToEUR float64

	// Which games are enabled
	Games map[Game]bool

	// Whether to scrape Cardmarket for Pokemon trend prices
	CardmarketScrape bool

	MaxConcurrency int
	FetchTimeout   time.Duration
	FetchRetries   int

	PokemonTCGAPIKey string

	// Submission idempotency keys are kept in Redis when set
	RedisURL       string
	IdempotencyTTL time.Duration

	ListenAddr     string
	DatabaseURL    string
	AllowedOrigins []string
}

func DefaultConfig() Config {
	games := map[Game]bool{}
	for _, game := range AllGames {
		games[game] = true
	}
	return Config{
		Rules:            DefaultRules,
		USDToEUR:         DefaultUSDToEUR,
		Games:            games,
		CardmarketScrape: true,
		MaxConcurrency:   DefaultMaxConcurrency,
		FetchTimeout:     DefaultFetchTimeout,
		FetchRetries:     DefaultFetchRetries,
		IdempotencyTTL:   DefaultIdempotencyTTL,
		ListenAddr:       ":8080",
		AllowedOrigins:   []string{"http://localhost:*"},
	}
}

// Enabled reports whether the game is active in the configuration.
func (c Config) Enabled(game Game) bool {
	return c.Games[game]
}

// EnabledGames returns the active games, in display order.
func (c Config) EnabledGames() []Game {
	var out []Game
	for _, game := range AllGames {
		if c.Games[game] {
			out = append(out, game)
		}
	}
	return out
}

func (c Config) Converter() Converter {
	return NewConverter(c.USDToEUR)
}

// ConfigFromEnv loads the configuration from environment variables,
// starting from DefaultConfig.
func ConfigFromEnv() (Config, error) {
	return configFromLookup(os.Getenv)
}

func configFromLookup(getenv func(string) string) (Config, error) {
	cfg := DefaultConfig()

	if val := getenv("USD_EUR_RATE"); val != "" {
		rate, err := strconv.ParseFloat(val, 64)
		if err != nil || rate <= 0 || math.IsNaN(rate) || math.IsInf(rate, 0) {
			return cfg, fmt.Errorf("invalid USD_EUR_RATE %q", val)
		}
		cfg.USDToEUR = rate
	}

	if val := getenv("ENABLED_GAMES"); val != "" {
		cfg.Games = map[Game]bool{}
		for _, name := range strings.Split(val, ",") {
			name = strings.ToLower(strings.TrimSpace(name))
			if name == "" {
				continue
			}
			game, err := ParseGame(name)
			if err != nil {
				return cfg, fmt.Errorf("invalid ENABLED_GAMES entry %q: %w", name, err)
			}
			cfg.Games[game] = true
		}
	}

	if val := getenv("CARDMARKET_SCRAPE"); val != "" {
		enabled, err := strconv.ParseBool(val)
		if err != nil {
			return cfg, fmt.Errorf("invalid CARDMARKET_SCRAPE %q", val)
		}
		cfg.CardmarketScrape = enabled
	}

	if val := getenv("MAX_CONCURRENCY"); val != "" {
		num, err := strconv.Atoi(val)
		if err != nil || num <= 0 {
			return cfg, fmt.Errorf("invalid MAX_CONCURRENCY %q", val)
		}
		cfg.MaxConcurrency = num
	}

	if val := getenv("FETCH_TIMEOUT"); val != "" {
		timeout, err := time.ParseDuration(val)
		if err != nil || timeout <= 0 {
			return cfg, fmt.Errorf("invalid FETCH_TIMEOUT %q", val)
		}
		cfg.FetchTimeout = timeout
	}

	if val := getenv("FETCH_RETRIES"); val != "" {
		num, err := strconv.Atoi(val)
		if err != nil || num < 0 {
			return cfg, fmt.Errorf("invalid FETCH_RETRIES %q", val)
		}
		cfg.FetchRetries = num
	}

	if val := getenv("RULES_FILE"); val != "" {
		rules, err := LoadRules(val)
		if err != nil {
			return cfg, err
		}
		cfg.Rules = rules
	}

	if val := getenv("IDEMPOTENCY_TTL"); val != "" {
		ttl, err := time.ParseDuration(val)
		if err != nil || ttl <= 0 {
			return cfg, fmt.Errorf("invalid IDEMPOTENCY_TTL %q", val)
		}
		cfg.IdempotencyTTL = ttl
	}

	cfg.PokemonTCGAPIKey = getenv("POKEMONTCG_API_KEY")
	cfg.RedisURL = getenv("REDIS_URL")
	cfg.DatabaseURL = getenv("DATABASE_URL")
	if val := getenv("LISTEN_ADDR"); val != "" {
		cfg.ListenAddr = val
	}
	if val := getenv("ALLOWED_ORIGINS"); val != "" {
		cfg.AllowedOrigins = nil
		for _, origin := range strings.Split(val, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, origin)
			}
		}
	}

	return cfg, nil
}

// LoadRules reads the pricing rules from a YAML file. Fields missing from
// the file keep the value of DefaultRules.
func LoadRules(path string) (Rules, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return DefaultRules, fmt.Errorf("read rules file: %w", err)
	}
	return ParseRules(raw)
}

func ParseRules(raw []byte) (Rules, error) {
	rules := DefaultRules
	err := yaml.Unmarshal(raw, &rules)
	if err != nil {
		return DefaultRules, fmt.Errorf("parse rules: %w", err)
	}
	err = rules.Validate()
	if err != nil {
		return DefaultRules, err
	}
	return rules, nil
}

// Validate checks that tiers are ordered and rates are fractions.
func (r Rules) Validate() error {
	switch {
	case r.LowThreshold <= 0 || r.HighThreshold <= r.LowThreshold:
		return fmt.Errorf("%w: thresholds must be positive and increasing", ErrInvalidRules)
	case r.HighRate <= 0 || r.HighRate > 1:
		return fmt.Errorf("%w: high rate %v out of range", ErrInvalidRules, r.HighRate)
	case r.LowRate <= 0 || r.LowRate > 1:
		return fmt.Errorf("%w: low rate %v out of range", ErrInvalidRules, r.LowRate)
	case r.FloorPrice < 0:
		return fmt.Errorf("%w: negative floor price", ErrInvalidRules)
	}
	return nil
}
