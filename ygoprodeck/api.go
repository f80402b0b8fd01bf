package ygoprodeck

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/mtgban/go-buyback/fetcher"
)

const DefaultBaseURL = "https://db.ygoprodeck.com"

type CardSet struct {
	SetName       string `json:"set_name"`
	SetCode       string `json:"set_code"`
	SetRarity     string `json:"set_rarity"`
	SetRarityCode string `json:"set_rarity_code"`
	SetPrice      string `json:"set_price"`
}

type CardImage struct {
	ID            int    `json:"id"`
	ImageURL      string `json:"image_url"`
	ImageURLSmall string `json:"image_url_small"`
}

type CardPrice struct {
	CardmarketPrice string `json:"cardmarket_price"`
	TCGPlayerPrice  string `json:"tcgplayer_price"`
	EbayPrice       string `json:"ebay_price"`
	AmazonPrice     string `json:"amazon_price"`
}

type Card struct {
	ID         int         `json:"id"`
	Name       string      `json:"name"`
	Type       string      `json:"type"`
	Race       string      `json:"race"`
	CardSets   []CardSet   `json:"card_sets"`
	CardImages []CardImage `json:"card_images"`
	CardPrices []CardPrice `json:"card_prices"`
}

type cardInfoResponse struct {
	Data []Card `json:"data"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// JSONFetcher decodes the JSON document at link into v
type JSONFetcher interface {
	JSON(ctx context.Context, link string, v interface{}) error
}

type YGOClient struct {
	BaseURL string

	client JSONFetcher
}

func NewYGOClient(client JSONFetcher) *YGOClient {
	return &YGOClient{
		BaseURL: DefaultBaseURL,
		client:  client,
	}
}

// Search returns all the cards whose name contains query.
func (yc *YGOClient) Search(ctx context.Context, query string) ([]Card, error) {
	return yc.cardInfo(ctx, "fname", query)
}

// Card returns the card with the exact name.
func (yc *YGOClient) Card(ctx context.Context, name string) ([]Card, error) {
	return yc.cardInfo(ctx, "name", name)
}

func (yc *YGOClient) cardInfo(ctx context.Context, param, value string) ([]Card, error) {
	v := url.Values{}
	v.Set(param, value)
	link := strings.TrimRight(yc.BaseURL, "/") + "/api/v7/cardinfo.php?" + v.Encode()

	var response cardInfoResponse
	err := yc.client.JSON(ctx, link, &response)
	if isNoMatch(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ygoprodeck %s %q: %w", param, value, err)
	}
	return response.Data, nil
}

// The API replies 400 with an error message when nothing matches
func isNoMatch(err error) bool {
	if errors.Is(err, fetcher.ErrNotFound) {
		return true
	}
	var statusErr *fetcher.StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusBadRequest {
		return false
	}
	var response errorResponse
	if json.Unmarshal(statusErr.Body, &response) != nil {
		return false
	}
	return response.Error != ""
}
