package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mtgban/go-buyback/buyback"
	"github.com/mtgban/go-buyback/idempotency"
	"github.com/mtgban/go-buyback/submission"
)

func (s *Server) handleGetGames(w http.ResponseWriter, r *http.Request) {
	games := s.engine.Games()
	if games == nil {
		games = []buyback.Game{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"games": games,
	})
}

// Unknown and disabled games are both reported as missing
func (s *Server) catalogError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, buyback.ErrUnknownGame), errors.Is(err, buyback.ErrGameDisabled):
		s.respondError(w, http.StatusNotFound, err.Error())
	default:
		s.printf("catalog error: %s", err)
		s.respondError(w, http.StatusBadGateway, "catalog unavailable")
	}
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	game := chi.URLParam(r, "game")
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		s.respondError(w, http.StatusBadRequest, "missing q parameter")
		return
	}

	cards, err := s.engine.Search(r.Context(), game, query)
	if err != nil {
		s.catalogError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, cards)
}

func (s *Server) handlePrints(w http.ResponseWriter, r *http.Request) {
	game := chi.URLParam(r, "game")
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		s.respondError(w, http.StatusBadRequest, "missing name parameter")
		return
	}

	card, err := s.engine.Prints(r.Context(), game, name)
	if err != nil {
		s.catalogError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, card)
}

type quoteResponse struct {
	buyback.BuybackQuote
	Explanation string `json:"explanation"`
}

func (s *Server) handleGetQuote(w http.ResponseWriter, r *http.Request) {
	price, err := strconv.ParseFloat(r.URL.Query().Get("price"), 64)
	if err != nil || buyback.Sanitize(price) != price {
		s.respondError(w, http.StatusBadRequest, "invalid price parameter")
		return
	}
	locale := r.URL.Query().Get("locale")

	s.respondJSON(w, http.StatusOK, quoteResponse{
		BuybackQuote: s.engine.Quote(price),
		Explanation:  s.engine.Explain(price, locale),
	})
}

type itemRequest struct {
	Game        string  `json:"game"`
	CardName    string  `json:"card_name"`
	SetCode     string  `json:"set_code"`
	SetName     string  `json:"set_name"`
	Number      string  `json:"number"`
	Quantity    int     `json:"quantity"`
	MarketPrice float64 `json:"market_price"`
	Condition   string  `json:"condition"`
	Foil        bool    `json:"foil"`
	Language    string  `json:"language"`
}

type submissionRequest struct {
	Customer string        `json:"customer"`
	Items    []itemRequest `json:"items"`
}

type updateRequest struct {
	Status string `json:"status"`
	Notes  string `json:"notes"`
}

type submissionResponse struct {
	submission.Submission
	Summary submission.Summary `json:"summary"`
}

func newSubmissionResponse(sub submission.Submission) submissionResponse {
	return submissionResponse{
		Submission: sub,
		Summary:    sub.Summary(),
	}
}

// Buy prices are always recomputed from the market price, never trusted
// from the client
func (s *Server) sellList(req submissionRequest) (submission.SellList, error) {
	var list submission.SellList
	rules := s.engine.Config().Rules
	for _, item := range req.Items {
		game, err := buyback.ParseGame(strings.ToLower(item.Game))
		if err != nil {
			return list, err
		}
		pr := buyback.NormalizedPrint{
			Game:        game,
			Name:        strings.TrimSpace(item.CardName),
			SetCode:     item.SetCode,
			SetName:     item.SetName,
			Number:      item.Number,
			MarketPrice: item.MarketPrice,
		}
		err = list.Add(submission.NewItem(pr, item.Quantity, item.Condition, item.Foil, item.Language, rules))
		if err != nil {
			return list, err
		}
	}
	return list, nil
}

func (s *Server) handleCreateSubmission(w http.ResponseWriter, r *http.Request) {
	var req submissionRequest
	err := decodeJSON(w, r, &req)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Customer) == "" {
		s.respondError(w, http.StatusBadRequest, "missing customer")
		return
	}

	list, err := s.sellList(req)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	sub, err := submission.New(req.Customer, list)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	key := r.Header.Get(idempotencyHeader)
	if key != "" && s.Idempotency != nil {
		err = idempotency.ValidateKey(key)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}

		existing, claimed, err := s.Idempotency.Claim(r.Context(), key, sub.Id, s.IdempotencyTTL)
		if err != nil {
			s.printf("idempotency claim of %s failed: %s", key, err)
			s.respondError(w, http.StatusInternalServerError, "failed to store submission")
			return
		}
		if !claimed {
			s.replay(w, r, existing)
			return
		}
	}

	err = s.store.Create(r.Context(), sub)
	if err != nil {
		s.printf("create submission: %s", err)
		if key != "" && s.Idempotency != nil {
			relErr := s.Idempotency.Release(r.Context(), key)
			if relErr != nil {
				s.printf("idempotency release of %s failed: %s", key, relErr)
			}
		}
		s.respondError(w, http.StatusInternalServerError, "failed to store submission")
		return
	}
	s.printf("submission %s created with %d items", sub.Id, len(sub.Items))

	s.respondJSON(w, http.StatusCreated, newSubmissionResponse(*sub))
}

// Answer a repeated request with the submission created the first time
func (s *Server) replay(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	sub, err := s.store.Get(r.Context(), id)
	if errors.Is(err, submission.ErrNotFound) {
		s.respondError(w, http.StatusConflict, "a request with this idempotency key is in progress")
		return
	}
	if err != nil {
		s.storeError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, newSubmissionResponse(sub))
}

func (s *Server) handleListSubmissions(w http.ResponseWriter, r *http.Request) {
	var status submission.Status
	if val := r.URL.Query().Get("status"); val != "" {
		var err error
		status, err = submission.ParseStatus(val)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	subs, err := s.store.List(r.Context(), status)
	if err != nil {
		s.printf("list submissions: %s", err)
		s.respondError(w, http.StatusInternalServerError, "failed to list submissions")
		return
	}

	out := make([]submissionResponse, 0, len(subs))
	for _, sub := range subs {
		out = append(out, newSubmissionResponse(sub))
	}
	s.respondJSON(w, http.StatusOK, out)
}

func (s *Server) parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid submission id")
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) storeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, submission.ErrNotFound):
		s.respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, submission.ErrInvalidTransition):
		s.respondError(w, http.StatusConflict, err.Error())
	default:
		s.printf("submission store: %s", err)
		s.respondError(w, http.StatusInternalServerError, "submission store error")
	}
}

func (s *Server) handleGetSubmission(w http.ResponseWriter, r *http.Request) {
	id, ok := s.parseID(w, r)
	if !ok {
		return
	}

	sub, err := s.store.Get(r.Context(), id)
	if err != nil {
		s.storeError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, newSubmissionResponse(sub))
}

func (s *Server) handleUpdateSubmission(w http.ResponseWriter, r *http.Request) {
	id, ok := s.parseID(w, r)
	if !ok {
		return
	}

	var req updateRequest
	err := decodeJSON(w, r, &req)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	status, err := submission.ParseStatus(req.Status)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	sub, err := s.store.UpdateStatus(r.Context(), id, status, req.Notes)
	if err != nil {
		s.storeError(w, err)
		return
	}
	s.printf("submission %s moved to %s", sub.Id, sub.Status)

	s.respondJSON(w, http.StatusOK, newSubmissionResponse(sub))
}
