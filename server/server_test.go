package server

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mtgban/go-buyback/buyback"
	"github.com/mtgban/go-buyback/idempotency"
	"github.com/mtgban/go-buyback/search"
	"github.com/mtgban/go-buyback/submission"
)

type fakeSearcher struct {
	game  buyback.Game
	cards []buyback.GroupedCard
	err   error
}

func (fs *fakeSearcher) Game() buyback.Game {
	return fs.game
}

func (fs *fakeSearcher) Search(ctx context.Context, query string) ([]buyback.GroupedCard, error) {
	return fs.cards, fs.err
}

func (fs *fakeSearcher) Prints(ctx context.Context, name string) (buyback.GroupedCard, error) {
	if len(fs.cards) == 0 {
		return buyback.GroupedCard{Name: name, Game: fs.game}, fs.err
	}
	return fs.cards[0], fs.err
}

func newTestServer(t *testing.T) *Server {
	cfg := buyback.DefaultConfig()
	cfg.Games[buyback.GameYuGiOh] = false

	magic := &fakeSearcher{
		game: buyback.GameMagic,
		cards: []buyback.GroupedCard{{
			Name: "Lightning Bolt",
			Game: buyback.GameMagic,
			Prints: []buyback.NormalizedPrint{
				{Name: "Lightning Bolt", SetCode: "LEA", MarketPrice: 5, PriceSource: buyback.SourceScryfallEUR},
			},
		}},
	}
	pokemon := &fakeSearcher{
		game: buyback.GamePokemon,
		err:  errors.New("upstream exploded"),
	}

	engine := search.NewEngineWithSearchers(cfg, magic, pokemon)
	s := New(engine, submission.NewMemoryStore(), cfg.AllowedOrigins)
	s.LogCallback = t.Logf
	return s
}

func do(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	return doWithHeaders(t, s, method, target, body, nil)
}

func doWithHeaders(t *testing.T, s *Server, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for key, val := range headers {
		req.Header.Set(key, val)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	err := json.NewDecoder(rec.Body).Decode(v)
	if err != nil {
		t.Fatalf("FAIL: could not decode response %q: %s", rec.Body.String(), err)
	}
}

var StatusTests = []struct {
	Name   string
	Method string
	Target string
	Body   string
	Status int
}{
	{"health", "GET", "/health", "", http.StatusOK},
	{"games", "GET", "/api/games", "", http.StatusOK},
	{"search", "GET", "/api/mtg/search?q=bolt", "", http.StatusOK},
	{"search without query", "GET", "/api/mtg/search", "", http.StatusBadRequest},
	{"search unknown game", "GET", "/api/chess/search?q=bolt", "", http.StatusNotFound},
	{"search disabled game", "GET", "/api/yugioh/search?q=kuriboh", "", http.StatusNotFound},
	{"search upstream failure", "GET", "/api/pokemon/search?q=pikachu", "", http.StatusBadGateway},
	{"prints", "GET", "/api/magic/prints?name=Lightning+Bolt", "", http.StatusOK},
	{"prints without name", "GET", "/api/magic/prints", "", http.StatusBadRequest},
	{"quote", "GET", "/api/quote?price=5", "", http.StatusOK},
	{"quote invalid", "GET", "/api/quote?price=abc", "", http.StatusBadRequest},
	{"quote negative", "GET", "/api/quote?price=-3", "", http.StatusBadRequest},
	{"submission bad id", "GET", "/api/submissions/nope", "", http.StatusBadRequest},
	{"submission missing", "GET", "/api/submissions/6f1c2a1e-8d7b-4a51-9b53-2f6a4d1c0e11", "", http.StatusNotFound},
	{"submission bad status", "GET", "/api/submissions?status=lost", "", http.StatusBadRequest},
	{"submission empty", "POST", "/api/submissions", `{"customer": "ash", "items": []}`, http.StatusBadRequest},
	{"submission no customer", "POST", "/api/submissions", `{"items": []}`, http.StatusBadRequest},
	{"submission bad body", "POST", "/api/submissions", `{"customer":`, http.StatusBadRequest},
	{"submission bad item", "POST", "/api/submissions", `{"customer": "ash", "items": [{"game": "magic", "card_name": "Bolt", "quantity": 0}]}`, http.StatusBadRequest},
	{"submission bad game", "POST", "/api/submissions", `{"customer": "ash", "items": [{"game": "chess", "card_name": "Bolt", "quantity": 1}]}`, http.StatusBadRequest},
	{"submission huge price", "POST", "/api/submissions", `{"customer": "ash", "items": [{"game": "magic", "card_name": "Bolt", "quantity": 2, "market_price": 1e308}]}`, http.StatusBadRequest},
	{"submission huge quantity", "POST", "/api/submissions", `{"customer": "ash", "items": [{"game": "magic", "card_name": "Bolt", "quantity": 1000000, "market_price": 5}]}`, http.StatusBadRequest},
}

func TestStatusCodes(t *testing.T) {
	s := newTestServer(t)
	for _, test := range StatusTests {
		t.Run(test.Name, func(t *testing.T) {
			rec := do(t, s, test.Method, test.Target, test.Body)
			if rec.Code != test.Status {
				t.Errorf("FAIL: Expected %d got %d: %s", test.Status, rec.Code, rec.Body.String())
				return
			}
			t.Log("PASS:", test.Name)
		})
	}
}

func TestGames(t *testing.T) {
	s := newTestServer(t)

	var out struct {
		Games []buyback.Game `json:"games"`
	}
	decode(t, do(t, s, "GET", "/api/games", ""), &out)
	if len(out.Games) != 2 || out.Games[0] != buyback.GameMagic || out.Games[1] != buyback.GamePokemon {
		t.Errorf("FAIL: unexpected games %v", out.Games)
	}
}

func TestSearchQuote(t *testing.T) {
	s := newTestServer(t)

	var cards []search.QuotedCard
	decode(t, do(t, s, "GET", "/api/mtg/search?q=bolt", ""), &cards)
	if len(cards) != 1 || len(cards[0].Prints) != 1 {
		t.Fatalf("FAIL: unexpected cards %+v", cards)
	}
	if cards[0].Prints[0].Quote.BuyPrice != 2.50 {
		t.Errorf("FAIL: Expected buy price 2.50 got %v", cards[0].Prints[0].Quote.BuyPrice)
	}
}

func TestQuote(t *testing.T) {
	s := newTestServer(t)

	var out quoteResponse
	decode(t, do(t, s, "GET", "/api/quote?price=1.2&locale=it", ""), &out)
	if out.BuyPrice != 0.12 || out.Tier != buyback.TierTenPercent {
		t.Errorf("FAIL: unexpected quote %+v", out)
	}
	if out.Explanation == "" {
		t.Errorf("FAIL: missing explanation")
	}
}

func TestSubmissionFlow(t *testing.T) {
	s := newTestServer(t)

	// The buy price sent by the client is ignored
	body := `{
		"customer": "ash@example.com",
		"items": [
			{"game": "mtg", "card_name": "Lightning Bolt", "set_code": "LEA", "quantity": 1, "market_price": 5, "condition": "nm", "buy_price": 4},
			{"game": "magic", "card_name": "Lightning Bolt", "set_code": "LEA", "quantity": 2, "market_price": 5, "condition": "NM"}
		]
	}`
	rec := do(t, s, "POST", "/api/submissions", body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("FAIL: unknown fields should be rejected, got %d", rec.Code)
	}

	body = strings.Replace(body, `, "buy_price": 4`, "", 1)
	rec = do(t, s, "POST", "/api/submissions", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("FAIL: Expected 201 got %d: %s", rec.Code, rec.Body.String())
	}

	var created submissionResponse
	decode(t, rec, &created)
	if created.Status != submission.StatusPending || len(created.Items) != 1 {
		t.Fatalf("FAIL: unexpected submission %+v", created.Submission)
	}
	if created.Items[0].Quantity != 3 || created.Items[0].BuyPrice != 2.50 {
		t.Errorf("FAIL: unexpected item %+v", created.Items[0])
	}
	if created.Summary.Cards != 3 || created.Summary.TotalBuy != 7.50 {
		t.Errorf("FAIL: unexpected summary %+v", created.Summary)
	}

	target := "/api/submissions/" + created.Id.String()

	rec = do(t, s, "GET", target, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("FAIL: Expected 200 got %d", rec.Code)
	}

	rec = do(t, s, "PATCH", target, `{"status": "paid"}`)
	if rec.Code != http.StatusConflict {
		t.Errorf("FAIL: Expected 409 got %d", rec.Code)
	}
	rec = do(t, s, "PATCH", target, `{"status": "shipped"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("FAIL: Expected 400 got %d", rec.Code)
	}

	rec = do(t, s, "PATCH", target, `{"status": "accepted", "notes": "ok"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("FAIL: Expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	var updated submissionResponse
	decode(t, rec, &updated)
	if updated.Status != submission.StatusAccepted || updated.Notes != "ok" {
		t.Errorf("FAIL: unexpected update %+v", updated.Submission)
	}

	var pending []submissionResponse
	decode(t, do(t, s, "GET", "/api/submissions?status=pending", ""), &pending)
	if len(pending) != 0 {
		t.Errorf("FAIL: Expected no pending submissions got %d", len(pending))
	}
	var accepted []submissionResponse
	decode(t, do(t, s, "GET", "/api/submissions?status=accepted", ""), &accepted)
	if len(accepted) != 1 || accepted[0].Id != created.Id {
		t.Errorf("FAIL: unexpected accepted list %+v", accepted)
	}

	rec = do(t, s, "PATCH", "/api/submissions/6f1c2a1e-8d7b-4a51-9b53-2f6a4d1c0e11", `{"status": "accepted"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("FAIL: Expected 404 got %d", rec.Code)
	}
}

func TestCORS(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest("OPTIONS", "/api/games", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "GET")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Header().Get("Access-Control-Allow-Origin") != "http://localhost:3000" {
		t.Errorf("FAIL: origin not allowed: %v", rec.Header())
	}
}

func TestIdempotentSubmission(t *testing.T) {
	s := newTestServer(t)
	s.Idempotency = idempotency.NewMemoryStore()

	body := `{"customer": "ash", "items": [{"game": "magic", "card_name": "Lightning Bolt", "quantity": 1, "market_price": 1.2}]}`
	headers := map[string]string{"Idempotency-Key": "cart-42"}

	rec := doWithHeaders(t, s, "POST", "/api/submissions", body, headers)
	if rec.Code != http.StatusCreated {
		t.Fatalf("FAIL: Expected 201 got %d: %s", rec.Code, rec.Body.String())
	}
	var first submissionResponse
	decode(t, rec, &first)

	rec = doWithHeaders(t, s, "POST", "/api/submissions", body, headers)
	if rec.Code != http.StatusOK {
		t.Fatalf("FAIL: Expected 200 on replay got %d: %s", rec.Code, rec.Body.String())
	}
	var second submissionResponse
	decode(t, rec, &second)
	if second.Id != first.Id {
		t.Errorf("FAIL: replay created a new submission %s != %s", second.Id, first.Id)
	}

	var all []submissionResponse
	decode(t, do(t, s, "GET", "/api/submissions", ""), &all)
	if len(all) != 1 {
		t.Errorf("FAIL: Expected 1 submission got %d", len(all))
	}

	rec = doWithHeaders(t, s, "POST", "/api/submissions", body, map[string]string{"Idempotency-Key": "bad key"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("FAIL: Expected 400 for an invalid key got %d", rec.Code)
	}

	// Without a key every request creates a submission
	_ = do(t, s, "POST", "/api/submissions", body)
	decode(t, do(t, s, "GET", "/api/submissions", ""), &all)
	if len(all) != 2 {
		t.Errorf("FAIL: Expected 2 submissions got %d", len(all))
	}
}

func TestOversizedSubmission(t *testing.T) {
	s := newTestServer(t)

	body := `{"customer": "ash", "items": [{"game": "magic", "card_name": "Lightning Bolt", "quantity": 2, "market_price": 1e308}]}`
	rec := do(t, s, "POST", "/api/submissions", body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("FAIL: Expected 400 got %d: %s", rec.Code, rec.Body.String())
	}

	// Nothing was stored, the list is still readable
	rec = do(t, s, "GET", "/api/submissions", "")
	var all []submissionResponse
	decode(t, rec, &all)
	if len(all) != 0 {
		t.Errorf("FAIL: Expected no submissions got %d", len(all))
	}
}

func TestRespondUnencodable(t *testing.T) {
	s := newTestServer(t)

	var logged bool
	s.LogCallback = func(format string, a ...interface{}) {
		logged = true
	}

	rec := httptest.NewRecorder()
	s.respondJSON(rec, http.StatusOK, map[string]float64{"total": math.Inf(1)})
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("FAIL: Expected 500 got %d", rec.Code)
	}
	var out map[string]string
	decode(t, rec, &out)
	if out["error"] == "" {
		t.Errorf("FAIL: Expected an error body got %v", out)
	}
	if !logged {
		t.Errorf("FAIL: encode error was not logged")
	}
}
