package submission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mtgban/go-buyback/buyback"
)

const defaultQueryTimeout = 5 * time.Second

var cardColumns = []string{
	"submission_id", "position", "game", "card_name", "set_code", "set_name",
	"number", "quantity", "market_price", "buy_price", "tier", "condition",
	"foil", "language",
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresStore keeps submissions in the submissions and submission_cards
// tables, which are expected to exist already.
type PostgresStore struct {
	db      *pgxpool.Pool
	timeout time.Duration
}

func NewPostgresStore(db *pgxpool.Pool, timeout time.Duration) *PostgresStore {
	if timeout <= 0 {
		timeout = defaultQueryTimeout
	}
	return &PostgresStore{db: db, timeout: timeout}
}

func (ps *PostgresStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, ps.timeout)
}

func (ps *PostgresStore) Create(ctx context.Context, sub *Submission) error {
	if len(sub.Items) == 0 {
		return ErrEmpty
	}

	timeoutCtx, cancel := ps.withTimeout(ctx)
	defer cancel()

	tx, err := ps.db.Begin(timeoutCtx)
	if err != nil {
		return err
	}
	defer tx.Rollback(timeoutCtx)

	const query = `
	INSERT INTO submissions (id, customer, status, notes, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = tx.Exec(timeoutCtx, query, sub.Id, sub.Customer, string(sub.Status), sub.Notes, sub.CreatedAt, sub.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}

	_, err = tx.CopyFrom(timeoutCtx, pgx.Identifier{"submission_cards"}, cardColumns,
		pgx.CopyFromSlice(len(sub.Items), func(i int) ([]any, error) {
			item := sub.Items[i]
			return []any{
				sub.Id, i, string(item.Game), item.CardName, item.SetCode, item.SetName,
				item.Number, item.Quantity, item.MarketPrice, item.BuyPrice, string(item.Tier), item.Condition,
				item.Foil, item.Language,
			}, nil
		}))
	if err != nil {
		return fmt.Errorf("insert submission cards: %w", err)
	}

	return tx.Commit(timeoutCtx)
}

func (ps *PostgresStore) Get(ctx context.Context, id uuid.UUID) (Submission, error) {
	const query = `
	SELECT id, customer, status, notes, created_at, updated_at
	FROM submissions WHERE id = $1 LIMIT 1
	`
	timeoutCtx, cancel := ps.withTimeout(ctx)
	defer cancel()

	rows, err := ps.db.Query(timeoutCtx, query, id)
	if err != nil {
		return Submission{}, err
	}
	subs, err := scanSubmissions(rows)
	if err != nil {
		return Submission{}, err
	}
	if len(subs) == 0 {
		return Submission{}, ErrNotFound
	}

	sub := subs[0]
	sub.Items, err = loadItems(timeoutCtx, ps.db, sub.Id)
	if err != nil {
		return Submission{}, err
	}
	return sub, nil
}

func (ps *PostgresStore) List(ctx context.Context, status Status) ([]Submission, error) {
	const query = `
	SELECT id, customer, status, notes, created_at, updated_at
	FROM submissions WHERE ($1::text = '' OR status = $1)
	ORDER BY created_at DESC, id
	`
	timeoutCtx, cancel := ps.withTimeout(ctx)
	defer cancel()

	rows, err := ps.db.Query(timeoutCtx, query, string(status))
	if err != nil {
		return nil, err
	}
	subs, err := scanSubmissions(rows)
	if err != nil {
		return nil, err
	}

	for i := range subs {
		subs[i].Items, err = loadItems(timeoutCtx, ps.db, subs[i].Id)
		if err != nil {
			return nil, err
		}
	}
	return subs, nil
}

func (ps *PostgresStore) UpdateStatus(ctx context.Context, id uuid.UUID, status Status, notes string) (Submission, error) {
	timeoutCtx, cancel := ps.withTimeout(ctx)
	defer cancel()

	tx, err := ps.db.Begin(timeoutCtx)
	if err != nil {
		return Submission{}, err
	}
	defer tx.Rollback(timeoutCtx)

	var current string
	err = tx.QueryRow(timeoutCtx, `SELECT status FROM submissions WHERE id = $1 FOR UPDATE`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return Submission{}, ErrNotFound
	}
	if err != nil {
		return Submission{}, err
	}

	err = checkTransition(Status(current), status)
	if err != nil {
		return Submission{}, err
	}

	const query = `
	UPDATE submissions SET status = $1, notes = $2, updated_at = $3
	WHERE id = $4
	`
	_, err = tx.Exec(timeoutCtx, query, string(status), notes, time.Now().UTC().Truncate(time.Microsecond), id)
	if err != nil {
		return Submission{}, fmt.Errorf("update submission: %w", err)
	}

	err = tx.Commit(timeoutCtx)
	if err != nil {
		return Submission{}, err
	}
	return ps.Get(ctx, id)
}

func scanSubmissions(rows pgx.Rows) ([]Submission, error) {
	defer rows.Close()

	var out []Submission
	for rows.Next() {
		var sub Submission
		var status string
		err := rows.Scan(&sub.Id, &sub.Customer, &status, &sub.Notes, &sub.CreatedAt, &sub.UpdatedAt)
		if err != nil {
			return nil, err
		}
		sub.Status = Status(status)
		out = append(out, sub)
	}
	return out, rows.Err()
}

func loadItems(ctx context.Context, db querier, id uuid.UUID) ([]buyback.SellListItem, error) {
	const query = `
	SELECT game, card_name, set_code, set_name, number, quantity, market_price,
	       buy_price, tier, condition, foil, language
	FROM submission_cards WHERE submission_id = $1
	ORDER BY position
	`
	rows, err := db.Query(ctx, query, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []buyback.SellListItem
	for rows.Next() {
		var item buyback.SellListItem
		var game, tier string
		err := rows.Scan(&game, &item.CardName, &item.SetCode, &item.SetName,
			&item.Number, &item.Quantity, &item.MarketPrice, &item.BuyPrice,
			&tier, &item.Condition, &item.Foil, &item.Language)
		if err != nil {
			return nil, err
		}
		item.Game = buyback.Game(game)
		item.Tier = buyback.Tier(tier)
		out = append(out, item)
	}
	return out, rows.Err()
}
