package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/rickgao/lot-auctions/internal/model"
)

// PostgreSQL error codes.
const (
	pgUniqueViolation  = "23505"
	pgLockNotAvailable = "55P03"
)

const liveLotIndex = "auctions_live_lot_idx"

var _ Store = (*Postgres)(nil)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres is a Store backed by PostgreSQL. The schema is created by
// database.Migrate.
type Postgres struct {
	pgTx
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

// NewPostgres wraps a pool. lockTimeout bounds the wait for an auction row
// lock inside WithLock.
func NewPostgres(pool *pgxpool.Pool, lockTimeout time.Duration) *Postgres {
	return &Postgres{
		pgTx:        pgTx{q: pool},
		pool:        pool,
		lockTimeout: lockTimeout,
	}
}

// SeedAntiSniping inserts the anti-sniping singleton if it does not exist.
// An existing row, edited through the API, is left alone.
func (p *Postgres) SeedAntiSniping(ctx context.Context, cfg model.AntiSnipingConfig) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO antisniping_config (id, enabled, threshold_seconds, extension_seconds, max_extensions)
		VALUES (1, $1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING`,
		cfg.Enabled, cfg.ThresholdSeconds, cfg.ExtensionSeconds, cfg.MaxExtensions,
	)
	if err != nil {
		return fmt.Errorf("seed antisniping config: %w", err)
	}
	return nil
}

// CreateAuction implements Store.
func (p *Postgres) CreateAuction(ctx context.Context, a model.Auction) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO auctions (id, lot_ref, start_time, end_time, base_price, state, extensions_applied, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5::text::numeric, $6, $7, $8, $9)`,
		a.ID, a.LotRef, a.StartTime, a.EndTime, a.BasePrice.String(), string(a.State),
		a.ExtensionsApplied, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == liveLotIndex {
			return ErrLotBusy
		}
		return fmt.Errorf("insert auction: %w", err)
	}
	return nil
}

// ListAuctions implements Store.
func (p *Postgres) ListAuctions(ctx context.Context) ([]model.Auction, error) {
	return p.listAuctions(ctx, `SELECT `+auctionColumns+` FROM auctions ORDER BY start_time, id`)
}

// ListNonTerminal implements Store.
func (p *Postgres) ListNonTerminal(ctx context.Context) ([]model.Auction, error) {
	return p.listAuctions(ctx, `SELECT `+auctionColumns+` FROM auctions
		WHERE state IN ('SCHEDULED', 'ACTIVE') ORDER BY start_time, id`)
}

func (p *Postgres) listAuctions(ctx context.Context, sql string) ([]model.Auction, error) {
	rows, err := p.pool.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("query auctions: %w", err)
	}
	defer rows.Close()

	var out []model.Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate auctions: %w", err)
	}
	return out, nil
}

// AntiSniping implements Store.
func (p *Postgres) AntiSniping(ctx context.Context) (model.AntiSnipingConfig, error) {
	var cfg model.AntiSnipingConfig
	err := p.pool.QueryRow(ctx, `
		SELECT enabled, threshold_seconds, extension_seconds, max_extensions
		FROM antisniping_config WHERE id = 1`,
	).Scan(&cfg.Enabled, &cfg.ThresholdSeconds, &cfg.ExtensionSeconds, &cfg.MaxExtensions)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.DefaultAntiSniping(), nil
	}
	if err != nil {
		return model.AntiSnipingConfig{}, fmt.Errorf("query antisniping config: %w", err)
	}
	return cfg, nil
}

// SaveAntiSniping implements Store.
func (p *Postgres) SaveAntiSniping(ctx context.Context, cfg model.AntiSnipingConfig) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO antisniping_config (id, enabled, threshold_seconds, extension_seconds, max_extensions, updated_at)
		VALUES (1, $1, $2, $3, $4, now())
		ON CONFLICT (id) DO UPDATE SET
			enabled = EXCLUDED.enabled,
			threshold_seconds = EXCLUDED.threshold_seconds,
			extension_seconds = EXCLUDED.extension_seconds,
			max_extensions = EXCLUDED.max_extensions,
			updated_at = EXCLUDED.updated_at`,
		cfg.Enabled, cfg.ThresholdSeconds, cfg.ExtensionSeconds, cfg.MaxExtensions,
	)
	if err != nil {
		return fmt.Errorf("save antisniping config: %w", err)
	}
	return nil
}

// WithLock implements Store. The auction row is locked with FOR UPDATE in a
// transaction that commits only if fn succeeds.
func (p *Postgres) WithLock(ctx context.Context, id string, fn func(Tx) error) (err error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ErrLockTimeout
		}
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
		}
	}()

	if p.lockTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", p.lockTimeout.Milliseconds())
		if _, err = tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("set lock_timeout: %w", err)
		}
	}

	var locked string
	err = tx.QueryRow(ctx, `SELECT id FROM auctions WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return ErrNotFound
	case isLockNotAvailable(err), err != nil && ctx.Err() != nil:
		return ErrLockTimeout
	case err != nil:
		return fmt.Errorf("lock auction: %w", err)
	}

	if err = fn(pgTx{q: tx}); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// ReadSnapshot implements Store using a read-only repeatable-read
// transaction, so every read inside fn sees the same snapshot.
func (p *Postgres) ReadSnapshot(ctx context.Context, id string, fn func(Reader) error) error {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	})
	if err != nil {
		return fmt.Errorf("begin snapshot: %w", err)
	}
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	r := pgTx{q: tx}
	if _, err := r.Auction(ctx, id); err != nil {
		return err
	}
	return fn(r)
}

func isLockNotAvailable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgLockNotAvailable
}

// pgTx implements Tx over any querier.
type pgTx struct {
	q querier
}

const auctionColumns = `id, lot_ref, start_time, end_time, base_price::text, state,
	extensions_applied, created_at, updated_at`

const bidColumns = `id, auction_id, bidder_id, amount::text, placed_at, is_winning, version`

func (t pgTx) Auction(ctx context.Context, id string) (model.Auction, error) {
	row := t.q.QueryRow(ctx, `SELECT `+auctionColumns+` FROM auctions WHERE id = $1`, id)
	a, err := scanAuction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Auction{}, ErrNotFound
	}
	return a, err
}

func (t pgTx) Bids(ctx context.Context, auctionID string) ([]model.Bid, error) {
	rows, err := t.q.Query(ctx, `SELECT `+bidColumns+` FROM bids
		WHERE auction_id = $1 ORDER BY placed_at, version`, auctionID)
	if err != nil {
		return nil, fmt.Errorf("query bids: %w", err)
	}
	defer rows.Close()

	var out []model.Bid
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bids: %w", err)
	}
	return out, nil
}

func (t pgTx) WinningBid(ctx context.Context, auctionID string) (model.Bid, bool, error) {
	row := t.q.QueryRow(ctx, `SELECT `+bidColumns+` FROM bids
		WHERE auction_id = $1 AND is_winning`, auctionID)
	b, err := scanBid(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Bid{}, false, nil
	}
	if err != nil {
		return model.Bid{}, false, err
	}
	return b, true, nil
}

func (t pgTx) BidCount(ctx context.Context, auctionID string) (int, error) {
	var n int
	if err := t.q.QueryRow(ctx, `SELECT count(*) FROM bids WHERE auction_id = $1`, auctionID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count bids: %w", err)
	}
	return n, nil
}

func (t pgTx) UpdateAuction(ctx context.Context, a model.Auction) error {
	tag, err := t.q.Exec(ctx, `
		UPDATE auctions SET end_time = $2, state = $3, extensions_applied = $4, updated_at = $5
		WHERE id = $1`,
		a.ID, a.EndTime, string(a.State), a.ExtensionsApplied, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update auction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t pgTx) InsertBid(ctx context.Context, b model.Bid) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO bids (id, auction_id, bidder_id, amount, placed_at, is_winning, version)
		VALUES ($1, $2, $3, $4::text::numeric, $5, $6, $7)`,
		b.ID, b.AuctionID, b.BidderID, b.Amount.String(), b.PlacedAt, b.IsWinning, b.Version,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrWinnerExists
		}
		return fmt.Errorf("insert bid: %w", err)
	}
	return nil
}

func (t pgTx) ClearWinning(ctx context.Context, auctionID string) error {
	if _, err := t.q.Exec(ctx, `UPDATE bids SET is_winning = false
		WHERE auction_id = $1 AND is_winning`, auctionID); err != nil {
		return fmt.Errorf("clear winning bid: %w", err)
	}
	return nil
}

func (t pgTx) TransitionState(ctx context.Context, id string, from []model.State, to model.State) (bool, error) {
	fromText := make([]string, len(from))
	for i, s := range from {
		fromText[i] = string(s)
	}
	tag, err := t.q.Exec(ctx, `
		UPDATE auctions SET state = $2, updated_at = now()
		WHERE id = $1 AND state = ANY($3)`,
		id, string(to), fromText,
	)
	if err != nil {
		return false, fmt.Errorf("transition auction state: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (t pgTx) DeleteAuction(ctx context.Context, id string) error {
	tag, err := t.q.Exec(ctx, `DELETE FROM auctions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete auction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanAuction(row pgx.Row) (model.Auction, error) {
	var (
		a     model.Auction
		price string
		state string
	)
	err := row.Scan(&a.ID, &a.LotRef, &a.StartTime, &a.EndTime, &price, &state,
		&a.ExtensionsApplied, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Auction{}, err
	}
	if err != nil {
		return model.Auction{}, fmt.Errorf("scan auction: %w", err)
	}
	if a.BasePrice, err = decimal.NewFromString(price); err != nil {
		return model.Auction{}, fmt.Errorf("parse base_price %q: %w", price, err)
	}
	a.State = model.State(state)
	return a, nil
}

func scanBid(row pgx.Row) (model.Bid, error) {
	var (
		b      model.Bid
		amount string
	)
	err := row.Scan(&b.ID, &b.AuctionID, &b.BidderID, &amount, &b.PlacedAt, &b.IsWinning, &b.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Bid{}, err
	}
	if err != nil {
		return model.Bid{}, fmt.Errorf("scan bid: %w", err)
	}
	if b.Amount, err = decimal.NewFromString(amount); err != nil {
		return model.Bid{}, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	return b, nil
}
