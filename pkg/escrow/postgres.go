package escrow

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists the ledger in PostgreSQL. Amounts are stored as
// decimal text so u128-scale balances survive round-trips unchanged.
type PostgresStore struct {
	pool *pgxpool.Pool
}

const createTablesSQL = `
CREATE TABLE IF NOT EXISTS escrow_state (
    id SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
    owner_id TEXT NOT NULL,
    operator_id TEXT NOT NULL,
    secrets_profile TEXT NOT NULL,
    paused BOOLEAN NOT NULL,
    swaps_paused BOOLEAN NOT NULL,
    fee_bps INT NOT NULL,
    next_request_id BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS escrow_tokens (
    token TEXT PRIMARY KEY,
    venue_asset_id TEXT NOT NULL,
    min_swap_amount TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS escrow_pending_swaps (
    request_id BIGINT PRIMARY KEY,
    sender_id TEXT NOT NULL,
    token_in TEXT NOT NULL,
    token_out TEXT NOT NULL,
    amount_in TEXT NOT NULL,
    min_amount_out TEXT NOT NULL,
    fee TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS escrow_fees (
    token TEXT PRIMARY KEY,
    balance TEXT NOT NULL
);
`

// NewPostgresStore connects using the DSN and ensures the tables exist.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is empty")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	if _, err := pool.Exec(ctx, createTablesSQL); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func (p *PostgresStore) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

func (p *PostgresStore) State(ctx context.Context) (*State, error) {
	row := p.pool.QueryRow(ctx, `
SELECT owner_id, operator_id, secrets_profile, paused, swaps_paused, fee_bps, next_request_id
FROM escrow_state
WHERE id = 1
`)

	var s State
	var feeBps int32
	var nextID int64
	if err := row.Scan(&s.Owner, &s.Operator, &s.SecretsProfile, &s.Paused, &s.SwapsPaused, &feeBps, &nextID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	s.FeeBps = uint32(feeBps)
	s.NextRequestID = uint64(nextID)
	return &s, nil
}

func (p *PostgresStore) SaveState(ctx context.Context, s *State) error {
	_, err := p.pool.Exec(ctx, `
INSERT INTO escrow_state (id, owner_id, operator_id, secrets_profile, paused, swaps_paused, fee_bps, next_request_id)
VALUES (1, $1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO UPDATE
SET owner_id = EXCLUDED.owner_id,
    operator_id = EXCLUDED.operator_id,
    secrets_profile = EXCLUDED.secrets_profile,
    paused = EXCLUDED.paused,
    swaps_paused = EXCLUDED.swaps_paused,
    fee_bps = EXCLUDED.fee_bps,
    next_request_id = EXCLUDED.next_request_id
`, s.Owner, s.Operator, s.SecretsProfile, s.Paused, s.SwapsPaused, int32(s.FeeBps), int64(s.NextRequestID))
	return err
}

func (p *PostgresStore) TokenConfig(ctx context.Context, token string) (*TokenConfig, error) {
	row := p.pool.QueryRow(ctx, `
SELECT venue_asset_id, min_swap_amount
FROM escrow_tokens
WHERE token = $1
`, token)

	var cfg TokenConfig
	var minAmount string
	if err := row.Scan(&cfg.VenueAssetID, &minAmount); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	var err error
	cfg.MinSwapAmount, err = parseAmount(minAmount, "min_swap_amount")
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (p *PostgresStore) PutTokenConfig(ctx context.Context, token string, cfg *TokenConfig) error {
	_, err := p.pool.Exec(ctx, `
INSERT INTO escrow_tokens (token, venue_asset_id, min_swap_amount)
VALUES ($1, $2, $3)
ON CONFLICT (token) DO UPDATE
SET venue_asset_id = EXCLUDED.venue_asset_id,
    min_swap_amount = EXCLUDED.min_swap_amount
`, token, cfg.VenueAssetID, cfg.MinSwapAmount.String())
	return err
}

func (p *PostgresStore) RemoveTokenConfig(ctx context.Context, token string) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM escrow_tokens WHERE token = $1`, token)
	return err
}

func (p *PostgresStore) TokenConfigs(ctx context.Context) (map[string]*TokenConfig, error) {
	rows, err := p.pool.Query(ctx, `SELECT token, venue_asset_id, min_swap_amount FROM escrow_tokens`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]*TokenConfig)
	for rows.Next() {
		var token, minAmount string
		var cfg TokenConfig
		if err := rows.Scan(&token, &cfg.VenueAssetID, &minAmount); err != nil {
			return nil, err
		}
		if cfg.MinSwapAmount, err = parseAmount(minAmount, "min_swap_amount"); err != nil {
			return nil, err
		}
		out[token] = &cfg
	}
	return out, rows.Err()
}

func (p *PostgresStore) PutPendingSwap(ctx context.Context, ps *PendingSwap) error {
	_, err := p.pool.Exec(ctx, `
INSERT INTO escrow_pending_swaps (request_id, sender_id, token_in, token_out, amount_in, min_amount_out, fee, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (request_id) DO UPDATE
SET sender_id = EXCLUDED.sender_id,
    token_in = EXCLUDED.token_in,
    token_out = EXCLUDED.token_out,
    amount_in = EXCLUDED.amount_in,
    min_amount_out = EXCLUDED.min_amount_out,
    fee = EXCLUDED.fee,
    created_at = EXCLUDED.created_at
`, int64(ps.RequestID), ps.SenderID, ps.TokenIn, ps.TokenOut,
		ps.AmountIn.String(), ps.MinAmountOut.String(), ps.Fee.String(), ps.CreatedAt)
	return err
}

func (p *PostgresStore) TakePendingSwap(ctx context.Context, requestID uint64) (*PendingSwap, error) {
	row := p.pool.QueryRow(ctx, `
DELETE FROM escrow_pending_swaps
WHERE request_id = $1
RETURNING sender_id, token_in, token_out, amount_in, min_amount_out, fee, created_at
`, int64(requestID))
	return p.scanPendingSwap(row, requestID)
}

func (p *PostgresStore) GetPendingSwap(ctx context.Context, requestID uint64) (*PendingSwap, error) {
	row := p.pool.QueryRow(ctx, `
SELECT sender_id, token_in, token_out, amount_in, min_amount_out, fee, created_at
FROM escrow_pending_swaps
WHERE request_id = $1
`, int64(requestID))
	return p.scanPendingSwap(row, requestID)
}

func (p *PostgresStore) scanPendingSwap(row pgx.Row, requestID uint64) (*PendingSwap, error) {
	ps := PendingSwap{RequestID: requestID}
	var amountIn, minOut, fee string
	if err := row.Scan(&ps.SenderID, &ps.TokenIn, &ps.TokenOut, &amountIn, &minOut, &fee, &ps.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	var err error
	if ps.AmountIn, err = parseAmount(amountIn, "amount_in"); err != nil {
		return nil, err
	}
	if ps.MinAmountOut, err = parseAmount(minOut, "min_amount_out"); err != nil {
		return nil, err
	}
	if ps.Fee, err = parseAmount(fee, "fee"); err != nil {
		return nil, err
	}
	return &ps, nil
}

func (p *PostgresStore) FeeBalance(ctx context.Context, token string) (*big.Int, error) {
	var balance string
	err := p.pool.QueryRow(ctx, `SELECT balance FROM escrow_fees WHERE token = $1`, token).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return new(big.Int), nil
	}
	if err != nil {
		return nil, err
	}
	return parseAmount(balance, "balance")
}

func (p *PostgresStore) AddFee(ctx context.Context, token string, amount *big.Int) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	balance := new(big.Int)
	var current string
	err = tx.QueryRow(ctx, `SELECT balance FROM escrow_fees WHERE token = $1 FOR UPDATE`, token).Scan(&current)
	switch {
	case err == nil:
		if balance, err = parseAmount(current, "balance"); err != nil {
			return err
		}
	case !errors.Is(err, pgx.ErrNoRows):
		return err
	}
	balance.Add(balance, amount)

	if _, err := tx.Exec(ctx, `
INSERT INTO escrow_fees (token, balance) VALUES ($1, $2)
ON CONFLICT (token) DO UPDATE SET balance = EXCLUDED.balance
`, token, balance.String()); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (p *PostgresStore) SetFeeBalance(ctx context.Context, token string, balance *big.Int) error {
	if balance == nil || balance.Sign() == 0 {
		_, err := p.pool.Exec(ctx, `DELETE FROM escrow_fees WHERE token = $1`, token)
		return err
	}
	_, err := p.pool.Exec(ctx, `
INSERT INTO escrow_fees (token, balance) VALUES ($1, $2)
ON CONFLICT (token) DO UPDATE SET balance = EXCLUDED.balance
`, token, balance.String())
	return err
}

func (p *PostgresStore) FeeBalances(ctx context.Context) (map[string]*big.Int, error) {
	rows, err := p.pool.Query(ctx, `SELECT token, balance FROM escrow_fees`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]*big.Int)
	for rows.Next() {
		var token, balance string
		if err := rows.Scan(&token, &balance); err != nil {
			return nil, err
		}
		if out[token], err = parseAmount(balance, "balance"); err != nil {
			return nil, err
		}
	}
	return out, rows.Err()
}

func parseAmount(value, column string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid %s value %q", column, value)
	}
	return v, nil
}
