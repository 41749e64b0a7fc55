package postgres

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"folio/internal/application/port"
	"folio/internal/domain/model"
)

// CatalogRepo is the postgres asset-catalog projection used in shared
// deployments. Each UpsertBatch is one transaction, so a crash mid-refresh
// leaves prior batches committed and retries stay idempotent.
type CatalogRepo struct {
	db *sql.DB
}

func New(dsn string) (*CatalogRepo, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	r := &CatalogRepo{db: db}
	if err := r.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *CatalogRepo) Close() error { return r.db.Close() }

func (r *CatalogRepo) migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS assets (
  id TEXT PRIMARY KEY,
  symbol TEXT NOT NULL,
  name TEXT NOT NULL,
  price DOUBLE PRECISION NOT NULL,
  market_cap DOUBLE PRECISION NOT NULL,
  updated_at BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_assets_symbol ON assets(symbol);
`)
	return err
}

func (r *CatalogRepo) UpsertBatch(ctx context.Context, assets []model.Asset) error {
	if len(assets) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	now := time.Now().UnixMilli()
	for _, a := range assets {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO assets(id, symbol, name, price, market_cap, updated_at)
			VALUES($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO UPDATE SET
			symbol=excluded.symbol, name=excluded.name, price=excluded.price,
			market_cap=excluded.market_cap, updated_at=excluded.updated_at
		`, a.ID, a.Symbol, a.Name, a.Price, a.MarketCap, now); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (r *CatalogRepo) Get(ctx context.Context, id string) (*model.Asset, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, symbol, name, price, market_cap, updated_at FROM assets WHERE id=$1`, id)

	var a model.Asset
	var updatedAt int64
	err := row.Scan(&a.ID, &a.Symbol, &a.Name, &a.Price, &a.MarketCap, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	a.UpdatedAt = time.UnixMilli(updatedAt)
	return &a, nil
}

func (r *CatalogRepo) List(ctx context.Context) ([]model.Asset, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, symbol, name, price, market_cap, updated_at FROM assets ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Asset
	for rows.Next() {
		var a model.Asset
		var updatedAt int64
		if err := rows.Scan(&a.ID, &a.Symbol, &a.Name, &a.Price, &a.MarketCap, &updatedAt); err != nil {
			return nil, err
		}
		a.UpdatedAt = time.UnixMilli(updatedAt)
		out = append(out, a)
	}
	return out, rows.Err()
}

var _ port.AssetCatalog = (*CatalogRepo)(nil)
