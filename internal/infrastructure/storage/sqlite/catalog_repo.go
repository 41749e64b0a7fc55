package sqlite

import (
	"context"
	"database/sql"
	"time"

	"folio/internal/application/port"
	"folio/internal/domain/model"
)

// CatalogRepo is the sqlite asset-catalog projection used when no postgres
// DSN is configured. Each UpsertBatch is one transaction.
type CatalogRepo struct {
	db *sql.DB
}

func NewCatalogRepo(db *sql.DB) *CatalogRepo {
	return &CatalogRepo{db: db}
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
		if _, err := tx.Exec(`
			INSERT INTO assets(id, symbol, name, price, market_cap, updated_at)
			VALUES(?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
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
		`SELECT id, symbol, name, price, market_cap, updated_at FROM assets WHERE id=?`, id)
	return scanAsset(row)
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
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (r *CatalogRepo) Close() error { return nil }

func scanAsset(row rowScanner) (*model.Asset, error) {
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

var _ port.AssetCatalog = (*CatalogRepo)(nil)
