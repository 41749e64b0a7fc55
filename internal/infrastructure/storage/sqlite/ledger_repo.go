package sqlite

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"folio/internal/application/port"
	"folio/internal/domain/model"
)

// LedgerRepo stores transactions and derived position aggregates in sqlite.
// Atomic units map to sql transactions; a single write connection keeps
// sqlite happy under concurrency.
type LedgerRepo struct {
	db *sql.DB
}

func New(path string) (*LedgerRepo, error) {
	// ensure directory exists
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		_ = os.MkdirAll(dir, 0o755)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	r := &LedgerRepo{db: db}
	if err := r.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *LedgerRepo) Close() error { return r.db.Close() }

func (r *LedgerRepo) GetDB() *sql.DB {
	return r.db
}

func (r *LedgerRepo) migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS transactions (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  owner TEXT NOT NULL,
  asset TEXT NOT NULL,
  quantity REAL NOT NULL,
  unit_price REAL NOT NULL,
  ts_ms INTEGER NOT NULL,
  created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transactions_position ON transactions(owner, asset);
CREATE INDEX IF NOT EXISTS idx_transactions_ts ON transactions(ts_ms);

CREATE TABLE IF NOT EXISTS positions (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  owner TEXT NOT NULL,
  asset TEXT NOT NULL,
  total_quantity REAL NOT NULL,
  total_cost REAL NOT NULL,
  average_price REAL NOT NULL,
  desired_sell_price REAL NOT NULL DEFAULT 0,
  updated_at INTEGER NOT NULL,
  UNIQUE(owner, asset)
);

CREATE TABLE IF NOT EXISTS cache_entries (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  refreshed_at_ms INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS assets (
  id TEXT PRIMARY KEY,
  symbol TEXT NOT NULL,
  name TEXT NOT NULL,
  price REAL NOT NULL,
  market_cap REAL NOT NULL,
  updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_assets_symbol ON assets(symbol);
`)
	return err
}

// Atomic runs fn inside one sql transaction.
func (r *LedgerRepo) Atomic(ctx context.Context, fn func(tx port.LedgerTx) error) error {
	sqlTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(&ledgerTx{tx: sqlTx}); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	return sqlTx.Commit()
}

func (r *LedgerRepo) GetPosition(ctx context.Context, key model.PositionKey) (*model.Position, error) {
	return scanPosition(r.db.QueryRowContext(ctx, `
		SELECT owner, asset, total_quantity, total_cost, average_price, desired_sell_price, updated_at
		FROM positions WHERE owner=? AND asset=?
	`, key.Owner, key.Asset))
}

func (r *LedgerRepo) ListPositions(ctx context.Context) ([]model.Position, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT owner, asset, total_quantity, total_cost, average_price, desired_sell_price, updated_at
		FROM positions ORDER BY owner, asset
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []model.Position
	for rows.Next() {
		var pos model.Position
		var updatedAt int64
		if err := rows.Scan(&pos.Key.Owner, &pos.Key.Asset, &pos.TotalQuantity, &pos.TotalCost,
			&pos.AveragePrice, &pos.DesiredSellPrice, &updatedAt); err != nil {
			return nil, err
		}
		pos.UpdatedAt = time.UnixMilli(updatedAt)
		positions = append(positions, pos)
	}
	return positions, rows.Err()
}

func (r *LedgerRepo) ListTransactions(ctx context.Context, key model.PositionKey) ([]model.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, owner, asset, quantity, unit_price, ts_ms, created_at
		FROM transactions WHERE owner=? AND asset=? ORDER BY ts_ms, id
	`, key.Owner, key.Asset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTransactions(rows)
}

var _ port.LedgerStore = (*LedgerRepo)(nil)

type ledgerTx struct {
	tx *sql.Tx
}

func (t *ledgerTx) ListByPosition(key model.PositionKey) ([]model.Transaction, error) {
	rows, err := t.tx.Query(`
		SELECT id, owner, asset, quantity, unit_price, ts_ms, created_at
		FROM transactions WHERE owner=? AND asset=? ORDER BY ts_ms, id
	`, key.Owner, key.Asset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTransactions(rows)
}

func (t *ledgerTx) GetTransaction(id int64) (*model.Transaction, error) {
	row := t.tx.QueryRow(`
		SELECT id, owner, asset, quantity, unit_price, ts_ms, created_at
		FROM transactions WHERE id=?
	`, id)

	var tr model.Transaction
	var ts, createdAt int64
	err := row.Scan(&tr.ID, &tr.PositionKey.Owner, &tr.PositionKey.Asset, &tr.Quantity, &tr.UnitPrice, &ts, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	tr.Timestamp = time.UnixMilli(ts)
	tr.CreatedAt = time.UnixMilli(createdAt)
	return &tr, nil
}

func (t *ledgerTx) CreateTransaction(tr *model.Transaction) error {
	now := time.Now().UnixMilli()
	res, err := t.tx.Exec(`
		INSERT INTO transactions(owner, asset, quantity, unit_price, ts_ms, created_at)
		VALUES(?, ?, ?, ?, ?, ?)
	`, tr.PositionKey.Owner, tr.PositionKey.Asset, tr.Quantity, tr.UnitPrice, tr.Timestamp.UnixMilli(), now)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	tr.ID = id
	tr.CreatedAt = time.UnixMilli(now)
	return nil
}

func (t *ledgerTx) UpdateTransaction(tr *model.Transaction) error {
	_, err := t.tx.Exec(`
		UPDATE transactions SET quantity=?, unit_price=?, ts_ms=? WHERE id=?
	`, tr.Quantity, tr.UnitPrice, tr.Timestamp.UnixMilli(), tr.ID)
	return err
}

func (t *ledgerTx) DeleteTransaction(id int64) error {
	_, err := t.tx.Exec(`DELETE FROM transactions WHERE id=?`, id)
	return err
}

func (t *ledgerTx) GetPosition(key model.PositionKey) (*model.Position, error) {
	return scanPosition(t.tx.QueryRow(`
		SELECT owner, asset, total_quantity, total_cost, average_price, desired_sell_price, updated_at
		FROM positions WHERE owner=? AND asset=?
	`, key.Owner, key.Asset))
}

func (t *ledgerTx) SavePosition(pos *model.Position) error {
	_, err := t.tx.Exec(`
		INSERT INTO positions(owner, asset, total_quantity, total_cost, average_price, desired_sell_price, updated_at)
		VALUES(?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(owner, asset) DO UPDATE SET
		total_quantity=excluded.total_quantity, total_cost=excluded.total_cost,
		average_price=excluded.average_price, desired_sell_price=excluded.desired_sell_price,
		updated_at=excluded.updated_at
	`, pos.Key.Owner, pos.Key.Asset, pos.TotalQuantity, pos.TotalCost, pos.AveragePrice,
		pos.DesiredSellPrice, pos.UpdatedAt.UnixMilli())
	return err
}

func (t *ledgerTx) DeletePosition(key model.PositionKey) error {
	_, err := t.tx.Exec(`DELETE FROM positions WHERE owner=? AND asset=?`, key.Owner, key.Asset)
	return err
}

func (t *ledgerTx) DeleteTransactionsByPosition(key model.PositionKey) error {
	_, err := t.tx.Exec(`DELETE FROM transactions WHERE owner=? AND asset=?`, key.Owner, key.Asset)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPosition(row rowScanner) (*model.Position, error) {
	var pos model.Position
	var updatedAt int64
	err := row.Scan(&pos.Key.Owner, &pos.Key.Asset, &pos.TotalQuantity, &pos.TotalCost,
		&pos.AveragePrice, &pos.DesiredSellPrice, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	pos.UpdatedAt = time.UnixMilli(updatedAt)
	return &pos, nil
}

func scanTransactions(rows *sql.Rows) ([]model.Transaction, error) {
	var out []model.Transaction
	for rows.Next() {
		var tr model.Transaction
		var ts, createdAt int64
		if err := rows.Scan(&tr.ID, &tr.PositionKey.Owner, &tr.PositionKey.Asset,
			&tr.Quantity, &tr.UnitPrice, &ts, &createdAt); err != nil {
			return nil, err
		}
		tr.Timestamp = time.UnixMilli(ts)
		tr.CreatedAt = time.UnixMilli(createdAt)
		out = append(out, tr)
	}
	return out, rows.Err()
}
