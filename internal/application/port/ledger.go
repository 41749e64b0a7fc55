package port

import (
	"context"

	"folio/internal/domain/model"
)

// LedgerTx is the transaction-scoped view of the ledger. Every mutation and
// its aggregate rewrite happen through one LedgerTx so they commit together.
type LedgerTx interface {
	ListByPosition(key model.PositionKey) ([]model.Transaction, error)
	GetTransaction(id int64) (*model.Transaction, error)
	// CreateTransaction assigns tx.ID before returning.
	CreateTransaction(tx *model.Transaction) error
	UpdateTransaction(tx *model.Transaction) error
	DeleteTransaction(id int64) error

	GetPosition(key model.PositionKey) (*model.Position, error)
	SavePosition(pos *model.Position) error
	DeletePosition(key model.PositionKey) error
	DeleteTransactionsByPosition(key model.PositionKey) error
}

// LedgerStore owns durable storage for transactions and position aggregates.
type LedgerStore interface {
	// Atomic runs fn inside one storage transaction. fn returning an error
	// rolls everything back; nothing partial is ever visible to readers.
	Atomic(ctx context.Context, fn func(tx LedgerTx) error) error

	GetPosition(ctx context.Context, key model.PositionKey) (*model.Position, error)
	ListPositions(ctx context.Context) ([]model.Position, error)
	ListTransactions(ctx context.Context, key model.PositionKey) ([]model.Transaction, error)

	Close() error
}
