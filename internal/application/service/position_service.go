package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"folio/internal/application/port"
	"folio/internal/domain"
	"folio/internal/domain/model"
)

// PositionService owns all ledger mutations. Every write runs inside one
// atomic storage unit that ends with a full aggregate recompute, so the
// derived fields are never visible out of sync with the transaction set.
// Mutations on the same position key are serialized; different keys proceed
// in parallel.
type PositionService struct {
	store port.LedgerStore

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewPositionService(store port.LedgerStore) *PositionService {
	return &PositionService{
		store: store,
		locks: make(map[string]*sync.Mutex),
	}
}

// keyLock returns the mutex serializing mutations for one position key.
func (s *PositionService) keyLock(key model.PositionKey) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[key.String()]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key.String()] = l
	}
	return l
}

// AddTransaction records a user-initiated buy or sell. Disposals exceeding
// current holdings are rejected here, before anything is written; the engine
// itself would clip, but this entry point is the strict one.
func (s *PositionService) AddTransaction(ctx context.Context, key model.PositionKey, quantity, unitPrice float64, ts time.Time) (*model.Transaction, error) {
	if quantity == 0 {
		return nil, ErrZeroQuantity
	}
	if unitPrice < 0 {
		return nil, ErrNegativePrice
	}

	lock := s.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	var created *model.Transaction
	err := s.store.Atomic(ctx, func(tx port.LedgerTx) error {
		if quantity < 0 {
			pos, err := tx.GetPosition(key)
			if err != nil {
				return err
			}
			held := 0.0
			if pos != nil {
				held = pos.TotalQuantity
			}
			if -quantity > held {
				return fmt.Errorf("%w: want %v, have %v", ErrInsufficientHoldings, -quantity, held)
			}
		}

		t := &model.Transaction{
			PositionKey: key,
			Quantity:    quantity,
			UnitPrice:   unitPrice,
			Timestamp:   ts,
		}
		if err := tx.CreateTransaction(t); err != nil {
			return err
		}
		created = t
		return s.recompute(tx, key)
	})
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("position", key.String()).
		Float64("quantity", quantity).
		Float64("unit_price", unitPrice).
		Int64("tx_id", created.ID).
		Msg("transaction added")
	return created, nil
}

// AddDraftTransaction creates the zero-value placeholder row the dashboard
// uses as an editable draft. Distinct from AddTransaction, which rejects
// zero quantities.
func (s *PositionService) AddDraftTransaction(ctx context.Context, key model.PositionKey) (*model.Transaction, error) {
	lock := s.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	var created *model.Transaction
	err := s.store.Atomic(ctx, func(tx port.LedgerTx) error {
		t := &model.Transaction{
			PositionKey: key,
			Timestamp:   time.Now().UTC(),
		}
		if err := tx.CreateTransaction(t); err != nil {
			return err
		}
		created = t
		return s.recompute(tx, key)
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// EditTransaction mutates quantity/price/timestamp in place, then recomputes.
// Identity and position key are immutable. The edited set as a whole must not
// dispose of more than it acquires.
func (s *PositionService) EditTransaction(ctx context.Context, id int64, quantity, unitPrice float64, ts time.Time) error {
	if unitPrice < 0 {
		return ErrNegativePrice
	}

	return s.withTransactionKey(ctx, id, func(tx port.LedgerTx, existing *model.Transaction) error {
		existing.Quantity = quantity
		existing.UnitPrice = unitPrice
		existing.Timestamp = ts
		if err := tx.UpdateTransaction(existing); err != nil {
			return err
		}

		set, err := tx.ListByPosition(existing.PositionKey)
		if err != nil {
			return err
		}
		acquired, disposed := domain.TotalsBySign(set)
		if disposed > acquired {
			return fmt.Errorf("%w: disposed %v, acquired %v", ErrOversoldSet, disposed, acquired)
		}
		return s.recompute(tx, existing.PositionKey)
	})
}

// DeleteTransaction removes one row and recomputes its position.
func (s *PositionService) DeleteTransaction(ctx context.Context, id int64) error {
	return s.withTransactionKey(ctx, id, func(tx port.LedgerTx, existing *model.Transaction) error {
		if err := tx.DeleteTransaction(id); err != nil {
			return err
		}
		return s.recompute(tx, existing.PositionKey)
	})
}

// SetDesiredSellPrice updates the one non-derived position field. No
// recompute: the ledger is untouched.
func (s *PositionService) SetDesiredSellPrice(ctx context.Context, key model.PositionKey, price float64) error {
	if price < 0 {
		return ErrNegativePrice
	}

	lock := s.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	return s.store.Atomic(ctx, func(tx port.LedgerTx) error {
		pos, err := tx.GetPosition(key)
		if err != nil {
			return err
		}
		if pos == nil {
			return ErrPositionNotFound
		}
		pos.DesiredSellPrice = price
		return tx.SavePosition(pos)
	})
}

// DeletePosition cascades: all transactions first, then the position row.
func (s *PositionService) DeletePosition(ctx context.Context, key model.PositionKey) error {
	lock := s.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	err := s.store.Atomic(ctx, func(tx port.LedgerTx) error {
		if err := tx.DeleteTransactionsByPosition(key); err != nil {
			return err
		}
		return tx.DeletePosition(key)
	})
	if err != nil {
		return err
	}

	log.Info().Str("position", key.String()).Msg("position deleted")
	return nil
}

func (s *PositionService) GetPosition(ctx context.Context, key model.PositionKey) (*model.Position, error) {
	pos, err := s.store.GetPosition(ctx, key)
	if err != nil {
		return nil, err
	}
	if pos == nil {
		return nil, ErrPositionNotFound
	}
	return pos, nil
}

func (s *PositionService) ListPositions(ctx context.Context) ([]model.Position, error) {
	return s.store.ListPositions(ctx)
}

func (s *PositionService) ListTransactions(ctx context.Context, key model.PositionKey) ([]model.Transaction, error) {
	return s.store.ListTransactions(ctx, key)
}

// withTransactionKey resolves the position key of a transaction id, takes
// that key's lock, and re-reads the row inside the atomic unit before
// handing it to fn.
func (s *PositionService) withTransactionKey(ctx context.Context, id int64, fn func(tx port.LedgerTx, existing *model.Transaction) error) error {
	var key model.PositionKey
	err := s.store.Atomic(ctx, func(tx port.LedgerTx) error {
		existing, err := tx.GetTransaction(id)
		if err != nil {
			return err
		}
		if existing == nil {
			return ErrTransactionNotFound
		}
		key = existing.PositionKey
		return nil
	})
	if err != nil {
		return err
	}

	lock := s.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	return s.store.Atomic(ctx, func(tx port.LedgerTx) error {
		existing, err := tx.GetTransaction(id)
		if err != nil {
			return err
		}
		if existing == nil {
			return ErrTransactionNotFound
		}
		return fn(tx, existing)
	})
}

// recompute rewrites the derived aggregate from the full transaction set.
// Always called inside the same atomic unit as the triggering mutation.
func (s *PositionService) recompute(tx port.LedgerTx, key model.PositionKey) error {
	set, err := tx.ListByPosition(key)
	if err != nil {
		return err
	}
	agg := domain.Recompute(set)

	pos, err := tx.GetPosition(key)
	if err != nil {
		return err
	}
	if pos == nil {
		pos = &model.Position{Key: key}
	}
	pos.Apply(agg, time.Now().UTC())
	return tx.SavePosition(pos)
}
