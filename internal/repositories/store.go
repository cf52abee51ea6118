package repositories

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Repos groups the repositories that share one database handle, either the
// pool or an open transaction.
type Repos interface {
	Products() ProductRepository
	Carts() CartRepository
	Orders() OrderRepository
	Payments() PaymentRepository
	Outbox() OutboxRepository
}

// TxOptions tunes a single transaction.
type TxOptions struct {
	// LockTimeout bounds each row-lock wait. Zero keeps the server default.
	LockTimeout time.Duration
}

// TxManager runs a function inside one atomic transaction. Returning an error
// from fn rolls everything back.
type TxManager interface {
	Repos
	WithinTransaction(ctx context.Context, opts TxOptions, fn func(tx Repos) error) error
}

// GORMStore is the GORM implementation of TxManager.
type GORMStore struct {
	db       *gorm.DB
	products *GORMProductRepository
	carts    *GORMCartRepository
	orders   *GORMOrderRepository
	payments *GORMPaymentRepository
	outbox   *GORMOutboxRepository
}

// NewGORMStore creates a store over db. db may be a transaction handle.
func NewGORMStore(db *gorm.DB) *GORMStore {
	return &GORMStore{
		db:       db,
		products: NewGORMProductRepository(db),
		carts:    NewGORMCartRepository(db),
		orders:   NewGORMOrderRepository(db),
		payments: NewGORMPaymentRepository(db),
		outbox:   NewGORMOutboxRepository(db),
	}
}

func (s *GORMStore) Products() ProductRepository { return s.products }
func (s *GORMStore) Carts() CartRepository       { return s.carts }
func (s *GORMStore) Orders() OrderRepository     { return s.orders }
func (s *GORMStore) Payments() PaymentRepository { return s.payments }
func (s *GORMStore) Outbox() OutboxRepository    { return s.outbox }

// WithinTransaction begins a transaction bound to ctx, hands fn a store scoped
// to it and commits if fn returns nil.
func (s *GORMStore) WithinTransaction(ctx context.Context, opts TxOptions, fn func(tx Repos) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if opts.LockTimeout > 0 && tx.Dialector.Name() == "postgres" {
			// SET does not take bind parameters.
			stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", opts.LockTimeout.Milliseconds())
			if err := tx.Exec(stmt).Error; err != nil {
				return fmt.Errorf("failed to set lock timeout: %w", err)
			}
		}
		return fn(NewGORMStore(tx))
	})
	if err != nil && ctx.Err() != nil {
		return fmt.Errorf("%w: %w", ErrTxTimeout, ctx.Err())
	}
	return TranslateError(err)
}
