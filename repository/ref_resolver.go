package repository

import (
	"context"
	"fmt"

	"fulfillment-service/models"

	"github.com/google/uuid"
)

// RefLoader loads (and locks, inside a transaction) the row a Ref points at.
type RefLoader func(ctx context.Context, tx *Tx, id uuid.UUID) (interface{}, error)

// RefResolver turns a models.Ref into the row it names through an explicit kind table.
type RefResolver struct {
	loaders map[models.RefKind]RefLoader
}

// NewRefResolver returns a resolver knowing invoices, products and coupons.
func NewRefResolver() *RefResolver {
	r := &RefResolver{loaders: make(map[models.RefKind]RefLoader)}
	r.Register(models.RefInvoice, func(ctx context.Context, tx *Tx, id uuid.UUID) (interface{}, error) {
		if !tx.Transactional() {
			return tx.Invoices.FindByID(ctx, id)
		}
		return tx.LockInvoice(ctx, id)
	})
	r.Register(models.RefProduct, func(ctx context.Context, tx *Tx, id uuid.UUID) (interface{}, error) {
		var products map[uuid.UUID]*models.Product
		if tx.Transactional() {
			locked, err := tx.LockProducts(ctx, []uuid.UUID{id})
			if err != nil {
				return nil, err
			}
			products = locked
		} else {
			found, err := tx.Products.FindByIDs(ctx, []uuid.UUID{id})
			if err != nil {
				return nil, err
			}
			products = make(map[uuid.UUID]*models.Product, len(found))
			for i := range found {
				products[found[i].ID] = &found[i]
			}
		}
		product, ok := products[id]
		if !ok {
			return nil, ErrNotFound
		}
		return product, nil
	})
	r.Register(models.RefCoupon, func(ctx context.Context, tx *Tx, id uuid.UUID) (interface{}, error) {
		if !tx.Transactional() {
			return tx.Coupons.FindByID(ctx, id)
		}
		return tx.LockCouponByID(ctx, id)
	})
	return r
}

// Register adds or replaces the loader for kind.
func (r *RefResolver) Register(kind models.RefKind, loader RefLoader) {
	r.loaders[kind] = loader
}

// Resolve loads the row named by ref.
func (r *RefResolver) Resolve(ctx context.Context, tx *Tx, ref models.Ref) (interface{}, error) {
	loader, ok := r.loaders[ref.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRefKind, ref.Kind)
	}
	return loader(ctx, tx, ref.ID)
}

// ResolveInvoice resolves ref and insists it names an invoice.
func (r *RefResolver) ResolveInvoice(ctx context.Context, tx *Tx, ref models.Ref) (*models.Invoice, error) {
	if ref.Kind != models.RefInvoice {
		return nil, fmt.Errorf("%w: %q is not payable", ErrUnknownRefKind, ref.Kind)
	}
	v, err := r.Resolve(ctx, tx, ref)
	if err != nil {
		return nil, err
	}
	invoice, ok := v.(*models.Invoice)
	if !ok {
		return nil, fmt.Errorf("%w: invoice loader returned %T", ErrUnknownRefKind, v)
	}
	return invoice, nil
}
