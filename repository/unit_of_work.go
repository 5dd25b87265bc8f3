package repository

import (
	"context"
	"fmt"

	"fulfillment-service/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// lockStage orders row locks. A transaction may only move forward through the stages:
// payment, invoice, user, items, products, coupon. Re-locking a row already held is always allowed.
type lockStage int

const (
	stageNone lockStage = iota - 1
	stagePayment
	stageInvoice
	stageUser
	stageItems
	stageProducts
	stageCoupon
)

func (s lockStage) String() string {
	switch s {
	case stagePayment:
		return "payment"
	case stageInvoice:
		return "invoice"
	case stageUser:
		return "user"
	case stageItems:
		return "items"
	case stageProducts:
		return "products"
	case stageCoupon:
		return "coupon"
	default:
		return "none"
	}
}

type lockKey struct {
	stage lockStage
	id    uuid.UUID
}

// UnitOfWork runs a logical operation against one set of repositories bound to a single transaction.
type UnitOfWork struct {
	db *gorm.DB
}

func NewUnitOfWork(db *gorm.DB) *UnitOfWork {
	return &UnitOfWork{db: db}
}

// Do runs fn in a transaction. Any error returned by fn rolls everything back.
func (u *UnitOfWork) Do(ctx context.Context, fn func(tx *Tx) error) error {
	return u.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		return fn(newTx(db, true))
	})
}

// Read runs fn without a transaction. Lock methods fail with ErrNoTransaction.
func (u *UnitOfWork) Read(ctx context.Context, fn func(tx *Tx) error) error {
	return fn(newTx(u.db.WithContext(ctx), false))
}

// Tx exposes repositories bound to one transaction and tracks which rows it holds.
type Tx struct {
	Invoices     InvoiceRepository
	Products     ProductRepository
	Coupons      CouponRepository
	CouponUsages CouponUsageRepository
	Payments     PaymentRepository
	Users        UserRepository
	Addresses    AddressRepository

	transactional bool
	stage         lockStage
	held          map[lockKey]struct{}
}

func newTx(db *gorm.DB, transactional bool) *Tx {
	return &Tx{
		Invoices:      NewGormInvoiceRepository(db),
		Products:      NewGormProductRepository(db),
		Coupons:       NewGormCouponRepository(db),
		CouponUsages:  NewGormCouponUsageRepository(db),
		Payments:      NewGormPaymentRepository(db),
		Users:         NewGormUserRepository(db),
		Addresses:     NewGormAddressRepository(db),
		transactional: transactional,
		stage:         stageNone,
		held:          make(map[lockKey]struct{}),
	}
}

// Transactional reports whether the repositories run inside a database transaction.
func (t *Tx) Transactional() bool {
	return t.transactional
}

func (t *Tx) check(stage lockStage, ids ...uuid.UUID) error {
	if !t.transactional {
		return ErrNoTransaction
	}
	for _, id := range ids {
		if _, ok := t.held[lockKey{stage, id}]; !ok {
			if stage < t.stage {
				return fmt.Errorf("%w: %s requested after %s", ErrLockOrder, stage, t.stage)
			}
			return nil
		}
	}
	return nil
}

func (t *Tx) mark(stage lockStage, ids ...uuid.UUID) {
	if stage > t.stage {
		t.stage = stage
	}
	for _, id := range ids {
		t.held[lockKey{stage, id}] = struct{}{}
	}
}

func (t *Tx) LockPayment(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	if err := t.check(stagePayment, id); err != nil {
		return nil, err
	}
	payment, err := t.Payments.LockByID(ctx, id)
	if err != nil {
		return nil, err
	}
	t.mark(stagePayment, id)
	return payment, nil
}

func (t *Tx) LockInvoice(ctx context.Context, id uuid.UUID) (*models.Invoice, error) {
	if err := t.check(stageInvoice, id); err != nil {
		return nil, err
	}
	invoice, err := t.Invoices.LockByID(ctx, id)
	if err != nil {
		return nil, err
	}
	t.mark(stageInvoice, id)
	return invoice, nil
}

func (t *Tx) LockUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	if err := t.check(stageUser, id); err != nil {
		return nil, err
	}
	user, err := t.Users.LockByID(ctx, id)
	if err != nil {
		return nil, err
	}
	t.mark(stageUser, id)
	return user, nil
}

// LockItems locks the items of an invoice, keyed by the invoice id.
func (t *Tx) LockItems(ctx context.Context, invoiceID uuid.UUID) ([]models.InvoiceItem, error) {
	if err := t.check(stageItems, invoiceID); err != nil {
		return nil, err
	}
	items, err := t.Invoices.LockItems(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	t.mark(stageItems, invoiceID)
	return items, nil
}

// LockProducts locks the given products in id order and returns them keyed by id.
func (t *Tx) LockProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Product, error) {
	if err := t.check(stageProducts, ids...); err != nil {
		return nil, err
	}
	products, err := t.Products.LockByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	t.mark(stageProducts, ids...)

	byID := make(map[uuid.UUID]*models.Product, len(products))
	for i := range products {
		byID[products[i].ID] = &products[i]
	}
	return byID, nil
}

// LockCoupon locks a coupon by code. The coupon id is only known after the read, so the
// stage is checked against any coupon lock.
func (t *Tx) LockCoupon(ctx context.Context, code string) (*models.Coupon, error) {
	if err := t.check(stageCoupon, uuid.Nil); err != nil {
		return nil, err
	}
	coupon, err := t.Coupons.LockByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	t.mark(stageCoupon, coupon.ID)
	return coupon, nil
}

func (t *Tx) LockCouponByID(ctx context.Context, id uuid.UUID) (*models.Coupon, error) {
	if err := t.check(stageCoupon, id); err != nil {
		return nil, err
	}
	coupon, err := t.Coupons.LockByID(ctx, id)
	if err != nil {
		return nil, err
	}
	t.mark(stageCoupon, id)
	return coupon, nil
}
