package services

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"fulfillment-service/models"
	"fulfillment-service/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrProductMissing    = errors.New("product missing")
)

// StockError names the product that could not be reserved.
type StockError struct {
	ProductID uuid.UUID
	Name      string
	Requested int
	Available int
	Missing   bool
}

func (e *StockError) Error() string {
	if e.Missing {
		return fmt.Sprintf("product %s not found", e.ProductID)
	}
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d", e.Name, e.Requested, e.Available)
}

func (e *StockError) Unwrap() error {
	if e.Missing {
		return ErrProductMissing
	}
	return ErrInsufficientStock
}

// StockLine is one product quantity to reserve or release.
type StockLine struct {
	ProductID uuid.UUID
	Quantity  int
}

// LinesFromItems turns invoice items into stock lines.
func LinesFromItems(items []models.InvoiceItem) []StockLine {
	lines := make([]StockLine, 0, len(items))
	for _, item := range items {
		lines = append(lines, StockLine{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return lines
}

// InventoryLedger is the only writer of Product.Stock and Product.SoldCount.
type InventoryLedger interface {
	// Reserve checks every tracked product first and only then decrements. All or nothing.
	Reserve(ctx context.Context, tx *repository.Tx, lines []StockLine) error
	// Release gives stock back. Products that no longer exist are skipped.
	Release(ctx context.Context, tx *repository.Tx, lines []StockLine) error
}

type inventoryLedgerImpl struct {
	logger *zap.Logger
}

func NewInventoryLedger(logger *zap.Logger) InventoryLedger {
	return &inventoryLedgerImpl{logger: logger}
}

func (l *inventoryLedgerImpl) Reserve(ctx context.Context, tx *repository.Tx, lines []StockLine) error {
	ids, qty := aggregate(lines)
	if len(ids) == 0 {
		return nil
	}

	products, err := tx.LockProducts(ctx, ids)
	if err != nil {
		return fmt.Errorf("lock products: %w", err)
	}

	for _, id := range ids {
		p, ok := products[id]
		if !ok {
			return &StockError{ProductID: id, Requested: qty[id], Missing: true}
		}
		if !p.HasStock(qty[id]) {
			return &StockError{ProductID: id, Name: p.Name, Requested: qty[id], Available: *p.Stock}
		}
	}

	for _, id := range ids {
		p := products[id]
		if p.TracksStock() {
			remaining := clampZero(*p.Stock - qty[id])
			p.Stock = &remaining
		}
		p.SoldCount = clampZero(p.SoldCount + qty[id])
		if err := tx.Products.UpdateStock(ctx, p); err != nil {
			return fmt.Errorf("update stock for %s: %w", id, err)
		}
	}

	l.logger.Debug("Stock reserved", zap.Int("products", len(ids)))
	return nil
}

func (l *inventoryLedgerImpl) Release(ctx context.Context, tx *repository.Tx, lines []StockLine) error {
	ids, qty := aggregate(lines)
	if len(ids) == 0 {
		return nil
	}

	products, err := tx.LockProducts(ctx, ids)
	if err != nil {
		return fmt.Errorf("lock products: %w", err)
	}

	for _, id := range ids {
		p, ok := products[id]
		if !ok {
			l.logger.Warn("Skipping release for missing product", zap.String("product_id", id.String()))
			continue
		}
		if p.TracksStock() {
			restored := clampZero(*p.Stock + qty[id])
			p.Stock = &restored
		}
		p.SoldCount = clampZero(p.SoldCount - qty[id])
		if err := tx.Products.UpdateStock(ctx, p); err != nil {
			return fmt.Errorf("update stock for %s: %w", id, err)
		}
	}

	l.logger.Debug("Stock released", zap.Int("products", len(ids)))
	return nil
}

// aggregate merges duplicate products and returns ids in lock order.
func aggregate(lines []StockLine) ([]uuid.UUID, map[uuid.UUID]int) {
	qty := make(map[uuid.UUID]int, len(lines))
	for _, line := range lines {
		if line.Quantity <= 0 {
			continue
		}
		qty[line.ProductID] += line.Quantity
	}
	ids := make([]uuid.UUID, 0, len(qty))
	for id := range qty {
		ids = append(ids, id)
	}
	sortIDs(ids)
	return ids, qty
}

func sortIDs(ids []uuid.UUID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
}

func clampZero(v int) int {
	if v < 0 {
		return 0
	}
	return v
}
