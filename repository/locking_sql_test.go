package repository_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"fulfillment-service/repository"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{})
	require.NoError(t, err)
	return gormDB, mock
}

func TestInvoiceLockByID_SelectsForUpdate(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormInvoiceRepository(gormDB)

	id := uuid.New()
	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "number", "user_id", "status", "currency", "created_at", "updated_at"}).
		AddRow(id.String(), "INV-1", uuid.NewString(), "pending", "USD", now, now)

	mock.ExpectQuery(`SELECT \* FROM "invoices" WHERE id = \$1 .* FOR UPDATE`).
		WillReturnRows(rows)

	invoice, err := repo.LockByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, invoice.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInvoiceLockByID_NotFound(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormInvoiceRepository(gormDB)

	mock.ExpectQuery(`SELECT \* FROM "invoices" .* FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{}))

	invoice, err := repo.LockByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.Nil(t, invoice)
}

func TestProductLockByIDs_OrdersByIDForUpdate(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormProductRepository(gormDB)

	a, b := uuid.New(), uuid.New()
	rows := sqlmock.NewRows([]string{"id", "name", "price", "currency", "status", "stock", "sold_count"}).
		AddRow(a.String(), "A", "10.00", "USD", "active", 5, 0).
		AddRow(b.String(), "B", "20.00", "USD", "active", nil, 0)

	mock.ExpectQuery(`SELECT \* FROM "products" WHERE id IN \(\$1,\$2\) .* ORDER BY id FOR UPDATE`).
		WillReturnRows(rows)

	products, err := repo.LockByIDs(context.Background(), []uuid.UUID{a, b})
	require.NoError(t, err)
	require.Len(t, products, 2)
	require.NotNil(t, products[0].Stock)
	assert.Equal(t, 5, *products[0].Stock)
	assert.Nil(t, products[1].Stock)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCouponAdjustUsedCount_ClampsInSQL(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormCouponRepository(gormDB)

	id := uuid.New()
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "coupons" SET "used_count"=CASE WHEN used_count + $1 < 0 THEN 0 ELSE used_count + $2 END`)).
		WithArgs(-2, -2, id).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.AdjustUsedCount(context.Background(), id, -2)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCouponAdjustUsedCount_MissingCoupon(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormCouponRepository(gormDB)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "coupons"`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := repo.AdjustUsedCount(context.Background(), uuid.New(), 1)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
