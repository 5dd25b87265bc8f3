package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"testing"

	"fulfillment-service/database"
	"fulfillment-service/models"
	"fulfillment-service/providers"
	"fulfillment-service/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testTopicArn = "arn:aws:sns:us-east-1:000000000000:invoice-events"

// --- Mock SNS Publisher ---

type mockSNS struct {
	mu       sync.Mutex
	messages [][]byte
	err      error
}

func (m *mockSNS) Publish(_ context.Context, _ string, message []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.messages = append(m.messages, append([]byte(nil), message...))
	return nil
}

func (m *mockSNS) eventTypes(t *testing.T) []string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	types := make([]string, 0, len(m.messages))
	for _, msg := range m.messages {
		var event InvoiceEvent
		require.NoError(t, json.Unmarshal(msg, &event))
		types = append(types, event.EventType)
	}
	return types
}

// --- Failing gateway ---

type failingGateway struct{}

func (failingGateway) Name() string { return "broken" }

func (failingGateway) Initiate(context.Context, *models.Payment, *models.Invoice) (*providers.InitiateResult, error) {
	return nil, fmt.Errorf("%w: connection refused", providers.ErrGatewayRejected)
}

func (failingGateway) ResolveCallbackOutcome(context.Context, *models.Payment, *models.Invoice, providers.Callback) (*providers.Outcome, error) {
	return &providers.Outcome{Status: providers.OutcomeFailed, Reason: "unreachable"}, nil
}

// --- Helpers ---

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, database.AutoMigrate(db))
	return db
}

type fixture struct {
	db         *gorm.DB
	uow        *repository.UnitOfWork
	sns        *mockSNS
	ledger     InventoryLedger
	coupons    CouponEngine
	allocation AllocationService
	checkout   CheckoutService
	cart       CartService
	payments   PaymentService
	invoices   InvoiceService
	registry   *providers.Registry
	user       *models.User
	address    *models.Address
}

// testPricing charges 5.00 shipping below 100.00 and 10% tax on goods plus shipping.
func testPricing() PricingConfig {
	return PricingConfig{
		ShippingFlatFee:       d("5"),
		FreeShippingThreshold: decimal.NewNullDecimal(d("100")),
		TaxEnabled:            true,
		TaxRatePercent:        d("10"),
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := setupDB(t)
	log := zap.NewNop()
	uow := repository.NewUnitOfWork(db)
	sns := &mockSNS{}
	events := NewInvoiceEvents(sns, testTopicArn, log)
	ledger := NewInventoryLedger(log)
	coupons := NewCouponEngine(log)
	pricing := NewPricingCalculator(testPricing())
	allocation := NewAllocationService(uow, ledger, coupons, log)
	registry := providers.NewRegistryFromSettings(providers.Settings{
		DefaultProvider: providers.MockProviderName,
		Mock:            providers.ProviderSettings{Enabled: true, CallbackURL: "http://localhost:8080/payments/callback"},
		Remote:          providers.ProviderSettings{Enabled: false, MerchantID: "merchant"},
	}, log)
	registry.Register(failingGateway{}, true)

	f := &fixture{
		db:         db,
		uow:        uow,
		sns:        sns,
		ledger:     ledger,
		coupons:    coupons,
		allocation: allocation,
		checkout:   NewCheckoutService(uow, ledger, coupons, pricing, events, log),
		cart:       NewCartService(uow, coupons, pricing, log),
		payments:   NewPaymentService(uow, registry, repository.NewRefResolver(), allocation, NoopCallbackGuard(), events, log),
		invoices:   NewInvoiceService(uow, allocation, events, log),
		registry:   registry,
	}
	f.user, f.address = f.seedCustomer(t)
	return f
}

func (f *fixture) seedCustomer(t *testing.T) (*models.User, *models.Address) {
	t.Helper()
	ctx := context.Background()
	user := &models.User{Email: uuid.NewString() + "@example.com", Name: "Ada"}
	require.NoError(t, repository.NewGormUserRepository(f.db).Create(ctx, user))
	address := &models.Address{UserID: user.ID, RecipientName: "Ada", Line1: "1 Main St", City: "Springfield", PostalCode: "12345", Country: "US"}
	require.NoError(t, repository.NewGormAddressRepository(f.db).Create(ctx, address))
	return user, address
}

func (f *fixture) seedProduct(t *testing.T, name, price string, stock *int) *models.Product {
	t.Helper()
	product := &models.Product{Name: name, SKU: "SKU-" + name, Price: d(price), Currency: "USD", Status: models.ProductStatusActive, Stock: stock}
	require.NoError(t, repository.NewGormProductRepository(f.db).Create(context.Background(), product))
	return product
}

func (f *fixture) seedCoupon(t *testing.T, coupon *models.Coupon) *models.Coupon {
	t.Helper()
	if coupon.Status == "" {
		coupon.Status = models.CouponStatusActive
	}
	require.NoError(t, repository.NewGormCouponRepository(f.db).Create(context.Background(), coupon))
	return coupon
}

func (f *fixture) product(t *testing.T, id uuid.UUID) *models.Product {
	t.Helper()
	found, err := repository.NewGormProductRepository(f.db).FindByIDs(context.Background(), []uuid.UUID{id})
	require.NoError(t, err)
	require.Len(t, found, 1)
	return &found[0]
}

func (f *fixture) coupon(t *testing.T, id uuid.UUID) *models.Coupon {
	t.Helper()
	c, err := repository.NewGormCouponRepository(f.db).FindByID(context.Background(), id)
	require.NoError(t, err)
	return c
}

func (f *fixture) invoice(t *testing.T, id uuid.UUID) *models.Invoice {
	t.Helper()
	inv, err := repository.NewGormInvoiceRepository(f.db).FindByID(context.Background(), id)
	require.NoError(t, err)
	return inv
}

func (f *fixture) payment(t *testing.T, id uuid.UUID) *models.Payment {
	t.Helper()
	p, err := repository.NewGormPaymentRepository(f.db).FindByID(context.Background(), id)
	require.NoError(t, err)
	return p
}

func (f *fixture) usageCount(t *testing.T, couponID uuid.UUID) int64 {
	t.Helper()
	n, err := repository.NewGormCouponUsageRepository(f.db).CountByCoupon(context.Background(), couponID)
	require.NoError(t, err)
	return n
}

func (f *fixture) checkoutOne(t *testing.T, product *models.Product, qty int, coupon string) *models.Invoice {
	t.Helper()
	invoice, svcErr := f.checkout.Checkout(context.Background(), f.user.ID, &CheckoutRequest{
		AddressID:  f.address.ID,
		CouponCode: coupon,
		Items:      []CheckoutItem{{ProductID: product.ID, Quantity: qty}},
	})
	require.Nil(t, svcErr)
	return invoice
}

func (f *fixture) startMock(t *testing.T, invoiceID uuid.UUID) *PaymentStart {
	t.Helper()
	start, svcErr := f.payments.StartPayment(context.Background(), f.user.ID, invoiceID, &StartPaymentRequest{Provider: providers.MockProviderName})
	require.Nil(t, svcErr)
	return start
}

// callback replays the mock redirect with the given status.
func (f *fixture) callback(t *testing.T, start *PaymentStart, status string) (*CallbackResult, *ServiceError) {
	t.Helper()
	u, err := url.Parse(start.RedirectURL)
	require.NoError(t, err)
	q := u.Query()
	return f.payments.HandleCallback(context.Background(), &CallbackRequest{
		PaymentID: q.Get("payment_id"),
		Token:     q.Get("token"),
		Authority: q.Get("authority"),
		Status:    status,
	})
}

// siblingAttempt stores a second pending attempt next to first, the state two overlapping
// starts for one invoice can leave behind.
func (f *fixture) siblingAttempt(t *testing.T, first *models.Payment) *PaymentStart {
	t.Helper()
	second := &models.Payment{
		InvoiceID:     first.InvoiceID,
		Payable:       first.Payable,
		UserID:        first.UserID,
		Provider:      first.Provider,
		Amount:        first.Amount,
		Currency:      first.Currency,
		Status:        models.PaymentStatusPending,
		Authority:     "MOCK-" + uuid.NewString(),
		CallbackToken: uuid.NewString(),
	}
	require.NoError(t, repository.NewGormPaymentRepository(f.db).Create(context.Background(), second))
	q := url.Values{}
	q.Set("payment_id", second.ID.String())
	q.Set("token", second.CallbackToken)
	q.Set("authority", second.Authority)
	return &PaymentStart{Payment: second, RedirectURL: "http://localhost:8080/payments/callback?" + q.Encode()}
}

func intPtr(v int) *int { return &v }
