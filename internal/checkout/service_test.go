package checkout

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/quickcart/quickcart-backend/internal/cart"
	"github.com/quickcart/quickcart-backend/internal/inventory"
	"github.com/quickcart/quickcart-backend/internal/orders"
	product "github.com/quickcart/quickcart-backend/internal/products"
	"github.com/quickcart/quickcart-backend/pkg/db/dbtest"
	"github.com/quickcart/quickcart-backend/pkg/db/models"
	"github.com/quickcart/quickcart-backend/pkg/enums"
	pkgerrors "github.com/quickcart/quickcart-backend/pkg/errors"
	"github.com/quickcart/quickcart-backend/pkg/outbox"
	"github.com/quickcart/quickcart-backend/pkg/types"
)

type fixture struct {
	conn     *gorm.DB
	checkout Service
	carts    cart.Service
	orders   orders.Service
}

func newFixture(t *testing.T, numbers orders.NumberGenerator) *fixture {
	t.Helper()
	conn := dbtest.Open(t)
	client := dbtest.Client(conn)
	publisher := outbox.NewService(outbox.NewRepository(conn), nil)
	products := product.NewRepository(conn)

	ledger, err := inventory.NewLedger(conn, client, publisher, nil)
	require.NoError(t, err)
	cartRepo := cart.NewRepository(conn)
	carts, err := cart.NewService(cartRepo, products, client, nil)
	require.NoError(t, err)
	orderRepo := orders.NewRepository(conn)
	orderSvc, err := orders.NewService(orderRepo, client, publisher, ledger, 0, nil, nil)
	require.NoError(t, err)

	svc, err := NewService(Deps{
		Tx:          client,
		Carts:       cartRepo,
		CartClearer: carts,
		Products:    products,
		Orders:      orderRepo,
		Stock:       ledger,
		Numbers:     numbers,
		Outbox:      publisher,
	})
	require.NoError(t, err)

	return &fixture{conn: conn, checkout: svc, carts: carts, orders: orderSvc}
}

func validInput() CheckoutInput {
	addr := types.Address{
		Name:         "Grace Hopper",
		AddressLine1: "42 Compiler Ct",
		City:         "Arlington",
		State:        "VA",
		PostalCode:   "22201",
		Country:      "US",
	}
	return CheckoutInput{
		ShippingAddress: addr,
		BillingAddress:  addr,
		PaymentMethod:   enums.PaymentMethodCreditCard,
	}
}

func money(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestCheckoutBelowFreeShippingThreshold(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	user := types.UserPrincipal(uuid.New())
	p := dbtest.SeedProduct(t, f.conn, "Mug", "25.00", 10)

	_, err := f.carts.AddItem(ctx, user, p.ID, 2)
	require.NoError(t, err)

	order, err := f.checkout.Checkout(ctx, user, validInput())
	require.NoError(t, err)

	assert.True(t, order.Subtotal.Equal(money("50.00")))
	assert.True(t, order.TaxAmount.Equal(money("4.00")))
	assert.True(t, order.ShippingAmount.Equal(money("10.00")))
	assert.True(t, order.DiscountAmount.IsZero())
	assert.True(t, order.TotalAmount.Equal(money("64.00")))
	assert.Equal(t, enums.OrderStatusPending, order.Status)
	assert.Equal(t, enums.PaymentStatusPending, order.PaymentStatus)
	assert.Regexp(t, `^ORD-\d{8}-[A-Z0-9]{8}$`, order.OrderNumber)

	require.Len(t, order.Items, 1)
	item := order.Items[0]
	assert.Equal(t, "Mug", item.ProductName)
	assert.Equal(t, p.SKU, item.ProductSKU)
	assert.True(t, item.UnitPrice.Equal(money("25.00")))
	assert.True(t, item.TotalPrice.Equal(money("50.00")))
	require.NotNil(t, item.Product)

	assert.Equal(t, 8, dbtest.Stock(t, f.conn, p.ID))
	assert.Equal(t, int64(0), dbtest.Count(t, f.conn, "cart_items"))

	var events int64
	require.NoError(t, f.conn.Table("outbox_events").Where("event_type = ?", enums.EventOrderCreated).Count(&events).Error)
	assert.Equal(t, int64(1), events)
}

func TestCheckoutAboveFreeShippingThreshold(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	user := types.UserPrincipal(uuid.New())
	a := dbtest.SeedProduct(t, f.conn, "Kettle", "100.00", 3)
	b := dbtest.SeedProduct(t, f.conn, "Tea", "25.00", 3)

	_, err := f.carts.AddItem(ctx, user, a.ID, 1)
	require.NoError(t, err)
	_, err = f.carts.AddItem(ctx, user, b.ID, 2)
	require.NoError(t, err)

	order, err := f.checkout.Checkout(ctx, user, validInput())
	require.NoError(t, err)
	assert.True(t, order.Subtotal.Equal(money("150.00")))
	assert.True(t, order.ShippingAmount.IsZero())
	assert.True(t, order.TaxAmount.Equal(money("12.00")))
	assert.True(t, order.TotalAmount.Equal(money("162.00")))
	assert.Len(t, order.Items, 2)
}

func TestCheckoutUsesCartCapturedPrice(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	user := types.UserPrincipal(uuid.New())
	p := dbtest.SeedProduct(t, f.conn, "Mug", "25.00", 10)

	_, err := f.carts.AddItem(ctx, user, p.ID, 2)
	require.NoError(t, err)
	require.NoError(t, f.conn.Exec("UPDATE products SET price = ?, name = ? WHERE id = ?", "30.00", "Mug v2", p.ID).Error)

	order, err := f.checkout.Checkout(ctx, user, validInput())
	require.NoError(t, err)
	assert.True(t, order.Items[0].UnitPrice.Equal(money("25.00")))
	assert.Equal(t, "Mug v2", order.Items[0].ProductName)

	// later catalog edits never reach the snapshot
	require.NoError(t, f.conn.Exec("UPDATE products SET name = ? WHERE id = ?", "Mug v3", p.ID).Error)
	got, err := f.orders.Get(ctx, *user.UserID, order.ID)
	require.NoError(t, err)
	assert.Equal(t, "Mug v2", got.Items[0].ProductName)
}

func TestCheckoutEmptyCart(t *testing.T) {
	f := newFixture(t, nil)
	user := types.UserPrincipal(uuid.New())

	_, err := f.checkout.Checkout(context.Background(), user, validInput())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeEmptyCart))

	_, err = f.carts.GetOrCreate(context.Background(), user)
	require.NoError(t, err)
	_, err = f.checkout.Checkout(context.Background(), user, validInput())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeEmptyCart))
	assert.Equal(t, int64(0), dbtest.Count(t, f.conn, "orders"))
}

func TestCheckoutRequiresUser(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.checkout.Checkout(context.Background(), types.SessionPrincipal("anon"), validInput())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))
}

func TestCheckoutValidatesInput(t *testing.T) {
	f := newFixture(t, nil)
	user := types.UserPrincipal(uuid.New())

	input := validInput()
	input.PaymentMethod = "cash"
	input.BillingAddress.City = "  "
	_, err := f.checkout.Checkout(context.Background(), user, input)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	details, ok := pkgerrors.As(err).Details().(map[string]string)
	require.True(t, ok)
	assert.Contains(t, details, "payment_method")
	assert.Contains(t, details, "billing_address")
}

func TestCheckoutInsufficientStockRollsBackEverything(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	user := types.UserPrincipal(uuid.New())
	plenty := dbtest.SeedProduct(t, f.conn, "Plenty", "5.00", 10)
	scarce := dbtest.SeedProduct(t, f.conn, "Scarce", "5.00", 3)

	_, err := f.carts.AddItem(ctx, user, plenty.ID, 2)
	require.NoError(t, err)
	_, err = f.carts.AddItem(ctx, user, scarce.ID, 3)
	require.NoError(t, err)
	require.NoError(t, f.conn.Exec("UPDATE products SET stock_quantity = 1 WHERE id = ?", scarce.ID).Error)

	_, err = f.checkout.Checkout(ctx, user, validInput())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock))
	assert.Equal(t, "Insufficient stock for product: Scarce", pkgerrors.As(err).Message())

	assert.Equal(t, 10, dbtest.Stock(t, f.conn, plenty.ID))
	assert.Equal(t, 1, dbtest.Stock(t, f.conn, scarce.ID))
	assert.Equal(t, int64(0), dbtest.Count(t, f.conn, "orders"))
	assert.Equal(t, int64(0), dbtest.Count(t, f.conn, "order_items"))
	assert.Equal(t, int64(2), dbtest.Count(t, f.conn, "cart_items"))
	assert.Equal(t, int64(0), dbtest.Count(t, f.conn, "outbox_events"))
}

func TestCheckoutRejectsInactiveProduct(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	user := types.UserPrincipal(uuid.New())
	p := dbtest.SeedProduct(t, f.conn, "Retired", "5.00", 10)

	_, err := f.carts.AddItem(ctx, user, p.ID, 1)
	require.NoError(t, err)
	require.NoError(t, f.conn.Exec("UPDATE products SET is_active = ? WHERE id = ?", false, p.ID).Error)

	_, err = f.checkout.Checkout(ctx, user, validInput())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInactive))
	assert.Equal(t, 10, dbtest.Stock(t, f.conn, p.ID))
}

func TestConcurrentCheckoutsForLastUnit(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	p := dbtest.SeedProduct(t, f.conn, "Last One", "20.00", 1)

	buyers := []types.Principal{types.UserPrincipal(uuid.New()), types.UserPrincipal(uuid.New())}
	for _, buyer := range buyers {
		_, err := f.carts.AddItem(ctx, buyer, p.ID, 1)
		require.NoError(t, err)
	}

	errs := make([]error, len(buyers))
	var wg sync.WaitGroup
	for i, buyer := range buyers {
		wg.Add(1)
		go func(i int, buyer types.Principal) {
			defer wg.Done()
			_, errs[i] = f.checkout.Checkout(ctx, buyer, validInput())
		}(i, buyer)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 0, dbtest.Stock(t, f.conn, p.ID))
	assert.Equal(t, int64(1), dbtest.Count(t, f.conn, "orders"))
}

func TestCheckoutRegeneratesCollidingOrderNumber(t *testing.T) {
	var (
		mu    sync.Mutex
		calls int
	)
	// second and third calls repeat the first number
	numbers := func(now time.Time) string {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls <= 3 {
			return "ORD-20260101-AAAAAAAA"
		}
		return fmt.Sprintf("ORD-20260101-%08d", calls)
	}
	f := newFixture(t, numbers)
	ctx := context.Background()
	p := dbtest.SeedProduct(t, f.conn, "Mug", "10.00", 10)

	first := types.UserPrincipal(uuid.New())
	second := types.UserPrincipal(uuid.New())
	for _, buyer := range []types.Principal{first, second} {
		_, err := f.carts.AddItem(ctx, buyer, p.ID, 1)
		require.NoError(t, err)
	}

	o1, err := f.checkout.Checkout(ctx, first, validInput())
	require.NoError(t, err)
	o2, err := f.checkout.Checkout(ctx, second, validInput())
	require.NoError(t, err)

	assert.Equal(t, "ORD-20260101-AAAAAAAA", o1.OrderNumber)
	assert.Equal(t, "ORD-20260101-00000004", o2.OrderNumber)
	assert.Len(t, o2.Items, 1)
	assert.Equal(t, 8, dbtest.Stock(t, f.conn, p.ID))
}

func TestCheckoutGivesUpAfterBoundedNumberAttempts(t *testing.T) {
	numbers := func(time.Time) string { return "ORD-20260101-SAMESAME" }
	f := newFixture(t, numbers)
	ctx := context.Background()
	p := dbtest.SeedProduct(t, f.conn, "Mug", "10.00", 10)

	first := types.UserPrincipal(uuid.New())
	second := types.UserPrincipal(uuid.New())
	for _, buyer := range []types.Principal{first, second} {
		_, err := f.carts.AddItem(ctx, buyer, p.ID, 1)
		require.NoError(t, err)
	}

	_, err := f.checkout.Checkout(ctx, first, validInput())
	require.NoError(t, err)
	_, err = f.checkout.Checkout(ctx, second, validInput())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeTransactionFailure))
	assert.Equal(t, 9, dbtest.Stock(t, f.conn, p.ID))
	assert.Equal(t, int64(1), dbtest.Count(t, f.conn, "cart_items"))
}

func TestCheckoutThenCancelRestoresStock(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	user := types.UserPrincipal(uuid.New())
	a := dbtest.SeedProduct(t, f.conn, "A", "10.00", 6)
	b := dbtest.SeedProduct(t, f.conn, "B", "3.00", 4)

	_, err := f.carts.AddItem(ctx, user, a.ID, 3)
	require.NoError(t, err)
	_, err = f.carts.AddItem(ctx, user, b.ID, 1)
	require.NoError(t, err)

	order, err := f.checkout.Checkout(ctx, user, validInput())
	require.NoError(t, err)
	assert.Equal(t, 3, dbtest.Stock(t, f.conn, a.ID))
	assert.Equal(t, 3, dbtest.Stock(t, f.conn, b.ID))

	_, err = f.orders.Cancel(ctx, *user.UserID, order.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, dbtest.Stock(t, f.conn, a.ID))
	assert.Equal(t, 4, dbtest.Stock(t, f.conn, b.ID))

	var stored models.Order
	require.NoError(t, f.conn.First(&stored, "id = ?", order.ID).Error)
	assert.Equal(t, enums.OrderStatusCancelled, stored.Status)
}

type orderedCartRepo struct {
	cart.CartRepository
	calls *[]string
}

func (r orderedCartRepo) WithTx(tx *gorm.DB) cart.CartRepository {
	return orderedCartRepo{CartRepository: r.CartRepository.WithTx(tx), calls: r.calls}
}

func (r orderedCartRepo) LockByOwner(ctx context.Context, ownerKey string) (uuid.UUID, error) {
	*r.calls = append(*r.calls, "lock")
	return r.CartRepository.LockByOwner(ctx, ownerKey)
}

func (r orderedCartRepo) FindByOwner(ctx context.Context, ownerKey string) (*models.Cart, error) {
	*r.calls = append(*r.calls, "load")
	return r.CartRepository.FindByOwner(ctx, ownerKey)
}

func TestCheckoutLocksCartBeforeReadingLines(t *testing.T) {
	conn := dbtest.Open(t)
	client := dbtest.Client(conn)
	publisher := outbox.NewService(outbox.NewRepository(conn), nil)
	products := product.NewRepository(conn)
	ledger, err := inventory.NewLedger(conn, client, publisher, nil)
	require.NoError(t, err)

	var calls []string
	cartRepo := orderedCartRepo{CartRepository: cart.NewRepository(conn), calls: &calls}
	carts, err := cart.NewService(cart.NewRepository(conn), products, client, nil)
	require.NoError(t, err)
	svc, err := NewService(Deps{
		Tx:          client,
		Carts:       cartRepo,
		CartClearer: carts,
		Products:    products,
		Orders:      orders.NewRepository(conn),
		Stock:       ledger,
		Outbox:      publisher,
	})
	require.NoError(t, err)

	ctx := context.Background()
	user := types.UserPrincipal(uuid.New())
	p := dbtest.SeedProduct(t, conn, "Lamp", "30.00", 5)
	_, err = carts.AddItem(ctx, user, p.ID, 1)
	require.NoError(t, err)

	_, err = svc.Checkout(ctx, user, validInput())
	require.NoError(t, err)
	assert.Equal(t, []string{"lock", "load"}, calls)
}

func TestRepeatedCheckoutOfSameCartPlacesOneOrder(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	user := types.UserPrincipal(uuid.New())
	p := dbtest.SeedProduct(t, f.conn, "Teapot", "25.00", 10)

	_, err := f.carts.AddItem(ctx, user, p.ID, 2)
	require.NoError(t, err)

	_, err = f.checkout.Checkout(ctx, user, validInput())
	require.NoError(t, err)
	_, err = f.checkout.Checkout(ctx, user, validInput())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeEmptyCart))

	assert.Equal(t, int64(1), dbtest.Count(t, f.conn, "orders"))
	assert.Equal(t, 8, dbtest.Stock(t, f.conn, p.ID))
}

func TestCheckoutWithoutCartIsEmpty(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.checkout.Checkout(context.Background(), types.UserPrincipal(uuid.New()), validInput())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeEmptyCart))
	assert.Equal(t, int64(0), dbtest.Count(t, f.conn, "carts"))
}
