package orders

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderportal/internal/ledger"
	"github.com/angelmondragon/orderportal/pkg/config"
	"github.com/angelmondragon/orderportal/pkg/db"
	"github.com/angelmondragon/orderportal/pkg/db/dbtest"
	"github.com/angelmondragon/orderportal/pkg/db/models"
	"github.com/angelmondragon/orderportal/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderportal/pkg/errors"
	"github.com/angelmondragon/orderportal/pkg/outbox"
	"github.com/angelmondragon/orderportal/pkg/types"
)

type sentNotification struct {
	userID uuid.UUID
	title  string
	body   string
}

type stubNotifier struct {
	mu       sync.Mutex
	notified []sentNotification
	emailed  []sentNotification
}

func (s *stubNotifier) Notify(_ context.Context, userID uuid.UUID, _ enums.NotificationType, title, message, _ string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notified = append(s.notified, sentNotification{userID: userID, title: title, body: message})
}

func (s *stubNotifier) EmailUser(_ context.Context, userID uuid.UUID, subject, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emailed = append(s.emailed, sentNotification{userID: userID, title: subject, body: body})
}

type fixture struct {
	conn     *gorm.DB
	client   *db.Client
	ledger   ledger.Service
	svc      Service
	notifier *stubNotifier
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	conn := dbtest.Open(t)
	client := db.Wrap(conn)
	emitter := outbox.NewService(outbox.NewRepository(conn), nil)
	ledgerSvc, err := ledger.NewService(ledger.ServiceParams{
		Repository: ledger.NewRepository(conn),
		TxRunner:   client,
		Outbox:     emitter,
		Config: config.LedgerConfig{
			MinBalance:          decimal.Zero,
			LowBalanceThreshold: dbtest.Money("10"),
		},
	})
	require.NoError(t, err)
	notifier := &stubNotifier{}
	svc, err := NewService(ServiceParams{
		Repository: NewRepository(conn),
		TxRunner:   client,
		Ledger:     ledgerSvc,
		Outbox:     emitter,
		Notifier:   notifier,
	})
	require.NoError(t, err)
	return fixture{conn: conn, client: client, ledger: ledgerSvc, svc: svc, notifier: notifier}
}

// placeOrder settles an order the way checkout does: debit then insert, in one unit.
func (f fixture) placeOrder(t *testing.T, user models.User, total string, method enums.PaymentMethod) models.Order {
	t.Helper()
	number, err := NewOrderNumber(time.Now().UTC())
	require.NoError(t, err)
	order := models.Order{
		ID:            uuid.New(),
		OrderNumber:   number,
		UserID:        user.ID,
		TotalAmount:   dbtest.Money(total),
		Status:        enums.OrderStatusPending,
		PaymentMethod: method,
		Items: []models.OrderItem{{
			ProductID:   uuid.New(),
			ProductName: "Toast",
			Quantity:    1,
			UnitPrice:   dbtest.Money(total),
			LineTotal:   dbtest.Money(total),
		}},
	}
	err = f.client.WithTx(context.Background(), func(tx *gorm.DB) error {
		if method.SettlesThroughLedger() {
			ref := enums.ReferenceTypeOrder
			if _, err := f.ledger.Apply(context.Background(), tx, ledger.ApplyInput{
				UserID:        user.ID,
				Amount:        order.TotalAmount.Neg(),
				Type:          enums.TransactionTypePurchase,
				ReferenceID:   &order.ID,
				ReferenceType: &ref,
			}); err != nil {
				return err
			}
		}
		return NewRepository(tx).Create(context.Background(), &order)
	})
	require.NoError(t, err)
	return order
}

func (f fixture) setStatus(t *testing.T, orderID uuid.UUID, status enums.OrderStatus) {
	t.Helper()
	require.NoError(t, f.conn.Model(&models.Order{}).Where("id = ?", orderID).Update("status", status).Error)
}

func (f fixture) orderStatus(t *testing.T, orderID uuid.UUID) enums.OrderStatus {
	t.Helper()
	var order models.Order
	require.NoError(t, f.conn.First(&order, "id = ?", orderID).Error)
	return order.Status
}

func userActor(user models.User) types.Actor {
	return types.Actor{UserID: user.ID}
}

func adminActor(admin models.User) types.Actor {
	return types.Actor{UserID: admin.ID, IsAdmin: true}
}

func TestCancelPendingOrderRefundsBalance(t *testing.T) {
	f := newFixture(t)
	user := dbtest.SeedUser(t, f.conn, "50")
	order := f.placeOrder(t, user, "30", enums.PaymentMethodBalance)
	require.True(t, dbtest.Balance(t, f.conn, user.ID).Equal(dbtest.Money("20")))

	result, err := f.svc.CancelOrder(context.Background(), userActor(user), order.ID, "changed my mind")
	require.NoError(t, err)

	assert.Equal(t, enums.OrderStatusCancelled, result.Status)
	assert.True(t, result.RefundAmount.Equal(dbtest.Money("30")))
	require.NotNil(t, result.NewBalance)
	assert.True(t, result.NewBalance.Equal(dbtest.Money("50")))
	assert.True(t, dbtest.Balance(t, f.conn, user.ID).Equal(dbtest.Money("50")))

	var orderEntries []models.BalanceTransaction
	require.NoError(t, f.conn.Where("reference_id = ?", order.ID).Order("created_at ASC").Find(&orderEntries).Error)
	require.Len(t, orderEntries, 2)
	assert.Equal(t, enums.TransactionTypePurchase, orderEntries[0].Type)
	assert.True(t, orderEntries[0].Amount.Equal(dbtest.Money("-30")))
	assert.Equal(t, enums.TransactionTypeRefund, orderEntries[1].Type)
	assert.True(t, orderEntries[1].Amount.Equal(dbtest.Money("30")))

	var stored models.Order
	require.NoError(t, f.conn.First(&stored, "id = ?", order.ID).Error)
	assert.Equal(t, enums.OrderStatusCancelled, stored.Status)
	require.NotNil(t, stored.CancelReason)
	assert.Equal(t, "changed my mind", *stored.CancelReason)
	require.NotNil(t, stored.CancelledBy)
	assert.Equal(t, user.ID, *stored.CancelledBy)
	assert.NotNil(t, stored.CancelledAt)

	var events []models.OutboxEvent
	require.NoError(t, f.conn.Where("event_type = ?", enums.EventOrderCancelled).Find(&events).Error)
	assert.Len(t, events, 1)

	require.Len(t, f.notifier.notified, 1)
	assert.Contains(t, f.notifier.notified[0].body, "30.00 was refunded")
	assert.Len(t, f.notifier.emailed, 1)
}

func TestCancelCashOrderHasNoLedgerEffect(t *testing.T) {
	f := newFixture(t)
	user := dbtest.SeedUser(t, f.conn, "5")
	order := f.placeOrder(t, user, "30", enums.PaymentMethodCash)

	result, err := f.svc.CancelOrder(context.Background(), userActor(user), order.ID, "")
	require.NoError(t, err)
	assert.True(t, result.RefundAmount.IsZero())
	assert.Nil(t, result.NewBalance)
	assert.True(t, dbtest.Balance(t, f.conn, user.ID).Equal(dbtest.Money("5")))
	assert.Len(t, dbtest.Transactions(t, f.conn, user.ID), 1)
}

func TestCancelDeliveredOrderIsRejected(t *testing.T) {
	f := newFixture(t)
	user := dbtest.SeedUser(t, f.conn, "50")
	admin := dbtest.SeedAdmin(t, f.conn)
	order := f.placeOrder(t, user, "30", enums.PaymentMethodBalance)
	f.setStatus(t, order.ID, enums.OrderStatusDelivered)

	_, err := f.svc.CancelOrder(context.Background(), adminActor(admin), order.ID, "late")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	assert.Equal(t, "cannot cancel a delivered order", pkgerrors.As(err).Message())

	_, err = f.svc.UpdateStatus(context.Background(), adminActor(admin), order.ID, enums.OrderStatusCancelled, "")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	assert.Equal(t, enums.OrderStatusDelivered, f.orderStatus(t, order.ID))
	assert.True(t, dbtest.Balance(t, f.conn, user.ID).Equal(dbtest.Money("20")))
	assert.Empty(t, f.notifier.notified)
}

func TestCancelTwiceRefundsOnce(t *testing.T) {
	f := newFixture(t)
	user := dbtest.SeedUser(t, f.conn, "50")
	order := f.placeOrder(t, user, "30", enums.PaymentMethodBalance)

	_, err := f.svc.CancelOrder(context.Background(), userActor(user), order.ID, "")
	require.NoError(t, err)
	_, err = f.svc.CancelOrder(context.Background(), userActor(user), order.ID, "")
	require.Error(t, err)
	assert.Equal(t, "order already cancelled", pkgerrors.As(err).Message())
	assert.True(t, dbtest.Balance(t, f.conn, user.ID).Equal(dbtest.Money("50")))
	assert.Len(t, dbtest.Transactions(t, f.conn, user.ID), 3)
}

func TestConcurrentCancelsRefundOnce(t *testing.T) {
	f := newFixture(t)
	user := dbtest.SeedUser(t, f.conn, "50")
	admin := dbtest.SeedAdmin(t, f.conn)
	order := f.placeOrder(t, user, "30", enums.PaymentMethodBalance)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	actors := []types.Actor{userActor(user), adminActor(admin)}
	for i := range actors {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.CancelOrder(context.Background(), actors[i], order.ID, "")
		}(i)
	}
	wg.Wait()

	failures := 0
	for _, err := range errs {
		if err != nil {
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
			failures++
		}
	}
	assert.Equal(t, 1, failures)
	assert.True(t, dbtest.Balance(t, f.conn, user.ID).Equal(dbtest.Money("50")))
}

func TestCancelForeignOrderLooksMissing(t *testing.T) {
	f := newFixture(t)
	owner := dbtest.SeedUser(t, f.conn, "50")
	other := dbtest.SeedUser(t, f.conn, "0")
	order := f.placeOrder(t, owner, "30", enums.PaymentMethodBalance)

	_, err := f.svc.CancelOrder(context.Background(), userActor(other), order.ID, "")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	assert.Equal(t, enums.OrderStatusPending, f.orderStatus(t, order.ID))

	_, err = f.svc.Get(context.Background(), userActor(other), order.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = f.svc.CancelOrder(context.Background(), userActor(owner), uuid.New(), "")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestUpdateStatusMovesForwardOneStep(t *testing.T) {
	f := newFixture(t)
	user := dbtest.SeedUser(t, f.conn, "50")
	admin := dbtest.SeedAdmin(t, f.conn)
	order := f.placeOrder(t, user, "30", enums.PaymentMethodBalance)
	ctx := context.Background()

	_, err := f.svc.UpdateStatus(ctx, adminActor(admin), order.ID, enums.OrderStatusReady, "")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	for _, next := range []enums.OrderStatus{enums.OrderStatusPreparing, enums.OrderStatusReady, enums.OrderStatusDelivered} {
		result, err := f.svc.UpdateStatus(ctx, adminActor(admin), order.ID, next, "on it")
		require.NoError(t, err)
		assert.Equal(t, next, result.Status)
		assert.Nil(t, result.RefundAmount)
	}
	assert.Equal(t, enums.OrderStatusDelivered, f.orderStatus(t, order.ID))
	assert.True(t, dbtest.Balance(t, f.conn, user.ID).Equal(dbtest.Money("20")))

	var count int64
	require.NoError(t, f.conn.Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventOrderStatusChanged).Count(&count).Error)
	assert.Equal(t, int64(3), count)
	assert.Len(t, f.notifier.emailed, 3)
	assert.Equal(t, "Your order has been delivered. Enjoy!", f.notifier.emailed[2].body)

	var stored models.Order
	require.NoError(t, f.conn.First(&stored, "id = ?", order.ID).Error)
	require.NotNil(t, stored.AdminNotes)
	assert.Equal(t, "on it", *stored.AdminNotes)
}

func TestUpdateStatusToCancelledRefunds(t *testing.T) {
	f := newFixture(t)
	user := dbtest.SeedUser(t, f.conn, "50")
	admin := dbtest.SeedAdmin(t, f.conn)
	order := f.placeOrder(t, user, "30", enums.PaymentMethodBalance)
	f.setStatus(t, order.ID, enums.OrderStatusReady)

	result, err := f.svc.UpdateStatus(context.Background(), adminActor(admin), order.ID, enums.OrderStatusCancelled, "out of stock")
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusReady, result.PreviousStatus)
	require.NotNil(t, result.RefundAmount)
	assert.True(t, result.RefundAmount.Equal(dbtest.Money("30")))
	assert.True(t, dbtest.Balance(t, f.conn, user.ID).Equal(dbtest.Money("50")))

	var stored models.Order
	require.NoError(t, f.conn.First(&stored, "id = ?", order.ID).Error)
	require.NotNil(t, stored.CancelReason)
	assert.Equal(t, "out of stock", *stored.CancelReason)
	require.NotNil(t, stored.CancelledBy)
	assert.Equal(t, admin.ID, *stored.CancelledBy)
}

func TestUpdateStatusRequiresAdmin(t *testing.T) {
	f := newFixture(t)
	user := dbtest.SeedUser(t, f.conn, "50")
	order := f.placeOrder(t, user, "30", enums.PaymentMethodBalance)

	_, err := f.svc.UpdateStatus(context.Background(), userActor(user), order.ID, enums.OrderStatusPreparing, "")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
	assert.Equal(t, enums.OrderStatusPending, f.orderStatus(t, order.ID))

	_, err = f.svc.UpdateStatus(context.Background(), types.Actor{UserID: user.ID, IsAdmin: true}, order.ID, enums.OrderStatus("lost"), "")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestGetAndListScopeByActor(t *testing.T) {
	f := newFixture(t)
	alice := dbtest.SeedUser(t, f.conn, "100")
	bob := dbtest.SeedUser(t, f.conn, "100")
	admin := dbtest.SeedAdmin(t, f.conn)
	ctx := context.Background()

	first := f.placeOrder(t, alice, "10", enums.PaymentMethodBalance)
	f.placeOrder(t, alice, "12", enums.PaymentMethodCard)
	f.placeOrder(t, bob, "15", enums.PaymentMethodBalance)
	f.setStatus(t, first.ID, enums.OrderStatusReady)

	order, err := f.svc.Get(ctx, userActor(alice), first.ID)
	require.NoError(t, err)
	require.Len(t, order.Items, 1)
	assert.Equal(t, "Toast", order.Items[0].ProductName)

	mine, err := f.svc.List(ctx, userActor(alice), ListParams{UserID: &bob.ID})
	require.NoError(t, err)
	assert.Len(t, mine.Orders, 2)
	for _, o := range mine.Orders {
		assert.Equal(t, alice.ID, o.UserID)
	}

	all, err := f.svc.List(ctx, adminActor(admin), ListParams{})
	require.NoError(t, err)
	assert.Len(t, all.Orders, 3)

	ready := enums.OrderStatusReady
	filtered, err := f.svc.List(ctx, adminActor(admin), ListParams{Status: &ready})
	require.NoError(t, err)
	require.Len(t, filtered.Orders, 1)
	assert.Equal(t, first.ID, filtered.Orders[0].ID)

	byUser, err := f.svc.List(ctx, adminActor(admin), ListParams{UserID: &bob.ID})
	require.NoError(t, err)
	assert.Len(t, byUser.Orders, 1)

	page, err := f.svc.List(ctx, adminActor(admin), ListParams{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page.Orders, 2)
	require.NotEmpty(t, page.NextCursor)
	rest, err := f.svc.List(ctx, adminActor(admin), ListParams{Limit: 2, Cursor: page.NextCursor})
	require.NoError(t, err)
	assert.Len(t, rest.Orders, 1)
	assert.Empty(t, rest.NextCursor)
}
