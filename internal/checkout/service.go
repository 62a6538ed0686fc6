package checkout

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/orderportal/internal/cart"
	"github.com/angelmondragon/orderportal/internal/ledger"
	"github.com/angelmondragon/orderportal/internal/orderhours"
	"github.com/angelmondragon/orderportal/internal/orders"
	product "github.com/angelmondragon/orderportal/internal/products"
	"github.com/angelmondragon/orderportal/pkg/db"
	"github.com/angelmondragon/orderportal/pkg/db/models"
	"github.com/angelmondragon/orderportal/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderportal/pkg/errors"
	"github.com/angelmondragon/orderportal/pkg/logger"
	"github.com/angelmondragon/orderportal/pkg/metrics"
	"github.com/angelmondragon/orderportal/pkg/outbox"
	"github.com/angelmondragon/orderportal/pkg/outbox/payloads"
	"github.com/angelmondragon/orderportal/pkg/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const orderNumberAttempts = 5

// Service turns the caller's cart into a settled order.
type Service interface {
	CreateOrder(ctx context.Context, actor types.Actor, input CreateOrderInput) (*CreateOrderResult, error)
}

type ServiceParams struct {
	TxRunner db.TxRunner
	Cart     cart.Repository
	Products product.Repository
	Orders   orders.Repository
	Ledger   ledger.Service
	Hours    orderhours.Service
	Outbox   outbox.Emitter
	Notifier orders.Notifier
	Metrics  *metrics.CheckoutMetrics
	Logger   *logger.Logger
	Now      func() time.Time
}

type service struct {
	tx       db.TxRunner
	cart     cart.Repository
	products product.Repository
	orders   orders.Repository
	ledger   ledger.Service
	hours    orderhours.Service
	outbox   outbox.Emitter
	notifier orders.Notifier
	metrics  *metrics.CheckoutMetrics
	logg     *logger.Logger
	now      func() time.Time
}

// NewService builds the checkout service.
func NewService(params ServiceParams) (Service, error) {
	if params.TxRunner == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Cart == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if params.Products == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		tx:       params.TxRunner,
		cart:     params.Cart,
		products: params.Products,
		orders:   params.Orders,
		ledger:   params.Ledger,
		hours:    params.Hours,
		outbox:   params.Outbox,
		notifier: params.Notifier,
		metrics:  params.Metrics,
		logg:     params.Logger,
		now:      now,
	}, nil
}

// placement carries what the post-commit side effects need.
type placement struct {
	order   models.Order
	items   int
	applied *ledger.Result
}

func (s *service) CreateOrder(ctx context.Context, actor types.Actor, input CreateOrderInput) (*CreateOrderResult, error) {
	if actor.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	method := input.PaymentMethod
	if method == "" {
		method = enums.PaymentMethodBalance
	}
	if !method.IsValid() {
		s.recordFailure(pkgerrors.CodeValidation)
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment method")
	}

	var done *placement
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		done, err = s.placeInTx(ctx, tx, actor, method, strings.TrimSpace(input.Notes))
		return err
	})
	if err != nil {
		err = db.MapError(err, "create order")
		if typed := pkgerrors.As(err); typed != nil {
			s.recordFailure(typed.Code())
		}
		return nil, err
	}

	s.afterCommit(ctx, done)

	result := &CreateOrderResult{
		OrderID:       done.order.ID,
		OrderNumber:   done.order.OrderNumber,
		Status:        done.order.Status,
		PaymentMethod: method,
		Total:         done.order.TotalAmount,
		ItemCount:     done.items,
	}
	if done.applied != nil {
		balance := done.applied.BalanceAfter
		result.NewBalance = &balance
	}
	return result, nil
}

func (s *service) placeInTx(ctx context.Context, tx *gorm.DB, actor types.Actor, method enums.PaymentMethod, notes string) (*placement, error) {
	if s.hours != nil {
		if err := s.hours.EnsureOpen(ctx, tx, s.now()); err != nil {
			return nil, err
		}
	}

	cartRepo := s.cart.WithTx(tx)
	productRepo := s.products.WithTx(tx)
	orderRepo := s.orders.WithTx(tx)

	cartItems, err := cartRepo.ListByUser(ctx, actor.UserID)
	if err != nil {
		return nil, db.MapError(err, "load cart")
	}
	if len(cartItems) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}

	productIDs := make([]uuid.UUID, 0, len(cartItems))
	for _, item := range cartItems {
		productIDs = append(productIDs, item.ProductID)
	}
	catalog, err := productRepo.FindByIDs(ctx, productIDs)
	if err != nil {
		return nil, db.MapError(err, "load catalog")
	}

	order := models.Order{
		ID:            uuid.New(),
		UserID:        actor.UserID,
		Status:        enums.OrderStatusPending,
		PaymentMethod: method,
		TotalAmount:   decimal.Zero,
		Items:         make([]models.OrderItem, 0, len(cartItems)),
	}
	if notes != "" {
		order.Notes = &notes
	}

	units := 0
	for _, item := range cartItems {
		p, ok := catalog[item.ProductID]
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "a product in your cart is no longer available").
				WithDetails(map[string]any{"product_id": item.ProductID.String()})
		}
		if item.Quantity < 1 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid quantity for %s", p.Name))
		}
		priced, err := product.PriceLine(p, item.OptionIDs)
		if err != nil {
			return nil, err
		}
		lineTotal := priced.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
		order.Items = append(order.Items, models.OrderItem{
			OrderID:     order.ID,
			ProductID:   p.ID,
			ProductName: p.Name,
			Quantity:    item.Quantity,
			UnitPrice:   priced.UnitPrice,
			Options:     priced.Options,
			LineTotal:   lineTotal,
			Notes:       item.Notes,
		})
		order.TotalAmount = order.TotalAmount.Add(lineTotal)
		units += item.Quantity
	}
	order.TotalAmount = order.TotalAmount.Round(2)

	number, err := s.nextOrderNumber(ctx, orderRepo)
	if err != nil {
		return nil, err
	}
	order.OrderNumber = number

	done := &placement{items: units}
	if method.SettlesThroughLedger() && order.TotalAmount.IsPositive() {
		refType := enums.ReferenceTypeOrder
		applied, err := s.ledger.Apply(ctx, tx, ledger.ApplyInput{
			UserID:        actor.UserID,
			Amount:        order.TotalAmount.Neg(),
			Type:          enums.TransactionTypePurchase,
			Description:   fmt.Sprintf("Order %s", number),
			ReferenceID:   &order.ID,
			ReferenceType: &refType,
			CreatedBy:     &actor.UserID,
		})
		if err != nil {
			return nil, err
		}
		done.applied = applied
	}

	if err := orderRepo.Create(ctx, &order); err != nil {
		return nil, db.MapError(err, "insert order")
	}
	for _, item := range order.Items {
		if err := productRepo.IncrementOrderCount(ctx, item.ProductID, item.Quantity); err != nil {
			return nil, db.MapError(err, "update product order count")
		}
	}
	if _, err := cartRepo.DeleteByUser(ctx, actor.UserID); err != nil {
		return nil, db.MapError(err, "clear cart")
	}

	event := outbox.DomainEvent{
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         &outbox.ActorRef{UserID: actor.UserID, Role: string(enums.UserRoleUser)},
		Data: payloads.OrderCreatedEvent{
			OrderID:       order.ID,
			OrderNumber:   order.OrderNumber,
			UserID:        order.UserID,
			TotalAmount:   order.TotalAmount,
			PaymentMethod: method,
			ItemCount:     units,
		},
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return nil, err
	}

	done.order = order
	return done, nil
}

func (s *service) nextOrderNumber(ctx context.Context, repo orders.Repository) (string, error) {
	for attempt := 0; attempt < orderNumberAttempts; attempt++ {
		number, err := orders.NewOrderNumber(s.now().UTC())
		if err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate order number")
		}
		taken, err := repo.NumberExists(ctx, number)
		if err != nil {
			return "", db.MapError(err, "check order number")
		}
		if !taken {
			return number, nil
		}
	}
	return "", pkgerrors.New(pkgerrors.CodeConflict, "could not allocate an order number")
}

func (s *service) afterCommit(ctx context.Context, done *placement) {
	s.metrics.IncCreated(string(done.order.PaymentMethod))
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"order_id":       done.order.ID.String(),
			"order_number":   done.order.OrderNumber,
			"user_id":        done.order.UserID.String(),
			"payment_method": done.order.PaymentMethod,
			"total":          done.order.TotalAmount.StringFixed(2),
		})
		s.logg.Info(logCtx, "order.created")
	}
	if done.applied != nil {
		s.ledger.AfterCommit(ctx, done.applied)
	}
	if s.notifier == nil {
		return
	}
	message := fmt.Sprintf("Your order %s has been placed. Total: %s.", done.order.OrderNumber, done.order.TotalAmount.StringFixed(2))
	s.notifier.Notify(ctx, done.order.UserID, enums.NotificationTypeOrder, "Order placed", message, "/orders/"+done.order.ID.String())
	s.notifier.EmailUser(ctx, done.order.UserID, fmt.Sprintf("Order confirmation %s", done.order.OrderNumber), confirmationBody(done.order))
}

func (s *service) recordFailure(code pkgerrors.Code) {
	s.metrics.IncFailure(string(code))
}

func confirmationBody(order models.Order) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Thank you for your order %s.\n\n", order.OrderNumber)
	for _, item := range order.Items {
		fmt.Fprintf(&b, "%d x %s  %s\n", item.Quantity, item.ProductName, item.LineTotal.StringFixed(2))
		for _, opt := range item.Options {
			fmt.Fprintf(&b, "    + %s\n", opt.Name)
		}
	}
	fmt.Fprintf(&b, "\nTotal: %s\nPayment: %s\n", order.TotalAmount.StringFixed(2), order.PaymentMethod)
	return b.String()
}
