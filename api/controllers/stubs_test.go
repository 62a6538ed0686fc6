package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/orderportal/api/middleware"
	"github.com/angelmondragon/orderportal/internal/balancerequests"
	"github.com/angelmondragon/orderportal/internal/cart"
	"github.com/angelmondragon/orderportal/internal/checkout"
	"github.com/angelmondragon/orderportal/internal/ledger"
	"github.com/angelmondragon/orderportal/internal/notifications"
	"github.com/angelmondragon/orderportal/internal/orders"
	product "github.com/angelmondragon/orderportal/internal/products"
	"github.com/angelmondragon/orderportal/internal/stats"
	"github.com/angelmondragon/orderportal/pkg/db/models"
	"github.com/angelmondragon/orderportal/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderportal/pkg/errors"
	"github.com/angelmondragon/orderportal/pkg/logger"
	"github.com/angelmondragon/orderportal/pkg/types"
	"gorm.io/gorm"
)

type stubCheckout struct {
	createFn func(ctx context.Context, actor types.Actor, input checkout.CreateOrderInput) (*checkout.CreateOrderResult, error)
}

func (s *stubCheckout) CreateOrder(ctx context.Context, actor types.Actor, input checkout.CreateOrderInput) (*checkout.CreateOrderResult, error) {
	return s.createFn(ctx, actor, input)
}

type stubCart struct {
	viewFn   func(ctx context.Context, actor types.Actor) (*cart.View, error)
	addFn    func(ctx context.Context, actor types.Actor, input cart.AddItemInput) (*models.CartItem, error)
	updateFn func(ctx context.Context, actor types.Actor, itemID uuid.UUID, quantity int) error
}

func (s *stubCart) View(ctx context.Context, actor types.Actor) (*cart.View, error) {
	if s.viewFn != nil {
		return s.viewFn(ctx, actor)
	}
	return &cart.View{Items: []cart.Line{}}, nil
}

func (s *stubCart) AddItem(ctx context.Context, actor types.Actor, input cart.AddItemInput) (*models.CartItem, error) {
	return s.addFn(ctx, actor, input)
}

func (s *stubCart) UpdateQuantity(ctx context.Context, actor types.Actor, itemID uuid.UUID, quantity int) error {
	return s.updateFn(ctx, actor, itemID, quantity)
}

func (s *stubCart) RemoveItem(context.Context, types.Actor, uuid.UUID) error { return nil }
func (s *stubCart) Clear(context.Context, types.Actor) error                 { return nil }

type stubOrders struct {
	cancelFn func(ctx context.Context, actor types.Actor, orderID uuid.UUID, reason string) (*orders.CancelResult, error)
	statusFn func(ctx context.Context, actor types.Actor, orderID uuid.UUID, status enums.OrderStatus, notes string) (*orders.StatusResult, error)
	getFn    func(ctx context.Context, actor types.Actor, orderID uuid.UUID) (*models.Order, error)
	listFn   func(ctx context.Context, actor types.Actor, params orders.ListParams) (*orders.ListResult, error)
}

func (s *stubOrders) CancelOrder(ctx context.Context, actor types.Actor, orderID uuid.UUID, reason string) (*orders.CancelResult, error) {
	return s.cancelFn(ctx, actor, orderID, reason)
}

func (s *stubOrders) UpdateStatus(ctx context.Context, actor types.Actor, orderID uuid.UUID, status enums.OrderStatus, notes string) (*orders.StatusResult, error) {
	return s.statusFn(ctx, actor, orderID, status, notes)
}

func (s *stubOrders) Get(ctx context.Context, actor types.Actor, orderID uuid.UUID) (*models.Order, error) {
	return s.getFn(ctx, actor, orderID)
}

func (s *stubOrders) List(ctx context.Context, actor types.Actor, params orders.ListParams) (*orders.ListResult, error) {
	return s.listFn(ctx, actor, params)
}

type stubLedger struct {
	summaryFn func(ctx context.Context, userID uuid.UUID) (*ledger.Summary, error)
	listFn    func(ctx context.Context, params ledger.ListParams) (*ledger.ListResult, error)
}

func (s *stubLedger) Apply(context.Context, *gorm.DB, ledger.ApplyInput) (*ledger.Result, error) {
	return nil, nil
}

func (s *stubLedger) ApplyStandalone(context.Context, ledger.ApplyInput) (*ledger.Result, error) {
	return nil, nil
}

func (s *stubLedger) AfterCommit(context.Context, *ledger.Result) {}

func (s *stubLedger) Balance(context.Context, uuid.UUID) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

func (s *stubLedger) ListTransactions(ctx context.Context, params ledger.ListParams) (*ledger.ListResult, error) {
	return s.listFn(ctx, params)
}

func (s *stubLedger) Summary(ctx context.Context, userID uuid.UUID) (*ledger.Summary, error) {
	return s.summaryFn(ctx, userID)
}

func (s *stubLedger) FindDrift(context.Context, int) ([]ledger.Drift, error) { return nil, nil }

type stubBalanceRequests struct {
	requestFn func(ctx context.Context, actor types.Actor, input balancerequests.RequestInput) (*models.BalanceRequest, error)
	resolveFn func(ctx context.Context, actor types.Actor, id uuid.UUID, decision balancerequests.Decision, notes string) (*balancerequests.ResolveResult, error)
	adjustFn  func(ctx context.Context, actor types.Actor, input balancerequests.AdjustInput) (*balancerequests.AdjustResult, error)
	listFn    func(ctx context.Context, actor types.Actor, params balancerequests.ListParams) (*balancerequests.ListResult, error)
}

func (s *stubBalanceRequests) Request(ctx context.Context, actor types.Actor, input balancerequests.RequestInput) (*models.BalanceRequest, error) {
	return s.requestFn(ctx, actor, input)
}

func (s *stubBalanceRequests) Resolve(ctx context.Context, actor types.Actor, id uuid.UUID, decision balancerequests.Decision, notes string) (*balancerequests.ResolveResult, error) {
	return s.resolveFn(ctx, actor, id, decision, notes)
}

func (s *stubBalanceRequests) AdjustDirect(ctx context.Context, actor types.Actor, input balancerequests.AdjustInput) (*balancerequests.AdjustResult, error) {
	return s.adjustFn(ctx, actor, input)
}

func (s *stubBalanceRequests) ListMine(ctx context.Context, actor types.Actor, params balancerequests.ListParams) (*balancerequests.ListResult, error) {
	return s.listFn(ctx, actor, params)
}

func (s *stubBalanceRequests) ListPending(ctx context.Context, actor types.Actor, params balancerequests.ListParams) (*balancerequests.ListResult, error) {
	return s.listFn(ctx, actor, params)
}

type stubNotifications struct {
	listFn func(ctx context.Context, params notifications.ListParams) (*notifications.ListResult, error)
}

func (s *stubNotifications) List(ctx context.Context, params notifications.ListParams) (*notifications.ListResult, error) {
	return s.listFn(ctx, params)
}

func (s *stubNotifications) MarkRead(context.Context, uuid.UUID, uuid.UUID) error { return nil }

func (s *stubNotifications) MarkAllRead(context.Context, uuid.UUID) (int64, error) { return 3, nil }

type stubProducts struct {
	listFn func(ctx context.Context, filters product.ListFilters) ([]product.ProductDTO, error)
}

func (s *stubProducts) ListProducts(ctx context.Context, filters product.ListFilters) ([]product.ProductDTO, error) {
	return s.listFn(ctx, filters)
}

func (s *stubProducts) GetProduct(context.Context, uuid.UUID) (*product.ProductDTO, error) {
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
}

type stubStats struct {
	stats.Service
	salesFn func(ctx context.Context, actor types.Actor, rng stats.Range) (*stats.SalesReport, error)
	userFn  func(ctx context.Context, actor types.Actor, userID uuid.UUID, now time.Time) (*stats.UserOverview, error)
}

func (s *stubStats) Sales(ctx context.Context, actor types.Actor, rng stats.Range) (*stats.SalesReport, error) {
	return s.salesFn(ctx, actor, rng)
}

func (s *stubStats) UserOverview(ctx context.Context, actor types.Actor, userID uuid.UUID, now time.Time) (*stats.UserOverview, error) {
	return s.userFn(ctx, actor, userID, now)
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "controllers-test", Output: io.Discard})
}

// newRequest builds a request carrying actor and chi URL params.
func newRequest(t *testing.T, method, target string, body any, actor *types.Actor, params map[string]string) *http.Request {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, reader)
	ctx := req.Context()
	if actor != nil {
		ctx = middleware.WithActor(ctx, *actor)
	}
	if len(params) > 0 {
		rc := chi.NewRouteContext()
		for k, v := range params {
			rc.URLParams.Add(k, v)
		}
		ctx = context.WithValue(ctx, chi.RouteCtxKey, rc)
	}
	return req.WithContext(ctx)
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return env
}
