package ledger

import (
	"context"
	"database/sql/driver"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderportal/pkg/config"
	"github.com/angelmondragon/orderportal/pkg/db"
	"github.com/angelmondragon/orderportal/pkg/db/dbtest"
	"github.com/angelmondragon/orderportal/pkg/db/models"
	"github.com/angelmondragon/orderportal/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderportal/pkg/errors"
	"github.com/angelmondragon/orderportal/pkg/metrics"
	"github.com/angelmondragon/orderportal/pkg/outbox"
)

type stubNotifier struct {
	mu    sync.Mutex
	calls []decimal.Decimal
}

func (s *stubNotifier) NotifyLowBalance(_ context.Context, _ uuid.UUID, balance decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, balance)
}

type fixture struct {
	conn     *gorm.DB
	client   *db.Client
	svc      Service
	notifier *stubNotifier
	registry *prometheus.Registry
}

func newFixture(t *testing.T, cfg config.LedgerConfig) fixture {
	t.Helper()
	conn := dbtest.Open(t)
	client := db.Wrap(conn)
	notifier := &stubNotifier{}
	registry := prometheus.NewRegistry()
	ledgerMetrics := metrics.NewLedgerMetrics(registry)
	svc, err := NewService(ServiceParams{
		Repository: NewRepository(conn),
		TxRunner:   client,
		Outbox:     outbox.NewService(outbox.NewRepository(conn), nil),
		Config:     cfg,
		Metrics:    ledgerMetrics,
		Notifier:   notifier,
	})
	require.NoError(t, err)
	return fixture{conn: conn, client: client, svc: svc, notifier: notifier, registry: registry}
}

func defaultConfig() config.LedgerConfig {
	return config.LedgerConfig{
		MinBalance:          decimal.Zero,
		LowBalanceThreshold: dbtest.Money("10"),
		MaxDepositRequest:   dbtest.Money("10000"),
	}
}

func purchase(userID uuid.UUID, amount string) ApplyInput {
	orderID := uuid.New()
	ref := enums.ReferenceTypeOrder
	return ApplyInput{
		UserID:        userID,
		Amount:        dbtest.Money(amount).Neg(),
		Type:          enums.TransactionTypePurchase,
		Description:   "Order payment",
		ReferenceID:   &orderID,
		ReferenceType: &ref,
	}
}

func TestApplyDebitWritesBalanceAndEntry(t *testing.T) {
	f := newFixture(t, defaultConfig())
	user := dbtest.SeedUser(t, f.conn, "100")

	var result *Result
	err := f.client.WithTx(context.Background(), func(tx *gorm.DB) error {
		var err error
		result, err = f.svc.Apply(context.Background(), tx, purchase(user.ID, "39.50"))
		return err
	})
	require.NoError(t, err)

	assert.True(t, result.BalanceBefore.Equal(dbtest.Money("100")))
	assert.True(t, result.BalanceAfter.Equal(dbtest.Money("60.50")))
	assert.False(t, result.LowBalance)
	assert.True(t, dbtest.Balance(t, f.conn, user.ID).Equal(dbtest.Money("60.50")))

	rows := dbtest.Transactions(t, f.conn, user.ID)
	require.Len(t, rows, 2)
	last := rows[1]
	assert.Equal(t, enums.TransactionTypePurchase, last.Type)
	assert.True(t, last.Amount.Equal(dbtest.Money("-39.50")))
	assert.True(t, last.BalanceBefore.Equal(dbtest.Money("100")))
	assert.True(t, last.BalanceAfter.Equal(dbtest.Money("60.50")))
	require.NotNil(t, last.ReferenceType)
	assert.Equal(t, enums.ReferenceTypeOrder, *last.ReferenceType)

	var events []models.OutboxEvent
	require.NoError(t, f.conn.Where("event_type = ?", enums.EventBalanceChanged).Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, user.ID, events[0].AggregateID)
	assert.Equal(t, enums.AggregateUser, events[0].AggregateType)

	assert.Zero(t, f.mutationCount(t, "purchase", metrics.OutcomeApplied))
	f.svc.AfterCommit(context.Background(), result)
	assert.Equal(t, float64(1), f.mutationCount(t, "purchase", metrics.OutcomeApplied))
}

// flakyRunner rolls back the first attempt with a transient error and then retries,
// the way db.Client does after a dropped connection.
type flakyRunner struct {
	conn     *gorm.DB
	attempts int
}

func (r *flakyRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	r.attempts++
	err := r.conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := fn(tx); err != nil {
			return err
		}
		return driver.ErrBadConn
	})
	if !db.IsTransient(err) {
		return err
	}
	r.attempts++
	return r.conn.WithContext(ctx).Transaction(fn)
}

func TestRetriedUnitCountsOneAppliedMutation(t *testing.T) {
	conn := dbtest.Open(t)
	registry := prometheus.NewRegistry()
	runner := &flakyRunner{conn: conn}
	svc, err := NewService(ServiceParams{
		Repository: NewRepository(conn),
		TxRunner:   runner,
		Outbox:     outbox.NewService(outbox.NewRepository(conn), nil),
		Config:     defaultConfig(),
		Metrics:    metrics.NewLedgerMetrics(registry),
	})
	require.NoError(t, err)
	f := fixture{conn: conn, svc: svc, registry: registry}
	user := dbtest.SeedUser(t, conn, "50")

	_, err = svc.ApplyStandalone(context.Background(), purchase(user.ID, "20"))
	require.NoError(t, err)

	assert.Equal(t, 2, runner.attempts)
	assert.True(t, dbtest.Balance(t, conn, user.ID).Equal(dbtest.Money("30")))
	assert.Len(t, dbtest.Transactions(t, conn, user.ID), 2)
	assert.Equal(t, float64(1), f.mutationCount(t, "purchase", metrics.OutcomeApplied))
}

func TestRolledBackUnitCountsNoAppliedMutation(t *testing.T) {
	f := newFixture(t, defaultConfig())
	user := dbtest.SeedUser(t, f.conn, "50")

	err := f.client.WithTx(context.Background(), func(tx *gorm.DB) error {
		if _, err := f.svc.Apply(context.Background(), tx, purchase(user.ID, "30")); err != nil {
			return err
		}
		return errors.New("order insert failed")
	})
	require.Error(t, err)
	assert.Zero(t, f.mutationCount(t, "purchase", metrics.OutcomeApplied))
}

func (f fixture) mutationCount(t *testing.T, txType, outcome string) float64 {
	t.Helper()
	families, err := f.registry.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != "orderportal_ledger_mutations_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			labels := map[string]string{}
			for _, pair := range metric.GetLabel() {
				labels[pair.GetName()] = pair.GetValue()
			}
			if labels["type"] == txType && labels["outcome"] == outcome {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestApplyInsufficientFundsWritesNothing(t *testing.T) {
	f := newFixture(t, defaultConfig())
	user := dbtest.SeedUser(t, f.conn, "20")

	err := f.client.WithTx(context.Background(), func(tx *gorm.DB) error {
		_, err := f.svc.Apply(context.Background(), tx, purchase(user.ID, "20.01"))
		return err
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficient))

	assert.True(t, dbtest.Balance(t, f.conn, user.ID).Equal(dbtest.Money("20")))
	assert.Len(t, dbtest.Transactions(t, f.conn, user.ID), 1)

	var count int64
	require.NoError(t, f.conn.Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.Zero(t, count)
	assert.Equal(t, float64(1), f.mutationCount(t, "purchase", metrics.OutcomeInsufficient))
}

func TestApplyAllowsExactBalance(t *testing.T) {
	f := newFixture(t, defaultConfig())
	user := dbtest.SeedUser(t, f.conn, "20")

	result, err := f.svc.ApplyStandalone(context.Background(), purchase(user.ID, "20"))
	require.NoError(t, err)
	assert.True(t, result.BalanceAfter.IsZero())
	assert.True(t, result.LowBalance)
}

func TestApplyHonorsConfiguredNegativeFloor(t *testing.T) {
	cfg := defaultConfig()
	cfg.MinBalance = dbtest.Money("-50")
	f := newFixture(t, cfg)
	user := dbtest.SeedUser(t, f.conn, "10")

	result, err := f.svc.ApplyStandalone(context.Background(), purchase(user.ID, "60"))
	require.NoError(t, err)
	assert.True(t, result.BalanceAfter.Equal(dbtest.Money("-50")))

	_, err = f.svc.ApplyStandalone(context.Background(), purchase(user.ID, "0.01"))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficient))
}

func TestApplyValidatesInput(t *testing.T) {
	f := newFixture(t, defaultConfig())
	user := dbtest.SeedUser(t, f.conn, "50")
	orderID := uuid.New()

	cases := map[string]ApplyInput{
		"zero amount":        {UserID: user.ID, Amount: decimal.Zero, Type: enums.TransactionTypeDeposit},
		"unknown type":       {UserID: user.ID, Amount: dbtest.Money("5"), Type: enums.TransactionType("bonus")},
		"positive purchase":  {UserID: user.ID, Amount: dbtest.Money("5"), Type: enums.TransactionTypePurchase},
		"negative deposit":   {UserID: user.ID, Amount: dbtest.Money("-5"), Type: enums.TransactionTypeDeposit},
		"negative refund":    {UserID: user.ID, Amount: dbtest.Money("-5"), Type: enums.TransactionTypeRefund},
		"missing user":       {Amount: dbtest.Money("5"), Type: enums.TransactionTypeDeposit},
		"dangling reference": {UserID: user.ID, Amount: dbtest.Money("5"), Type: enums.TransactionTypeDeposit, ReferenceID: &orderID},
		"rounds to zero":     {UserID: user.ID, Amount: dbtest.Money("0.001"), Type: enums.TransactionTypeDeposit},
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.ApplyStandalone(context.Background(), input)
			require.Error(t, err)
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)
		})
	}
	assert.True(t, dbtest.Balance(t, f.conn, user.ID).Equal(dbtest.Money("50")))
}

func TestApplyUnknownUserIsNotFound(t *testing.T) {
	f := newFixture(t, defaultConfig())

	_, err := f.svc.ApplyStandalone(context.Background(), purchase(uuid.New(), "1"))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestApplyRequiresTransaction(t *testing.T) {
	f := newFixture(t, defaultConfig())
	user := dbtest.SeedUser(t, f.conn, "50")

	_, err := f.svc.Apply(context.Background(), nil, purchase(user.ID, "1"))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInternal))
}

func TestApplyRollsBackWithEnclosingUnit(t *testing.T) {
	f := newFixture(t, defaultConfig())
	user := dbtest.SeedUser(t, f.conn, "50")
	boom := errors.New("order insert failed")

	err := f.client.WithTx(context.Background(), func(tx *gorm.DB) error {
		if _, err := f.svc.Apply(context.Background(), tx, purchase(user.ID, "30")); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.True(t, dbtest.Balance(t, f.conn, user.ID).Equal(dbtest.Money("50")))
	assert.Len(t, dbtest.Transactions(t, f.conn, user.ID), 1)
}

func TestApplyStandaloneNotifiesLowBalanceAfterCommit(t *testing.T) {
	f := newFixture(t, defaultConfig())
	user := dbtest.SeedUser(t, f.conn, "15")

	result, err := f.svc.ApplyStandalone(context.Background(), purchase(user.ID, "7.25"))
	require.NoError(t, err)
	assert.True(t, result.LowBalance)
	require.Len(t, f.notifier.calls, 1)
	assert.True(t, f.notifier.calls[0].Equal(dbtest.Money("7.75")))

	deposit := ApplyInput{UserID: user.ID, Amount: dbtest.Money("50"), Type: enums.TransactionTypeDeposit}
	result, err = f.svc.ApplyStandalone(context.Background(), deposit)
	require.NoError(t, err)
	assert.False(t, result.LowBalance)
	assert.Len(t, f.notifier.calls, 1)
}

func TestConcurrentDebitsSerializeOnUserRow(t *testing.T) {
	f := newFixture(t, defaultConfig())
	user := dbtest.SeedUser(t, f.conn, "100")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.ApplyStandalone(context.Background(), purchase(user.ID, "60"))
		}(i)
	}
	wg.Wait()

	succeeded, insufficient := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case pkgerrors.IsCode(err, pkgerrors.CodeInsufficient):
			insufficient++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, insufficient)
	assert.True(t, dbtest.Balance(t, f.conn, user.ID).Equal(dbtest.Money("40")))
	assertChain(t, dbtest.Transactions(t, f.conn, user.ID))
}

func TestBalanceEqualsSumOfEntries(t *testing.T) {
	f := newFixture(t, defaultConfig())
	user := dbtest.SeedUser(t, f.conn, "25")
	ctx := context.Background()

	steps := []ApplyInput{
		{UserID: user.ID, Amount: dbtest.Money("100"), Type: enums.TransactionTypeDeposit},
		purchase(user.ID, "12.35"),
		purchase(user.ID, "200"),
		{UserID: user.ID, Amount: dbtest.Money("12.35"), Type: enums.TransactionTypeRefund},
		purchase(user.ID, "0.10"),
		purchase(user.ID, "0.20"),
	}
	for _, step := range steps {
		_, err := f.svc.ApplyStandalone(ctx, step)
		if err != nil {
			require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficient), "unexpected error %v", err)
		}
	}

	rows := dbtest.Transactions(t, f.conn, user.ID)
	sum := decimal.Zero
	for _, row := range rows {
		sum = sum.Add(row.Amount)
	}
	balance := dbtest.Balance(t, f.conn, user.ID)
	assert.True(t, balance.Equal(sum), "balance %s sum %s", balance, sum)
	assert.True(t, balance.Equal(dbtest.Money("124.70")))
	assertChain(t, rows)

	drift, err := f.svc.FindDrift(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, drift)
}

func TestFindDriftReportsTamperedBalance(t *testing.T) {
	f := newFixture(t, defaultConfig())
	user := dbtest.SeedUser(t, f.conn, "30")
	dbtest.SeedUser(t, f.conn, "0")
	require.NoError(t, f.conn.Model(&models.User{}).Where("id = ?", user.ID).Update("balance", dbtest.Money("31")).Error)

	drift, err := f.svc.FindDrift(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, drift, 1)
	assert.Equal(t, user.ID, drift[0].UserID)
	assert.True(t, drift[0].LedgerTotal.Equal(dbtest.Money("30")))
}

func TestListTransactionsPaginatesNewestFirst(t *testing.T) {
	f := newFixture(t, defaultConfig())
	user := dbtest.SeedUser(t, f.conn, "100")
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		_, err := f.svc.ApplyStandalone(ctx, purchase(user.ID, "1"))
		require.NoError(t, err)
	}

	seen := map[uuid.UUID]bool{}
	cursor := ""
	pages := 0
	for {
		page, err := f.svc.ListTransactions(ctx, ListParams{UserID: user.ID, Limit: 2, Cursor: cursor})
		require.NoError(t, err)
		pages++
		for _, item := range page.Items {
			assert.False(t, seen[item.ID], "duplicate row across pages")
			seen[item.ID] = true
		}
		if page.Cursor == "" {
			break
		}
		cursor = page.Cursor
	}
	assert.Len(t, seen, 5)
	assert.Equal(t, 3, pages)

	purchaseType := enums.TransactionTypePurchase
	filtered, err := f.svc.ListTransactions(ctx, ListParams{UserID: user.ID, Type: &purchaseType})
	require.NoError(t, err)
	assert.Len(t, filtered.Items, 4)

	_, err = f.svc.ListTransactions(ctx, ListParams{UserID: user.ID, Cursor: "not-a-cursor"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestSummaryAggregatesByType(t *testing.T) {
	f := newFixture(t, defaultConfig())
	user := dbtest.SeedUser(t, f.conn, "80")
	ctx := context.Background()

	_, err := f.svc.ApplyStandalone(ctx, purchase(user.ID, "30"))
	require.NoError(t, err)
	_, err = f.svc.ApplyStandalone(ctx, ApplyInput{UserID: user.ID, Amount: dbtest.Money("30"), Type: enums.TransactionTypeRefund})
	require.NoError(t, err)
	_, err = f.svc.ApplyStandalone(ctx, purchase(user.ID, "12.5"))
	require.NoError(t, err)

	summary, err := f.svc.Summary(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, summary.Balance.Equal(dbtest.Money("67.5")))
	assert.True(t, summary.TotalDeposited.Equal(dbtest.Money("80")))
	assert.True(t, summary.TotalSpent.Equal(dbtest.Money("42.5")))
	assert.True(t, summary.TotalRefunded.Equal(dbtest.Money("30")))
	assert.Equal(t, int64(4), summary.TransactionCount)

	_, err = f.svc.Summary(ctx, uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestNewServiceRejectsPositiveFloor(t *testing.T) {
	conn := dbtest.Open(t)
	_, err := NewService(ServiceParams{
		Repository: NewRepository(conn),
		TxRunner:   db.Wrap(conn),
		Outbox:     outbox.NewService(outbox.NewRepository(conn), nil),
		Config:     config.LedgerConfig{MinBalance: dbtest.Money("1")},
	})
	require.Error(t, err)
}

func assertChain(t *testing.T, rows []models.BalanceTransaction) {
	t.Helper()
	for i, row := range rows {
		assert.True(t, row.BalanceAfter.Equal(row.BalanceBefore.Add(row.Amount)), "row %d arithmetic", i)
		if i > 0 {
			assert.True(t, row.BalanceBefore.Equal(rows[i-1].BalanceAfter), "row %d breaks the chain", i)
		}
	}
}
