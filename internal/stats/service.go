package stats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderportal/internal/ledger"
	"github.com/angelmondragon/orderportal/pkg/config"
	"github.com/angelmondragon/orderportal/pkg/db"
	"github.com/angelmondragon/orderportal/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderportal/pkg/errors"
	"github.com/angelmondragon/orderportal/pkg/types"
)

const (
	dayLayout   = "2006-01-02"
	monthLayout = "2006-01"

	trendDays         = 7
	breakdownDays     = 30
	overviewTopLimit  = 5
	reportTopLimit    = 20
	spendHistoryMonth = 6
	favoriteLimit     = 5

	// MaxRangeDays bounds report windows so a single request cannot scan the whole order table.
	MaxRangeDays = 366
)

// Service exposes read-only reporting over orders and the ledger. Days and months are
// bucketed in the ordering timezone; revenue never includes cancelled orders.
type Service interface {
	Overview(ctx context.Context, actor types.Actor, now time.Time) (*Overview, error)
	Sales(ctx context.Context, actor types.Actor, rng Range) (*SalesReport, error)
	Products(ctx context.Context, actor types.Actor, rng Range) (*ProductReport, error)
	Users(ctx context.Context, actor types.Actor, rng Range) (*UserReport, error)
	UserOverview(ctx context.Context, actor types.Actor, userID uuid.UUID, now time.Time) (*UserOverview, error)
}

type ServiceParams struct {
	Repository Repository
	Ledger     ledger.Service
	Config     config.OrdersConfig
}

type service struct {
	repo   Repository
	ledger ledger.Service
	loc    *time.Location
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("stats repository required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	return &service{repo: params.Repository, ledger: params.Ledger, loc: params.Config.Location()}, nil
}

func (s *service) Overview(ctx context.Context, actor types.Actor, now time.Time) (*Overview, error) {
	if !actor.IsAdmin {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	counts, err := s.repo.Counts(ctx)
	if err != nil {
		return nil, db.MapError(err, "count dashboard totals")
	}

	today := startOfDay(now.In(s.loc))
	tomorrow := today.AddDate(0, 0, 1)
	monthStart := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, s.loc)
	trendStart := today.AddDate(0, 0, -(trendDays - 1))
	from := monthStart
	if trendStart.Before(from) {
		from = trendStart
	}

	points, err := s.repo.OrderPoints(ctx, orderFilter{Start: from, End: tomorrow})
	if err != nil {
		return nil, db.MapError(err, "load recent orders")
	}

	overview := &Overview{
		ActiveUsers:            counts.ActiveUsers,
		ActiveProducts:         counts.ActiveProducts,
		PendingOrders:          counts.PendingOrders,
		PendingBalanceRequests: counts.PendingBalanceRequests,
		TodayRevenue:           decimal.Zero,
		MonthlyRevenue:         decimal.Zero,
	}
	for _, point := range points {
		if !point.CreatedAt.Before(today) {
			overview.TodayOrders++
		}
		if point.Status == enums.OrderStatusCancelled {
			continue
		}
		if !point.CreatedAt.Before(today) {
			overview.TodayRevenue = overview.TodayRevenue.Add(point.TotalAmount)
		}
		if !point.CreatedAt.Before(monthStart) {
			overview.MonthlyRevenue = overview.MonthlyRevenue.Add(point.TotalAmount)
		}
	}
	overview.TodayRevenue = overview.TodayRevenue.Round(2)
	overview.MonthlyRevenue = overview.MonthlyRevenue.Round(2)
	overview.Trend = dailySeries(points, trendStart, tomorrow, s.loc)

	recent := orderFilter{Start: now.AddDate(0, 0, -breakdownDays), End: tomorrow}
	overview.StatusBreakdown, err = s.repo.StatusCounts(ctx, recent)
	if err != nil {
		return nil, db.MapError(err, "count orders by status")
	}
	overview.TopProducts, err = s.topProducts(ctx, recent, overviewTopLimit)
	if err != nil {
		return nil, err
	}
	return overview, nil
}

func (s *service) Sales(ctx context.Context, actor types.Actor, rng Range) (*SalesReport, error) {
	if err := requireAdminRange(actor, rng); err != nil {
		return nil, err
	}
	filter := orderFilter{Start: rng.Start, End: rng.End}
	points, err := s.repo.OrderPoints(ctx, filter)
	if err != nil {
		return nil, db.MapError(err, "load orders")
	}

	report := &SalesReport{Range: rng, Revenue: decimal.Zero, AverageOrder: decimal.Zero}
	methods := map[enums.PaymentMethod]*PaymentMethodTotal{}
	var methodOrder []enums.PaymentMethod
	for _, point := range points {
		report.Orders++
		if point.Status == enums.OrderStatusCancelled {
			report.CancelledOrders++
			continue
		}
		report.Revenue = report.Revenue.Add(point.TotalAmount)
		total, ok := methods[point.PaymentMethod]
		if !ok {
			total = &PaymentMethodTotal{PaymentMethod: point.PaymentMethod, Revenue: decimal.Zero}
			methods[point.PaymentMethod] = total
			methodOrder = append(methodOrder, point.PaymentMethod)
		}
		total.Orders++
		total.Revenue = total.Revenue.Add(point.TotalAmount)
	}
	report.Revenue = report.Revenue.Round(2)
	if settled := report.Orders - report.CancelledOrders; settled > 0 {
		report.AverageOrder = report.Revenue.Div(decimal.NewFromInt(settled)).Round(2)
	}
	report.ByPaymentMethod = make([]PaymentMethodTotal, 0, len(methodOrder))
	for _, method := range methodOrder {
		total := methods[method]
		total.Revenue = total.Revenue.Round(2)
		report.ByPaymentMethod = append(report.ByPaymentMethod, *total)
	}
	report.Daily = dailySeries(points, rng.Start, rng.End, s.loc)

	report.ByCategory, err = s.repo.CategoryTotals(ctx, filter)
	if err != nil {
		return nil, db.MapError(err, "total sales by category")
	}
	for i := range report.ByCategory {
		report.ByCategory[i].Revenue = report.ByCategory[i].Revenue.Round(2)
	}
	return report, nil
}

func (s *service) Products(ctx context.Context, actor types.Actor, rng Range) (*ProductReport, error) {
	if err := requireAdminRange(actor, rng); err != nil {
		return nil, err
	}
	top, err := s.topProducts(ctx, orderFilter{Start: rng.Start, End: rng.End}, reportTopLimit)
	if err != nil {
		return nil, err
	}
	return &ProductReport{Range: rng, TopProducts: top}, nil
}

func (s *service) Users(ctx context.Context, actor types.Actor, rng Range) (*UserReport, error) {
	if err := requireAdminRange(actor, rng); err != nil {
		return nil, err
	}
	spenders, err := s.repo.TopSpenders(ctx, orderFilter{Start: rng.Start, End: rng.End}, reportTopLimit)
	if err != nil {
		return nil, db.MapError(err, "rank spenders")
	}
	for i := range spenders {
		spenders[i].Spent = spenders[i].Spent.Round(2)
	}
	if spenders == nil {
		spenders = []SpenderTotal{}
	}

	bands, err := s.repo.BalanceBands(ctx)
	if err != nil {
		return nil, db.MapError(err, "group balances")
	}
	report := &UserReport{Range: rng, TopSpenders: spenders, BalanceOutstanding: decimal.Zero}
	report.BalanceBands = orderBands(bands)
	for _, band := range report.BalanceBands {
		report.BalanceOutstanding = report.BalanceOutstanding.Add(band.Total)
	}
	return report, nil
}

func (s *service) UserOverview(ctx context.Context, actor types.Actor, userID uuid.UUID, now time.Time) (*UserOverview, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if !actor.CanAccessUser(userID) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
	}
	summary, err := s.ledger.Summary(ctx, userID)
	if err != nil {
		return nil, err
	}

	points, err := s.repo.OrderPoints(ctx, orderFilter{UserID: &userID})
	if err != nil {
		return nil, db.MapError(err, "load user orders")
	}

	local := now.In(s.loc)
	monthStart := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, s.loc)
	historyStart := monthStart.AddDate(0, -(spendHistoryMonth - 1), 0)

	overview := &UserOverview{
		UserID:       userID,
		Ledger:       summary,
		TotalSpent:   decimal.Zero,
		MonthlySpend: make([]MonthPoint, 0, spendHistoryMonth),
	}
	months := map[string]int{}
	for month := historyStart; !month.After(monthStart); month = month.AddDate(0, 1, 0) {
		key := month.Format(monthLayout)
		months[key] = len(overview.MonthlySpend)
		overview.MonthlySpend = append(overview.MonthlySpend, MonthPoint{Month: key, Spent: decimal.Zero})
	}
	for _, point := range points {
		overview.TotalOrders++
		if !point.CreatedAt.Before(monthStart) {
			overview.MonthlyOrders++
		}
		i, inHistory := months[point.CreatedAt.In(s.loc).Format(monthLayout)]
		if inHistory {
			overview.MonthlySpend[i].Orders++
		}
		if point.Status == enums.OrderStatusCancelled {
			continue
		}
		overview.TotalSpent = overview.TotalSpent.Add(point.TotalAmount)
		if inHistory {
			overview.MonthlySpend[i].Spent = overview.MonthlySpend[i].Spent.Add(point.TotalAmount)
		}
	}
	overview.TotalSpent = overview.TotalSpent.Round(2)
	for i := range overview.MonthlySpend {
		overview.MonthlySpend[i].Spent = overview.MonthlySpend[i].Spent.Round(2)
	}

	last, err := s.repo.LastOrder(ctx, userID)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
	case err != nil:
		return nil, db.MapError(err, "load last order")
	default:
		overview.LastOrder = &LastOrder{
			ID:          last.ID,
			OrderNumber: last.OrderNumber,
			Status:      last.Status,
			TotalAmount: last.TotalAmount.Round(2),
			CreatedAt:   last.CreatedAt,
		}
	}

	overview.FavoriteProducts, err = s.topProducts(ctx, orderFilter{UserID: &userID}, favoriteLimit)
	if err != nil {
		return nil, err
	}
	return overview, nil
}

func (s *service) topProducts(ctx context.Context, filter orderFilter, limit int) ([]ProductTotal, error) {
	rows, err := s.repo.TopProducts(ctx, filter, limit)
	if err != nil {
		return nil, db.MapError(err, "rank products")
	}
	if rows == nil {
		return []ProductTotal{}, nil
	}
	for i := range rows {
		rows[i].Revenue = rows[i].Revenue.Round(2)
	}
	return rows, nil
}

func requireAdminRange(actor types.Actor, rng Range) error {
	if !actor.IsAdmin {
		return pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	return ValidateRange(rng)
}

// ValidateRange rejects empty, inverted and oversized windows.
func ValidateRange(rng Range) error {
	if rng.Start.IsZero() || rng.End.IsZero() {
		return pkgerrors.New(pkgerrors.CodeValidation, "start and end are required")
	}
	if !rng.End.After(rng.Start) {
		return pkgerrors.New(pkgerrors.CodeValidation, "end must be after start")
	}
	if rng.End.Sub(rng.Start) > MaxRangeDays*24*time.Hour {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "range must not exceed %d days", MaxRangeDays)
	}
	return nil
}

// dailySeries buckets orders into every local day touching [start, end), zero-filled.
func dailySeries(points []orderPoint, start, end time.Time, loc *time.Location) []DayPoint {
	series := make([]DayPoint, 0)
	index := map[string]int{}
	for day := startOfDay(start.In(loc)); day.Before(end); day = day.AddDate(0, 0, 1) {
		key := day.Format(dayLayout)
		index[key] = len(series)
		series = append(series, DayPoint{Date: key, Revenue: decimal.Zero})
	}
	for _, point := range points {
		i, ok := index[point.CreatedAt.In(loc).Format(dayLayout)]
		if !ok {
			continue
		}
		series[i].Orders++
		if point.Status != enums.OrderStatusCancelled {
			series[i].Revenue = series[i].Revenue.Add(point.TotalAmount)
		}
	}
	for i := range series {
		series[i].Revenue = series[i].Revenue.Round(2)
	}
	return series
}

// orderBands returns every band in ascending balance order, including empty ones.
func orderBands(rows []BalanceBand) []BalanceBand {
	byName := make(map[string]BalanceBand, len(rows))
	for _, row := range rows {
		byName[row.Band] = row
	}
	out := make([]BalanceBand, 0, len(bandOrder))
	for _, name := range bandOrder {
		band, ok := byName[name]
		if !ok {
			band = BalanceBand{Band: name, Total: decimal.Zero}
		}
		band.Total = band.Total.Round(2)
		out = append(out, band)
	}
	return out
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
