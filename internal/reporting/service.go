package reporting

import (
	"context"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/fleetline/fleetline/internal/ledger"
	"github.com/fleetline/fleetline/internal/money"
	"github.com/fleetline/fleetline/internal/pnl"
)

// LedgerReader provides the open charges aging is computed over.
type LedgerReader interface {
	AllOpenCharges(ctx context.Context) ([]ledger.Entry, error)
}

// PnLReader provides posted entries for P&L reports.
type PnLReader interface {
	EntriesForVehicle(ctx context.Context, vehicleID int64, from, to time.Time) ([]pnl.Entry, error)
	EntriesInRange(ctx context.Context, from, to time.Time) ([]pnl.Entry, error)
}

// Service computes reports, deduplicating concurrent builds of the same
// report with singleflight.
type Service struct {
	ledger LedgerReader
	pnl    PnLReader
	cache  *Cache
	group  singleflight.Group
}

// NewService wires the readers with a cache helper. cache may be nil.
func NewService(ledgerReader LedgerReader, pnlReader PnLReader, cache *Cache) *Service {
	return &Service{ledger: ledgerReader, pnl: pnlReader, cache: cache}
}

// Buckets splits an outstanding amount by days overdue.
type Buckets struct {
	Days0to30  money.Amount `json:"days_0_30"`
	Days31to60 money.Amount `json:"days_31_60"`
	Days61to90 money.Amount `json:"days_61_90"`
	Over90     money.Amount `json:"over_90"`
	Total      money.Amount `json:"total"`
}

func (b *Buckets) add(age int, amount money.Amount) {
	switch {
	case age <= 30:
		b.Days0to30 = b.Days0to30.Add(amount)
	case age <= 60:
		b.Days31to60 = b.Days31to60.Add(amount)
	case age <= 90:
		b.Days61to90 = b.Days61to90.Add(amount)
	default:
		b.Over90 = b.Over90.Add(amount)
	}
	b.Total = b.Total.Add(amount)
}

// CustomerAging is one customer's outstanding balance by age.
type CustomerAging struct {
	CustomerID int64 `json:"customer_id"`
	Buckets
}

// AgingReport buckets every open charge remainder by days overdue.
type AgingReport struct {
	AsOf      time.Time       `json:"as_of"`
	Customers []CustomerAging `json:"customers"`
	Totals    Buckets         `json:"totals"`
}

// ageDays is whole days between due date and asOf. Charges not yet due
// sit in the first bucket.
func ageDays(asOf, due time.Time) int {
	days := int(asOf.Sub(due).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// BuildAging is the pure aging computation over open charges.
func BuildAging(asOf time.Time, charges []ledger.Entry) AgingReport {
	byCustomer := make(map[int64]*CustomerAging)
	report := AgingReport{AsOf: asOf}
	for _, charge := range charges {
		if charge.CustomerID == nil || !charge.Remaining.IsPositive() {
			continue
		}
		row, ok := byCustomer[*charge.CustomerID]
		if !ok {
			row = &CustomerAging{CustomerID: *charge.CustomerID}
			byCustomer[*charge.CustomerID] = row
		}
		age := ageDays(asOf, charge.DueDate)
		row.add(age, charge.Remaining)
		report.Totals.add(age, charge.Remaining)
	}
	for _, row := range byCustomer {
		report.Customers = append(report.Customers, *row)
	}
	sort.Slice(report.Customers, func(i, j int) bool {
		return report.Customers[i].CustomerID < report.Customers[j].CustomerID
	})
	return report
}

// Aging returns the aging report as of the given day, cached.
func (s *Service) Aging(ctx context.Context, asOf time.Time) (AgingReport, error) {
	if asOf.IsZero() {
		asOf = time.Now().UTC().Truncate(24 * time.Hour)
	}
	loader := func(ctx context.Context) (interface{}, error) {
		charges, err := s.ledger.AllOpenCharges(ctx)
		if err != nil {
			return nil, err
		}
		return BuildAging(asOf, charges), nil
	}

	key, err := s.cache.BuildKey(ctx, keyAging(asOf))
	if err != nil {
		return AgingReport{}, err
	}
	value, err, _ := s.group.Do(key, func() (interface{}, error) {
		var report AgingReport
		if err := s.cache.FetchJSON(ctx, key, &report, loader); err != nil {
			return AgingReport{}, err
		}
		return report, nil
	})
	if err != nil {
		return AgingReport{}, err
	}
	return value.(AgingReport), nil
}

// CategoryTotal is one P&L line in a report.
type CategoryTotal struct {
	Side     pnl.Side     `json:"side"`
	Category pnl.Category `json:"category"`
	Amount   money.Amount `json:"amount"`
}

// PLReport summarises posted entries in a window, optionally scoped to a
// single vehicle.
type PLReport struct {
	VehicleID  int64           `json:"vehicle_id,omitempty"`
	From       time.Time       `json:"from,omitempty"`
	To         time.Time       `json:"to,omitempty"`
	Entries    []pnl.Entry     `json:"entries"`
	Summary    pnl.Summary     `json:"summary"`
	ByCategory []CategoryTotal `json:"by_category"`
}

// BuildPL is the pure P&L aggregation.
func BuildPL(vehicleID int64, from, to time.Time, entries []pnl.Entry) PLReport {
	report := PLReport{VehicleID: vehicleID, From: from, To: to, Entries: entries, Summary: pnl.Summarise(entries)}
	type bucket struct {
		side     pnl.Side
		category pnl.Category
	}
	totals := make(map[bucket]money.Amount)
	var order []bucket
	for _, e := range entries {
		key := bucket{e.Side, e.Category}
		if _, ok := totals[key]; !ok {
			order = append(order, key)
		}
		totals[key] = totals[key].Add(e.Amount)
	}
	sort.Slice(order, func(i, j int) bool {
		if order[i].side != order[j].side {
			return order[i].side < order[j].side
		}
		return order[i].category < order[j].category
	})
	for _, key := range order {
		report.ByCategory = append(report.ByCategory, CategoryTotal{
			Side: key.side, Category: key.category, Amount: totals[key],
		})
	}
	return report
}

// ProfitAndLoss reports entries in a window. vehicleID 0 means fleet-wide.
func (s *Service) ProfitAndLoss(ctx context.Context, vehicleID int64, from, to time.Time) (PLReport, error) {
	loader := func(ctx context.Context) (interface{}, error) {
		var entries []pnl.Entry
		var err error
		if vehicleID != 0 {
			entries, err = s.pnl.EntriesForVehicle(ctx, vehicleID, from, to)
		} else {
			entries, err = s.pnl.EntriesInRange(ctx, from, to)
		}
		if err != nil {
			return nil, err
		}
		return BuildPL(vehicleID, from, to, entries), nil
	}

	key, err := s.cache.BuildKey(ctx, keyPL(vehicleID, dateToken(from), dateToken(to)))
	if err != nil {
		return PLReport{}, err
	}
	value, err, _ := s.group.Do(key, func() (interface{}, error) {
		var report PLReport
		if err := s.cache.FetchJSON(ctx, key, &report, loader); err != nil {
			return PLReport{}, err
		}
		return report, nil
	})
	if err != nil {
		return PLReport{}, err
	}
	return value.(PLReport), nil
}

// Dashboard is the combined view the UI loads in one request.
type Dashboard struct {
	Aging AgingReport `json:"aging"`
	PL    PLReport    `json:"pl"`
}

// Dashboard fans out over both reports.
func (s *Service) Dashboard(ctx context.Context, asOf time.Time, from, to time.Time) (Dashboard, error) {
	var dash Dashboard
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		aging, err := s.Aging(ctx, asOf)
		if err != nil {
			return err
		}
		dash.Aging = aging
		return nil
	})
	g.Go(func() error {
		pl, err := s.ProfitAndLoss(ctx, 0, from, to)
		if err != nil {
			return err
		}
		dash.PL = pl
		return nil
	})
	if err := g.Wait(); err != nil {
		return Dashboard{}, err
	}
	return dash, nil
}

// Invalidate retires every cached report.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.cache.Bump(ctx)
}

func dateToken(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02")
}
