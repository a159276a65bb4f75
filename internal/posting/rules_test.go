package posting

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fleetline/fleetline/internal/ledger"
	"github.com/fleetline/fleetline/internal/money"
	"github.com/fleetline/fleetline/internal/pnl"
)

func eventDate() time.Time {
	return time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
}

func TestPlanExpenseServiceCategory(t *testing.T) {
	muts, err := Plan(ExpenseRecorded{
		ExpenseID: 42,
		VehicleID: 7,
		Category:  "Service",
		Amount:    money.MustParse("300"),
		Date:      eventDate(),
	}, Snapshot{})
	require.NoError(t, err)
	require.Len(t, muts, 1)

	post, ok := muts[0].(PostPnL)
	require.True(t, ok)
	require.Equal(t, "vexp:42", post.SourceRef)
	require.Equal(t, pnl.SideCost, post.Input.Side)
	require.Equal(t, pnl.CategoryService, post.Input.Category)
	require.Equal(t, "300.00", post.Input.Amount.String())
}

func TestPlanExpenseNonServiceCategoriesLandInExpenses(t *testing.T) {
	for _, category := range []string{"Repair", "Insurance", "Tyres", "Valeting", "Recovery"} {
		muts, err := Plan(ExpenseRecorded{
			ExpenseID: 50,
			VehicleID: 7,
			Category:  category,
			Amount:    money.MustParse("750"),
			Date:      eventDate(),
		}, Snapshot{})
		require.NoError(t, err)
		require.Len(t, muts, 1)
		post := muts[0].(PostPnL)
		require.Equal(t, pnl.CategoryExpenses, post.Input.Category, "category %s", category)
		require.Equal(t, "vexp:50", post.SourceRef)
	}
}

func TestPlanFineChargedCreatesLedgerChargeOnly(t *testing.T) {
	muts, err := Plan(FineCharged{
		FineID:     9,
		CustomerID: 3,
		Amount:     money.MustParse("120"),
		DueDate:    eventDate(),
	}, Snapshot{})
	require.NoError(t, err)
	require.Len(t, muts, 1)

	charge, ok := muts[0].(CreateCharge)
	require.True(t, ok)
	require.Equal(t, ledger.EntryCharge, charge.Input.Type)
	require.Equal(t, ledger.CategoryFine, charge.Input.Category)
	require.Equal(t, int64(3), *charge.Input.CustomerID)
	require.NotNil(t, charge.Input.SourceRef)
	require.Equal(t, "fine-charge:9", *charge.Input.SourceRef)
}

func TestPlanFineWaivedPostsCostFine(t *testing.T) {
	muts, err := Plan(FineWaived{
		FineID: 9,
		Amount: money.MustParse("120"),
		Date:   eventDate(),
	}, Snapshot{})
	require.NoError(t, err)
	require.Len(t, muts, 1)
	post := muts[0].(PostPnL)
	require.Equal(t, "fine-waive:9", post.SourceRef)
	require.Equal(t, pnl.SideCost, post.Input.Side)
	require.Equal(t, pnl.CategoryFine, post.Input.Category)
}

func TestPlanFinanceVehicleCreatedPostsUpfront(t *testing.T) {
	muts, err := Plan(FinanceVehicleCreated{
		VehicleID:     5,
		ContractTotal: money.MustParse("16800"),
		Date:          eventDate(),
	}, Snapshot{})
	require.NoError(t, err)
	require.Len(t, muts, 1)
	post := muts[0].(PostPnL)
	require.Equal(t, "FIN-UPFRONT:5", post.SourceRef)
	require.Equal(t, pnl.CategoryAcquisition, post.Input.Category)
	require.Equal(t, "16800.00", post.Input.Amount.String())
}

func TestPlanFinancePaymentGuardedByUpfrontEntry(t *testing.T) {
	event := FinancePaymentReceived{
		VehicleID: 5,
		Component: ComponentMonthly,
		Amount:    money.MustParse("300"),
		Date:      eventDate(),
	}

	// Contract recognised upfront: ledger cash-flow row only.
	muts, err := Plan(event, Snapshot{HasUpfrontEntry: true})
	require.NoError(t, err)
	require.Len(t, muts, 1)
	cost, ok := muts[0].(RecordCost)
	require.True(t, ok)
	require.Equal(t, ledger.EntryCost, cost.Input.Type)
	require.Equal(t, ledger.CategoryFinance, cost.Input.Category)
	require.Equal(t, "FINPAY:5:monthly:2026-03-10:300.00", *cost.Input.SourceRef)

	// No upfront recognition: the installment is also a P&L cost.
	muts, err = Plan(event, Snapshot{HasUpfrontEntry: false})
	require.NoError(t, err)
	require.Len(t, muts, 2)
	post := muts[1].(PostPnL)
	require.Equal(t, pnl.CategoryFinance, post.Input.Category)
	require.Equal(t, "FINPAY:5:monthly:2026-03-10:300.00", post.SourceRef)
}

func TestPlanDisposalGainLossSign(t *testing.T) {
	event := VehicleDisposed{
		VehicleID:    3,
		DisposalDate: eventDate(),
		SaleProceeds: money.MustParse("12000"),
	}

	muts, err := Plan(event, Snapshot{BookCost: money.MustParse("10000")})
	require.NoError(t, err)
	require.Len(t, muts, 1)
	post := muts[0].(PostPnL)
	require.Equal(t, pnl.SideRevenue, post.Input.Side)
	require.Equal(t, pnl.CategoryDisposal, post.Input.Category)
	require.Equal(t, "2000.00", post.Input.Amount.String())
	require.Equal(t, "dispose:3", post.SourceRef)

	muts, err = Plan(event, Snapshot{BookCost: money.MustParse("15000")})
	require.NoError(t, err)
	require.Len(t, muts, 1)
	post = muts[0].(PostPnL)
	require.Equal(t, pnl.SideCost, post.Input.Side)
	require.Equal(t, "3000.00", post.Input.Amount.String())

	muts, err = Plan(event, Snapshot{BookCost: money.MustParse("12000")})
	require.NoError(t, err)
	require.Empty(t, muts, "equal proceeds and book cost post nothing")
}

func TestPlanPaymentReceived(t *testing.T) {
	muts, err := Plan(PaymentReceived{
		CustomerID: 11,
		Type:       "rental",
		Amount:     money.MustParse("500"),
		PaidAt:     eventDate(),
		Reference:  "bank-7711",
	}, Snapshot{})
	require.NoError(t, err)
	require.Len(t, muts, 1)
	pay := muts[0].(RecordPayment)
	require.Equal(t, ledger.PaymentRental, pay.Input.Type)
	require.Equal(t, "bank-7711", pay.Input.Reference)
}

func TestPlanRejectsInvalidEvents(t *testing.T) {
	_, err := Plan(ExpenseRecorded{VehicleID: 7, Amount: money.MustParse("10"), Date: eventDate()}, Snapshot{})
	require.Error(t, err)

	_, err = Plan(FinancePaymentReceived{
		VehicleID: 5,
		Component: "quarterly",
		Amount:    money.MustParse("300"),
		Date:      eventDate(),
	}, Snapshot{})
	require.Error(t, err)

	_, err = Plan(FineCharged{FineID: 1, CustomerID: 2, Amount: money.MustParse("-5"), DueDate: eventDate()}, Snapshot{})
	require.Error(t, err)
}

func TestContractTotal(t *testing.T) {
	fin := VehicleFinancials{
		Financed:       true,
		InitialPayment: money.MustParse("1000"),
		MonthlyPayment: money.MustParse("300"),
		TermMonths:     36,
		Balloon:        money.MustParse("5000"),
	}
	require.Equal(t, "16800.00", fin.ContractTotal().String())
	require.Equal(t, "16800.00", AcquisitionBookCost(fin, true).String())

	fin.PurchasePrice = money.MustParse("9000")
	require.Equal(t, "9000.00", AcquisitionBookCost(fin, false).String())
}
