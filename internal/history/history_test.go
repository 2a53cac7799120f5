package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tegarrizky11/sepukopi-pos/internal/domain"
	"github.com/tegarrizky11/sepukopi-pos/internal/store/memory"
)

func record(id string, at time.Time, method string, total int64) domain.SaleRecord {
	return domain.SaleRecord{
		ID:            id,
		TotalAmount:   total,
		PaymentMethod: method,
		CashierName:   "kasir",
		CreatedAt:     at.Format(time.RFC3339),
	}
}

func sampleLog() []domain.SaleRecord {
	day := func(d, hour int) time.Time {
		return time.Date(2026, time.August, d, hour, 30, 0, 0, time.Local)
	}
	return []domain.SaleRecord{
		record("s1", day(25, 9), domain.PaymentCash, 25000),
		record("s2", day(25, 14), domain.PaymentQRIS, 18000),
		record("s3", day(26, 10), domain.PaymentCash, 40000),
		record("s4", day(27, 11), domain.PaymentQRIS, 22000),
		record("s5", day(28, 20), domain.PaymentCash, 15000),
	}
}

func TestFilteredDateWindowInclusive(t *testing.T) {
	filter := domain.HistoryFilter{StartDate: "2026-08-25", EndDate: "2026-08-26"}
	matched := Filtered(sampleLog(), filter)
	if len(matched) != 3 {
		t.Fatalf("expected 3 records in window, got %d", len(matched))
	}
	for _, r := range matched {
		if r.ID == "s4" || r.ID == "s5" {
			t.Fatalf("record %s outside window leaked through", r.ID)
		}
	}
}

func TestFilteredEndBoundCoversWholeDay(t *testing.T) {
	lateNight := record("late", time.Date(2026, time.August, 26, 23, 59, 59, 0, time.Local), domain.PaymentCash, 5000)
	matched := Filtered([]domain.SaleRecord{lateNight}, domain.HistoryFilter{EndDate: "2026-08-26"})
	if len(matched) != 1 {
		t.Fatal("expected 23:59:59 record to be inside the end bound")
	}
}

func TestFilteredMethodCaseInsensitive(t *testing.T) {
	matched := Filtered(sampleLog(), domain.HistoryFilter{Method: "QRIS"})
	if len(matched) != 2 {
		t.Fatalf("expected 2 QRIS records, got %d", len(matched))
	}
	matched = Filtered(sampleLog(), domain.HistoryFilter{Method: "qris"})
	if len(matched) != 2 {
		t.Fatalf("expected case-insensitive match, got %d", len(matched))
	}
}

func TestFilteredDropsUnparseableTimestamps(t *testing.T) {
	records := append(sampleLog(), domain.SaleRecord{ID: "bad", TotalAmount: 99999, PaymentMethod: domain.PaymentCash, CreatedAt: "yesterday-ish"})
	matched := Filtered(records, domain.HistoryFilter{})
	for _, r := range matched {
		if r.ID == "bad" {
			t.Fatal("record with unparseable timestamp must be rejected")
		}
	}
	if len(matched) != 5 {
		t.Fatalf("expected 5 parseable records, got %d", len(matched))
	}
}

func TestSummarizeGrandTotalIdentity(t *testing.T) {
	records := sampleLog()

	// Unfiltered all-method grand total equals the sum over the whole log.
	all := Summarize(Filtered(records, domain.HistoryFilter{Method: domain.MethodFilterAll}))
	var sum int64
	for _, r := range records {
		sum += r.TotalAmount
	}
	if all.GrandTotal != sum {
		t.Fatalf("expected grand total %d, got %d", sum, all.GrandTotal)
	}
	if all.GrandTotal != all.CashTotal+all.QRISTotal {
		t.Fatalf("grand %d != cash %d + qris %d", all.GrandTotal, all.CashTotal, all.QRISTotal)
	}

	// The identity holds under every window/method combination.
	filters := []domain.HistoryFilter{
		{StartDate: "2026-08-25", EndDate: "2026-08-26"},
		{StartDate: "2026-08-26"},
		{EndDate: "2026-08-27", Method: "cash"},
		{Method: "qris"},
	}
	for _, filter := range filters {
		summary := Summarize(Filtered(records, filter))
		if summary.GrandTotal != summary.CashTotal+summary.QRISTotal {
			t.Fatalf("filter %+v: grand %d != cash %d + qris %d", filter, summary.GrandTotal, summary.CashTotal, summary.QRISTotal)
		}
	}
}

func TestTodaySummaryRollsOverAtMidnight(t *testing.T) {
	beforeMidnight := time.Date(2026, time.August, 26, 23, 59, 0, 0, time.Local)
	records := []domain.SaleRecord{record("late", beforeMidnight, domain.PaymentCash, 12000)}

	first := TodaySummary(records, time.Date(2026, time.August, 26, 23, 59, 30, 0, time.Local))
	if first.CashTotal != 12000 {
		t.Fatalf("expected 23:59 record inside today before midnight, got %+v", first)
	}

	second := TodaySummary(records, time.Date(2026, time.August, 27, 0, 0, 30, 0, time.Local))
	if second.CashTotal != 0 || second.GrandTotal != 0 {
		t.Fatalf("expected record to exit today after midnight, got %+v", second)
	}
}

func TestServiceActivateKeepsStaleLogOnFailure(t *testing.T) {
	repo := memory.NewEmpty()
	svc := NewService(repo)

	draftAt := time.Date(2026, time.August, 26, 10, 0, 0, 0, time.Local)
	repo.SetClock(func() time.Time { return draftAt })
	if _, err := repo.CreateProduct(context.Background(), domain.Product{ID: "p1", Name: "Americano", SalePrice: 15000, CostPrice: 5000, StockQuantity: 10}); err != nil {
		t.Fatalf("seed product: %v", err)
	}
	if _, err := repo.SubmitSale(context.Background(), domain.SaleDraft{
		Items:         []domain.SaleItem{{ProductID: "p1", Name: "Americano", Qty: 1, SalePrice: 15000, CostPrice: 5000}},
		PaymentMethod: domain.PaymentCash,
		CashierName:   "kasir",
	}); err != nil {
		t.Fatalf("submit sale: %v", err)
	}

	if err := svc.Activate(context.Background()); err != nil {
		t.Fatalf("activate: %v", err)
	}
	records, _ := svc.Query(domain.HistoryFilter{})
	if len(records) != 1 {
		t.Fatalf("expected 1 retained record, got %d", len(records))
	}
}

func TestDailyReportGuardsEmptyDay(t *testing.T) {
	svc := NewService(memory.NewEmpty())
	if _, err := svc.DailyReport(time.Now()); !errors.Is(err, ErrNoSalesToday) {
		t.Fatalf("expected ErrNoSalesToday, got %v", err)
	}
}
