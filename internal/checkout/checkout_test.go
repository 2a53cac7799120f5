package checkout

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/tegarrizky11/sepukopi-pos/internal/cart"
	"github.com/tegarrizky11/sepukopi-pos/internal/catalog"
	"github.com/tegarrizky11/sepukopi-pos/internal/domain"
	"github.com/tegarrizky11/sepukopi-pos/internal/session"
	"github.com/tegarrizky11/sepukopi-pos/internal/store/memory"
)

type fixture struct {
	repo    *memory.Store
	cart    *cart.Engine
	view    *catalog.View
	machine *Machine
}

func newFixture(t *testing.T, products ...domain.Product) *fixture {
	t.Helper()

	repo := memory.NewEmpty()
	for _, p := range products {
		if _, err := repo.CreateProduct(context.Background(), p); err != nil {
			t.Fatalf("seed product %s: %v", p.ID, err)
		}
	}

	view := catalog.NewView(repo, nil, time.Minute)
	if err := view.Refresh(context.Background()); err != nil {
		t.Fatalf("catalog refresh: %v", err)
	}

	sessions := session.NewManager()
	sessions.Establish("tok", domain.Actor{Username: "kasir", Role: domain.RoleCashier})

	engine := cart.NewEngine()
	machine := NewMachine(engine, view, repo, sessions, "Sepukopi", 0)
	return &fixture{repo: repo, cart: engine, view: view, machine: machine}
}

func productA(stock int) domain.Product {
	return domain.Product{ID: "prd-a", Name: "Americano", SalePrice: 10000, CostPrice: 4000, StockQuantity: stock}
}

func (f *fixture) addFromCatalog(t *testing.T, id string) {
	t.Helper()
	p, ok := f.view.Get(id)
	if !ok {
		t.Fatalf("product %s not in catalog", id)
	}
	if err := f.cart.Add(p); err != nil {
		t.Fatalf("add %s: %v", id, err)
	}
}

func TestPayCashEmptyCart(t *testing.T) {
	f := newFixture(t, productA(5))
	if _, err := f.machine.PayCash(context.Background(), 50000); !errors.Is(err, ErrEmptyCart) {
		t.Fatalf("expected ErrEmptyCart, got %v", err)
	}
	if got := f.machine.State(); got != StateIdle {
		t.Fatalf("expected Idle, got %s", got)
	}
}

func TestPayCashInsufficientPaymentPreservesCart(t *testing.T) {
	f := newFixture(t, domain.Product{ID: "prd-b", Name: "Matcha Latte", SalePrice: 25000, CostPrice: 9500, StockQuantity: 5})
	f.addFromCatalog(t, "prd-b")

	_, err := f.machine.PayCash(context.Background(), 20000)
	if !errors.Is(err, ErrInsufficientPayment) {
		t.Fatalf("expected ErrInsufficientPayment, got %v", err)
	}

	lines := f.cart.Lines()
	if len(lines) != 1 || lines[0].Qty != 1 {
		t.Fatalf("cart must be untouched after rejection, got %+v", lines)
	}
	if got := f.machine.State(); got != StateAwaitingPayment {
		t.Fatalf("expected AwaitingPayment after rejection, got %s", got)
	}

	// No sale reached the store.
	sales, _ := f.repo.ListSales(context.Background())
	if len(sales) != 0 {
		t.Fatalf("local validation must not hit the network, found %d sales", len(sales))
	}
}

func TestPayCashExactChange(t *testing.T) {
	for _, tc := range []struct {
		tendered int64
		change   int64
	}{
		{30000, 5000},
		{25000, 0},
	} {
		f := newFixture(t, domain.Product{ID: "prd-b", Name: "Matcha Latte", SalePrice: 25000, CostPrice: 9500, StockQuantity: 5})
		f.addFromCatalog(t, "prd-b")

		result, err := f.machine.PayCash(context.Background(), tc.tendered)
		if err != nil {
			t.Fatalf("tendered %d: %v", tc.tendered, err)
		}
		if result.Change != tc.change {
			t.Fatalf("tendered %d: expected change %d, got %d", tc.tendered, tc.change, result.Change)
		}
		if result.AmountPaid != tc.tendered {
			t.Fatalf("expected amount paid %d, got %d", tc.tendered, result.AmountPaid)
		}
		if result.Sale.TotalAmount != 25000 {
			t.Fatalf("expected sale total 25000, got %d", result.Sale.TotalAmount)
		}
	}
}

func TestPayCashClearsCartAndBuildsReceipt(t *testing.T) {
	f := newFixture(t, productA(5))
	f.addFromCatalog(t, "prd-a")

	result, err := f.machine.PayCash(context.Background(), 10000)
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if !f.cart.Empty() {
		t.Fatal("cart must clear on success")
	}
	if got := f.machine.State(); got != StateCompleted {
		t.Fatalf("expected Completed, got %s", got)
	}
	if result.Sale.CashierName != "kasir" {
		t.Fatalf("expected cashier stamp, got %q", result.Sale.CashierName)
	}
	if !strings.Contains(result.Receipt.PreviewText, "Americano x1") {
		t.Fatalf("receipt missing line item:\n%s", result.Receipt.PreviewText)
	}
}

func TestQRISChangeAlwaysZero(t *testing.T) {
	f := newFixture(t, productA(5))
	f.addFromCatalog(t, "prd-a")
	f.addFromCatalog(t, "prd-a")

	total, err := f.machine.StartQRIS(context.Background())
	if err != nil {
		t.Fatalf("start qris: %v", err)
	}
	if total != 20000 {
		t.Fatalf("expected total 20000, got %d", total)
	}
	if got := f.machine.State(); got != StatePresentingCode {
		t.Fatalf("expected PresentingCode, got %s", got)
	}

	result, err := f.machine.ConfirmQRIS(context.Background())
	if err != nil {
		t.Fatalf("confirm qris: %v", err)
	}
	if result.Change != 0 {
		t.Fatalf("qris change must be 0, got %d", result.Change)
	}
	if result.Sale.PaymentMethod != domain.PaymentQRIS {
		t.Fatalf("expected QRIS method, got %q", result.Sale.PaymentMethod)
	}
}

func TestConfirmQRISWithoutStart(t *testing.T) {
	f := newFixture(t, productA(5))
	f.addFromCatalog(t, "prd-a")

	if _, err := f.machine.ConfirmQRIS(context.Background()); !errors.Is(err, ErrNoActiveQRIS) {
		t.Fatalf("expected ErrNoActiveQRIS, got %v", err)
	}
}

func TestCancelQRISKeepsCart(t *testing.T) {
	f := newFixture(t, productA(5))
	f.addFromCatalog(t, "prd-a")

	if _, err := f.machine.StartQRIS(context.Background()); err != nil {
		t.Fatalf("start qris: %v", err)
	}
	if err := f.machine.CancelQRIS(); err != nil {
		t.Fatalf("cancel qris: %v", err)
	}
	if f.cart.Empty() {
		t.Fatal("cancel must not clear the cart")
	}
	if got := f.machine.State(); got != StateAwaitingPayment {
		t.Fatalf("expected AwaitingPayment after cancel, got %s", got)
	}
}

func TestSubmissionFailurePreservesCart(t *testing.T) {
	f := newFixture(t, productA(1))
	f.addFromCatalog(t, "prd-a")

	// Another terminal takes the last unit before this submission lands.
	drain := domain.SaleDraft{
		Items:         []domain.SaleItem{{ProductID: "prd-a", Name: "Americano", Qty: 1, SalePrice: 10000, CostPrice: 4000}},
		PaymentMethod: domain.PaymentCash,
		CashierName:   "other",
	}
	if _, err := f.repo.SubmitSale(context.Background(), drain); err != nil {
		t.Fatalf("drain stock: %v", err)
	}

	_, err := f.machine.PayCash(context.Background(), 10000)
	if !errors.Is(err, ErrSubmissionFailed) {
		t.Fatalf("expected ErrSubmissionFailed, got %v", err)
	}
	if f.cart.Empty() {
		t.Fatal("cart must survive a rejected submission")
	}
	if got := f.machine.State(); got != StateAwaitingPayment {
		t.Fatalf("expected AwaitingPayment after rejection, got %s", got)
	}
}

func TestEndToEndStockTwoScenario(t *testing.T) {
	f := newFixture(t, productA(2))

	f.addFromCatalog(t, "prd-a")
	f.addFromCatalog(t, "prd-a")
	if got := f.cart.Total(); got != 20000 {
		t.Fatalf("expected cart total 20000, got %d", got)
	}

	p, _ := f.view.Get("prd-a")
	if err := f.cart.Add(p); !errors.Is(err, cart.ErrOutOfStock) {
		t.Fatalf("expected third add to fail with ErrOutOfStock, got %v", err)
	}

	result, err := f.machine.PayCash(context.Background(), 20000)
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if result.Sale.TotalAmount != 20000 {
		t.Fatalf("expected sale total 20000, got %d", result.Sale.TotalAmount)
	}
	if !f.cart.Empty() {
		t.Fatal("cart must be empty after completed sale")
	}

	// The catalog refresh triggered by checkout sees the decremented stock.
	refetched, ok := f.view.Get("prd-a")
	if !ok {
		t.Fatal("product missing from refreshed catalog")
	}
	if refetched.StockQuantity != 0 {
		t.Fatalf("expected stock 0 after sale, got %d", refetched.StockQuantity)
	}
}
