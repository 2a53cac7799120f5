package cart

import (
	"errors"
	"testing"

	"github.com/tegarrizky11/sepukopi-pos/internal/domain"
)

func kopiSusu(stock int) domain.Product {
	return domain.Product{ID: "prd-kopi-susu", Name: "Kopi Susu Gula Aren", SalePrice: 18000, CostPrice: 7000, StockQuantity: stock}
}

func esTeh(stock int) domain.Product {
	return domain.Product{ID: "prd-es-teh", Name: "Es Teh Manis", SalePrice: 8000, CostPrice: 2500, StockQuantity: stock}
}

func TestAddBoundedByStock(t *testing.T) {
	engine := NewEngine()
	product := kopiSusu(2)

	if err := engine.Add(product); err != nil {
		t.Fatalf("first add: %v", err)
	}
	if err := engine.Add(product); err != nil {
		t.Fatalf("second add: %v", err)
	}
	if err := engine.Add(product); !errors.Is(err, ErrOutOfStock) {
		t.Fatalf("expected ErrOutOfStock on third add, got %v", err)
	}
	if got := engine.Qty(product.ID); got != 2 {
		t.Fatalf("expected qty 2 after rejected add, got %d", got)
	}
}

func TestAddZeroStockRejected(t *testing.T) {
	engine := NewEngine()
	if err := engine.Add(kopiSusu(0)); !errors.Is(err, ErrOutOfStock) {
		t.Fatalf("expected ErrOutOfStock for zero-stock product, got %v", err)
	}
	if !engine.Empty() {
		t.Fatal("expected cart to remain empty")
	}
}

func TestDecrementRemovesLineAtZero(t *testing.T) {
	engine := NewEngine()
	if err := engine.Add(kopiSusu(5)); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := engine.Add(esTeh(5)); err != nil {
		t.Fatalf("add: %v", err)
	}

	engine.Decrement("prd-kopi-susu")
	lines := engine.Lines()
	if len(lines) != 1 || lines[0].Product.ID != "prd-es-teh" {
		t.Fatalf("expected only es teh to remain, got %+v", lines)
	}

	// Unknown product is a no-op.
	engine.Decrement("prd-unknown")
	if got := len(engine.Lines()); got != 1 {
		t.Fatalf("expected 1 line after no-op decrement, got %d", got)
	}
}

func TestTotalRecomputedFromLines(t *testing.T) {
	engine := NewEngine()
	for i := 0; i < 3; i++ {
		if err := engine.Add(kopiSusu(10)); err != nil {
			t.Fatalf("add kopi susu: %v", err)
		}
	}
	if err := engine.Add(esTeh(10)); err != nil {
		t.Fatalf("add es teh: %v", err)
	}

	want := int64(3*18000 + 8000)
	if got := engine.Total(); got != want {
		t.Fatalf("expected total %d, got %d", want, got)
	}
	if got := engine.Total(); got != want {
		t.Fatalf("total changed between calls without mutation: %d", got)
	}

	engine.Decrement("prd-kopi-susu")
	if got := engine.Total(); got != int64(2*18000+8000) {
		t.Fatalf("expected total after decrement %d, got %d", 2*18000+8000, got)
	}
}

func TestLinesPreserveInsertionOrder(t *testing.T) {
	engine := NewEngine()
	if err := engine.Add(esTeh(10)); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := engine.Add(kopiSusu(10)); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := engine.Add(esTeh(10)); err != nil {
		t.Fatalf("add: %v", err)
	}

	lines := engine.Lines()
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if lines[0].Product.ID != "prd-es-teh" || lines[1].Product.ID != "prd-kopi-susu" {
		t.Fatalf("unexpected line order: %+v", lines)
	}
	if lines[0].Qty != 2 {
		t.Fatalf("expected es teh qty 2, got %d", lines[0].Qty)
	}
}

func TestClearEmptiesCart(t *testing.T) {
	engine := NewEngine()
	if err := engine.Add(kopiSusu(5)); err != nil {
		t.Fatalf("add: %v", err)
	}
	engine.Clear()
	if !engine.Empty() {
		t.Fatal("expected empty cart after clear")
	}
	if got := engine.Total(); got != 0 {
		t.Fatalf("expected total 0 after clear, got %d", got)
	}
}

func TestItemsCarryLinePricing(t *testing.T) {
	engine := NewEngine()
	for i := 0; i < 2; i++ {
		if err := engine.Add(kopiSusu(5)); err != nil {
			t.Fatalf("add: %v", err)
		}
	}

	items := engine.Items()
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	item := items[0]
	if item.Qty != 2 || item.SalePrice != 18000 || item.CostPrice != 7000 || item.TotalPrice != 36000 {
		t.Fatalf("unexpected item: %+v", item)
	}
}
