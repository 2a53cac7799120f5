package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/tegarrizky11/sepukopi-pos/internal/domain"
	"github.com/tegarrizky11/sepukopi-pos/internal/store"
)

func TestSubmitSaleDecrementsStockAndDeduplicates(t *testing.T) {
	databaseURL := os.Getenv("SEPUKOPI_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set SEPUKOPI_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	if err := s.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}

	stamp := time.Now().UnixNano()
	productID := fmt.Sprintf("prd-submit-it-%d", stamp)
	idempotencyKey := fmt.Sprintf("idem-submit-it-%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales WHERE idempotency_key = $1`, idempotencyKey)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, productID)
	})

	if _, err := s.CreateProduct(ctx, domain.Product{
		ID: productID, Name: "Produk Submit IT", SalePrice: 15000, CostPrice: 5000, StockQuantity: 3,
	}); err != nil {
		t.Fatalf("insert product: %v", err)
	}

	draft := domain.SaleDraft{
		Items:          []domain.SaleItem{{ProductID: productID, Name: "Produk Submit IT", Qty: 2, SalePrice: 15000, CostPrice: 5000}},
		PaymentMethod:  domain.PaymentCash,
		CashierName:    "kasir",
		IdempotencyKey: idempotencyKey,
	}

	first, err := s.SubmitSale(ctx, draft)
	if err != nil {
		t.Fatalf("submit sale: %v", err)
	}
	if first.TotalAmount != 30000 {
		t.Fatalf("expected total 30000, got %d", first.TotalAmount)
	}

	second, err := s.SubmitSale(ctx, draft)
	if err != nil {
		t.Fatalf("replayed submit: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("replay must return recorded sale, got %s vs %s", second.ID, first.ID)
	}

	p, err := s.GetProduct(ctx, productID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if p.StockQuantity != 1 {
		t.Fatalf("expected stock 1 after deduplicated sale, got %d", p.StockQuantity)
	}

	over := draft
	over.IdempotencyKey = ""
	over.Items[0].Qty = 2
	if _, err := s.SubmitSale(ctx, over); !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
}
