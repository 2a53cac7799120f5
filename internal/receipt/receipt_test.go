package receipt

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/tegarrizky11/sepukopi-pos/internal/domain"
)

func TestBuildSaleReceiptLayout(t *testing.T) {
	sale := domain.SaleRecord{
		ID: "sale-abc123",
		Items: []domain.SaleItem{
			{ProductID: "p1", Name: "Kopi Susu Gula Aren", Qty: 2, SalePrice: 18000, CostPrice: 7000, TotalPrice: 36000},
		},
		TotalAmount:   36000,
		PaymentMethod: domain.PaymentCash,
		CashierName:   "kasir",
		CreatedAt:     time.Date(2026, time.August, 26, 14, 5, 0, 0, time.Local).Format(time.RFC3339),
	}

	r := BuildSaleReceipt("Sepukopi", sale, 50000, 14000)
	if r.SaleID != "sale-abc123" {
		t.Fatalf("unexpected sale id %q", r.SaleID)
	}
	for _, want := range []string{
		"SEPUKOPI",
		"Kopi Susu Gula Aren x2",
		"Total    : Rp 36.000",
		"Bayar    : Rp 50.000",
		"Kembali  : Rp 14.000",
		"Terima kasih",
	} {
		if !strings.Contains(r.PreviewText, want) {
			t.Fatalf("preview missing %q:\n%s", want, r.PreviewText)
		}
	}
	if r.FileName != "receipt-sale-abc123.bin" {
		t.Fatalf("unexpected file name %q", r.FileName)
	}
}

func TestBuildSaleReceiptEscposFraming(t *testing.T) {
	sale := domain.SaleRecord{ID: "s1", TotalAmount: 10000, PaymentMethod: domain.PaymentQRIS, CashierName: "kasir"}
	r := BuildSaleReceipt("Sepukopi", sale, 10000, 0)

	raw, err := base64.StdEncoding.DecodeString(r.EscposBase64)
	if err != nil {
		t.Fatalf("decode escpos payload: %v", err)
	}
	if len(raw) < 6 || raw[0] != 0x1b || raw[1] != 0x40 {
		t.Fatalf("payload missing printer init sequence: % x", raw[:2])
	}
	tail := raw[len(raw)-4:]
	if tail[0] != 0x1d || tail[1] != 0x56 || tail[2] != 0x41 || tail[3] != 0x10 {
		t.Fatalf("payload missing cut command: % x", tail)
	}
}

func TestBuildDailyReportLayout(t *testing.T) {
	now := time.Date(2026, time.August, 26, 21, 30, 0, 0, time.Local)
	r := BuildDailyReport("Sepukopi", now, domain.HistorySummary{CashTotal: 150000, QRISTotal: 90000, GrandTotal: 240000})

	for _, want := range []string{
		"SEPUKOPI",
		"LAPORAN PENDAPATAN HARIAN",
		"26/08/2026",
		"Cash  : Rp 150.000",
		"QRIS  : Rp 90.000",
		"TOTAL : Rp 240.000",
	} {
		if !strings.Contains(r.PreviewText, want) {
			t.Fatalf("report missing %q:\n%s", want, r.PreviewText)
		}
	}
	if r.FileName != "daily-report-2026-08-26.bin" {
		t.Fatalf("unexpected file name %q", r.FileName)
	}
}
