// Package receipt renders 58mm receipts and shift reports for the local
// printer bridge: a plain-text preview plus a base64 ESC/POS byte stream.
package receipt

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/tegarrizky11/sepukopi-pos/internal/domain"
)

// BuildSaleReceipt renders a completed sale. Fire-and-forget from the
// checkout machine's point of view; nothing here mutates state.
func BuildSaleReceipt(storeName string, sale domain.SaleRecord, amountPaid int64, change int64) domain.Receipt {
	dateLine := sale.CreatedAt
	if at, ok := domain.ParseSaleTime(sale.CreatedAt); ok {
		dateLine = at.In(time.Local).Format("02/01/2006 15:04:05")
	}

	lines := []string{
		strings.ToUpper(storeName),
		"========================",
		"No : " + sale.ID,
		"Kasir : " + sale.CashierName,
		"Tanggal : " + dateLine,
		"------------------------",
	}
	for _, item := range sale.Items {
		lines = append(lines, fmt.Sprintf("%s x%d", item.Name, item.Qty))
		lines = append(lines, "  "+domain.Rupiah(item.TotalPrice))
	}
	lines = append(lines,
		"------------------------",
		"Total    : "+domain.Rupiah(sale.TotalAmount),
		"Metode   : "+sale.PaymentMethod,
		"Bayar    : "+domain.Rupiah(amountPaid),
		"Kembali  : "+domain.Rupiah(change),
		"========================",
		"Terima kasih",
		"",
	)

	return domain.Receipt{
		SaleID:       sale.ID,
		PreviewText:  strings.Join(lines, "\n"),
		EscposBase64: escposEncode(lines),
		FileName:     fmt.Sprintf("receipt-%s.bin", sale.ID),
	}
}

// BuildDailyReport renders the shift-closing revenue report for now's
// calendar day.
func BuildDailyReport(storeName string, now time.Time, summary domain.HistorySummary) domain.Receipt {
	lines := []string{
		strings.ToUpper(storeName),
		"LAPORAN PENDAPATAN HARIAN",
		now.Format("02/01/2006"),
		"========================",
		"Cash  : " + domain.Rupiah(summary.CashTotal),
		"QRIS  : " + domain.Rupiah(summary.QRISTotal),
		"------------------------",
		"TOTAL : " + domain.Rupiah(summary.GrandTotal),
		"========================",
		now.Format("02/01/2006 15:04:05"),
		"",
	}

	name := "daily-report-" + now.Format("2006-01-02")
	return domain.Receipt{
		SaleID:       name,
		PreviewText:  strings.Join(lines, "\n"),
		EscposBase64: escposEncode(lines),
		FileName:     name + ".bin",
	}
}

// escposEncode wraps the text lines in printer init and full-cut commands.
func escposEncode(lines []string) string {
	escpos := []byte{0x1b, 0x40}
	for _, line := range lines {
		escpos = append(escpos, []byte(line)...)
		escpos = append(escpos, '\n')
	}
	escpos = append(escpos, []byte{0x1d, 0x56, 0x41, 0x10}...)
	return base64.StdEncoding.EncodeToString(escpos)
}
