package domain

import "time"

// Wire names follow the upstream Sepukopi API (Mongo-style _id / createdAt)
// so payloads stay compatible with the existing terminal UI.

type Product struct {
	ID            string `json:"_id"`
	Name          string `json:"name"`
	SalePrice     int64  `json:"sale_price"`
	CostPrice     int64  `json:"cost_price"`
	StockQuantity int    `json:"stock_quantity"`
}

type SaleItem struct {
	ProductID  string `json:"_id"`
	Name       string `json:"name"`
	Qty        int    `json:"qty"`
	SalePrice  int64  `json:"sale_price"`
	CostPrice  int64  `json:"cost_price"`
	TotalPrice int64  `json:"total_price"`
}

// SaleRecord is immutable once returned by the sales store. CreatedAt is
// kept as the raw wire string; records whose timestamp does not parse are
// excluded from reconciliation rather than treated as an error.
type SaleRecord struct {
	ID            string     `json:"_id"`
	Items         []SaleItem `json:"items"`
	TotalAmount   int64      `json:"total_amount"`
	PaymentMethod string     `json:"payment_method"`
	CashierName   string     `json:"cashier_name"`
	CreatedAt     string     `json:"createdAt"`
}

// SaleDraft is the submission payload for one checkout attempt. TotalPrice
// on items and the sale total are computed by the store; the idempotency key
// is client-generated so a retried submission cannot create a duplicate.
type SaleDraft struct {
	Items          []SaleItem `json:"cart"`
	PaymentMethod  string     `json:"paymentMethod"`
	CashierName    string     `json:"cashier_name"`
	IdempotencyKey string     `json:"idempotency_key"`
}

const (
	PaymentCash = "Cash"
	PaymentQRIS = "QRIS"
)

const (
	MethodFilterAll  = "all"
	MethodFilterCash = "cash"
	MethodFilterQRIS = "qris"
)

type HistoryFilter struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Method    string `json:"payment"`
}

type HistorySummary struct {
	CashTotal  int64 `json:"cash_total"`
	QRISTotal  int64 `json:"qris_total"`
	GrandTotal int64 `json:"grand_total"`
}

type DailyStats struct {
	DailyRevenue   int64 `json:"dailyRevenue"`
	DailyProfit    int64 `json:"dailyProfit"`
	MonthlyRevenue int64 `json:"monthlyRevenue"`
	MonthlyProfit  int64 `json:"monthlyProfit"`
}

type TrendPoint struct {
	Date    string `json:"date"`
	Revenue int64  `json:"revenue"`
	Profit  int64  `json:"profit"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token     string `json:"token"`
	User      Actor  `json:"user"`
	ExpiresAt string `json:"expires_at"`
}

type Actor struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

const (
	RoleAdmin   = "admin"
	RoleCashier = "cashier"
)

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type ProductCreateRequest struct {
	Name          string `json:"name"`
	SalePrice     int64  `json:"sale_price"`
	CostPrice     int64  `json:"cost_price"`
	StockQuantity int    `json:"stock_quantity"`
}

type ProductUpdateRequest struct {
	Name          *string `json:"name,omitempty"`
	SalePrice     *int64  `json:"sale_price,omitempty"`
	CostPrice     *int64  `json:"cost_price,omitempty"`
	StockQuantity *int    `json:"stock_quantity,omitempty"`
}

// Receipt is a rendered print payload. The terminal hands it to the local
// printer bridge fire-and-forget; nothing in the core consumes a reply.
type Receipt struct {
	SaleID       string `json:"sale_id,omitempty"`
	PreviewText  string `json:"preview_text"`
	EscposBase64 string `json:"escpos_base64"`
	FileName     string `json:"file_name"`
}

var saleTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseSaleTime parses a SaleRecord creation timestamp. The upstream API has
// emitted both RFC3339 and bare date-time forms over its lifetime.
func ParseSaleTime(raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range saleTimeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
