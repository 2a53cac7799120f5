package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/tegarrizky11/sepukopi-pos/internal/domain"
	"github.com/tegarrizky11/sepukopi-pos/internal/store"
	"github.com/tegarrizky11/sepukopi-pos/internal/xid"
)

type Store struct {
	mu              sync.RWMutex
	clock           func() time.Time
	products        map[string]domain.Product
	productOrder    []string
	sales           []domain.SaleRecord
	salesByID       map[string]int
	salesByIdem     map[string]string
	usersByUsername map[string]domain.UserAccount
}

// seedUsers builds the initial user accounts for dev/demo mode. Credentials
// come from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD; hardcoded dev
// defaults are used with a warning when unset.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "kasir123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"kasir", cashierPwd, domain.RoleCashier},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	products := []domain.Product{
		{ID: "prd-kopi-susu", Name: "Kopi Susu Gula Aren", SalePrice: 18000, CostPrice: 7000, StockQuantity: 80},
		{ID: "prd-americano", Name: "Americano", SalePrice: 15000, CostPrice: 5000, StockQuantity: 80},
		{ID: "prd-kopi-tubruk", Name: "Kopi Tubruk", SalePrice: 10000, CostPrice: 3500, StockQuantity: 60},
		{ID: "prd-es-teh", Name: "Es Teh Manis", SalePrice: 8000, CostPrice: 2500, StockQuantity: 100},
		{ID: "prd-matcha", Name: "Matcha Latte", SalePrice: 22000, CostPrice: 9500, StockQuantity: 40},
		{ID: "prd-roti-bakar", Name: "Roti Bakar Coklat", SalePrice: 16000, CostPrice: 6500, StockQuantity: 30},
		{ID: "prd-pisang-goreng", Name: "Pisang Goreng Keju", SalePrice: 14000, CostPrice: 5500, StockQuantity: 30},
		{ID: "prd-indomie", Name: "Indomie Telur", SalePrice: 13000, CostPrice: 5000, StockQuantity: 50},
	}

	productMap := make(map[string]domain.Product, len(products))
	order := make([]string, 0, len(products))
	for _, p := range products {
		productMap[p.ID] = p
		order = append(order, p.ID)
	}

	return &Store{
		clock:           time.Now,
		products:        productMap,
		productOrder:    order,
		sales:           make([]domain.SaleRecord, 0, 128),
		salesByID:       make(map[string]int),
		salesByIdem:     make(map[string]string),
		usersByUsername: seedUsers(),
	}
}

// NewEmpty returns a store with no products, sales or users.
func NewEmpty() *Store {
	return &Store{
		clock:           time.Now,
		products:        make(map[string]domain.Product),
		sales:           make([]domain.SaleRecord, 0, 16),
		salesByID:       make(map[string]int),
		salesByIdem:     make(map[string]string),
		usersByUsername: make(map[string]domain.UserAccount),
	}
}

// SetClock overrides the time source. Test hook.
func (s *Store) SetClock(clock func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = clock
}

func (s *Store) now() time.Time {
	if s.clock == nil {
		return time.Now()
	}
	return s.clock()
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, id := range s.productOrder {
		products = append(products, s.products[id])
	}
	return products, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	found := product
	return &found, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.Name == "" || product.SalePrice < 0 || product.CostPrice < 0 || product.StockQuantity < 0 {
		return nil, store.ErrInvalidSale
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	if _, exists := s.products[product.ID]; exists {
		return nil, store.ErrDuplicateProduct
	}

	s.products[product.ID] = product
	s.productOrder = append(s.productOrder, product.ID)
	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.Name == "" || product.SalePrice < 0 || product.CostPrice < 0 || product.StockQuantity < 0 {
		return nil, store.ErrInvalidSale
	}
	if _, exists := s.products[product.ID]; !exists {
		return nil, store.ErrNotFound
	}

	s.products[product.ID] = product
	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.products, id)
	s.productOrder = slices.DeleteFunc(s.productOrder, func(pid string) bool {
		return pid == id
	})
	return nil
}

func (s *Store) SubmitSale(_ context.Context, draft domain.SaleDraft) (*domain.SaleRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(draft.Items) == 0 {
		return nil, store.ErrInvalidSale
	}
	if draft.PaymentMethod != domain.PaymentCash && draft.PaymentMethod != domain.PaymentQRIS {
		return nil, store.ErrInvalidSale
	}

	if draft.IdempotencyKey != "" {
		if saleID, seen := s.salesByIdem[draft.IdempotencyKey]; seen {
			existing := s.sales[s.salesByID[saleID]]
			return &existing, nil
		}
	}

	// Aggregate quantities so a draft repeating a product still respects the
	// stock bound, then check every line before mutating anything.
	qtyByProduct := make(map[string]int, len(draft.Items))
	for _, item := range draft.Items {
		if item.ProductID == "" || item.Qty < 1 || item.SalePrice < 0 || item.CostPrice < 0 {
			return nil, store.ErrInvalidSale
		}
		qtyByProduct[item.ProductID] += item.Qty
	}
	for productID, qty := range qtyByProduct {
		product, exists := s.products[productID]
		if !exists {
			return nil, store.ErrNotFound
		}
		if product.StockQuantity < qty {
			return nil, store.ErrInsufficientStock
		}
	}

	for productID, qty := range qtyByProduct {
		product := s.products[productID]
		product.StockQuantity -= qty
		s.products[productID] = product
	}

	items := make([]domain.SaleItem, 0, len(draft.Items))
	total := int64(0)
	for _, item := range draft.Items {
		item.TotalPrice = int64(item.Qty) * item.SalePrice
		total += item.TotalPrice
		items = append(items, item)
	}

	sale := domain.SaleRecord{
		ID:            xid.New("sale"),
		Items:         items,
		TotalAmount:   total,
		PaymentMethod: draft.PaymentMethod,
		CashierName:   draft.CashierName,
		CreatedAt:     s.now().Format(time.RFC3339),
	}
	s.salesByID[sale.ID] = len(s.sales)
	s.sales = append(s.sales, sale)
	if draft.IdempotencyKey != "" {
		s.salesByIdem[draft.IdempotencyKey] = sale.ID
	}

	recorded := sale
	return &recorded, nil
}

func (s *Store) ListSales(_ context.Context) ([]domain.SaleRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.SaleRecord, len(s.sales))
	copy(sales, s.sales)
	return sales, nil
}

func (s *Store) GetSale(_ context.Context, id string) (*domain.SaleRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, exists := s.salesByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	sale := s.sales[idx]
	return &sale, nil
}

func (s *Store) DailyStats(_ context.Context, date string) (domain.DailyStats, error) {
	day, err := time.ParseInLocation("2006-01-02", date, time.Local)
	if err != nil {
		return domain.DailyStats{}, store.ErrInvalidSale
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := domain.DailyStats{}
	for _, sale := range s.sales {
		at, ok := domain.ParseSaleTime(sale.CreatedAt)
		if !ok {
			continue
		}
		at = at.Local()
		if at.Year() != day.Year() || at.Month() != day.Month() {
			continue
		}
		profit := saleProfit(sale)
		stats.MonthlyRevenue += sale.TotalAmount
		stats.MonthlyProfit += profit
		if at.Day() == day.Day() {
			stats.DailyRevenue += sale.TotalAmount
			stats.DailyProfit += profit
		}
	}
	return stats, nil
}

func (s *Store) MonthlyReport(_ context.Context) ([]domain.TrendPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now().Local()
	byDate := make(map[string]*domain.TrendPoint)
	for _, sale := range s.sales {
		at, ok := domain.ParseSaleTime(sale.CreatedAt)
		if !ok {
			continue
		}
		at = at.Local()
		if at.Year() != now.Year() || at.Month() != now.Month() {
			continue
		}
		key := at.Format("2006-01-02")
		point, exists := byDate[key]
		if !exists {
			point = &domain.TrendPoint{Date: key}
			byDate[key] = point
		}
		point.Revenue += sale.TotalAmount
		point.Profit += saleProfit(sale)
	}

	report := make([]domain.TrendPoint, 0, len(byDate))
	for _, point := range byDate {
		report = append(report, *point)
	}
	sort.Slice(report, func(i, j int) bool {
		return report[i].Date < report[j].Date
	})
	return report, nil
}

func (s *Store) DetailedReport(_ context.Context, date string) ([]domain.SaleRecord, error) {
	if _, err := time.ParseInLocation("2006-01-02", date, time.Local); err != nil {
		return nil, store.ErrInvalidSale
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.SaleRecord, 0, 16)
	for _, sale := range s.sales {
		at, ok := domain.ParseSaleTime(sale.CreatedAt)
		if !ok {
			continue
		}
		if at.Local().Format("2006-01-02") == date {
			sales = append(sales, sale)
		}
	}
	return sales, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" {
		return store.ErrInvalidSale
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrInvalidSale
	}
	user.Username = username
	s.usersByUsername[username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].Username < users[j].Username
	})
	return users, nil
}

func (s *Store) FindUser(_ context.Context, username string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.usersByUsername[strings.ToLower(strings.TrimSpace(username))]
	if !exists {
		return nil, store.ErrNotFound
	}
	found := user
	return &found, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.usersByUsername[strings.ToLower(strings.TrimSpace(username))]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[user.Username] = user
	return nil
}

func saleProfit(sale domain.SaleRecord) int64 {
	profit := int64(0)
	for _, item := range sale.Items {
		profit += int64(item.Qty) * (item.SalePrice - item.CostPrice)
	}
	return profit
}
