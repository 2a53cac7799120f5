package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/tegarrizky11/sepukopi-pos/internal/domain"
	"github.com/tegarrizky11/sepukopi-pos/internal/store"
	"github.com/tegarrizky11/sepukopi-pos/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureSchema creates the tables this store needs. Idempotent; meant for
// single-node deployments without an external migration pipeline.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS products (
			id             TEXT PRIMARY KEY,
			name           TEXT NOT NULL,
			sale_price     BIGINT NOT NULL CHECK (sale_price >= 0),
			cost_price     BIGINT NOT NULL CHECK (cost_price >= 0),
			stock_quantity INTEGER NOT NULL CHECK (stock_quantity >= 0),
			created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
		);

		CREATE TABLE IF NOT EXISTS sales (
			id              TEXT PRIMARY KEY,
			idempotency_key TEXT UNIQUE,
			items           JSONB NOT NULL,
			total_amount    BIGINT NOT NULL,
			payment_method  TEXT NOT NULL,
			cashier_name    TEXT NOT NULL,
			created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS sales_created_at_idx ON sales (created_at);

		CREATE TABLE IF NOT EXISTS app_users (
			username   TEXT PRIMARY KEY,
			password   TEXT NOT NULL,
			role       TEXT NOT NULL,
			active     BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
	`)
	return err
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, sale_price, cost_price, stock_quantity
		FROM products
		ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.SalePrice, &p.CostPrice, &p.StockQuantity); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	var p domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, sale_price, cost_price, stock_quantity
		FROM products
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.SalePrice, &p.CostPrice, &p.StockQuantity)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.SalePrice < 0 || product.CostPrice < 0 || product.StockQuantity < 0 {
		return nil, store.ErrInvalidSale
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, sale_price, cost_price, stock_quantity)
		VALUES ($1,$2,$3,$4,$5)
	`, product.ID, product.Name, product.SalePrice, product.CostPrice, product.StockQuantity)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateProduct
		}
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.SalePrice < 0 || product.CostPrice < 0 || product.StockQuantity < 0 {
		return nil, store.ErrInvalidSale
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, sale_price = $3, cost_price = $4, stock_quantity = $5, updated_at = now()
		WHERE id = $1
	`, product.ID, product.Name, product.SalePrice, product.CostPrice, product.StockQuantity)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// SubmitSale records a sale and decrements stock in one serializable
// transaction. A replayed idempotency key returns the already-recorded sale.
func (s *Store) SubmitSale(ctx context.Context, draft domain.SaleDraft) (*domain.SaleRecord, error) {
	if len(draft.Items) == 0 {
		return nil, store.ErrInvalidSale
	}
	if draft.PaymentMethod != domain.PaymentCash && draft.PaymentMethod != domain.PaymentQRIS {
		return nil, store.ErrInvalidSale
	}

	qtyByProduct := make(map[string]int, len(draft.Items))
	for _, item := range draft.Items {
		if item.ProductID == "" || item.Qty < 1 || item.SalePrice < 0 || item.CostPrice < 0 {
			return nil, store.ErrInvalidSale
		}
		qtyByProduct[item.ProductID] += item.Qty
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if draft.IdempotencyKey != "" {
		existing, err := findSaleTx(ctx, tx, "idempotency_key", draft.IdempotencyKey)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}

	// Guarded decrement: zero rows affected means the product is missing or
	// the stock moved under us.
	for productID, qty := range qtyByProduct {
		res, err := tx.ExecContext(ctx, `
			UPDATE products
			SET stock_quantity = stock_quantity - $1, updated_at = now()
			WHERE id = $2 AND stock_quantity >= $1
		`, qty, productID)
		if err != nil {
			return nil, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if affected == 0 {
			var exists bool
			if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, productID).Scan(&exists); err != nil {
				return nil, err
			}
			if !exists {
				return nil, store.ErrNotFound
			}
			return nil, store.ErrInsufficientStock
		}
	}

	items := make([]domain.SaleItem, 0, len(draft.Items))
	total := int64(0)
	for _, item := range draft.Items {
		item.TotalPrice = int64(item.Qty) * item.SalePrice
		total += item.TotalPrice
		items = append(items, item)
	}
	payload, err := json.Marshal(items)
	if err != nil {
		return nil, err
	}

	sale := domain.SaleRecord{
		ID:            xid.New("sale"),
		Items:         items,
		TotalAmount:   total,
		PaymentMethod: draft.PaymentMethod,
		CashierName:   draft.CashierName,
	}
	createdAt := time.Now()
	sale.CreatedAt = createdAt.Format(time.RFC3339)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sales (id, idempotency_key, items, total_amount, payment_method, cashier_name, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, sale.ID, nullIfEmpty(draft.IdempotencyKey), payload, sale.TotalAmount, sale.PaymentMethod, sale.CashierName, createdAt)
	if err != nil {
		if isUniqueViolation(err) {
			existing, lookupErr := s.findSale(ctx, "idempotency_key", draft.IdempotencyKey)
			if lookupErr == nil {
				return existing, nil
			}
		}
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &sale, nil
}

func (s *Store) ListSales(ctx context.Context) ([]domain.SaleRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, items, total_amount, payment_method, cashier_name, created_at
		FROM sales
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.SaleRecord, 0, 128)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sales, nil
}

func (s *Store) GetSale(ctx context.Context, id string) (*domain.SaleRecord, error) {
	return s.findSale(ctx, "id", id)
}

func (s *Store) DailyStats(ctx context.Context, date string) (domain.DailyStats, error) {
	day, err := time.ParseInLocation("2006-01-02", date, time.Local)
	if err != nil {
		return domain.DailyStats{}, store.ErrInvalidSale
	}
	dayStart := day
	dayEnd := day.Add(24 * time.Hour)
	monthStart := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, time.Local)
	monthEnd := monthStart.AddDate(0, 1, 0)

	var stats domain.DailyStats
	err = s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(total_amount) FILTER (WHERE created_at >= $1 AND created_at < $2), 0),
			COALESCE(SUM(profit)       FILTER (WHERE created_at >= $1 AND created_at < $2), 0),
			COALESCE(SUM(total_amount), 0),
			COALESCE(SUM(profit), 0)
		FROM (
			SELECT s.created_at,
			       s.total_amount,
			       (SELECT COALESCE(SUM((i->>'qty')::bigint * ((i->>'sale_price')::bigint - (i->>'cost_price')::bigint)), 0)
			        FROM jsonb_array_elements(s.items) AS i) AS profit
			FROM sales s
			WHERE s.created_at >= $3 AND s.created_at < $4
		) agg
	`, dayStart, dayEnd, monthStart, monthEnd).Scan(
		&stats.DailyRevenue, &stats.DailyProfit, &stats.MonthlyRevenue, &stats.MonthlyProfit)
	if err != nil {
		return domain.DailyStats{}, err
	}
	return stats, nil
}

func (s *Store) MonthlyReport(ctx context.Context) ([]domain.TrendPoint, error) {
	now := time.Now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.Local)
	monthEnd := monthStart.AddDate(0, 1, 0)

	rows, err := s.db.QueryContext(ctx, `
		SELECT to_char(created_at, 'YYYY-MM-DD') AS day,
		       COALESCE(SUM(total_amount), 0),
		       COALESCE(SUM((SELECT COALESCE(SUM((i->>'qty')::bigint * ((i->>'sale_price')::bigint - (i->>'cost_price')::bigint)), 0)
		                     FROM jsonb_array_elements(items) AS i)), 0)
		FROM sales
		WHERE created_at >= $1 AND created_at < $2
		GROUP BY day
		ORDER BY day ASC
	`, monthStart, monthEnd)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	report := make([]domain.TrendPoint, 0, 31)
	for rows.Next() {
		var point domain.TrendPoint
		if err := rows.Scan(&point.Date, &point.Revenue, &point.Profit); err != nil {
			return nil, err
		}
		report = append(report, point)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return report, nil
}

func (s *Store) DetailedReport(ctx context.Context, date string) ([]domain.SaleRecord, error) {
	day, err := time.ParseInLocation("2006-01-02", date, time.Local)
	if err != nil {
		return nil, store.ErrInvalidSale
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, items, total_amount, payment_method, cashier_name, created_at
		FROM sales
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at ASC
	`, day, day.Add(24*time.Hour))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.SaleRecord, 0, 32)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sales, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidSale
	}
	if user.Role == "" {
		user.Role = domain.RoleCashier
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidSale
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) FindUser(ctx context.Context, username string) (*domain.UserAccount, error) {
	var user domain.UserAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		WHERE username = $1
	`, strings.ToLower(strings.TrimSpace(username))).Scan(
		&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	user.CreatedAt = user.CreatedAt.UTC()
	return &user, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidSale
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSale(row rowScanner) (domain.SaleRecord, error) {
	var sale domain.SaleRecord
	var payload []byte
	var createdAt time.Time
	if err := row.Scan(&sale.ID, &payload, &sale.TotalAmount, &sale.PaymentMethod, &sale.CashierName, &createdAt); err != nil {
		return domain.SaleRecord{}, err
	}
	if err := json.Unmarshal(payload, &sale.Items); err != nil {
		return domain.SaleRecord{}, err
	}
	sale.CreatedAt = createdAt.Format(time.RFC3339)
	return sale, nil
}

func (s *Store) findSale(ctx context.Context, column string, value string) (*domain.SaleRecord, error) {
	return querySale(ctx, s.db, column, value)
}

func findSaleTx(ctx context.Context, tx *sql.Tx, column string, value string) (*domain.SaleRecord, error) {
	return querySale(ctx, tx, column, value)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func querySale(ctx context.Context, q queryRower, column string, value string) (*domain.SaleRecord, error) {
	query := `
		SELECT id, items, total_amount, payment_method, cashier_name, created_at
		FROM sales
		WHERE ` + column + ` = $1`
	sale, err := scanSale(q.QueryRowContext(ctx, query, value))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &sale, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}
