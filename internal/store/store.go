package store

import (
	"context"
	"errors"

	"github.com/tegarrizky11/sepukopi-pos/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidSale       = errors.New("invalid sale")
	ErrDuplicateProduct  = errors.New("product already exists")
)

// Repository is the boundary to the catalog, sales and user collaborators.
// Implementations own sale persistence and the atomic stock decrement: a
// submitted sale either records fully with every line's stock reduced, or
// fails with no effect.
type Repository interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error

	// SubmitSale validates the draft, prices each line from the draft's
	// snapshot, decrements stock atomically and persists the sale. A draft
	// whose idempotency key was already recorded returns the original sale.
	SubmitSale(ctx context.Context, draft domain.SaleDraft) (*domain.SaleRecord, error)
	ListSales(ctx context.Context) ([]domain.SaleRecord, error)
	GetSale(ctx context.Context, id string) (*domain.SaleRecord, error)

	DailyStats(ctx context.Context, date string) (domain.DailyStats, error)
	MonthlyReport(ctx context.Context) ([]domain.TrendPoint, error)
	DetailedReport(ctx context.Context, date string) ([]domain.SaleRecord, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	FindUser(ctx context.Context, username string) (*domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
