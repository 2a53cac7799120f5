// Package cart implements the in-terminal order builder. All mutations are
// bounded by the product stock known at the time of the call; the store has
// the final word at checkout.
package cart

import (
	"errors"
	"sync"

	"github.com/tegarrizky11/sepukopi-pos/internal/domain"
)

// ErrOutOfStock is returned when adding a product would exceed its known
// stock, including products whose stock is already zero.
var ErrOutOfStock = errors.New("cart: product out of stock")

// Line is one product entry in the cart. Price and stock fields snapshot the
// product as of the most recent Add for that product.
type Line struct {
	Product domain.Product
	Qty     int
}

func (l Line) Subtotal() int64 {
	return int64(l.Qty) * l.Product.SalePrice
}

type Engine struct {
	mu    sync.Mutex
	lines []Line
	index map[string]int
}

func NewEngine() *Engine {
	return &Engine{index: make(map[string]int)}
}

// Add puts one unit of product in the cart, creating the line at quantity 1
// or bumping an existing line. The quantity never exceeds the product's
// stock as reported by the given snapshot.
func (e *Engine) Add(product domain.Product) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	current := 0
	if idx, ok := e.index[product.ID]; ok {
		current = e.lines[idx].Qty
	}
	if current+1 > product.StockQuantity {
		return ErrOutOfStock
	}

	if idx, ok := e.index[product.ID]; ok {
		e.lines[idx].Qty++
		e.lines[idx].Product = product
		return nil
	}
	e.index[product.ID] = len(e.lines)
	e.lines = append(e.lines, Line{Product: product, Qty: 1})
	return nil
}

// Decrement removes one unit of the product, dropping the line entirely when
// its quantity reaches zero. Unknown products are a no-op.
func (e *Engine) Decrement(productID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx, ok := e.index[productID]
	if !ok {
		return
	}
	e.lines[idx].Qty--
	if e.lines[idx].Qty > 0 {
		return
	}

	e.lines = append(e.lines[:idx], e.lines[idx+1:]...)
	delete(e.index, productID)
	for i := idx; i < len(e.lines); i++ {
		e.index[e.lines[i].Product.ID] = i
	}
}

func (e *Engine) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.lines = nil
	e.index = make(map[string]int)
}

// Lines returns the cart contents in insertion order.
func (e *Engine) Lines() []Line {
	e.mu.Lock()
	defer e.mu.Unlock()

	lines := make([]Line, len(e.lines))
	copy(lines, e.lines)
	return lines
}

// Total recomputes the cart total from its lines on every call.
func (e *Engine) Total() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	total := int64(0)
	for _, line := range e.lines {
		total += line.Subtotal()
	}
	return total
}

// Qty reports the quantity of a product currently in the cart.
func (e *Engine) Qty(productID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	if idx, ok := e.index[productID]; ok {
		return e.lines[idx].Qty
	}
	return 0
}

func (e *Engine) Empty() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.lines) == 0
}

// Items renders the cart as sale line items for submission.
func (e *Engine) Items() []domain.SaleItem {
	e.mu.Lock()
	defer e.mu.Unlock()

	items := make([]domain.SaleItem, 0, len(e.lines))
	for _, line := range e.lines {
		items = append(items, domain.SaleItem{
			ProductID:  line.Product.ID,
			Name:       line.Product.Name,
			Qty:        line.Qty,
			SalePrice:  line.Product.SalePrice,
			CostPrice:  line.Product.CostPrice,
			TotalPrice: line.Subtotal(),
		})
	}
	return items
}
