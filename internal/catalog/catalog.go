// Package catalog keeps the terminal's view of the product list. The view is
// a snapshot refreshed from the store; reads never block on the backend.
package catalog

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/tegarrizky11/sepukopi-pos/internal/cache"
	"github.com/tegarrizky11/sepukopi-pos/internal/domain"
	"github.com/tegarrizky11/sepukopi-pos/internal/store"
)

const cacheKey = "catalog:products"

type View struct {
	repo     store.Repository
	cache    cache.CatalogCache
	cacheTTL time.Duration

	mu        sync.RWMutex
	products  []domain.Product
	byID      map[string]domain.Product
	refreshed time.Time
}

func NewView(repo store.Repository, catalogCache cache.CatalogCache, cacheTTL time.Duration) *View {
	if catalogCache == nil {
		catalogCache = cache.NoopCatalogCache{}
	}
	return &View{
		repo:     repo,
		cache:    catalogCache,
		cacheTTL: cacheTTL,
		byID:     make(map[string]domain.Product),
	}
}

// Refresh replaces the snapshot with the store's current product list. On
// store failure the previous snapshot is kept so the terminal stays usable,
// falling back to the shared cache only when the view has never loaded.
func (v *View) Refresh(ctx context.Context) error {
	products, err := v.repo.ListProducts(ctx)
	if err != nil {
		v.mu.RLock()
		loaded := v.products != nil
		v.mu.RUnlock()
		if !loaded {
			if cached, found, cacheErr := v.cache.Get(ctx, cacheKey); cacheErr == nil && found {
				log.Printf("[catalog] WARN: store unavailable, serving cached product list: %v", err)
				v.install(cached)
				return nil
			}
		}
		log.Printf("[catalog] WARN: refresh failed, keeping stale snapshot: %v", err)
		return err
	}

	v.install(products)
	if err := v.cache.Set(ctx, cacheKey, products, v.cacheTTL); err != nil {
		log.Printf("[catalog] WARN: failed to mirror product list to cache: %v", err)
	}
	return nil
}

func (v *View) install(products []domain.Product) {
	byID := make(map[string]domain.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	v.mu.Lock()
	v.products = products
	v.byID = byID
	v.refreshed = time.Now()
	v.mu.Unlock()
}

// Products returns the current snapshot in store order.
func (v *View) Products() []domain.Product {
	v.mu.RLock()
	defer v.mu.RUnlock()

	products := make([]domain.Product, len(v.products))
	copy(products, v.products)
	return products
}

func (v *View) Get(id string) (domain.Product, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	p, ok := v.byID[id]
	return p, ok
}

// LastRefreshed reports when the snapshot was last installed. Zero when the
// view has never loaded.
func (v *View) LastRefreshed() time.Time {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.refreshed
}
