// Package memory provides an in-process catalog store used by the kiosk's
// offline mode and by tests.
package memory

import (
	"context"
	"sync"

	"github.com/xenking/scan-and-go/internal/domain/product"
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository is a product.Repository backed by a map.
type ProductRepository struct {
	mu     sync.RWMutex
	byCode map[string]product.Product
}

// NewProductRepository returns a store pre-populated with seed.
// Duplicate codes in seed keep the first record.
func NewProductRepository(seed ...product.Product) *ProductRepository {
	r := &ProductRepository{byCode: make(map[string]product.Product, len(seed))}
	for _, p := range seed {
		if _, ok := r.byCode[p.Code]; !ok {
			r.byCode[p.Code] = p
		}
	}
	return r
}

// GetByCode returns the product stored under code.
func (r *ProductRepository) GetByCode(_ context.Context, code string) (*product.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.byCode[code]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

// Create stores p unless its code is already taken. The check and the write
// happen under one lock.
func (r *ProductRepository) Create(_ context.Context, p product.Product) (*product.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byCode[p.Code]; ok {
		return nil, product.ErrAlreadyExists
	}
	r.byCode[p.Code] = p
	return &p, nil
}

// Len returns the number of stored products.
func (r *ProductRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byCode)
}
