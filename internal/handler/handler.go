// Package handler exposes the catalog over HTTP.
package handler

import (
	"context"
	"net/http"

	"github.com/xenking/scan-and-go/internal/domain/product"
)

// Catalog is the pair of catalog verbs served over HTTP.
type Catalog interface {
	Fetch(ctx context.Context, code string) (*product.Product, error)
	Create(ctx context.Context, p product.Product) (*product.Product, error)
}

// HandlerConfig holds non-dependency configuration for the Handler.
type HandlerConfig struct {
	// MaxBodyBytes caps the size of a creation request body.
	MaxBodyBytes int64
}

// Handler serves the catalog endpoints. Product creation is guarded by the
// security handler when one is configured.
type Handler struct {
	catalog      Catalog
	security     *SecurityHandler
	maxBodyBytes int64
}

// NewHandler constructs a Handler. security may be nil, in which case product
// creation is open.
func NewHandler(cfg HandlerConfig, catalog Catalog, security *SecurityHandler) *Handler {
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 64 << 10
	}
	return &Handler{
		catalog:      catalog,
		security:     security,
		maxBodyBytes: maxBody,
	}
}

// Register mounts the catalog routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /products", h.GetProduct)
	mux.HandleFunc("POST /products", h.CreateProduct)
}
