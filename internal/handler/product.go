package handler

import (
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/scan-and-go/internal/domain/auth"
	"github.com/xenking/scan-and-go/internal/domain/product"
	"github.com/xenking/scan-and-go/internal/wire"
)

// Error reasons reported alongside the HTTP status.
const (
	ReasonValidation   = "validation"
	ReasonNotFound     = "not_found"
	ReasonConflict     = "conflict"
	ReasonUnauthorized = "unauthorized"
	ReasonInternal     = "internal"
)

// GetProduct serves GET /products?code={code}.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")

	p, err := h.catalog.Fetch(r.Context(), code)
	if err != nil {
		h.writeCatalogError(w, r, err)
		return
	}
	writeProduct(w, http.StatusOK, *p)
}

// CreateProduct serves POST /products.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r, auth.ScopeCreateProduct) {
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, ReasonValidation, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, ReasonValidation, "read request body")
		return
	}

	req, err := wire.DecodeProduct(body)
	if err != nil {
		var vErr *product.ValidationError
		if errors.As(err, &vErr) {
			writeValidationError(w, vErr)
			return
		}
		writeError(w, http.StatusBadRequest, ReasonValidation, "malformed JSON body")
		return
	}

	created, err := h.catalog.Create(r.Context(), req)
	if err != nil {
		h.writeCatalogError(w, r, err)
		return
	}

	zctx.From(r.Context()).Info("Product created",
		zap.String("code", created.Code),
		zap.String("name", created.Name),
	)
	writeProduct(w, http.StatusCreated, *created)
}

// writeCatalogError maps catalog errors onto HTTP responses. Unknown errors
// are logged and reported as 500 without detail.
func (h *Handler) writeCatalogError(w http.ResponseWriter, r *http.Request, err error) {
	var vErr *product.ValidationError
	switch {
	case errors.As(err, &vErr):
		writeValidationError(w, vErr)
	case errors.Is(err, product.ErrNotFound):
		writeError(w, http.StatusNotFound, ReasonNotFound, "product not found")
	case errors.Is(err, product.ErrAlreadyExists):
		writeError(w, http.StatusBadRequest, ReasonConflict, product.ErrAlreadyExists.Error())
	default:
		zctx.From(r.Context()).Error("Catalog failure", zap.Error(err))
		writeError(w, http.StatusInternalServerError, ReasonInternal, "internal error")
	}
}

func writeProduct(w http.ResponseWriter, status int, p product.Product) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	wire.EncodeProduct(e, p)
	writeJSON(w, status, e.Bytes())
}

func writeError(w http.ResponseWriter, status int, reason, msg string) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	wire.EncodeError(e, wire.Error{Code: status, Message: msg, Reason: reason})
	writeJSON(w, status, e.Bytes())
}

func writeValidationError(w http.ResponseWriter, vErr *product.ValidationError) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	wire.EncodeError(e, wire.Error{
		Code:    http.StatusBadRequest,
		Message: vErr.Error(),
		Reason:  ReasonValidation,
		Fields:  wire.FieldErrors(vErr),
	})
	writeJSON(w, http.StatusBadRequest, e.Bytes())
}

func writeJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// The status is already written; a failed write means the client left.
	_, _ = w.Write(body)
}
