package handler

import (
	"context"
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/scan-and-go/internal/domain/auth"
)

// APIKeyHeader carries the admin API key on catalog writes.
const APIKeyHeader = "api_key"

// ErrUnauthorized is returned for a missing, unknown, or under-scoped key.
var ErrUnauthorized = errors.New("unauthorized")

// SecurityHandler authenticates admin requests via HMAC-SHA256 hashed API
// keys.
type SecurityHandler struct {
	apikeys auth.Repository
	pepper  []byte
}

// NewSecurityHandler creates a SecurityHandler with the given API key
// repository and HMAC pepper.
func NewSecurityHandler(apikeys auth.Repository, pepper []byte) *SecurityHandler {
	return &SecurityHandler{
		apikeys: apikeys,
		pepper:  pepper,
	}
}

// HandleAPIKey checks that key is an active key carrying scope.
func (s *SecurityHandler) HandleAPIKey(ctx context.Context, key, scope string) (*auth.APIKeyInfo, error) {
	if key == "" {
		return nil, ErrUnauthorized
	}

	hexHash := auth.Hash(s.pepper, key)
	info, err := s.apikeys.FindByHash(ctx, hexHash)
	if err != nil {
		return nil, ErrUnauthorized
	}

	// The stored hash is compared in constant time even after a successful
	// lookup by hash.
	stored, err := hex.DecodeString(info.KeyHash)
	if err != nil {
		return nil, ErrUnauthorized
	}
	computed, err := hex.DecodeString(hexHash)
	if err != nil {
		return nil, ErrUnauthorized
	}
	if subtle.ConstantTimeCompare(computed, stored) != 1 {
		return nil, ErrUnauthorized
	}

	if !info.Allows(scope) {
		return nil, ErrUnauthorized
	}
	return info, nil
}

// authorize reports whether the request may proceed, writing a 401 when it
// may not. Requests always pass when no security handler is configured.
func (h *Handler) authorize(w http.ResponseWriter, r *http.Request, scope string) bool {
	if h.security == nil {
		return true
	}

	info, err := h.security.HandleAPIKey(r.Context(), r.Header.Get(APIKeyHeader), scope)
	if err != nil {
		writeError(w, http.StatusUnauthorized, ReasonUnauthorized, "unauthorized")
		return false
	}

	zctx.From(r.Context()).Debug("Admin key accepted", zap.String("key_id", info.ID))
	return true
}
