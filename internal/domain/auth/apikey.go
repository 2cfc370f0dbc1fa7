// Package auth models admin API keys used to guard catalog writes.
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"slices"
)

// ScopeCreateProduct allows registering new catalog products.
const ScopeCreateProduct = "products:create"

// APIKeyInfo holds the identity and permission data for a validated API key.
type APIKeyInfo struct {
	ID      string
	KeyHash string
	Name    string
	Scopes  []string
}

// Allows reports whether the key carries scope.
func (i *APIKeyInfo) Allows(scope string) bool {
	return slices.Contains(i.Scopes, scope)
}

// Repository provides lookup of API keys by their HMAC hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
}

// Hash returns the hex HMAC-SHA256 of key under pepper. Keys are stored and
// looked up only in this form.
func Hash(pepper []byte, key string) string {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(key))
	return hex.EncodeToString(mac.Sum(nil))
}
