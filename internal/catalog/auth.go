package catalog

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/tjfontaine/phasemux/internal/pipeline"
)

// AuthKeyHashKey is the context key holding the hash of the API key a
// request authenticated with.
const AuthKeyHashKey contextKey = "auth_key_hash"

var (
	errMissingAuthorization = errors.New("missing Authorization header")
	errInvalidAuthorization = errors.New("invalid Authorization header format")
	errUnsupportedScheme    = errors.New("unsupported authorization scheme")
)

// HashAPIKey creates a SHA-256 hash of an API key for storage.
func HashAPIKey(apiKey string) string {
	hash := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(hash[:])
}

// ExtractAPIKey extracts the API key from a "Bearer <key>" Authorization header.
func ExtractAPIKey(r *http.Request) (string, error) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return "", errMissingAuthorization
	}
	scheme, key, ok := strings.Cut(auth, " ")
	if !ok || key == "" {
		return "", errInvalidAuthorization
	}
	if !strings.EqualFold(scheme, "bearer") {
		return "", errUnsupportedScheme
	}
	return key, nil
}

// BearerAuth admits requests carrying an API key whose SHA-256 hash is one of
// keyHashes. Other requests continue with a 401 error instead of reaching the
// handlers that follow.
func BearerAuth(keyHashes ...string) pipeline.HandlerFunc {
	known := make([][]byte, len(keyHashes))
	for i, h := range keyHashes {
		known[i] = []byte(strings.ToLower(h))
	}
	return func(c *pipeline.Context, next pipeline.NextFunc) {
		apiKey, err := ExtractAPIKey(c.Request)
		if err != nil {
			next(pipeline.NewHTTPError(http.StatusUnauthorized, err.Error()))
			return
		}
		hash := []byte(HashAPIKey(apiKey))
		// Compare against every key so timing does not reveal which matched.
		match := 0
		for _, k := range known {
			match |= subtle.ConstantTimeCompare(hash, k)
		}
		if match != 1 {
			next(pipeline.NewHTTPError(http.StatusUnauthorized, "Invalid API key"))
			return
		}
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), AuthKeyHashKey, string(hash)))
		next(nil)
	}
}

// GetAuthKeyHash retrieves the authenticated key hash from context.
// Returns an empty string if the request was not authenticated.
func GetAuthKeyHash(ctx context.Context) string {
	if h, ok := ctx.Value(AuthKeyHashKey).(string); ok {
		return h
	}
	return ""
}

// bearerAuthFactory takes key hashes as string params or as the key_hashes
// entry of an options map.
func bearerAuthFactory(params ...any) (any, error) {
	if v, ok := option(params, 0, "key_hashes"); ok {
		list, ok := v.([]any)
		if !ok {
			return nil, fmt.Errorf("key_hashes: want list, got %T", v)
		}
		params = list
	}
	hashes, err := stringsParam(params, 0)
	if err != nil {
		return nil, err
	}
	if len(hashes) == 0 {
		return nil, errors.New("bearerAuth: at least one key hash is required")
	}
	return BearerAuth(hashes...), nil
}
