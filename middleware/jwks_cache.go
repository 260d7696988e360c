package middleware

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/NomadCrew/nomad-crew-payments/logger"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

// JWKSCache holds the Supabase signing keys and refetches them after ttl.
type JWKSCache struct {
	mu        sync.RWMutex
	refreshMu sync.Mutex
	keys      jwk.Set
	expiresAt time.Time

	jwksURL    string
	apiKey     string
	ttl        time.Duration
	httpClient *http.Client
}

func NewJWKSCache(jwksURL, apiKey string, ttl time.Duration, httpClient *http.Client) *JWKSCache {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &JWKSCache{
		jwksURL:    jwksURL,
		apiKey:     apiKey,
		ttl:        ttl,
		httpClient: httpClient,
	}
}

// GetKey returns the key with the given kid, refreshing the set when it has
// expired or does not know the kid yet.
func (c *JWKSCache) GetKey(ctx context.Context, kid string) (jwk.Key, error) {
	c.mu.RLock()
	keys, fresh := c.keys, time.Now().Before(c.expiresAt)
	c.mu.RUnlock()

	if keys != nil && fresh {
		if key, ok := keys.LookupKeyID(kid); ok {
			return key, nil
		}
	}

	keys, err := c.refresh(ctx, keys)
	if err != nil {
		return nil, err
	}
	key, ok := keys.LookupKeyID(kid)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJWKSKeyNotFound, kid)
	}
	return key, nil
}

// refresh fetches the key set unless another caller replaced seen while
// this one waited for the lock.
func (c *JWKSCache) refresh(ctx context.Context, seen jwk.Set) (jwk.Set, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	c.mu.RLock()
	current := c.keys
	c.mu.RUnlock()
	if current != nil && current != seen {
		return current, nil
	}

	log := logger.GetLogger()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.jwksURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create JWKS request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Errorw("Failed to fetch JWKS", "url", c.jwksURL, "error", err)
		return nil, fmt.Errorf("failed to fetch JWKS: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read JWKS response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		log.Errorw("JWKS endpoint returned non-200 status", "status", resp.StatusCode, "url", c.jwksURL)
		return nil, fmt.Errorf("JWKS endpoint returned status %d", resp.StatusCode)
	}

	keys, err := jwk.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse JWKS: %w", err)
	}

	c.mu.Lock()
	c.keys = keys
	c.expiresAt = time.Now().Add(c.ttl)
	c.mu.Unlock()

	log.Infow("JWKS cache refreshed", "keys", keys.Len())
	return keys, nil
}
