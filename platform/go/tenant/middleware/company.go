package middleware

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	platformauth "github.com/zenGate-Global/palmyra-qbsync/platform/go/auth"
	"github.com/zenGate-Global/palmyra-qbsync/platform/go/tenant"
)

// Resolver maps credentials onto a company. Implemented by the companies service.
type Resolver interface {
	ResolveCompany(ctx context.Context, companyID uuid.UUID) (tenant.Company, error)
	ResolveCompanyByOwner(ctx context.Context, ownerUserID string) (tenant.Company, error)
}

// Config controls middleware behavior.
type Config struct {
	// Optional small in-memory TTL cache to avoid DB hits; zero disables caching.
	CacheTTL time.Duration
}

// WithCompany attaches tenant.Company to the context. The tenant claim wins when
// present; otherwise the company owned by the authenticated user is used.
func WithCompany(resolver Resolver, cfg Config) func(http.Handler) http.Handler {
	if resolver == nil {
		panic("company middleware: resolver is required")
	}

	var cache *companyCache
	if cfg.CacheTTL > 0 {
		cache = newCompanyCache(cfg.CacheTTL)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			creds, ok := platformauth.UserFromContext(r.Context())
			if !ok || creds == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			var (
				key     string
				resolve func() (tenant.Company, error)
			)
			if creds.TenantID != nil && *creds.TenantID != "" {
				id, err := uuid.Parse(*creds.TenantID)
				if err != nil {
					http.Error(w, "invalid company id", http.StatusUnauthorized)
					return
				}
				key = "id:" + id.String()
				resolve = func() (tenant.Company, error) { return resolver.ResolveCompany(r.Context(), id) }
			} else {
				key = "owner:" + creds.Id
				resolve = func() (tenant.Company, error) { return resolver.ResolveCompanyByOwner(r.Context(), creds.Id) }
			}

			if cached, ok := cache.get(key); ok {
				next.ServeHTTP(w, r.WithContext(tenant.WithCompany(r.Context(), cached)))
				return
			}

			company, err := resolve()
			if err != nil {
				if errors.Is(err, tenant.ErrCompanyNotFound) {
					http.Error(w, "company not found", http.StatusNotFound)
					return
				}
				http.Error(w, "company lookup failed", http.StatusInternalServerError)
				return
			}

			cache.put(key, company)
			next.ServeHTTP(w, r.WithContext(tenant.WithCompany(r.Context(), company)))
		})
	}
}

// companyCache drops an expired entry on read and sweeps the whole map at most
// once per TTL on write, so keys that are never read again do not accumulate.
type companyCache struct {
	mu        sync.Mutex
	ttl       time.Duration
	items     map[string]cacheItem
	nextSweep time.Time
	now       func() time.Time
}

type cacheItem struct {
	company   tenant.Company
	expiresAt time.Time
}

func newCompanyCache(ttl time.Duration) *companyCache {
	return &companyCache{ttl: ttl, items: make(map[string]cacheItem), now: time.Now}
}

func (c *companyCache) get(key string) (tenant.Company, bool) {
	if c == nil {
		return tenant.Company{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	item, ok := c.items[key]
	if !ok {
		return tenant.Company{}, false
	}
	if c.now().After(item.expiresAt) {
		delete(c.items, key)
		return tenant.Company{}, false
	}
	return item.company, true
}

func (c *companyCache) put(key string, company tenant.Company) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if now.After(c.nextSweep) {
		for k, item := range c.items {
			if now.After(item.expiresAt) {
				delete(c.items, k)
			}
		}
		c.nextSweep = now.Add(c.ttl)
	}
	c.items[key] = cacheItem{company: company, expiresAt: now.Add(c.ttl)}
}
