package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	platformauth "github.com/zenGate-Global/palmyra-qbsync/platform/go/auth"
	"github.com/zenGate-Global/palmyra-qbsync/platform/go/tenant"
)

type stubResolver struct {
	byID    map[uuid.UUID]tenant.Company
	byOwner map[string]tenant.Company
	calls   atomic.Int32
}

func (s *stubResolver) ResolveCompany(_ context.Context, id uuid.UUID) (tenant.Company, error) {
	s.calls.Add(1)
	c, ok := s.byID[id]
	if !ok {
		return tenant.Company{}, tenant.ErrCompanyNotFound
	}
	return c, nil
}

func (s *stubResolver) ResolveCompanyByOwner(_ context.Context, owner string) (tenant.Company, error) {
	s.calls.Add(1)
	c, ok := s.byOwner[owner]
	if !ok {
		return tenant.Company{}, tenant.ErrCompanyNotFound
	}
	return c, nil
}

func serveWithCreds(t *testing.T, mw func(http.Handler) http.Handler, creds *platformauth.UserCredentials) (*httptest.ResponseRecorder, tenant.Company) {
	t.Helper()

	var got tenant.Company
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, ok := tenant.FromContext(r.Context())
		require.True(t, ok)
		got = c
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if creds != nil {
		req = req.WithContext(platformauth.WithUser(req.Context(), creds))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec, got
}

func TestWithCompanyResolvesClaimThenOwner(t *testing.T) {
	t.Parallel()

	byClaim := tenant.Company{ID: uuid.New(), Name: "Claimed"}
	owned := tenant.Company{ID: uuid.New(), Name: "Owned", OwnerUserID: "u-1"}
	resolver := &stubResolver{
		byID:    map[uuid.UUID]tenant.Company{byClaim.ID: byClaim},
		byOwner: map[string]tenant.Company{"u-1": owned},
	}
	mw := WithCompany(resolver, Config{})

	claim := byClaim.ID.String()
	rec, got := serveWithCreds(t, mw, &platformauth.UserCredentials{Id: "u-1", TenantID: &claim})
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, byClaim.ID, got.ID)

	rec, got = serveWithCreds(t, mw, &platformauth.UserCredentials{Id: "u-1"})
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, owned.ID, got.ID)
}

func TestWithCompanyRejections(t *testing.T) {
	t.Parallel()

	mw := WithCompany(&stubResolver{}, Config{})

	rec, _ := serveWithCreds(t, mw, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	bad := "not-a-uuid"
	rec, _ = serveWithCreds(t, mw, &platformauth.UserCredentials{Id: "u", TenantID: &bad})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = serveWithCreds(t, mw, &platformauth.UserCredentials{Id: "nobody"})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWithCompanyCaches(t *testing.T) {
	t.Parallel()

	owned := tenant.Company{ID: uuid.New(), OwnerUserID: "u-2"}
	resolver := &stubResolver{byOwner: map[string]tenant.Company{"u-2": owned}}
	mw := WithCompany(resolver, Config{CacheTTL: time.Minute})

	for i := 0; i < 3; i++ {
		rec, got := serveWithCreds(t, mw, &platformauth.UserCredentials{Id: "u-2"})
		require.Equal(t, http.StatusNoContent, rec.Code)
		require.Equal(t, owned.ID, got.ID)
	}
	require.EqualValues(t, 1, resolver.calls.Load())
}

func TestCompanyCacheEvictsExpiredEntries(t *testing.T) {
	t.Parallel()

	clock := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	cache := newCompanyCache(time.Minute)
	cache.now = func() time.Time { return clock }

	acme := tenant.Company{ID: uuid.New(), Name: "Acme"}
	cache.put("owner:user-1", acme)
	cache.put("owner:user-2", acme)

	got, ok := cache.get("owner:user-1")
	require.True(t, ok)
	require.Equal(t, acme, got)

	clock = clock.Add(2 * time.Minute)
	_, ok = cache.get("owner:user-1")
	require.False(t, ok)
	require.NotContains(t, cache.items, "owner:user-1")

	// user-2 is never read again; the next write sweeps it.
	cache.put("owner:user-3", acme)
	require.Len(t, cache.items, 1)
	require.Contains(t, cache.items, "owner:user-3")
}
