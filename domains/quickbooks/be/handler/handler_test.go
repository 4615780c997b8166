package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/zenGate-Global/palmyra-qbsync/domains/quickbooks/be/service"
	"github.com/zenGate-Global/palmyra-qbsync/platform/go/tenant"
)

type mockService struct {
	authURLFn      func(ctx context.Context, companyID uuid.UUID) (string, error)
	completeFn     func(ctx context.Context, in service.CallbackInput) (service.Connection, error)
	statusFn       func(ctx context.Context, companyID uuid.UUID) (service.Status, error)
	disconnectFn   func(ctx context.Context, companyID uuid.UUID, purge bool) (service.DisconnectResult, error)
	syncEntityFn   func(ctx context.Context, companyID uuid.UUID, entity service.EntityType) (service.SyncResult, error)
	syncTxnFn      func(ctx context.Context, companyID uuid.UUID) (service.SyncResult, error)
	syncAllFn      func(ctx context.Context, companyID uuid.UUID) (service.SyncAllResult, error)
	accountsFn     func(ctx context.Context, companyID uuid.UUID) ([]service.AccountView, error)
	transactionsFn func(ctx context.Context, companyID uuid.UUID) ([]service.TransactionView, error)
	allFn          func(ctx context.Context, companyID uuid.UUID) (service.AllData, error)
	logsFn         func(ctx context.Context, companyID uuid.UUID, limit int) ([]service.SyncLog, error)
}

func (m *mockService) AuthorizationURL(ctx context.Context, companyID uuid.UUID) (string, error) {
	if m.authURLFn == nil {
		panic("authURLFn not configured")
	}
	return m.authURLFn(ctx, companyID)
}

func (m *mockService) CompleteAuthorization(ctx context.Context, in service.CallbackInput) (service.Connection, error) {
	if m.completeFn == nil {
		panic("completeFn not configured")
	}
	return m.completeFn(ctx, in)
}

func (m *mockService) Status(ctx context.Context, companyID uuid.UUID) (service.Status, error) {
	if m.statusFn == nil {
		panic("statusFn not configured")
	}
	return m.statusFn(ctx, companyID)
}

func (m *mockService) Disconnect(ctx context.Context, companyID uuid.UUID, purge bool) (service.DisconnectResult, error) {
	if m.disconnectFn == nil {
		panic("disconnectFn not configured")
	}
	return m.disconnectFn(ctx, companyID, purge)
}

func (m *mockService) SyncEntity(ctx context.Context, companyID uuid.UUID, entity service.EntityType) (service.SyncResult, error) {
	if m.syncEntityFn == nil {
		panic("syncEntityFn not configured")
	}
	return m.syncEntityFn(ctx, companyID, entity)
}

func (m *mockService) SyncTransactions(ctx context.Context, companyID uuid.UUID) (service.SyncResult, error) {
	if m.syncTxnFn == nil {
		panic("syncTxnFn not configured")
	}
	return m.syncTxnFn(ctx, companyID)
}

func (m *mockService) SyncAll(ctx context.Context, companyID uuid.UUID) (service.SyncAllResult, error) {
	if m.syncAllFn == nil {
		panic("syncAllFn not configured")
	}
	return m.syncAllFn(ctx, companyID)
}

func (m *mockService) ListAccounts(ctx context.Context, companyID uuid.UUID) ([]service.AccountView, error) {
	if m.accountsFn == nil {
		panic("accountsFn not configured")
	}
	return m.accountsFn(ctx, companyID)
}

func (m *mockService) ListTransactions(ctx context.Context, companyID uuid.UUID) ([]service.TransactionView, error) {
	if m.transactionsFn == nil {
		panic("transactionsFn not configured")
	}
	return m.transactionsFn(ctx, companyID)
}

func (m *mockService) ListAll(ctx context.Context, companyID uuid.UUID) (service.AllData, error) {
	if m.allFn == nil {
		panic("allFn not configured")
	}
	return m.allFn(ctx, companyID)
}

func (m *mockService) ListSyncLogs(ctx context.Context, companyID uuid.UUID, limit int) ([]service.SyncLog, error) {
	if m.logsFn == nil {
		panic("logsFn not configured")
	}
	return m.logsFn(ctx, companyID, limit)
}

var testCompany = tenant.Company{ID: uuid.MustParse("6f1c8e0e-6f57-4c1e-8d0c-3c4b7a1d2e90"), Name: "Acme Ltd"}

func newRouter(t *testing.T, svc Service, withCompany bool) http.Handler {
	t.Helper()

	h := New(svc, zaptest.NewLogger(t), Config{FrontendURL: "https://app.example.com/integrations/quickbooks"})
	r := chi.NewRouter()
	h.PublicRoutes(r)
	r.Group(func(r chi.Router) {
		if withCompany {
			r.Use(func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
					next.ServeHTTP(w, req.WithContext(tenant.WithCompany(req.Context(), testCompany)))
				})
			})
		}
		h.Routes(r)
	})
	return r
}

func serve(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) problem {
	t.Helper()
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	var p problem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	return p
}

func TestAuthorizeReturnsURL(t *testing.T) {
	t.Parallel()

	svc := &mockService{authURLFn: func(ctx context.Context, companyID uuid.UUID) (string, error) {
		require.Equal(t, testCompany.ID, companyID)
		return "https://appcenter.intuit.com/connect/oauth2?state=company_x", nil
	}}

	rec := serve(t, newRouter(t, svc, true), http.MethodGet, "/quickbooks/auth")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"authorization_url":"https://appcenter.intuit.com/connect/oauth2?state=company_x"}`, rec.Body.String())
}

func TestRoutesRequireCompany(t *testing.T) {
	t.Parallel()

	rec := serve(t, newRouter(t, &mockService{}, false), http.MethodGet, "/quickbooks/status")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "unauthorized", decodeProblem(t, rec).Kind)
}

func TestCallbackRedirects(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		query     string
		err       error
		wantKey   string
		wantValue string
	}{
		{name: "missing params", query: "code=abc&state=company_1", wantKey: "qb_error", wantValue: "missing_params"},
		{name: "provider denied", query: "error=access_denied&state=company_1", wantKey: "qb_error", wantValue: "access_denied"},
		{name: "exchange failed", query: "code=abc&realmId=9&state=s", err: fmt.Errorf("%w: invalid_grant", service.ErrOAuthExchange), wantKey: "qb_error", wantValue: service.KindOAuthExchange},
		{name: "unknown company", query: "code=abc&realmId=9&state=s", err: service.ErrCompanyNotFound, wantKey: "qb_error", wantValue: service.KindCompanyNotFound},
		{name: "connected", query: "code=abc&realmId=9&state=s", wantKey: "qb_connected", wantValue: "true"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			svc := &mockService{completeFn: func(ctx context.Context, in service.CallbackInput) (service.Connection, error) {
				require.Equal(t, "abc", in.Code)
				require.Equal(t, "9", in.RealmID)
				return service.Connection{}, tc.err
			}}

			// no company middleware: the callback is public
			rec := serve(t, newRouter(t, svc, false), http.MethodGet, "/quickbooks/callback?"+tc.query)
			require.Equal(t, http.StatusFound, rec.Code)

			loc, err := url.Parse(rec.Header().Get("Location"))
			require.NoError(t, err)
			require.Equal(t, "app.example.com", loc.Host)
			require.Equal(t, "/integrations/quickbooks", loc.Path)
			require.Equal(t, tc.wantValue, loc.Query().Get(tc.wantKey))
		})
	}
}

func TestStatus(t *testing.T) {
	t.Parallel()

	synced := time.Date(2024, 3, 31, 10, 0, 0, 0, time.UTC)
	connID := uuid.New()
	svc := &mockService{statusFn: func(ctx context.Context, companyID uuid.UUID) (service.Status, error) {
		return service.Status{
			Connected:   true,
			ID:          connID,
			CompanyName: "Acme Ltd",
			RealmID:     "realm-1",
			IsActive:    true,
			LastSynced:  &synced,
			CreatedAt:   synced,
		}, nil
	}}

	rec := serve(t, newRouter(t, svc, true), http.MethodGet, "/quickbooks/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, true, body["connected"])
	require.Equal(t, connID.String(), body["id"])
	require.Equal(t, "realm-1", body["realm_id"])
	require.Equal(t, "2024-03-31T10:00:00Z", body["last_synced"])

	notConnected := &mockService{statusFn: func(ctx context.Context, companyID uuid.UUID) (service.Status, error) {
		return service.Status{CompanyName: "Acme Ltd"}, nil
	}}
	rec = serve(t, newRouter(t, notConnected, true), http.MethodGet, "/quickbooks/status")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"connected":false,"company_name":"Acme Ltd","is_active":false,"last_synced":null}`, rec.Body.String())
}

func TestSyncErrorMapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err    error
		status int
		kind   string
	}{
		{err: service.ErrNoConnection, status: http.StatusBadRequest, kind: service.KindNoConnection},
		{err: fmt.Errorf("%w: invalid_grant", service.ErrOAuthRefresh), status: http.StatusUnauthorized, kind: service.KindReauthRequired},
		{err: fmt.Errorf("%w: 403", service.ErrForbidden), status: http.StatusForbidden, kind: service.KindForbidden},
		{err: fmt.Errorf("%w: 502", service.ErrTransport), status: http.StatusInternalServerError, kind: service.KindTransport},
		{err: service.ErrSyncInProgress, status: http.StatusConflict, kind: service.KindSyncInProgress},
		{err: errors.New("db down"), status: http.StatusInternalServerError, kind: service.KindInternal},
	}

	for _, tc := range cases {
		t.Run(tc.kind, func(t *testing.T) {
			t.Parallel()

			svc := &mockService{syncEntityFn: func(ctx context.Context, companyID uuid.UUID, entity service.EntityType) (service.SyncResult, error) {
				require.Equal(t, service.EntityAccount, entity)
				return service.SyncResult{}, tc.err
			}}

			rec := serve(t, newRouter(t, svc, true), http.MethodPost, "/quickbooks/sync/accounts")
			require.Equal(t, tc.status, rec.Code)
			p := decodeProblem(t, rec)
			require.Equal(t, tc.kind, p.Kind)
			require.Equal(t, tc.status, p.Status)
			if tc.kind == service.KindInternal {
				require.NotContains(t, p.Detail, "db down")
			}
		})
	}
}

func TestSyncEntityRoute(t *testing.T) {
	t.Parallel()

	var got service.EntityType
	svc := &mockService{syncEntityFn: func(ctx context.Context, companyID uuid.UUID, entity service.EntityType) (service.SyncResult, error) {
		got = entity
		return service.SyncResult{Entity: entity, Upserted: 4, Skipped: 1}, nil
	}}
	router := newRouter(t, svc, true)

	rec := serve(t, router, http.MethodPost, "/quickbooks/sync/invoices")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, service.EntityInvoice, got)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.EqualValues(t, 4, body["synced"])
	require.EqualValues(t, 1, body["skipped"])
	require.Equal(t, "Synced 4 invoices", body["message"])

	rec = serve(t, router, http.MethodPost, "/quickbooks/sync/estimates")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, service.KindUnknownEntity, decodeProblem(t, rec).Kind)
}

func TestSyncTransactionsRoute(t *testing.T) {
	t.Parallel()

	svc := &mockService{syncTxnFn: func(ctx context.Context, companyID uuid.UUID) (service.SyncResult, error) {
		return service.SyncResult{Entity: service.EntityTransaction, Upserted: 2}, nil
	}}

	rec := serve(t, newRouter(t, svc, true), http.MethodPost, "/quickbooks/sync/transactions")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"synced":2`)
}

func TestSyncAllReportsPerEntityErrors(t *testing.T) {
	t.Parallel()

	svc := &mockService{syncAllFn: func(ctx context.Context, companyID uuid.UUID) (service.SyncAllResult, error) {
		return service.SyncAllResult{
			Entities: []service.EntityResult{
				{Entity: service.EntityAccount, Upserted: 3},
				{Entity: service.EntityInvoice, Err: fmt.Errorf("%w: AuthorizationFailure", service.ErrForbidden)},
			},
			SyncedAt: time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
		}, nil
	}}

	rec := serve(t, newRouter(t, svc, true), http.MethodPost, "/quickbooks/sync/all")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Message string            `json:"message"`
		Results map[string]any    `json:"results"`
		Errors  map[string]string `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "Sync completed with errors", body.Message)
	require.EqualValues(t, 3, body.Results["Account"])
	require.Equal(t, "Error: quickbooks access forbidden: AuthorizationFailure", body.Results["Invoice"])
	require.Equal(t, service.KindForbidden, body.Errors["Invoice"])
}

func TestDisconnectPurgeFlag(t *testing.T) {
	t.Parallel()

	var purged bool
	svc := &mockService{disconnectFn: func(ctx context.Context, companyID uuid.UUID, purge bool) (service.DisconnectResult, error) {
		purged = purge
		return service.DisconnectResult{Purged: 7}, nil
	}}
	router := newRouter(t, svc, true)

	rec := serve(t, router, http.MethodDelete, "/quickbooks/disconnect?purge=true")
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, purged)
	require.Contains(t, rec.Body.String(), `"purged_records":7`)

	rec = serve(t, router, http.MethodDelete, "/quickbooks/disconnect?purge=maybe")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, service.KindValidation, decodeProblem(t, rec).Kind)
}

func TestReadProjections(t *testing.T) {
	t.Parallel()

	svc := &mockService{
		accountsFn: func(ctx context.Context, companyID uuid.UUID) ([]service.AccountView, error) {
			return []service.AccountView{{QBID: "1", Name: "Checking", Type: "Bank", Balance: service.Money(decimal.NewFromInt(150))}}, nil
		},
		transactionsFn: func(ctx context.Context, companyID uuid.UUID) ([]service.TransactionView, error) {
			return nil, service.ErrNoConnection
		},
		allFn: func(ctx context.Context, companyID uuid.UUID) (service.AllData, error) {
			return service.AllData{}, nil
		},
	}
	router := newRouter(t, svc, true)

	rec := serve(t, router, http.MethodGet, "/quickbooks/accounts")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"balance":150.00`)

	rec = serve(t, router, http.MethodGet, "/quickbooks/transactions")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(t, router, http.MethodGet, "/quickbooks/data/all")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestSyncLogsLimit(t *testing.T) {
	t.Parallel()

	var gotLimit int
	svc := &mockService{logsFn: func(ctx context.Context, companyID uuid.UUID, limit int) ([]service.SyncLog, error) {
		gotLimit = limit
		return []service.SyncLog{{ID: uuid.New(), SyncType: "all", Status: service.SyncStatusCompleted, TriggeredBy: "user-1"}}, nil
	}}
	router := newRouter(t, svc, true)

	rec := serve(t, router, http.MethodGet, "/quickbooks/sync/logs?limit=5")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 5, gotLimit)
	require.Contains(t, rec.Body.String(), `"triggered_by":"user-1"`)

	rec = serve(t, router, http.MethodGet, "/quickbooks/sync/logs?limit=-1")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
