package quickbooks

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()

	client, err := NewClient(Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURI:  "https://app.example.com/api/v1/quickbooks/callback",
		TokenURL:     srv.URL + "/oauth2/v1/tokens/bearer",
		APIBaseURL:   srv.URL + "/v3/company",
		HTTPTimeout:  2 * time.Second,
	}, srv.Client())
	require.NoError(t, err)
	return client
}

func TestConfigValidateDefaults(t *testing.T) {
	t.Parallel()

	cfg := Config{ClientID: "id", ClientSecret: "secret", RedirectURI: "https://x/cb"}
	require.NoError(t, cfg.Validate())
	require.Equal(t, defaultAuthURL, cfg.AuthURL)
	require.Equal(t, defaultTokenURL, cfg.TokenURL)
	require.Equal(t, sandboxAPIBaseURL, cfg.APIBaseURL)

	prod := Config{ClientID: "id", ClientSecret: "secret", RedirectURI: "https://x/cb", Environment: "production"}
	require.NoError(t, prod.Validate())
	require.Equal(t, productionAPIBaseURL, prod.APIBaseURL)

	bad := Config{ClientID: "id", ClientSecret: "secret", RedirectURI: "https://x/cb", Environment: "staging"}
	require.Error(t, bad.Validate())

	require.Error(t, (&Config{}).Validate())
}

func TestAuthorizationURL(t *testing.T) {
	t.Parallel()

	client, err := NewClient(Config{ClientID: "abc", ClientSecret: "s", RedirectURI: "https://app/cb"}, nil)
	require.NoError(t, err)

	companyID := uuid.New()
	raw := client.AuthorizationURL(State(companyID))

	parsed, err := url.Parse(raw)
	require.NoError(t, err)
	require.Equal(t, "appcenter.intuit.com", parsed.Host)
	q := parsed.Query()
	require.Equal(t, "abc", q.Get("client_id"))
	require.Equal(t, AccountingScope, q.Get("scope"))
	require.Equal(t, "https://app/cb", q.Get("redirect_uri"))
	require.Equal(t, "code", q.Get("response_type"))
	require.Equal(t, "company_"+companyID.String(), q.Get("state"))

	back, err := ParseState(q.Get("state"))
	require.NoError(t, err)
	require.Equal(t, companyID, back)

	_, err = ParseState("tenant_123")
	require.Error(t, err)
	_, err = ParseState("company_not-a-uuid")
	require.Error(t, err)
}

func TestExchangeCodeSendsBasicAuthForm(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		require.Equal(t, "client-id", user)
		require.Equal(t, "client-secret", pass)
		require.NoError(t, r.ParseForm())
		require.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
		require.Equal(t, "the-code", r.PostForm.Get("code"))
		require.Equal(t, "https://app.example.com/api/v1/quickbooks/callback", r.PostForm.Get("redirect_uri"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at","refresh_token":"rt","token_type":"bearer","expires_in":3600,"x_refresh_token_expires_in":8726400}`))
	}))
	defer srv.Close()

	tokens, err := newTestClient(t, srv).ExchangeCode(context.Background(), "the-code")
	require.NoError(t, err)
	require.Equal(t, "at", tokens.AccessToken)
	require.Equal(t, "rt", tokens.RefreshToken)
	require.EqualValues(t, 3600, tokens.ExpiresIn)
}

func TestTokenErrorsAreClassified(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{name: "invalid grant", status: http.StatusBadRequest, body: `{"error":"invalid_grant"}`, want: ErrTokenRejected},
		{name: "unauthorized client", status: http.StatusUnauthorized, body: `{"error":"invalid_client"}`, want: ErrTokenRejected},
		{name: "bare unauthorized", status: http.StatusUnauthorized, body: ``, want: ErrTokenRejected},
		{name: "invalid request", status: http.StatusBadRequest, body: `{"error":"invalid_request"}`, want: ErrTransport},
		{name: "throttled", status: http.StatusTooManyRequests, body: `{"error":"invalid_grant"}`, want: ErrTransport},
		{name: "throttled without body", status: http.StatusTooManyRequests, body: ``, want: ErrTransport},
		{name: "request timeout", status: http.StatusRequestTimeout, body: ``, want: ErrTransport},
		{name: "server error", status: http.StatusBadGateway, body: `oops`, want: ErrTransport},
		{name: "missing access token", status: http.StatusOK, body: `{"refresh_token":"rt"}`, want: ErrTokenRejected},
		{name: "garbage body", status: http.StatusOK, body: `{`, want: ErrMalformedResponse},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := newTestClient(t, srv).Refresh(context.Background(), "rt")
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestRefreshRejectsEmptyToken(t *testing.T) {
	t.Parallel()

	client, err := NewClient(Config{ClientID: "a", ClientSecret: "b", RedirectURI: "c"}, nil)
	require.NoError(t, err)
	_, err = client.Refresh(context.Background(), "")
	require.ErrorIs(t, err, ErrTokenRejected)
}

func TestQueryString(t *testing.T) {
	t.Parallel()

	require.Equal(t, "SELECT * FROM Account", Query{Entity: "Account"}.String())

	q := Query{Entity: "Transaction", Range: &DateRange{
		Start: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
	}}
	require.Equal(t, "SELECT * FROM Transaction WHERE TxnDate >= '2024-03-01' AND TxnDate <= '2024-03-31'", q.String())
}

func TestQueryReturnsEntityRecords(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v3/company/realm-9/query", r.URL.Path)
		require.Equal(t, "SELECT * FROM Account", r.URL.Query().Get("query"))
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		require.Equal(t, "application/json", r.Header.Get("Accept"))
		_, _ = w.Write([]byte(`{"QueryResponse":{"Account":[{"Id":"1","Name":"Checking"},{"Id":"2","Name":"Savings"}],"startPosition":1,"maxResults":2},"time":"2024-03-01T00:00:00Z"}`))
	}))
	defer srv.Close()

	records, err := newTestClient(t, srv).Query(context.Background(), "realm-9", "tok", Query{Entity: "Account"})
	require.NoError(t, err)
	require.Len(t, records, 2)

	var first map[string]any
	require.NoError(t, json.Unmarshal(records[0], &first))
	require.Equal(t, "Checking", first["Name"])
}

func TestQueryEmptyResponse(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"QueryResponse":{},"time":"2024-03-01T00:00:00Z"}`))
	}))
	defer srv.Close()

	records, err := newTestClient(t, srv).Query(context.Background(), "realm", "tok", Query{Entity: "Bill"})
	require.NoError(t, err)
	require.NotNil(t, records)
	require.Empty(t, records)
}

func TestQueryErrorClassification(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{name: "forbidden", status: http.StatusForbidden, body: `{"Fault":{"Error":[{"Message":"AuthorizationFailure"}]}}`, want: ErrForbidden},
		{name: "unauthorized", status: http.StatusUnauthorized, body: `{}`, want: ErrTransport},
		{name: "server", status: http.StatusInternalServerError, body: ``, want: ErrTransport},
		{name: "malformed", status: http.StatusOK, body: `not json`, want: ErrMalformedResponse},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := newTestClient(t, srv).Query(context.Background(), "realm", "tok", Query{Entity: "Invoice"})
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestQueryTimeoutIsTransport(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	client, err := NewClient(Config{
		ClientID:     "a",
		ClientSecret: "b",
		RedirectURI:  "c",
		APIBaseURL:   srv.URL,
		HTTPTimeout:  50 * time.Millisecond,
	}, srv.Client())
	require.NoError(t, err)

	_, err = client.Query(context.Background(), "realm", "tok", Query{Entity: "Account"})
	require.ErrorIs(t, err, ErrTransport)
}
