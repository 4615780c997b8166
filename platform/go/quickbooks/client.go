package quickbooks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	maxTokenBodyBytes = 1 << 20
	maxQueryBodyBytes = 32 << 20
	statePrefix       = "company_"
)

// HTTPDoer is the subset of *http.Client used by Client.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// TokenSet is the token endpoint payload.
type TokenSet struct {
	AccessToken           string `json:"access_token"`
	RefreshToken          string `json:"refresh_token"`
	TokenType             string `json:"token_type"`
	ExpiresIn             int64  `json:"expires_in"`
	RefreshTokenExpiresIn int64  `json:"x_refresh_token_expires_in"`
}

// Client talks to the Intuit OAuth and accounting query endpoints. It holds no token state.
type Client struct {
	cfg  Config
	http HTTPDoer
}

// NewClient validates cfg and builds a client. A nil doer falls back to an http.Client.
func NewClient(cfg Config, doer HTTPDoer) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if doer == nil {
		doer = &http.Client{}
	}
	return &Client{cfg: cfg, http: doer}, nil
}

// State encodes the company id into the OAuth state parameter.
func State(companyID uuid.UUID) string {
	return statePrefix + companyID.String()
}

// ParseState reverses State.
func ParseState(state string) (uuid.UUID, error) {
	raw, ok := strings.CutPrefix(strings.TrimSpace(state), statePrefix)
	if !ok || raw == "" {
		return uuid.Nil, fmt.Errorf("state %q has no company prefix", state)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("state %q: %w", state, err)
	}
	return id, nil
}

// AuthorizationURL builds the consent URL the user is redirected to.
func (c *Client) AuthorizationURL(state string) string {
	params := url.Values{}
	params.Set("client_id", c.cfg.ClientID)
	params.Set("scope", AccountingScope)
	params.Set("redirect_uri", c.cfg.RedirectURI)
	params.Set("response_type", "code")
	params.Set("state", state)

	sep := "?"
	if strings.Contains(c.cfg.AuthURL, "?") {
		sep = "&"
	}
	return c.cfg.AuthURL + sep + params.Encode()
}

// ExchangeCode trades an authorization code for a token pair.
func (c *Client) ExchangeCode(ctx context.Context, code string) (TokenSet, error) {
	if strings.TrimSpace(code) == "" {
		return TokenSet{}, fmt.Errorf("%w: authorization code is required", ErrTokenRejected)
	}
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", c.cfg.RedirectURI)
	return c.tokenRequest(ctx, "exchange code", form)
}

// Refresh trades a refresh token for a new access token. Intuit may or may not rotate the refresh token.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (TokenSet, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return TokenSet{}, fmt.Errorf("%w: refresh token is empty", ErrTokenRejected)
	}
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	return c.tokenRequest(ctx, "refresh token", form)
}

func (c *Client) tokenRequest(ctx context.Context, op string, form url.Values) (TokenSet, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.HTTPTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return TokenSet{}, fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)

	resp, err := c.http.Do(req)
	if err != nil {
		return TokenSet{}, fmt.Errorf("%w: %s: %w", ErrTransport, op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenBodyBytes))
	if err != nil {
		return TokenSet{}, fmt.Errorf("%w: %s: read body: %w", ErrTransport, op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		code, msg := tokenError(body)
		return TokenSet{}, &APIError{Op: op, StatusCode: resp.StatusCode, Message: msg, kind: classifyTokenFailure(resp.StatusCode, code)}
	}

	var tokens TokenSet
	if err := json.Unmarshal(body, &tokens); err != nil {
		return TokenSet{}, fmt.Errorf("%w: %s: %w", ErrMalformedResponse, op, err)
	}
	if tokens.AccessToken == "" {
		return TokenSet{}, fmt.Errorf("%w: %s: response has no access_token", ErrTokenRejected, op)
	}
	return tokens, nil
}

// DateRange bounds a TxnDate filter; both ends inclusive.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Query selects every object of one entity type, optionally filtered by TxnDate.
type Query struct {
	Entity string
	Range  *DateRange
}

const dateLayout = "2006-01-02"

func (q Query) String() string {
	s := "SELECT * FROM " + q.Entity
	if q.Range != nil {
		s += fmt.Sprintf(" WHERE TxnDate >= '%s' AND TxnDate <= '%s'",
			q.Range.Start.Format(dateLayout), q.Range.End.Format(dateLayout))
	}
	return s
}

// Query runs one accounting query and returns the raw records of QueryResponse.<Entity>.
// An absent entity key yields an empty slice.
func (c *Client) Query(ctx context.Context, realmID, accessToken string, q Query) ([]json.RawMessage, error) {
	if strings.TrimSpace(realmID) == "" {
		return nil, errors.New("realm id is required")
	}
	if strings.TrimSpace(q.Entity) == "" {
		return nil, errors.New("entity is required")
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.HTTPTimeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/%s/query?%s", c.cfg.APIBaseURL, url.PathEscape(realmID),
		url.Values{"query": []string{q.String()}}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("query %s: build request: %w", q.Entity, err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: query %s: %w", ErrTransport, q.Entity, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxQueryBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: query %s: read body: %w", ErrTransport, q.Entity, err)
	}

	op := "query " + q.Entity
	switch {
	case resp.StatusCode == http.StatusForbidden:
		return nil, &APIError{Op: op, StatusCode: resp.StatusCode, Message: faultMessage(body), kind: ErrForbidden}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, &APIError{Op: op, StatusCode: resp.StatusCode, Message: faultMessage(body), kind: ErrTransport}
	}

	var envelope struct {
		QueryResponse map[string]json.RawMessage `json:"QueryResponse"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformedResponse, op, err)
	}

	raw, ok := envelope.QueryResponse[q.Entity]
	if !ok || len(raw) == 0 || string(raw) == "null" {
		return []json.RawMessage{}, nil
	}

	var records []json.RawMessage
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformedResponse, op, err)
	}
	return records, nil
}

// classifyTokenFailure decides whether a failed token call means the grant is
// gone (re-auth required) or the call may succeed later. Throttling and
// timeouts are never a rejection.
func classifyTokenFailure(status int, code string) error {
	switch status {
	case http.StatusTooManyRequests, http.StatusRequestTimeout:
		return ErrTransport
	}
	switch code {
	case "invalid_grant", "invalid_client", "unauthorized_client":
		return ErrTokenRejected
	}
	if code == "" && (status == http.StatusBadRequest || status == http.StatusUnauthorized) {
		return ErrTokenRejected
	}
	return ErrTransport
}

// tokenError returns the OAuth error code and a printable message.
func tokenError(body []byte) (string, string) {
	var payload struct {
		Error       string `json:"error"`
		Description string `json:"error_description"`
	}
	if json.Unmarshal(body, &payload) != nil {
		return "", ""
	}
	if payload.Description != "" {
		return payload.Error, payload.Error + ": " + payload.Description
	}
	return payload.Error, payload.Error
}

func faultMessage(body []byte) string {
	var payload struct {
		Fault struct {
			Error []struct {
				Message string `json:"Message"`
				Detail  string `json:"Detail"`
			} `json:"Error"`
		} `json:"Fault"`
	}
	if json.Unmarshal(body, &payload) != nil || len(payload.Fault.Error) == 0 {
		return ""
	}
	first := payload.Fault.Error[0]
	if first.Detail != "" {
		return first.Message + ": " + first.Detail
	}
	return first.Message
}
