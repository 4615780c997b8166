package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/oapi-codegen/runtime"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-qbsync/domains/quickbooks/be/service"
	platformlogging "github.com/zenGate-Global/palmyra-qbsync/platform/go/logging"
	"github.com/zenGate-Global/palmyra-qbsync/platform/go/tenant"
)

const problemTypeBase = "https://tcg.land/problems/"

// Service is the QuickBooks surface the HTTP layer depends on.
type Service interface {
	AuthorizationURL(ctx context.Context, companyID uuid.UUID) (string, error)
	CompleteAuthorization(ctx context.Context, in service.CallbackInput) (service.Connection, error)
	Status(ctx context.Context, companyID uuid.UUID) (service.Status, error)
	Disconnect(ctx context.Context, companyID uuid.UUID, purge bool) (service.DisconnectResult, error)
	SyncEntity(ctx context.Context, companyID uuid.UUID, entity service.EntityType) (service.SyncResult, error)
	SyncTransactions(ctx context.Context, companyID uuid.UUID) (service.SyncResult, error)
	SyncAll(ctx context.Context, companyID uuid.UUID) (service.SyncAllResult, error)
	ListAccounts(ctx context.Context, companyID uuid.UUID) ([]service.AccountView, error)
	ListTransactions(ctx context.Context, companyID uuid.UUID) ([]service.TransactionView, error)
	ListAll(ctx context.Context, companyID uuid.UUID) (service.AllData, error)
	ListSyncLogs(ctx context.Context, companyID uuid.UUID, limit int) ([]service.SyncLog, error)
}

// Config holds the browser-facing settings of the OAuth callback.
type Config struct {
	FrontendURL string `env:"QUICKBOOKS_FRONTEND_URL" envDefault:"http://localhost:3000/integrations/quickbooks"`
}

// Handler exposes the QuickBooks service over HTTP.
type Handler struct {
	svc    Service
	logger *zap.Logger
	cfg    Config
}

// New constructs a Handler instance.
func New(svc Service, logger *zap.Logger, cfg Config) *Handler {
	if svc == nil {
		panic("quickbooks service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	if cfg.FrontendURL == "" {
		cfg.FrontendURL = "http://localhost:3000/integrations/quickbooks"
	}
	return &Handler{svc: svc, logger: logger, cfg: cfg}
}

// PublicRoutes registers the endpoints Intuit calls without a bearer token.
func (h *Handler) PublicRoutes(r chi.Router) {
	r.Get("/quickbooks/callback", h.Callback)
}

// Routes registers the authenticated, company-scoped endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/quickbooks/auth", h.Authorize)
	r.Get("/quickbooks/status", h.Status)
	r.Delete("/quickbooks/disconnect", h.Disconnect)

	r.Post("/quickbooks/sync/accounts", h.syncFixed(service.EntityAccount))
	r.Post("/quickbooks/sync/transactions", h.SyncTransactions)
	r.Post("/quickbooks/sync/all", h.SyncAll)
	r.Post("/quickbooks/sync/{entity}", h.SyncEntity)
	r.Get("/quickbooks/sync/logs", h.SyncLogs)

	r.Get("/quickbooks/accounts", h.Accounts)
	r.Get("/quickbooks/transactions", h.Transactions)
	r.Get("/quickbooks/data/all", h.AllData)
}

type authorizeResponse struct {
	AuthorizationURL string `json:"authorization_url"`
}

func (h *Handler) Authorize(w http.ResponseWriter, r *http.Request) {
	company, ok := h.company(w, r)
	if !ok {
		return
	}
	authURL, err := h.svc.AuthorizationURL(r.Context(), company.ID)
	if err != nil {
		h.writeError(w, r, err, "quickbooksAuthorize")
		return
	}
	writeJSON(w, http.StatusOK, authorizeResponse{AuthorizationURL: authURL})
}

// Callback completes the OAuth flow and always answers with a redirect to the frontend.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if providerErr := q.Get("error"); providerErr != "" {
		h.loggerFrom(r.Context()).Warn("quickbooks authorization denied", zap.String("error", providerErr))
		h.redirect(w, r, "qb_error", providerErr)
		return
	}

	in := service.CallbackInput{Code: q.Get("code"), RealmID: q.Get("realmId"), State: q.Get("state")}
	if strings.TrimSpace(in.Code) == "" || strings.TrimSpace(in.RealmID) == "" || strings.TrimSpace(in.State) == "" {
		h.redirect(w, r, "qb_error", "missing_params")
		return
	}

	if _, err := h.svc.CompleteAuthorization(r.Context(), in); err != nil {
		kind := service.KindOf(err)
		h.loggerFrom(r.Context()).Warn("quickbooks callback failed", zap.String("kind", kind), zap.Error(err))
		h.redirect(w, r, "qb_error", kind)
		return
	}
	h.redirect(w, r, "qb_connected", "true")
}

type statusResponse struct {
	Connected   bool       `json:"connected"`
	ID          *string    `json:"id,omitempty"`
	CompanyName string     `json:"company_name,omitempty"`
	RealmID     string     `json:"realm_id,omitempty"`
	IsActive    bool       `json:"is_active"`
	LastError   *string    `json:"last_error,omitempty"`
	LastSynced  *time.Time `json:"last_synced"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
}

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	company, ok := h.company(w, r)
	if !ok {
		return
	}
	st, err := h.svc.Status(r.Context(), company.ID)
	if err != nil {
		h.writeError(w, r, err, "quickbooksStatus")
		return
	}

	resp := statusResponse{Connected: st.Connected, CompanyName: st.CompanyName}
	if st.Connected {
		id := st.ID.String()
		created := st.CreatedAt
		resp.ID = &id
		resp.RealmID = st.RealmID
		resp.IsActive = st.IsActive
		resp.LastError = st.LastError
		resp.LastSynced = st.LastSynced
		resp.CreatedAt = &created
	}
	writeJSON(w, http.StatusOK, resp)
}

type disconnectResponse struct {
	Message string `json:"message"`
	service.DisconnectResult
}

func (h *Handler) Disconnect(w http.ResponseWriter, r *http.Request) {
	company, ok := h.company(w, r)
	if !ok {
		return
	}

	var purge *bool
	if err := runtime.BindQueryParameter("form", true, false, "purge", r.URL.Query(), &purge); err != nil {
		h.writeError(w, r, fmt.Errorf("%w: purge must be a boolean", service.ErrValidation), "quickbooksDisconnect")
		return
	}

	res, err := h.svc.Disconnect(r.Context(), company.ID, purge != nil && *purge)
	if err != nil {
		h.writeError(w, r, err, "quickbooksDisconnect")
		return
	}
	writeJSON(w, http.StatusOK, disconnectResponse{Message: "QuickBooks disconnected", DisconnectResult: res})
}

type syncResponse struct {
	Message string `json:"message"`
	service.SyncResult
}

func (h *Handler) syncFixed(entity service.EntityType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.runSync(w, r, entity, func(ctx context.Context, companyID uuid.UUID) (service.SyncResult, error) {
			return h.svc.SyncEntity(ctx, companyID, entity)
		})
	}
}

func (h *Handler) SyncEntity(w http.ResponseWriter, r *http.Request) {
	entity, err := service.ParseEntity(chi.URLParam(r, "entity"))
	if err != nil {
		h.writeError(w, r, err, "quickbooksSyncEntity")
		return
	}
	h.syncFixed(entity)(w, r)
}

func (h *Handler) SyncTransactions(w http.ResponseWriter, r *http.Request) {
	h.runSync(w, r, service.EntityTransaction, h.svc.SyncTransactions)
}

func (h *Handler) runSync(w http.ResponseWriter, r *http.Request, entity service.EntityType, run func(context.Context, uuid.UUID) (service.SyncResult, error)) {
	company, ok := h.company(w, r)
	if !ok {
		return
	}
	res, err := run(r.Context(), company.ID)
	if err != nil {
		h.writeError(w, r, err, "quickbooksSync"+string(entity))
		return
	}
	writeJSON(w, http.StatusOK, syncResponse{
		Message:    fmt.Sprintf("Synced %d %s", res.Upserted, entity.Slug()),
		SyncResult: res,
	})
}

type syncAllResponse struct {
	Message  string                          `json:"message"`
	Results  map[string]service.EntityResult `json:"results"`
	Errors   map[string]string               `json:"errors,omitempty"`
	SyncedAt time.Time                       `json:"synced_at"`
}

func (h *Handler) SyncAll(w http.ResponseWriter, r *http.Request) {
	company, ok := h.company(w, r)
	if !ok {
		return
	}
	res, err := h.svc.SyncAll(r.Context(), company.ID)
	if err != nil {
		h.writeError(w, r, err, "quickbooksSyncAll")
		return
	}

	resp := syncAllResponse{Message: "Sync completed", Results: res.Counts(), SyncedAt: res.SyncedAt}
	for _, e := range res.Entities {
		if e.Err == nil {
			continue
		}
		if resp.Errors == nil {
			resp.Errors = make(map[string]string)
			resp.Message = "Sync completed with errors"
		}
		resp.Errors[string(e.Entity)] = service.KindOf(e.Err)
	}
	writeJSON(w, http.StatusOK, resp)
}

type syncLogView struct {
	ID            string     `json:"id"`
	SyncType      string     `json:"sync_type"`
	Status        string     `json:"status"`
	RecordsSynced int        `json:"records_synced"`
	ErrorMessage  *string    `json:"error_message,omitempty"`
	TriggeredBy   string     `json:"triggered_by"`
	RequestID     *string    `json:"request_id,omitempty"`
	StartedAt     time.Time  `json:"started_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

func (h *Handler) SyncLogs(w http.ResponseWriter, r *http.Request) {
	company, ok := h.company(w, r)
	if !ok {
		return
	}

	var limit *int
	err := runtime.BindQueryParameter("form", true, false, "limit", r.URL.Query(), &limit)
	if err != nil || (limit != nil && *limit < 1) {
		h.writeError(w, r, fmt.Errorf("%w: limit must be a positive integer", service.ErrValidation), "quickbooksSyncLogs")
		return
	}

	var n int
	if limit != nil {
		n = *limit
	}
	logs, err := h.svc.ListSyncLogs(r.Context(), company.ID, n)
	if err != nil {
		h.writeError(w, r, err, "quickbooksSyncLogs")
		return
	}
	items := make([]syncLogView, 0, len(logs))
	for _, l := range logs {
		items = append(items, syncLogView{
			ID:            l.ID.String(),
			SyncType:      l.SyncType,
			Status:        l.Status,
			RecordsSynced: l.RecordsSynced,
			ErrorMessage:  l.ErrorMessage,
			TriggeredBy:   l.TriggeredBy,
			RequestID:     l.RequestID,
			StartedAt:     l.StartedAt,
			CompletedAt:   l.CompletedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": items})
}

func (h *Handler) Accounts(w http.ResponseWriter, r *http.Request) {
	company, ok := h.company(w, r)
	if !ok {
		return
	}
	accounts, err := h.svc.ListAccounts(r.Context(), company.ID)
	if err != nil {
		h.writeError(w, r, err, "quickbooksAccounts")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"accounts": accounts})
}

func (h *Handler) Transactions(w http.ResponseWriter, r *http.Request) {
	company, ok := h.company(w, r)
	if !ok {
		return
	}
	txns, err := h.svc.ListTransactions(r.Context(), company.ID)
	if err != nil {
		h.writeError(w, r, err, "quickbooksTransactions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": txns})
}

func (h *Handler) AllData(w http.ResponseWriter, r *http.Request) {
	company, ok := h.company(w, r)
	if !ok {
		return
	}
	data, err := h.svc.ListAll(r.Context(), company.ID)
	if err != nil {
		h.writeError(w, r, err, "quickbooksAllData")
		return
	}
	writeJSON(w, http.StatusOK, data)
}

func (h *Handler) company(w http.ResponseWriter, r *http.Request) (tenant.Company, bool) {
	company, ok := tenant.FromContext(r.Context())
	if !ok {
		writeProblem(w, problem{
			Type:   problemTypeBase + "unauthorized",
			Title:  "Unauthorized",
			Status: http.StatusUnauthorized,
			Detail: "no company bound to the request",
			Kind:   "unauthorized",
		})
		return tenant.Company{}, false
	}
	return company, true
}

func (h *Handler) redirect(w http.ResponseWriter, r *http.Request, key, value string) {
	target, err := url.Parse(h.cfg.FrontendURL)
	if err != nil {
		h.loggerFrom(r.Context()).Error("invalid frontend url", zap.String("url", h.cfg.FrontendURL), zap.Error(err))
		http.Error(w, "invalid frontend url", http.StatusInternalServerError)
		return
	}
	q := target.Query()
	q.Set(key, value)
	target.RawQuery = q.Encode()
	http.Redirect(w, r, target.String(), http.StatusFound)
}

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
	Kind   string `json:"kind"`
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error, op string) {
	kind := service.KindOf(err)
	status, title := classify(kind)

	detail := err.Error()
	if kind == service.KindInternal || errors.Is(err, context.DeadlineExceeded) {
		detail = "an unexpected error occurred"
	}

	logger := h.loggerFrom(r.Context())
	fields := []zap.Field{zap.String("operation", op), zap.Int("status", status), zap.String("kind", kind), zap.Error(err)}
	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("quickbooks operation failed", fields...)
	case status == http.StatusNotFound:
		logger.Info("quickbooks resource not found", fields...)
	default:
		logger.Warn("quickbooks request rejected", fields...)
	}

	writeProblem(w, problem{
		Type:   problemTypeBase + strings.ReplaceAll(kind, "_", "-"),
		Title:  title,
		Status: status,
		Detail: detail,
		Kind:   kind,
	})
}

func classify(kind string) (int, string) {
	switch kind {
	case service.KindValidation:
		return http.StatusBadRequest, "Validation failed"
	case service.KindNoConnection:
		return http.StatusBadRequest, "QuickBooks not connected"
	case service.KindOAuthExchange:
		return http.StatusBadRequest, "QuickBooks authorization failed"
	case service.KindReauthRequired:
		return http.StatusUnauthorized, "QuickBooks re-authorization required"
	case service.KindForbidden:
		return http.StatusForbidden, "QuickBooks access forbidden"
	case service.KindUnknownEntity:
		return http.StatusNotFound, "Unknown entity type"
	case service.KindCompanyNotFound:
		return http.StatusNotFound, "Company not found"
	case service.KindSyncInProgress:
		return http.StatusConflict, "Sync already in progress"
	case service.KindTransport:
		return http.StatusInternalServerError, "QuickBooks request failed"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

func writeProblem(w http.ResponseWriter, p problem) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (h *Handler) loggerFrom(ctx context.Context) *zap.Logger {
	if logger, ok := platformlogging.FromContext(ctx); ok {
		return logger
	}
	return h.logger
}
