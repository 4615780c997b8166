package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	platformauth "github.com/zenGate-Global/palmyra-qbsync/platform/go/auth"
	platformlogging "github.com/zenGate-Global/palmyra-qbsync/platform/go/logging"
	"github.com/zenGate-Global/palmyra-qbsync/platform/go/requesttrace"
	"github.com/zenGate-Global/palmyra-qbsync/platform/go/tenant"
)

// RequestTrace stores requesttrace.AuditInfo on the context so the sync log can
// record who triggered a run. Run it after the JWT middleware.
func RequestTrace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := platformlogging.FromRequest(r, nil)
		requestID := middleware.GetReqID(r.Context())

		audit := requesttrace.Anonymous(requestID)
		if creds, ok := platformauth.UserFromContext(r.Context()); ok && creds != nil {
			var err error
			audit, err = requesttrace.FromCredentials(creds, requestID)
			if err != nil {
				if logger != nil {
					logger.Error("build audit info from credentials", zap.Error(err))
				}
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}

		ctx := requesttrace.IntoContext(r.Context(), audit)
		if logger != nil {
			fields := []zap.Field{zap.String("actor_kind", string(audit.ActorKind))}
			if audit.UserID != nil {
				fields = append(fields, zap.String("user_id", *audit.UserID))
			}
			ctx = platformlogging.WithLogger(ctx, logger.With(fields...))
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// CompanyLogger tags the request logger with the resolved company. Mount it after
// the tenant middleware; requests without a company pass through untouched.
func CompanyLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		company, ok := tenant.FromContext(r.Context())
		logger := platformlogging.FromRequest(r, nil)
		if !ok || logger == nil {
			next.ServeHTTP(w, r)
			return
		}
		ctx := platformlogging.WithLogger(r.Context(), logger.With(zap.String("company_id", company.ID.String())))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
