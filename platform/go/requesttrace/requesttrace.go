// Package requesttrace carries who triggered a request so sync logs can record it.
package requesttrace

import (
	"context"
	"errors"

	platformauth "github.com/zenGate-Global/palmyra-qbsync/platform/go/auth"
)

type contextKey string

const ctxAuditInfo contextKey = "QBSYNC_REQUEST_TRACE"

// ActorKind represents who initiated a request.
type ActorKind string

const (
	ActorKindUser      ActorKind = "user"
	ActorKindAnonymous ActorKind = "anonymous"
	ActorKindSystem    ActorKind = "system"
)

// AuditInfo captures request-scoped metadata stamped onto sync logs.
// UserID is set only for ActorKindUser. CompanyClaim is the raw company claim
// from the token, before tenant resolution.
type AuditInfo struct {
	ActorKind    ActorKind
	UserID       *string
	CompanyClaim *string
	RequestID    string
}

// TriggeredBy is the user id for authenticated calls and the actor kind otherwise.
func (a AuditInfo) TriggeredBy() string {
	if a.UserID != nil && *a.UserID != "" {
		return *a.UserID
	}
	if a.ActorKind == "" {
		return string(ActorKindAnonymous)
	}
	return string(a.ActorKind)
}

// IntoContext stores the AuditInfo in the provided context.
func IntoContext(ctx context.Context, audit AuditInfo) context.Context {
	return context.WithValue(ctx, ctxAuditInfo, audit)
}

// FromContext extracts the AuditInfo from context, returning false when not present.
func FromContext(ctx context.Context) (AuditInfo, bool) {
	if ctx == nil {
		return AuditInfo{}, false
	}
	audit, ok := ctx.Value(ctxAuditInfo).(AuditInfo)
	return audit, ok
}

// FromContextOrAnonymous returns the stored AuditInfo, or an anonymous record when absent.
func FromContextOrAnonymous(ctx context.Context) AuditInfo {
	if audit, ok := FromContext(ctx); ok {
		return audit
	}
	return Anonymous("")
}

// FromCredentials builds an AuditInfo for an authenticated user.
func FromCredentials(creds *platformauth.UserCredentials, requestID string) (AuditInfo, error) {
	if creds == nil {
		return AuditInfo{}, errors.New("credentials are required to build audit info")
	}
	if creds.Id == "" {
		return AuditInfo{}, errors.New("user id is required to build audit info")
	}

	return AuditInfo{
		ActorKind:    ActorKindUser,
		UserID:       &creds.Id,
		CompanyClaim: creds.TenantID,
		RequestID:    requestID,
	}, nil
}

// Anonymous builds an AuditInfo for calls without credentials, such as the OAuth callback.
func Anonymous(requestID string) AuditInfo {
	return AuditInfo{ActorKind: ActorKindAnonymous, RequestID: requestID}
}

// System builds an AuditInfo for CLI and scheduled syncs.
func System(requestID string) AuditInfo {
	return AuditInfo{ActorKind: ActorKindSystem, RequestID: requestID}
}
