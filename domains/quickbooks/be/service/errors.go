package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/zenGate-Global/palmyra-qbsync/platform/go/quickbooks"
	"github.com/zenGate-Global/palmyra-qbsync/platform/go/synclock"
	"github.com/zenGate-Global/palmyra-qbsync/platform/go/tenant"
)

// Errors returned by the service layer.
var (
	ErrValidation      = errors.New("invalid request")
	ErrNoConnection    = errors.New("quickbooks not connected")
	ErrOAuthExchange   = errors.New("quickbooks authorization failed")
	ErrOAuthRefresh    = errors.New("quickbooks re-authorization required")
	ErrForbidden       = errors.New("quickbooks access forbidden")
	ErrTransport       = errors.New("quickbooks request failed")
	ErrSyncInProgress  = errors.New("sync already in progress")
	ErrUnknownEntity   = errors.New("unknown entity type")
	ErrCompanyNotFound = tenant.ErrCompanyNotFound
)

// Kinds reported by KindOf. They are part of the HTTP error body.
const (
	KindValidation      = "validation"
	KindNoConnection    = "no_connection"
	KindOAuthExchange   = "oauth_exchange"
	KindReauthRequired  = "reauth_required"
	KindForbidden       = "forbidden"
	KindTransport       = "transport"
	KindSyncInProgress  = "sync_in_progress"
	KindUnknownEntity   = "unknown_entity"
	KindCompanyNotFound = "company_not_found"
	KindInternal        = "internal"
)

// KindOf classifies err into one of the Kind constants.
func KindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrNoConnection):
		return KindNoConnection
	case errors.Is(err, ErrOAuthExchange):
		return KindOAuthExchange
	case errors.Is(err, ErrOAuthRefresh):
		return KindReauthRequired
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	case errors.Is(err, ErrTransport):
		return KindTransport
	case errors.Is(err, ErrSyncInProgress):
		return KindSyncInProgress
	case errors.Is(err, ErrUnknownEntity):
		return KindUnknownEntity
	case errors.Is(err, ErrCompanyNotFound):
		return KindCompanyNotFound
	default:
		return KindInternal
	}
}

// remoteError maps a QuickBooks client failure onto a service sentinel.
// Only a 403 is Forbidden; everything else the provider does wrong is Transport.
func remoteError(err error) error {
	switch {
	case errors.Is(err, quickbooks.ErrForbidden):
		return fmt.Errorf("%w: %w", ErrForbidden, err)
	case errors.Is(err, context.Canceled):
		return err
	default:
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
}

func lockError(err error) error {
	if errors.Is(err, synclock.ErrLocked) {
		return fmt.Errorf("%w: %w", ErrSyncInProgress, err)
	}
	return fmt.Errorf("acquire sync lock: %w", err)
}
