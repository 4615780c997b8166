package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-qbsync/platform/go/quickbooks"
)

// CallbackInput carries the query parameters Intuit sends back to the redirect URI.
type CallbackInput struct {
	Code    string
	RealmID string
	State   string
}

// DisconnectResult reports what Disconnect removed.
type DisconnectResult struct {
	ConnectionID uuid.UUID `json:"connection_id"`
	Purged       int64     `json:"purged_records"`
}

// AuthorizationURL returns the Intuit consent URL for the company.
func (s *Service) AuthorizationURL(ctx context.Context, companyID uuid.UUID) (string, error) {
	if _, err := s.companies.ResolveCompany(ctx, companyID); err != nil {
		return "", err
	}
	return s.oauth.AuthorizationURL(quickbooks.State(companyID)), nil
}

// CompleteAuthorization exchanges the callback code and stores the connection.
// Reconnecting a company reactivates its existing connection row.
func (s *Service) CompleteAuthorization(ctx context.Context, in CallbackInput) (Connection, error) {
	in.Code = strings.TrimSpace(in.Code)
	in.RealmID = strings.TrimSpace(in.RealmID)
	if in.Code == "" || in.RealmID == "" || strings.TrimSpace(in.State) == "" {
		return Connection{}, fmt.Errorf("%w: code, realmId and state are required", ErrValidation)
	}

	companyID, err := quickbooks.ParseState(in.State)
	if err != nil {
		return Connection{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if _, err := s.companies.ResolveCompany(ctx, companyID); err != nil {
		return Connection{}, err
	}

	tokens, err := s.oauth.ExchangeCode(ctx, in.Code)
	if err != nil {
		return Connection{}, fmt.Errorf("%w: %w", ErrOAuthExchange, err)
	}

	// Ledger keys carry no realm, so rows mirrored from a previous realm would collide.
	realmChanged := false
	prev, err := s.repo.GetConnection(ctx, companyID)
	switch {
	case err == nil:
		realmChanged = prev.RealmID != in.RealmID
	case !errors.Is(err, ErrNoConnection):
		return Connection{}, fmt.Errorf("load connection: %w", err)
	}

	now := s.now()
	conn, err := s.repo.UpsertConnection(ctx, Connection{
		ID:             uuid.New(),
		CompanyID:      companyID,
		RealmID:        in.RealmID,
		AccessToken:    tokens.AccessToken,
		RefreshToken:   tokens.RefreshToken,
		TokenExpiresAt: now.Add(time.Duration(tokens.ExpiresIn) * time.Second),
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		return Connection{}, fmt.Errorf("store connection: %w", err)
	}
	if realmChanged {
		purged, err := s.repo.PurgeEntities(ctx, conn.ID)
		if err != nil {
			return Connection{}, fmt.Errorf("purge previous realm: %w", err)
		}
		s.log(ctx).Info("quickbooks realm changed",
			zap.String("connection_id", conn.ID.String()),
			zap.String("previous_realm_id", prev.RealmID),
			zap.Int64("purged_records", purged),
		)
	}

	s.log(ctx).Info("quickbooks connected",
		zap.String("company_id", companyID.String()),
		zap.String("connection_id", conn.ID.String()),
		zap.String("realm_id", conn.RealmID),
	)
	return conn, nil
}

// Status reports the company's connection. A company without one is not an error.
func (s *Service) Status(ctx context.Context, companyID uuid.UUID) (Status, error) {
	company, err := s.companies.ResolveCompany(ctx, companyID)
	if err != nil {
		return Status{}, err
	}

	conn, err := s.repo.GetConnection(ctx, companyID)
	if errors.Is(err, ErrNoConnection) {
		return Status{Connected: false, CompanyName: company.Name}, nil
	}
	if err != nil {
		return Status{}, err
	}

	return Status{
		Connected:   true,
		ID:          conn.ID,
		CompanyName: company.Name,
		RealmID:     conn.RealmID,
		IsActive:    conn.IsActive,
		LastError:   conn.LastError,
		LastSynced:  conn.LastSyncedAt,
		CreatedAt:   conn.CreatedAt,
	}, nil
}

// Disconnect removes the company's connection. Mirrored rows are kept unless purge is set.
func (s *Service) Disconnect(ctx context.Context, companyID uuid.UUID, purge bool) (DisconnectResult, error) {
	conn, err := s.repo.GetConnection(ctx, companyID)
	if err != nil {
		return DisconnectResult{}, err
	}

	result := DisconnectResult{ConnectionID: conn.ID}
	if purge {
		n, err := s.repo.PurgeEntities(ctx, conn.ID)
		if err != nil {
			return DisconnectResult{}, fmt.Errorf("purge ledger: %w", err)
		}
		result.Purged = n
	}

	if err := s.repo.DeleteConnection(ctx, conn.ID); err != nil {
		return DisconnectResult{}, err
	}

	s.log(ctx).Info("quickbooks disconnected",
		zap.String("company_id", companyID.String()),
		zap.String("connection_id", conn.ID.String()),
		zap.Int64("purged", result.Purged),
	)
	return result, nil
}

// activeConnection loads the company's connection and rejects inactive ones.
func (s *Service) activeConnection(ctx context.Context, companyID uuid.UUID) (Connection, error) {
	conn, err := s.repo.GetConnection(ctx, companyID)
	if err != nil {
		return Connection{}, err
	}
	if !conn.IsActive {
		return Connection{}, fmt.Errorf("%w: connection is inactive, reconnect required", ErrNoConnection)
	}
	return conn, nil
}

// ensureFreshToken refreshes the access token before a fetch. A rejected
// refresh deactivates the connection so the UI prompts for reconnection.
func (s *Service) ensureFreshToken(ctx context.Context, conn Connection) (Connection, error) {
	now := s.now()
	if s.cfg.RefreshSkew > 0 && now.Before(conn.TokenExpiresAt.Add(-s.cfg.RefreshSkew)) {
		return conn, nil
	}

	tokens, err := s.oauth.Refresh(ctx, conn.RefreshToken)
	if err != nil {
		if errors.Is(err, quickbooks.ErrTokenRejected) {
			s.metrics.TokenRefreshed("rejected")
			if derr := s.repo.DeactivateConnection(ctx, conn.ID, err.Error(), now); derr != nil {
				s.log(ctx).Warn("deactivate connection failed",
					zap.String("connection_id", conn.ID.String()), zap.Error(derr))
			}
			return Connection{}, fmt.Errorf("%w: %w", ErrOAuthRefresh, err)
		}
		s.metrics.TokenRefreshed("error")
		return Connection{}, fmt.Errorf("%w: refresh token: %w", ErrTransport, err)
	}

	refresh := conn.RefreshToken
	if tokens.RefreshToken != "" {
		refresh = tokens.RefreshToken
	}
	updated, err := s.repo.UpdateTokens(ctx, conn.ID, tokens.AccessToken, refresh,
		now.Add(time.Duration(tokens.ExpiresIn)*time.Second), now)
	if err != nil {
		return Connection{}, fmt.Errorf("store refreshed tokens: %w", err)
	}
	s.metrics.TokenRefreshed("ok")
	return updated, nil
}
