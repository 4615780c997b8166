package repo

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/zenGate-Global/palmyra-qbsync/domains/companies/be/service"
	"github.com/zenGate-Global/palmyra-qbsync/platform/go/tenant"
)

func TestCompanyServiceWithMemoryRepository(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := service.New(NewMemoryRepository())

	created, err := svc.Create(ctx, service.CreateInput{Name: "  Acme Co ", OwnerUserID: "user-1"})
	require.NoError(t, err)
	require.Equal(t, "Acme Co", created.Name)
	require.NotEqual(t, uuid.Nil, created.ID)

	_, err = svc.Create(ctx, service.CreateInput{Name: "Other", OwnerUserID: "user-1"})
	require.ErrorIs(t, err, service.ErrConflictOwner)

	_, err = svc.Create(ctx, service.CreateInput{Name: "", OwnerUserID: "user-2"})
	require.ErrorIs(t, err, service.ErrValidation)

	resolved, err := svc.ResolveCompany(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, tenant.Company{ID: created.ID, Name: "Acme Co", OwnerUserID: "user-1"}, resolved)

	byOwner, err := svc.ResolveCompanyByOwner(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, created.ID, byOwner.ID)

	_, err = svc.ResolveCompanyByOwner(ctx, "ghost")
	require.ErrorIs(t, err, tenant.ErrCompanyNotFound)
	_, err = svc.Get(ctx, uuid.New())
	require.ErrorIs(t, err, service.ErrNotFound)
}
