package requesttrace

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	platformauth "github.com/zenGate-Global/palmyra-qbsync/platform/go/auth"
)

func TestIntoContextAndFromContext(t *testing.T) {
	audit := AuditInfo{ActorKind: ActorKindUser, UserID: ptr("user-123"), RequestID: "req-abc"}

	got, ok := FromContext(IntoContext(context.Background(), audit))
	require.True(t, ok)
	require.Equal(t, audit, got)

	_, ok = FromContext(context.Background())
	require.False(t, ok)
}

func TestFromCredentials(t *testing.T) {
	creds := &platformauth.UserCredentials{Id: "user-456", TenantID: ptr("company-1")}

	audit, err := FromCredentials(creds, "req-xyz")
	require.NoError(t, err)
	require.Equal(t, ActorKindUser, audit.ActorKind)
	require.Equal(t, "user-456", *audit.UserID)
	require.Equal(t, "company-1", *audit.CompanyClaim)
	require.Equal(t, "req-xyz", audit.RequestID)

	_, err = FromCredentials(&platformauth.UserCredentials{}, "req-1")
	require.Error(t, err)
	_, err = FromCredentials(nil, "req-1")
	require.Error(t, err)
}

func TestTriggeredBy(t *testing.T) {
	cases := []struct {
		name  string
		audit AuditInfo
		want  string
	}{
		{name: "user", audit: AuditInfo{ActorKind: ActorKindUser, UserID: ptr("u-9")}, want: "u-9"},
		{name: "system", audit: System("cli-sync"), want: "system"},
		{name: "anonymous", audit: Anonymous("req"), want: "anonymous"},
		{name: "zero", audit: AuditInfo{}, want: "anonymous"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, tc.audit.TriggeredBy())
		})
	}

	require.Equal(t, ActorKindAnonymous, FromContextOrAnonymous(context.Background()).ActorKind)
}

func ptr[T any](v T) *T { return &v }
