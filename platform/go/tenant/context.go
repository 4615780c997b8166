package tenant

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Company is the tenant a request acts for. Middleware attaches it once the
// caller's credentials have been mapped to a company row.
type Company struct {
	ID          uuid.UUID
	Name        string
	OwnerUserID string
}

// ErrCompanyNotFound is returned by resolvers when no company matches the caller.
var ErrCompanyNotFound = errors.New("company not found")

type ctxKey string

const companyKey ctxKey = "QBSYNC_COMPANY"

// WithCompany returns a derived context carrying the company.
func WithCompany(ctx context.Context, company Company) context.Context {
	return context.WithValue(ctx, companyKey, company)
}

// FromContext extracts the company and a boolean indicating presence.
func FromContext(ctx context.Context) (Company, bool) {
	v := ctx.Value(companyKey)
	if v == nil {
		return Company{}, false
	}

	company, ok := v.(Company)
	return company, ok
}
