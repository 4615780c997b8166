package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	oapimiddleware "github.com/oapi-codegen/nethttp-middleware"
)

// ValidateBearerAuth is the openapi3filter AuthenticationFunc. Operations that
// declare bearerAuth need an Authorization: Bearer header; operations with
// `security: []` never reach it. Token verification itself is done by auth.JWT.
func ValidateBearerAuth(ctx context.Context, input *openapi3filter.AuthenticationInput) error {
	if input == nil || input.SecuritySchemeName != "bearerAuth" {
		return nil
	}
	r := input.RequestValidationInput.Request
	if r == nil {
		return errors.New("no request in validation input")
	}
	authz := r.Header.Get("Authorization")
	if !strings.HasPrefix(strings.ToLower(authz), "bearer ") || strings.TrimSpace(authz[len("bearer "):]) == "" {
		return errors.New("missing or invalid Authorization header")
	}
	return nil
}

// SpecValidator rejects requests that do not match the contract before they reach a handler.
func SpecValidator(spec *openapi3.T) func(http.Handler) http.Handler {
	if spec == nil {
		panic("spec validator: openapi document is required")
	}
	return oapimiddleware.OapiRequestValidatorWithOptions(spec, &oapimiddleware.Options{
		Options: openapi3filter.Options{
			AuthenticationFunc: ValidateBearerAuth,
		},
	})
}
