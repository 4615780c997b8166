// Package contracts embeds the OpenAPI documents served and enforced by the API.
package contracts

import (
	_ "embed"
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"
)

//go:embed quickbooks.yaml
var quickbooksYAML []byte

// QuickBooks parses and validates the QuickBooks sync contract.
func QuickBooks() (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	spec, err := loader.LoadFromData(quickbooksYAML)
	if err != nil {
		return nil, fmt.Errorf("load quickbooks contract: %w", err)
	}
	if err := spec.Validate(loader.Context); err != nil {
		return nil, fmt.Errorf("validate quickbooks contract: %w", err)
	}
	return spec, nil
}
