package service

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schemaFS embed.FS

var schemaFiles = map[EntityType]string{
	EntityAccount:     "schemas/account.json",
	EntityCustomer:    "schemas/party.json",
	EntityVendor:      "schemas/party.json",
	EntityInvoice:     "schemas/document.json",
	EntityBill:        "schemas/document.json",
	EntityPayment:     "schemas/document.json",
	EntityTransaction: "schemas/transaction.json",
}

// RecordValidator checks raw QuickBooks records against the embedded per-entity JSON Schemas.
// Compiled schemas are cached per file.
type RecordValidator struct {
	mu    sync.RWMutex
	cache map[string]*jsonschema.Schema
}

// NewRecordValidator returns a validator with an empty schema cache.
func NewRecordValidator() *RecordValidator {
	return &RecordValidator{cache: make(map[string]*jsonschema.Schema)}
}

// Validate reports whether raw is an acceptable record of type t.
func (v *RecordValidator) Validate(t EntityType, raw json.RawMessage) error {
	file, ok := schemaFiles[t]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownEntity, t)
	}

	compiled, err := v.getOrCompile(file)
	if err != nil {
		return err
	}

	var document any
	if err := json.Unmarshal(raw, &document); err != nil {
		return fmt.Errorf("decode record: %w", err)
	}

	if err := compiled.Validate(document); err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}
	return nil
}

func (v *RecordValidator) getOrCompile(file string) (*jsonschema.Schema, error) {
	v.mu.RLock()
	compiled, ok := v.cache[file]
	v.mu.RUnlock()
	if ok {
		return compiled, nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if compiled, ok = v.cache[file]; ok {
		return compiled, nil
	}

	data, err := schemaFS.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read schema %s: %w", file, err)
	}

	url := "memory://quickbooks/" + file
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("register schema %s: %w", file, err)
	}

	compiled, err = compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", file, err)
	}

	v.cache[file] = compiled
	return compiled, nil
}
