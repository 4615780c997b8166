package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/stretchr/testify/require"
)

const testContract = `
openapi: 3.0.3
info: {title: test, version: "1"}
security:
  - bearerAuth: []
paths:
  /secure:
    get:
      responses:
        "200": {description: ok}
  /open:
    get:
      security: []
      parameters:
        - name: limit
          in: query
          schema: {type: integer, minimum: 1}
      responses:
        "200": {description: ok}
components:
  securitySchemes:
    bearerAuth: {type: http, scheme: bearer}
`

func TestSpecValidator(t *testing.T) {
	spec, err := openapi3.NewLoader().LoadFromData([]byte(testContract))
	require.NoError(t, err)

	h := SpecValidator(spec)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	serve := func(path, authz string) int {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if authz != "" {
			req.Header.Set("Authorization", authz)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	require.Equal(t, http.StatusOK, serve("/secure", "Bearer abc"))
	require.NotEqual(t, http.StatusOK, serve("/secure", ""))
	require.NotEqual(t, http.StatusOK, serve("/secure", "Basic abc"))
	require.Equal(t, http.StatusOK, serve("/open", ""))
	require.Equal(t, http.StatusBadRequest, serve("/open?limit=0", ""))
}
