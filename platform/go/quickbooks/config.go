package quickbooks

import (
	"errors"
	"strings"
	"time"
)

const (
	EnvironmentSandbox    = "sandbox"
	EnvironmentProduction = "production"

	// AccountingScope is the only scope the sync needs.
	AccountingScope = "com.intuit.quickbooks.accounting"

	defaultAuthURL       = "https://appcenter.intuit.com/connect/oauth2"
	defaultTokenURL      = "https://oauth.platform.intuit.com/oauth2/v1/tokens/bearer"
	sandboxAPIBaseURL    = "https://sandbox-quickbooks.api.intuit.com/v3/company"
	productionAPIBaseURL = "https://quickbooks.api.intuit.com/v3/company"
)

// Config carries the Intuit app credentials and endpoints. Parsed with envPrefix QUICKBOOKS_.
type Config struct {
	ClientID     string        `env:"CLIENT_ID"`
	ClientSecret string        `env:"CLIENT_SECRET"`
	RedirectURI  string        `env:"REDIRECT_URI"`
	Environment  string        `env:"ENVIRONMENT" envDefault:"sandbox"` // sandbox | production
	HTTPTimeout  time.Duration `env:"HTTP_TIMEOUT" envDefault:"30s"`

	// Endpoint overrides, mostly for tests against a local fake.
	AuthURL    string `env:"AUTH_URL"`
	TokenURL   string `env:"TOKEN_URL"`
	APIBaseURL string `env:"API_BASE_URL"`
}

// Validate checks the required credentials and fills endpoint defaults.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ClientID) == "" {
		return errors.New("quickbooks client id is required")
	}
	if strings.TrimSpace(c.ClientSecret) == "" {
		return errors.New("quickbooks client secret is required")
	}
	if strings.TrimSpace(c.RedirectURI) == "" {
		return errors.New("quickbooks redirect uri is required")
	}

	if c.AuthURL == "" {
		c.AuthURL = defaultAuthURL
	}
	if c.TokenURL == "" {
		c.TokenURL = defaultTokenURL
	}
	if c.APIBaseURL == "" {
		switch strings.ToLower(c.Environment) {
		case "", EnvironmentSandbox:
			c.APIBaseURL = sandboxAPIBaseURL
		case EnvironmentProduction:
			c.APIBaseURL = productionAPIBaseURL
		default:
			return errors.New("quickbooks environment must be sandbox or production")
		}
	}
	c.APIBaseURL = strings.TrimRight(c.APIBaseURL, "/")

	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 30 * time.Second
	}
	return nil
}
