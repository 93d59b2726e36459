package config

import (
	"context"
	"fmt"

	"github.com/sethvargo/go-envconfig"
)

// ForemanEnv holds the Foreman variables read from the environment.
type ForemanEnv struct {
	URL             string `env:"FOREMAN_URL"`
	ServerURL       string `env:"FOREMAN_SERVER_URL"`
	Server          string `env:"FOREMAN_SERVER"`
	SSLCert         string `env:"FOREMAN_SSL_CERT"`
	SSLKey          string `env:"FOREMAN_SSL_KEY"`
	SSLVerify       string `env:"FOREMAN_SSL_VERIFY"`
	CallbackDisable string `env:"FOREMAN_CALLBACK_DISABLE"`
}

// LoadForemanEnv reads the Foreman variables.
// A nil lookuper reads the process environment.
func LoadForemanEnv(ctx context.Context, lookuper envconfig.Lookuper) (*ForemanEnv, error) {
	if lookuper == nil {
		lookuper = envconfig.OsLookuper()
	}
	var env ForemanEnv
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &env,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("read foreman environment: %w", err)
	}
	return &env, nil
}

// BaseURL returns the last non-empty of FOREMAN_URL, FOREMAN_SERVER_URL
// and FOREMAN_SERVER, so FOREMAN_SERVER wins when several are set.
func (e *ForemanEnv) BaseURL() string {
	for _, v := range []string{e.Server, e.ServerURL, e.URL} {
		if v != "" {
			return v
		}
	}
	return ""
}

// Apply overlays every variable that is set onto fc.
func (e *ForemanEnv) Apply(fc *ForemanConfig) error {
	if u := e.BaseURL(); u != "" {
		fc.URL = u
	}
	if e.SSLCert != "" {
		fc.ClientCert = e.SSLCert
	}
	if e.SSLKey != "" {
		fc.ClientKey = e.SSLKey
	}
	if e.SSLVerify != "" {
		fc.Verify = e.SSLVerify
	}
	if e.CallbackDisable != "" {
		disable, err := ParseBool(e.CallbackDisable)
		if err != nil {
			return fmt.Errorf("FOREMAN_CALLBACK_DISABLE: %w", err)
		}
		fc.Disable = disable
	}
	return nil
}
