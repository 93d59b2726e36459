package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestExpandEnv(t *testing.T) {
	t.Setenv("RR_HOST", "foreman.example.com")
	t.Setenv("RR_EMPTY", "")

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "url: https://${RR_HOST}", "url: https://foreman.example.com"},
		{"unset is empty", "url: ${RR_UNSET_9931}", "url: "},
		{"fallback when unset", "verify: ${RR_UNSET_9931:-1}", "verify: 1"},
		{"fallback when empty", "verify: ${RR_EMPTY:-0}", "verify: 0"},
		{"fallback ignored when set", "${RR_HOST:-other}", "foreman.example.com"},
		{"repeated", "${RR_HOST}/${RR_HOST}", "foreman.example.com/foreman.example.com"},
		{"no placeholders", "timeout: 30s", "timeout: 30s"},
		{"bare dollar untouched", "cost: $5 and $RR_HOST", "cost: $5 and $RR_HOST"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExpandEnv(tt.input)
			if err != nil {
				t.Fatalf("ExpandEnv: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExpandEnv_Required(t *testing.T) {
	t.Setenv("RR_HOST", "foreman.example.com")

	got, err := ExpandEnv("url: https://${RR_HOST:?set the Foreman host}")
	if err != nil {
		t.Fatalf("ExpandEnv: %v", err)
	}
	if got != "url: https://foreman.example.com" {
		t.Errorf("got %q", got)
	}
}

func TestExpandEnv_RequiredMissingListsAll(t *testing.T) {
	_, err := ExpandEnv("cert: ${RR_CERT_9931:?client cert path}\nkey: ${RR_KEY_9931:?}")
	if err == nil {
		t.Fatal("expected error for unset required variables")
	}
	msg := err.Error()
	for _, want := range []string{"RR_CERT_9931: client cert path", "RR_KEY_9931: required"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error %q missing %q", msg, want)
		}
	}
}

func TestLoad_ExpandsForemanSection(t *testing.T) {
	t.Setenv("RR_HOST", "foreman.example.com")
	t.Setenv("RR_SSL", "/etc/puppetlabs/puppet/ssl")

	path := filepath.Join(t.TempDir(), "runreport.yaml")
	doc := "foreman:\n" +
		"  url: https://${RR_HOST}\n" +
		"  client_cert: ${RR_SSL}/certs/client.pem\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Foreman.URL != "https://foreman.example.com" {
		t.Errorf("URL = %q", cfg.Foreman.URL)
	}
	if cfg.Foreman.ClientCert != "/etc/puppetlabs/puppet/ssl/certs/client.pem" {
		t.Errorf("ClientCert = %q", cfg.Foreman.ClientCert)
	}
}

func TestLoad_RequiredVariableMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runreport.yaml")
	doc := "foreman:\n  url: ${RR_URL_9931:?Foreman URL}\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("expected error")
	}
}
