package foreman

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"errors"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pithecene-io/runreport/iox"
	"github.com/pithecene-io/runreport/report"
	"github.com/pithecene-io/runreport/types"
)

func testReport(t *testing.T) *report.ReportDocument {
	t.Helper()
	s := report.NewRunState()
	s.RecordResult("ping", "h1", map[string]any{"changed": true})
	doc, err := (&report.Assembler{}).BuildReport(s, "h1", types.HostSummary{Changed: 1})
	if err != nil {
		t.Fatalf("BuildReport: %v", err)
	}
	return doc
}

func testFacts() *report.FactsDocument {
	s := report.NewRunState()
	s.RecordResult("setup", "h1", map[string]any{"ansible_facts": map[string]any{"os": "linux"}})
	return (&report.Assembler{}).BuildFactsDocument(s, "h1")
}

func TestPostReport_Success(t *testing.T) {
	var received report.ReportDocument
	var path string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected application/json, got %s", ct)
		}
		path = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &received); err != nil {
			t.Errorf("unmarshal: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer ts.Close()

	c, err := New(Config{URL: ts.URL})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer iox.DiscardClose(c)

	if err := c.PostReport(t.Context(), testReport(t)); err != nil {
		t.Fatalf("PostReport: %v", err)
	}
	if path != ReportsPath {
		t.Errorf("path = %q, want %q", path, ReportsPath)
	}
	if received.ConfigReport.Host != "h1" {
		t.Errorf("host = %q, want h1", received.ConfigReport.Host)
	}
	if received.ConfigReport.Status.Applied != 1 {
		t.Errorf("status.applied = %d, want 1", received.ConfigReport.Status.Applied)
	}
}

func TestPostFacts_Success(t *testing.T) {
	var received map[string]any
	var path string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &received)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	c, err := New(Config{URL: ts.URL + "/"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer iox.DiscardClose(c)

	if err := c.PostFacts(t.Context(), testFacts()); err != nil {
		t.Fatalf("PostFacts: %v", err)
	}
	if path != FactsPath {
		t.Errorf("path = %q, want %q", path, FactsPath)
	}
	if received["name"] != "h1" {
		t.Errorf("name = %v, want h1", received["name"])
	}
	facts, _ := received["facts"].(map[string]any)
	if facts["_type"] != "ansible" {
		t.Errorf("facts._type = %v, want ansible", facts["_type"])
	}
}

func TestPost_Non2xxIsStatusError(t *testing.T) {
	codes := []int{400, 404, 422, 500, 503}
	for _, code := range codes {
		t.Run(http.StatusText(code), func(t *testing.T) {
			var attempts atomic.Int32
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				attempts.Add(1)
				w.WriteHeader(code)
			}))
			defer ts.Close()

			c, err := New(Config{URL: ts.URL})
			if err != nil {
				t.Fatalf("new: %v", err)
			}
			defer iox.DiscardClose(c)

			err = c.PostReport(t.Context(), testReport(t))
			var statusErr *StatusError
			if !errors.As(err, &statusErr) {
				t.Fatalf("error = %v, want *StatusError", err)
			}
			if statusErr.Code != code {
				t.Errorf("Code = %d, want %d", statusErr.Code, code)
			}
			if statusErr.URL != ts.URL+ReportsPath {
				t.Errorf("URL = %q, want %q", statusErr.URL, ts.URL+ReportsPath)
			}
			// Never retried
			if got := attempts.Load(); got != 1 {
				t.Errorf("attempts = %d, want 1", got)
			}
		})
	}
}

func TestPost_ConnectionRefused(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	addr := ts.URL
	ts.Close()

	c, err := New(Config{URL: addr, Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := c.PostFacts(t.Context(), testFacts()); err == nil {
		t.Fatal("expected error against closed server")
	}
}

func TestPost_EncodeError(t *testing.T) {
	c, err := New(Config{URL: "http://example.invalid"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	err = c.post(t.Context(), c.FactsURL(), map[string]any{"bad": make(chan int)})
	if !errors.Is(err, ErrEncode) {
		t.Errorf("error = %v, want ErrEncode", err)
	}
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"empty URL", Config{}},
		{"bad scheme", Config{URL: "ftp://foreman"}},
		{"missing cert files", Config{URL: "https://foreman", ClientCert: "/nope/cert.pem", ClientKey: "/nope/key.pem", Verify: Verify{Enabled: true}}},
		{"missing CA bundle", Config{URL: "https://foreman", Verify: Verify{Enabled: true, CABundle: "/nope/ca.pem"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg); err == nil {
				t.Errorf("New(%+v) succeeded, want error", tt.cfg)
			}
		})
	}
}

func TestNew_DefaultTimeout(t *testing.T) {
	c, err := New(Config{URL: "http://foreman.example.com"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if c.client.Timeout != DefaultTimeout {
		t.Errorf("Timeout = %v, want %v", c.client.Timeout, DefaultTimeout)
	}
	if c.ReportsURL() != "http://foreman.example.com/api/v2/config_reports" {
		t.Errorf("ReportsURL = %q", c.ReportsURL())
	}
}

func TestNew_WrapTransport(t *testing.T) {
	var wrapped atomic.Bool
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	c, err := New(Config{
		URL: ts.URL,
		WrapTransport: func(rt http.RoundTripper) http.RoundTripper {
			return roundTripFunc(func(r *http.Request) (*http.Response, error) {
				wrapped.Store(true)
				return rt.RoundTrip(r)
			})
		},
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := c.PostFacts(t.Context(), testFacts()); err != nil {
		t.Fatalf("PostFacts: %v", err)
	}
	if !wrapped.Load() {
		t.Error("wrapped transport was not used")
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestTLS_VerifyDisabled(t *testing.T) {
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	c, err := New(Config{URL: ts.URL, Verify: Verify{Enabled: false}})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := c.PostFacts(t.Context(), testFacts()); err != nil {
		t.Fatalf("PostFacts with verification off: %v", err)
	}
}

func TestTLS_VerifyWithSystemRootsRejectsTestCert(t *testing.T) {
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	c, err := New(Config{URL: ts.URL, Verify: Verify{Enabled: true}})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := c.PostFacts(t.Context(), testFacts()); err == nil {
		t.Fatal("expected certificate verification failure")
	}
}

func TestTLS_VerifyWithCABundle(t *testing.T) {
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	bundle := filepath.Join(t.TempDir(), "ca.pem")
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: ts.Certificate().Raw})
	if err := os.WriteFile(bundle, certPEM, 0o600); err != nil {
		t.Fatalf("write bundle: %v", err)
	}

	c, err := New(Config{URL: ts.URL, Verify: Verify{Enabled: true, CABundle: bundle}})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := c.PostFacts(t.Context(), testFacts()); err != nil {
		t.Fatalf("PostFacts with CA bundle: %v", err)
	}
}

func TestTLS_ClientCertificatePresented(t *testing.T) {
	certPath, keyPath := writeClientCert(t)

	var sawClientCert atomic.Bool
	ts := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.TLS != nil && len(r.TLS.PeerCertificates) > 0 {
			sawClientCert.Store(true)
		}
		w.WriteHeader(http.StatusOK)
	}))
	ts.TLS = &tls.Config{ClientAuth: tls.RequireAnyClientCert}
	ts.StartTLS()
	defer ts.Close()

	c, err := New(Config{
		URL:        ts.URL,
		ClientCert: certPath,
		ClientKey:  keyPath,
		Verify:     Verify{Enabled: false},
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := c.PostReport(t.Context(), testReport(t)); err != nil {
		t.Fatalf("PostReport: %v", err)
	}
	if !sawClientCert.Load() {
		t.Error("server did not receive a client certificate")
	}
}

// writeClientCert generates a throwaway self-signed certificate pair.
func writeClientCert(t *testing.T) (certPath, keyPath string) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "runreport-test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}

	dir := t.TempDir()
	certPath = filepath.Join(dir, "client_cert.pem")
	keyPath = filepath.Join(dir, "client_key.pem")
	if err := os.WriteFile(certPath, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600); err != nil {
		t.Fatalf("write cert: %v", err)
	}
	if err := os.WriteFile(keyPath, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}
	return certPath, keyPath
}
