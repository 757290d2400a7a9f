package config

import (
	"os"
	"testing"
)

func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		if old, ok := os.LookupEnv(k); ok {
			t.Cleanup(func() { os.Setenv(k, old) })
		} else {
			t.Cleanup(func() { os.Unsetenv(k) })
		}
		os.Unsetenv(k)
	}
}

func setMockEndpoints(t *testing.T) {
	t.Helper()
	for _, group := range []string{"PSEUDONYM_API", "NVI", "REFERRAL_API", "METADATA_API", "OAUTH_API"} {
		os.Setenv(group+"_MOCK", "true")
		t.Cleanup(func() { os.Unsetenv(group + "_MOCK") })
	}
}

func TestLoadRequiresUraNumber(t *testing.T) {
	clearEnv(t, "APP_URA_NUMBER", "APP_DATA_DOMAINS")
	setMockEndpoints(t)
	os.Setenv("APP_DATA_DOMAINS", "ImagingStudy")
	defer os.Unsetenv("APP_DATA_DOMAINS")

	if _, err := Load(); err == nil {
		t.Fatal("expected an error when app.ura_number is missing")
	}
}

func TestLoadRequiresDataDomains(t *testing.T) {
	clearEnv(t, "APP_URA_NUMBER", "APP_DATA_DOMAINS")
	setMockEndpoints(t)
	os.Setenv("APP_URA_NUMBER", "12345678")
	defer os.Unsetenv("APP_URA_NUMBER")

	if _, err := Load(); err == nil {
		t.Fatal("expected an error when app.data_domains is empty")
	}
}

func TestLoadWithValidConfig(t *testing.T) {
	clearEnv(t, "APP_URA_NUMBER", "APP_DATA_DOMAINS")
	setMockEndpoints(t)
	os.Setenv("APP_URA_NUMBER", "12345678")
	os.Setenv("APP_DATA_DOMAINS", "ImagingStudy,MedicationStatement")
	defer os.Unsetenv("APP_URA_NUMBER")
	defer os.Unsetenv("APP_DATA_DOMAINS")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.App.DataDomains) != 2 {
		t.Errorf("expected 2 data domains, got %v", cfg.App.DataDomains)
	}
	if cfg.App.DefaultOrganizationType != "hospital" {
		t.Errorf("expected default organization type 'hospital', got %q", cfg.App.DefaultOrganizationType)
	}
	if cfg.Scheduler.ScheduledDelaySec != 3600 {
		t.Errorf("expected default scheduled_delay 3600, got %d", cfg.Scheduler.ScheduledDelaySec)
	}
}

func TestValidateRejectsMalformedUraNumber(t *testing.T) {
	c := &Config{App: AppConfig{UraNumber: "not-digits", DataDomains: []string{"ImagingStudy"}}}
	if err := c.Validate(); err == nil {
		t.Fatal("expected Validate() to reject a non-numeric URA number")
	}
}

func TestValidateRequiresEndpointWhenNotMocked(t *testing.T) {
	c := &Config{
		App: AppConfig{UraNumber: "12345678", DataDomains: []string{"ImagingStudy"}},
		NviAPI: EndpointConfig{
			TimeoutSec: 30,
		},
	}
	if err := c.Validate(); err == nil {
		t.Fatal("expected Validate() to require nvi.endpoint when mock is false")
	}
}

func TestValidateAllowsMissingEndpointInMockMode(t *testing.T) {
	c := &Config{
		App:          AppConfig{UraNumber: "12345678", DataDomains: []string{"ImagingStudy"}},
		PseudonymAPI: EndpointConfig{Mock: true},
		NviAPI:       EndpointConfig{Mock: true},
		ReferralAPI:  EndpointConfig{Mock: true},
		MetadataAPI:  EndpointConfig{Mock: true},
		OAuthAPI:     OAuthConfig{EndpointConfig: EndpointConfig{Mock: true}},
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("unexpected error in mock mode: %v", err)
	}
}

func TestValidateRequiresMTLSKeyWhenCertConfigured(t *testing.T) {
	c := &Config{
		App:          AppConfig{UraNumber: "12345678", DataDomains: []string{"ImagingStudy"}},
		PseudonymAPI: EndpointConfig{Mock: true},
		ReferralAPI:  EndpointConfig{Mock: true},
		MetadataAPI:  EndpointConfig{Mock: true},
		OAuthAPI:     OAuthConfig{EndpointConfig: EndpointConfig{Mock: true}},
		NviAPI: EndpointConfig{
			Endpoint:   "https://nvi.example.com",
			TimeoutSec: 30,
			MTLSCert:   "/etc/certs/client.pem",
		},
	}
	if err := c.Validate(); err == nil {
		t.Fatal("expected Validate() to require mtls_key alongside mtls_cert")
	}
}
