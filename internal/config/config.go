// Package config loads the referral registration service's
// configuration (spec §6) via viper: env vars with a `.env` fallback,
// defaults for every optional field, and a Validate() that enforces
// the ConfigurationError preconditions of spec §7.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EndpointConfig is the option group shared by every upstream HTTP
// dependency (spec §6): endpoint, timeout, optional mTLS material, and
// a mock switch for local/dev runs.
type EndpointConfig struct {
	Endpoint   string `mapstructure:"endpoint"`
	TimeoutSec int    `mapstructure:"timeout"`
	MTLSCert   string `mapstructure:"mtls_cert"`
	MTLSKey    string `mapstructure:"mtls_key"`
	VerifyCA   string `mapstructure:"verify_ca"`
	Mock       bool   `mapstructure:"mock"`
}

// OAuthConfig extends EndpointConfig with the client-assertion options
// specific to the OAuth token endpoint.
type OAuthConfig struct {
	EndpointConfig `mapstructure:",squash"`
	IncludeX5c     bool `mapstructure:"include_x5c"`
}

// AppConfig holds the deployment-wide identity and scope settings.
type AppConfig struct {
	LogLevel                string   `mapstructure:"loglevel"`
	ProviderID              string   `mapstructure:"provider_id"`
	UraNumber               string   `mapstructure:"ura_number"`
	DataDomains             []string `mapstructure:"data_domains"`
	DefaultOrganizationType string   `mapstructure:"default_organization_type"`
}

// SchedulerConfig controls the background synchronization loop.
type SchedulerConfig struct {
	ScheduledDelaySec         int  `mapstructure:"scheduled_delay"`
	AutomaticBackgroundUpdate bool `mapstructure:"automatic_background_update"`
}

// FHIRSystemsConfig names the coding-system URIs used when building
// NVIDataReference resources (spec §4.5.1).
type FHIRSystemsConfig struct {
	PseudonymSystem        string `mapstructure:"pseudonym_system"`
	SourceSystem           string `mapstructure:"source_system"`
	OrganizationTypeSystem string `mapstructure:"organization_type_system"`
	CareContextSystem      string `mapstructure:"care_context_system"`
}

// Config is the full configuration tree, one field per spec §6 option
// group.
type Config struct {
	App            AppConfig         `mapstructure:"app"`
	Scheduler      SchedulerConfig   `mapstructure:"scheduler"`
	PseudonymAPI   EndpointConfig    `mapstructure:"pseudonym_api"`
	NviAPI         EndpointConfig    `mapstructure:"nvi"`
	ReferralAPI    EndpointConfig    `mapstructure:"referral_api"`
	MetadataAPI    EndpointConfig    `mapstructure:"metadata_api"`
	OAuthAPI       OAuthConfig       `mapstructure:"oauth_api"`
	NviFHIRSystems FHIRSystemsConfig `mapstructure:"nvi_fhir_systems"`
}

// Load reads configuration from the environment (with an optional
// `.env` file) into a Config, applying defaults for every optional
// field.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.loglevel", "info")
	v.SetDefault("app.default_organization_type", "hospital")
	v.SetDefault("scheduler.scheduled_delay", 3600)
	v.SetDefault("scheduler.automatic_background_update", false)
	v.SetDefault("pseudonym_api.timeout", 30)
	v.SetDefault("nvi.timeout", 30)
	v.SetDefault("referral_api.timeout", 30)
	v.SetDefault("metadata_api.timeout", 30)
	v.SetDefault("oauth_api.timeout", 30)
	v.SetDefault("oauth_api.include_x5c", true)
	v.SetDefault("nvi_fhir_systems.pseudonym_system", "http://nvi.nl/fhir/NamingSystem/pseudonym")
	v.SetDefault("nvi_fhir_systems.source_system", "http://fhir.nl/fhir/NamingSystem/ura")
	v.SetDefault("nvi_fhir_systems.organization_type_system", "http://nvi.nl/fhir/CodeSystem/organization-type")
	v.SetDefault("nvi_fhir_systems.care_context_system", "http://nvi.nl/fhir/CodeSystem/care-context")

	bindEndpointEnv(v, "pseudonym_api")
	bindEndpointEnv(v, "nvi")
	bindEndpointEnv(v, "referral_api")
	bindEndpointEnv(v, "metadata_api")
	bindEndpointEnv(v, "oauth_api")
	v.BindEnv("oauth_api.include_x5c")

	v.BindEnv("app.loglevel")
	v.BindEnv("app.provider_id")
	v.BindEnv("app.ura_number")
	v.BindEnv("app.data_domains")
	v.BindEnv("app.default_organization_type")
	v.BindEnv("scheduler.scheduled_delay")
	v.BindEnv("scheduler.automatic_background_update")
	v.BindEnv("nvi_fhir_systems.pseudonym_system")
	v.BindEnv("nvi_fhir_systems.source_system")
	v.BindEnv("nvi_fhir_systems.organization_type_system")
	v.BindEnv("nvi_fhir_systems.care_context_system")

	// Try reading .env file, but don't fail if missing.
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.App.DataDomains) == 0 {
		if raw := v.GetString("app.data_domains"); raw != "" {
			cfg.App.DataDomains = strings.Split(raw, ",")
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func bindEndpointEnv(v *viper.Viper, group string) {
	for _, key := range []string{"endpoint", "timeout", "mtls_cert", "mtls_key", "verify_ca", "mock"} {
		v.BindEnv(group + "." + key)
	}
}

// Validate enforces the ConfigurationError preconditions of spec §7:
// a well-formed URA number, at least one configured data domain, and
// mTLS key material present whenever mTLS is implied by a non-empty
// cert or key.
func (c *Config) Validate() error {
	if c.App.UraNumber == "" {
		return fmt.Errorf("app.ura_number is required")
	}
	if len(c.App.UraNumber) > 8 || !isAllDigits(c.App.UraNumber) {
		return fmt.Errorf("app.ura_number must be at most 8 digits, got %q", c.App.UraNumber)
	}
	if len(c.App.DataDomains) == 0 {
		return fmt.Errorf("app.data_domains must name at least one domain to synchronize")
	}

	for name, ep := range c.endpoints() {
		if ep.Mock {
			continue
		}
		if ep.Endpoint == "" {
			return fmt.Errorf("%s.endpoint is required unless mock mode is enabled", name)
		}
		if ep.TimeoutSec <= 0 {
			return fmt.Errorf("%s.timeout must be greater than zero", name)
		}
		if (ep.MTLSCert == "") != (ep.MTLSKey == "") {
			return fmt.Errorf("%s.mtls_cert and %s.mtls_key must be configured together", name, name)
		}
	}

	return nil
}

func (c *Config) endpoints() map[string]EndpointConfig {
	return map[string]EndpointConfig{
		"pseudonym_api": c.PseudonymAPI,
		"nvi":           c.NviAPI,
		"referral_api":  c.ReferralAPI,
		"metadata_api":  c.MetadataAPI,
		"oauth_api":     c.OAuthAPI.EndpointConfig,
	}
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
