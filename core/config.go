package core

import (
	"fmt"
	"strings"
	"time"
)

type OverridesConfig struct {
	AllowURL bool `koanf:"allow_url" mapstructure:"allow_url"`
	AllowID  bool `koanf:"allow_id" mapstructure:"allow_id"`
}

type PassthroughConfig struct {
	All    bool     `koanf:"all" mapstructure:"all"`
	Params []string `koanf:"params" mapstructure:"params"`
}

type OAuthConfig struct {
	TimestampWindowSeconds int `koanf:"timestamp_window_seconds" mapstructure:"timestamp_window_seconds"`
	NonceLedgerMaxEntries  int `koanf:"nonce_ledger_max_entries" mapstructure:"nonce_ledger_max_entries"`
}

type OutcomeConfig struct {
	TimeoutSeconds int    `koanf:"timeout_seconds" mapstructure:"timeout_seconds"`
	SuccessMarker  string `koanf:"success_marker" mapstructure:"success_marker"`
}

type Config struct {
	ServiceName    string            `koanf:"service_name" mapstructure:"service_name"`
	SurveyBaseURL  string            `koanf:"survey_base_url" mapstructure:"survey_base_url"`
	SurveyID       string            `koanf:"survey_id" mapstructure:"survey_id"`
	ProvideGrading bool              `koanf:"provide_grading" mapstructure:"provide_grading"`
	Overrides      OverridesConfig   `koanf:"overrides" mapstructure:"overrides"`
	Passthrough    PassthroughConfig `koanf:"passthrough" mapstructure:"passthrough"`
	OAuth          OAuthConfig       `koanf:"oauth" mapstructure:"oauth"`
	Outcome        OutcomeConfig     `koanf:"outcome" mapstructure:"outcome"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName:    "lti-bridge",
		ProvideGrading: true,
		Overrides: OverridesConfig{
			AllowURL: true,
			AllowID:  true,
		},
		Passthrough: PassthroughConfig{},
		OAuth: OAuthConfig{
			TimestampWindowSeconds: 300,
			NonceLedgerMaxEntries:  8192,
		},
		Outcome: OutcomeConfig{
			TimeoutSeconds: 30,
			SuccessMarker:  "success",
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.OAuth.TimestampWindowSeconds <= 0 {
		return fmt.Errorf("core: oauth.timestamp_window_seconds must be positive")
	}
	if c.Outcome.TimeoutSeconds <= 0 {
		return fmt.Errorf("core: outcome.timeout_seconds must be positive")
	}
	return nil
}

func (c Config) TimestampWindow() time.Duration {
	return time.Duration(c.OAuth.TimestampWindowSeconds) * time.Second
}

func (c Config) OutcomeTimeout() time.Duration {
	return time.Duration(c.Outcome.TimeoutSeconds) * time.Second
}
