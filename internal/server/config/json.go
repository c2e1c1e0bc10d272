package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/gophauth/internal/flagx"
	"github.com/dmitrijs2005/gophauth/internal/timex"
)

// JsonConfig is the on-disk shape of the config file. Pointer fields tell
// "absent" apart from zero values so a partial file only overrides what it
// names. Durations accept "15m"-style strings or integer nanoseconds.
type JsonConfig struct {
	HTTPAddr *string `json:"http_addr"`
	GRPCAddr *string `json:"grpc_addr"`
	BaseURL  *string `json:"base_url"`
	LogLevel *string `json:"log_level"`

	DatabaseDSN   *string `json:"database_dsn"`
	InMemoryStore *bool   `json:"in_memory_store"`

	RootSecret                   *string         `json:"root_secret"`
	TokenIssuer                  *string         `json:"token_issuer"`
	TokenAudience                *string         `json:"token_audience"`
	AccessTokenValidityDuration  *timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration *timex.Duration `json:"refresh_token_validity_duration"`

	Argon2Memory      *uint32 `json:"argon2_memory"`
	Argon2Time        *uint32 `json:"argon2_time"`
	Argon2Parallelism *uint8  `json:"argon2_parallelism"`
	Workers           *int    `json:"workers"`

	MailBaseURL *string         `json:"mail_base_url"`
	MailSender  *string         `json:"mail_sender"`
	MailToken   *string         `json:"mail_token"`
	MailTimeout *timex.Duration `json:"mail_timeout"`

	GoogleClientID     *string         `json:"google_client_id"`
	GoogleClientSecret *string         `json:"google_client_secret"`
	OAuthStateTTL      *timex.Duration `json:"oauth_state_ttl"`
}

// parseJson overlays the file given with -c/-config, if any.
func parseJson(config *Config, args []string) error {
	path := flagx.ConfigPath(args)
	if path == "" {
		return nil
	}

	file, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	c.apply(config)
	return nil
}

func set[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

func (c *JsonConfig) apply(config *Config) {
	set(&config.HTTPAddr, c.HTTPAddr)
	set(&config.GRPCAddr, c.GRPCAddr)
	set(&config.BaseURL, c.BaseURL)
	set(&config.LogLevel, c.LogLevel)
	set(&config.DatabaseDSN, c.DatabaseDSN)
	set(&config.InMemoryStore, c.InMemoryStore)
	set(&config.RootSecret, c.RootSecret)
	set(&config.TokenIssuer, c.TokenIssuer)
	set(&config.TokenAudience, c.TokenAudience)
	set(&config.Argon2Memory, c.Argon2Memory)
	set(&config.Argon2Time, c.Argon2Time)
	set(&config.Argon2Parallelism, c.Argon2Parallelism)
	set(&config.Workers, c.Workers)
	set(&config.MailBaseURL, c.MailBaseURL)
	set(&config.MailSender, c.MailSender)
	set(&config.MailToken, c.MailToken)
	set(&config.GoogleClientID, c.GoogleClientID)
	set(&config.GoogleClientSecret, c.GoogleClientSecret)

	if c.AccessTokenValidityDuration != nil {
		config.AccessTokenValidityDuration = c.AccessTokenValidityDuration.Duration
	}
	if c.RefreshTokenValidityDuration != nil {
		config.RefreshTokenValidityDuration = c.RefreshTokenValidityDuration.Duration
	}
	if c.MailTimeout != nil {
		config.MailTimeout = c.MailTimeout.Duration
	}
	if c.OAuthStateTTL != nil {
		config.OAuthStateTTL = c.OAuthStateTTL.Duration
	}
}
