// Package config loads tokenwatch settings from a YAML file, with sane
// defaults for everything so the tool works with no config at all.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/keisuke-w/tokenwatch/internal/auth"
	"github.com/keisuke-w/tokenwatch/internal/util"
)

// DefaultPath is consulted when no --config flag is given.
const DefaultPath = "~/.tokenwatch/config.yaml"

// AccountConfig is one account entry. The refresh token may be inline or
// loaded from a separate file so the config itself can stay secret-free.
type AccountConfig struct {
	Email            string `mapstructure:"email"`
	ProjectID        string `mapstructure:"project_id"`
	RefreshToken     string `mapstructure:"refresh_token"`
	RefreshTokenFile string `mapstructure:"refresh_token_file"`
}

// PricingConfig selects the pricing catalog source.
type PricingConfig struct {
	Source  string `mapstructure:"source"`  // default | litellm
	Offline bool   `mapstructure:"offline"` // serve from the on-disk cache only
}

// QuotaConfig holds the endpoints and knobs for the quota command.
type QuotaConfig struct {
	TokenURL       string   `mapstructure:"token_url"`
	QuotaURL       string   `mapstructure:"quota_url"`
	Concurrency    int      `mapstructure:"concurrency"`
	RequiredModels []string `mapstructure:"required_models"`
}

// LogConfig configures the structured logger.
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// Config is the full resolved configuration.
type Config struct {
	DataDir  string          `mapstructure:"data_dir"`
	CacheDir string          `mapstructure:"cache_dir"`
	AuthFile string          `mapstructure:"auth_file"`
	Pricing  PricingConfig   `mapstructure:"pricing"`
	Quota    QuotaConfig     `mapstructure:"quota"`
	Accounts []AccountConfig `mapstructure:"accounts"`
	Log      LogConfig       `mapstructure:"log"`
}

// Load reads the config at path (DefaultPath when empty). A missing file is
// not an error; the defaults apply.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	path = util.ExpandPath(path)

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	content, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := v.ReadConfig(strings.NewReader(string(content))); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// fall through to defaults
	default:
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.DataDir = util.ExpandPath(cfg.DataDir)
	cfg.CacheDir = util.ExpandPath(cfg.CacheDir)
	cfg.AuthFile = util.ExpandPath(cfg.AuthFile)
	cfg.Log.File = util.ExpandPath(cfg.Log.File)
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", "~/.tokenwatch/usage")
	v.SetDefault("cache_dir", "~/.tokenwatch/cache")
	v.SetDefault("auth_file", "~/.tokenwatch/auth.json")

	v.SetDefault("pricing.source", "default")
	v.SetDefault("pricing.offline", false)

	v.SetDefault("quota.token_url", "https://oauth2.googleapis.com/token")
	v.SetDefault("quota.quota_url", "https://cloudcode-pa.googleapis.com/v1internal:fetchQuota")
	v.SetDefault("quota.concurrency", 3)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "~/.tokenwatch/logs/app.log")
}

// Credentials materializes the account list, reading any refresh_token_file
// entries. Accounts missing both token sources or a project id are rejected
// so a misconfiguration fails loudly rather than as a silent auth error.
func (c *Config) Credentials() ([]auth.Credential, error) {
	creds := make([]auth.Credential, 0, len(c.Accounts))
	for i, acct := range c.Accounts {
		token := acct.RefreshToken
		if token == "" && acct.RefreshTokenFile != "" {
			raw, err := os.ReadFile(util.ExpandPath(acct.RefreshTokenFile))
			if err != nil {
				return nil, fmt.Errorf("account %d (%s): failed to read refresh token file: %w",
					i+1, acct.Email, err)
			}
			token = strings.TrimSpace(string(raw))
		}
		if token == "" {
			return nil, fmt.Errorf("account %d (%s): no refresh_token or refresh_token_file", i+1, acct.Email)
		}
		if acct.ProjectID == "" {
			return nil, fmt.Errorf("account %d (%s): project_id is required", i+1, acct.Email)
		}
		creds = append(creds, auth.Credential{
			RefreshToken: token,
			ProjectID:    acct.ProjectID,
			Email:        acct.Email,
		})
	}
	return creds, nil
}
