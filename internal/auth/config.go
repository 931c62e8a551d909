package auth

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"datasethub/internal/logutils"
)

type Config struct {
	Secret string        `mapstructure:"Secret"`
	Issuer string        `mapstructure:"Issuer"`
	Leeway time.Duration `mapstructure:"Leeway"`
}

func NewConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.BindEnv("Secret", "AUTH_SECRET")
	v.BindEnv("Issuer", "AUTH_ISSUER")
	v.SetDefault("Leeway", 30*time.Second)

	if err := v.ReadInConfig(); err != nil {
		logutils.Component("auth").WithError(err).Warn("Using only environment variables for auth")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("cannot unmarshal config: %w", err)
	}

	if cfg.Secret == "" {
		return nil, fmt.Errorf("Secret is required")
	}

	return &cfg, nil
}
