package s3

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"datasethub/internal/logutils"
)

type Config struct {
	AccessKeyID     string        `mapstructure:"AccessKeyID"`
	SecretAccessKey string        `mapstructure:"SecretAccessKey"`
	Bucket          string        `mapstructure:"Bucket"`
	Endpoint        string        `mapstructure:"Endpoint"`
	Region          string        `mapstructure:"Region"`
	UsePathStyle    bool          `mapstructure:"UsePathStyle"`
	PresignTTL      time.Duration `mapstructure:"PresignTTL"`
}

func NewConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	v.BindEnv("AccessKeyID", "S3_ACCESS_KEY_ID")
	v.BindEnv("SecretAccessKey", "S3_SECRET_ACCESS_KEY")
	v.BindEnv("Bucket", "S3_BUCKET")
	v.BindEnv("Endpoint", "S3_ENDPOINT")
	v.BindEnv("Region", "S3_REGION")
	v.BindEnv("UsePathStyle", "S3_USE_PATH_STYLE")
	v.BindEnv("PresignTTL", "S3_PRESIGN_TTL")

	v.SetDefault("Endpoint", "https://storage.yandexcloud.net")
	v.SetDefault("Region", "ru-central1")
	v.SetDefault("PresignTTL", time.Hour)

	if err := v.ReadInConfig(); err != nil {
		logutils.Component("s3").WithError(err).Warn("Using only environment variables for S3")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("cannot unmarshal config: %w", err)
	}

	// Проверяем, что все необходимые поля заполнены
	if cfg.AccessKeyID == "" {
		return nil, fmt.Errorf("AccessKeyID is required")
	}
	if cfg.SecretAccessKey == "" {
		return nil, fmt.Errorf("SecretAccessKey is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("Bucket is required")
	}

	return &cfg, nil
}
