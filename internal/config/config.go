package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"datasethub/internal/logutils"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"Server"`
	Database DatabaseConfig `mapstructure:"Database"`
	Redis    RedisConfig    `mapstructure:"Redis"`
	Upload   UploadConfig   `mapstructure:"Upload"`
	Log      LogConfig      `mapstructure:"Log"`
}

type ServerConfig struct {
	Port     string `mapstructure:"Port"`
	BaseURL  string `mapstructure:"BaseURL"`
	GRPCPort string `mapstructure:"GRPCPort"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"Host"`
	Port     string `mapstructure:"Port"`
	User     string `mapstructure:"User"`
	Password string `mapstructure:"Password"`
	Name     string `mapstructure:"Name"`
	SSLMode  string `mapstructure:"SSLMode"`
}

// RedisConfig описывает подключение к хранилищу документов.
// Пустой Addr означает работу без Redis (индекс в памяти).
type RedisConfig struct {
	Addr     string `mapstructure:"Addr"`
	Password string `mapstructure:"Password"`
	DB       int    `mapstructure:"DB"`
}

// UploadConfig задает ограничения на пакет загружаемых файлов
type UploadConfig struct {
	MaxFileSize       int64    `mapstructure:"MaxFileSize"`
	MaxBatchSize      int64    `mapstructure:"MaxBatchSize"`
	AllowedExtensions []string `mapstructure:"AllowedExtensions"`
	Concurrency       int      `mapstructure:"Concurrency"`
}

type LogConfig struct {
	Level string `mapstructure:"Level"`
}

const (
	defaultMaxFileSize = 100 * 1024 * 1024
	defaultConcurrency = 4
)

// DefaultAllowedExtensions - расширения, разрешенные для файлов датасета
var DefaultAllowedExtensions = []string{
	"txt", "csv", "json", "xlsx", "xls", "parquet",
	"jpg", "jpeg", "png", "gif", "bmp", "webp",
}

func NewConfig(path string) (*Config, error) {
	v := viper.New()

	// Устанавливаем файл конфигурации
	v.SetConfigFile(path)

	// Привязываем переменные окружения
	v.BindEnv("Database.Host", "DATABASE_HOST")
	v.BindEnv("Database.Port", "DATABASE_PORT")
	v.BindEnv("Database.User", "DATABASE_USER")
	v.BindEnv("Database.Password", "DATABASE_PASSWORD")
	v.BindEnv("Database.Name", "DATABASE_NAME")
	v.BindEnv("Database.SSLMode", "DATABASE_SSLMODE")
	v.BindEnv("Server.Port", "HTTP_PORT")
	v.BindEnv("Server.GRPCPort", "GRPC_PORT")
	v.BindEnv("Server.BaseURL", "BASE_URL")
	v.BindEnv("Redis.Addr", "REDIS_ADDR")
	v.BindEnv("Redis.Password", "REDIS_PASSWORD")
	v.BindEnv("Redis.DB", "REDIS_DB")
	v.BindEnv("Upload.MaxFileSize", "UPLOAD_MAX_FILE_SIZE")
	v.BindEnv("Upload.MaxBatchSize", "UPLOAD_MAX_BATCH_SIZE")
	v.BindEnv("Upload.AllowedExtensions", "UPLOAD_ALLOWED_EXTENSIONS")
	v.BindEnv("Upload.Concurrency", "UPLOAD_CONCURRENCY")
	v.BindEnv("Log.Level", "LOG_LEVEL")

	// Установка значений по умолчанию
	v.SetDefault("Database.SSLMode", "disable")
	v.SetDefault("Server.Port", "2525")
	v.SetDefault("Server.GRPCPort", "50051")
	v.SetDefault("Upload.MaxFileSize", defaultMaxFileSize)
	v.SetDefault("Upload.Concurrency", defaultConcurrency)
	v.SetDefault("Log.Level", "info")

	// Читаем конфигурацию из файла
	if err := v.ReadInConfig(); err != nil {
		logutils.Component("config").WithError(err).Warn("Using only environment variables")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Проверяем, что все необходимые поля заполнены
	if cfg.Database.Host == "" ||
		cfg.Database.Port == "" ||
		cfg.Database.User == "" ||
		cfg.Database.Password == "" ||
		cfg.Database.Name == "" {
		return nil, fmt.Errorf("database configuration is incomplete: host=%s, port=%s, user=%s, name=%s",
			cfg.Database.Host, cfg.Database.Port, cfg.Database.User, cfg.Database.Name)
	}

	cfg.Upload.normalize()

	return &cfg, nil
}

// normalize приводит ограничения загрузки к допустимым значениям.
// Лимит на пакет по умолчанию в десять раз больше лимита на файл.
func (u *UploadConfig) normalize() {
	if u.MaxFileSize <= 0 {
		u.MaxFileSize = defaultMaxFileSize
	}
	if u.MaxBatchSize <= 0 {
		u.MaxBatchSize = u.MaxFileSize * 10
	}
	if u.Concurrency <= 0 {
		u.Concurrency = defaultConcurrency
	}

	// Из переменной окружения список приходит одной строкой через запятую
	if len(u.AllowedExtensions) == 1 && strings.Contains(u.AllowedExtensions[0], ",") {
		u.AllowedExtensions = strings.Split(u.AllowedExtensions[0], ",")
	}
	exts := make([]string, 0, len(u.AllowedExtensions))
	for _, ext := range u.AllowedExtensions {
		ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
		if ext != "" {
			exts = append(exts, ext)
		}
	}
	if len(exts) == 0 {
		exts = append(exts, DefaultAllowedExtensions...)
	}
	u.AllowedExtensions = exts
}

func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		c.Password,
		c.Name,
		c.SSLMode,
	)
}

// GetURL возвращает адрес базы в формате, который ожидает golang-migrate
func (c *DatabaseConfig) GetURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.Name,
		c.SSLMode,
	)
}
