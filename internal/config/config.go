package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// Максимальная глубина выплат реферальных наград
const MaxRewardDepth = 12

// Config содержит все конфигурационные параметры приложения
type Config struct {
	Database DatabaseConfig
	App      AppConfig
	Referral ReferralConfig
	Upload   UploadConfig
	Archive  ArchiveConfig
}

type DatabaseConfig struct {
	URL           string
	Host          string
	Port          int
	User          string
	Password      string
	Name          string
	SSLMode       string
	MaxConns      int
	MinConns      int
	MigrationPath string
}

type AppConfig struct {
	Env      string
	LogLevel string
	Port     int
}

// ReferralConfig содержит настройки реферальной программы
type ReferralConfig struct {
	SiteDomain     string
	CodeAttempts   int
	MaxRewardDepth int
	// StrictParent включает отказ в регистрации при неизвестном коде пригласившего
	StrictParent bool
}

// UploadConfig содержит настройки загрузки файлов
type UploadConfig struct {
	Dir      string
	MaxBytes int64
}

// ArchiveConfig содержит настройки S3-совместимого архива входящих событий.
// Пустой Bucket отключает архив.
type ArchiveConfig struct {
	Bucket       string
	Prefix       string
	Region       string
	Endpoint     string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
}

// Load загружает конфигурацию из переменных окружения и .env
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	// Database
	cfg.Database.URL = os.Getenv("DATABASE_URL")
	cfg.Database.Host = getEnvDefault("DB_HOST", "localhost")
	cfg.Database.Port = getEnvIntDefault("DB_PORT", 5432)
	cfg.Database.User = os.Getenv("DB_USER")
	cfg.Database.Password = os.Getenv("DB_PASSWORD")
	cfg.Database.Name = os.Getenv("DB_NAME")
	cfg.Database.SSLMode = getEnvDefault("DB_SSL_MODE", "disable")
	cfg.Database.MaxConns = getEnvIntDefault("DB_MAX_CONNS", 10)
	cfg.Database.MinConns = getEnvIntDefault("DB_MIN_CONNS", 2)
	cfg.Database.MigrationPath = getEnvDefault("MIGRATION_PATH", "scripts/migrations")

	// App
	cfg.App.Env = getEnvDefault("APP_ENV", "development")
	cfg.App.LogLevel = getEnvDefault("LOG_LEVEL", "info")
	cfg.App.Port = getEnvIntDefault("APP_PORT", getEnvIntDefault("PORT", 3000))

	// Referral
	cfg.Referral.SiteDomain = getEnvDefault("SITE_DOMAIN", "jobsy.com")
	cfg.Referral.CodeAttempts = getEnvIntDefault("REFERRAL_CODE_ATTEMPTS", 10)
	cfg.Referral.MaxRewardDepth = getEnvIntDefault("REFERRAL_MAX_DEPTH", MaxRewardDepth)
	cfg.Referral.StrictParent = getEnvBoolDefault("REFERRAL_STRICT_PARENT", false)

	// Upload
	cfg.Upload.Dir = getEnvDefault("UPLOAD_DIR", "uploads")
	cfg.Upload.MaxBytes = int64(getEnvIntDefault("UPLOAD_MAX_BYTES", 10<<20))

	// Archive
	cfg.Archive.Bucket = os.Getenv("ARCHIVE_BUCKET")
	cfg.Archive.Prefix = getEnvDefault("ARCHIVE_PREFIX", "identity-events")
	cfg.Archive.Region = getEnvDefault("ARCHIVE_REGION", "us-east-1")
	cfg.Archive.Endpoint = os.Getenv("ARCHIVE_ENDPOINT")
	cfg.Archive.AccessKey = os.Getenv("ARCHIVE_ACCESS_KEY_ID")
	cfg.Archive.SecretKey = os.Getenv("ARCHIVE_SECRET_ACCESS_KEY")
	cfg.Archive.UsePathStyle = getEnvBoolDefault("ARCHIVE_USE_PATH_STYLE", true)

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("ошибка валидации конфигурации: %w", err)
	}

	return cfg, nil
}

func getEnvDefault(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getEnvIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getEnvBoolDefault(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// validateConfig проверяет корректность конфигурации
func validateConfig(config *Config) error {
	if config.Database.URL == "" {
		if config.Database.Host == "" {
			return fmt.Errorf("DB_HOST не установлен")
		}
		if config.Database.User == "" {
			return fmt.Errorf("DB_USER не установлен")
		}
		if config.Database.Password == "" {
			return fmt.Errorf("DB_PASSWORD не установлен")
		}
		if config.Database.Name == "" {
			return fmt.Errorf("DB_NAME не установлен")
		}
	}
	if config.Referral.SiteDomain == "" {
		return fmt.Errorf("SITE_DOMAIN не установлен")
	}
	if config.Referral.CodeAttempts < 1 {
		return fmt.Errorf("REFERRAL_CODE_ATTEMPTS должен быть не меньше 1")
	}
	if config.Referral.MaxRewardDepth < 1 || config.Referral.MaxRewardDepth > MaxRewardDepth {
		return fmt.Errorf("REFERRAL_MAX_DEPTH должен быть от 1 до %d", MaxRewardDepth)
	}
	if config.Upload.Dir == "" {
		return fmt.Errorf("UPLOAD_DIR не установлен")
	}
	if config.Upload.MaxBytes <= 0 {
		return fmt.Errorf("UPLOAD_MAX_BYTES должен быть больше 0")
	}
	if config.Archive.Bucket != "" && (config.Archive.AccessKey == "" || config.Archive.SecretKey == "") {
		return fmt.Errorf("для ARCHIVE_BUCKET нужны ARCHIVE_ACCESS_KEY_ID и ARCHIVE_SECRET_ACCESS_KEY")
	}

	return nil
}

// GetDSN возвращает строку подключения к базе данных
func (c *DatabaseConfig) GetDSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

// GetURL возвращает строку подключения в формате URL для database/sql.
// Имя пользователя и пароль экранируются.
func (c *DatabaseConfig) GetURL() string {
	if c.URL != "" {
		return c.URL
	}
	u := url.URL{
		Scheme:   "postgresql",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:     "/" + c.Name,
		RawQuery: url.Values{"sslmode": {c.SSLMode}}.Encode(),
	}
	return u.String()
}

// Enabled проверяет, включен ли архив событий
func (c *ArchiveConfig) Enabled() bool {
	return c.Bucket != ""
}

// IsDevelopment проверяет, запущено ли приложение в режиме разработки
func (c *AppConfig) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction проверяет, запущено ли приложение в продакшн режиме
func (c *AppConfig) IsProduction() bool {
	return c.Env == "production"
}

// GetLogLevel возвращает уровень логирования в формате zap
func (c *AppConfig) GetLogLevel() zap.AtomicLevel {
	switch c.LogLevel {
	case "debug":
		return zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		return zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		return zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		return zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		return zap.NewAtomicLevelAt(zap.InfoLevel)
	}
}
