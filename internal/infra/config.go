package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	StorageDriverFS = "fs"
	StorageDriverS3 = "s3"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	GeoIPDBPath        string
	OpenAIAPIKey       string
	OpenAIBaseURL      string
	OpenAIOrg          string
	OpenAIChatModel    string
	OpenAIImageModel   string
	ImageSize          string
	EnvFile            string
	OutputDir          string
	StorageDriver      string
	S3Bucket           string
	S3Region           string
	S3Endpoint         string
	S3Prefix           string
	S3AccessKeyID      string
	S3SecretAccessKey  string
	S3PathStyle        bool
	CORSAllowedOrigins []string
	RateLimitPerMin    int
	ImageRatePerMin    int
	ColorCacheTTL      time.Duration
	HTTPReadTimeout    time.Duration
	HTTPWriteTimeout   time.Duration
	HTTPIdleTimeout    time.Duration
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:             getEnv("APP_ENV", "development"),
		Port:               getEnv("PORT", "8080"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		GeoIPDBPath:        os.Getenv("GEOIP_DB_PATH"),
		OpenAIAPIKey:       strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		OpenAIBaseURL:      getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIOrg:          os.Getenv("OPENAI_ORG"),
		OpenAIChatModel:    getEnv("OPENAI_CHAT_MODEL", "gpt-3.5-turbo"),
		OpenAIImageModel:   getEnv("OPENAI_IMAGE_MODEL", "gpt-image-1"),
		ImageSize:          getEnv("IMAGE_SIZE", "1024x1024"),
		EnvFile:            getEnv("ENV_FILE", ".env.local"),
		OutputDir:          getEnv("OUTPUT_DIR", "public/generated"),
		StorageDriver:      strings.ToLower(getEnv("STORAGE_DRIVER", StorageDriverFS)),
		S3Bucket:           os.Getenv("S3_BUCKET"),
		S3Region:           getEnv("S3_REGION", "us-east-1"),
		S3Endpoint:         os.Getenv("S3_ENDPOINT"),
		S3Prefix:           getEnv("S3_PREFIX", "generated"),
		S3AccessKeyID:      os.Getenv("S3_ACCESS_KEY_ID"),
		S3SecretAccessKey:  os.Getenv("S3_SECRET_ACCESS_KEY"),
		S3PathStyle:        getEnvBool("S3_PATH_STYLE", false),
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		RateLimitPerMin:    getEnvInt("RATE_LIMIT_PER_MINUTE", 120),
		ImageRatePerMin:    getEnvInt("IMAGE_RATE_PER_MINUTE", 0),
		ColorCacheTTL:      time.Minute * time.Duration(getEnvInt("COLOR_CACHE_TTL_MINUTES", 60)),
		HTTPReadTimeout:    time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 30)),
		HTTPWriteTimeout:   time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 600)),
		HTTPIdleTimeout:    time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
	}

	switch cfg.StorageDriver {
	case StorageDriverFS:
		if strings.TrimSpace(cfg.OutputDir) == "" {
			return nil, fmt.Errorf("OUTPUT_DIR is required")
		}
	case StorageDriverS3:
		if strings.TrimSpace(cfg.S3Bucket) == "" {
			return nil, fmt.Errorf("S3_BUCKET is required when STORAGE_DRIVER=s3")
		}
	default:
		return nil, fmt.Errorf("unsupported STORAGE_DRIVER %q", cfg.StorageDriver)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
