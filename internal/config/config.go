package config

import (
	"os"
	"strings"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server     ServerConfig
	Redis      RedisConfig
	Storage    StorageConfig
	Cache      CacheConfig
	RateLimit  RateLimitConfig
	R2         R2Config
	Apollo     ApolloConfig
	SalesQL    SalesQLConfig
	Perplexity PerplexityConfig
}

type ServerConfig struct {
	Port        string
	Env         string
	LogLevel    string
	CORSOrigins string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type StorageConfig struct {
	UploadDir    string
	ResultsDir   string
	CacheDir     string
	CleanupHours int
}

type CacheConfig struct {
	ExpiryDays int
}

type RateLimitConfig struct {
	MergePerHour    int
	ValidatePerHour int
	ResearchPerHour int
	UploadPerHour   int
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
}

type ApolloConfig struct {
	APIKey  string
	BaseURL string
}

type SalesQLConfig struct {
	APIKey  string
	BaseURL string
}

type PerplexityConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("R2_ACCOUNT_ID")
	readSecret("R2_ACCESS_KEY_ID")
	readSecret("R2_SECRET_ACCESS_KEY")
	readSecret("APOLLO_API_KEY")
	readSecret("SALESQL_API_KEY")
	readSecret("PERPLEXITY_API_KEY")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = viper.BindEnv("server.port", "SERVER_PORT")
	_ = viper.BindEnv("server.env", "SERVER_ENV")
	_ = viper.BindEnv("server.log_level", "LOG_LEVEL")
	_ = viper.BindEnv("server.cors_origins", "CORS_ORIGINS")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("storage.upload_dir", "UPLOAD_DIR")
	_ = viper.BindEnv("storage.results_dir", "RESULTS_DIR")
	_ = viper.BindEnv("storage.cache_dir", "CACHE_DIR")
	_ = viper.BindEnv("storage.cleanup_hours", "FILE_CLEANUP_HOURS")
	_ = viper.BindEnv("cache.expiry_days", "CACHE_EXPIRY_DAYS")
	_ = viper.BindEnv("ratelimit.merge_per_hour", "RATELIMIT_MERGE_PER_HOUR")
	_ = viper.BindEnv("ratelimit.validate_per_hour", "RATELIMIT_VALIDATE_PER_HOUR")
	_ = viper.BindEnv("ratelimit.research_per_hour", "RATELIMIT_RESEARCH_PER_HOUR")
	_ = viper.BindEnv("ratelimit.upload_per_hour", "RATELIMIT_UPLOAD_PER_HOUR")
	_ = viper.BindEnv("r2.account_id", "R2_ACCOUNT_ID")
	_ = viper.BindEnv("r2.access_key_id", "R2_ACCESS_KEY_ID")
	_ = viper.BindEnv("r2.secret_access_key", "R2_SECRET_ACCESS_KEY")
	_ = viper.BindEnv("r2.bucket_name", "R2_BUCKET_NAME")
	_ = viper.BindEnv("r2.public_url", "R2_PUBLIC_URL")
	_ = viper.BindEnv("apollo.api_key", "APOLLO_API_KEY")
	_ = viper.BindEnv("apollo.base_url", "APOLLO_BASE_URL")
	_ = viper.BindEnv("salesql.api_key", "SALESQL_API_KEY")
	_ = viper.BindEnv("salesql.base_url", "SALESQL_BASE_URL")
	_ = viper.BindEnv("perplexity.api_key", "PERPLEXITY_API_KEY")
	_ = viper.BindEnv("perplexity.base_url", "PERPLEXITY_BASE_URL")
	_ = viper.BindEnv("perplexity.model", "PERPLEXITY_MODEL")

	// Defaults
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("server.cors_origins", "http://localhost:4321")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("storage.upload_dir", "storage/uploads")
	viper.SetDefault("storage.results_dir", "storage/results")
	viper.SetDefault("storage.cache_dir", "storage/cache")
	viper.SetDefault("storage.cleanup_hours", 1)
	viper.SetDefault("cache.expiry_days", 30)
	viper.SetDefault("ratelimit.merge_per_hour", 30)
	viper.SetDefault("ratelimit.validate_per_hour", 20)
	viper.SetDefault("ratelimit.research_per_hour", 10)
	viper.SetDefault("ratelimit.upload_per_hour", 50)

	// Third-party API defaults
	viper.SetDefault("apollo.base_url", "https://api.apollo.io/api/v1")
	viper.SetDefault("salesql.base_url", "https://api-public.salesql.com/v1")
	viper.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	viper.SetDefault("perplexity.model", "sonar-pro")

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:        viper.GetString("server.port"),
			Env:         viper.GetString("server.env"),
			LogLevel:    viper.GetString("server.log_level"),
			CORSOrigins: viper.GetString("server.cors_origins"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		Storage: StorageConfig{
			UploadDir:    viper.GetString("storage.upload_dir"),
			ResultsDir:   viper.GetString("storage.results_dir"),
			CacheDir:     viper.GetString("storage.cache_dir"),
			CleanupHours: viper.GetInt("storage.cleanup_hours"),
		},
		Cache: CacheConfig{
			ExpiryDays: viper.GetInt("cache.expiry_days"),
		},
		RateLimit: RateLimitConfig{
			MergePerHour:    viper.GetInt("ratelimit.merge_per_hour"),
			ValidatePerHour: viper.GetInt("ratelimit.validate_per_hour"),
			ResearchPerHour: viper.GetInt("ratelimit.research_per_hour"),
			UploadPerHour:   viper.GetInt("ratelimit.upload_per_hour"),
		},
		R2: R2Config{
			AccountID:       viper.GetString("r2.account_id"),
			AccessKeyID:     viper.GetString("r2.access_key_id"),
			SecretAccessKey: viper.GetString("r2.secret_access_key"),
			BucketName:      viper.GetString("r2.bucket_name"),
			PublicURL:       viper.GetString("r2.public_url"),
		},
		Apollo: ApolloConfig{
			APIKey:  viper.GetString("apollo.api_key"),
			BaseURL: viper.GetString("apollo.base_url"),
		},
		SalesQL: SalesQLConfig{
			APIKey:  viper.GetString("salesql.api_key"),
			BaseURL: viper.GetString("salesql.base_url"),
		},
		Perplexity: PerplexityConfig{
			APIKey:  viper.GetString("perplexity.api_key"),
			BaseURL: viper.GetString("perplexity.base_url"),
			Model:   viper.GetString("perplexity.model"),
		},
	}

	return cfg, nil
}

// CORSOriginsList splits the comma-separated origins value.
func (c *ServerConfig) CORSOriginsList() []string {
	parts := strings.Split(c.CORSOrigins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
