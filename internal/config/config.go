package config

import (
	"errors"  // For validation errors
	"os"      // For environment variables
	"strconv" // For string to int conversion
	"strings" // For list parsing
	"time"    // For durations

	"github.com/joho/godotenv" // For loading .env files
)

// Config holds the application configuration
type Config struct {
	AppPort    string // Application port
	AppVersion string // Reported by /api/info and /api/health
	IsProd     bool   // Is production environment

	DBDriver    string // mysql, postgres or sqlite
	DBUser      string // Database user
	DBPassword  string // Database password
	DBHost      string // Database host
	DBPort      string // Database port
	DBName      string // Database name (file path for sqlite)
	AutoMigrate bool   // Run schema migration on server start

	JWTSecret       string // Shared secret of the external auth provider
	AdminAPIKeyHash string // bcrypt hash of the admin X-API-Key

	RedisAddr string // Redis server address, empty disables Redis
	RedisPass string // Redis password
	RedisDB   int    // Redis database number
	CacheTTL  time.Duration

	RateLimitMax    int           // Requests allowed per window
	RateLimitWindow time.Duration // Sliding window length

	CORSOrigins []string // Browser origins allowed to call the API, empty disables CORS

	LedgerTimeout time.Duration // Upper bound on a single ledger mutation
	MaxBodyBytes  int64         // Request body limit
	ImageBaseURL  string        // Placeholder image service
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	_ = godotenv.Load() // Load .env file if present
	return &Config{
		AppPort:    getEnv("APP_PORT", "8080"),
		AppVersion: getEnv("APP_VERSION", "1.0.0"),
		IsProd:     os.Getenv("IS_PROD") == "true",

		DBDriver:    strings.ToLower(getEnv("DB_DRIVER", "mysql")),
		DBUser:      os.Getenv("DB_USER"),
		DBPassword:  os.Getenv("DB_PASSWORD"),
		DBHost:      getEnv("DB_HOST", "127.0.0.1"),
		DBPort:      os.Getenv("DB_PORT"),
		DBName:      getEnv("DB_NAME", "pixelforge"),
		AutoMigrate: os.Getenv("AUTO_MIGRATE") == "true",

		JWTSecret:       os.Getenv("JWT_SECRET"),
		AdminAPIKeyHash: os.Getenv("ADMIN_API_KEY_HASH"),

		RedisAddr: os.Getenv("REDIS_ADDR"),
		RedisPass: os.Getenv("REDIS_PASS"),
		RedisDB:   getInt("REDIS_DB", 0),
		CacheTTL:  getDuration("CACHE_TTL", 30*time.Second),

		RateLimitMax:    getInt("RATE_LIMIT_MAX", 100),
		RateLimitWindow: getDuration("RATE_LIMIT_WINDOW", 15*time.Minute),

		CORSOrigins: getList("CORS_ORIGINS", defaultCORSOrigins),

		LedgerTimeout: getDuration("LEDGER_TIMEOUT", 5*time.Second),
		MaxBodyBytes:  int64(getInt("MAX_BODY_BYTES", 10<<20)),
		ImageBaseURL:  getEnv("IMAGE_BASE_URL", "https://picsum.photos"),
	}
}

// defaultCORSOrigins are the web app's dev servers and deployed hosts
var defaultCORSOrigins = []string{
	"http://localhost:5173",
	"http://localhost:3000",
	"https://pixelforge.app",
	"https://staging.pixelforge.app",
}

// Validate rejects settings the server must not start with
func (c *Config) Validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required")) // Empty keys verify forged tokens
	}
	if c.RateLimitMax <= 0 || c.RateLimitWindow <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_MAX and RATE_LIMIT_WINDOW must be positive"))
	}
	if c.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("MAX_BODY_BYTES must be positive"))
	}
	for _, o := range c.CORSOrigins {
		if !strings.HasPrefix(o, "http://") && !strings.HasPrefix(o, "https://") {
			errs = append(errs, errors.New("CORS_ORIGINS entry "+strconv.Quote(o)+" must start with http:// or https://"))
		}
	}
	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

// getDuration accepts Go duration strings ("15m") or plain seconds ("900").
func getDuration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

// getList splits a comma separated variable. A variable that is set but empty
// yields an empty list
func getList(key string, fallback []string) []string {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, v := range strings.Split(raw, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
