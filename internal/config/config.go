package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Auth     AuthConfig
	Email    EmailConfig
	Storage  StorageConfig
	Cookie   CookieConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	AllowedOrigins []string
	TrustedProxies []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
}

type AuthConfig struct {
	AccessTokenSecret  string
	RefreshTokenSecret string
	CryptoSecret       string // HMAC key for reset capability tokens
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
	ResetTokenExpiry   time.Duration
	OtpLength          int
	OtpExpiry          time.Duration
	OtpResendCooldown  time.Duration
	OtpMaxAttempts     int
	LoginMaxAttempts   int
	LockDuration       time.Duration
	// The upstream system shipped a 1-minute value here while documenting
	// 24 hours. Default is 24h; override with REACTIVATION_COOLDOWN.
	ReactivationCooldown time.Duration
	CleanupInterval      time.Duration
	TimingDelayBaseMs    int
	TimingDelayRandomMs  int
}

type EmailConfig struct {
	AWSRegion   string
	FromAddress string
}

type StorageConfig struct {
	AWSRegion    string
	Bucket       string
	AvatarFolder string
}

type CookieConfig struct {
	Domain   string
	Secure   bool
	SameSite string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	env := getEnv("ENV", "development")

	accessSecret := getEnv("JWT_ACCESS_SECRET", getEnv("JWT_SECRET", ""))
	refreshSecret := getEnv("JWT_REFRESH_SECRET", getEnv("JWT_SECRET", ""))
	cryptoSecret := getEnv("CRYPTO_SECRET", getEnv("JWT_SECRET", ""))
	if accessSecret == "" || refreshSecret == "" {
		return nil, fmt.Errorf("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET (or JWT_SECRET) are required")
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "taskvault"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			AllowedOrigins: parseAllowedOrigins(env),
			TrustedProxies: parseTrustedProxies(env),
			ReadTimeout:    getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:    getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		Auth: AuthConfig{
			AccessTokenSecret:    accessSecret,
			RefreshTokenSecret:   refreshSecret,
			CryptoSecret:         cryptoSecret,
			AccessTokenExpiry:    getEnvAsDuration("ACCESS_TOKEN_EXPIRY", 15*time.Minute),
			RefreshTokenExpiry:   getEnvAsDuration("REFRESH_TOKEN_EXPIRY", 7*24*time.Hour),
			ResetTokenExpiry:     getEnvAsDuration("RESET_TOKEN_EXPIRY", 5*time.Minute),
			OtpLength:            getEnvAsInt("OTP_CODE_LENGTH", 6),
			OtpExpiry:            getEnvAsDuration("OTP_EXPIRY", 5*time.Minute),
			OtpResendCooldown:    getEnvAsDuration("OTP_RESEND_COOLDOWN", 60*time.Second),
			OtpMaxAttempts:       getEnvAsInt("OTP_MAX_ATTEMPTS", 5),
			LoginMaxAttempts:     getEnvAsInt("LOGIN_MAX_ATTEMPTS", 5),
			LockDuration:         getEnvAsDuration("ACCOUNT_LOCK_DURATION", 24*time.Hour),
			ReactivationCooldown: getEnvAsDuration("REACTIVATION_COOLDOWN", 24*time.Hour),
			CleanupInterval:      getEnvAsDuration("TOKEN_CLEANUP_INTERVAL", 1*time.Hour),
			TimingDelayBaseMs:    getEnvAsInt("TIMING_DELAY_BASE_MS", 100),
			TimingDelayRandomMs:  getEnvAsInt("TIMING_DELAY_RANDOM_MS", 100),
		},
		Email: EmailConfig{
			AWSRegion:   getEnv("AWS_REGION", "us-east-1"),
			FromAddress: getEnv("EMAIL_FROM", "no-reply@taskvault.dev"),
		},
		Storage: StorageConfig{
			AWSRegion:    getEnv("AWS_REGION", "us-east-1"),
			Bucket:       getEnv("S3_BUCKET", "taskvault-uploads"),
			AvatarFolder: getEnv("S3_AVATAR_FOLDER", "uploads/avatars"),
		},
		Cookie: CookieConfig{
			Domain:   getEnv("COOKIE_DOMAIN", ""),
			Secure:   env == "production",
			SameSite: getEnv("COOKIE_SAMESITE", defaultSameSite(env)),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	for name, secret := range map[string]string{
		"JWT_ACCESS_SECRET":  accessSecret,
		"JWT_REFRESH_SECRET": refreshSecret,
	} {
		if err := validateSecret(name, secret, env); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// validateSecret enforces minimum strength for signing secrets
func validateSecret(name, secret, env string) error {
	minLength := 16 // Development minimum
	if env == "production" {
		minLength = 32 // 256 bits
	}

	if len(secret) < minLength {
		return fmt.Errorf("%s must be at least %d characters in %s environment (got %d)",
			name, minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("%s cannot be a common weak value", name)
		}
	}

	return nil
}

func defaultSameSite(env string) string {
	if env == "production" {
		return "none"
	}
	return "lax"
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func parseAllowedOrigins(env string) []string {
	if env == "production" {
		originsStr := getEnv("ALLOWED_ORIGINS", "")
		if originsStr == "" {
			return []string{} // Default to no origins in production
		}
		origins := strings.Split(originsStr, ",")
		for i, origin := range origins {
			origins[i] = strings.TrimSpace(origin)
		}
		return origins
	}

	// Development: allow localhost variants
	return []string{
		"http://localhost:3000",
		"http://localhost:8080",
		"http://localhost:5173",
		"http://127.0.0.1:3000",
		"http://127.0.0.1:8080",
		"http://127.0.0.1:5173",
	}
}

// parseTrustedProxies reads the CIDR ranges whose forwarding headers we
// believe. Production defaults to none, so a misconfigured deployment fails
// toward treating the load balancer as the client rather than trusting
// spoofable headers.
func parseTrustedProxies(env string) []string {
	proxiesStr := getEnv("TRUSTED_PROXIES", "")
	if proxiesStr != "" {
		proxies := strings.Split(proxiesStr, ",")
		for i, p := range proxies {
			proxies[i] = strings.TrimSpace(p)
		}
		return proxies
	}

	if env == "production" {
		return []string{}
	}

	// Development: trust a reverse proxy on the same machine
	return []string{"127.0.0.1/32", "::1/128"}
}
