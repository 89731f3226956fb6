package config

import (
	"fmt"
	"net"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Environment constants
const (
	EnvProduction = "production"
)

// Rate limit store backends.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// Config holds all application configuration.
type Config struct {
	App       AppConfig
	Server    ServerConfig
	Log       LogConfig
	Security  SecurityConfig
	RateLimit RateLimitConfig
	Identity  IdentityConfig
	LLM       LLMConfig
	Voice     VoiceConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Tracing   TracingConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Name    string
	Env     string
	Debug   bool
	Version string
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	RequestTimeout  time.Duration // Per-request handler timeout
	ShutdownTimeout time.Duration
	MaxBodySize     int64
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string
	Format string

	// HTTP logging configuration
	SkipHealthLogs     bool
	SlowRequestSeconds int
}

// SecurityConfig holds the gate, origin and payload settings.
type SecurityConfig struct {
	// IPAllowlistEnabled is only true for the literal value "true" (any casing).
	IPAllowlistEnabled bool
	// IPAllowlist holds the raw CIDR blocks. Empty with the toggle on denies everything.
	IPAllowlist []string

	// AuthorizedEmail is the single principal allowed to use the API.
	AuthorizedEmail string
	// InitialPassword is only read by the admin CLI when bootstrapping the user.
	InitialPassword string

	// AllowedOrigins is "*" or an explicit origin list.
	AllowedOrigins []string
	// PlatformDomains are host suffixes whose https origins are always reflected.
	PlatformDomains []string

	MaxFieldLength  int
	MaxPayloadDepth int
	MaxLoginField   int
}

// RateRule is a fixed-window limit for one route.
type RateRule struct {
	MaxRequests   int
	Window        time.Duration
	BlockDuration time.Duration
}

// RateLimitConfig holds per-route rules and the store backend.
type RateLimitConfig struct {
	Decision      RateRule
	Auth          RateRule
	TTS           RateRule
	Store         string
	KeyPrefix     string
	SweepSchedule string
}

// IdentityConfig holds the identity provider settings.
type IdentityConfig struct {
	URL            string
	AnonKey        string
	ServiceRoleKey string
	// JWTSecret enables local HS256 verification before the provider lookup.
	JWTSecret string
	Timeout   time.Duration
}

// IsConfigured reports whether bearer validation can reach the provider.
func (c *IdentityConfig) IsConfigured() bool {
	return c.URL != "" && c.AnonKey != ""
}

// CanSignIn reports whether password sign-in can reach the provider.
func (c *IdentityConfig) CanSignIn() bool {
	return c.URL != "" && c.ServiceRoleKey != ""
}

// LLMConfig holds the model gateway settings.
type LLMConfig struct {
	APIKey            string
	BaseURL           string
	Model             string
	Timeout           time.Duration
	MaxRetries        int
	RequestsPerMinute int
}

// IsConfigured reports whether the gateway key is present.
func (c *LLMConfig) IsConfigured() bool {
	return c.APIKey != ""
}

// VoiceConfig holds the text-to-speech settings.
type VoiceConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// IsConfigured reports whether the voice API key is present.
func (c *VoiceConfig) IsConfigured() bool {
	return c.APIKey != ""
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	URL             string
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// IsConfigured reports whether session persistence is enabled.
func (c *DatabaseConfig) IsConfigured() bool {
	return c.URL != "" || c.Host != ""
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Host          string
	Port          int
	Password      string
	DB            int
	PoolSize      int
	MinIdleConns  int
	DialTimeout   time.Duration
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	TLSEnabled    bool
	TLSSkipVerify bool
	MaxRetries    int
	MinRetryDelay time.Duration
	MaxRetryDelay time.Duration
}

// IsConfigured reports whether a Redis host is set.
func (c *RedisConfig) IsConfigured() bool {
	return c.Host != ""
}

// TracingConfig holds OpenTelemetry exporter settings.
type TracingConfig struct {
	Endpoint    string
	Insecure    bool
	SampleRatio float64
}

// IsConfigured reports whether traces should be exported.
func (c *TracingConfig) IsConfigured() bool {
	return c.Endpoint != ""
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		App: AppConfig{
			Name:    getEnv("APP_NAME", "archon"),
			Env:     getEnv("APP_ENV", "development"),
			Debug:   getEnvBool("APP_DEBUG", false),
			Version: getEnv("APP_VERSION", "dev"),
		},
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 90*time.Second),
			RequestTimeout:  getEnvDuration("SERVER_REQUEST_TIMEOUT", 80*time.Second),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			MaxBodySize:     getEnvInt64("SERVER_MAX_BODY_SIZE", 256<<10),
		},
		Log: LogConfig{
			Level:              getEnv("LOG_LEVEL", "info"),
			Format:             getEnv("LOG_FORMAT", "json"),
			SkipHealthLogs:     getEnvBool("LOG_SKIP_HEALTH", true),
			SlowRequestSeconds: getEnvInt("LOG_SLOW_REQUEST_SECONDS", 10),
		},
		Security: SecurityConfig{
			IPAllowlistEnabled: strings.EqualFold(os.Getenv("SECURITY_IP_ALLOWLIST_ENABLED"), "true"),
			IPAllowlist:        getEnvSlice("SECURITY_IP_ALLOWLIST", nil),
			AuthorizedEmail:    strings.TrimSpace(os.Getenv("ARCHON_AUTHORIZED_EMAIL")),
			InitialPassword:    os.Getenv("ARCHON_INITIAL_PASSWORD"),
			AllowedOrigins:     getEnvSlice("ARCHON_ALLOWED_ORIGIN", []string{"*"}),
			PlatformDomains:    getEnvSlice("ARCHON_PLATFORM_DOMAINS", []string{".lovable.app", ".lovableproject.com"}),
			MaxFieldLength:     getEnvInt("SECURITY_PAYLOAD_MAX_FIELD_LENGTH", 4000),
			MaxPayloadDepth:    getEnvInt("SECURITY_PAYLOAD_MAX_DEPTH", 32),
			MaxLoginField:      getEnvInt("SECURITY_LOGIN_MAX_FIELD_LENGTH", 255),
		},
		RateLimit: RateLimitConfig{
			Decision: RateRule{
				MaxRequests: getEnvInt("RATE_LIMIT_DECISION_MAX", 20),
				Window:      getEnvDuration("RATE_LIMIT_DECISION_WINDOW", time.Minute),
			},
			Auth: RateRule{
				MaxRequests:   getEnvInt("RATE_LIMIT_AUTH_MAX", 5),
				Window:        getEnvDuration("RATE_LIMIT_AUTH_WINDOW", 15*time.Minute),
				BlockDuration: getEnvDuration("RATE_LIMIT_AUTH_BLOCK", 5*time.Minute),
			},
			TTS: RateRule{
				MaxRequests: getEnvInt("RATE_LIMIT_TTS_MAX", 30),
				Window:      getEnvDuration("RATE_LIMIT_TTS_WINDOW", time.Minute),
			},
			Store:         strings.ToLower(getEnv("RATE_LIMIT_STORE", StoreMemory)),
			KeyPrefix:     getEnv("RATE_LIMIT_KEY_PREFIX", "archon:rl:"),
			SweepSchedule: getEnv("RATE_LIMIT_SWEEP_SCHEDULE", "@every 5m"),
		},
		Identity: IdentityConfig{
			URL:            strings.TrimRight(os.Getenv("SUPABASE_URL"), "/"),
			AnonKey:        os.Getenv("SUPABASE_ANON_KEY"),
			ServiceRoleKey: os.Getenv("SUPABASE_SERVICE_ROLE_KEY"),
			JWTSecret:      os.Getenv("SUPABASE_JWT_SECRET"),
			Timeout:        getEnvDuration("IDENTITY_TIMEOUT", 10*time.Second),
		},
		LLM: LLMConfig{
			APIKey:            os.Getenv("LOVABLE_API_KEY"),
			BaseURL:           getEnv("LLM_BASE_URL", "https://ai.gateway.lovable.dev/v1"),
			Model:             getEnv("LLM_MODEL", "openai/gpt-5.2"),
			Timeout:           getEnvDuration("LLM_TIMEOUT", 60*time.Second),
			MaxRetries:        getEnvInt("LLM_MAX_RETRIES", 1),
			RequestsPerMinute: getEnvInt("LLM_REQUESTS_PER_MINUTE", 30),
		},
		Voice: VoiceConfig{
			APIKey:  os.Getenv("ELEVENLABS_API_KEY"),
			BaseURL: getEnv("ELEVENLABS_BASE_URL", "https://api.elevenlabs.io"),
			Model:   getEnv("ELEVENLABS_MODEL", "eleven_multilingual_v2"),
			Timeout: getEnvDuration("ELEVENLABS_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			Host:            os.Getenv("DB_HOST"),
			Port:            getEnvInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "archon"),
			Password:        os.Getenv("DB_PASSWORD"),
			Name:            getEnv("DB_NAME", "archon"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 2),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			Host:          os.Getenv("REDIS_HOST"),
			Port:          getEnvInt("REDIS_PORT", 6379),
			Password:      os.Getenv("REDIS_PASSWORD"),
			DB:            getEnvInt("REDIS_DB", 0),
			PoolSize:      getEnvInt("REDIS_POOL_SIZE", 10),
			MinIdleConns:  getEnvInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:   getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:   getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout:  getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
			TLSEnabled:    getEnvBool("REDIS_TLS_ENABLED", false),
			TLSSkipVerify: getEnvBool("REDIS_TLS_SKIP_VERIFY", false),
			MaxRetries:    getEnvInt("REDIS_MAX_RETRIES", 3),
			MinRetryDelay: getEnvDuration("REDIS_MIN_RETRY_DELAY", 100*time.Millisecond),
			MaxRetryDelay: getEnvDuration("REDIS_MAX_RETRY_DELAY", 3*time.Second),
		},
		Tracing: TracingConfig{
			Endpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
			Insecure:    getEnvBool("OTEL_EXPORTER_OTLP_INSECURE", false),
			SampleRatio: getEnvFloat("OTEL_TRACES_SAMPLE_RATIO", 1.0),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration.
// Missing provider secrets are not errors here: the endpoints that need them
// answer 500 at request time instead.
func (c *Config) Validate() error {
	if err := c.validateBasic(); err != nil {
		return err
	}
	if c.App.Env == EnvProduction {
		return c.validateProduction()
	}
	return nil
}

// validateBasic validates basic configuration regardless of environment.
func (c *Config) validateBasic() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if err := c.validateLog(); err != nil {
		return err
	}
	if err := c.validateSecurity(); err != nil {
		return err
	}
	return c.validateRateLimit()
}

// validateLog validates logging configuration.
func (c *Config) validateLog() error {
	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid LOG_LEVEL: %s (must be debug, info, warn, or error)", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "json", "text":
	default:
		return fmt.Errorf("invalid LOG_FORMAT: %s (must be json or text)", c.Log.Format)
	}
	if c.Log.SlowRequestSeconds < 0 {
		return fmt.Errorf("LOG_SLOW_REQUEST_SECONDS must be non-negative, got %d", c.Log.SlowRequestSeconds)
	}
	return nil
}

// validateSecurity checks the allowlist and payload limits.
func (c *Config) validateSecurity() error {
	for _, block := range c.Security.IPAllowlist {
		if err := validateCIDR(block); err != nil {
			return fmt.Errorf("SECURITY_IP_ALLOWLIST: %w", err)
		}
	}
	if c.Security.MaxFieldLength < 1 {
		return fmt.Errorf("SECURITY_PAYLOAD_MAX_FIELD_LENGTH must be positive, got %d", c.Security.MaxFieldLength)
	}
	if c.Security.MaxPayloadDepth < 1 {
		return fmt.Errorf("SECURITY_PAYLOAD_MAX_DEPTH must be positive, got %d", c.Security.MaxPayloadDepth)
	}
	if c.Security.MaxLoginField < 1 {
		return fmt.Errorf("SECURITY_LOGIN_MAX_FIELD_LENGTH must be positive, got %d", c.Security.MaxLoginField)
	}
	return nil
}

// validateRateLimit checks the per-route rules and the store backend.
func (c *Config) validateRateLimit() error {
	rules := map[string]RateRule{
		"RATE_LIMIT_DECISION": c.RateLimit.Decision,
		"RATE_LIMIT_AUTH":     c.RateLimit.Auth,
		"RATE_LIMIT_TTS":      c.RateLimit.TTS,
	}
	for name, rule := range rules {
		if rule.MaxRequests < 1 {
			return fmt.Errorf("%s_MAX must be positive, got %d", name, rule.MaxRequests)
		}
		if rule.Window <= 0 {
			return fmt.Errorf("%s_WINDOW must be positive, got %v", name, rule.Window)
		}
		if rule.BlockDuration < 0 {
			return fmt.Errorf("%s_BLOCK must be non-negative, got %v", name, rule.BlockDuration)
		}
	}

	switch c.RateLimit.Store {
	case StoreMemory:
	case StoreRedis:
		if !c.Redis.IsConfigured() {
			return fmt.Errorf("RATE_LIMIT_STORE=redis requires REDIS_HOST")
		}
	default:
		return fmt.Errorf("invalid RATE_LIMIT_STORE: %s (must be memory or redis)", c.RateLimit.Store)
	}
	return nil
}

// validateProduction validates production-specific configuration.
func (c *Config) validateProduction() error {
	if c.App.Debug {
		return fmt.Errorf("debug mode must be disabled in production")
	}
	if strings.EqualFold(c.Log.Level, "debug") {
		return fmt.Errorf("log level should not be 'debug' in production")
	}
	if c.Security.AuthorizedEmail == "" {
		return fmt.Errorf("ARCHON_AUTHORIZED_EMAIL must be set in production")
	}
	if c.Identity.URL != "" && !strings.HasPrefix(c.Identity.URL, "https://") {
		return fmt.Errorf("SUPABASE_URL must use HTTPS in production")
	}
	if c.Database.IsConfigured() && c.Database.URL == "" && c.Database.SSLMode == "disable" {
		return fmt.Errorf("database SSL must be enabled in production (use 'require' or 'verify-full')")
	}
	if c.RateLimit.Store == StoreRedis && !c.Redis.TLSEnabled {
		return fmt.Errorf("redis TLS must be enabled in production")
	}
	return nil
}

// validateCIDR accepts an IPv4 address or block. A bare address or an
// empty prefix means /32.
func validateCIDR(block string) error {
	block = strings.TrimSuffix(block, "/")
	if !strings.Contains(block, "/") {
		block += "/32"
	}
	ip, _, err := net.ParseCIDR(block)
	if err != nil {
		return fmt.Errorf("invalid CIDR %q: %w", block, err)
	}
	if ip.To4() == nil {
		return fmt.Errorf("invalid CIDR %q: only IPv4 blocks are supported", block)
	}
	return nil
}

// DSN returns the database connection string.
func (c *DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// Addr returns the Redis address.
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Addr returns the HTTP server address.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// WildcardOrigin reports whether any origin is accepted.
func (c *SecurityConfig) WildcardOrigin() bool {
	return slices.Contains(c.AllowedOrigins, "*")
}

// IsDevelopment returns true if the application is in development mode.
func (c *Config) IsDevelopment() bool {
	return c.App.Env == "development"
}

// IsProduction returns true if the application is in production mode.
func (c *Config) IsProduction() bool {
	return c.App.Env == EnvProduction
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var result []string
		for _, v := range splitAndTrim(value, ",") {
			if v != "" {
				result = append(result, v)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}

func splitAndTrim(s, sep string) []string {
	parts := make([]string, 0)
	for _, p := range strings.Split(s, sep) {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
