package config

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Log      LogConfig      `mapstructure:"log"`
	Security SecurityConfig `mapstructure:"security"`
	OAuth    OAuthConfig    `mapstructure:"oauth"`
	URLs     URLConfig      `mapstructure:"urls"`
	Audit    AuditConfig    `mapstructure:"audit"`
	Email    EmailConfig    `mapstructure:"email"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// TrustedProxies lists the addresses or CIDR ranges whose
	// X-Forwarded-For and X-Real-IP headers are believed
	TrustedProxies []string `mapstructure:"trusted_proxies"`
	TLS            struct {
		Enabled  bool   `mapstructure:"enabled"`
		CertFile string `mapstructure:"cert_file"`
		KeyFile  string `mapstructure:"key_file"`
	} `mapstructure:"tls"`
}

// Addr returns the listen address
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// TrustedProxyPrefixes parses TrustedProxies. A bare address is a
// single-host range.
func (c ServerConfig) TrustedProxyPrefixes() ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(c.TrustedProxies))
	for _, entry := range c.TrustedProxies {
		entry = strings.TrimSpace(entry)
		if strings.Contains(entry, "/") {
			p, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, fmt.Errorf("invalid trusted proxy %q: %w", entry, err)
			}
			prefixes = append(prefixes, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", entry, err)
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}

// DatabaseConfig holds storage configuration. Driver "memory" keeps all
// accounts, tokens and audit records in process and is meant for local runs.
type DatabaseConfig struct {
	Driver         string `mapstructure:"driver"`
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Name           string `mapstructure:"name"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	SSLMode        string `mapstructure:"ssl_mode"`
	MaxConnections int    `mapstructure:"max_connections"`
}

// DSN returns the PostgreSQL connection string
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// URL returns the connection string in URL form, as golang-migrate expects
func (c DatabaseConfig) URL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode,
	)
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	Password     PasswordConfig     `mapstructure:"password"`
	Tokens       TokenConfig        `mapstructure:"tokens"`
	RateLimiting RateLimitingConfig `mapstructure:"rate_limiting"`
}

// PasswordConfig holds password hashing configuration
type PasswordConfig struct {
	MinLength         int    `mapstructure:"min_length"`
	Argon2Memory      uint32 `mapstructure:"argon2_memory"`
	Argon2Iterations  uint32 `mapstructure:"argon2_iterations"`
	Argon2Parallelism uint8  `mapstructure:"argon2_parallelism"`
}

// TokenConfig holds JWT token configuration. Access and refresh tokens are
// signed with distinct secrets.
type TokenConfig struct {
	AccessSecret    string        `mapstructure:"access_secret"`
	RefreshSecret   string        `mapstructure:"refresh_secret"`
	AccessTokenTTL  time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL time.Duration `mapstructure:"refresh_token_ttl"`
	Issuer          string        `mapstructure:"issuer"`
}

// RateLimitingConfig holds rate limiting configuration
type RateLimitingConfig struct {
	Enabled bool            `mapstructure:"enabled"`
	Login   RateLimitPolicy `mapstructure:"login"`
	Signup  RateLimitPolicy `mapstructure:"signup"`
	Refresh RateLimitPolicy `mapstructure:"refresh"`
	Profile RateLimitPolicy `mapstructure:"profile"`
}

// RateLimitPolicy is a request budget per client IP over a window
type RateLimitPolicy struct {
	Limit  int           `mapstructure:"limit"`
	Window time.Duration `mapstructure:"window"`
}

// OAuthConfig holds third-party identity provider credentials
type OAuthConfig struct {
	Google GoogleOAuthConfig `mapstructure:"google"`
}

// GoogleOAuthConfig holds Google OAuth client configuration
type GoogleOAuthConfig struct {
	Enabled      bool     `mapstructure:"enabled"`
	ClientID     string   `mapstructure:"client_id"`
	ClientSecret string   `mapstructure:"client_secret"`
	RedirectURL  string   `mapstructure:"redirect_url"`
	Scopes       []string `mapstructure:"scopes"`
	// StateTTL bounds how long an authorization round-trip may take
	StateTTL time.Duration `mapstructure:"state_ttl"`
}

// URLConfig holds the public base URLs used to build redirect targets
type URLConfig struct {
	PublicAPI       string `mapstructure:"public_api"`
	PublicWeb       string `mapstructure:"public_web"`
	LoginPath       string `mapstructure:"login_path"`
	OAuthSuccess    string `mapstructure:"oauth_success_path"`
	OAuthFailure    string `mapstructure:"oauth_failure_path"`
	OperatorConsole string `mapstructure:"operator_console_path"`
}

// Web joins a path onto the public web base URL
func (c URLConfig) Web(path string) string {
	return strings.TrimRight(c.PublicWeb, "/") + "/" + strings.TrimLeft(path, "/")
}

// AuditConfig holds audit pipeline configuration
type AuditConfig struct {
	QueueSize    int           `mapstructure:"queue_size"`
	Workers      int           `mapstructure:"workers"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// EmailConfig holds notification delivery configuration
type EmailConfig struct {
	// Provider is "gmail" or "log"
	Provider string           `mapstructure:"provider"`
	AppName  string           `mapstructure:"app_name"`
	Gmail    GmailEmailConfig `mapstructure:"gmail"`
}

// GmailEmailConfig holds Gmail API configuration
type GmailEmailConfig struct {
	// CredentialsJSON is the service account credentials JSON content
	CredentialsJSON string `mapstructure:"credentials_json"`
	ClientID        string `mapstructure:"client_id"`
	ClientSecret    string `mapstructure:"client_secret"`
	RefreshToken    string `mapstructure:"refresh_token"`
	SenderAddress   string `mapstructure:"sender_address"`
	SenderName      string `mapstructure:"sender_name"`
}

// MetricsConfig holds Prometheus exposition configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Load reads configuration from file and environment variables
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/wastetrack")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("WASTETRACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects configurations the server must not start with
func (c *Config) Validate() error {
	t := c.Security.Tokens
	if t.AccessSecret == "" || t.RefreshSecret == "" {
		return errors.New("config: security.tokens.access_secret and refresh_secret are required")
	}
	if t.AccessSecret == t.RefreshSecret {
		return errors.New("config: access and refresh token secrets must differ")
	}
	if len(t.AccessSecret) < 32 || len(t.RefreshSecret) < 32 {
		return errors.New("config: token secrets must be at least 32 bytes")
	}
	if t.AccessTokenTTL <= 0 || t.RefreshTokenTTL <= 0 {
		return errors.New("config: token TTLs must be positive")
	}
	if t.AccessTokenTTL >= t.RefreshTokenTTL {
		return errors.New("config: access token TTL must be shorter than refresh token TTL")
	}
	switch c.Database.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("config: unknown database driver %q", c.Database.Driver)
	}
	if _, err := c.Server.TrustedProxyPrefixes(); err != nil {
		return fmt.Errorf("config: server.trusted_proxies: %w", err)
	}
	if c.OAuth.Google.Enabled && (c.OAuth.Google.ClientID == "" || c.OAuth.Google.ClientSecret == "") {
		return errors.New("config: oauth.google client_id and client_secret are required when enabled")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.trusted_proxies", []string{})
	v.SetDefault("server.tls.enabled", false)

	// Database defaults
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "wastetrack")
	v.SetDefault("database.user", "wastetrack")
	v.SetDefault("database.password", "")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_connections", 25)

	// Redis defaults
	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Security defaults
	v.SetDefault("security.password.min_length", 8)
	v.SetDefault("security.password.argon2_memory", 65536)
	v.SetDefault("security.password.argon2_iterations", 3)
	v.SetDefault("security.password.argon2_parallelism", 4)

	v.SetDefault("security.tokens.access_secret", "")
	v.SetDefault("security.tokens.refresh_secret", "")
	v.SetDefault("security.tokens.access_token_ttl", "15m")
	v.SetDefault("security.tokens.refresh_token_ttl", "168h")
	v.SetDefault("security.tokens.issuer", "wastetrack")

	v.SetDefault("security.rate_limiting.enabled", true)
	v.SetDefault("security.rate_limiting.login.limit", 10)
	v.SetDefault("security.rate_limiting.login.window", "15m")
	v.SetDefault("security.rate_limiting.signup.limit", 5)
	v.SetDefault("security.rate_limiting.signup.window", "1h")
	v.SetDefault("security.rate_limiting.refresh.limit", 30)
	v.SetDefault("security.rate_limiting.refresh.window", "1m")
	v.SetDefault("security.rate_limiting.profile.limit", 10)
	v.SetDefault("security.rate_limiting.profile.window", "15m")

	// OAuth defaults
	v.SetDefault("oauth.google.enabled", false)
	v.SetDefault("oauth.google.client_id", "")
	v.SetDefault("oauth.google.client_secret", "")
	v.SetDefault("oauth.google.redirect_url", "http://localhost:8080/api/auth/googleOAuth/callback")
	v.SetDefault("oauth.google.scopes", []string{"openid", "email", "profile"})
	v.SetDefault("oauth.google.state_ttl", "10m")

	// URL defaults
	v.SetDefault("urls.public_api", "http://localhost:8080")
	v.SetDefault("urls.public_web", "http://localhost:5173")
	v.SetDefault("urls.login_path", "/login")
	v.SetDefault("urls.oauth_success_path", "/oauth/success")
	v.SetDefault("urls.oauth_failure_path", "/login")
	v.SetDefault("urls.operator_console_path", "/operator")

	// Audit defaults
	v.SetDefault("audit.queue_size", 1024)
	v.SetDefault("audit.workers", 2)
	v.SetDefault("audit.write_timeout", "5s")

	// Email defaults
	v.SetDefault("email.provider", "log")
	v.SetDefault("email.app_name", "WasteTrack")
	v.SetDefault("email.gmail.sender_address", "")
	v.SetDefault("email.gmail.sender_name", "WasteTrack")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}
