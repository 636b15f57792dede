package config

import (
	"errors"
	"fmt"
	"net/netip"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/susu3304/warikanbot/internal/currency"
)

type Config struct {
	Env      string
	LogLevel string

	// Discord Bot. Empty disables the bot and runs the API alone.
	DiscordToken string

	// Discord OAuth2
	DiscordClientID     string
	DiscordClientSecret string
	DiscordRedirectURI  string

	// Database. Empty keeps everything in memory.
	DatabaseURL string

	// Web Server
	WebBind      string
	WebUIBaseURL string

	// Session
	JWTSecret string

	// Reverse proxies whose X-Forwarded-For is believed. Empty trusts none.
	TrustedProxies []netip.Prefix

	// Settlement
	BaseCurrency       string
	RateLimitPerMinute int
	RateLimitBurst     int
	ReminderTick       time.Duration
}

func Load() (*Config, error) {
	// .env is optional; ENV_FILE points at a different one.
	envFile := getEnvDefault("ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && os.Getenv("ENV_FILE") != "" {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}

	var problems []string

	cfg := &Config{
		Env:                 getEnvDefault("APP_ENV", "local"),
		LogLevel:            os.Getenv("LOG_LEVEL"),
		DiscordToken:        os.Getenv("DISCORD_TOKEN"),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		WebBind:             getEnvDefault("WEB_BIND", "0.0.0.0:3000"),
		DiscordClientID:     os.Getenv("DISCORD_CLIENT_ID"),
		DiscordClientSecret: os.Getenv("DISCORD_CLIENT_SECRET"),
		DiscordRedirectURI:  getEnvDefault("DISCORD_REDIRECT_URI", "http://localhost:3000/api/auth/callback"),
		JWTSecret:           getEnvDefault("JWT_SECRET", "dev-only-change-me"),
	}

	base, err := currency.Normalize(getEnvDefault("BASE_CURRENCY", "JPY"))
	if err != nil {
		problems = append(problems, "BASE_CURRENCY must be a three letter currency code")
	}
	cfg.BaseCurrency = base

	cfg.RateLimitPerMinute = parseIntEnv("SETTLE_RATE_LIMIT_PER_MINUTE", 60, &problems)
	cfg.RateLimitBurst = parseIntEnv("SETTLE_RATE_LIMIT_BURST", 10, &problems)
	cfg.ReminderTick = parseDurationEnv("REMINDER_TICK", time.Minute, &problems)
	cfg.TrustedProxies = parsePrefixesEnv("TRUSTED_PROXIES", &problems)

	cfg.WebUIBaseURL = extractBaseURL(cfg.DiscordRedirectURI)

	if err := cfg.validate(problems); err != nil {
		return nil, err
	}
	return cfg, nil
}

// BotEnabled reports whether a Discord token was configured.
func (c *Config) BotEnabled() bool { return c.DiscordToken != "" }

// OAuthEnabled reports whether Discord login can be offered.
func (c *Config) OAuthEnabled() bool {
	return c.DiscordClientID != "" && c.DiscordClientSecret != ""
}

func (c *Config) validate(problems []string) error {
	if c.RateLimitPerMinute <= 0 {
		problems = append(problems, "SETTLE_RATE_LIMIT_PER_MINUTE must be positive")
	}
	if c.RateLimitBurst <= 0 {
		problems = append(problems, "SETTLE_RATE_LIMIT_BURST must be positive")
	}
	if c.ReminderTick < time.Second {
		problems = append(problems, "REMINDER_TICK must be at least 1s")
	}
	if (c.DiscordClientID == "") != (c.DiscordClientSecret == "") {
		problems = append(problems, "DISCORD_CLIENT_ID and DISCORD_CLIENT_SECRET must be set together")
	}
	if c.Env == "production" && c.JWTSecret == "dev-only-change-me" {
		problems = append(problems, "JWT_SECRET is required in production")
	}
	if len(problems) > 0 {
		return errors.New("invalid config: " + strings.Join(problems, "; "))
	}
	return nil
}

func getEnvDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseIntEnv(key string, defaultValue int, problems *[]string) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		*problems = append(*problems, fmt.Sprintf("%s: %q is not an integer", key, raw))
		return defaultValue
	}
	return v
}

func parseDurationEnv(key string, defaultValue time.Duration, problems *[]string) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		*problems = append(*problems, fmt.Sprintf("%s: %q is not a duration", key, raw))
		return defaultValue
	}
	return v
}

// parsePrefixesEnv reads a comma separated list of CIDRs or bare IPs.
func parsePrefixesEnv(key string, problems *[]string) []netip.Prefix {
	var out []netip.Prefix
	for _, raw := range strings.Split(os.Getenv(key), ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if !strings.Contains(raw, "/") {
			addr, err := netip.ParseAddr(raw)
			if err != nil {
				*problems = append(*problems, fmt.Sprintf("%s: %q is not an IP or CIDR", key, raw))
				continue
			}
			out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}
		prefix, err := netip.ParsePrefix(raw)
		if err != nil {
			*problems = append(*problems, fmt.Sprintf("%s: %q is not an IP or CIDR", key, raw))
			continue
		}
		out = append(out, prefix.Masked())
	}
	return out
}

func extractBaseURL(redirectURI string) string {
	// "http://localhost:3000/api/auth/callback" -> "http://localhost:3000"
	parsed, err := url.Parse(redirectURI)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "http://localhost:3000"
	}

	return fmt.Sprintf("%s://%s", parsed.Scheme, parsed.Host)
}
