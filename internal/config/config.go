package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port        string `yaml:"port"`
	DatabaseURL string `yaml:"database_url"`

	SessionTTL               time.Duration `yaml:"session_ttl"`
	RateLimitPerMinute       int           `yaml:"rate_limit_per_minute"`
	RateLimitBurst           int           `yaml:"rate_limit_burst"`
	TenantRateLimitPerMinute int           `yaml:"tenant_rate_limit_per_minute"`
	TenantRateLimitBurst     int           `yaml:"tenant_rate_limit_burst"`
	TrustedProxies           []string      `yaml:"trusted_proxies"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	NotifyPollInterval  time.Duration `yaml:"notify_poll_interval"`
	NotifyBatchSize     int           `yaml:"notify_batch_size"`
	NotifyMaxAttempts   int           `yaml:"notify_max_attempts"`
	EmailProvider       string        `yaml:"email_provider"`
	EmailWebhookURL     string        `yaml:"email_webhook_url"`
	EmailWebhookToken   string        `yaml:"email_webhook_token"`
	EmailFrom           string        `yaml:"email_from"`
	TemplateCatalogPath string        `yaml:"template_catalog_path"`
	PublicBaseURL       string        `yaml:"public_base_url"`

	TicketStaleAfter        time.Duration `yaml:"ticket_stale_after"`
	TicketStaleScanInterval time.Duration `yaml:"ticket_stale_scan_interval"`
	DefaultAdminFeeBP       int           `yaml:"default_admin_fee_bp"`

	// MailboxSecret seals agency mailbox passwords. Without it mailbox
	// passwords cannot be stored.
	MailboxSecret string `yaml:"mailbox_secret"`
}

func Defaults() Config {
	return Config{
		Port:                     "8080",
		SessionTTL:               8 * time.Hour,
		RateLimitPerMinute:       120,
		RateLimitBurst:           30,
		TenantRateLimitPerMinute: 600,
		TenantRateLimitBurst:     120,
		LogLevel:                 "info",
		LogFormat:                "json",
		NotifyPollInterval:       2 * time.Second,
		NotifyBatchSize:          50,
		NotifyMaxAttempts:        5,
		EmailProvider:            "log",
		EmailFrom:                "no-reply@rentdesk.local",
		PublicBaseURL:            "http://localhost:8080",
		TicketStaleAfter:         72 * time.Hour,
		TicketStaleScanInterval:  10 * time.Minute,
		DefaultAdminFeeBP:        500,
	}
}

// Load applies defaults, then the YAML file named by RENTDESK_CONFIG, then
// environment variables. Malformed env values keep the previous value.
func Load() (Config, error) {
	cfg := Defaults()
	if path := os.Getenv("RENTDESK_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.Port = readString("PORT", cfg.Port)
	cfg.DatabaseURL = readString("DB_DSN", cfg.DatabaseURL)
	cfg.SessionTTL = readDurationSeconds("SESSION_TTL_SECONDS", cfg.SessionTTL)
	cfg.RateLimitPerMinute = readInt("RATE_LIMIT_PER_MIN", cfg.RateLimitPerMinute)
	cfg.RateLimitBurst = readInt("RATE_LIMIT_BURST", cfg.RateLimitBurst)
	cfg.TenantRateLimitPerMinute = readInt("TENANT_RATE_LIMIT_PER_MIN", cfg.TenantRateLimitPerMinute)
	cfg.TenantRateLimitBurst = readInt("TENANT_RATE_LIMIT_BURST", cfg.TenantRateLimitBurst)
	cfg.TrustedProxies = readList("TRUSTED_PROXIES", cfg.TrustedProxies)
	cfg.LogLevel = readString("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = readString("LOG_FORMAT", cfg.LogFormat)
	cfg.NotifyPollInterval = readDurationSeconds("NOTIF_POLL_SECONDS", cfg.NotifyPollInterval)
	cfg.NotifyBatchSize = readInt("NOTIF_BATCH_SIZE", cfg.NotifyBatchSize)
	cfg.NotifyMaxAttempts = readInt("NOTIF_MAX_ATTEMPTS", cfg.NotifyMaxAttempts)
	cfg.EmailProvider = readString("NOTIF_EMAIL_PROVIDER", cfg.EmailProvider)
	cfg.EmailWebhookURL = readString("NOTIF_EMAIL_WEBHOOK_URL", cfg.EmailWebhookURL)
	cfg.EmailWebhookToken = readString("NOTIF_EMAIL_WEBHOOK_TOKEN", cfg.EmailWebhookToken)
	cfg.EmailFrom = readString("NOTIF_EMAIL_FROM", cfg.EmailFrom)
	cfg.TemplateCatalogPath = readString("NOTIF_TEMPLATES", cfg.TemplateCatalogPath)
	cfg.PublicBaseURL = readString("PUBLIC_BASE_URL", cfg.PublicBaseURL)
	cfg.TicketStaleAfter = readDurationSeconds("TICKET_STALE_AFTER_SECONDS", cfg.TicketStaleAfter)
	cfg.TicketStaleScanInterval = readDurationSeconds("TICKET_STALE_SCAN_SECONDS", cfg.TicketStaleScanInterval)
	cfg.DefaultAdminFeeBP = readInt("DEFAULT_ADMIN_FEE_BP", cfg.DefaultAdminFeeBP)
	cfg.MailboxSecret = readString("MAILBOX_SECRET", cfg.MailboxSecret)

	if cfg.DefaultAdminFeeBP < 0 || cfg.DefaultAdminFeeBP > 10000 {
		cfg.DefaultAdminFeeBP = Defaults().DefaultAdminFeeBP
	}
	return cfg, nil
}

func readString(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

// readList splits a comma-separated value; empty items are dropped.
func readList(key string, fallback []string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	var values []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			values = append(values, item)
		}
	}
	return values
}

func readDurationSeconds(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return time.Duration(value) * time.Second
}

func readInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
