package config

import (
	"fmt"
	"strings"
)

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig          `mapstructure:"app"`
	Server        ServerConfig       `mapstructure:"server"`
	Database      DatabaseConfig     `mapstructure:"database"`
	Integrations  IntegrationConfig  `mapstructure:"integrations"`
	Mail          MailConfig         `mapstructure:"mail"`
	Storage       StorageConfig      `mapstructure:"storage"`
	Forms         FormsConfig        `mapstructure:"forms"`
	Logging       LoggingConfig      `mapstructure:"logging"`
	Notifications NotificationConfig `mapstructure:"notifications"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name" validate:"required"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment" validate:"oneof=development test staging production"`
}

// ServerConfig holds the HTTP listener settings. Timeouts are milliseconds.
type ServerConfig struct {
	Host              string `mapstructure:"host"`
	Port              int    `mapstructure:"port" validate:"min=1,max=65535"`
	ReadTimeout       int    `mapstructure:"read_timeout" validate:"min=0"`
	WriteTimeout      int    `mapstructure:"write_timeout" validate:"min=0"`
	IdleTimeout       int    `mapstructure:"idle_timeout" validate:"min=0"`
	ShutdownTimeout   int    `mapstructure:"shutdown_timeout" validate:"min=0"`
	MaxBodyBytes      int64  `mapstructure:"max_body_bytes" validate:"min=0"`
	RequestsPerSecond int32  `mapstructure:"requests_per_second"`
	Burst             int32  `mapstructure:"burst"`
}

// Address returns host:port for the listener.
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig backs the submission audit table. Disabled by default.
type PostgresConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Host           string `mapstructure:"host" validate:"required_if=Enabled true"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database" validate:"required_if=Enabled true"`
	User           string `mapstructure:"user" validate:"required_if=Enabled true"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// RedisConfig backs the duplicate submission guard. Disabled by default.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Address  string `mapstructure:"address" validate:"required_if=Enabled true"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// IntegrationConfig holds settings for AWS and SMTP.
type IntegrationConfig struct {
	AWS struct {
		Region string `mapstructure:"region"`
		S3     struct {
			Endpoint     string `mapstructure:"endpoint"`
			UsePathStyle bool   `mapstructure:"use_path_style"`
		} `mapstructure:"s3"`
		SNS struct {
			DefaultSMSSenderID string `mapstructure:"default_sms_sender_id"`
		} `mapstructure:"sns"`
	} `mapstructure:"aws"`

	SMTP struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		Username string `mapstructure:"username"`
		Password string `mapstructure:"password"`
		UseTLS   bool   `mapstructure:"use_tls"`
	} `mapstructure:"smtp"`
}

// MailConfig routes notifications. Recipients maps a form name to the
// staff mailbox for that form; forms without an entry use DefaultRecipient.
type MailConfig struct {
	Provider         string            `mapstructure:"provider" validate:"oneof=ses smtp log"`
	FromEmail        string            `mapstructure:"from_email" validate:"required,email"`
	DefaultRecipient string            `mapstructure:"default_recipient" validate:"required,email"`
	Recipients       map[string]string `mapstructure:"recipients" validate:"dive,email"`
}

// RecipientFor returns the mailbox for a form, falling back to the default.
func (m MailConfig) RecipientFor(form string) string {
	if r, ok := m.Recipients[form]; ok && r != "" {
		return r
	}
	if r, ok := m.Recipients[strings.ReplaceAll(form, "-", "_")]; ok && r != "" {
		return r
	}
	return m.DefaultRecipient
}

// StorageConfig selects the object store for uploaded assets.
type StorageConfig struct {
	Provider      string `mapstructure:"provider" validate:"oneof=s3 memory"`
	Bucket        string `mapstructure:"bucket" validate:"required_if=Provider s3"`
	PublicBaseURL string `mapstructure:"public_base_url" validate:"omitempty,url"`
}

// FormsConfig tunes the submission pipeline. Durations are milliseconds.
type FormsConfig struct {
	CollaboratorTimeout int               `mapstructure:"collaborator_timeout" validate:"min=0"`
	ResetDelay          int               `mapstructure:"reset_delay" validate:"min=0"`
	DuplicateWindow     int               `mapstructure:"duplicate_window" validate:"min=0"`
	EmailPolicy         EmailPolicyConfig `mapstructure:"email_policy"`
}

// EmailPolicyConfig overrides the email plausibility thresholds. Zero values
// keep the built-in policy.
type EmailPolicyConfig struct {
	DenyDomains     []string `mapstructure:"deny_domains"`
	AllowDomains    []string `mapstructure:"allow_domains"`
	MinLabels       int      `mapstructure:"min_labels" validate:"min=0"`
	MinTLDLength    int      `mapstructure:"min_tld_length" validate:"min=0"`
	MaxTLDLength    int      `mapstructure:"max_tld_length" validate:"min=0"`
	MinDomainLength int      `mapstructure:"min_domain_length" validate:"min=0"`
}

// NotificationConfig holds settings for staff SMS alerts.
type NotificationConfig struct {
	SMS struct {
		Enabled bool     `mapstructure:"enabled"`
		Phones  []string `mapstructure:"phones" validate:"required_if=Enabled true,dive,e164"`
	} `mapstructure:"sms"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json console"`
	Output string `mapstructure:"output"`
}
