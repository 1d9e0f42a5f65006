// Package container provides dependency injection and lifecycle management
// for the expense approval service.
package container

import (
	"fmt"
	"time"
)

// Config holds all configuration for the Container.
// It aggregates configurations for all subsystems.
type Config struct {
	// Database configuration
	Database DatabaseConfig

	// Approval engine configuration
	Approval ApprovalConfig

	// Lark IM notifications
	Lark LarkConfig

	// Kafka event stream
	Kafka KafkaConfig

	// Server configuration
	Server ServerConfig
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Path to SQLite database file
	Path string

	// MaxOpenConns is the maximum number of open connections
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections
	MaxIdleConns int

	// ConnMaxLifetime is the maximum connection lifetime
	ConnMaxLifetime time.Duration

	// BusyTimeout is how long a writer waits for the database lock
	BusyTimeout time.Duration
}

// ApprovalConfig holds workflow engine settings.
type ApprovalConfig struct {
	// LockPerExpense serialises operations on one expense inside the process
	LockPerExpense bool

	// ReminderSchedule is the cron expression of the reminder scan; empty disables reminders
	ReminderSchedule string

	// ReminderAfter is the age at which a pending assignment gets a reminder
	ReminderAfter time.Duration

	// HandlerTimeout bounds each asynchronous event handler
	HandlerTimeout time.Duration
}

// LarkConfig holds Lark API settings.
type LarkConfig struct {
	// Enabled turns on Lark notifications
	Enabled bool

	// AppID is the Lark application ID
	AppID string

	// AppSecret is the Lark application secret
	AppSecret string
}

// KafkaConfig holds event stream settings.
type KafkaConfig struct {
	// Enabled turns on event publishing
	Enabled bool

	// Brokers are the bootstrap broker addresses
	Brokers []string

	// Topic receives all workflow events
	Topic string

	// WriteTimeout bounds one publish
	WriteTimeout time.Duration
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host to bind to
	Host string

	// Port to listen on
	Port int

	// ReadTimeout for HTTP server
	ReadTimeout time.Duration

	// WriteTimeout for HTTP server
	WriteTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:            "data/expenses.db",
			MaxOpenConns:    4,
			MaxIdleConns:    4,
			ConnMaxLifetime: 5 * time.Minute,
			BusyTimeout:     5 * time.Second,
		},
		Approval: ApprovalConfig{
			LockPerExpense:   true,
			ReminderSchedule: "0 9 * * 1-5",
			ReminderAfter:    48 * time.Hour,
			HandlerTimeout:   30 * time.Second,
		},
		Kafka: KafkaConfig{
			Topic:        "expense-approval.events",
			WriteTimeout: 5 * time.Second,
		},
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
	}
}

// Validate checks that required configuration values are present.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Lark.Enabled {
		if c.Lark.AppID == "" {
			return fmt.Errorf("lark.app_id is required when lark is enabled")
		}
		if c.Lark.AppSecret == "" {
			return fmt.Errorf("lark.app_secret is required when lark is enabled")
		}
	}

	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required when kafka is enabled")
	}

	if c.Approval.ReminderSchedule != "" && c.Approval.ReminderAfter <= 0 {
		return fmt.Errorf("approval.reminder_after must be positive")
	}

	return nil
}
