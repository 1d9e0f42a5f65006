package config

import (
	"github.com/garyjia/expense-approval/internal/container"
	"github.com/garyjia/expense-approval/internal/infrastructure/tracing"
	"github.com/garyjia/expense-approval/pkg/utils"
)

// ToContainerConfig converts the application Config to a container.Config.
// This provides a bridge between the file-based config loaded by viper
// and the container's configuration structure.
func (c *Config) ToContainerConfig() *container.Config {
	return &container.Config{
		Database: container.DatabaseConfig{
			Path:            c.Database.Path,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
			BusyTimeout:     c.Database.BusyTimeout,
		},
		Approval: container.ApprovalConfig{
			LockPerExpense:   c.Approval.LockPerExpense,
			ReminderSchedule: c.Approval.ReminderSchedule,
			ReminderAfter:    c.Approval.ReminderAfter,
			HandlerTimeout:   c.Approval.HandlerTimeout,
		},
		Lark: container.LarkConfig{
			Enabled:   c.Lark.Enabled,
			AppID:     c.Lark.AppID,
			AppSecret: c.Lark.AppSecret,
		},
		Kafka: container.KafkaConfig{
			Enabled:      c.Kafka.Enabled,
			Brokers:      append([]string(nil), c.Kafka.Brokers...),
			Topic:        c.Kafka.Topic,
			WriteTimeout: c.Kafka.WriteTimeout,
		},
		Server: container.ServerConfig{
			Host:         c.Server.Host,
			Port:         c.Server.Port,
			ReadTimeout:  c.Server.ReadTimeout,
			WriteTimeout: c.Server.WriteTimeout,
		},
	}
}

// ToTracingConfig converts tracing settings for tracing.Init.
func (c *Config) ToTracingConfig(version string) tracing.Config {
	return tracing.Config{
		Enabled:        c.Tracing.Enabled,
		ServiceName:    c.Tracing.ServiceName,
		ServiceVersion: version,
		OutputPath:     c.Tracing.OutputPath,
	}
}

// ToLoggerConfig converts logger settings for utils.NewLogger.
func (c *Config) ToLoggerConfig() utils.LoggerConfig {
	return utils.LoggerConfig{
		Level:      c.Logger.Level,
		OutputPath: c.Logger.OutputPath,
		Format:     c.Logger.Format,
	}
}
