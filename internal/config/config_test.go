package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "data/expenses.db", cfg.Database.Path)
	assert.True(t, cfg.Approval.LockPerExpense)
	assert.Equal(t, 48*time.Hour, cfg.Approval.ReminderAfter)
	assert.False(t, cfg.Lark.Enabled)
	assert.False(t, cfg.Kafka.Enabled)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
database:
  path: /tmp/test.db
approval:
  reminder_schedule: ""
kafka:
  enabled: true
  brokers: ["k1:9092", "k2:9092"]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "/tmp/test.db", cfg.Database.Path)
	assert.Equal(t, "", cfg.Approval.ReminderSchedule)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "expense-approval.events", cfg.Kafka.Topic)
}

func TestLoad_EnvCredentials(t *testing.T) {
	t.Setenv("LARK_APP_ID", "cli_test")
	t.Setenv("LARK_APP_SECRET", "secret")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092")

	path := writeConfig(t, `
lark:
  enabled: true
kafka:
  enabled: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "cli_test", cfg.Lark.AppID)
	assert.Equal(t, "secret", cfg.Lark.AppSecret)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"missing db path", func(c *Config) { c.Database.Path = "" }, true},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, true},
		{"lark without secret", func(c *Config) {
			c.Lark.Enabled = true
			c.Lark.AppID = "id"
		}, true},
		{"kafka without brokers", func(c *Config) { c.Kafka.Enabled = true }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Server:   ServerConfig{Port: 8080},
				Database: DatabaseConfig{Path: "x.db"},
				Kafka:    KafkaConfig{Topic: "t"},
			}
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestToContainerConfig(t *testing.T) {
	cfg := &Config{
		Database: DatabaseConfig{Path: "x.db", BusyTimeout: time.Second},
		Approval: ApprovalConfig{LockPerExpense: true, ReminderSchedule: "@hourly", ReminderAfter: time.Hour},
		Kafka:    KafkaConfig{Enabled: true, Brokers: []string{"b:9092"}, Topic: "t"},
		Server:   ServerConfig{Port: 8080},
	}

	cc := cfg.ToContainerConfig()
	assert.Equal(t, "x.db", cc.Database.Path)
	assert.Equal(t, time.Second, cc.Database.BusyTimeout)
	assert.True(t, cc.Approval.LockPerExpense)
	assert.Equal(t, "@hourly", cc.Approval.ReminderSchedule)
	assert.Equal(t, []string{"b:9092"}, cc.Kafka.Brokers)
	assert.NoError(t, cc.Validate())
}
