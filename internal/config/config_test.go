package config

import (
	"context"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load(context.Background(), envconfig.MapLookuper(map[string]string{}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.GetServerAddr() != "0.0.0.0:8080" {
		t.Errorf("server addr = %s", cfg.Server.GetServerAddr())
	}
	if cfg.Database.Driver != "postgres" {
		t.Errorf("driver = %s", cfg.Database.Driver)
	}
	if cfg.Redis.TTL != 30*time.Second {
		t.Errorf("cache ttl = %v", cfg.Redis.TTL)
	}
	if cfg.App.Environment != "development" {
		t.Errorf("environment = %s, want development", cfg.App.Environment)
	}
	if cfg.App.Verbose() {
		t.Error("expected quiet logging by default")
	}
}

func TestLoad_SQLite(t *testing.T) {
	cfg, err := load(context.Background(), envconfig.MapLookuper(map[string]string{
		"DB_DRIVER": "sqlite3",
		"DB_PATH":   "/tmp/campaign.db",
		"REDIS_TTL": "5s",
	}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := cfg.Database.GetDatabaseURL(); got != "/tmp/campaign.db?_foreign_keys=1&_busy_timeout=5000" {
		t.Errorf("dsn = %s", got)
	}
	if cfg.Redis.TTL != 5*time.Second {
		t.Errorf("cache ttl = %v", cfg.Redis.TTL)
	}
}

func TestLoad_RejectsUnknownDriver(t *testing.T) {
	_, err := load(context.Background(), envconfig.MapLookuper(map[string]string{
		"DB_DRIVER": "mysql",
	}))
	if err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestLoad_RejectsBadRate(t *testing.T) {
	_, err := load(context.Background(), envconfig.MapLookuper(map[string]string{
		"RATE_PER_SEC": "0",
	}))
	if err == nil {
		t.Fatal("expected error for zero rate")
	}
}

func TestLoad_LogLevel(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		verbose bool
		wantErr bool
	}{
		{"debug flag", map[string]string{"APP_DEBUG": "true"}, true, false},
		{"debug level", map[string]string{"APP_LOG_LEVEL": "debug"}, true, false},
		{"warn level", map[string]string{"APP_LOG_LEVEL": "warn"}, false, false},
		{"unknown level", map[string]string{"APP_LOG_LEVEL": "chatty"}, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := load(context.Background(), envconfig.MapLookuper(tt.env))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if got := cfg.App.Verbose(); got != tt.verbose {
				t.Errorf("Verbose() = %v, want %v", got, tt.verbose)
			}
		})
	}
}
