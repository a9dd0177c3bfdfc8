package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"nordagri/internal/models"
)

func TestLoadConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	t.Setenv("NORDAGRI_BACKEND_KEY", "secret-key")

	yamlContent := `
backend:
  base_url: "https://example.supabase.co"
  api_key: "${NORDAGRI_BACKEND_KEY}"
  timeout: 3s
storage:
  driver: sqlite
  path: "data/queue.db"
sync:
  max_retries: 10
  probe_interval: 30s
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Backend.APIKey != "secret-key" {
		t.Errorf("expected api_key expanded from env, got %q", cfg.Backend.APIKey)
	}
	if cfg.Backend.Timeout != 3*time.Second {
		t.Errorf("expected timeout 3s, got %s", cfg.Backend.Timeout)
	}
	if cfg.Sync.MaxRetries != 10 {
		t.Errorf("expected max_retries 10, got %d", cfg.Sync.MaxRetries)
	}
	if cfg.Sync.ProbeInterval != 30*time.Second {
		t.Errorf("expected probe_interval 30s, got %s", cfg.Sync.ProbeInterval)
	}
	if cfg.Storage.QueueKey != models.DefaultQueueKey {
		t.Errorf("expected default queue key, got %s", cfg.Storage.QueueKey)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestLoadConfigInvalid(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte("storage:\n  driver: sqlite\n"), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	if _, err := Load(configPath); err == nil {
		t.Fatalf("expected validation error without backend base_url")
	}
}

func TestValidateConfig(t *testing.T) {
	backend := BackendConfig{BaseURL: "https://example.supabase.co"}

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "valid sqlite",
			cfg: Config{
				Backend: backend,
				Storage: StorageConfig{Driver: StorageSQLite, Path: "queue.db"},
			},
			wantErr: false,
		},
		{
			name: "valid memory",
			cfg: Config{
				Backend: backend,
				Storage: StorageConfig{Driver: StorageMemory},
			},
			wantErr: false,
		},
		{
			name: "missing backend",
			cfg: Config{
				Storage: StorageConfig{Driver: StorageMemory},
			},
			wantErr: true,
		},
		{
			name: "sqlite without path",
			cfg: Config{
				Backend: backend,
				Storage: StorageConfig{Driver: StorageSQLite},
			},
			wantErr: true,
		},
		{
			name: "redis without address",
			cfg: Config{
				Backend: backend,
				Storage: StorageConfig{Driver: StorageRedis},
			},
			wantErr: true,
		},
		{
			name: "unknown driver",
			cfg: Config{
				Backend: backend,
				Storage: StorageConfig{Driver: "localstorage"},
			},
			wantErr: true,
		},
		{
			name: "negative retries",
			cfg: Config{
				Backend: backend,
				Storage: StorageConfig{Driver: StorageMemory},
				Sync:    SyncConfig{MaxRetries: -1},
			},
			wantErr: true,
		},
		{
			name: "telegram without chat",
			cfg: Config{
				Backend:       backend,
				Storage:       StorageConfig{Driver: StorageMemory},
				Notifications: NotificationsConfig{Telegram: TelegramConfig{Enabled: true, BotToken: "token"}},
			},
			wantErr: true,
		},
		{
			name: "duplicate api key",
			cfg: Config{
				Backend: backend,
				Storage: StorageConfig{Driver: StorageMemory},
				API: APIConfig{Auth: APIAuthConfig{APIKeys: []APIClientKey{
					{Key: "k1", Name: "terminal"},
					{Key: "k1", Name: "office"},
				}}},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{Storage: StorageConfig{Path: "data/queue.db"}}
	cfg.applyDefaults()

	if cfg.Storage.Driver != StorageSQLite {
		t.Errorf("expected default driver sqlite, got %s", cfg.Storage.Driver)
	}
	if cfg.Backend.Timeout != models.DefaultBackendTimeout {
		t.Errorf("expected default timeout %s, got %s", models.DefaultBackendTimeout, cfg.Backend.Timeout)
	}
	if cfg.Backend.TimeSessionsTable != "time_sessions" || cfg.Backend.FuelLogsTable != "fuel_logs" {
		t.Errorf("unexpected default tables: %s, %s", cfg.Backend.TimeSessionsTable, cfg.Backend.FuelLogsTable)
	}
	if cfg.Sync.MaxRetries != 0 {
		t.Errorf("expected unbounded retries by default, got %d", cfg.Sync.MaxRetries)
	}
	if cfg.Sync.BackoffFactor != 2 {
		t.Errorf("expected backoff factor 2, got %v", cfg.Sync.BackoffFactor)
	}
	if cfg.API.Auth.HeaderAPIKey != "x-api-key" {
		t.Errorf("expected default api key header, got %s", cfg.API.Auth.HeaderAPIKey)
	}
	if cfg.Backup.StoragePath != "data/queue.db.backups" {
		t.Errorf("expected backup path next to db, got %s", cfg.Backup.StoragePath)
	}
}

func TestLoadExampleConfig(t *testing.T) {
	t.Setenv("BACKEND_URL", "https://example.supabase.co")
	t.Setenv("API_KEY_OPERATOR", "op-key")
	t.Setenv("API_KEY_DEVICE", "device-key")

	cfg, err := Load(filepath.Join("..", "..", "configs", "config.example.yaml"))
	if err != nil {
		t.Fatalf("example config should load: %v", err)
	}

	if cfg.Storage.Driver != StorageSQLite {
		t.Errorf("expected sqlite driver, got %q", cfg.Storage.Driver)
	}
	if cfg.Sync.Schedule == "" {
		t.Error("expected a flush schedule in the example config")
	}
	if len(cfg.API.Auth.APIKeys) != 2 {
		t.Errorf("expected 2 api keys, got %d", len(cfg.API.Auth.APIKeys))
	}
	if cfg.Backup.StoragePath != "data/queue.db.backups" {
		t.Errorf("unexpected backup path %q", cfg.Backup.StoragePath)
	}
}
