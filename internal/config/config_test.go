package config

import (
	"os"
	"path/filepath"
	"testing"
)

func mockEnv(env map[string]string) func(string) string {
	return func(key string) string {
		return env[key]
	}
}

const validConfigYAML = `
base_url: "https://example.atlassian.net"
email: "you@example.com"
api_token: "file-token"
workspaces:
  default:
    query: "project = PROJ ORDER BY updated DESC"
cache:
  db_path: "/tmp/jirafs-cache.db"
`

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	configDir := filepath.Join(dir, "jirafs")
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	path := filepath.Join(configDir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDocumentedDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, validConfigYAML)

	cfg, err := LoadWithEnv(mockEnv(map[string]string{"XDG_CONFIG_HOME": tmpDir}))
	if err != nil {
		t.Fatalf("LoadWithEnv: %v", err)
	}

	if cfg.Cache.TTLSecs != defaultCacheTTLSecs {
		t.Errorf("cache.ttl_secs = %d, want %d", cfg.Cache.TTLSecs, defaultCacheTTLSecs)
	}
	if cfg.Sync.Budget != defaultSyncBudget {
		t.Errorf("sync.budget = %d, want %d", cfg.Sync.Budget, defaultSyncBudget)
	}
	if cfg.Sync.IntervalSecs != defaultSyncIntervalSecs {
		t.Errorf("sync.interval_secs = %d, want %d", cfg.Sync.IntervalSecs, defaultSyncIntervalSecs)
	}
	if cfg.Metrics.IntervalSecs != defaultMetricsInterval {
		t.Errorf("metrics.interval_secs = %d, want %d", cfg.Metrics.IntervalSecs, defaultMetricsInterval)
	}
}

func TestLoadEnvOverridesSecrets(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, validConfigYAML)

	env := mockEnv(map[string]string{
		"XDG_CONFIG_HOME": tmpDir,
		"JIRA_API_TOKEN":  "env-token",
		"JIRA_EMAIL":      "env@example.com",
	})

	cfg, err := LoadWithEnv(env)
	if err != nil {
		t.Fatalf("LoadWithEnv: %v", err)
	}
	if cfg.APIToken != "env-token" {
		t.Errorf("api_token = %q, want env override", cfg.APIToken)
	}
	if cfg.Email != "env@example.com" {
		t.Errorf("email = %q, want env override", cfg.Email)
	}
	if cfg.BaseURL != "https://example.atlassian.net" {
		t.Errorf("base_url should come from file when no override given, got %q", cfg.BaseURL)
	}
}

func TestValidateRejectsEmptyWorkspaces(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, `
base_url: "https://example.atlassian.net"
email: "you@example.com"
api_token: "t"
workspaces: {}
cache:
  db_path: "/tmp/x.db"
`)

	_, err := LoadWithEnv(mockEnv(map[string]string{"XDG_CONFIG_HOME": tmpDir}))
	if err == nil {
		t.Fatal("expected error for empty workspaces")
	}
}

func TestValidateRejectsNonPositiveValues(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, `
base_url: "https://example.atlassian.net"
email: "you@example.com"
api_token: "t"
workspaces:
  default:
    query: "project = PROJ"
cache:
  db_path: "/tmp/x.db"
  ttl_secs: 0
sync:
  budget: 0
  interval_secs: 0
metrics:
  interval_secs: 0
`)

	_, err := LoadWithEnv(mockEnv(map[string]string{"XDG_CONFIG_HOME": tmpDir}))
	if err == nil {
		t.Fatal("expected error for non-positive values")
	}
}

func TestLoadMissingFileErrors(t *testing.T) {
	tmpDir := t.TempDir()
	_, err := LoadWithEnv(mockEnv(map[string]string{"XDG_CONFIG_HOME": tmpDir}))
	if err == nil {
		t.Fatal("expected error when config file is missing")
	}
}

func TestResolveConfigPathPrefersXDG(t *testing.T) {
	path, err := resolveConfigPath(mockEnv(map[string]string{"XDG_CONFIG_HOME": "/tmp/xdg-home"}))
	if err != nil {
		t.Fatalf("resolveConfigPath: %v", err)
	}
	if want := filepath.Join("/tmp/xdg-home", "jirafs", "config.yaml"); path != want {
		t.Errorf("path = %q, want %q", path, want)
	}
}

func TestResolveConfigPathFallsBackToHome(t *testing.T) {
	path, err := resolveConfigPath(mockEnv(map[string]string{"HOME": "/tmp/home"}))
	if err != nil {
		t.Fatalf("resolveConfigPath: %v", err)
	}
	if want := filepath.Join("/tmp/home", ".config", "jirafs", "config.yaml"); path != want {
		t.Errorf("path = %q, want %q", path, want)
	}
}

func TestResolveConfigPathRequiresHome(t *testing.T) {
	_, err := resolveConfigPath(mockEnv(nil))
	if err == nil {
		t.Fatal("expected error when neither XDG_CONFIG_HOME nor HOME resolves")
	}
}
