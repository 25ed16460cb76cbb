package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "DATA_DIR", "WORKSPACE_DIR", "EXPORT_SOURCE", "EXPORTABLE_APP_STATE_KEYS", "PROMPT_TIMEOUT"} {
		t.Setenv(key, "")
	}

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("Port = %s", cfg.Port)
	}
	if cfg.WorkspaceDir != filepath.Join("data", "workspace") {
		t.Errorf("WorkspaceDir = %s", cfg.WorkspaceDir)
	}
	if cfg.ExportSource != "https://excalidraw.com" {
		t.Errorf("ExportSource = %s", cfg.ExportSource)
	}
	if !reflect.DeepEqual(cfg.ExportableAppStateKeys, []string{"viewBackgroundColor", "gridSize"}) {
		t.Errorf("ExportableAppStateKeys = %v", cfg.ExportableAppStateKeys)
	}
	if cfg.PromptTimeout != 0 {
		t.Errorf("PromptTimeout = %v", cfg.PromptTimeout)
	}
}

func TestLoadFromEnvFile(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("EXPORTABLE_APP_STATE_KEYS", "")
	t.Setenv("PROMPT_TIMEOUT", "")

	envFile := filepath.Join(t.TempDir(), ".env")
	content := "PORT=9090\nEXPORTABLE_APP_STATE_KEYS=gridSize, theme ,\nPROMPT_TIMEOUT=45s\n"
	if err := os.WriteFile(envFile, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	// godotenv never overrides variables that are already set, including empty ones
	os.Unsetenv("PORT")
	os.Unsetenv("EXPORTABLE_APP_STATE_KEYS")
	os.Unsetenv("PROMPT_TIMEOUT")

	cfg, err := Load(envFile)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "9090" {
		t.Errorf("Port = %s", cfg.Port)
	}
	if !reflect.DeepEqual(cfg.ExportableAppStateKeys, []string{"gridSize", "theme"}) {
		t.Errorf("ExportableAppStateKeys = %v", cfg.ExportableAppStateKeys)
	}
	if cfg.PromptTimeout != 45*time.Second {
		t.Errorf("PromptTimeout = %v", cfg.PromptTimeout)
	}
}

func TestLoadRejectsBadTimeout(t *testing.T) {
	t.Setenv("PROMPT_TIMEOUT", "soon")
	if _, err := Load(filepath.Join(t.TempDir(), "none.env")); err == nil {
		t.Fatal("expected error for invalid PROMPT_TIMEOUT")
	}
}

func TestCurrentConfigIsCopy(t *testing.T) {
	SetCurrentConfig(&AppConfig{Port: "1", ExportSource: "x", ExportableAppStateKeys: []string{"gridSize"}})

	cfg := GetCurrentConfig()
	cfg.Port = "2"
	cfg.ExportableAppStateKeys[0] = "mutated"

	again := GetCurrentConfig()
	if again.Port != "1" || again.ExportableAppStateKeys[0] != "gridSize" {
		t.Fatalf("snapshot was mutated: %+v", again)
	}
}
