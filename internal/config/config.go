// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

var (
	currentConfig *AppConfig
	configMutex   sync.RWMutex
)

// AppConfig 包含应用程序的所有配置
type AppConfig struct {
	Port         string `json:"port"`
	DataDir      string `json:"data_dir"`
	WorkspaceDir string `json:"workspace_dir"`
	LogDir       string `json:"log_dir"`
	LogLevel     string `json:"log_level"`
	DebugMode    bool   `json:"debug_mode"`

	// ExportSource is written into the "source" field of every document.
	ExportSource string `json:"export_source"`
	// ExportableAppStateKeys lists the app state keys kept on export.
	ExportableAppStateKeys []string `json:"exportable_app_state_keys"`

	// PromptTimeout bounds how long a picker or permission prompt may wait.
	// Zero waits until the client answers or the request ends.
	PromptTimeout time.Duration `json:"prompt_timeout"`

	RateLimitPerMinute int `json:"rate_limit_per_minute"`
}

// Load 从环境变量加载配置
func Load(envFiles ...string) (*AppConfig, error) {
	// .env 文件可选
	_ = godotenv.Load(envFiles...)

	dataDir := getEnv("DATA_DIR", "data")
	cfg := &AppConfig{
		Port:                   getEnv("PORT", "8080"),
		DataDir:                dataDir,
		WorkspaceDir:           getEnv("WORKSPACE_DIR", filepath.Join(dataDir, "workspace")),
		LogDir:                 getEnv("LOG_DIR", "logs"),
		LogLevel:               getEnv("LOG_LEVEL", "info"),
		DebugMode:              getEnvBool("DEBUG_MODE", true),
		ExportSource:           getEnv("EXPORT_SOURCE", "https://excalidraw.com"),
		ExportableAppStateKeys: getEnvList("EXPORTABLE_APP_STATE_KEYS", []string{"viewBackgroundColor", "gridSize"}),
		RateLimitPerMinute:     getEnvInt("RATE_LIMIT_PER_MINUTE", 120),
	}

	timeout, err := getEnvDuration("PROMPT_TIMEOUT", 0)
	if err != nil {
		return nil, err
	}
	cfg.PromptTimeout = timeout

	if cfg.ExportSource == "" {
		return nil, fmt.Errorf("EXPORT_SOURCE must not be empty")
	}
	return cfg, nil
}

// EnsureDirectories creates the data, workspace and log directories.
func (c *AppConfig) EnsureDirectories() error {
	for _, dir := range []string{c.DataDir, c.WorkspaceDir, c.LogDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("创建目录失败 %s: %w", dir, err)
		}
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

func getEnvInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(os.Getenv(key))
	if err != nil || value <= 0 {
		return defaultValue
	}
	return value
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return d, nil
}

// InitConfig loads configuration and installs it as the process-wide snapshot.
func InitConfig(envFiles ...string) (*AppConfig, error) {
	cfg, err := Load(envFiles...)
	if err != nil {
		return nil, err
	}
	SetCurrentConfig(cfg)
	return GetCurrentConfig(), nil
}

// SetCurrentConfig replaces the process-wide snapshot.
func SetCurrentConfig(cfg *AppConfig) {
	configMutex.Lock()
	defer configMutex.Unlock()
	configCopy := *cfg
	currentConfig = &configCopy
}

// GetCurrentConfig 返回当前配置的副本
func GetCurrentConfig() *AppConfig {
	configMutex.RLock()
	defer configMutex.RUnlock()

	if currentConfig == nil {
		cfg, err := Load()
		if err != nil {
			return &AppConfig{Port: "8080", DataDir: "data", ExportSource: "https://excalidraw.com"}
		}
		return cfg
	}

	configCopy := *currentConfig
	configCopy.ExportableAppStateKeys = append([]string(nil), currentConfig.ExportableAppStateKeys...)
	return &configCopy
}
