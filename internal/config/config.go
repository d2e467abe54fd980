// Package config loads and persists the browser's JSON configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/justyntemme/shelf/internal/logging"
)

// Config holds all user-configurable settings loaded from config.json
type Config struct {
	API           APIConfig           `json:"api"`
	Local         LocalConfig         `json:"local"`
	Browser       BrowserConfig       `json:"browser"`
	Notifications NotificationsConfig `json:"notifications"`
	Preview       PreviewConfig       `json:"preview"`
	Logging       LoggingConfig       `json:"logging"`
	Store         StoreConfig         `json:"store"`
}

// APIConfig selects and configures the remote collection service. An empty
// BaseURL selects the local backend.
type APIConfig struct {
	BaseURL     string `json:"baseURL"`
	Token       string `json:"token"`
	TimeoutMs   int    `json:"timeoutMs"`
	ListRetries int    `json:"listRetries"`
}

// LocalConfig configures the local-disk backend.
type LocalConfig struct {
	Root            string `json:"root"`
	ShowHidden      bool   `json:"showHidden"`
	Trash           bool   `json:"trash"`
	RecentLimit     int    `json:"recentLimit"`
	Watch           bool   `json:"watch"`
	WatchDebounceMs int    `json:"watchDebounceMs"`
}

// BrowserConfig holds listing defaults.
type BrowserConfig struct {
	DefaultSort      string `json:"defaultSort"` // "name" | "modified" | "size" | "kind"
	SortDescending   bool   `json:"sortDescending"`
	SearchDebounceMs int    `json:"searchDebounceMs"`
}

// NotificationsConfig holds auto-dismiss durations.
type NotificationsConfig struct {
	DefaultMs int `json:"defaultMs"`
	ErrorMs   int `json:"errorMs"`
}

// PreviewConfig bounds the preview transform.
type PreviewConfig struct {
	MinZoom  float64 `json:"minZoom"`
	MaxZoom  float64 `json:"maxZoom"`
	ZoomStep float64 `json:"zoomStep"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, console
	Output string `json:"output"` // stderr, stdout or a file path
}

// StoreConfig locates the SQLite database.
type StoreConfig struct {
	Path string `json:"path"`
}

// Manager handles loading, saving, and accessing configuration
type Manager struct {
	mu       sync.RWMutex
	config   *Config
	path     string
	parseErr error // Stores parsing error if config failed to load
}

// NewManager creates a new configuration manager
func NewManager() *Manager {
	return &Manager{
		config: DefaultConfig(),
	}
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		API: APIConfig{
			TimeoutMs:   30000,
			ListRetries: 2,
		},
		Local: LocalConfig{
			Root:            home,
			ShowHidden:      false,
			Trash:           true,
			RecentLimit:     50,
			Watch:           true,
			WatchDebounceMs: 200,
		},
		Browser: BrowserConfig{
			DefaultSort:      "name",
			SortDescending:   false,
			SearchDebounceMs: 275,
		},
		Notifications: NotificationsConfig{
			DefaultMs: 4000,
			ErrorMs:   8000,
		},
		Preview: PreviewConfig{
			MinZoom:  0.5,
			MaxZoom:  5.0,
			ZoomStep: 0.2,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			Output: "stderr",
		},
		Store: StoreConfig{
			Path: filepath.Join(configDir(), "shelf.db"),
		},
	}
}

func configDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "shelf")
}

// ConfigPath returns the config file path: ~/.config/shelf/config.json
func ConfigPath() string {
	return filepath.Join(configDir(), "config.json")
}

// Load reads the configuration from path, or ConfigPath when path is empty.
// If the file doesn't exist, creates it with defaults.
// If parsing fails, stores the error and keeps the defaults.
func (m *Manager) Load(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if path == "" {
		path = ConfigPath()
	}
	m.path = path
	m.parseErr = nil
	log := logging.Named("config")

	dir := filepath.Dir(m.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Error("failed to create directory", zap.String("dir", dir), zap.Error(err))
		return err
	}

	data, err := os.ReadFile(m.path)
	if os.IsNotExist(err) {
		log.Info("creating default config", zap.String("path", m.path))
		m.config = DefaultConfig()
		return m.saveUnlocked()
	}
	if err != nil {
		log.Error("failed to read config", zap.String("path", m.path), zap.Error(err))
		return err
	}

	// Fields missing from the file keep their defaults.
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		log.Warn("config parse error, using defaults", zap.Error(err))
		m.parseErr = err
		m.config = DefaultConfig()
		return nil
	}

	log.Debug("loaded config", zap.String("path", m.path))
	m.config = cfg
	return nil
}

// saveUnlocked saves config without acquiring lock (caller must hold lock)
func (m *Manager) saveUnlocked() error {
	if m.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(m.config, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(m.path, data, 0o644)
}

// Save writes the current configuration to disk
func (m *Manager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveUnlocked()
}

// Path returns the file the configuration was loaded from.
func (m *Manager) Path() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.path
}

// Get returns a copy of the current configuration
func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.config == nil {
		return *DefaultConfig()
	}
	return *m.config
}

// ParseError returns the parsing error if config failed to load
func (m *Manager) ParseError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.parseErr
}

// SetShowHidden updates the show hidden files setting
func (m *Manager) SetShowHidden(show bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config.Local.ShowHidden = show
	return m.saveUnlocked()
}

// SetDefaultSort updates the default sort
func (m *Manager) SetDefaultSort(field string, descending bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config.Browser.DefaultSort = field
	m.config.Browser.SortDescending = descending
	return m.saveUnlocked()
}

// SetAPI points the browser at a collection service.
func (m *Manager) SetAPI(baseURL, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config.API.BaseURL = baseURL
	m.config.API.Token = token
	return m.saveUnlocked()
}

// Timeout returns the request timeout.
func (c APIConfig) Timeout() time.Duration {
	return ms(c.TimeoutMs, 30*time.Second)
}

// WatchDebounce returns the watcher debounce interval.
func (c LocalConfig) WatchDebounce() time.Duration {
	return ms(c.WatchDebounceMs, 200*time.Millisecond)
}

// SearchDebounce returns the search quiet period.
func (c BrowserConfig) SearchDebounce() time.Duration {
	return ms(c.SearchDebounceMs, 275*time.Millisecond)
}

// Default returns the auto-dismiss duration for non-error notifications.
func (c NotificationsConfig) Default() time.Duration {
	return ms(c.DefaultMs, 4*time.Second)
}

// Error returns the auto-dismiss duration for error notifications.
func (c NotificationsConfig) Error() time.Duration {
	return ms(c.ErrorMs, 8*time.Second)
}

func ms(v int, fallback time.Duration) time.Duration {
	if v <= 0 {
		return fallback
	}
	return time.Duration(v) * time.Millisecond
}

// GenerateConfig backs up existing config at path and writes a fresh default
// config. Returns the backup path if a backup was created.
func GenerateConfig(path string) (backupPath string, err error) {
	if path == "" {
		path = ConfigPath()
	}

	if _, err := os.Stat(path); err == nil {
		timestamp := time.Now().Format("20060102-150405")
		backupPath = filepath.Join(filepath.Dir(path), "config.backup."+timestamp+".json")

		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to read existing config: %w", err)
		}
		if err := os.WriteFile(backupPath, data, 0o644); err != nil {
			return "", fmt.Errorf("failed to write backup: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return backupPath, fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(DefaultConfig(), "", "  ")
	if err != nil {
		return backupPath, fmt.Errorf("failed to marshal default config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return backupPath, fmt.Errorf("failed to write config: %w", err)
	}
	return backupPath, nil
}
