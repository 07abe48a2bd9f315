package config

import (
	"fmt"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Manager loads Config from a YAML file with VISTTER_-prefixed environment
// overrides, and optionally watches the file for changes, notifying
// registered callbacks — the same load/validate/watch shape as the
// teacher's ConfigManager.
type Manager struct {
	mu        sync.RWMutex
	v         *viper.Viper
	current   *Config
	callbacks []func(*Config)
}

// NewManager constructs an unloaded Manager.
func NewManager() *Manager {
	return &Manager{v: viper.New()}
}

// Load reads configPath, applies defaults, validates, and stores the result.
func (m *Manager) Load(configPath string) error {
	m.v.SetConfigFile(configPath)
	m.v.SetConfigType("yaml")

	m.v.AutomaticEnv()
	m.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	m.v.SetEnvPrefix("VISTTER")

	if err := m.v.ReadInConfig(); err != nil {
		return fmt.Errorf("reading config %s: %w", configPath, err)
	}

	var cfg Config
	if err := m.v.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("unmarshaling config: %w", err)
	}
	setDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	m.mu.Lock()
	m.current = &cfg
	m.mu.Unlock()
	return nil
}

// Current returns the most recently loaded Config. Safe for concurrent use.
func (m *Manager) Current() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// OnChange registers a callback invoked after a successful hot reload.
func (m *Manager) OnChange(fn func(*Config)) {
	m.mu.Lock()
	m.callbacks = append(m.callbacks, fn)
	m.mu.Unlock()
}

// WatchForChanges starts watching the loaded file for edits and reloads on
// change, notifying registered callbacks. Callers gate this behind an
// explicit opt-in (e.g. an env var) the same way the teacher gates its own
// fsnotify watch — hot reload is not always desirable on an appliance with
// a locked-down filesystem.
func (m *Manager) WatchForChanges() {
	m.v.WatchConfig()
	m.v.OnConfigChange(func(_ fsnotify.Event) {
		var cfg Config
		if err := m.v.Unmarshal(&cfg); err != nil {
			return
		}
		setDefaults(&cfg)
		if err := Validate(&cfg); err != nil {
			return
		}
		m.mu.Lock()
		m.current = &cfg
		cbs := append([]func(*Config){}, m.callbacks...)
		m.mu.Unlock()
		for _, cb := range cbs {
			cb(&cfg)
		}
	})
}
