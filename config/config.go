package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config represents the application configuration
type Config struct {
	DefaultBackend string `json:"default_backend"`
	DefaultModel   string `json:"default_model"`
	PromptPath     string `json:"prompt_path,omitempty"`
}

// Manager handles configuration persistence
type Manager struct {
	configPath string
	config     *Config
}

// NewManager creates a new config manager
func NewManager() (*Manager, error) {
	// Get user's home directory
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	return NewManagerAt(filepath.Join(homeDir, ".scenetag"))
}

// NewManagerAt creates a config manager rooted at a specific directory
func NewManagerAt(configDir string) (*Manager, error) {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	m := &Manager{
		configPath: filepath.Join(configDir, "config.json"),
		config:     &Config{},
	}

	// Load existing config if it exists
	if err := m.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return m, nil
}

// Load reads the configuration from disk
func (m *Manager) Load() error {
	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, m.config); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	return nil
}

// Save writes the configuration to disk
func (m *Manager) Save() error {
	data, err := json.MarshalIndent(m.config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// GetDefaultBackend returns the default backend
func (m *Manager) GetDefaultBackend() string {
	if m.config.DefaultBackend == "" {
		return "dashscope"
	}
	return m.config.DefaultBackend
}

// GetDefaultModel returns the default model
func (m *Manager) GetDefaultModel() string {
	return m.config.DefaultModel
}

// GetPromptPath returns the configured prompt file override, if any
func (m *Manager) GetPromptPath() string {
	return m.config.PromptPath
}

// SetDefaults updates the default backend and model
func (m *Manager) SetDefaults(backend, model string) error {
	m.config.DefaultBackend = backend
	m.config.DefaultModel = model
	return m.Save()
}

// SetPromptPath updates the prompt file override
func (m *Manager) SetPromptPath(path string) error {
	m.config.PromptPath = path
	return m.Save()
}
