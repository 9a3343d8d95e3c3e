package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
)

// Config holds all application configuration
type Config struct {
	ServerAddress string       `json:"serverAddress"`
	DatabasePath  string       `json:"databasePath"`
	DatabaseURL   string       `json:"databaseUrl"`
	Remote        Remote       `json:"remote"`
	ImageStorage  ImageStorage `json:"imageStorage"`
	Security      Security     `json:"security"`
	Sync          Sync         `json:"sync"`
}

// Remote configures the sync engine's view of the remote store
type Remote struct {
	BaseURL string `json:"baseUrl"`
	APIKey  string `json:"apiKey"`
}

// ImageStorage configures receipt image storage on the server side
type ImageStorage struct {
	BasePath          string   `json:"basePath"`
	MaxFileSizeMB     int64    `json:"maxFileSizeMB"`
	AllowedExtensions []string `json:"allowedExtensions"`
}

// Security configuration for the server facade
type Security struct {
	APIKey       string `json:"apiKey"`
	APIKeyHash   string `json:"apiKeyHash"`
	APIKeyHeader string `json:"apiKeyHeader"`
}

// Sync holds the engine's timing and retry tuning
type Sync struct {
	PeriodicSeconds        int `json:"periodicSeconds"`
	DebounceMillis         int `json:"debounceMillis"`
	MinIntervalSeconds     int `json:"minIntervalSeconds"`
	MaxRetryCount          int `json:"maxRetryCount"`
	MaxConsecutiveFailures int `json:"maxConsecutiveFailures"`
	ProbeIntervalSeconds   int `json:"probeIntervalSeconds"`
}

// UsePostgres returns true if PostgreSQL should be used for the server store
func (c *Config) UsePostgres() bool {
	return c.DatabaseURL != ""
}

func defaultConfig() *Config {
	return &Config{
		ServerAddress: ":5000",
		DatabasePath:  "expenses.db",
		Remote: Remote{
			BaseURL: "http://localhost:5000",
		},
		ImageStorage: ImageStorage{
			BasePath:      "./receipt-images",
			MaxFileSizeMB: 20,
			AllowedExtensions: []string{
				".jpg", ".jpeg", ".png", ".webp", ".heic", ".heif",
			},
		},
		Security: Security{
			APIKey:       "CHANGE_THIS_TO_A_SECURE_API_KEY_AT_LEAST_32_CHARS",
			APIKeyHeader: "X-API-Key",
		},
		Sync: Sync{
			PeriodicSeconds:        30,
			DebounceMillis:         2000,
			MinIntervalSeconds:     5,
			MaxRetryCount:          3,
			MaxConsecutiveFailures: 5,
			ProbeIntervalSeconds:   15,
		},
	}
}

// Load loads configuration from file or environment
func Load() (*Config, error) {
	cfg := defaultConfig()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.json"
	}

	if data, err := os.ReadFile(configPath); err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	// Override from environment variables
	if addr := os.Getenv("SERVER_ADDRESS"); addr != "" {
		cfg.ServerAddress = addr
	}
	if dbPath := os.Getenv("DATABASE_PATH"); dbPath != "" {
		cfg.DatabasePath = dbPath
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		cfg.DatabaseURL = dbURL
	}
	if baseURL := os.Getenv("REMOTE_BASE_URL"); baseURL != "" {
		cfg.Remote.BaseURL = baseURL
	}
	if apiKey := os.Getenv("REMOTE_API_KEY"); apiKey != "" {
		cfg.Remote.APIKey = apiKey
	}
	if basePath := os.Getenv("IMAGE_STORAGE_PATH"); basePath != "" {
		cfg.ImageStorage.BasePath = basePath
	}
	if apiKey := os.Getenv("API_KEY"); apiKey != "" {
		cfg.Security.APIKey = apiKey
	}
	if hash := os.Getenv("API_KEY_HASH"); hash != "" {
		cfg.Security.APIKeyHash = hash
	}
	if v := os.Getenv("SYNC_PERIODIC_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Sync.PeriodicSeconds = n
		}
	}
	if v := os.Getenv("SYNC_DEBOUNCE_MILLIS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Sync.DebounceMillis = n
		}
	}
	if v := os.Getenv("SYNC_MAX_RETRY_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Sync.MaxRetryCount = n
		}
	}

	// Ensure image storage directory exists
	if err := os.MkdirAll(cfg.ImageStorage.BasePath, 0755); err != nil {
		return nil, err
	}

	absPath, err := filepath.Abs(cfg.ImageStorage.BasePath)
	if err != nil {
		return nil, err
	}
	cfg.ImageStorage.BasePath = absPath

	return cfg, nil
}
