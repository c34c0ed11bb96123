package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Database struct {
		Type string `yaml:"type"` // "sqlite", "postgres" or "sheets"
		Path string `yaml:"path"` // SQLite file path
		URL  string `yaml:"url"`  // PostgreSQL connection URL
	} `yaml:"database"`

	Sheets struct {
		CredentialsFile string `yaml:"credentials_file"`
		SpreadsheetID   string `yaml:"spreadsheet_id"`
		SheetName       string `yaml:"sheet_name"`
	} `yaml:"sheets"`

	Dataset struct {
		Path    string `yaml:"path"`     // local CSV path
		URL     string `yaml:"url"`      // optional download URL, fetched once if Path is missing
		KeyMode string `yaml:"key_mode"` // "natural" (unique_number) or "hash" (summary digest)
	} `yaml:"dataset"`

	Auth struct {
		AppPassword   string `yaml:"app_password"`
		AdminPassword string `yaml:"admin_password"`
		JWTSecret     string `yaml:"jwt_secret"`
		TokenTTLHours int    `yaml:"token_ttl_hours"`
	} `yaml:"auth"`
}

// LoadConfig loads configuration from YAML file
func LoadConfig(configPath string) (*Config, error) {
	config := &Config{}

	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	// Set defaults
	if config.Server.Port == "" {
		config.Server.Port = "8003"
	}

	if config.Database.Type == "" {
		config.Database.Type = "sqlite"
	}

	if config.Database.Path == "" {
		config.Database.Path = "./data/labels.db"
	}

	if config.Sheets.SheetName == "" {
		config.Sheets.SheetName = "Sheet1"
	}

	if config.Dataset.Path == "" {
		config.Dataset.Path = "./data/bill_summaries_text.csv"
	}

	if config.Dataset.KeyMode == "" {
		config.Dataset.KeyMode = "natural"
	}

	if config.Auth.TokenTTLHours == 0 {
		config.Auth.TokenTTLHours = 12
	}

	// Expand environment variables in secrets
	config.Auth.AppPassword = os.ExpandEnv(config.Auth.AppPassword)
	config.Auth.AdminPassword = os.ExpandEnv(config.Auth.AdminPassword)
	config.Auth.JWTSecret = os.ExpandEnv(config.Auth.JWTSecret)
	config.Database.URL = os.ExpandEnv(config.Database.URL)

	return config, nil
}
