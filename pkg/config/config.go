package config

import (
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App      App      `yaml:"app"`
	Database Database `yaml:"database"`
	Allows   Allows   `yaml:"allows"`
	Log      Log      `yaml:"log"`
	WhatsApp WhatsApp `yaml:"whatsapp"`
	Crypto   Crypto   `yaml:"crypto"`
}

type App struct {
	Name string `yaml:"name"`
	Port string `yaml:"port"`
	Host string `yaml:"host"`
}

type Database struct {
	Host string `yaml:"host"`
	Port string `yaml:"port"`
	User string `yaml:"user"`
	Pass string `yaml:"pass"`
	Name string `yaml:"name"`
}

type Allows struct {
	Methods []string `yaml:"methods"`
	Origins []string `yaml:"origins"`
	Headers []string `yaml:"headers"`
}

type Log struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
	JSON  bool   `yaml:"json"`
}

// WhatsApp holds the connection manager tunables.
type WhatsApp struct {
	CredentialsDir          string `yaml:"credentials_dir"`
	MaxSessionsPerWorkspace int    `yaml:"max_sessions_per_workspace"`
	MaxReconnectAttempts    int    `yaml:"max_reconnect_attempts"`
	ReconnectBaseDelayMs    int    `yaml:"reconnect_base_delay_ms"`
	ReconnectMaxDelayMs     int    `yaml:"reconnect_max_delay_ms"`
	RestoreWorkers          int    `yaml:"restore_workers"`
	SweepSpec               string `yaml:"sweep_spec"`
}

type Crypto struct {
	Key string `yaml:"key"`
}

func InitConfig() *Config {
	var configs Config
	file_name, _ := filepath.Abs("./config.yaml")
	yaml_file, _ := os.ReadFile(file_name)
	yaml.Unmarshal(yaml_file, &configs)

	configs.applyEnv()
	configs.applyDefaults()

	return &configs
}

func (c *Config) applyEnv() {
	// Override with environment variables if they exist (for Docker)
	if dbHost := os.Getenv("DB_HOST"); dbHost != "" {
		c.Database.Host = dbHost
	}
	if dbPort := os.Getenv("DB_PORT"); dbPort != "" {
		c.Database.Port = dbPort
	}
	if dbUser := os.Getenv("DB_USER"); dbUser != "" {
		c.Database.User = dbUser
	}
	if dbPassword := os.Getenv("DB_PASSWORD"); dbPassword != "" {
		c.Database.Pass = dbPassword
	}
	if dbName := os.Getenv("DB_NAME"); dbName != "" {
		c.Database.Name = dbName
	}

	// Override app configuration with environment variables
	if appHost := os.Getenv("APP_HOST"); appHost != "" {
		c.App.Host = appHost
	}
	if appPort := os.Getenv("APP_PORT"); appPort != "" {
		c.App.Port = appPort
	}
	if appName := os.Getenv("APP_NAME"); appName != "" {
		c.App.Name = appName
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
	if file := os.Getenv("LOG_FILE"); file != "" {
		c.Log.File = file
	}

	if dir := os.Getenv("WA_CREDENTIALS_DIR"); dir != "" {
		c.WhatsApp.CredentialsDir = dir
	}
	if attempts := os.Getenv("WA_MAX_RECONNECT_ATTEMPTS"); attempts != "" {
		if v, err := strconv.Atoi(attempts); err == nil {
			c.WhatsApp.MaxReconnectAttempts = v
		}
	}
	if key := os.Getenv("ENCRYPTION_KEY"); key != "" {
		c.Crypto.Key = key
	}
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "wacrm"
	}
	if c.App.Port == "" {
		c.App.Port = "8000"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.WhatsApp.CredentialsDir == "" {
		c.WhatsApp.CredentialsDir = "data/sessions"
	}
	if c.WhatsApp.MaxSessionsPerWorkspace <= 0 {
		c.WhatsApp.MaxSessionsPerWorkspace = 3
	}
	if c.WhatsApp.MaxReconnectAttempts <= 0 {
		c.WhatsApp.MaxReconnectAttempts = 5
	}
	if c.WhatsApp.ReconnectBaseDelayMs <= 0 {
		c.WhatsApp.ReconnectBaseDelayMs = 5000
	}
	if c.WhatsApp.ReconnectMaxDelayMs <= 0 {
		c.WhatsApp.ReconnectMaxDelayMs = 30000
	}
	if c.WhatsApp.RestoreWorkers <= 0 {
		c.WhatsApp.RestoreWorkers = 4
	}
	if c.WhatsApp.SweepSpec == "" {
		c.WhatsApp.SweepSpec = "@every 5m"
	}
}
