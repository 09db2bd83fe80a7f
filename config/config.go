package config

import (
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	LLM      LLMConfig      `yaml:"llm"`
	Preview  PreviewConfig  `yaml:"preview"`
	Locale   LocaleConfig   `yaml:"locale"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
	Mode string `yaml:"mode"` // debug, release
}

type DatabaseConfig struct {
	Type string `yaml:"type"` // sqlite, mysql
	DSN  string `yaml:"dsn"`
}

type LLMConfig struct {
	Provider  string        `yaml:"provider"` // claude, openai
	APIURL    string        `yaml:"api_url"`
	APIKey    string        `yaml:"api_key"`
	Model     string        `yaml:"model"`
	MaxTokens int           `yaml:"max_tokens"`
	Timeout   time.Duration `yaml:"timeout"`
}

// PreviewConfig 仕様书预览（文档生成）相关配置
type PreviewConfig struct {
	Debounce      time.Duration `yaml:"debounce"`
	MinDiffLength int           `yaml:"min_diff_length"`
	Workers       int           `yaml:"workers"`
}

type LocaleConfig struct {
	Default string `yaml:"default"` // ja, en
}

// LogConfig 为空 File 时日志输出到 stderr
type LogConfig struct {
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

var (
	cfg  *Config
	once sync.Once
)

func GetConfig() *Config {
	once.Do(func() {
		cfg = loadConfig()
	})
	return cfg
}

// Default 返回内置默认配置
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8080",
			Mode: "debug",
		},
		Database: DatabaseConfig{
			Type: "sqlite",
			DSN:  "./data/app.db",
		},
		LLM: LLMConfig{
			Provider:  "claude",
			Model:     "claude-sonnet-4-20250514",
			MaxTokens: 4096,
			Timeout:   60 * time.Second,
		},
		Preview: PreviewConfig{
			Debounce:      2 * time.Second,
			MinDiffLength: 100,
			Workers:       2,
		},
		Locale: LocaleConfig{
			Default: "ja",
		},
		Log: LogConfig{
			MaxSizeMB:  15,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

func loadConfig() *Config {
	// .env 不存在时忽略
	_ = godotenv.Load()

	config := Default()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath)
	if err == nil {
		yaml.Unmarshal(data, config)
	}

	applyEnv(config)
	return config
}

// applyEnv 环境变量优先级高于配置文件
func applyEnv(config *Config) {
	if provider := os.Getenv("LLM_PROVIDER"); provider != "" {
		config.LLM.Provider = provider
	}
	switch config.LLM.Provider {
	case "openai":
		if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
			config.LLM.APIKey = apiKey
		}
		if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
			config.LLM.APIURL = baseURL
		}
		if model := os.Getenv("OPENAI_MODEL_NAME"); model != "" {
			config.LLM.Model = model
		}
	default:
		if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" {
			config.LLM.APIKey = apiKey
		}
		if model := os.Getenv("ANTHROPIC_MODEL_NAME"); model != "" {
			config.LLM.Model = model
		}
	}
	if maxTokens := os.Getenv("LLM_MAX_TOKENS"); maxTokens != "" {
		if n, err := strconv.Atoi(maxTokens); err == nil && n > 0 {
			config.LLM.MaxTokens = n
		}
	}

	if port := os.Getenv("SERVER_PORT"); port != "" {
		config.Server.Port = port
	}

	// 数据库环境变量
	if dbType := os.Getenv("DB_TYPE"); dbType != "" {
		config.Database.Type = dbType
	}
	if dbDSN := os.Getenv("DB_DSN"); dbDSN != "" {
		config.Database.DSN = dbDSN
	}

	if locale := os.Getenv("DEFAULT_LOCALE"); locale != "" {
		config.Locale.Default = locale
	}
	if logFile := os.Getenv("LOG_FILE"); logFile != "" {
		config.Log.File = logFile
	}
}

func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
