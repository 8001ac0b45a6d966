package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Telegram    TelegramConfig    `mapstructure:"telegram"`
	Database    DatabaseConfig    `mapstructure:"database"`
	OpenAI      OpenAIConfig      `mapstructure:"openai"`
	Grouper     GrouperConfig     `mapstructure:"grouper"`
	Dedup       DedupConfig       `mapstructure:"dedup"`
	Topics      TopicsConfig      `mapstructure:"topics"`
	History     HistoryConfig     `mapstructure:"history"`
	Classifier  ClassifierConfig  `mapstructure:"classifier"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
}

type TelegramConfig struct {
	Token   string `mapstructure:"token"`
	OwnerID int64  `mapstructure:"owner_id"`
}

type DatabaseConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	User        string `mapstructure:"user"`
	Password    string `mapstructure:"password"`
	DBName      string `mapstructure:"dbname"`
	SSLMode     string `mapstructure:"sslmode"`
	UseInMemory bool   `mapstructure:"use_in_memory"`
}

type OpenAIConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
}

type GrouperConfig struct {
	BatchDelayMs  int `mapstructure:"batch_delay_ms"`
	MaxBatchSize  int `mapstructure:"max_batch_size"`
	SenderGapMs   int `mapstructure:"sender_gap_ms"`
	StaleBufferMs int `mapstructure:"stale_buffer_ms"`
}

func (c GrouperConfig) BatchDelay() time.Duration {
	return time.Duration(c.BatchDelayMs) * time.Millisecond
}

func (c GrouperConfig) SenderGap() time.Duration {
	return time.Duration(c.SenderGapMs) * time.Millisecond
}

func (c GrouperConfig) StaleBuffer() time.Duration {
	return time.Duration(c.StaleBufferMs) * time.Millisecond
}

type DedupConfig struct {
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
	SignatureCap        int     `mapstructure:"signature_cap"`
	SignatureTrim       int     `mapstructure:"signature_trim"`
	OwnerPolicy         string  `mapstructure:"owner_policy"`
}

type TopicsConfig struct {
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
	TimeoutHours        int     `mapstructure:"timeout_hours"`
	ActiveWindowHours   int     `mapstructure:"active_window_hours"`
	LookbackHours       int     `mapstructure:"lookback_hours"`
	MaxRecords          int     `mapstructure:"max_records"`
}

func (c TopicsConfig) Timeout() time.Duration { return time.Duration(c.TimeoutHours) * time.Hour }

func (c TopicsConfig) ActiveWindow() time.Duration {
	return time.Duration(c.ActiveWindowHours) * time.Hour
}

func (c TopicsConfig) Lookback() time.Duration { return time.Duration(c.LookbackHours) * time.Hour }

type HistoryConfig struct {
	WindowHours int `mapstructure:"window_hours"`
	MaxEntries  int `mapstructure:"max_entries"`
}

func (c HistoryConfig) Window() time.Duration { return time.Duration(c.WindowHours) * time.Hour }

type ClassifierConfig struct {
	MinConfidence    float64 `mapstructure:"min_confidence"`
	RequestTimeoutMs int     `mapstructure:"request_timeout_ms"`
}

func (c ClassifierConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMs) * time.Millisecond
}

type MaintenanceConfig struct {
	IntervalMinutes int `mapstructure:"interval_minutes"`
}

func (c MaintenanceConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}

func parseDatabaseURL(dbURL string) (DatabaseConfig, error) {
	u, err := url.Parse(dbURL)
	if err != nil {
		return DatabaseConfig{}, err
	}

	password, _ := u.User.Password()
	port := 5432 // default PostgreSQL port
	if u.Port() != "" {
		fmt.Sscanf(u.Port(), "%d", &port)
	}

	// Remove leading slash from path to get database name
	dbName := strings.TrimPrefix(u.Path, "/")

	return DatabaseConfig{
		Host:     u.Hostname(),
		Port:     port,
		User:     u.User.Username(),
		Password: password,
		DBName:   dbName,
		SSLMode:  "disable",
	}, nil
}

func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	// Set default values
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.use_in_memory", false)
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.max_tokens", 500)
	v.SetDefault("openai.temperature", 0.3)
	v.SetDefault("grouper.batch_delay_ms", 15000)
	v.SetDefault("grouper.max_batch_size", 5)
	v.SetDefault("grouper.sender_gap_ms", 300000)
	v.SetDefault("grouper.stale_buffer_ms", 600000)
	v.SetDefault("dedup.similarity_threshold", 0.8)
	v.SetDefault("dedup.signature_cap", 50)
	v.SetDefault("dedup.signature_trim", 30)
	v.SetDefault("dedup.owner_policy", "permissive")
	v.SetDefault("topics.similarity_threshold", 0.7)
	v.SetDefault("topics.timeout_hours", 6)
	v.SetDefault("topics.active_window_hours", 2)
	v.SetDefault("topics.lookback_hours", 6)
	v.SetDefault("topics.max_records", 15)
	v.SetDefault("history.window_hours", 24)
	v.SetDefault("history.max_entries", 5)
	v.SetDefault("classifier.min_confidence", 0.7)
	v.SetDefault("classifier.request_timeout_ms", 30000)
	v.SetDefault("maintenance.interval_minutes", 60)

	// Enable environment variable support
	v.AutomaticEnv()

	// Read the config file
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Check for DATABASE_URL environment variable
	if dbURL := v.GetString("DATABASE_URL"); dbURL != "" {
		dbConfig, err := parseDatabaseURL(dbURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse DATABASE_URL: %v", err)
		}
		config.Database = dbConfig
	}

	// Get other environment variables
	if token := v.GetString("TELEGRAM_TOKEN"); token != "" {
		config.Telegram.Token = token
	}

	if apiKey := v.GetString("OPENAI_API_KEY"); apiKey != "" {
		config.OpenAI.APIKey = apiKey
	}

	return &config, nil
}
