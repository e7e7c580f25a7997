package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Mail      MailConfig      `mapstructure:"mail"`
	Oracle    OracleConfig    `mapstructure:"oracle"`
	Knowledge KnowledgeConfig `mapstructure:"knowledge"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

// MailConfig holds mail retrieval configuration. Either the Gmail API
// (OAuth2 refresh token) or plain IMAP can be used as the source.
type MailConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RefreshToken string `mapstructure:"refresh_token"`
	UserEmail    string `mapstructure:"user_email"`
	UseIMAP      bool   `mapstructure:"use_imap"`
	IMAPHost     string `mapstructure:"imap_host"`
	IMAPPort     int    `mapstructure:"imap_port"`
	IMAPUser     string `mapstructure:"imap_user"`
	IMAPPassword string `mapstructure:"imap_password"`
	MaxCount     int    `mapstructure:"max_count"`
}

// OracleConfig holds configuration for the optional LLM refinement step.
// An empty APIKey disables the oracle entirely; the heuristic path is used.
type OracleConfig struct {
	APIKey    string        `mapstructure:"api_key"`
	Model     string        `mapstructure:"model"`
	MaxTokens int           `mapstructure:"max_tokens"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// KnowledgeConfig holds knowledge-base configuration
type KnowledgeConfig struct {
	Dir  string `mapstructure:"dir"`
	TopK int    `mapstructure:"top_k"`
}

// PipelineConfig holds ingestion pipeline configuration
type PipelineConfig struct {
	Workers    int `mapstructure:"workers"`
	FetchLimit int `mapstructure:"fetch_limit"`
}

// SchedulerConfig holds scheduler configuration
type SchedulerConfig struct {
	IntervalMinutes int `mapstructure:"interval_minutes"`
}

// LoadConfig loads configuration from environment variables and config file
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	setDefaults()

	// Read config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Environment variables override config file
	viper.AutomaticEnv()
	bindEnvVars()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 3306)

	viper.SetDefault("mail.use_imap", false)
	viper.SetDefault("mail.imap_host", "imap.gmail.com")
	viper.SetDefault("mail.imap_port", 993)
	viper.SetDefault("mail.max_count", 100)

	viper.SetDefault("oracle.model", "gpt-4o-mini")
	viper.SetDefault("oracle.max_tokens", 512)
	viper.SetDefault("oracle.timeout", "20s")

	viper.SetDefault("knowledge.dir", "knowledge_base")
	viper.SetDefault("knowledge.top_k", 3)

	viper.SetDefault("pipeline.workers", 4)
	viper.SetDefault("pipeline.fetch_limit", 200)

	viper.SetDefault("scheduler.interval_minutes", 5)
}

// bindEnvVars binds environment variables to configuration keys
func bindEnvVars() {
	// Server
	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("server.read_timeout", "SERVER_READ_TIMEOUT")
	viper.BindEnv("server.write_timeout", "SERVER_WRITE_TIMEOUT")

	// Database
	viper.BindEnv("database.host", "DB_HOST")
	viper.BindEnv("database.port", "DB_PORT")
	viper.BindEnv("database.user", "DB_USER")
	viper.BindEnv("database.password", "DB_PASSWORD")
	viper.BindEnv("database.dbname", "DB_NAME")

	// Mail
	viper.BindEnv("mail.client_id", "GMAIL_CLIENT_ID")
	viper.BindEnv("mail.client_secret", "GMAIL_CLIENT_SECRET")
	viper.BindEnv("mail.refresh_token", "GMAIL_REFRESH_TOKEN")
	viper.BindEnv("mail.user_email", "GMAIL_USER_EMAIL")
	viper.BindEnv("mail.use_imap", "MAIL_USE_IMAP")
	viper.BindEnv("mail.imap_host", "MAIL_IMAP_HOST")
	viper.BindEnv("mail.imap_port", "MAIL_IMAP_PORT")
	viper.BindEnv("mail.imap_user", "MAIL_IMAP_USER")
	viper.BindEnv("mail.imap_password", "MAIL_IMAP_PASSWORD")
	viper.BindEnv("mail.max_count", "MAIL_MAX_COUNT")

	// Oracle
	viper.BindEnv("oracle.api_key", "ORACLE_API_KEY")
	viper.BindEnv("oracle.model", "ORACLE_MODEL")
	viper.BindEnv("oracle.max_tokens", "ORACLE_MAX_TOKENS")
	viper.BindEnv("oracle.timeout", "ORACLE_TIMEOUT")

	// Knowledge base
	viper.BindEnv("knowledge.dir", "KNOWLEDGE_DIR")
	viper.BindEnv("knowledge.top_k", "KNOWLEDGE_TOP_K")

	// Pipeline
	viper.BindEnv("pipeline.workers", "PIPELINE_WORKERS")
	viper.BindEnv("pipeline.fetch_limit", "PIPELINE_FETCH_LIMIT")

	// Scheduler
	viper.BindEnv("scheduler.interval_minutes", "SCHEDULER_INTERVAL_MINUTES")
}

// GetDSN returns the database connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.User, c.Password, c.Host, c.Port, c.DBName)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}

	if c.Database.Host == "" || c.Database.User == "" || c.Database.DBName == "" {
		return fmt.Errorf("database host, user, and dbname are required")
	}

	if !c.Mail.UseIMAP {
		if c.Mail.ClientID == "" || c.Mail.ClientSecret == "" || c.Mail.RefreshToken == "" {
			return fmt.Errorf("Gmail OAuth2 credentials are required when not using IMAP")
		}
	} else {
		if c.Mail.IMAPUser == "" || c.Mail.IMAPPassword == "" {
			return fmt.Errorf("IMAP credentials are required when using IMAP")
		}
	}

	if c.Pipeline.Workers <= 0 {
		return fmt.Errorf("pipeline workers must be greater than 0")
	}

	if c.Scheduler.IntervalMinutes <= 0 {
		return fmt.Errorf("scheduler interval must be greater than 0")
	}

	return nil
}
