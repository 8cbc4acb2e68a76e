package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	SAP      SAPConfig      `mapstructure:"sap"`
	Logger   LoggerConfig   `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsDir   string        `mapstructure:"migrations_dir"`
}

// SAPConfig holds the connection settings for the SAP drop folder. The
// generic fields are the legacy tier shared by all protocols; the FTP
// and SFTP blocks override them per protocol when set.
type SAPConfig struct {
	// Preferred upload protocol: "ftp" or "sftp"
	Protocol string `mapstructure:"protocol"`

	// Generic (legacy) tier
	Host       string `mapstructure:"host"`
	Username   string `mapstructure:"username"`
	Password   string `mapstructure:"password"`
	RemotePath string `mapstructure:"remote_path"`
	Port       int    `mapstructure:"port"`

	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`

	// Legacy ERP endpoints frequently present self-signed certificates
	TLSSkipVerify bool `mapstructure:"tls_skip_verify"`

	// When true the resolver may fall back to built-in localhost
	// credentials. Local development only.
	AllowDevDefaults bool `mapstructure:"allow_dev_defaults"`

	FTP  ProtocolSettings `mapstructure:"ftp"`
	SFTP ProtocolSettings `mapstructure:"sftp"`
}

// ProtocolSettings is the protocol-specific configuration tier.
type ProtocolSettings struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Username   string `mapstructure:"username"`
	Password   string `mapstructure:"password"`
	RemotePath string `mapstructure:"remote_path"`

	// Implicit-TLS port override; the FTP port is reused when zero.
	TLSPort int `mapstructure:"tls_port"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)

	// Database defaults
	v.SetDefault("database.path", "data/invoicing.db")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.migrations_dir", "migrations")

	// SAP delivery defaults
	v.SetDefault("sap.protocol", "ftp")
	v.SetDefault("sap.connect_timeout", 25*time.Second)
	v.SetDefault("sap.write_timeout", 10*time.Second)
	v.SetDefault("sap.tls_skip_verify", false)
	v.SetDefault("sap.allow_dev_defaults", false)

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")
}

// bindEnvVars binds environment variables to configuration
func bindEnvVars(v *viper.Viper) {
	// Sensitive credentials from environment
	v.BindEnv("sap.username", "SAP_FTP_USERNAME")
	v.BindEnv("sap.password", "SAP_FTP_PASSWORD")
	v.BindEnv("sap.host", "SAP_FTP_HOST")
	v.BindEnv("sap.ftp.username", "SAP_FTP_USERNAME")
	v.BindEnv("sap.ftp.password", "SAP_FTP_PASSWORD")
	v.BindEnv("sap.sftp.username", "SAP_SFTP_USERNAME")
	v.BindEnv("sap.sftp.password", "SAP_SFTP_PASSWORD")
	v.BindEnv("sap.sftp.host", "SAP_SFTP_HOST")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.SAP.Protocol != "ftp" && c.SAP.Protocol != "sftp" {
		return fmt.Errorf("sap.protocol must be ftp or sftp, got %q", c.SAP.Protocol)
	}
	if c.SAP.ConnectTimeout <= 0 {
		return fmt.Errorf("sap.connect_timeout must be positive")
	}
	// Host/credential completeness is the profile resolver's concern:
	// it owns the per-protocol fallback chain and the dev-default tier.
	return nil
}
