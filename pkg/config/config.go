package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	// Log configuration
	Log LogConfig `mapstructure:"log"`

	// Server configuration
	Server ServerConfig `mapstructure:"server"`

	// Store configuration
	Store StoreConfig `mapstructure:"store"`

	// Builder configuration
	Builder BuilderConfig `mapstructure:"builder"`

	// Cluster configuration
	Cluster ClusterConfig `mapstructure:"cluster"`

	// Planner configuration
	Planner PlannerConfig `mapstructure:"planner"`

	// Profile configuration
	Profile ProfileConfig `mapstructure:"profile"`

	// Cache configuration
	Cache CacheConfig `mapstructure:"cache"`

	// Content collaborator configuration
	Content ContentConfig `mapstructure:"content"`

	// Export configuration
	Export ExportConfig `mapstructure:"export"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // gin mode: debug, release, test
}

// StoreConfig holds persistence configuration
type StoreConfig struct {
	Path string `mapstructure:"path"` // empty means in-memory
}

// BuilderConfig holds graph construction configuration
type BuilderConfig struct {
	MergeThreshold float64 `mapstructure:"merge_threshold"`
}

// ClusterConfig holds community detection bounds
type ClusterConfig struct {
	KMin int `mapstructure:"k_min"`
	KMax int `mapstructure:"k_max"`
}

// PlannerConfig holds journey planning configuration
type PlannerConfig struct {
	HopRadius    int     `mapstructure:"hop_radius"`
	MaxScope     int     `mapstructure:"max_scope"`
	TargetLength int     `mapstructure:"target_length"`
	MaxDepthJump int     `mapstructure:"max_depth_jump"`
	Epsilon      float64 `mapstructure:"epsilon"`
	MinScore     float64 `mapstructure:"min_score"`
	SpiralCore   int     `mapstructure:"spiral_core"`
}

// ProfileConfig holds online profile-update configuration
type ProfileConfig struct {
	Alpha float64 `mapstructure:"alpha"`
}

// CacheConfig holds journey cache configuration
type CacheConfig struct {
	MaxEntries int     `mapstructure:"max_entries"`
	Divergence float64 `mapstructure:"divergence"`
}

// ContentConfig holds content collaborator configuration
type ContentConfig struct {
	Endpoint         string  `mapstructure:"endpoint"`
	TimeoutSeconds   int     `mapstructure:"timeout_seconds"`
	MaxRequests      uint32  `mapstructure:"max_requests"`
	IntervalSeconds  int     `mapstructure:"interval_seconds"`
	CooldownSeconds  int     `mapstructure:"cooldown_seconds"`
	ReadyToTripRatio float64 `mapstructure:"ready_to_trip_ratio"`
}

// ExportConfig holds metric export configuration
type ExportConfig struct {
	ParquetPath string `mapstructure:"parquet_path"`
}

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	// Set defaults
	setDefaults()

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Override with environment variables if present
	overrideWithEnv(config)

	return config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// Log defaults
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")

	// Server defaults
	viper.SetDefault("server.host", "localhost")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.mode", "debug")

	// Store defaults
	viper.SetDefault("store.path", "./pathweave_db")

	// Builder defaults
	viper.SetDefault("builder.merge_threshold", 0.85)

	// Cluster defaults
	viper.SetDefault("cluster.k_min", 2)
	viper.SetDefault("cluster.k_max", 32)

	// Planner defaults
	viper.SetDefault("planner.hop_radius", 2)
	viper.SetDefault("planner.max_scope", 20)
	viper.SetDefault("planner.target_length", 10)
	viper.SetDefault("planner.max_depth_jump", 1)
	viper.SetDefault("planner.epsilon", 0.05)
	viper.SetDefault("planner.min_score", 0.0)
	viper.SetDefault("planner.spiral_core", 3)

	// Profile defaults
	viper.SetDefault("profile.alpha", 0.2)

	// Cache defaults
	viper.SetDefault("cache.max_entries", 256)
	viper.SetDefault("cache.divergence", 0.25)

	// Content collaborator defaults
	viper.SetDefault("content.endpoint", "")
	viper.SetDefault("content.timeout_seconds", 2)
	viper.SetDefault("content.max_requests", 1)
	viper.SetDefault("content.interval_seconds", 60)
	viper.SetDefault("content.cooldown_seconds", 30)
	viper.SetDefault("content.ready_to_trip_ratio", 0.6)

	// Export defaults
	home, err := os.UserHomeDir()
	if err == nil {
		defaultPath := fmt.Sprintf("%s/.pathweave/metrics", home)
		viper.SetDefault("export.parquet_path", defaultPath)
	}
}

// overrideWithEnv overrides config with environment variables
func overrideWithEnv(config *Config) {
	if path := os.Getenv("PATHWEAVE_DB_PATH"); path != "" {
		config.Store.Path = path
	}
	if endpoint := os.Getenv("PATHWEAVE_CONTENT_ENDPOINT"); endpoint != "" {
		config.Content.Endpoint = endpoint
	}
	if level := os.Getenv("PATHWEAVE_LOG_LEVEL"); level != "" {
		config.Log.Level = level
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if path := os.Getenv("PATHWEAVE_PARQUET_PATH"); path != "" {
		config.Export.ParquetPath = path
	}
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	viper.SetConfigFile(path)
	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return Load()
}
