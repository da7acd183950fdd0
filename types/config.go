package types

import (
	"time"
)

type ConfigManager interface {
	Load() error
	GetConfig() *ServiceConfig
	GetValue(path string, defaultValue interface{}) interface{}
	GetAs(path string, target interface{}) error
}

type ServiceConfig struct {
	Name    string         `yaml:"name" json:"name" validate:"required"`
	Version string         `yaml:"version" json:"version" validate:"required"`
	Logger  *LoggerConfig  `yaml:"logger" json:"logger" validate:"required"`
	Storage *StorageConfig `yaml:"storage" json:"storage" validate:"required"`
	Cache   *CacheConfig   `yaml:"cache" json:"cache" validate:"required"`
	Remote  *RemoteConfig  `yaml:"remote" json:"remote" validate:"required"`
	Content *ContentConfig `yaml:"content" json:"content" validate:"required"`
	Feed    *FeedConfig    `yaml:"feed" json:"feed"`
	Cron    *CronConfig    `yaml:"cron" json:"cron"`
	Metrics *MetricsConfig `yaml:"metrics" json:"metrics"`
}

type LoggerConfig struct {
	Type   string      `yaml:"type" json:"type"`
	Level  string      `yaml:"level" json:"level" validate:"required"`
	Config interface{} `yaml:"config" json:"config"`
}

type StorageConfig struct {
	Type      string      `yaml:"type" json:"type" validate:"required,oneof=clover sqlite redis memory"`
	Namespace string      `yaml:"namespace" json:"namespace" validate:"required"`
	Config    interface{} `yaml:"config" json:"config"`
}

type CacheConfig struct {
	TTL                  TTLConfig     `yaml:"ttl" json:"ttl"`
	CollapseInFlight     bool          `yaml:"collapse_in_flight" json:"collapse_in_flight"`
	CompressionThreshold int           `yaml:"compression_threshold" json:"compression_threshold" validate:"min=0"`
	WriteTimeout         time.Duration `yaml:"write_timeout" json:"write_timeout" validate:"min=0"`
}

type TTLConfig struct {
	Short    time.Duration `yaml:"short" json:"short" validate:"min=0"`
	Medium   time.Duration `yaml:"medium" json:"medium" validate:"min=0"`
	Long     time.Duration `yaml:"long" json:"long" validate:"min=0"`
	VeryLong time.Duration `yaml:"very_long" json:"very_long" validate:"min=0"`
}

type RemoteConfig struct {
	Type   string      `yaml:"type" json:"type" validate:"required,oneof=http clover memory"`
	Config interface{} `yaml:"config" json:"config"`
}

type ContentConfig struct {
	DailyWindow time.Duration `yaml:"daily_window" json:"daily_window" validate:"min=0"`
	AlertWindow time.Duration `yaml:"alert_window" json:"alert_window" validate:"min=0"`
}

type FeedConfig struct {
	Enabled bool        `yaml:"enabled" json:"enabled"`
	Config  interface{} `yaml:"config" json:"config"`
}

type CronConfig struct {
	Enabled        bool   `yaml:"enabled" json:"enabled"`
	Timezone       string `yaml:"timezone" json:"timezone" validate:"required_if=Enabled true"`
	PruneDailySpec string `yaml:"prune_daily_spec" json:"prune_daily_spec"`
	SweepCacheSpec string `yaml:"sweep_cache_spec" json:"sweep_cache_spec"`
}

type MetricsConfig struct {
	Enabled bool        `yaml:"enabled" json:"enabled"`
	Type    string      `yaml:"type" json:"type" validate:"required_if=Enabled true"`
	Config  interface{} `yaml:"config" json:"config"`
}
