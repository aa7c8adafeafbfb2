package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// FileName is the configuration file looked up in the config directory.
const FileName = "hephaestus.cfg.json"

// EngineConfig holds tick loop settings.
type EngineConfig struct {
	TickInterval time.Duration `json:"tickInterval" mapstructure:"tickInterval"`
	Workers      int           `json:"workers" mapstructure:"workers"`
	Epsilon      float64       `json:"epsilon" mapstructure:"epsilon"`
}

// ServerConfig holds the viewer WebSocket endpoint settings.
type ServerConfig struct {
	Listen   string `json:"listen" mapstructure:"listen"`
	Path     string `json:"path" mapstructure:"path"`
	Protocol string `json:"protocol" mapstructure:"protocol"`
}

// SQLiteConfig holds settings for the in-memory SQLite recorder.
type SQLiteConfig struct {
	// Path is where the in-memory database is dumped. Empty disables dumps.
	Path         string        `json:"path" mapstructure:"path"`
	DumpInterval time.Duration `json:"dumpInterval" mapstructure:"dumpInterval"`
}

// MemoryConfig holds settings for the in-memory recorder.
type MemoryConfig struct {
	// ExportPath receives a JSON export of the session on close. Empty disables it.
	ExportPath string `json:"exportPath" mapstructure:"exportPath"`
}

// StorageConfig holds session recording settings.
type StorageConfig struct {
	Type          string        `json:"type" mapstructure:"type"`
	FlushInterval time.Duration `json:"flushInterval" mapstructure:"flushInterval"`
	SQLite        SQLiteConfig  `json:"sqlite" mapstructure:"sqlite"`
	Memory        MemoryConfig  `json:"memory" mapstructure:"memory"`
}

// DBConfig holds Postgres connection settings.
type DBConfig struct {
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	Database string `json:"database" mapstructure:"database"`
}

// InfluxConfig holds InfluxDB settings for performance points.
type InfluxConfig struct {
	Enabled  bool   `json:"enabled" mapstructure:"enabled"`
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Protocol string `json:"protocol" mapstructure:"protocol"`
	Token    string `json:"token" mapstructure:"token"`
	Org      string `json:"org" mapstructure:"org"`
	Bucket   string `json:"bucket" mapstructure:"bucket"`
}

// ArchiveConfig holds the archive server that receives exported recordings.
type ArchiveConfig struct {
	URL    string `json:"url" mapstructure:"url"`
	APIKey string `json:"apiKey" mapstructure:"apiKey"`
	Tag    string `json:"tag" mapstructure:"tag"`
}

// OTelConfig holds OpenTelemetry metric export settings.
type OTelConfig struct {
	Enabled        bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName    string        `json:"serviceName" mapstructure:"serviceName"`
	ExportInterval time.Duration `json:"exportInterval" mapstructure:"exportInterval"`
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	setDefaults()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

// LoadDefaults sets default values without reading a file.
func LoadDefaults() {
	setDefaults()
}

func setDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./logs")

	viper.SetDefault("engine.tickInterval", "50ms")
	viper.SetDefault("engine.workers", 0)
	viper.SetDefault("engine.epsilon", 1e-4)

	viper.SetDefault("protocol.version", "v2")
	viper.SetDefault("server.listen", ":8765")
	viper.SetDefault("server.path", "/viewers")

	viper.SetDefault("models.dir", "./models")

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.flushInterval", "1s")
	viper.SetDefault("storage.sqlite.path", "")
	viper.SetDefault("storage.sqlite.dumpInterval", "30s")
	viper.SetDefault("storage.memory.exportPath", "")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "hephaestus")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "hephaestus")
	viper.SetDefault("influx.bucket", "engine")

	viper.SetDefault("archive.url", "")
	viper.SetDefault("archive.apiKey", "")
	viper.SetDefault("archive.tag", "")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "hephaestus")
	viper.SetDefault("otel.exportInterval", "10s")

	viper.SetDefault("monitor.interval", "30s")
	viper.SetDefault("monitor.statusFile", "")
	viper.SetDefault("monitor.influxBackup", "")
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetDuration returns a duration config value.
func GetDuration(key string) time.Duration {
	return viper.GetDuration(key)
}

// GetFloat64 returns a float config value.
func GetFloat64(key string) float64 {
	return viper.GetFloat64(key)
}

// GetEngineConfig returns the tick loop settings.
func GetEngineConfig() EngineConfig {
	return EngineConfig{
		TickInterval: viper.GetDuration("engine.tickInterval"),
		Workers:      viper.GetInt("engine.workers"),
		Epsilon:      viper.GetFloat64("engine.epsilon"),
	}
}

// GetServerConfig returns the viewer endpoint settings.
func GetServerConfig() ServerConfig {
	return ServerConfig{
		Listen:   viper.GetString("server.listen"),
		Path:     viper.GetString("server.path"),
		Protocol: viper.GetString("protocol.version"),
	}
}

// GetStorageConfig returns the session recording settings.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type:          viper.GetString("storage.type"),
		FlushInterval: viper.GetDuration("storage.flushInterval"),
		SQLite: SQLiteConfig{
			Path:         viper.GetString("storage.sqlite.path"),
			DumpInterval: viper.GetDuration("storage.sqlite.dumpInterval"),
		},
		Memory: MemoryConfig{
			ExportPath: viper.GetString("storage.memory.exportPath"),
		},
	}
}

// GetDBConfig returns the Postgres connection settings.
func GetDBConfig() DBConfig {
	return DBConfig{
		Host:     viper.GetString("db.host"),
		Port:     viper.GetString("db.port"),
		Username: viper.GetString("db.username"),
		Password: viper.GetString("db.password"),
		Database: viper.GetString("db.database"),
	}
}

// GetInfluxConfig returns the InfluxDB settings.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:  viper.GetBool("influx.enabled"),
		Host:     viper.GetString("influx.host"),
		Port:     viper.GetString("influx.port"),
		Protocol: viper.GetString("influx.protocol"),
		Token:    viper.GetString("influx.token"),
		Org:      viper.GetString("influx.org"),
		Bucket:   viper.GetString("influx.bucket"),
	}
}

// GetArchiveConfig returns the archive upload settings. An empty URL disables uploads.
func GetArchiveConfig() ArchiveConfig {
	return ArchiveConfig{
		URL:    viper.GetString("archive.url"),
		APIKey: viper.GetString("archive.apiKey"),
		Tag:    viper.GetString("archive.tag"),
	}
}

// GetOTelConfig returns the OpenTelemetry settings.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:        viper.GetBool("otel.enabled"),
		ServiceName:    viper.GetString("otel.serviceName"),
		ExportInterval: viper.GetDuration("otel.exportInterval"),
	}
}
