package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// FileName is the config file searched for in the config directory.
const FileName = "tilewars.cfg.json"

// ServerConfig holds the game server settings.
type ServerConfig struct {
	Name                string        `json:"name" mapstructure:"name"`
	Version             string        `json:"version" mapstructure:"version"`
	Listen              []string      `json:"listen" mapstructure:"listen"`
	WebSocket           string        `json:"websocket" mapstructure:"websocket"`
	TickInterval        time.Duration `json:"tickInterval" mapstructure:"tickInterval"`
	MaxPacketsPerSecond float64       `json:"maxPacketsPerSecond" mapstructure:"maxPacketsPerSecond"`
}

// GameConfig points at the content files.
type GameConfig struct {
	Map      string `json:"map" mapstructure:"map"`
	TechTree string `json:"techtree" mapstructure:"techtree"`
}

// MetaserverConfig holds the game listing service settings. An empty URL
// disables it.
type MetaserverConfig struct {
	URL      string        `json:"url" mapstructure:"url"`
	Interval time.Duration `json:"interval" mapstructure:"interval"`
	Timeout  time.Duration `json:"timeout" mapstructure:"timeout"`
}

// MemoryConfig holds in-memory/JSON storage backend settings
type MemoryConfig struct {
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
}

// SQLiteConfig holds SQLite storage backend settings. An empty Path keeps
// the database in memory; DumpDir then receives one file per session.
type SQLiteConfig struct {
	Path    string `json:"path" mapstructure:"path"`
	DumpDir string `json:"dumpDir" mapstructure:"dumpDir"`
}

// StorageConfig selects where replays are recorded.
type StorageConfig struct {
	Type   string       `json:"type" mapstructure:"type"`
	Memory MemoryConfig `json:"memory" mapstructure:"memory"`
	SQLite SQLiteConfig `json:"sqlite" mapstructure:"sqlite"`
}

// DBConfig holds Postgres connection settings.
type DBConfig struct {
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	Database string `json:"database" mapstructure:"database"`
}

// InfluxConfig holds InfluxDB connection settings.
type InfluxConfig struct {
	Enabled  bool   `json:"enabled" mapstructure:"enabled"`
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Protocol string `json:"protocol" mapstructure:"protocol"`
	Token    string `json:"token" mapstructure:"token"`
	Org      string `json:"org" mapstructure:"org"`
	Bucket   string `json:"bucket" mapstructure:"bucket"`
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled      bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName  string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
	Endpoint     string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure     bool          `json:"insecure" mapstructure:"insecure"`
}

// MonitorConfig controls the periodic status report.
type MonitorConfig struct {
	Interval   time.Duration `json:"interval" mapstructure:"interval"`
	StatusFile string        `json:"statusFile" mapstructure:"statusFile"`
}

func setDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./logs")

	viper.SetDefault("server.name", "tilewars")
	viper.SetDefault("server.version", "0.1.0")
	viper.SetDefault("server.listen", []string{"tcp4://0.0.0.0:7150"})
	viper.SetDefault("server.websocket", "")
	viper.SetDefault("server.tickInterval", "10ms")
	viper.SetDefault("server.maxPacketsPerSecond", 0)

	viper.SetDefault("game.map", "./data/map.yaml")
	viper.SetDefault("game.techtree", "./data/techtree.yaml")

	viper.SetDefault("metaserver.url", "")
	viper.SetDefault("metaserver.interval", "30s")
	viper.SetDefault("metaserver.timeout", "10s")

	viper.SetDefault("storage.type", "none")
	viper.SetDefault("storage.memory.outputDir", "./replays")
	viper.SetDefault("storage.memory.compressOutput", true)
	viper.SetDefault("storage.sqlite.path", "./replays/tilewars.db")
	viper.SetDefault("storage.sqlite.dumpDir", "")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "tilewars")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "tilewars")
	viper.SetDefault("influx.bucket", "server_status")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "tilewars-server")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	viper.SetDefault("monitor.interval", "5s")
	viper.SetDefault("monitor.statusFile", "")
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

// LoadDefaults applies the defaults without a config file.
func LoadDefaults() {
	setDefaults()
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

func GetServerConfig() ServerConfig {
	return ServerConfig{
		Name:                viper.GetString("server.name"),
		Version:             viper.GetString("server.version"),
		Listen:              viper.GetStringSlice("server.listen"),
		WebSocket:           viper.GetString("server.websocket"),
		TickInterval:        viper.GetDuration("server.tickInterval"),
		MaxPacketsPerSecond: viper.GetFloat64("server.maxPacketsPerSecond"),
	}
}

func GetGameConfig() GameConfig {
	return GameConfig{
		Map:      viper.GetString("game.map"),
		TechTree: viper.GetString("game.techtree"),
	}
}

func GetMetaserverConfig() MetaserverConfig {
	return MetaserverConfig{
		URL:      viper.GetString("metaserver.url"),
		Interval: viper.GetDuration("metaserver.interval"),
		Timeout:  viper.GetDuration("metaserver.timeout"),
	}
}

// GetStorageConfig returns the replay storage settings.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type: viper.GetString("storage.type"),
		Memory: MemoryConfig{
			OutputDir:      viper.GetString("storage.memory.outputDir"),
			CompressOutput: viper.GetBool("storage.memory.compressOutput"),
		},
		SQLite: SQLiteConfig{
			Path:    viper.GetString("storage.sqlite.path"),
			DumpDir: viper.GetString("storage.sqlite.dumpDir"),
		},
	}
}

func GetDBConfig() DBConfig {
	return DBConfig{
		Host:     viper.GetString("db.host"),
		Port:     viper.GetString("db.port"),
		Username: viper.GetString("db.username"),
		Password: viper.GetString("db.password"),
		Database: viper.GetString("db.database"),
	}
}

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

// GetOTelConfig returns the OpenTelemetry settings.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}

func GetMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Interval:   viper.GetDuration("monitor.interval"),
		StatusFile: viper.GetString("monitor.statusFile"),
	}
}
