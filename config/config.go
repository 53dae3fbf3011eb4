package config

import (
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Game     GameConfig     `mapstructure:"game"`
	Database DatabaseConfig `mapstructure:"database"`
}

type ServerConfig struct {
	HTTPAddress    string `mapstructure:"http_address"`
	RPCAddress     string `mapstructure:"rpc_address"`
	MetricsAddress string `mapstructure:"metrics_address"`
}

// GameConfig 游戏规则参数
type GameConfig struct {
	InitialTimeSeconds int `mapstructure:"initial_time_seconds"`
	HintPenaltySeconds int `mapstructure:"hint_penalty_seconds"`
}

type DatabaseConfig struct {
	// Enabled 为 false 时服务器不落盘任何对局记录
	Enabled  bool           `mapstructure:"enabled"`
	Driver   string         `mapstructure:"driver"` // "postgres" 或 "gorm"
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

func LoadConfig(path string) (config *Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetDefault("server.http_address", ":5000")
	viper.SetDefault("server.rpc_address", ":5001")
	viper.SetDefault("server.metrics_address", ":9090")
	viper.SetDefault("game.initial_time_seconds", 600)
	viper.SetDefault("game.hint_penalty_seconds", 300)
	viper.SetDefault("database.enabled", false)
	viper.SetDefault("database.driver", "gorm")

	viper.AutomaticEnv()

	err = viper.ReadInConfig()
	if err != nil {
		return
	}

	err = viper.Unmarshal(&config)
	return
}
