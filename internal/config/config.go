package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	LogLevel   string `yaml:"log-level" env-default:"info"`
	HTTPPort   string `yaml:"http-port" env-default:"9090"`
	SocketPort string `yaml:"socket-port" env-default:"8080"`
	Redis      Redis  `yaml:"redis"`
	Match      Match  `yaml:"match"`
}

type Redis struct {
	Host string `yaml:"host" env-default:"localhost"`
	Port string `yaml:"port" env-default:"6379"`
}

type Match struct {
	BoardSize              int `yaml:"board-size" env-default:"3"`
	ReconnectGraceSeconds  int `yaml:"reconnect-grace-seconds" env-default:"30"`
	CreationTimeoutSeconds int `yaml:"creation-timeout-seconds" env-default:"300"`
	RetentionMinutes       int `yaml:"retention-minutes" env-default:"5"`
	SweepIntervalSeconds   int `yaml:"sweep-interval-seconds" env-default:"30"`
	ArchiveTTLHours        int `yaml:"archive-ttl-hours" env-default:"24"`
}

// MustLoad - load all configurations in config.yml file.
func MustLoad(path string) *Config {
	config := &Config{}

	if err := cleanenv.ReadConfig(path, config); err != nil {
		panic(fmt.Errorf("unable to load config file: %w", err))
	}

	return config
}

func (that *Redis) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", that.Host, that.Port)
}

func (that *Match) ReconnectGrace() time.Duration {
	return time.Duration(that.ReconnectGraceSeconds) * time.Second
}

func (that *Match) CreationTimeout() time.Duration {
	return time.Duration(that.CreationTimeoutSeconds) * time.Second
}

func (that *Match) Retention() time.Duration {
	return time.Duration(that.RetentionMinutes) * time.Minute
}

func (that *Match) SweepInterval() time.Duration {
	return time.Duration(that.SweepIntervalSeconds) * time.Second
}

func (that *Match) ArchiveTTL() time.Duration {
	return time.Duration(that.ArchiveTTLHours) * time.Hour
}
