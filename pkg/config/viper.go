package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// InitViper creates and returns a configured *viper.Viper. It registers
// defaults from NewDefaultConfig(), reads tokentap.toml (from configPath
// when given, otherwise the working directory), and binds environment
// variables with the TOKENTAP_ prefix (TOKENTAP_PROXY_LISTEN, etc.).
//
// A missing config file is not an error; defaults and environment apply.
func InitViper(configPath string) (*viper.Viper, error) {
	v := viper.New()

	setViperDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("tokentap")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		switch {
		case configPath != "":
			// An explicit path that fails to load is a real error.
			return nil, fmt.Errorf("reading config %s: %w", configPath, err)
		case errors.As(err, &notFound):
			// No config file found: defaults and environment apply.
		default:
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	v.SetEnvPrefix("TOKENTAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// Load materializes a Config from the viper instance.
func Load(v *viper.Viper) *Config {
	return &Config{
		Proxy: ProxyConfig{
			Listen:          v.GetString("proxy.listen"),
			UpstreamHost:    v.GetString("proxy.upstream_host"),
			UpstreamTimeout: v.GetDuration("proxy.upstream_timeout"),
			ParserBuffer:    v.GetInt("proxy.parser_buffer"),
		},
		Metrics: MetricsConfig{
			Sinks:        v.GetStringSlice("metrics.sinks"),
			KafkaBrokers: v.GetStringSlice("metrics.kafka_brokers"),
			KafkaTopic:   v.GetString("metrics.kafka_topic"),
		},
		Workers: WorkersConfig{
			Count:     v.GetUint("workers.count"),
			QueueSize: v.GetUint("workers.queue_size"),
		},
	}
}

// setViperDefaults registers defaults from NewDefaultConfig() using
// dotted-key notation, keeping defaults.go the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("proxy.listen", d.Proxy.Listen)
	v.SetDefault("proxy.upstream_host", d.Proxy.UpstreamHost)
	v.SetDefault("proxy.upstream_timeout", d.Proxy.UpstreamTimeout)
	v.SetDefault("proxy.parser_buffer", d.Proxy.ParserBuffer)

	v.SetDefault("metrics.sinks", d.Metrics.Sinks)
	v.SetDefault("metrics.kafka_brokers", d.Metrics.KafkaBrokers)
	v.SetDefault("metrics.kafka_topic", d.Metrics.KafkaTopic)

	v.SetDefault("workers.count", d.Workers.Count)
	v.SetDefault("workers.queue_size", d.Workers.QueueSize)
}
