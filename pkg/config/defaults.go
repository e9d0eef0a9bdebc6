package config

import "time"

const (
	defaultListen          = ":3000"
	defaultUpstreamHost    = "127.0.0.1"
	defaultUpstreamTimeout = 30 * time.Second
	defaultParserBuffer    = 64
	defaultKafkaTopic      = "tokentap.usage"
	defaultWorkerCount     = 3
	defaultQueueSize       = 256
)

// NewDefaultConfig returns the default configuration.
func NewDefaultConfig() *Config {
	return &Config{
		Proxy: ProxyConfig{
			Listen:          defaultListen,
			UpstreamHost:    defaultUpstreamHost,
			UpstreamTimeout: defaultUpstreamTimeout,
			ParserBuffer:    defaultParserBuffer,
		},
		Metrics: MetricsConfig{
			Sinks:      []string{"log"},
			KafkaTopic: defaultKafkaTopic,
		},
		Workers: WorkersConfig{
			Count:     defaultWorkerCount,
			QueueSize: defaultQueueSize,
		},
	}
}
