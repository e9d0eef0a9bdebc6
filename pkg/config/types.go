// Package config holds the tokentap configuration model and its viper
// loading. Precedence (highest to lowest): CLI flags, TOKENTAP_* environment
// variables, config file values, defaults.
package config

import "time"

// Config is the full tokentap configuration.
type Config struct {
	Proxy   ProxyConfig
	Metrics MetricsConfig
	Workers WorkersConfig
}

// ProxyConfig holds proxy server settings.
type ProxyConfig struct {
	// Listen is the address the proxy listens on (e.g. ":3000").
	Listen string

	// UpstreamHost is the host forwarded requests go to; the port comes
	// from the request path.
	UpstreamHost string

	// UpstreamTimeout bounds upstream connect and header wait.
	UpstreamTimeout time.Duration

	// ParserBuffer is the parser-side chunk buffer before truncation.
	ParserBuffer int
}

// MetricsConfig holds usage record emission settings.
type MetricsConfig struct {
	// Sinks names the enabled sinks: "log", "kafka", "nop".
	Sinks []string

	// KafkaBrokers and KafkaTopic configure the kafka sink.
	KafkaBrokers []string
	KafkaTopic   string
}

// WorkersConfig sizes the async emission pool.
type WorkersConfig struct {
	Count     uint
	QueueSize uint
}
