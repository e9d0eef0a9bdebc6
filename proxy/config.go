package proxy

import "time"

const (
	defaultUpstreamHost    = "127.0.0.1"
	defaultUpstreamTimeout = 30 * time.Second
)

// Config is the proxy server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8080").
	ListenAddr string

	// UpstreamHost is the host requests are forwarded to. The port is
	// taken per request from the /proxy/:port/ path segment. Defaults to
	// loopback.
	UpstreamHost string

	// UpstreamTimeout bounds connecting to the upstream and waiting for
	// its response headers. It deliberately does not bound the body:
	// inference streams are long-lived.
	UpstreamTimeout time.Duration

	// ParserBuffer is the number of response chunks buffered for the
	// usage parser before its stream is truncated. Zero selects the
	// default.
	ParserBuffer int

	// NumWorkers and QueueSize size the async emission pool. Zero values
	// select the pool defaults.
	NumWorkers uint
	QueueSize  uint
}

func (c Config) withDefaults() Config {
	if c.UpstreamHost == "" {
		c.UpstreamHost = defaultUpstreamHost
	}
	if c.UpstreamTimeout <= 0 {
		c.UpstreamTimeout = defaultUpstreamTimeout
	}
	return c
}
