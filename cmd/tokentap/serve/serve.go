// Package serve provides the proxy server command.
package serve

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tokentap/tokentap/pkg/config"
	"github.com/tokentap/tokentap/pkg/logger"
	"github.com/tokentap/tokentap/pkg/metrics"
	"github.com/tokentap/tokentap/pkg/metrics/kafkasink"
	"github.com/tokentap/tokentap/pkg/metrics/logsink"
	"github.com/tokentap/tokentap/pkg/metrics/nop"
	"github.com/tokentap/tokentap/proxy"
)

type serveCommander struct {
	listen          string
	upstreamHost    string
	upstreamTimeout time.Duration
	parserBuffer    int
	sinks           []string
	kafkaBrokers    []string
	kafkaTopic      string
	workers         uint
	queueSize       uint
	debug           bool

	logger *zap.Logger
}

const serveLongDesc = `Run the tokentap proxy server.

The proxy forwards ANY /proxy/{backend_port}/{path} verbatim to
http://{upstream-host}:{backend_port}/{path}, streams the response back
byte-for-byte, and emits one JSON usage record per request (model, prompt,
token counts, latency, status) derived from the response stream.

Usage records go to the configured sinks: "log" writes newline-delimited
JSON to stdout, "kafka" publishes to a Kafka topic.`

const serveShortDesc = "Run the tokentap proxy server"

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	cmder := &serveCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			v, err := config.InitViper(configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			cfg := config.Load(v)

			// Flags the user set explicitly win over file/env values.
			if !cmd.Flags().Changed("listen") {
				cmder.listen = cfg.Proxy.Listen
			}
			if !cmd.Flags().Changed("upstream-host") {
				cmder.upstreamHost = cfg.Proxy.UpstreamHost
			}
			if !cmd.Flags().Changed("upstream-timeout") {
				cmder.upstreamTimeout = cfg.Proxy.UpstreamTimeout
			}
			if !cmd.Flags().Changed("parser-buffer") {
				cmder.parserBuffer = cfg.Proxy.ParserBuffer
			}
			if !cmd.Flags().Changed("sink") {
				cmder.sinks = cfg.Metrics.Sinks
			}
			if !cmd.Flags().Changed("kafka-broker") {
				cmder.kafkaBrokers = cfg.Metrics.KafkaBrokers
			}
			if !cmd.Flags().Changed("kafka-topic") {
				cmder.kafkaTopic = cfg.Metrics.KafkaTopic
			}
			if !cmd.Flags().Changed("workers") {
				cmder.workers = cfg.Workers.Count
			}
			if !cmd.Flags().Changed("queue-size") {
				cmder.queueSize = cfg.Workers.QueueSize
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			return cmder.run()
		},
	}

	defaults := config.NewDefaultConfig()
	cmd.Flags().StringVarP(&cmder.listen, "listen", "l", defaults.Proxy.Listen, "Address for the proxy to listen on")
	cmd.Flags().StringVarP(&cmder.upstreamHost, "upstream-host", "u", defaults.Proxy.UpstreamHost, "Host requests are forwarded to")
	cmd.Flags().DurationVar(&cmder.upstreamTimeout, "upstream-timeout", defaults.Proxy.UpstreamTimeout, "Upstream connect/header timeout")
	cmd.Flags().IntVar(&cmder.parserBuffer, "parser-buffer", defaults.Proxy.ParserBuffer, "Chunks buffered for the usage parser before truncation")
	cmd.Flags().StringSliceVar(&cmder.sinks, "sink", defaults.Metrics.Sinks, "Usage record sinks (log, kafka, nop)")
	cmd.Flags().StringSliceVar(&cmder.kafkaBrokers, "kafka-broker", nil, "Kafka broker address (repeatable)")
	cmd.Flags().StringVar(&cmder.kafkaTopic, "kafka-topic", defaults.Metrics.KafkaTopic, "Kafka topic for usage records")
	cmd.Flags().UintVar(&cmder.workers, "workers", defaults.Workers.Count, "Emission worker count")
	cmd.Flags().UintVar(&cmder.queueSize, "queue-size", defaults.Workers.QueueSize, "Emission queue capacity")

	return cmd
}

func (c *serveCommander) run() error {
	// Logs go to stderr so the log sink's JSON stream on stdout stays clean.
	c.logger = logger.NewWithWriters(c.debug, os.Stderr)
	defer func() { _ = c.logger.Sync() }()

	sink, err := c.newSink()
	if err != nil {
		return err
	}
	defer func() { _ = sink.Close() }()

	p, err := proxy.New(proxy.Config{
		ListenAddr:      c.listen,
		UpstreamHost:    c.upstreamHost,
		UpstreamTimeout: c.upstreamTimeout,
		ParserBuffer:    c.parserBuffer,
		NumWorkers:      c.workers,
		QueueSize:       c.queueSize,
	}, sink, c.logger)
	if err != nil {
		return fmt.Errorf("creating proxy: %w", err)
	}
	defer func() { _ = p.Close() }()

	return p.Run()
}

// newSink builds the configured sink set, fanning out when more than one
// is enabled.
func (c *serveCommander) newSink() (metrics.Sink, error) {
	var sinks []metrics.Sink
	for _, name := range c.sinks {
		switch name {
		case "log":
			sinks = append(sinks, logsink.NewSink(os.Stdout))
		case "kafka":
			ks, err := kafkasink.NewSink(c.kafkaBrokers, c.kafkaTopic)
			if err != nil {
				return nil, fmt.Errorf("creating kafka sink: %w", err)
			}
			sinks = append(sinks, ks)
			c.logger.Info("kafka sink enabled",
				zap.Strings("brokers", c.kafkaBrokers),
				zap.String("topic", c.kafkaTopic),
			)
		case "nop":
			sinks = append(sinks, nop.NewSink())
		default:
			return nil, fmt.Errorf("unknown sink: %q (supported: log, kafka, nop)", name)
		}
	}

	switch len(sinks) {
	case 0:
		return nop.NewSink(), nil
	case 1:
		return sinks[0], nil
	default:
		return metrics.Multi(sinks...), nil
	}
}
