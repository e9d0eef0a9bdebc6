// Package proxy provides a transparent reverse proxy for LLM inference
// servers that derives usage metrics from the response stream it forwards.
//
// The proxy is transparent: the byte sequence delivered to the client is
// the byte sequence received from upstream, in order, regardless of what
// the metrics side does. Usage parsing runs on an independently paced
// copy of the stream and finalizes exactly one record per request.
package proxy

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tokentap/tokentap/pkg/metrics"
	"github.com/tokentap/tokentap/pkg/tee"
	"github.com/tokentap/tokentap/pkg/tokenusage"
	"github.com/tokentap/tokentap/proxy/header"
	"github.com/tokentap/tokentap/proxy/worker"
)

// errorResponse is the body returned to the client when forwarding fails.
type errorResponse struct {
	Error string `json:"error"`
}

// Proxy is a transparent LLM inference proxy that meters token usage.
type Proxy struct {
	config        Config
	logger        *zap.Logger
	httpClient    *http.Client
	server        *fiber.App
	headerHandler *header.Handler
	workerPool    *worker.Pool
}

// New creates a new Proxy. The sink is injected and receives exactly one
// usage record per proxied request, delivered asynchronously.
func New(config Config, sink metrics.Sink, logger *zap.Logger) (*Proxy, error) {
	config = config.withDefaults()

	app := fiber.New(fiber.Config{
		// Disable startup message for cleaner logs
		DisableStartupMessage: true,
		// Enable streaming
		StreamRequestBody: true,
	})

	pool, err := worker.NewPool(&worker.Config{
		Sink:       sink,
		NumWorkers: config.NumWorkers,
		QueueSize:  config.QueueSize,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create worker pool: %w", err)
	}

	p := &Proxy{
		config:        config,
		logger:        logger,
		server:        app,
		headerHandler: header.NewHandler(),
		workerPool:    pool,
		httpClient: &http.Client{
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: config.UpstreamTimeout,
				}).DialContext,
				// Bounds the wait for upstream headers, not the body:
				// inference streams stay open for minutes.
				ResponseHeaderTimeout: config.UpstreamTimeout,
			},
		},
	}

	app.All("/proxy/:port/*", p.handleProxy)

	return p, nil
}

// Run starts the proxy server on the configured listening address.
func (p *Proxy) Run() error {
	p.logger.Info("starting proxy server",
		zap.String("listen", p.config.ListenAddr),
		zap.String("upstream_host", p.config.UpstreamHost),
	)

	return p.server.Listen(p.config.ListenAddr)
}

// RunWithListener starts the proxy server using the provided listener.
func (p *Proxy) RunWithListener(listener net.Listener) error {
	p.logger.Info("starting proxy server",
		zap.String("listen", listener.Addr().String()),
		zap.String("upstream_host", p.config.UpstreamHost),
	)

	return p.server.Listener(listener)
}

// Close gracefully shuts down the proxy and drains the emission pool.
func (p *Proxy) Close() error {
	err := p.server.Shutdown()
	p.workerPool.Close()
	return err
}

// handleProxy runs one request lifecycle: resolve the backend port from
// the path, extract the request descriptor, forward the request verbatim,
// tee the response between the client and the usage parser, and finalize
// one usage record.
func (p *Proxy) handleProxy(c *fiber.Ctx) error {
	startTime := time.Now()
	requestID := uuid.NewString()

	// The descriptor is extracted non-destructively: c.Body() is read
	// here and the same bytes are handed to the upstream request below.
	body := c.Body()
	desc := tokenusage.DescribeRequest(body)

	agg := newAggregator(requestID, desc, startTime, p.workerPool, p.logger)

	port, err := strconv.Atoi(c.Params("port"))
	if err != nil || port < 1 || port > 65535 {
		p.logger.Warn("invalid backend port",
			zap.String("request_id", requestID),
			zap.String("port", c.Params("port")),
		)
		agg.finish(tokenusage.Result{}, metrics.StatusError)
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: "invalid backend port"})
	}

	path := "/" + c.Params("*")
	upstreamURL := fmt.Sprintf("http://%s:%d%s", p.config.UpstreamHost, port, path)
	if query := string(c.Request().URI().QueryString()); query != "" {
		upstreamURL += "?" + query
	}

	var reqBody io.Reader
	if len(body) > 0 {
		reqBody = bytes.NewReader(body)
	}

	// context.Background() rather than c.Context(): fasthttp recycles its
	// RequestCtx once the handler returns, but the streaming goroutines
	// below outlive the handler and need the upstream connection open.
	httpReq, err := http.NewRequestWithContext(context.Background(), c.Method(), upstreamURL, reqBody)
	if err != nil {
		p.logger.Error("failed to create upstream request",
			zap.String("request_id", requestID),
			zap.Error(err),
		)
		agg.finish(tokenusage.Result{}, metrics.StatusError)
		return c.Status(fiber.StatusInternalServerError).JSON(errorResponse{Error: "internal error"})
	}

	p.headerHandler.SetUpstreamRequestHeaders(c, httpReq)

	p.logger.Debug("forwarding request to upstream",
		zap.String("request_id", requestID),
		zap.String("method", c.Method()),
		zap.String("url", upstreamURL),
		zap.String("model", desc.Model),
		zap.Bool("stream_requested", desc.Stream),
	)

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		p.logger.Error("upstream request failed",
			zap.String("request_id", requestID),
			zap.Error(err),
		)
		agg.finish(tokenusage.Result{}, metrics.StatusError)
		return c.Status(fiber.StatusBadGateway).JSON(errorResponse{Error: "upstream request failed"})
	}

	p.headerHandler.SetClientResponseHeaders(c, httpResp)
	c.Status(httpResp.StatusCode)

	format := tokenusage.Detect(path, httpResp.Header.Get("Content-Type"))
	parser := tokenusage.NewParser(format)

	p.logger.Debug("teeing upstream response",
		zap.String("request_id", requestID),
		zap.String("format", string(format)),
		zap.Int("status", httpResp.StatusCode),
	)

	// The pipe connects the tee's client side to fasthttp's chunked
	// response writer: pw.Write blocks until fasthttp has flushed the
	// chunk to the socket, so the client paces the read loop directly.
	pr, pw := io.Pipe()
	t := tee.New(pw, p.config.ParserBuffer)

	go p.runParser(t, parser, agg, requestID)
	go p.runCopy(t, httpResp, pw, requestID)

	// Unknown size (-1) triggers chunked transfer encoding.
	c.Context().Response.SetBodyStream(pr, -1)

	return nil
}

// runCopy drives the tee's read loop over the upstream body and closes
// the client pipe with whatever the upstream produced: nil for EOF, the
// read error otherwise.
func (p *Proxy) runCopy(t *tee.Tee, httpResp *http.Response, pw *io.PipeWriter, requestID string) {
	defer httpResp.Body.Close()

	err := t.Copy(httpResp.Body)
	if err != nil {
		p.logger.Error("error reading upstream stream",
			zap.String("request_id", requestID),
			zap.Error(err),
		)
	}
	_ = pw.CloseWithError(err)
}

// runParser drains the tee's parser side through the format parser and
// finalizes the usage record when the stream ends, errors, or truncates.
func (p *Proxy) runParser(t *tee.Tee, parser tokenusage.Parser, agg *aggregator, requestID string) {
	for chunk := range t.Chunks() {
		parser.Feed(chunk)
	}

	result := parser.Finalize()

	if t.Truncated() {
		p.logger.Warn("usage parsing truncated, parser could not keep up",
			zap.String("request_id", requestID),
		)
	}

	// A transfer failure finalizes as an error unless the stream's
	// completion marker had already been seen before the failure.
	if t.Err() != nil && !result.Complete {
		agg.finish(result, metrics.StatusError)
		return
	}

	agg.finish(result, statusFor(result))
}
