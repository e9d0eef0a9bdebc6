// Package header provides header filtering for the tokentap proxy.
//
// The proxy sits between a client and an upstream inference server:
//
//	Client <--> Proxy <--> Upstream LLM server
//
// and each leg negotiates hops, compression and encoding independently,
// so hop-by-hop and transport-derived headers must not leak across legs.
package header

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// Handler manages headers between proxy connections.
type Handler struct{}

// NewHandler creates a new header Handler.
func NewHandler() *Handler {
	return &Handler{}
}

// skipRequest is the set of request headers (client --> proxy --> upstream)
// that are not forwarded to the upstream inference server.
var skipRequest = map[string]struct{}{
	// Hop-by-hop: only meaningful for a single transport-level connection.
	"Connection": {},

	// The Host header is rewritten by Go's http.Transport to match the
	// upstream URL. Forwarding the client's Host would name the proxy,
	// not the backend.
	"Host": {},

	// Stripped so Go's http.Transport negotiates its own gzip and
	// transparently decompresses the upstream response.
	"Accept-Encoding": {},
}

// skipResponse is the set of upstream response headers
// (client <-- proxy <-- upstream) that are not copied back to the client.
var skipResponse = map[string]struct{}{
	// Hop-by-hop: only meaningful for a single transport-level connection.
	"Connection": {},

	// fasthttp manages chunked transfer encoding for the client-facing
	// response independently.
	"Transfer-Encoding": {},

	// The proxy reads a decompressed body (http.Transport strips
	// Content-Encoding after auto-decompression), so forwarding the
	// upstream value would claim an encoding the body no longer has.
	"Content-Encoding": {},

	// The upstream Content-Length reflects the possibly-compressed
	// upstream body. The client-facing response streams with chunked
	// encoding and unknown length instead.
	"Content-Length": {},
}

// SetUpstreamRequestHeaders copies request headers from the Fiber context
// to the outgoing http.Request, filtering headers that must not cross the
// proxy boundary.
func (h *Handler) SetUpstreamRequestHeaders(c *fiber.Ctx, req *http.Request) {
	c.Request().Header.VisitAll(func(key, value []byte) {
		k := string(key)
		if _, skip := skipRequest[k]; !skip {
			req.Header.Add(k, string(value))
		}
	})
}

// SetClientResponseHeaders copies response headers from the upstream
// http.Response to the Fiber context, filtering headers that must not
// cross the proxy boundary.
func (h *Handler) SetClientResponseHeaders(c *fiber.Ctx, resp *http.Response) {
	for k, v := range resp.Header {
		if _, skip := skipResponse[k]; !skip {
			c.Set(k, strings.Join(v, ", "))
		}
	}
}
