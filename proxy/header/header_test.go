package header_test

import (
	"net/http"
	"net/http/httptest"

	"github.com/gofiber/fiber/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/tokentap/tokentap/proxy/header"
)

var _ = Describe("Handler", func() {
	var h *header.Handler

	BeforeEach(func() {
		h = header.NewHandler()
	})

	Context("SetUpstreamRequestHeaders", func() {
		var (
			app      *fiber.App
			captured http.Header
		)

		BeforeEach(func() {
			app = fiber.New()
			app.Post("/", func(c *fiber.Ctx) error {
				upstream, err := http.NewRequest(http.MethodPost, "http://127.0.0.1:11434/api/chat", nil)
				Expect(err).NotTo(HaveOccurred())
				h.SetUpstreamRequestHeaders(c, upstream)
				captured = upstream.Header
				return c.SendStatus(fiber.StatusOK)
			})
		})

		It("forwards application headers", func() {
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Authorization", "Bearer token-123")
			req.Header.Set("X-Request-Id", "abc")

			_, err := app.Test(req, -1)
			Expect(err).NotTo(HaveOccurred())

			Expect(captured.Get("Content-Type")).To(Equal("application/json"))
			Expect(captured.Get("Authorization")).To(Equal("Bearer token-123"))
			Expect(captured.Get("X-Request-Id")).To(Equal("abc"))
		})

		It("strips hop-by-hop and transport headers", func() {
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			req.Header.Set("Connection", "keep-alive")
			req.Header.Set("Accept-Encoding", "gzip, br")
			req.Header.Set("Content-Type", "application/json")

			_, err := app.Test(req, -1)
			Expect(err).NotTo(HaveOccurred())

			Expect(captured.Get("Connection")).To(BeEmpty())
			Expect(captured.Get("Accept-Encoding")).To(BeEmpty())
			Expect(captured.Get("Host")).To(BeEmpty())
			Expect(captured.Get("Content-Type")).To(Equal("application/json"))
		})
	})

	Context("SetClientResponseHeaders", func() {
		It("copies upstream headers and drops transport headers", func() {
			upstream := &http.Response{
				Header: http.Header{
					"Content-Type":      []string{"application/x-ndjson"},
					"X-Backend":         []string{"ollama"},
					"Transfer-Encoding": []string{"chunked"},
					"Content-Encoding":  []string{"gzip"},
					"Content-Length":    []string{"512"},
					"Connection":        []string{"close"},
				},
			}

			app := fiber.New()
			app.Get("/", func(c *fiber.Ctx) error {
				h.SetClientResponseHeaders(c, upstream)
				return c.SendStatus(fiber.StatusOK)
			})

			resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil), -1)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			Expect(resp.Header.Get("Content-Type")).To(Equal("application/x-ndjson"))
			Expect(resp.Header.Get("X-Backend")).To(Equal("ollama"))
			Expect(resp.Header.Get("Content-Encoding")).To(BeEmpty())
			Expect(resp.Header.Values("Connection")).NotTo(ContainElement("close"))
		})

		It("joins multi-valued headers", func() {
			upstream := &http.Response{
				Header: http.Header{
					"X-Trace": []string{"a", "b"},
				},
			}

			app := fiber.New()
			app.Get("/", func(c *fiber.Ctx) error {
				h.SetClientResponseHeaders(c, upstream)
				return c.SendStatus(fiber.StatusOK)
			})

			resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil), -1)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			Expect(resp.Header.Get("X-Trace")).To(Equal("a, b"))
		})
	})
})
