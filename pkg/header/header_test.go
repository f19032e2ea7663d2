package header

import (
	"net/http"
	"net/http/httptest"

	"github.com/gofiber/fiber/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("SetUpstreamRequestHeaders", func() {
	var (
		hh  *Handler
		req *http.Request
	)

	BeforeEach(func() {
		hh = NewHandler()
		req, _ = http.NewRequest(http.MethodPost, "http://upstream/v1/chat/completions", nil)
	})

	It("sets the content type and bearer token", func() {
		hh.SetUpstreamRequestHeaders(req, "sk-123", nil)

		Expect(req.Header.Get("Content-Type")).To(Equal("application/json"))
		Expect(req.Header.Get("Authorization")).To(Equal("Bearer sk-123"))
	})

	It("omits Authorization when no key is configured", func() {
		hh.SetUpstreamRequestHeaders(req, "", nil)

		Expect(req.Header.Get("Authorization")).To(BeEmpty())
	})

	It("merges custom headers", func() {
		hh.SetUpstreamRequestHeaders(req, "sk-123", map[string]string{
			"HTTP-Referer": "https://example.com",
			"x-title":      "reel",
		})

		Expect(req.Header.Get("Http-Referer")).To(Equal("https://example.com"))
		Expect(req.Header.Get("X-Title")).To(Equal("reel"))
	})

	It("lets custom headers override the defaults", func() {
		hh.SetUpstreamRequestHeaders(req, "sk-123", map[string]string{
			"authorization": "Token abc",
		})

		Expect(req.Header.Get("Authorization")).To(Equal("Token abc"))
	})

	It("never forwards hop-by-hop or computed headers", func() {
		hh.SetUpstreamRequestHeaders(req, "", map[string]string{
			"Connection":     "close",
			"host":           "evil.example.com",
			"Content-Length": "12",
		})

		Expect(req.Header.Get("Connection")).To(BeEmpty())
		Expect(req.Header.Get("Host")).To(BeEmpty())
		Expect(req.Header.Get("Content-Length")).To(BeEmpty())
	})
})

var _ = Describe("SetStreamResponseHeaders", func() {
	var (
		app *fiber.App
		hh  *Handler
	)

	BeforeEach(func() {
		app = fiber.New()
		hh = NewHandler()
	})

	AfterEach(func() {
		app.Shutdown()
	})

	It("marks the response as an uncached event stream", func() {
		app.Get("/stream", func(c *fiber.Ctx) error {
			hh.SetStreamResponseHeaders(c, "conv-1")
			return c.SendString("data: x\n\n")
		})

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/stream", nil))
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()

		Expect(resp.Header.Get("Content-Type")).To(Equal("text/event-stream"))
		Expect(resp.Header.Get("Cache-Control")).To(Equal("no-cache"))
		Expect(resp.Header.Get("X-Accel-Buffering")).To(Equal("no"))
		Expect(resp.Header.Get(SessionHeader)).To(Equal("conv-1"))
	})

	It("omits the conversation header when empty", func() {
		app.Get("/stream", func(c *fiber.Ctx) error {
			hh.SetStreamResponseHeaders(c, "")
			return c.SendStatus(fiber.StatusOK)
		})

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/stream", nil))
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()

		Expect(resp.Header.Get(SessionHeader)).To(BeEmpty())
	})
})
