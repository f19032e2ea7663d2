package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/reel/pkg/chat"
	"github.com/papercomputeco/reel/pkg/config"
	"github.com/papercomputeco/reel/pkg/eventstream/nop"
	"github.com/papercomputeco/reel/pkg/logger"
	"github.com/papercomputeco/reel/pkg/sse"
	"github.com/papercomputeco/reel/pkg/storage/inmemory"
)

// fakeUpstream streams a fixed list of SSE frames for every request.
type fakeUpstream struct {
	*httptest.Server

	mu      sync.Mutex
	frames  []string
	status  int
	release chan struct{}
	bodies  []string
}

func newFakeUpstream(frames ...string) *fakeUpstream {
	u := &fakeUpstream{frames: frames}
	u.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		u.mu.Lock()
		u.bodies = append(u.bodies, string(body))
		frames, status, release := u.frames, u.status, u.release
		u.mu.Unlock()

		if status != 0 {
			w.WriteHeader(status)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for i, f := range frames {
			fmt.Fprint(w, f)
			flusher.Flush()
			if i == 0 && release != nil {
				select {
				case <-release:
				case <-r.Context().Done():
					return
				}
			}
		}
	}))
	return u
}

func (u *fakeUpstream) Bodies() []string {
	u.mu.Lock()
	defer u.mu.Unlock()

	return append([]string(nil), u.bodies...)
}

func contentFrame(text string) string {
	return fmt.Sprintf("data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", text)
}

func reasoningFrame(text string) string {
	return fmt.Sprintf("data: {\"choices\":[{\"delta\":{\"reasoning\":%q}}]}\n\n", text)
}

const doneFrame = "data: [DONE]\n\n"

// newTestServer wires a Server to an in-memory chat service pointed at up.
func newTestServer(up *fakeUpstream) *Server {
	cfg := config.NewDefaultConfig()
	cfg.Client.APIURL = up.URL

	svc, err := chat.Open(context.Background(), chat.Options{
		Config:    cfg,
		Surface:   "server",
		Driver:    inmemory.NewDriver(),
		Publisher: nop.NewPublisher(),
		Logger:    logger.Nop(),
	})
	Expect(err).NotTo(HaveOccurred())
	DeferCleanup(svc.Close)

	return NewServer(Config{ListenAddr: ":0"}, svc, logger.Nop())
}

// do sends a request through the fiber test harness and returns the status
// and body.
func do(s *Server, method, path string, body any) (int, []byte) {
	var r io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			r = strings.NewReader(b)
		case []byte:
			r = bytes.NewReader(b)
		default:
			data, err := json.Marshal(body)
			Expect(err).NotTo(HaveOccurred())
			r = bytes.NewReader(data)
		}
	}

	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return send(s, req)
}

// jsonRequest builds a request with a JSON body.
func jsonRequest(method, path string, body any) *http.Request {
	data, err := json.Marshal(body)
	Expect(err).NotTo(HaveOccurred())

	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func send(s *Server, req *http.Request) (int, []byte) {
	resp, err := s.app.Test(req, -1)
	Expect(err).NotTo(HaveOccurred())
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	Expect(err).NotTo(HaveOccurred())
	return resp.StatusCode, data
}

type received struct {
	Type string
	Data map[string]any
}

// parseEvents decodes an SSE response body into its events.
func parseEvents(body []byte) []received {
	dec := sse.NewDecoder()
	lines, err := dec.Feed(body)
	Expect(err).NotTo(HaveOccurred())

	var (
		out  []received
		cur  received
		data strings.Builder
	)
	for _, line := range lines {
		switch {
		case strings.HasPrefix(line, "event: "):
			cur.Type = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data.WriteString(strings.TrimPrefix(line, "data: "))
		case line == "":
			if cur.Type == "" && data.Len() == 0 {
				continue
			}
			cur.Data = map[string]any{}
			Expect(json.Unmarshal([]byte(data.String()), &cur.Data)).To(Succeed())
			out = append(out, cur)
			cur = received{}
			data.Reset()
		}
	}
	return out
}

func eventTypes(events []received) []string {
	types := make([]string, len(events))
	for i, e := range events {
		types[i] = e.Type
	}
	return types
}

