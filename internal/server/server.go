// Package server exposes a Sandbox over a websocket and publishes its
// metrics for Prometheus.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cryguy/sandbox"
	"github.com/cryguy/sandbox/internal/metrics"
)

// maxMessageBytes bounds one inbound request frame.
const maxMessageBytes = 1 << 20

// Request is one inbound frame.
type Request struct {
	ID             string  `json:"id"`
	Source         string  `json:"source"`
	TimeoutSeconds float64 `json:"timeout_seconds,omitempty"`
	MemoryBytes    uint64  `json:"memory_bytes,omitempty"`
}

// Response is one outbound frame.
type Response struct {
	ID         string   `json:"id"`
	OK         bool     `json:"ok"`
	Text       string   `json:"text,omitempty"`
	Image      *Image   `json:"image,omitempty"`
	DurationMS float64  `json:"duration_ms,omitempty"`
	Failure    *Failure `json:"failure,omitempty"`
}

type Image struct {
	ContentType string `json:"content_type"`
	Data        []byte `json:"data"`
}

type Failure struct {
	Kind     string    `json:"kind"`
	Title    string    `json:"title"`
	Body     string    `json:"body"`
	Line     int       `json:"line,omitempty"`
	Excerpt  string    `json:"excerpt,omitempty"`
	Artifact *Artifact `json:"artifact,omitempty"`
}

type Artifact struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"data"`
}

// Server serves /ws and /metrics.
type Server struct {
	sandbox       *sandbox.Sandbox
	metrics       *metrics.Collector
	logger        *slog.Logger
	maxConcurrent int
}

// New creates a Server. m may be nil, in which case /metrics is not served.
func New(sb *sandbox.Sandbox, m *metrics.Collector, logger *slog.Logger, maxConcurrent int) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Server{sandbox: sb, metrics: m, logger: logger, maxConcurrent: maxConcurrent}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.handleUpgrade)
	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{}))
	}
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok"))
	})
	return mux
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Error("server: websocket accept failed", slog.String("error", err.Error()))
		return
	}
	conn.SetReadLimit(maxMessageBytes)
	s.handleConnection(r.Context(), conn)
}

// handleConnection reads requests until the peer goes away. Requests run
// concurrently, up to maxConcurrent at a time; replies are written in
// completion order.
func (s *Server) handleConnection(ctx context.Context, conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(ctx)
	var (
		wg      sync.WaitGroup
		writeMu sync.Mutex
		slots   = make(chan struct{}, s.maxConcurrent)
	)
	defer func() {
		cancel()
		wg.Wait()
		conn.Close(websocket.StatusNormalClosure, "connection closed")
	}()

	reply := func(resp *Response) {
		data, err := json.Marshal(resp)
		if err != nil {
			s.logger.Error("server: encoding response", slog.String("error", err.Error()))
			return
		}
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
			s.logger.Warn("server: writing response", slog.String("error", err.Error()))
		}
	}

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				s.logger.Debug("server: client disconnected")
			} else if ctx.Err() == nil {
				s.logger.Warn("server: connection error", slog.String("error", err.Error()))
			}
			return
		}

		var req Request
		if err := json.Unmarshal(data, &req); err != nil {
			reply(&Response{Failure: &Failure{Kind: "bad_request", Title: "Bad request", Body: "frame is not a JSON request"}})
			continue
		}

		select {
		case slots <- struct{}{}:
		case <-ctx.Done():
			return
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-slots }()
			reply(s.run(ctx, req))
		}()
	}
}

func (s *Server) run(ctx context.Context, req Request) *Response {
	out := s.sandbox.Invoke(ctx, sandbox.Request{
		ID:            req.ID,
		Source:        req.Source,
		Timeout:       time.Duration(req.TimeoutSeconds * float64(time.Second)),
		MemoryCeiling: req.MemoryBytes,
	})
	return toResponse(out)
}

func toResponse(out *sandbox.Outcome) *Response {
	resp := &Response{ID: out.RequestID, OK: out.OK()}
	if out.OK() {
		resp.Text = out.Success.Text
		resp.DurationMS = float64(out.Success.Duration) / float64(time.Millisecond)
		if img := out.Success.Image; img != nil {
			resp.Image = &Image{ContentType: img.ContentType, Data: img.Data}
		}
		return resp
	}
	r := out.Failure.Report
	resp.Failure = &Failure{
		Kind:    out.Failure.Fault.Kind.String(),
		Title:   r.Title,
		Body:    r.Body,
		Line:    r.Line,
		Excerpt: r.Excerpt,
	}
	if a := r.Artifact; a != nil {
		resp.Failure.Artifact = &Artifact{Name: a.Name, ContentType: a.ContentType, Data: a.Data}
	}
	return resp
}
