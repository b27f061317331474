package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/SmitUplenchwar2687/admit/internal/clock"
	"github.com/SmitUplenchwar2687/admit/internal/events"
	"github.com/SmitUplenchwar2687/admit/internal/limiter"
	"github.com/SmitUplenchwar2687/admit/internal/log"
	"github.com/SmitUplenchwar2687/admit/internal/metrics"
	"github.com/SmitUplenchwar2687/admit/internal/recorder"
)

// DefaultWorkers is the number of leaky bucket handlers a server subscribes.
const DefaultWorkers = 4

// Options are the optional collaborators of a Server.
type Options struct {
	// Recorder captures every checked key for later replay.
	Recorder *recorder.Recorder
	// Sinks receive every decision in addition to the websocket hub.
	Sinks []events.Sink
	// Collector records metrics and serves /metrics. A private one is
	// created when nil.
	Collector *metrics.Collector
	// Workers is the number of leaky bucket handlers.
	Workers int
	// Handle processes items leaked from a leaky bucket. Defaults to logging
	// each key.
	Handle func(key string)
}

// Server is the admit HTTP server. It answers admission checks with the
// configured algorithm and can swap algorithms at runtime.
type Server struct {
	httpServer *http.Server
	clock      clock.Clock
	mux        *http.ServeMux
	hub        *Hub
	sink       events.Sink
	collector  *metrics.Collector
	opts       Options

	mu      sync.RWMutex
	cfg     limiter.Config
	limiter limiter.Limiter[string]
	leaky   *limiter.LeakyBucket[string] // set when cfg is a leaky bucket
}

// New creates a server listening on addr with a limiter built from cfg.
func New(addr string, cfg limiter.Config, clk clock.Clock, opts Options) (*Server, error) {
	if opts.Collector == nil {
		opts.Collector = metrics.NewCollector(nil)
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}

	hub := NewHub()
	s := &Server{
		clock:     clk,
		mux:       http.NewServeMux(),
		hub:       hub,
		sink:      append(events.Multi{hub}, opts.Sinks...),
		collector: opts.Collector,
		opts:      opts,
	}

	// Registered before any limiter so the gauge follows reloads.
	if err := s.collector.TrackQueue(string(limiter.AlgorithmLeakyBucket), s.QueueLen); err != nil {
		return nil, fmt.Errorf("registering queue gauge: %w", err)
	}
	if err := s.Reload(cfg); err != nil {
		return nil, err
	}

	s.routes()
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           LoggingMiddleware(s.mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /{$}", s.handleRoot)
	s.mux.HandleFunc("GET /dashboard", s.handleDashboard)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/status", s.handleStatus)
	s.mux.HandleFunc("GET /api/check", s.handleCheck)
	s.mux.HandleFunc("GET /api/check/{key...}", s.handleCheckKey)
	s.mux.HandleFunc("POST /api/enqueue/{key...}", s.handleEnqueue)
	s.mux.HandleFunc("GET /ws", s.hub.HandleWebSocket)
	s.mux.Handle("GET /metrics", s.collector.Handler())
}

// Reload replaces the active limiter with one built from cfg. State held by
// the previous limiter is dropped.
func (s *Server) Reload(cfg limiter.Config) error {
	name := string(cfg.Algorithm)

	var lopts []limiter.LeakyOption
	if cfg.Algorithm == limiter.AlgorithmLeakyBucket {
		lopts = append(lopts, limiter.WithDispatcher(s.collector.Dispatcher(name, limiter.NewPool())))
	}
	lim, err := limiter.New(cfg, s.clock, lopts...)
	if err != nil {
		return fmt.Errorf("building limiter: %w", err)
	}

	inst := metrics.Instrument(name, lim, s.collector)
	lb, _ := inst.Unwrap().(*limiter.LeakyBucket[string])
	if lb != nil {
		for i := 0; i < s.opts.Workers; i++ {
			lb.Subscribe(s.newHandler())
		}
	}

	s.mu.Lock()
	s.cfg = cfg
	s.limiter = inst
	s.leaky = lb
	s.mu.Unlock()

	log.Logger().Info("limiter configured",
		zap.String("algorithm", name),
		zap.Int("capacity", cfg.Capacity),
		zap.Duration("window", cfg.Window),
		zap.Float64("rate_per_second", cfg.RatePerSecond),
	)
	return nil
}

func (s *Server) newHandler() limiter.Handler[string] {
	if s.opts.Handle != nil {
		return limiter.NewFuncHandler(s.opts.Handle)
	}
	return limiter.NewLoggingHandler[string]()
}

// Config returns the active limiter configuration.
func (s *Server) Config() limiter.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Check runs an admission check for key and publishes the decision. It lets
// the server stand in as a limiter.Limiter, e.g. behind the gRPC interceptors.
func (s *Server) Check(key string) bool {
	return s.decide(context.Background(), key, "CHECK").Allowed
}

// Drain drains the active leaky bucket. It returns 0 for other algorithms.
func (s *Server) Drain() int {
	s.mu.RLock()
	lb := s.leaky
	s.mu.RUnlock()
	if lb == nil {
		return 0
	}
	return lb.Drain()
}

// QueueLen returns the active leaky bucket's queue length, or 0.
func (s *Server) QueueLen() int {
	s.mu.RLock()
	lb := s.leaky
	s.mu.RUnlock()
	if lb == nil {
		return 0
	}
	return lb.QueueLen()
}

// Hub returns the websocket hub decisions are broadcast on.
func (s *Server) Hub() *Hub {
	return s.hub
}

func (s *Server) decide(ctx context.Context, key, endpoint string) events.Event {
	s.mu.RLock()
	lim, algo := s.limiter, s.cfg.Algorithm
	s.mu.RUnlock()

	allowed := lim.Check(key)
	now := s.clock.Now()
	e := events.NewEvent(key, string(algo), allowed, now)

	if s.opts.Recorder != nil {
		if err := s.opts.Recorder.Record(recorder.NewRecord(now, key, endpoint)); err != nil {
			log.Logger().Warn("recording traffic", zap.String("key", key), zap.Error(err))
		}
	}
	if err := s.sink.Publish(ctx, e); err != nil {
		log.Logger().Warn("publishing decision", zap.String("key", key), zap.Error(err))
	}
	return e
}

// handleRoot describes the service. The HTML view lives at /dashboard.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service":   "admit",
		"status":    "running",
		"algorithm": string(s.Config().Algorithm),
		"time":      s.clock.Now().Format(time.RFC3339),
		"dashboard": "/dashboard",
	})
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(DashboardHTML))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusResponse struct {
	Algorithm     limiter.Algorithm `json:"algorithm"`
	Capacity      int               `json:"capacity"`
	Window        string            `json:"window"`
	RatePerSecond float64           `json:"rate_per_second"`
	QueueLength   int               `json:"queue_length"`
	QueueCapacity int               `json:"queue_capacity,omitempty"`
	Clients       int               `json:"clients"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	cfg, lb := s.cfg, s.leaky
	s.mu.RUnlock()

	resp := statusResponse{
		Algorithm:     cfg.Algorithm,
		Capacity:      cfg.Capacity,
		Window:        cfg.Window.String(),
		RatePerSecond: cfg.RatePerSecond,
		Clients:       s.hub.ClientCount(),
	}
	if lb != nil {
		resp.QueueLength = lb.QueueLen()
		resp.QueueCapacity = lb.Capacity()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleCheck checks the caller's own key (see ClientKey).
func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	s.respondWithDecision(w, r, ClientKey(r), http.StatusOK)
}

// handleCheckKey checks the key named in the path: /api/check/{key}.
func (s *Server) handleCheckKey(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if key == "" {
		writeError(w, http.StatusBadRequest, "key is required")
		return
	}
	s.respondWithDecision(w, r, key, http.StatusOK)
}

// handleEnqueue adds a key to the leaky bucket queue: /api/enqueue/{key}.
func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if key == "" {
		writeError(w, http.StatusBadRequest, "key is required")
		return
	}
	if algo := s.Config().Algorithm; algo != limiter.AlgorithmLeakyBucket {
		writeError(w, http.StatusConflict, fmt.Sprintf("enqueue requires leaky_bucket, active algorithm is %s", algo))
		return
	}
	s.respondWithDecision(w, r, key, http.StatusAccepted)
}

func (s *Server) respondWithDecision(w http.ResponseWriter, r *http.Request, key string, okStatus int) {
	e := s.decide(r.Context(), key, r.Method+" "+r.URL.Path)
	cfg := s.Config()

	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
	w.Header().Set("X-RateLimit-Algorithm", string(cfg.Algorithm))
	if cfg.Algorithm == limiter.AlgorithmLeakyBucket {
		w.Header().Set("X-Queue-Length", strconv.Itoa(s.QueueLen()))
	}

	status := okStatus
	if !e.Allowed {
		status = http.StatusTooManyRequests
	}
	writeJSON(w, status, e)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := sonic.Marshal(v)
	if err != nil {
		log.Logger().Error("encoding response", zap.Error(err))
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(data, '\n'))
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// Handler returns the server's full HTTP handler, middleware included.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening. It blocks until the server is shut down.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	return s.StartOnListener(ln)
}

// StartOnListener serves on ln. Tests use it with an ephemeral port.
func (s *Server) StartOnListener(ln net.Listener) error {
	log.Logger().Info("admit server listening", zap.String("addr", ln.Addr().String()))
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server and disconnects websocket clients.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	return s.httpServer.Shutdown(ctx)
}
