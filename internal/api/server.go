// Package api serves the read-only HTTP API over live channels and queue
// statistics, plus the gRPC health service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/lo"

	types "github.com/sebas/amilive/api/types/v1"
	"github.com/sebas/amilive/internal/dispatch"
	"github.com/sebas/amilive/internal/live"
)

// Channels is the read side of the live registry.
type Channels interface {
	Channels() []*live.Channel
	Get(id string) (*live.Channel, bool)
	Counts() (active, hungup int)
}

// Queue is the read side of the ingestion queue.
type Queue interface {
	Stats() dispatch.Stats
	Running() bool
}

// Server provides the HTTP API.
type Server struct {
	addr       string
	httpServer *http.Server
	channels   Channels
	queue      Queue
	startTime  time.Time
	log        *slog.Logger
}

// NewServer creates the API server. gatherer may be nil to omit /metrics.
func NewServer(addr string, channels Channels, queue Queue, gatherer prometheus.Gatherer, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		addr:      addr,
		channels:  channels,
		queue:     queue,
		startTime: time.Now(),
		log:       log,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/health", s.handleHealth)
	mux.HandleFunc("GET /api/v1/stats", s.handleStats)
	mux.HandleFunc("GET /api/v1/channels", s.handleChannels)
	mux.HandleFunc("GET /api/v1/channels/{id}", s.handleChannelByID)
	if gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the request router.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.log.Info("[API] Starting HTTP API server", "addr", lis.Addr().String())
	go func() {
		if err := s.httpServer.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("[API] Server error", "error", err)
		}
	}()
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	running := s.queue.Running()
	resp := types.HealthResponse{
		Status:    "ok",
		Uptime:    int64(time.Since(s.startTime).Seconds()),
		Ingestion: running,
	}
	status := http.StatusOK
	if !running {
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, resp)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	active, hungup := s.channels.Counts()
	s.writeJSON(w, http.StatusOK, types.StatsResponse{
		ActiveChannels: active,
		HungupChannels: hungup,
		Queue:          s.queue.Stats(),
	})
}

// handleChannels lists channels. ?state=active hides hung-up channels.
func (s *Server) handleChannels(w http.ResponseWriter, r *http.Request) {
	all := s.channels.Channels()
	if r.URL.Query().Get("state") == "active" {
		all = lo.Reject(all, func(c *live.Channel, _ int) bool { return c.State().IsTerminal() })
	}

	now := time.Now()
	list := lo.Map(all, func(c *live.Channel, _ int) types.Channel { return summarize(c, now) })
	s.writeJSON(w, http.StatusOK, types.ChannelList{Channels: list, Count: len(list)})
}

func (s *Server) handleChannelByID(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	c, ok := s.channels.Get(id)
	if !ok {
		s.writeJSON(w, http.StatusNotFound, types.Error{Error: "channel not found"})
		return
	}
	s.writeJSON(w, http.StatusOK, c.Snapshot())
}

func summarize(c *live.Channel, now time.Time) types.Channel {
	id := c.CallerID()
	linked, _ := c.LinkedChannel()
	end := now
	if removed := c.Removed(); !removed.IsZero() {
		end = removed
	}
	return types.Channel{
		ID:             c.ID(),
		Name:           c.Name(),
		State:          c.State().String(),
		CallerIDName:   id.Name,
		CallerIDNumber: id.Number,
		LinkedChannel:  linked,
		Created:        c.Created(),
		Duration:       int(end.Sub(c.Created()).Seconds()),
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("[API] Failed to encode JSON", "error", err)
	}
}
