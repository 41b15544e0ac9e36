package dashboard

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"bookflow/book"
	"bookflow/config"
	"bookflow/internal/channel"
	"bookflow/internal/metrics"
	"bookflow/logger"
	"bookflow/models"
	"bookflow/reader"
)

const defaultLogHistory = 200

// FeedController is the part of the feed the dashboard drives.
type FeedController interface {
	Book() *book.View
	State() reader.State
	KillSwitch() bool
	Instrument() models.InstrumentID
	Instruments() models.Instruments
	SwitchInstrument(id models.InstrumentID) error
	SetKillSwitch(on bool) error
}

// Server exposes the book ladder, feed controls, recent logs and Prometheus
// metrics over HTTP.
type Server struct {
	cfg        config.DashboardConfig
	log        *logger.Log
	feed       FeedController
	channels   *channel.BookChannels
	views      *viewStore
	logStore   *logStore
	httpServer *http.Server

	groupMu         sync.Mutex
	groupInstrument models.InstrumentID
	groupSize       float64
}

// NewServer returns nil when the dashboard is disabled. channels may be nil,
// in which case the ladder is read from the feed directly.
func NewServer(cfg config.DashboardConfig, feed FeedController, channels *channel.BookChannels, log *logger.Log) (*Server, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if feed == nil {
		return nil, errors.New("dashboard requires a feed")
	}

	cfg.Address = normalizeAddress(cfg.Address)
	if cfg.Depth <= 0 {
		cfg.Depth = 15
	}

	logStore := newLogStore(defaultLogHistory)
	log.AddHook(logStore)

	return &Server{
		cfg:      cfg,
		log:      log,
		feed:     feed,
		channels: channels,
		views:    &viewStore{},
		logStore: logStore,
	}, nil
}

// Run starts the HTTP server and blocks until ctx is cancelled or the
// server fails.
func (s *Server) Run(ctx context.Context) error {
	if s == nil {
		return nil
	}
	defer s.cleanup()

	router, err := s.buildRouter()
	if err != nil {
		return err
	}

	if s.channels != nil {
		go s.views.consume(ctx, s.channels.Views)
	}

	s.httpServer = &http.Server{
		Addr:              s.cfg.Address,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	s.log.WithComponent("dashboard").WithFields(logger.Fields{"address": s.cfg.Address}).Info("dashboard listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) cleanup() {
	if s.logStore != nil {
		s.logStore.close()
	}
}

// Address reports the network address the dashboard listens on.
func (s *Server) Address() string {
	if s == nil {
		return ""
	}
	return s.cfg.Address
}

func (s *Server) currentView() *book.View {
	if s.channels == nil {
		return s.feed.Book()
	}
	return s.views.latest()
}

// activeGroupSize returns the selected group size, falling back to the
// instrument default whenever the instrument changed since the selection.
func (s *Server) activeGroupSize(inst models.Instrument) float64 {
	s.groupMu.Lock()
	defer s.groupMu.Unlock()
	if s.groupInstrument != inst.ID {
		s.groupInstrument = inst.ID
		s.groupSize = inst.DefaultGroupSize
	}
	return s.groupSize
}

func (s *Server) selectGroupSize(inst models.Instrument, size float64) {
	s.groupMu.Lock()
	s.groupInstrument = inst.ID
	s.groupSize = size
	s.groupMu.Unlock()
}

func (s *Server) buildRouter() (*gin.Engine, error) {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if err := router.SetTrustedProxies(nil); err != nil {
		return nil, err
	}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := router.Group("/api")
	api.GET("/status", s.handleStatus)
	api.GET("/book", s.handleBook)
	api.POST("/kill", s.handleKill)
	api.POST("/instrument", s.handleInstrument)
	api.POST("/instrument/toggle", s.handleToggle)
	api.POST("/group", s.handleGroup)
	api.GET("/logs", s.handleLogs)

	return router, nil
}

func (s *Server) handleStatus(c *gin.Context) {
	inst, err := s.feed.Instruments().Lookup(s.feed.Instrument())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	updates, received := s.views.stats()
	body := gin.H{
		"state":       s.feed.State().String(),
		"kill_switch": s.feed.KillSwitch(),
		"instrument":  inst.ID,
		"group_size":  s.activeGroupSize(inst),
		"group_sizes": inst.GroupSizes,
		"instruments": s.feed.Instruments(),
		"updates":     updates,
	}
	if !received.IsZero() {
		body["last_update"] = received.Format(time.RFC3339Nano)
	}
	if s.channels != nil {
		stats := s.channels.GetStats()
		body["views_sent"] = stats.ViewsSent
		body["views_evicted"] = stats.ViewsEvicted
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) handleBook(c *gin.Context) {
	v := s.currentView()
	if v == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "book not yet available"})
		return
	}
	inst, err := s.feed.Instruments().Lookup(v.Instrument)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	groupSize := s.activeGroupSize(inst)
	if raw := c.Query("group"); raw != "" {
		g, err := strconv.ParseFloat(raw, 64)
		if err != nil || !inst.AllowsGroupSize(g) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "group size not allowed", "group_sizes": inst.GroupSizes})
			return
		}
		groupSize = g
	}

	depth := s.cfg.Depth
	if raw := c.Query("depth"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "depth must be a non-negative integer"})
			return
		}
		depth = n
	}

	ladder, err := buildLadder(v, groupSize, depth)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, ladder)
}

type killRequest struct {
	Enabled *bool `json:"enabled"`
}

// handleKill sets the kill switch from the body, or flips it when the body
// leaves it out.
func (s *Server) handleKill(c *gin.Context) {
	var req killRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	on := !s.feed.KillSwitch()
	if req.Enabled != nil {
		on = *req.Enabled
	}
	if err := s.feed.SetKillSwitch(on); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"kill_switch": on})
}

type instrumentRequest struct {
	Instrument models.InstrumentID `json:"instrument" binding:"required"`
}

func (s *Server) handleInstrument(c *gin.Context) {
	var req instrumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	inst, err := s.feed.Instruments().Lookup(req.Instrument)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.switchTo(c, inst)
}

func (s *Server) handleToggle(c *gin.Context) {
	inst, err := s.feed.Instruments().Next(s.feed.Instrument())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	s.switchTo(c, inst)
}

func (s *Server) switchTo(c *gin.Context, inst models.Instrument) {
	if err := s.feed.SwitchInstrument(inst.ID); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	s.selectGroupSize(inst, inst.DefaultGroupSize)
	s.log.WithComponent("dashboard").WithFields(logger.Fields{"instrument": inst.ID}).Info("instrument selected")
	c.JSON(http.StatusOK, gin.H{"instrument": inst.ID, "group_size": inst.DefaultGroupSize})
}

type groupRequest struct {
	GroupSize float64 `json:"group_size" binding:"required"`
}

func (s *Server) handleGroup(c *gin.Context) {
	var req groupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	inst, err := s.feed.Instruments().Lookup(s.feed.Instrument())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !inst.AllowsGroupSize(req.GroupSize) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "group size not allowed", "group_sizes": inst.GroupSizes})
		return
	}
	s.selectGroupSize(inst, req.GroupSize)
	c.JSON(http.StatusOK, gin.H{"instrument": inst.ID, "group_size": req.GroupSize})
}

func (s *Server) handleLogs(c *gin.Context) {
	logsSnapshot := s.logStore.snapshot()
	payload := make([]gin.H, 0, len(logsSnapshot))
	for _, l := range logsSnapshot {
		payload = append(payload, gin.H{
			"timestamp": l.Timestamp.Format(time.RFC3339Nano),
			"level":     l.Level,
			"component": l.Component,
			"message":   l.Message,
			"fields":    l.Fields,
		})
	}
	c.JSON(http.StatusOK, gin.H{"logs": payload})
}

func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)

	if addr == "" {
		return "127.0.0.1:8080"
	}

	if strings.Contains(addr, "://") {
		if parsed, err := url.Parse(addr); err == nil {
			if host := parsed.Host; host != "" {
				addr = host
			} else if parsed.Opaque != "" {
				addr = parsed.Opaque
			}
		}
	}

	if strings.HasPrefix(addr, ":") {
		if len(addr) > 1 && addr[1] >= '0' && addr[1] <= '9' {
			return "0.0.0.0" + addr
		}
	}

	host, port, err := net.SplitHostPort(addr)
	if err == nil {
		if host == "" || host == "*" {
			host = "0.0.0.0"
		}
		if port == "" {
			port = "8080"
		}
		return net.JoinHostPort(host, port)
	}

	if ip := net.ParseIP(addr); ip != nil {
		return net.JoinHostPort(addr, "8080")
	}

	if !strings.Contains(addr, ":") {
		return net.JoinHostPort(addr, "8080")
	}

	return addr
}
