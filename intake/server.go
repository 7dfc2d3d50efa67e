package intake

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rustyeddy/trademanager/broker"
	"go.uber.org/zap"
)

const (
	defaultReplyTimeout = 30 * time.Second
	maxSignalBytes      = 64 << 10
)

// TickSink accepts quotes pushed over HTTP; the paper broker implements it.
type TickSink interface {
	UpdatePrice(t broker.Tick) error
}

type ServerConfig struct {
	Addr         string
	Queue        *Queue
	Status       func() any
	Ticks        TickSink // nil disables POST /paper/ticks
	ReplyTimeout time.Duration
	Logger       *zap.Logger
}

// Server exposes the intake over HTTP and websocket.
type Server struct {
	addr   string
	router *gin.Engine
	cfg    ServerConfig
	log    *zap.Logger
	ws     websocket.Upgrader
}

func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Queue == nil {
		return nil, errors.New("intake server requires a queue")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":5555"
	}
	if cfg.ReplyTimeout <= 0 {
		cfg.ReplyTimeout = defaultReplyTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	s := &Server{
		addr:   cfg.Addr,
		router: router,
		cfg:    cfg,
		log:    cfg.Logger.With(zap.String("component", "intake")),
		ws: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	router.Use(gin.Recovery(), s.requestLogger())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/status", s.handleStatus)
	router.POST("/signal", s.handleSignal)
	router.GET("/ws", s.handleWS)
	if cfg.Ticks != nil {
		router.POST("/paper/ticks", s.handleTick)
	}
	return s, nil
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) Addr() string { return s.addr }

// Start serves until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("intake listening", zap.String("addr", s.addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleSignal(c *gin.Context) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxSignalBytes+1))
	if err != nil {
		c.String(http.StatusBadRequest, "read body: %v", err)
		return
	}
	if len(raw) > maxSignalBytes {
		c.String(http.StatusRequestEntityTooLarge, "Manager: Signal Too Large")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.cfg.ReplyTimeout)
	defer cancel()

	reply, err := s.cfg.Queue.Submit(ctx, raw)
	if err != nil {
		s.log.Warn("signal not answered", zap.Error(err))
		c.String(http.StatusServiceUnavailable, "Manager: Unavailable")
		return
	}
	c.String(http.StatusOK, "%s", reply)
}

// handleWS answers each text frame with one text frame, in order.
func (s *Server) handleWS(c *gin.Context) {
	conn, err := s.ws.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxSignalBytes)

	ctx := c.Request.Context()
	for {
		mt, msg, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug("websocket read", zap.Error(err))
			}
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}

		rctx, cancel := context.WithTimeout(ctx, s.cfg.ReplyTimeout)
		reply, err := s.cfg.Queue.Submit(rctx, msg)
		cancel()
		if err != nil {
			reply = "Manager: Unavailable"
		}
		if err := conn.WriteMessage(websocket.TextMessage, []byte(reply)); err != nil {
			s.log.Debug("websocket write", zap.Error(err))
			return
		}
	}
}

func (s *Server) handleStatus(c *gin.Context) {
	if s.cfg.Status == nil {
		c.JSON(http.StatusOK, gin.H{})
		return
	}
	c.JSON(http.StatusOK, s.cfg.Status())
}

type tickPayload struct {
	Symbol string    `json:"symbol"`
	Bid    float64   `json:"bid"`
	Ask    float64   `json:"ask"`
	Time   time.Time `json:"time"`
}

func (s *Server) handleTick(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var p tickPayload
	if err := sonic.Unmarshal(raw, &p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	tick := broker.Tick{Symbol: p.Symbol, Bid: p.Bid, Ask: p.Ask, Time: p.Time}
	if tick.Time.IsZero() {
		tick.Time = time.Now()
	}
	if err := s.cfg.Ticks.UpdatePrice(tick); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.String("ip", c.ClientIP()),
			zap.Duration("dur", time.Since(start)),
		)
	}
}
