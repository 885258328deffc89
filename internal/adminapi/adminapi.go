// Package adminapi exposes the server's read-only admin HTTP surface:
// health/metrics endpoints, a channel roster, and a websocket relay that
// pushes the stats snapshot to connected consoles once per second (§6).
// Flow events (join/leave/renick) are not relayed.
package adminapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"voudp/internal/voiceserver"
)

const (
	relayPushInterval = time.Second
	writeTimeout      = 5 * time.Second
)

// Server is the admin HTTP application, backed by a running voice server.
type Server struct {
	echo *echo.Echo
	vs   *voiceserver.Server
}

// New constructs an admin HTTP app bound to vs.
func New(vs *voiceserver.Server) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(requestLogger())

	s := &Server{echo: e, vs: vs}
	s.registerRoutes()
	return s
}

func requestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			slog.Debug("admin http request",
				"method", c.Request().Method,
				"path", c.Request().URL.Path,
				"status", c.Response().Status,
				"duration_ms", time.Since(start).Milliseconds(),
			)
			return nil
		}
	}
}

// Echo exposes the underlying Echo instance for tests.
func (s *Server) Echo() *echo.Echo { return s.echo }

func (s *Server) registerRoutes() {
	s.echo.GET("/healthz", s.handleHealthz)
	s.echo.GET("/metrics", s.handleMetrics)
	s.echo.GET("/channels", s.handleChannels)
	s.echo.GET("/console/stream", s.handleConsoleStream)
}

// Run starts the admin HTTP listener and blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		err := s.echo.Start(addr)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		slog.Info("shutting down admin http server")
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.echo.Shutdown(shutCtx)
		return nil
	}
}

type healthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealthz(c echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{Status: "ok"})
}

type metricsResponse struct {
	TickCount      uint64 `json:"tick_count"`
	DatagramsIn    uint64 `json:"datagrams_in"`
	DatagramsOut   uint64 `json:"datagrams_out"`
	DroppedIntake  uint64 `json:"dropped_intake"`
	DroppedJitter  uint64 `json:"dropped_jitter"`
	ActiveRemotes  int    `json:"active_remotes"`
	ActiveConsoles int    `json:"active_consoles"`
}

func (s *Server) handleMetrics(c echo.Context) error {
	snap := s.vs.Snapshot()
	return c.JSON(http.StatusOK, metricsResponse{
		TickCount:      snap.TickCount,
		DatagramsIn:    snap.DatagramsIn,
		DatagramsOut:   snap.DatagramsOut,
		DroppedIntake:  snap.DroppedIntake,
		DroppedJitter:  snap.DroppedJitter,
		ActiveRemotes:  snap.ActiveRemotes,
		ActiveConsoles: snap.ActiveConsoles,
	})
}

type channelResponse struct {
	ID          uint32 `json:"id"`
	Name        string `json:"name"`
	MemberCount int    `json:"member_count"`
}

func (s *Server) handleChannels(c echo.Context) error {
	snap := s.vs.Snapshot()
	out := make([]channelResponse, len(snap.Channels))
	for i, ch := range snap.Channels {
		out[i] = channelResponse{ID: ch.ID, Name: ch.Name, MemberCount: ch.MemberCount}
	}
	return c.JSON(http.StatusOK, out)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

// handleConsoleStream upgrades to a websocket and pushes a snapshot once
// per relayPushInterval until the client disconnects. It is a read-only
// relay: anything the client sends is discarded.
func (s *Server) handleConsoleStream(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	// Drain and discard client frames so the connection's read deadline
	// logic (pings, close frames) keeps working.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(relayPushInterval)
	defer ticker.Stop()

	for range ticker.C {
		snap := s.vs.Snapshot()
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteJSON(snap); err != nil {
			return nil
		}
	}
	return nil
}
