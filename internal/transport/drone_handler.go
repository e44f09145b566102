package transport

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	ws "github.com/gorilla/websocket"

	"drone-fleet/internal/fleet"
)

var errNotRegistered = errors.New("drone must register before sending other messages")

type DroneHandler struct {
	registry *fleet.Registry
	upgrader ws.Upgrader
	cfg      Config
	// sessions run on this context so they outlive the upgrade request.
	baseCtx context.Context
	logger  *slog.Logger
}

func NewDroneHandler(baseCtx context.Context, registry *fleet.Registry, cfg Config, logger *slog.Logger) *DroneHandler {
	return &DroneHandler{
		registry: registry,
		upgrader: ws.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		cfg:      cfg.withDefaults(),
		baseCtx:  baseCtx,
		logger:   logger,
	}
}

// Connect upgrades GET /ws/drone. Frames are dropped until one registers the
// drone; later frames are fed to its session in arrival order. The handler
// returns when the socket closes.
func (h *DroneHandler) Connect(c *gin.Context) {
	socket, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("drone websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	log := h.logger.With(slog.String("remote", socket.RemoteAddr().String()))
	conn := newConn(socket, h.cfg, log)
	go conn.writeLoop()

	session, ok := h.awaitRegistration(c.Request.Context(), conn, log)
	if !ok {
		conn.Close()
		return
	}
	go session.Run(h.baseCtx)

	h.readLoop(conn, session, log.With(slog.String("drone_id", session.DroneID())))
	session.Close()
}

// awaitRegistration reads frames until one registers the drone. It reports
// false only when the socket closes first.
func (h *DroneHandler) awaitRegistration(ctx context.Context, conn *conn, log *slog.Logger) (*fleet.Session, bool) {
	for {
		_, data, err := conn.ws.ReadMessage()
		if err != nil {
			log.Info("drone connection closed before registering", slog.String("error", err.Error()))
			return nil, false
		}
		if session, err := h.register(ctx, conn, data); err != nil {
			log.Warn("rejected drone registration", slog.String("error", err.Error()))
		} else {
			return session, true
		}
	}
}

func (h *DroneHandler) register(ctx context.Context, conn *conn, data []byte) (*fleet.Session, error) {
	msg, err := fleet.ParseInbound(data)
	if err != nil {
		return nil, err
	}
	reg, ok := msg.(fleet.RegisterMsg)
	if !ok {
		return nil, errNotRegistered
	}
	return h.registry.Register(ctx, conn, reg.Drone)
}

func (h *DroneHandler) readLoop(conn *conn, session *fleet.Session, log *slog.Logger) {
	for {
		_, data, err := conn.ws.ReadMessage()
		if err != nil {
			if isUnexpectedClose(err) {
				log.Warn("drone connection lost", slog.String("error", err.Error()))
			}
			return
		}
		msg, err := fleet.ParseInbound(data)
		if err != nil {
			log.Warn("rejected drone message", slog.String("error", err.Error()))
			continue
		}
		if err := session.Receive(h.baseCtx, msg); err != nil {
			return
		}
	}
}
