package transport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	ws "github.com/gorilla/websocket"

	"drone-fleet/internal/drone"
)

const typeDronesLocationUpdate = "dronesLocationUpdate"

type droneLister interface {
	ListActiveUpdatedSince(ctx context.Context, since time.Time) ([]*drone.Drone, error)
}

type DronesLocationUpdate struct {
	Type string         `json:"type"`
	Data []*drone.Drone `json:"data"`
}

// DashboardHandler streams changed drone records to dashboard clients.
type DashboardHandler struct {
	drones   droneLister
	interval time.Duration
	upgrader ws.Upgrader
	cfg      Config
	logger   *slog.Logger
}

func NewDashboardHandler(drones droneLister, interval time.Duration, cfg Config, logger *slog.Logger) *DashboardHandler {
	if interval <= 0 {
		interval = time.Second
	}
	return &DashboardHandler{
		drones:   drones,
		interval: interval,
		upgrader: ws.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		cfg:      cfg.withDefaults(),
		logger:   logger,
	}
}

// Stream upgrades GET /ws/dashboard and pushes every active drone updated
// since the previous tick. The first tick sends all active drones.
func (h *DashboardHandler) Stream(c *gin.Context) {
	socket, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("dashboard websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	log := h.logger.With(slog.String("remote", socket.RemoteAddr().String()))
	conn := newConn(socket, h.cfg, log)
	go conn.writeLoop()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		defer cancel()
		h.discardInbound(conn, log)
	}()

	h.push(ctx, conn, log)
	conn.Close()
	log.Info("dashboard disconnected")
}

func (h *DashboardHandler) push(ctx context.Context, conn *conn, log *slog.Logger) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	var since time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-conn.done:
			return
		case <-ticker.C:
			queriedAt := time.Now()
			drones, err := h.drones.ListActiveUpdatedSince(ctx, since)
			if err != nil {
				log.Error("failed to load drone updates", slog.String("error", err.Error()))
				continue
			}
			since = queriedAt
			if len(drones) == 0 {
				continue
			}
			data, err := json.Marshal(DronesLocationUpdate{Type: typeDronesLocationUpdate, Data: drones})
			if err != nil {
				log.Error("failed to encode drone updates", slog.String("error", err.Error()))
				continue
			}
			if err := conn.sendRaw(ctx, data); err != nil {
				return
			}
		}
	}
}

// discardInbound keeps the read side alive for pongs and close frames.
// Dashboards have nothing to say.
func (h *DashboardHandler) discardInbound(conn *conn, log *slog.Logger) {
	for {
		_, data, err := conn.ws.ReadMessage()
		if err != nil {
			if isUnexpectedClose(err) {
				log.Warn("dashboard connection lost", slog.String("error", err.Error()))
			}
			return
		}
		log.Debug("ignoring dashboard message", slog.Int("bytes", len(data)))
	}
}
