package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exam-portal/internal/config"
	"github.com/stemsi/exam-portal/internal/service"
	ws "github.com/stemsi/exam-portal/internal/websocket"
)

const snapshotTimeout = 5 * time.Second

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allowedOrigins permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// MonitorHandler streams credential logins of an exam to admins.
type MonitorHandler struct {
	rdb         *redis.Client
	examService *service.ExamService
	log         zerolog.Logger
	upgrader    websocket.Upgrader
}

// NewMonitorHandler creates a new MonitorHandler.
func NewMonitorHandler(rdb *redis.Client, examService *service.ExamService, log zerolog.Logger, allowedOrigins []string) *MonitorHandler {
	return &MonitorHandler{
		rdb:         rdb,
		examService: examService,
		log:         log.With().Str("component", "monitor_handler").Logger(),
		upgrader:    buildUpgrader(allowedOrigins),
	}
}

// StreamExam godoc
// WS /ws/v1/admin/exams/:id/monitor
// Sends a usage snapshot, then one credential_consumed event per examinee login.
func (h *MonitorHandler) StreamExam(c *gin.Context) {
	examID, ok := parseID(c, "id")
	if !ok {
		return
	}

	snapCtx, cancel := context.WithTimeout(c.Request.Context(), snapshotTimeout)
	stats, err := h.examService.StatsFor(snapCtx, examID)
	cancel()
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().Int64("exam_id", examID).Logger()

	ctx, stop := context.WithCancel(c.Request.Context())
	defer stop()

	pubsub := h.rdb.Subscribe(ctx, config.CacheKey.ExamMonitorChannel(examID))
	defer pubsub.Close()

	if err := ws.WriteTyped(conn, ws.SnapshotResponse{
		Event:  ws.EventSnapshot,
		ExamID: stats.ExamID,
		Name:   stats.Name,
		Active: stats.IsActive,
		Total:  stats.TotalCredentials,
		Used:   stats.UsedCredentials,
	}); err != nil {
		return
	}

	wsLog.Info().Msg("Monitor attached")

	// Writes happen only on this goroutine; the reader hands pings over.
	pings := make(chan struct{}, 1)
	go h.readLoop(conn, wsLog, pings, stop)

	msgs := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			wsLog.Debug().Msg("Monitor detached")
			return
		case <-pings:
			if err := ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventPong}); err != nil {
				return
			}
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			if err := ws.WriteTyped(conn, ws.CredentialConsumedResponse{
				Event: ws.EventCredentialConsumed,
				Data:  []byte(msg.Payload),
			}); err != nil {
				wsLog.Debug().Err(err).Msg("Monitor write failed")
				return
			}
		}
	}
}

func (h *MonitorHandler) readLoop(conn *websocket.Conn, log zerolog.Logger, pings chan<- struct{}, stop context.CancelFunc) {
	defer stop()
	for {
		var msg ws.RequestEnvelope
		if err := ws.ReadJSON(conn, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Msg("Unexpected close")
			}
			return
		}

		switch msg.Action {
		case ws.ActionPing:
			select {
			case pings <- struct{}{}:
			default:
			}
		default:
			log.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
		}
	}
}
