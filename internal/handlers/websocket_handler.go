package handlers

import (
	"net/http"
	"time"

	"sendcash-backend/internal/services"
	"sendcash-backend/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 50 * time.Second
	wsSendBuffer = 64
)

// WebSocketHandler live payment feed per address
type WebSocketHandler struct {
	feed     *services.PaymentFeed
	upgrader websocket.Upgrader
	log      *logrus.Logger
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(feed *services.PaymentFeed, log *logrus.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		feed: feed,
		log:  log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// HandlePaymentFeed GET /ws/payments?address=0x..
func (h *WebSocketHandler) HandlePaymentFeed(c *gin.Context) {
	address := c.Query("address")
	if !utils.IsEvmAddress(address) {
		respondWithError(c, http.StatusBadRequest, "validation_error", "address query parameter must be a 0x address", nil)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.WithError(err).Warn("❌ WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	clientID := uuid.New().String()
	client := h.feed.Register(clientID, address, wsSendBuffer)
	defer h.feed.Unregister(clientID)

	logger := h.log.WithFields(logrus.Fields{"client_id": clientID, "address": client.Address})
	logger.Info("📡 WebSocket client connected")

	conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := conn.WriteJSON(gin.H{
		"type":      "connected",
		"client_id": clientID,
		"address":   client.Address,
		"timestamp": time.Now().Unix(),
	}); err != nil {
		return
	}

	// reader only watches for close frames and pongs
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		conn.SetReadLimit(512)
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					logger.WithError(err).Debug("websocket read error")
				}
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	for {
		select {
		case msg := <-client.Send:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logger.WithError(err).Debug("websocket write failed")
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		case <-readDone:
			logger.Info("🔌 WebSocket client disconnected")
			return
		case <-c.Request.Context().Done():
			return
		}
	}
}
