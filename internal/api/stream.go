package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Guliveer/vitalis/console/internal/models"
)

const (
	streamBuffer     = 64
	streamWriteWait  = 10 * time.Second
	streamPingPeriod = 30 * time.Second
)

var streamKinds = []models.MessageKind{
	models.KindStatusUpdate,
	models.KindMetricSnapshot,
	models.KindQueueStatus,
	models.KindCommandAck,
	models.KindAlert,
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The API binds to loopback by default and serves no credentials.
	CheckOrigin: func(*http.Request) bool { return true },
}

// streamFrame is what dashboard clients receive for every live message.
type streamFrame struct {
	Channel string             `json:"channel"`
	Type    models.MessageKind `json:"type"`
	Payload interface{}        `json:"payload"`
}

func payloadOf(msg models.Message) interface{} {
	switch msg := msg.(type) {
	case models.StatusMessage:
		return msg.Event
	case models.MetricMessage:
		return msg.Snapshot
	case models.QueueMessage:
		return msg.Status
	case models.AckMessage:
		return msg.Ack
	case models.AlertMessage:
		return msg.Alert
	default:
		return nil
	}
}

// stream relays live messages and newly raised alerts to a dashboard WebSocket. Subscribing here
// is what triggers auto-connect when it is configured. Slow clients lose
// frames rather than stalling the channels.
func (s *Server) stream(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("Stream upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	out := make(chan []byte, streamBuffer)
	forward := func(channel string, msg models.Message) {
		frame, err := json.Marshal(streamFrame{Channel: channel, Type: msg.Kind(), Payload: payloadOf(msg)})
		if err != nil {
			s.logger.Error("Failed to encode stream frame", zap.Error(err))
			return
		}
		select {
		case out <- frame:
		default:
			s.logger.Debug("Stream client lagging, frame dropped", zap.String("channel", channel))
		}
	}

	for _, kind := range streamKinds {
		unsubscribe := s.session.Manager.Subscribe(kind, forward)
		defer unsubscribe()
	}
	s.logger.Info("Stream client connected", zap.String("remote", c.Request.RemoteAddr))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(streamPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-done:
			s.logger.Info("Stream client disconnected", zap.String("remote", c.Request.RemoteAddr))
			return
		case frame := <-out:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				s.logger.Debug("Stream write failed", zap.Error(err))
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
				return
			}
		}
	}
}
