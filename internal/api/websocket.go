package api

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"tradebot/internal/events"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// publicEvents are streamed to every client. Signed-in clients (?token=)
// additionally receive the events of their own sessions.
var publicEvents = map[events.Event]bool{
	events.EventPriceTick: true,
	events.EventMockTrade: true,
}

const wsPingInterval = 30 * time.Second

func (s *Server) websocket(c *gin.Context) {
	user := ""
	if token := c.Query("token"); token != "" {
		claims, err := parseToken(token, s.JWTSecret)
		if err != nil {
			respondError(c, http.StatusUnauthorized, "INVALID_TOKEN", "invalid or expired token")
			return
		}
		user = claims.Email
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("ws upgrade error: %v", err)
		return
	}
	defer conn.Close()

	if s.Bus == nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"bus not ready"}`))
		return
	}

	stream, unsub := s.Bus.Subscribe(100,
		events.EventPriceTick,
		events.EventMockTrade,
		events.EventSignal,
		events.EventRiskRejected,
		events.EventTradeExecuted,
		events.EventOrderFailed,
		events.EventSessionState,
	)
	defer unsub()

	// reader goroutine notices the client going away
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		case msg, ok := <-stream:
			if !ok {
				return
			}
			if !publicEvents[msg.Event] && (user == "" || msg.User != user) {
				continue
			}
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}
}
