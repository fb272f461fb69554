package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/vietddude/burnrelay/internal/core/domain"
	"github.com/vietddude/burnrelay/internal/core/status"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

type snapshotMessage struct {
	Type   string     `json:"type"`
	Record recordView `json:"record"`
}

// streamBurn sends a snapshot of the record, then every event for it until
// the record closes or the client goes away.
func (s *Server) streamBurn(c *gin.Context) {
	id := c.Param("id")
	// Subscribe before the snapshot so no event falls in between.
	ch, unsubscribe := s.events.Subscribe(id)
	defer unsubscribe()

	rec, err := s.burns.Get(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "record", id, "error", err)
		return
	}
	defer conn.Close()

	if err := s.writeJSON(conn, snapshotMessage{Type: "snapshot", Record: s.view(rec)}); err != nil {
		return
	}
	if rec.Plan != nil && status.Settled(rec.Plan.Steps) {
		s.closeConn(conn, "record settled")
		return
	}

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-gone:
			return
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case ev, ok := <-ch:
			if !ok {
				s.closeConn(conn, "server shutting down")
				return
			}
			if err := s.writeJSON(conn, ev); err != nil {
				return
			}
			if ev.Type == domain.EventRecordClosed {
				s.closeConn(conn, "record settled")
				return
			}
		}
	}
}

func (s *Server) writeJSON(conn *websocket.Conn, v any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(v); err != nil {
		s.log.Debug("websocket write failed", "error", err)
		return err
	}
	return nil
}

func (s *Server) closeConn(conn *websocket.Conn, reason string) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
