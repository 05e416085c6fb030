package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/vyrodovalexey/avasheets/internal/audit"
	"github.com/vyrodovalexey/avasheets/internal/collab"
	"github.com/vyrodovalexey/avasheets/internal/mutation"
	"github.com/vyrodovalexey/avasheets/internal/observability"
)

const maxInboundEventBytes = 32 * 1024

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// inboundEvent is the wire envelope for client events. Payload stays raw
// until the type is known.
type inboundEvent struct {
	Type       collab.EventType `json:"type"`
	DocumentID string           `json:"documentId"`
	Payload    json.RawMessage  `json:"payload"`
}

type cellChangePayload struct {
	Row     int               `json:"row"`
	Col     int               `json:"col"`
	Value   *string           `json:"value"`
	Formula *string           `json:"formula"`
	Format  map[string]string `json:"format"`
}

type cellRefPayload struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

type rangeRefPayload struct {
	RowFrom int `json:"rowFrom"`
	ColFrom int `json:"colFrom"`
	RowTo   int `json:"rowTo"`
	ColTo   int `json:"colTo"`
}

// handleWebsocket upgrades the connection and runs the realtime session. The
// session authenticates once at upgrade; room joins re-check document access.
func (g *Gateway) handleWebsocket(c *gin.Context) {
	user := currentUser(c)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		g.logger.Warn("websocket upgrade failed", observability.Error(err))
		return
	}

	sess := collab.NewSession(user.ID, user.DisplayName(), g.cfg.Collab.SendBuffer)
	g.metrics.SessionsConnected.Inc()
	g.audit.LogAuthentication(c.Request.Context(), audit.ActionConnect, audit.OutcomeSuccess,
		&audit.Subject{UserID: user.ID, Email: user.Email, SessionID: sess.ID, RemoteIP: c.ClientIP()})

	go g.writePump(conn, sess)
	g.readLoop(c, conn, sess)

	g.hub.Disconnect(sess)
	conn.Close()
	g.metrics.SessionsConnected.Dec()
	g.audit.LogAuthentication(c.Request.Context(), audit.ActionDisconnect, audit.OutcomeSuccess,
		&audit.Subject{UserID: user.ID, Email: user.Email, SessionID: sess.ID, RemoteIP: c.ClientIP()})
}

// writePump drains the session's outbound queue onto the connection and keeps
// the connection alive with pings.
func (g *Gateway) writePump(conn *websocket.Conn, sess *collab.Session) {
	pongTimeout := g.cfg.Collab.PongTimeout.Duration()
	writeTimeout := g.cfg.Collab.WriteTimeout.Duration()
	ticker := time.NewTicker(pongTimeout * 2 / 3)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-sess.Events():
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				conn.Close()
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				conn.Close()
				return
			}
		case <-sess.Done():
			return
		}
	}
}

// readLoop parses client events and dispatches them to the hub until the
// connection drops. Inbound events are rate limited per session; excess
// events are dropped with an error notification rather than closing the
// connection.
func (g *Gateway) readLoop(c *gin.Context, conn *websocket.Conn, sess *collab.Session) {
	pongTimeout := g.cfg.Collab.PongTimeout.Duration()
	conn.SetReadLimit(maxInboundEventBytes)
	conn.SetReadDeadline(time.Now().Add(pongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	limiter := rate.NewLimiter(rate.Limit(g.cfg.Collab.EventRate), g.cfg.Collab.EventBurst)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				g.logger.Debug("websocket read failed",
					observability.String("sessionId", sess.ID),
					observability.Error(err))
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongTimeout))

		if !limiter.Allow() {
			g.notifyError(sess, "rateLimited", "too many events")
			continue
		}

		var ev inboundEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			g.notifyError(sess, "badEvent", "malformed event")
			continue
		}
		if ev.Type == collab.EventDisconnect {
			return
		}
		if err := g.dispatch(c, sess, &ev); err != nil {
			g.notifyError(sess, "eventRejected", err.Error())
		}
	}
}

func (g *Gateway) dispatch(c *gin.Context, sess *collab.Session, ev *inboundEvent) error {
	ctx := c.Request.Context()

	switch ev.Type {
	case collab.EventJoinRoom:
		return g.hub.Join(ctx, sess, ev.DocumentID)
	case collab.EventLeaveRoom:
		return g.hub.Leave(sess, ev.DocumentID)
	case collab.EventUpdateCell:
		var p cellChangePayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return err
		}
		_, err := g.hub.UpdateCell(ctx, sess, p.Row, p.Col, mutation.CellChange{
			Value:   p.Value,
			Formula: p.Formula,
			Format:  p.Format,
		})
		return err
	case collab.EventCursorMove:
		var p cellRefPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return err
		}
		return g.hub.CursorMove(sess, p.Row, p.Col)
	case collab.EventCellSelection:
		var p rangeRefPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return err
		}
		return g.hub.CellSelection(sess, p.RowFrom, p.ColFrom, p.RowTo, p.ColTo)
	case collab.EventLockCell:
		var p cellRefPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return err
		}
		return g.hub.LockCell(sess, p.Row, p.Col)
	case collab.EventUnlockCell:
		var p cellRefPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return err
		}
		return g.hub.UnlockCell(sess, p.Row, p.Col)
	default:
		return fmt.Errorf("unknown event type %q", ev.Type)
	}
}

func (g *Gateway) notifyError(sess *collab.Session, code, message string) {
	sess.Notify(&collab.Event{
		Type:    collab.EventError,
		Payload: collab.ErrorPayload{Code: code, Message: message},
	})
}
