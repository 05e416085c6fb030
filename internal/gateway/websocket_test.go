package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avasheets/internal/collab"
	"github.com/vyrodovalexey/avasheets/internal/store"
)

type wsClient struct {
	t    *testing.T
	conn *websocket.Conn
}

func dialWebsocket(t *testing.T, srv *httptest.Server, token string) *wsClient {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return &wsClient{t: t, conn: conn}
}

func (c *wsClient) send(ev map[string]any) {
	c.t.Helper()
	require.NoError(c.t, c.conn.WriteJSON(ev))
}

// read returns the next event, failing the test if none arrives in time.
func (c *wsClient) read() *collab.Event {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var ev collab.Event
	require.NoError(c.t, c.conn.ReadJSON(&ev))
	return &ev
}

// readUntil reads events until one of the wanted type arrives.
func (c *wsClient) readUntil(want collab.EventType) *collab.Event {
	c.t.Helper()
	for i := 0; i < 10; i++ {
		ev := c.read()
		if ev.Type == want {
			return ev
		}
	}
	c.t.Fatalf("event %q never arrived", want)
	return nil
}

func payloadField(t *testing.T, ev *collab.Event, key string) any {
	t.Helper()
	payload, ok := ev.Payload.(map[string]any)
	require.True(t, ok, "payload is %T", ev.Payload)
	return payload[key]
}

func newWebsocketServer(t *testing.T) (*httptest.Server, *Gateway, store.Store) {
	t.Helper()
	g, st := newTestGateway(t)
	srv := httptest.NewServer(g.Engine())
	t.Cleanup(srv.Close)
	return srv, g, st
}

func TestWebsocketRejectsBadCredential(t *testing.T) {
	srv, _, _ := newWebsocketServer(t)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=bogus"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	if conn != nil {
		conn.Close()
	}
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWebsocketJoinAndPresence(t *testing.T) {
	srv, g, _ := newWebsocketServer(t)
	docID := createTestDocument(t, g, tokenAlice, true)
	grantAccessLevel := func(userID string) {
		rec := doRequest(t, g, http.MethodPut,
			"/api/v1/documents/"+docID+"/grants/"+userID, tokenAlice,
			gin.H{"level": "write"})
		require.Contains(t, []int{http.StatusOK, http.StatusCreated}, rec.Code)
	}
	grantAccessLevel("bob")

	alice := dialWebsocket(t, srv, tokenAlice)
	alice.send(map[string]any{"type": "joinRoom", "documentId": docID})
	joined := alice.readUntil(collab.EventSheetJoined)
	assert.Equal(t, docID, joined.DocumentID)

	bob := dialWebsocket(t, srv, tokenBob)
	bob.send(map[string]any{"type": "joinRoom", "documentId": docID})
	bob.readUntil(collab.EventSheetJoined)

	// Alice is notified of bob's arrival.
	arrival := alice.readUntil(collab.EventUserJoined)
	assert.Equal(t, "bob", payloadField(t, arrival, "userId"))
}

func TestWebsocketDeniesStrangers(t *testing.T) {
	srv, g, _ := newWebsocketServer(t)
	docID := createTestDocument(t, g, tokenAlice, false)

	carol := dialWebsocket(t, srv, tokenCarol)
	carol.send(map[string]any{"type": "joinRoom", "documentId": docID})

	ev := carol.readUntil(collab.EventError)
	assert.Equal(t, "eventRejected", payloadField(t, ev, "code"))
}

func TestWebsocketCellUpdateFansOut(t *testing.T) {
	srv, g, st := newWebsocketServer(t)
	docID := createTestDocument(t, g, tokenAlice, false)
	grantAccess(t, st, "bob", docID, "write")

	alice := dialWebsocket(t, srv, tokenAlice)
	alice.send(map[string]any{"type": "joinRoom", "documentId": docID})
	alice.readUntil(collab.EventSheetJoined)

	bob := dialWebsocket(t, srv, tokenBob)
	bob.send(map[string]any{"type": "joinRoom", "documentId": docID})
	bob.readUntil(collab.EventSheetJoined)
	alice.readUntil(collab.EventUserJoined)

	bob.send(map[string]any{
		"type":    "updateCell",
		"payload": map[string]any{"row": 1, "col": 2, "value": "99"},
	})

	// Alice sees the change, and it is durable.
	ev := alice.readUntil(collab.EventCellUpdated)
	assert.Equal(t, "bob", payloadField(t, ev, "userId"))

	cell, err := st.Cells().Get(context.Background(), docID, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, "99", cell.Value)
}

func TestWebsocketCursorRelay(t *testing.T) {
	srv, g, st := newWebsocketServer(t)
	docID := createTestDocument(t, g, tokenAlice, false)
	grantAccess(t, st, "bob", docID, "read")

	alice := dialWebsocket(t, srv, tokenAlice)
	alice.send(map[string]any{"type": "joinRoom", "documentId": docID})
	alice.readUntil(collab.EventSheetJoined)

	bob := dialWebsocket(t, srv, tokenBob)
	bob.send(map[string]any{"type": "joinRoom", "documentId": docID})
	bob.readUntil(collab.EventSheetJoined)
	alice.readUntil(collab.EventUserJoined)

	bob.send(map[string]any{
		"type":    "cursorMove",
		"payload": map[string]any{"row": 3, "col": 4},
	})
	ev := alice.readUntil(collab.EventUserCursor)
	assert.EqualValues(t, 3, payloadField(t, ev, "row"))
	assert.EqualValues(t, 4, payloadField(t, ev, "col"))
}

func TestWebsocketMalformedEvent(t *testing.T) {
	srv, _, _ := newWebsocketServer(t)

	alice := dialWebsocket(t, srv, tokenAlice)
	require.NoError(t, alice.conn.WriteMessage(websocket.TextMessage, []byte("not json")))

	ev := alice.readUntil(collab.EventError)
	assert.Equal(t, "badEvent", payloadField(t, ev, "code"))

	// The connection stays usable after a bad event.
	data, err := json.Marshal(map[string]any{"type": "cursorMove", "payload": map[string]any{"row": 0, "col": 0}})
	require.NoError(t, err)
	require.NoError(t, alice.conn.WriteMessage(websocket.TextMessage, data))
	ev = alice.readUntil(collab.EventError)
	assert.Equal(t, "eventRejected", payloadField(t, ev, "code"))
}
