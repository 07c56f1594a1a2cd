package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"radiochat/internal/auth"
	"radiochat/internal/chat"
	"radiochat/internal/db"
	"radiochat/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "ws-test-secret"

type frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func newTestServer(t *testing.T, opts Options) (*httptest.Server, *chat.Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	gdb, err := db.Connect("sqlite:" + filepath.Join(t.TempDir(), "ws.db"))
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb))
	svc := chat.NewService(store.New(gdb), chat.Options{})

	opts.JWTSecret = testSecret
	r := gin.New()
	r.GET("/ws", Serve(svc, opts))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, svc
}

func dial(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	if token != "" {
		url += "?token=" + token
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// readUntil 读取帧直到遇到 typ 类型。
func readUntil(t *testing.T, conn *websocket.Conn, typ string) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var f frame
		require.NoError(t, conn.ReadJSON(&f))
		if f.Type == typ {
			return f
		}
	}
}

func send(t *testing.T, conn *websocket.Conn, typ string, payload any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(map[string]any{"type": typ, "payload": payload}))
}

func TestServe_GuestSession(t *testing.T) {
	srv, svc := newTestServer(t, Options{})
	conn := dial(t, srv, "")

	f := readUntil(t, conn, "info")
	var info chat.InfoEvent
	require.NoError(t, json.Unmarshal(f.Payload, &info))
	assert.Equal(t, chat.Protocol, info.Protocol)

	send(t, conn, chat.TypeListRooms, nil)
	readUntil(t, conn, "roomsList")

	send(t, conn, chat.TypeCreateRoom, map[string]string{"name": "lobby"})
	f = readUntil(t, conn, "error")
	var e chat.ErrorEvent
	require.NoError(t, json.Unmarshal(f.Payload, &e))
	assert.Equal(t, chat.KindAccessDenied, e.Code)

	assert.Equal(t, 1, svc.Sessions().Count())
	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return svc.Sessions().Count() == 0 }, 3*time.Second, 20*time.Millisecond)
}

func TestServe_AuthenticatedFlow(t *testing.T) {
	srv, svc := newTestServer(t, Options{})
	token, err := auth.GenerateAccessToken("u-alice", "alice", testSecret, 15)
	require.NoError(t, err)
	conn := dial(t, srv, token)
	readUntil(t, conn, "info")

	send(t, conn, chat.TypeCreateRoom, map[string]string{"name": "general"})
	f := readUntil(t, conn, "roomCreated")
	var created chat.RoomCreated
	require.NoError(t, json.Unmarshal(f.Payload, &created))

	send(t, conn, chat.TypeJoinRoom, map[string]string{"roomId": created.RoomID})
	readUntil(t, conn, "roomJoined")

	send(t, conn, chat.TypeSendMessage, map[string]string{"roomId": created.RoomID, "ciphertext": "c1"})
	f = readUntil(t, conn, "message")
	var msg chat.MessageEvent
	require.NoError(t, json.Unmarshal(f.Payload, &msg))
	assert.Equal(t, "u-alice", msg.SenderID)
	assert.Equal(t, "alice", msg.SenderName)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return svc.Rooms().Count() == 0 }, 3*time.Second, 20*time.Millisecond)
}

func TestServe_BadTokenFallsBackToGuest(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	conn := dial(t, srv, "not-a-jwt")
	readUntil(t, conn, "info")

	send(t, conn, chat.TypeCreateRoom, map[string]string{"name": "lobby"})
	f := readUntil(t, conn, "error")
	var e chat.ErrorEvent
	require.NoError(t, json.Unmarshal(f.Payload, &e))
	assert.Equal(t, chat.KindAccessDenied, e.Code)
}

func TestServe_RateLimited(t *testing.T) {
	srv, _ := newTestServer(t, Options{MessagesPerSecond: 0.5, Burst: 1})
	conn := dial(t, srv, "")
	readUntil(t, conn, "info")

	for i := 0; i < 3; i++ {
		send(t, conn, chat.TypeListRooms, nil)
	}
	f := readUntil(t, conn, "error")
	var e chat.ErrorEvent
	require.NoError(t, json.Unmarshal(f.Payload, &e))
	assert.Equal(t, chat.KindRateLimited, e.Code)
}

func TestClient_Send(t *testing.T) {
	c := newClient(nil, Options{})
	for i := 0; i < sendBuffer; i++ {
		require.NoError(t, c.Send([]byte("x")))
	}
	assert.ErrorIs(t, c.Send([]byte("x")), ErrQueueFull)

	c.Close()
	c.Close()
	assert.ErrorIs(t, c.Send([]byte("x")), ErrClosed)
}

func TestOriginChecker(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"no config", nil, "http://evil.test", true},
		{"listed", []string{"http://app.test"}, "http://app.test", true},
		{"not listed", []string{"http://app.test"}, "http://evil.test", false},
		{"no origin header", []string{"http://app.test"}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ws", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, originChecker(tt.allowed)(req))
		})
	}
}
