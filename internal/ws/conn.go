package ws

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"radiochat/internal/auth"
	"radiochat/internal/chat"
	"radiochat/internal/metrics"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	writeWait     = 10 * time.Second
	pongWait      = 60 * time.Second
	pingPeriod    = 30 * time.Second
	sendBuffer    = 256
	handleTimeout = 15 * time.Second
)

var (
	ErrClosed    = errors.New("connection closed")
	ErrQueueFull = errors.New("send queue full")
)

// Options 是 websocket 端点的参数。
type Options struct {
	JWTSecret         string
	ReadLimit         int64
	MessagesPerSecond float64
	Burst             int
	AllowedOrigins    []string
}

// Client 是一条 websocket 连接，实现 chat.Conn。写操作全部交给 writePump。
type Client struct {
	conn    *websocket.Conn
	send    chan []byte
	limiter *rate.Limiter

	mu     sync.Mutex
	closed bool
	done   chan struct{}
	once   sync.Once
}

// newClient 中 MessagesPerSecond 不为正时不限速。
func newClient(conn *websocket.Conn, opts Options) *Client {
	limit := rate.Inf
	if opts.MessagesPerSecond > 0 {
		limit = rate.Limit(opts.MessagesPerSecond)
	}
	return &Client{
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		limiter: rate.NewLimiter(limit, opts.Burst),
		done:    make(chan struct{}),
	}
}

// Send 非阻塞地把帧放入发送队列。
func (c *Client) Send(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close 可重复调用。writePump 随之退出并关闭底层连接，readPump 读错后执行断线清理。
func (c *Client) Close() {
	c.once.Do(func() {
		c.mu.Lock()
		c.closed = true
		close(c.done)
		c.mu.Unlock()
	})
}

// Serve 升级 websocket 连接。token 来自 ?token= 或 Authorization 头；
// 没有 token 或 token 无效时以访客身份连接。
func Serve(svc *chat.Service, opts Options) gin.HandlerFunc {
	upgrader := websocket.Upgrader{CheckOrigin: originChecker(opts.AllowedOrigins)}
	return func(c *gin.Context) {
		identity := identify(c, opts.JWTSecret)
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Debug().Err(err).Msg("ws upgrade")
			return
		}
		client := newClient(conn, opts)
		sess, err := svc.Connect(client, identity)
		if err != nil {
			log.Error().Err(err).Str("user_id", identity.ID).Msg("ws bind session")
			_ = conn.Close()
			return
		}
		metrics.WsConnections.Inc()

		go client.writePump()
		client.readPump(svc, sess, opts.ReadLimit)
	}
}

func identify(c *gin.Context, secret string) chat.Identity {
	token := c.Query("token")
	if token == "" {
		token = auth.BearerToken(c.GetHeader("Authorization"))
	}
	if token == "" {
		return chat.GuestIdentity()
	}
	claims, err := auth.ParseAccessToken(token, secret)
	if err != nil {
		log.Debug().Err(err).Msg("ws token rejected, connecting as guest")
		return chat.GuestIdentity()
	}
	return chat.Identity{ID: claims.UserID, DisplayName: claims.Username, IsAuthenticated: true}
}

// originChecker 在未配置来源时放行所有来源。
func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// readPump 顺序处理本连接的请求；退出时只执行一次断线清理。
func (c *Client) readPump(svc *chat.Service, sess *chat.Session, readLimit int64) {
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		c.Close()
		_ = c.conn.Close()
		svc.Disconnect(c)
		metrics.WsConnections.Dec()
	}()
	if readLimit > 0 {
		c.conn.SetReadLimit(readLimit)
	}
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Str("user_id", sess.Identity().ID).Msg("ws read")
			}
			return
		}
		if !c.limiter.Allow() {
			metrics.WsRateLimited.Inc()
			svc.Fail(sess, chat.ErrRateLimited)
			continue
		}
		hctx, hcancel := context.WithTimeout(ctx, handleTimeout)
		svc.Handle(hctx, sess, data)
		hcancel()
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				c.Close()
				return
			}
			_, _ = w.Write(message)
			if err := w.Close(); err != nil {
				c.Close()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
