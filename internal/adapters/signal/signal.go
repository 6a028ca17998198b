package signal

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/Tree/internal/app"
	"github.com/dkeye/Tree/internal/core"
	"github.com/dkeye/Tree/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	FallbackConnection = "connection"
	FallbackCookie     = "cookie"

	// ClientTokenKey is the gin context key the HTTP layer stores the
	// cookie bound client token under.
	ClientTokenKey = "client_token"
)

type Options struct {
	ReadLimit        int64
	PingPeriod       time.Duration
	PongWait         time.Duration
	WriteWait        time.Duration
	SendBuffer       int
	IdentityFallback string
}

func DefaultOptions() Options {
	return Options{
		ReadLimit:        32768,
		PingPeriod:       54 * time.Second,
		PongWait:         60 * time.Second,
		WriteWait:        5 * time.Second,
		SendBuffer:       64,
		IdentityFallback: FallbackConnection,
	}
}

type SignalWSController struct {
	Hub  *app.Hub
	Opts Options
}

func NewSignalWSController(hub *app.Hub, opts Options) *SignalWSController {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = DefaultOptions().SendBuffer
	}
	if opts.PongWait <= 0 {
		opts.PongWait = DefaultOptions().PongWait
	}
	if opts.PingPeriod <= 0 || opts.PingPeriod >= opts.PongWait {
		opts.PingPeriod = opts.PongWait * 9 / 10
	}
	if opts.WriteWait <= 0 {
		opts.WriteWait = DefaultOptions().WriteWait
	}
	return &SignalWSController{Hub: hub, Opts: opts}
}

// wsConn is an indirection over *websocket.Conn to ease testing.
type wsConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(mt int, data []byte) error
	SetWriteDeadline(t time.Time) error
	SetReadDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(appData string) error)
	Close() error
}

// WsSignalConn implements core.SignalConnection over a WebSocket.
type WsSignalConn struct {
	conn wsConn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func NewWsSignalConn(conn wsConn, buffer int) *WsSignalConn {
	return &WsSignalConn{
		conn: conn,
		send: make(chan core.Frame, buffer),
	}
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return core.ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// clientIdentity picks the identity a connection announces: the userId
// query parameter, else the configured fallback.
func (ctl *SignalWSController) clientIdentity(c *gin.Context) domain.ClientID {
	if id := domain.NormalizeClientID(c.Query("userId")); id != "" {
		return id
	}
	if ctl.Opts.IdentityFallback == FallbackCookie {
		if id := domain.NormalizeClientID(c.GetString(ClientTokenKey)); id != "" {
			return id
		}
	}
	return domain.ClientID(uuid.NewString())
}

func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	clientID := ctl.clientIdentity(c)
	sid := core.SessionID(uuid.NewString())
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("client", string(clientID)).Msg("new WS connection")

	// Upgrade writes its own response; carry the session cookie over.
	var respHeader http.Header
	if cookies := c.Writer.Header().Values("Set-Cookie"); len(cookies) > 0 {
		respHeader = http.Header{"Set-Cookie": cookies}
	}
	ws, err := upgrader.Upgrade(c.Writer, c.Request, respHeader)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	conn := NewWsSignalConn(ws, ctl.Opts.SendBuffer)
	ctx, cancel := context.WithCancel(ctx)
	if err := ctl.Hub.OnConnect(sid, clientID, conn, cancel); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("hub rejected connection")
		cancel()
		conn.Close()
		return
	}

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, sid, conn)
}
