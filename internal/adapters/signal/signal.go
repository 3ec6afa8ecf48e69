package signal

import (
	"context"
	"net/http"
	"sync"

	"github.com/dkeye/watchparty/internal/app"
	"github.com/dkeye/watchparty/internal/config"
	"github.com/dkeye/watchparty/internal/core"
	"github.com/dkeye/watchparty/internal/protocol"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

type SignalWSController struct {
	Server *app.Server
	Cfg    config.WSConfig
	Secret string

	upgrader websocket.Upgrader
}

func NewSignalWSController(srv *app.Server, cfg config.WSConfig, secret string) *SignalWSController {
	return &SignalWSController{
		Server: srv,
		Cfg:    cfg,
		Secret: secret,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// WsSignalConn implements core.SignalConnection on top of a websocket.
type WsSignalConn struct {
	id   string
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) ID() string { return c.id }

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

// Close stops accepting frames. The write pump flushes what is already
// queued, sends a close message and releases the socket.
func (c *WsSignalConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// HandleSignal upgrades the request and runs the connection until either
// side hangs up. A token query parameter binds identity right away.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	clientToken := c.GetString("client_token")

	var ident *Identity
	if raw := c.Query("token"); raw != "" {
		id, err := ParseToken(ctl.Secret, raw)
		if err != nil {
			log.Warn().Err(err).Str("module", "signal").Str("client", clientToken).Msg("rejecting identity token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		ident = &id
	}

	ws, err := ctl.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	conn := &WsSignalConn{
		id:   uuid.NewString(),
		conn: ws,
		send: make(chan core.Frame, ctl.Cfg.SendBuffer),
	}
	log.Info().Str("module", "signal").Str("conn", conn.id).Str("client", clientToken).Msg("new WS connection")

	sc, err := ctl.Server.Open(conn)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn", conn.id).Msg("relay refused connection")
		_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, err.Error()))
		_ = ws.Close()
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, conn)

	// The token identity is bound before any client frame is read.
	if ident != nil {
		if err := ctl.Server.Bind(ctx, sc, ident.SessionID, ident.Participant); err != nil {
			_ = conn.TrySend(protocol.EncodeError(err.Error(), map[string]any{"kind": "join_rejected"}))
		}
	}
	go ctl.readPump(ctx, cancel, sc, conn)
}
