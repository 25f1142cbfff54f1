package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"watchpartygo/internal/auth"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Options tune the session transport.
type Options struct {
	MaxMessageBytes int64
	SendBuffer      int
	// ReportErrors replies to a dropped event with an "error" frame instead
	// of ignoring it.
	ReportErrors bool
}

type WsServer struct {
	hub      *Hub
	router   *Router
	verifier auth.IVerifier
	upgrader websocket.Upgrader
	opts     Options
	sessions sync.Map // session id -> *clientConn
}

func NewWsServer(h *Hub, verifier auth.IVerifier, opts Options) *WsServer {
	if opts.MaxMessageBytes <= 0 {
		opts.MaxMessageBytes = 64 << 10
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 256
	}
	srv := &WsServer{
		hub:      h,
		router:   NewRouter(),
		verifier: verifier,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		opts: opts,
	}
	srv.registerHandlers() // ← all WS events configured here
	return srv
}

// ---------------------------------------------------------------------------
//  Public: Gin entry‑point
// ---------------------------------------------------------------------------

// Handle is the authentication gate. The credential is checked once, before
// the upgrade; a rejected client never reaches the router.
func (s *WsServer) Handle(ginCtx *gin.Context) {
	token := ginCtx.Query("token")
	if token == "" {
		token = ginCtx.GetHeader("Authorization")
	}
	who, err := s.verifier.Verify(token)
	if err != nil {
		zap.L().Debug("ws.auth_rejected", zap.Error(err))
		ginCtx.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	rawConn, err := s.upgrader.Upgrade(ginCtx.Writer, ginCtx.Request, nil)
	if err != nil {
		zap.L().Warn("ws.accept", zap.Error(err))
		return
	}
	rawConn.SetReadLimit(s.opts.MaxMessageBytes)

	conn := newClientConn(rawConn, who, s.opts.SendBuffer)
	s.sessions.Store(conn.id, conn)
	zap.L().Info("ws.connected",
		zap.String("session", conn.id),
		zap.String("user", who.UserID))

	go conn.writePump()
	go s.reader(conn)
}

// Close ends every live session. Disconnect cleanup runs in each reader.
func (s *WsServer) Close() {
	s.sessions.Range(func(_, v any) bool {
		v.(*clientConn).close()
		return true
	})
}

// ---------------------------------------------------------------------------
//  Private helpers
// ---------------------------------------------------------------------------

func (s *WsServer) registerHandlers() {
	// 🔹 join_room -----------------------------------------------------------
	Register(s.router, EventJoinRoom,
		func(_ context.Context, cc *ConnContext, req JoinRoomRequest) error {
			if err := sameUser(cc, req.UserID); err != nil {
				return err
			}
			return s.hub.Join(cc.conn, req.RoomID)
		},
	)

	// 🔹 leave_room ----------------------------------------------------------
	Register(s.router, EventLeaveRoom,
		func(_ context.Context, cc *ConnContext, req LeaveRoomRequest) error {
			if err := sameUser(cc, req.UserID); err != nil {
				return err
			}
			return s.hub.Leave(cc.conn, req.RoomID)
		},
	)

	// 🔹 video_control -------------------------------------------------------
	Register(s.router, EventVideoControl,
		func(_ context.Context, cc *ConnContext, req VideoControlRequest) error {
			return s.hub.Control(cc.conn, req.RoomID, req.Action, req.Time)
		},
	)

	// 🔹 send_message --------------------------------------------------------
	Register(s.router, EventSendMessage,
		func(_ context.Context, cc *ConnContext, req SendMessageRequest) error {
			return s.hub.Chat(cc.conn, req.RoomID, req.Message)
		},
	)

	// 🔹 sync_request --------------------------------------------------------
	Register(s.router, EventSyncRequest,
		func(_ context.Context, cc *ConnContext, req SyncRequest) error {
			return s.hub.Sync(cc.conn, req.RoomID)
		},
	)
}

func sameUser(cc *ConnContext, userID string) error {
	if userID != "" && userID != cc.Identity.UserID {
		return ErrIdentityMismatch
	}
	return nil
}

func (s *WsServer) reader(conn *clientConn) {
	defer func() {
		s.hub.Disconnect(conn)
		s.sessions.Delete(conn.id)
		conn.close()
		zap.L().Info("ws.disconnected",
			zap.String("session", conn.id),
			zap.String("user", conn.identity.UserID))
	}()

	_ = conn.rawConn.SetReadDeadline(time.Now().Add(pongWait))
	conn.rawConn.SetPongHandler(func(string) error {
		return conn.rawConn.SetReadDeadline(time.Now().Add(pongWait))
	})

	cc := &ConnContext{Identity: conn.identity, conn: conn}
	for {
		_, data, err := conn.rawConn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				zap.L().Debug("ws.read", zap.String("session", conn.id), zap.Error(err))
			}
			return // client closed or errored
		}
		s.handleFrame(cc, data)
	}
}

func (s *WsServer) handleFrame(cc *ConnContext, data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		s.drop(cc.conn, "", ErrMalformed)
		return
	}
	if err := s.router.dispatch(context.Background(), cc, env); err != nil {
		s.drop(cc.conn, env.Event, err)
	}
}

// drop records a rejected event. The sender only hears about it when error
// replies are enabled.
func (s *WsServer) drop(conn *clientConn, event string, err error) {
	zap.L().Debug("ws.event_dropped",
		zap.String("session", conn.id),
		zap.String("event", event),
		zap.Error(err))
	if !s.opts.ReportErrors {
		return
	}
	msg, ferr := frame(EventError, ErrorBody{Event: event, Error: errorCode(err)})
	if ferr != nil {
		return
	}
	conn.enqueue(msg)
}

func errorCode(err error) string {
	for _, known := range []error{
		ErrRoomNotFound, ErrUnknownAction, ErrMissingTime,
		ErrIdentityMismatch, ErrMalformed, ErrUnknownEvent, ErrRoomEvicted,
	} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return "internal_error"
}
