package updates

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"huddle/global"
	"huddle/logger"
	midsec "huddle/middleware/security"
	"huddle/service/storage"
	errs "huddle/tools/errs"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const (
	writeWait  = 10 * time.Second
	maxMsgSize = 1024
)

// pongWait must exceed the heartbeat interval: the heartbeat carries the
// protocol ping that keeps the read deadline alive. Variable for tests.
var pongWait = 75 * time.Second

// Handler exposes the diff and stream endpoints.
type Handler struct {
	svc      *Service
	presence func(ctx context.Context, orgID, userID string, online bool)
}

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

// OnPresenceChange registers a hook fired when a user's first stream attaches
// or last stream detaches on this node.
func (h *Handler) OnPresenceChange(fn func(ctx context.Context, orgID, userID string, online bool)) {
	h.presence = fn
}

type diffRequest struct {
	Offset *int64 `json:"offset"`
	Limit  *int   `json:"limit"`
}

// Diff handles POST /api/org/:orgid/updates/diff.
func (h *Handler) Diff(c *gin.Context) {
	userID, _, ok := midsec.Identity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, respErr(errs.ErrUnauthorized))
		return
	}

	var req diffRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, respErr(ErrInvalidOffset))
		return
	}
	var offset int64
	if req.Offset != nil {
		offset = *req.Offset
	}
	limit := 0
	if req.Limit != nil {
		limit = *req.Limit
		if limit < 1 {
			c.JSON(http.StatusBadRequest, respErr(ErrInvalidOffset))
			return
		}
	}

	page, err := h.svc.DiffGet(c.Request.Context(), userID, offset, limit)
	if err != nil {
		var codeErr *errs.CodeError
		if errors.As(err, &codeErr) && codeErr.Code == errs.CodeInvalidOffset {
			c.JSON(http.StatusBadRequest, respErr(ErrInvalidOffset))
			return
		}
		logger.Errorf("[updates] diff failed user=%s err=%v", userID, err)
		c.JSON(http.StatusServiceUnavailable, respErr(ErrStoreUnavailable))
		return
	}
	c.JSON(http.StatusOK, respOK(page))
}

// Stream handles GET /api/org/:orgid/updates/stream — upgrades to a
// websocket and pushes envelopes as they land in the user's log.
func (h *Handler) Stream(c *gin.Context) {
	userID, orgID, ok := midsec.Identity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, respErr(errs.ErrUnauthorized))
		return
	}

	// resume point: explicit ?offset=, otherwise only new envelopes
	var fromSeq int64
	if raw := c.Query("offset"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v < 0 {
			c.JSON(http.StatusBadRequest, respErr(ErrInvalidOffset))
			return
		}
		fromSeq = v
	} else {
		v, err := h.svc.MaxSeq(c.Request.Context(), userID)
		if err != nil {
			logger.Errorf("[updates] stream max seq failed user=%s err=%v", userID, err)
			c.JSON(http.StatusServiceUnavailable, respErr(ErrStoreUnavailable))
			return
		}
		fromSeq = v
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Infof("[updates] upgrade failed user=%s err=%v", userID, err)
		return
	}

	conn := newWsStream(ws)
	unsubscribe, err := h.svc.Subscribe(userID, orgID, fromSeq, conn)
	if err != nil {
		logger.Errorf("[updates] subscribe failed user=%s err=%v", userID, err)
		_ = ws.Close()
		return
	}
	// best-effort presence: TTL rides the pong cycle, so a dead peer goes
	// offline on its own even if the teardown below never runs
	nodeID := strconv.FormatInt(global.Conf.NodeID, 10)
	_ = storage.PresenceOnline(context.Background(), userID, nodeID, pongWait)
	if h.presence != nil && h.svc.Conns().CountForUser(userID) == 1 {
		h.presence(context.Background(), orgID, userID, true)
	}
	defer func() {
		unsubscribe()
		if h.svc.Conns().CountForUser(userID) == 0 {
			_ = storage.PresenceOffline(context.Background(), userID)
			if h.presence != nil {
				h.presence(context.Background(), orgID, userID, false)
			}
		}
	}()

	// read pump: the client sends nothing we act on; reading surfaces
	// disconnects and keeps pong handling alive
	ws.SetReadLimit(maxMsgSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		_ = storage.PresenceOnline(context.Background(), userID, nodeID, pongWait)
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Infof("[updates] peer closed user=%s", userID)
			} else {
				logger.Infof("[updates] read err user=%s err=%v", userID, err)
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	}
}

// RegisterRoutes mounts the update-delivery endpoints under /api/org/:orgid.
func RegisterRoutes(r gin.IRoutes, h *Handler) {
	r.POST("/api/org/:orgid/updates/diff", midsecMiddleware(), h.Diff)
	r.GET("/api/org/:orgid/updates/stream", midsecMiddleware(), h.Stream)
}

func midsecMiddleware() gin.HandlerFunc {
	return midsec.Middleware(midsec.DefaultOptions())
}

func respOK(data any) gin.H { return gin.H{"ok": true, "data": data} }

func respErr(e *errs.CodeError) gin.H {
	return gin.H{"ok": false, "error": gin.H{"code": e.Code, "msg": e.Msg}}
}

// wsStream adapts a gorilla websocket to StreamConn. All writes go through
// one mutex; the subscription goroutine and the ephemeral push share it.
type wsStream struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func newWsStream(ws *websocket.Conn) *wsStream { return &wsStream{ws: ws} }

type streamFrame struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

func (w *wsStream) writeJSON(frame streamFrame) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return w.ws.WriteJSON(frame)
}

func (w *wsStream) WriteEnvelope(env *UpdateEnvelope) error {
	return w.writeJSON(streamFrame{Type: "envelope", Data: env})
}

func (w *wsStream) WriteEphemeral(env *EphemeralEnvelope) error {
	return w.writeJSON(streamFrame{Type: "ephemeral", Data: env})
}

// WritePing emits both a protocol ping (drives the peer's pong, which is what
// keeps the server read deadline alive) and the JSON heartbeat frame the UI
// listens for.
func (w *wsStream) WritePing() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	deadline := time.Now().Add(writeWait)
	if err := w.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
		return err
	}
	_ = w.ws.SetWriteDeadline(deadline)
	return w.ws.WriteJSON(streamFrame{Type: "ping"})
}

func (w *wsStream) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ws.Close()
}
