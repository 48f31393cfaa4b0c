package chat

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"huddle/logger"
	mid "huddle/middleware"
	midsec "huddle/middleware/security"
	chatmodel "huddle/module/chat/model"
	"huddle/service/storage"
	"huddle/tools/errs"
)

// Handler exposes the thin chat CRUD surface that feeds the update core.
type Handler struct {
	svc *ChatService
}

func NewHandler(svc *ChatService) *Handler { return &Handler{svc: svc} }

type createChannelRequest struct {
	Name        string   `json:"name" binding:"required"`
	ChannelType int32    `json:"channelType"`
	MemberIDs   []string `json:"memberIds"`
}

func (h *Handler) CreateChannel(c *gin.Context) {
	userID, orgID, ok := midsec.Identity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errs.ErrUnauthorized)
		return
	}
	var req createChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errs.ErrParam)
		return
	}
	if req.ChannelType == 0 {
		req.ChannelType = chatmodel.ChannelTypePublic
	}

	ch, err := h.svc.CreateChannel(c.Request.Context(), orgID, userID, req.Name, req.ChannelType, req.MemberIDs)
	if err != nil {
		logger.Errorf("[chat] create channel failed org=%s err=%v", orgID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "data": gin.H{"channelId": ch.ChannelID}})
}

type sendMessageRequest struct {
	Body string `json:"body" binding:"required"`
}

func (h *Handler) SendMessage(c *gin.Context) {
	userID, orgID, ok := midsec.Identity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errs.ErrUnauthorized)
		return
	}
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errs.ErrParam)
		return
	}

	msg, err := h.svc.SendMessage(c.Request.Context(), orgID, c.Param("chid"), userID, req.Body)
	if err != nil {
		logger.Errorf("[chat] send failed channel=%s err=%v", c.Param("chid"), err)
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "data": gin.H{"messageId": msg.MessageID}})
}

type editMessageRequest struct {
	Body string `json:"body" binding:"required"`
}

func (h *Handler) EditMessage(c *gin.Context) {
	userID, orgID, ok := midsec.Identity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errs.ErrUnauthorized)
		return
	}
	var req editMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errs.ErrParam)
		return
	}
	if err := h.svc.EditMessage(c.Request.Context(), orgID, c.Param("chid"), c.Param("msgid"), userID, req.Body); err != nil {
		logger.Errorf("[chat] edit failed msg=%s err=%v", c.Param("msgid"), err)
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) DeleteMessage(c *gin.Context) {
	userID, orgID, ok := midsec.Identity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errs.ErrUnauthorized)
		return
	}
	if err := h.svc.DeleteMessage(c.Request.Context(), orgID, c.Param("chid"), c.Param("msgid"), userID); err != nil {
		logger.Errorf("[chat] delete failed msg=%s err=%v", c.Param("msgid"), err)
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type memberRequest struct {
	UserID string `json:"userId" binding:"required"`
}

func (h *Handler) AddMember(c *gin.Context) {
	userID, orgID, ok := midsec.Identity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errs.ErrUnauthorized)
		return
	}
	var req memberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errs.ErrParam)
		return
	}
	if err := h.svc.AddMember(c.Request.Context(), orgID, c.Param("chid"), userID, req.UserID); err != nil {
		logger.Errorf("[chat] add member failed channel=%s err=%v", c.Param("chid"), err)
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) RemoveMember(c *gin.Context) {
	userID, orgID, ok := midsec.Identity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errs.ErrUnauthorized)
		return
	}
	if err := h.svc.RemoveMember(c.Request.Context(), orgID, c.Param("chid"), userID, c.Param("userid")); err != nil {
		logger.Errorf("[chat] remove member failed channel=%s err=%v", c.Param("chid"), err)
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type typingRequest struct {
	ChannelID string `json:"channelId" binding:"required"`
}

func (h *Handler) Typing(c *gin.Context) {
	userID, orgID, ok := midsec.Identity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errs.ErrUnauthorized)
		return
	}
	var req typingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errs.ErrParam)
		return
	}
	if err := h.svc.Typing(c.Request.Context(), orgID, req.ChannelID, userID); err != nil {
		logger.Warnf("[chat] typing failed channel=%s err=%v", req.ChannelID, err)
	}
	// always 200: typing is best-effort
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) Presence(c *gin.Context) {
	if _, _, ok := midsec.Identity(c); !ok {
		c.JSON(http.StatusUnauthorized, errs.ErrUnauthorized)
		return
	}
	nodeID, online, err := storage.PresenceLookup(c.Request.Context(), c.Param("userid"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "data": gin.H{"online": online, "node": nodeID}})
}

// RegisterRoutes mounts the chat surface under /api/org/:orgid.
func RegisterRoutes(r gin.IRoutes, h *Handler) {
	auth := mid.RouteOpt{IsAuth: true}
	mid.POST(r, "/api/org/:orgid/channels", h.CreateChannel, auth)
	mid.POST(r, "/api/org/:orgid/channels/:chid/messages", h.SendMessage, auth)
	mid.POST(r, "/api/org/:orgid/channels/:chid/messages/:msgid/edit", h.EditMessage, auth)
	mid.POST(r, "/api/org/:orgid/channels/:chid/messages/:msgid/delete", h.DeleteMessage, auth)
	mid.POST(r, "/api/org/:orgid/channels/:chid/members", h.AddMember, auth)
	mid.POST(r, "/api/org/:orgid/channels/:chid/members/:userid/remove", h.RemoveMember, auth)
	mid.POST(r, "/api/org/:orgid/typing", h.Typing, auth)
	mid.GET(r, "/api/org/:orgid/presence/:userid", h.Presence, auth)
}
