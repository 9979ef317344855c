package chat

import (
	"net/http"
	"strconv"

	midsec "RoomChat/middleware/security"
	"RoomChat/tools/errs"

	"github.com/gin-gonic/gin"
)

// REST 辅助面：历史消息与通知只是持久化协作方的薄封装。

// HandleRecentMessages GET /api/rooms/:room/messages?limit=50
func (s *Server) HandleRecentMessages(c *gin.Context) {
	userID := c.GetString(midsec.CtxUserIDKey)
	roomID := c.Param("room")

	room, err := s.rooms.GetRoom(c.Request.Context(), roomID)
	if err != nil {
		abortWithCodeError(c, err, http.StatusNotFound)
		return
	}
	if !room.HasMember(userID) {
		c.JSON(http.StatusForbidden, errs.ErrNotMember)
		return
	}

	limit, _ := strconv.ParseInt(c.DefaultQuery("limit", "50"), 10, 64)
	msgs, err := s.msgs.RecentMessages(c.Request.Context(), roomID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"msg": "query failed"})
		return
	}

	out := make([]*ChatMessageOut, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, BuildChatMessage(m, ""))
	}
	c.JSON(http.StatusOK, gin.H{"room_id": roomID, "messages": out})
}

// HandleUnreadCount GET /api/notifications/unread
func (s *Server) HandleUnreadCount(c *gin.Context) {
	userID := c.GetString(midsec.CtxUserIDKey)
	n, err := s.fanout.store.CountUnread(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"msg": "query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread": n})
}

type markReadReq struct {
	NotificationID string `json:"notification_id"`
	RoomID         string `json:"room_id"`
	All            bool   `json:"all"`
}

// HandleMarkRead POST /api/notifications/read
func (s *Server) HandleMarkRead(c *gin.Context) {
	userID := c.GetString(midsec.CtxUserIDKey)

	var req markReadReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errs.ErrFrameMalformed.WithDetail(err.Error()))
		return
	}

	var err error
	switch {
	case req.All:
		err = s.fanout.MarkAllRead(c.Request.Context(), userID, "")
	case req.RoomID != "":
		err = s.fanout.MarkAllRead(c.Request.Context(), userID, req.RoomID)
	case req.NotificationID != "":
		err = s.fanout.MarkRead(c.Request.Context(), userID, req.NotificationID)
	default:
		c.JSON(http.StatusBadRequest, errs.ErrFrameMalformed.WithDetail("need notification_id, room_id or all"))
		return
	}
	if err != nil {
		abortWithCodeError(c, err, http.StatusInternalServerError)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func abortWithCodeError(c *gin.Context, err error, fallback int) {
	if ce := errs.AsCodeError(err); ce != nil {
		status := fallback
		if ce.Is(errs.ErrRecordNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, ce)
		return
	}
	c.JSON(fallback, gin.H{"msg": err.Error()})
}
