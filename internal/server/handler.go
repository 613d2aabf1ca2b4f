package server

import (
	"net/http"
	"strconv"

	"chatrelay/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Handler 聚合 REST handler，依赖注入 service 层。
type Handler struct {
	roomSvc *service.RoomService
	msgSvc  *service.MessageService
}

func NewHandler(roomSvc *service.RoomService, msgSvc *service.MessageService) *Handler {
	return &Handler{roomSvc: roomSvc, msgSvc: msgSvc}
}

// ListRooms 返回房间注册表及在线人数。
func (h *Handler) ListRooms(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rooms": h.roomSvc.List()})
}

// ListMessages 返回房间历史，升序，limit 不超过配置上限。
func (h *Handler) ListMessages(c *gin.Context) {
	kind, err := h.roomSvc.Resolve(c.Param("name"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}
	limit := 0
	if s := c.Query("limit"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = v
	}
	msgs, err := h.msgSvc.HistoryLimit(c.Request.Context(), kind, limit)
	if err != nil {
		log.Error().Err(err).Str("room", c.Param("name")).Msg("list messages")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list messages"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}
