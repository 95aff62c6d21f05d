package handler

import (
	"net/http"

	"agentpost/internal/services"
	"agentpost/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
)

type AdminHandler struct {
	admin *services.AdminService
}

func NewAdminHandler(admin *services.AdminService) *AdminHandler {
	return &AdminHandler{admin: admin}
}

func (h *AdminHandler) Login(c *gin.Context) {
	var req httpdto.AdminLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}

	token, err := h.admin.Login(req.Password)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.AdminLoginResponse{Token: token}))
}

// PurgeAgent removes an agent with all of its messages, replies and indices.
func (h *AdminHandler) PurgeAgent(c *gin.Context) {
	address := c.Param("address")
	purged, err := h.admin.PurgeAgent(c.Request.Context(), address)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.PurgeAgentResponse{
		Address: address,
		Purged:  purged,
	}))
}

// RebuildIndex reconstructs an agent's inbox index by scanning stored
// messages. Used to repair an index after a partial write.
func (h *AdminHandler) RebuildIndex(c *gin.Context) {
	address := c.Param("address")
	total, unread, err := h.admin.RebuildInboxIndex(c.Request.Context(), address)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.RebuildIndexResponse{
		Address:     address,
		Total:       total,
		UnreadCount: unread,
	}))
}
