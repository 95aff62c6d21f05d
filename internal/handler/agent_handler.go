package handler

import (
	"net/http"

	"agentpost/internal/services"
	"agentpost/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
)

type AgentHandler struct {
	agents *services.AgentService
}

func NewAgentHandler(agents *services.AgentService) *AgentHandler {
	return &AgentHandler{agents: agents}
}

func (h *AgentHandler) Register(c *gin.Context) {
	var req httpdto.RegisterAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}

	agent, err := h.agents.Register(c.Request.Context(), services.RegisterAgentInput{
		Address:        req.Address,
		PaymentAddress: req.PaymentAddress,
		PublicKey:      req.PublicKey,
	})
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, httpdto.NewSuccessResponse(httpdto.NewAgentResponse(agent)))
}

func (h *AgentHandler) Get(c *gin.Context) {
	agent, err := h.agents.Get(c.Request.Context(), c.Param("address"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.NewAgentResponse(agent)))
}
