package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	appcrypto "agentpost/internal/crypto"
	"agentpost/internal/notify"
	"agentpost/internal/services"
	"agentpost/internal/transport/httpdto"
	"agentpost/pkg/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// StreamHandler upgrades a registered agent to a websocket that receives
// delivery notifications. Identity is proven with a signature over the
// canonical stream string, checked against the registered public key.
type StreamHandler struct {
	hub      *notify.Hub
	agents   *services.AgentService
	verifier appcrypto.SignatureVerifier
	log      *logger.Logger
}

func NewStreamHandler(hub *notify.Hub, agents *services.AgentService, verifier appcrypto.SignatureVerifier, log *logger.Logger) *StreamHandler {
	return &StreamHandler{hub: hub, agents: agents, verifier: verifier, log: log}
}

func (h *StreamHandler) Handle(c *gin.Context) {
	address := c.Param("address")
	signature := c.Query("signature")
	if signature == "" {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("missing signature", "UNAUTHORIZED"))
		return
	}

	agent, err := h.agents.Get(c.Request.Context(), address)
	if err != nil {
		c.Error(err)
		return
	}
	if err := h.verifier.Verify(agent.PublicKey, appcrypto.StreamProofMessage(address), signature); err != nil {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("invalid signature", "UNAUTHORIZED"))
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Errorf("websocket upgrade for %s: %v", address, err)
		return
	}

	client := notify.NewClient(h.hub, conn, address, h.log)
	h.hub.Register(client)
	client.Start()
}
