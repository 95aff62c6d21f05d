package handler

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strconv"

	"agentpost/internal/payment"
	"agentpost/internal/services"
	"agentpost/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
)

const paymentHeader = "X-Payment"

var (
	errInvalidLimit  = errors.New("invalid limit")
	errInvalidOffset = errors.New("invalid offset")
)

type MessageHandler struct {
	delivery *services.DeliveryService
	messages *services.MessageService
	inbox    *services.InboxService
}

func NewMessageHandler(delivery *services.DeliveryService, messages *services.MessageService, inbox *services.InboxService) *MessageHandler {
	return &MessageHandler{delivery: delivery, messages: messages, inbox: inbox}
}

// Send accepts a message submission. Without payment evidence it answers 402
// with the requirements; with a valid payload or txid it delivers and
// answers 201, or 200 when the txid was already redeemed.
func (h *MessageHandler) Send(c *gin.Context) {
	var req httpdto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}

	send := services.SendRequest{
		Recipient: req.Recipient,
		Content:   req.Content,
		Proof:     payment.Proof{Txid: req.PaymentTxid},
	}

	encoded := c.GetHeader(paymentHeader)
	if encoded == "" {
		encoded = req.Payment
	}
	if encoded != "" {
		payload, err := payment.DecodePayloadHeader(encoded)
		if err != nil {
			c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse(err.Error(), "INVALID_PAYMENT"))
			return
		}
		send.Proof.Payload = payload
		send.RawProof, _ = base64.StdEncoding.DecodeString(encoded)
	}

	outcome, err := h.delivery.Submit(c.Request.Context(), send)
	if err != nil {
		c.Error(err)
		return
	}

	if outcome.Requirements != nil {
		if encoded, err := payment.EncodeRequirementsHeader(outcome.Requirements); err == nil {
			c.Header("X-Payment-Required", encoded)
		}
		c.JSON(http.StatusPaymentRequired, httpdto.NewSuccessResponse(httpdto.PaymentRequiredResponse{
			X402Version: payment.X402Version,
			Accepts:     []payment.Requirements{*outcome.Requirements},
		}))
		return
	}

	resp := httpdto.NewMessageResponse(outcome.Message)
	if outcome.Duplicate {
		resp.Duplicate = true
		c.JSON(http.StatusOK, httpdto.NewSuccessResponse(resp))
		return
	}
	c.JSON(http.StatusCreated, httpdto.NewSuccessResponse(resp))
}

func (h *MessageHandler) Get(c *gin.Context) {
	result, err := h.messages.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}

	resp := httpdto.MessageDetailResponse{Message: httpdto.NewMessageResponse(result.Message)}
	if result.Reply != nil {
		reply := httpdto.NewReplyResponse(result.Reply)
		resp.Reply = &reply
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(resp))
}

func (h *MessageHandler) ListInbox(c *gin.Context) {
	limit, offset, err := parsePageParams(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse(err.Error(), "INVALID_REQUEST"))
		return
	}

	page, err := h.inbox.ListInbox(c.Request.Context(), c.Param("address"), limit, offset)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(pageResponse(page, limit, offset)))
}

func (h *MessageHandler) ListOutbox(c *gin.Context) {
	limit, offset, err := parsePageParams(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse(err.Error(), "INVALID_REQUEST"))
		return
	}

	page, err := h.inbox.ListOutbox(c.Request.Context(), c.Param("address"), limit, offset)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(pageResponse(page, limit, offset)))
}

func (h *MessageHandler) MarkRead(c *gin.Context) {
	var req httpdto.MarkReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}

	msg, err := h.messages.MarkRead(c.Request.Context(), c.Param("id"), req.Signature)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.NewMessageResponse(msg)))
}

func (h *MessageHandler) Reply(c *gin.Context) {
	var req httpdto.ReplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}

	reply, err := h.messages.Reply(c.Request.Context(), c.Param("id"), req.Text, req.Signature)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, httpdto.NewSuccessResponse(httpdto.NewReplyResponse(reply)))
}

func pageResponse(page *services.Page, limit, offset int) httpdto.PageResponse {
	items := make([]httpdto.MessageResponse, 0, len(page.Items))
	for _, m := range page.Items {
		items = append(items, httpdto.NewMessageResponse(m))
	}
	return httpdto.PageResponse{
		Items:       items,
		UnreadCount: page.UnreadCount,
		Total:       page.Total,
		Limit:       limit,
		Offset:      offset,
	}
}

func parsePageParams(c *gin.Context) (limit, offset int, err error) {
	limit = 20
	offset = 0
	if raw := c.Query("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit <= 0 || limit > 100 {
			return 0, 0, errInvalidLimit
		}
	}
	if raw := c.Query("offset"); raw != "" {
		offset, err = strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return 0, 0, errInvalidOffset
		}
	}
	return limit, offset, nil
}
