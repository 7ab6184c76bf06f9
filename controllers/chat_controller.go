package controllers

import (
	"log/slog"
	"net/http"
	"strings"

	"booking/models"
	"booking/services"

	"github.com/gin-gonic/gin"
)

type ChatController struct {
	gatekeeper *services.Gatekeeper
	logger     *slog.Logger
}

func NewChatController(gatekeeper *services.Gatekeeper, logger *slog.Logger) *ChatController {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatController{
		gatekeeper: gatekeeper,
		logger:     logger.With("component", "chat_controller"),
	}
}

func (cc *ChatController) StartConversation(c *gin.Context) {
	result, err := cc.gatekeeper.StartConversation(c.Request.Context())
	if err != nil {
		cc.respondError(c, "failed to start conversation", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"conversation_id":  result.Conversation.ConversationID,
		"message":          result.Message,
		"requires_address": true,
	})
}

func (cc *ChatController) ValidateAddress(c *gin.Context) {
	var request struct {
		ConversationID string `json:"conversation_id"`
		Address        string `json:"address"`
	}
	if !bindRequest(c, &request, &request.ConversationID) {
		return
	}

	result, err := cc.gatekeeper.SubmitAddress(c.Request.Context(), request.ConversationID, request.Address)
	if err != nil {
		cc.respondError(c, "failed to validate address", err)
		return
	}

	response := gin.H{
		"conversation_id": result.ConversationID,
		"address_valid":   result.Valid,
		"message":         result.Message,
		"can_continue":    result.CanContinue,
	}
	if result.Location != nil {
		response["address_data"] = result.Location
	}
	c.JSON(http.StatusOK, response)
}

func (cc *ChatController) Chat(c *gin.Context) {
	var request struct {
		ConversationID string `json:"conversation_id"`
		Message        string `json:"message"`
	}
	if !bindRequest(c, &request, &request.ConversationID) {
		return
	}

	result, err := cc.gatekeeper.SubmitChat(c.Request.Context(), request.ConversationID, request.Message)
	if err != nil {
		cc.respondError(c, "chat failed", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"conversation_id":    result.ConversationID,
		"user_message":       result.UserMessage,
		"assistant_response": result.AssistantResponse,
		"run_id":             result.RunID,
	})
}

func (cc *ChatController) GetConversation(c *gin.Context) {
	view, err := cc.gatekeeper.Conversation(c.Request.Context(), c.Param("conversation_id"))
	if err != nil {
		cc.respondError(c, "failed to get conversation", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"conversation_id":      view.State.ConversationID,
		"thread_state":         threadState(view.State),
		"conversation_history": view.History,
		"total_messages":       len(view.History),
	})
}

func (cc *ChatController) ThreadStatus(c *gin.Context) {
	state, err := cc.gatekeeper.Status(c.Request.Context(), c.Param("conversation_id"))
	if err != nil {
		cc.respondError(c, "failed to get thread status", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"conversation_id": state.ConversationID,
		"status": gin.H{
			"address_validated": state.AddressValidated,
			"can_chat":          state.AddressValidated,
			"thread_id":         state.ThreadID,
			"created_at":        services.FormatTimestamp(state.CreatedAt),
		},
	})
}

func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": services.GetCurrentTimestamp(),
	})
}

func threadState(state models.ConversationState) gin.H {
	return gin.H{
		"address_validated": state.AddressValidated,
		"address_data":      state.AddressData,
		"thread_id":         state.ThreadID,
		"created_at":        services.FormatTimestamp(state.CreatedAt),
	}
}

// bindRequest decodes the JSON body into request and reports a 400 when the
// body is malformed or conversationID is left empty.
func bindRequest(c *gin.Context, request any, conversationID *string) bool {
	if err := c.ShouldBindJSON(request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid request body: " + err.Error()})
		return false
	}
	if strings.TrimSpace(*conversationID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "conversation_id is required"})
		return false
	}
	return true
}

// respondError maps conversation-state violations to 400 and everything
// else to 500.
func (cc *ChatController) respondError(c *gin.Context, action string, err error) {
	if services.IsClientError(err) {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}
	cc.logger.Error(action, "path", c.FullPath(), "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"detail": action + ": " + err.Error()})
}
