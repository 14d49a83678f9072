package api

import (
	"context"
	"net/http"

	"companion-chat/backend/internal/models"
	"companion-chat/backend/internal/service"
	apperrors "companion-chat/backend/pkg/errors"

	"github.com/gin-gonic/gin"
)

// TurnRunner runs one conversation turn
type TurnRunner interface {
	SendMessage(ctx context.Context, userID, characterID uint, text string) (*service.TurnResult, error)
}

type ConversationController struct {
	turns TurnRunner
}

func NewConversationController(turns TurnRunner) *ConversationController {
	return &ConversationController{turns: turns}
}

func (h *ConversationController) RegisterRoutes(v2 *gin.RouterGroup) {
	v2.POST("/messages", h.SendMessage)
}

// SendMessage runs a turn. A turn that fails after the user's message was
// stored still answers with its result so the caller can see what was kept.
func (h *ConversationController) SendMessage(c *gin.Context) {
	var req models.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.Validation("invalid message request").Wrap(err))
		return
	}

	result, err := h.turns.SendMessage(c.Request.Context(), req.UserID, req.CharacterID, req.Message)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(TurnStatus(result), result)
}

// TurnStatus maps a turn result to its HTTP status
func TurnStatus(result *service.TurnResult) int {
	if result.Success {
		return http.StatusOK
	}
	switch result.ErrorCode {
	case apperrors.CodeGatewayFailure:
		return http.StatusBadGateway
	case apperrors.CodeValidation:
		return http.StatusBadRequest
	case apperrors.CodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
