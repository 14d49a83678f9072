package api

import (
	"context"
	"net/http"

	"companion-chat/backend/internal/models"
	"companion-chat/backend/internal/service"
	apperrors "companion-chat/backend/pkg/errors"

	"github.com/gin-gonic/gin"
)

// CharacterService is what the character routes need from the service layer
type CharacterService interface {
	CreateCharacter(ctx context.Context, profile models.UserProfile) (*service.CreatedCharacter, error)
	ListUserCharacters(ctx context.Context, userID uint) ([]models.CharacterSummary, error)
	History(ctx context.Context, characterID uint, limit int) ([]models.Message, error)
	FavorabilityStatus(ctx context.Context, characterID uint) (*service.FavorabilityStatus, error)
	Summary(ctx context.Context, characterID uint) (*service.ConversationSummary, error)
	DeleteCharacter(ctx context.Context, characterID uint) error
	DeleteUser(ctx context.Context, userID uint) error
}

type CharacterController struct {
	characters CharacterService
}

func NewCharacterController(characters CharacterService) *CharacterController {
	return &CharacterController{characters: characters}
}

// RegisterRoutes mounts the character and user routes on the versioned group
func (h *CharacterController) RegisterRoutes(v2 *gin.RouterGroup) {
	characters := v2.Group("/characters")
	{
		characters.POST("", h.CreateCharacter)
		characters.DELETE("/:id", h.DeleteCharacter)
		characters.GET("/:id/history", h.GetHistory)
		characters.GET("/:id/favorability", h.GetFavorability)
		characters.GET("/:id/summary", h.GetSummary)
	}

	users := v2.Group("/users")
	{
		users.GET("/:id/characters", h.ListUserCharacters)
		users.DELETE("/:id", h.DeleteUser)
	}
}

func (h *CharacterController) CreateCharacter(c *gin.Context) {
	var profile models.UserProfile
	if err := c.ShouldBindJSON(&profile); err != nil {
		c.Error(apperrors.Validation("invalid character request").Wrap(err))
		return
	}

	created, err := h.characters.CreateCharacter(c.Request.Context(), profile)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success":            true,
		"user_id":            created.UserID,
		"character_id":       created.Character.ID,
		"character":          created.Character,
		"initial_message":    created.InitialMessage,
		"favorability_level": created.FavorabilityLevel,
	})
}

func (h *CharacterController) ListUserCharacters(c *gin.Context) {
	userID, err := parseID(c, "id")
	if err != nil {
		c.Error(err)
		return
	}

	characters, err := h.characters.ListUserCharacters(c.Request.Context(), userID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"user_id":    userID,
		"characters": characters,
	})
}

func (h *CharacterController) GetHistory(c *gin.Context) {
	characterID, err := parseID(c, "id")
	if err != nil {
		c.Error(err)
		return
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		c.Error(err)
		return
	}

	messages, err := h.characters.History(c.Request.Context(), characterID, limit)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"character_id": characterID,
		"count":        len(messages),
		"messages":     messages,
	})
}

func (h *CharacterController) GetFavorability(c *gin.Context) {
	characterID, err := parseID(c, "id")
	if err != nil {
		c.Error(err)
		return
	}

	status, err := h.characters.FavorabilityStatus(c.Request.Context(), characterID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"favorability": status,
	})
}

func (h *CharacterController) GetSummary(c *gin.Context) {
	characterID, err := parseID(c, "id")
	if err != nil {
		c.Error(err)
		return
	}

	summary, err := h.characters.Summary(c.Request.Context(), characterID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"summary": summary,
	})
}

func (h *CharacterController) DeleteCharacter(c *gin.Context) {
	characterID, err := parseID(c, "id")
	if err != nil {
		c.Error(err)
		return
	}

	if err := h.characters.DeleteCharacter(c.Request.Context(), characterID); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "character_id": characterID})
}

func (h *CharacterController) DeleteUser(c *gin.Context) {
	userID, err := parseID(c, "id")
	if err != nil {
		c.Error(err)
		return
	}

	if err := h.characters.DeleteUser(c.Request.Context(), userID); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "user_id": userID})
}
