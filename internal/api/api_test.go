package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"companion-chat/backend/internal/models"
	"companion-chat/backend/internal/service"
	apperrors "companion-chat/backend/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeCharacters struct {
	profile   models.UserProfile
	limit     int
	deleted   uint
	deleteErr error
}

func (f *fakeCharacters) CreateCharacter(_ context.Context, profile models.UserProfile) (*service.CreatedCharacter, error) {
	f.profile = profile
	return &service.CreatedCharacter{
		UserID:            7,
		Character:         &models.Character{ID: 11, UserID: 7, Name: "小雪"},
		InitialMessage:    "你好",
		FavorabilityLevel: 1,
	}, nil
}

func (f *fakeCharacters) ListUserCharacters(_ context.Context, userID uint) ([]models.CharacterSummary, error) {
	if userID != 7 {
		return nil, apperrors.NotFound("user not found")
	}
	return []models.CharacterSummary{{ID: 11, Name: "小雪", Favorability: 2}}, nil
}

func (f *fakeCharacters) History(_ context.Context, characterID uint, limit int) ([]models.Message, error) {
	f.limit = limit
	return []models.Message{{ID: 1, CharacterID: characterID, Content: "你好"}}, nil
}

func (f *fakeCharacters) FavorabilityStatus(_ context.Context, characterID uint) (*service.FavorabilityStatus, error) {
	return &service.FavorabilityStatus{CharacterID: characterID}, nil
}

func (f *fakeCharacters) Summary(_ context.Context, characterID uint) (*service.ConversationSummary, error) {
	return &service.ConversationSummary{CharacterID: characterID, MessageCount: 3}, nil
}

func (f *fakeCharacters) DeleteCharacter(_ context.Context, characterID uint) error {
	f.deleted = characterID
	return f.deleteErr
}

func (f *fakeCharacters) DeleteUser(context.Context, uint) error {
	return apperrors.NotFound("user not found")
}

type fakeTurns struct {
	result *service.TurnResult
	err    error
	text   string
}

func (f *fakeTurns) SendMessage(_ context.Context, _, _ uint, text string) (*service.TurnResult, error) {
	f.text = text
	return f.result, f.err
}

type fakeGateway struct{ err error }

func (f fakeGateway) Ping(context.Context) error { return f.err }
func (f fakeGateway) Model() string              { return "SenseChat-Character" }

func newRouter(chars *fakeCharacters, turns *fakeTurns, gw GatewayPinger) *gin.Engine {
	r := gin.New()
	r.Use(apperrors.ErrorHandler())
	v2 := r.Group("/api/v2")
	NewCharacterController(chars).RegisterRoutes(v2)
	NewConversationController(turns).RegisterRoutes(v2)
	NewGatewayController(gw).RegisterRoutes(v2)
	return r
}

func request(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestCreateCharacter(t *testing.T) {
	chars := &fakeCharacters{}
	r := newRouter(chars, &fakeTurns{}, fakeGateway{})

	w := request(r, http.MethodPost, "/api/v2/characters",
		`{"user_name":"alice","dream_type":{"talking_style":"溫柔","interests":["咖啡"]}}`)
	require.Equal(t, http.StatusCreated, w.Code)

	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.EqualValues(t, 11, body["character_id"])
	assert.Equal(t, "你好", body["initial_message"])
	assert.Equal(t, []string{"咖啡"}, chars.profile.DreamType.Interests)

	w = request(r, http.MethodPost, "/api/v2/characters", `{"user_name":"alice","dream_type":{}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), apperrors.CodeValidation)
}

func TestCharacterReads(t *testing.T) {
	chars := &fakeCharacters{}
	r := newRouter(chars, &fakeTurns{}, fakeGateway{})

	w := request(r, http.MethodGet, "/api/v2/users/7/characters", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["characters"], 1)

	w = request(r, http.MethodGet, "/api/v2/users/8/characters", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = request(r, http.MethodGet, "/api/v2/characters/11/history?limit=5", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 5, chars.limit)
	assert.EqualValues(t, 1, decode(t, w)["count"])

	w = request(r, http.MethodGet, "/api/v2/characters/11/history?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = request(r, http.MethodGet, "/api/v2/characters/abc/favorability", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = request(r, http.MethodGet, "/api/v2/characters/11/favorability", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = request(r, http.MethodGet, "/api/v2/characters/11/summary", "")
	require.Equal(t, http.StatusOK, w.Code)
	summary := decode(t, w)["summary"].(map[string]any)
	assert.EqualValues(t, 3, summary["message_count"])
}

func TestDeletes(t *testing.T) {
	chars := &fakeCharacters{}
	r := newRouter(chars, &fakeTurns{}, fakeGateway{})

	w := request(r, http.MethodDelete, "/api/v2/characters/11", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 11, chars.deleted)

	chars.deleteErr = apperrors.Storage(errors.New("disk full"))
	w = request(r, http.MethodDelete, "/api/v2/characters/11", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), apperrors.CodeStorageFailure)

	w = request(r, http.MethodDelete, "/api/v2/users/7", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSendMessage(t *testing.T) {
	turns := &fakeTurns{result: &service.TurnResult{
		Success:           true,
		Reply:             "嗨",
		FavorabilityLevel: 1,
		MessageCount:      1,
		State:             service.StateDone,
	}}
	r := newRouter(&fakeCharacters{}, turns, fakeGateway{})

	w := request(r, http.MethodPost, "/api/v2/messages", `{"user_id":7,"character_id":11,"message":"哈囉"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "哈囉", turns.text)
	body := decode(t, w)
	assert.Equal(t, "嗨", body["reply"])
	assert.Equal(t, "DONE", body["state"])

	w = request(r, http.MethodPost, "/api/v2/messages", `{"user_id":7}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSendMessage_PartialFailure(t *testing.T) {
	turns := &fakeTurns{result: &service.TurnResult{
		Success:   false,
		Partial:   true,
		State:     service.StateFailed,
		LastState: service.StateContextAssembled,
		ErrorCode: apperrors.CodeGatewayFailure,
		Error:     "remote completion failed",
	}}
	r := newRouter(&fakeCharacters{}, turns, fakeGateway{})

	w := request(r, http.MethodPost, "/api/v2/messages", `{"user_id":7,"character_id":11,"message":"哈囉"}`)
	require.Equal(t, http.StatusBadGateway, w.Code)
	body := decode(t, w)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, true, body["partial"])
	assert.Equal(t, "CONTEXT_ASSEMBLED", body["last_state"])

	turns.result = nil
	turns.err = apperrors.NotFound("character not found")
	w = request(r, http.MethodPost, "/api/v2/messages", `{"user_id":7,"character_id":99,"message":"哈囉"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTurnStatus(t *testing.T) {
	assert.Equal(t, http.StatusOK, TurnStatus(&service.TurnResult{Success: true}))
	assert.Equal(t, http.StatusInternalServerError, TurnStatus(&service.TurnResult{ErrorCode: apperrors.CodeStorageFailure}))
	assert.Equal(t, http.StatusBadGateway, TurnStatus(&service.TurnResult{ErrorCode: apperrors.CodeGatewayFailure}))
	assert.Equal(t, http.StatusNotFound, TurnStatus(&service.TurnResult{ErrorCode: apperrors.CodeNotFound}))
}

func TestGatewayPing(t *testing.T) {
	r := newRouter(&fakeCharacters{}, &fakeTurns{}, fakeGateway{})
	w := request(r, http.MethodGet, "/api/v2/gateway/ping", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "SenseChat-Character", decode(t, w)["model"])

	r = newRouter(&fakeCharacters{}, &fakeTurns{}, fakeGateway{err: errors.New("timeout")})
	w = request(r, http.MethodGet, "/api/v2/gateway/ping", "")
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), apperrors.CodeGatewayFailure)
}
