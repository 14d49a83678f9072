package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"companion-chat/backend/internal/favorability"
	"companion-chat/backend/internal/gateway"
	"companion-chat/backend/internal/history"
	"companion-chat/backend/internal/models"
	"companion-chat/backend/internal/repository"
	apperrors "companion-chat/backend/pkg/errors"
	"companion-chat/backend/pkg/lock"
	"companion-chat/backend/pkg/logger"
	"companion-chat/backend/pkg/observability"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TurnState is a step of a conversation turn
type TurnState string

const (
	StateStart                TurnState = "START"
	StateUserMessagePersisted TurnState = "USER_MSG_PERSISTED"
	StateContextAssembled     TurnState = "CONTEXT_ASSEMBLED"
	StateReplyReceived        TurnState = "REPLY_RECEIVED"
	StateReplyPersisted       TurnState = "REPLY_PERSISTED"
	StateFavorabilityUpdated  TurnState = "FAVORABILITY_UPDATED"
	StateDone                 TurnState = "DONE"
	StateFailed               TurnState = "FAILED"
)

const (
	// DefaultMaxMessageLength is the longest accepted user message, in characters
	DefaultMaxMessageLength = 2000
	// DefaultMaxNewTokens is the reply budget for a conversation turn
	DefaultMaxNewTokens = 1024

	userStubGender = "男"
	userStubDetail = "用戶"
)

// TurnResult is the outcome of one turn. When Success is false the inbound
// message may already be stored (Partial) and nothing else from the turn is.
type TurnResult struct {
	Success            bool          `json:"success"`
	Reply              string        `json:"reply,omitempty"`
	FavorabilityLevel  int           `json:"favorability_level"`
	LevelIncreased     bool          `json:"level_increased"`
	MessageCount       int           `json:"message_count"`
	MilestoneReached   bool          `json:"milestone_reached"`
	MilestoneNumber    int           `json:"milestone_number"`
	AnniversaryReached bool          `json:"anniversary_reached"`
	AnniversaryDays    int           `json:"anniversary_days"`
	Usage              gateway.Usage `json:"usage"`
	// State is DONE or FAILED; LastState is the last step completed
	State            TurnState `json:"state"`
	LastState        TurnState `json:"last_state"`
	InboundMessageID uint      `json:"inbound_message_id,omitempty"`
	ReplyMessageID   uint      `json:"reply_message_id,omitempty"`
	Partial          bool      `json:"partial,omitempty"`
	Error            string    `json:"error,omitempty"`
	ErrorCode        string    `json:"error_code,omitempty"`
}

type ConversationConfig struct {
	HistoryWindow    int
	MaxMessageLength int
	MaxNewTokens     int
	Model            string
}

// ConversationService runs conversation turns. It is the only component that
// orders writes for a turn.
type ConversationService struct {
	users        repository.UserRepository
	characters   repository.CharacterRepository
	messages     repository.MessageRepository
	favorability repository.FavorabilityRepository
	assembler    *history.Assembler
	completer    gateway.Completer
	locker       lock.Locker
	metrics      *observability.TurnMetrics
	tracer       trace.Tracer
	cfg          ConversationConfig
	now          func() time.Time
}

type ConversationOption func(*ConversationService)

// WithClock replaces time.Now for message timestamps and anniversaries
func WithClock(now func() time.Time) ConversationOption {
	return func(s *ConversationService) { s.now = now }
}

func WithMetrics(m *observability.TurnMetrics) ConversationOption {
	return func(s *ConversationService) { s.metrics = m }
}

func NewConversationService(
	users repository.UserRepository,
	characters repository.CharacterRepository,
	messages repository.MessageRepository,
	favorabilityRepo repository.FavorabilityRepository,
	completer gateway.Completer,
	locker lock.Locker,
	cfg ConversationConfig,
	opts ...ConversationOption,
) *ConversationService {
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = history.DefaultWindow
	}
	if cfg.MaxMessageLength <= 0 {
		cfg.MaxMessageLength = DefaultMaxMessageLength
	}
	if cfg.MaxNewTokens <= 0 {
		cfg.MaxNewTokens = DefaultMaxNewTokens
	}
	if locker == nil {
		locker = lock.NewKeyedMutex()
	}

	s := &ConversationService{
		users:        users,
		characters:   characters,
		messages:     messages,
		favorability: favorabilityRepo,
		assembler:    history.NewAssembler(messages, cfg.HistoryWindow),
		completer:    completer,
		locker:       locker,
		metrics:      observability.NoopTurnMetrics(),
		tracer:       otel.Tracer("companion-chat/conversation"),
		cfg:          cfg,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SendMessage runs one turn: store the user's message, replay the bounded
// history to the remote API, store the reply and count the turn.
//
// Errors returned before the inbound message is stored mean nothing was
// written. Once it is stored the turn always runs to DONE or FAILED, even if
// ctx is cancelled, and failures come back as a TurnResult.
func (s *ConversationService) SendMessage(ctx context.Context, userID, characterID uint, text string) (*TurnResult, error) {
	start := s.now()
	log := logger.FromContext(ctx).WithTurn(userID, characterID)

	ctx, span := s.tracer.Start(ctx, "conversation.SendMessage", trace.WithAttributes(
		attribute.Int64("user.id", int64(userID)),
		attribute.Int64("character.id", int64(characterID)),
	))
	defer span.End()

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperrors.Validation("message must not be empty")
	}
	if n := utf8.RuneCountInString(text); n > s.cfg.MaxMessageLength {
		return nil, apperrors.Validation(fmt.Sprintf("message is %d characters, the limit is %d", n, s.cfg.MaxMessageLength))
	}

	character, err := s.characters.Get(ctx, characterID)
	if err != nil {
		return nil, mapLookup(err, "character not found")
	}
	if character.UserID != userID {
		return nil, apperrors.NotFound("character not found")
	}
	user, err := s.users.Get(ctx, userID)
	if err != nil {
		return nil, mapLookup(err, "user not found")
	}

	unlock, err := s.locker.Lock(ctx, lock.CharacterKey(characterID))
	if err != nil {
		if ctx.Err() != nil {
			return nil, apperrors.Canceled(err)
		}
		return nil, apperrors.Storage(err)
	}
	defer unlock()

	// a delete may have won the lock while this turn waited for it
	if _, err := s.characters.Get(ctx, characterID); err != nil {
		return nil, mapLookup(err, "character not found")
	}

	level := int(favorability.Level1)
	tracker, err := s.favorability.GetByCharacter(ctx, characterID)
	switch {
	case err == nil:
		level = tracker.CurrentLevel
	case errors.Is(err, repository.ErrNotFound):
		// created on first increment
	default:
		if ctx.Err() != nil {
			return nil, apperrors.Canceled(ctx.Err())
		}
		return nil, apperrors.Storage(err)
	}

	if err := ctx.Err(); err != nil {
		return nil, apperrors.Canceled(err)
	}

	// past this point the turn is not abandoned halfway
	ctx = context.WithoutCancel(ctx)

	result := &TurnResult{State: StateStart, LastState: StateStart, FavorabilityLevel: level}

	inbound := &models.Message{
		UserID:            userID,
		CharacterID:       characterID,
		SpeakerName:       user.Username,
		Content:           text,
		Timestamp:         s.now().UTC(),
		FavorabilityLevel: level,
	}
	if err := s.messages.Append(ctx, inbound); err != nil {
		log.LogError(err, "Failed to store inbound message")
		s.finish(ctx, span, start, "storage_failure", err)
		return nil, apperrors.Storage(err)
	}
	result.InboundMessageID = inbound.ID
	result.LastState = StateUserMessagePersisted

	if err := s.users.TouchLastActive(ctx, userID, inbound.Timestamp); err != nil {
		log.Warn("Failed to update last active time", "error", err.Error())
	}

	turns, err := s.assembler.Assemble(ctx, characterID)
	if err != nil {
		return s.fail(ctx, span, start, log, result, apperrors.CodeStorageFailure, err), nil
	}
	result.LastState = StateContextAssembled

	otherSetting, err := character.Settings.Encode()
	if err != nil {
		return s.fail(ctx, span, start, log, result, apperrors.CodeStorageFailure, err), nil
	}

	resp, err := s.completer.CreateCharacterChat(ctx, gateway.ChatRequest{
		Model: s.cfg.Model,
		CharacterSettings: []gateway.CharacterDescriptor{
			{Name: user.Username, Gender: userStubGender, DetailSetting: userStubDetail},
			{
				Name:          character.Name,
				Gender:        character.Gender,
				Identity:      character.Identity,
				Nickname:      character.Nickname,
				DetailSetting: character.DetailSetting,
				OtherSetting:  otherSetting,
				FeelingToward: []gateway.FeelingToward{{Name: user.Username, Level: level}},
			},
		},
		RoleSetting:  gateway.RoleSetting{UserName: user.Username, PrimaryBotName: character.Name},
		Messages:     history.ToTurns(turns),
		MaxNewTokens: s.cfg.MaxNewTokens,
		N:            1,
	})
	if err != nil {
		s.metrics.RecordGatewayFailure(ctx)
		return s.fail(ctx, span, start, log, result, apperrors.CodeGatewayFailure, err), nil
	}
	result.LastState = StateReplyReceived
	result.Reply = resp.Reply
	result.Usage = resp.Usage

	// the lock normally keeps deletes out, but a distributed lock can lapse
	// during a slow gateway call
	if _, err := s.characters.Get(ctx, characterID); err != nil {
		code := apperrors.CodeStorageFailure
		if errors.Is(err, repository.ErrNotFound) {
			code = apperrors.CodeNotFound
		}
		return s.fail(ctx, span, start, log, result, code, err), nil
	}

	reply := &models.Message{
		UserID:            userID,
		CharacterID:       characterID,
		SpeakerName:       character.Name,
		Content:           resp.Reply,
		Timestamp:         s.now().UTC(),
		FavorabilityLevel: level,
	}
	if err := s.messages.Append(ctx, reply); err != nil {
		return s.fail(ctx, span, start, log, result, apperrors.CodeStorageFailure, err), nil
	}
	result.ReplyMessageID = reply.ID
	result.LastState = StateReplyPersisted

	now := s.now().UTC()
	updated, increased, err := s.favorability.Increment(ctx, userID, characterID, now)
	if err != nil {
		return s.fail(ctx, span, start, log, result, apperrors.CodeStorageFailure, err), nil
	}
	if fresh, err := s.favorability.GetByCharacter(ctx, characterID); err == nil {
		updated = fresh
	} else {
		log.Warn("Failed to re-read favorability, using increment result", "error", err.Error())
	}
	result.LastState = StateFavorabilityUpdated
	result.FavorabilityLevel = updated.CurrentLevel
	result.LevelIncreased = increased
	result.MessageCount = updated.MessageCount

	if m, ok := favorability.MilestoneReached(updated.MessageCount); ok {
		result.MilestoneReached = true
		result.MilestoneNumber = m
		s.metrics.RecordMilestone(ctx, m)
	}
	if first, err := s.messages.First(ctx, characterID); err == nil {
		if d, ok := favorability.AnniversaryReached(favorability.DaysSince(first.Timestamp, now)); ok {
			result.AnniversaryReached = true
			result.AnniversaryDays = d
			s.metrics.RecordAnniversary(ctx, d)
		}
	} else {
		log.Warn("Failed to read first message for anniversary", "error", err.Error())
	}
	if increased {
		s.metrics.RecordLevelUp(ctx, updated.CurrentLevel)
		log.Info("Favorability level increased", "level", updated.CurrentLevel, "message_count", updated.MessageCount)
	}

	result.Success = true
	result.State = StateDone
	span.SetAttributes(
		attribute.Int("favorability.level", result.FavorabilityLevel),
		attribute.Int("favorability.message_count", result.MessageCount),
	)
	s.finish(ctx, span, start, "success", nil)
	return result, nil
}

func (s *ConversationService) fail(ctx context.Context, span trace.Span, start time.Time, log *logger.Logger, result *TurnResult, code string, err error) *TurnResult {
	log.LogError(err, "Conversation turn failed", "last_state", string(result.LastState), "code", code)

	result.Success = false
	result.State = StateFailed
	result.Partial = true
	result.Error = err.Error()
	result.ErrorCode = code

	outcome := "storage_failure"
	switch code {
	case apperrors.CodeGatewayFailure:
		outcome = "gateway_failure"
	case apperrors.CodeNotFound:
		outcome = "not_found"
	}
	s.finish(ctx, span, start, outcome, err)
	return result
}

func (s *ConversationService) finish(ctx context.Context, span trace.Span, start time.Time, outcome string, err error) {
	span.SetAttributes(attribute.String("turn.outcome", outcome))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	s.metrics.RecordTurn(ctx, outcome, s.now().Sub(start))
}
