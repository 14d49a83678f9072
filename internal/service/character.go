package service

import (
	"context"
	"errors"
	"slices"
	"time"

	"companion-chat/backend/internal/favorability"
	"companion-chat/backend/internal/models"
	"companion-chat/backend/internal/persona"
	"companion-chat/backend/internal/repository"
	apperrors "companion-chat/backend/pkg/errors"
	"companion-chat/backend/pkg/lock"
	"companion-chat/backend/pkg/logger"
)

// DefaultHistoryLimit is how many messages the history view returns when no limit is given
const DefaultHistoryLimit = 50

// CreatedCharacter is what character creation hands back to the caller
type CreatedCharacter struct {
	UserID            uint              `json:"user_id"`
	Character         *models.Character `json:"character"`
	InitialMessage    string            `json:"initial_message"`
	FavorabilityLevel int               `json:"favorability_level"`
}

// FavorabilityStatus is the relationship view for one character
type FavorabilityStatus struct {
	CharacterID uint                  `json:"character_id"`
	LastUpdated time.Time             `json:"last_updated"`
	Progress    favorability.Progress `json:"progress"`
}

// ConversationSummary is the statistics view for one character
type ConversationSummary struct {
	CharacterID       uint       `json:"character_id"`
	CharacterName     string     `json:"character_name"`
	MessageCount      int64      `json:"message_count"`
	TurnCount         int        `json:"turn_count"`
	FavorabilityLevel int        `json:"favorability_level"`
	FirstMessageAt    *time.Time `json:"first_message_at,omitempty"`
	DaysSinceFirst    int        `json:"days_since_first"`
	LastUpdated       *time.Time `json:"last_updated,omitempty"`
}

type CharacterService struct {
	users        repository.UserRepository
	characters   repository.CharacterRepository
	messages     repository.MessageRepository
	favorability repository.FavorabilityRepository
	generator    *persona.Generator
	locker       lock.Locker
	historyLimit int
	now          func() time.Time
}

func NewCharacterService(
	users repository.UserRepository,
	characters repository.CharacterRepository,
	messages repository.MessageRepository,
	favorabilityRepo repository.FavorabilityRepository,
	generator *persona.Generator,
	locker lock.Locker,
	historyLimit int,
) *CharacterService {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	if locker == nil {
		locker = lock.NewKeyedMutex()
	}
	return &CharacterService{
		users:        users,
		characters:   characters,
		messages:     messages,
		favorability: favorabilityRepo,
		generator:    generator,
		locker:       locker,
		historyLimit: historyLimit,
		now:          time.Now,
	}
}

// CreateCharacter generates a character for the profile's user, creating the
// user on first use, and stores the character's greeting. The greeting is not
// a turn and does not count toward favorability.
func (s *CharacterService) CreateCharacter(ctx context.Context, profile models.UserProfile) (*CreatedCharacter, error) {
	if profile.UserName == "" {
		return nil, apperrors.Validation("user_name is required")
	}
	if profile.DreamType.TalkingStyle == "" {
		return nil, apperrors.Validation("dream_type.talking_style is required")
	}
	log := logger.FromContext(ctx)

	user, err := s.users.GetOrCreate(ctx, profile.UserName)
	if err != nil {
		return nil, apperrors.Storage(err)
	}

	character, err := s.generator.Generate(ctx, profile)
	if err != nil {
		if errors.Is(err, models.ErrSettingsTooLarge) {
			return nil, apperrors.Validation("profile is too large to build a character from").Wrap(err)
		}
		return nil, apperrors.NewInternalServerError(apperrors.CodeInternal, "character generation failed").Wrap(err)
	}
	character.UserID = user.ID

	if err := s.characters.Create(ctx, character); err != nil {
		return nil, apperrors.Storage(err)
	}

	greeting := persona.InitialGreeting(character.Name, profile)
	err = s.messages.Append(ctx, &models.Message{
		UserID:            user.ID,
		CharacterID:       character.ID,
		SpeakerName:       character.Name,
		Content:           greeting,
		Timestamp:         s.now().UTC(),
		FavorabilityLevel: int(favorability.Level1),
	})
	if err != nil {
		return nil, apperrors.Storage(err)
	}

	log.Info("Character created", "user_id", user.ID, "character_id", character.ID, "name", character.Name)
	return &CreatedCharacter{
		UserID:            user.ID,
		Character:         character,
		InitialMessage:    greeting,
		FavorabilityLevel: int(favorability.Level1),
	}, nil
}

func (s *CharacterService) GetCharacter(ctx context.Context, id uint) (*models.Character, error) {
	character, err := s.characters.Get(ctx, id)
	if err != nil {
		return nil, mapLookup(err, "character not found")
	}
	return character, nil
}

// ListUserCharacters returns the user's characters newest first with their current level
func (s *CharacterService) ListUserCharacters(ctx context.Context, userID uint) ([]models.CharacterSummary, error) {
	if _, err := s.users.Get(ctx, userID); err != nil {
		return nil, mapLookup(err, "user not found")
	}

	characters, err := s.characters.ListByUser(ctx, userID)
	if err != nil {
		return nil, apperrors.Storage(err)
	}

	summaries := make([]models.CharacterSummary, 0, len(characters))
	for _, c := range characters {
		level := int(favorability.Level1)
		tracker, err := s.favorability.GetByCharacter(ctx, c.ID)
		if err == nil {
			level = tracker.CurrentLevel
		} else if !errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.Storage(err)
		}
		summaries = append(summaries, models.CharacterSummary{
			ID:           c.ID,
			Name:         c.Name,
			Nickname:     c.Nickname,
			CreatedAt:    c.CreatedAt,
			Favorability: level,
		})
	}
	return summaries, nil
}

// History returns the last limit messages in chronological order
func (s *CharacterService) History(ctx context.Context, characterID uint, limit int) ([]models.Message, error) {
	if _, err := s.characters.Get(ctx, characterID); err != nil {
		return nil, mapLookup(err, "character not found")
	}
	if limit <= 0 {
		limit = s.historyLimit
	}
	messages, err := s.messages.ListByCharacter(ctx, characterID, limit)
	if err != nil {
		return nil, apperrors.Storage(err)
	}
	return messages, nil
}

func (s *CharacterService) FavorabilityStatus(ctx context.Context, characterID uint) (*FavorabilityStatus, error) {
	tracker, err := s.favorability.GetByCharacter(ctx, characterID)
	if err != nil {
		return nil, mapLookup(err, "favorability record not found")
	}
	return &FavorabilityStatus{
		CharacterID: characterID,
		LastUpdated: tracker.LastUpdated,
		Progress:    favorability.ProgressFor(tracker.MessageCount),
	}, nil
}

func (s *CharacterService) Summary(ctx context.Context, characterID uint) (*ConversationSummary, error) {
	character, err := s.characters.Get(ctx, characterID)
	if err != nil {
		return nil, mapLookup(err, "character not found")
	}

	count, err := s.messages.Count(ctx, characterID)
	if err != nil {
		return nil, apperrors.Storage(err)
	}

	summary := &ConversationSummary{
		CharacterID:       characterID,
		CharacterName:     character.Name,
		MessageCount:      count,
		FavorabilityLevel: int(favorability.Level1),
	}

	tracker, err := s.favorability.GetByCharacter(ctx, characterID)
	switch {
	case err == nil:
		summary.FavorabilityLevel = tracker.CurrentLevel
		summary.TurnCount = tracker.MessageCount
		updated := tracker.LastUpdated
		summary.LastUpdated = &updated
	case !errors.Is(err, repository.ErrNotFound):
		return nil, apperrors.Storage(err)
	}

	first, err := s.messages.First(ctx, characterID)
	switch {
	case err == nil:
		ts := first.Timestamp
		summary.FirstMessageAt = &ts
		summary.DaysSinceFirst = favorability.DaysSince(ts, s.now())
	case !errors.Is(err, repository.ErrNotFound):
		return nil, apperrors.Storage(err)
	}

	return summary, nil
}

// DeleteCharacter removes the character with its messages and tracker. It
// waits for any running turn on the character to finish first.
func (s *CharacterService) DeleteCharacter(ctx context.Context, characterID uint) error {
	unlock, err := s.lockCharacters(ctx, []uint{characterID})
	if err != nil {
		return err
	}
	defer unlock()

	if err := s.characters.Delete(ctx, characterID); err != nil {
		return mapLookup(err, "character not found")
	}
	logger.FromContext(ctx).Info("Character deleted", "character_id", characterID)
	return nil
}

// DeleteUser removes the user and everything it owns, holding the lock of
// every owned character for the duration.
func (s *CharacterService) DeleteUser(ctx context.Context, userID uint) error {
	if _, err := s.users.Get(ctx, userID); err != nil {
		return mapLookup(err, "user not found")
	}
	characters, err := s.characters.ListByUser(ctx, userID)
	if err != nil {
		return apperrors.Storage(err)
	}
	ids := make([]uint, 0, len(characters))
	for _, c := range characters {
		ids = append(ids, c.ID)
	}

	unlock, err := s.lockCharacters(ctx, ids)
	if err != nil {
		return err
	}
	defer unlock()

	if err := s.users.Delete(ctx, userID); err != nil {
		return mapLookup(err, "user not found")
	}
	logger.FromContext(ctx).Info("User deleted", "user_id", userID, "characters", len(ids))
	return nil
}

// lockCharacters takes the turn lock of each character in ascending id order
// and returns a function releasing all of them.
func (s *CharacterService) lockCharacters(ctx context.Context, ids []uint) (lock.Unlock, error) {
	ids = slices.Clone(ids)
	slices.Sort(ids)

	held := make([]lock.Unlock, 0, len(ids))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i]()
		}
	}
	for _, id := range ids {
		unlock, err := s.locker.Lock(ctx, lock.CharacterKey(id))
		if err != nil {
			release()
			if ctx.Err() != nil {
				return nil, apperrors.Canceled(err)
			}
			return nil, apperrors.Storage(err)
		}
		held = append(held, unlock)
	}
	return release, nil
}

func mapLookup(err error, notFound string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NotFound(notFound)
	}
	return apperrors.Storage(err)
}
