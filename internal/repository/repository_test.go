package repository

import (
	"context"
	"testing"
	"time"

	"companion-chat/backend/internal/models"
	"companion-chat/backend/pkg/config"
	"companion-chat/backend/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := config.NewDB(config.DatabaseConfig{Driver: "sqlite", Path: ":memory:", Retries: 1}, logger.Discard())
	require.NoError(t, err)
	require.NoError(t, Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

type fixture struct {
	db           *gorm.DB
	users        *GormUserRepository
	characters   *GormCharacterRepository
	messages     *GormMessageRepository
	favorability *GormFavorabilityRepository
}

func newFixture(t *testing.T) *fixture {
	db := openTestDB(t)
	return &fixture{
		db:           db,
		users:        NewGormUserRepository(db),
		characters:   NewGormCharacterRepository(db),
		messages:     NewGormMessageRepository(db),
		favorability: NewGormFavorabilityRepository(db),
	}
}

func (f *fixture) seedCharacter(t *testing.T, username, name string) (*models.User, *models.Character) {
	t.Helper()
	ctx := context.Background()
	user, err := f.users.GetOrCreate(ctx, username)
	require.NoError(t, err)
	character := &models.Character{UserID: user.ID, Name: name, Gender: "女"}
	require.NoError(t, f.characters.Create(ctx, character))
	return user, character
}

func TestUserRepository_GetOrCreateIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.users.GetOrCreate(ctx, "alice")
	require.NoError(t, err)
	second, err := f.users.GetOrCreate(ctx, "alice")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.False(t, first.LastActive.IsZero())

	_, err = f.users.Get(ctx, 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUserRepository_TouchLastActive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user, err := f.users.GetOrCreate(ctx, "bob")
	require.NoError(t, err)

	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, f.users.TouchLastActive(ctx, user.ID, at))

	got, err := f.users.Get(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, got.LastActive.Equal(at))

	assert.ErrorIs(t, f.users.TouchLastActive(ctx, 4242, at), ErrNotFound)
}

func TestCharacterRepository_CreateAlsoCreatesTracker(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, character := f.seedCharacter(t, "alice", "小雨")

	tracker, err := f.favorability.GetByCharacter(ctx, character.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, tracker.CurrentLevel)
	assert.Equal(t, 0, tracker.MessageCount)
}

func TestCharacterRepository_SettingsRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user, err := f.users.GetOrCreate(ctx, "alice")
	require.NoError(t, err)

	character := &models.Character{
		UserID: user.ID,
		Name:   "小雨",
		Gender: "女",
		Settings: models.CharacterSettings{
			Interests:       []string{"閱讀", "音樂"},
			BackgroundStory: "在咖啡館長大",
		},
	}
	require.NoError(t, f.characters.Create(ctx, character))

	got, err := f.characters.Get(ctx, character.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"閱讀", "音樂"}, got.Settings.Interests)
	assert.Equal(t, "在咖啡館長大", got.Settings.BackgroundStory)
}

func TestCharacterRepository_ListByUserNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user, _ := f.seedCharacter(t, "alice", "first")
	second := &models.Character{UserID: user.ID, Name: "second", Gender: "女"}
	require.NoError(t, f.characters.Create(ctx, second))
	f.seedCharacter(t, "someone-else", "other")

	list, err := f.characters.ListByUser(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "second", list[0].Name)
	assert.Equal(t, "first", list[1].Name)
}

func TestMessageRepository_ListByCharacterTailLimited(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user, character := f.seedCharacter(t, "alice", "小雨")

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 1; i <= 10; i++ {
		require.NoError(t, f.messages.Append(ctx, &models.Message{
			UserID:      user.ID,
			CharacterID: character.ID,
			SpeakerName: "alice",
			Content:     string(rune('a' + i - 1)),
			Timestamp:   base.Add(time.Duration(i) * time.Second),
		}))
	}

	tail, err := f.messages.ListByCharacter(ctx, character.ID, 3)
	require.NoError(t, err)
	require.Len(t, tail, 3)
	assert.Equal(t, []string{"h", "i", "j"}, contents(tail))

	all, err := f.messages.ListByCharacter(ctx, character.ID, 0)
	require.NoError(t, err)
	assert.Len(t, all, 10)

	count, err := f.messages.Count(ctx, character.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 10, count)

	first, err := f.messages.First(ctx, character.ID)
	require.NoError(t, err)
	assert.Equal(t, "a", first.Content)
}

func TestMessageRepository_TimestampsNeverGoBackwards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user, character := f.seedCharacter(t, "alice", "小雨")

	later := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, f.messages.Append(ctx, &models.Message{
		UserID: user.ID, CharacterID: character.ID, SpeakerName: "alice", Content: "one", Timestamp: later,
	}))
	// clock stepped backwards
	require.NoError(t, f.messages.Append(ctx, &models.Message{
		UserID: user.ID, CharacterID: character.ID, SpeakerName: "小雨", Content: "two", Timestamp: later.Add(-time.Minute),
	}))

	msgs, err := f.messages.ListByCharacter(ctx, character.ID, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, []string{"one", "two"}, contents(msgs))
	assert.False(t, msgs[1].Timestamp.Before(msgs[0].Timestamp))
}

func TestMessageRepository_FirstMissing(t *testing.T) {
	f := newFixture(t)
	_, err := f.messages.First(context.Background(), 77)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFavorabilityRepository_IncrementRecomputesLevel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user, character := f.seedCharacter(t, "alice", "小雨")
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	var increases []int
	for i := 1; i <= 55; i++ {
		tracker, increased, err := f.favorability.Increment(ctx, user.ID, character.ID, now)
		require.NoError(t, err)
		require.Equal(t, i, tracker.MessageCount)
		if increased {
			increases = append(increases, tracker.MessageCount)
		}
	}
	assert.Equal(t, []int{20, 50}, increases)

	stored, err := f.favorability.GetByCharacter(ctx, character.ID)
	require.NoError(t, err)
	assert.Equal(t, 55, stored.MessageCount)
	assert.Equal(t, 3, stored.CurrentLevel)
	assert.True(t, stored.LastUpdated.Equal(now))
}

func TestFavorabilityRepository_IncrementCreatesMissingTracker(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user, character := f.seedCharacter(t, "alice", "小雨")
	require.NoError(t, f.db.Where("character_id = ?", character.ID).Delete(&models.FavorabilityTracker{}).Error)

	tracker, increased, err := f.favorability.Increment(ctx, user.ID, character.ID, time.Now())
	require.NoError(t, err)
	assert.False(t, increased)
	assert.Equal(t, 1, tracker.MessageCount)
	assert.Equal(t, 1, tracker.CurrentLevel)
}

func TestFavorabilityRepository_IncrementRefusesDeletedCharacter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user, character := f.seedCharacter(t, "alice", "小雨")
	require.NoError(t, f.characters.Delete(ctx, character.ID))

	_, _, err := f.favorability.Increment(ctx, user.ID, character.ID, time.Now())
	assert.ErrorIs(t, err, ErrNotFound)

	var trackers int64
	require.NoError(t, f.db.Model(&models.FavorabilityTracker{}).Where("character_id = ?", character.ID).Count(&trackers).Error)
	assert.Zero(t, trackers)
}

func TestCharacterRepository_DeleteCascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user, character := f.seedCharacter(t, "alice", "小雨")
	_, keep := f.seedCharacter(t, "alice", "留下")

	for _, cid := range []uint{character.ID, keep.ID} {
		require.NoError(t, f.messages.Append(ctx, &models.Message{
			UserID: user.ID, CharacterID: cid, SpeakerName: "alice", Content: "hi", Timestamp: time.Now(),
		}))
	}

	require.NoError(t, f.characters.Delete(ctx, character.ID))

	assertNoRows(t, f.db, &models.Message{}, "character_id = ?", character.ID)
	assertNoRows(t, f.db, &models.FavorabilityTracker{}, "character_id = ?", character.ID)
	_, err := f.characters.Get(ctx, character.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	count, err := f.messages.Count(ctx, keep.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	assert.ErrorIs(t, f.characters.Delete(ctx, character.ID), ErrNotFound)
}

func TestUserRepository_DeleteCascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user, c1 := f.seedCharacter(t, "alice", "one")
	_, c2 := f.seedCharacter(t, "alice", "two")
	other, c3 := f.seedCharacter(t, "carol", "three")

	for _, cid := range []uint{c1.ID, c2.ID, c3.ID} {
		require.NoError(t, f.messages.Append(ctx, &models.Message{
			UserID: user.ID, CharacterID: cid, SpeakerName: "x", Content: "hi", Timestamp: time.Now(),
		}))
	}

	require.NoError(t, f.users.Delete(ctx, user.ID))

	assertNoRows(t, f.db, &models.Character{}, "user_id = ?", user.ID)
	assertNoRows(t, f.db, &models.Message{}, "character_id IN ?", []uint{c1.ID, c2.ID})
	assertNoRows(t, f.db, &models.FavorabilityTracker{}, "character_id IN ?", []uint{c1.ID, c2.ID})

	_, err := f.users.Get(ctx, other.ID)
	assert.NoError(t, err)
	_, err = f.favorability.GetByCharacter(ctx, c3.ID)
	assert.NoError(t, err)
}

func assertNoRows(t *testing.T, db *gorm.DB, model any, query string, args ...any) {
	t.Helper()
	var count int64
	require.NoError(t, db.Model(model).Where(query, args...).Count(&count).Error)
	assert.Zero(t, count)
}

func contents(msgs []models.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Content
	}
	return out
}
