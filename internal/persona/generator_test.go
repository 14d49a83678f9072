package persona

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"companion-chat/backend/internal/gateway"
	"companion-chat/backend/internal/models"
	"companion-chat/backend/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCompleter struct {
	reply string
	err   error
	got   gateway.ChatRequest
}

func (s *stubCompleter) CreateCharacterChat(_ context.Context, req gateway.ChatRequest) (*gateway.ChatResponse, error) {
	s.got = req
	if s.err != nil {
		return nil, s.err
	}
	return &gateway.ChatResponse{Reply: s.reply}, nil
}

func first(int) int { return 0 }

func sampleProfile() models.UserProfile {
	return models.UserProfile{
		UserName: "alice",
		DreamType: models.DreamType{
			TalkingStyle: "活潑開朗",
			AgeRange:     "25",
			Occupation:   "設計師",
			Interests:    []string{"攝影", "旅行", "咖啡", "爬山"},
		},
		CustomMemory: models.CustomMemory{
			Likes: map[string][]string{"food": {"拉麵"}},
		},
	}
}

func TestDetectPersonality(t *testing.T) {
	assert.Equal(t, Gentle, DetectPersonality("溫柔"))
	assert.Equal(t, Cheerful, DetectPersonality("很幽默"))
	assert.Equal(t, Intellectual, DetectPersonality("成熟穩重"))
	assert.Equal(t, Cute, DetectPersonality("俏皮"))
	assert.Equal(t, Gentle, DetectPersonality("普通"))
	// earlier groups win
	assert.Equal(t, Gentle, DetectPersonality("可愛又體貼"))
}

func TestGenerate_UsesGatewayStory(t *testing.T) {
	stub := &stubCompleter{reply: "  我是一個喜歡攝影的設計師。  "}
	g := NewGenerator(stub, 300, logger.Discard(), WithPicker(first))

	character, err := g.Generate(context.Background(), sampleProfile())
	require.NoError(t, err)

	assert.Equal(t, "欣怡", character.Name)
	assert.Equal(t, "晴晴", character.Nickname)
	assert.Equal(t, DefaultGender, character.Gender)
	assert.Equal(t, "25歲，設計師，喜歡攝影", character.Identity)
	assert.Contains(t, character.DetailSetting, "興趣愛好包括攝影、旅行、咖啡。")
	assert.Contains(t, character.DetailSetting, "會主動關心對方的喜好")
	assert.Equal(t, "我是一個喜歡攝影的設計師。", character.Settings.BackgroundStory)
	assert.Equal(t, []string{"真誠", "善良", "互相尊重", "樂觀"}, character.Settings.Values)
	assert.Equal(t, map[string][]string{"food": {"拉麵"}}, character.Settings.UserPreferences.Likes)
	assert.LessOrEqual(t, character.Settings.Length(), models.MaxSettingsLength)

	assert.Equal(t, 300, stub.got.MaxNewTokens)
	assert.Equal(t, "創作者", stub.got.RoleSetting.PrimaryBotName)
	assert.Contains(t, stub.got.Messages[0].Content, "欣怡")
}

func TestGenerate_FallsBackOnGatewayError(t *testing.T) {
	g := NewGenerator(&stubCompleter{err: errors.New("down")}, 0, logger.Discard(), WithPicker(first))

	character, err := g.Generate(context.Background(), sampleProfile())
	require.NoError(t, err)
	assert.Equal(t, "目前從事設計師的工作，平時喜歡攝影，希望能遇到一個真心相待的人。", character.Settings.BackgroundStory)
}

func TestGenerate_TruncatesLongStory(t *testing.T) {
	g := NewGenerator(&stubCompleter{reply: strings.Repeat("故", 400)}, 300, logger.Discard())

	character, err := g.Generate(context.Background(), sampleProfile())
	require.NoError(t, err)
	assert.Equal(t, maxBackgroundStoryLength, utf8.RuneCountInString(character.Settings.BackgroundStory))
	assert.True(t, strings.HasSuffix(character.Settings.BackgroundStory, "..."))
}

func TestGenerate_OversizedSettingsAreFitted(t *testing.T) {
	profile := sampleProfile()
	profile.DreamType.Interests = nil
	for i := 0; i < 200; i++ {
		profile.DreamType.Interests = append(profile.DreamType.Interests, "很長很長的興趣項目")
	}

	g := NewGenerator(nil, 300, logger.Discard())
	character, err := g.Generate(context.Background(), profile)
	require.NoError(t, err)
	assert.LessOrEqual(t, character.Settings.Length(), models.MaxSettingsLength)
	assert.Less(t, len(character.Settings.Interests), 200)
	assert.Empty(t, character.Settings.ResponseGuidelines)
}

func TestIdentityAndDetailLimits(t *testing.T) {
	dream := models.DreamType{
		TalkingStyle:        strings.Repeat("溫柔", 300),
		PhysicalDescription: strings.Repeat("高", 300),
	}
	assert.Equal(t, models.MaxIdentityLength, utf8.RuneCountInString(Identity(dream)))
	assert.Equal(t, models.MaxDetailSettingLength, utf8.RuneCountInString(DetailSetting(dream, Gentle, models.CustomMemory{})))
}

func TestInitialGreeting(t *testing.T) {
	greeting := InitialGreeting("小雨", sampleProfile())
	assert.Equal(t, "嗨！我是小雨。聽說你喜歡攝影？我也很喜歡呢！我注意到你喜歡拉麵，真巧！很高興認識你，今天過得怎麼樣？", greeting)

	bare := InitialGreeting("小雨", models.UserProfile{UserName: "bob"})
	assert.Equal(t, "嗨！我是小雨。很高興認識你，今天過得怎麼樣？", bare)
}
