// Package persona turns a user's stated preferences into a character: name,
// identity, detail setting and the structured settings record replayed to the
// remote API on every turn.
package persona

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"

	"companion-chat/backend/internal/gateway"
	"companion-chat/backend/internal/models"
	"companion-chat/backend/pkg/logger"
)

const (
	// DefaultGender is used until the profile carries a preference
	DefaultGender = "女"

	maxBackgroundStoryLength = 200
	relationshipGoals        = "建立深厚的情感連結，互相理解和支持"
	languageRule             = "【必須使用繁體中文】對話時會加入生動的動作和表情描述(用括號標註)，讓互動更真實有溫度。"
)

var responseGuidelines = []string{
	"【重要】必須使用繁體中文回應，絕對不可使用簡體中文",
	"在回應中加入生動的動作和表情描述，使用括號標註，例如：(噗嗤一笑，眼裡閃爍著狡黠的光芒)、(靠近你的耳邊，輕聲細語)、(輕輕握住你的手)",
	"讓回應更有人情味和生命力，表現出真實的情感和反應",
	"自然地提及用戶的喜好和習慣",
	"保持人設一致性",
	"根據好感度調整親密程度和互動方式",
	"記住之前的對話內容，展現連貫性",
	"在對話中自然融入自己的背景故事",
}

// Generator builds characters. With a nil Completer the background story is
// always the template fallback.
type Generator struct {
	completer    gateway.Completer
	maxNewTokens int
	pick         func(n int) int
	log          *logger.Logger
}

type Option func(*Generator)

// WithPicker replaces the random choice of names and nicknames
func WithPicker(pick func(n int) int) Option {
	return func(g *Generator) { g.pick = pick }
}

func NewGenerator(completer gateway.Completer, maxNewTokens int, log *logger.Logger, opts ...Option) *Generator {
	if maxNewTokens <= 0 {
		maxNewTokens = 300
	}
	if log == nil {
		log = logger.GetGlobal()
	}
	g := &Generator{
		completer:    completer,
		maxNewTokens: maxNewTokens,
		pick:         rand.IntN,
		log:          log.With("component", "persona"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate builds an unsaved character for profile. It fails only when the
// settings cannot be brought under the size cap.
func (g *Generator) Generate(ctx context.Context, profile models.UserProfile) (*models.Character, error) {
	dream := profile.DreamType
	personality := DetectPersonality(dream.TalkingStyle)
	name := g.choose(names[personality])

	settings := models.CharacterSettings{
		Interests:          dream.Interests,
		BackgroundStory:    g.backgroundStory(ctx, name, personality, dream),
		Values:             Values(dream.TalkingStyle),
		CommunicationStyle: dream.TalkingStyle,
		RelationshipGoals:  relationshipGoals,
		UserPreferences: models.PreferenceSnapshot{
			Likes:    profile.CustomMemory.Likes,
			Dislikes: profile.CustomMemory.Dislikes,
			Habits:   profile.CustomMemory.Habits,
		},
		ResponseGuidelines: append([]string(nil), responseGuidelines...),
	}
	fitted, err := settings.Fit()
	if err != nil {
		return nil, err
	}

	return &models.Character{
		Name:          name,
		Gender:        DefaultGender,
		Identity:      Identity(dream),
		Nickname:      g.choose(nicknames[personality]),
		DetailSetting: DetailSetting(dream, personality, profile.CustomMemory),
		Settings:      fitted,
	}, nil
}

func (g *Generator) choose(options []string) string {
	if len(options) == 0 {
		return ""
	}
	return options[g.pick(len(options))]
}

// Identity is the one-line self description, at most 200 characters
func Identity(dream models.DreamType) string {
	var parts []string
	if dream.AgeRange != "" {
		parts = append(parts, dream.AgeRange+"歲")
	}
	if dream.Occupation != "" {
		parts = append(parts, dream.Occupation)
	}
	if dream.PhysicalDescription != "" {
		parts = append(parts, dream.PhysicalDescription)
	}
	if len(dream.Interests) > 0 {
		parts = append(parts, "喜歡"+dream.Interests[0])
	}
	return models.Truncate(strings.Join(parts, "，"), models.MaxIdentityLength)
}

// DetailSetting describes temperament and speech, at most 500 characters
func DetailSetting(dream models.DreamType, personality Personality, memory models.CustomMemory) string {
	var b strings.Builder
	b.WriteString(descriptions[personality])
	fmt.Fprintf(&b, "說話風格：%s。", dream.TalkingStyle)
	if len(dream.Interests) > 0 {
		top := dream.Interests
		if len(top) > 3 {
			top = top[:3]
		}
		fmt.Fprintf(&b, "興趣愛好包括%s。", strings.Join(top, "、"))
	}
	if len(memory.Likes) > 0 {
		b.WriteString("會主動關心對方的喜好，並嘗試參與。")
	}
	b.WriteString(languageRule)
	return models.Truncate(b.String(), models.MaxDetailSettingLength)
}

func (g *Generator) backgroundStory(ctx context.Context, name string, personality Personality, dream models.DreamType) string {
	if g.completer == nil {
		return SimpleBackgroundStory(dream)
	}

	const (
		system  = "系統"
		creator = "創作者"
	)
	resp, err := g.completer.CreateCharacterChat(ctx, gateway.ChatRequest{
		CharacterSettings: []gateway.CharacterDescriptor{
			{Name: system, Gender: "中性", DetailSetting: "專業的故事創作助手"},
			{Name: creator, Gender: "中性", DetailSetting: "擅長創作有趣的角色背景故事"},
		},
		RoleSetting:  gateway.RoleSetting{UserName: system, PrimaryBotName: creator},
		Messages:     []gateway.Turn{{Name: system, Content: storyPrompt(name, personality, dream)}},
		MaxNewTokens: g.maxNewTokens,
	})
	if err != nil {
		g.log.Warn("Background story generation failed, using template", "error", err.Error())
		return SimpleBackgroundStory(dream)
	}
	return models.Truncate(strings.TrimSpace(resp.Reply), maxBackgroundStoryLength)
}

func storyPrompt(name string, personality Personality, dream models.DreamType) string {
	interests := "閱讀和音樂"
	if len(dream.Interests) > 0 {
		interests = strings.Join(dream.Interests, "、")
	}
	age := dream.AgeRange
	if age == "" {
		age = "20多歲"
	}
	occupation := dream.Occupation
	if occupation == "" {
		occupation = "年輕專業人士"
	}

	return fmt.Sprintf(`請為一位名叫%s的角色創作一個簡短但有趣的背景故事（150字以內，繁體中文）。

角色設定：
- 性格：%s
- 年齡：%s
- 職業：%s
- 興趣：%s
- 說話風格：%s

要求：
1. 故事要有趣且有個性，不要太平淡
2. 包含一些生活細節和小故事
3. 展現角色的性格特點
4. 以第一人稱（我）的方式敘述
5. 不要超過150字

請直接輸出背景故事，不需要其他說明。`, name, labels[personality], age, occupation, interests, dream.TalkingStyle)
}

// SimpleBackgroundStory is the template story used when generation is unavailable
func SimpleBackgroundStory(dream models.DreamType) string {
	var parts []string
	if dream.Occupation != "" {
		parts = append(parts, "目前從事"+dream.Occupation+"的工作")
	}
	if len(dream.Interests) > 0 {
		parts = append(parts, "平時喜歡"+dream.Interests[0])
	}
	parts = append(parts, "希望能遇到一個真心相待的人")
	return strings.Join(parts, "，") + "。"
}

// InitialGreeting is the character's first message to the user
func InitialGreeting(characterName string, profile models.UserProfile) string {
	var b strings.Builder
	fmt.Fprintf(&b, "嗨！我是%s。", characterName)

	if len(profile.DreamType.Interests) > 0 {
		fmt.Fprintf(&b, "聽說你喜歡%s？我也很喜歡呢！", profile.DreamType.Interests[0])
	}

	// first non-empty category in a stable order
	categories := make([]string, 0, len(profile.CustomMemory.Likes))
	for category := range profile.CustomMemory.Likes {
		categories = append(categories, category)
	}
	sort.Strings(categories)
	for _, category := range categories {
		if items := profile.CustomMemory.Likes[category]; len(items) > 0 {
			fmt.Fprintf(&b, "我注意到你喜歡%s，真巧！", items[0])
			break
		}
	}

	b.WriteString("很高興認識你，今天過得怎麼樣？")
	return b.String()
}
