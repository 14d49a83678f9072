package persona

import "strings"

// Personality is the broad temperament a character is generated with
type Personality string

const (
	Gentle       Personality = "gentle"
	Cheerful     Personality = "cheerful"
	Intellectual Personality = "intellectual"
	Cute         Personality = "cute"
)

// keywords are checked in this order; the first match wins
var keywords = []struct {
	personality Personality
	words       []string
}{
	{Gentle, []string{"溫柔", "體貼", "細心"}},
	{Cheerful, []string{"活潑", "開朗", "幽默"}},
	{Intellectual, []string{"知性", "優雅", "成熟"}},
	{Cute, []string{"可愛", "天真", "俏皮"}},
}

var names = map[Personality][]string{
	Gentle:       {"小雨", "婉婷", "雨柔", "思婷", "靜雯"},
	Cheerful:     {"欣怡", "小晴", "樂瑤", "晴心", "悅欣"},
	Intellectual: {"雅文", "靜儀", "書涵", "詩涵", "慧雯"},
	Cute:         {"小萌", "甜心", "可兒", "糖糖", "小柔"},
}

var nicknames = map[Personality][]string{
	Gentle:       {"小雨", "柔柔", "雨雨"},
	Cheerful:     {"晴晴", "小陽光", "開心果"},
	Intellectual: {"雅雅", "小書蟲", "文文"},
	Cute:         {"小可愛", "甜甜", "萌萌"},
}

var descriptions = map[Personality]string{
	Gentle:       "性格溫柔體貼，說話輕聲細語，總是關心對方的感受。喜歡用溫暖的話語鼓勵人，細心觀察對方的需要。",
	Cheerful:     "性格活潑開朗，充滿活力和熱情。說話時常帶著笑容，喜歡用輕鬆幽默的方式交流。",
	Intellectual: "性格知性優雅，談吐有內涵。喜歡深度交流，對文化藝術有獨特見解，說話條理清晰。",
	Cute:         "性格可愛天真，充滿好奇心。說話俏皮可愛，常常用天真的角度看世界，讓人感到溫暖。",
}

var labels = map[Personality]string{
	Gentle:       "溫柔體貼",
	Cheerful:     "活潑開朗",
	Intellectual: "知性優雅",
	Cute:         "可愛天真",
}

// DetectPersonality maps a free-form talking style to a personality, defaulting to Gentle
func DetectPersonality(talkingStyle string) Personality {
	style := strings.ToLower(talkingStyle)
	for _, k := range keywords {
		for _, w := range k.words {
			if strings.Contains(style, w) {
				return k.personality
			}
		}
	}
	return Gentle
}

// Values are the character's core values; a few extra follow from the talking style
func Values(talkingStyle string) []string {
	values := []string{"真誠", "善良", "互相尊重"}
	if strings.Contains(talkingStyle, "溫柔") {
		values = append(values, "關懷")
	}
	if strings.Contains(talkingStyle, "活潑") {
		values = append(values, "樂觀")
	}
	if strings.Contains(talkingStyle, "知性") {
		values = append(values, "智慧")
	}
	return values
}
