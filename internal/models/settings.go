package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"unicode/utf8"
)

// MaxSettingsLength caps the serialized CharacterSettings, counted in characters
const MaxSettingsLength = 2000

// backgroundStoryShortLength is how much of the story survives the first truncation pass
const backgroundStoryShortLength = 100

// ErrSettingsTooLarge is returned when truncation cannot bring the settings under the cap
var ErrSettingsTooLarge = errors.New("character settings exceed size cap")

// PreferenceSnapshot is the copy of the user's likes, dislikes and habits the
// character was generated with
type PreferenceSnapshot struct {
	Likes    map[string][]string `json:"likes,omitempty"`
	Dislikes map[string][]string `json:"dislikes,omitempty"`
	Habits   map[string][]string `json:"habits,omitempty"`
}

// CharacterSettings is the structured persona record sent to the completion
// API as other_setting
type CharacterSettings struct {
	Interests          []string           `json:"interests,omitempty"`
	BackgroundStory    string             `json:"background_story,omitempty"`
	Values             []string           `json:"values,omitempty"`
	CommunicationStyle string             `json:"communication_style,omitempty"`
	RelationshipGoals  string             `json:"relationship_goals,omitempty"`
	UserPreferences    PreferenceSnapshot `json:"user_preferences_awareness"`
	ResponseGuidelines []string           `json:"response_guidelines,omitempty"`
}

// Encode serializes the settings without HTML escaping
func (s CharacterSettings) Encode() (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return "", err
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

// Length is the serialized size in characters
func (s CharacterSettings) Length() int {
	encoded, err := s.Encode()
	if err != nil {
		return 0
	}
	return utf8.RuneCountInString(encoded)
}

// Fit returns a copy that serializes within MaxSettingsLength. The background
// story is shortened first, then response guidelines are dropped from the end,
// then interests and values.
func (s CharacterSettings) Fit() (CharacterSettings, error) {
	if s.Length() <= MaxSettingsLength {
		return s, nil
	}

	s.BackgroundStory = Truncate(s.BackgroundStory, backgroundStoryShortLength)
	if s.Length() <= MaxSettingsLength {
		return s, nil
	}

	for _, list := range []*[]string{&s.ResponseGuidelines, &s.Interests, &s.Values} {
		// work on a copy so the caller's slices are untouched
		*list = append([]string(nil), (*list)...)
		for len(*list) > 0 {
			*list = (*list)[:len(*list)-1]
			if s.Length() <= MaxSettingsLength {
				return s, nil
			}
		}
	}

	return s, ErrSettingsTooLarge
}

// Truncate shortens s to at most max characters, marking the cut with "..."
func Truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}
