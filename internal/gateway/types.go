package gateway

import "fmt"

// FeelingToward is a character's relationship level toward another participant
type FeelingToward struct {
	Name  string `json:"name"`
	Level int    `json:"level"`
}

// CharacterDescriptor describes one participant. The user takes part as a
// minimal descriptor of its own.
type CharacterDescriptor struct {
	Name          string          `json:"name"`
	Gender        string          `json:"gender"`
	Identity      string          `json:"identity,omitempty"`
	Nickname      string          `json:"nickname,omitempty"`
	DetailSetting string          `json:"detail_setting,omitempty"`
	OtherSetting  string          `json:"other_setting,omitempty"`
	FeelingToward []FeelingToward `json:"feeling_toward,omitempty"`
}

// RoleSetting tells the remote side which descriptor is the user and which one speaks
type RoleSetting struct {
	UserName       string `json:"user_name"`
	PrimaryBotName string `json:"primary_bot_name"`
}

// Turn is one prior utterance, attributed by speaker name
type Turn struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

type ChatRequest struct {
	Model             string                `json:"model"`
	CharacterSettings []CharacterDescriptor `json:"character_settings"`
	RoleSetting       RoleSetting           `json:"role_setting"`
	Messages          []Turn                `json:"messages"`
	MaxNewTokens      int                   `json:"max_new_tokens"`
	N                 int                   `json:"n"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type ChatResponse struct {
	Reply string `json:"reply"`
	Usage Usage  `json:"usage"`
}

type apiError struct {
	Code    any    `json:"code"`
	Message string `json:"message"`
}

func (e *apiError) code() string {
	if e.Code == nil {
		return ""
	}
	return fmt.Sprint(e.Code)
}

type apiResponse struct {
	Data  *ChatResponse `json:"data"`
	Error *apiError     `json:"error"`
}
