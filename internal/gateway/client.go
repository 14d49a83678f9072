// Package gateway talks to the remote character chat completion API. The API
// is stateless: every call carries the participants, the role mapping and the
// conversation so far.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"companion-chat/backend/pkg/jwt"
	"companion-chat/backend/pkg/logger"
	"companion-chat/backend/pkg/resilience"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const maxErrorBody = 4 << 10

// Completer is the part of the client the conversation flow depends on
type Completer interface {
	CreateCharacterChat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

type Config struct {
	BaseURL  string
	Endpoint string
	Model    string
	Timeout  time.Duration
}

// Client is safe for concurrent use
type Client struct {
	httpClient *http.Client
	url        string
	model      string
	timeout    time.Duration
	tokens     *jwt.TokenCache
	breaker    *resilience.CircuitBreaker
	now        func() time.Time
	log        *logger.Logger
}

// NewClient builds a client. A nil breaker disables circuit breaking.
func NewClient(cfg Config, tokens *jwt.TokenCache, breaker *resilience.CircuitBreaker, log *logger.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if log == nil {
		log = logger.GetGlobal()
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		url:        strings.TrimRight(cfg.BaseURL, "/") + cfg.Endpoint,
		model:      cfg.Model,
		timeout:    cfg.Timeout,
		tokens:     tokens,
		breaker:    breaker,
		now:        time.Now,
		log:        log.With("component", "gateway"),
	}
}

// Model is the model name sent when a request leaves it empty
func (c *Client) Model() string {
	return c.model
}

// CreateCharacterChat requests one reply from the primary bot. Transport
// errors, timeouts, non-2xx answers, API errors and empty replies are all
// returned as errors; an open circuit is resilience.ErrCircuitOpen.
func (c *Client) CreateCharacterChat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if req.Model == "" {
		req.Model = c.model
	}
	if req.N == 0 {
		req.N = 1
	}

	ctx, span := otel.Tracer("companion-chat/gateway").Start(ctx, "gateway.CreateCharacterChat")
	defer span.End()
	span.SetAttributes(
		attribute.String("gateway.model", req.Model),
		attribute.Int("gateway.messages", len(req.Messages)),
		attribute.Int("gateway.max_new_tokens", req.MaxNewTokens),
	)

	var resp *ChatResponse
	call := func() error {
		var err error
		resp, err = c.do(ctx, req)
		return err
	}

	var err error
	if c.breaker != nil {
		err = c.breaker.Execute(call)
	} else {
		err = call()
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("gateway.total_tokens", resp.Usage.TotalTokens))
	return resp, nil
}

func (c *Client) do(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	token, err := c.tokens.Token(c.now())
	if err != nil {
		return nil, fmt.Errorf("mint API token: %w", err)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	start := c.now()
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("remote API request failed: %w", err)
	}
	defer httpResp.Body.Close()

	c.log.Debug("Remote API responded",
		"status", httpResp.StatusCode,
		"duration", c.now().Sub(start).String(),
	)

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(httpResp.Body, maxErrorBody))
		apiErr := &APIError{StatusCode: httpResp.StatusCode, Message: strings.TrimSpace(string(raw))}
		var parsed apiResponse
		if json.Unmarshal(raw, &parsed) == nil && parsed.Error != nil {
			apiErr.Code = parsed.Error.code()
			apiErr.Message = parsed.Error.Message
		}
		return nil, apiErr
	}

	var parsed apiResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if parsed.Error != nil {
		return nil, &APIError{
			StatusCode: httpResp.StatusCode,
			Code:       parsed.Error.code(),
			Message:    parsed.Error.Message,
		}
	}
	if parsed.Data == nil || strings.TrimSpace(parsed.Data.Reply) == "" {
		return nil, ErrEmptyReply
	}
	return parsed.Data, nil
}

// Ping sends a minimal two-participant exchange to check credentials and reachability
func (c *Client) Ping(ctx context.Context) error {
	const (
		user = "用戶"
		bot  = "測試角色"
	)
	_, err := c.CreateCharacterChat(ctx, ChatRequest{
		CharacterSettings: []CharacterDescriptor{
			{Name: user, Gender: "男", DetailSetting: "測試用戶"},
			{Name: bot, Gender: "女", DetailSetting: "溫柔體貼的性格"},
		},
		RoleSetting:  RoleSetting{UserName: user, PrimaryBotName: bot},
		Messages:     []Turn{{Name: user, Content: "你好"}},
		MaxNewTokens: 100,
	})
	return err
}
