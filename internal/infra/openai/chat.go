package openai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jinford/tenant-rag/internal/core/answer"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

const (
	// DefaultChatModel はデフォルトで使用するチャットモデル
	DefaultChatModel = "gpt-4o"
	// DefaultChatTimeout は API 呼び出しのデフォルトタイムアウト
	DefaultChatTimeout = 60 * time.Second
	// DefaultTemperature は回答生成の温度
	DefaultTemperature = 0.2
	// MaxRetries はレート制限エラー時の最大リトライ回数
	MaxRetries = 3
	// BaseBackoff は Exponential Backoff の基底時間
	BaseBackoff = 2 * time.Second
	// MaxBackoff は Exponential Backoff の最大待機時間
	MaxBackoff = 32 * time.Second
)

var (
	// ErrAPIKeyNotSet は API キーが設定されていない場合のエラー
	ErrAPIKeyNotSet = errors.New("OpenAI API key not set")

	// ErrMaxRetriesExceeded は最大リトライ回数を超過した場合のエラー
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
)

// ChatClient は OpenAI Chat Completions を使用した LLM クライアント実装
type ChatClient struct {
	client      openai.Client
	model       string
	temperature float64
	timeout     time.Duration
}

type chatOptions struct {
	model       string
	temperature float64
	timeout     time.Duration
}

// ChatOption は ChatClient のオプション設定
type ChatOption func(*chatOptions)

// WithChatModel はモデル名を上書きする
func WithChatModel(model string) ChatOption {
	return func(o *chatOptions) {
		o.model = model
	}
}

// WithChatTemperature は温度を上書きする
func WithChatTemperature(t float64) ChatOption {
	return func(o *chatOptions) {
		o.temperature = t
	}
}

// WithChatTimeout は呼び出しタイムアウトを上書きする
func WithChatTimeout(d time.Duration) ChatOption {
	return func(o *chatOptions) {
		o.timeout = d
	}
}

// NewChatClient は新しい ChatClient を作成する
func NewChatClient(apiKey string, opts ...ChatOption) (*ChatClient, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyNotSet
	}

	options := chatOptions{
		model:       DefaultChatModel,
		temperature: DefaultTemperature,
		timeout:     DefaultChatTimeout,
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &ChatClient{
		client:      openai.NewClient(option.WithAPIKey(apiKey)),
		model:       options.model,
		temperature: options.temperature,
		timeout:     options.timeout,
	}, nil
}

// Complete はプロンプトに対する補完を生成する
func (c *ChatClient) Complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var lastErr error
	for attempt := 0; attempt <= MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * BaseBackoff
			if backoff > MaxBackoff {
				backoff = MaxBackoff
			}
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}

		completion, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
			Model: shared.ChatModel(c.model),
			Messages: []openai.ChatCompletionMessageParamUnion{
				openai.UserMessage(prompt),
			},
			Temperature: openai.Float(c.temperature),
		})
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			lastErr = err
			if isRateLimitError(err) {
				continue
			}
			return "", fmt.Errorf("OpenAI API call failed: %w", err)
		}

		if len(completion.Choices) == 0 {
			return "", fmt.Errorf("no completion choices returned")
		}
		return completion.Choices[0].Message.Content, nil
	}

	return "", fmt.Errorf("%w: %v", ErrMaxRetriesExceeded, lastErr)
}

// ModelName はモデル名を返す
func (c *ChatClient) ModelName() string {
	return c.model
}

func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}

// インターフェース実装の確認
var _ answer.LLMClient = (*ChatClient)(nil)
