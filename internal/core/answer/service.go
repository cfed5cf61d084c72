package answer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jinford/tenant-rag/internal/core/retrieval"
)

// NoContentAnswer は使える検索結果が1件もない場合の固定回答
// LLM を呼ばずに返すことで、弱いコンテキストからの幻覚を避ける
const NoContentAnswer = "I don't have enough information to answer that."

// AnswerService は検索結果を根拠に回答を合成するユースケースを提供する
// ツールセットとプロンプトは呼び出しごとに組み立てる。リクエスト間で共有する可変状態は持たない
type AnswerService struct {
	retriever *retrieval.RetrieveService
	llm       LLMClient
	protocols ProtocolStore
	maxSteps  int
	budget    time.Duration
	logger    *slog.Logger
}

type answerServiceOptions struct {
	maxSteps int
	budget   time.Duration
	logger   *slog.Logger
}

// AnswerServiceOption は AnswerService のオプション設定
type AnswerServiceOption func(*answerServiceOptions)

// WithMaxSteps は回答生成のステップ予算を上書きする
func WithMaxSteps(n int) AnswerServiceOption {
	return func(o *answerServiceOptions) {
		o.maxSteps = n
	}
}

// WithBudget は回答生成の時間予算を上書きする
func WithBudget(d time.Duration) AnswerServiceOption {
	return func(o *answerServiceOptions) {
		o.budget = d
	}
}

// WithAnswerLogger は AnswerService にロガーを設定する
func WithAnswerLogger(logger *slog.Logger) AnswerServiceOption {
	return func(o *answerServiceOptions) {
		o.logger = logger
	}
}

const (
	// DefaultMaxSteps は回答生成1回あたりの既定ステップ予算
	DefaultMaxSteps = 3
	// DefaultBudget は回答生成1回あたりの既定時間予算
	DefaultBudget = 60 * time.Second
)

// NewAnswerService は新しい AnswerService を作成する
// protocols は厳格モードの根拠ソースへの明示的な参照として必須で受け取る
func NewAnswerService(
	retriever *retrieval.RetrieveService,
	llm LLMClient,
	protocols ProtocolStore,
	opts ...AnswerServiceOption,
) *AnswerService {
	options := answerServiceOptions{
		maxSteps: DefaultMaxSteps,
		budget:   DefaultBudget,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	return &AnswerService{
		retriever: retriever,
		llm:       llm,
		protocols: protocols,
		maxSteps:  options.maxSteps,
		budget:    options.budget,
		logger:    options.logger,
	}
}

// Answer は分離コンテキストの範囲で検索し、根拠付きの回答を合成する
// 厳格モードの質問は、要求ユーザー本人のプロトコル記録だけを根拠に回答する
func (s *AnswerService) Answer(ctx context.Context, isolation retrieval.IsolationContext, params retrieval.RetrieveParams) (*AnswerResult, error) {
	if IsStrictQuestion(params.Question) && isolation.RequestingUserCode != "" {
		return s.answerStrict(ctx, isolation, params.Question)
	}

	result, err := s.retriever.Retrieve(ctx, isolation, params)
	if err != nil {
		return nil, err
	}

	if result.Empty() {
		return &AnswerResult{
			Answer:  NoContentAnswer,
			Sources: []string{},
		}, nil
	}

	prompt := BuildAnswerPrompt(params.Question, result.Passages)

	s.logger.Info("回答を生成",
		"tenant", isolation.TenantCode,
		"passages", len(result.Passages),
		"sources", len(result.Sources),
	)

	text, err := s.complete(ctx, prompt)
	if err != nil {
		return nil, err
	}

	return &AnswerResult{
		Answer:  text,
		Sources: result.Sources,
	}, nil
}

// answerStrict はプロトコル記録のみを根拠とする単一ツール回答を行う
func (s *AnswerService) answerStrict(ctx context.Context, isolation retrieval.IsolationContext, question string) (*AnswerResult, error) {
	record, err := s.protocols.GetProtocolRecord(ctx, isolation.TenantCode, isolation.RequestingUserCode)
	if err != nil {
		if errors.Is(err, ErrProtocolNotFound) {
			// 記録自体がなければ、問い合わせるまでもなく「未記載」
			return &AnswerResult{
				Answer:  NotSpecifiedAnswer,
				Sources: []string{},
				Strict:  true,
			}, nil
		}
		return nil, fmt.Errorf("プロトコル記録の取得に失敗: %w", err)
	}

	s.logger.Info("厳格モードで回答",
		"tenant", isolation.TenantCode,
		"user", isolation.RequestingUserCode,
	)

	text, err := s.complete(ctx, BuildStrictPrompt(question, record))
	if err != nil {
		return nil, err
	}

	return &AnswerResult{
		Answer:  text,
		Sources: []string{},
		Strict:  true,
	}, nil
}

// complete はステップ予算と時間予算の下で LLM 補完を実行する
// どちらかを超過したら合成失敗として返す（部分回答にはしない）
func (s *AnswerService) complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.budget)
	defer cancel()

	for step := 1; step <= s.maxSteps; step++ {
		text, err := s.llm.Complete(ctx, prompt)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return "", fmt.Errorf("%w (step %d)", ErrSynthesisTimeout, step)
			}
			return "", fmt.Errorf("回答生成に失敗: %w", err)
		}

		text = strings.TrimSpace(text)
		if text != "" {
			return text, nil
		}
		// 空応答は1ステップ消費として数え、やり直す
	}

	return "", ErrSynthesisStepLimit
}
