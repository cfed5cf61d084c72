package openai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jinford/tenant-rag/internal/core/ingestion"
	"github.com/jinford/tenant-rag/internal/core/retrieval"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	// DefaultEmbeddingModel はモデル未指定時のデフォルトモデル
	DefaultEmbeddingModel = "text-embedding-3-large"
	// DefaultEmbeddingDimension は埋め込みベクトルのデフォルト次元
	DefaultEmbeddingDimension = 3072
	// DefaultEmbeddingTimeout は Embedding API 呼び出しのタイムアウト
	DefaultEmbeddingTimeout = 30 * time.Second
	// maxEmbeddingBatch は OpenAI Embeddings API の1回あたり最大入力数
	maxEmbeddingBatch = 100
)

// ErrEmbeddingProvider は上流の Embedding 呼び出し失敗（タイムアウト含む）を表す
// 取り込みもクエリもこのエラーで中断し、部分書き込みは発生しない。リトライ可能
var ErrEmbeddingProvider = errors.New("embedding provider call failed")

// Embedder は OpenAI API を使用してテキストをベクトルに変換する
// クエリと取り込みで同一インスタンスを共有し、Embedding 空間の一貫性を保つ
type Embedder struct {
	client    openai.Client
	model     string
	dimension int
	timeout   time.Duration
}

type embedderOptions struct {
	model     string
	dimension int
	timeout   time.Duration
}

// EmbedderOption は Embedder のオプション設定
type EmbedderOption func(*embedderOptions)

// WithEmbeddingModel はモデル名を上書きする
func WithEmbeddingModel(model string) EmbedderOption {
	return func(o *embedderOptions) {
		o.model = model
	}
}

// WithEmbeddingDimension はベクトル次元を上書きする
func WithEmbeddingDimension(dimension int) EmbedderOption {
	return func(o *embedderOptions) {
		o.dimension = dimension
	}
}

// WithEmbeddingTimeout は呼び出しタイムアウトを上書きする
func WithEmbeddingTimeout(timeout time.Duration) EmbedderOption {
	return func(o *embedderOptions) {
		o.timeout = timeout
	}
}

// NewEmbedder は新しい Embedder を作成する
func NewEmbedder(apiKey string, opts ...EmbedderOption) *Embedder {
	options := embedderOptions{
		model:     DefaultEmbeddingModel,
		dimension: DefaultEmbeddingDimension,
		timeout:   DefaultEmbeddingTimeout,
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &Embedder{
		client:    openai.NewClient(option.WithAPIKey(apiKey)),
		model:     options.model,
		dimension: options.dimension,
		timeout:   options.timeout,
	}
}

// Embed は単一テキストの Embedding を生成する
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := e.BatchEmbed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("%w: no embeddings generated", ErrEmbeddingProvider)
	}
	return embeddings[0], nil
}

// BatchEmbed はバッチで Embedding を生成する（最大100件）
func (e *Embedder) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("no texts provided")
	}
	if len(texts) > maxEmbeddingBatch {
		return nil, fmt.Errorf("batch size %d exceeds maximum of %d", len(texts), maxEmbeddingBatch)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	params := openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(e.model),
	}
	if len(texts) == 1 {
		params.Input = openai.EmbeddingNewParamsInputUnion{
			OfString: openai.String(texts[0]),
		}
	} else {
		params.Input = openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		}
	}
	if e.dimension > 0 {
		params.Dimensions = openai.Int(int64(e.dimension))
	}

	resp, err := e.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingProvider, err)
	}

	embeddings := make([][]float32, 0, len(resp.Data))
	for _, data := range resp.Data {
		vector := make([]float32, len(data.Embedding))
		for i, v := range data.Embedding {
			vector[i] = float32(v)
		}
		embeddings = append(embeddings, vector)
	}

	return embeddings, nil
}

// ModelName はモデル名を返す
func (e *Embedder) ModelName() string {
	return e.model
}

// Dimension はベクトル次元数を返す
func (e *Embedder) Dimension() int {
	return e.dimension
}

// MaxBatchSize はバッチ処理の最大サイズを返す
func (e *Embedder) MaxBatchSize() int {
	return maxEmbeddingBatch
}

// インターフェース実装の確認
var (
	_ ingestion.Embedder = (*Embedder)(nil)
	_ retrieval.Embedder = (*Embedder)(nil)
)
