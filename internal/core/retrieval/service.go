package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/jinford/tenant-rag/internal/core/vectorindex"
)

// ErrIsolationViolation はストアから期待外のテナントメタデータが返った場合の内部不変条件違反
// 二重分離 (namespace + メタデータフィルタ) の両方が破れたことを意味するため、
// 決して黙って除外せず、致命的エラーとして呼び出し元へ返す
var ErrIsolationViolation = errors.New("isolation violation: match returned for foreign tenant")

// Embedder は質問文のEmbedding生成インターフェース
// 取り込み側と同一モデル系列でなければならない
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// RetrieveService は分離コンテキスト下での類似度検索を提供する
type RetrieveService struct {
	store    vectorindex.Store
	embedder Embedder
	minScore float64 // これ未満しかない場合は「関連コンテンツなし」として空を返す
	logger   *slog.Logger
}

type retrieveServiceOptions struct {
	minScore float64
	logger   *slog.Logger
}

// RetrieveServiceOption は RetrieveService のオプション設定
type RetrieveServiceOption func(*retrieveServiceOptions)

// WithMinScore は類似度の下限しきい値を上書きする
func WithMinScore(score float64) RetrieveServiceOption {
	return func(o *retrieveServiceOptions) {
		o.minScore = score
	}
}

// WithRetrieveLogger は RetrieveService にロガーを設定する
func WithRetrieveLogger(logger *slog.Logger) RetrieveServiceOption {
	return func(o *retrieveServiceOptions) {
		o.logger = logger
	}
}

// DefaultMinScore は「使い物になる類似度」の既定しきい値
// text-embedding-3 系のコサイン類似度では無関係なテキスト対はおおむね 0.2〜0.3 を下回る
const DefaultMinScore = 0.25

// NewRetrieveService は新しい RetrieveService を作成する
func NewRetrieveService(store vectorindex.Store, embedder Embedder, opts ...RetrieveServiceOption) *RetrieveService {
	options := retrieveServiceOptions{
		minScore: DefaultMinScore,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	return &RetrieveService{
		store:    store,
		embedder: embedder,
		minScore: options.minScore,
		logger:   options.logger,
	}
}

// Retrieve は質問をEmbedding化し、分離コンテキストの範囲内で上位 topK 件を返す
// 全件がしきい値未満の場合は空の Result を返す（エラーではない）
func (s *RetrieveService) Retrieve(ctx context.Context, isolation IsolationContext, params RetrieveParams) (*Result, error) {
	if isolation.TenantCode == "" {
		return nil, fmt.Errorf("tenantCode は必須です")
	}
	if params.Question == "" {
		return nil, fmt.Errorf("question は必須です")
	}

	topK := params.TopK
	if topK <= 0 {
		topK = 8
	}

	queryVector, err := s.embedder.Embed(ctx, params.Question)
	if err != nil {
		return nil, fmt.Errorf("質問のembedding生成に失敗: %w", err)
	}

	// テナント条件は必須、ユーザー条件は AND でのみ加わる
	filter := vectorindex.Filter{
		TenantCode: isolation.TenantCode,
		SourceType: params.SourceType,
	}
	if isolation.RestrictToRequestingUser {
		uploader := isolation.RequestingUserCode
		if uploader == "" {
			return nil, fmt.Errorf("ユーザー絞り込みには requestingUserCode が必要です")
		}
		filter.UploaderCode = &uploader
	}

	matches, err := s.store.Query(ctx, isolation.TenantCode, queryVector, topK, filter)
	if err != nil {
		return nil, fmt.Errorf("ベクトル検索に失敗: %w", err)
	}

	// 二重分離が破れていないことを結果側でも検証する
	for _, match := range matches {
		if match.Metadata.TenantCode != isolation.TenantCode {
			s.logger.Error("分離違反を検出",
				"expectedTenant", isolation.TenantCode,
				"gotTenant", match.Metadata.TenantCode,
				"recordID", match.ID,
			)
			return nil, fmt.Errorf("%w: record %s", ErrIsolationViolation, match.ID)
		}
	}

	// スコア降順。同点はストアの返却順を保つ
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})

	if !s.usable(matches) {
		s.logger.Info("関連コンテンツなし",
			"tenant", isolation.TenantCode,
			"matches", len(matches),
			"minScore", s.minScore,
		)
		return &Result{}, nil
	}

	passages := make([]Passage, 0, len(matches))
	sources := make([]string, 0, len(matches))
	seen := make(map[string]bool, len(matches))
	for _, match := range matches {
		passages = append(passages, Passage{
			Content:    match.Content,
			Score:      match.Score,
			SourceName: match.Metadata.SourceName,
		})
		// 引用リストはランキングの初出順を保って重複排除する
		if name := match.Metadata.SourceName; name != "" && !seen[name] {
			seen[name] = true
			sources = append(sources, name)
		}
	}

	return &Result{
		Passages: passages,
		Sources:  sources,
	}, nil
}

// usable は1件でもしきい値以上のスコアがあるかを返す
func (s *RetrieveService) usable(matches []vectorindex.Match) bool {
	for _, match := range matches {
		if match.Score >= s.minScore {
			return true
		}
	}
	return false
}
