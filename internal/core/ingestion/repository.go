package ingestion

import (
	"context"
	"errors"
)

// ErrSourceNotFound は対象ソースが存在しない場合のエラー
var ErrSourceNotFound = errors.New("source not found")

// SourceRepository はソース対応付けの永続化ポート
// 実体は除外対象の CRUD 層が所有するリレーショナルテーブル
type SourceRepository interface {
	// GetSource は (tenant_code, source_name) でソースを取得する
	// 存在しない場合は ErrSourceNotFound を返す
	GetSource(ctx context.Context, tenantCode, sourceName string) (*SourceItem, error)

	// SaveSource はソースを upsert し、保存後のレコードを返す
	// 同一 (tenant_code, source_name) への再保存は chunk_count と content_hash を更新する
	SaveSource(ctx context.Context, item *SourceItem) (*SourceItem, error)

	// DeleteSource はソースの対応付けを削除する
	DeleteSource(ctx context.Context, tenantCode, sourceName string) error

	// ListSources はテナント配下のソース一覧を返す（uploaderCode 指定時はさらに絞る）
	ListSources(ctx context.Context, tenantCode string, uploaderCode *string) ([]*SourceItem, error)
}

// Embedder はテキストをベクトルに変換する能力のポート
type Embedder interface {
	// BatchEmbed はバッチで Embedding を生成する
	BatchEmbed(ctx context.Context, texts []string) ([][]float32, error)

	// MaxBatchSize は1回の呼び出しで渡せる最大テキスト数を返す
	MaxBatchSize() int
}
