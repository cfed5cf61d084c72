package ingestion

import (
	"time"

	"github.com/google/uuid"
	"github.com/jinford/tenant-rag/internal/core/vectorindex"
)

// IngestParams はソース取り込みのパラメータ
type IngestParams struct {
	TenantCode   string
	UploaderCode string
	SourceName   string // ファイル名または URL
	SourceType   vectorindex.SourceType
	Text         string // 抽出済みプレーンテキスト
}

// IngestResult は取り込み結果
type IngestResult struct {
	SourceID       uuid.UUID
	VectorsWritten int
	Duration       time.Duration
}

// DeleteResult はソース削除の結果
type DeleteResult struct {
	VectorsRemoved int
}

// SourceItem はリレーショナル側に永続化するソースの対応付け
// 削除の認可と、ベクトル ID 集合の再構築に使う
type SourceItem struct {
	ID           uuid.UUID
	TenantCode   string
	UploaderCode string
	SourceName   string
	SourceType   vectorindex.SourceType
	ContentHash  string
	ChunkCount   int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
