package ingestion

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jinford/tenant-rag/internal/core/vectorindex"
)

// IngestService はソース取り込みのユースケースを提供する
// 1ソースの取り込みは内部的にアトミック: Embedding が1バッチでも失敗したら何も書き込まない
type IngestService struct {
	store    vectorindex.Store
	sources  SourceRepository
	embedder Embedder
	chunker  *Chunker
	logger   *slog.Logger
}

type ingestServiceOptions struct {
	logger *slog.Logger
}

// IngestServiceOption は IngestService のオプション設定
type IngestServiceOption func(*ingestServiceOptions)

// WithIngestLogger は IngestService にロガーを設定する
func WithIngestLogger(logger *slog.Logger) IngestServiceOption {
	return func(o *ingestServiceOptions) {
		o.logger = logger
	}
}

// NewIngestService は新しい IngestService を作成する
func NewIngestService(
	store vectorindex.Store,
	sources SourceRepository,
	embedder Embedder,
	chunker *Chunker,
	opts ...IngestServiceOption,
) *IngestService {
	options := ingestServiceOptions{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	return &IngestService{
		store:    store,
		sources:  sources,
		embedder: embedder,
		chunker:  chunker,
		logger:   options.logger,
	}
}

// Ingest はソースをチャンク化・Embedding 化してテナント namespace に書き込む
// 同一 (tenant_code, source_name) の再取り込みは同じ ID 集合への上書きになり、
// チャンク数が減った場合は末尾の旧 ID を同時に削除する
func (s *IngestService) Ingest(ctx context.Context, params IngestParams) (*IngestResult, error) {
	startTime := time.Now()

	if err := validateIngestParams(params); err != nil {
		return nil, err
	}

	s.logger.Info("取り込みを開始",
		"tenant", params.TenantCode,
		"source", params.SourceName,
		"sourceType", params.SourceType,
	)

	// 前回の取り込み結果を取得（縮小時の後始末に使う）
	// 未登録は 0 扱いでよいが、それ以外の失敗をここで握りつぶすと
	// 縮小分の旧 ID が再構築不能なまま残るため、取り込み自体を中断する
	previousCount := 0
	existing, err := s.sources.GetSource(ctx, params.TenantCode, params.SourceName)
	switch {
	case err == nil:
		previousCount = existing.ChunkCount
	case !errors.Is(err, ErrSourceNotFound):
		return nil, fmt.Errorf("既存ソースの取得に失敗: %w", err)
	}

	// チャンク列をバッチ単位で Embedding 化する
	// 全バッチの成功を確認してから upsert するので、途中失敗で部分書き込みは起きない
	records, err := s.buildRecords(ctx, params)
	if err != nil {
		return nil, err
	}

	// 空ソースは「取り込み済み・空」として記録する。エラーにはしない
	if len(records) > 0 {
		if err := s.store.Upsert(ctx, params.TenantCode, records); err != nil {
			return nil, fmt.Errorf("ベクトルの書き込みに失敗: %w", err)
		}
	}

	// 縮小した分の古い ID を削除する
	if previousCount > len(records) {
		stale := recordIDRange(params.TenantCode, params.SourceType, params.SourceName, len(records), previousCount)
		if err := s.store.Delete(ctx, params.TenantCode, stale); err != nil {
			return nil, fmt.Errorf("旧ベクトルの削除に失敗: %w", err)
		}
	}

	item, err := s.sources.SaveSource(ctx, &SourceItem{
		ID:           uuid.New(),
		TenantCode:   params.TenantCode,
		UploaderCode: params.UploaderCode,
		SourceName:   params.SourceName,
		SourceType:   params.SourceType,
		ContentHash:  contentHash(params.Text),
		ChunkCount:   len(records),
	})
	if err != nil {
		return nil, fmt.Errorf("ソース対応付けの保存に失敗: %w", err)
	}

	duration := time.Since(startTime)

	s.logger.Info("取り込みが完了",
		"tenant", params.TenantCode,
		"source", params.SourceName,
		"vectors", len(records),
		"duration", duration,
	)

	return &IngestResult{
		SourceID:       item.ID,
		VectorsWritten: len(records),
		Duration:       duration,
	}, nil
}

// buildRecords はチャンク列を Embedder のバッチ上限ごとに Embedding 化してレコードを組み立てる
func (s *IngestService) buildRecords(ctx context.Context, params IngestParams) ([]vectorindex.Record, error) {
	batchSize := s.embedder.MaxBatchSize()
	if batchSize <= 0 {
		batchSize = 1
	}

	var records []vectorindex.Record
	var batch []Chunk

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		texts := make([]string, len(batch))
		for i, chunk := range batch {
			texts[i] = chunk.Content
		}
		embeddings, err := s.embedder.BatchEmbed(ctx, texts)
		if err != nil {
			return fmt.Errorf("embedding 生成に失敗: %w", err)
		}
		if len(embeddings) != len(batch) {
			return fmt.Errorf("embedding 数がチャンク数と一致しません: got %d, want %d", len(embeddings), len(batch))
		}
		for i, chunk := range batch {
			records = append(records, vectorindex.Record{
				ID:        RecordID(params.TenantCode, params.SourceType, params.SourceName, chunk.Index),
				Embedding: embeddings[i],
				Content:   chunk.Content,
				Metadata: vectorindex.Metadata{
					TenantCode:   params.TenantCode,
					UploaderCode: params.UploaderCode,
					SourceType:   params.SourceType,
					SourceName:   params.SourceName,
					ChunkIndex:   chunk.Index,
				},
			})
		}
		batch = batch[:0]
		return nil
	}

	for _, chunk := range s.chunker.Seq(params.Text) {
		batch = append(batch, chunk)
		if len(batch) >= batchSize {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}

	return records, nil
}

// DeleteSource はソースのベクトル集合を漏れなく削除し、対応付けも消す
func (s *IngestService) DeleteSource(ctx context.Context, tenantCode, sourceName string) (*DeleteResult, error) {
	if tenantCode == "" || sourceName == "" {
		return nil, fmt.Errorf("tenantCode と sourceName は必須です")
	}

	item, err := s.sources.GetSource(ctx, tenantCode, sourceName)
	if err != nil {
		return nil, fmt.Errorf("ソースの取得に失敗: %w", err)
	}

	if item.ChunkCount > 0 {
		ids := recordIDRange(tenantCode, item.SourceType, sourceName, 0, item.ChunkCount)
		if err := s.store.Delete(ctx, tenantCode, ids); err != nil {
			return nil, fmt.Errorf("ベクトルの削除に失敗: %w", err)
		}
	}

	if err := s.sources.DeleteSource(ctx, tenantCode, sourceName); err != nil {
		return nil, fmt.Errorf("ソース対応付けの削除に失敗: %w", err)
	}

	s.logger.Info("ソースを削除",
		"tenant", tenantCode,
		"source", sourceName,
		"vectors", item.ChunkCount,
	)

	return &DeleteResult{VectorsRemoved: item.ChunkCount}, nil
}

// ListSources はテナント配下のソース一覧を返す
func (s *IngestService) ListSources(ctx context.Context, tenantCode string, uploaderCode *string) ([]*SourceItem, error) {
	if tenantCode == "" {
		return nil, fmt.Errorf("tenantCode は必須です")
	}
	return s.sources.ListSources(ctx, tenantCode, uploaderCode)
}

func validateIngestParams(params IngestParams) error {
	if params.TenantCode == "" {
		return fmt.Errorf("tenantCode は必須です")
	}
	if params.UploaderCode == "" {
		return fmt.Errorf("uploaderCode は必須です")
	}
	if params.SourceName == "" {
		return fmt.Errorf("sourceName は必須です")
	}
	if !params.SourceType.Valid() {
		return fmt.Errorf("不正な sourceType: %q", params.SourceType)
	}
	return nil
}

// RecordID は (tenant_code, source_type, source_name, chunk_index) から
// 決定的なレコード ID を導出する。再取り込みは同じ ID への upsert になる
func RecordID(tenantCode string, sourceType vectorindex.SourceType, sourceName string, chunkIndex int) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s:%s:%s:%d", tenantCode, sourceType, sourceName, chunkIndex))
	return hex.EncodeToString(sum[:])
}

// recordIDRange は [from, to) のチャンク番号に対応する ID 集合を再構築する
func recordIDRange(tenantCode string, sourceType vectorindex.SourceType, sourceName string, from, to int) []string {
	ids := make([]string, 0, to-from)
	for i := from; i < to; i++ {
		ids = append(ids, RecordID(tenantCode, sourceType, sourceName, i))
	}
	return ids
}

// contentHash はソース本文のバージョンマーカーとして sha256 を返す
func contentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
