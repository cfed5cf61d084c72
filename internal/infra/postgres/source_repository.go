package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jinford/tenant-rag/internal/core/ingestion"
	"github.com/jinford/tenant-rag/internal/core/vectorindex"
)

// SourceRepository は ingestion.SourceRepository を実装する PostgreSQL リポジトリ
type SourceRepository struct {
	pool *pgxpool.Pool
}

// NewSourceRepository は新しい SourceRepository を返す
func NewSourceRepository(pool *pgxpool.Pool) *SourceRepository {
	return &SourceRepository{pool: pool}
}

var _ ingestion.SourceRepository = (*SourceRepository)(nil)

// GetSource は (tenant_code, source_name) でソースを取得する
func (r *SourceRepository) GetSource(ctx context.Context, tenantCode, sourceName string) (*ingestion.SourceItem, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, tenant_code, uploader_code, source_name, source_type, content_hash, chunk_count, created_at, updated_at
		FROM sources
		WHERE tenant_code = $1 AND source_name = $2`,
		tenantCode, sourceName,
	)

	item, err := scanSourceItem(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s/%s", ingestion.ErrSourceNotFound, tenantCode, sourceName)
		}
		return nil, fmt.Errorf("failed to get source: %w", err)
	}
	return item, nil
}

// SaveSource はソースを upsert する。既存行は chunk_count / content_hash / uploader を更新する
func (r *SourceRepository) SaveSource(ctx context.Context, item *ingestion.SourceItem) (*ingestion.SourceItem, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO sources (id, tenant_code, uploader_code, source_name, source_type, content_hash, chunk_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (tenant_code, source_name) DO UPDATE SET
			uploader_code = EXCLUDED.uploader_code,
			source_type   = EXCLUDED.source_type,
			content_hash  = EXCLUDED.content_hash,
			chunk_count   = EXCLUDED.chunk_count,
			updated_at    = now()
		RETURNING id, tenant_code, uploader_code, source_name, source_type, content_hash, chunk_count, created_at, updated_at`,
		item.ID, item.TenantCode, item.UploaderCode, item.SourceName,
		string(item.SourceType), item.ContentHash, item.ChunkCount,
	)

	saved, err := scanSourceItem(row)
	if err != nil {
		return nil, fmt.Errorf("failed to save source: %w", err)
	}
	return saved, nil
}

// DeleteSource はソースの対応付けを削除する
func (r *SourceRepository) DeleteSource(ctx context.Context, tenantCode, sourceName string) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM sources WHERE tenant_code = $1 AND source_name = $2`,
		tenantCode, sourceName,
	)
	if err != nil {
		return fmt.Errorf("failed to delete source: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s/%s", ingestion.ErrSourceNotFound, tenantCode, sourceName)
	}
	return nil
}

// ListSources はテナント配下のソース一覧を新しい順で返す
func (r *SourceRepository) ListSources(ctx context.Context, tenantCode string, uploaderCode *string) ([]*ingestion.SourceItem, error) {
	query := `
		SELECT id, tenant_code, uploader_code, source_name, source_type, content_hash, chunk_count, created_at, updated_at
		FROM sources
		WHERE tenant_code = $1`
	args := []any{tenantCode}
	if uploaderCode != nil {
		args = append(args, *uploaderCode)
		query += ` AND uploader_code = $2`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	defer rows.Close()

	var items []*ingestion.SourceItem
	for rows.Next() {
		item, err := scanSourceItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan source: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}

	return items, nil
}

func scanSourceItem(row pgx.Row) (*ingestion.SourceItem, error) {
	var item ingestion.SourceItem
	var sourceType string
	if err := row.Scan(
		&item.ID,
		&item.TenantCode,
		&item.UploaderCode,
		&item.SourceName,
		&sourceType,
		&item.ContentHash,
		&item.ChunkCount,
		&item.CreatedAt,
		&item.UpdatedAt,
	); err != nil {
		return nil, err
	}
	item.SourceType = vectorindex.SourceType(sourceType)
	return &item, nil
}
