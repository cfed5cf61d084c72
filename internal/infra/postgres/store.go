package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/jinford/tenant-rag/internal/core/vectorindex"
)

// Store は vectorindex.Store を実装する pgvector ベースのテナントベクトルストア
//
// namespace 列で物理分離し、読み取りではさらに tenant_code 列のフィルタを必ず併用する。
// どちらか一方の呼び出しバグがあっても、もう一方がクロステナント漏洩を封じる
type Store struct {
	pool *pgxpool.Pool
}

// NewStore は新しい Store を返す
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

var _ vectorindex.Store = (*Store)(nil)

// Upsert はレコード群を namespace 配下に1トランザクションで書き込む
// 同一 (namespace, id) は上書きされる
func (s *Store) Upsert(ctx context.Context, namespace string, records []vectorindex.Record) error {
	if namespace == "" {
		return vectorindex.ErrEmptyNamespace
	}
	if len(records) == 0 {
		return nil
	}

	// すべてのレコードが namespace と同じテナントに属することを書き込み前に検証する
	for _, record := range records {
		if record.Metadata.TenantCode != namespace {
			return fmt.Errorf("%w: record %s has tenant %q", vectorindex.ErrNamespaceFilterMismatch, record.ID, record.Metadata.TenantCode)
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", vectorindex.ErrVectorStore, err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, record := range records {
		batch.Queue(`
			INSERT INTO tenant_vectors
				(namespace, id, embedding, content, tenant_code, uploader_code, source_type, source_name, chunk_index)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (namespace, id) DO UPDATE SET
				embedding     = EXCLUDED.embedding,
				content       = EXCLUDED.content,
				tenant_code   = EXCLUDED.tenant_code,
				uploader_code = EXCLUDED.uploader_code,
				source_type   = EXCLUDED.source_type,
				source_name   = EXCLUDED.source_name,
				chunk_index   = EXCLUDED.chunk_index`,
			namespace,
			record.ID,
			pgvector.NewVector(record.Embedding),
			record.Content,
			record.Metadata.TenantCode,
			record.Metadata.UploaderCode,
			string(record.Metadata.SourceType),
			record.Metadata.SourceName,
			record.Metadata.ChunkIndex,
		)
	}

	results := tx.SendBatch(ctx, batch)
	for range records {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("%w: upsert: %v", vectorindex.ErrVectorStore, err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("%w: close batch: %v", vectorindex.ErrVectorStore, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit: %v", vectorindex.ErrVectorStore, err)
	}

	return nil
}

// Query は namespace とメタデータフィルタの両方を指定してコサイン類似度検索を実行する
func (s *Store) Query(ctx context.Context, namespace string, embedding []float32, topK int, filter vectorindex.Filter) ([]vectorindex.Match, error) {
	if namespace == "" {
		return nil, vectorindex.ErrEmptyNamespace
	}
	// 二重分離の事前条件: namespace とフィルタの tenant_code は常に同一
	if filter.TenantCode != namespace {
		return nil, fmt.Errorf("%w: namespace %q, filter tenant %q", vectorindex.ErrNamespaceFilterMismatch, namespace, filter.TenantCode)
	}
	if topK <= 0 {
		topK = 8
	}

	var sb strings.Builder
	sb.WriteString(`
		SELECT id, content, tenant_code, uploader_code, source_type, source_name, chunk_index,
		       1 - (embedding <=> $1) AS score
		FROM tenant_vectors
		WHERE namespace = $2 AND tenant_code = $3`)

	args := []any{pgvector.NewVector(embedding), namespace, filter.TenantCode}
	if filter.UploaderCode != nil {
		args = append(args, *filter.UploaderCode)
		fmt.Fprintf(&sb, " AND uploader_code = $%d", len(args))
	}
	if filter.SourceType != nil {
		args = append(args, string(*filter.SourceType))
		fmt.Fprintf(&sb, " AND source_type = $%d", len(args))
	}
	args = append(args, topK)
	fmt.Fprintf(&sb, " ORDER BY embedding <=> $1 LIMIT $%d", len(args))

	rows, err := s.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("%w: query: %v", vectorindex.ErrVectorStore, err)
	}
	defer rows.Close()

	var matches []vectorindex.Match
	for rows.Next() {
		var m vectorindex.Match
		var sourceType string
		if err := rows.Scan(
			&m.ID,
			&m.Content,
			&m.Metadata.TenantCode,
			&m.Metadata.UploaderCode,
			&sourceType,
			&m.Metadata.SourceName,
			&m.Metadata.ChunkIndex,
			&m.Score,
		); err != nil {
			return nil, fmt.Errorf("%w: scan: %v", vectorindex.ErrVectorStore, err)
		}
		m.Metadata.SourceType = vectorindex.SourceType(sourceType)
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: rows: %v", vectorindex.ErrVectorStore, err)
	}

	return matches, nil
}

// Delete は明示された ID 集合を namespace 配下から削除する
func (s *Store) Delete(ctx context.Context, namespace string, ids []string) error {
	if namespace == "" {
		return vectorindex.ErrEmptyNamespace
	}
	if len(ids) == 0 {
		return nil
	}

	_, err := s.pool.Exec(ctx,
		`DELETE FROM tenant_vectors WHERE namespace = $1 AND id = ANY($2)`,
		namespace, ids,
	)
	if err != nil {
		return fmt.Errorf("%w: delete: %v", vectorindex.ErrVectorStore, err)
	}

	return nil
}
