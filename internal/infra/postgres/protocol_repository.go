package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jinford/tenant-rag/internal/core/answer"
)

// ProtocolRepository は answer.ProtocolStore を実装する PostgreSQL リポジトリ
// 厳格モードの唯一の根拠ソースである、ユーザーごとのプロトコル記録を保持する
type ProtocolRepository struct {
	pool *pgxpool.Pool
}

// NewProtocolRepository は新しい ProtocolRepository を返す
func NewProtocolRepository(pool *pgxpool.Pool) *ProtocolRepository {
	return &ProtocolRepository{pool: pool}
}

var _ answer.ProtocolStore = (*ProtocolRepository)(nil)

// GetProtocolRecord は (tenant_code, user_code) でプロトコル記録を取得する
func (r *ProtocolRepository) GetProtocolRecord(ctx context.Context, tenantCode, userCode string) (*answer.ProtocolRecord, error) {
	var record answer.ProtocolRecord
	err := r.pool.QueryRow(ctx, `
		SELECT tenant_code, user_code, content, updated_at
		FROM protocol_records
		WHERE tenant_code = $1 AND user_code = $2`,
		tenantCode, userCode,
	).Scan(&record.TenantCode, &record.UserCode, &record.Content, &record.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s/%s", answer.ErrProtocolNotFound, tenantCode, userCode)
		}
		return nil, fmt.Errorf("failed to get protocol record: %w", err)
	}
	return &record, nil
}

// SaveProtocolRecord はプロトコル記録を upsert する
func (r *ProtocolRepository) SaveProtocolRecord(ctx context.Context, tenantCode, userCode, content string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO protocol_records (tenant_code, user_code, content)
		VALUES ($1, $2, $3)
		ON CONFLICT (tenant_code, user_code) DO UPDATE SET
			content    = EXCLUDED.content,
			updated_at = now()`,
		tenantCode, userCode, content,
	)
	if err != nil {
		return fmt.Errorf("failed to save protocol record: %w", err)
	}
	return nil
}
