package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// InitSchema は必要な拡張とテーブルを作成する
// マイグレーションツールは持たず、起動時の冪等な DDL で済ませる
func InitSchema(ctx context.Context, pool *pgxpool.Pool, embeddingDimension int) error {
	if embeddingDimension <= 0 {
		return fmt.Errorf("embedding dimension must be positive, got %d", embeddingDimension)
	}

	statements := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,

		// namespace 列が物理的なテナント分離、tenant_code 列がメタデータ分離。
		// 二重分離のため両方を持つ
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS tenant_vectors (
			namespace     text NOT NULL,
			id            text NOT NULL,
			embedding     vector(%d) NOT NULL,
			content       text NOT NULL,
			tenant_code   text NOT NULL,
			uploader_code text NOT NULL,
			source_type   text NOT NULL,
			source_name   text NOT NULL,
			chunk_index   integer NOT NULL,
			created_at    timestamptz NOT NULL DEFAULT now(),
			PRIMARY KEY (namespace, id)
		)`, embeddingDimension),

		`CREATE INDEX IF NOT EXISTS idx_tenant_vectors_tenant
			ON tenant_vectors (namespace, tenant_code)`,

		`CREATE TABLE IF NOT EXISTS sources (
			id            uuid PRIMARY KEY,
			tenant_code   text NOT NULL,
			uploader_code text NOT NULL,
			source_name   text NOT NULL,
			source_type   text NOT NULL,
			content_hash  text NOT NULL,
			chunk_count   integer NOT NULL,
			created_at    timestamptz NOT NULL DEFAULT now(),
			updated_at    timestamptz NOT NULL DEFAULT now(),
			UNIQUE (tenant_code, source_name)
		)`,

		`CREATE TABLE IF NOT EXISTS protocol_records (
			tenant_code text NOT NULL,
			user_code   text NOT NULL,
			content     text NOT NULL,
			updated_at  timestamptz NOT NULL DEFAULT now(),
			PRIMARY KEY (tenant_code, user_code)
		)`,

		`CREATE TABLE IF NOT EXISTS widget_keys (
			key         text PRIMARY KEY,
			tenant_code text NOT NULL UNIQUE,
			created_at  timestamptz NOT NULL DEFAULT now()
		)`,
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	return nil
}
