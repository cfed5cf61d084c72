package postgres

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrWidgetKeyNotFound は未登録のウィジェットキーを表す
var ErrWidgetKeyNotFound = errors.New("widget key not found")

// WidgetRepository は埋め込みウィジェット用の不透明キーを管理する
// キーはちょうど1テナントに解決され、読み取り専用の検索だけを許可する
type WidgetRepository struct {
	pool *pgxpool.Pool
}

// NewWidgetRepository は新しい WidgetRepository を返す
func NewWidgetRepository(pool *pgxpool.Pool) *WidgetRepository {
	return &WidgetRepository{pool: pool}
}

// GetOrIssueKey はテナントのウィジェットキーを返し、なければ発行する
func (r *WidgetRepository) GetOrIssueKey(ctx context.Context, tenantCode string) (string, error) {
	var key string
	err := r.pool.QueryRow(ctx,
		`SELECT key FROM widget_keys WHERE tenant_code = $1`, tenantCode,
	).Scan(&key)
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("failed to get widget key: %w", err)
	}
	return r.RegenerateKey(ctx, tenantCode)
}

// RegenerateKey はテナントのウィジェットキーを再発行する
// 既存キーは即座に無効になる
func (r *WidgetRepository) RegenerateKey(ctx context.Context, tenantCode string) (string, error) {
	key, err := newWidgetKey()
	if err != nil {
		return "", err
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO widget_keys (key, tenant_code)
		VALUES ($1, $2)
		ON CONFLICT (tenant_code) DO UPDATE SET
			key        = EXCLUDED.key,
			created_at = now()`,
		key, tenantCode,
	)
	if err != nil {
		return "", fmt.Errorf("failed to store widget key: %w", err)
	}
	return key, nil
}

// ResolveKey は不透明キーをテナントコードに解決する
func (r *WidgetRepository) ResolveKey(ctx context.Context, key string) (string, error) {
	var tenantCode string
	err := r.pool.QueryRow(ctx,
		`SELECT tenant_code FROM widget_keys WHERE key = $1`, key,
	).Scan(&tenantCode)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrWidgetKeyNotFound
		}
		return "", fmt.Errorf("failed to resolve widget key: %w", err)
	}
	return tenantCode, nil
}

// newWidgetKey は "wk_" プレフィックス付きの不透明キーを生成する
func newWidgetKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate widget key: %w", err)
	}
	return "wk_" + base64.RawURLEncoding.EncodeToString(buf), nil
}
