// Package vectorindex はテナント分離されたベクトルインデックスへのポートを定義します。
//
// 二重分離の不変条件:
// 書き込みは必ず tenant_code と同名の namespace を対象とし、
// 読み取りは namespace の指定に加えて tenant_code のメタデータフィルタを必ず併用する。
// どちらか一方の実装バグがあっても、もう一方がクロステナント漏洩を防ぐ。
package vectorindex

import (
	"context"
	"errors"
)

// SourceType はソースの種別を表す
type SourceType string

const (
	SourceTypeDocument SourceType = "document"
	SourceTypeWebsite  SourceType = "website"
)

// Valid は既知のソース種別かどうかを返す
func (t SourceType) Valid() bool {
	return t == SourceTypeDocument || t == SourceTypeWebsite
}

// Metadata はベクトルレコードに付与するメタデータバッグ
type Metadata struct {
	TenantCode   string
	UploaderCode string
	SourceType   SourceType
	SourceName   string
	ChunkIndex   int
}

// Record はベクトルインデックスに格納する1レコード
// ID は (tenant_code, source_name, chunk_index) から決定的に導出され、
// 同一ソースの再インデックスは同じ ID への上書きになる
type Record struct {
	ID        string
	Embedding []float32
	Content   string
	Metadata  Metadata
}

// Filter はクエリ時のメタデータフィルタ
// TenantCode は必須。UploaderCode / SourceType は AND 条件として任意に追加される
type Filter struct {
	TenantCode   string
	UploaderCode *string
	SourceType   *SourceType
}

// Match はクエリ結果の1件。Score はコサイン類似度（大きいほど近い）
type Match struct {
	ID       string
	Score    float64
	Content  string
	Metadata Metadata
}

var (
	// ErrVectorStore はベクトルインデックスへの呼び出し失敗を表す（リトライ可能）
	ErrVectorStore = errors.New("vector store operation failed")

	// ErrEmptyNamespace は namespace が空で呼び出された場合のエラー
	ErrEmptyNamespace = errors.New("namespace must not be empty")

	// ErrNamespaceFilterMismatch は namespace とフィルタの tenant_code が一致しない場合のエラー
	// 二重分離の事前条件違反であり、呼び出し側のバグを示す
	ErrNamespaceFilterMismatch = errors.New("namespace does not match filter tenant_code")
)

// Store はテナントベクトルストアアダプタのポート
type Store interface {
	// Upsert はレコード群を namespace 配下に一括で書き込む
	// 同一 ID のレコードはベクトル・メタデータごと上書きされる
	Upsert(ctx context.Context, namespace string, records []Record) error

	// Query は namespace 配下で類似度検索を実行する
	// filter.TenantCode は namespace と一致していなければならない
	// 結果はスコア降順で返り、同スコアの順序はストアの返却順で安定している
	Query(ctx context.Context, namespace string, embedding []float32, topK int, filter Filter) ([]Match, error)

	// Delete は明示された ID 集合を namespace 配下から削除する
	Delete(ctx context.Context, namespace string, ids []string) error
}
