package retrieval

import (
	"github.com/jinford/tenant-rag/internal/core/vectorindex"
)

// IsolationContext はリクエストごとに認証層から組み立てる分離コンテキスト
// 永続化してはならない。キャッシュや共有もしない
type IsolationContext struct {
	TenantCode               string
	RequestingUserCode       string
	RestrictToRequestingUser bool
}

// NewUserContext は認証済みユーザーのための分離コンテキストを作る
func NewUserContext(tenantCode, userCode string, restrictToUser bool) IsolationContext {
	return IsolationContext{
		TenantCode:               tenantCode,
		RequestingUserCode:       userCode,
		RestrictToRequestingUser: restrictToUser,
	}
}

// NewWidgetContext は公開ウィジェット用の分離コンテキストを作る
// ウィジェットはテナント全体のコーパスから読み取り専用で回答するため、
// ユーザー絞り込みは常に無効になる
func NewWidgetContext(tenantCode string) IsolationContext {
	return IsolationContext{
		TenantCode:               tenantCode,
		RestrictToRequestingUser: false,
	}
}

// NewAdminContext は管理者による単一テナント検査用の分離コンテキストを作る
// 昇格していても対象テナントの外には決して出られない
func NewAdminContext(tenantCode string) IsolationContext {
	return IsolationContext{
		TenantCode:               tenantCode,
		RestrictToRequestingUser: false,
	}
}

// RetrieveParams は検索パラメータ
type RetrieveParams struct {
	Question   string
	TopK       int
	SourceType *vectorindex.SourceType // document / website で絞る場合のみ指定
}

// Passage は検索で得られた1パッセージ
type Passage struct {
	Content    string
	Score      float64
	SourceName string
}

// Result は順序付きパッセージ列と、引用用に重複排除したソース名一覧
type Result struct {
	Passages []Passage
	Sources  []string
}

// Empty は利用可能なパッセージが1件もないことを返す
func (r *Result) Empty() bool {
	return len(r.Passages) == 0
}
