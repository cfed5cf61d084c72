package answer

import (
	"context"
	"errors"
	"time"
)

// AnswerResult は最終回答とその引用元
type AnswerResult struct {
	Answer  string
	Sources []string
	Strict  bool // 厳格モードで回答したかどうか
}

// ProtocolRecord はユーザーごとに保存されたプロトコル/プロファイル記録
// 厳格モードの唯一の根拠ソースになる
type ProtocolRecord struct {
	TenantCode string
	UserCode   string
	Content    string
	UpdatedAt  time.Time
}

// ErrProtocolNotFound は対象ユーザーのプロトコル記録が存在しない場合のエラー
var ErrProtocolNotFound = errors.New("protocol record not found")

// ProtocolStore は厳格モードの根拠ソースへの明示的な参照
// 汎用ツールリストの走査ではなく、型付きの能力として注入する
type ProtocolStore interface {
	GetProtocolRecord(ctx context.Context, tenantCode, userCode string) (*ProtocolRecord, error)
}

// LLMClient はチャット補完能力のポート
type LLMClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

var (
	// ErrSynthesisTimeout は検索成功後、回答生成が時間予算内に完了しなかったことを表す
	// 「回答が見つからない」とは区別され、呼び出し元は再検索なしで生成だけ再試行できる
	ErrSynthesisTimeout = errors.New("answer synthesis exceeded time budget")

	// ErrSynthesisStepLimit は回答生成がステップ予算を使い切ったことを表す
	ErrSynthesisStepLimit = errors.New("answer synthesis exceeded step limit")
)
