package answer

import (
	"strings"
)

// NotSpecifiedAnswer は厳格モードで事実が記録に存在しない場合の固定回答
// エラーではなく、正規の成功レスポンスとして返す
const NotSpecifiedAnswer = "This is not specified in your current treatment protocol."

// strictTriggers は厳格モードを発動させる語彙パターン
// 小文字化した質問文に対する部分一致で判定する。意図分類への置き換えはプロダクト判断待ち
var strictTriggers = []string{
	"can i eat",
	"can i have",
	"can i drink",
	"may i eat",
	"may i have",
	"am i allowed",
	"is it ok to eat",
	"is it okay to eat",
	"is it safe to eat",
	"allowed to eat",
	"allowed to drink",
}

// IsStrictQuestion は質問が厳格モードの対象かどうかを判定する
func IsStrictQuestion(question string) bool {
	lowered := strings.ToLower(question)
	for _, trigger := range strictTriggers {
		if strings.Contains(lowered, trigger) {
			return true
		}
	}
	return false
}
