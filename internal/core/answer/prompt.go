package answer

import (
	"fmt"
	"strings"

	"github.com/jinford/tenant-rag/internal/core/retrieval"
)

// BuildAnswerPrompt は取得済みパッセージを根拠コンテキストとして回答プロンプトを構築する
// パッセージはランキング順のまま並べる
func BuildAnswerPrompt(question string, passages []retrieval.Passage) string {
	var sb strings.Builder

	sb.WriteString("Answer the question ONLY using the provided context. ")
	sb.WriteString("If the answer isn't in the context, say you don't have enough information.\n\n")

	sb.WriteString("Question:\n")
	sb.WriteString(question)
	sb.WriteString("\n\n")

	sb.WriteString("Context:\n")
	for i, passage := range passages {
		if i > 0 {
			sb.WriteString("\n\n---\n")
		}
		sb.WriteString(passage.Content)
	}
	sb.WriteString("\n")

	return sb.String()
}

// BuildStrictPrompt は厳格モード用のプロンプトを構築する
// 根拠はプロトコル記録ただ1つ。一般知識での補完も、引用や注釈の付加も禁じる
func BuildStrictPrompt(question string, record *ProtocolRecord) string {
	var sb strings.Builder

	sb.WriteString("You are answering a question about the user's stored treatment protocol.\n")
	sb.WriteString("Rules:\n")
	sb.WriteString("- Use ONLY the protocol record below. Do not use general knowledge.\n")
	sb.WriteString(fmt.Sprintf("- If the protocol record does not state the requested fact, reply with exactly this sentence and nothing else: %s\n", NotSpecifiedAnswer))
	sb.WriteString("- Otherwise reply with the direct answer drawn from the record. No citations, no disclaimers, no extra framing.\n\n")

	sb.WriteString("Protocol record:\n")
	sb.WriteString(record.Content)
	sb.WriteString("\n\n")

	sb.WriteString("Question:\n")
	sb.WriteString(question)
	sb.WriteString("\n")

	return sb.String()
}
