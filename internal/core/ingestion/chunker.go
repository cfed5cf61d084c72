package ingestion

import (
	"fmt"
	"iter"
	"regexp"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// Chunk はソーステキストから切り出した1チャンク
// Index はソース内での決定的な通し番号
type Chunk struct {
	Index   int
	Content string
	Tokens  int
}

// Chunker はテキストを文境界を尊重しつつ固定オーバーラップ付きで分割します
// 分割は決定的であり、同一入力からは常に同一のチャンク列が得られる
type Chunker struct {
	encoder *tiktoken.Tiktoken

	maxChars     int // 1チャンクの最大文字数（デフォルト: 3000 ≒ 750トークン）
	overlapChars int // 連続チャンク間のオーバーラップ文字数（デフォルト: 400）
	maxTokens    int // Embeddingモデルに渡せる上限トークン数
}

type chunkerOptions struct {
	maxChars     int
	overlapChars int
	maxTokens    int
}

// ChunkerOption は Chunker のオプション設定
type ChunkerOption func(*chunkerOptions)

// WithMaxChars はチャンクの最大文字数を上書きする
func WithMaxChars(n int) ChunkerOption {
	return func(o *chunkerOptions) {
		o.maxChars = n
	}
}

// WithOverlapChars はオーバーラップ文字数を上書きする
func WithOverlapChars(n int) ChunkerOption {
	return func(o *chunkerOptions) {
		o.overlapChars = n
	}
}

// WithMaxTokens はチャンクあたりの上限トークン数を上書きする
func WithMaxTokens(n int) ChunkerOption {
	return func(o *chunkerOptions) {
		o.maxTokens = n
	}
}

// NewChunker は新しい Chunker を作成します
func NewChunker(opts ...ChunkerOption) (*Chunker, error) {
	// cl100k_base エンコーダを使用（text-embedding-3 系と互換）
	encoder, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("failed to get tiktoken encoder: %w", err)
	}

	options := chunkerOptions{
		maxChars:     3000,
		overlapChars: 400,
		maxTokens:    8000,
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.overlapChars >= options.maxChars {
		return nil, fmt.Errorf("overlap (%d) must be smaller than max chars (%d)", options.overlapChars, options.maxChars)
	}

	return &Chunker{
		encoder:      encoder,
		maxChars:     options.maxChars,
		overlapChars: options.overlapChars,
		maxTokens:    options.maxTokens,
	}, nil
}

var whitespaceRe = regexp.MustCompile(`\s+`)

// Seq はテキストをチャンク列として遅延生成します
// 返されるシーケンスは有限で、range のたびに先頭から再生成される
func (c *Chunker) Seq(text string) iter.Seq2[int, Chunk] {
	return func(yield func(int, Chunk) bool) {
		normalized := strings.TrimSpace(whitespaceRe.ReplaceAllString(text, " "))
		if normalized == "" {
			return
		}

		index := 0
		emit := func(content string) bool {
			chunk := Chunk{
				Index:   index,
				Content: c.trimToTokenLimit(content),
			}
			chunk.Tokens = c.countTokens(chunk.Content)
			ok := yield(index, chunk)
			index++
			return ok
		}

		if len(normalized) <= c.maxChars {
			emit(normalized)
			return
		}

		start := 0
		last := ""
		for start < len(normalized) {
			end := min(start+c.maxChars, len(normalized))
			window := normalized[start:end]

			// ウィンドウ内の最後の文境界で切る
			cut := lastSentenceBoundary(window)
			if cut <= 0 || end == len(normalized) {
				cut = len(window)
			}

			content := strings.TrimSpace(window[:cut])
			// 直前のチャンクと同一になる断片は捨てる
			if content != "" && content != last {
				if !emit(content) {
					return
				}
				last = content
			}

			if end == len(normalized) {
				return
			}

			// オーバーラップ分だけ戻して次のウィンドウを開始する
			next := start + cut - c.overlapChars
			// 極端に短い残余での無限ループを防ぐ
			if next <= start {
				next = start + max(1, cut/2)
			}
			start = next
		}
	}
}

// Split はチャンク列をスライスとして返します
func (c *Chunker) Split(text string) []Chunk {
	var chunks []Chunk
	for _, chunk := range c.Seq(text) {
		chunks = append(chunks, chunk)
	}
	return chunks
}

// lastSentenceBoundary はウィンドウ内で最後に現れる文末位置を返す
func lastSentenceBoundary(window string) int {
	cut := -1
	for _, sep := range []string{". ", "? ", "! ", "。", "？", "！"} {
		if i := strings.LastIndex(window, sep); i >= 0 {
			end := i + len(sep)
			if end > cut {
				cut = end
			}
		}
	}
	return cut
}

// trimToTokenLimit はEmbeddingモデルの上限を超えるチャンクを切り詰める
func (c *Chunker) trimToTokenLimit(text string) string {
	tokens := c.encoder.Encode(text, nil, nil)
	if len(tokens) <= c.maxTokens {
		return text
	}
	return c.encoder.Decode(tokens[:c.maxTokens])
}

// countTokens はテキストのトークン数をカウントします
func (c *Chunker) countTokens(text string) int {
	return len(c.encoder.Encode(text, nil, nil))
}
