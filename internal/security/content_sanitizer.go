// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer は旅行名や表示名などユーザー入力のプレーンテキストから
// HTMLタグを取り除く。bluemondayのStrictPolicyを使用し、タグはすべて除去する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer はプレーンテキスト入力のサニタイズ機能のインターフェースを定義する。
type TextSanitizer interface {
	// SanitizeText はHTMLタグをすべて除去し、前後の空白を取り除いたテキストを返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	SanitizeText(raw string) string
}

// textSanitizer はTextSanitizerの実装。bluemondayのポリシーはスレッドセーフ。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerの新しいインスタンスを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{policy: bluemonday.StrictPolicy()}
}

// SanitizeText はHTMLタグを除去したプレーンテキストを返す。
// StrictPolicyはエンティティをエスケープするため、保存用に元の文字へ戻す。
// 戻した結果が再びタグになる入力（&lt;b&gt;など）に備え、変化がなくなるまで繰り返す。
// 出力時のエスケープは表示側（html/template等）で行う。
func (s *textSanitizer) SanitizeText(raw string) string {
	text := strings.TrimSpace(raw)
	for range maxSanitizePasses {
		next := strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(text)))
		if next == text {
			break
		}
		text = next
	}
	return text
}

const maxSanitizePasses = 4

// compile-time interface check
var _ TextSanitizer = (*textSanitizer)(nil)
