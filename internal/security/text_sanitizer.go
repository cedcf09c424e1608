// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer は書籍・利用者の自由入力テキストからHTMLを除去する。
// bluemondayのStrictPolicyで全タグを落とし、プレーンテキストだけを保存する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer は自由入力テキストのサニタイズ機能のインターフェースを定義する。
type TextSanitizer interface {
	// Clean はHTMLタグを除去し、前後の空白を取り除き、連続する空白を1つにまとめる。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Clean(s string) string

	// CleanPtr はnilを保ったままCleanを適用する。
	// 結果が空文字列になった場合はnilを返す。
	CleanPtr(s *string) *string
}

// textSanitizer はTextSanitizerの実装。
// bluemonday.Policyはゴルーチン安全なので共有して使う。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerの新しいインスタンスを生成する。
func NewTextSanitizer() TextSanitizer {
	return &textSanitizer{policy: bluemonday.StrictPolicy()}
}

// Clean はHTMLタグを除去したプレーンテキストを返す。
// StrictPolicyが付与するエンティティ（&amp; 等）は元の文字に戻す。
func (s *textSanitizer) Clean(in string) string {
	if in == "" {
		return ""
	}
	stripped := html.UnescapeString(s.policy.Sanitize(in))
	return strings.Join(strings.Fields(stripped), " ")
}

func (s *textSanitizer) CleanPtr(in *string) *string {
	if in == nil {
		return nil
	}
	out := s.Clean(*in)
	if out == "" {
		return nil
	}
	return &out
}
