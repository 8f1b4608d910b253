package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TitleSanitizerService は記事タイトルのサニタイズ機能のインターフェースを定義する。
// フィードのタイトルにはタグやHTMLエンティティが混入することがあるため、
// 候補の正規化時に必ず適用する。
type TitleSanitizerService interface {
	// Sanitize はタイトルから全てのHTMLタグを除去し、
	// エンティティをデコードした素のテキストを返す。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(rawTitle string) string
}

// titleSanitizer はTitleSanitizerServiceの実装。
// bluemondayのStrictPolicyを保持し、スレッドセーフにサニタイズ処理を行う。
type titleSanitizer struct {
	policy *bluemonday.Policy
}

// NewTitleSanitizer はTitleSanitizerServiceの新しいインスタンスを生成する。
// StrictPolicyは全てのタグと属性を除去し、テキストのみを残す。
func NewTitleSanitizer() *titleSanitizer {
	return &titleSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize はタイトルから全てのHTMLタグを除去した素のテキストを返す。
// StrictPolicyはテキストをエンティティとしてエスケープして返すため、
// デコードして表示用のプレーンテキストに戻す。
func (s *titleSanitizer) Sanitize(rawTitle string) string {
	if rawTitle == "" {
		return ""
	}
	cleaned := s.policy.Sanitize(rawTitle)
	return strings.TrimSpace(html.UnescapeString(cleaned))
}
