package model

import "fmt"

// FetchError は検索ソースからの取得失敗を表す。
// ネットワーク障害・HTTPエラーステータス・レスポンス不正のいずれも
// この1種類に正規化され、呼び出し元はソース名と原因のみで分岐する。
// 該当するパイプライン実行1回に対して終端的（部分結果は返さない）。
type FetchError struct {
	Source Source
	Err    error
}

// Error はerrorインターフェースを実装する。
func (e *FetchError) Error() string {
	return fmt.Sprintf("%s からの記事取得に失敗しました: %v", e.Source, e.Err)
}

// Unwrap は原因となったエラーを返す。
func (e *FetchError) Unwrap() error {
	return e.Err
}

// NewFetchError はFetchErrorを生成する。
func NewFetchError(source Source, err error) *FetchError {
	return &FetchError{Source: source, Err: err}
}
