package model

import "time"

// Source は外部検索ソースの種別を表す。
type Source string

const (
	// SourceGoogleNews はGoogle News RSS検索。
	SourceGoogleNews Source = "google_news"
	// SourceCiNii はCiNii Research（学術論文検索）。
	SourceCiNii Source = "cinii"
	// SourceArxiv はarXiv（プレプリントサーバ）。
	SourceArxiv Source = "arxiv"
)

// IsValid はソース種別が既知の値かを返す。
func (s Source) IsValid() bool {
	switch s {
	case SourceGoogleNews, SourceCiNii, SourceArxiv:
		return true
	}
	return false
}

// QuerySpec は1回のパイプライン実行の検索条件を表す値オブジェクト。
// 実行中は不変として扱う。
type QuerySpec struct {
	ID          string
	RecipientID string
	Name        string
	Source      Source
	QueryString string // コンパイル済みクエリ文字列（query.Compile*の出力）
	Country     string // Google News用の国コード（JP/US/CN/KR）
	MaxResults  int
	AfterDays   int // 0以下の場合は日付フィルタなし
	AutoSend    bool
	CreatedAt   time.Time
}

// QuerySelection はクエリコンパイラへの入力となるキーワード選択を表す。
// KeywordsはOR結合され、Refineは精密化句としてソース固有の構文で付加される。
type QuerySelection struct {
	Keywords []string
	Refine   string
}
