// Package source は外部検索ソースのアダプタを提供する。
//
// 各アダプタはソース固有のクエリを実行し、正規化されたCandidateのリストを返す。
// ページネーション、日付のパース、一時エラーのリトライはソースごとに異なるため
// アダプタ内に閉じる。取得や解析の失敗は全てmodel.FetchErrorに正規化する。
//
// アダプタは永続化を一切行わない（純粋なフェッチ + パース）。
package source

import (
	"context"
	"time"

	"github.com/hitoshi/newsdispatcher/internal/model"
)

// Fetcher は検索ソースからの記事候補取得のインターフェース。
type Fetcher interface {
	// Source はこのアダプタが扱うソース種別を返す。
	Source() model.Source

	// Fetch はクエリセットに基づいて候補を取得する。
	// 戻り値は実際に使用したクエリ文字列と、ソースの返却順を保った候補リスト。
	// 失敗時はmodel.FetchErrorを返す（部分結果は返さない）。
	Fetch(ctx context.Context, spec *model.QuerySpec) (string, []model.Candidate, error)
}

// userAgent は外部ソースへのリクエストで名乗るUser-Agent。
const userAgent = "NewsDispatcher/1.0"

// withinWindow は公開日時が日付下限を満たすかを返す。
// afterDaysが0以下の場合は常にtrue。公開日時が不明な候補の扱いは
// ソースごとに異なるため、ここではnilを渡さないこと。
func withinWindow(publishedAt time.Time, afterDays int, now time.Time) bool {
	if afterDays <= 0 {
		return true
	}
	threshold := now.AddDate(0, 0, -afterDays)
	return !publishedAt.Before(threshold)
}

// sleepContext はコンテキストのキャンセルを尊重して待機する。
// キャンセルされた場合はctx.Err()を返す。
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
