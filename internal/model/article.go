// Package model はドメインモデルを定義する。
package model

import "time"

// Article は発見済み記事の永続レコードを表す。
// URLをユニークキーとし、タイトルと発行日は初回登録時の値を維持する
// （翻訳済みタイトルで正規レコードが汚染されるのを防ぐため、再取得時も上書きしない）。
type Article struct {
	ID          string // 未永続（ドライラン生成）の場合は空文字列
	URL         string
	Title       string
	PublishedAt *time.Time
	CreatedAt   time.Time
}

// Candidate は検索ソースから取得した未永続の記事候補を表す。
// アダプタがフェッチごとに生成し、重複排除・永続化を経てArticleへ解決される。
type Candidate struct {
	URL         string
	Title       string
	PublishedAt *time.Time // ソースが発行日を返さない場合はnil
}

// DeliveryRecord は特定の受信者へ特定の記事を配信済みであることを表す。
// (recipient_id, article_id) の組み合わせでユニーク。
// このレコードが存在する記事は、その受信者の出力に二度と現れてはならない。
type DeliveryRecord struct {
	ID          string
	RecipientID string
	ArticleID   string
	DeliveredAt time.Time
}

// Recipient はダイジェスト配信先のユーザーを表す。
type Recipient struct {
	ID                string
	Email             string
	PreferredLanguage string // 翻訳先言語（例: "Japanese", "English"）
	IsActive          bool
	CreatedAt         time.Time
}
