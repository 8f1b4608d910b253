// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/newsdispatcher/internal/model"
)

// ArticleRepository は記事データの永続化インターフェース。
type ArticleRepository interface {
	// FindByURL はURLで記事を検索する。見つからない場合はnilを返す。
	FindByURL(ctx context.Context, url string) (*model.Article, error)

	// Create は新規記事を作成する。
	// URLのユニーク制約に違反した場合はそのままエラーを返す
	// （呼び出し元がIsUniqueViolationで判定し、再検索にフォールバックする）。
	Create(ctx context.Context, article *model.Article) error
}

// SeenArticle は配信済み記事の参照情報。
// 重複排除の事前チェック（URL）と事後チェック（記事ID）の両方に使用する。
type SeenArticle struct {
	ArticleID string
	URL       string
}

// DeliveryRepository は配信ログの永続化インターフェース。
type DeliveryRepository interface {
	// ListSeenByRecipient は受信者の配信済み記事（ID・URL）を一括取得する。
	// パイプライン実行ごとに1回だけ呼び出すこと。
	ListSeenByRecipient(ctx context.Context, recipientID string) ([]SeenArticle, error)

	// CreateMissing は未記録の (recipient, article) ペアのみ配信ログを一括登録する。
	// 既存ペアは無視され、登録件数を返す（冪等）。
	CreateMissing(ctx context.Context, recipientID string, articleIDs []string, deliveredAt time.Time) (int, error)
}

// RecipientRepository は受信者データの永続化インターフェース。
type RecipientRepository interface {
	// FindByID は指定IDの受信者を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Recipient, error)

	// ListActive は有効な受信者の一覧を返す。
	ListActive(ctx context.Context) ([]*model.Recipient, error)
}

// QuerySpecRepository はクエリセットの永続化インターフェース。
type QuerySpecRepository interface {
	// ListByRecipient は受信者のクエリセット一覧を名前順で返す。
	ListByRecipient(ctx context.Context, recipientID string) ([]*model.QuerySpec, error)
}
