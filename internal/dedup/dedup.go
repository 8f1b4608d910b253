// Package dedup は受信者単位の配信済み記事の重複排除を提供する。
package dedup

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/newsdispatcher/internal/repository"
)

// SeenSet は受信者に配信済みの記事の集合。
// URLによる事前チェックと記事IDによる事後チェックの両方をO(1)で行う。
type SeenSet struct {
	urls       map[string]struct{}
	articleIDs map[string]struct{}
}

// ContainsURL はURLが配信済みかを返す。
func (s *SeenSet) ContainsURL(url string) bool {
	_, ok := s.urls[url]
	return ok
}

// ContainsArticleID は記事IDが配信済みかを返す。
// IDが空の場合（dry-runの一時的なArticle）は常にfalse。
func (s *SeenSet) ContainsArticleID(articleID string) bool {
	if articleID == "" {
		return false
	}
	_, ok := s.articleIDs[articleID]
	return ok
}

// Len は配信済み記事の件数を返す。
func (s *SeenSet) Len() int {
	return len(s.articleIDs)
}

// Loader は受信者の配信済み集合をロードする。
// パイプライン実行の冒頭で1回だけロードし、以降の判定は全てメモリ上で行う。
// 候補ごとにDBへ問い合わせてはならない。
type Loader struct {
	deliveryRepo repository.DeliveryRepository
	logger       *slog.Logger
}

// NewLoader はLoaderの新しいインスタンスを生成する。
func NewLoader(deliveryRepo repository.DeliveryRepository, logger *slog.Logger) *Loader {
	return &Loader{
		deliveryRepo: deliveryRepo,
		logger:       logger,
	}
}

// LoadSeen は受信者の配信済み記事集合を1回のクエリでロードする。
func (l *Loader) LoadSeen(ctx context.Context, recipientID string) (*SeenSet, error) {
	seen, err := l.deliveryRepo.ListSeenByRecipient(ctx, recipientID)
	if err != nil {
		return nil, fmt.Errorf("配信済み記事の取得に失敗しました: %w", err)
	}

	set := &SeenSet{
		urls:       make(map[string]struct{}, len(seen)),
		articleIDs: make(map[string]struct{}, len(seen)),
	}
	for _, s := range seen {
		set.urls[s.URL] = struct{}{}
		set.articleIDs[s.ArticleID] = struct{}{}
	}

	l.logger.Debug("配信済み記事集合をロードしました",
		slog.String("recipient_id", recipientID),
		slog.Int("seen_count", set.Len()),
	)

	return set, nil
}
