// Package article は記事候補の冪等な永続化を提供する。
package article

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/newsdispatcher/internal/model"
	"github.com/hitoshi/newsdispatcher/internal/repository"
)

// Store は候補からArticleレコードへのUPSERTを行う。
// URLをキーとし、同一URLの記事は最初に保存された内容が正となる
// （後続の候補でタイトルや公開日時を上書きしない）。
type Store struct {
	articleRepo repository.ArticleRepository
	logger      *slog.Logger
}

// NewStore はStoreの新しいインスタンスを生成する。
func NewStore(articleRepo repository.ArticleRepository, logger *slog.Logger) *Store {
	return &Store{
		articleRepo: articleRepo,
		logger:      logger,
	}
}

// Upsert は候補をURLキーで冪等に永続化する。
//
// 既存の記事があればそれを返す（existed = true）。なければ作成して返す。
// 並行実行で同一URLが同時に挿入された場合のユニーク制約違反は
// 再検索で解決し、エラーとして表面化させない。
//
// dryRunの場合もまず既存レコードを検索し、あればそれを返す（existed = true）。
// なければDBに書き込まず、IDが空の一時的なArticleを構築して返す。
// 呼び出し側は永続化の有無を意識せずに同じ結果を扱える。
func (s *Store) Upsert(ctx context.Context, cand model.Candidate, dryRun bool) (*model.Article, bool, error) {
	existing, err := s.articleRepo.FindByURL(ctx, cand.URL)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, true, nil
	}

	if dryRun {
		return &model.Article{
			URL:         cand.URL,
			Title:       cand.Title,
			PublishedAt: cand.PublishedAt,
		}, false, nil
	}

	newArticle := &model.Article{
		ID:          uuid.New().String(),
		URL:         cand.URL,
		Title:       cand.Title,
		PublishedAt: cand.PublishedAt,
		CreatedAt:   time.Now(),
	}

	if err := s.articleRepo.Create(ctx, newArticle); err != nil {
		if repository.IsUniqueViolation(err) {
			// 並行実行との競合。先に挿入されたレコードを正とする。
			s.logger.Debug("記事の挿入が競合しました。既存レコードを再検索します",
				slog.String("url", cand.URL),
			)
			raced, findErr := s.articleRepo.FindByURL(ctx, cand.URL)
			if findErr != nil {
				return nil, false, findErr
			}
			if raced == nil {
				return nil, false, fmt.Errorf("挿入競合後の再検索で記事が見つかりません: %s", cand.URL)
			}
			return raced, true, nil
		}
		return nil, false, err
	}

	return newArticle, false, nil
}
