package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/newsdispatcher/internal/model"
)

// uniqueViolationCode はPostgreSQLのユニーク制約違反のSQLSTATE。
const uniqueViolationCode = "23505"

// IsUniqueViolation はエラーがユニーク制約違反かを判定する。
// 同一URLの並行UPSERTで発生し、呼び出し元は再検索で解決する。
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == uniqueViolationCode
	}
	return false
}

// PostgresArticleRepo はPostgreSQLを使用した記事リポジトリ。
type PostgresArticleRepo struct {
	db *sql.DB
}

// NewPostgresArticleRepo はPostgresArticleRepoを生成する。
func NewPostgresArticleRepo(db *sql.DB) *PostgresArticleRepo {
	return &PostgresArticleRepo{db: db}
}

// FindByURL はURLで記事を検索する。見つからない場合はnilを返す。
func (r *PostgresArticleRepo) FindByURL(ctx context.Context, url string) (*model.Article, error) {
	article := &model.Article{}
	var publishedAt sql.NullTime

	err := r.db.QueryRowContext(ctx,
		`SELECT id, url, title, published_at, created_at
		 FROM articles WHERE url = $1`,
		url,
	).Scan(&article.ID, &article.URL, &article.Title, &publishedAt, &article.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("URLによる記事の検索に失敗しました: %w", err)
	}

	if publishedAt.Valid {
		article.PublishedAt = &publishedAt.Time
	}

	return article, nil
}

// Create は新規記事を作成する。ユニーク制約違反はそのまま返す。
func (r *PostgresArticleRepo) Create(ctx context.Context, article *model.Article) error {
	var publishedAt sql.NullTime
	if article.PublishedAt != nil {
		publishedAt = sql.NullTime{Time: *article.PublishedAt, Valid: true}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO articles (id, url, title, published_at, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		article.ID, article.URL, article.Title, publishedAt, article.CreatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return err
		}
		return fmt.Errorf("記事の作成に失敗しました: %w", err)
	}

	return nil
}
