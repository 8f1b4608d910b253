package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// PostgresDeliveryRepo はPostgreSQLを使用した配信ログリポジトリ。
type PostgresDeliveryRepo struct {
	db *sql.DB
}

// NewPostgresDeliveryRepo はPostgresDeliveryRepoを生成する。
func NewPostgresDeliveryRepo(db *sql.DB) *PostgresDeliveryRepo {
	return &PostgresDeliveryRepo{db: db}
}

// ListSeenByRecipient は受信者の配信済み記事（ID・URL）を一括取得する。
func (r *PostgresDeliveryRepo) ListSeenByRecipient(ctx context.Context, recipientID string) ([]SeenArticle, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT a.id, a.url
		 FROM delivery_records d
		 JOIN articles a ON a.id = d.article_id
		 WHERE d.recipient_id = $1`,
		recipientID,
	)
	if err != nil {
		return nil, fmt.Errorf("配信済み記事の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var seen []SeenArticle
	for rows.Next() {
		var s SeenArticle
		if err := rows.Scan(&s.ArticleID, &s.URL); err != nil {
			return nil, fmt.Errorf("配信済み記事の読み取りに失敗しました: %w", err)
		}
		seen = append(seen, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("配信済み記事の走査に失敗しました: %w", err)
	}

	return seen, nil
}

// CreateMissing は未記録の (recipient, article) ペアのみ配信ログを一括登録する。
// ON CONFLICT DO NOTHINGにより既存ペアは無視され、冪等に動作する。
func (r *PostgresDeliveryRepo) CreateMissing(ctx context.Context, recipientID string, articleIDs []string, deliveredAt time.Time) (int, error) {
	if len(articleIDs) == 0 {
		return 0, nil
	}

	ids := make([]string, len(articleIDs))
	for i := range articleIDs {
		ids[i] = uuid.New().String()
	}

	result, err := r.db.ExecContext(ctx,
		`INSERT INTO delivery_records (id, recipient_id, article_id, delivered_at)
		 SELECT unnest($1::uuid[]), $2, unnest($3::uuid[]), $4
		 ON CONFLICT (recipient_id, article_id) DO NOTHING`,
		pq.Array(ids), recipientID, pq.Array(articleIDs), deliveredAt,
	)
	if err != nil {
		return 0, fmt.Errorf("配信ログの登録に失敗しました: %w", err)
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("配信ログの登録件数の取得に失敗しました: %w", err)
	}

	return int(inserted), nil
}
