package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/newsdispatcher/internal/model"
)

// PostgresQuerySpecRepo はPostgreSQLを使用したクエリセットリポジトリ。
type PostgresQuerySpecRepo struct {
	db *sql.DB
}

// NewPostgresQuerySpecRepo はPostgresQuerySpecRepoを生成する。
func NewPostgresQuerySpecRepo(db *sql.DB) *PostgresQuerySpecRepo {
	return &PostgresQuerySpecRepo{db: db}
}

// ListByRecipient は受信者のクエリセット一覧を名前順で返す。
func (r *PostgresQuerySpecRepo) ListByRecipient(ctx context.Context, recipientID string) ([]*model.QuerySpec, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, recipient_id, name, source, query_string, country,
		        max_results, after_days, auto_send, created_at
		 FROM query_specs WHERE recipient_id = $1 ORDER BY name`,
		recipientID,
	)
	if err != nil {
		return nil, fmt.Errorf("クエリセット一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var specs []*model.QuerySpec
	for rows.Next() {
		spec := &model.QuerySpec{}
		var source string
		if err := rows.Scan(&spec.ID, &spec.RecipientID, &spec.Name, &source,
			&spec.QueryString, &spec.Country, &spec.MaxResults, &spec.AfterDays,
			&spec.AutoSend, &spec.CreatedAt); err != nil {
			return nil, fmt.Errorf("クエリセットの読み取りに失敗しました: %w", err)
		}
		spec.Source = model.Source(source)
		specs = append(specs, spec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("クエリセット一覧の走査に失敗しました: %w", err)
	}

	return specs, nil
}
