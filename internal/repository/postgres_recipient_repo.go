package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/newsdispatcher/internal/model"
)

// PostgresRecipientRepo はPostgreSQLを使用した受信者リポジトリ。
type PostgresRecipientRepo struct {
	db *sql.DB
}

// NewPostgresRecipientRepo はPostgresRecipientRepoを生成する。
func NewPostgresRecipientRepo(db *sql.DB) *PostgresRecipientRepo {
	return &PostgresRecipientRepo{db: db}
}

// FindByID は指定IDの受信者を取得する。見つからない場合はnilを返す。
func (r *PostgresRecipientRepo) FindByID(ctx context.Context, id string) (*model.Recipient, error) {
	recipient := &model.Recipient{}

	err := r.db.QueryRowContext(ctx,
		`SELECT id, email, preferred_language, is_active, created_at
		 FROM recipients WHERE id = $1`,
		id,
	).Scan(&recipient.ID, &recipient.Email, &recipient.PreferredLanguage,
		&recipient.IsActive, &recipient.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("受信者の取得に失敗しました: %w", err)
	}

	return recipient, nil
}

// ListActive は有効な受信者の一覧をメールアドレス順で返す。
func (r *PostgresRecipientRepo) ListActive(ctx context.Context) ([]*model.Recipient, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, email, preferred_language, is_active, created_at
		 FROM recipients WHERE is_active = TRUE ORDER BY email`,
	)
	if err != nil {
		return nil, fmt.Errorf("受信者一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var recipients []*model.Recipient
	for rows.Next() {
		recipient := &model.Recipient{}
		if err := rows.Scan(&recipient.ID, &recipient.Email, &recipient.PreferredLanguage,
			&recipient.IsActive, &recipient.CreatedAt); err != nil {
			return nil, fmt.Errorf("受信者の読み取りに失敗しました: %w", err)
		}
		recipients = append(recipients, recipient)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("受信者一覧の走査に失敗しました: %w", err)
	}

	return recipients, nil
}
