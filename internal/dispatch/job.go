package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/newsdispatcher/internal/metrics"
	"github.com/hitoshi/newsdispatcher/internal/model"
	"github.com/hitoshi/newsdispatcher/internal/pipeline"
	"github.com/hitoshi/newsdispatcher/internal/repository"
)

// PipelineRunner は記事取得パイプラインのインターフェース。
// テスト時にモックに差し替え可能。
type PipelineRunner interface {
	Run(ctx context.Context, recipient *model.Recipient, spec *model.QuerySpec, opts pipeline.Options) (string, []*model.Article, error)
}

// JobConfig は配信ジョブの設定パラメータ。
// 環境変数から設定可能。
type JobConfig struct {
	// DispatchInterval はジョブの実行間隔（デフォルト: 24時間）。
	DispatchInterval time.Duration
	// FetchSpacing はクエリセットごとのフェッチの最低間隔（デフォルト: 5秒）。
	FetchSpacing time.Duration
	// DryRun がtrueの場合、記事の永続化・配信ログ・メール送信を行わない。
	DryRun bool
	// DisableTranslation がtrueの場合、タイトル翻訳を行わない。
	DisableTranslation bool
}

// Job は全有効受信者へのダイジェスト配信を行うバッチジョブ。
// 受信者 × 自動送信クエリセットの組ごとにパイプラインを実行し、
// 取得できた記事をまとめて1通のダイジェストメールとして送信する。
type Job struct {
	orchestrator  PipelineRunner
	recipientRepo repository.RecipientRepository
	queryRepo     repository.QuerySpecRepository
	deliveryRepo  repository.DeliveryRepository
	mailer        Mailer
	collector     metrics.MetricsCollector
	logger        *slog.Logger
	config        JobConfig
	now           func() time.Time
}

// NewJob はJobの新しいインスタンスを生成する。
func NewJob(
	orchestrator PipelineRunner,
	recipientRepo repository.RecipientRepository,
	queryRepo repository.QuerySpecRepository,
	deliveryRepo repository.DeliveryRepository,
	mailer Mailer,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	config JobConfig,
) *Job {
	return &Job{
		orchestrator:  orchestrator,
		recipientRepo: recipientRepo,
		queryRepo:     queryRepo,
		deliveryRepo:  deliveryRepo,
		mailer:        mailer,
		collector:     collector,
		logger:        logger,
		config:        config,
		now:           time.Now,
	}
}

// Start は配信ジョブをティッカーで定期実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (j *Job) Start(ctx context.Context) {
	ticker := time.NewTicker(j.config.DispatchInterval)
	defer ticker.Stop()

	j.logger.Info("配信ジョブを開始しました",
		slog.Duration("dispatch_interval", j.config.DispatchInterval),
		slog.Duration("fetch_spacing", j.config.FetchSpacing),
		slog.Bool("dry_run", j.config.DryRun),
	)

	// 起動直後に1回実行
	if err := j.RunOnce(ctx); err != nil {
		j.logger.Error("配信サイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("配信ジョブを停止しました")
			return
		case <-ticker.C:
			if err := j.RunOnce(ctx); err != nil {
				j.logger.Error("配信サイクルの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce は1回の配信サイクルを実行する。
// 有効な受信者ごとにダイジェストを組み立ててメール送信する。
// 受信者単位の失敗はログに記録して次の受信者へ進む。
func (j *Job) RunOnce(ctx context.Context) error {
	start := j.now()

	recipients, err := j.recipientRepo.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("有効な受信者の取得に失敗しました: %w", err)
	}

	if len(recipients) == 0 {
		j.logger.Info("配信対象の受信者がいません")
		return nil
	}

	j.logger.Info("配信サイクルを開始します",
		slog.Int("recipients", len(recipients)),
	)

	var sentCount int
	for _, recipient := range recipients {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err := j.dispatchToRecipient(ctx, recipient); err != nil {
			j.logger.Error("受信者への配信に失敗しました",
				slog.String("recipient_id", recipient.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		sentCount++
	}

	j.logger.Info("配信サイクルが完了しました",
		slog.Int("recipients", len(recipients)),
		slog.Int("dispatched", sentCount),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return nil
}

// dispatchToRecipient は1受信者のダイジェストを組み立てて送信する。
// クエリセット単位のフェッチ失敗はログに記録し、他のクエリセットの
// 処理を継続する（1ソースの障害が他ソースの配信を妨げないように）。
func (j *Job) dispatchToRecipient(ctx context.Context, recipient *model.Recipient) error {
	specs, err := j.queryRepo.ListByRecipient(ctx, recipient.ID)
	if err != nil {
		return fmt.Errorf("クエリセットの取得に失敗しました: %w", err)
	}

	opts := pipeline.Options{
		DryRun:            j.config.DryRun,
		EnableTranslation: !j.config.DisableTranslation,
	}

	digest := &Digest{}
	var fetched int
	for _, spec := range specs {
		if !spec.AutoSend {
			continue
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		// フェッチ間隔（初回は待たない）
		if fetched > 0 && j.config.FetchSpacing > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(j.config.FetchSpacing):
			}
		}
		fetched++

		fetchStart := j.now()
		effectiveQuery, articles, err := j.orchestrator.Run(ctx, recipient, spec, opts)
		j.collector.RecordFetchLatency(string(spec.Source), time.Since(fetchStart))
		if err != nil {
			j.collector.RecordFetchFailure(string(spec.Source))
			var fetchErr *model.FetchError
			if errors.As(err, &fetchErr) {
				j.logger.Error("クエリセットのフェッチに失敗したためスキップします",
					slog.String("recipient_id", recipient.ID),
					slog.String("query_spec", spec.Name),
					slog.String("source", string(spec.Source)),
					slog.String("error", err.Error()),
				)
				continue
			}
			return err
		}
		j.collector.RecordFetchSuccess(string(spec.Source))

		if len(articles) == 0 {
			continue
		}

		digest.Sections = append(digest.Sections, DigestSection{
			QueryName:      spec.Name,
			EffectiveQuery: effectiveQuery,
			Articles:       articles,
		})
	}

	if digest.ArticleCount() == 0 {
		j.logger.Info("新着記事がないためメール送信をスキップします",
			slog.String("recipient_id", recipient.ID),
		)
		return nil
	}

	if j.config.DryRun {
		j.logger.Info("ドライランのためメール送信と配信ログの記録をスキップします",
			slog.String("recipient_id", recipient.ID),
			slog.Int("articles", digest.ArticleCount()),
		)
		return nil
	}

	if err := j.mailer.SendDigest(recipient.Email, digest); err != nil {
		j.collector.RecordMailFailure()
		return err
	}
	j.collector.RecordMailSent()
	j.collector.RecordArticlesDelivered(digest.ArticleCount())

	// 配信ログは送信成功後に記録する。既存ペアは無視されるため冪等。
	created, err := j.deliveryRepo.CreateMissing(ctx, recipient.ID, digest.ArticleIDs(), j.now())
	if err != nil {
		return fmt.Errorf("配信ログの記録に失敗しました: %w", err)
	}

	j.logger.Info("ダイジェストメールを送信しました",
		slog.String("recipient_id", recipient.ID),
		slog.Int("sections", len(digest.Sections)),
		slog.Int("articles", digest.ArticleCount()),
		slog.Int("delivery_records", created),
	)

	return nil
}
