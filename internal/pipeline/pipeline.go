// Package pipeline は取得→重複排除→永続化→翻訳のパイプラインを統括する。
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/newsdispatcher/internal/article"
	"github.com/hitoshi/newsdispatcher/internal/dedup"
	"github.com/hitoshi/newsdispatcher/internal/model"
	"github.com/hitoshi/newsdispatcher/internal/source"
	"github.com/hitoshi/newsdispatcher/internal/translate"
)

// Options は1回のパイプライン実行のオプション。
type Options struct {
	// DryRun がtrueの場合、記事の永続化を行わない。
	DryRun bool
	// EnableTranslation がtrueの場合、ソース言語と受信者の希望言語が
	// 異なるときにタイトルを翻訳する。
	EnableTranslation bool
}

// countryLanguages はGoogle Newsの国コードからソース言語を解決する。
var countryLanguages = map[string]string{
	"JP": "Japanese",
	"US": "English",
	"CN": "Chinese",
	"KR": "Korean",
}

// Orchestrator は (受信者, クエリセット) の組ごとにパイプラインを実行する。
//
// フロー: 配信済み集合のロード → フェッチ → URLによる事前フィルタ →
// 永続化 → 記事IDによる事後フィルタ → 件数の切り詰め → （必要なら）翻訳。
// 事後フィルタが必要なのは、同一URLが既存のArticleに解決された場合に
// そのArticleが配信済みである可能性を事前フィルタでは検知できないため。
type Orchestrator struct {
	fetchers        map[model.Source]source.Fetcher
	seenLoader      *dedup.Loader
	store           *article.Store
	batcher         *translate.Batcher
	logger          *slog.Logger
	defaultLanguage string
}

// NewOrchestrator はOrchestratorの新しいインスタンスを生成する。
// defaultLanguageは受信者が希望言語を未設定の場合に使用する。
func NewOrchestrator(
	fetchers []source.Fetcher,
	seenLoader *dedup.Loader,
	store *article.Store,
	batcher *translate.Batcher,
	logger *slog.Logger,
	defaultLanguage string,
) *Orchestrator {
	bysource := make(map[model.Source]source.Fetcher, len(fetchers))
	for _, f := range fetchers {
		bysource[f.Source()] = f
	}
	return &Orchestrator{
		fetchers:        bysource,
		seenLoader:      seenLoader,
		store:           store,
		batcher:         batcher,
		logger:          logger,
		defaultLanguage: defaultLanguage,
	}
}

// Run はパイプラインを1回実行する。
// 戻り値は実際に使用したクエリ文字列と、重複排除・翻訳済みの記事リスト。
// フェッチの失敗はmodel.FetchErrorとして返し、部分結果は返さない。
func (o *Orchestrator) Run(ctx context.Context, recipient *model.Recipient, spec *model.QuerySpec, opts Options) (string, []*model.Article, error) {
	fetcher, ok := o.fetchers[spec.Source]
	if !ok {
		return "", nil, fmt.Errorf("未対応のソースです: %s", spec.Source)
	}

	// 配信済み集合は最初の候補を評価する前に1回だけロードする
	seen, err := o.seenLoader.LoadSeen(ctx, recipient.ID)
	if err != nil {
		return "", nil, err
	}

	effectiveQuery, candidates, err := fetcher.Fetch(ctx, spec)
	if err != nil {
		return "", nil, err
	}

	articles := make([]*model.Article, 0, len(candidates))
	for _, cand := range candidates {
		// 多めに取得した候補プール全体を永続化しないよう、
		// 採用数が要求件数に達した時点で打ち切る
		if spec.MaxResults > 0 && len(articles) >= spec.MaxResults {
			break
		}

		// 事前フィルタ: 配信済みURLは永続化の前に除外する
		if seen.ContainsURL(cand.URL) {
			continue
		}

		a, existed, err := o.store.Upsert(ctx, cand, opts.DryRun)
		if err != nil {
			return "", nil, err
		}

		// 事後フィルタ: 既存Articleに解決された場合、そのArticleが
		// 別URL経由で既に配信済みのことがある
		if existed && seen.ContainsArticleID(a.ID) {
			continue
		}

		articles = append(articles, a)
	}

	// 重複排除で要求件数を下回ることを見越して多めに取得しているため、
	// ここで改めて切り詰める
	if spec.MaxResults > 0 && len(articles) > spec.MaxResults {
		articles = articles[:spec.MaxResults]
	}

	if opts.EnableTranslation {
		o.translateTitles(ctx, recipient, spec, articles)
	}

	o.logger.Info("パイプラインが完了しました",
		slog.String("recipient_id", recipient.ID),
		slog.String("query_spec", spec.Name),
		slog.String("source", string(spec.Source)),
		slog.Int("candidates", len(candidates)),
		slog.Int("articles", len(articles)),
		slog.Bool("dry_run", opts.DryRun),
	)

	return effectiveQuery, articles, nil
}

// translateTitles は記事タイトルを受信者の希望言語に翻訳する。
// ソース言語と希望言語が同じ場合は何もしない。翻訳結果は返却する
// 記事のタイトルのみを置き換え、保存済みのタイトルは変更しない。
func (o *Orchestrator) translateTitles(ctx context.Context, recipient *model.Recipient, spec *model.QuerySpec, articles []*model.Article) {
	if len(articles) == 0 || o.batcher == nil {
		return
	}

	targetLanguage := recipient.PreferredLanguage
	if targetLanguage == "" {
		targetLanguage = o.defaultLanguage
	}

	if o.sourceLanguage(spec) == targetLanguage {
		o.logger.Debug("ソース言語と希望言語が同じため翻訳をスキップします",
			slog.String("language", targetLanguage),
		)
		return
	}

	titles := make([]string, len(articles))
	for i, a := range articles {
		titles[i] = a.Title
	}

	translated := o.batcher.TranslateBatch(ctx, titles, targetLanguage)
	for i, a := range articles {
		a.Title = translated[i]
	}
}

// sourceLanguage はクエリセットのソース言語を解決する。
// Google Newsは国コードに従う。CiNiiは日本語、arXivは英語で固定。
func (o *Orchestrator) sourceLanguage(spec *model.QuerySpec) string {
	switch spec.Source {
	case model.SourceGoogleNews:
		if lang, ok := countryLanguages[spec.Country]; ok {
			return lang
		}
		return "Japanese"
	case model.SourceCiNii:
		return "Japanese"
	case model.SourceArxiv:
		return "English"
	}
	return ""
}
