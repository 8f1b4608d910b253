package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/hitoshi/newsdispatcher/internal/model"
	"github.com/hitoshi/newsdispatcher/internal/query"
	"github.com/hitoshi/newsdispatcher/internal/security"
)

// defaultGoogleNewsEndpoint はGoogle News RSS検索のエンドポイント。
const defaultGoogleNewsEndpoint = "https://news.google.com/rss/search"

// googleNewsLocale は国コードごとのフィードパラメータ。
type googleNewsLocale struct {
	hl   string
	gl   string
	ceid string
}

// googleNewsLocales は対応する国コードとそのロケール設定。
// 未知の国コードはJPにフォールバックする。
var googleNewsLocales = map[string]googleNewsLocale{
	"JP": {hl: "ja", gl: "JP", ceid: "JP:ja"},
	"US": {hl: "en", gl: "US", ceid: "US:en"},
	"CN": {hl: "zh-CN", gl: "CN", ceid: "CN:zh-Hans"},
	"KR": {hl: "ko", gl: "KR", ceid: "KR:ko"},
}

// GoogleNewsFetcher はGoogle News RSS検索から候補を取得するアダプタ。
//
// 日付下限はクエリ文字列のafter:句とエントリ単位のフィルタの両方で適用する。
// フィード側のafter:句は厳密ではないため、公開日時が判明しているエントリは
// アプリ側でも再度フィルタする。公開日時が不明なエントリは残す。
type GoogleNewsFetcher struct {
	httpClient *http.Client
	sanitizer  security.TitleSanitizerService
	logger     *slog.Logger
	endpoint   string           // テスト用にエンドポイントを差し替え可能
	now        func() time.Time // テスト用に現在時刻を差し替え可能
}

// NewGoogleNewsFetcher はGoogleNewsFetcherの新しいインスタンスを生成する。
func NewGoogleNewsFetcher(httpClient *http.Client, sanitizer security.TitleSanitizerService, logger *slog.Logger) *GoogleNewsFetcher {
	return &GoogleNewsFetcher{
		httpClient: httpClient,
		sanitizer:  sanitizer,
		logger:     logger,
		endpoint:   defaultGoogleNewsEndpoint,
		now:        time.Now,
	}
}

// Source はソース種別を返す。
func (f *GoogleNewsFetcher) Source() model.Source {
	return model.SourceGoogleNews
}

// Fetch はGoogle News RSSを検索して候補を返す。
// リトライは行わない。1回の失敗を即座にFetchErrorとして返す。
func (f *GoogleNewsFetcher) Fetch(ctx context.Context, spec *model.QuerySpec) (string, []model.Candidate, error) {
	now := f.now()
	effectiveQuery := query.WithAfterClause(spec.QueryString, spec.AfterDays, now)

	locale, ok := googleNewsLocales[spec.Country]
	if !ok {
		locale = googleNewsLocales["JP"]
	}

	reqURL, err := url.Parse(f.endpoint)
	if err != nil {
		return "", nil, model.NewFetchError(model.SourceGoogleNews, fmt.Errorf("エンドポイントURLのパースに失敗しました: %w", err))
	}
	q := reqURL.Query()
	q.Set("q", effectiveQuery)
	q.Set("hl", locale.hl)
	q.Set("gl", locale.gl)
	q.Set("ceid", locale.ceid)
	reqURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return "", nil, model.NewFetchError(model.SourceGoogleNews, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err))
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		f.logger.Error("Google Newsフィードの取得に失敗しました",
			slog.String("query", effectiveQuery),
			slog.String("country", spec.Country),
			slog.String("error", err.Error()),
		)
		return "", nil, model.NewFetchError(model.SourceGoogleNews, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		f.logger.Error("Google Newsがエラーステータスを返しました",
			slog.String("query", effectiveQuery),
			slog.Int("http_status", resp.StatusCode),
		)
		return "", nil, model.NewFetchError(model.SourceGoogleNews,
			fmt.Errorf("Google Newsがステータス %d を返しました", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil, model.NewFetchError(model.SourceGoogleNews, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err))
	}

	parser := gofeed.NewParser()
	feed, err := parser.ParseString(string(body))
	if err != nil {
		return "", nil, model.NewFetchError(model.SourceGoogleNews, fmt.Errorf("RSSフィードのパースに失敗しました: %w", err))
	}

	candidates := make([]model.Candidate, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil || item.Link == "" || item.Title == "" {
			continue
		}

		var publishedAt *time.Time
		if item.PublishedParsed != nil {
			t := item.PublishedParsed.UTC()
			publishedAt = &t
		}

		// 公開日時が判明しているエントリのみ日付下限を適用する
		if publishedAt != nil && !withinWindow(*publishedAt, spec.AfterDays, now) {
			continue
		}

		candidates = append(candidates, model.Candidate{
			URL:         item.Link,
			Title:       f.sanitizer.Sanitize(item.Title),
			PublishedAt: publishedAt,
		})
	}

	f.logger.Debug("Google Newsフィードを取得しました",
		slog.String("query", effectiveQuery),
		slog.Int("entries", len(feed.Items)),
		slog.Int("candidates", len(candidates)),
	)

	return effectiveQuery, candidates, nil
}
