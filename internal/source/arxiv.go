package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/hitoshi/newsdispatcher/internal/model"
	"github.com/hitoshi/newsdispatcher/internal/security"
)

const (
	// defaultArxivEndpoint はarXiv APIのクエリエンドポイント。
	// https://info.arxiv.org/help/api/user-manual.html
	defaultArxivEndpoint = "https://export.arxiv.org/api/query"
	// arxivMaxResults はarXiv APIへ要求する最大件数。
	arxivMaxResults = 100
)

// ArxivFetcher はarXivからプレプリント候補を取得するアダプタ。
// 提出日の降順でソートされたAtomフィードを取得する。
type ArxivFetcher struct {
	httpClient      *http.Client
	sanitizer       security.TitleSanitizerService
	logger          *slog.Logger
	overfetchFactor int
	endpoint        string           // テスト用にエンドポイントを差し替え可能
	now             func() time.Time // テスト用に現在時刻を差し替え可能
}

// NewArxivFetcher はArxivFetcherの新しいインスタンスを生成する。
func NewArxivFetcher(httpClient *http.Client, sanitizer security.TitleSanitizerService, logger *slog.Logger, overfetchFactor int) *ArxivFetcher {
	return &ArxivFetcher{
		httpClient:      httpClient,
		sanitizer:       sanitizer,
		logger:          logger,
		overfetchFactor: overfetchFactor,
		endpoint:        defaultArxivEndpoint,
		now:             time.Now,
	}
}

// Source はソース種別を返す。
func (f *ArxivFetcher) Source() model.Source {
	return model.SourceArxiv
}

// Fetch はarXiv APIを検索して候補を返す。
// リトライは行わない。重複排除後の切り詰めを見越して、
// 要求件数の数倍（上限100件）を取得する。
func (f *ArxivFetcher) Fetch(ctx context.Context, spec *model.QuerySpec) (string, []model.Candidate, error) {
	if spec.QueryString == "" {
		return "", nil, nil
	}

	now := f.now()
	maxResults := spec.MaxResults * f.overfetchFactor
	if maxResults > arxivMaxResults {
		maxResults = arxivMaxResults
	}

	reqURL, err := url.Parse(f.endpoint)
	if err != nil {
		return "", nil, model.NewFetchError(model.SourceArxiv, fmt.Errorf("エンドポイントURLのパースに失敗しました: %w", err))
	}
	q := reqURL.Query()
	q.Set("search_query", spec.QueryString)
	q.Set("start", "0")
	q.Set("max_results", strconv.Itoa(maxResults))
	q.Set("sortBy", "submittedDate")
	q.Set("sortOrder", "descending")
	reqURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return "", nil, model.NewFetchError(model.SourceArxiv, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err))
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		f.logger.Error("arXiv APIの呼び出しに失敗しました",
			slog.String("query", spec.QueryString),
			slog.String("error", err.Error()),
		)
		return "", nil, model.NewFetchError(model.SourceArxiv, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		f.logger.Error("arXiv APIがエラーステータスを返しました",
			slog.String("query", spec.QueryString),
			slog.Int("http_status", resp.StatusCode),
		)
		return "", nil, model.NewFetchError(model.SourceArxiv,
			fmt.Errorf("arXiv APIがステータス %d を返しました", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil, model.NewFetchError(model.SourceArxiv, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err))
	}

	parser := gofeed.NewParser()
	feed, err := parser.ParseString(string(body))
	if err != nil {
		return "", nil, model.NewFetchError(model.SourceArxiv, fmt.Errorf("Atomフィードのパースに失敗しました: %w", err))
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

	f.logger.Debug("arXiv検索結果を取得しました",
		slog.String("query", spec.QueryString),
		slog.Int("entries", len(feed.Items)),
		slog.Int("candidates", len(candidates)),
	)

	return spec.QueryString, candidates, nil
}
