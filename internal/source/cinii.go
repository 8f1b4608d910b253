package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/newsdispatcher/internal/model"
	"github.com/hitoshi/newsdispatcher/internal/security"
)

const (
	// defaultCiNiiEndpoint はCiNii Research OpenSearch APIの論文検索エンドポイント。
	defaultCiNiiEndpoint = "https://cir.nii.ac.jp/opensearch/v2/articles"
	// ciniiMaxCount はCiNii APIの1リクエストあたりの最大取得件数。
	ciniiMaxCount = 200
	// ciniiMaxAttempts は403応答時の最大試行回数。
	ciniiMaxAttempts = 3
	// ciniiRetryWait は403応答後の再試行までの待機時間。
	// CiNiiはレート超過を403で返すため、固定間隔で待ってから再試行する。
	ciniiRetryWait = 10 * time.Second
)

// ciniiResponse はCiNii OpenSearch APIのJSONレスポンス。
type ciniiResponse struct {
	Items []ciniiItem `json:"items"`
}

// ciniiItem は検索結果の1エントリ。
type ciniiItem struct {
	Title string `json:"title"`
	Link  struct {
		ID string `json:"@id"`
	} `json:"link"`
	PublicationDate string `json:"prism:publicationDate"`
}

// CiNiiFetcher はCiNii Researchから論文候補を取得するアダプタ。
//
// CiNiiのpublicationDateは年のみ・年月のみの部分日付を含むため、
// 部分日付は期間の先頭（1月1日 / 月初）として解釈する。
// 公開日時を解決できないエントリは日付フィルタを適用できないため除外する。
type CiNiiFetcher struct {
	httpClient      *http.Client
	sanitizer       security.TitleSanitizerService
	logger          *slog.Logger
	appID           string
	overfetchFactor int
	limiter         *rate.Limiter
	endpoint        string           // テスト用にエンドポイントを差し替え可能
	retryWait       time.Duration    // テスト用に待機時間を差し替え可能
	now             func() time.Time // テスト用に現在時刻を差し替え可能
}

// NewCiNiiFetcher はCiNiiFetcherの新しいインスタンスを生成する。
// apiIntervalはCiNii APIへのリクエストの最小間隔。
func NewCiNiiFetcher(
	httpClient *http.Client,
	sanitizer security.TitleSanitizerService,
	logger *slog.Logger,
	appID string,
	overfetchFactor int,
	apiInterval time.Duration,
) *CiNiiFetcher {
	return &CiNiiFetcher{
		httpClient:      httpClient,
		sanitizer:       sanitizer,
		logger:          logger,
		appID:           appID,
		overfetchFactor: overfetchFactor,
		limiter:         rate.NewLimiter(rate.Every(apiInterval), 1),
		endpoint:        defaultCiNiiEndpoint,
		retryWait:       ciniiRetryWait,
		now:             time.Now,
	}
}

// Source はソース種別を返す。
func (f *CiNiiFetcher) Source() model.Source {
	return model.SourceCiNii
}

// Fetch はCiNii Researchを検索して候補を返す。
// 重複排除後の切り詰めを見越して、要求件数の数倍（上限200件）を取得する。
func (f *CiNiiFetcher) Fetch(ctx context.Context, spec *model.QuerySpec) (string, []model.Candidate, error) {
	if spec.QueryString == "" {
		return "", nil, nil
	}

	now := f.now()
	count := spec.MaxResults * f.overfetchFactor
	if count > ciniiMaxCount {
		count = ciniiMaxCount
	}

	reqURL, err := url.Parse(f.endpoint)
	if err != nil {
		return "", nil, model.NewFetchError(model.SourceCiNii, fmt.Errorf("エンドポイントURLのパースに失敗しました: %w", err))
	}
	q := reqURL.Query()
	q.Set("q", spec.QueryString)
	q.Set("format", "json")
	q.Set("count", strconv.Itoa(count))
	q.Set("sortorder", "0")
	q.Set("start", "1")
	if f.appID != "" {
		q.Set("appid", f.appID)
	}
	if spec.AfterDays > 0 {
		// CiNii側の絞り込みは年単位。日単位の下限はアプリ側で適用する。
		startYear := now.AddDate(0, 0, -spec.AfterDays).Year()
		q.Set("from", strconv.Itoa(startYear))
	}
	reqURL.RawQuery = q.Encode()

	body, err := f.getWithRetry(ctx, reqURL.String(), spec.QueryString)
	if err != nil {
		return "", nil, err
	}

	var result ciniiResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", nil, model.NewFetchError(model.SourceCiNii, fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err))
	}

	candidates := make([]model.Candidate, 0, len(result.Items))
	for _, item := range result.Items {
		if item.Link.ID == "" || item.Title == "" {
			continue
		}

		publishedAt := f.parseDate(item.PublicationDate)
		if publishedAt == nil {
			continue
		}
		if !withinWindow(*publishedAt, spec.AfterDays, now) {
			continue
		}

		candidates = append(candidates, model.Candidate{
			URL:         item.Link.ID,
			Title:       f.sanitizer.Sanitize(item.Title),
			PublishedAt: publishedAt,
		})
	}

	f.logger.Debug("CiNii検索結果を取得しました",
		slog.String("query", spec.QueryString),
		slog.Int("entries", len(result.Items)),
		slog.Int("candidates", len(candidates)),
	)

	return spec.QueryString, candidates, nil
}

// getWithRetry はレート制限を守りながらGETし、403の場合は固定間隔で再試行する。
// 403以外のエラーステータスは即座にFetchErrorとして返す。
func (f *CiNiiFetcher) getWithRetry(ctx context.Context, reqURL string, queryStr string) ([]byte, error) {
	var lastStatus int

	for attempt := 1; attempt <= ciniiMaxAttempts; attempt++ {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, model.NewFetchError(model.SourceCiNii, err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, model.NewFetchError(model.SourceCiNii, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err))
		}
		req.Header.Set("User-Agent", userAgent)

		resp, err := f.httpClient.Do(req)
		if err != nil {
			f.logger.Error("CiNii APIの呼び出しに失敗しました",
				slog.String("query", queryStr),
				slog.String("error", err.Error()),
			)
			return nil, model.NewFetchError(model.SourceCiNii, err)
		}

		if resp.StatusCode == http.StatusForbidden {
			resp.Body.Close()
			lastStatus = resp.StatusCode
			f.logger.Warn("CiNii APIが403を返しました。待機後に再試行します",
				slog.String("query", queryStr),
				slog.Int("attempt", attempt),
				slog.Int("max_attempts", ciniiMaxAttempts),
			)
			if attempt < ciniiMaxAttempts {
				if err := sleepContext(ctx, f.retryWait); err != nil {
					return nil, model.NewFetchError(model.SourceCiNii, err)
				}
			}
			continue
		}

		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			f.logger.Error("CiNii APIがエラーステータスを返しました",
				slog.String("query", queryStr),
				slog.Int("http_status", resp.StatusCode),
			)
			return nil, model.NewFetchError(model.SourceCiNii,
				fmt.Errorf("CiNii APIがステータス %d を返しました", resp.StatusCode))
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, model.NewFetchError(model.SourceCiNii, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err))
		}
		return body, nil
	}

	return nil, model.NewFetchError(model.SourceCiNii,
		fmt.Errorf("CiNii APIがステータス %d を返しました（%d回試行）", lastStatus, ciniiMaxAttempts))
}

// parseDate はCiNiiのpublicationDateをパースする。
// "2020"（年のみ）、"2020-05"（年月のみ）、"2020-05-17"やISO-8601の完全な日付に対応する。
// パースできない場合はnilを返す。
func (f *CiNiiFetcher) parseDate(dateStr string) *time.Time {
	if dateStr == "" {
		return nil
	}

	var t time.Time
	var err error
	switch {
	case len(dateStr) == 4:
		var year int
		year, err = strconv.Atoi(dateStr)
		if err == nil {
			t = time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
		}
	case len(dateStr) == 7:
		t, err = time.Parse("2006-01", dateStr)
	case len(dateStr) >= 10:
		t, err = time.Parse(time.RFC3339, dateStr)
		if err != nil {
			t, err = time.Parse("2006-01-02", dateStr[:10])
		}
	default:
		f.logger.Warn("解釈できない形式の公開日です", slog.String("date", dateStr))
		return nil
	}

	if err != nil {
		f.logger.Warn("公開日のパースに失敗しました",
			slog.String("date", dateStr),
			slog.String("error", err.Error()),
		)
		return nil
	}

	t = t.UTC()
	return &t
}
