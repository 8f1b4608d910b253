// Package handler はHTTP APIのハンドラーとルーティングを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/newsdispatcher/internal/model"
	"github.com/hitoshi/newsdispatcher/internal/source"
)

// previewMaxResults はプレビューで許可する記事数の上限。
const previewMaxResults = 20

// PreviewHandler はクエリのプレビュー実行を提供するHTTPハンドラー。
// 受信者を介さずにフェッチのみ行い、永続化・重複排除・翻訳は行わない。
type PreviewHandler struct {
	fetchers map[model.Source]source.Fetcher
	logger   *slog.Logger
}

// NewPreviewHandler はPreviewHandlerを生成する。
func NewPreviewHandler(fetchers []source.Fetcher, logger *slog.Logger) *PreviewHandler {
	bysource := make(map[model.Source]source.Fetcher, len(fetchers))
	for _, f := range fetchers {
		bysource[f.Source()] = f
	}
	return &PreviewHandler{fetchers: bysource, logger: logger}
}

// previewRequest はプレビューリクエストのボディ。
type previewRequest struct {
	Source     string `json:"source"`
	Query      string `json:"query"`
	Country    string `json:"country,omitempty"`
	MaxResults int    `json:"max_results,omitempty"`
	AfterDays  int    `json:"after_days,omitempty"`
}

// previewArticleResponse はプレビュー結果の記事1件。
type previewArticleResponse struct {
	Title       string     `json:"title"`
	URL         string     `json:"url"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

// previewResponse はプレビューのレスポンス。
type previewResponse struct {
	EffectiveQuery string                   `json:"effective_query"`
	Articles       []previewArticleResponse `json:"articles"`
}

// Preview はクエリを1回実行して結果を返す。
// POST /api/preview
func (h *PreviewHandler) Preview(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "INVALID_REQUEST", "リクエストボディが不正です。")
		return
	}

	if req.Query == "" {
		writeErrorResponse(w, http.StatusBadRequest, "QUERY_REQUIRED", "queryは必須です。")
		return
	}

	src := model.Source(req.Source)
	if !src.IsValid() {
		writeErrorResponse(w, http.StatusBadRequest, "INVALID_SOURCE", "sourceはgoogle_news, cinii, arxivのいずれかを指定してください。")
		return
	}

	fetcher, ok := h.fetchers[src]
	if !ok {
		writeErrorResponse(w, http.StatusBadRequest, "SOURCE_UNAVAILABLE", "指定されたソースは現在利用できません。")
		return
	}

	maxResults := req.MaxResults
	if maxResults <= 0 || maxResults > previewMaxResults {
		maxResults = previewMaxResults
	}

	spec := &model.QuerySpec{
		Name:        "preview",
		Source:      src,
		QueryString: req.Query,
		Country:     req.Country,
		MaxResults:  maxResults,
		AfterDays:   req.AfterDays,
	}

	effectiveQuery, candidates, err := fetcher.Fetch(r.Context(), spec)
	if err != nil {
		var fetchErr *model.FetchError
		if errors.As(err, &fetchErr) {
			h.logger.Warn("プレビューのフェッチに失敗しました",
				slog.String("source", string(src)),
				slog.String("error", err.Error()),
			)
			writeErrorResponse(w, http.StatusBadGateway, "FETCH_FAILED", "外部ソースからの取得に失敗しました。")
			return
		}
		h.logger.Error("プレビューの実行に失敗しました",
			slog.String("error", err.Error()),
		)
		writeInternalServerError(w)
		return
	}

	if len(candidates) > maxResults {
		candidates = candidates[:maxResults]
	}

	resp := previewResponse{
		EffectiveQuery: effectiveQuery,
		Articles:       make([]previewArticleResponse, 0, len(candidates)),
	}
	for _, c := range candidates {
		resp.Articles = append(resp.Articles, previewArticleResponse{
			Title:       c.Title,
			URL:         c.URL,
			PublishedAt: c.PublishedAt,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// errorResponseBody はAPIエラーレスポンスの統一フォーマット。
type errorResponseBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
func writeErrorResponse(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(errorResponseBody{Code: code, Message: message})
}

// writeInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func writeInternalServerError(w http.ResponseWriter) {
	writeErrorResponse(w, http.StatusInternalServerError, "INTERNAL_ERROR", "内部エラーが発生しました。")
}
