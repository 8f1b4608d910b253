package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// defaultGeminiBaseURL はGemini APIのベースURL。
const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com"

// GeminiClient はGemini APIによるタイトル翻訳クライアント。
type GeminiClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	apiKey     string
	model      string
	baseURL    string // テスト用にベースURLを差し替え可能
}

// NewGeminiClient はGeminiClientの新しいインスタンスを生成する。
func NewGeminiClient(httpClient *http.Client, logger *slog.Logger, apiKey string, model string) *GeminiClient {
	return &GeminiClient{
		httpClient: httpClient,
		logger:     logger,
		apiKey:     apiKey,
		model:      model,
		baseURL:    defaultGeminiBaseURL,
	}
}

// Name はバックエンド名を返す。
func (c *GeminiClient) Name() string {
	return "gemini"
}

// geminiRequest はgenerateContentエンドポイントへのリクエストボディ。
type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerationConfig struct {
	Temperature      float64 `json:"temperature"`
	ResponseMimeType string  `json:"responseMimeType"`
}

// geminiResponse はgenerateContentエンドポイントのレスポンスボディ。
type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// TranslateTitles はGemini APIでタイトルのリストを翻訳する。
// temperature 0 + JSONレスポンス指定で出力を安定させる。
func (c *GeminiClient) TranslateTitles(ctx context.Context, titles []string, targetLanguage string) ([]string, error) {
	if len(titles) == 0 {
		return []string{}, nil
	}

	titlesJSON, err := json.Marshal(titles)
	if err != nil {
		return nil, fmt.Errorf("タイトルリストのJSON化に失敗しました: %w", err)
	}

	reqBody := geminiRequest{
		Contents: []geminiContent{
			{Parts: []geminiPart{{Text: translationPrompt(targetLanguage, string(titlesJSON))}}},
		},
		GenerationConfig: geminiGenerationConfig{
			Temperature:      0,
			ResponseMimeType: "application/json",
		},
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("リクエストボディのJSON化に失敗しました: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("Gemini APIの呼び出しに失敗しました: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("Gemini APIがステータス %d を返しました: %s",
			resp.StatusCode, strings.TrimSpace(string(errBody)))
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	var result geminiResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}

	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("Gemini APIが空のレスポンスを返しました")
	}

	text := result.Candidates[0].Content.Parts[0].Text
	var translated []string
	if err := json.Unmarshal([]byte(extractJSONArray(text)), &translated); err != nil {
		return nil, fmt.Errorf("翻訳結果の配列のパースに失敗しました: %w", err)
	}

	return translated, nil
}
