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

// defaultOpenAIBaseURL はOpenAI APIのベースURL。
// OpenAI互換エンドポイント（Azure等）を使う場合は設定で差し替える。
const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAIClient はOpenAI Chat Completions APIによるタイトル翻訳クライアント。
type OpenAIClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	apiKey     string
	model      string
	baseURL    string
}

// NewOpenAIClient はOpenAIClientの新しいインスタンスを生成する。
// baseURLが空の場合は公式エンドポイントを使用する。
func NewOpenAIClient(httpClient *http.Client, logger *slog.Logger, apiKey string, model string, baseURL string) *OpenAIClient {
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	return &OpenAIClient{
		httpClient: httpClient,
		logger:     logger,
		apiKey:     apiKey,
		model:      model,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
	}
}

// Name はバックエンド名を返す。
func (c *OpenAIClient) Name() string {
	return "openai"
}

// openaiRequest はChat Completionsエンドポイントへのリクエストボディ。
type openaiRequest struct {
	Model       string          `json:"model"`
	Messages    []openaiMessage `json:"messages"`
	Temperature float64         `json:"temperature"`
}

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// openaiResponse はChat Completionsエンドポイントのレスポンスボディ。
type openaiResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// TranslateTitles はOpenAI APIでタイトルのリストを翻訳する。
func (c *OpenAIClient) TranslateTitles(ctx context.Context, titles []string, targetLanguage string) ([]string, error) {
	if len(titles) == 0 {
		return []string{}, nil
	}

	titlesJSON, err := json.Marshal(titles)
	if err != nil {
		return nil, fmt.Errorf("タイトルリストのJSON化に失敗しました: %w", err)
	}

	systemPrompt := "You are a helpful assistant that translates a list of titles into " + targetLanguage + ". " +
		`Output ONLY a raw JSON list of strings (e.g. ["translated 1", "translated 2"]). ` +
		"Do not use Markdown code blocks. Maintain the original order and count."

	reqBody := openaiRequest{
		Model: c.model,
		Messages: []openaiMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: string(titlesJSON)},
		},
		Temperature: 0,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("リクエストボディのJSON化に失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("OpenAI APIの呼び出しに失敗しました: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("OpenAI APIがステータス %d を返しました: %s",
			resp.StatusCode, strings.TrimSpace(string(errBody)))
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	var result openaiResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}

	if len(result.Choices) == 0 || result.Choices[0].Message.Content == "" {
		return nil, fmt.Errorf("OpenAI APIが空のレスポンスを返しました")
	}

	content := result.Choices[0].Message.Content
	var translated []string
	if err := json.Unmarshal([]byte(extractJSONArray(content)), &translated); err != nil {
		return nil, fmt.Errorf("翻訳結果の配列のパースに失敗しました: %w", err)
	}

	return translated, nil
}
