// Package translate は記事タイトルのバッチ翻訳を提供する。
//
// 翻訳はベストエフォートの付加機能であり、失敗してもパイプラインを
// 止めない。バックエンドのエラーはバッチ単位で吸収し、元のタイトルに
// フォールバックする。
package translate

import (
	"context"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/hitoshi/newsdispatcher/internal/config"
)

// TitleTranslator はタイトル翻訳バックエンドのインターフェース。
type TitleTranslator interface {
	// TranslateTitles はタイトルのリストを指定言語に翻訳する。
	// 成功時は入力と同じ順序の翻訳結果を返す。
	TranslateTitles(ctx context.Context, titles []string, targetLanguage string) ([]string, error)

	// Name はログ出力用のバックエンド名を返す。
	Name() string
}

// NewFromConfig は設定からバックエンドを選択する。
// Gemini APIキーがあればGeminiを、なければOpenAI APIキーがあればOpenAIを使用する。
// どちらのキーも未設定の場合はnilを返す（翻訳なしで動作する）。
// バックエンドの選択は起動時に1回だけ行う。
func NewFromConfig(cfg *config.Config, logger *slog.Logger) TitleTranslator {
	httpClient := &http.Client{Timeout: cfg.TranslationTimeout}

	if cfg.GeminiAPIKey != "" {
		logger.Info("翻訳バックエンドとしてGeminiを使用します",
			slog.String("model", cfg.GeminiModel),
		)
		return NewGeminiClient(httpClient, logger, cfg.GeminiAPIKey, cfg.GeminiModel)
	}

	if cfg.OpenAIAPIKey != "" {
		logger.Info("翻訳バックエンドとしてOpenAIを使用します",
			slog.String("model", cfg.OpenAIModel),
		)
		return NewOpenAIClient(httpClient, logger, cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL)
	}

	logger.Info("翻訳APIキーが未設定のため、翻訳なしで動作します")
	return nil
}

// codeBlockRe はMarkdownコードブロックに包まれたJSON配列を抽出する。
var codeBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*(\\[.*\\])\\s*```")

// arrayRe はテキスト中の最初の '[' から最後の ']' までを抽出する。
var arrayRe = regexp.MustCompile(`(?s)(\[.*\])`)

// extractJSONArray はバックエンドの応答テキストからJSON配列部分を取り出す。
// モデルがMarkdownコードブロックや前置きを付けて返すことがあるため、
// 配列リテラルのみを抽出する。見つからない場合は入力をそのまま返す。
func extractJSONArray(text string) string {
	if m := codeBlockRe.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	if m := arrayRe.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return strings.TrimSpace(text)
}

// translationPrompt はバッチ翻訳の指示文を生成する。
// 応答が生のJSON配列になるよう明示する。
func translationPrompt(targetLanguage string, titlesJSON string) string {
	return "Translate the following list of titles into " + targetLanguage + ". " +
		`Output ONLY a raw JSON list of strings (e.g. ["translated title 1", "translated title 2"]). ` +
		"Do not include any Markdown formatting or explanations. " +
		"Maintain the original order and count.\n\n" + titlesJSON
}
