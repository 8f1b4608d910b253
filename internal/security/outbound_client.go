// Package security は外部ソースとの通信に関する防御機能を提供する。
//
// 検索ソースのエンドポイント自体は固定だが、Google Newsはリダイレクトを多用し、
// フィードのリダイレクト先は外部の制御下にある。safeurlベースのHTTPクライアントで
// プライベートネットワークへのリダイレクトをブロックする。
package security

import (
	"net/http"
	"time"

	"github.com/doyensec/safeurl"
)

// OutboundClientFactory は外部ソース向けHTTPクライアントの生成インターフェース。
type OutboundClientFactory interface {
	// NewClient はSSRF防止機能付きのHTTPクライアントを生成する。
	NewClient(timeout time.Duration) *http.Client
}

// safeClientFactory はOutboundClientFactoryの実装。
type safeClientFactory struct{}

// NewOutboundClientFactory はOutboundClientFactoryの新しいインスタンスを生成する。
func NewOutboundClientFactory() *safeClientFactory {
	return &safeClientFactory{}
}

// NewClient はSSRF防止機能付きのHTTPクライアントを生成する。
// safeurlのデフォルト設定により以下がブロックされる:
//   - プライベートIPアドレス (10.0.0.0/8, 172.16.0.0/12, 192.168.0.0/16)
//   - ループバックアドレス (127.0.0.0/8, ::1)
//   - リンクローカルアドレス (169.254.0.0/16, fe80::/10)
//   - メタデータIPアドレス (169.254.169.254)
//
// safeurlはnet.DialerのControlフックでDNS解決後のIPアドレスを検証するため、
// リダイレクト先やDNS再バインディングにも対応している。
func (f *safeClientFactory) NewClient(timeout time.Duration) *http.Client {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes("http", "https").
		SetAllowedPorts(80, 443).
		Build()

	wrappedClient := safeurl.Client(config)
	return wrappedClient.Client
}

// PlainClientFactory は検証なしのHTTPクライアントを生成するファクトリ。
// テスト用（httptestサーバはループバックで待ち受けるため）。
type PlainClientFactory struct{}

// NewClient はタイムアウトのみ設定した素のHTTPクライアントを返す。
func (f *PlainClientFactory) NewClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}
